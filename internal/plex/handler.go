// AngelaMos | 2026
// handler.go

package plex

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/deez125/novix-gateway/internal/core"
)

type Gateway interface {
	CreatePin(ctx context.Context) (*Pin, error)
	CheckPin(ctx context.Context, pinID, code string) (*Pin, error)
	GetAccount(ctx context.Context, authToken string) (*Account, error)
	AuthURL(code string) string
	ListFriends(ctx context.Context) ([]Friend, error)
	ListLibraries(ctx context.Context) ([]Library, error)
	Stats(ctx context.Context) (LibraryStats, error)
}

type Handler struct {
	gateway Gateway
}

func NewHandler(gateway Gateway) *Handler {
	return &Handler{gateway: gateway}
}

// RegisterRoutes mounts the public Plex login flow and library stats.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stats", h.Stats)
	r.Route("/plex/auth", func(r chi.Router) {
		r.Post("/start", h.StartAuth)
		r.Get("/check", h.CheckAuth)
	})
}

// RegisterAdminRoutes mounts operator views of the Plex account. The
// caller applies admin authentication.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/plex/friends", h.Friends)
	r.Get("/plex/libraries", h.Libraries)
}

type startAuthResponse struct {
	PinID     int64     `json:"pin_id"`
	PinCode   string    `json:"pin_code"`
	AuthURL   string    `json:"auth_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type plexUserView struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Thumb     string `json:"thumb"`
	AuthToken string `json:"auth_token"`
}

type checkAuthResponse struct {
	Authorized bool          `json:"authorized"`
	PlexUser   *plexUserView `json:"plex_user,omitempty"`
}

func (h *Handler) StartAuth(w http.ResponseWriter, r *http.Request) {
	pin, err := h.gateway.CreatePin(r.Context())
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, startAuthResponse{
		PinID:     pin.ID,
		PinCode:   pin.Code,
		AuthURL:   h.gateway.AuthURL(pin.Code),
		ExpiresAt: pin.ExpiresAt,
	})
}

func (h *Handler) CheckAuth(w http.ResponseWriter, r *http.Request) {
	pinID := r.URL.Query().Get("pin_id")
	pinCode := r.URL.Query().Get("pin_code")
	if pinID == "" || pinCode == "" {
		core.BadRequest(w, "missing pin_id or pin_code")
		return
	}

	pin, err := h.gateway.CheckPin(r.Context(), pinID, pinCode)
	if err != nil {
		core.JSONError(w, err)
		return
	}

	if pin.AuthToken == "" {
		core.OK(w, checkAuthResponse{Authorized: false})
		return
	}

	acct, err := h.gateway.GetAccount(r.Context(), pin.AuthToken)
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, checkAuthResponse{
		Authorized: true,
		PlexUser: &plexUserView{
			ID:        acct.ID,
			Username:  acct.Username,
			Email:     acct.Email,
			Thumb:     acct.Thumb,
			AuthToken: pin.AuthToken,
		},
	})
}

// Stats never fails the public page; an unreachable server reports zeros.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.gateway.Stats(r.Context())
	if err != nil {
		slog.WarnContext(r.Context(), "library stats unavailable", "error", err)
		stats = LibraryStats{}
	}

	core.OK(w, stats)
}

func (h *Handler) Friends(w http.ResponseWriter, r *http.Request) {
	friends, err := h.gateway.ListFriends(r.Context())
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, friends)
}

func (h *Handler) Libraries(w http.ResponseWriter, r *http.Request) {
	libs, err := h.gateway.ListLibraries(r.Context())
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, libs)
}
