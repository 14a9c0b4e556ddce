// AngelaMos | 2026
// handler.go

package device

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/deez125/novix-gateway/internal/core"
	"github.com/deez125/novix-gateway/internal/middleware"
)

type Handler struct {
	service   *Service
	validator *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// RegisterRoutes mounts TV pairing. session authenticates web app members;
// deviceAuth authenticates paired TVs.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	session, deviceAuth func(http.Handler) http.Handler,
) {
	r.Route("/device", func(r chi.Router) {
		r.Post("/code", h.GenerateCode)
		r.Get("/poll", h.Poll)
		r.With(session).Post("/activate", h.Activate)
		r.With(deviceAuth).Get("/me", h.Me)
	})

	r.Route("/connections", func(r chi.Router) {
		r.Use(session)
		r.Put("/plex", h.SavePlexConnection)
		r.Put("/iptv", h.SaveIPTVConnection)
	})
}

func (h *Handler) GenerateCode(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.GenerateCode(r.Context())
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, resp)
}

func (h *Handler) Poll(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Poll(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, resp)
}

func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	authID := middleware.GetUserID(r.Context())
	if err := h.service.Activate(r.Context(), authID, req.Code); err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, map[string]any{
		"success": true,
		"message": "Device activated successfully",
	})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Me(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, p)
}

func (h *Handler) SavePlexConnection(w http.ResponseWriter, r *http.Request) {
	var req PlexConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	pc, err := h.service.SavePlexConnection(
		r.Context(),
		middleware.GetUserID(r.Context()),
		req,
	)
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, pc)
}

func (h *Handler) SaveIPTVConnection(w http.ResponseWriter, r *http.Request) {
	var req IPTVConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	ic, err := h.service.SaveIPTVConnection(
		r.Context(),
		middleware.GetUserID(r.Context()),
		req,
	)
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, ic)
}
