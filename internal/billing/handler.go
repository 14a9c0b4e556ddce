// AngelaMos | 2026
// handler.go

package billing

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/deez125/novix-gateway/internal/core"
	"github.com/deez125/novix-gateway/internal/middleware"
)

const maxWebhookBody = 1 << 16

type Handler struct {
	processor *Processor
	manager   *Manager
	validator *validator.Validate
}

func NewHandler(p *Processor, m *Manager) *Handler {
	return &Handler{
		processor: p,
		manager:   m,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// RegisterRoutes mounts the member-facing billing endpoints. Subscription
// changes need a session whose account owns the membership.
func (h *Handler) RegisterRoutes(r chi.Router, session func(http.Handler) http.Handler) {
	r.Post("/webhook/stripe", h.Webhook)
	r.Post("/signup", h.Signup)
	r.Get("/user/subscription", h.GetSubscription)
	r.Get("/checkout/success", h.CheckoutSuccess)

	r.Route("/subscription", func(r chi.Router) {
		r.Use(session)
		r.Post("/change", h.ChangeSubscription)
		r.Post("/cancel", h.CancelSubscription)
	})
}

// RegisterAdminRoutes mounts operator billing endpoints. The caller applies
// admin authentication.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/users/{userID}/checkout", h.CreateCheckout)
	r.Put("/users/{userID}/tier", h.AssignTier)
}

func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		core.BadRequest(w, "unreadable body")
		return
	}

	err = h.processor.ProcessWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, ErrInvalidSignature):
		core.BadRequest(w, "Webhook signature verification failed")
	case err != nil:
		core.JSONError(w, core.NewAppError(err, "Webhook processing error",
			http.StatusInternalServerError, "WEBHOOK_ERROR"))
	default:
		core.JSON(w, http.StatusOK, map[string]bool{"received": true})
	}
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	res, err := h.manager.Signup(r.Context(), req)
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, res)
}

func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	view, err := h.manager.SubscriptionStatus(r.Context(), r.URL.Query().Get("plex_user_id"))
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, view)
}

func (h *Handler) CheckoutSuccess(w http.ResponseWriter, r *http.Request) {
	userID, err := h.processor.ConfirmCheckoutSuccess(r.Context(), r.URL.Query().Get("session_id"))
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, map[string]any{"success": true, "user_id": userID})
}

type changeRequest struct {
	PlexUserID string `json:"plex_user_id" validate:"required"`
	NewTier    string `json:"new_tier"     validate:"required,oneof=hd 4k"`
}

func (h *Handler) ChangeSubscription(w http.ResponseWriter, r *http.Request) {
	var req changeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	if err := h.manager.Owns(r.Context(), middleware.GetUserID(r.Context()), req.PlexUserID); err != nil {
		core.JSONError(w, err)
		return
	}

	tier, err := h.manager.ApplyTierChange(r.Context(), req.PlexUserID, req.NewTier)
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, map[string]any{"success": true, "new_tier": tier})
}

type cancelRequest struct {
	PlexUserID string `json:"plex_user_id" validate:"required"`
}

func (h *Handler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	if err := h.manager.Owns(r.Context(), middleware.GetUserID(r.Context()), req.PlexUserID); err != nil {
		core.JSONError(w, err)
		return
	}

	if err := h.manager.ApplyCancellation(r.Context(), req.PlexUserID); err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, map[string]bool{"success": true})
}

type checkoutRequest struct {
	PriceID string `json:"price_id"`
}

func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			core.BadRequest(w, "invalid request body")
			return
		}
	}

	url, err := h.manager.CreateCheckout(r.Context(), chi.URLParam(r, "userID"), req.PriceID)
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, map[string]string{"checkout_url": url})
}

type assignTierRequest struct {
	Tier string `json:"tier" validate:"required,oneof=hd 4k admin"`
}

func (h *Handler) AssignTier(w http.ResponseWriter, r *http.Request) {
	var req assignTierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	tier, err := h.manager.AssignTier(r.Context(), chi.URLParam(r, "userID"), req.Tier)
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, map[string]any{"success": true, "tier": tier})
}
