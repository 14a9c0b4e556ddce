// AngelaMos | 2026
// handler.go

package activity

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/deez125/novix-gateway/internal/core"
)

type Handler struct {
	ledger *Ledger
}

func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/activity", h.List)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	entries, err := h.ledger.Recent(r.Context(), limit)
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, entries)
}
