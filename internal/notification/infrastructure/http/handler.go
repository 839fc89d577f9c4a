package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dmehra2102/marketplace-orders/internal/notification/application"
	"github.com/dmehra2102/marketplace-orders/pkg/auth"
	"github.com/dmehra2102/marketplace-orders/pkg/httpx"
	"github.com/dmehra2102/marketplace-orders/pkg/validation"
)

const defaultLimit = 50

type Handler struct {
	log      *slog.Logger
	service  *application.Service
	verifier *auth.Verifier
}

func NewHandler(log *slog.Logger, service *application.Service, verifier *auth.Verifier) *Handler {
	return &Handler{log: log, service: service, verifier: verifier}
}

// Routes is mounted under /notifications.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.With(h.verifier.Require(auth.RoleVendor)).Get("/vendor", h.list)
	r.With(h.verifier.Require(auth.RoleCustomer)).Get("/customer", h.list)
	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())

	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			httpx.WriteValidation(w, validation.Errors{{Path: "limit", Message: "limit must be between 1 and 500"}})
			return
		}
		limit = n
	}

	notes, err := h.service.List(r.Context(), principal.ID, limit)
	if err != nil {
		h.log.Error("list notifications failed", "recipient_id", principal.ID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"notifications": notes})
}
