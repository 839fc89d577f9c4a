package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/marketplace-orders/internal/order/application"
	"github.com/dmehra2102/marketplace-orders/internal/order/domain"
	"github.com/dmehra2102/marketplace-orders/pkg/auth"
	"github.com/dmehra2102/marketplace-orders/pkg/httpx"
	"github.com/dmehra2102/marketplace-orders/pkg/idempotency"
	"github.com/dmehra2102/marketplace-orders/pkg/validation"
)

type Handler struct {
	log      *slog.Logger
	checkout *application.Service
	queries  *application.QueryService
	verifier *auth.Verifier
	idem     idempotency.Backend
	tracer   trace.Tracer
}

// NewHandler builds the /orders routes. idem may be nil to disable
// Idempotency-Key handling.
func NewHandler(log *slog.Logger, checkout *application.Service, queries *application.QueryService, verifier *auth.Verifier, idem idempotency.Backend) *Handler {
	return &Handler{
		log:      log,
		checkout: checkout,
		queries:  queries,
		verifier: verifier,
		idem:     idem,
		tracer:   otel.Tracer("order-http"),
	}
}

type statusReq struct {
	Status string `json:"status" validate:"required,oneof=created dispatched delivered"`
}

// Routes is mounted under /orders.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(h.verifier.Require(auth.RoleVendor))
		r.Get("/received", h.listReceived)
		r.Put("/{id}", h.changeStatus)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.verifier.Require(auth.RoleCustomer))
		r.With(idempotency.Middleware(h.log, h.idem, principalScope)).Post("/", h.createOrder)
		r.Get("/", h.listOrders)
		r.Get("/{id}", h.getOrder)
	})
	return r
}

func principalScope(r *http.Request) string {
	p, _ := auth.FromContext(r.Context())
	return p.ID
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrderHTTP")
	defer span.End()

	principal, _ := auth.FromContext(ctx)
	summary, err := h.checkout.CreateOrder(ctx, principal.ID)
	if err != nil {
		h.fail(w, "create order", err)
		return
	}
	if summary.Empty() {
		httpx.WriteError(w, http.StatusNotFound, "No items in the cart to create a order")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"message": "Order created successfully", "orders": summary})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())

	var status domain.Status
	if raw := r.URL.Query().Get("orderStatus"); raw != "" {
		st, err := domain.ParseStatus(raw)
		if err != nil {
			h.fail(w, "list orders", err)
			return
		}
		status = st
	}
	history, err := h.queries.ListForCustomer(r.Context(), principal.ID, status)
	if err != nil {
		h.fail(w, "list orders", err)
		return
	}
	if len(history.Lines) == 0 {
		httpx.WriteMessage(w, http.StatusNotFound, "No orders found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, history)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())

	view, err := h.queries.Get(r.Context(), chi.URLParam(r, "id"), principal.ID)
	if err != nil {
		h.fail(w, "get order", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"order": view})
}

func (h *Handler) listReceived(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())

	status := domain.StatusCreated
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, err := domain.ParseStatus(raw)
		if err != nil {
			h.fail(w, "list received orders", err)
			return
		}
		status = st
	}
	views, err := h.queries.ListForVendor(r.Context(), principal.ID, status)
	if err != nil {
		h.fail(w, "list received orders", err)
		return
	}
	if len(views) == 0 {
		httpx.WriteError(w, http.StatusNotFound, "No orders found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"orders": views})
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())

	var req statusReq
	if err := httpx.Decode(r, &req); err != nil {
		h.fail(w, "change order status", err)
		return
	}
	line, err := h.queries.ChangeStatus(r.Context(), chi.URLParam(r, "id"), principal.ID, domain.Status(req.Status))
	if err != nil {
		h.fail(w, "change order status", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"message": "Order status updated successfully", "order": line})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		httpx.WriteValidation(w, verrs)
	case errors.Is(err, domain.ErrInvalidStatus):
		httpx.WriteValidation(w, validation.Errors{{Path: "status", Message: "status must be one of [created dispatched delivered]"}})
	case errors.Is(err, domain.ErrNotFound):
		httpx.WriteMessage(w, http.StatusNotFound, "Order not found")
	case errors.Is(err, domain.ErrConflict):
		h.log.Warn(op+" conflicted", "err", err)
		w.Header().Set("Retry-After", "1")
		httpx.WriteError(w, http.StatusInternalServerError, "Order could not be placed, please retry")
	default:
		h.log.Error(op+" failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}
