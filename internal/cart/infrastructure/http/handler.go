package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmehra2102/marketplace-orders/internal/cart/application"
	"github.com/dmehra2102/marketplace-orders/internal/cart/domain"
	"github.com/dmehra2102/marketplace-orders/pkg/auth"
	"github.com/dmehra2102/marketplace-orders/pkg/httpx"
	"github.com/dmehra2102/marketplace-orders/pkg/validation"
)

type Handler struct {
	log      *slog.Logger
	service  *application.Service
	verifier *auth.Verifier
}

func NewHandler(log *slog.Logger, service *application.Service, verifier *auth.Verifier) *Handler {
	return &Handler{log: log, service: service, verifier: verifier}
}

type cartReq struct {
	Quantity int  `json:"quantity" validate:"gt=0,lte=2147483647"`
	Remove   bool `json:"remove"`
}

// Routes is mounted under /cart. Every route requires a customer.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.verifier.Require(auth.RoleCustomer))
	r.Get("/", h.list)
	r.Post("/{productId}", h.add)
	r.Patch("/{cartId}", h.update)
	r.Delete("/{cartId}", h.remove)
	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())

	lines, err := h.service.List(r.Context(), principal.ID)
	if err != nil {
		h.fail(w, "list cart", err)
		return
	}
	if len(lines) == 0 {
		httpx.WriteMessage(w, http.StatusNotFound, "Cart Empty")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"cartItems": lines})
}

func (h *Handler) add(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())

	var req cartReq
	if err := httpx.Decode(r, &req); err != nil {
		h.fail(w, "add to cart", err)
		return
	}
	line, err := h.service.AddToCart(r.Context(), chi.URLParam(r, "productId"), principal.ID, req.Quantity)
	if err != nil {
		h.fail(w, "add to cart", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"message": "Product added to cart", "cartItem": line})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())

	var req cartReq
	if err := httpx.Decode(r, &req); err != nil {
		h.fail(w, "update cart", err)
		return
	}
	res, err := h.service.UpdateQuantity(r.Context(), chi.URLParam(r, "cartId"), principal.ID, req.Quantity, req.Remove)
	if err != nil {
		h.fail(w, "update cart", err)
		return
	}
	switch res.Outcome {
	case domain.Removed:
		httpx.WriteMessage(w, http.StatusOK, "Product removed from cart")
	default:
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"message": "Cart updated", "cartItem": res.Line})
	}
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())

	if err := h.service.Remove(r.Context(), chi.URLParam(r, "cartId"), principal.ID); err != nil {
		h.fail(w, "remove from cart", err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "Product removed from cart")
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		httpx.WriteValidation(w, verrs)
	case errors.Is(err, domain.ErrQuantityLimit):
		httpx.WriteValidation(w, validation.Errors{{Path: "quantity", Message: "quantity exceeds the cart line limit"}})
	case errors.Is(err, domain.ErrNotAvailable):
		httpx.WriteError(w, http.StatusNotFound, domain.ErrNotAvailable.Error())
	case errors.Is(err, domain.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "Cart item not found")
	default:
		h.log.Error(op+" failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}
