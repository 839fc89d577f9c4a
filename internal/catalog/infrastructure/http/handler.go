package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/marketplace-orders/internal/catalog/application"
	"github.com/dmehra2102/marketplace-orders/internal/catalog/domain"
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

type createProductReq struct {
	Name     string           `json:"name" validate:"required,min=3"`
	Price    *decimal.Decimal `json:"price" validate:"required"`
	Stock    *int             `json:"stock" validate:"required,gte=0,lte=2147483647"`
	Category string           `json:"category" validate:"required,min=3"`
}

type updateProductReq struct {
	Name     *string          `json:"name" validate:"omitempty,min=3"`
	Price    *decimal.Decimal `json:"price"`
	Category *string          `json:"category" validate:"omitempty,min=3"`
}

type stockReq struct {
	Delta *int `json:"delta" validate:"required,ne=0,gte=-2147483647,lte=2147483647"`
}

// Routes is mounted under /products.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Get("/{id}", h.get)

	r.Group(func(r chi.Router) {
		r.Use(h.verifier.Require(auth.RoleVendor))
		r.Get("/low-stock", h.lowStock)
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Patch("/{id}/stock", h.adjustStock)
		r.Delete("/{id}", h.delete)
	})
	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, "list products", err)
		return
	}
	if len(products) == 0 {
		httpx.WriteError(w, http.StatusNotFound, "No products found.")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, products)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get product", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"product": p})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())

	var req createProductReq
	if err := httpx.Decode(r, &req); err != nil {
		h.fail(w, "create product", err)
		return
	}
	if !req.Price.IsPositive() {
		httpx.WriteValidation(w, validation.Errors{{Path: "price", Message: "price must be a positive number"}})
		return
	}

	p, err := h.service.Create(r.Context(), principal.ID, application.NewProduct{
		Name:     req.Name,
		Price:    *req.Price,
		Stock:    *req.Stock,
		Category: req.Category,
	})
	if err != nil {
		h.fail(w, "create product", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"message": "Product created", "product": p})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())

	var req updateProductReq
	if err := httpx.Decode(r, &req); err != nil {
		h.fail(w, "update product", err)
		return
	}
	patch := domain.Patch{Name: req.Name, Price: req.Price, Category: req.Category}
	if patch.Empty() {
		httpx.WriteValidation(w, validation.Errors{{Path: "body", Message: "At least one field must be provided to update"}})
		return
	}
	if req.Price != nil && !req.Price.IsPositive() {
		httpx.WriteValidation(w, validation.Errors{{Path: "price", Message: "price must be a positive number"}})
		return
	}

	p, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), principal.ID, patch)
	if err != nil {
		h.fail(w, "update product", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"message": "Product updated", "product": p})
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())

	var req stockReq
	if err := httpx.Decode(r, &req); err != nil {
		h.fail(w, "adjust stock", err)
		return
	}
	p, err := h.service.Restock(r.Context(), chi.URLParam(r, "id"), principal.ID, *req.Delta)
	if err != nil {
		h.fail(w, "adjust stock", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"message": "Stock updated", "product": p})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())

	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id"), principal.ID); err != nil {
		h.fail(w, "delete product", err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "Product deleted")
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())

	max := application.DefaultLowStock
	if raw := r.URL.Query().Get("maxStock"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httpx.WriteValidation(w, validation.Errors{{Path: "maxStock", Message: "maxStock must be a non-negative integer"}})
			return
		}
		max = n
	}
	products, err := h.service.LowStock(r.Context(), principal.ID, max)
	if err != nil {
		h.fail(w, "low stock", err)
		return
	}
	if len(products) == 0 {
		httpx.WriteError(w, http.StatusNotFound, "No products with low stock found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		httpx.WriteValidation(w, verrs)
	case errors.Is(err, domain.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "Product not found.")
	case errors.Is(err, domain.ErrInsufficientStock):
		httpx.WriteError(w, http.StatusConflict, "Stock cannot go below zero.")
	case errors.Is(err, domain.ErrStockLimit):
		httpx.WriteValidation(w, validation.Errors{{Path: "delta", Message: "stock would exceed the product limit"}})
	case errors.Is(err, domain.ErrInvalidProduct):
		httpx.WriteError(w, http.StatusBadRequest, "Invalid product.")
	default:
		h.log.Error(op+" failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "Internal Server Error.")
	}
}
