package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/azuma-miyu/filatelier/internal/cart"
	"github.com/azuma-miyu/filatelier/internal/catalog"
	"github.com/azuma-miyu/filatelier/internal/domain"
	"github.com/azuma-miyu/filatelier/pkg/httputil"
	"github.com/azuma-miyu/filatelier/pkg/validator"
)

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	engine  *cart.Engine
	catalog catalog.Catalog
	logger  *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(engine *cart.Engine, cat catalog.Catalog, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		engine:  engine,
		catalog: cat,
		logger:  logger,
	}
}

// --- Request DTOs ---

// AddItemRequest is the JSON request body for adding a product to the cart.
// Quantity defaults to one.
type AddItemRequest struct {
	ProductID domain.ProductID `json:"product_id" validate:"required"`
	Quantity  int              `json:"quantity" validate:"gte=0,lte=999"`
}

// UpdateQuantityRequest is the JSON request body for setting a line quantity.
// Zero or less removes the line.
type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

// --- Response DTOs ---

// LineResponse is one cart line as rendered to the UI.
type LineResponse struct {
	Product  domain.ProductRef `json:"product"`
	Quantity int               `json:"quantity"`
	Subtotal int64             `json:"subtotal"`
	Selected bool              `json:"selected"`
}

// CartResponse is the cart view model.
type CartResponse struct {
	Items            []LineResponse `json:"items"`
	Summary          domain.Summary `json:"summary"`
	Initialized      bool           `json:"initialized"`
	SelectionEnabled bool           `json:"selection_enabled"`
}

func (h *CartHandler) render(c domain.Cart) CartResponse {
	selection := h.engine.SelectionEnabled()
	items := make([]LineResponse, 0, len(c.Lines))
	for _, l := range c.Lines {
		items = append(items, LineResponse{
			Product:  l.Product,
			Quantity: l.Quantity,
			Subtotal: l.Subtotal(),
			Selected: !selection || c.Selection.Has(l.Product.ID),
		})
	}
	return CartResponse{
		Items:            items,
		Summary:          h.engine.Summarize(c),
		Initialized:      h.engine.Initialized(),
		SelectionEnabled: selection,
	}
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, http.StatusOK, h.render(h.engine.Snapshot()))
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), req.ProductID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	c, err := h.engine.AddToCart(r.Context(), product, req.Quantity)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, h.render(c))
}

// UpdateItemQuantity handles PUT /api/v1/cart/items/{productId}
func (h *CartHandler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	id := domain.ProductID(chi.URLParam(r, "productId"))

	var req UpdateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	c := h.engine.UpdateQuantity(r.Context(), id, *req.Quantity)
	httputil.WriteData(w, http.StatusOK, h.render(c))
}

// RemoveItem handles DELETE /api/v1/cart/items/{productId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id := domain.ProductID(chi.URLParam(r, "productId"))
	c := h.engine.RemoveFromCart(r.Context(), id)
	httputil.WriteData(w, http.StatusOK, h.render(c))
}

// RefreshItem handles POST /api/v1/cart/items/{productId}/refresh. The line
// is re-read from the catalog; a product the catalog no longer knows is
// removed.
func (h *CartHandler) RefreshItem(w http.ResponseWriter, r *http.Request) {
	id := domain.ProductID(chi.URLParam(r, "productId"))

	product, err := h.catalog.GetProduct(r.Context(), id)
	switch {
	case err == nil:
	case catalog.IsNotFound(err):
		c := h.engine.RemoveFromCart(r.Context(), id)
		httputil.WriteData(w, http.StatusOK, h.render(c))
		return
	default:
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	c := h.engine.RefreshProduct(r.Context(), product)
	httputil.WriteData(w, http.StatusOK, h.render(c))
}

// ToggleItem handles POST /api/v1/cart/selection/{productId}/toggle
func (h *CartHandler) ToggleItem(w http.ResponseWriter, r *http.Request) {
	id := domain.ProductID(chi.URLParam(r, "productId"))
	c, err := h.engine.ToggleItemSelection(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, h.render(c))
}

// ToggleAll handles POST /api/v1/cart/selection/toggle-all
func (h *CartHandler) ToggleAll(w http.ResponseWriter, r *http.Request) {
	c, err := h.engine.ToggleAllItems(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, h.render(c))
}

// RemoveSelected handles DELETE /api/v1/cart/selection
func (h *CartHandler) RemoveSelected(w http.ResponseWriter, r *http.Request) {
	c, err := h.engine.RemoveSelectedItems(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, h.render(c))
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	c := h.engine.ClearCart(r.Context())
	httputil.WriteData(w, http.StatusOK, h.render(c))
}
