// Package cart holds the shopper's cart state and the only operations allowed
// to change it. Every mutation is serialized and written through to the store
// before the next one starts.
package cart

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/azuma-miyu/filatelier/internal/domain"
	apperrors "github.com/azuma-miyu/filatelier/pkg/errors"
)

// Store persists cart snapshots. Implementations swallow their own failures.
type Store interface {
	Load(ctx context.Context) domain.Cart
	Save(ctx context.Context, cart domain.Cart)
}

// Engine is the cart state container shared by the HTTP handlers and the
// checkout orchestrator.
type Engine struct {
	mu          sync.Mutex
	store       Store
	logger      *slog.Logger
	selection   bool
	cart        domain.Cart
	initialized bool
	dirty       bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithSelection enables the selection-aware variant: lines carry a
// selected flag and checkout can be restricted to the selection.
func WithSelection(enabled bool) Option {
	return func(e *Engine) { e.selection = enabled }
}

// NewEngine creates an empty, not yet hydrated engine.
func NewEngine(store Store, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.selection {
		e.cart.Selection = domain.SelectionSet{}
	}
	return e
}

// SelectionEnabled reports whether the selection-aware variant is active.
func (e *Engine) SelectionEnabled() bool {
	return e.selection
}

// Initialized reports whether Hydrate has completed.
func (e *Engine) Initialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized
}

// Hydrate loads the stored cart once. Lines added before hydration win over
// stored lines with the same id; the rest of the stored lines are kept and
// the merged cart is saved.
func (e *Engine) Hydrate(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return
	}

	stored := e.store.Load(ctx)
	if e.dirty {
		merged := make([]domain.CartLine, 0, len(stored.Lines)+len(e.cart.Lines))
		for _, l := range stored.Lines {
			if !e.cart.Contains(l.Product.ID) {
				merged = append(merged, l)
			}
		}
		e.cart.Lines = append(merged, e.cart.Lines...)
	} else {
		e.cart.Lines = stored.Lines
	}

	if e.selection {
		e.cart.Selection = make(domain.SelectionSet, len(e.cart.Lines))
		for _, id := range e.cart.IDs() {
			e.cart.Selection[id] = struct{}{}
		}
	}

	if e.dirty {
		e.store.Save(ctx, e.cart.Clone())
	}
	e.initialized = true

	e.logger.InfoContext(ctx, "cart hydrated",
		slog.Int("lines", len(e.cart.Lines)),
		slog.Bool("merged", e.dirty),
	)
}

// Snapshot returns a deep copy of the current cart.
func (e *Engine) Snapshot() domain.Cart {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.Clone()
}

// Summary returns the cart aggregates. It is zero until the cart is hydrated.
// Without selection support every line counts as selected.
func (e *Engine) Summary() domain.Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summarizeLocked(&e.cart)
}

// Summarize computes the aggregates of c, a snapshot previously returned by
// the engine, so a rendered cart never mixes lines and totals from two
// different states.
func (e *Engine) Summarize(c domain.Cart) domain.Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summarizeLocked(&c)
}

func (e *Engine) summarizeLocked(c *domain.Cart) domain.Summary {
	if !e.initialized {
		return domain.Summary{}
	}
	s := c.Summary()
	if !e.selection {
		s.SelectedTotalItems = s.TotalItems
		s.SelectedTotalPrice = s.TotalPrice
	}
	return s
}

// AddToCart adds qty units of product. An existing line grows to at most the
// product stock; a new line starts at min(qty, stock) and is selected.
// Non-positive quantities count as one.
func (e *Engine) AddToCart(ctx context.Context, product domain.ProductRef, qty int) (domain.Cart, error) {
	if !product.Valid() {
		return domain.Cart{}, apperrors.InvalidInput("product is invalid")
	}
	if product.Stock <= 0 {
		return domain.Cart{}, apperrors.InvalidInput(fmt.Sprintf("%s is out of stock", product.Name))
	}
	if qty < 1 {
		qty = 1
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var quantity int
	if i := e.cart.Index(product.ID); i >= 0 {
		line := &e.cart.Lines[i]
		quantity = domain.ClampQuantity(line.Quantity+qty, line.Product.Stock)
		line.Quantity = quantity
	} else {
		quantity = domain.ClampQuantity(qty, product.Stock)
		e.cart.Lines = append(e.cart.Lines, domain.CartLine{Product: product, Quantity: quantity})
		if e.selection {
			e.cart.Selection[product.ID] = struct{}{}
		}
	}

	e.commit(ctx, "cart item added",
		slog.String("product_id", product.ID.String()),
		slog.Int("requested", qty),
		slog.Int("quantity", quantity),
	)
	return e.cart.Clone(), nil
}

// RemoveFromCart deletes the line for id and its selection. Unknown ids are
// ignored.
func (e *Engine) RemoveFromCart(ctx context.Context, id domain.ProductID) domain.Cart {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removeLocked(id) {
		e.commit(ctx, "cart item removed", slog.String("product_id", id.String()))
	}
	return e.cart.Clone()
}

// UpdateQuantity sets the quantity of the line for id, clamped to the line's
// stock. A non-positive quantity removes the line. Unknown ids are ignored.
func (e *Engine) UpdateQuantity(ctx context.Context, id domain.ProductID, qty int) domain.Cart {
	e.mu.Lock()
	defer e.mu.Unlock()

	if qty <= 0 {
		if e.removeLocked(id) {
			e.commit(ctx, "cart item removed", slog.String("product_id", id.String()))
		}
		return e.cart.Clone()
	}

	i := e.cart.Index(id)
	if i < 0 {
		return e.cart.Clone()
	}

	line := &e.cart.Lines[i]
	line.Quantity = domain.ClampQuantity(qty, line.Product.Stock)
	e.commit(ctx, "cart item quantity updated",
		slog.String("product_id", id.String()),
		slog.Int("requested", qty),
		slog.Int("quantity", line.Quantity),
	)
	return e.cart.Clone()
}

// RefreshProduct replaces the snapshot of an existing line with a newer
// catalog record and re-clamps its quantity. A product that ran out of stock
// is removed.
func (e *Engine) RefreshProduct(ctx context.Context, product domain.ProductRef) domain.Cart {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.cart.Index(product.ID)
	if i < 0 || !product.Valid() {
		return e.cart.Clone()
	}

	qty := domain.ClampQuantity(e.cart.Lines[i].Quantity, product.Stock)
	if qty == 0 {
		e.removeLocked(product.ID)
		e.commit(ctx, "cart item removed, out of stock", slog.String("product_id", product.ID.String()))
		return e.cart.Clone()
	}

	e.cart.Lines[i] = domain.CartLine{Product: product, Quantity: qty}
	e.commit(ctx, "cart item refreshed",
		slog.String("product_id", product.ID.String()),
		slog.Int("stock", product.Stock),
		slog.Int("quantity", qty),
	)
	return e.cart.Clone()
}

// ToggleItemSelection flips the selection of the line for id.
func (e *Engine) ToggleItemSelection(ctx context.Context, id domain.ProductID) (domain.Cart, error) {
	if !e.selection {
		return domain.Cart{}, apperrors.InvalidInput("item selection is not enabled")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.cart.Contains(id) {
		return e.cart.Clone(), nil
	}

	selected := !e.cart.Selection.Has(id)
	if selected {
		e.cart.Selection[id] = struct{}{}
	} else {
		delete(e.cart.Selection, id)
	}

	e.logger.DebugContext(ctx, "cart item selection toggled",
		slog.String("product_id", id.String()),
		slog.Bool("selected", selected),
	)
	return e.cart.Clone(), nil
}

// ToggleAllItems clears the selection when every line is selected and
// selects every line otherwise.
func (e *Engine) ToggleAllItems(ctx context.Context) (domain.Cart, error) {
	if !e.selection {
		return domain.Cart{}, apperrors.InvalidInput("item selection is not enabled")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	selectAll := !e.cart.AllSelected()
	e.cart.Selection = make(domain.SelectionSet, len(e.cart.Lines))
	if selectAll {
		for _, id := range e.cart.IDs() {
			e.cart.Selection[id] = struct{}{}
		}
	}

	e.logger.DebugContext(ctx, "cart selection toggled",
		slog.Bool("selected", selectAll),
		slog.Int("lines", len(e.cart.Lines)),
	)
	return e.cart.Clone(), nil
}

// RemoveSelectedItems deletes every selected line.
func (e *Engine) RemoveSelectedItems(ctx context.Context) (domain.Cart, error) {
	if !e.selection {
		return domain.Cart{}, apperrors.InvalidInput("item selection is not enabled")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.cart.Selection) == 0 {
		return e.cart.Clone(), nil
	}

	ids := make([]domain.ProductID, 0, len(e.cart.Selection))
	for id := range e.cart.Selection {
		ids = append(ids, id)
	}
	removed := e.removeManyLocked(ids)
	e.commit(ctx, "selected cart items removed", slog.Int("removed", removed))
	return e.cart.Clone(), nil
}

// RemoveLines deletes the lines for ids. Used when a partial checkout
// completes.
func (e *Engine) RemoveLines(ctx context.Context, ids []domain.ProductID) domain.Cart {
	e.mu.Lock()
	defer e.mu.Unlock()

	if removed := e.removeManyLocked(ids); removed > 0 {
		e.commit(ctx, "cart lines removed", slog.Int("removed", removed))
	}
	return e.cart.Clone()
}

// ClearCart empties the cart and its selection.
func (e *Engine) ClearCart(ctx context.Context) domain.Cart {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := len(e.cart.Lines)
	e.cart.Lines = nil
	if e.selection {
		e.cart.Selection = domain.SelectionSet{}
	}
	e.commit(ctx, "cart cleared", slog.Int("removed", removed))
	return e.cart.Clone()
}

func (e *Engine) removeLocked(id domain.ProductID) bool {
	i := e.cart.Index(id)
	if i < 0 {
		return false
	}
	e.cart.Lines = append(e.cart.Lines[:i], e.cart.Lines[i+1:]...)
	delete(e.cart.Selection, id)
	return true
}

func (e *Engine) removeManyLocked(ids []domain.ProductID) int {
	drop := make(map[domain.ProductID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	kept := e.cart.Lines[:0]
	removed := 0
	for _, l := range e.cart.Lines {
		if _, ok := drop[l.Product.ID]; ok {
			delete(e.cart.Selection, l.Product.ID)
			removed++
			continue
		}
		kept = append(kept, l)
	}
	e.cart.Lines = kept
	return removed
}

// commit writes the cart through to the store. Before hydration the write is
// deferred to Hydrate so the stored cart is not overwritten unread. Callers
// hold e.mu.
func (e *Engine) commit(ctx context.Context, msg string, attrs ...any) {
	if e.initialized {
		e.store.Save(ctx, e.cart.Clone())
	} else {
		e.dirty = true
	}
	e.logger.DebugContext(ctx, msg, attrs...)
}
