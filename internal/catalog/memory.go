package catalog

import (
	"context"
	_ "embed"
	"sync"

	"github.com/azuma-miyu/filatelier/internal/domain"
	apperrors "github.com/azuma-miyu/filatelier/pkg/errors"
)

//go:embed seed.json
var seedJSON []byte

// Seed returns the handmade crochet product set used when no catalog backend
// is configured.
func Seed() []domain.ProductRef {
	products, err := decodeProducts(seedJSON)
	if err != nil {
		panic(err)
	}
	return products
}

// MemoryCatalog serves products from process memory.
type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[domain.ProductID]domain.ProductRef
	order    []domain.ProductID
}

// NewMemoryCatalog creates a catalog holding products, or the seed set when
// none are given.
func NewMemoryCatalog(products ...domain.ProductRef) *MemoryCatalog {
	if len(products) == 0 {
		products = Seed()
	}
	c := &MemoryCatalog{products: make(map[domain.ProductID]domain.ProductRef, len(products))}
	for _, p := range products {
		c.Put(p)
	}
	return c
}

// GetProduct implements Catalog.
func (c *MemoryCatalog) GetProduct(ctx context.Context, id domain.ProductID) (domain.ProductRef, error) {
	if err := ctx.Err(); err != nil {
		return domain.ProductRef{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[id]
	if !ok {
		return domain.ProductRef{}, apperrors.NotFound("product", id.String())
	}
	return p, nil
}

// List returns every product in insertion order.
func (c *MemoryCatalog) List() []domain.ProductRef {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.ProductRef, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.products[id])
	}
	return out
}

// Put adds or replaces a product.
func (c *MemoryCatalog) Put(p domain.ProductRef) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.products[p.ID]; !ok {
		c.order = append(c.order, p.ID)
	}
	c.products[p.ID] = p
}

// SetStock changes the stock of a known product.
func (c *MemoryCatalog) SetStock(id domain.ProductID, stock int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[id]
	if !ok {
		return false
	}
	p.Stock = stock
	c.products[id] = p
	return true
}

// Remove deletes a product. It reports whether the product existed.
func (c *MemoryCatalog) Remove(id domain.ProductID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.products[id]; !ok {
		return false
	}
	delete(c.products, id)
	for i, known := range c.order {
		if known == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}
