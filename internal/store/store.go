// Package store persists the shopper's cart between sessions. The Adapter
// never fails its callers: every backend or decoding problem is logged and
// degrades to an empty cart on load or a skipped write on save.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/azuma-miyu/filatelier/internal/domain"
)

// DefaultKey is the key the cart is stored under.
const DefaultKey = "shopping-cart"

// DefaultTimeout bounds a single load or save.
const DefaultTimeout = 2 * time.Second

// ErrKeyNotFound is returned by a Backend when nothing is stored under a key.
var ErrKeyNotFound = errors.New("store: key not found")

// Backend is a byte-oriented key/value store.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Pinger is implemented by backends that can report their reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Adapter reads and writes the cart layout: a JSON array of
// {"product": ProductRef, "quantity": n} objects under a single key.
type Adapter struct {
	backend Backend
	key     string
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithKey overrides DefaultKey.
func WithKey(key string) Option {
	return func(a *Adapter) {
		if key != "" {
			a.key = key
		}
	}
}

// WithTimeout overrides DefaultTimeout. A non-positive value disables it.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.timeout = d }
}

// NewAdapter creates an Adapter over backend.
func NewAdapter(backend Backend, logger *slog.Logger, opts ...Option) *Adapter {
	a := &Adapter{
		backend: backend,
		key:     DefaultKey,
		timeout: DefaultTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Load returns the stored cart. An absent key, an unreachable backend and
// malformed data all yield an empty cart. Stored lines are normalized.
func (a *Adapter) Load(ctx context.Context) domain.Cart {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	raw, err := a.backend.Get(ctx, a.key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			a.logger.DebugContext(ctx, "no stored cart", slog.String("key", a.key))
			return domain.Cart{}
		}
		storeFailures.WithLabelValues("load").Inc()
		a.logger.WarnContext(ctx, "failed to load stored cart, starting empty",
			slog.String("key", a.key),
			slog.String("error", err.Error()),
		)
		return domain.Cart{}
	}

	lines, err := Decode(raw)
	if err != nil {
		storeFailures.WithLabelValues("decode").Inc()
		a.logger.WarnContext(ctx, "stored cart is malformed, starting empty",
			slog.String("key", a.key),
			slog.String("error", err.Error()),
		)
		return domain.Cart{}
	}

	normalized, dropped := Normalize(lines)
	if dropped > 0 {
		a.logger.WarnContext(ctx, "dropped invalid stored cart lines",
			slog.String("key", a.key),
			slog.Int("dropped", dropped),
		)
	}
	return domain.Cart{Lines: normalized}
}

// Save writes the cart lines. Failures are logged and swallowed.
func (a *Adapter) Save(ctx context.Context, cart domain.Cart) {
	raw, err := Encode(cart.Lines)
	if err != nil {
		storeFailures.WithLabelValues("encode").Inc()
		a.logger.ErrorContext(ctx, "failed to encode cart", slog.String("error", err.Error()))
		return
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	if err := a.backend.Set(ctx, a.key, raw); err != nil {
		storeFailures.WithLabelValues("save").Inc()
		a.logger.WarnContext(ctx, "failed to save cart",
			slog.String("key", a.key),
			slog.Int("lines", len(cart.Lines)),
			slog.String("error", err.Error()),
		)
		return
	}
	storeWrites.Inc()
}

// Ping reports whether the backend is reachable. Backends without a notion of
// reachability always succeed.
func (a *Adapter) Ping(ctx context.Context) error {
	p, ok := a.backend.(Pinger)
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}

func (a *Adapter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}

// Encode renders lines in the stored layout. A nil slice encodes as [].
func Encode(lines []domain.CartLine) ([]byte, error) {
	if lines == nil {
		lines = []domain.CartLine{}
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		return nil, fmt.Errorf("marshal cart lines: %w", err)
	}
	return raw, nil
}

// Decode parses the stored layout. JSON null decodes as an empty cart.
func Decode(raw []byte) ([]domain.CartLine, error) {
	var lines []domain.CartLine
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, fmt.Errorf("unmarshal cart lines: %w", err)
	}
	return lines, nil
}

// Normalize enforces the cart invariants on lines read from storage:
// lines with an unusable product or no stock are dropped, quantities are
// clamped to [1, stock] and repeated ids are merged into the first line.
// It returns the cleaned lines and how many input lines did not survive.
func Normalize(lines []domain.CartLine) ([]domain.CartLine, int) {
	out := make([]domain.CartLine, 0, len(lines))
	index := make(map[domain.ProductID]int, len(lines))
	dropped := 0

	for _, l := range lines {
		if !l.Product.Valid() || l.Product.Stock == 0 {
			dropped++
			continue
		}
		if i, ok := index[l.Product.ID]; ok {
			out[i].Quantity = domain.ClampQuantity(out[i].Quantity+max(l.Quantity, 1), out[i].Product.Stock)
			dropped++
			continue
		}
		l.Quantity = domain.ClampQuantity(l.Quantity, l.Product.Stock)
		index[l.Product.ID] = len(out)
		out = append(out, l)
	}
	return out, dropped
}
