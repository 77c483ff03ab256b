package order

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// MemoryRecorder keeps orders in process memory. It backs the demo and mock
// payment modes when no order backend is configured.
type MemoryRecorder struct {
	mu     sync.Mutex
	orders map[string]Request
	byKey  map[string]string
}

// NewMemoryRecorder creates an empty recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		orders: make(map[string]Request),
		byKey:  make(map[string]string),
	}
}

// RecordOrder implements Recorder.
func (m *MemoryRecorder) RecordOrder(ctx context.Context, req Request, idempotencyKey string) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if len(req.Lines) == 0 {
		return Receipt{}, errors.New("order has no lines")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byKey[idempotencyKey]; ok && idempotencyKey != "" {
		return Receipt{OrderID: id}, nil
	}

	id := uuid.NewString()
	m.orders[id] = req
	if idempotencyKey != "" {
		m.byKey[idempotencyKey] = id
	}
	return Receipt{OrderID: id}, nil
}

// Get returns a recorded order.
func (m *MemoryRecorder) Get(orderID string) (Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.orders[orderID]
	return req, ok
}

// Len returns the number of recorded orders.
func (m *MemoryRecorder) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}
