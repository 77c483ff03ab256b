// Package disabled is a store backend that refuses every operation, the way
// a browser with storage turned off behaves.
package disabled

import (
	"context"
	"errors"
)

// ErrDisabled is returned by every call.
var ErrDisabled = errors.New("storage is disabled")

// Backend fails every Get and Set.
type Backend struct{}

// New creates a Backend.
func New() Backend { return Backend{} }

// Get implements store.Backend.
func (Backend) Get(context.Context, string) ([]byte, error) { return nil, ErrDisabled }

// Set implements store.Backend.
func (Backend) Set(context.Context, string, []byte) error { return ErrDisabled }
