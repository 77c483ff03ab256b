package payment

import (
	"context"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/google/uuid"

	apperrors "github.com/azuma-miyu/filatelier/pkg/errors"
)

// Mock gateway behavior shared with the backend's mock mode.
const (
	MinimumAmount    = 50
	DeclinedCard     = "4000000000000002"
	DeclinedReason   = "Your card was declined."
	mockIntentPrefix = "pi_mock_"
)

// MockGateway is an in-process gateway for development. Every card except
// DeclinedCard is accepted.
type MockGateway struct {
	mu      sync.Mutex
	intents map[string]mockIntent
	byKey   map[string]string
}

type mockIntent struct {
	intent Intent
	amount int64
	status Status
}

// NewMockGateway creates an empty mock gateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		intents: make(map[string]mockIntent),
		byKey:   make(map[string]string),
	}
}

// CreateIntent implements Gateway. Repeating an idempotency key returns the
// intent created for it.
func (g *MockGateway) CreateIntent(ctx context.Context, amount int64, idempotencyKey string) (Intent, error) {
	if err := ctx.Err(); err != nil {
		return Intent{}, err
	}
	if amount < MinimumAmount {
		return Intent{}, apperrors.InvalidInput("invalid amount")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if ref, ok := g.byKey[idempotencyKey]; ok && idempotencyKey != "" {
		return g.intents[ref].intent, nil
	}

	ref := mockIntentPrefix + randomHex()[:24]
	intent := Intent{
		Ref:          ref,
		ClientSecret: ref + "_secret_" + randomHex(),
	}
	g.intents[ref] = mockIntent{intent: intent, amount: amount}
	if idempotencyKey != "" {
		g.byKey[idempotencyKey] = ref
	}
	return intent, nil
}

// Confirm implements Gateway.
func (g *MockGateway) Confirm(ctx context.Context, intentRef string, details Details) (Confirmation, error) {
	if err := ctx.Err(); err != nil {
		return Confirmation{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	mi, ok := g.intents[intentRef]
	if !ok {
		return Confirmation{}, apperrors.InvalidInput("unknown payment intent")
	}
	if mi.status == StatusSucceeded {
		return Confirmation{Status: StatusSucceeded, Reference: intentRef}, nil
	}

	if strings.ReplaceAll(details.CardNumber, " ", "") == DeclinedCard {
		mi.status = StatusFailed
		g.intents[intentRef] = mi
		return Confirmation{Status: StatusFailed, Reason: DeclinedReason, Reference: intentRef}, nil
	}

	mi.status = StatusSucceeded
	g.intents[intentRef] = mi
	return Confirmation{Status: StatusSucceeded, Reference: intentRef}, nil
}

// randomHex returns 32 random hex digits.
func randomHex() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
