package checkout

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/azuma-miyu/filatelier/internal/payment"
	"github.com/azuma-miyu/filatelier/pkg/validator"
)

// PaymentPolicy is the environment-specific half of a checkout: how intents
// are created and payments confirmed. The orchestrator's state machine is the
// same for every policy.
type PaymentPolicy interface {
	CreateIntent(ctx context.Context, amount int64, idempotencyKey string) (payment.Intent, error)
	Confirm(ctx context.Context, intent payment.Intent, details payment.Details) (payment.Confirmation, error)
}

// GatewayPolicy delegates to a payment gateway, real or mock.
type GatewayPolicy struct {
	gateway payment.Gateway
}

// NewGatewayPolicy creates a policy backed by gateway.
func NewGatewayPolicy(gateway payment.Gateway) *GatewayPolicy {
	return &GatewayPolicy{gateway: gateway}
}

// CreateIntent implements PaymentPolicy.
func (p *GatewayPolicy) CreateIntent(ctx context.Context, amount int64, idempotencyKey string) (payment.Intent, error) {
	return p.gateway.CreateIntent(ctx, amount, idempotencyKey)
}

// Confirm implements PaymentPolicy.
func (p *GatewayPolicy) Confirm(ctx context.Context, intent payment.Intent, details payment.Details) (payment.Confirmation, error) {
	return p.gateway.Confirm(ctx, intent.Ref, details)
}

// DemoPolicy runs checkouts without any gateway. Intents are synthesized
// locally and every well-formed card is accepted after an artificial delay.
type DemoPolicy struct {
	delay time.Duration
}

// NewDemoPolicy creates a gateway-free policy that takes delay to confirm.
func NewDemoPolicy(delay time.Duration) *DemoPolicy {
	return &DemoPolicy{delay: delay}
}

// CreateIntent implements PaymentPolicy.
func (p *DemoPolicy) CreateIntent(ctx context.Context, _ int64, _ string) (payment.Intent, error) {
	if err := ctx.Err(); err != nil {
		return payment.Intent{}, err
	}
	ref := "pi_demo_" + demoHex()[:24]
	return payment.Intent{
		Ref:          ref,
		ClientSecret: ref + "_secret_" + demoHex(),
	}, nil
}

// Confirm implements PaymentPolicy. Invalid card fields are reported as a
// *validator.ValidationError.
func (p *DemoPolicy) Confirm(ctx context.Context, intent payment.Intent, details payment.Details) (payment.Confirmation, error) {
	if err := validator.Validate(details); err != nil {
		return payment.Confirmation{}, err
	}

	if p.delay > 0 {
		timer := time.NewTimer(p.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return payment.Confirmation{}, ctx.Err()
		}
	}

	return payment.Confirmation{
		Status:    payment.StatusSucceeded,
		Reference: intent.Ref,
	}, nil
}

func demoHex() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

func isValidationError(err error) bool {
	var verr *validator.ValidationError
	return errors.As(err, &verr)
}
