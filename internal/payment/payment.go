// Package payment talks to the payment gateway.
package payment

import (
	"context"
	"log/slog"
	"strings"
)

// Status is the outcome of a payment confirmation.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Intent is a payment intent created for a checkout amount.
type Intent struct {
	Ref          string `json:"paymentIntentId"`
	ClientSecret string `json:"clientSecret"`
}

// Details are the card fields the shopper submits on the payment form.
type Details struct {
	CardNumber string `json:"card_number" validate:"required,credit_card"`
	Expiry     string `json:"expiry" validate:"required,card_expiry"`
	CVC        string `json:"cvc" validate:"required,cvc"`
	HolderName string `json:"holder_name" validate:"required,max=100"`
}

// Last4 returns the last four digits of the card number.
func (d Details) Last4() string {
	digits := strings.ReplaceAll(d.CardNumber, " ", "")
	if len(digits) < 4 {
		return digits
	}
	return digits[len(digits)-4:]
}

// LogValue implements slog.LogValuer so card data never reaches the logs.
func (d Details) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("card_last4", d.Last4()),
		slog.String("holder_name", d.HolderName),
	)
}

// Confirmation is the gateway's answer to a confirmation request. A declined
// payment is a Confirmation with StatusFailed and the gateway's reason.
type Confirmation struct {
	Status    Status `json:"status"`
	Reason    string `json:"reason,omitempty"`
	Reference string `json:"paymentIntentId"`
}

// Succeeded reports whether the payment went through.
func (c Confirmation) Succeeded() bool {
	return c.Status == StatusSucceeded
}

// Gateway creates and confirms payment intents.
type Gateway interface {
	CreateIntent(ctx context.Context, amount int64, idempotencyKey string) (Intent, error)
	Confirm(ctx context.Context, intentRef string, details Details) (Confirmation, error)
}

// intentRefFromSecret recovers the intent id from a client secret of the
// form <id>_secret_<random>.
func intentRefFromSecret(secret string) string {
	if i := strings.Index(secret, "_secret_"); i > 0 {
		return secret[:i]
	}
	return ""
}
