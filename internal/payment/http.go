package payment

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/azuma-miyu/filatelier/pkg/httpclient"
)

// IdempotencyHeader carries the checkout's idempotency key on gateway and
// order requests.
const IdempotencyHeader = "Idempotency-Key"

// HTTPGateway calls the backend's payment endpoints.
type HTTPGateway struct {
	client  httpclient.Doer
	baseURL string
	logger  *slog.Logger
}

// NewHTTPGateway creates a gateway client rooted at baseURL.
func NewHTTPGateway(client httpclient.Doer, baseURL string, logger *slog.Logger) *HTTPGateway {
	return &HTTPGateway{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

type createIntentRequest struct {
	Amount int64 `json:"amount"`
}

type confirmRequest struct {
	PaymentIntentID string         `json:"paymentIntentId"`
	PaymentDetails  paymentDetails `json:"paymentDetails"`
}

type paymentDetails struct {
	CardNumber string `json:"cardNumber"`
	Expiry     string `json:"expiry"`
	CVC        string `json:"cvc"`
	HolderName string `json:"holderName"`
}

// CreateIntent posts {amount} to /api/stripe/create-payment-intent.
func (g *HTTPGateway) CreateIntent(ctx context.Context, amount int64, idempotencyKey string) (Intent, error) {
	req, err := httpclient.NewJSONRequest(ctx, http.MethodPost, g.baseURL+"/api/stripe/create-payment-intent", createIntentRequest{Amount: amount})
	if err != nil {
		return Intent{}, err
	}
	if idempotencyKey != "" {
		req.Header.Set(IdempotencyHeader, idempotencyKey)
	}

	resp, err := g.client.Do(ctx, req)
	if err != nil {
		return Intent{}, fmt.Errorf("call payment gateway: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Intent{}, httpclient.ParseResponseError(resp, "payment gateway")
	}

	var intent Intent
	if err := httpclient.DecodeJSON(resp, &intent); err != nil {
		return Intent{}, fmt.Errorf("decode payment intent: %w", err)
	}
	if intent.Ref == "" {
		intent.Ref = intentRefFromSecret(intent.ClientSecret)
	}
	if intent.ClientSecret == "" {
		return Intent{}, fmt.Errorf("payment gateway returned no client secret")
	}

	g.logger.InfoContext(ctx, "payment intent created",
		slog.String("payment_intent_id", intent.Ref),
		slog.Int64("amount", amount),
	)
	return intent, nil
}

// Confirm posts the card details to /api/stripe/confirm-payment. A declined
// card comes back either as a failed Confirmation or as a 402/422 error
// wrapping apperrors.ErrPaymentFailed.
func (g *HTTPGateway) Confirm(ctx context.Context, intentRef string, details Details) (Confirmation, error) {
	body := confirmRequest{
		PaymentIntentID: intentRef,
		PaymentDetails: paymentDetails{
			CardNumber: strings.ReplaceAll(details.CardNumber, " ", ""),
			Expiry:     details.Expiry,
			CVC:        details.CVC,
			HolderName: details.HolderName,
		},
	}
	req, err := httpclient.NewJSONRequest(ctx, http.MethodPost, g.baseURL+"/api/stripe/confirm-payment", body)
	if err != nil {
		return Confirmation{}, err
	}

	resp, err := g.client.Do(ctx, req)
	if err != nil {
		return Confirmation{}, fmt.Errorf("call payment gateway: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Confirmation{}, httpclient.ParseResponseError(resp, "payment gateway")
	}

	var c Confirmation
	if err := httpclient.DecodeJSON(resp, &c); err != nil {
		return Confirmation{}, fmt.Errorf("decode payment confirmation: %w", err)
	}
	if c.Reference == "" {
		c.Reference = intentRef
	}
	switch c.Status {
	case StatusSucceeded, StatusFailed:
	default:
		return Confirmation{}, fmt.Errorf("payment gateway returned unknown status %q", c.Status)
	}

	g.logger.InfoContext(ctx, "payment confirmation received",
		slog.String("payment_intent_id", c.Reference),
		slog.String("status", string(c.Status)),
		slog.Any("details", details),
	)
	return c, nil
}
