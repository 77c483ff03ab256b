package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/azuma-miyu/filatelier/internal/payment"
	"github.com/azuma-miyu/filatelier/pkg/httpclient"
)

// HTTPRecorder posts orders to {baseURL}/api/orders.
type HTTPRecorder struct {
	client  httpclient.Doer
	baseURL string
	logger  *slog.Logger
}

// NewHTTPRecorder creates a recorder rooted at baseURL.
func NewHTTPRecorder(client httpclient.Doer, baseURL string, logger *slog.Logger) *HTTPRecorder {
	return &HTTPRecorder{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

type createOrderResponse struct {
	ID      flexibleID `json:"id"`
	OrderID flexibleID `json:"orderId"`
}

// RecordOrder implements Recorder.
func (r *HTTPRecorder) RecordOrder(ctx context.Context, req Request, idempotencyKey string) (Receipt, error) {
	httpReq, err := httpclient.NewJSONRequest(ctx, http.MethodPost, r.baseURL+"/api/orders", req)
	if err != nil {
		return Receipt{}, err
	}
	if idempotencyKey != "" {
		httpReq.Header.Set(payment.IdempotencyHeader, idempotencyKey)
	}
	if req.BearerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.BearerToken)
	}

	resp, err := r.client.Do(ctx, httpReq)
	if err != nil {
		return Receipt{}, fmt.Errorf("call order service: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Receipt{}, httpclient.ParseResponseError(resp, "order")
	}

	var body createOrderResponse
	if err := httpclient.DecodeJSON(resp, &body); err != nil {
		return Receipt{}, fmt.Errorf("decode order response: %w", err)
	}

	id := string(body.ID)
	if id == "" {
		id = string(body.OrderID)
	}
	if id == "" {
		return Receipt{}, errors.New("order service returned no order id")
	}

	r.logger.InfoContext(ctx, "order recorded",
		slog.String("order_id", id),
		slog.String("payment_reference", req.PaymentReference),
		slog.Int64("total", req.Total),
	)
	return Receipt{OrderID: id}, nil
}
