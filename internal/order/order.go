// Package order records paid checkouts with the order backend.
package order

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/azuma-miyu/filatelier/internal/domain"
)

// Line is one purchased product as the order backend expects it.
type Line struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	Price       int64  `json:"price"`
}

// Request is the order recording payload.
type Request struct {
	Lines            []Line `json:"lines"`
	Total            int64  `json:"total"`
	PaymentReference string `json:"paymentReference"`
	// BearerToken authenticates the shopper with the backend.
	BearerToken string `json:"-"`
}

// NewRequest builds the payload for a paid checkout.
func NewRequest(lines []domain.CartLine, total int64, paymentReference, bearerToken string) Request {
	req := Request{
		Lines:            make([]Line, len(lines)),
		Total:            total,
		PaymentReference: paymentReference,
		BearerToken:      bearerToken,
	}
	for i, l := range lines {
		req.Lines[i] = Line{
			ProductID:   l.Product.ID.String(),
			ProductName: l.Product.Name,
			Quantity:    l.Quantity,
			Price:       l.Product.Price,
		}
	}
	return req
}

// Receipt identifies a recorded order.
type Receipt struct {
	OrderID string `json:"order_id"`
}

// Recorder records orders. The idempotency key makes a repeated call for the
// same checkout return the first order instead of creating another.
type Recorder interface {
	RecordOrder(ctx context.Context, req Request, idempotencyKey string) (Receipt, error)
}

// flexibleID accepts both string and numeric JSON ids.
type flexibleID string

func (id *flexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("order id: %w", err)
	}
	*id = flexibleID(n.String())
	return nil
}
