package order

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azuma-miyu/filatelier/internal/domain"
	apperrors "github.com/azuma-miyu/filatelier/pkg/errors"
	"github.com/azuma-miyu/filatelier/pkg/httpclient"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
}

func sampleRequest() Request {
	lines := []domain.CartLine{
		{Product: domain.ProductRef{ID: "1", Name: "bear", Price: 2800, Stock: 8}, Quantity: 2},
		{Product: domain.ProductRef{ID: "3", Name: "coasters", Price: 1200, Stock: 15}, Quantity: 1},
	}
	return NewRequest(lines, 6800, "pi_mock_1", "token-abc")
}

func TestNewRequest(t *testing.T) {
	req := sampleRequest()

	assert.Equal(t, []Line{
		{ProductID: "1", ProductName: "bear", Quantity: 2, Price: 2800},
		{ProductID: "3", ProductName: "coasters", Quantity: 1, Price: 1200},
	}, req.Lines)
	assert.Equal(t, int64(6800), req.Total)

	raw, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"lines":[
			{"productId":"1","productName":"bear","quantity":2,"price":2800},
			{"productId":"3","productName":"coasters","quantity":1,"price":1200}
		],
		"total":6800,
		"paymentReference":"pi_mock_1"
	}`, string(raw))
}

func newTestRecorder(t *testing.T, handler http.HandlerFunc) *HTTPRecorder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPRecorder(httpclient.New(httpclient.DefaultConfig()), srv.URL, testLogger())
}

func TestHTTPRecorder_RecordOrder(t *testing.T) {
	calls := 0
	r := newTestRecorder(t, func(w http.ResponseWriter, req *http.Request) {
		calls++
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "/api/orders", req.URL.Path)
		assert.Equal(t, "key-1", req.Header.Get("Idempotency-Key"))
		assert.Equal(t, "Bearer token-abc", req.Header.Get("Authorization"))

		var body Request
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "pi_mock_1", body.PaymentReference)
		assert.Len(t, body.Lines, 2)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":42,"status":"paid"}`))
	})

	receipt, err := r.RecordOrder(context.Background(), sampleRequest(), "key-1")

	require.NoError(t, err)
	assert.Equal(t, "42", receipt.OrderID)
	assert.Equal(t, 1, calls)
}

func TestHTTPRecorder_OrderIDField(t *testing.T) {
	r := newTestRecorder(t, func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte(`{"orderId":"ord-7"}`))
	})

	receipt, err := r.RecordOrder(context.Background(), sampleRequest(), "key-1")

	require.NoError(t, err)
	assert.Equal(t, "ord-7", receipt.OrderID)
}

func TestHTTPRecorder_NoID(t *testing.T) {
	r := newTestRecorder(t, func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte(`{"id":null}`))
	})

	_, err := r.RecordOrder(context.Background(), sampleRequest(), "key-1")
	assert.Error(t, err)
}

func TestHTTPRecorder_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "rejected", status: http.StatusBadRequest, body: `{"error":"out of stock"}`, want: apperrors.ErrInvalidInput},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":"token expired"}`, want: apperrors.ErrUnauthorized},
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"db down"}`, want: apperrors.ErrServiceUnavail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRecorder(t, func(w http.ResponseWriter, req *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := r.RecordOrder(context.Background(), sampleRequest(), "key-1")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHTTPRecorder_NoTokenNoHeader(t *testing.T) {
	r := newTestRecorder(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Empty(t, req.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"1"}`))
	})

	req := sampleRequest()
	req.BearerToken = ""
	_, err := r.RecordOrder(context.Background(), req, "")
	require.NoError(t, err)
}

func TestMemoryRecorder(t *testing.T) {
	m := NewMemoryRecorder()
	ctx := context.Background()

	first, err := m.RecordOrder(ctx, sampleRequest(), "key-1")
	require.NoError(t, err)
	again, err := m.RecordOrder(ctx, sampleRequest(), "key-1")
	require.NoError(t, err)
	other, err := m.RecordOrder(ctx, sampleRequest(), "key-2")
	require.NoError(t, err)

	assert.Equal(t, first, again)
	assert.NotEqual(t, first, other)
	assert.Equal(t, 2, m.Len())

	stored, ok := m.Get(first.OrderID)
	require.True(t, ok)
	assert.Equal(t, int64(6800), stored.Total)

	_, err = m.RecordOrder(ctx, Request{}, "key-3")
	assert.Error(t, err)
}
