package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/sony/gobreaker/v2"

	apperrors "github.com/azuma-miyu/filatelier/pkg/errors"
)

// ServerError is returned for 5xx responses seen through a CircuitBreakerClient.
// The body has already been consumed and closed.
type ServerError struct {
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Status, e.Body)
}

// downstreamErrorResponse accepts both error body shapes seen from the
// backend: the structured envelope {"error":{"code","message"}} and the flat
// {"error":"message"} form.
type downstreamErrorResponse struct {
	Error json.RawMessage `json:"error"`
}

type structuredError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an AppError. The downstream message is preserved verbatim so that
// gateway reasons reach the shopper unchanged.
//
// The response body is fully consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB limit
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	code, message, ok := decodeErrorBody(bodyBytes)
	if !ok {
		if resp.StatusCode >= 500 {
			return &ServerError{Status: resp.StatusCode, Body: string(bodyBytes)}
		}
		message = http.StatusText(resp.StatusCode)
	}
	return mapDownstreamError(resp.StatusCode, code, message, serviceName)
}

func decodeErrorBody(body []byte) (code, message string, ok bool) {
	var downstream downstreamErrorResponse
	if json.Unmarshal(body, &downstream) != nil || len(downstream.Error) == 0 {
		return "", "", false
	}

	var flat string
	if json.Unmarshal(downstream.Error, &flat) == nil {
		return "", flat, flat != ""
	}

	var structured structuredError
	if json.Unmarshal(downstream.Error, &structured) == nil && structured.Message != "" {
		return structured.Code, structured.Message, true
	}
	return "", "", false
}

func mapDownstreamError(status int, code, message, serviceName string) error {
	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(serviceName, message)
	case status == http.StatusConflict:
		return apperrors.Conflict(message)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return apperrors.Unauthorized(message)
	case status == http.StatusPaymentRequired, status == http.StatusUnprocessableEntity:
		return apperrors.PaymentFailed(message)
	case status >= 500:
		return &apperrors.AppError{
			Code:    "SERVICE_UNAVAILABLE",
			Message: fmt.Sprintf("%s: %s", serviceName, message),
			Status:  http.StatusServiceUnavailable,
			Err:     fmt.Errorf("%w: %w", apperrors.ErrServiceUnavail, &ServerError{Status: status, Body: message}),
		}
	case IsClientError(status):
		appErr := apperrors.InvalidInput(message)
		if code != "" {
			appErr.Code = code
		}
		return appErr
	default:
		return &apperrors.AppError{
			Code:    code,
			Message: message,
			Status:  status,
		}
	}
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
// Client errors mean the request itself was rejected; repeating it unchanged
// will not help.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}

// IsUnavailable reports whether err means the remote side could not be
// reached or did not answer in time: transport failures, timeouts, 5xx
// responses and an open circuit. Caller cancellation is not unavailability.
func IsUnavailable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) ||
		errors.Is(err, apperrors.ErrServiceUnavail) {
		return true
	}

	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
