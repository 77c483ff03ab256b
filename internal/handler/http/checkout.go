package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/azuma-miyu/filatelier/internal/checkout"
	"github.com/azuma-miyu/filatelier/internal/domain"
	"github.com/azuma-miyu/filatelier/internal/identity"
	"github.com/azuma-miyu/filatelier/internal/payment"
	apperrors "github.com/azuma-miyu/filatelier/pkg/errors"
	"github.com/azuma-miyu/filatelier/pkg/httputil"
	"github.com/azuma-miyu/filatelier/pkg/validator"
)

// Checkouts is the checkout orchestrator as seen by the HTTP layer.
type Checkouts interface {
	Begin(ctx context.Context, in checkout.BeginInput) (*domain.CheckoutSession, error)
	Confirm(ctx context.Context, sessionID string, details payment.Details) (*domain.CheckoutSession, error)
	Get(sessionID string) (*domain.CheckoutSession, error)
	Abandon(ctx context.Context, sessionID string) error
}

// CheckoutHandler handles HTTP requests for checkout endpoints.
type CheckoutHandler struct {
	checkouts Checkouts
	logger    *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler.
func NewCheckoutHandler(checkouts Checkouts, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkouts: checkouts,
		logger:    logger,
	}
}

// BeginCheckout handles POST /api/v1/checkout. The body is optional.
func (h *CheckoutHandler) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	var in checkout.BeginInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteValidationError(w, err)
		return
	}

	session, err := h.checkouts.Begin(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, session)
}

// GetCheckout handles GET /api/v1/checkout/{sessionId}
func (h *CheckoutHandler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	session, err := h.ownedSession(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, session)
}

// ConfirmCheckout handles POST /api/v1/checkout/{sessionId}/confirm
func (h *CheckoutHandler) ConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	var details payment.Details
	if err := validator.DecodeAndValidate(r, &details); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	session, err := h.checkouts.Confirm(r.Context(), chi.URLParam(r, "sessionId"), details)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, session)
}

// AbandonCheckout handles DELETE /api/v1/checkout/{sessionId}
func (h *CheckoutHandler) AbandonCheckout(w http.ResponseWriter, r *http.Request) {
	session, err := h.ownedSession(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if err := h.checkouts.Abandon(r.Context(), session.ID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ownedSession loads the session named in the path if it belongs to the
// current shopper. Sessions of other shoppers are reported as not found.
func (h *CheckoutHandler) ownedSession(r *http.Request) (*domain.CheckoutSession, error) {
	principal := identity.FromContext(r.Context())
	if principal == nil {
		return nil, apperrors.PreconditionFailed("please log in to view this checkout", checkout.LoginRedirect)
	}

	id := chi.URLParam(r, "sessionId")
	session, err := h.checkouts.Get(id)
	if err != nil {
		return nil, err
	}
	if session.UserID != principal.UserID {
		return nil, apperrors.NotFound("checkout session", id)
	}
	return session, nil
}
