// Package checkout turns the cart into a paid, recorded order. A checkout
// session moves created -> awaiting_payment_confirmation -> payment_confirmed
// -> order_recorded -> cleared, or ends in failed. The purchased lines only
// leave the cart once the order service has acknowledged the order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/azuma-miyu/filatelier/internal/catalog"
	"github.com/azuma-miyu/filatelier/internal/domain"
	"github.com/azuma-miyu/filatelier/internal/event"
	"github.com/azuma-miyu/filatelier/internal/identity"
	"github.com/azuma-miyu/filatelier/internal/order"
	"github.com/azuma-miyu/filatelier/internal/payment"
	apperrors "github.com/azuma-miyu/filatelier/pkg/errors"
	"github.com/azuma-miyu/filatelier/pkg/httpclient"
	"github.com/azuma-miyu/filatelier/pkg/logger"
	"github.com/azuma-miyu/filatelier/pkg/tracing"
)

const (
	// PreviewClientSecret is handed to the client when the payment backend is
	// unreachable and the checkout is rendered for preview only.
	PreviewClientSecret = "pi_test_secret_dummy_for_ui_testing_only"
	// PreviewWarning accompanies a preview session.
	PreviewWarning = "The payment service is unreachable. This checkout is a preview and cannot be paid."

	SuccessRedirect = "/checkout/success"
	LoginRedirect   = "/login"
	CartRedirect    = "/cart"

	reasonProcessingError = "processing error"
	reasonAbandoned       = "abandoned"
	reasonDeclined        = "payment was declined"
	reasonCartChanged     = "cart changed"
)

// Timeouts bounds each network step of a checkout. A zero value means the
// step only inherits the caller's deadline.
type Timeouts struct {
	Intent  time.Duration
	Confirm time.Duration
	Record  time.Duration
}

// Config tunes the orchestrator.
type Config struct {
	Timeouts Timeouts
	// PreviewFallback serves a preview session instead of an error when the
	// payment backend cannot be reached during intent creation.
	PreviewFallback bool
	// Partial checks out only the selected lines whenever the cart supports
	// selection.
	Partial bool
	// VerifyStock re-reads every line from the catalog before a session is
	// created.
	VerifyStock bool
	SessionTTL  time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Timeouts: Timeouts{
			Intent:  3 * time.Second,
			Confirm: 15 * time.Second,
			Record:  10 * time.Second,
		},
		PreviewFallback: true,
		SessionTTL:      30 * time.Minute,
	}
}

// Cart is the part of the cart engine a checkout needs.
type Cart interface {
	Snapshot() domain.Cart
	SelectionEnabled() bool
	RefreshProduct(ctx context.Context, product domain.ProductRef) domain.Cart
	RemoveLines(ctx context.Context, ids []domain.ProductID) domain.Cart
}

// Dependencies are the collaborators of an Orchestrator. Catalog may be nil
// when stock verification is off; Publisher defaults to event.Noop.
type Dependencies struct {
	Cart      Cart
	Identity  identity.Identity
	Catalog   catalog.Catalog
	Policy    PaymentPolicy
	Recorder  order.Recorder
	Publisher event.Publisher
}

// BeginInput holds the parameters for starting a checkout.
type BeginInput struct {
	SelectedOnly bool `json:"selected_only"`
}

// Orchestrator owns the in-memory checkout sessions and drives them through
// their lifecycle.
type Orchestrator struct {
	cart      Cart
	identity  identity.Identity
	catalog   catalog.Catalog
	policy    PaymentPolicy
	recorder  order.Recorder
	publisher event.Publisher
	cfg       Config
	logger    *slog.Logger
	tracer    trace.Tracer

	now   func() time.Time
	newID func() string

	mu       sync.Mutex
	sessions map[string]*domain.CheckoutSession
	inFlight map[string]struct{}
}

// NewOrchestrator creates an orchestrator with no sessions.
func NewOrchestrator(deps Dependencies, cfg Config, logger *slog.Logger) *Orchestrator {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = event.Noop{}
	}
	return &Orchestrator{
		cart:      deps.Cart,
		identity:  deps.Identity,
		catalog:   deps.Catalog,
		policy:    deps.Policy,
		recorder:  deps.Recorder,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		tracer:    tracing.Tracer("github.com/azuma-miyu/filatelier/internal/checkout"),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
		sessions:  make(map[string]*domain.CheckoutSession),
		inFlight:  make(map[string]struct{}),
	}
}

// Begin starts a checkout for the current cart and creates a payment intent.
// The returned session is awaiting payment confirmation; when the payment
// backend is unreachable and preview fallback is on it is a preview.
func (o *Orchestrator) Begin(ctx context.Context, in BeginInput) (_ *domain.CheckoutSession, err error) {
	ctx, span := o.tracer.Start(ctx, "checkout.begin")
	defer func() { tracing.Finish(span, err) }()

	principal := o.identity.CurrentPrincipal(ctx)
	if principal == nil {
		return nil, apperrors.PreconditionFailed("please log in to check out", LoginRedirect)
	}

	snapshot := o.cart.Snapshot()
	partial := o.cart.SelectionEnabled() && (o.cfg.Partial || in.SelectedOnly)
	lines := snapshot.Lines
	if partial {
		lines = snapshot.SelectedLines()
	}
	if len(lines) == 0 {
		if partial && !snapshot.IsEmpty() {
			return nil, apperrors.PreconditionFailed("no items are selected for checkout", CartRedirect)
		}
		return nil, apperrors.PreconditionFailed("your cart is empty", CartRedirect)
	}

	if o.cfg.VerifyStock {
		if err := o.verifyStock(ctx, lines); err != nil {
			return nil, err
		}
	}

	session, superseded, err := o.reserve(principal.UserID, lines, partial)
	if err != nil {
		return nil, err
	}
	for _, s := range superseded {
		transitionsTotal.WithLabelValues(string(domain.StatusFailed)).Inc()
		o.reportFailed(ctx, s)
	}

	ctx = logger.WithCheckoutID(ctx, session.ID)
	span.SetAttributes(
		attribute.String("checkout.id", session.ID),
		attribute.Int64("checkout.amount", session.Amount),
		attribute.Bool("checkout.partial", partial),
	)
	transitionsTotal.WithLabelValues(string(domain.StatusCreated)).Inc()

	o.logger.InfoContext(ctx, "checkout session created",
		slog.String("checkout_id", session.ID),
		slog.String("user_id", principal.UserID),
		slog.Int64("amount", session.Amount),
		slog.Int("lines", len(lines)),
		slog.Bool("partial", partial),
	)

	return o.createIntent(ctx, session)
}

// Confirm pays for an awaiting session with details, records the order and
// removes the purchased lines from the cart. A session whose lines were
// changed in the cart since Begin is failed instead of paid.
func (o *Orchestrator) Confirm(ctx context.Context, sessionID string, details payment.Details) (_ *domain.CheckoutSession, err error) {
	ctx = logger.WithCheckoutID(ctx, sessionID)
	ctx, span := o.tracer.Start(ctx, "checkout.confirm",
		trace.WithAttributes(attribute.String("checkout.id", sessionID)),
	)
	defer func() { tracing.Finish(span, err) }()

	principal := o.identity.CurrentPrincipal(ctx)
	if principal == nil {
		return nil, apperrors.PreconditionFailed("please log in to check out", LoginRedirect)
	}

	session, err := o.acquire(sessionID, principal.UserID)
	if err != nil {
		return nil, err
	}
	defer o.release(sessionID)

	o.logger.InfoContext(ctx, "confirming checkout payment",
		slog.String("checkout_id", sessionID),
		slog.Any("card", details),
	)

	if err := o.checkCartUnchanged(ctx, session); err != nil {
		return nil, err
	}
	if err := o.confirmPayment(ctx, session, details); err != nil {
		return nil, err
	}
	return o.recordOrder(ctx, session, principal)
}

// Checkout runs Begin and Confirm back to back.
func (o *Orchestrator) Checkout(ctx context.Context, in BeginInput, details payment.Details) (*domain.CheckoutSession, error) {
	session, err := o.Begin(ctx, in)
	if err != nil {
		return nil, err
	}
	return o.Confirm(ctx, session.ID, details)
}

// Get returns a copy of a live session.
func (o *Orchestrator) Get(sessionID string) (*domain.CheckoutSession, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.sweepLocked(o.now())
	session, ok := o.sessions[sessionID]
	if !ok {
		return nil, apperrors.NotFound("checkout session", sessionID)
	}
	return session.Clone(), nil
}

// Abandon fails a session the shopper walked away from. A session whose
// payment was already captured cannot be abandoned.
func (o *Orchestrator) Abandon(ctx context.Context, sessionID string) error {
	ctx = logger.WithCheckoutID(ctx, sessionID)

	o.mu.Lock()
	o.sweepLocked(o.now())
	session, ok := o.sessions[sessionID]
	switch {
	case !ok:
		o.mu.Unlock()
		return apperrors.NotFound("checkout session", sessionID)
	case o.isInFlightLocked(sessionID):
		o.mu.Unlock()
		return apperrors.Conflict("checkout confirmation is in progress")
	case session.Status == domain.StatusPaymentConfirmed:
		o.mu.Unlock()
		return apperrors.Conflict("payment has already been captured for this checkout")
	}
	o.inFlight[sessionID] = struct{}{}
	o.mu.Unlock()
	defer o.release(sessionID)

	o.fail(ctx, session, reasonAbandoned)
	return nil
}

// Sessions reports how many sessions are held. Expired ones are dropped first.
func (o *Orchestrator) Sessions() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sweepLocked(o.now())
	return len(o.sessions)
}

func (o *Orchestrator) verifyStock(ctx context.Context, lines []domain.CartLine) (err error) {
	if o.catalog == nil {
		return nil
	}

	ctx, span := o.tracer.Start(ctx, "checkout.verify_stock")
	defer func() { tracing.Finish(span, err) }()

	var short []string
	for _, l := range lines {
		product, err := o.catalog.GetProduct(ctx, l.Product.ID)
		switch {
		case err == nil:
		case catalog.IsNotFound(err):
			product = l.Product
			product.Stock = 0
		case httpclient.IsUnavailable(err):
			return apperrors.ServiceUnavailable("stock could not be verified, please try again later").WithCause(err)
		default:
			return fmt.Errorf("verify stock for product %s: %w", l.Product.ID, err)
		}

		if product.Stock < l.Quantity {
			o.cart.RefreshProduct(ctx, product)
			short = append(short, l.Product.Name)
		}
	}

	if len(short) > 0 {
		o.logger.WarnContext(ctx, "checkout blocked by stock",
			slog.Any("products", short),
		)
		return apperrors.InvalidInput(fmt.Sprintf(
			"not enough stock for %s; your cart has been updated", strings.Join(short, ", "),
		))
	}
	return nil
}

// reserve registers a new session unless another one is still in progress.
// An idle awaiting session of the same user, left behind by a reload, is
// abandoned and returned so the caller can report it.
func (o *Orchestrator) reserve(userID string, lines []domain.CartLine, partial bool) (*domain.CheckoutSession, []*domain.CheckoutSession, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	o.sweepLocked(now)
	for id, s := range o.sessions {
		if s.BlocksNewCheckout() && !o.supersedableLocked(id, s, userID) {
			return nil, nil, apperrors.Conflict("checkout already in progress")
		}
	}

	var superseded []*domain.CheckoutSession
	for id, s := range o.sessions {
		switch {
		case o.isInFlightLocked(id):
		case s.Preview:
			delete(o.sessions, id)
		case o.supersedableLocked(id, s, userID):
			if err := s.Fail(reasonAbandoned, now); err != nil {
				return nil, nil, apperrors.Internal(err)
			}
			delete(o.sessions, id)
			superseded = append(superseded, s.Clone())
		}
	}

	session := domain.NewCheckoutSession(o.newID(), o.newID(), userID, lines, partial, now, o.cfg.SessionTTL)
	o.sessions[session.ID] = session
	return session, superseded, nil
}

func (o *Orchestrator) supersedableLocked(id string, s *domain.CheckoutSession, userID string) bool {
	return s.UserID == userID &&
		s.Status == domain.StatusAwaitingPaymentConfirmation &&
		!o.isInFlightLocked(id)
}

// checkCartUnchanged fails the session when one of its lines was removed or
// changed quantity or price in the cart after the snapshot was taken.
func (o *Orchestrator) checkCartUnchanged(ctx context.Context, session *domain.CheckoutSession) error {
	current := o.cart.Snapshot()
	for _, l := range session.Lines {
		i := current.Index(l.Product.ID)
		if i >= 0 && current.Lines[i].Quantity == l.Quantity && current.Lines[i].Product.Price == l.Product.Price {
			continue
		}
		o.logger.WarnContext(ctx, "cart changed since checkout began",
			slog.String("checkout_id", session.ID),
			slog.String("product_id", l.Product.ID.String()),
		)
		o.fail(ctx, session, reasonCartChanged)
		return apperrors.PreconditionFailed("your cart changed after checkout started, please review it and check out again", CartRedirect)
	}
	return nil
}

func (o *Orchestrator) createIntent(ctx context.Context, session *domain.CheckoutSession) (_ *domain.CheckoutSession, err error) {
	ctx, span := o.tracer.Start(ctx, "checkout.create_intent")
	defer func() { tracing.Finish(span, err) }()

	stepCtx, cancel := withTimeout(ctx, o.cfg.Timeouts.Intent)
	defer cancel()

	start := time.Now()
	intent, err := o.policy.CreateIntent(stepCtx, session.Amount, session.IdempotencyKey)
	observeStep("create_intent", start, err)

	var appErr *apperrors.AppError
	switch {
	case err == nil:
		return o.transition(ctx, session, domain.StatusAwaitingPaymentConfirmation, func(s *domain.CheckoutSession) {
			s.PaymentIntentRef = intent.Ref
			s.ClientSecret = intent.ClientSecret
		})

	case httpclient.IsUnavailable(err) && o.cfg.PreviewFallback:
		o.logger.WarnContext(ctx, "payment backend unreachable, serving preview checkout",
			slog.String("checkout_id", session.ID),
			slog.String("error", err.Error()),
		)
		return o.transition(ctx, session, domain.StatusAwaitingPaymentConfirmation, func(s *domain.CheckoutSession) {
			s.Preview = true
			s.Warning = PreviewWarning
			s.ClientSecret = PreviewClientSecret
		})

	case httpclient.IsUnavailable(err):
		o.fail(ctx, session, "payment service unavailable")
		return nil, apperrors.ServiceUnavailable("payment service is temporarily unavailable, please try again later").WithCause(err)

	case errors.Is(err, apperrors.ErrUnauthorized):
		o.fail(ctx, session, "authentication rejected")
		return nil, apperrors.PreconditionFailed("your session has expired, please log in again", LoginRedirect)

	case errors.As(err, &appErr) && appErr.Status < 500:
		o.fail(ctx, session, appErr.Message)
		return nil, apperrors.InvalidInput(appErr.Message)

	default:
		o.logger.ErrorContext(ctx, "failed to create payment intent",
			slog.String("checkout_id", session.ID),
			slog.String("error", err.Error()),
		)
		o.fail(ctx, session, reasonProcessingError)
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
}

func (o *Orchestrator) confirmPayment(ctx context.Context, session *domain.CheckoutSession, details payment.Details) (err error) {
	ctx, span := o.tracer.Start(ctx, "checkout.confirm_payment")
	defer func() { tracing.Finish(span, err) }()

	stepCtx, cancel := withTimeout(ctx, o.cfg.Timeouts.Confirm)
	defer cancel()

	intent := payment.Intent{Ref: session.PaymentIntentRef, ClientSecret: session.ClientSecret}
	start := time.Now()
	conf, err := o.policy.Confirm(stepCtx, intent, details)
	observeStep("confirm_payment", start, err)

	var appErr *apperrors.AppError
	switch {
	case err == nil && conf.Succeeded():
		reference := conf.Reference
		if reference == "" {
			reference = intent.Ref
		}
		_, err := o.transition(ctx, session, domain.StatusPaymentConfirmed, func(s *domain.CheckoutSession) {
			s.PaymentReference = reference
		})
		return err

	case err == nil:
		reason := conf.Reason
		if reason == "" {
			reason = reasonDeclined
		}
		o.fail(ctx, session, reason)
		return apperrors.PaymentFailed(reason)

	case errors.As(err, &appErr) && (errors.Is(err, apperrors.ErrPaymentFailed) || errors.Is(err, apperrors.ErrInvalidInput)):
		o.fail(ctx, session, appErr.Message)
		return apperrors.PaymentFailed(appErr.Message)

	case isValidationError(err):
		o.fail(ctx, session, err.Error())
		return apperrors.PaymentFailed(err.Error())

	case httpclient.IsUnavailable(err):
		o.fail(ctx, session, reasonProcessingError)
		return apperrors.ServiceUnavailable("payment could not be processed, please try again later").WithCause(err)

	default:
		o.logger.ErrorContext(ctx, "payment confirmation failed",
			slog.String("checkout_id", session.ID),
			slog.String("error", err.Error()),
		)
		o.fail(ctx, session, reasonProcessingError)
		return apperrors.Internal(fmt.Errorf("confirm payment: %w", err))
	}
}

func (o *Orchestrator) recordOrder(ctx context.Context, session *domain.CheckoutSession, principal *identity.Principal) (_ *domain.CheckoutSession, err error) {
	ctx, span := o.tracer.Start(ctx, "checkout.record_order")
	defer func() { tracing.Finish(span, err) }()

	o.mu.Lock()
	if session.RecordAttempted {
		o.mu.Unlock()
		return nil, apperrors.RecordingFailed(supportMessage(session.PaymentReference), nil)
	}
	session.RecordAttempted = true
	req := order.NewRequest(session.Lines, session.Amount, session.PaymentReference, principal.Token)
	idempotencyKey := session.IdempotencyKey
	o.mu.Unlock()

	stepCtx, cancel := withTimeout(ctx, o.cfg.Timeouts.Record)
	defer cancel()

	start := time.Now()
	receipt, err := o.recorder.RecordOrder(stepCtx, req, idempotencyKey)
	observeStep("record_order", start, err)
	if err != nil {
		o.logger.ErrorContext(ctx, "payment captured but order recording failed",
			slog.String("checkout_id", session.ID),
			slog.String("payment_reference", req.PaymentReference),
			slog.Int64("amount", req.Total),
			slog.String("error", err.Error()),
		)
		snapshot := o.snapshot(session)
		if perr := o.publisher.PublishRecordingFailed(ctx, snapshot); perr != nil {
			o.logger.ErrorContext(ctx, "failed to publish checkout.recording_failed event",
				slog.String("checkout_id", session.ID),
				slog.String("error", perr.Error()),
			)
		}
		return nil, apperrors.RecordingFailed(supportMessage(req.PaymentReference), err)
	}

	if _, err := o.transition(ctx, session, domain.StatusOrderRecorded, func(s *domain.CheckoutSession) {
		s.OrderID = receipt.OrderID
	}); err != nil {
		return nil, err
	}

	// Lines added after Begin were not paid for and stay in the cart.
	o.cart.RemoveLines(ctx, session.ProductIDs())

	done, err := o.transition(ctx, session, domain.StatusCleared, func(s *domain.CheckoutSession) {
		s.Redirect = SuccessRedirect
	})
	if err != nil {
		return nil, err
	}

	if err := o.publisher.PublishCheckoutCompleted(ctx, done); err != nil {
		o.logger.ErrorContext(ctx, "failed to publish checkout.completed event",
			slog.String("checkout_id", done.ID),
			slog.String("error", err.Error()),
		)
	}

	o.logger.InfoContext(ctx, "checkout completed",
		slog.String("checkout_id", done.ID),
		slog.String("order_id", done.OrderID),
		slog.Int64("amount", done.Amount),
	)
	return done, nil
}

// acquire marks a confirmable session as in flight.
func (o *Orchestrator) acquire(sessionID, userID string) (*domain.CheckoutSession, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.sweepLocked(o.now())
	session, ok := o.sessions[sessionID]
	if !ok || session.UserID != userID {
		return nil, apperrors.NotFound("checkout session", sessionID)
	}
	if o.isInFlightLocked(sessionID) {
		return nil, apperrors.Conflict("checkout confirmation is already in progress")
	}
	if session.Preview {
		return nil, apperrors.ServiceUnavailable("the payment service is unreachable; this checkout is a preview and cannot be paid")
	}
	if session.Status == domain.StatusPaymentConfirmed && session.RecordAttempted {
		return nil, apperrors.RecordingFailed(supportMessage(session.PaymentReference), nil)
	}
	if session.Status != domain.StatusAwaitingPaymentConfirmation {
		return nil, apperrors.Conflict(fmt.Sprintf("checkout session is %s", session.Status))
	}

	o.inFlight[sessionID] = struct{}{}
	return session, nil
}

func (o *Orchestrator) release(sessionID string) {
	o.mu.Lock()
	delete(o.inFlight, sessionID)
	o.mu.Unlock()
}

// transition applies mutate and moves the session to next under the lock.
// Terminal sessions leave the registry. It returns a copy of the result.
func (o *Orchestrator) transition(ctx context.Context, session *domain.CheckoutSession, next domain.CheckoutStatus, mutate func(*domain.CheckoutSession)) (*domain.CheckoutSession, error) {
	o.mu.Lock()
	from := session.Status
	if err := session.Transition(next, o.now()); err != nil {
		o.mu.Unlock()
		return nil, apperrors.Internal(err)
	}
	if mutate != nil {
		mutate(session)
	}
	if next.IsTerminal() {
		delete(o.sessions, session.ID)
	}
	out := session.Clone()
	o.mu.Unlock()

	transitionsTotal.WithLabelValues(string(next)).Inc()
	o.logger.InfoContext(ctx, "checkout status changed",
		slog.String("checkout_id", session.ID),
		slog.String("from", string(from)),
		slog.String("to", string(next)),
	)
	return out, nil
}

// fail moves the session to failed and publishes checkout.failed.
func (o *Orchestrator) fail(ctx context.Context, session *domain.CheckoutSession, reason string) {
	failed, err := o.transition(ctx, session, domain.StatusFailed, func(s *domain.CheckoutSession) {
		s.FailureReason = reason
	})
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to mark checkout as failed",
			slog.String("checkout_id", session.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	o.reportFailed(ctx, failed)
}

// reportFailed logs a session that just moved to failed and publishes
// checkout.failed.
func (o *Orchestrator) reportFailed(ctx context.Context, failed *domain.CheckoutSession) {
	o.logger.WarnContext(ctx, "checkout failed",
		slog.String("checkout_id", failed.ID),
		slog.String("reason", failed.FailureReason),
	)
	if err := o.publisher.PublishCheckoutFailed(ctx, failed); err != nil {
		o.logger.ErrorContext(ctx, "failed to publish checkout.failed event",
			slog.String("checkout_id", failed.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) snapshot(session *domain.CheckoutSession) *domain.CheckoutSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	return session.Clone()
}

// sweepLocked drops expired and finished sessions that nobody is working on.
func (o *Orchestrator) sweepLocked(now time.Time) {
	for id, s := range o.sessions {
		if o.isInFlightLocked(id) {
			continue
		}
		if s.Status.IsTerminal() || s.IsExpired(now) {
			delete(o.sessions, id)
		}
	}
}

func (o *Orchestrator) isInFlightLocked(id string) bool {
	_, ok := o.inFlight[id]
	return ok
}

func supportMessage(paymentReference string) string {
	return fmt.Sprintf(
		"Your payment was completed but we could not save your order. Please contact support with payment reference %s.",
		paymentReference,
	)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func observeStep(step string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	stepDuration.WithLabelValues(step, outcome).Observe(time.Since(start).Seconds())
}
