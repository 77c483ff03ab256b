package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/azuma-miyu/filatelier/internal/cart"
	"github.com/azuma-miyu/filatelier/internal/catalog"
	"github.com/azuma-miyu/filatelier/internal/domain"
	"github.com/azuma-miyu/filatelier/internal/identity"
	"github.com/azuma-miyu/filatelier/internal/order"
	"github.com/azuma-miyu/filatelier/internal/payment"
	"github.com/azuma-miyu/filatelier/internal/store"
	"github.com/azuma-miyu/filatelier/internal/store/memory"
	apperrors "github.com/azuma-miyu/filatelier/pkg/errors"
	"github.com/azuma-miyu/filatelier/pkg/httpclient"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- Mocks ---

type mockPolicy struct {
	mock.Mock
}

func (m *mockPolicy) CreateIntent(ctx context.Context, amount int64, key string) (payment.Intent, error) {
	args := m.Called(ctx, amount, key)
	return args.Get(0).(payment.Intent), args.Error(1)
}

func (m *mockPolicy) Confirm(ctx context.Context, intent payment.Intent, details payment.Details) (payment.Confirmation, error) {
	args := m.Called(ctx, intent, details)
	return args.Get(0).(payment.Confirmation), args.Error(1)
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) RecordOrder(ctx context.Context, req order.Request, key string) (order.Receipt, error) {
	args := m.Called(ctx, req, key)
	return args.Get(0).(order.Receipt), args.Error(1)
}

type recordingPublisher struct {
	mu        sync.Mutex
	completed []*domain.CheckoutSession
	failed    []*domain.CheckoutSession
	recording []*domain.CheckoutSession
}

func (p *recordingPublisher) PublishCheckoutCompleted(_ context.Context, s *domain.CheckoutSession) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = append(p.completed, s)
	return nil
}

func (p *recordingPublisher) PublishCheckoutFailed(_ context.Context, s *domain.CheckoutSession) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, s)
	return nil
}

func (p *recordingPublisher) PublishRecordingFailed(_ context.Context, s *domain.CheckoutSession) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recording = append(p.recording, s)
	return nil
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	orch      *Orchestrator
	cart      *cart.Engine
	catalog   *catalog.MemoryCatalog
	recorder  *order.MemoryRecorder
	publisher *recordingPublisher
	principal *identity.Principal
}

type fixtureOption func(*Dependencies, *Config, *[]cart.Option)

func withPolicy(p PaymentPolicy) fixtureOption {
	return func(d *Dependencies, _ *Config, _ *[]cart.Option) { d.Policy = p }
}

func withRecorder(r order.Recorder) fixtureOption {
	return func(d *Dependencies, _ *Config, _ *[]cart.Option) { d.Recorder = r }
}

func withIdentity(id identity.Identity) fixtureOption {
	return func(d *Dependencies, _ *Config, _ *[]cart.Option) { d.Identity = id }
}

func withConfig(fn func(*Config)) fixtureOption {
	return func(_ *Dependencies, c *Config, _ *[]cart.Option) { fn(c) }
}

func withCartSelection() fixtureOption {
	return func(_ *Dependencies, _ *Config, o *[]cart.Option) { *o = append(*o, cart.WithSelection(true)) }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	logger := newTestLogger()
	principal := &identity.Principal{UserID: "user-1", Email: "amy@example.com", Token: "jwt-token"}
	f := &fixture{
		catalog:   catalog.NewMemoryCatalog(),
		recorder:  order.NewMemoryRecorder(),
		publisher: &recordingPublisher{},
		principal: principal,
	}

	deps := Dependencies{
		Identity:  identity.Static{Principal: principal},
		Catalog:   f.catalog,
		Policy:    NewGatewayPolicy(payment.NewMockGateway()),
		Recorder:  f.recorder,
		Publisher: f.publisher,
	}
	cfg := DefaultConfig()
	var cartOpts []cart.Option
	for _, opt := range opts {
		opt(&deps, &cfg, &cartOpts)
	}

	f.cart = cart.NewEngine(store.NewAdapter(memory.New(), logger), logger, cartOpts...)
	f.cart.Hydrate(context.Background())
	deps.Cart = f.cart

	f.orch = NewOrchestrator(deps, cfg, logger)
	return f
}

func (f *fixture) add(t *testing.T, id string, qty int) {
	t.Helper()
	p, err := f.catalog.GetProduct(context.Background(), domain.ProductID(id))
	require.NoError(t, err)
	_, err = f.cart.AddToCart(context.Background(), p, qty)
	require.NoError(t, err)
}

func (f *fixture) snapshot() *domain.Cart {
	c := f.cart.Snapshot()
	return &c
}

func validCard() payment.Details {
	return payment.Details{
		CardNumber: "4242424242424242",
		Expiry:     "12/" + fmt.Sprintf("%02d", time.Now().Year()%100+2),
		CVC:        "123",
		HolderName: "Amy Azuma",
	}
}

// --- Begin ---

func TestBegin_NoPrincipal_RedirectsToLogin(t *testing.T) {
	f := newFixture(t, withIdentity(identity.Static{}))
	f.add(t, "1", 1)

	session, err := f.orch.Begin(context.Background(), BeginInput{})

	require.Error(t, err)
	assert.Nil(t, session)
	assert.True(t, errors.Is(err, apperrors.ErrPrecondition))
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, LoginRedirect, appErr.Redirect)
	assert.Len(t, f.cart.Snapshot().Lines, 1)
	assert.Zero(t, f.orch.Sessions())
}

func TestBegin_EmptyCart_RedirectsToCart(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Begin(context.Background(), BeginInput{})

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, CartRedirect, appErr.Redirect)
	assert.Zero(t, f.orch.Sessions())
}

func TestBegin_CreatesAwaitingSession(t *testing.T) {
	f := newFixture(t)
	f.add(t, "1", 2)
	f.add(t, "3", 1)

	session, err := f.orch.Begin(context.Background(), BeginInput{})

	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingPaymentConfirmation, session.Status)
	assert.Equal(t, "user-1", session.UserID)
	assert.Equal(t, f.snapshot().TotalPrice(), session.Amount)
	assert.Len(t, session.Lines, 2)
	assert.NotEmpty(t, session.PaymentIntentRef)
	assert.Contains(t, session.ClientSecret, "_secret_")
	assert.False(t, session.Preview)

	got, err := f.orch.Get(session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Status, got.Status)
}

func TestBegin_ReloadAbandonsIdleSession(t *testing.T) {
	f := newFixture(t)
	f.add(t, "1", 1)

	first, err := f.orch.Begin(context.Background(), BeginInput{})
	require.NoError(t, err)

	second, err := f.orch.Begin(context.Background(), BeginInput{})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, f.orch.Sessions())

	_, err = f.orch.Get(first.ID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	require.Len(t, f.publisher.failed, 1)
	assert.Equal(t, first.ID, f.publisher.failed[0].ID)
	assert.Equal(t, reasonAbandoned, f.publisher.failed[0].FailureReason)

	_, err = f.orch.Confirm(context.Background(), first.ID, validCard())
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	done, err := f.orch.Confirm(context.Background(), second.ID, validCard())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCleared, done.Status)
}

func TestBegin_OtherUsersSessionConflicts(t *testing.T) {
	f := newFixture(t)
	f.add(t, "1", 1)

	_, err := f.orch.Begin(context.Background(), BeginInput{})
	require.NoError(t, err)

	f.orch.identity = identity.Static{Principal: &identity.Principal{UserID: "user-2"}}
	_, err = f.orch.Begin(context.Background(), BeginInput{})
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
	assert.Equal(t, 1, f.orch.Sessions())
	assert.Empty(t, f.publisher.failed)
}

func TestBegin_ConfirmInFlightConflicts(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	policy := &mockPolicy{}
	policy.On("CreateIntent", mock.Anything, mock.Anything, mock.Anything).
		Return(payment.Intent{Ref: "pi_1", ClientSecret: "pi_1_secret_x"}, nil)
	policy.On("Confirm", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(payment.Confirmation{Status: payment.StatusSucceeded, Reference: "pi_1"}, nil).Once()
	f := newFixture(t, withPolicy(policy))
	f.add(t, "1", 1)
	session, err := f.orch.Begin(context.Background(), BeginInput{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var confirmErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, confirmErr = f.orch.Confirm(context.Background(), session.ID, validCard())
	}()

	<-started
	_, err = f.orch.Begin(context.Background(), BeginInput{})
	assert.True(t, errors.Is(err, apperrors.ErrConflict))

	close(release)
	wg.Wait()
	require.NoError(t, confirmErr)
}

func TestBegin_ExpiredSessionDoesNotBlock(t *testing.T) {
	f := newFixture(t)
	f.add(t, "1", 1)

	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	f.orch.now = func() time.Time { return now }

	first, err := f.orch.Begin(context.Background(), BeginInput{})
	require.NoError(t, err)

	now = now.Add(31 * time.Minute)
	second, err := f.orch.Begin(context.Background(), BeginInput{})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	_, err = f.orch.Get(first.ID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestBegin_BackendUnreachable_ServesPreview(t *testing.T) {
	policy := &mockPolicy{}
	policy.On("CreateIntent", mock.Anything, mock.Anything, mock.Anything).
		Return(payment.Intent{}, &httpclient.ServerError{Status: 502, Body: "bad gateway"})
	f := newFixture(t, withPolicy(policy))
	f.add(t, "1", 1)

	session, err := f.orch.Begin(context.Background(), BeginInput{})

	require.NoError(t, err)
	assert.True(t, session.Preview)
	assert.Equal(t, PreviewClientSecret, session.ClientSecret)
	assert.Equal(t, PreviewWarning, session.Warning)
	assert.Equal(t, domain.StatusAwaitingPaymentConfirmation, session.Status)

	_, err = f.orch.Confirm(context.Background(), session.ID, validCard())
	assert.True(t, errors.Is(err, apperrors.ErrServiceUnavail))
	policy.AssertNotCalled(t, "Confirm", mock.Anything, mock.Anything, mock.Anything)

	got, err := f.orch.Get(session.ID)
	require.NoError(t, err)
	assert.NotEqual(t, domain.StatusOrderRecorded, got.Status)
	assert.Zero(t, f.recorder.Len())
	assert.Len(t, f.cart.Snapshot().Lines, 1)

	// A preview never blocks a fresh attempt.
	_, err = f.orch.Begin(context.Background(), BeginInput{})
	require.NoError(t, err)
}

func TestBegin_BackendUnreachable_NoFallback(t *testing.T) {
	policy := &mockPolicy{}
	policy.On("CreateIntent", mock.Anything, mock.Anything, mock.Anything).
		Return(payment.Intent{}, context.DeadlineExceeded)
	f := newFixture(t, withPolicy(policy), withConfig(func(c *Config) { c.PreviewFallback = false }))
	f.add(t, "1", 1)

	_, err := f.orch.Begin(context.Background(), BeginInput{})

	assert.True(t, errors.Is(err, apperrors.ErrServiceUnavail))
	assert.Zero(t, f.orch.Sessions())
	require.Len(t, f.publisher.failed, 1)
	assert.Equal(t, domain.StatusFailed, f.publisher.failed[0].Status)
}

func TestBegin_IntentRejected(t *testing.T) {
	policy := &mockPolicy{}
	policy.On("CreateIntent", mock.Anything, mock.Anything, mock.Anything).
		Return(payment.Intent{}, apperrors.InvalidInput("invalid amount"))
	f := newFixture(t, withPolicy(policy))
	f.add(t, "1", 1)

	_, err := f.orch.Begin(context.Background(), BeginInput{})

	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	require.Len(t, f.publisher.failed, 1)
	assert.Equal(t, "invalid amount", f.publisher.failed[0].FailureReason)
}

func TestBegin_IntentUnauthorized(t *testing.T) {
	policy := &mockPolicy{}
	policy.On("CreateIntent", mock.Anything, mock.Anything, mock.Anything).
		Return(payment.Intent{}, apperrors.Unauthorized("token expired"))
	f := newFixture(t, withPolicy(policy))
	f.add(t, "1", 1)

	_, err := f.orch.Begin(context.Background(), BeginInput{})

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, LoginRedirect, appErr.Redirect)
}

func TestBegin_IntentTimeoutApplied(t *testing.T) {
	policy := &mockPolicy{}
	policy.On("CreateIntent", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			deadline, ok := ctx.Deadline()
			assert.True(t, ok)
			assert.WithinDuration(t, time.Now().Add(3*time.Second), deadline, time.Second)
		}).
		Return(payment.Intent{Ref: "pi_1", ClientSecret: "pi_1_secret_x"}, nil)
	f := newFixture(t, withPolicy(policy))
	f.add(t, "1", 1)

	_, err := f.orch.Begin(context.Background(), BeginInput{})
	require.NoError(t, err)
	policy.AssertExpectations(t)
}

func TestBegin_VerifyStock_Insufficient(t *testing.T) {
	f := newFixture(t, withConfig(func(c *Config) { c.VerifyStock = true }))
	f.add(t, "1", 4)
	require.True(t, f.catalog.SetStock("1", 2))

	_, err := f.orch.Begin(context.Background(), BeginInput{})

	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	lines := f.cart.Snapshot().Lines
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, 2, lines[0].Product.Stock)
	assert.Zero(t, f.orch.Sessions())
}

func TestBegin_VerifyStock_SoldOutRemovesLine(t *testing.T) {
	f := newFixture(t, withConfig(func(c *Config) { c.VerifyStock = true }))
	f.add(t, "1", 1)
	f.add(t, "3", 1)
	require.True(t, f.catalog.SetStock("3", 0))

	_, err := f.orch.Begin(context.Background(), BeginInput{})

	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.Equal(t, []domain.ProductID{"1"}, f.snapshot().IDs())
}

func TestBegin_VerifyStock_Sufficient(t *testing.T) {
	f := newFixture(t, withConfig(func(c *Config) { c.VerifyStock = true }))
	f.add(t, "1", 2)

	session, err := f.orch.Begin(context.Background(), BeginInput{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingPaymentConfirmation, session.Status)
}

// --- Confirm ---

func TestCheckout_HappyPath(t *testing.T) {
	f := newFixture(t)
	f.add(t, "1", 2)
	f.add(t, "3", 1)
	before := f.cart.Snapshot()

	done, err := f.orch.Checkout(context.Background(), BeginInput{}, validCard())

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCleared, done.Status)
	assert.Equal(t, SuccessRedirect, done.Redirect)
	assert.NotEmpty(t, done.OrderID)
	assert.NotEmpty(t, done.PaymentReference)
	assert.True(t, f.snapshot().IsEmpty())

	req, ok := f.recorder.Get(done.OrderID)
	require.True(t, ok)
	assert.Equal(t, before.TotalPrice(), req.Total)
	assert.Equal(t, done.PaymentReference, req.PaymentReference)
	assert.Equal(t, "jwt-token", req.BearerToken)
	assert.Len(t, req.Lines, 2)

	require.Len(t, f.publisher.completed, 1)
	assert.Equal(t, done.ID, f.publisher.completed[0].ID)
	assert.Zero(t, f.orch.Sessions())
}

func TestCheckout_KeepsLinesAddedAfterBegin(t *testing.T) {
	f := newFixture(t)
	f.add(t, "1", 1)
	session, err := f.orch.Begin(context.Background(), BeginInput{})
	require.NoError(t, err)

	f.add(t, "3", 2)
	done, err := f.orch.Confirm(context.Background(), session.ID, validCard())

	require.NoError(t, err)
	assert.Equal(t, int64(2800), done.Amount)
	require.Len(t, done.Lines, 1)
	c := f.snapshot()
	assert.Equal(t, []domain.ProductID{"3"}, c.IDs())
	assert.Equal(t, 2, c.Lines[0].Quantity)
}

func TestConfirm_CartChangedSinceBegin(t *testing.T) {
	f := newFixture(t)
	f.add(t, "1", 1)
	session, err := f.orch.Begin(context.Background(), BeginInput{})
	require.NoError(t, err)

	f.add(t, "1", 1)
	_, err = f.orch.Confirm(context.Background(), session.ID, validCard())

	require.Error(t, err)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.True(t, errors.Is(err, apperrors.ErrPrecondition))
	assert.Equal(t, CartRedirect, appErr.Redirect)
	assert.Zero(t, f.recorder.Len())
	require.Len(t, f.publisher.failed, 1)
	assert.Equal(t, reasonCartChanged, f.publisher.failed[0].FailureReason)
	assert.Equal(t, 2, f.snapshot().Lines[0].Quantity)

	_, err = f.orch.Get(session.ID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestTransition_RejectsInvalidMove(t *testing.T) {
	f := newFixture(t)
	f.add(t, "1", 1)
	session, err := f.orch.Begin(context.Background(), BeginInput{})
	require.NoError(t, err)

	f.orch.mu.Lock()
	live := f.orch.sessions[session.ID]
	f.orch.mu.Unlock()
	_, err = f.orch.transition(context.Background(), live, domain.StatusCleared, func(s *domain.CheckoutSession) {
		s.Redirect = SuccessRedirect
	})

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	got, err := f.orch.Get(session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingPaymentConfirmation, got.Status)
	assert.Empty(t, got.Redirect)
}

func TestConfirm_DeclinedCard(t *testing.T) {
	f := newFixture(t)
	f.add(t, "1", 1)
	session, err := f.orch.Begin(context.Background(), BeginInput{})
	require.NoError(t, err)

	card := validCard()
	card.CardNumber = payment.DeclinedCard
	_, err = f.orch.Confirm(context.Background(), session.ID, card)

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrPaymentFailed))
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, payment.DeclinedReason, appErr.Message)

	assert.Len(t, f.cart.Snapshot().Lines, 1)
	assert.Zero(t, f.recorder.Len())
	require.Len(t, f.publisher.failed, 1)
	assert.Equal(t, payment.DeclinedReason, f.publisher.failed[0].FailureReason)

	// The failed session is gone and a new attempt may start.
	_, err = f.orch.Get(session.ID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	_, err = f.orch.Begin(context.Background(), BeginInput{})
	require.NoError(t, err)
}

func TestConfirm_RecordingFailure_KeepsCart(t *testing.T) {
	recorder := &mockRecorder{}
	recorder.On("RecordOrder", mock.Anything, mock.Anything, mock.Anything).
		Return(order.Receipt{}, &httpclient.ServerError{Status: 500, Body: "boom"}).Once()
	f := newFixture(t, withRecorder(recorder))
	f.add(t, "1", 1)
	session, err := f.orch.Begin(context.Background(), BeginInput{})
	require.NoError(t, err)

	_, err = f.orch.Confirm(context.Background(), session.ID, validCard())

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrRecordingFailed))
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Contains(t, appErr.Message, session.PaymentIntentRef)

	got, err := f.orch.Get(session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaymentConfirmed, got.Status)
	assert.Len(t, f.cart.Snapshot().Lines, 1)
	require.Len(t, f.publisher.recording, 1)
	assert.Empty(t, f.publisher.completed)

	// Recording is attempted once per session.
	_, err = f.orch.Confirm(context.Background(), session.ID, validCard())
	assert.True(t, errors.Is(err, apperrors.ErrRecordingFailed))
	recorder.AssertNumberOfCalls(t, "RecordOrder", 1)

	// The spent session does not block a new checkout.
	_, err = f.orch.Begin(context.Background(), BeginInput{})
	require.NoError(t, err)
}

func TestConfirm_RecorderGetsIdempotencyKey(t *testing.T) {
	recorder := &mockRecorder{}
	recorder.On("RecordOrder", mock.Anything, mock.AnythingOfType("order.Request"), mock.MatchedBy(func(k string) bool {
		return k != ""
	})).Return(order.Receipt{OrderID: "ord-1"}, nil)
	f := newFixture(t, withRecorder(recorder))
	f.add(t, "1", 1)

	done, err := f.orch.Checkout(context.Background(), BeginInput{}, validCard())

	require.NoError(t, err)
	assert.Equal(t, "ord-1", done.OrderID)
	recorder.AssertExpectations(t)
}

func TestConfirm_WrongUser(t *testing.T) {
	f := newFixture(t)
	f.add(t, "1", 1)
	session, err := f.orch.Begin(context.Background(), BeginInput{})
	require.NoError(t, err)

	f.orch.identity = identity.Static{Principal: &identity.Principal{UserID: "user-2"}}
	_, err = f.orch.Confirm(context.Background(), session.ID, validCard())

	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestConfirm_UnknownSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Confirm(context.Background(), "missing", validCard())
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestConfirm_ConcurrentConfirmConflicts(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	policy := &mockPolicy{}
	policy.On("CreateIntent", mock.Anything, mock.Anything, mock.Anything).
		Return(payment.Intent{Ref: "pi_1", ClientSecret: "pi_1_secret_x"}, nil)
	policy.On("Confirm", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(payment.Confirmation{Status: payment.StatusSucceeded, Reference: "pi_1"}, nil).Once()
	f := newFixture(t, withPolicy(policy))
	f.add(t, "1", 1)
	session, err := f.orch.Begin(context.Background(), BeginInput{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = f.orch.Confirm(context.Background(), session.ID, validCard())
	}()

	<-started
	_, err = f.orch.Confirm(context.Background(), session.ID, validCard())
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
	err = f.orch.Abandon(context.Background(), session.ID)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))

	close(release)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.Equal(t, 1, f.recorder.Len())
}

func TestConfirm_UnexpectedError(t *testing.T) {
	policy := &mockPolicy{}
	policy.On("CreateIntent", mock.Anything, mock.Anything, mock.Anything).
		Return(payment.Intent{Ref: "pi_1", ClientSecret: "pi_1_secret_x"}, nil)
	policy.On("Confirm", mock.Anything, mock.Anything, mock.Anything).
		Return(payment.Confirmation{}, errors.New("unexpected status \"weird\""))
	f := newFixture(t, withPolicy(policy))
	f.add(t, "1", 1)
	session, err := f.orch.Begin(context.Background(), BeginInput{})
	require.NoError(t, err)

	_, err = f.orch.Confirm(context.Background(), session.ID, validCard())

	assert.Equal(t, 500, apperrors.HTTPStatus(err))
	require.Len(t, f.publisher.failed, 1)
	assert.Equal(t, reasonProcessingError, f.publisher.failed[0].FailureReason)
}

func TestConfirm_Timeout(t *testing.T) {
	policy := &mockPolicy{}
	policy.On("CreateIntent", mock.Anything, mock.Anything, mock.Anything).
		Return(payment.Intent{Ref: "pi_1", ClientSecret: "pi_1_secret_x"}, nil)
	policy.On("Confirm", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(payment.Confirmation{}, context.DeadlineExceeded)
	f := newFixture(t, withPolicy(policy), withConfig(func(c *Config) { c.Timeouts.Confirm = 20 * time.Millisecond }))
	f.add(t, "1", 1)
	session, err := f.orch.Begin(context.Background(), BeginInput{})
	require.NoError(t, err)

	_, err = f.orch.Confirm(context.Background(), session.ID, validCard())

	assert.True(t, errors.Is(err, apperrors.ErrServiceUnavail))
	assert.Len(t, f.cart.Snapshot().Lines, 1)
}

func TestCheckout_DemoPolicy(t *testing.T) {
	f := newFixture(t, withPolicy(NewDemoPolicy(5*time.Millisecond)))
	f.add(t, "2", 1)

	done, err := f.orch.Checkout(context.Background(), BeginInput{}, validCard())

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCleared, done.Status)
	assert.Contains(t, done.PaymentReference, "pi_demo_")
}

func TestCheckout_DemoPolicy_InvalidCard(t *testing.T) {
	f := newFixture(t, withPolicy(NewDemoPolicy(0)))
	f.add(t, "2", 1)

	card := validCard()
	card.CVC = "1"
	_, err := f.orch.Checkout(context.Background(), BeginInput{}, card)

	assert.True(t, errors.Is(err, apperrors.ErrPaymentFailed))
	assert.Len(t, f.cart.Snapshot().Lines, 1)
}

func TestCheckout_PartialRemovesOnlySelected(t *testing.T) {
	f := newFixture(t, withCartSelection())
	f.add(t, "1", 1)
	f.add(t, "3", 2)
	_, err := f.cart.ToggleItemSelection(context.Background(), "1")
	require.NoError(t, err)

	done, err := f.orch.Checkout(context.Background(), BeginInput{SelectedOnly: true}, validCard())

	require.NoError(t, err)
	assert.True(t, done.Partial)
	require.Len(t, done.Lines, 1)
	assert.Equal(t, domain.ProductID("3"), done.Lines[0].Product.ID)
	assert.Equal(t, []domain.ProductID{"1"}, f.snapshot().IDs())
}

func TestBegin_PartialWithNothingSelected(t *testing.T) {
	f := newFixture(t, withCartSelection(), withConfig(func(c *Config) { c.Partial = true }))
	f.add(t, "1", 1)
	_, err := f.cart.ToggleAllItems(context.Background())
	require.NoError(t, err)

	_, err = f.orch.Begin(context.Background(), BeginInput{})

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, CartRedirect, appErr.Redirect)
	assert.Contains(t, appErr.Message, "selected")
}

func TestBegin_SelectedOnlyIgnoredWithoutSelection(t *testing.T) {
	f := newFixture(t)
	f.add(t, "1", 1)

	session, err := f.orch.Begin(context.Background(), BeginInput{SelectedOnly: true})

	require.NoError(t, err)
	assert.False(t, session.Partial)
}

// --- Abandon ---

func TestAbandon(t *testing.T) {
	f := newFixture(t)
	f.add(t, "1", 1)
	session, err := f.orch.Begin(context.Background(), BeginInput{})
	require.NoError(t, err)

	require.NoError(t, f.orch.Abandon(context.Background(), session.ID))

	_, err = f.orch.Get(session.ID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	require.Len(t, f.publisher.failed, 1)
	assert.Equal(t, reasonAbandoned, f.publisher.failed[0].FailureReason)
	assert.Len(t, f.cart.Snapshot().Lines, 1)

	assert.True(t, errors.Is(f.orch.Abandon(context.Background(), session.ID), apperrors.ErrNotFound))
}

func TestAbandon_PaymentCaptured(t *testing.T) {
	recorder := &mockRecorder{}
	recorder.On("RecordOrder", mock.Anything, mock.Anything, mock.Anything).
		Return(order.Receipt{}, errors.New("connection reset"))
	f := newFixture(t, withRecorder(recorder))
	f.add(t, "1", 1)
	session, err := f.orch.Begin(context.Background(), BeginInput{})
	require.NoError(t, err)
	_, err = f.orch.Confirm(context.Background(), session.ID, validCard())
	require.Error(t, err)

	err = f.orch.Abandon(context.Background(), session.ID)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

func TestNewOrchestrator_DefaultsPublisher(t *testing.T) {
	logger := newTestLogger()
	o := NewOrchestrator(Dependencies{}, DefaultConfig(), logger)
	assert.NotNil(t, o.publisher)
}
