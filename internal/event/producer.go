// Package event publishes checkout domain events.
package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/azuma-miyu/filatelier/internal/domain"
	pkgkafka "github.com/azuma-miyu/filatelier/pkg/kafka"
	"github.com/azuma-miyu/filatelier/pkg/logger"
)

// Kafka topics for checkout domain events.
var (
	TopicCheckoutCompleted       = pkgkafka.Topic("checkout", "completed")
	TopicCheckoutFailed          = pkgkafka.Topic("checkout", "failed")
	TopicCheckoutRecordingFailed = pkgkafka.Topic("checkout", "recording_failed")
)

// Event types carried in the envelope.
const (
	TypeCheckoutCompleted       = "checkout.completed"
	TypeCheckoutFailed          = "checkout.failed"
	TypeCheckoutRecordingFailed = "checkout.recording_failed"
)

// AggregateTypeCheckout is the aggregate type of every checkout event.
const AggregateTypeCheckout = "checkout"

// SourceStorefront identifies events originating from the storefront.
const SourceStorefront = "storefront"

// Publisher publishes the terminal outcomes of a checkout.
type Publisher interface {
	PublishCheckoutCompleted(ctx context.Context, session *domain.CheckoutSession) error
	PublishCheckoutFailed(ctx context.Context, session *domain.CheckoutSession) error
	PublishRecordingFailed(ctx context.Context, session *domain.CheckoutSession) error
}

// CheckoutCompletedData is the payload for a checkout.completed event.
type CheckoutCompletedData struct {
	ID               string            `json:"id"`
	UserID           string            `json:"user_id"`
	OrderID          string            `json:"order_id"`
	PaymentReference string            `json:"payment_reference"`
	Amount           int64             `json:"amount"`
	Partial          bool              `json:"partial"`
	Lines            []domain.CartLine `json:"lines"`
}

// CheckoutFailedData is the payload for a checkout.failed event.
type CheckoutFailedData struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	Amount        int64  `json:"amount"`
	FailureReason string `json:"failure_reason"`
}

// RecordingFailedData is the payload for a checkout.recording_failed event:
// the payment was captured but no order exists for it.
type RecordingFailedData struct {
	ID               string `json:"id"`
	UserID           string `json:"user_id"`
	PaymentReference string `json:"payment_reference"`
	Amount           int64  `json:"amount"`
	IdempotencyKey   string `json:"idempotency_key"`
}

// eventWriter is the part of *pkgkafka.Producer this package needs.
type eventWriter interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes checkout events to Kafka.
type Producer struct {
	kafka  eventWriter
	logger *slog.Logger
}

// NewProducer creates a new checkout event producer.
func NewProducer(kafka eventWriter, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCheckoutCompleted publishes a checkout.completed event.
func (p *Producer) PublishCheckoutCompleted(ctx context.Context, session *domain.CheckoutSession) error {
	data := CheckoutCompletedData{
		ID:               session.ID,
		UserID:           session.UserID,
		OrderID:          session.OrderID,
		PaymentReference: session.PaymentReference,
		Amount:           session.Amount,
		Partial:          session.Partial,
		Lines:            session.Lines,
	}
	return p.publish(ctx, TopicCheckoutCompleted, TypeCheckoutCompleted, session, data)
}

// PublishCheckoutFailed publishes a checkout.failed event.
func (p *Producer) PublishCheckoutFailed(ctx context.Context, session *domain.CheckoutSession) error {
	data := CheckoutFailedData{
		ID:            session.ID,
		UserID:        session.UserID,
		Amount:        session.Amount,
		FailureReason: session.FailureReason,
	}
	return p.publish(ctx, TopicCheckoutFailed, TypeCheckoutFailed, session, data)
}

// PublishRecordingFailed publishes a checkout.recording_failed event.
func (p *Producer) PublishRecordingFailed(ctx context.Context, session *domain.CheckoutSession) error {
	data := RecordingFailedData{
		ID:               session.ID,
		UserID:           session.UserID,
		PaymentReference: session.PaymentReference,
		Amount:           session.Amount,
		IdempotencyKey:   session.IdempotencyKey,
	}
	return p.publish(ctx, TopicCheckoutRecordingFailed, TypeCheckoutRecordingFailed, session, data)
}

func (p *Producer) publish(ctx context.Context, topic, eventType string, session *domain.CheckoutSession, data any) error {
	evt, err := pkgkafka.NewEvent(eventType, session.ID, AggregateTypeCheckout, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", eventType, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}
	evt.WithUserID(session.UserID)

	if err := p.kafka.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}

	p.logger.DebugContext(ctx, "published "+eventType+" event",
		slog.String("checkout_id", session.ID),
	)
	return nil
}

// Noop discards every event. Used when Kafka is disabled.
type Noop struct{}

func (Noop) PublishCheckoutCompleted(context.Context, *domain.CheckoutSession) error { return nil }
func (Noop) PublishCheckoutFailed(context.Context, *domain.CheckoutSession) error    { return nil }
func (Noop) PublishRecordingFailed(context.Context, *domain.CheckoutSession) error   { return nil }
