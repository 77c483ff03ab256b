package domain

import (
	"fmt"
	"time"
)

// CheckoutStatus is the state of a checkout session.
type CheckoutStatus string

// Checkout session statuses.
const (
	StatusCreated                     CheckoutStatus = "created"
	StatusAwaitingPaymentConfirmation CheckoutStatus = "awaiting_payment_confirmation"
	StatusPaymentConfirmed            CheckoutStatus = "payment_confirmed"
	StatusOrderRecorded               CheckoutStatus = "order_recorded"
	StatusCleared                     CheckoutStatus = "cleared"
	StatusFailed                      CheckoutStatus = "failed"
)

var transitions = map[CheckoutStatus][]CheckoutStatus{
	StatusCreated:                     {StatusAwaitingPaymentConfirmation, StatusFailed},
	StatusAwaitingPaymentConfirmation: {StatusPaymentConfirmed, StatusFailed},
	StatusPaymentConfirmed:            {StatusOrderRecorded},
	StatusOrderRecorded:               {StatusCleared},
}

// IsTerminal reports whether no further transition is possible.
func (s CheckoutStatus) IsTerminal() bool {
	return s == StatusCleared || s == StatusFailed
}

// CanTransition reports whether moving from s to next is allowed.
func (s CheckoutStatus) CanTransition(next CheckoutStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CheckoutSession is one attempt to turn the cart into a paid order. It lives
// in memory only.
type CheckoutSession struct {
	ID               string         `json:"id"`
	UserID           string         `json:"user_id"`
	IdempotencyKey   string         `json:"-"`
	Lines            []CartLine     `json:"lines"`
	Amount           int64          `json:"amount"`
	Partial          bool           `json:"partial"`
	PaymentIntentRef string         `json:"payment_intent_id,omitempty"`
	ClientSecret     string         `json:"client_secret,omitempty"`
	PaymentReference string         `json:"payment_reference,omitempty"`
	OrderID          string         `json:"order_id,omitempty"`
	Preview          bool           `json:"preview"`
	Warning          string         `json:"warning,omitempty"`
	Status           CheckoutStatus `json:"status"`
	FailureReason    string         `json:"failure_reason,omitempty"`
	Redirect         string         `json:"redirect,omitempty"`
	RecordAttempted  bool           `json:"-"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	ExpiresAt        time.Time      `json:"expires_at"`
}

// NewCheckoutSession creates a session in the created state for a snapshot of
// cart lines. The amount is computed from the snapshot.
func NewCheckoutSession(id, idempotencyKey, userID string, lines []CartLine, partial bool, now time.Time, ttl time.Duration) *CheckoutSession {
	snapshot := make([]CartLine, len(lines))
	copy(snapshot, lines)

	s := &CheckoutSession{
		ID:             id,
		UserID:         userID,
		IdempotencyKey: idempotencyKey,
		Lines:          snapshot,
		Partial:        partial,
		Status:         StatusCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	}
	s.Amount = s.CalculateAmount()
	return s
}

// CalculateAmount sums the snapshot lines.
func (s *CheckoutSession) CalculateAmount() int64 {
	var total int64
	for _, l := range s.Lines {
		total += l.Subtotal()
	}
	return total
}

// ProductIDs returns the ids of the snapshot lines.
func (s *CheckoutSession) ProductIDs() []ProductID {
	ids := make([]ProductID, len(s.Lines))
	for i, l := range s.Lines {
		ids[i] = l.Product.ID
	}
	return ids
}

// Transition moves the session to next, or returns an error if the lifecycle
// does not allow it.
func (s *CheckoutSession) Transition(next CheckoutStatus, now time.Time) error {
	if !s.Status.CanTransition(next) {
		return fmt.Errorf("checkout %s: invalid transition %s -> %s", s.ID, s.Status, next)
	}
	s.Status = next
	s.UpdatedAt = now
	return nil
}

// Fail moves the session to failed with reason.
func (s *CheckoutSession) Fail(reason string, now time.Time) error {
	if err := s.Transition(StatusFailed, now); err != nil {
		return err
	}
	s.FailureReason = reason
	return nil
}

// IsExpired reports whether the session outlived its TTL at now.
func (s *CheckoutSession) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// BlocksNewCheckout reports whether this session prevents another one from
// starting: it is still in progress and is neither a preview nor a captured
// payment whose single recording attempt has already been spent.
func (s *CheckoutSession) BlocksNewCheckout() bool {
	if s.Status.IsTerminal() || s.Preview {
		return false
	}
	return !(s.Status == StatusPaymentConfirmed && s.RecordAttempted)
}

// Clone returns a copy safe to hand out while the orchestrator keeps mutating
// the session.
func (s *CheckoutSession) Clone() *CheckoutSession {
	out := *s
	out.Lines = make([]CartLine, len(s.Lines))
	copy(out.Lines, s.Lines)
	return &out
}
