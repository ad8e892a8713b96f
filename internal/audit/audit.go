package audit

import (
	"time"

	"mtquotesAPI/internal/subscription"
)

type EventType string

const (
	EventPurchaseCreated   EventType = "purchase_created"
	EventTrialEnded        EventType = "trial_ended"
	EventRenewalDue        EventType = "renewal_due"
	EventPaymentSuccess    EventType = "payment_success"
	EventPaymentFailed     EventType = "payment_failed"
	EventPointsCredited    EventType = "points_credited"
	EventTemplatesCredited EventType = "templates_credited"
	EventCancel            EventType = "cancel"
	EventExpired           EventType = "expired"
)

const (
	CollectionEvents        = "subscription_events"
	CollectionCancellations = "cancellations"
)

// Event is a write-once billing audit record. It feeds analytics only; no
// control flow reads it back.
type Event struct {
	ID            string                  `json:"id" firestore:"-" db:"id"`
	UserID        string                  `json:"userId" firestore:"userId" db:"user_id"`
	Type          EventType               `json:"event" firestore:"event" db:"event"`
	Plan          string                  `json:"plan,omitempty" firestore:"plan,omitempty" db:"plan"`
	RecurringType subscription.Recurrence `json:"subscriptionType,omitempty" firestore:"subscriptionType,omitempty" db:"subscription_type"`
	Amount        int                     `json:"amount,omitempty" firestore:"amount,omitempty" db:"amount"`
	TransactionID string                  `json:"transactionId,omitempty" firestore:"transactionId,omitempty" db:"transaction_id"`
	Reason        string                  `json:"reason,omitempty" firestore:"reason,omitempty" db:"reason"`
	Timestamp     time.Time               `json:"timestamp" firestore:"timestamp" db:"created_at"`
}

// Collection is where the event is appended.
func (e *Event) Collection() string {
	if e.Type == EventCancel {
		return CollectionCancellations
	}
	return CollectionEvents
}
