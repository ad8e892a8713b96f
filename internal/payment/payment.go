package payment

import (
	"time"

	"mtquotesAPI/internal/subscription"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// IsTerminal is true once an entry can no longer change status.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// ParseStatus maps gateway wording onto ledger statuses. ok is false for
// intermediate statuses that leave the entry pending.
func ParseStatus(raw string) (Status, bool) {
	switch raw {
	case "success", "succeeded", "SUCCESS", "captured", "paid":
		return StatusSuccess, true
	case "failure", "failed", "FAILURE", "FAILED", "declined", "cancelled":
		return StatusFailure, true
	default:
		return "", false
	}
}

type Source string

const (
	SourcePurchase        Source = "purchase"
	SourceTrialConversion Source = "trial_conversion"
	SourceRenewal         Source = "renewal"
)

// Payment is one ledger entry (a charge attempt) in the transactions
// collection.
type Payment struct {
	ID             string                  `json:"id" firestore:"-" db:"id"`
	UserID         string                  `json:"userId" firestore:"userId" db:"user_id"`
	PlanType       string                  `json:"planType" firestore:"planType" db:"plan_type"`
	Amount         int                     `json:"amount" firestore:"amount" db:"amount"`
	Status         Status                  `json:"status" firestore:"status" db:"status"`
	IsSubscription bool                    `json:"isSubscription" firestore:"isSubscription" db:"is_subscription"`
	RecurringType  subscription.Recurrence `json:"recurringType,omitempty" firestore:"recurringType" db:"recurring_type"`
	IsTrial        bool                    `json:"isTrial" firestore:"isTrial" db:"is_trial"`
	StartDate      *time.Time              `json:"startDate,omitempty" firestore:"startDate" db:"start_date"`
	EndDate        *time.Time              `json:"endDate,omitempty" firestore:"endDate" db:"end_date"`
	PaymentMethod  string                  `json:"paymentMethod" firestore:"paymentMethod" db:"payment_method"`
	Source         Source                  `json:"source" firestore:"source" db:"source"`
	ReferenceID    string                  `json:"referenceId,omitempty" firestore:"referenceId" db:"reference_id"`
	GatewayStatus  string                  `json:"gatewayStatus,omitempty" firestore:"gatewayStatus" db:"gateway_status"`
	WebhookPayload string                  `json:"-" firestore:"webhookPayload" db:"webhook_payload"`
	CreatedAt      time.Time               `json:"createdAt" firestore:"createdAt" db:"created_at"`
	UpdatedAt      time.Time               `json:"updatedAt" firestore:"updatedAt" db:"updated_at"`
	ResolvedAt     *time.Time              `json:"resolvedAt,omitempty" firestore:"resolvedAt" db:"resolved_at"`
}

func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	c := *p
	if p.StartDate != nil {
		v := *p.StartDate
		c.StartDate = &v
	}
	if p.EndDate != nil {
		v := *p.EndDate
		c.EndDate = &v
	}
	if p.ResolvedAt != nil {
		v := *p.ResolvedAt
		c.ResolvedAt = &v
	}
	return &c
}

// Resolve moves a pending entry to a terminal status. It returns false when
// the entry was already resolved; the first resolution wins.
func (p *Payment) Resolve(status Status, at time.Time) bool {
	if p.Status != StatusPending || !status.IsTerminal() {
		return false
	}
	p.Status = status
	p.UpdatedAt = at
	p.ResolvedAt = &at
	return true
}
