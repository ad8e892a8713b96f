package subscription

import "time"

type Status string

const (
	StatusNone           Status = "none"
	StatusActive         Status = "active"
	StatusPendingRenewal Status = "pending_renewal"
	StatusCancelled      Status = "cancelled"
)

// Normalize maps the empty value written by older clients to StatusNone.
func (s Status) Normalize() Status {
	if s == "" {
		return StatusNone
	}
	return s
}

// Record is the subscription view of a user document. Fields outside the
// billing core (profile, referral, preferences) live on the same document
// and are never written by this package.
type Record struct {
	UserID                string     `json:"userId" firestore:"-" db:"user_id"`
	Status                Status     `json:"subscriptionStatus" firestore:"subscriptionStatus" db:"subscription_status"`
	CurrentPlan           string     `json:"currentPlan" firestore:"currentPlan" db:"current_plan"`
	RecurringType         Recurrence `json:"recurringType,omitempty" firestore:"recurringType" db:"recurring_type"`
	IsTrial               bool       `json:"isTrial" firestore:"isTrial" db:"is_trial"`
	SubscriptionStartDate *time.Time `json:"subscriptionStartDate,omitempty" firestore:"subscriptionStartDate" db:"subscription_start_date"`
	SubscriptionEndDate   *time.Time `json:"subscriptionEndDate,omitempty" firestore:"subscriptionEndDate" db:"subscription_end_date"`
	Points                int        `json:"points" firestore:"points" db:"points"`
	AvailableTemplates    int        `json:"availableTemplates" firestore:"availableTemplates" db:"available_templates"`
	DailyTemplateLimit    int        `json:"dailyTemplateLimit" firestore:"dailyTemplateLimit" db:"daily_template_limit"`
	CanEdit               bool       `json:"canEdit" firestore:"canEdit" db:"can_edit"`
	PaymentDue            bool       `json:"paymentDue" firestore:"paymentDue" db:"payment_due"`
	PaymentDueDate        *time.Time `json:"paymentDueDate,omitempty" firestore:"paymentDueDate" db:"payment_due_date"`
	TransactionID         string     `json:"transactionId,omitempty" firestore:"transactionId" db:"transaction_id"`
	NextBillingAmount     int        `json:"nextBillingAmount,omitempty" firestore:"nextBillingAmount" db:"next_billing_amount"`
	CancellationDate      *time.Time `json:"cancellationDate,omitempty" firestore:"cancellationDate" db:"cancellation_date"`
	LastPaymentDate       *time.Time `json:"lastPaymentDate,omitempty" firestore:"lastPaymentDate" db:"last_payment_date"`
	LastPaymentAmount     int        `json:"lastPaymentAmount,omitempty" firestore:"lastPaymentAmount" db:"last_payment_amount"`
	IsAdmin               bool       `json:"-" firestore:"isAdmin" db:"is_admin"`
	FCMTokens             []string   `json:"-" firestore:"fcmTokens" db:"fcm_tokens"`
	UpdatedAt             time.Time  `json:"updatedAt" firestore:"updatedAt" db:"updated_at"`
}

// Clone returns a deep copy so staged transaction writes never alias
// committed state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.SubscriptionStartDate = cloneTime(r.SubscriptionStartDate)
	c.SubscriptionEndDate = cloneTime(r.SubscriptionEndDate)
	c.PaymentDueDate = cloneTime(r.PaymentDueDate)
	c.CancellationDate = cloneTime(r.CancellationDate)
	c.LastPaymentDate = cloneTime(r.LastPaymentDate)
	if r.FCMTokens != nil {
		c.FCMTokens = append([]string(nil), r.FCMTokens...)
	}
	return &c
}

// IsDue reports whether the billing boundary has been reached.
func (r *Record) IsDue(now time.Time) bool {
	return r.SubscriptionEndDate != nil && !r.SubscriptionEndDate.After(now)
}

// FullAmount is what a renewal or trial conversion charges.
func (r *Record) FullAmount() int {
	if r.IsTrial && r.NextBillingAmount > 0 {
		return r.NextBillingAmount
	}
	if p, ok := LookupPlan(r.CurrentPlan); ok && p.Amount > 0 {
		return p.Amount
	}
	return AmountFor(r.RecurringType)
}

// SweepClass is the bucket a record falls into during the renewal sweep.
type SweepClass int

const (
	ClassUnaffected SweepClass = iota
	ClassTrialExpiring
	ClassRenewalDue
	ClassCancelledExpired
)

func (c SweepClass) String() string {
	switch c {
	case ClassTrialExpiring:
		return "trial_expiring"
	case ClassRenewalDue:
		return "renewal_due"
	case ClassCancelledExpired:
		return "cancelled_expired"
	default:
		return "unaffected"
	}
}

// Classify buckets a record for the sweep. A pending_renewal record is never
// due again until its outstanding charge resolves.
func Classify(r *Record, now time.Time) SweepClass {
	if r == nil || !r.IsDue(now) {
		return ClassUnaffected
	}
	switch r.Status.Normalize() {
	case StatusActive:
		if r.IsTrial {
			return ClassTrialExpiring
		}
		return ClassRenewalDue
	case StatusCancelled:
		return ClassCancelledExpired
	default:
		return ClassUnaffected
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// TimePtr is a small helper for optional timestamps.
func TimePtr(t time.Time) *time.Time {
	return &t
}
