package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"mtquotesAPI/internal/apperr"
	"mtquotesAPI/internal/audit"
	"mtquotesAPI/internal/payment"
	"mtquotesAPI/internal/store"
	"mtquotesAPI/internal/subscription"
)

type PaymentService struct {
	store       store.Store
	notifier    BillingNotifier
	trialPeriod time.Duration
	trialAmount int

	now   func() time.Time
	newID func() string
}

func NewPaymentService(st store.Store, notifier BillingNotifier, trialPeriod time.Duration, trialAmount int) *PaymentService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &PaymentService{
		store:       st,
		notifier:    notifier,
		trialPeriod: trialPeriod,
		trialAmount: trialAmount,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

type PurchaseRequest struct {
	PlanType      string `json:"planType"`
	PaymentMethod string `json:"paymentMethod"`
	Trial         bool   `json:"trial"`
}

type ApplyResult struct {
	TransactionID string         `json:"transactionId"`
	Status        payment.Status `json:"status"`
	// Applied is true only for the call that moved the entry out of pending.
	Applied bool `json:"applied"`
}

// WebhookUpdate is a gateway callback for one ledger entry.
type WebhookUpdate struct {
	Provider      string
	TransactionID string
	Status        string
	ReferenceID   string
	Payload       []byte
}

// CreatePurchase opens a pending charge for the caller. A user may have only
// one unresolved charge at a time.
func (s *PaymentService) CreatePurchase(ctx context.Context, userID string, req PurchaseRequest) (*payment.Payment, error) {
	if userID == "" {
		return nil, apperr.Unauthenticated("user not authenticated")
	}
	plan, ok := subscription.LookupPlan(req.PlanType)
	if !ok {
		return nil, apperr.InvalidArgument(fmt.Sprintf("unknown plan %q", req.PlanType))
	}
	if req.Trial && (plan.OneTime || !plan.Recurrence.IsRecurring()) {
		return nil, apperr.InvalidArgument("trials are only available for subscription plans")
	}

	var created *payment.Payment
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		created = nil

		rec, err := loadRecord(tx, userID)
		if err != nil {
			return err
		}
		pending, err := hasPendingCharge(tx, rec)
		if err != nil {
			return err
		}
		if pending {
			return apperr.FailedPrecondition("a payment is already pending for this account")
		}
		if req.Trial && (rec.IsTrial || rec.SubscriptionStartDate != nil) {
			return apperr.FailedPrecondition("trial already used")
		}

		now := s.now()
		p := &payment.Payment{
			ID:             s.newID(),
			UserID:         userID,
			PlanType:       plan.ID,
			Amount:         plan.Amount,
			Status:         payment.StatusPending,
			IsSubscription: !plan.OneTime,
			RecurringType:  plan.Recurrence,
			PaymentMethod:  req.PaymentMethod,
			Source:         payment.SourcePurchase,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if req.Trial {
			p.IsTrial = true
			p.Amount = s.trialAmount
			p.StartDate = subscription.TimePtr(now)
			p.EndDate = subscription.TimePtr(now.Add(s.trialPeriod))
		}

		rec.TransactionID = p.ID
		rec.UpdatedAt = now

		if err := tx.PutPayment(p); err != nil {
			return err
		}
		if err := tx.PutSubscription(rec); err != nil {
			return err
		}
		ev := newEvent(s.newID(), rec, audit.EventPurchaseCreated)
		ev.Plan = p.PlanType
		ev.RecurringType = p.RecurringType
		ev.Amount = p.Amount
		if err := tx.AppendEvent(ev); err != nil {
			return err
		}

		created = p
		return nil
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		// a concurrent purchase for a user without a record won the race
		return nil, apperr.FailedPrecondition("a payment is already pending for this account")
	}
	if err != nil {
		return nil, asAppError(err, "failed to create purchase")
	}

	log.Printf("Payment: created %s for user %s (%s, amount %d, trial %v)", created.ID, userID, created.PlanType, created.Amount, created.IsTrial)
	return created, nil
}

// Verify confirms a client-reported payment. Only the owner of the entry
// may verify it.
func (s *PaymentService) Verify(ctx context.Context, userID, txID string) (ApplyResult, error) {
	if userID == "" {
		return ApplyResult{}, apperr.Unauthenticated("user not authenticated")
	}
	if txID == "" {
		return ApplyResult{}, apperr.InvalidArgument("transactionId is required")
	}

	p, err := s.store.GetPayment(ctx, txID)
	if errors.Is(err, store.ErrNotFound) {
		return ApplyResult{}, apperr.NotFound("transaction not found")
	}
	if err != nil {
		return ApplyResult{}, apperr.Internal("failed to load transaction", err)
	}
	if p.UserID != userID {
		return ApplyResult{}, apperr.PermissionDenied("transaction belongs to another user")
	}

	return s.ApplySuccess(ctx, txID)
}

// ApplySuccess resolves a pending entry as paid and grants what it bought.
// Repeated calls are no-ops.
func (s *PaymentService) ApplySuccess(ctx context.Context, txID string) (ApplyResult, error) {
	return s.resolve(ctx, txID, payment.StatusSuccess, nil)
}

// ApplyFailure resolves a pending entry as failed. The user record is left
// as it is for manual reconciliation.
func (s *PaymentService) ApplyFailure(ctx context.Context, txID string) (ApplyResult, error) {
	return s.resolve(ctx, txID, payment.StatusFailure, nil)
}

// ApplyWebhook records a gateway callback and applies it when it carries a
// terminal status for a still-pending entry.
func (s *PaymentService) ApplyWebhook(ctx context.Context, u WebhookUpdate) (ApplyResult, error) {
	provider := u.Provider
	if provider == "" {
		provider = "gateway"
	}
	if u.TransactionID == "" || u.Status == "" {
		webhookEventsTotal.WithLabelValues(provider, "invalid").Inc()
		return ApplyResult{}, apperr.InvalidArgument("transactionId and status are required")
	}

	target, known := payment.ParseStatus(u.Status)
	if !known {
		log.Printf("Webhook: unrecognised status %q for transaction %s, leaving it pending", u.Status, u.TransactionID)
	}

	res, err := s.resolve(ctx, u.TransactionID, target, func(p *payment.Payment) {
		if p.Status.IsTerminal() {
			// The payload that decided the transition is kept.
			if p.WebhookPayload == "" {
				p.WebhookPayload = string(u.Payload)
			} else {
				log.Printf("Webhook: %s already %s, ignoring late %q callback", p.ID, p.Status, u.Status)
			}
			return
		}
		p.WebhookPayload = string(u.Payload)
		p.GatewayStatus = u.Status
		if u.ReferenceID != "" {
			p.ReferenceID = u.ReferenceID
		}
	})
	switch {
	case apperr.CodeOf(err) == apperr.CodeNotFound:
		webhookEventsTotal.WithLabelValues(provider, "not_found").Inc()
	case err != nil:
		webhookEventsTotal.WithLabelValues(provider, "error").Inc()
	case res.Applied:
		webhookEventsTotal.WithLabelValues(provider, "applied").Inc()
	default:
		webhookEventsTotal.WithLabelValues(provider, "recorded").Inc()
	}
	return res, err
}

// resolve is the single path that moves a ledger entry out of pending.
// annotate, when set, sees the entry before the transition.
func (s *PaymentService) resolve(ctx context.Context, txID string, target payment.Status, annotate func(p *payment.Payment)) (ApplyResult, error) {
	var (
		res      ApplyResult
		rec      *subscription.Record
		entry    *payment.Payment
		notifyEv audit.EventType
	)

	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		res = ApplyResult{TransactionID: txID}
		rec, entry, notifyEv = nil, nil, ""

		p, err := tx.GetPayment(txID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("transaction not found")
		}
		if err != nil {
			return fmt.Errorf("failed to load transaction %s: %w", txID, err)
		}

		var current *subscription.Record
		if target.IsTerminal() && p.Status == payment.StatusPending {
			current, err = loadRecord(tx, p.UserID)
			if err != nil {
				return err
			}
		}

		now := s.now()
		dirty := false
		if annotate != nil {
			annotate(p)
			p.UpdatedAt = now
			dirty = true
		}

		var events []*audit.Event
		if current != nil && p.Resolve(target, now) {
			dirty = true
			res.Applied = true
			current.UpdatedAt = now
			if target == payment.StatusSuccess {
				events = s.grant(current, p, now)
				if err := tx.PutSubscription(current); err != nil {
					return err
				}
				notifyEv = audit.EventPaymentSuccess
			} else {
				ev := newEvent(s.newID(), current, audit.EventPaymentFailed)
				ev.Plan = p.PlanType
				ev.RecurringType = p.RecurringType
				ev.Amount = p.Amount
				ev.TransactionID = p.ID
				ev.Reason = p.GatewayStatus
				events = append(events, ev)
				notifyEv = audit.EventPaymentFailed
			}
			rec = current
			entry = p
		}
		res.Status = p.Status

		if dirty {
			if err := tx.PutPayment(p); err != nil {
				return err
			}
		}
		for _, ev := range events {
			if err := tx.AppendEvent(ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ApplyResult{}, asAppError(err, "failed to apply payment")
	}

	if res.Applied {
		paymentTransitionsTotal.WithLabelValues(string(entry.Status), string(entry.Source)).Inc()
		log.Printf("Payment: %s -> %s for user %s (%s)", entry.ID, entry.Status, entry.UserID, entry.PlanType)
		s.notifier.NotifyBilling(ctx, rec, notifyEv)
	}
	return res, nil
}

// grant applies a successful charge to the user record and returns the
// audit events describing it.
func (s *PaymentService) grant(rec *subscription.Record, p *payment.Payment, now time.Time) []*audit.Event {
	success := newEvent(s.newID(), rec, audit.EventPaymentSuccess)
	success.Plan = p.PlanType
	success.RecurringType = p.RecurringType
	success.Amount = p.Amount
	success.TransactionID = p.ID

	if plan, ok := subscription.LookupPlan(p.PlanType); ok && plan.OneTime {
		rec.Points += subscription.PerTemplatePoints
		rec.AvailableTemplates++

		credited := newEvent(s.newID(), rec, audit.EventTemplatesCredited)
		credited.Plan = p.PlanType
		credited.Amount = 1
		credited.TransactionID = p.ID
		return []*audit.Event{success, credited}
	}

	start := now
	if p.StartDate != nil {
		start = *p.StartDate
	}
	end := subscription.ComputeEndDate(start, p.RecurringType)
	if p.EndDate != nil {
		end = *p.EndDate
	}
	// A charge confirmed after its period elapsed starts a fresh period at now.
	if !end.After(now) {
		log.Printf("Payment: %s confirmed after its period ended (%s), re-anchoring at %s", p.ID, end.Format(time.RFC3339), now.Format(time.RFC3339))
		if p.IsTrial && end.After(start) {
			end = now.Add(end.Sub(start))
		} else {
			end = subscription.ComputeEndDate(now, p.RecurringType)
		}
		start = now
	}

	rec.Status = subscription.StatusActive
	rec.SubscriptionStartDate = subscription.TimePtr(start)
	rec.SubscriptionEndDate = subscription.TimePtr(end)
	rec.IsTrial = p.IsTrial
	rec.RecurringType = p.RecurringType
	rec.CurrentPlan = p.PlanType
	if ent, ok := subscription.EntitlementFor(p.PlanType); ok {
		rec.DailyTemplateLimit = ent.DailyTemplateLimit
		rec.CanEdit = ent.CanEdit
	} else {
		log.Printf("Payment: no entitlements known for plan %q (user %s), leaving them unchanged", p.PlanType, rec.UserID)
	}
	rec.PaymentDue = false
	rec.PaymentDueDate = nil
	rec.CancellationDate = nil
	rec.TransactionID = p.ID
	rec.LastPaymentDate = subscription.TimePtr(now)
	rec.LastPaymentAmount = p.Amount
	if plan, ok := subscription.LookupPlan(p.PlanType); ok {
		rec.NextBillingAmount = plan.Amount
	} else {
		rec.NextBillingAmount = subscription.AmountFor(p.RecurringType)
	}

	return []*audit.Event{success}
}
