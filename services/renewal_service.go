package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"mtquotesAPI/internal/audit"
	"mtquotesAPI/internal/payment"
	"mtquotesAPI/internal/store"
	"mtquotesAPI/internal/subscription"
	"mtquotesAPI/internal/workers"
)

const (
	sweepLockKey     = "renewal-sweep"
	defaultPageSize  = 200
	defaultLeaseTime = 30 * time.Minute
)

// RenewalService is the daily sweep that turns due subscriptions into
// pending charges and expires cancelled ones.
type RenewalService struct {
	store    store.Store
	locker   workers.Locker
	notifier BillingNotifier
	pageSize int
	leaseTTL time.Duration

	now   func() time.Time
	newID func() string
}

func NewRenewalService(st store.Store, locker workers.Locker, notifier BillingNotifier, pageSize int, leaseTTL time.Duration) *RenewalService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if locker == nil {
		locker = workers.NewLocalLocker()
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if leaseTTL <= 0 {
		leaseTTL = defaultLeaseTime
	}
	return &RenewalService{
		store:    st,
		locker:   locker,
		notifier: notifier,
		pageSize: pageSize,
		leaseTTL: leaseTTL,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

type SweepReport struct {
	Scanned          int  `json:"scanned"`
	TrialConversions int  `json:"trialConversions"`
	Renewals         int  `json:"renewals"`
	Expired          int  `json:"expired"`
	Skipped          int  `json:"skipped"`
	FailedBatches    int  `json:"failedBatches"`
	LeaseHeld        bool `json:"leaseHeld"`
}

type sweepChange struct {
	rec   *subscription.Record
	event audit.EventType
}

// Sweep runs one pass over every due record. It is safe to re-run: records
// that already have an outstanding charge are skipped.
func (s *RenewalService) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	unlock, ok, err := s.locker.TryLock(ctx, sweepLockKey, s.leaseTTL)
	if err != nil {
		sweepRunsTotal.WithLabelValues("error").Inc()
		return report, fmt.Errorf("failed to acquire sweep lease: %w", err)
	}
	if !ok {
		log.Println("Sweep: another sweep holds the lease, skipping this run")
		sweepRunsTotal.WithLabelValues("lease_held").Inc()
		report.LeaseHeld = true
		return report, nil
	}
	defer unlock()

	now := s.now()
	log.Printf("Sweep: starting at %s", now.Format(time.RFC3339))

	for _, status := range []subscription.Status{subscription.StatusActive, subscription.StatusCancelled} {
		if err := s.sweepStatus(ctx, status, now, &report); err != nil {
			sweepRunsTotal.WithLabelValues("error").Inc()
			return report, err
		}
	}

	sweepRunsTotal.WithLabelValues("completed").Inc()
	log.Printf("Sweep: done, scanned=%d trials=%d renewals=%d expired=%d skipped=%d failedBatches=%d",
		report.Scanned, report.TrialConversions, report.Renewals, report.Expired, report.Skipped, report.FailedBatches)
	return report, nil
}

func (s *RenewalService) sweepStatus(ctx context.Context, status subscription.Status, now time.Time, report *SweepReport) error {
	var cursor *store.Cursor
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := s.store.ListDue(ctx, status, now, cursor, s.pageSize)
		if err != nil {
			return fmt.Errorf("failed to list due %s subscriptions: %w", status, err)
		}
		report.Scanned += len(page.Records)

		byClass := make(map[subscription.SweepClass][]string)
		for _, rec := range page.Records {
			class := subscription.Classify(rec, now)
			if class == subscription.ClassUnaffected {
				report.Skipped++
				continue
			}
			byClass[class] = append(byClass[class], rec.UserID)
		}

		for _, class := range []subscription.SweepClass{
			subscription.ClassTrialExpiring,
			subscription.ClassRenewalDue,
			subscription.ClassCancelledExpired,
		} {
			ids := byClass[class]
			if len(ids) == 0 {
				continue
			}
			s.commitClass(ctx, class, ids, now, report)
		}

		if page.Next == nil {
			return nil
		}
		cursor = page.Next
	}
}

// commitClass writes one class of one page as a single transaction. Every
// record is re-read and re-checked inside it, so concurrent webhooks or
// overlapping sweeps cannot produce a second pending charge.
func (s *RenewalService) commitClass(ctx context.Context, class subscription.SweepClass, ids []string, now time.Time, report *SweepReport) {
	var (
		changes []sweepChange
		skipped int
	)

	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		changes, skipped = nil, 0

		var eligible []*subscription.Record
		for _, id := range ids {
			rec, err := tx.GetSubscription(id)
			if errors.Is(err, store.ErrNotFound) {
				skipped++
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to reload subscription %s: %w", id, err)
			}
			if subscription.Classify(rec, now) != class {
				skipped++
				continue
			}
			if class == subscription.ClassTrialExpiring && rec.TransactionID == "" {
				log.Printf("Sweep: trial user %s has no transaction on record, skipping", id)
				skipped++
				continue
			}
			if class != subscription.ClassCancelledExpired {
				pending, err := hasPendingCharge(tx, rec)
				if err != nil {
					return err
				}
				if pending {
					skipped++
					continue
				}
			}
			eligible = append(eligible, rec)
		}

		for _, rec := range eligible {
			var ev *audit.Event
			if class == subscription.ClassCancelledExpired {
				ev = s.expire(rec, now)
			} else {
				p := s.openRenewal(rec, class, now)
				if err := tx.PutPayment(p); err != nil {
					return err
				}
				ev = newEvent(s.newID(), rec, eventFor(class))
				ev.Amount = p.Amount
			}

			if err := tx.PutSubscription(rec); err != nil {
				return err
			}
			if err := tx.AppendEvent(ev); err != nil {
				return err
			}
			changes = append(changes, sweepChange{rec: rec, event: ev.Type})
		}
		return nil
	})
	if err != nil {
		log.Printf("Sweep: failed to commit %s batch of %d records: %v", class, len(ids), err)
		report.FailedBatches++
		sweepRecordsTotal.WithLabelValues(class.String(), "failed").Add(float64(len(ids)))
		return
	}

	report.Skipped += skipped
	switch class {
	case subscription.ClassTrialExpiring:
		report.TrialConversions += len(changes)
	case subscription.ClassRenewalDue:
		report.Renewals += len(changes)
	case subscription.ClassCancelledExpired:
		report.Expired += len(changes)
	}
	sweepRecordsTotal.WithLabelValues(class.String(), "processed").Add(float64(len(changes)))
	sweepRecordsTotal.WithLabelValues(class.String(), "skipped").Add(float64(skipped))

	for _, c := range changes {
		s.notifier.NotifyBilling(ctx, c.rec, c.event)
	}
}

// openRenewal creates the pending charge for the next period and moves the
// record to pending_renewal.
func (s *RenewalService) openRenewal(rec *subscription.Record, class subscription.SweepClass, now time.Time) *payment.Payment {
	amount := rec.FullAmount()
	start := *rec.SubscriptionEndDate
	end := subscription.ComputeEndDate(start, rec.RecurringType)

	source := payment.SourceRenewal
	if class == subscription.ClassTrialExpiring {
		source = payment.SourceTrialConversion
	}

	p := &payment.Payment{
		ID:             s.newID(),
		UserID:         rec.UserID,
		PlanType:       rec.CurrentPlan,
		Amount:         amount,
		Status:         payment.StatusPending,
		IsSubscription: true,
		RecurringType:  rec.RecurringType,
		StartDate:      subscription.TimePtr(start),
		EndDate:        subscription.TimePtr(end),
		Source:         source,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	rec.IsTrial = false
	rec.Status = subscription.StatusPendingRenewal
	rec.PaymentDue = true
	rec.PaymentDueDate = subscription.TimePtr(now)
	rec.TransactionID = p.ID
	rec.UpdatedAt = now
	return p
}

func (s *RenewalService) expire(rec *subscription.Record, now time.Time) *audit.Event {
	rec.Status = subscription.StatusNone
	rec.IsTrial = false
	rec.DailyTemplateLimit = 0
	rec.CanEdit = false
	rec.PaymentDue = false
	rec.PaymentDueDate = nil
	rec.UpdatedAt = now
	return newEvent(s.newID(), rec, audit.EventExpired)
}

func eventFor(class subscription.SweepClass) audit.EventType {
	if class == subscription.ClassTrialExpiring {
		return audit.EventTrialEnded
	}
	return audit.EventRenewalDue
}
