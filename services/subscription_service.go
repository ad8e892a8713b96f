package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"mtquotesAPI/internal/apperr"
	"mtquotesAPI/internal/audit"
	"mtquotesAPI/internal/store"
	"mtquotesAPI/internal/subscription"
)

type SubscriptionService struct {
	store    store.Store
	notifier BillingNotifier

	now   func() time.Time
	newID func() string
}

func NewSubscriptionService(st store.Store, notifier BillingNotifier) *SubscriptionService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &SubscriptionService{
		store:    st,
		notifier: notifier,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Caller is the authenticated identity behind a request.
type Caller struct {
	UserID string
	Admin  bool
}

type CancelResult struct {
	Success     bool       `json:"success"`
	Message     string     `json:"message"`
	ActiveUntil *time.Time `json:"activeUntil"`
}

type CreditResult struct {
	Success       bool `json:"success"`
	CurrentPoints int  `json:"currentPoints"`
}

// Get returns the caller's subscription view. Users without a record get
// an empty one.
func (s *SubscriptionService) Get(ctx context.Context, userID string) (*subscription.Record, error) {
	if userID == "" {
		return nil, apperr.Unauthenticated("user not authenticated")
	}
	rec, err := s.store.GetSubscription(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return &subscription.Record{UserID: userID, Status: subscription.StatusNone}, nil
	}
	if err != nil {
		return nil, apperr.Internal("failed to load subscription", err)
	}
	rec.Status = rec.Status.Normalize()
	return rec, nil
}

// Cancel stops renewal of an active subscription. Access continues until
// the current end date; nothing is refunded.
func (s *SubscriptionService) Cancel(ctx context.Context, userID string) (CancelResult, error) {
	if userID == "" {
		return CancelResult{}, apperr.Unauthenticated("user not authenticated")
	}

	var cancelled *subscription.Record
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		cancelled = nil

		rec, err := tx.GetSubscription(userID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("user not found")
		}
		if err != nil {
			return err
		}
		if rec.Status.Normalize() != subscription.StatusActive {
			return apperr.FailedPrecondition("no active subscription to cancel")
		}

		now := s.now()
		rec.Status = subscription.StatusCancelled
		rec.CancellationDate = subscription.TimePtr(now)
		rec.UpdatedAt = now

		if err := tx.PutSubscription(rec); err != nil {
			return err
		}
		ev := newEvent(s.newID(), rec, audit.EventCancel)
		ev.Reason = "user_requested"
		if err := tx.AppendEvent(ev); err != nil {
			return err
		}

		cancelled = rec
		return nil
	})
	if err != nil {
		return CancelResult{}, asAppError(err, "failed to cancel subscription")
	}

	log.Printf("Subscription: user %s cancelled %s, active until %v", userID, cancelled.CurrentPlan, cancelled.SubscriptionEndDate)
	s.notifier.NotifyBilling(ctx, cancelled, audit.EventCancel)

	return CancelResult{
		Success:     true,
		Message:     "Subscription cancelled. You keep access until the end of the current period.",
		ActiveUntil: cancelled.SubscriptionEndDate,
	}, nil
}

// CreditPoints adds points to a user's balance. Admins are recognised by
// their token claim or by the isAdmin flag on their own record.
func (s *SubscriptionService) CreditPoints(ctx context.Context, caller Caller, targetUserID string, points int, reason string) (CreditResult, error) {
	if caller.UserID == "" {
		return CreditResult{}, apperr.Unauthenticated("user not authenticated")
	}
	if !caller.Admin {
		self, err := s.store.GetSubscription(ctx, caller.UserID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return CreditResult{}, apperr.Internal("failed to load caller", err)
		}
		if self == nil || !self.IsAdmin {
			return CreditResult{}, apperr.PermissionDenied("admin access required")
		}
	}
	if targetUserID == "" {
		return CreditResult{}, apperr.InvalidArgument("userId is required")
	}
	if points <= 0 {
		return CreditResult{}, apperr.InvalidArgument("points must be a positive number")
	}

	var balance int
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		rec, err := tx.GetSubscription(targetUserID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("user not found")
		}
		if err != nil {
			return err
		}

		now := s.now()
		rec.Points += points
		rec.UpdatedAt = now
		if err := tx.PutSubscription(rec); err != nil {
			return err
		}

		ev := newEvent(s.newID(), rec, audit.EventPointsCredited)
		ev.Amount = points
		ev.Reason = reason
		if ev.Reason == "" {
			ev.Reason = "admin_credit by " + caller.UserID
		}
		if err := tx.AppendEvent(ev); err != nil {
			return err
		}

		balance = rec.Points
		return nil
	})
	if err != nil {
		return CreditResult{}, asAppError(err, "failed to credit points")
	}

	log.Printf("Subscription: admin %s credited %d points to %s", caller.UserID, points, targetUserID)
	return CreditResult{Success: true, CurrentPoints: balance}, nil
}
