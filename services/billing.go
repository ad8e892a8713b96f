package services

import (
	"errors"
	"fmt"

	"mtquotesAPI/internal/apperr"
	"mtquotesAPI/internal/audit"
	"mtquotesAPI/internal/payment"
	"mtquotesAPI/internal/store"
	"mtquotesAPI/internal/subscription"
)

// loadRecord reads the user's record inside tx. A user without a record is
// treated as never having subscribed.
func loadRecord(tx store.Tx, userID string) (*subscription.Record, error) {
	rec, err := tx.GetSubscription(userID)
	if errors.Is(err, store.ErrNotFound) {
		return &subscription.Record{UserID: userID, Status: subscription.StatusNone}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription %s: %w", userID, err)
	}
	rec.Status = rec.Status.Normalize()
	return rec, nil
}

// hasPendingCharge reports whether the record's transactionId points at a
// ledger entry that has not resolved yet.
func hasPendingCharge(tx store.Tx, rec *subscription.Record) (bool, error) {
	if rec.TransactionID == "" {
		return false, nil
	}
	p, err := tx.GetPayment(rec.TransactionID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load transaction %s: %w", rec.TransactionID, err)
	}
	return p.Status == payment.StatusPending, nil
}

func newEvent(id string, rec *subscription.Record, typ audit.EventType) *audit.Event {
	return &audit.Event{
		ID:            id,
		UserID:        rec.UserID,
		Type:          typ,
		Plan:          rec.CurrentPlan,
		RecurringType: rec.RecurringType,
		TransactionID: rec.TransactionID,
		Timestamp:     rec.UpdatedAt,
	}
}

// asAppError keeps taxonomy errors intact and hides everything else behind
// an internal error.
func asAppError(err error, msg string) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperr.Internal(msg, err)
}
