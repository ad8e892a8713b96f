package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtquotesAPI/internal/audit"
	"mtquotesAPI/internal/payment"
	"mtquotesAPI/internal/subscription"
)

func newTestPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	require.NoError(t, Migrate(ctx, url))

	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	s := NewPostgresStore(pool)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	s := newTestPostgresStore(t)
	ctx := context.Background()

	userID := "pg-" + uuid.NewString()
	txID := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)
	end := now.Add(-time.Hour)

	err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.PutSubscription(&subscription.Record{
			UserID:              userID,
			Status:              subscription.StatusActive,
			CurrentPlan:         subscription.PlanMonthly,
			RecurringType:       subscription.RecurrenceMonthly,
			SubscriptionEndDate: &end,
			TransactionID:       txID,
			UpdatedAt:           now,
		}); err != nil {
			return err
		}
		if err := tx.PutPayment(&payment.Payment{
			ID:        txID,
			UserID:    userID,
			PlanType:  subscription.PlanMonthly,
			Amount:    99,
			Status:    payment.StatusPending,
			Source:    payment.SourceRenewal,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return err
		}
		return tx.AppendEvent(&audit.Event{ID: uuid.NewString(), UserID: userID, Type: audit.EventRenewalDue, Timestamp: now})
	})
	require.NoError(t, err)

	rec, err := s.GetSubscription(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, rec.Status)
	assert.True(t, rec.SubscriptionEndDate.Equal(end))

	p, err := s.GetPayment(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, p.Status)
	assert.Equal(t, payment.SourceRenewal, p.Source)

	// a second pending charge for the same user violates the partial index
	err = s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.PutPayment(&payment.Payment{ID: uuid.NewString(), UserID: userID, Status: payment.StatusPending, CreatedAt: now, UpdatedAt: now})
	})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = s.GetSubscription(ctx, "pg-missing-"+uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}
