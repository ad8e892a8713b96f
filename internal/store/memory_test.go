package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtquotesAPI/internal/audit"
	"mtquotesAPI/internal/payment"
	"mtquotesAPI/internal/subscription"
)

func dueRecord(id string, status subscription.Status, end time.Time) *subscription.Record {
	return &subscription.Record{UserID: id, Status: status, SubscriptionEndDate: &end}
}

func TestMemoryStoreTransactionIsAllOrNothing(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.PutSubscription(&subscription.Record{UserID: "u1", Points: 1})

	boom := errors.New("boom")
	err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		rec, err := tx.GetSubscription("u1")
		require.NoError(t, err)
		rec.Points = 100
		require.NoError(t, tx.PutSubscription(rec))
		require.NoError(t, tx.PutPayment(&payment.Payment{ID: "p1", UserID: "u1"}))
		require.NoError(t, tx.AppendEvent(&audit.Event{ID: "e1", UserID: "u1", Type: audit.EventPointsCredited}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	rec, err := s.GetSubscription(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Points)
	_, err = s.GetPayment(ctx, "p1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, s.Events())
}

func TestMemoryStoreFailNextCommit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.FailNextCommit(errors.New("contention"))
	err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.PutSubscription(&subscription.Record{UserID: "u1"})
	})
	require.Error(t, err)
	_, err = s.GetSubscription(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.PutSubscription(&subscription.Record{UserID: "u1"})
	})
	require.NoError(t, err)
	_, err = s.GetSubscription(ctx, "u1")
	assert.NoError(t, err)
}

func TestMemoryStoreReadsOwnWrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		require.NoError(t, tx.PutPayment(&payment.Payment{ID: "p1", Status: payment.StatusPending}))
		p, err := tx.GetPayment("p1")
		require.NoError(t, err)
		assert.Equal(t, payment.StatusPending, p.Status)

		p.Status = payment.StatusSuccess
		got, err := tx.GetPayment("p1")
		require.NoError(t, err)
		assert.Equal(t, payment.StatusPending, got.Status, "reads return copies")
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStoreEventsAreWriteOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	ev := &audit.Event{ID: "e1", UserID: "u1", Type: audit.EventCancel}

	require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.AppendEvent(ev)
	}))
	err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.AppendEvent(ev)
	})
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.Len(t, s.Events(), 1)
}

func TestMemoryStoreListDue(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	s.PutSubscription(dueRecord("c", subscription.StatusActive, now.Add(-time.Hour)))
	s.PutSubscription(dueRecord("a", subscription.StatusActive, now.Add(-time.Hour)))
	s.PutSubscription(dueRecord("b", subscription.StatusActive, now.Add(-2*time.Hour)))
	s.PutSubscription(dueRecord("d", subscription.StatusActive, now))
	s.PutSubscription(dueRecord("future", subscription.StatusActive, now.Add(time.Second)))
	s.PutSubscription(dueRecord("gone", subscription.StatusCancelled, now.Add(-time.Hour)))
	s.PutSubscription(&subscription.Record{UserID: "no-end", Status: subscription.StatusActive})

	var ids []string
	var cursor *Cursor
	pages := 0
	for {
		page, err := s.ListDue(ctx, subscription.StatusActive, now, cursor, 2)
		require.NoError(t, err)
		pages++
		for _, rec := range page.Records {
			ids = append(ids, rec.UserID)
		}
		if page.Next == nil {
			break
		}
		cursor = page.Next
	}

	assert.Equal(t, []string{"b", "a", "c", "d"}, ids)
	assert.Equal(t, 3, pages, "a full last page needs one more empty read")

	page, err := s.ListDue(ctx, subscription.StatusCancelled, now, nil, 0)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Nil(t, page.Next)
}

func TestNextCursor(t *testing.T) {
	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := make([]*subscription.Record, 3)
	for i := range records {
		records[i] = dueRecord(fmt.Sprintf("u%d", i), subscription.StatusActive, end)
	}

	assert.Nil(t, nextCursor(records, 0))
	assert.Nil(t, nextCursor(records, 5))
	assert.Nil(t, nextCursor(nil, 3))

	c := nextCursor(records, 3)
	require.NotNil(t, c)
	assert.Equal(t, "u2", c.UserID)
	assert.True(t, c.EndDate.Equal(end))
}
