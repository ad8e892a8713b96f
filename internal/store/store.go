package store

import (
	"context"
	"errors"
	"time"

	"mtquotesAPI/internal/audit"
	"mtquotesAPI/internal/payment"
	"mtquotesAPI/internal/subscription"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

const (
	usersCollection        = "users"
	transactionsCollection = "transactions"
)

// Tx is one atomic read-modify-write unit. Implementations may require every
// read to happen before the first write (Firestore does), so callers load
// everything they need up front.
type Tx interface {
	GetSubscription(userID string) (*subscription.Record, error)
	GetPayment(id string) (*payment.Payment, error)
	PutSubscription(rec *subscription.Record) error
	PutPayment(p *payment.Payment) error
	AppendEvent(ev *audit.Event) error
}

// Cursor marks the last record of a sweep page.
type Cursor struct {
	EndDate time.Time
	UserID  string
}

type Page struct {
	Records []*subscription.Record
	Next    *Cursor
}

// Store is the subscription record store and payment ledger. It is the only
// shared mutable resource; every update that depends on a prior read goes
// through RunTransaction.
type Store interface {
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	GetSubscription(ctx context.Context, userID string) (*subscription.Record, error)
	GetPayment(ctx context.Context, id string) (*payment.Payment, error)
	// ListDue pages through records in status whose end date is at or before
	// the given instant, ordered by (end date, user id).
	ListDue(ctx context.Context, status subscription.Status, before time.Time, after *Cursor, limit int) (Page, error)
	Ping(ctx context.Context) error
	Close() error
}

func nextCursor(records []*subscription.Record, limit int) *Cursor {
	if limit <= 0 || len(records) == 0 || len(records) < limit {
		return nil
	}
	last := records[len(records)-1]
	c := &Cursor{UserID: last.UserID}
	if last.SubscriptionEndDate != nil {
		c.EndDate = *last.SubscriptionEndDate
	}
	return c
}
