package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"mtquotesAPI/internal/audit"
	"mtquotesAPI/internal/payment"
	"mtquotesAPI/internal/subscription"
)

// MemoryStore keeps everything in process. Transactions are serialized and
// staged, so a failing transaction leaves no partial writes. It backs tests
// and STORE_BACKEND=memory.
type MemoryStore struct {
	mu       sync.Mutex
	subs     map[string]*subscription.Record
	payments map[string]*payment.Payment
	events   []*audit.Event
	eventIDs map[string]bool

	commitErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subs:     make(map[string]*subscription.Record),
		payments: make(map[string]*payment.Payment),
		eventIDs: make(map[string]bool),
	}
}

func (s *MemoryStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{
		store:    s,
		subs:     make(map[string]*subscription.Record),
		payments: make(map[string]*payment.Payment),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	if s.commitErr != nil {
		err := s.commitErr
		s.commitErr = nil
		return fmt.Errorf("commit: %w", err)
	}

	for id, rec := range tx.subs {
		s.subs[id] = rec
	}
	for id, p := range tx.payments {
		s.payments[id] = p
	}
	for _, ev := range tx.events {
		s.events = append(s.events, ev)
		s.eventIDs[ev.ID] = true
	}
	return nil
}

// FailNextCommit makes the next transaction that reaches commit fail with
// err and discard its writes.
func (s *MemoryStore) FailNextCommit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErr = err
}

func (s *MemoryStore) GetSubscription(ctx context.Context, userID string) (*subscription.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.subs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) GetPayment(ctx context.Context, id string) (*payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) ListDue(ctx context.Context, status subscription.Status, before time.Time, after *Cursor, limit int) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*subscription.Record
	for _, rec := range s.subs {
		if rec.Status.Normalize() != status || !rec.IsDue(before) {
			continue
		}
		if after != nil && !cursorLess(after, rec) {
			continue
		}
		matched = append(matched, rec.Clone())
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.SubscriptionEndDate.Equal(*b.SubscriptionEndDate) {
			return a.SubscriptionEndDate.Before(*b.SubscriptionEndDate)
		}
		return a.UserID < b.UserID
	})

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return Page{Records: matched, Next: nextCursor(matched, limit)}, nil
}

// cursorLess reports whether rec sorts strictly after the cursor.
func cursorLess(c *Cursor, rec *subscription.Record) bool {
	end := *rec.SubscriptionEndDate
	if !end.Equal(c.EndDate) {
		return end.After(c.EndDate)
	}
	return rec.UserID > c.UserID
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close() error {
	return nil
}

// PutSubscription writes a record outside any transaction; used for seeding.
func (s *MemoryStore) PutSubscription(rec *subscription.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[rec.UserID] = rec.Clone()
}

// PutPayment writes a ledger entry outside any transaction; used for seeding.
func (s *MemoryStore) PutPayment(p *payment.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[p.ID] = p.Clone()
}

func (s *MemoryStore) Payments() []*payment.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*payment.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *MemoryStore) Events() []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Event, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, *ev)
	}
	return out
}

type memoryTx struct {
	store    *MemoryStore
	subs     map[string]*subscription.Record
	payments map[string]*payment.Payment
	events   []*audit.Event
}

func (t *memoryTx) GetSubscription(userID string) (*subscription.Record, error) {
	if rec, ok := t.subs[userID]; ok {
		return rec.Clone(), nil
	}
	rec, ok := t.store.subs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (t *memoryTx) GetPayment(id string) (*payment.Payment, error) {
	if p, ok := t.payments[id]; ok {
		return p.Clone(), nil
	}
	p, ok := t.store.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (t *memoryTx) PutSubscription(rec *subscription.Record) error {
	if rec.UserID == "" {
		return fmt.Errorf("subscription record without user id")
	}
	t.subs[rec.UserID] = rec.Clone()
	return nil
}

func (t *memoryTx) PutPayment(p *payment.Payment) error {
	if p.ID == "" {
		return fmt.Errorf("payment without id")
	}
	t.payments[p.ID] = p.Clone()
	return nil
}

func (t *memoryTx) AppendEvent(ev *audit.Event) error {
	if t.store.eventIDs[ev.ID] {
		return fmt.Errorf("event %s: %w", ev.ID, ErrAlreadyExists)
	}
	for _, staged := range t.events {
		if staged.ID == ev.ID {
			return fmt.Errorf("event %s: %w", ev.ID, ErrAlreadyExists)
		}
	}
	e := *ev
	t.events = append(t.events, &e)
	return nil
}
