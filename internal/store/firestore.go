package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"mtquotesAPI/internal/audit"
	"mtquotesAPI/internal/payment"
	"mtquotesAPI/internal/subscription"
)

// FirestoreStore keeps subscription fields on the users collection and the
// ledger in transactions, matching the mobile client's document layout.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	// The client retries fn on contention, so fn must rebuild its writes from
	// the reads of each attempt.
	return s.client.RunTransaction(ctx, func(ctx context.Context, t *firestore.Transaction) error {
		return fn(ctx, &firestoreTx{client: s.client, tx: t})
	})
}

func (s *FirestoreStore) GetSubscription(ctx context.Context, userID string) (*subscription.Record, error) {
	snap, err := s.client.Collection(usersCollection).Doc(userID).Get(ctx)
	if err != nil {
		return nil, translateFirestoreErr(err)
	}
	return decodeRecord(snap)
}

func (s *FirestoreStore) GetPayment(ctx context.Context, id string) (*payment.Payment, error) {
	snap, err := s.client.Collection(transactionsCollection).Doc(id).Get(ctx)
	if err != nil {
		return nil, translateFirestoreErr(err)
	}
	return decodePayment(snap)
}

func (s *FirestoreStore) ListDue(ctx context.Context, st subscription.Status, before time.Time, after *Cursor, limit int) (Page, error) {
	q := s.client.Collection(usersCollection).
		Where("subscriptionStatus", "==", string(st)).
		Where("subscriptionEndDate", "<=", before).
		OrderBy("subscriptionEndDate", firestore.Asc).
		OrderBy(firestore.DocumentID, firestore.Asc)
	if after != nil {
		q = q.StartAfter(after.EndDate, after.UserID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var records []*subscription.Record
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return Page{}, fmt.Errorf("failed to list due subscriptions: %w", err)
		}
		rec, err := decodeRecord(doc)
		if err != nil {
			return Page{}, err
		}
		records = append(records, rec)
	}
	return Page{Records: records, Next: nextCursor(records, limit)}, nil
}

func (s *FirestoreStore) Ping(ctx context.Context) error {
	iter := s.client.Collection(usersCollection).Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return err
	}
	return nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

type firestoreTx struct {
	client *firestore.Client
	tx     *firestore.Transaction
}

func (t *firestoreTx) GetSubscription(userID string) (*subscription.Record, error) {
	snap, err := t.tx.Get(t.client.Collection(usersCollection).Doc(userID))
	if err != nil {
		return nil, translateFirestoreErr(err)
	}
	return decodeRecord(snap)
}

func (t *firestoreTx) GetPayment(id string) (*payment.Payment, error) {
	snap, err := t.tx.Get(t.client.Collection(transactionsCollection).Doc(id))
	if err != nil {
		return nil, translateFirestoreErr(err)
	}
	return decodePayment(snap)
}

// PutSubscription merges only billing fields so profile, referral and device
// data on the same document survive.
func (t *firestoreTx) PutSubscription(rec *subscription.Record) error {
	ref := t.client.Collection(usersCollection).Doc(rec.UserID)
	return t.tx.Set(ref, recordFields(rec), firestore.MergeAll)
}

func (t *firestoreTx) PutPayment(p *payment.Payment) error {
	ref := t.client.Collection(transactionsCollection).Doc(p.ID)
	return t.tx.Set(ref, p)
}

func (t *firestoreTx) AppendEvent(ev *audit.Event) error {
	ref := t.client.Collection(ev.Collection()).Doc(ev.ID)
	return t.tx.Create(ref, ev)
}

func recordFields(rec *subscription.Record) map[string]interface{} {
	return map[string]interface{}{
		"subscriptionStatus":    string(rec.Status.Normalize()),
		"currentPlan":           rec.CurrentPlan,
		"recurringType":         nullableString(string(rec.RecurringType)),
		"isTrial":               rec.IsTrial,
		"subscriptionStartDate": nullableTime(rec.SubscriptionStartDate),
		"subscriptionEndDate":   nullableTime(rec.SubscriptionEndDate),
		"points":                rec.Points,
		"availableTemplates":    rec.AvailableTemplates,
		"dailyTemplateLimit":    rec.DailyTemplateLimit,
		"canEdit":               rec.CanEdit,
		"paymentDue":            rec.PaymentDue,
		"paymentDueDate":        nullableTime(rec.PaymentDueDate),
		"transactionId":         rec.TransactionID,
		"nextBillingAmount":     rec.NextBillingAmount,
		"cancellationDate":      nullableTime(rec.CancellationDate),
		"lastPaymentDate":       nullableTime(rec.LastPaymentDate),
		"lastPaymentAmount":     rec.LastPaymentAmount,
		"updatedAt":             rec.UpdatedAt,
	}
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func decodeRecord(snap *firestore.DocumentSnapshot) (*subscription.Record, error) {
	var rec subscription.Record
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode user %s: %w", snap.Ref.ID, err)
	}
	rec.UserID = snap.Ref.ID
	rec.Status = rec.Status.Normalize()
	return &rec, nil
}

func decodePayment(snap *firestore.DocumentSnapshot) (*payment.Payment, error) {
	var p payment.Payment
	if err := snap.DataTo(&p); err != nil {
		return nil, fmt.Errorf("failed to decode transaction %s: %w", snap.Ref.ID, err)
	}
	p.ID = snap.Ref.ID
	return &p, nil
}

func translateFirestoreErr(err error) error {
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return err
}
