package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mtquotesAPI/internal/audit"
	"mtquotesAPI/internal/store"
	"mtquotesAPI/internal/subscription"
)

var testNow = time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)

type notifyCall struct {
	userID string
	event  audit.EventType
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (n *recordingNotifier) NotifyBilling(_ context.Context, rec *subscription.Record, event audit.EventType) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{userID: rec.UserID, event: event})
}

func (n *recordingNotifier) events() []audit.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]audit.EventType, 0, len(n.calls))
	for _, c := range n.calls {
		out = append(out, c.event)
	}
	return out
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%03d", prefix, n)
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func eventTypes(events []audit.Event) []audit.EventType {
	out := make([]audit.EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func newTestPaymentService(st *store.MemoryStore, n BillingNotifier) *PaymentService {
	svc := NewPaymentService(st, n, 7*24*time.Hour, 1)
	svc.now = fixedClock(testNow)
	svc.newID = sequentialIDs("pay")
	return svc
}

func newTestRenewalService(st *store.MemoryStore, n BillingNotifier, pageSize int) *RenewalService {
	svc := NewRenewalService(st, nil, n, pageSize, time.Minute)
	svc.now = fixedClock(testNow)
	svc.newID = sequentialIDs("renew")
	return svc
}

func newTestSubscriptionService(st *store.MemoryStore, n BillingNotifier) *SubscriptionService {
	svc := NewSubscriptionService(st, n)
	svc.now = fixedClock(testNow)
	svc.newID = sequentialIDs("sub")
	return svc
}
