package services

import (
	"context"
	"log"

	"mtquotesAPI/internal/audit"
	"mtquotesAPI/internal/notification"
	"mtquotesAPI/internal/subscription"
)

// BillingNotifier is told about committed billing transitions. It is best
// effort and never affects billing state.
type BillingNotifier interface {
	NotifyBilling(ctx context.Context, rec *subscription.Record, event audit.EventType)
}

type NotificationService struct {
	dispatcher *NotificationDispatcher
}

func NewNotificationService() *NotificationService {
	return &NotificationService{}
}

// SetPushProvider enables push delivery. Without a provider notifications
// are only logged.
func (s *NotificationService) SetPushProvider(provider PushNotificationProvider) {
	s.dispatcher = NewNotificationDispatcher(provider, 5)
}

func (s *NotificationService) NotifyBilling(ctx context.Context, rec *subscription.Record, event audit.EventType) {
	if rec == nil {
		return
	}
	msg, ok := notification.MessageFor(event, rec.CurrentPlan)
	if !ok {
		return
	}
	if s.dispatcher == nil || len(rec.FCMTokens) == 0 {
		log.Printf("Notification: skipping push for user %s (%s): Tokens=%d, ProviderSet=%v",
			rec.UserID, event, len(rec.FCMTokens), s.dispatcher != nil)
		return
	}

	s.dispatcher.Dispatch(&DispatchJob{
		UserID:  rec.UserID,
		Tokens:  append([]string(nil), rec.FCMTokens...),
		Message: msg,
	})
}

func (s *NotificationService) Stop() {
	if s.dispatcher != nil {
		s.dispatcher.Stop()
	}
}

type noopNotifier struct{}

func (noopNotifier) NotifyBilling(context.Context, *subscription.Record, audit.EventType) {}
