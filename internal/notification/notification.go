package notification

import (
	"mtquotesAPI/internal/audit"
)

// Message is a push payload. Data values are strings because FCM only
// carries string maps.
type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

var messages = map[audit.EventType]Message{
	audit.EventPaymentSuccess: {Title: "Payment received", Body: "Your plan is active."},
	audit.EventPaymentFailed:  {Title: "Payment failed", Body: "We could not process your payment."},
	audit.EventTrialEnded:     {Title: "Your trial has ended", Body: "Complete your payment to keep your plan."},
	audit.EventRenewalDue:     {Title: "Renewal due", Body: "Your subscription is up for renewal."},
	audit.EventExpired:        {Title: "Subscription ended", Body: "Your subscription has expired."},
	audit.EventCancel:         {Title: "Subscription cancelled", Body: "You keep access until the end of the period."},
}

// MessageFor returns the push message for a billing event. ok is false for
// events users are not notified about.
func MessageFor(event audit.EventType, plan string) (Message, bool) {
	m, ok := messages[event]
	if !ok {
		return Message{}, false
	}
	m.Data = map[string]string{
		"type":  "billing",
		"event": string(event),
	}
	if plan != "" {
		m.Data["plan"] = plan
	}
	return m, true
}
