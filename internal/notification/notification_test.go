package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtquotesAPI/internal/audit"
)

func TestMessageFor(t *testing.T) {
	msg, ok := MessageFor(audit.EventTrialEnded, "Monthly Plan")
	require.True(t, ok)
	assert.Equal(t, "Your trial has ended", msg.Title)
	assert.Equal(t, map[string]string{"type": "billing", "event": "trial_ended", "plan": "Monthly Plan"}, msg.Data)

	msg, ok = MessageFor(audit.EventExpired, "")
	require.True(t, ok)
	assert.NotContains(t, msg.Data, "plan")

	_, ok = MessageFor(audit.EventPurchaseCreated, "Monthly Plan")
	assert.False(t, ok)
}

func TestMessageForDoesNotShareData(t *testing.T) {
	a, _ := MessageFor(audit.EventCancel, "Annual Plan")
	b, _ := MessageFor(audit.EventCancel, "")
	a.Data["extra"] = "x"
	assert.NotContains(t, b.Data, "extra")
}
