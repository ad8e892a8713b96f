package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 10, 30, 0, 0, time.UTC)
}

func TestComputeEndDate(t *testing.T) {
	tests := []struct {
		name  string
		start time.Time
		rec   Recurrence
		want  time.Time
	}{
		{"monthly", date(2024, time.March, 15), RecurrenceMonthly, date(2024, time.April, 15)},
		{"monthly clamps to leap day", date(2024, time.January, 31), RecurrenceMonthly, date(2024, time.February, 29)},
		{"monthly clamps to feb 28", date(2023, time.January, 31), RecurrenceMonthly, date(2023, time.February, 28)},
		{"monthly crosses year", date(2024, time.December, 31), RecurrenceMonthly, date(2025, time.January, 31)},
		{"quarterly", date(2024, time.January, 15), RecurrenceQuarterly, date(2024, time.April, 15)},
		{"quarterly clamps", date(2024, time.November, 30), RecurrenceQuarterly, date(2025, time.February, 28)},
		{"annual", date(2024, time.June, 1), RecurrenceAnnual, date(2025, time.June, 1)},
		{"annual from leap day", date(2024, time.February, 29), RecurrenceAnnual, date(2025, time.February, 28)},
		{"empty defaults to monthly", date(2024, time.May, 10), "", date(2024, time.June, 10)},
		{"unknown defaults to monthly", date(2024, time.May, 10), "weekly", date(2024, time.June, 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeEndDate(tt.start, tt.rec)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
			assert.True(t, got.After(tt.start))
		})
	}
}

func TestComputeEndDatePreservesLocation(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	start := time.Date(2024, time.January, 31, 23, 45, 0, 0, loc)
	got := ComputeEndDate(start, RecurrenceMonthly)

	assert.Equal(t, loc, got.Location())
	assert.Equal(t, time.Date(2024, time.February, 29, 23, 45, 0, 0, loc), got)
}

func TestComputeEndDateIsPure(t *testing.T) {
	start := date(2024, time.January, 31)
	first := ComputeEndDate(start, RecurrenceQuarterly)
	second := ComputeEndDate(start, RecurrenceQuarterly)
	assert.Equal(t, first, second)
	assert.Equal(t, date(2024, time.January, 31), start)
}

func TestClassify(t *testing.T) {
	now := date(2024, time.February, 1)
	past := TimePtr(now.Add(-time.Hour))
	future := TimePtr(now.Add(time.Hour))

	tests := []struct {
		name string
		rec  *Record
		want SweepClass
	}{
		{"nil record", nil, ClassUnaffected},
		{"active trial due", &Record{Status: StatusActive, IsTrial: true, SubscriptionEndDate: past}, ClassTrialExpiring},
		{"active paid due", &Record{Status: StatusActive, SubscriptionEndDate: past}, ClassRenewalDue},
		{"due exactly now", &Record{Status: StatusActive, SubscriptionEndDate: TimePtr(now)}, ClassRenewalDue},
		{"active not due", &Record{Status: StatusActive, SubscriptionEndDate: future}, ClassUnaffected},
		{"active without end date", &Record{Status: StatusActive}, ClassUnaffected},
		{"pending renewal", &Record{Status: StatusPendingRenewal, SubscriptionEndDate: past}, ClassUnaffected},
		{"cancelled due", &Record{Status: StatusCancelled, SubscriptionEndDate: past}, ClassCancelledExpired},
		{"cancelled not due", &Record{Status: StatusCancelled, SubscriptionEndDate: future}, ClassUnaffected},
		{"none", &Record{SubscriptionEndDate: past}, ClassUnaffected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.rec, now))
		})
	}
}

func TestFullAmount(t *testing.T) {
	assert.Equal(t, 299, (&Record{IsTrial: true, NextBillingAmount: 299, CurrentPlan: PlanMonthly}).FullAmount())
	assert.Equal(t, 99, (&Record{CurrentPlan: PlanMonthly, NextBillingAmount: 1}).FullAmount())
	assert.Equal(t, 499, (&Record{CurrentPlan: "Legacy", RecurringType: RecurrenceAnnual}).FullAmount())
}

func TestCloneDoesNotAlias(t *testing.T) {
	end := date(2024, time.March, 1)
	orig := &Record{UserID: "u1", SubscriptionEndDate: &end, FCMTokens: []string{"a"}}

	c := orig.Clone()
	*c.SubscriptionEndDate = end.AddDate(1, 0, 0)
	c.FCMTokens[0] = "b"

	assert.Equal(t, end, *orig.SubscriptionEndDate)
	assert.Equal(t, "a", orig.FCMTokens[0])
}

func TestEntitlementFor(t *testing.T) {
	ent, ok := EntitlementFor(PlanMonthly)
	require.True(t, ok)
	assert.Equal(t, Entitlement{DailyTemplateLimit: 10, CanEdit: true}, ent)

	ent, ok = EntitlementFor(PlanAnnual)
	require.True(t, ok)
	assert.Equal(t, UnlimitedTemplates, ent.DailyTemplateLimit)

	_, ok = EntitlementFor(PlanPerTemplate)
	assert.False(t, ok)
	_, ok = EntitlementFor("Gold Plan")
	assert.False(t, ok)
}

func TestAmountForFollowsPlanTable(t *testing.T) {
	for _, id := range []string{PlanMonthly, PlanQuarterly, PlanAnnual} {
		p, ok := LookupPlan(id)
		require.True(t, ok)
		assert.Equal(t, p.Amount, AmountFor(p.Recurrence), id)
	}
	monthly, _ := LookupPlan(PlanMonthly)
	assert.Equal(t, monthly.Amount, AmountFor(""))
	assert.Equal(t, monthly.Amount, AmountFor(RecurrenceNone))

	plans["Quarterly Lite"] = Plan{ID: "Quarterly Lite", Recurrence: RecurrenceQuarterly, Amount: 199}
	defer delete(plans, "Quarterly Lite")
	assert.Equal(t, 199, AmountFor(RecurrenceQuarterly))
}
