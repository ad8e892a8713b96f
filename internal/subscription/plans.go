package subscription

const (
	PlanMonthly     = "Monthly Plan"
	PlanQuarterly   = "Quarterly Plan"
	PlanAnnual      = "Annual Plan"
	PlanPerTemplate = "Per Template"
)

const (
	UnlimitedTemplates = -1

	// PerTemplatePoints is credited for every successful one-time purchase.
	PerTemplatePoints = 20
)

// Entitlement is what a plan unlocks on the user record.
type Entitlement struct {
	DailyTemplateLimit int
	CanEdit            bool
}

type Plan struct {
	ID         string
	Recurrence Recurrence
	Amount     int
	OneTime    bool
	// Entitlement is nil when the plan grants no template entitlements.
	Entitlement *Entitlement
}

// Adding a plan is a data change here; nothing else branches on plan names.
var plans = map[string]Plan{
	PlanMonthly: {
		ID:          PlanMonthly,
		Recurrence:  RecurrenceMonthly,
		Amount:      99,
		Entitlement: &Entitlement{DailyTemplateLimit: 10, CanEdit: true},
	},
	PlanQuarterly: {
		ID:          PlanQuarterly,
		Recurrence:  RecurrenceQuarterly,
		Amount:      299,
		Entitlement: &Entitlement{DailyTemplateLimit: UnlimitedTemplates, CanEdit: true},
	},
	PlanAnnual: {
		ID:          PlanAnnual,
		Recurrence:  RecurrenceAnnual,
		Amount:      499,
		Entitlement: &Entitlement{DailyTemplateLimit: UnlimitedTemplates, CanEdit: true},
	},
	PlanPerTemplate: {
		ID:      PlanPerTemplate,
		Amount:  19,
		OneTime: true,
	},
}

func LookupPlan(id string) (Plan, bool) {
	p, ok := plans[id]
	return p, ok
}

// EntitlementFor returns false for unknown plans and plans without
// entitlements; callers leave the record's entitlements untouched then.
func EntitlementFor(planID string) (Entitlement, bool) {
	p, ok := plans[planID]
	if !ok || p.Entitlement == nil {
		return Entitlement{}, false
	}
	return *p.Entitlement, true
}

// AmountFor is the list price of one period of the given recurrence, taken
// from the cheapest recurring plan billed that way. Unknown recurrences price
// as monthly.
func AmountFor(r Recurrence) int {
	switch r {
	case RecurrenceQuarterly, RecurrenceAnnual:
	default:
		r = RecurrenceMonthly
	}

	amount := 0
	for _, p := range plans {
		if p.OneTime || p.Recurrence != r {
			continue
		}
		if amount == 0 || p.Amount < amount {
			amount = p.Amount
		}
	}
	return amount
}
