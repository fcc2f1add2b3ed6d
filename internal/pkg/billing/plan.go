package billing

import (
	"strings"

	"github.com/ManuelReschke/CreditFox/internal/pkg/apperr"
)

const (
	PlanBasic    = "Basic"
	PlanAdvanced = "Advanced"
	PlanBusiness = "Business"
)

// Plan is a purchasable credit pack. Price is in major currency units.
type Plan struct {
	ID      string `json:"id"`
	Credits int64  `json:"credits"`
	Price   int64  `json:"price"`
}

var catalog = []Plan{
	{ID: PlanBasic, Credits: 100, Price: 10},
	{ID: PlanAdvanced, Credits: 500, Price: 50},
	{ID: PlanBusiness, Credits: 5000, Price: 250},
}

// Plans returns a copy of the catalog.
func Plans() []Plan {
	out := make([]Plan, len(catalog))
	copy(out, catalog)
	return out
}

// LookupPlan matches id case-insensitively and returns the canonical plan.
func LookupPlan(id string) (Plan, error) {
	normalized := strings.TrimSpace(id)
	for _, p := range catalog {
		if strings.EqualFold(p.ID, normalized) {
			return p, nil
		}
	}
	return Plan{}, apperr.Newf(apperr.Validation, "Invalid plan: %q", normalized)
}
