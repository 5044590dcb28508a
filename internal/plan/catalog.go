package plan

import "sort"

// Definition describes a billing plan and the entitlements it grants.
type Definition struct {
	Code         string
	Name         string
	Seats        int64 // purchased seat limit, 0 = unlimited
	Entitlements map[string]string
}

var catalog = map[string]Definition{
	"starter": {
		Code:  "starter",
		Name:  "Starter",
		Seats: 5,
		Entitlements: map[string]string{
			"features.ai_assistant":      "false",
			"limits.projects":            "10",
			"limits.api_calls_per_month": "1000",
		},
	},
	"pro": {
		Code:  "pro",
		Name:  "Professional",
		Seats: 20,
		Entitlements: map[string]string{
			"features.ai_assistant":      "true",
			"limits.projects":            "100",
			"limits.api_calls_per_month": "10000",
		},
	},
	"enterprise": {
		Code:  "enterprise",
		Name:  "Enterprise",
		Seats: 0,
		Entitlements: map[string]string{
			"features.ai_assistant":      "true",
			"limits.projects":            "unlimited",
			"limits.api_calls_per_month": "unlimited",
		},
	},
}

// Get returns the plan definition for a plan code
func Get(code string) (Definition, bool) {
	def, ok := catalog[code]
	return def, ok
}

// DefaultCode is the plan assigned to newly created tenants
const DefaultCode = "starter"

// Keys returns the feature keys of a plan in a stable order
func (d Definition) Keys() []string {
	keys := make([]string, 0, len(d.Entitlements))
	for k := range d.Entitlements {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
