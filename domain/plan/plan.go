// Package plan provides plan value types and pure functions.
package plan

// Plan is a named tier that fixes an account's quota at issuance (immutable value type).
type Plan struct {
	ID    string
	Name  string
	Quota int64
}

// Plan identifiers shipped by default.
const (
	Basic   = "basic"
	Premium = "premium"
)

// Defaults returns the built-in plan table.
func Defaults() []Plan {
	return []Plan{
		{ID: Basic, Name: "Basic", Quota: 1000},
		{ID: Premium, Name: "Premium", Quota: 10000},
	}
}

// Find returns the plan with the given id.
// This is a PURE function.
func Find(plans []Plan, id string) (Plan, bool) {
	for _, p := range plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}
