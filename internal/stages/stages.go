// Package stages resolves the stage definitions a play carries from its
// declared stage scope.
package stages

import (
	"fmt"

	"playbook/internal/domain"
)

const (
	placeholderGuidance  = "Add guidance for this stage."
	placeholderChecklist = "Define checklist items"
)

// Catalog is an ordered set of named default stage definitions.
type Catalog []domain.StageDefinition

// Default returns the built-in catalog. Each call returns a fresh copy.
func Default() Catalog {
	return Catalog{
		{
			Key:            "Discovery",
			Label:          "Discovery",
			Objective:      "Understand the client's current landscape and business drivers.",
			Guidance:       "Focus on open-ended questions. Identify the key stakeholders and the budget holder. Don't pitch solution yet.",
			ChecklistItems: []string{"Identify Executive Sponsor", "Map current technical landscape", "Define success criteria"},
		},
		{
			Key:            "Qualification",
			Label:          "Qualification",
			Objective:      "Confirm budget, authority, need, and timeline (BANT).",
			Guidance:       "Use the TCO calculator to establish a baseline. Ensure technical fit.",
			ChecklistItems: []string{"Verify budget allocation", "Confirm technical feasibility", "Sign NDA"},
		},
		{
			Key:            "Solutioning",
			Label:          "Solutioning",
			Objective:      "Design the technical architecture and migration plan.",
			Guidance:       "Collaborate with the client's architects. Use the standard Reference Architectures.",
			ChecklistItems: []string{"Draft HLD", "Review with Practice Lead", "Present initial solution"},
		},
		{
			Key:            "Validation",
			Label:          "Validation",
			Objective:      "Prove the solution works via POC or deep dive.",
			Guidance:       "Keep scope small and time-boxed.",
			ChecklistItems: []string{"Execute POC", "Sign off on success criteria"},
		},
		{
			Key:            "Closing",
			Label:          "Closing",
			Objective:      "Agree commercial terms and secure the signature.",
			Guidance:       "Align pricing with the agreed scope. Involve legal and procurement early.",
			ChecklistItems: []string{"Submit final proposal", "Negotiate terms", "Obtain signed contract"},
		},
		{
			Key:            "Delivery",
			Label:          "Delivery",
			Objective:      "Handover to delivery team for implementation.",
			Guidance:       "Ensure all documentation is up to date in the repository.",
			ChecklistItems: []string{"Conduct handover workshop", "Finalize SOW"},
		},
	}
}

// Keys returns the catalog keys in catalog order.
func (c Catalog) Keys() []string {
	keys := make([]string, 0, len(c))
	for _, s := range c {
		keys = append(keys, s.Key)
	}
	return keys
}

// Lookup returns the catalog entry for key.
func (c Catalog) Lookup(key string) (domain.StageDefinition, bool) {
	for _, s := range c {
		if s.Key == key {
			return clone(s), true
		}
	}
	return domain.StageDefinition{}, false
}

// Resolve produces the stage list for a play.
//
// Explicit stages win unchanged. Otherwise catalog entries named in scope are
// emitted in catalog order, followed by synthesized stages for unknown keys in
// the order they first appear in scope. Stored plays depend on this ordering.
func (c Catalog) Resolve(scope []string, explicit []domain.StageDefinition) []domain.StageDefinition {
	if len(explicit) > 0 {
		return explicit
	}
	out := []domain.StageDefinition{}
	if len(scope) == 0 {
		return out
	}
	wanted := make(map[string]bool, len(scope))
	for _, key := range scope {
		wanted[key] = true
	}
	known := make(map[string]bool, len(c))
	for _, s := range c {
		known[s.Key] = true
		if wanted[s.Key] {
			out = append(out, clone(s))
		}
	}
	emitted := map[string]bool{}
	for _, key := range scope {
		if known[key] || emitted[key] {
			continue
		}
		emitted[key] = true
		out = append(out, Synthesize(key))
	}
	return out
}

// Resolve uses the built-in catalog.
func Resolve(scope []string, explicit []domain.StageDefinition) []domain.StageDefinition {
	return Default().Resolve(scope, explicit)
}

// Synthesize builds the generic definition used for keys outside the catalog.
func Synthesize(key string) domain.StageDefinition {
	return domain.StageDefinition{
		Key:            key,
		Label:          key,
		Objective:      fmt.Sprintf("Complete the %s stage.", key),
		Guidance:       placeholderGuidance,
		ChecklistItems: []string{placeholderChecklist},
	}
}

// Validate reports duplicate or empty keys in a stage list.
func Validate(defs []domain.StageDefinition) error {
	seen := make(map[string]bool, len(defs))
	for i, d := range defs {
		if d.Key == "" {
			return fmt.Errorf("stages[%d].key is required", i)
		}
		if seen[d.Key] {
			return fmt.Errorf("duplicate stage key %q", d.Key)
		}
		seen[d.Key] = true
	}
	return nil
}

func clone(s domain.StageDefinition) domain.StageDefinition {
	s.ChecklistItems = append([]string(nil), s.ChecklistItems...)
	if s.ChecklistItems == nil {
		s.ChecklistItems = []string{}
	}
	return s
}
