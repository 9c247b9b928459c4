package constraint

import (
	"fmt"
	"strings"
)

// ReinjectEvery is the prompt re-injection cadence: the constraint block
// is rendered into the system prompt on every turn number divisible by
// this value, in addition to every turn where constraints are active.
// The cadence keeps the instruction alive under truncation pressure in
// models that lose far-back system content.
const ReinjectEvery = 5

// ShouldInject reports whether the constraint block belongs in the
// system prompt for this turn. Reference behavior: inject when any
// constraint is active, or on the fixed cadence regardless.
func ShouldInject(turnNumber int, active []Constraint) bool {
	return len(active) > 0 || turnNumber%ReinjectEvery == 0
}

// BuildPrompt renders active constraints into an instruction block,
// grouped by type. Empty input yields an empty string, no block at
// all, not an empty section.
func BuildPrompt(constraints []Constraint) string {
	if len(constraints) == 0 {
		return ""
	}

	var preferences, rules, corrections, bans []Constraint
	for _, c := range constraints {
		switch c.Type {
		case TypePreference:
			preferences = append(preferences, c)
		case TypeRule:
			rules = append(rules, c)
		case TypeCorrection:
			corrections = append(corrections, c)
		case TypeBan:
			bans = append(bans, c)
		}
	}

	parts := []string{"\n\nCONSTRAINTS AND PREFERENCES (strictly follow):"}

	if len(preferences) > 0 {
		parts = append(parts, "\nPREFERENCES:")
		for _, pref := range preferences {
			switch pref.Key {
			case KeyAnswerStyle:
				parts = append(parts, "- Answer style: Short, structured, bullet points")
			case KeyTechnicalDepth:
				parts = append(parts, "- Technical depth: Minimal unless explicitly asked")
			default:
				if v, ok := pref.Value.(PreferenceValue); ok {
					parts = append(parts, fmt.Sprintf("- %s: %s%s", pref.Key, v.Style, v.Depth))
				}
			}
		}
	}

	if len(rules) > 0 {
		parts = append(parts, "\nRULES:")
		for _, rule := range rules {
			v, ok := rule.Value.(RuleValue)
			if !ok {
				continue
			}
			switch rule.Key {
			case KeyMetricsDefinition:
				parts = append(parts, fmt.Sprintf(
					"- When user says 'metrics', ONLY refer to: %s",
					strings.Join(v.AllowedMetrics, ", ")))
			case KeyDashboardDefinition:
				dashboardType := v.DashboardType
				if dashboardType == "" {
					dashboardType = "web"
				}
				parts = append(parts, fmt.Sprintf(
					"- When user says 'dashboard', it always means %s dashboard, not mobile",
					dashboardType))
			}
		}
	}

	if len(corrections) > 0 {
		parts = append(parts, "\nCORRECTIONS (use these values):")
		for _, corr := range corrections {
			v, ok := corr.Value.(CorrectionValue)
			if !ok || v.OldValue == "" || v.NewValue == "" {
				continue
			}
			parts = append(parts, fmt.Sprintf("- Use %s (corrected from %s)", v.NewValue, v.OldValue))
		}
	}

	if len(bans) > 0 {
		parts = append(parts, "\nBANS (do not suggest):")
		for _, ban := range bans {
			v, ok := ban.Value.(BanValue)
			if !ok || v.BannedItem == "" {
				continue
			}
			parts = append(parts, fmt.Sprintf("- Do NOT suggest or mention: %s", v.BannedItem))
		}
	}

	parts = append(parts, "\nCRITICAL: Do not violate any constraints above.")

	return strings.Join(parts, "\n")
}
