// Package constraint models user-stated constraints (preferences,
// rules, corrections, facts, and bans) that must survive arbitrarily
// long conversations. The package covers detection (scanning recent
// text for constraint-signaling language), the typed value payloads
// persisted alongside each constraint, and rendering active constraints
// into a prompt block.
package constraint

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Type classifies a constraint.
type Type string

const (
	// TypePreference is style guidance (answer format, verbosity).
	TypePreference Type = "preference"

	// TypeRule is a hard definitional constraint ("when the user says X,
	// it means Y").
	TypeRule Type = "rule"

	// TypeCorrection replaces a previously stated value with a new one.
	TypeCorrection Type = "correction"

	// TypeFact is a standalone user-asserted fact.
	TypeFact Type = "fact"

	// TypeBan is an explicit prohibition.
	TypeBan Type = "ban"
)

// Well-known constraint keys. A key names the slot a constraint
// occupies; at most one constraint per (conversation, key) is active at
// a time.
const (
	KeyNumericFact         = "numeric_fact"
	KeyAnswerStyle         = "answer_style"
	KeyTechnicalDepth      = "technical_depth"
	KeyMetricsDefinition   = "metrics_definition"
	KeyDashboardDefinition = "dashboard_definition"
	KeyTechBan             = "tech_ban"
)

// Value is the typed payload of a constraint. Each constraint type has
// a known payload shape; unknown types fall back to RawValue.
type Value interface {
	isValue()
}

// PreferenceValue is the payload for TypePreference constraints.
type PreferenceValue struct {
	Style string `json:"style,omitempty"`
	Depth string `json:"depth,omitempty"`
}

// RuleValue is the payload for TypeRule constraints.
type RuleValue struct {
	AllowedMetrics []string `json:"allowed_metrics,omitempty"`
	DashboardType  string   `json:"type,omitempty"`
}

// CorrectionValue is the payload for TypeCorrection constraints.
type CorrectionValue struct {
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// FactValue is the payload for TypeFact constraints.
type FactValue struct {
	Fields map[string]any `json:"fields"`
}

// BanValue is the payload for TypeBan constraints.
type BanValue struct {
	BannedItem string `json:"banned_item"`
}

// RawValue carries the payload of a constraint type this version does
// not know. Kept as an open map for forward compatibility.
type RawValue map[string]any

func (PreferenceValue) isValue() {}
func (RuleValue) isValue()       {}
func (CorrectionValue) isValue() {}
func (FactValue) isValue()       {}
func (BanValue) isValue()        {}
func (RawValue) isValue()        {}

// DecodeValue decodes a JSON payload into the typed value for the given
// constraint type. Unknown types decode into RawValue.
func DecodeValue(t Type, raw []byte) (Value, error) {
	var err error
	switch t {
	case TypePreference:
		var v PreferenceValue
		err = json.Unmarshal(raw, &v)
		return v, err
	case TypeRule:
		var v RuleValue
		err = json.Unmarshal(raw, &v)
		return v, err
	case TypeCorrection:
		var v CorrectionValue
		err = json.Unmarshal(raw, &v)
		return v, err
	case TypeFact:
		var v FactValue
		err = json.Unmarshal(raw, &v)
		return v, err
	case TypeBan:
		var v BanValue
		err = json.Unmarshal(raw, &v)
		return v, err
	default:
		var v RawValue
		err = json.Unmarshal(raw, &v)
		return v, err
	}
}

// EncodeValue marshals a typed value to its JSON payload.
func EncodeValue(v Value) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("constraint value is nil")
	}
	return json.Marshal(v)
}

// Candidate is an extracted, not-yet-persisted constraint. It has no ID;
// the store assigns one when the candidate is persisted.
type Candidate struct {
	ConversationID uuid.UUID
	Type           Type
	Key            string
	Value          Value
	TurnNumber     int
}

// Equivalent reports whether two candidates assert the same thing:
// same type, same key, same payload.
func (c Candidate) Equivalent(other Candidate) bool {
	return c.Type == other.Type &&
		c.Key == other.Key &&
		reflect.DeepEqual(c.Value, other.Value)
}

// Supersedes reports whether storing this candidate must deactivate a
// prior active constraint with the same key. Corrections replace the
// fact slot they name; the other keyed types share the same
// one-active-per-key invariant.
func (c Candidate) Supersedes() bool {
	return c.Type == TypeCorrection
}

// Constraint is a persisted constraint record.
type Constraint struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	Type           Type       `json:"type"`
	Key            string     `json:"key"`
	Value          Value      `json:"value"`
	TurnNumber     int        `json:"turn_number"`
	SupersededBy   *uuid.UUID `json:"superseded_by,omitempty"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
}
