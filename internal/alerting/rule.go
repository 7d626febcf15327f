// Package alerting provides the declarative alert-rule engine.
package alerting

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sentinel-engine/internal/schema"
)

// Operator names for rule conditions.
const (
	OpEquals      = "equals"
	OpContains    = "contains"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpInRange     = "in_range"
)

// ActionType identifies the kind of action a rule triggers.
type ActionType string

const (
	ActionEmail       ActionType = "email"
	ActionWebhook     ActionType = "webhook"
	ActionBlockUser   ActionType = "block_user"
	ActionLockAccount ActionType = "lock_account"
	ActionRequireMFA  ActionType = "require_mfa"
)

// Condition is one field match within a rule. Field names severity, userId,
// and ipAddress resolve to the matching event fields; anything else is
// looked up in the event metadata.
type Condition struct {
	Field    string `yaml:"field" json:"field"`
	Operator string `yaml:"operator" json:"operator"`
	Value    any    `yaml:"value" json:"value"`
}

// Action is one action executed when a rule fires. Config is opaque to the
// engine and handed to the executor unchanged.
type Action struct {
	Type   ActionType     `yaml:"type" json:"type"`
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// Rule is a declarative trigger evaluated against every incoming event.
// LastTriggered is the only field mutated after creation.
type Rule struct {
	ID          string             `yaml:"id" json:"id"`
	Name        string             `yaml:"name" json:"name"`
	Description string             `yaml:"description,omitempty" json:"description,omitempty"`
	EventTypes  []schema.EventType `yaml:"event_types" json:"event_types"`
	Conditions  []Condition        `yaml:"conditions,omitempty" json:"conditions,omitempty"`
	Severity    schema.Severity    `yaml:"severity" json:"severity"`
	Enabled     bool               `yaml:"enabled" json:"enabled"`
	Cooldown    time.Duration      `yaml:"cooldown" json:"cooldown"`

	LastTriggered *time.Time `yaml:"-" json:"last_triggered,omitempty"`

	Actions []Action `yaml:"actions,omitempty" json:"actions,omitempty"`
}

// Validate validates the rule definition.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule ID is required")
	}
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if len(r.EventTypes) == 0 {
		return fmt.Errorf("rule %s: at least one event type is required", r.ID)
	}
	for _, t := range r.EventTypes {
		if !t.IsValid() {
			return fmt.Errorf("rule %s: unknown event type %q", r.ID, t)
		}
	}
	if r.Cooldown < 0 {
		return fmt.Errorf("rule %s: cooldown must not be negative", r.ID)
	}
	for i, cond := range r.Conditions {
		if cond.Field == "" {
			return fmt.Errorf("rule %s: condition %d: field is required", r.ID, i)
		}
		switch cond.Operator {
		case OpEquals, OpContains, OpGreaterThan, OpLessThan, OpInRange:
		default:
			return fmt.Errorf("rule %s: condition %d: invalid operator %q", r.ID, i, cond.Operator)
		}
	}
	return nil
}

// MatchesType reports whether the rule applies to the event type.
func (r *Rule) MatchesType(t schema.EventType) bool {
	for _, et := range r.EventTypes {
		if et == t {
			return true
		}
	}
	return false
}

// Match checks whether an event value satisfies the condition.
func (c *Condition) Match(eventValue any) bool {
	switch c.Operator {
	case OpEquals:
		return matchEquals(eventValue, c.Value)
	case OpContains:
		return matchContains(eventValue, c.Value)
	case OpGreaterThan:
		ev, exp, ok := bothNumeric(eventValue, c.Value)
		return ok && ev > exp
	case OpLessThan:
		ev, exp, ok := bothNumeric(eventValue, c.Value)
		return ok && ev < exp
	case OpInRange:
		return matchInRange(eventValue, c.Value)
	}
	return false
}

func matchEquals(eventValue, expected any) bool {
	if ev, exp, ok := bothNumeric(eventValue, expected); ok {
		return ev == exp
	}
	if evs, ok := eventValue.(string); ok {
		if exps, ok := expected.(string); ok {
			return evs == exps
		}
	}
	return eventValue == expected
}

func matchContains(eventValue, expected any) bool {
	evs, ok1 := eventValue.(string)
	exps, ok2 := expected.(string)
	if !ok1 || !ok2 {
		return false
	}
	return strings.Contains(evs, exps)
}

func matchInRange(eventValue, expected any) bool {
	ev, ok := toFloat64(eventValue)
	if !ok {
		return false
	}

	var lo, hi float64
	switch bounds := expected.(type) {
	case []any:
		if len(bounds) != 2 {
			return false
		}
		var okLo, okHi bool
		lo, okLo = toFloat64(bounds[0])
		hi, okHi = toFloat64(bounds[1])
		if !okLo || !okHi {
			return false
		}
	case []float64:
		if len(bounds) != 2 {
			return false
		}
		lo, hi = bounds[0], bounds[1]
	default:
		return false
	}

	return ev >= lo && ev <= hi
}

func bothNumeric(a, b any) (float64, float64, bool) {
	av, ok1 := toFloat64(a)
	bv, ok2 := toFloat64(b)
	return av, bv, ok1 && ok2
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// resolveField maps a condition field name onto the event. severity, userId,
// and ipAddress resolve to the top-level fields; everything else is a
// metadata lookup.
func resolveField(event *schema.SecurityEvent, field string) any {
	switch field {
	case "severity":
		return string(event.Severity)
	case "userId", "user_id":
		return event.UserID
	case "ipAddress", "ip_address":
		return event.IPAddress
	default:
		if event.Metadata != nil {
			if v, ok := event.Metadata[field]; ok {
				return v
			}
		}
	}
	return nil
}

// UnmarshalYAML decodes a rule, accepting cooldown as a duration string
// such as "5m" or "1h30m".
func (r *Rule) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		ID          string             `yaml:"id"`
		Name        string             `yaml:"name"`
		Description string             `yaml:"description"`
		EventTypes  []schema.EventType `yaml:"event_types"`
		Conditions  []Condition        `yaml:"conditions"`
		Severity    schema.Severity    `yaml:"severity"`
		Enabled     bool               `yaml:"enabled"`
		Cooldown    string             `yaml:"cooldown"`
		Actions     []Action           `yaml:"actions"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	r.ID = raw.ID
	r.Name = raw.Name
	r.Description = raw.Description
	r.EventTypes = raw.EventTypes
	r.Conditions = raw.Conditions
	r.Severity = raw.Severity
	r.Enabled = raw.Enabled
	r.Actions = raw.Actions

	if raw.Cooldown != "" {
		d, err := time.ParseDuration(raw.Cooldown)
		if err != nil {
			return fmt.Errorf("rule %s: invalid cooldown %q: %w", raw.ID, raw.Cooldown, err)
		}
		r.Cooldown = d
	}
	return nil
}

// ParseRule parses a single rule from YAML bytes.
func ParseRule(data []byte) (*Rule, error) {
	var rule Rule
	if err := yaml.Unmarshal(data, &rule); err != nil {
		return nil, fmt.Errorf("failed to parse rule: %w", err)
	}
	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rule: %w", err)
	}
	return &rule, nil
}

// ParseRules parses multiple rules from YAML bytes. A document holding a
// single rule object is accepted as well.
func ParseRules(data []byte) ([]*Rule, error) {
	var rules []*Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		rule, singleErr := ParseRule(data)
		if singleErr != nil {
			return nil, fmt.Errorf("failed to parse rules: %w", err)
		}
		return []*Rule{rule}, nil
	}

	for i, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return rules, nil
}
