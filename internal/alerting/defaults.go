package alerting

import (
	"time"

	"sentinel-engine/internal/schema"
)

// DefaultRules returns the rules seeded at startup.
func DefaultRules() []*Rule {
	return []*Rule{
		{
			ID:          "critical-events",
			Name:        "Critical Security Events",
			Description: "Any critical-severity bypass, intrusion, or hijack event",
			EventTypes: []schema.EventType{
				schema.EventMFABypassAttempt,
				schema.EventUnauthorizedAccess,
				schema.EventSessionHijackAttempt,
			},
			Conditions: []Condition{
				{Field: "severity", Operator: OpEquals, Value: "critical"},
			},
			Severity: schema.SeverityCritical,
			Enabled:  true,
			Cooldown: 5 * time.Minute,
			Actions: []Action{
				{Type: ActionEmail, Config: map[string]any{"recipients": []string{"security-team"}}},
				{Type: ActionWebhook, Config: map[string]any{"url": "http://localhost:9000/hooks/security"}},
			},
		},
		{
			ID:          "brute-force-detection",
			Name:        "Brute Force Detection",
			Description: "Login failures worth notifying on",
			EventTypes:  []schema.EventType{schema.EventLoginFailure},
			Severity:    schema.SeverityHigh,
			Enabled:     true,
			Cooldown:    15 * time.Minute,
			Actions: []Action{
				{Type: ActionEmail, Config: map[string]any{"recipients": []string{"security-team"}}},
			},
		},
		{
			ID:          "mfa-bypass-attempts",
			Name:        "MFA Bypass Attempts",
			Description: "Every MFA bypass attempt alerts immediately, no cooldown",
			EventTypes:  []schema.EventType{schema.EventMFABypassAttempt},
			Severity:    schema.SeverityCritical,
			Enabled:     true,
			Cooldown:    0,
			Actions: []Action{
				{Type: ActionLockAccount, Config: map[string]any{"duration": "1h"}},
				{Type: ActionEmail, Config: map[string]any{"recipients": []string{"security-team"}}},
			},
		},
	}
}
