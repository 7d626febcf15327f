package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"sentinel-engine/internal/schema"
)

// Notification is the decision record handed to the external delivery
// layer: which action, for which rule and event, with what config. The
// engine never performs delivery itself.
type Notification struct {
	Action    ActionType       `json:"action"`
	RuleID    string           `json:"rule_id"`
	RuleName  string           `json:"rule_name"`
	Severity  schema.Severity  `json:"severity"`
	EventType schema.EventType `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	IPAddress string           `json:"ip_address,omitempty"`
	Config    map[string]any   `json:"config,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Executor runs one action type when a rule fires.
type Executor interface {
	Type() ActionType
	Execute(ctx context.Context, rule *Rule, event *schema.SecurityEvent, config map[string]any) error
}

// NotifyExecutor turns email and webhook actions into notification decision
// records, logged for the external dispatcher.
type NotifyExecutor struct {
	action ActionType
	logger *slog.Logger
}

// NewNotifyExecutor creates an executor for a notification action type.
func NewNotifyExecutor(action ActionType, logger *slog.Logger) *NotifyExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotifyExecutor{action: action, logger: logger}
}

func (e *NotifyExecutor) Type() ActionType { return e.action }

func (e *NotifyExecutor) Execute(ctx context.Context, rule *Rule, event *schema.SecurityEvent, config map[string]any) error {
	e.logger.InfoContext(ctx, "notification requested",
		"action", e.action,
		"rule_id", rule.ID,
		"rule_name", rule.Name,
		"severity", rule.Severity,
		"event_type", event.Type,
		"user_id", event.UserID,
		"config", config)
	return nil
}

// AccountActionExecutor handles block_user, lock_account, and require_mfa.
// These are advisory: the recommendation is logged for external
// enforcement, never applied by the engine.
type AccountActionExecutor struct {
	action ActionType
	logger *slog.Logger
}

// NewAccountActionExecutor creates an executor for an account action type.
func NewAccountActionExecutor(action ActionType, logger *slog.Logger) *AccountActionExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountActionExecutor{action: action, logger: logger}
}

func (e *AccountActionExecutor) Type() ActionType { return e.action }

func (e *AccountActionExecutor) Execute(ctx context.Context, rule *Rule, event *schema.SecurityEvent, config map[string]any) error {
	target := event.UserID
	if e.action == ActionBlockUser && event.IPAddress != "" {
		target = event.IPAddress
	}

	e.logger.WarnContext(ctx, "account action recommended",
		"action", e.action,
		"target", target,
		"rule_id", rule.ID,
		"event_type", event.Type)
	return nil
}

// WebhookExecutor posts the notification record to a configured URL. It is
// the bridge to an external delivery system for deployments that want the
// decision pushed rather than scraped from logs.
type WebhookExecutor struct {
	client  *http.Client
	headers map[string]string
}

// NewWebhookExecutor creates a webhook executor.
func NewWebhookExecutor(headers map[string]string) *WebhookExecutor {
	return &WebhookExecutor{
		client:  &http.Client{Timeout: 10 * time.Second},
		headers: headers,
	}
}

func (e *WebhookExecutor) Type() ActionType { return ActionWebhook }

func (e *WebhookExecutor) Execute(ctx context.Context, rule *Rule, event *schema.SecurityEvent, config map[string]any) error {
	url, _ := config["url"].(string)
	if url == "" {
		return fmt.Errorf("webhook action for rule %s: missing url", rule.ID)
	}

	n := Notification{
		Action:    ActionWebhook,
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		Severity:  rule.Severity,
		EventType: event.Type,
		UserID:    event.UserID,
		IPAddress: event.IPAddress,
		Config:    config,
		Timestamp: time.Now(),
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range e.headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
