package alerting

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"sentinel-engine/internal/schema"
)

// Engine evaluates declarative alert rules against incoming events.
type Engine struct {
	mu        sync.RWMutex
	rules     map[string]*Rule
	executors map[ActionType]Executor
	cooldowns CooldownStore
	now       func() time.Time
}

// NewEngine creates a rule engine with the default action executors and an
// in-memory cooldown store.
func NewEngine() *Engine {
	e := &Engine{
		rules:     make(map[string]*Rule),
		executors: make(map[ActionType]Executor),
		cooldowns: NewMemoryCooldownStore(),
		now:       time.Now,
	}

	e.RegisterExecutor(NewNotifyExecutor(ActionEmail, nil))
	e.RegisterExecutor(NewNotifyExecutor(ActionWebhook, nil))
	e.RegisterExecutor(NewAccountActionExecutor(ActionBlockUser, nil))
	e.RegisterExecutor(NewAccountActionExecutor(ActionLockAccount, nil))
	e.RegisterExecutor(NewAccountActionExecutor(ActionRequireMFA, nil))

	return e
}

// SetCooldownStore replaces the cooldown store, e.g. with a Redis-backed
// one for multi-instance deployments.
func (e *Engine) SetCooldownStore(store CooldownStore) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cooldowns = store
}

// SetClock overrides the engine clock. Intended for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// RegisterExecutor registers or replaces the executor for an action type.
func (e *Engine) RegisterExecutor(exec Executor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executors[exec.Type()] = exec
}

// AddRule adds an alert rule after validation.
func (e *Engine) AddRule(rule *Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	e.rules[rule.ID] = rule
	e.mu.Unlock()

	slog.Info("added alert rule", "rule_id", rule.ID, "name", rule.Name, "enabled", rule.Enabled)
	return nil
}

// RemoveRule removes a rule by id. Returns false when the id is unknown.
func (e *Engine) RemoveRule(ruleID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.rules[ruleID]; !ok {
		return false
	}
	delete(e.rules, ruleID)
	return true
}

// Rules returns all rules ordered by id.
func (e *Engine) Rules() []*Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]*Rule, 0, len(e.rules))
	for _, r := range e.rules {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// EvaluateEvent evaluates every enabled rule against the event. A rule in
// cooldown is skipped; a rule whose conditions all pass fires its actions
// in order. Failures are contained per rule and per action.
func (e *Engine) EvaluateEvent(ctx context.Context, event *schema.SecurityEvent) {
	e.mu.RLock()
	rules := make([]*Rule, 0, len(e.rules))
	for _, r := range e.rules {
		rules = append(rules, r)
	}
	now := e.now()
	e.mu.RUnlock()

	for _, rule := range rules {
		e.evaluateRule(ctx, rule, event, now)
	}
}

func (e *Engine) evaluateRule(ctx context.Context, rule *Rule, event *schema.SecurityEvent, now time.Time) {
	if !rule.Enabled || !rule.MatchesType(event.Type) {
		return
	}

	if e.inCooldown(ctx, rule, now) {
		slog.Debug("alert rule in cooldown", "rule_id", rule.ID)
		return
	}

	if !e.conditionsPass(rule, event) {
		return
	}

	e.markTriggered(ctx, rule, now)

	slog.Info("alert rule fired",
		"rule_id", rule.ID,
		"name", rule.Name,
		"severity", rule.Severity,
		"event_type", event.Type,
		"correlation_id", event.CorrelationID)

	for _, action := range rule.Actions {
		e.executeAction(ctx, rule, event, action)
	}
}

func (e *Engine) inCooldown(ctx context.Context, rule *Rule, now time.Time) bool {
	if rule.Cooldown <= 0 {
		return false
	}

	e.mu.RLock()
	last := rule.LastTriggered
	store := e.cooldowns
	e.mu.RUnlock()

	if last != nil && now.Before(last.Add(rule.Cooldown)) {
		return true
	}

	// Shared store overlay: another instance may have fired this rule.
	storedAt, ok, err := store.LastTriggered(ctx, rule.ID)
	if err != nil {
		slog.Warn("cooldown store lookup failed, using local state only",
			"rule_id", rule.ID, "error", err)
		return false
	}
	return ok && now.Before(storedAt.Add(rule.Cooldown))
}

func (e *Engine) markTriggered(ctx context.Context, rule *Rule, now time.Time) {
	e.mu.Lock()
	t := now
	rule.LastTriggered = &t
	store := e.cooldowns
	e.mu.Unlock()

	if err := store.MarkTriggered(ctx, rule.ID, now, rule.Cooldown); err != nil {
		slog.Warn("cooldown store update failed", "rule_id", rule.ID, "error", err)
	}
}

// conditionsPass evaluates all conditions with AND semantics. An empty
// condition list is vacuously true. A panic during evaluation counts as
// condition-not-met.
func (e *Engine) conditionsPass(rule *Rule, event *schema.SecurityEvent) (passed bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("alert condition evaluation failed",
				"rule_id", rule.ID, "panic", r)
			passed = false
		}
	}()

	for _, cond := range rule.Conditions {
		if !cond.Match(resolveField(event, cond.Field)) {
			return false
		}
	}
	return true
}

// executeAction runs one action in isolation: an unknown type is a warning
// no-op, and an error or panic never prevents subsequent actions.
func (e *Engine) executeAction(ctx context.Context, rule *Rule, event *schema.SecurityEvent, action Action) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("alert action panicked",
				"rule_id", rule.ID, "action", action.Type, "panic", r)
		}
	}()

	e.mu.RLock()
	exec, ok := e.executors[action.Type]
	e.mu.RUnlock()

	if !ok {
		slog.Warn("unknown alert action type, skipping",
			"rule_id", rule.ID, "action", action.Type)
		return
	}

	if err := exec.Execute(ctx, rule, event, action.Config); err != nil {
		slog.Error("alert action failed",
			"rule_id", rule.ID, "action", action.Type, "error", err)
	}
}

// Stats returns rule engine statistics.
func (e *Engine) Stats() map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()

	enabled := 0
	for _, r := range e.rules {
		if r.Enabled {
			enabled++
		}
	}

	return map[string]interface{}{
		"rules_total":   len(e.rules),
		"rules_enabled": enabled,
		"executors":     len(e.executors),
	}
}
