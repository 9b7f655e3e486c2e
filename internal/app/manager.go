package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"alertengine/internal/analytics"
	"alertengine/internal/clock"
	"alertengine/internal/compose"
	"alertengine/internal/domain"
	"alertengine/internal/engine"
	"alertengine/internal/ledger"
	"alertengine/internal/metrics"
	"alertengine/internal/notify"
	"alertengine/internal/rules"
	"alertengine/internal/schedule"
)

// Manager owns the rule set, ledger, and scheduling state of one engine instance.
// Every alerting decision flows through it; there is no process-global state.
// Params: evaluator, factory, dispatcher, scheduler, and the two stores.
// Returns: single-instance alerting authority.
type Manager struct {
	rules      *rules.Store
	ledger     *ledger.Ledger
	eval       *engine.Evaluator
	factory    *compose.Factory
	dispatcher *notify.Dispatcher
	sched      *schedule.Scheduler
	reports    *analytics.Aggregator
	collector  *metrics.Collector
	clk        clock.Clock
	logger     *slog.Logger
}

// NewManager wires one engine instance.
// Params: stores, pipeline stages, scheduler, metrics, clock, and logger.
// Returns: initialized manager.
func NewManager(
	ruleStore *rules.Store,
	eventLedger *ledger.Ledger,
	eval *engine.Evaluator,
	factory *compose.Factory,
	dispatcher *notify.Dispatcher,
	sched *schedule.Scheduler,
	collector *metrics.Collector,
	clk clock.Clock,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		rules:      ruleStore,
		ledger:     eventLedger,
		eval:       eval,
		factory:    factory,
		dispatcher: dispatcher,
		sched:      sched,
		reports:    analytics.NewAggregator(eventLedger, ruleStore, clk),
		collector:  collector,
		clk:        clk,
		logger:     logger,
	}
}

// Push satisfies the ingest sink contract.
// Params: decoded event from any intake transport.
// Returns: always nil; evaluation failures never bounce intake.
func (m *Manager) Push(event domain.Event) error {
	m.ProcessEvent(context.Background(), event)
	return nil
}

// ProcessEvent evaluates one event against every active rule.
// A failing rule never blocks the remaining rules: each rule's evaluation
// and dispatch is isolated and failures are logged.
// Params: context and decoded event.
// Returns: notifications created by this event.
func (m *Manager) ProcessEvent(ctx context.Context, event domain.Event) []domain.NotificationEvent {
	now := m.clk.Now()
	if event.DT <= 0 {
		event.DT = now.UnixMilli()
	}
	m.collector.EventProcessed()

	var created []domain.NotificationEvent
	for _, rule := range m.rules.ListActive() {
		notification, fired := m.processRule(ctx, rule, event, now)
		if fired {
			created = append(created, notification)
		}
	}
	return created
}

// processRule runs one rule through evaluation, cooldown, and dispatch.
// Params: context, rule, event, and processing timestamp.
// Returns: created notification and firing flag.
func (m *Manager) processRule(ctx context.Context, rule domain.Rule, event domain.Event, now time.Time) (notification domain.NotificationEvent, fired bool) {
	defer func() {
		if r := recover(); r != nil {
			fired = false
			m.logger.Error("rule processing panicked", "rule_id", rule.ID, "panic", fmt.Sprint(r))
		}
	}()

	if m.inCooldown(rule, now) {
		m.logger.Debug("rule suppressed by cooldown", "rule_id", rule.ID)
		return domain.NotificationEvent{}, false
	}
	if !m.eval.RuleFires(ctx, rule, event) {
		return domain.NotificationEvent{}, false
	}

	notification = m.factory.Build(rule, event, now)
	if err := m.ledger.Append(notification); err != nil {
		m.logger.Error("ledger append failed", "rule_id", rule.ID, "notification_id", notification.ID, "error", err.Error())
		return domain.NotificationEvent{}, false
	}
	m.collector.NotificationCreated(notification.Severity)
	m.logger.Info("rule fired",
		"rule_id", rule.ID, "notification_id", notification.ID,
		"severity", string(notification.Severity), "title", notification.Title)

	// Sent is written before the actions are armed: a zero-delay action can
	// deliver immediately, and the sent-to-delivered transition must not race
	// the pending-to-sent one.
	if m.ledger.MarkSent(notification.ID) {
		notification.Status = domain.StatusSent
	}
	armed := m.dispatcher.Dispatch(notification, rule.Actions, now)
	m.logger.Debug("actions armed", "rule_id", rule.ID, "notification_id", notification.ID, "count", armed)

	m.armEscalations(rule, notification)
	return notification, true
}

// inCooldown reports whether the rule is inside its quiet period.
// Params: rule and current time.
// Returns: true when the last firing is closer than cooldown_period minutes.
func (m *Manager) inCooldown(rule domain.Rule, now time.Time) bool {
	if rule.CooldownMin <= 0 {
		return false
	}
	lastFired, ok := m.ledger.LastFiredAt(rule.ID)
	if !ok {
		return false
	}
	return now.Sub(lastFired) < time.Duration(rule.CooldownMin)*time.Minute
}

// armEscalations schedules one timer per escalation step at createdAt+delay.
// Params: rule and freshly created notification.
// Returns: nothing.
func (m *Manager) armEscalations(rule domain.Rule, notification domain.NotificationEvent) {
	for _, step := range rule.Escalations {
		fireAt := notification.CreatedAt.Add(time.Duration(step.DelayMin) * time.Minute)
		name := fmt.Sprintf("escalation L%d %s", step.Level, notification.ID)
		m.sched.At(fireAt, name, func(context.Context) {
			m.fireEscalation(rule, step, notification.ID)
		})
	}
}

// fireEscalation re-checks the step predicate and dispatches escalation actions.
// The predicate check and the escalated write happen atomically inside the
// ledger, so an acknowledgment can never slip between check and write.
// Params: owning rule, escalation step, and notification id.
// Returns: nothing.
func (m *Manager) fireEscalation(rule domain.Rule, step domain.EscalationStep, notificationID string) {
	escalated := m.ledger.TryEscalate(notificationID, step.Level, func(current domain.NotificationEvent) bool {
		return escalationGate(step.Trigger, current)
	})
	if !escalated {
		m.logger.Debug("escalation suppressed",
			"rule_id", rule.ID, "notification_id", notificationID,
			"level", step.Level, "condition", string(step.Trigger))
		return
	}

	m.collector.EscalationFired(step.Level)
	m.logger.Warn("escalation fired",
		"rule_id", rule.ID, "notification_id", notificationID,
		"level", step.Level, "condition", string(step.Trigger))

	current, ok := m.ledger.Get(notificationID)
	if !ok {
		return
	}
	m.dispatcher.Dispatch(current, escalationActions(step), m.clk.Now())
}

// escalationGate evaluates one escalation predicate against ledger state.
// Params: trigger kind and current notification snapshot.
// Returns: true when the step should fire.
func escalationGate(trigger domain.EscalationTrigger, current domain.NotificationEvent) bool {
	switch trigger {
	case domain.TriggerNoAcknowledgment:
		return current.Status != domain.StatusAcknowledged
	case domain.TriggerNoAction:
		return current.Status == domain.StatusSent || current.Status == domain.StatusDelivered
	case domain.TriggerConditionWorsens:
		// Literal contract: this predicate always escalates, even after
		// acknowledgment.
		return true
	default:
		return false
	}
}

// escalationActions resolves the action list for one escalation step,
// filling empty action recipient lists from the step recipients.
// Params: escalation step.
// Returns: actions ready for dispatch.
func escalationActions(step domain.EscalationStep) []domain.NotificationAction {
	out := make([]domain.NotificationAction, 0, len(step.Actions))
	for _, action := range step.Actions {
		if len(action.Recipients) == 0 {
			action.Recipients = step.Recipients
		}
		out = append(out, action)
	}
	return out
}

// Acknowledge marks one notification as acknowledged by a user.
// Params: notification id and acknowledging user.
// Returns: true for known ids, including repeat acknowledgments.
func (m *Manager) Acknowledge(id, userID string) bool {
	before, known := m.ledger.Get(id)
	if !known {
		return false
	}
	if !m.ledger.Acknowledge(id, userID) {
		return false
	}
	if before.Status != domain.StatusAcknowledged {
		m.collector.Acknowledged(m.clk.Now().Sub(before.CreatedAt))
		m.logger.Info("notification acknowledged", "notification_id", id, "user_id", userID)
	}
	return true
}

// Resolve closes one notification.
// Params: notification id.
// Returns: true when the notification transitioned to resolved.
func (m *Manager) Resolve(id string) bool {
	resolved := m.ledger.Resolve(id)
	if resolved {
		m.logger.Info("notification resolved", "notification_id", id)
	}
	return resolved
}

// Notification looks up one ledger entry.
// Params: notification id.
// Returns: notification snapshot and presence flag.
func (m *Manager) Notification(id string) (domain.NotificationEvent, bool) {
	return m.ledger.Get(id)
}

// Analytics aggregates one report window.
// Params: lookback timeframe.
// Returns: analytics report.
func (m *Manager) Analytics(frame analytics.Timeframe) analytics.Report {
	return m.reports.Report(frame)
}

// UpsertRule installs or replaces one rule.
// Params: rule definition.
// Returns: validation error.
func (m *Manager) UpsertRule(rule domain.Rule) error {
	if err := m.rules.Upsert(rule); err != nil {
		return err
	}
	m.logger.Info("rule installed", "rule_id", rule.ID, "active", rule.Active)
	return nil
}

// RemoveRule deletes one rule.
// Params: rule id.
// Returns: true when a rule was removed.
func (m *Manager) RemoveRule(id string) bool {
	removed := m.rules.Remove(id)
	if removed {
		m.logger.Info("rule removed", "rule_id", id)
	}
	return removed
}

// ListActiveRules returns the rules currently eligible to fire.
// Params: none.
// Returns: active rules sorted by id.
func (m *Manager) ListActiveRules() []domain.Rule {
	return m.rules.ListActive()
}

// ListRules returns every installed rule.
// Params: none.
// Returns: rules sorted by id.
func (m *Manager) ListRules() []domain.Rule {
	return m.rules.List()
}

// TestRule dry-runs one rule against synthetic event data. The rule is
// forced active for the run and its stored flag is restored afterward
// regardless of outcome.
// Params: context, rule id, and synthetic event.
// Returns: notifications created by the test run, or an error for unknown rules.
func (m *Manager) TestRule(ctx context.Context, id string, event domain.Event) ([]domain.NotificationEvent, error) {
	rule, ok := m.rules.Get(id)
	if !ok {
		return nil, fmt.Errorf("rule %q is not installed", id)
	}

	wasActive, _ := m.rules.SetActive(id, true)
	defer m.rules.SetActive(id, wasActive)

	now := m.clk.Now()
	if event.DT <= 0 {
		event.DT = now.UnixMilli()
	}
	rule.Active = true
	notification, fired := m.processRule(ctx, rule, event, now)
	if !fired {
		return nil, nil
	}
	return []domain.NotificationEvent{notification}, nil
}

// Compact evicts ledger entries older than the retention window.
// Params: retention duration.
// Returns: evicted entry count.
func (m *Manager) Compact(retention time.Duration) int {
	evicted := m.ledger.Compact(m.clk.Now(), retention)
	if evicted > 0 {
		m.logger.Info("ledger compacted", "evicted", evicted)
	}
	return evicted
}
