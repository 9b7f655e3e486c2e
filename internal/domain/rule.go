package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Priority classifies rule urgency and drives default severity mapping.
// Params: constants low/medium/high/critical.
// Returns: normalized rule priority usage across pipeline.
type Priority string

const (
	// PriorityLow maps to info severity.
	PriorityLow Priority = "low"
	// PriorityMedium maps to warning severity.
	PriorityMedium Priority = "medium"
	// PriorityHigh maps to error severity.
	PriorityHigh Priority = "high"
	// PriorityCritical maps to critical severity.
	PriorityCritical Priority = "critical"
)

// Comparison is one supported condition operator.
// Params: closed operator set for condition evaluation.
// Returns: comparison selector; unknown operators evaluate false.
type Comparison string

const (
	// CompareEquals matches equal values (numeric when both sides coerce).
	CompareEquals Comparison = "equals"
	// CompareGreaterThan matches numerically greater field values.
	CompareGreaterThan Comparison = "greater_than"
	// CompareLessThan matches numerically smaller field values.
	CompareLessThan Comparison = "less_than"
	// CompareContains matches substring containment on string-coerced values.
	CompareContains Comparison = "contains"
	// CompareRegex matches the field against a compiled pattern.
	CompareRegex Comparison = "regex"
)

// FieldKind selects one evaluated event dimension.
// Params: closed selector set over known compliance event fields.
// Returns: condition field binding used by the evaluator.
type FieldKind string

const (
	// FieldScoreDrop reads compliance score change magnitude.
	FieldScoreDrop FieldKind = "score_drop"
	// FieldViolationCount reads open violation count.
	FieldViolationCount FieldKind = "violation_count"
	// FieldDaysUntilAudit reads days remaining before next audit.
	FieldDaysUntilAudit FieldKind = "days_until_audit"
	// FieldOverdueTrainingCount reads overdue training assignments.
	FieldOverdueTrainingCount FieldKind = "overdue_training_count"
	// FieldExpiredDocumentCount reads expired compliance documents.
	FieldExpiredDocumentCount FieldKind = "expired_document_count"
	// FieldRiskScore reads externally supplied risk score.
	FieldRiskScore FieldKind = "risk_score"
	// FieldAnomalySeverity reads detected anomaly severity.
	FieldAnomalySeverity FieldKind = "anomaly_severity"
)

// Channel is one supported delivery transport kind.
// Params: closed channel set for notification actions.
// Returns: dispatch routing selector.
type Channel string

const (
	// ChannelEmail delivers via email transport.
	ChannelEmail Channel = "email"
	// ChannelSMS delivers via SMS transport.
	ChannelSMS Channel = "sms"
	// ChannelChat delivers via chat bot transport.
	ChannelChat Channel = "chat"
	// ChannelTeamsChat delivers via Teams chat transport.
	ChannelTeamsChat Channel = "teams_chat"
	// ChannelWebhook delivers via outbound HTTP webhook.
	ChannelWebhook Channel = "webhook"
	// ChannelInApp delivers via in-app inbox.
	ChannelInApp Channel = "in_app"
	// ChannelPush delivers via mobile push.
	ChannelPush Channel = "push"
	// ChannelVoiceCall delivers via automated voice call.
	ChannelVoiceCall Channel = "voice_call"
)

// EscalationTrigger is the predicate kind gating one escalation step.
// Params: closed predicate set checked against ledger state at fire time.
// Returns: escalation gate selector.
type EscalationTrigger string

const (
	// TriggerNoAcknowledgment escalates unless the notification was acknowledged.
	TriggerNoAcknowledgment EscalationTrigger = "no_acknowledgment"
	// TriggerNoAction escalates while nothing beyond delivery has happened.
	TriggerNoAction EscalationTrigger = "no_action"
	// TriggerConditionWorsens escalates unconditionally (literal source contract).
	TriggerConditionWorsens EscalationTrigger = "condition_worsens"
)

// TriggerCondition is one clause of a rule; all clauses AND together.
// Params: field selector, operator, comparand, and optional scorer confidence floor.
// Returns: evaluator predicate definition.
type TriggerCondition struct {
	Field         FieldKind  `json:"field"`
	Comparison    Comparison `json:"comparison"`
	Value         TypedValue `json:"value"`
	MinConfidence *float64   `json:"ai_confidence_required,omitempty"`
}

// NotificationAction is one delivery instruction of a rule.
// Params: channel, recipients, template key, personalization flag, delay, and retry budget.
// Returns: dispatcher work description.
type NotificationAction struct {
	Channel       Channel  `json:"channel"`
	Recipients    []string `json:"recipients"`
	Template      string   `json:"template,omitempty"`
	Personalized  bool     `json:"personalization,omitempty"`
	DelayMin      int      `json:"delay,omitempty"`
	RetryAttempts int      `json:"retry_attempts,omitempty"`
}

// EscalationStep is one level of a rule escalation ladder.
// Params: level, delay from notification creation, gate predicate, recipients, and actions.
// Returns: deferred escalation work description.
type EscalationStep struct {
	Level      int                  `json:"level"`
	DelayMin   int                  `json:"delay"`
	Trigger    EscalationTrigger    `json:"condition"`
	Recipients []string             `json:"recipients,omitempty"`
	Actions    []NotificationAction `json:"actions"`
}

// Rule is one named, user-editable alerting policy.
// Params: identity, trigger conditions, actions, escalation ladder, and firing controls.
// Returns: runtime rule definition for the store and evaluator.
type Rule struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Conditions  []TriggerCondition   `json:"trigger_conditions"`
	Actions     []NotificationAction `json:"actions"`
	Escalations []EscalationStep     `json:"escalation_rules,omitempty"`
	Priority    Priority             `json:"priority"`
	CooldownMin int                  `json:"cooldown_period"`
	AIEnhanced  bool                 `json:"ai_enhancement"`
	Active      bool                 `json:"active"`
}

// Validate validates one rule against the store contract.
// Params: rule fields decoded from config or management API.
// Returns: validation error naming the failing field.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("rule id is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule %s: name is required", r.ID)
	}
	if !IsSupportedPriority(r.Priority) {
		return fmt.Errorf("rule %s: unsupported priority %q", r.ID, r.Priority)
	}
	if r.CooldownMin < 0 {
		return fmt.Errorf("rule %s: cooldown_period must be >=0", r.ID)
	}
	if len(r.Conditions) == 0 {
		return fmt.Errorf("rule %s: at least one trigger condition is required", r.ID)
	}
	for i, cond := range r.Conditions {
		if !IsSupportedField(cond.Field) {
			return fmt.Errorf("rule %s: condition[%d] has unsupported field %q", r.ID, i, cond.Field)
		}
		if err := cond.Value.Validate(); err != nil {
			return fmt.Errorf("rule %s: condition[%d] value: %w", r.ID, i, err)
		}
		if cond.MinConfidence != nil && (*cond.MinConfidence < 0 || *cond.MinConfidence > 1) {
			return fmt.Errorf("rule %s: condition[%d] ai_confidence_required must be within [0,1]", r.ID, i)
		}
	}
	for i, action := range r.Actions {
		if err := validateAction(action); err != nil {
			return fmt.Errorf("rule %s: action[%d]: %w", r.ID, i, err)
		}
	}
	prevLevel := 0
	for i, step := range r.Escalations {
		if step.Level <= prevLevel {
			return fmt.Errorf("rule %s: escalation[%d] level %d must increase from %d", r.ID, i, step.Level, prevLevel)
		}
		if i == 0 && step.Level != 1 {
			return fmt.Errorf("rule %s: escalation levels must start at 1", r.ID)
		}
		if step.DelayMin <= 0 {
			return fmt.Errorf("rule %s: escalation[%d] delay must be >0", r.ID, i)
		}
		if !IsSupportedEscalationTrigger(step.Trigger) {
			return fmt.Errorf("rule %s: escalation[%d] has unsupported condition %q", r.ID, i, step.Trigger)
		}
		for j, action := range step.Actions {
			if err := validateAction(action); err != nil {
				return fmt.Errorf("rule %s: escalation[%d] action[%d]: %w", r.ID, i, j, err)
			}
		}
		prevLevel = step.Level
	}
	return nil
}

// validateAction validates one delivery action shape.
// Params: action decoded from config or management API.
// Returns: validation error for unsupported channels or negative budgets.
func validateAction(action NotificationAction) error {
	if !IsSupportedChannel(action.Channel) {
		return fmt.Errorf("unsupported channel %q", action.Channel)
	}
	if action.DelayMin < 0 {
		return errors.New("delay must be >=0")
	}
	if action.RetryAttempts < 0 {
		return errors.New("retry_attempts must be >=0")
	}
	return nil
}

// IsSupportedPriority reports whether priority value is known.
// Params: candidate priority.
// Returns: true for closed priority set members.
func IsSupportedPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

// IsSupportedField reports whether condition field selector is known.
// Params: candidate field kind.
// Returns: true for closed field set members.
func IsSupportedField(f FieldKind) bool {
	switch f {
	case FieldScoreDrop, FieldViolationCount, FieldDaysUntilAudit,
		FieldOverdueTrainingCount, FieldExpiredDocumentCount,
		FieldRiskScore, FieldAnomalySeverity:
		return true
	default:
		return false
	}
}

// IsSupportedChannel reports whether delivery channel is known.
// Params: candidate channel.
// Returns: true for closed channel set members.
func IsSupportedChannel(c Channel) bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelChat, ChannelTeamsChat,
		ChannelWebhook, ChannelInApp, ChannelPush, ChannelVoiceCall:
		return true
	default:
		return false
	}
}

// IsSupportedEscalationTrigger reports whether escalation gate is known.
// Params: candidate trigger.
// Returns: true for closed trigger set members.
func IsSupportedEscalationTrigger(t EscalationTrigger) bool {
	switch t {
	case TriggerNoAcknowledgment, TriggerNoAction, TriggerConditionWorsens:
		return true
	default:
		return false
	}
}
