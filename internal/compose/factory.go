package compose

import (
	"bytes"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"alertengine/internal/domain"
	"alertengine/internal/templatefmt"
)

// defaultConfidence is stamped when the triggering event carries no score.
const defaultConfidence = 0.9

// aiTemplate holds compiled AI-enhanced title/message bodies for one rule.
type aiTemplate struct {
	title   string
	message string
}

// aiTemplates keys enhanced synthesis bodies by rule id. Rules without an
// entry fall back to the generic smart-alert text.
var aiTemplates = map[string]aiTemplate{
	"critical_compliance_drop": {
		title:   `Critical: Compliance Score Dropped {{field .Context "compliance_score_change"}} Points`,
		message: `Compliance score for {{field .Context "organization_name"}} dropped {{field .Context "compliance_score_change"}} points over {{field .Context "time_period"}}. Immediate review is required.`,
	},
	"audit_deadline": {
		title:   `Audit in {{field .Context "days_until_audit"}} Days`,
		message: `The {{field .Context "audit_type"}} audit for {{field .Context "organization_name"}} is {{field .Context "days_until_audit"}} days away. Verify readiness checklist completion.`,
	},
	"high_risk_score": {
		title:   `High Risk Score: {{field .Context "risk_score"}}`,
		message: `Aggregate risk score for {{field .Context "organization_name"}} reached {{field .Context "risk_score"}}, above the high-risk threshold. Review contributing factors: {{field .Context "risk_factors"}}.`,
	},
}

// Factory synthesizes notification events from fired rules.
// Params: id generator and logger; both injectable for tests.
// Returns: notification builder used by the processing pipeline.
type Factory struct {
	newID  func() string
	logger *slog.Logger
}

// NewFactory creates a factory with uuid-backed identifiers.
// Params: logger for synthesis fallbacks.
// Returns: initialized factory.
func NewFactory(logger *slog.Logger) *Factory {
	return &Factory{newID: uuid.NewString, logger: logger}
}

// Build creates the notification event for one rule firing.
// Params: fired rule, triggering event, and firing timestamp.
// Returns: pending notification at escalation level 0.
func (f *Factory) Build(rule domain.Rule, event domain.Event, now time.Time) domain.NotificationEvent {
	notification := domain.NotificationEvent{
		ID:              f.newID(),
		RuleID:          rule.ID,
		CreatedAt:       now,
		Severity:        domain.SeverityFor(rule.Priority),
		Context:         event.CloneFields(),
		AIGenerated:     rule.AIEnhanced,
		Confidence:      defaultConfidence,
		Recipients:      mergeRecipients(rule.Actions),
		Status:          domain.StatusPending,
		EscalationLevel: 0,
		Metadata: map[string]string{
			domain.MetaRuleName:    rule.Name,
			domain.MetaSource:      event.Source,
			domain.MetaTriggeredAt: now.UTC().Format(time.RFC3339),
		},
	}
	if event.Confidence != nil {
		notification.Confidence = *event.Confidence
	}
	notification.Title, notification.Message = f.synthesize(rule, notification)
	return notification
}

// synthesize produces title and message text for the notification.
// Params: fired rule and partially built notification (context populated).
// Returns: rendered or fallback title/message pair.
func (f *Factory) synthesize(rule domain.Rule, notification domain.NotificationEvent) (string, string) {
	if !rule.AIEnhanced {
		return rule.Name, fallbackMessage(rule)
	}
	bodies, ok := aiTemplates[rule.ID]
	if !ok {
		return "Smart Alert: " + rule.Name, fallbackMessage(rule)
	}
	title, err := render(rule.ID+"_title", bodies.title, notification)
	if err != nil {
		if f.logger != nil {
			f.logger.Warn("title synthesis failed, using fallback", "rule_id", rule.ID, "error", err)
		}
		title = "Smart Alert: " + rule.Name
	}
	message, err := render(rule.ID+"_message", bodies.message, notification)
	if err != nil {
		if f.logger != nil {
			f.logger.Warn("message synthesis failed, using fallback", "rule_id", rule.ID, "error", err)
		}
		message = fallbackMessage(rule)
	}
	return title, message
}

// render executes one synthesis template against the notification.
// Params: template name, body, and data.
// Returns: rendered string or parse/execute error.
func render(name, body string, notification domain.NotificationEvent) (string, error) {
	parsed, err := templatefmt.ParseAlertTemplate(name, body)
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := parsed.Execute(&buf, notification); err != nil {
		return "", fmt.Errorf("execute template %s: %w", name, err)
	}
	return buf.String(), nil
}

// fallbackMessage returns generic message text for one rule.
// Params: fired rule.
// Returns: description when present, otherwise a named generic line.
func fallbackMessage(rule domain.Rule) string {
	if rule.Description != "" {
		return rule.Description
	}
	return "Alert condition triggered for rule " + rule.Name + "."
}

// mergeRecipients unions and deduplicates action recipients in first-seen order.
// Params: rule actions (escalation recipients are excluded at creation time).
// Returns: deduplicated recipient list.
func mergeRecipients(actions []domain.NotificationAction) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, action := range actions {
		for _, recipient := range action.Recipients {
			if _, ok := seen[recipient]; ok {
				continue
			}
			seen[recipient] = struct{}{}
			out = append(out, recipient)
		}
	}
	return out
}
