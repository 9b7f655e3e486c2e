package domain

import "time"

// Severity classifies one notification event.
// Params: constants derived from rule priority.
// Returns: severity selector for dispatch and analytics.
type Severity string

const (
	// SeverityInfo marks informational notifications.
	SeverityInfo Severity = "info"
	// SeverityWarning marks warning notifications.
	SeverityWarning Severity = "warning"
	// SeverityError marks error notifications.
	SeverityError Severity = "error"
	// SeverityCritical marks critical notifications.
	SeverityCritical Severity = "critical"
)

// SeverityFor maps rule priority to notification severity.
// Params: rule priority.
// Returns: fixed-table severity (warning for unknown priorities).
func SeverityFor(priority Priority) Severity {
	switch priority {
	case PriorityLow:
		return SeverityInfo
	case PriorityMedium:
		return SeverityWarning
	case PriorityHigh:
		return SeverityError
	case PriorityCritical:
		return SeverityCritical
	default:
		return SeverityWarning
	}
}

// Status is runtime notification lifecycle state.
// Params: pending/sent/delivered/acknowledged/escalated/resolved constants.
// Returns: state transitions for dispatch, escalation, and ledger.
type Status string

const (
	// StatusPending indicates notification created but actions not yet armed.
	StatusPending Status = "pending"
	// StatusSent indicates all initial actions were issued.
	StatusSent Status = "sent"
	// StatusDelivered indicates at least one channel confirmed delivery.
	StatusDelivered Status = "delivered"
	// StatusAcknowledged indicates a user acknowledged the notification.
	StatusAcknowledged Status = "acknowledged"
	// StatusEscalated indicates at least one escalation step fired.
	StatusEscalated Status = "escalated"
	// StatusResolved indicates the notification was closed.
	StatusResolved Status = "resolved"
)

// Metadata keys stamped on notification events.
const (
	// MetaRuleName holds the firing rule display name.
	MetaRuleName = "rule_name"
	// MetaSource holds the triggering event source label.
	MetaSource = "source"
	// MetaTriggeredAt holds the RFC3339 firing timestamp.
	MetaTriggeredAt = "triggered_at"
	// MetaAcknowledgedBy holds the acknowledging user id.
	MetaAcknowledgedBy = "acknowledged_by"
	// MetaAcknowledgedAt holds the RFC3339 acknowledgment timestamp.
	MetaAcknowledgedAt = "acknowledged_at"
)

// NotificationEvent is the runtime record of one rule firing.
// Params: identity, synthesized text, retained context, recipients, and lifecycle state.
// Returns: ledger entry mutated by dispatcher, escalation, and acknowledgment.
type NotificationEvent struct {
	ID              string                `json:"id"`
	RuleID          string                `json:"rule_id"`
	CreatedAt       time.Time             `json:"created_at"`
	Severity        Severity              `json:"severity"`
	Title           string                `json:"title"`
	Message         string                `json:"message"`
	Context         map[string]TypedValue `json:"context,omitempty"`
	AIGenerated     bool                  `json:"ai_generated"`
	Confidence      float64               `json:"confidence"`
	Recipients      []string              `json:"recipients"`
	Status          Status                `json:"status"`
	EscalationLevel int                   `json:"escalation_level"`
	Metadata        map[string]string     `json:"metadata,omitempty"`
	AcknowledgedAt  *time.Time            `json:"acknowledged_at,omitempty"`
}

// Clone duplicates the notification with detached maps/slices.
// Params: none.
// Returns: deep copy safe to hand out of the ledger.
func (n NotificationEvent) Clone() NotificationEvent {
	out := n
	if len(n.Context) > 0 {
		out.Context = make(map[string]TypedValue, len(n.Context))
		for key, value := range n.Context {
			out.Context[key] = value
		}
	}
	if len(n.Metadata) > 0 {
		out.Metadata = make(map[string]string, len(n.Metadata))
		for key, value := range n.Metadata {
			out.Metadata[key] = value
		}
	}
	out.Recipients = append([]string(nil), n.Recipients...)
	if n.AcknowledgedAt != nil {
		at := *n.AcknowledgedAt
		out.AcknowledgedAt = &at
	}
	return out
}
