package rules

import "alertengine/internal/domain"

// Defaults returns the built-in rule set installed at startup.
// Params: none.
// Returns: default rules, already valid.
func Defaults() []domain.Rule {
	confidence := 0.85
	return []domain.Rule{
		{
			ID:          "critical_compliance_drop",
			Name:        "Critical Compliance Score Drop",
			Description: "Compliance score dropped sharply within the reporting period",
			Conditions: []domain.TriggerCondition{
				{
					Field:         domain.FieldScoreDrop,
					Comparison:    domain.CompareGreaterThan,
					Value:         domain.Number(5),
					MinConfidence: &confidence,
				},
			},
			Actions: []domain.NotificationAction{
				{
					Channel:       domain.ChannelEmail,
					Recipients:    []string{"compliance_officer", "admin"},
					Template:      "critical_compliance_alert",
					Personalized:  true,
					RetryAttempts: 2,
				},
				{
					Channel:       domain.ChannelSMS,
					Recipients:    []string{"compliance_officer"},
					Template:      "critical_compliance_sms",
					RetryAttempts: 2,
				},
			},
			Escalations: []domain.EscalationStep{
				{
					Level:      1,
					DelayMin:   15,
					Trigger:    domain.TriggerNoAcknowledgment,
					Recipients: []string{"compliance_manager"},
					Actions: []domain.NotificationAction{
						{Channel: domain.ChannelChat, Template: "escalation_chat", RetryAttempts: 1},
					},
				},
				{
					Level:      2,
					DelayMin:   60,
					Trigger:    domain.TriggerNoAcknowledgment,
					Recipients: []string{"executive_team"},
					Actions: []domain.NotificationAction{
						{Channel: domain.ChannelVoiceCall, Template: "escalation_voice", RetryAttempts: 1},
					},
				},
			},
			Priority:    domain.PriorityCritical,
			CooldownMin: 60,
			AIEnhanced:  true,
			Active:      true,
		},
		{
			ID:          "audit_deadline",
			Name:        "Audit Deadline Approaching",
			Description: "A scheduled audit is less than a week away",
			Conditions: []domain.TriggerCondition{
				{
					Field:      domain.FieldDaysUntilAudit,
					Comparison: domain.CompareLessThan,
					Value:      domain.Number(7),
				},
			},
			Actions: []domain.NotificationAction{
				{
					Channel:       domain.ChannelEmail,
					Recipients:    []string{"compliance_officer", "audit_team"},
					Template:      "audit_deadline_alert",
					RetryAttempts: 2,
				},
				{
					Channel:       domain.ChannelInApp,
					Recipients:    []string{"compliance_officer"},
					Template:      "audit_deadline_banner",
					RetryAttempts: 1,
				},
			},
			Priority:    domain.PriorityHigh,
			CooldownMin: 1440,
			AIEnhanced:  true,
			Active:      true,
		},
		{
			ID:          "overdue_training",
			Name:        "Overdue Compliance Training",
			Description: "Employees have compliance training past its due date",
			Conditions: []domain.TriggerCondition{
				{
					Field:      domain.FieldOverdueTrainingCount,
					Comparison: domain.CompareGreaterThan,
					Value:      domain.Number(0),
				},
			},
			Actions: []domain.NotificationAction{
				{
					Channel:       domain.ChannelEmail,
					Recipients:    []string{"hr_manager", "compliance_officer"},
					Template:      "overdue_training_alert",
					RetryAttempts: 2,
				},
			},
			Priority:    domain.PriorityMedium,
			CooldownMin: 720,
			Active:      true,
		},
		{
			ID:          "expired_documents",
			Name:        "Expired Compliance Documents",
			Description: "Policy or certification documents have passed their expiry date",
			Conditions: []domain.TriggerCondition{
				{
					Field:      domain.FieldExpiredDocumentCount,
					Comparison: domain.CompareGreaterThan,
					Value:      domain.Number(0),
				},
			},
			Actions: []domain.NotificationAction{
				{
					Channel:       domain.ChannelEmail,
					Recipients:    []string{"document_owner", "compliance_officer"},
					Template:      "expired_documents_alert",
					RetryAttempts: 2,
				},
				{
					Channel:       domain.ChannelInApp,
					Recipients:    []string{"document_owner"},
					Template:      "expired_documents_banner",
					RetryAttempts: 1,
				},
			},
			Priority:    domain.PriorityMedium,
			CooldownMin: 720,
			Active:      true,
		},
		{
			ID:          "high_risk_score",
			Name:        "High Organizational Risk Score",
			Description: "Aggregate risk score crossed the high-risk threshold",
			Conditions: []domain.TriggerCondition{
				{
					Field:      domain.FieldRiskScore,
					Comparison: domain.CompareGreaterThan,
					Value:      domain.Number(80),
				},
			},
			Actions: []domain.NotificationAction{
				{
					Channel:       domain.ChannelEmail,
					Recipients:    []string{"risk_manager", "compliance_officer"},
					Template:      "high_risk_alert",
					RetryAttempts: 2,
				},
				{
					Channel:       domain.ChannelChat,
					Recipients:    []string{"risk_manager"},
					Template:      "high_risk_chat",
					RetryAttempts: 1,
				},
			},
			Escalations: []domain.EscalationStep{
				{
					Level:      1,
					DelayMin:   30,
					Trigger:    domain.TriggerNoAction,
					Recipients: []string{"risk_committee"},
					Actions: []domain.NotificationAction{
						{Channel: domain.ChannelEmail, Template: "high_risk_escalation", RetryAttempts: 1},
					},
				},
			},
			Priority:    domain.PriorityHigh,
			CooldownMin: 240,
			AIEnhanced:  true,
			Active:      true,
		},
	}
}
