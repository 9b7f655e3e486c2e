package engine

import (
	"context"
	"log/slog"
	"math"
	"regexp"
	"strings"

	"alertengine/internal/domain"
)

// ConfidenceScorer grades one condition/event pair with an external capability.
// Params: context, condition under evaluation, and triggering event.
// Returns: confidence in [0,1] or a scorer transport error.
type ConfidenceScorer interface {
	Score(ctx context.Context, condition domain.TriggerCondition, event domain.Event) (float64, error)
}

// fieldBinding maps one condition field selector to its event key and absent-value default.
type fieldBinding struct {
	key     string
	missing float64
}

// fieldBindings is the closed field-selector table.
// days_until_audit absent means no audit is scheduled, treated as infinitely far away.
var fieldBindings = map[domain.FieldKind]fieldBinding{
	domain.FieldScoreDrop:            {key: "compliance_score_change"},
	domain.FieldViolationCount:       {key: "violation_count"},
	domain.FieldDaysUntilAudit:       {key: "days_until_audit", missing: math.Inf(1)},
	domain.FieldOverdueTrainingCount: {key: "overdue_training_count"},
	domain.FieldExpiredDocumentCount: {key: "expired_document_count"},
	domain.FieldRiskScore:            {key: "risk_score"},
	domain.FieldAnomalySeverity:      {key: "anomaly_severity"},
}

// Evaluator decides whether rule conditions hold for one event.
// Params: optional confidence scorer and logger.
// Returns: total boolean evaluation that never fails open.
type Evaluator struct {
	scorer ConfidenceScorer
	logger *slog.Logger
}

// NewEvaluator creates a condition evaluator.
// Params: scorer capability (nil treated as always confidence 0) and logger.
// Returns: initialized evaluator.
func NewEvaluator(scorer ConfidenceScorer, logger *slog.Logger) *Evaluator {
	return &Evaluator{scorer: scorer, logger: logger}
}

// RuleFires reports whether every condition of the rule holds for the event.
// Params: context, rule, and event.
// Returns: logical AND over conditions with short-circuit.
func (e *Evaluator) RuleFires(ctx context.Context, rule domain.Rule, event domain.Event) bool {
	for _, condition := range rule.Conditions {
		if !e.Evaluate(ctx, condition, event) {
			return false
		}
	}
	return true
}

// Evaluate checks one condition against one event.
// Params: context, condition, and event.
// Returns: predicate result; unknown operators and scorer failures evaluate false.
func (e *Evaluator) Evaluate(ctx context.Context, condition domain.TriggerCondition, event domain.Event) bool {
	if condition.MinConfidence != nil {
		confidence := e.confidence(ctx, condition, event)
		if confidence < *condition.MinConfidence {
			return false
		}
	}

	value, present := extractField(condition.Field, event)
	switch condition.Comparison {
	case domain.CompareEquals:
		return compareEquals(value, condition.Value)
	case domain.CompareGreaterThan:
		lhs, rhs, ok := numericPair(value, condition.Value)
		return ok && lhs > rhs
	case domain.CompareLessThan:
		lhs, rhs, ok := numericPair(value, condition.Value)
		return ok && lhs < rhs
	case domain.CompareContains:
		if !present {
			return false
		}
		return strings.Contains(value.AsString(), condition.Value.AsString())
	case domain.CompareRegex:
		if !present {
			return false
		}
		pattern, err := regexp.Compile(condition.Value.AsString())
		if err != nil {
			if e.logger != nil {
				e.logger.Warn("condition regex invalid", "field", string(condition.Field), "error", err.Error())
			}
			return false
		}
		return pattern.MatchString(value.AsString())
	default:
		// Unknown comparison operators fail safe.
		return false
	}
}

// confidence obtains the scorer confidence for one condition/event pair.
// Params: context, condition, and event.
// Returns: reported confidence; scorer absence or failure maps to 0.
func (e *Evaluator) confidence(ctx context.Context, condition domain.TriggerCondition, event domain.Event) float64 {
	if e.scorer == nil {
		return 0
	}
	confidence, err := e.scorer.Score(ctx, condition, event)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("confidence scorer failed", "field", string(condition.Field), "error", err.Error())
		}
		return 0
	}
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

// extractField reads the event field bound to one condition selector.
// Params: field selector and event.
// Returns: typed value (zero-value default when absent) and presence flag.
func extractField(field domain.FieldKind, event domain.Event) (domain.TypedValue, bool) {
	binding, known := fieldBindings[field]
	if !known {
		return domain.Number(0), false
	}
	value, present := event.Field(binding.key)
	if !present {
		return domain.Number(binding.missing), false
	}
	return value, true
}

// compareEquals applies equality with numeric preference.
// Params: field value and comparand.
// Returns: numeric equality when both sides coerce, exact string equality otherwise.
func compareEquals(value, comparand domain.TypedValue) bool {
	if lhs, lok := value.AsNumber(); lok {
		if rhs, rok := comparand.AsNumber(); rok {
			return lhs == rhs
		}
	}
	return value.AsString() == comparand.AsString()
}

// numericPair coerces both comparison sides to numbers.
// Params: field value and comparand.
// Returns: numeric pair and coercion success flag.
func numericPair(value, comparand domain.TypedValue) (float64, float64, bool) {
	lhs, lok := value.AsNumber()
	if !lok {
		return 0, 0, false
	}
	rhs, rok := comparand.AsNumber()
	if !rok {
		return 0, 0, false
	}
	return lhs, rhs, true
}
