package rules

import (
	"testing"

	"alertengine/internal/domain"
)

func sampleRule(id string, active bool) domain.Rule {
	return domain.Rule{
		ID:       id,
		Name:     "rule " + id,
		Priority: domain.PriorityMedium,
		Active:   active,
		Conditions: []domain.TriggerCondition{
			{Field: domain.FieldRiskScore, Comparison: domain.CompareGreaterThan, Value: domain.Number(10)},
		},
		Actions: []domain.NotificationAction{
			{Channel: domain.ChannelEmail, Recipients: []string{"ops"}},
		},
	}
}

func TestUpsertValidatesAndReplaces(t *testing.T) {
	t.Parallel()

	store := NewStore()
	if err := store.Upsert(sampleRule("a", true)); err != nil {
		t.Fatalf("expected valid rule to install, got %v", err)
	}

	invalid := sampleRule("", true)
	if err := store.Upsert(invalid); err == nil {
		t.Fatal("expected missing id to be rejected")
	}

	replacement := sampleRule("a", true)
	replacement.Name = "replaced"
	if err := store.Upsert(replacement); err != nil {
		t.Fatalf("expected replacement to install, got %v", err)
	}
	stored, ok := store.Get("a")
	if !ok || stored.Name != "replaced" {
		t.Fatalf("expected replaced rule, got %+v", stored)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one rule, got %d", store.Len())
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()

	store := NewStore()
	_ = store.Upsert(sampleRule("a", true))
	if !store.Remove("a") {
		t.Fatal("expected removal of installed rule")
	}
	if store.Remove("a") {
		t.Fatal("expected repeat removal to report false")
	}
}

func TestListActiveSortsAndFilters(t *testing.T) {
	t.Parallel()

	store := NewStore()
	_ = store.Upsert(sampleRule("c", true))
	_ = store.Upsert(sampleRule("a", true))
	_ = store.Upsert(sampleRule("b", false))

	active := store.ListActive()
	if len(active) != 2 || active[0].ID != "a" || active[1].ID != "c" {
		t.Fatalf("expected sorted active rules [a c], got %+v", active)
	}
	if all := store.List(); len(all) != 3 {
		t.Fatalf("expected three installed rules, got %d", len(all))
	}
}

func TestSetActiveReportsPreviousFlag(t *testing.T) {
	t.Parallel()

	store := NewStore()
	_ = store.Upsert(sampleRule("a", false))

	previous, ok := store.SetActive("a", true)
	if !ok || previous {
		t.Fatalf("expected previous=false ok=true, got previous=%v ok=%v", previous, ok)
	}
	stored, _ := store.Get("a")
	if !stored.Active {
		t.Fatal("expected rule to be active after SetActive")
	}
	if _, ok := store.SetActive("missing", true); ok {
		t.Fatal("expected unknown rule to report false")
	}
}

func TestDefaultsAreValidAndActive(t *testing.T) {
	t.Parallel()

	store := NewStore()
	for _, rule := range Defaults() {
		if err := store.Upsert(rule); err != nil {
			t.Fatalf("default rule %q failed validation: %v", rule.ID, err)
		}
		if !rule.Active {
			t.Fatalf("expected default rule %q to be active", rule.ID)
		}
	}

	critical, ok := store.Get("critical_compliance_drop")
	if !ok {
		t.Fatal("expected built-in critical compliance drop rule")
	}
	if critical.Priority != domain.PriorityCritical {
		t.Fatalf("expected critical priority, got %q", critical.Priority)
	}
	if len(critical.Conditions) != 1 || critical.Conditions[0].MinConfidence == nil {
		t.Fatalf("expected one confidence-gated condition, got %+v", critical.Conditions)
	}
	if *critical.Conditions[0].MinConfidence != 0.85 {
		t.Fatalf("expected 0.85 confidence floor, got %v", *critical.Conditions[0].MinConfidence)
	}
	if len(critical.Actions) != 2 {
		t.Fatalf("expected email and sms actions, got %+v", critical.Actions)
	}
	if len(critical.Escalations) != 2 || critical.Escalations[0].Level != 1 || critical.Escalations[1].Level != 2 {
		t.Fatalf("expected two-level escalation ladder, got %+v", critical.Escalations)
	}
}
