package config

import (
	"os"
	"path/filepath"
	"testing"

	"alertengine/internal/domain"
)

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const baseConfig = `
[service]
name = "alertengine-test"

[log.console]
enabled = true
level = "debug"
format = "line"

[ingest.http]
enabled = true
listen = ":0"

[notify.webhook]
enabled = true
url = "http://127.0.0.1:9/hook"

[[rule]]
id = "toml_rule"
name = "TOML Rule"
priority = "high"
cooldown_period = 30
ai_enhancement = true

  [[rule.condition]]
  field = "risk_score"
  comparison = "greater_than"
  value = 80
  ai_confidence_required = 0.7

  [[rule.action]]
  channel = "webhook"
  recipients = ["ops"]
  retry_attempts = 2

  [[rule.escalation]]
  level = 1
  delay = 15
  condition = "no_acknowledgment"
  recipients = ["manager"]

    [[rule.escalation.action]]
    channel = "email"
`

func TestLoadSnapshotFromFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), "engine.toml", baseConfig)
	cfg, err := LoadSnapshot(Source{File: path})
	if err != nil {
		t.Fatalf("expected snapshot to load, got %v", err)
	}

	if cfg.Service.Name != "alertengine-test" {
		t.Fatalf("expected configured service name, got %q", cfg.Service.Name)
	}
	if !cfg.Service.SeedDefaultRules() {
		t.Fatal("expected default rule seeding to stay enabled")
	}
	if cfg.Service.RetentionHours != DefaultRetentionHours {
		t.Fatalf("expected default retention, got %d", cfg.Service.RetentionHours)
	}
	if cfg.Notify.FirstRetrySec != 30 || cfg.Notify.NextRetrySec != 60 {
		t.Fatalf("expected 30s/60s retry backoff defaults, got %d/%d", cfg.Notify.FirstRetrySec, cfg.Notify.NextRetrySec)
	}
	if cfg.Ingest.HTTP.IngestPath != DefaultIngestPath || cfg.Ingest.HTTP.MaxBodyBytes != DefaultMaxBodyBytes {
		t.Fatalf("expected http intake defaults, got %+v", cfg.Ingest.HTTP)
	}
	if cfg.Ingest.NATS.Workers != 4 {
		t.Fatalf("expected default subscriber worker count, got %d", cfg.Ingest.NATS.Workers)
	}
}

func TestLoadSnapshotRuleConversion(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), "engine.toml", baseConfig)
	cfg, err := LoadSnapshot(Source{File: path})
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	converted, err := cfg.DomainRules()
	if err != nil {
		t.Fatalf("convert rules: %v", err)
	}
	if len(converted) != 1 {
		t.Fatalf("expected one rule, got %d", len(converted))
	}

	rule := converted[0]
	if rule.ID != "toml_rule" || rule.Priority != domain.PriorityHigh || !rule.Active {
		t.Fatalf("expected converted rule identity, got %+v", rule)
	}
	if len(rule.Conditions) != 1 {
		t.Fatalf("expected one condition, got %+v", rule.Conditions)
	}
	condition := rule.Conditions[0]
	if condition.Field != domain.FieldRiskScore || condition.Comparison != domain.CompareGreaterThan {
		t.Fatalf("expected risk_score greater_than, got %+v", condition)
	}
	if got, ok := condition.Value.AsNumber(); !ok || got != 80 {
		t.Fatalf("expected numeric comparand 80, got %+v", condition.Value)
	}
	if condition.MinConfidence == nil || *condition.MinConfidence != 0.7 {
		t.Fatalf("expected confidence floor 0.7, got %+v", condition.MinConfidence)
	}
	if len(rule.Escalations) != 1 || rule.Escalations[0].Trigger != domain.TriggerNoAcknowledgment {
		t.Fatalf("expected one no_acknowledgment escalation, got %+v", rule.Escalations)
	}
	if len(rule.Escalations[0].Actions) != 1 || rule.Escalations[0].Actions[0].Channel != domain.ChannelEmail {
		t.Fatalf("expected nested escalation action, got %+v", rule.Escalations[0].Actions)
	}
}

func TestLoadSnapshotDirMergesFragments(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfig(t, dir, "10-base.toml", `
[ingest.http]
enabled = true
listen = ":0"
`)
	writeConfig(t, dir, "20-rules.toml", `
[[rule]]
id = "fragment_rule"
name = "Fragment Rule"
priority = "low"

  [[rule.condition]]
  field = "violation_count"
  comparison = "greater_than"
  value = 0

  [[rule.action]]
  channel = "email"
  recipients = ["ops"]
`)

	cfg, err := LoadSnapshot(Source{Dir: dir})
	if err != nil {
		t.Fatalf("expected merged snapshot, got %v", err)
	}
	if !cfg.Ingest.HTTP.Enabled {
		t.Fatal("expected http intake from base fragment")
	}
	if len(cfg.Rule) != 1 || cfg.Rule[0].ID != "fragment_rule" {
		t.Fatalf("expected rule from fragment, got %+v", cfg.Rule)
	}
}

func TestLoadSnapshotValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{
			name: "no transport",
			body: `
[service]
name = "x"
`,
		},
		{
			name: "bad rule priority",
			body: `
[ingest.http]
enabled = true

[[rule]]
id = "bad"
name = "Bad"
priority = "urgent"

  [[rule.condition]]
  field = "risk_score"
  comparison = "greater_than"
  value = 1
`,
		},
		{
			name: "duplicate rule ids",
			body: `
[ingest.http]
enabled = true

[[rule]]
id = "dup"
name = "One"
priority = "low"

  [[rule.condition]]
  field = "risk_score"
  comparison = "greater_than"
  value = 1

[[rule]]
id = "dup"
name = "Two"
priority = "low"

  [[rule.condition]]
  field = "risk_score"
  comparison = "greater_than"
  value = 1
`,
		},
		{
			name: "chat without token",
			body: `
[ingest.http]
enabled = true

[notify.chat]
enabled = true
chat_id = "100"
`,
		},
	}
	for _, testCase := range cases {
		path := writeConfig(t, t.TempDir(), "engine.toml", testCase.body)
		if _, err := LoadSnapshot(Source{File: path}); err == nil {
			t.Fatalf("%s: expected validation error", testCase.name)
		}
	}
}

func TestFromCLIRequiresExactlyOneSource(t *testing.T) {
	t.Parallel()

	if _, err := FromCLI("", ""); err == nil {
		t.Fatal("expected error for no source")
	}
	if _, err := FromCLI("a.toml", "dir"); err == nil {
		t.Fatal("expected error for both sources")
	}
	source, err := FromCLI(" a.toml ", "")
	if err != nil || source.File != "a.toml" {
		t.Fatalf("expected trimmed file source, got %+v/%v", source, err)
	}
}
