package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"alertengine/internal/domain"
)

// Defaults applied when the corresponding setting is absent.
const (
	DefaultServiceName        = "alertengine"
	DefaultRetentionHours     = 720
	DefaultCompactIntervalMin = 60
	DefaultHTTPListen         = ":8080"
	DefaultIngestPath         = "/api/events"
	DefaultHealthPath         = "/healthz"
	DefaultReadyPath          = "/readyz"
	DefaultMaxBodyBytes       = 1 << 20
	DefaultNATSSubject        = "compliance.events"
	DefaultNATSStream         = "COMPLIANCE"
	DefaultNATSConsumer       = "alertengine"
	DefaultNATSGroup          = "alertengine"
	DefaultScorerTimeoutSec   = 10
	DefaultFirstRetrySec      = 30
	DefaultNextRetrySec       = 60
)

// Config is the full validated service configuration.
// Params: service, log, ingest, scorer, notify, and rule sections.
// Returns: snapshot consumed by the app layer at startup.
type Config struct {
	Service ServiceConfig `toml:"service"`
	Log     LogConfig     `toml:"log"`
	Ingest  IngestConfig  `toml:"ingest"`
	Scorer  ScorerConfig  `toml:"scorer"`
	Notify  NotifyConfig  `toml:"notify"`
	Rule    []RuleConfig  `toml:"rule"`
}

// ServiceConfig holds process-level settings.
// Params: display name, ledger retention, compaction cadence, and default rule seeding.
// Returns: service section of the snapshot.
type ServiceConfig struct {
	Name               string `toml:"name"`
	RetentionHours     int    `toml:"retention_hours"`
	CompactIntervalMin int    `toml:"compact_interval_min"`
	DefaultRules       *bool  `toml:"default_rules"`
}

// SeedDefaultRules reports whether the built-in rule set should be installed.
// Params: none.
// Returns: true unless explicitly disabled.
func (s ServiceConfig) SeedDefaultRules() bool {
	return s.DefaultRules == nil || *s.DefaultRules
}

// LogConfig holds the sink configuration for the tee logger.
// Params: console and file sink settings.
// Returns: log section of the snapshot.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig describes one log sink.
// Params: enabled flag, level, format (line/json), and file path for file sinks.
// Returns: sink settings.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// IngestConfig groups event intake transports.
// Params: HTTP and NATS intake settings.
// Returns: ingest section of the snapshot.
type IngestConfig struct {
	HTTP HTTPIngestConfig `toml:"http"`
	NATS NATSIngestConfig `toml:"nats"`
}

// HTTPIngestConfig holds HTTP intake and management listener settings.
// Params: enabled flag, listen address, route paths, and body size cap.
// Returns: HTTP intake settings.
type HTTPIngestConfig struct {
	Enabled      bool   `toml:"enabled"`
	Listen       string `toml:"listen"`
	IngestPath   string `toml:"ingest_path"`
	HealthPath   string `toml:"health_path"`
	ReadyPath    string `toml:"ready_path"`
	MaxBodyBytes int64  `toml:"max_body_bytes"`
}

// NATSIngestConfig holds JetStream intake settings.
// Params: connection, subject binding, and consumer tuning knobs.
// Returns: NATS intake settings.
type NATSIngestConfig struct {
	Enabled       bool     `toml:"enabled"`
	URLs          []string `toml:"urls"`
	Subject       string   `toml:"subject"`
	Stream        string   `toml:"stream"`
	Consumer      string   `toml:"consumer"`
	Group         string   `toml:"group"`
	Workers       int      `toml:"workers"`
	AckWaitSec    int      `toml:"ack_wait_sec"`
	NackDelayMS   int      `toml:"nack_delay_ms"`
	MaxDeliver    int      `toml:"max_deliver"`
	MaxAckPending int      `toml:"max_ack_pending"`
}

// ScorerConfig holds the external confidence scorer settings.
// Params: enabled flag, endpoint URL, timeout, and static headers.
// Returns: scorer section of the snapshot.
type ScorerConfig struct {
	Enabled    bool              `toml:"enabled"`
	URL        string            `toml:"url"`
	TimeoutSec int               `toml:"timeout_sec"`
	Headers    map[string]string `toml:"headers"`
}

// NotifyConfig holds delivery transport settings and retry backoff.
// Params: retry backoff overrides plus webhook and chat transports.
// Returns: notify section of the snapshot.
type NotifyConfig struct {
	FirstRetrySec int           `toml:"first_retry_sec"`
	NextRetrySec  int           `toml:"next_retry_sec"`
	Webhook       WebhookNotify `toml:"webhook"`
	Chat          ChatNotify    `toml:"chat"`
}

// WebhookNotify holds outbound webhook transport settings.
// Params: enabled flag, endpoint, timeout, and static headers.
// Returns: webhook transport settings.
type WebhookNotify struct {
	Enabled    bool              `toml:"enabled"`
	URL        string            `toml:"url"`
	TimeoutSec int               `toml:"timeout_sec"`
	Headers    map[string]string `toml:"headers"`
}

// ChatNotify holds chat bot transport settings.
// Params: enabled flag, bot token, chat id, and API base override.
// Returns: chat transport settings.
type ChatNotify struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
	APIBase  string `toml:"api_base"`
}

// RuleConfig is one rule declared in TOML.
// Params: rule identity, conditions, actions, escalations, and firing controls.
// Returns: declarative rule converted to domain.Rule after validation.
type RuleConfig struct {
	ID          string             `toml:"id"`
	Name        string             `toml:"name"`
	Description string             `toml:"description"`
	Priority    string             `toml:"priority"`
	CooldownMin int                `toml:"cooldown_period"`
	AIEnhanced  bool               `toml:"ai_enhancement"`
	Active      *bool              `toml:"active"`
	Condition   []ConditionConfig  `toml:"condition"`
	Action      []ActionConfig     `toml:"action"`
	Escalation  []EscalationConfig `toml:"escalation"`
}

// ConditionConfig is one declarative trigger condition.
// Params: field selector, comparison, comparand, and optional confidence floor.
// Returns: condition fragment of a TOML rule.
type ConditionConfig struct {
	Field         string   `toml:"field"`
	Comparison    string   `toml:"comparison"`
	Value         any      `toml:"value"`
	MinConfidence *float64 `toml:"ai_confidence_required"`
}

// ActionConfig is one declarative delivery action.
// Params: channel, recipients, template key, and delivery knobs.
// Returns: action fragment of a TOML rule.
type ActionConfig struct {
	Channel       string   `toml:"channel"`
	Recipients    []string `toml:"recipients"`
	Template      string   `toml:"template"`
	Personalized  bool     `toml:"personalization"`
	DelayMin      int      `toml:"delay"`
	RetryAttempts int      `toml:"retry_attempts"`
}

// EscalationConfig is one declarative escalation step.
// Params: level, delay, gate predicate, recipients, and actions.
// Returns: escalation fragment of a TOML rule.
type EscalationConfig struct {
	Level      int            `toml:"level"`
	DelayMin   int            `toml:"delay"`
	Trigger    string         `toml:"condition"`
	Recipients []string       `toml:"recipients"`
	Action     []ActionConfig `toml:"action"`
}

// Source selects one configuration input.
// Params: exactly one of File or Dir.
// Returns: load descriptor for LoadSnapshot.
type Source struct {
	File string
	Dir  string
}

// FromCLI builds the normalized source from CLI flags.
// Params: optional file and directory arguments.
// Returns: source descriptor or validation error.
func FromCLI(filePath, dirPath string) (Source, error) {
	filePath = strings.TrimSpace(filePath)
	dirPath = strings.TrimSpace(dirPath)

	if filePath == "" && dirPath == "" {
		return Source{}, errors.New("either --config-file or --config-dir must be provided")
	}
	if filePath != "" && dirPath != "" {
		return Source{}, errors.New("config source must be either file or dir")
	}

	if filePath != "" {
		return Source{File: filePath}, nil
	}
	return Source{Dir: dirPath}, nil
}

// LoadSnapshot loads, defaults, and validates configuration from one source.
// Params: source selecting file or directory mode.
// Returns: validated config or load/validation error.
func LoadSnapshot(src Source) (Config, error) {
	var cfg Config
	var err error
	if src.File != "" {
		cfg, err = loadFile(src.File)
	} else {
		cfg, err = loadDir(src.Dir)
	}
	if err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile reads one TOML config file.
// Params: file path.
// Returns: decoded config or read/decode error.
func loadFile(path string) (Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(body, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	return cfg, nil
}

// loadDir reads and merges TOML files from one directory in name order.
// Params: directory containing config fragments.
// Returns: merged config or load/decode error.
func loadDir(dir string) (Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Config{}, fmt.Errorf("read config dir %q: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(entry.Name())) != ".toml" {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	if len(files) == 0 {
		return Config{}, fmt.Errorf("no .toml files found in %q", dir)
	}
	sort.Strings(files)

	var merged Config
	for _, file := range files {
		fragment, err := loadFile(file)
		if err != nil {
			return Config{}, err
		}
		mergeConfig(&merged, fragment)
	}
	return merged, nil
}

// mergeConfig overlays one fragment onto the merged destination.
// Params: destination and next fragment; sections replace wholesale, rules append.
// Returns: merged configuration side-effect in dst.
func mergeConfig(dst *Config, src Config) {
	if src.Service != (ServiceConfig{}) {
		dst.Service = src.Service
	}
	if src.Log != (LogConfig{}) {
		dst.Log = src.Log
	}
	if src.Ingest.HTTP != (HTTPIngestConfig{}) {
		dst.Ingest.HTTP = src.Ingest.HTTP
	}
	if hasNATSIngestConfig(src.Ingest.NATS) {
		dst.Ingest.NATS = src.Ingest.NATS
	}
	if hasScorerConfig(src.Scorer) {
		dst.Scorer = src.Scorer
	}
	if hasNotifyConfig(src.Notify) {
		dst.Notify = src.Notify
	}
	if len(src.Rule) > 0 {
		dst.Rule = append(dst.Rule, src.Rule...)
	}
}

// hasNATSIngestConfig reports whether the NATS intake section was set.
func hasNATSIngestConfig(cfg NATSIngestConfig) bool {
	return cfg.Enabled || len(cfg.URLs) > 0 || cfg.Subject != "" ||
		cfg.Stream != "" || cfg.Consumer != "" || cfg.Group != "" || cfg.Workers > 0
}

// hasScorerConfig reports whether the scorer section was set.
func hasScorerConfig(cfg ScorerConfig) bool {
	return cfg.Enabled || cfg.URL != "" || cfg.TimeoutSec > 0 || len(cfg.Headers) > 0
}

// hasNotifyConfig reports whether the notify section was set.
func hasNotifyConfig(cfg NotifyConfig) bool {
	return cfg.FirstRetrySec > 0 || cfg.NextRetrySec > 0 ||
		cfg.Webhook.Enabled || cfg.Webhook.URL != "" || len(cfg.Webhook.Headers) > 0 ||
		cfg.Chat != (ChatNotify{})
}

// applyDefaults fills absent settings before validation.
// Params: decoded configuration.
// Returns: defaulted configuration side-effect.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		cfg.Service.Name = DefaultServiceName
	}
	if cfg.Service.RetentionHours <= 0 {
		cfg.Service.RetentionHours = DefaultRetentionHours
	}
	if cfg.Service.CompactIntervalMin <= 0 {
		cfg.Service.CompactIntervalMin = DefaultCompactIntervalMin
	}

	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}
	applySinkDefaults(&cfg.Log.Console, "line")
	applySinkDefaults(&cfg.Log.File, "json")
	if cfg.Log.File.Enabled && strings.TrimSpace(cfg.Log.File.Path) == "" {
		cfg.Log.File.Path = cfg.Service.Name + ".log"
	}

	if strings.TrimSpace(cfg.Ingest.HTTP.Listen) == "" {
		cfg.Ingest.HTTP.Listen = DefaultHTTPListen
	}
	if strings.TrimSpace(cfg.Ingest.HTTP.IngestPath) == "" {
		cfg.Ingest.HTTP.IngestPath = DefaultIngestPath
	}
	if strings.TrimSpace(cfg.Ingest.HTTP.HealthPath) == "" {
		cfg.Ingest.HTTP.HealthPath = DefaultHealthPath
	}
	if strings.TrimSpace(cfg.Ingest.HTTP.ReadyPath) == "" {
		cfg.Ingest.HTTP.ReadyPath = DefaultReadyPath
	}
	if cfg.Ingest.HTTP.MaxBodyBytes <= 0 {
		cfg.Ingest.HTTP.MaxBodyBytes = DefaultMaxBodyBytes
	}

	nats := &cfg.Ingest.NATS
	if strings.TrimSpace(nats.Subject) == "" {
		nats.Subject = DefaultNATSSubject
	}
	if strings.TrimSpace(nats.Stream) == "" {
		nats.Stream = DefaultNATSStream
	}
	if strings.TrimSpace(nats.Consumer) == "" {
		nats.Consumer = DefaultNATSConsumer
	}
	if strings.TrimSpace(nats.Group) == "" {
		nats.Group = DefaultNATSGroup
	}
	if nats.Workers <= 0 {
		nats.Workers = 4
	}
	if nats.AckWaitSec <= 0 {
		nats.AckWaitSec = 30
	}
	if nats.NackDelayMS <= 0 {
		nats.NackDelayMS = 2000
	}
	if nats.MaxDeliver <= 0 {
		nats.MaxDeliver = 5
	}
	if nats.MaxAckPending <= 0 {
		nats.MaxAckPending = 256
	}

	if cfg.Scorer.TimeoutSec <= 0 {
		cfg.Scorer.TimeoutSec = DefaultScorerTimeoutSec
	}

	if cfg.Notify.FirstRetrySec <= 0 {
		cfg.Notify.FirstRetrySec = DefaultFirstRetrySec
	}
	if cfg.Notify.NextRetrySec <= 0 {
		cfg.Notify.NextRetrySec = DefaultNextRetrySec
	}
	if cfg.Notify.Webhook.TimeoutSec <= 0 {
		cfg.Notify.Webhook.TimeoutSec = 10
	}

	for i := range cfg.Rule {
		if cfg.Rule[i].Active == nil {
			active := true
			cfg.Rule[i].Active = &active
		}
	}
}

// applySinkDefaults fills one log sink's level and format.
// Params: sink and fallback format.
// Returns: defaulted sink side-effect.
func applySinkDefaults(sink *LogSinkConfig, format string) {
	if strings.TrimSpace(sink.Level) == "" {
		sink.Level = "info"
	}
	if strings.TrimSpace(sink.Format) == "" {
		sink.Format = format
	}
}

// validateConfig validates the defaulted snapshot.
// Params: configuration after applyDefaults.
// Returns: first validation error.
func validateConfig(cfg Config) error {
	if !cfg.Ingest.HTTP.Enabled && !cfg.Ingest.NATS.Enabled {
		return errors.New("at least one ingest transport must be enabled")
	}
	if cfg.Ingest.NATS.Enabled && len(cfg.Ingest.NATS.URLs) == 0 {
		return errors.New("ingest.nats.urls is required when NATS intake is enabled")
	}
	if cfg.Scorer.Enabled && strings.TrimSpace(cfg.Scorer.URL) == "" {
		return errors.New("scorer.url is required when the scorer is enabled")
	}
	if cfg.Notify.Webhook.Enabled && strings.TrimSpace(cfg.Notify.Webhook.URL) == "" {
		return errors.New("notify.webhook.url is required when the webhook channel is enabled")
	}
	if cfg.Notify.Chat.Enabled {
		if strings.TrimSpace(cfg.Notify.Chat.BotToken) == "" {
			return errors.New("notify.chat.bot_token is required when the chat channel is enabled")
		}
		if strings.TrimSpace(cfg.Notify.Chat.ChatID) == "" {
			return errors.New("notify.chat.chat_id is required when the chat channel is enabled")
		}
	}

	seen := make(map[string]struct{}, len(cfg.Rule))
	for _, rule := range cfg.Rule {
		domainRule, err := rule.ToDomain()
		if err != nil {
			return err
		}
		if err := domainRule.Validate(); err != nil {
			return err
		}
		if _, dup := seen[domainRule.ID]; dup {
			return fmt.Errorf("duplicate rule id %q", domainRule.ID)
		}
		seen[domainRule.ID] = struct{}{}
	}
	return nil
}

// ToDomain converts one declarative rule to the runtime shape.
// Params: none.
// Returns: domain rule or conversion error for unsupported value types.
func (r RuleConfig) ToDomain() (domain.Rule, error) {
	rule := domain.Rule{
		ID:          strings.TrimSpace(r.ID),
		Name:        strings.TrimSpace(r.Name),
		Description: r.Description,
		Priority:    domain.Priority(strings.ToLower(strings.TrimSpace(r.Priority))),
		CooldownMin: r.CooldownMin,
		AIEnhanced:  r.AIEnhanced,
		Active:      r.Active == nil || *r.Active,
	}
	for i, cond := range r.Condition {
		value, err := toTypedValue(cond.Value)
		if err != nil {
			return domain.Rule{}, fmt.Errorf("rule %s: condition[%d] value: %w", rule.ID, i, err)
		}
		rule.Conditions = append(rule.Conditions, domain.TriggerCondition{
			Field:         domain.FieldKind(strings.ToLower(strings.TrimSpace(cond.Field))),
			Comparison:    domain.Comparison(strings.ToLower(strings.TrimSpace(cond.Comparison))),
			Value:         value,
			MinConfidence: cond.MinConfidence,
		})
	}
	for _, action := range r.Action {
		rule.Actions = append(rule.Actions, action.toDomain())
	}
	for _, step := range r.Escalation {
		escalation := domain.EscalationStep{
			Level:      step.Level,
			DelayMin:   step.DelayMin,
			Trigger:    domain.EscalationTrigger(strings.ToLower(strings.TrimSpace(step.Trigger))),
			Recipients: step.Recipients,
		}
		for _, action := range step.Action {
			escalation.Actions = append(escalation.Actions, action.toDomain())
		}
		rule.Escalations = append(rule.Escalations, escalation)
	}
	return rule, nil
}

// toDomain converts one declarative action to the runtime shape.
func (a ActionConfig) toDomain() domain.NotificationAction {
	return domain.NotificationAction{
		Channel:       domain.Channel(strings.ToLower(strings.TrimSpace(a.Channel))),
		Recipients:    a.Recipients,
		Template:      a.Template,
		Personalized:  a.Personalized,
		DelayMin:      a.DelayMin,
		RetryAttempts: a.RetryAttempts,
	}
}

// toTypedValue converts a decoded TOML scalar to a typed comparand.
// Params: TOML any value.
// Returns: typed value or error for unsupported kinds.
func toTypedValue(value any) (domain.TypedValue, error) {
	switch typed := value.(type) {
	case int64:
		return domain.Number(float64(typed)), nil
	case float64:
		return domain.Number(typed), nil
	case string:
		return domain.String(typed), nil
	case bool:
		return domain.Bool(typed), nil
	default:
		return domain.TypedValue{}, fmt.Errorf("unsupported value type %T", value)
	}
}

// DomainRules converts every declarative rule; call after LoadSnapshot.
// Params: none.
// Returns: runtime rule slice (already validated).
func (c Config) DomainRules() ([]domain.Rule, error) {
	out := make([]domain.Rule, 0, len(c.Rule))
	for _, rule := range c.Rule {
		converted, err := rule.ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, converted)
	}
	return out, nil
}
