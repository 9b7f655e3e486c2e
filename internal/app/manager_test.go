package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"alertengine/internal/clock"
	"alertengine/internal/compose"
	"alertengine/internal/domain"
	"alertengine/internal/engine"
	"alertengine/internal/ledger"
	"alertengine/internal/metrics"
	"alertengine/internal/notify"
	"alertengine/internal/rules"
	"alertengine/internal/schedule"
	"alertengine/internal/scorer"
)

// stepClock is a settable clock for cooldown and analytics windows.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var _ clock.Clock = (*stepClock)(nil)

type recordedDelivery struct {
	notification domain.NotificationEvent
	action       domain.NotificationAction
}

// recordSender captures dispatched deliveries for one channel.
type recordSender struct {
	channel    domain.Channel
	mu         sync.Mutex
	deliveries []recordedDelivery
}

func (s *recordSender) Channel() domain.Channel { return s.channel }

func (s *recordSender) Send(_ context.Context, delivery notify.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, recordedDelivery{notification: delivery.Notification, action: delivery.Action})
	return nil
}

func (s *recordSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deliveries)
}

func (s *recordSender) last() recordedDelivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deliveries[len(s.deliveries)-1]
}

type harness struct {
	manager *Manager
	ledger  *ledger.Ledger
	rules   *rules.Store
	sched   *schedule.Scheduler
	clock   *stepClock
	senders map[domain.Channel]*recordSender
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clk := &stepClock{now: time.Date(2026, time.January, 10, 12, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := rules.NewStore()
	for _, rule := range rules.Defaults() {
		if err := store.Upsert(rule); err != nil {
			t.Fatalf("seed defaults: %v", err)
		}
	}

	eventLedger := ledger.New(clk.Now)
	sched := schedule.New(clk, logger)
	t.Cleanup(sched.Stop)

	dispatcher := notify.NewDispatcher(sched, eventLedger, logger, metrics.NewCollector())
	senders := make(map[domain.Channel]*recordSender)
	for _, channel := range []domain.Channel{
		domain.ChannelEmail, domain.ChannelSMS, domain.ChannelChat,
		domain.ChannelInApp, domain.ChannelVoiceCall,
	} {
		sender := &recordSender{channel: channel}
		senders[channel] = sender
		dispatcher.Register(sender)
	}

	eval := engine.NewEvaluator(scorer.Fixed{Confidence: 0.9}, logger)
	manager := NewManager(store, eventLedger, eval, compose.NewFactory(logger), dispatcher, sched, metrics.NewCollector(), clk, logger)

	return &harness{
		manager: manager,
		ledger:  eventLedger,
		rules:   store,
		sched:   sched,
		clock:   clk,
		senders: senders,
	}
}

func waitUntil(t *testing.T, what string, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func scoreDropEvent(change float64) domain.Event {
	return domain.Event{
		Source: "compliance_monitor",
		Fields: map[string]domain.TypedValue{
			"compliance_score_change": domain.Number(change),
			"time_period":             domain.String("24h"),
		},
	}
}

func TestProcessEventFiresCriticalDropOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	created := h.manager.ProcessEvent(context.Background(), scoreDropEvent(7))

	if len(created) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(created))
	}
	notification := created[0]
	if notification.RuleID != "critical_compliance_drop" {
		t.Fatalf("expected critical drop rule, got %q", notification.RuleID)
	}
	if notification.Severity != domain.SeverityCritical {
		t.Fatalf("expected critical severity, got %q", notification.Severity)
	}
	if len(notification.Recipients) != 2 || notification.Recipients[0] != "compliance_officer" || notification.Recipients[1] != "admin" {
		t.Fatalf("expected deduplicated action recipients, got %+v", notification.Recipients)
	}
	if notification.EscalationLevel != 0 {
		t.Fatalf("expected level 0 at creation, got %d", notification.EscalationLevel)
	}
	if notification.Confidence != 0.9 {
		t.Fatalf("expected default confidence 0.9, got %v", notification.Confidence)
	}
	if !notification.CreatedAt.Equal(h.clock.Now()) {
		t.Fatalf("expected creation stamped from clock, got %v", notification.CreatedAt)
	}

	// Both configured channels must deliver, and the two escalation timers
	// must stay armed in the future.
	waitUntil(t, "email delivery", func() bool { return h.senders[domain.ChannelEmail].count() == 1 })
	waitUntil(t, "sms delivery", func() bool { return h.senders[domain.ChannelSMS].count() == 1 })
	if pending := h.sched.Pending(); pending != 2 {
		t.Fatalf("expected two armed escalation timers, got %d pending tasks", pending)
	}
	if got := h.senders[domain.ChannelSMS].last().action.Recipients; len(got) != 1 || got[0] != "compliance_officer" {
		t.Fatalf("expected sms action recipients, got %+v", got)
	}
}

func TestImmediateSendRecordsDeliveredStatus(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	created := h.manager.ProcessEvent(context.Background(), scoreDropEvent(7))
	if len(created) != 1 {
		t.Fatalf("expected one notification, got %d", len(created))
	}
	id := created[0].ID

	// Zero-delay actions deliver right away; sent is written before the
	// actions are armed, so the delivered transition must always land.
	waitUntil(t, "delivered status", func() bool {
		current, ok := h.manager.Notification(id)
		return ok && current.Status == domain.StatusDelivered
	})
}

func TestProcessEventBelowThresholdDoesNotFire(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	created := h.manager.ProcessEvent(context.Background(), scoreDropEvent(3))

	if len(created) != 0 {
		t.Fatalf("expected no notifications, got %+v", created)
	}
	if h.ledger.Len() != 0 {
		t.Fatalf("expected empty ledger, got %d entries", h.ledger.Len())
	}
}

func TestCooldownSuppressesRepeatFirings(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	if created := h.manager.ProcessEvent(ctx, scoreDropEvent(7)); len(created) != 1 {
		t.Fatalf("expected first firing, got %d", len(created))
	}

	h.clock.Advance(30 * time.Minute)
	if created := h.manager.ProcessEvent(ctx, scoreDropEvent(8)); len(created) != 0 {
		t.Fatalf("expected cooldown suppression at 30m, got %d notifications", len(created))
	}

	h.clock.Advance(31 * time.Minute)
	if created := h.manager.ProcessEvent(ctx, scoreDropEvent(8)); len(created) != 1 {
		t.Fatalf("expected second firing past cooldown, got %d notifications", len(created))
	}
}

func TestAcknowledgmentSuppressesEscalation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	created := h.manager.ProcessEvent(context.Background(), scoreDropEvent(7))
	if len(created) != 1 {
		t.Fatalf("expected one notification, got %d", len(created))
	}
	id := created[0].ID

	if !h.manager.Acknowledge(id, "alice") {
		t.Fatal("expected acknowledgment to succeed")
	}

	rule, ok := h.rules.Get("critical_compliance_drop")
	if !ok || len(rule.Escalations) != 2 {
		t.Fatalf("expected critical rule with two escalation steps, got %+v", rule)
	}
	h.manager.fireEscalation(rule, rule.Escalations[0], id)

	current, ok := h.manager.Notification(id)
	if !ok {
		t.Fatal("expected notification to remain in ledger")
	}
	if current.Status != domain.StatusAcknowledged {
		t.Fatalf("expected status to stay acknowledged, got %q", current.Status)
	}
	if current.EscalationLevel != 0 {
		t.Fatalf("expected escalation level to stay 0, got %d", current.EscalationLevel)
	}

	// Repeat acknowledgment stays idempotent.
	firstAck := current.AcknowledgedAt
	h.clock.Advance(time.Minute)
	if !h.manager.Acknowledge(id, "bob") {
		t.Fatal("expected repeat acknowledgment to report success")
	}
	again, _ := h.manager.Notification(id)
	if again.AcknowledgedAt == nil || !again.AcknowledgedAt.Equal(*firstAck) {
		t.Fatalf("expected first acknowledgment time to stick, got %v", again.AcknowledgedAt)
	}

	if h.manager.Acknowledge("missing", "alice") {
		t.Fatal("expected unknown notification to report false")
	}
}

func TestConditionWorsensEscalatesDespiteAcknowledgment(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	created := h.manager.ProcessEvent(context.Background(), scoreDropEvent(7))
	id := created[0].ID

	if !h.manager.Acknowledge(id, "alice") {
		t.Fatal("expected acknowledgment to succeed")
	}

	rule, _ := h.rules.Get("critical_compliance_drop")
	step := domain.EscalationStep{
		Level:      1,
		DelayMin:   5,
		Trigger:    domain.TriggerConditionWorsens,
		Recipients: []string{"escalation_team"},
		Actions:    []domain.NotificationAction{{Channel: domain.ChannelVoiceCall}},
	}
	h.manager.fireEscalation(rule, step, id)

	current, _ := h.manager.Notification(id)
	if current.Status != domain.StatusEscalated {
		t.Fatalf("expected escalated status, got %q", current.Status)
	}
	if current.EscalationLevel != 1 {
		t.Fatalf("expected escalation level 1, got %d", current.EscalationLevel)
	}

	// Step recipients fill the empty action recipient list.
	waitUntil(t, "escalation voice call", func() bool { return h.senders[domain.ChannelVoiceCall].count() == 1 })
	if got := h.senders[domain.ChannelVoiceCall].last().action.Recipients; len(got) != 1 || got[0] != "escalation_team" {
		t.Fatalf("expected step recipients on escalation action, got %+v", got)
	}
}

func TestEscalationLevelsFireIndependently(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	created := h.manager.ProcessEvent(context.Background(), scoreDropEvent(7))
	if len(created) != 1 {
		t.Fatalf("expected one notification, got %d", len(created))
	}
	id := created[0].ID

	rule, _ := h.rules.Get("critical_compliance_drop")
	h.manager.fireEscalation(rule, rule.Escalations[0], id)

	current, _ := h.manager.Notification(id)
	if current.Status != domain.StatusEscalated || current.EscalationLevel != 1 {
		t.Fatalf("expected level 1 after first step, got %q level %d", current.Status, current.EscalationLevel)
	}

	// A fired first step must not block the second: escalated still satisfies
	// the no_acknowledgment gate.
	h.manager.fireEscalation(rule, rule.Escalations[1], id)

	current, _ = h.manager.Notification(id)
	if current.EscalationLevel != 2 {
		t.Fatalf("expected level to advance to 2, got %d", current.EscalationLevel)
	}
	if current.Status != domain.StatusEscalated {
		t.Fatalf("expected escalated status, got %q", current.Status)
	}
	waitUntil(t, "second-level voice call", func() bool { return h.senders[domain.ChannelVoiceCall].count() == 1 })
}

func TestNoActionEscalatesSentNotifications(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	created := h.manager.ProcessEvent(context.Background(), scoreDropEvent(7))
	id := created[0].ID

	rule, _ := h.rules.Get("critical_compliance_drop")
	step := domain.EscalationStep{
		Level:      1,
		DelayMin:   30,
		Trigger:    domain.TriggerNoAction,
		Recipients: []string{"oncall"},
		Actions:    []domain.NotificationAction{{Channel: domain.ChannelChat}},
	}
	h.manager.fireEscalation(rule, step, id)

	current, _ := h.manager.Notification(id)
	if current.Status != domain.StatusEscalated || current.EscalationLevel != 1 {
		t.Fatalf("expected sent notification to escalate, got %q level %d", current.Status, current.EscalationLevel)
	}
}

func TestTestRuleForcesActiveAndRestores(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	dormant := domain.Rule{
		ID:       "dormant_risk",
		Name:     "Dormant Risk Watch",
		Priority: domain.PriorityHigh,
		Conditions: []domain.TriggerCondition{
			{Field: domain.FieldRiskScore, Comparison: domain.CompareGreaterThan, Value: domain.Number(50)},
		},
		Actions: []domain.NotificationAction{
			{Channel: domain.ChannelEmail, Recipients: []string{"risk_team"}},
		},
		Active: false,
	}
	if err := h.manager.UpsertRule(dormant); err != nil {
		t.Fatalf("install dormant rule: %v", err)
	}

	firing := domain.Event{Fields: map[string]domain.TypedValue{"risk_score": domain.Number(99)}}
	created, err := h.manager.TestRule(context.Background(), "dormant_risk", firing)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if len(created) != 1 || created[0].RuleID != "dormant_risk" {
		t.Fatalf("expected one dry-run notification, got %+v", created)
	}
	if stored, _ := h.rules.Get("dormant_risk"); stored.Active {
		t.Fatal("expected active flag restored after firing dry run")
	}

	quiet := domain.Event{Fields: map[string]domain.TypedValue{"risk_score": domain.Number(10)}}
	created, err = h.manager.TestRule(context.Background(), "dormant_risk", quiet)
	if err != nil || created != nil {
		t.Fatalf("expected silent dry run, got %+v (%v)", created, err)
	}
	if stored, _ := h.rules.Get("dormant_risk"); stored.Active {
		t.Fatal("expected active flag restored after silent dry run")
	}

	if _, err := h.manager.TestRule(context.Background(), "missing_rule", firing); err == nil {
		t.Fatal("expected error for unknown rule")
	}
}

func TestPushNeverBouncesIntake(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	if err := h.manager.Push(scoreDropEvent(7)); err != nil {
		t.Fatalf("expected nil intake error, got %v", err)
	}
	if err := h.manager.Push(scoreDropEvent(3)); err != nil {
		t.Fatalf("expected nil intake error for silent event, got %v", err)
	}
	if h.ledger.Len() != 1 {
		t.Fatalf("expected one ledger entry, got %d", h.ledger.Len())
	}
}

func TestAnalyticsReflectsLedger(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	created := h.manager.ProcessEvent(context.Background(), scoreDropEvent(7))
	h.clock.Advance(10 * time.Minute)
	h.manager.Acknowledge(created[0].ID, "alice")

	report := h.manager.Analytics("day")
	if report.Total != 1 {
		t.Fatalf("expected one notification in window, got %d", report.Total)
	}
	if report.AcknowledgmentRate != 100 {
		t.Fatalf("expected 100%% acknowledgment rate, got %v", report.AcknowledgmentRate)
	}
	if report.MeanResponseMinutes != 10 {
		t.Fatalf("expected 10 minute mean response, got %v", report.MeanResponseMinutes)
	}
	if len(report.TopRules) != 1 || report.TopRules[0].RuleID != "critical_compliance_drop" {
		t.Fatalf("expected critical rule on top, got %+v", report.TopRules)
	}
	if report.TopRules[0].RuleName == "" {
		t.Fatal("expected resolved rule display name")
	}
}
