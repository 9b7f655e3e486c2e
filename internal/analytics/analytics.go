package analytics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"alertengine/internal/clock"
	"alertengine/internal/domain"
)

// Timeframe selects the analytics lookback window.
// Params: day/week/month constants.
// Returns: window selector for report aggregation.
type Timeframe string

const (
	// TimeframeDay looks back 24 hours.
	TimeframeDay Timeframe = "day"
	// TimeframeWeek looks back 7 days.
	TimeframeWeek Timeframe = "week"
	// TimeframeMonth looks back 30 days.
	TimeframeMonth Timeframe = "month"
)

// ParseTimeframe normalizes a timeframe string.
// Params: raw timeframe value from the management API.
// Returns: timeframe or error for unsupported values.
func ParseTimeframe(raw string) (Timeframe, error) {
	switch Timeframe(strings.ToLower(strings.TrimSpace(raw))) {
	case TimeframeDay, "":
		return TimeframeDay, nil
	case TimeframeWeek:
		return TimeframeWeek, nil
	case TimeframeMonth:
		return TimeframeMonth, nil
	default:
		return "", fmt.Errorf("unsupported timeframe %q", raw)
	}
}

// WindowDuration converts the timeframe to a lookback duration.
// Params: none.
// Returns: 24h, 7d, or 30d.
func (t Timeframe) WindowDuration() time.Duration {
	switch t {
	case TimeframeWeek:
		return 7 * 24 * time.Hour
	case TimeframeMonth:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// RuleActivity is one row of the most-active-rules ranking.
// Params: rule identity and firing count within the window.
// Returns: ranked activity entry.
type RuleActivity struct {
	RuleID   string `json:"rule_id"`
	RuleName string `json:"rule_name,omitempty"`
	Count    int    `json:"count"`
}

// Report is one aggregated analytics snapshot.
// Params: totals, percentage rates in [0,100], severity histogram,
// top-5 rule ranking, and mean acknowledgment latency in minutes.
// Returns: management API analytics payload.
type Report struct {
	Timeframe           Timeframe               `json:"timeframe"`
	Total               int                     `json:"total_notifications"`
	AcknowledgmentRate  float64                 `json:"acknowledgment_rate"`
	EscalationRate      float64                 `json:"escalation_rate"`
	AIGeneratedRate     float64                 `json:"ai_generated_rate"`
	SeverityCounts      map[domain.Severity]int `json:"severity_counts"`
	TopRules            []RuleActivity          `json:"top_rules"`
	MeanResponseMinutes float64                 `json:"mean_response_minutes"`
}

// EntrySource yields notification events created within a window.
// Params: window start time.
// Returns: insertion-ordered notification snapshots.
type EntrySource interface {
	EntriesSince(since time.Time) []domain.NotificationEvent
}

// RuleNamer resolves rule display names for the ranking.
// Params: rule id.
// Returns: rule and presence flag.
type RuleNamer interface {
	Get(id string) (domain.Rule, bool)
}

// Aggregator computes analytics reports over the notification ledger.
// Params: entry source, rule name resolver, and clock.
// Returns: report builder for the management surface.
type Aggregator struct {
	entries EntrySource
	rules   RuleNamer
	clk     clock.Clock
}

// NewAggregator creates the analytics aggregator.
// Params: entry source, rule name resolver, and clock.
// Returns: initialized aggregator.
func NewAggregator(entries EntrySource, rules RuleNamer, clk clock.Clock) *Aggregator {
	return &Aggregator{entries: entries, rules: rules, clk: clk}
}

// Report aggregates one timeframe window.
// Params: lookback timeframe.
// Returns: report with all rates exactly 0 when the window is empty.
func (a *Aggregator) Report(frame Timeframe) Report {
	since := a.clk.Now().Add(-frame.WindowDuration())
	events := a.entries.EntriesSince(since)

	report := Report{
		Timeframe:      frame,
		Total:          len(events),
		SeverityCounts: make(map[domain.Severity]int),
		TopRules:       []RuleActivity{},
	}
	if len(events) == 0 {
		return report
	}

	acknowledged := 0
	escalated := 0
	aiGenerated := 0
	responseMinutes := 0.0
	perRule := make(map[string]int)
	for _, event := range events {
		report.SeverityCounts[event.Severity]++
		perRule[event.RuleID]++
		if event.AIGenerated {
			aiGenerated++
		}
		if event.EscalationLevel > 0 {
			escalated++
		}
		if event.AcknowledgedAt != nil {
			acknowledged++
			responseMinutes += event.AcknowledgedAt.Sub(event.CreatedAt).Minutes()
		}
	}

	total := float64(len(events))
	report.AcknowledgmentRate = float64(acknowledged) / total * 100
	report.EscalationRate = float64(escalated) / total * 100
	report.AIGeneratedRate = float64(aiGenerated) / total * 100
	if acknowledged > 0 {
		report.MeanResponseMinutes = responseMinutes / float64(acknowledged)
	}
	report.TopRules = a.rankRules(perRule, 5)
	return report
}

// rankRules orders rule firing counts descending with rule id ascending on ties.
// Params: per-rule firing counts and ranking size limit.
// Returns: top-N activity ranking with resolved display names.
func (a *Aggregator) rankRules(perRule map[string]int, limit int) []RuleActivity {
	ranking := make([]RuleActivity, 0, len(perRule))
	for id, count := range perRule {
		activity := RuleActivity{RuleID: id, Count: count}
		if a.rules != nil {
			if rule, ok := a.rules.Get(id); ok {
				activity.RuleName = rule.Name
			}
		}
		ranking = append(ranking, activity)
	}
	sort.Slice(ranking, func(i, j int) bool {
		if ranking[i].Count != ranking[j].Count {
			return ranking[i].Count > ranking[j].Count
		}
		return ranking[i].RuleID < ranking[j].RuleID
	})
	if len(ranking) > limit {
		ranking = ranking[:limit]
	}
	return ranking
}
