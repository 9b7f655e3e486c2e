package ledger

import (
	"errors"
	"sync"
	"time"

	"alertengine/internal/domain"
)

// ErrNotFound indicates an absent notification id.
var ErrNotFound = errors.New("not found")

// entry is one revisioned ledger record.
type entry struct {
	event    domain.NotificationEvent
	revision uint64
}

// Ledger is the append-only authoritative history of notification events.
// Params: in-memory revisioned entries, insertion order, and per-rule firing index.
// Returns: single-authority state for cooldown, escalation gates, and analytics.
type Ledger struct {
	mu        sync.RWMutex
	now       func() time.Time
	entries   map[string]*entry
	order     []string
	lastFired map[string]time.Time
}

// New creates an empty ledger.
// Params: now function (defaults to time.Now when nil).
// Returns: initialized ledger.
func New(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		now:       now,
		entries:   make(map[string]*entry),
		lastFired: make(map[string]time.Time),
	}
}

// Append records one freshly built notification event.
// Params: notification from the factory (status pending).
// Returns: error when the id already exists.
func (l *Ledger) Append(event domain.NotificationEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.entries[event.ID]; exists {
		return errors.New("duplicate notification id " + event.ID)
	}
	l.entries[event.ID] = &entry{event: event.Clone(), revision: 1}
	l.order = append(l.order, event.ID)
	if prev, ok := l.lastFired[event.RuleID]; !ok || prev.Before(event.CreatedAt) {
		l.lastFired[event.RuleID] = event.CreatedAt
	}
	return nil
}

// Get returns one notification copy by id.
// Params: notification id.
// Returns: detached copy and existence flag.
func (l *Ledger) Get(id string) (domain.NotificationEvent, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	stored, ok := l.entries[id]
	if !ok {
		return domain.NotificationEvent{}, false
	}
	return stored.event.Clone(), true
}

// LastFiredAt returns the most recent firing time for one rule.
// Params: rule id.
// Returns: creation timestamp of the newest matching event and presence flag.
func (l *Ledger) LastFiredAt(ruleID string) (time.Time, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	at, ok := l.lastFired[ruleID]
	return at, ok
}

// Acknowledge marks one notification acknowledged by a user.
// The first acknowledgment wins: repeat calls return true but leave the
// user and time stamps untouched, in metadata and typed field alike.
// Params: notification id and acknowledging user.
// Returns: false for unknown id; idempotent otherwise.
func (l *Ledger) Acknowledge(id, userID string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	stored, ok := l.entries[id]
	if !ok {
		return false
	}
	stored.event.Status = domain.StatusAcknowledged
	if stored.event.AcknowledgedAt == nil {
		at := now
		stored.event.AcknowledgedAt = &at
		if stored.event.Metadata == nil {
			stored.event.Metadata = make(map[string]string, 2)
		}
		stored.event.Metadata[domain.MetaAcknowledgedBy] = userID
		stored.event.Metadata[domain.MetaAcknowledgedAt] = now.UTC().Format(time.RFC3339)
	}
	stored.revision++
	return true
}

// MarkSent transitions one notification from pending to sent.
// Params: notification id.
// Returns: true only when the pending-to-sent transition was applied.
func (l *Ledger) MarkSent(id string) bool {
	return l.transition(id, domain.StatusSent, domain.StatusPending)
}

// MarkDelivered transitions one notification from sent to delivered.
// Params: notification id.
// Returns: true only when the sent-to-delivered transition was applied.
func (l *Ledger) MarkDelivered(id string) bool {
	return l.transition(id, domain.StatusDelivered, domain.StatusSent)
}

// Resolve closes one notification.
// Params: notification id.
// Returns: false for unknown id.
func (l *Ledger) Resolve(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored, ok := l.entries[id]
	if !ok {
		return false
	}
	stored.event.Status = domain.StatusResolved
	stored.revision++
	return true
}

// transition applies one guarded status change.
// Params: id, target status, and allowed source statuses.
// Returns: true when current status matched one allowed source.
func (l *Ledger) transition(id string, to domain.Status, from ...domain.Status) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored, ok := l.entries[id]
	if !ok {
		return false
	}
	for _, allowed := range from {
		if stored.event.Status == allowed {
			stored.event.Status = to
			stored.revision++
			return true
		}
	}
	return false
}

// TryEscalate atomically checks the escalation gate and writes escalated state.
// Params: notification id, target escalation level, and gate predicate over current state.
// Returns: true when the gate held and level/status were written.
//
// The gate runs under the entry lock so an acknowledgment cannot interleave
// between the predicate read and the escalated write.
func (l *Ledger) TryEscalate(id string, level int, gate func(domain.NotificationEvent) bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored, ok := l.entries[id]
	if !ok {
		return false
	}
	if gate != nil && !gate(stored.event.Clone()) {
		return false
	}
	stored.event.EscalationLevel = level
	stored.event.Status = domain.StatusEscalated
	stored.revision++
	return true
}

// EntriesSince lists copies of events created within (since, now].
// Params: window start (exclusive).
// Returns: insertion-ordered detached copies.
func (l *Ledger) EntriesSince(since time.Time) []domain.NotificationEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.NotificationEvent, 0)
	for _, id := range l.order {
		stored, ok := l.entries[id]
		if !ok {
			continue
		}
		if !stored.event.CreatedAt.After(since) {
			continue
		}
		out = append(out, stored.event.Clone())
	}
	return out
}

// Len returns the number of retained events.
// Params: none.
// Returns: ledger size.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Compact evicts events older than the retention window.
// Params: current time and retention duration (0 disables eviction).
// Returns: number of evicted events.
func (l *Ledger) Compact(now time.Time, retention time.Duration) int {
	if retention <= 0 {
		return 0
	}
	cutoff := now.Add(-retention)
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := make([]string, 0, len(l.order))
	removed := 0
	for _, id := range l.order {
		stored, ok := l.entries[id]
		if !ok {
			continue
		}
		if stored.event.CreatedAt.Before(cutoff) {
			delete(l.entries, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	l.order = kept
	return removed
}
