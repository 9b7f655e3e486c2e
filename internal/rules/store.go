package rules

import (
	"fmt"
	"sort"
	"sync"

	"alertengine/internal/domain"
)

// Store keeps the live rule set for the single running instance.
// Params: guarded map of rule id to rule.
// Returns: concurrent rule registry.
type Store struct {
	mu    sync.RWMutex
	rules map[string]domain.Rule
}

// NewStore creates an empty rule store.
// Params: none.
// Returns: initialized store.
func NewStore() *Store {
	return &Store{rules: make(map[string]domain.Rule)}
}

// Upsert validates and installs a rule, replacing any rule with the same id.
// Params: rule to install.
// Returns: validation error when the rule is malformed.
func (s *Store) Upsert(rule domain.Rule) error {
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("rule %q: %w", rule.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.ID] = rule
	return nil
}

// Remove deletes a rule by id.
// Params: rule id.
// Returns: true when a rule was removed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return false
	}
	delete(s.rules, id)
	return true
}

// Get looks up a rule by id.
// Params: rule id.
// Returns: rule copy and presence flag.
func (s *Store) Get(id string) (domain.Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[id]
	return rule, ok
}

// List returns every installed rule sorted by id.
// Params: none.
// Returns: stable rule slice.
func (s *Store) List() []domain.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListActive returns the rules currently eligible to fire, sorted by id.
// Params: none.
// Returns: active rule slice.
func (s *Store) ListActive() []domain.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		if rule.Active {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetActive flips a rule's active flag in place.
// Params: rule id and desired flag.
// Returns: previous flag and presence indicator.
func (s *Store) SetActive(id string, active bool) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[id]
	if !ok {
		return false, false
	}
	previous := rule.Active
	rule.Active = active
	s.rules[id] = rule
	return previous, true
}

// Len reports how many rules are installed.
// Params: none.
// Returns: rule count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}
