package disposition

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrRuleNotFound is returned when a rule ID does not exist for the
	// store's tenant.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrRuleExists is returned when adding a rule whose ID is taken.
	ErrRuleExists = errors.New("rule already exists")
)

// RuleStore manages rule persistence for one tenant.
type RuleStore interface {
	// Add a new rule.
	Add(rule *Rule) error

	// Get a rule by ID.
	Get(id string) (*Rule, error)

	// List all rules, active or not.
	List() ([]*Rule, error)

	// ListActive returns only active rules.
	ListActive() ([]*Rule, error)

	// Update an existing rule.
	Update(rule *Rule) error

	// Delete a rule.
	Delete(id string) error
}

// InMemoryRuleStore implements RuleStore with a map. Used in tests and as
// the reference implementation of the store contract. Thread-safe; all
// reads and writes go through deep copies so callers can never alias the
// stored rules.
type InMemoryRuleStore struct {
	rules map[string]*Rule
	mu    sync.RWMutex
}

// NewInMemoryRuleStore creates an empty in-memory rule store.
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{
		rules: make(map[string]*Rule),
	}
}

// Add stores a new rule, setting its timestamps.
func (s *InMemoryRuleStore) Add(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[rule.ID]; exists {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrRuleExists)
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	s.rules[rule.ID] = rule.Clone()
	return nil
}

// Get retrieves a copy of a rule by ID.
func (s *InMemoryRuleStore) Get(id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[id]
	if !exists {
		return nil, fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}
	return rule.Clone(), nil
}

// List returns copies of all rules.
func (s *InMemoryRuleStore) List() ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		all = append(all, rule.Clone())
	}
	return all, nil
}

// ListActive returns copies of the active rules only.
func (s *InMemoryRuleStore) ListActive() ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*Rule
	for _, rule := range s.rules {
		if rule.Active {
			active = append(active, rule.Clone())
		}
	}
	return active, nil
}

// Update replaces an existing rule, preserving CreatedAt.
func (s *InMemoryRuleStore) Update(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[rule.ID]
	if !exists {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrRuleNotFound)
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()
	s.rules[rule.ID] = rule.Clone()
	return nil
}

// Delete removes a rule.
func (s *InMemoryRuleStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[id]; !exists {
		return fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}

	delete(s.rules, id)
	return nil
}
