package disposition

import (
	"errors"
	"testing"
)

var _ RuleStore = (*InMemoryRuleStore)(nil)

// TestInMemoryStoreCRUD exercises the full store contract.
func TestInMemoryStoreCRUD(t *testing.T) {
	store := NewInMemoryRuleStore()
	rule := validRule()

	if err := store.Add(rule); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if rule.CreatedAt.IsZero() || rule.UpdatedAt.IsZero() {
		t.Error("Add() should set timestamps")
	}

	got, err := store.Get(rule.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Name != rule.Name {
		t.Errorf("Get() name = %q, want %q", got.Name, rule.Name)
	}

	got.Name = "renamed"
	got.Priority = 42
	if err := store.Update(got); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	updated, err := store.Get(rule.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if updated.Name != "renamed" || updated.Priority != 42 {
		t.Errorf("Update() not persisted: %+v", updated)
	}
	if !updated.CreatedAt.Equal(rule.CreatedAt) {
		t.Error("Update() should preserve CreatedAt")
	}

	if err := store.Delete(rule.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := store.Get(rule.ID); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Get() after delete = %v, want ErrRuleNotFound", err)
	}
}

// TestInMemoryStoreErrors verifies the sentinel errors for duplicate adds
// and missing IDs.
func TestInMemoryStoreErrors(t *testing.T) {
	store := NewInMemoryRuleStore()
	rule := validRule()

	if err := store.Add(rule); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if err := store.Add(rule); !errors.Is(err, ErrRuleExists) {
		t.Errorf("duplicate Add() = %v, want ErrRuleExists", err)
	}

	missing := validRule()
	missing.ID = "ghost"
	if err := store.Update(missing); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Update(missing) = %v, want ErrRuleNotFound", err)
	}
	if err := store.Delete("ghost"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Delete(missing) = %v, want ErrRuleNotFound", err)
	}
	if _, err := store.Get("ghost"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Get(missing) = %v, want ErrRuleNotFound", err)
	}
}

// TestInMemoryStoreListActive verifies the active filter.
func TestInMemoryStoreListActive(t *testing.T) {
	store := NewInMemoryRuleStore()

	active := validRule()
	active.ID = "on"
	inactive := validRule()
	inactive.ID = "off"
	inactive.Active = false

	for _, r := range []*Rule{active, inactive} {
		if err := store.Add(r); err != nil {
			t.Fatalf("Add(%s) failed: %v", r.ID, err)
		}
	}

	all, err := store.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("List() returned %d rules, want 2", len(all))
	}

	activeOnly, err := store.ListActive()
	if err != nil {
		t.Fatalf("ListActive() failed: %v", err)
	}
	if len(activeOnly) != 1 || activeOnly[0].ID != "on" {
		t.Errorf("ListActive() = %v, want just the active rule", activeOnly)
	}
}

// TestInMemoryStoreIsolation verifies callers cannot mutate stored rules
// through returned pointers.
func TestInMemoryStoreIsolation(t *testing.T) {
	store := NewInMemoryRuleStore()
	rule := validRule()
	rule.Tags = []string{"original"}
	if err := store.Add(rule); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	// Mutating the rule passed to Add must not affect the store.
	rule.Name = "mutated"
	rule.Tags[0] = "mutated"
	rule.ConditionGroups[0].Conditions[0].Value = "mutated"

	got, err := store.Get(rule.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Name == "mutated" || got.Tags[0] == "mutated" || got.ConditionGroups[0].Conditions[0].Value == "mutated" {
		t.Error("store aliases the caller's rule")
	}

	// Mutating what Get returned must not affect later reads.
	got.Tags[0] = "scribbled"
	again, err := store.Get(rule.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if again.Tags[0] == "scribbled" {
		t.Error("store aliases rules returned from Get")
	}
}
