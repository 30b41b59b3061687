// Package tenant manages one disposition engine per tenant. The manager
// is the write path: every rule edit goes through it so the tenant's
// snapshot provider is invalidated and live evaluations keep seeing a
// consistent rule set.
package tenant

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/liamcoop/returns/disposition"
)

// ErrTenantNotFound is returned for tenants the manager has not loaded.
var ErrTenantNotFound = errors.New("tenant not found")

type tenantState struct {
	engine        *disposition.Engine
	rules         disposition.RuleStore
	derivedFields disposition.DerivedFieldStore
	derived       *disposition.DerivedFields
	snapshots     *disposition.CachedSnapshotProvider
}

// Manager holds the engines for all loaded tenants.
type Manager struct {
	db      *sql.DB
	metrics *disposition.Metrics

	tenants map[string]*tenantState
	mu      sync.RWMutex
}

// NewManager creates a manager. db may be nil when all tenants are
// registered with explicit stores (tests); metrics may be nil.
func NewManager(db *sql.DB, metrics *disposition.Metrics) *Manager {
	return &Manager{
		db:      db,
		metrics: metrics,
		tenants: make(map[string]*tenantState),
	}
}

// LoadAll loads every tenant from the database and builds its engine.
func (m *Manager) LoadAll() error {
	rows, err := m.db.Query(`SELECT id FROM tenants ORDER BY created_at ASC`)
	if err != nil {
		return fmt.Errorf("failed to fetch tenants: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan tenant row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating tenant rows: %w", err)
	}

	for _, id := range ids {
		if err := m.Create(id); err != nil {
			return fmt.Errorf("failed to initialize tenant %s: %w", id, err)
		}
	}
	return nil
}

// Create builds and registers an engine for a tenant using the
// Postgres-backed stores.
func (m *Manager) Create(tenantID string) error {
	return m.Register(tenantID,
		disposition.NewPostgresRuleStore(m.db, tenantID),
		disposition.NewPostgresDerivedFieldStore(m.db, tenantID),
	)
}

// Register builds an engine for the tenant on the supplied stores. Derived
// fields are compiled eagerly so a broken definition surfaces here rather
// than silently at evaluation time.
func (m *Manager) Register(tenantID string, rules disposition.RuleStore, derivedFields disposition.DerivedFieldStore) error {
	derived, err := disposition.NewDerivedFields()
	if err != nil {
		return fmt.Errorf("failed to create derived field set: %w", err)
	}
	if err := derived.CompileAll(derivedFields); err != nil {
		return err
	}

	snapshots := disposition.NewCachedSnapshotProvider(tenantID, rules, disposition.DefaultSnapshotConfig())
	engine := disposition.NewEngine(tenantID, snapshots, derived, m.metrics)

	m.mu.Lock()
	m.tenants[tenantID] = &tenantState{
		engine:        engine,
		rules:         rules,
		derivedFields: derivedFields,
		derived:       derived,
		snapshots:     snapshots,
	}
	m.mu.Unlock()
	return nil
}

// Engine retrieves a tenant's engine.
func (m *Manager) Engine(tenantID string) (*disposition.Engine, error) {
	state, err := m.state(tenantID)
	if err != nil {
		return nil, err
	}
	return state.engine, nil
}

// RuleStore retrieves a tenant's rule store for read-only listing.
func (m *Manager) RuleStore(tenantID string) (disposition.RuleStore, error) {
	state, err := m.state(tenantID)
	if err != nil {
		return nil, err
	}
	return state.rules, nil
}

// DerivedFieldStore retrieves a tenant's derived-field store.
func (m *Manager) DerivedFieldStore(tenantID string) (disposition.DerivedFieldStore, error) {
	state, err := m.state(tenantID)
	if err != nil {
		return nil, err
	}
	return state.derivedFields, nil
}

// List returns all loaded tenant IDs.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.tenants))
	for id := range m.tenants {
		ids = append(ids, id)
	}
	return ids
}

// Remove drops a tenant's engine from the manager. Persisted rules are
// untouched.
func (m *Manager) Remove(tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tenants[tenantID]; !exists {
		return fmt.Errorf("tenant %s: %w", tenantID, ErrTenantNotFound)
	}
	delete(m.tenants, tenantID)
	return nil
}

func (m *Manager) state(tenantID string) (*tenantState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, exists := m.tenants[tenantID]
	if !exists {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, ErrTenantNotFound)
	}
	return state, nil
}

// AddRule validates and persists a new rule, then invalidates the
// tenant's snapshot so the next evaluation sees it.
func (m *Manager) AddRule(tenantID string, rule *disposition.Rule) error {
	state, err := m.state(tenantID)
	if err != nil {
		return err
	}
	if err := disposition.ValidateRule(rule); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}
	if err := state.rules.Add(rule); err != nil {
		return err
	}
	state.snapshots.Invalidate()
	return nil
}

// UpdateRule validates and persists a rule edit, then invalidates the
// tenant's snapshot.
func (m *Manager) UpdateRule(tenantID string, rule *disposition.Rule) error {
	state, err := m.state(tenantID)
	if err != nil {
		return err
	}
	if err := disposition.ValidateRule(rule); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}
	if err := state.rules.Update(rule); err != nil {
		return err
	}
	state.snapshots.Invalidate()
	return nil
}

// DeleteRule removes a rule and invalidates the tenant's snapshot.
func (m *Manager) DeleteRule(tenantID, ruleID string) error {
	state, err := m.state(tenantID)
	if err != nil {
		return err
	}
	if err := state.rules.Delete(ruleID); err != nil {
		return err
	}
	state.snapshots.Invalidate()
	return nil
}

// SaveDerivedField validates, compiles, and persists a derived-field
// definition. Compilation happens before persistence, so a definition
// that does not compile is never stored.
func (m *Manager) SaveDerivedField(tenantID string, field *disposition.DerivedField) error {
	state, err := m.state(tenantID)
	if err != nil {
		return err
	}
	if err := disposition.ValidateDerivedField(field); err != nil {
		return fmt.Errorf("derived field validation failed: %w", err)
	}
	if err := state.derived.Compile(field.Name, field.Expression); err != nil {
		return fmt.Errorf("derived field validation failed: %w", err)
	}
	if err := state.derivedFields.Save(field); err != nil {
		state.derived.Remove(field.Name)
		return err
	}
	return nil
}

// DeleteDerivedField removes a derived-field definition and its compiled
// program.
func (m *Manager) DeleteDerivedField(tenantID, name string) error {
	state, err := m.state(tenantID)
	if err != nil {
		return err
	}
	if err := state.derivedFields.Delete(name); err != nil {
		return err
	}
	state.derived.Remove(name)
	return nil
}

// EvaluateDisposition runs the production evaluation path for a tenant.
func (m *Manager) EvaluateDisposition(tenantID string, ctx *disposition.EvaluationContext) (*disposition.EvaluationResult, error) {
	engine, err := m.Engine(tenantID)
	if err != nil {
		return nil, err
	}
	return engine.Evaluate(ctx)
}

// SimulateRuleset dry-runs the tenant's active rule set.
func (m *Manager) SimulateRuleset(tenantID string, ctx *disposition.EvaluationContext) (*disposition.SimulationResult, error) {
	engine, err := m.Engine(tenantID)
	if err != nil {
		return nil, err
	}
	return engine.Simulate(ctx)
}

// TestRuleConditions explains a draft rule's condition groups for the
// tenant, with its derived fields available.
func (m *Manager) TestRuleConditions(tenantID string, groups []disposition.ConditionGroup, ctx *disposition.EvaluationContext) (*disposition.TestResult, error) {
	engine, err := m.Engine(tenantID)
	if err != nil {
		return nil, err
	}
	return engine.TestConditions(groups, ctx), nil
}
