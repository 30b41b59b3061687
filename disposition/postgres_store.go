package disposition

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresRuleStore implements RuleStore backed by PostgreSQL, scoped to
// one tenant. Condition groups, actions, and tags persist as JSONB next
// to the scalar rule columns.
type PostgresRuleStore struct {
	db       *sql.DB
	tenantID string
}

// NewPostgresRuleStore creates a PostgreSQL-backed RuleStore for a tenant.
func NewPostgresRuleStore(db *sql.DB, tenantID string) *PostgresRuleStore {
	return &PostgresRuleStore{db: db, tenantID: tenantID}
}

func marshalRuleDocs(rule *Rule) (groups, actions, tags []byte, err error) {
	if groups, err = json.Marshal(rule.ConditionGroups); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal condition groups: %w", err)
	}
	if actions, err = json.Marshal(rule.Actions); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal actions: %w", err)
	}
	ruleTags := rule.Tags
	if ruleTags == nil {
		ruleTags = []string{}
	}
	if tags, err = json.Marshal(ruleTags); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal tags: %w", err)
	}
	return groups, actions, tags, nil
}

func scanRule(row interface{ Scan(...any) error }, tenantID string) (*Rule, error) {
	var (
		rule    Rule
		groups  []byte
		actions []byte
		tags    []byte
	)
	err := row.Scan(&rule.ID, &rule.Name, &rule.Description, &rule.Priority,
		&rule.Active, &tags, &groups, &actions, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rule.TenantID = tenantID

	if err := json.Unmarshal(groups, &rule.ConditionGroups); err != nil {
		return nil, fmt.Errorf("invalid condition groups for rule %s: %w", rule.ID, err)
	}
	if err := json.Unmarshal(actions, &rule.Actions); err != nil {
		return nil, fmt.Errorf("invalid actions for rule %s: %w", rule.ID, err)
	}
	if err := json.Unmarshal(tags, &rule.Tags); err != nil {
		return nil, fmt.Errorf("invalid tags for rule %s: %w", rule.ID, err)
	}
	return &rule, nil
}

const ruleColumns = `id, name, description, priority, active, tags, condition_groups, actions, created_at, updated_at`

// Add inserts a new rule.
func (s *PostgresRuleStore) Add(rule *Rule) error {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM return_rules WHERE id = $1 AND tenant_id = $2)
	`, rule.ID, s.tenantID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check rule existence: %w", err)
	}
	if exists {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrRuleExists)
	}

	groups, actions, tags, err := marshalRuleDocs(rule)
	if err != nil {
		return err
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	_, err = s.db.Exec(`
		INSERT INTO return_rules (id, tenant_id, name, description, priority, active, tags, condition_groups, actions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, rule.ID, s.tenantID, rule.Name, rule.Description, rule.Priority,
		rule.Active, tags, groups, actions, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

// Get retrieves a rule by ID.
func (s *PostgresRuleStore) Get(id string) (*Rule, error) {
	row := s.db.QueryRow(`
		SELECT `+ruleColumns+`
		FROM return_rules
		WHERE id = $1 AND tenant_id = $2
	`, id, s.tenantID)

	rule, err := scanRule(row, s.tenantID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// List returns all of the tenant's rules, newest first.
func (s *PostgresRuleStore) List() ([]*Rule, error) {
	return s.list(`
		SELECT ` + ruleColumns + `
		FROM return_rules
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`)
}

// ListActive returns the tenant's active rules in evaluation order.
func (s *PostgresRuleStore) ListActive() ([]*Rule, error) {
	return s.list(`
		SELECT ` + ruleColumns + `
		FROM return_rules
		WHERE tenant_id = $1 AND active = true
		ORDER BY priority ASC, id ASC
	`)
}

func (s *PostgresRuleStore) list(query string) ([]*Rule, error) {
	rows, err := s.db.Query(query, s.tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rulesList []*Rule
	for rows.Next() {
		rule, err := scanRule(rows, s.tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rulesList = append(rulesList, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rulesList, nil
}

// Update modifies an existing rule.
func (s *PostgresRuleStore) Update(rule *Rule) error {
	groups, actions, tags, err := marshalRuleDocs(rule)
	if err != nil {
		return err
	}

	rule.UpdatedAt = time.Now()

	result, err := s.db.Exec(`
		UPDATE return_rules
		SET name = $1, description = $2, priority = $3, active = $4,
		    tags = $5, condition_groups = $6, actions = $7, updated_at = $8
		WHERE id = $9 AND tenant_id = $10
	`, rule.Name, rule.Description, rule.Priority, rule.Active,
		tags, groups, actions, rule.UpdatedAt, rule.ID, s.tenantID)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrRuleNotFound)
	}
	return nil
}

// Delete removes a rule.
func (s *PostgresRuleStore) Delete(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM return_rules
		WHERE id = $1 AND tenant_id = $2
	`, id, s.tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}
	return nil
}

// PostgresDerivedFieldStore implements DerivedFieldStore for one tenant.
type PostgresDerivedFieldStore struct {
	db       *sql.DB
	tenantID string
}

// NewPostgresDerivedFieldStore creates a store for the tenant.
func NewPostgresDerivedFieldStore(db *sql.DB, tenantID string) *PostgresDerivedFieldStore {
	return &PostgresDerivedFieldStore{db: db, tenantID: tenantID}
}

// List returns all of the tenant's derived fields.
func (s *PostgresDerivedFieldStore) List() ([]*DerivedField, error) {
	rows, err := s.db.Query(`
		SELECT name, expression, created_at
		FROM derived_fields
		WHERE tenant_id = $1
		ORDER BY name ASC
	`, s.tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list derived fields: %w", err)
	}
	defer rows.Close()

	var fields []*DerivedField
	for rows.Next() {
		var f DerivedField
		if err := rows.Scan(&f.Name, &f.Expression, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan derived field: %w", err)
		}
		fields = append(fields, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating derived fields: %w", err)
	}
	return fields, nil
}

// Save upserts a derived field definition.
func (s *PostgresDerivedFieldStore) Save(field *DerivedField) error {
	if field.CreatedAt.IsZero() {
		field.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO derived_fields (tenant_id, name, expression, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, name) DO UPDATE SET expression = EXCLUDED.expression
	`, s.tenantID, field.Name, field.Expression, field.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save derived field: %w", err)
	}
	return nil
}

// Delete removes a derived field definition.
func (s *PostgresDerivedFieldStore) Delete(name string) error {
	result, err := s.db.Exec(`
		DELETE FROM derived_fields
		WHERE tenant_id = $1 AND name = $2
	`, s.tenantID, name)
	if err != nil {
		return fmt.Errorf("failed to delete derived field: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("derived field %s: %w", name, ErrDerivedFieldNotFound)
	}
	return nil
}
