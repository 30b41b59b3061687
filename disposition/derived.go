package disposition

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
)

// ErrDerivedFieldNotFound is returned when deleting an unknown field.
var ErrDerivedFieldNotFound = errors.New("derived field not found")

// DerivedFieldStore persists a tenant's derived-field definitions.
type DerivedFieldStore interface {
	List() ([]*DerivedField, error)
	Save(field *DerivedField) error
	Delete(name string) error
}

// InMemoryDerivedFieldStore implements DerivedFieldStore with a map.
type InMemoryDerivedFieldStore struct {
	fields map[string]*DerivedField
	mu     sync.RWMutex
}

// NewInMemoryDerivedFieldStore creates an empty store.
func NewInMemoryDerivedFieldStore() *InMemoryDerivedFieldStore {
	return &InMemoryDerivedFieldStore{fields: make(map[string]*DerivedField)}
}

// List returns copies of all definitions.
func (s *InMemoryDerivedFieldStore) List() ([]*DerivedField, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*DerivedField, 0, len(s.fields))
	for _, f := range s.fields {
		clone := *f
		all = append(all, &clone)
	}
	return all, nil
}

// Save creates or replaces a definition.
func (s *InMemoryDerivedFieldStore) Save(field *DerivedField) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if field.CreatedAt.IsZero() {
		field.CreatedAt = time.Now()
	}
	clone := *field
	s.fields[field.Name] = &clone
	return nil
}

// Delete removes a definition.
func (s *InMemoryDerivedFieldStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.fields[name]; !exists {
		return fmt.Errorf("derived field %s: %w", name, ErrDerivedFieldNotFound)
	}
	delete(s.fields, name)
	return nil
}

// DerivedFields holds a tenant's compiled derived-field programs. Each
// expression is compiled once, at save time, and evaluated against every
// context before rule evaluation starts. Thread-safe for concurrent
// evaluation while definitions are edited.
type DerivedFields struct {
	env      *cel.Env
	programs map[string]cel.Program
	mu       sync.RWMutex
}

// celCostLimit bounds expression evaluation cost so a pathological
// expression cannot stall the evaluation path.
const celCostLimit = 1_000_000

// NewDerivedFields creates an empty set with a CEL environment exposing
// the Order and Return facts as dynamic values.
func NewDerivedFields() (*DerivedFields, error) {
	env, err := cel.NewEnv(
		cel.Variable("Order", cel.DynType),
		cel.Variable("Return", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &DerivedFields{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Compile validates and compiles one derived-field expression. A
// compilation error means the definition is rejected at save time; the
// previously compiled program, if any, stays in place.
func (d *DerivedFields) Compile(name, expression string) error {
	ast, issues := d.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("compile error: %w", issues.Err())
	}

	prog, err := d.env.Program(ast, cel.CostLimit(celCostLimit))
	if err != nil {
		return fmt.Errorf("program creation error: %w", err)
	}

	d.mu.Lock()
	d.programs[name] = prog
	d.mu.Unlock()
	return nil
}

// CompileAll compiles every definition in the store. Used when a tenant's
// engine is built.
func (d *DerivedFields) CompileAll(store DerivedFieldStore) error {
	fields, err := store.List()
	if err != nil {
		return err
	}
	for _, f := range fields {
		if err := d.Compile(f.Name, f.Expression); err != nil {
			return fmt.Errorf("failed to compile derived field %s: %w", f.Name, err)
		}
	}
	return nil
}

// Remove drops a compiled program.
func (d *DerivedFields) Remove(name string) {
	d.mu.Lock()
	delete(d.programs, name)
	d.mu.Unlock()
}

// Compute evaluates every derived field against the context and returns
// the resulting custom-field values. A runtime evaluation failure leaves
// that field absent, so conditions on it evaluate to false; evaluation
// stays total.
func (d *DerivedFields) Compute(ctx *EvaluationContext) map[string]Value {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(d.programs) == 0 {
		return nil
	}

	facts := map[string]any{
		"Order":  orderFactsMap(ctx.Order),
		"Return": returnFactsMap(ctx.Return),
	}

	custom := make(map[string]Value, len(d.programs))
	for name, prog := range d.programs {
		out, _, err := prog.Eval(facts)
		if err != nil {
			continue
		}
		if v, ok := celValue(out.Value()); ok {
			custom[name] = v
		}
	}
	return custom
}

// celValue coerces a CEL result into the engine's value model.
func celValue(raw any) (Value, bool) {
	switch v := raw.(type) {
	case bool:
		if v {
			return stringValue("true"), true
		}
		return stringValue("false"), true
	case int64:
		return numberValue(float64(v)), true
	case uint64:
		return numberValue(float64(v)), true
	case float64:
		return numberValue(v), true
	case string:
		return stringValue(v), true
	case time.Time:
		return dateValue(v), true
	default:
		return Value{}, false
	}
}

func orderFactsMap(o OrderFacts) map[string]any {
	items := make([]any, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		items = append(items, map[string]any{
			"SKU":         li.SKU,
			"ProductName": li.ProductName,
			"Category":    li.Category,
			"Quantity":    li.Quantity,
			"Price":       li.Price,
		})
	}
	return map[string]any{
		"TotalAmount":       o.TotalAmount,
		"FinancialStatus":   o.FinancialStatus,
		"FulfillmentStatus": o.FulfillmentStatus,
		"CreatedAt":         o.CreatedAt,
		"BillingCity":       o.BillingCity,
		"BillingCountry":    o.BillingCountry,
		"PaymentMethod":     o.PaymentMethod,
		"LineItems":         items,
	}
}

func returnFactsMap(r ReturnFacts) map[string]any {
	items := make([]any, 0, len(r.Items))
	for _, ri := range r.Items {
		items = append(items, map[string]any{
			"SKU":         ri.SKU,
			"ProductName": ri.ProductName,
			"Quantity":    ri.Quantity,
			"Price":       ri.Price,
		})
	}
	return map[string]any{
		"Reason":       r.Reason,
		"RefundAmount": r.RefundAmount,
		"Items":        items,
	}
}
