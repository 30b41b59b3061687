package disposition

import (
	"errors"
	"testing"
)

// newDerived builds a compiled DerivedFields set from name/expression
// pairs, failing the test on any compile error.
func newDerived(t *testing.T, defs map[string]string) *DerivedFields {
	t.Helper()
	d, err := NewDerivedFields()
	if err != nil {
		t.Fatalf("NewDerivedFields() failed: %v", err)
	}
	for name, expr := range defs {
		if err := d.Compile(name, expr); err != nil {
			t.Fatalf("Compile(%s) failed: %v", name, err)
		}
	}
	return d
}

// TestDerivedCompileRejectsBadExpression verifies compile errors surface
// at save time.
func TestDerivedCompileRejectsBadExpression(t *testing.T) {
	d, err := NewDerivedFields()
	if err != nil {
		t.Fatalf("NewDerivedFields() failed: %v", err)
	}

	for _, expr := range []string{"1 +", "Order.", "unknown_var + 1"} {
		if err := d.Compile("bad", expr); err == nil {
			t.Errorf("Compile(%q) = nil, want error", expr)
		}
	}
}

// TestDerivedCompute verifies expression results are coerced into the
// value model.
func TestDerivedCompute(t *testing.T) {
	ctx := testContext()
	d := newDerived(t, map[string]string{
		"item_total":   "Order.TotalAmount",
		"is_paid":      `Order.FinancialStatus == "paid"`,
		"reason_tag":   `"reason:" + Return.Reason`,
		"refund_ratio": "Return.RefundAmount / Order.TotalAmount",
	})

	custom := d.Compute(ctx)

	if v, ok := custom["item_total"]; !ok || v.Kind != KindNumber || v.Num != 125.50 {
		t.Errorf("item_total = %+v, want number 125.50", v)
	}
	if v, ok := custom["is_paid"]; !ok || v.Kind != KindString || v.Str != "true" {
		t.Errorf("is_paid = %+v, want string \"true\"", v)
	}
	if v, ok := custom["reason_tag"]; !ok || v.Str != "reason:wrong_size" {
		t.Errorf("reason_tag = %+v, want \"reason:wrong_size\"", v)
	}
	if v, ok := custom["refund_ratio"]; !ok || v.Kind != KindNumber {
		t.Errorf("refund_ratio = %+v, want a number", v)
	}
}

// TestDerivedComputeRuntimeFailure verifies a runtime error leaves the
// field absent instead of failing the evaluation.
func TestDerivedComputeRuntimeFailure(t *testing.T) {
	ctx := testContext()
	d := newDerived(t, map[string]string{
		"broken": "Order.NoSuchField + 1",
		"fine":   "Order.TotalAmount",
	})

	custom := d.Compute(ctx)

	if _, ok := custom["broken"]; ok {
		t.Error("field with runtime error should be absent from the custom map")
	}
	if _, ok := custom["fine"]; !ok {
		t.Error("healthy field should still be computed")
	}

	// Conditions on the broken field degrade to false.
	broken := Condition{Field: FieldCustom, CustomField: "broken", Operator: OpGreaterThan, Value: "0"}
	if evalCondition(broken, ctx, custom) {
		t.Error("condition on a failed derived field should be false")
	}
}

// TestDerivedFieldInEvaluation wires a derived field through a full
// engine evaluation.
func TestDerivedFieldInEvaluation(t *testing.T) {
	ctx := testContext()
	d := newDerived(t, map[string]string{
		"full_refund": `Return.RefundAmount >= 89.99 ? "yes" : "no"`,
	})

	store := NewInMemoryRuleStore()
	rule := &Rule{
		ID:       "refund-review",
		Name:     "full refunds go to review",
		Priority: 1,
		Active:   true,
		ConditionGroups: []ConditionGroup{
			{
				LogicOperator: LogicAnd,
				Conditions: []Condition{
					{Field: FieldCustom, CustomField: "full_refund", Operator: OpEquals, Value: "yes"},
				},
			},
		},
		Actions: []Action{{Type: ActionAutoDeny}},
	}
	if err := store.Add(rule); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	snapshots := NewCachedSnapshotProvider("tenant-1", store, DefaultSnapshotConfig())
	engine := NewEngine("tenant-1", snapshots, d, nil)

	result, err := engine.Evaluate(ctx)
	if err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}
	if result.FinalStatus != DispositionDenied {
		t.Errorf("FinalStatus = %s, want %s (derived field should drive the match)", result.FinalStatus, DispositionDenied)
	}
}

// TestDerivedRemove verifies removed programs stop being computed.
func TestDerivedRemove(t *testing.T) {
	ctx := testContext()
	d := newDerived(t, map[string]string{"x": "1 + 1"})

	if custom := d.Compute(ctx); len(custom) != 1 {
		t.Fatalf("Compute() = %v, want one field", custom)
	}
	d.Remove("x")
	if custom := d.Compute(ctx); custom != nil {
		t.Errorf("Compute() after Remove = %v, want nil", custom)
	}
}

// TestDerivedFieldStoreCRUD exercises the in-memory definition store.
func TestDerivedFieldStoreCRUD(t *testing.T) {
	store := NewInMemoryDerivedFieldStore()

	if err := store.Save(&DerivedField{Name: "a", Expression: "1"}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if err := store.Save(&DerivedField{Name: "a", Expression: "2"}); err != nil {
		t.Fatalf("Save() replace failed: %v", err)
	}

	fields, err := store.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(fields) != 1 || fields[0].Expression != "2" {
		t.Errorf("List() = %v, want the replaced definition", fields)
	}
	if fields[0].CreatedAt.IsZero() {
		t.Error("Save() should set CreatedAt")
	}

	if err := store.Delete("a"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if err := store.Delete("a"); !errors.Is(err, ErrDerivedFieldNotFound) {
		t.Errorf("Delete(missing) = %v, want ErrDerivedFieldNotFound", err)
	}
}
