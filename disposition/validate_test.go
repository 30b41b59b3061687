package disposition

import (
	"strings"
	"testing"
)

// validRule returns a rule that passes validation; tests mutate one field
// at a time.
func validRule() *Rule {
	return &Rule{
		ID:       "r1",
		Name:     "approve defective",
		Priority: 10,
		Active:   true,
		ConditionGroups: []ConditionGroup{
			{
				LogicOperator: LogicAnd,
				Conditions:    []Condition{cond("return.reason", OpEquals, "defective")},
			},
		},
		Actions: []Action{{Type: ActionAutoApprove}},
	}
}

// TestValidateRuleAcceptsValid verifies the baseline rule passes.
func TestValidateRuleAcceptsValid(t *testing.T) {
	if err := ValidateRule(validRule()); err != nil {
		t.Errorf("ValidateRule() = %v, want nil", err)
	}
}

// TestValidateRuleRejections verifies each structural check fires with a
// message naming the problem.
func TestValidateRuleRejections(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Rule)
		wantMsg string
	}{
		{
			"Empty name",
			func(r *Rule) { r.Name = "   " },
			"name is required",
		},
		{
			"Name too long",
			func(r *Rule) { r.Name = strings.Repeat("x", maxNameLength+1) },
			"exceeds maximum",
		},
		{
			"Priority zero",
			func(r *Rule) { r.Priority = 0 },
			"out of range",
		},
		{
			"Priority too high",
			func(r *Rule) { r.Priority = maxPriority + 1 },
			"out of range",
		},
		{
			"Too many tags",
			func(r *Rule) { r.Tags = make([]string, maxTagsPerRule+1) },
			"tags",
		},
		{
			"No condition groups",
			func(r *Rule) { r.ConditionGroups = nil },
			"at least one condition group",
		},
		{
			"Too many groups",
			func(r *Rule) {
				groups := make([]ConditionGroup, maxGroupsPerRule+1)
				for i := range groups {
					groups[i] = r.ConditionGroups[0]
				}
				r.ConditionGroups = groups
			},
			"maximum allowed",
		},
		{
			"Empty group",
			func(r *Rule) { r.ConditionGroups[0].Conditions = nil },
			"at least one condition",
		},
		{
			"Bad logic operator",
			func(r *Rule) { r.ConditionGroups[0].LogicOperator = "XOR" },
			"logic operator",
		},
		{
			"No actions",
			func(r *Rule) { r.Actions = nil },
			"at least one action",
		},
		{
			"Unknown action",
			func(r *Rule) { r.Actions = []Action{{Type: "escalate"}} },
			"unknown action",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rule := validRule()
			tc.mutate(rule)
			err := ValidateRule(rule)
			if err == nil {
				t.Fatal("ValidateRule() = nil, want error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("error %q should contain %q", err, tc.wantMsg)
			}
		})
	}
}

// TestValidateConditionOperatorsByKind verifies operator/field-kind
// compatibility checks at save time.
func TestValidateConditionOperatorsByKind(t *testing.T) {
	testCases := []struct {
		name string
		cond Condition
		ok   bool
	}{
		{"Number ordering", cond("order.total_amount", OpGreaterThan, "100"), true},
		{"Number between", cond("order.total_amount", OpBetween, "100,200"), true},
		{"Number contains rejected", cond("order.total_amount", OpContains, "1"), false},
		{"String contains", cond("order.billing_city", OpContains, "Tor"), true},
		{"String ordering rejected", cond("order.billing_city", OpLessThan, "Z"), false},
		{"Enum membership", cond("return.reason", OpIn, "defective,damaged"), true},
		{"Enum ordering rejected", cond("return.reason", OpGreaterThan, "a"), false},
		{"Date ordering", cond("order.created_at", OpLessThan, "2024-01-01"), true},
		{"Date membership rejected", cond("order.created_at", OpIn, "2024-01-01"), false},
		{"List contains", cond("item.category", OpContains, "footwear"), true},
		{"List equals rejected", cond("item.category", OpEquals, "footwear"), false},
		{"Unknown field", cond("order.gift_wrap", OpEquals, "yes"), false},
		{"Unknown operator", cond("order.total_amount", OperatorKind("regex"), "x"), false},
		{"Empty value", cond("order.total_amount", OpEquals, "  "), false},
		{"Between one bound", cond("order.total_amount", OpBetween, "100"), false},
		{"Between three bounds", cond("order.total_amount", OpBetween, "1,2,3"), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateCondition(tc.cond)
			if (err == nil) != tc.ok {
				t.Errorf("validateCondition(%+v) = %v, want ok=%v", tc.cond, err, tc.ok)
			}
		})
	}
}

// TestValidateConditionCustomField verifies custom-field conditions skip
// the kind check but still require a field name.
func TestValidateConditionCustomField(t *testing.T) {
	named := Condition{Field: FieldCustom, CustomField: "loyalty_tier", Operator: OpGreaterThan, Value: "1"}
	if err := validateCondition(named); err != nil {
		t.Errorf("validateCondition() = %v, want nil (kind unknown until computed)", err)
	}

	unnamed := Condition{Field: FieldCustom, Operator: OpEquals, Value: "gold"}
	if err := validateCondition(unnamed); err == nil {
		t.Error("validateCondition() = nil, want error for missing custom field name")
	}
}

// TestValidateActionParameters verifies required action parameters.
func TestValidateActionParameters(t *testing.T) {
	testCases := []struct {
		name   string
		action Action
		ok     bool
	}{
		{"Terminal needs nothing", Action{Type: ActionAutoDeny}, true},
		{"Tag present", Action{Type: ActionAddTag, Parameters: map[string]string{"tag": "fragile"}}, true},
		{"Tag missing", Action{Type: ActionAddTag}, false},
		{"Tag blank", Action{Type: ActionAddTag, Parameters: map[string]string{"tag": " "}}, false},
		{"Hint present", Action{Type: ActionSetPriorityHint, Parameters: map[string]string{"hint": "high"}}, true},
		{"Hint missing", Action{Type: ActionSetPriorityHint}, false},
		{"Channel present", Action{Type: ActionNotify, Parameters: map[string]string{"channel": "email"}}, true},
		{"Channel missing", Action{Type: ActionNotify, Parameters: map[string]string{"template": "t"}}, false},
		{"Fee waiver no params", Action{Type: ActionApplyFeeWaiver}, true},
		{"Flag no params", Action{Type: ActionFlagForReview}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateAction(tc.action)
			if (err == nil) != tc.ok {
				t.Errorf("validateAction(%+v) = %v, want ok=%v", tc.action, err, tc.ok)
			}
		})
	}
}

// TestValidateDerivedField verifies the derived-field naming rules.
func TestValidateDerivedField(t *testing.T) {
	testCases := []struct {
		name  string
		field DerivedField
		ok    bool
	}{
		{"Valid", DerivedField{Name: "order_age_days", Expression: "1 + 1"}, true},
		{"Leading underscore", DerivedField{Name: "_internal", Expression: "1"}, true},
		{"Empty name", DerivedField{Name: "", Expression: "1"}, false},
		{"Leading digit", DerivedField{Name: "1st", Expression: "1"}, false},
		{"Hyphen", DerivedField{Name: "order-age", Expression: "1"}, false},
		{"Too long", DerivedField{Name: strings.Repeat("a", maxDerivedFieldNameLen+1), Expression: "1"}, false},
		{"Empty expression", DerivedField{Name: "x", Expression: "  "}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateDerivedField(&tc.field)
			if (err == nil) != tc.ok {
				t.Errorf("ValidateDerivedField(%s) = %v, want ok=%v", tc.field.Name, err, tc.ok)
			}
		})
	}
}
