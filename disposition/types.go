package disposition

import "time"

// LogicOperator combines the conditions inside a single group.
type LogicOperator string

const (
	LogicAnd LogicOperator = "AND"
	LogicOr  LogicOperator = "OR"
)

// OperatorKind identifies a comparison operator. The set is closed: rules
// referencing an operator outside this list are rejected at save time.
type OperatorKind string

const (
	OpEquals         OperatorKind = "equals"
	OpNotEquals      OperatorKind = "not_equals"
	OpGreaterThan    OperatorKind = "greater_than"
	OpLessThan       OperatorKind = "less_than"
	OpGreaterOrEqual OperatorKind = "greater_or_equal"
	OpLessOrEqual    OperatorKind = "less_or_equal"
	OpContains       OperatorKind = "contains"
	OpNotContains    OperatorKind = "not_contains"
	OpIn             OperatorKind = "in"
	OpNotIn          OperatorKind = "not_in"
	OpBetween        OperatorKind = "between"
)

// ActionKind identifies what a matched rule does. Terminal kinds end the
// evaluation; cumulative kinds accumulate across all matched rules.
type ActionKind string

const (
	ActionAutoApprove     ActionKind = "auto_approve"
	ActionAutoDeny        ActionKind = "auto_deny"
	ActionAddTag          ActionKind = "add_tag"
	ActionFlagForReview   ActionKind = "flag_for_review"
	ActionApplyFeeWaiver  ActionKind = "apply_fee_waiver"
	ActionNotify          ActionKind = "notify"
	ActionSetPriorityHint ActionKind = "set_priority_hint"
)

// IsTerminal reports whether the action ends disposition evaluation.
func (k ActionKind) IsTerminal() bool {
	return k == ActionAutoApprove || k == ActionAutoDeny
}

// Disposition is the final triage outcome for a return request.
type Disposition string

const (
	DispositionApproved     Disposition = "approved"
	DispositionDenied       Disposition = "denied"
	DispositionManualReview Disposition = "manual_review"
)

// FieldCustom is the sentinel field key for merchant-defined custom fields.
// A condition on a custom field carries the field name in CustomField.
const FieldCustom = "custom"

// Condition is one atomic comparison: a field resolved from the evaluation
// context, an operator, and a literal right-hand side. Literals are stored
// as strings and coerced to the field's kind at evaluation time; a literal
// that does not parse makes the condition false rather than failing.
type Condition struct {
	Field       string       `json:"field"`
	CustomField string       `json:"customField,omitempty"`
	Operator    OperatorKind `json:"operator"`
	Value       string       `json:"value"`
}

// ConditionGroup combines its conditions with exactly one logic operator.
type ConditionGroup struct {
	LogicOperator LogicOperator `json:"logicOperator"`
	Conditions    []Condition   `json:"conditions"`
}

// Action is attached to a rule and fired when the rule matches.
type Action struct {
	Type       ActionKind        `json:"type"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// Rule is a merchant-authored disposition policy. Groups combine with AND
// at the rule level; each group applies its own operator internally.
// Lower Priority evaluates earlier and wins terminal-action conflicts.
type Rule struct {
	ID              string           `json:"id"`
	TenantID        string           `json:"tenantId"`
	Name            string           `json:"name"`
	Description     string           `json:"description,omitempty"`
	Priority        int              `json:"priority"`
	Active          bool             `json:"active"`
	Tags            []string         `json:"tags,omitempty"`
	ConditionGroups []ConditionGroup `json:"conditionGroups"`
	Actions         []Action         `json:"actions"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// Clone returns a deep copy of the rule. Snapshots hand out clones so that
// concurrent edits can never be observed mid-evaluation.
func (r *Rule) Clone() *Rule {
	c := *r
	c.Tags = append([]string(nil), r.Tags...)
	c.ConditionGroups = make([]ConditionGroup, len(r.ConditionGroups))
	for i, g := range r.ConditionGroups {
		c.ConditionGroups[i] = ConditionGroup{
			LogicOperator: g.LogicOperator,
			Conditions:    append([]Condition(nil), g.Conditions...),
		}
	}
	c.Actions = make([]Action, len(r.Actions))
	for i, a := range r.Actions {
		params := make(map[string]string, len(a.Parameters))
		for k, v := range a.Parameters {
			params[k] = v
		}
		c.Actions[i] = Action{Type: a.Type, Parameters: params}
	}
	return &c
}

// LineItem is one line of the originating order.
type LineItem struct {
	SKU         string  `json:"sku"`
	ProductName string  `json:"productName"`
	Category    string  `json:"category"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

// OrderFacts carries the order-side inputs to an evaluation.
type OrderFacts struct {
	TotalAmount       float64    `json:"totalAmount"`
	FinancialStatus   string     `json:"financialStatus"`
	FulfillmentStatus string     `json:"fulfillmentStatus"`
	CreatedAt         time.Time  `json:"createdAt"`
	BillingCity       string     `json:"billingCity"`
	BillingCountry    string     `json:"billingCountry"`
	PaymentMethod     string     `json:"paymentMethod"`
	LineItems         []LineItem `json:"lineItems"`
}

// ReturnItem is one item the customer wants to send back.
type ReturnItem struct {
	SKU         string  `json:"sku"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

// ReturnFacts carries the return-side inputs to an evaluation.
type ReturnFacts struct {
	Reason       string       `json:"reason"`
	RefundAmount float64      `json:"refundAmount"`
	Items        []ReturnItem `json:"items"`
}

// EvaluationContext is the read-only input to one evaluation call. The
// engine never mutates it; derived custom fields are computed into a
// separate map before rule evaluation starts.
type EvaluationContext struct {
	Order  OrderFacts  `json:"order"`
	Return ReturnFacts `json:"return"`
}

// StepExplanation describes one condition's outcome for the rule editor's
// test mode. Steps appear in declaration order across groups; GroupIndex
// and GroupOperator mark the group boundaries.
type StepExplanation struct {
	GroupIndex    int           `json:"groupIndex"`
	GroupOperator LogicOperator `json:"groupOperator"`
	Field         string        `json:"field"`
	Operator      OperatorKind  `json:"operator"`
	Value         string        `json:"value"`
	ConditionMet  bool          `json:"conditionMet"`
	Explanation   string        `json:"explanation"`
}

// EvaluationResult is the outcome of running a tenant's active rule set
// against one context.
type EvaluationResult struct {
	MatchedRules      []string          `json:"matchedRules"`
	FinalStatus       Disposition       `json:"finalStatus"`
	CumulativeActions []Action          `json:"cumulativeActions"`
	Trace             []StepExplanation `json:"trace,omitempty"`
}

// TestResult is returned by TestRuleConditions for a single rule's groups.
type TestResult struct {
	RuleMatched bool              `json:"ruleMatched"`
	Steps       []StepExplanation `json:"steps"`
}

// SimulationResult summarizes a dry run of the whole active rule set.
type SimulationResult struct {
	FinalStatus         Disposition `json:"finalStatus"`
	TotalRulesEvaluated int         `json:"totalRulesEvaluated"`
	RulesMatched        int         `json:"rulesMatched"`
	MatchedRuleNames    []string    `json:"matchedRuleNames"`
}

// DerivedField is a merchant-defined CEL expression computed over the
// evaluation context and exposed to conditions as a custom field.
type DerivedField struct {
	Name       string    `json:"name"`
	Expression string    `json:"expression"`
	CreatedAt  time.Time `json:"createdAt"`
}
