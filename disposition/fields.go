package disposition

import "sort"

// fieldSpec declares a well-known field: its canonical kind and how it is
// resolved from the evaluation context.
type fieldSpec struct {
	Kind    FieldKind
	Label   string
	resolve func(*EvaluationContext) Value
}

// fieldCatalog is the closed set of well-known fields. Custom fields go
// through FieldCustom and resolve against the derived-field map instead.
var fieldCatalog = map[string]fieldSpec{
	"order.total_amount": {
		Kind:  KindNumber,
		Label: "Order total amount",
		resolve: func(c *EvaluationContext) Value {
			return numberValue(c.Order.TotalAmount)
		},
	},
	"order.financial_status": {
		Kind:  KindEnum,
		Label: "Order financial status",
		resolve: func(c *EvaluationContext) Value {
			return enumValue(c.Order.FinancialStatus)
		},
	},
	"order.fulfillment_status": {
		Kind:  KindEnum,
		Label: "Order fulfillment status",
		resolve: func(c *EvaluationContext) Value {
			return enumValue(c.Order.FulfillmentStatus)
		},
	},
	"order.created_at": {
		Kind:  KindDate,
		Label: "Order date",
		resolve: func(c *EvaluationContext) Value {
			if c.Order.CreatedAt.IsZero() {
				return absentValue(KindDate)
			}
			return dateValue(c.Order.CreatedAt)
		},
	},
	"order.billing_city": {
		Kind:  KindString,
		Label: "Billing city",
		resolve: func(c *EvaluationContext) Value {
			return stringValue(c.Order.BillingCity)
		},
	},
	"order.billing_country": {
		Kind:  KindString,
		Label: "Billing country",
		resolve: func(c *EvaluationContext) Value {
			return stringValue(c.Order.BillingCountry)
		},
	},
	"order.payment_method": {
		Kind:  KindString,
		Label: "Payment method",
		resolve: func(c *EvaluationContext) Value {
			return stringValue(c.Order.PaymentMethod)
		},
	},
	"order.item_count": {
		Kind:  KindNumber,
		Label: "Order line item count",
		resolve: func(c *EvaluationContext) Value {
			return numberValue(float64(len(c.Order.LineItems)))
		},
	},
	"item.category": {
		Kind:  KindStringList,
		Label: "Order item categories",
		resolve: func(c *EvaluationContext) Value {
			items := make([]string, 0, len(c.Order.LineItems))
			for _, li := range c.Order.LineItems {
				items = append(items, li.Category)
			}
			return listValue(items)
		},
	},
	"item.sku": {
		Kind:  KindStringList,
		Label: "Order item SKUs",
		resolve: func(c *EvaluationContext) Value {
			items := make([]string, 0, len(c.Order.LineItems))
			for _, li := range c.Order.LineItems {
				items = append(items, li.SKU)
			}
			return listValue(items)
		},
	},
	"item.product_name": {
		Kind:  KindStringList,
		Label: "Order item product names",
		resolve: func(c *EvaluationContext) Value {
			items := make([]string, 0, len(c.Order.LineItems))
			for _, li := range c.Order.LineItems {
				items = append(items, li.ProductName)
			}
			return listValue(items)
		},
	},
	"return.reason": {
		Kind:  KindEnum,
		Label: "Return reason",
		resolve: func(c *EvaluationContext) Value {
			return enumValue(c.Return.Reason)
		},
	},
	"return.refund_amount": {
		Kind:  KindNumber,
		Label: "Requested refund amount",
		resolve: func(c *EvaluationContext) Value {
			return numberValue(c.Return.RefundAmount)
		},
	},
	"return.item_sku": {
		Kind:  KindStringList,
		Label: "Returned item SKUs",
		resolve: func(c *EvaluationContext) Value {
			items := make([]string, 0, len(c.Return.Items))
			for _, ri := range c.Return.Items {
				items = append(items, ri.SKU)
			}
			return listValue(items)
		},
	},
	"return.item_product_name": {
		Kind:  KindStringList,
		Label: "Returned item product names",
		resolve: func(c *EvaluationContext) Value {
			items := make([]string, 0, len(c.Return.Items))
			for _, ri := range c.Return.Items {
				items = append(items, ri.ProductName)
			}
			return listValue(items)
		},
	},
	"return.total_quantity": {
		Kind:  KindNumber,
		Label: "Total quantity to return",
		resolve: func(c *EvaluationContext) Value {
			total := 0
			for _, ri := range c.Return.Items {
				total += ri.Quantity
			}
			return numberValue(float64(total))
		},
	},
}

// operatorsByKind is the closed operator set valid for each field kind.
// Validation enforces this at save time; evaluation is total regardless.
var operatorsByKind = map[FieldKind][]OperatorKind{
	KindNumber: {
		OpEquals, OpNotEquals, OpGreaterThan, OpLessThan,
		OpGreaterOrEqual, OpLessOrEqual, OpBetween, OpIn, OpNotIn,
	},
	KindString: {
		OpEquals, OpNotEquals, OpContains, OpNotContains, OpIn, OpNotIn,
	},
	KindEnum: {
		OpEquals, OpNotEquals, OpIn, OpNotIn,
	},
	KindDate: {
		OpEquals, OpNotEquals, OpGreaterThan, OpLessThan,
		OpGreaterOrEqual, OpLessOrEqual, OpBetween,
	},
	KindStringList: {
		OpContains, OpNotContains,
	},
}

func operatorValidForKind(kind FieldKind, op OperatorKind) bool {
	for _, valid := range operatorsByKind[kind] {
		if valid == op {
			return true
		}
	}
	return false
}

func knownOperator(op OperatorKind) bool {
	switch op {
	case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpGreaterOrEqual,
		OpLessOrEqual, OpContains, OpNotContains, OpIn, OpNotIn, OpBetween:
		return true
	}
	return false
}

func knownAction(kind ActionKind) bool {
	switch kind {
	case ActionAutoApprove, ActionAutoDeny, ActionAddTag, ActionFlagForReview,
		ActionApplyFeeWaiver, ActionNotify, ActionSetPriorityHint:
		return true
	}
	return false
}

// FieldOption describes one well-known field for the rule editor.
type FieldOption struct {
	Field     string         `json:"field"`
	Label     string         `json:"label"`
	Kind      FieldKind      `json:"kind"`
	Operators []OperatorKind `json:"operators"`
}

// ActionOption describes one action kind for the rule editor.
type ActionOption struct {
	Type     ActionKind `json:"type"`
	Terminal bool       `json:"terminal"`
}

// FieldOptions is the metadata contract consumed by the rule editor. The
// same catalogs back save-time validation, so the editor can never offer a
// combination the engine would reject.
type FieldOptions struct {
	Fields  []FieldOption  `json:"fields"`
	Actions []ActionOption `json:"actions"`
}

// ListFieldOptions returns the field, operator, and action catalogs in a
// stable order.
func ListFieldOptions() FieldOptions {
	fields := make([]FieldOption, 0, len(fieldCatalog))
	for key, spec := range fieldCatalog {
		fields = append(fields, FieldOption{
			Field:     key,
			Label:     spec.Label,
			Kind:      spec.Kind,
			Operators: append([]OperatorKind(nil), operatorsByKind[spec.Kind]...),
		})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })

	actions := []ActionOption{
		{Type: ActionAutoApprove, Terminal: true},
		{Type: ActionAutoDeny, Terminal: true},
		{Type: ActionAddTag},
		{Type: ActionFlagForReview},
		{Type: ActionApplyFeeWaiver},
		{Type: ActionNotify},
		{Type: ActionSetPriorityHint},
	}

	return FieldOptions{Fields: fields, Actions: actions}
}
