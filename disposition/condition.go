package disposition

import (
	"fmt"
	"strings"
)

// resolveField resolves a condition's left-hand side against the context.
// Unknown well-known fields and missing custom fields resolve to a typed
// absent value, which no operator ever matches.
func resolveField(cond Condition, ctx *EvaluationContext, custom map[string]Value) Value {
	if cond.Field == FieldCustom {
		if v, ok := custom[cond.CustomField]; ok {
			return v
		}
		return absentValue(KindString)
	}
	spec, ok := fieldCatalog[cond.Field]
	if !ok {
		return absentValue(KindString)
	}
	return spec.resolve(ctx)
}

// conditionKey is the field identifier used in traces: the well-known key,
// or "custom:<name>" for custom fields.
func conditionKey(cond Condition) string {
	if cond.Field == FieldCustom {
		return FieldCustom + ":" + cond.CustomField
	}
	return cond.Field
}

// evalCondition evaluates one atomic condition. It is total: missing
// fields, unknown operators, and literals that do not parse all yield
// false, never an error.
func evalCondition(cond Condition, ctx *EvaluationContext, custom map[string]Value) bool {
	return conditionMet(resolveField(cond, ctx, custom), cond.Operator, cond.Value)
}

func conditionMet(lhs Value, op OperatorKind, literal string) bool {
	if lhs.Absent {
		return false
	}

	switch op {
	case OpEquals, OpNotEquals:
		rhs, ok := parseLiteral(lhs.Kind, literal)
		if !ok {
			return false
		}
		eq, defined := valuesEqual(lhs, rhs)
		if !defined {
			return false
		}
		if op == OpNotEquals {
			return !eq
		}
		return eq

	case OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual:
		return orderedCompare(lhs, op, literal)

	case OpContains, OpNotContains:
		met, defined := containsMatch(lhs, literal)
		if !defined {
			return false
		}
		if op == OpNotContains {
			return !met
		}
		return met

	case OpIn, OpNotIn:
		items := splitList(literal)
		if len(items) == 0 {
			return false
		}
		member := false
		for _, item := range items {
			rhs, ok := parseLiteral(lhs.Kind, item)
			if !ok {
				continue
			}
			if eq, defined := valuesEqual(lhs, rhs); defined && eq {
				member = true
				break
			}
		}
		if op == OpNotIn {
			return !member
		}
		return member

	case OpBetween:
		return betweenMatch(lhs, literal)
	}

	return false
}

// valuesEqual compares two values of the same kind. String and enum
// comparison is case-insensitive; dates compare at day granularity.
// The second result is false where equality is undefined (lists).
func valuesEqual(a, b Value) (equal, defined bool) {
	switch a.Kind {
	case KindNumber:
		return a.Num == b.Num, true
	case KindString, KindEnum:
		return equalFold(a.Str, b.Str), true
	case KindDate:
		return sameDay(a.Date, b.Date), true
	default:
		return false, false
	}
}

// orderedCompare handles the four ordering operators. Ordering is defined
// for numbers and dates only; anything else is false.
func orderedCompare(lhs Value, op OperatorKind, literal string) bool {
	rhs, ok := parseLiteral(lhs.Kind, literal)
	if !ok {
		return false
	}

	switch lhs.Kind {
	case KindNumber:
		switch op {
		case OpGreaterThan:
			return lhs.Num > rhs.Num
		case OpLessThan:
			return lhs.Num < rhs.Num
		case OpGreaterOrEqual:
			return lhs.Num >= rhs.Num
		case OpLessOrEqual:
			return lhs.Num <= rhs.Num
		}
	case KindDate:
		switch op {
		case OpGreaterThan:
			return lhs.Date.After(rhs.Date) && !sameDay(lhs.Date, rhs.Date)
		case OpLessThan:
			return lhs.Date.Before(rhs.Date) && !sameDay(lhs.Date, rhs.Date)
		case OpGreaterOrEqual:
			return lhs.Date.After(rhs.Date) || sameDay(lhs.Date, rhs.Date)
		case OpLessOrEqual:
			return lhs.Date.Before(rhs.Date) || sameDay(lhs.Date, rhs.Date)
		}
	}
	return false
}

// containsMatch is a substring test for strings and a membership test for
// lists, both case-insensitive. Undefined for other kinds.
func containsMatch(lhs Value, literal string) (met, defined bool) {
	switch lhs.Kind {
	case KindString, KindEnum:
		return strings.Contains(
			strings.ToLower(lhs.Str),
			strings.ToLower(strings.TrimSpace(literal)),
		), true
	case KindStringList:
		for _, item := range lhs.List {
			if equalFold(item, literal) {
				return true, true
			}
		}
		return false, true
	default:
		return false, false
	}
}

// betweenMatch implements the inclusive range operator. The literal must
// supply exactly "low,high" in the field's kind.
func betweenMatch(lhs Value, literal string) bool {
	bounds := splitList(literal)
	if len(bounds) != 2 {
		return false
	}
	low, okLow := parseLiteral(lhs.Kind, bounds[0])
	high, okHigh := parseLiteral(lhs.Kind, bounds[1])
	if !okLow || !okHigh {
		return false
	}

	switch lhs.Kind {
	case KindNumber:
		return lhs.Num >= low.Num && lhs.Num <= high.Num
	case KindDate:
		afterLow := lhs.Date.After(low.Date) || sameDay(lhs.Date, low.Date)
		beforeHigh := lhs.Date.Before(high.Date) || sameDay(lhs.Date, high.Date)
		return afterLow && beforeHigh
	}
	return false
}

// explainCondition evaluates one condition and renders a human-readable
// explanation for the rule editor. The explanation is deterministic for a
// given (condition, context) pair.
func explainCondition(cond Condition, ctx *EvaluationContext, custom map[string]Value) (bool, string) {
	lhs := resolveField(cond, ctx, custom)
	met := conditionMet(lhs, cond.Operator, cond.Value)

	key := conditionKey(cond)
	if lhs.Absent {
		return false, fmt.Sprintf("%s is not present in this context => false", key)
	}
	return met, fmt.Sprintf("%s (%s) %s %q => %t", key, lhs.display(), cond.Operator, cond.Value, met)
}
