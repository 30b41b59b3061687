package disposition

import (
	"fmt"
	"regexp"
	"strings"
)

// Validation limits. Rules beyond these are editor bugs or abuse, not
// legitimate merchant policies.
const (
	maxNameLength          = 200
	maxPriority            = 10000
	maxGroupsPerRule       = 20
	maxConditionsPerGroup  = 50
	maxTagsPerRule         = 25
	maxDerivedFieldNameLen = 100
)

var derivedFieldName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateRule checks a rule at save time. Everything caught here is a
// caller error; a rule that passes validation can never fail evaluation.
func ValidateRule(r *Rule) error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name is required")
	}
	if len(r.Name) > maxNameLength {
		return fmt.Errorf("rule name length %d exceeds maximum of %d characters", len(r.Name), maxNameLength)
	}

	if r.Priority < 1 || r.Priority > maxPriority {
		return fmt.Errorf("priority %d out of range, must be between 1 and %d", r.Priority, maxPriority)
	}

	if len(r.Tags) > maxTagsPerRule {
		return fmt.Errorf("rule has %d tags, maximum allowed is %d", len(r.Tags), maxTagsPerRule)
	}

	if len(r.ConditionGroups) == 0 {
		return fmt.Errorf("rule must contain at least one condition group")
	}
	if len(r.ConditionGroups) > maxGroupsPerRule {
		return fmt.Errorf("rule contains %d condition groups, maximum allowed is %d", len(r.ConditionGroups), maxGroupsPerRule)
	}

	for gi, group := range r.ConditionGroups {
		if err := validateGroup(group); err != nil {
			return fmt.Errorf("condition group %d: %w", gi, err)
		}
	}

	if len(r.Actions) == 0 {
		return fmt.Errorf("rule must contain at least one action")
	}
	for ai, action := range r.Actions {
		if err := validateAction(action); err != nil {
			return fmt.Errorf("action %d: %w", ai, err)
		}
	}

	return nil
}

func validateGroup(group ConditionGroup) error {
	if group.LogicOperator != LogicAnd && group.LogicOperator != LogicOr {
		return fmt.Errorf("invalid logic operator %q (must be AND or OR)", group.LogicOperator)
	}
	if len(group.Conditions) == 0 {
		return fmt.Errorf("condition group must contain at least one condition")
	}
	if len(group.Conditions) > maxConditionsPerGroup {
		return fmt.Errorf("condition group contains %d conditions, maximum allowed is %d", len(group.Conditions), maxConditionsPerGroup)
	}
	for ci, cond := range group.Conditions {
		if err := validateCondition(cond); err != nil {
			return fmt.Errorf("condition %d: %w", ci, err)
		}
	}
	return nil
}

func validateCondition(cond Condition) error {
	if !knownOperator(cond.Operator) {
		return fmt.Errorf("unknown operator %q", cond.Operator)
	}

	if cond.Field == FieldCustom {
		// Custom fields have no declared kind until their derived
		// expression runs, so only the operator itself is checked.
		if strings.TrimSpace(cond.CustomField) == "" {
			return fmt.Errorf("custom field condition must name the custom field")
		}
		return nil
	}

	spec, ok := fieldCatalog[cond.Field]
	if !ok {
		return fmt.Errorf("unknown field %q", cond.Field)
	}
	if !operatorValidForKind(spec.Kind, cond.Operator) {
		return fmt.Errorf("operator %q is not valid for field %q of type %s", cond.Operator, cond.Field, spec.Kind)
	}

	if strings.TrimSpace(cond.Value) == "" {
		return fmt.Errorf("condition on field %q requires a comparison value", cond.Field)
	}
	if cond.Operator == OpBetween {
		if bounds := splitList(cond.Value); len(bounds) != 2 {
			return fmt.Errorf("between operator requires exactly two comma-separated values, got %d", len(splitList(cond.Value)))
		}
	}

	return nil
}

func validateAction(action Action) error {
	if !knownAction(action.Type) {
		return fmt.Errorf("unknown action type %q", action.Type)
	}

	switch action.Type {
	case ActionAddTag:
		if strings.TrimSpace(action.Parameters["tag"]) == "" {
			return fmt.Errorf("add_tag action requires a %q parameter", "tag")
		}
	case ActionSetPriorityHint:
		if strings.TrimSpace(action.Parameters["hint"]) == "" {
			return fmt.Errorf("set_priority_hint action requires a %q parameter", "hint")
		}
	case ActionNotify:
		if strings.TrimSpace(action.Parameters["channel"]) == "" {
			return fmt.Errorf("notify action requires a %q parameter", "channel")
		}
	}

	return nil
}

// ValidateDerivedField checks a derived-field definition's name. The
// expression itself is validated by compiling it.
func ValidateDerivedField(f *DerivedField) error {
	if len(f.Name) == 0 {
		return fmt.Errorf("derived field name is required")
	}
	if len(f.Name) > maxDerivedFieldNameLen {
		return fmt.Errorf("derived field name length %d exceeds maximum of %d characters", len(f.Name), maxDerivedFieldNameLen)
	}
	if !derivedFieldName.MatchString(f.Name) {
		return fmt.Errorf("invalid derived field name %q: must start with a letter or underscore, followed by letters, digits, or underscores", f.Name)
	}
	if strings.TrimSpace(f.Expression) == "" {
		return fmt.Errorf("derived field expression is required")
	}
	return nil
}
