package disposition

// evalGroup combines a group's conditions with its logic operator. AND
// short-circuits on the first false condition, OR on the first true one.
// An empty group is vacuously true; validation rejects empty groups at
// save time, so this path is defensive only.
func evalGroup(group ConditionGroup, ctx *EvaluationContext, custom map[string]Value) bool {
	if group.LogicOperator == LogicOr {
		for _, cond := range group.Conditions {
			if evalCondition(cond, ctx, custom) {
				return true
			}
		}
		return len(group.Conditions) == 0
	}

	for _, cond := range group.Conditions {
		if !evalCondition(cond, ctx, custom) {
			return false
		}
	}
	return true
}

// matchRule reports whether a rule matches the context. Groups combine
// with AND at the rule level; merchants express OR-across-groups by
// creating separate rules.
func matchRule(rule *Rule, ctx *EvaluationContext, custom map[string]Value) bool {
	for _, group := range rule.ConditionGroups {
		if !evalGroup(group, ctx, custom) {
			return false
		}
	}
	return true
}
