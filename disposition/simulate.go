package disposition

// The simulation subsystem backs the rule editor's "test conditions" and
// the dashboard's "simulate" features. Both run the exact evaluation
// primitives production uses — same resolution, same coercion, same
// short-circuit-free explanations — and neither has side effects: nothing
// is persisted, notified, or waived.

// TestConditions evaluates one rule's condition groups (typically before
// the rule is saved) and explains every condition. Steps come back in
// declaration order across groups; unlike production matching, no
// short-circuiting happens, so each condition gets an explanation.
func (e *Engine) TestConditions(groups []ConditionGroup, ctx *EvaluationContext) *TestResult {
	return testGroups(groups, ctx, e.computeCustom(ctx))
}

// TestRuleConditions is the store-free variant used when no tenant engine
// exists yet, e.g. validating a rule draft for a brand-new tenant. Derived
// custom fields are not available on this path.
func TestRuleConditions(groups []ConditionGroup, ctx *EvaluationContext) *TestResult {
	return testGroups(groups, ctx, nil)
}

func testGroups(groups []ConditionGroup, ctx *EvaluationContext, custom map[string]Value) *TestResult {
	result := &TestResult{
		RuleMatched: true,
		Steps:       explainGroups(groups, ctx, custom),
	}
	for _, group := range groups {
		if !evalGroup(group, ctx, custom) {
			result.RuleMatched = false
			break
		}
	}
	return result
}

// explainGroups produces one StepExplanation per condition, in declaration
// order, with group boundaries annotated by index and logic operator.
func explainGroups(groups []ConditionGroup, ctx *EvaluationContext, custom map[string]Value) []StepExplanation {
	var steps []StepExplanation
	for gi, group := range groups {
		for _, cond := range group.Conditions {
			met, explanation := explainCondition(cond, ctx, custom)
			steps = append(steps, StepExplanation{
				GroupIndex:    gi,
				GroupOperator: group.LogicOperator,
				Field:         conditionKey(cond),
				Operator:      cond.Operator,
				Value:         cond.Value,
				ConditionMet:  met,
				Explanation:   explanation,
			})
		}
	}
	return steps
}

// Simulate dry-runs the tenant's whole active rule set against a context.
// TotalRulesEvaluated counts every rule actually inspected, so it stops
// short of the tenant's active-rule count when a terminal action fires.
func (e *Engine) Simulate(ctx *EvaluationContext) (*SimulationResult, error) {
	snap, err := e.snapshots.Snapshot()
	if err != nil {
		e.metrics.ObserveSnapshotFailure()
		return nil, err
	}
	return simulateRules(snap.Rules, ctx, e.computeCustom(ctx)), nil
}

func simulateRules(rules []*Rule, ctx *EvaluationContext, custom map[string]Value) *SimulationResult {
	result := &SimulationResult{
		FinalStatus:      DispositionManualReview,
		MatchedRuleNames: []string{},
	}

	for _, rule := range rules {
		result.TotalRulesEvaluated++
		if !matchRule(rule, ctx, custom) {
			continue
		}

		result.RulesMatched++
		result.MatchedRuleNames = append(result.MatchedRuleNames, rule.Name)

		for _, action := range rule.Actions {
			if action.Type.IsTerminal() {
				result.FinalStatus = terminalStatus(action.Type)
				return result
			}
		}
	}

	return result
}
