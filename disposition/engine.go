package disposition

import "time"

// Engine evaluates one tenant's active rule set against return contexts.
// Evaluation is synchronous and pure: one immutable snapshot per call, no
// locks held during the algorithm, no I/O after the snapshot read. Any
// number of evaluations may run concurrently.
type Engine struct {
	tenantID  string
	snapshots SnapshotProvider
	derived   *DerivedFields
	metrics   *Metrics
}

// NewEngine creates an engine for one tenant. derived and metrics may be
// nil when the tenant has no derived fields or metrics are not collected.
func NewEngine(tenantID string, snapshots SnapshotProvider, derived *DerivedFields, metrics *Metrics) *Engine {
	return &Engine{
		tenantID:  tenantID,
		snapshots: snapshots,
		derived:   derived,
		metrics:   metrics,
	}
}

// TenantID returns the tenant this engine serves.
func (e *Engine) TenantID() string { return e.tenantID }

// Evaluate decides the disposition of a return request. Matched rules are
// collected in priority order; the first terminal action sets the final
// status and stops iteration; cumulative actions accumulate from every
// matched rule up to and including the terminating one. No rule matching
// a terminal action leaves the fail-safe default, manual review.
func (e *Engine) Evaluate(ctx *EvaluationContext) (*EvaluationResult, error) {
	return e.evaluate(ctx, false)
}

// EvaluateWithTrace is Evaluate plus a per-condition explanation for every
// rule inspected. Production callers use Evaluate; the trace variant backs
// ad-hoc debugging from the dashboard.
func (e *Engine) EvaluateWithTrace(ctx *EvaluationContext) (*EvaluationResult, error) {
	return e.evaluate(ctx, true)
}

func (e *Engine) evaluate(ctx *EvaluationContext, withTrace bool) (*EvaluationResult, error) {
	start := time.Now()

	snap, err := e.snapshots.Snapshot()
	if err != nil {
		e.metrics.ObserveSnapshotFailure()
		return nil, err
	}

	result := runDisposition(snap.Rules, ctx, e.computeCustom(ctx), withTrace)
	e.metrics.ObserveEvaluation(result.FinalStatus, time.Since(start))
	return result, nil
}

func (e *Engine) computeCustom(ctx *EvaluationContext) map[string]Value {
	if e.derived == nil {
		return nil
	}
	return e.derived.Compute(ctx)
}

// runDisposition is the disposition algorithm over a pre-sorted rule
// slice. Pure: identical (rules, ctx, custom) always yields an identical
// result.
func runDisposition(rules []*Rule, ctx *EvaluationContext, custom map[string]Value, withTrace bool) *EvaluationResult {
	result := &EvaluationResult{
		MatchedRules:      []string{},
		FinalStatus:       DispositionManualReview,
		CumulativeActions: []Action{},
	}

	for _, rule := range rules {
		if withTrace {
			result.Trace = append(result.Trace, explainGroups(rule.ConditionGroups, ctx, custom)...)
		}
		if !matchRule(rule, ctx, custom) {
			continue
		}

		result.MatchedRules = append(result.MatchedRules, rule.ID)

		terminated := false
		for _, action := range rule.Actions {
			if action.Type.IsTerminal() {
				result.FinalStatus = terminalStatus(action.Type)
				terminated = true
				break
			}
			result.CumulativeActions = append(result.CumulativeActions, action)
		}
		if terminated {
			break
		}
	}

	return result
}

func terminalStatus(kind ActionKind) Disposition {
	if kind == ActionAutoApprove {
		return DispositionApproved
	}
	return DispositionDenied
}
