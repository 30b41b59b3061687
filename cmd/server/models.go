package main

import "github.com/liamcoop/returns/disposition"

// evaluateRequest is shared by the evaluate and simulate endpoints.
type evaluateRequest struct {
	TenantID string                         `json:"tenantId"`
	Context  *disposition.EvaluationContext `json:"context"`
	Trace    bool                           `json:"trace,omitempty"`
}

// testConditionsRequest carries a draft rule's groups for the editor's
// test mode.
type testConditionsRequest struct {
	TenantID        string                         `json:"tenantId"`
	ConditionGroups []disposition.ConditionGroup   `json:"conditionGroups"`
	Context         *disposition.EvaluationContext `json:"context"`
}

// ruleRequest is the create/update payload for a rule.
type ruleRequest struct {
	Name            string                       `json:"name"`
	Description     string                       `json:"description"`
	Priority        int                          `json:"priority"`
	Active          bool                         `json:"active"`
	Tags            []string                     `json:"tags"`
	ConditionGroups []disposition.ConditionGroup `json:"conditionGroups"`
	Actions         []disposition.Action         `json:"actions"`
}

func (req *ruleRequest) toRule(id, tenantID string) *disposition.Rule {
	return &disposition.Rule{
		ID:              id,
		TenantID:        tenantID,
		Name:            req.Name,
		Description:     req.Description,
		Priority:        req.Priority,
		Active:          req.Active,
		Tags:            req.Tags,
		ConditionGroups: req.ConditionGroups,
		Actions:         req.Actions,
	}
}

// derivedFieldRequest is the create/update payload for a derived field.
type derivedFieldRequest struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
}

// createTenantRequest names a new tenant.
type createTenantRequest struct {
	Name string `json:"name"`
}
