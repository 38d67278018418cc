package api

import (
	"net/http"

	"github.com/kingerharshit/toolgate/internal/store"
	"go.uber.org/zap"
)

func (d *Dependencies) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	agentToolID := r.PathValue("agent_tool_id")

	at, err := d.Store.GetAgentToolByID(r.Context(), agentToolID)
	if err != nil {
		d.Logger.Error("failed to get tool assignment", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get tool assignment"})
		return
	}
	if at == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Tool assignment not found."})
		return
	}

	policies, err := d.Store.ListPoliciesByRelationship(r.Context(), agentToolID)
	if err != nil {
		d.Logger.Error("failed to list policies", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list policies"})
		return
	}
	writeJSON(w, http.StatusOK, policiesToResp(policies))
}

func (d *Dependencies) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	agentToolID := r.PathValue("agent_tool_id")

	_, itemSchema, err := compiledSchemas()
	if err != nil {
		d.Logger.Error("policy schema unavailable", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Policy validation unavailable"})
		return
	}

	var req PolicyReq
	if err := readValidatedJSON(r, itemSchema, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
		return
	}

	at, err := d.Store.GetAgentToolByID(r.Context(), agentToolID)
	if err != nil {
		d.Logger.Error("failed to get tool assignment", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get tool assignment"})
		return
	}
	if at == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Tool assignment not found."})
		return
	}

	policy, err := d.Store.CreatePolicy(r.Context(), agentToolID, store.PolicyParams{
		ArgumentName: req.ArgumentName,
		Operator:     store.Operator(req.Operator),
		Value:        req.Value,
		Action:       store.Action(req.Action),
		Reason:       req.Reason,
	})
	if err != nil {
		d.Logger.Error("failed to create policy", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to create policy"})
		return
	}
	d.Cache.Bump()
	writeJSON(w, http.StatusCreated, policyToResp(policy))
}

// handleSyncPolicies implements PUT …/policies: the store swaps the full set
// in one transaction, so the engine sees either the old set or the new one.
func (d *Dependencies) handleSyncPolicies(w http.ResponseWriter, r *http.Request) {
	agentToolID := r.PathValue("agent_tool_id")

	docSchema, _, err := compiledSchemas()
	if err != nil {
		d.Logger.Error("policy schema unavailable", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Policy validation unavailable"})
		return
	}

	var req SyncPoliciesReq
	if err := readValidatedJSON(r, docSchema, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
		return
	}

	at, err := d.Store.GetAgentToolByID(r.Context(), agentToolID)
	if err != nil {
		d.Logger.Error("failed to get tool assignment", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get tool assignment"})
		return
	}
	if at == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Tool assignment not found."})
		return
	}

	params := make([]store.PolicyParams, 0, len(req.Policies))
	for _, p := range req.Policies {
		params = append(params, store.PolicyParams{
			ArgumentName: p.ArgumentName,
			Operator:     store.Operator(p.Operator),
			Value:        p.Value,
			Action:       store.Action(p.Action),
			Reason:       p.Reason,
		})
	}

	policies, err := d.Store.SyncPolicies(r.Context(), agentToolID, params)
	if err != nil {
		d.Logger.Error("failed to sync policies", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to sync policies"})
		return
	}
	d.Cache.Bump()
	writeJSON(w, http.StatusOK, policiesToResp(policies))
}

func (d *Dependencies) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	policyID := r.PathValue("policy_id")

	var req UpdatePolicyReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Operator != nil && !validOperator(*req.Operator) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "unknown operator"})
		return
	}
	if req.Action != nil && !validAction(*req.Action) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "unknown action"})
		return
	}

	policy, err := d.Store.UpdatePolicy(r.Context(), policyID, store.UpdatePolicyParams{
		ArgumentName: req.ArgumentName,
		Operator:     (*store.Operator)(req.Operator),
		Value:        req.Value,
		Action:       (*store.Action)(req.Action),
		Reason:       req.Reason,
	})
	if err != nil {
		d.Logger.Error("failed to update policy", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to update policy"})
		return
	}
	if policy == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Policy not found."})
		return
	}
	d.Cache.Bump()
	writeJSON(w, http.StatusOK, policyToResp(policy))
}

func (d *Dependencies) handleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	policyID := r.PathValue("policy_id")
	deleted, err := d.Store.DeletePolicy(r.Context(), policyID)
	if err != nil {
		d.Logger.Error("failed to delete policy", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to delete policy"})
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Policy not found."})
		return
	}
	d.Cache.Bump()
	w.WriteHeader(http.StatusNoContent)
}

// --- Security config ---

func (d *Dependencies) handleGetSecurityConfig(w http.ResponseWriter, r *http.Request) {
	agentToolID := r.PathValue("agent_tool_id")

	at, err := d.Store.GetAgentToolByID(r.Context(), agentToolID)
	if err != nil {
		d.Logger.Error("failed to get tool assignment", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get tool assignment"})
		return
	}
	if at == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Tool assignment not found."})
		return
	}
	writeJSON(w, http.StatusOK, SecurityConfigResp{
		AgentToolID:        at.ID,
		AllowWhenUntrusted: at.AllowWhenUntrusted,
	})
}

func (d *Dependencies) handlePutSecurityConfig(w http.ResponseWriter, r *http.Request) {
	agentToolID := r.PathValue("agent_tool_id")

	var req SecurityConfigReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	updated, err := d.Store.SetSecurityConfig(r.Context(), agentToolID, req.AllowWhenUntrusted)
	if err != nil {
		d.Logger.Error("failed to set security config", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to set security config"})
		return
	}
	if !updated {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Tool assignment not found."})
		return
	}
	d.Cache.Bump()
	writeJSON(w, http.StatusOK, SecurityConfigResp{
		AgentToolID:        agentToolID,
		AllowWhenUntrusted: req.AllowWhenUntrusted,
	})
}

func validOperator(op string) bool {
	switch store.Operator(op) {
	case store.OpEndsWith, store.OpStartsWith, store.OpContains,
		store.OpNotContains, store.OpEqual, store.OpNotEqual, store.OpRegex:
		return true
	}
	return false
}

func validAction(a string) bool {
	switch store.Action(a) {
	case store.ActionBlockAlways, store.ActionAllowWhenUntrusted:
		return true
	}
	return false
}

func policyToResp(p *store.Policy) PolicyResp {
	return PolicyResp{
		ID:           p.ID,
		AgentToolID:  p.AgentToolID,
		ArgumentName: p.ArgumentName,
		Operator:     string(p.Operator),
		Value:        p.Value,
		Action:       string(p.Action),
		Reason:       p.Reason,
		CreatedAt:    p.CreatedAt,
	}
}

func policiesToResp(policies []store.Policy) []PolicyResp {
	out := make([]PolicyResp, 0, len(policies))
	for i := range policies {
		out = append(out, policyToResp(&policies[i]))
	}
	return out
}
