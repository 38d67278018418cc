package api

import (
	"errors"
	"net/http"

	"github.com/kingerharshit/toolgate/internal/engine"
	"github.com/kingerharshit/toolgate/internal/gatekeeper"
	"go.uber.org/zap"
)

// handleEvaluate implements POST /v1/gatekeeper/evaluate. Auth middleware has
// already validated the Bearer token and injected the agent; the trust state
// comes from the caller, who runs its own classification pass.
func (d *Dependencies) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.ToolName == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "tool_name is required"})
		return
	}

	agent := agentFromContext(r.Context())
	if agent == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "missing agent context"})
		return
	}

	res, err := d.Gatekeeper.Evaluate(r.Context(), req.ConversationID, agent.ID,
		req.ToolName, req.ToolInput, req.IsContextTrusted)
	if err != nil {
		if engine.IsRetryable(err) {
			d.Logger.Error("policy store unavailable", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Policy store unavailable, retry the call"})
			return
		}
		d.Logger.Error("evaluate failed", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, EvaluateResponse{
		Allowed:  res.Allowed,
		Reason:   res.Reason,
		PolicyID: res.PolicyID,
	})
}

// handleClassify implements POST /v1/gatekeeper/classify.
func (d *Dependencies) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Provider == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "provider is required"})
		return
	}

	agent := agentFromContext(r.Context())
	if agent == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "missing agent context"})
		return
	}

	verdict, err := d.Gatekeeper.ClassifyTrust(r.Context(), req.ConversationID,
		agent.ID, req.Provider, req.Messages, req.Credentials)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, ClassifyResponse{
		ContextTrusted:   verdict.ContextTrusted,
		FilteredMessages: messagesToResp(verdict.FilteredMessages),
	})
}

// handleDispatch implements POST /v1/gatekeeper/dispatch: classify, evaluate,
// and forward to the configured executor on allow. A blocked call returns 200
// with the rejection body so the caller can hand it back to the model.
func (d *Dependencies) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req DispatchRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.ToolName == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "tool_name is required"})
		return
	}
	if req.Provider == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "provider is required"})
		return
	}

	agent := agentFromContext(r.Context())
	if agent == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "missing agent context"})
		return
	}

	out, err := d.Gatekeeper.Dispatch(r.Context(), &gatekeeper.DispatchRequest{
		ConversationID: req.ConversationID,
		AgentID:        agent.ID,
		ToolName:       req.ToolName,
		Arguments:      req.Arguments,
		Provider:       req.Provider,
		Messages:       req.Messages,
		Credentials:    req.Credentials,
	})
	if err != nil {
		if engine.IsRetryable(err) {
			d.Logger.Error("policy store unavailable", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Policy store unavailable, retry the call"})
			return
		}
		if errors.Is(err, gatekeeper.ErrExecutorFailure) {
			d.Logger.Error("tool execution failed", zap.Error(err))
			writeJSON(w, http.StatusBadGateway, ErrorResp{Detail: err.Error()})
			return
		}
		d.Logger.Error("dispatch failed", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
		return
	}

	resp := DispatchResponse{
		RequestID:      out.RequestID,
		Allowed:        out.Allowed,
		ContextTrusted: out.ContextTrusted,
		Result:         out.Result,
	}
	if out.Rejection != nil {
		resp.Rejection = &RejectionResp{
			ToolName: out.Rejection.ToolName,
			Reason:   out.Rejection.Reason,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
