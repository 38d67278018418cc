package api

import (
	"net/http"

	"github.com/kingerharshit/toolgate/internal/store"
	"go.uber.org/zap"
)

func (d *Dependencies) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req CreateAgentReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Name == "" || len(req.Name) > 255 {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "name must be 1-255 characters"})
		return
	}

	agent, plainKey, err := d.Store.CreateAgent(r.Context(), req.Name)
	if err != nil {
		d.Logger.Error("failed to create agent", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to create agent"})
		return
	}

	writeJSON(w, http.StatusCreated, CreateAgentResp{
		ID:           agent.ID,
		Name:         agent.Name,
		APIKey:       plainKey,
		APIKeyPrefix: agent.APIKeyPrefix,
		CreatedAt:    agent.CreatedAt,
	})
}

func (d *Dependencies) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := d.Store.ListAgents(r.Context())
	if err != nil {
		d.Logger.Error("failed to list agents", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list agents"})
		return
	}

	resp := make([]AgentResp, 0, len(agents))
	for _, a := range agents {
		resp = append(resp, agentToResp(&a))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("agent_id")
	agent, err := d.Store.GetAgent(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to get agent", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get agent"})
		return
	}
	if agent == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Agent not found."})
		return
	}
	writeJSON(w, http.StatusOK, agentToResp(agent))
}

func (d *Dependencies) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("agent_id")
	deleted, err := d.Store.DeleteAgent(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to delete agent", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to delete agent"})
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Agent not found."})
		return
	}
	d.Cache.Bump()
	w.WriteHeader(http.StatusNoContent)
}

func (d *Dependencies) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("agent_id")
	plainKey, prefix, err := d.Store.RotateKey(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to rotate key", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to rotate API key"})
		return
	}
	if plainKey == "" {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Agent not found."})
		return
	}
	writeJSON(w, http.StatusOK, RotateKeyResp{
		APIKey:       plainKey,
		APIKeyPrefix: prefix,
	})
}

// --- Tool assignments ---

func (d *Dependencies) handleCreateAgentTool(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent_id")

	var req CreateAgentToolReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.ToolName == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "tool_name is required"})
		return
	}
	if req.ServerName == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "server_name is required"})
		return
	}

	agent, err := d.Store.GetAgent(r.Context(), agentID)
	if err != nil {
		d.Logger.Error("failed to get agent", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get agent"})
		return
	}
	if agent == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Agent not found."})
		return
	}

	at, err := d.Store.CreateAgentTool(r.Context(), agentID, req.ToolName,
		req.ServerName, req.ServerTrusted)
	if err != nil {
		d.Logger.Error("failed to create tool assignment", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to create tool assignment"})
		return
	}
	d.Cache.Bump()
	writeJSON(w, http.StatusCreated, agentToolToResp(at))
}

func (d *Dependencies) handleListAgentTools(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent_id")
	tools, err := d.Store.ListAgentTools(r.Context(), agentID)
	if err != nil {
		d.Logger.Error("failed to list tool assignments", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list tool assignments"})
		return
	}

	resp := make([]AgentToolResp, 0, len(tools))
	for _, at := range tools {
		resp = append(resp, agentToolToResp(&at))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleDeleteAgentTool(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("agent_tool_id")
	deleted, err := d.Store.DeleteAgentTool(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to delete tool assignment", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to delete tool assignment"})
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Tool assignment not found."})
		return
	}
	d.Cache.Bump()
	w.WriteHeader(http.StatusNoContent)
}

func agentToResp(a *store.Agent) AgentResp {
	return AgentResp{
		ID:           a.ID,
		Name:         a.Name,
		APIKeyPrefix: a.APIKeyPrefix,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func agentToolToResp(at *store.AgentTool) AgentToolResp {
	return AgentToolResp{
		ID:                 at.ID,
		AgentID:            at.AgentID,
		ToolName:           at.ToolName,
		ServerName:         at.ServerName,
		ServerTrusted:      at.ServerTrusted,
		AllowWhenUntrusted: at.AllowWhenUntrusted,
		CreatedAt:          at.CreatedAt,
	}
}
