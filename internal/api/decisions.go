package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kingerharshit/toolgate/internal/chread"
	"go.uber.org/zap"
)

func (d *Dependencies) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	q := r.URL.Query()
	agentID := q.Get("agent_id")
	if agentID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "agent_id query parameter is required"})
		return
	}

	params := chread.ListDecisionsParams{
		AgentID:  agentID,
		Page:     queryInt(q, "page", 1),
		PageSize: queryInt(q, "page_size", 50),
	}
	if params.PageSize > 200 {
		params.PageSize = 200
	}
	if params.Page < 1 {
		params.Page = 1
	}

	if v := q.Get("tool_name"); v != "" {
		params.ToolName = &v
	}
	if v := q.Get("conversation_id"); v != "" {
		params.ConversationID = &v
	}
	if v := q.Get("allowed"); v != "" {
		b := v == "true" || v == "1"
		params.Allowed = &b
	}
	if v := q.Get("context_trusted"); v != "" {
		b := v == "true" || v == "1"
		params.ContextTrusted = &b
	}
	if v := q.Get("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.StartTime = &t
		}
	}
	if v := q.Get("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.EndTime = &t
		}
	}

	decisions, total, err := d.Reader.ListDecisions(r.Context(), params)
	if err != nil {
		d.Logger.Error("failed to list decisions", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list decisions"})
		return
	}

	resp := DecisionListResp{
		Decisions: make([]DecisionResp, 0, len(decisions)),
		Total:     total,
		Page:      params.Page,
		PageSize:  params.PageSize,
	}
	for _, row := range decisions {
		resp.Decisions = append(resp.Decisions, decisionRowToResp(row))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetDecision(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	requestID := r.PathValue("request_id")
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "agent_id query parameter is required"})
		return
	}

	row, err := d.Reader.GetDecision(r.Context(), agentID, requestID)
	if err != nil {
		d.Logger.Error("failed to get decision", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get decision"})
		return
	}
	if row == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Decision not found."})
		return
	}

	writeJSON(w, http.StatusOK, decisionRowToResp(*row))
}

func (d *Dependencies) handleDecisionSummary(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	q := r.URL.Query()
	agentID := q.Get("agent_id")
	if agentID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "agent_id query parameter is required"})
		return
	}

	since := time.Now().Add(-24 * time.Hour)
	if v := q.Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			since = t
		}
	}

	summary, err := d.Reader.Summarize(r.Context(), agentID, since)
	if err != nil {
		d.Logger.Error("failed to summarize decisions", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to summarize decisions"})
		return
	}

	writeJSON(w, http.StatusOK, DecisionSummaryResp{
		Total:          summary.Total,
		Allowed:        summary.Allowed,
		Blocked:        summary.Blocked,
		UntrustedCalls: summary.UntrustedCalls,
	})
}

func decisionRowToResp(row chread.DecisionRow) DecisionResp {
	return DecisionResp{
		RequestID:        row.RequestID,
		AgentID:          row.AgentID,
		ConversationID:   row.ConversationID,
		Timestamp:        row.Timestamp,
		ToolName:         row.ToolName,
		ArgumentsPreview: row.ArgumentsPreview,
		ContextTrusted:   row.ContextTrusted == 1,
		Allowed:          row.Allowed == 1,
		Reason:           row.Reason,
		PolicyID:         row.PolicyID,
		InternalTool:     row.InternalTool == 1,
		LatencyMs:        row.LatencyMs,
		Source:           row.Source,
	}
}

func queryInt(q url.Values, key string, fallback int) int {
	v := q.Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
