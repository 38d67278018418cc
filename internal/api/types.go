package api

import (
	"encoding/json"
	"time"

	"github.com/kingerharshit/toolgate/internal/provider"
)

// --- POST /v1/gatekeeper/* request/response ---

// EvaluateRequest is the JSON body for POST /v1/gatekeeper/evaluate. The
// caller supplies the trust state; the agent is taken from the API key.
type EvaluateRequest struct {
	ConversationID   string          `json:"conversation_id,omitempty"`
	ToolName         string          `json:"tool_name"`
	ToolInput        json.RawMessage `json:"tool_input,omitempty"`
	IsContextTrusted bool            `json:"is_context_trusted"`
}

// EvaluateResponse is the engine decision for one proposed call.
type EvaluateResponse struct {
	Allowed  bool   `json:"allowed"`
	Reason   string `json:"reason,omitempty"`
	PolicyID string `json:"policy_id,omitempty"`
}

// ClassifyRequest is the JSON body for POST /v1/gatekeeper/classify.
type ClassifyRequest struct {
	ConversationID string            `json:"conversation_id,omitempty"`
	Provider       string            `json:"provider"`
	Messages       json.RawMessage   `json:"messages"`
	Credentials    map[string]string `json:"credentials,omitempty"`
}

// BlockResp is one content block of a filtered message.
type BlockResp struct {
	Kind       string `json:"kind"`
	Text       string `json:"text,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// MessageResp is one turn of the filtered history.
type MessageResp struct {
	Role   string      `json:"role"`
	Blocks []BlockResp `json:"blocks"`
}

// ClassifyResponse is the trust verdict for a conversation.
type ClassifyResponse struct {
	ContextTrusted   bool          `json:"context_trusted"`
	FilteredMessages []MessageResp `json:"filtered_messages"`
}

// DispatchRequest is the JSON body for POST /v1/gatekeeper/dispatch: one
// proposed tool call plus the history it arose from.
type DispatchRequest struct {
	ConversationID string            `json:"conversation_id,omitempty"`
	ToolName       string            `json:"tool_name"`
	Arguments      json.RawMessage   `json:"arguments,omitempty"`
	Provider       string            `json:"provider"`
	Messages       json.RawMessage   `json:"messages"`
	Credentials    map[string]string `json:"credentials,omitempty"`
}

// RejectionResp stands in for the tool result on a blocked call.
type RejectionResp struct {
	ToolName string `json:"tool_name"`
	Reason   string `json:"reason"`
}

// DispatchResponse is the outcome of one gatekept call.
type DispatchResponse struct {
	RequestID      string          `json:"request_id"`
	Allowed        bool            `json:"allowed"`
	ContextTrusted bool            `json:"context_trusted"`
	Result         json.RawMessage `json:"result,omitempty"`
	Rejection      *RejectionResp  `json:"rejection,omitempty"`
}

// --- Agent CRUD ---

// CreateAgentReq is the JSON body for POST /api/gatekeeper/agents.
type CreateAgentReq struct {
	Name string `json:"name"`
}

// CreateAgentResp includes the plaintext API key (shown once).
type CreateAgentResp struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	APIKey       string    `json:"api_key"`
	APIKeyPrefix string    `json:"api_key_prefix"`
	CreatedAt    time.Time `json:"created_at"`
}

// AgentResp never carries the plaintext key.
type AgentResp struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	APIKeyPrefix string    `json:"api_key_prefix"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RotateKeyResp includes the new plaintext API key (shown once).
type RotateKeyResp struct {
	APIKey       string `json:"api_key"`
	APIKeyPrefix string `json:"api_key_prefix"`
}

// --- Agent tools ---

// CreateAgentToolReq is the JSON body for POST /api/gatekeeper/agents/{agent_id}/tools.
type CreateAgentToolReq struct {
	ToolName      string `json:"tool_name"`
	ServerName    string `json:"server_name"`
	ServerTrusted bool   `json:"server_trusted"`
}

// AgentToolResp mirrors one agent_tools row.
type AgentToolResp struct {
	ID                 string    `json:"id"`
	AgentID            string    `json:"agent_id"`
	ToolName           string    `json:"tool_name"`
	ServerName         string    `json:"server_name"`
	ServerTrusted      bool      `json:"server_trusted"`
	AllowWhenUntrusted *bool     `json:"allow_when_untrusted"`
	CreatedAt          time.Time `json:"created_at"`
}

// --- Policies ---

// PolicyReq is one policy in create and sync bodies.
type PolicyReq struct {
	ArgumentName string `json:"argument_name"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
	Action       string `json:"action"`
	Reason       string `json:"reason,omitempty"`
}

// UpdatePolicyReq is the JSON body for PATCH of a single policy.
type UpdatePolicyReq struct {
	ArgumentName *string `json:"argument_name,omitempty"`
	Operator     *string `json:"operator,omitempty"`
	Value        *string `json:"value,omitempty"`
	Action       *string `json:"action,omitempty"`
	Reason       *string `json:"reason,omitempty"`
}

// SyncPoliciesReq is the JSON body for PUT …/policies (full replacement).
type SyncPoliciesReq struct {
	Policies []PolicyReq `json:"policies"`
}

// PolicyResp mirrors one policy row in creation order.
type PolicyResp struct {
	ID           string    `json:"id"`
	AgentToolID  string    `json:"agent_tool_id"`
	ArgumentName string    `json:"argument_name"`
	Operator     string    `json:"operator"`
	Value        string    `json:"value"`
	Action       string    `json:"action"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
}

// SecurityConfigReq is the JSON body for PUT …/security-config. A null
// allow_when_untrusted clears the flag back to unset.
type SecurityConfigReq struct {
	AllowWhenUntrusted *bool `json:"allow_when_untrusted"`
}

// SecurityConfigResp mirrors the per-relationship untrusted default.
type SecurityConfigResp struct {
	AgentToolID        string `json:"agent_tool_id"`
	AllowWhenUntrusted *bool  `json:"allow_when_untrusted"`
}

// --- Decisions ---

// DecisionResp mirrors one persisted decision event.
type DecisionResp struct {
	RequestID        string    `json:"request_id"`
	AgentID          string    `json:"agent_id"`
	ConversationID   string    `json:"conversation_id,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	ToolName         string    `json:"tool_name"`
	ArgumentsPreview string    `json:"arguments_preview"`
	ContextTrusted   bool      `json:"context_trusted"`
	Allowed          bool      `json:"allowed"`
	Reason           string    `json:"reason,omitempty"`
	PolicyID         string    `json:"policy_id,omitempty"`
	InternalTool     bool      `json:"internal_tool"`
	LatencyMs        float32   `json:"latency_ms"`
	Source           string    `json:"source"`
}

// DecisionListResp is a page of decision events.
type DecisionListResp struct {
	Decisions []DecisionResp `json:"decisions"`
	Total     int            `json:"total"`
	Page      int            `json:"page"`
	PageSize  int            `json:"page_size"`
}

// DecisionSummaryResp holds aggregate counts for one agent.
type DecisionSummaryResp struct {
	Total          int `json:"total"`
	Allowed        int `json:"allowed"`
	Blocked        int `json:"blocked"`
	UntrustedCalls int `json:"untrusted_calls"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}

func messagesToResp(msgs []provider.Message) []MessageResp {
	out := make([]MessageResp, 0, len(msgs))
	for _, m := range msgs {
		blocks := make([]BlockResp, 0, len(m.Blocks))
		for _, b := range m.Blocks {
			blocks = append(blocks, BlockResp{
				Kind:       string(b.Kind),
				Text:       b.Text,
				ToolName:   b.ToolName,
				ToolCallID: b.ToolCallID,
			})
		}
		out = append(out, MessageResp{Role: string(m.Role), Blocks: blocks})
	}
	return out
}
