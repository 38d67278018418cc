package gatekeeper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPExecutor forwards approved calls to a tool backend over HTTP. The
// backend receives the call exactly as the model proposed it and replies
// with the raw tool result.
type HTTPExecutor struct {
	endpoint string
	client   *http.Client
}

// executorPayload is the JSON body posted to the backend.
type executorPayload struct {
	RequestID      string          `json:"request_id"`
	ConversationID string          `json:"conversation_id,omitempty"`
	AgentID        string          `json:"agent_id"`
	ToolName       string          `json:"tool_name"`
	Arguments      json.RawMessage `json:"arguments,omitempty"`
}

func NewHTTPExecutor(endpoint string, timeout time.Duration) *HTTPExecutor {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPExecutor{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (e *HTTPExecutor) Execute(ctx context.Context, call *ToolCall) (json.RawMessage, error) {
	body, err := json.Marshal(executorPayload{
		RequestID:      call.RequestID,
		ConversationID: call.ConversationID,
		AgentID:        call.AgentID,
		ToolName:       call.ToolName,
		Arguments:      call.Arguments,
	})
	if err != nil {
		return nil, fmt.Errorf("Execute: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("Execute: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Execute: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	out, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("Execute: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("Execute: backend returned %d: %s", resp.StatusCode, out)
	}
	return out, nil
}
