package gatekeeper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPExecutor_ForwardsCall(t *testing.T) {
	var got executorPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.Write([]byte(`{"stdout":"done"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	exec := NewHTTPExecutor(srv.URL, time.Second)
	out, err := exec.Execute(context.Background(), &ToolCall{
		RequestID: "req-1",
		AgentID:   "agent-1",
		ToolName:  "run_script",
		Arguments: json.RawMessage(`{"script":"build.sh"}`),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if string(out) != `{"stdout":"done"}` {
		t.Errorf("result = %s", out)
	}
	if got.ToolName != "run_script" || string(got.Arguments) != `{"script":"build.sh"}` {
		t.Errorf("backend received %+v", got)
	}
}

func TestHTTPExecutor_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	exec := NewHTTPExecutor(srv.URL, time.Second)
	_, err := exec.Execute(context.Background(), &ToolCall{ToolName: "run_script"})
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("err = %v, want status error", err)
	}
}
