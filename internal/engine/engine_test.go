package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/kingerharshit/toolgate/internal/store"
	"go.uber.org/zap"
)

// fakePolicyReader serves a fixed policy set and security config.
type fakePolicyReader struct {
	policies []store.Policy
	config   *store.SecurityConfig
	listErr  error
	cfgErr   error

	listCalls int
	cfgCalls  int
}

func (f *fakePolicyReader) ListPoliciesFor(_ context.Context, _, _ string) ([]store.Policy, error) {
	f.listCalls++
	return f.policies, f.listErr
}

func (f *fakePolicyReader) GetSecurityConfig(_ context.Context, _, _ string) (*store.SecurityConfig, error) {
	f.cfgCalls++
	return f.config, f.cfgErr
}

func boolPtr(b bool) *bool { return &b }

func newTestEngine(reader *fakePolicyReader) *Engine {
	return NewEngine(reader, Config{}, zap.NewNop())
}

func allowPolicy(id, arg string, op store.Operator, value string) store.Policy {
	return store.Policy{
		ID: id, AgentToolID: "at-1", ArgumentName: arg,
		Operator: op, Value: value,
		Action: store.ActionAllowWhenUntrusted,
	}
}

func blockPolicy(id, arg string, op store.Operator, value, reason string) store.Policy {
	return store.Policy{
		ID: id, AgentToolID: "at-1", ArgumentName: arg,
		Operator: op, Value: value,
		Action: store.ActionBlockAlways, Reason: reason,
	}
}

func TestEvaluate_InternalToolBypassesPolicies(t *testing.T) {
	reader := &fakePolicyReader{
		policies: []store.Policy{
			blockPolicy("p1", "path", store.OpContains, "", "blocked"),
		},
	}
	eng := newTestEngine(reader)

	res, err := eng.Evaluate(context.Background(), &Request{
		AgentID:        "agent-1",
		ToolName:       "toolgate__list_tools",
		ToolInput:      Input{"path": "/etc/passwd"},
		ContextTrusted: false,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed {
		t.Error("internal tool should always be allowed")
	}
	if res.Reason != "internal tool" {
		t.Errorf("reason = %q, want %q", res.Reason, "internal tool")
	}
	if reader.listCalls != 0 {
		t.Error("internal tool short-circuit must not hit the policy store")
	}
}

func TestEvaluate_InternalToolAllowList(t *testing.T) {
	reader := &fakePolicyReader{}
	eng := NewEngine(reader, Config{InternalTools: []string{"health_probe"}}, zap.NewNop())

	res, err := eng.Evaluate(context.Background(), &Request{
		AgentID: "agent-1", ToolName: "health_probe",
		ToolInput: Input{}, ContextTrusted: false,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed {
		t.Error("allow-listed internal tool should be allowed")
	}
}

func TestEvaluate_BlockAlwaysMatch(t *testing.T) {
	reader := &fakePolicyReader{
		policies: []store.Policy{
			blockPolicy("p1", "path", store.OpStartsWith, "/etc/", "system paths are off limits"),
		},
	}
	eng := newTestEngine(reader)

	res, err := eng.Evaluate(context.Background(), &Request{
		AgentID: "agent-1", ToolName: "read_file",
		ToolInput: Input{"path": "/etc/shadow"}, ContextTrusted: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed {
		t.Error("matching block_always rule must deny")
	}
	if res.Reason != "system paths are off limits" {
		t.Errorf("reason = %q, want the policy reason", res.Reason)
	}
	if res.PolicyID != "p1" {
		t.Errorf("PolicyID = %q, want p1", res.PolicyID)
	}
}

func TestEvaluate_BlockPrecedesLaterAllow(t *testing.T) {
	// An allow rule earlier in creation order must not shield a later block.
	reader := &fakePolicyReader{
		policies: []store.Policy{
			allowPolicy("p1", "url", store.OpContains, "example.com"),
			blockPolicy("p2", "url", store.OpContains, "example.com", "domain blocked"),
		},
	}
	eng := newTestEngine(reader)

	res, err := eng.Evaluate(context.Background(), &Request{
		AgentID: "agent-1", ToolName: "fetch",
		ToolInput: Input{"url": "https://example.com/data"}, ContextTrusted: false,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed {
		t.Error("block_always must win regardless of allow rules present")
	}
	if res.Reason != "domain blocked" {
		t.Errorf("reason = %q, want %q", res.Reason, "domain blocked")
	}
}

func TestEvaluate_MissingArgumentOnAllowRuleFailsClosed(t *testing.T) {
	reader := &fakePolicyReader{
		policies: []store.Policy{
			allowPolicy("p1", "path", store.OpStartsWith, "/tmp/"),
		},
		config: &store.SecurityConfig{AgentToolID: "at-1", AllowWhenUntrusted: boolPtr(false)},
	}
	eng := newTestEngine(reader)

	res, err := eng.Evaluate(context.Background(), &Request{
		AgentID: "agent-1", ToolName: "read_file",
		ToolInput: Input{"other": "x"}, ContextTrusted: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed {
		t.Error("unevaluable allow condition must be a hard stop")
	}
	if res.Reason != "Missing required argument: path" {
		t.Errorf("reason = %q, want %q", res.Reason, "Missing required argument: path")
	}
}

func TestEvaluate_MissingArgumentOnAllowRuleSkippedWhenDefaultPermits(t *testing.T) {
	reader := &fakePolicyReader{
		policies: []store.Policy{
			allowPolicy("p1", "path", store.OpStartsWith, "/tmp/"),
		},
		config: &store.SecurityConfig{AgentToolID: "at-1", AllowWhenUntrusted: boolPtr(true)},
	}
	eng := newTestEngine(reader)

	res, err := eng.Evaluate(context.Background(), &Request{
		AgentID: "agent-1", ToolName: "read_file",
		ToolInput: Input{}, ContextTrusted: false,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed {
		t.Errorf("permissive default should cover the missed allow rule, got reason %q", res.Reason)
	}
}

func TestEvaluate_MissingArgumentOnBlockRuleIsSkipped(t *testing.T) {
	reader := &fakePolicyReader{
		policies: []store.Policy{
			blockPolicy("p1", "path", store.OpContains, "secret", "no secrets"),
		},
	}
	eng := newTestEngine(reader)

	res, err := eng.Evaluate(context.Background(), &Request{
		AgentID: "agent-1", ToolName: "read_file",
		ToolInput: Input{"other": "value"}, ContextTrusted: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed {
		t.Errorf("absence is not grounds for blocking, got reason %q", res.Reason)
	}
}

func TestEvaluate_UntrustedDefaultAllowShortCircuit(t *testing.T) {
	reader := &fakePolicyReader{
		config: &store.SecurityConfig{AgentToolID: "at-1", AllowWhenUntrusted: boolPtr(true)},
	}
	eng := newTestEngine(reader)

	res, err := eng.Evaluate(context.Background(), &Request{
		AgentID: "agent-1", ToolName: "fetch",
		ToolInput: Input{}, ContextTrusted: false,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed {
		t.Error("untrusted context with permissive default should be allowed")
	}
	if res.Reason != "" {
		t.Errorf("reason = %q, want empty", res.Reason)
	}
}

func TestEvaluate_UntrustedDefaultBlock(t *testing.T) {
	for _, cfg := range []*store.SecurityConfig{
		nil,
		{AgentToolID: "at-1"},
		{AgentToolID: "at-1", AllowWhenUntrusted: boolPtr(false)},
	} {
		reader := &fakePolicyReader{config: cfg}
		eng := newTestEngine(reader)

		res, err := eng.Evaluate(context.Background(), &Request{
			AgentID: "agent-1", ToolName: "fetch",
			ToolInput: Input{}, ContextTrusted: false,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Allowed {
			t.Error("untrusted context with no allow path must be blocked")
		}
		if res.Reason != ReasonUntrustedContext {
			t.Errorf("reason = %q, want %q", res.Reason, ReasonUntrustedContext)
		}
	}
}

func TestEvaluate_ExplicitAllowRuleInUntrustedContext(t *testing.T) {
	reader := &fakePolicyReader{
		policies: []store.Policy{
			allowPolicy("p1", "path", store.OpStartsWith, "/tmp/"),
		},
		config: &store.SecurityConfig{AgentToolID: "at-1", AllowWhenUntrusted: boolPtr(false)},
	}
	eng := newTestEngine(reader)

	res, err := eng.Evaluate(context.Background(), &Request{
		AgentID: "agent-1", ToolName: "read_file",
		ToolInput: Input{"path": "/tmp/scratch.txt"}, ContextTrusted: false,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed {
		t.Errorf("matched allow rule should permit the untrusted call, got reason %q", res.Reason)
	}
}

func TestEvaluate_TrustedContextNoPoliciesAllowed(t *testing.T) {
	reader := &fakePolicyReader{}
	eng := newTestEngine(reader)

	res, err := eng.Evaluate(context.Background(), &Request{
		AgentID: "agent-1", ToolName: "fetch",
		ToolInput: Input{}, ContextTrusted: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed {
		t.Errorf("trusted context with no block should be allowed, got reason %q", res.Reason)
	}
}

func TestEvaluate_DenormalizedFlagSkipsConfigLookup(t *testing.T) {
	reader := &fakePolicyReader{
		policies: []store.Policy{
			func() store.Policy {
				p := allowPolicy("p1", "path", store.OpStartsWith, "/tmp/")
				p.AllowWhenUntrusted = boolPtr(true)
				return p
			}(),
		},
	}
	eng := newTestEngine(reader)

	res, err := eng.Evaluate(context.Background(), &Request{
		AgentID: "agent-1", ToolName: "read_file",
		ToolInput: Input{"path": "/var/log/syslog"}, ContextTrusted: false,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed {
		t.Errorf("denormalized permissive flag should allow, got reason %q", res.Reason)
	}
	if reader.cfgCalls != 0 {
		t.Error("security config must not be fetched when a policy row carries the flag")
	}
}

func TestEvaluate_MalformedRegexDeniesWithReason(t *testing.T) {
	reader := &fakePolicyReader{
		policies: []store.Policy{
			blockPolicy("p1", "query", store.OpRegex, "([unclosed", "never reached"),
		},
	}
	eng := newTestEngine(reader)

	res, err := eng.Evaluate(context.Background(), &Request{
		AgentID: "agent-1", ToolName: "search",
		ToolInput: Input{"query": "hello"}, ContextTrusted: true,
	})
	if err != nil {
		t.Fatalf("configuration errors are denials, not faults: %v", err)
	}
	if res.Allowed {
		t.Error("malformed regex must deny the call")
	}
	if res.Reason == "never reached" || res.Reason == "" {
		t.Errorf("reason should surface the configuration problem, got %q", res.Reason)
	}
}

func TestEvaluate_StoreFailureIsRetryableFault(t *testing.T) {
	reader := &fakePolicyReader{listErr: errors.New("connection refused")}
	eng := newTestEngine(reader)

	res, err := eng.Evaluate(context.Background(), &Request{
		AgentID: "agent-1", ToolName: "fetch",
		ToolInput: Input{}, ContextTrusted: true,
	})
	if err == nil {
		t.Fatal("store failure must surface as an error")
	}
	if res != nil {
		t.Error("no decision should be returned on a store failure")
	}
	if !IsRetryable(err) {
		t.Errorf("store failure should be retryable, got %v", err)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	reader := &fakePolicyReader{
		policies: []store.Policy{
			allowPolicy("p1", "url", store.OpEndsWith, ".pdf"),
			blockPolicy("p2", "url", store.OpContains, "internal", "internal hosts blocked"),
		},
		config: &store.SecurityConfig{AgentToolID: "at-1", AllowWhenUntrusted: boolPtr(false)},
	}
	eng := newTestEngine(reader)
	req := &Request{
		AgentID: "agent-1", ToolName: "fetch",
		ToolInput: Input{"url": "https://docs.example.com/report.pdf"}, ContextTrusted: false,
	}

	first, err := eng.Evaluate(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 20; i++ {
		res, err := eng.Evaluate(context.Background(), req)
		if err != nil {
			t.Fatalf("unexpected error on run %d: %v", i, err)
		}
		if *res != *first {
			t.Fatalf("run %d: result %+v differs from first %+v", i, res, first)
		}
	}
}
