package store

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type countingSource struct {
	calls    atomic.Int64
	policies []Policy
	config   *SecurityConfig
}

func (s *countingSource) ListPoliciesFor(ctx context.Context, agentID, toolName string) ([]Policy, error) {
	s.calls.Add(1)
	return s.policies, nil
}

func (s *countingSource) GetSecurityConfig(ctx context.Context, agentID, toolName string) (*SecurityConfig, error) {
	return s.config, nil
}

func TestCachingPolicyReader_FreshHitSkipsStore(t *testing.T) {
	src := &countingSource{policies: []Policy{{ID: "p1", ArgumentName: "path"}}}
	c := NewCachingPolicyReader(src, 30*time.Second, zap.NewNop())

	for i := 0; i < 5; i++ {
		policies, err := c.ListPoliciesFor(context.Background(), "agent-1", "read_file")
		if err != nil {
			t.Fatalf("ListPoliciesFor: %v", err)
		}
		if len(policies) != 1 || policies[0].ID != "p1" {
			t.Fatalf("policies = %+v", policies)
		}
	}
	if n := src.calls.Load(); n != 1 {
		t.Errorf("store hit %d times, want 1", n)
	}
}

func TestCachingPolicyReader_KeysAreScopedPerPair(t *testing.T) {
	src := &countingSource{}
	c := NewCachingPolicyReader(src, 30*time.Second, zap.NewNop())

	if _, err := c.ListPoliciesFor(context.Background(), "agent-1", "read_file"); err != nil {
		t.Fatalf("ListPoliciesFor: %v", err)
	}
	if _, err := c.ListPoliciesFor(context.Background(), "agent-1", "send_email"); err != nil {
		t.Fatalf("ListPoliciesFor: %v", err)
	}
	if _, err := c.ListPoliciesFor(context.Background(), "agent-2", "read_file"); err != nil {
		t.Fatalf("ListPoliciesFor: %v", err)
	}
	if n := src.calls.Load(); n != 3 {
		t.Errorf("store hit %d times, want one fill per pair", n)
	}
}

func TestCachingPolicyReader_BumpForcesSynchronousRefill(t *testing.T) {
	src := &countingSource{policies: []Policy{{ID: "p1"}}}
	c := NewCachingPolicyReader(src, 30*time.Second, zap.NewNop())

	if _, err := c.ListPoliciesFor(context.Background(), "agent-1", "read_file"); err != nil {
		t.Fatalf("ListPoliciesFor: %v", err)
	}

	// Simulate a policy sync replacing the set.
	src.policies = []Policy{{ID: "p2"}}
	c.Bump()

	policies, err := c.ListPoliciesFor(context.Background(), "agent-1", "read_file")
	if err != nil {
		t.Fatalf("ListPoliciesFor: %v", err)
	}
	if len(policies) != 1 || policies[0].ID != "p2" {
		t.Errorf("stale set served after Bump: %+v", policies)
	}
	if n := src.calls.Load(); n != 2 {
		t.Errorf("store hit %d times, want refill after Bump", n)
	}
}

func TestCachingPolicyReader_SecurityConfigCached(t *testing.T) {
	allow := true
	src := &countingSource{config: &SecurityConfig{AgentToolID: "at-1", AllowWhenUntrusted: &allow}}
	c := NewCachingPolicyReader(src, 30*time.Second, zap.NewNop())

	cfg, err := c.GetSecurityConfig(context.Background(), "agent-1", "read_file")
	if err != nil {
		t.Fatalf("GetSecurityConfig: %v", err)
	}
	if cfg == nil || cfg.AllowWhenUntrusted == nil || !*cfg.AllowWhenUntrusted {
		t.Fatalf("config = %+v", cfg)
	}

	// Second read comes from the same entry as the policy list.
	if _, err := c.ListPoliciesFor(context.Background(), "agent-1", "read_file"); err != nil {
		t.Fatalf("ListPoliciesFor: %v", err)
	}
	if n := src.calls.Load(); n != 1 {
		t.Errorf("store hit %d times, want shared entry", n)
	}
}

func TestCachingPolicyReader_StaleEntryServedWhileRefreshing(t *testing.T) {
	src := &countingSource{policies: []Policy{{ID: "p1"}}}
	c := NewCachingPolicyReader(src, time.Millisecond, zap.NewNop())

	if _, err := c.ListPoliciesFor(context.Background(), "agent-1", "read_file"); err != nil {
		t.Fatalf("ListPoliciesFor: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	// Expired but same generation: the stale set comes back immediately.
	policies, err := c.ListPoliciesFor(context.Background(), "agent-1", "read_file")
	if err != nil {
		t.Fatalf("ListPoliciesFor: %v", err)
	}
	if len(policies) != 1 || policies[0].ID != "p1" {
		t.Errorf("policies = %+v", policies)
	}
}
