package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/kingerharshit/toolgate/internal/store"
	"go.uber.org/zap"
)

// PolicyReader is the slice of the policy store the engine consumes.
// Implementations must return policies in creation order.
type PolicyReader interface {
	ListPoliciesFor(ctx context.Context, agentID, toolName string) ([]store.Policy, error)
	GetSecurityConfig(ctx context.Context, agentID, toolName string) (*store.SecurityConfig, error)
}

// Request describes one proposed tool call.
type Request struct {
	AgentID        string
	ToolName       string
	ToolInput      Input
	ContextTrusted bool
}

// Result is the decision for one tool call. It is created fresh per
// evaluation and never cached: trust state and arguments vary call to call.
type Result struct {
	Allowed  bool
	Reason   string
	PolicyID string // id of the policy that blocked, "" otherwise
}

// ReasonUntrustedContext is the fixed reason returned when an untrusted
// context has no explicit allow rule and no permissive default.
const ReasonUntrustedContext = "Tool invocation blocked: context contains untrusted data"

const reasonInternalTool = "internal tool"

// Config controls which tools bypass policy evaluation entirely.
type Config struct {
	// InternalToolPrefix marks first-party control-plane tools.
	InternalToolPrefix string
	// InternalTools are additional first-party tool names outside the prefix.
	InternalTools []string
}

// DefaultInternalToolPrefix is the namespace of the platform's own tools.
const DefaultInternalToolPrefix = "toolgate__"

// Engine decides whether one proposed tool call may proceed, given trust
// state and the policies configured for the (agent, tool) relationship.
// Evaluation is a pure function of (policies, security config, request); the
// only I/O is the bounded PolicyReader lookup.
type Engine struct {
	policies       PolicyReader
	internalPrefix string
	internalTools  map[string]struct{}
	logger         *zap.Logger
}

// NewEngine creates an engine reading policies from the given reader.
func NewEngine(policies PolicyReader, cfg Config, logger *zap.Logger) *Engine {
	prefix := cfg.InternalToolPrefix
	if prefix == "" {
		prefix = DefaultInternalToolPrefix
	}
	internal := make(map[string]struct{}, len(cfg.InternalTools))
	for _, name := range cfg.InternalTools {
		internal[name] = struct{}{}
	}
	return &Engine{
		policies:       policies,
		internalPrefix: prefix,
		internalTools:  internal,
		logger:         logger,
	}
}

// IsInternalTool reports whether a tool belongs to the first-party namespace
// and is therefore exempt from policy evaluation.
func (e *Engine) IsInternalTool(toolName string) bool {
	if strings.HasPrefix(toolName, e.internalPrefix) {
		return true
	}
	_, ok := e.internalTools[toolName]
	return ok
}

// Evaluate runs the policy decision for one tool call.
//
// A policy-level denial comes back as (Result{Allowed: false}, nil); the
// error return is reserved for infrastructure faults (policy store
// unreachable), which the caller may retry. A denial must never be retried.
//
// Block rules apply immediately: a later allow rule can never override an
// earlier block. Allow rules only record that their condition matched; the
// untrusted-context default is resolved after the full pass.
func (e *Engine) Evaluate(ctx context.Context, req *Request) (*Result, error) {
	if e.IsInternalTool(req.ToolName) {
		return &Result{Allowed: true, Reason: reasonInternalTool}, nil
	}

	policies, err := e.policies.ListPoliciesFor(ctx, req.AgentID, req.ToolName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	allowUntrusted, err := e.effectiveUntrustedDefault(ctx, req, policies)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	hasExplicitAllowRule := false
	for _, p := range policies {
		val, present := req.ToolInput.Lookup(p.ArgumentName)
		if !present {
			if p.Action == store.ActionBlockAlways {
				// A block cannot be evaluated against a missing value;
				// absence is not grounds for blocking.
				continue
			}
			if allowUntrusted {
				// The relationship default already covers untrusted usage.
				continue
			}
			return &Result{
				Allowed: false,
				Reason:  "Missing required argument: " + p.ArgumentName,
			}, nil
		}

		matched, err := matchOperator(p.Operator, p.Value, val)
		if err != nil {
			// Misconfigured rule: deny with the specific reason so the
			// operator can fix it, rather than failing the call.
			e.logger.Warn("policy configuration error",
				zap.String("policy_id", p.ID),
				zap.String("agent_id", req.AgentID),
				zap.String("tool_name", req.ToolName),
				zap.Error(err),
			)
			return &Result{
				Allowed:  false,
				Reason:   fmt.Sprintf("policy %s is misconfigured: %v", p.ID, err),
				PolicyID: p.ID,
			}, nil
		}
		if !matched {
			continue
		}

		switch p.Action {
		case store.ActionBlockAlways:
			return &Result{Allowed: false, Reason: p.Reason, PolicyID: p.ID}, nil
		case store.ActionAllowWhenUntrusted:
			hasExplicitAllowRule = true
		}
	}

	if !req.ContextTrusted {
		if allowUntrusted {
			return &Result{Allowed: true}, nil
		}
		if !hasExplicitAllowRule {
			return &Result{Allowed: false, Reason: ReasonUntrustedContext}, nil
		}
	}
	return &Result{Allowed: true}, nil
}

// effectiveUntrustedDefault resolves allowUsageWhenUntrustedDataIsPresent:
// the denormalized flag carried on the policy rows wins; only when no row
// carries it is the relationship's security config fetched. An unset flag is
// treated as false.
func (e *Engine) effectiveUntrustedDefault(ctx context.Context, req *Request, policies []store.Policy) (bool, error) {
	for _, p := range policies {
		if p.AllowWhenUntrusted != nil {
			return *p.AllowWhenUntrusted, nil
		}
	}
	cfg, err := e.policies.GetSecurityConfig(ctx, req.AgentID, req.ToolName)
	if err != nil {
		return false, err
	}
	if cfg == nil || cfg.AllowWhenUntrusted == nil {
		return false, nil
	}
	return *cfg.AllowWhenUntrusted, nil
}
