// Package gatekeeper composes the trust classifier and the policy engine
// into the tool-call dispatch path: classify the conversation, evaluate the
// call, and only then forward it to the executor.
package gatekeeper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kingerharshit/toolgate/internal/engine"
	"github.com/kingerharshit/toolgate/internal/provider"
	"github.com/kingerharshit/toolgate/internal/storage"
	"github.com/kingerharshit/toolgate/internal/trust"
	"go.uber.org/zap"
)

// ToolCall is the call forwarded to the executor, unchanged from what the
// model proposed.
type ToolCall struct {
	RequestID      string
	ConversationID string
	AgentID        string
	ToolName       string
	Arguments      json.RawMessage
}

// Rejection is returned to the conversation in place of a tool result when a
// call is blocked, so the model can see why the call was refused.
type Rejection struct {
	ToolName string `json:"tool_name"`
	Reason   string `json:"reason"`
}

// ErrExecutorFailure marks a failure in the downstream tool backend, after
// the call was already approved.
var ErrExecutorFailure = errors.New("executor failure")

// Executor runs an approved tool call.
type Executor interface {
	Execute(ctx context.Context, call *ToolCall) (json.RawMessage, error)
}

// DispatchRequest carries one proposed tool call plus the conversation
// context needed to classify trust.
type DispatchRequest struct {
	ConversationID string
	AgentID        string
	ToolName       string
	Arguments      json.RawMessage
	Provider       string
	Messages       json.RawMessage
	Credentials    trust.Credentials
}

// DispatchResult is the outcome of one gatekept tool call.
type DispatchResult struct {
	RequestID      string
	Allowed        bool
	ContextTrusted bool
	Result         json.RawMessage // tool output, when allowed
	Rejection      *Rejection      // set when blocked
}

// Gatekeeper is the composition root sitting in the dispatch path.
type Gatekeeper struct {
	classifier *trust.Classifier
	engine     *engine.Engine
	executor   Executor
	writer     storage.EventWriter
	logger     *zap.Logger
}

// New creates a Gatekeeper. executor may be nil when only Evaluate/Classify
// are used (the HTTP decision API without dispatch).
func New(classifier *trust.Classifier, eng *engine.Engine, executor Executor, writer storage.EventWriter, logger *zap.Logger) *Gatekeeper {
	return &Gatekeeper{
		classifier: classifier,
		engine:     eng,
		executor:   executor,
		writer:     writer,
		logger:     logger,
	}
}

// ClassifyTrust decodes a provider-native history and runs the classifier.
func (g *Gatekeeper) ClassifyTrust(ctx context.Context, conversationID, agentID, providerName string, messages json.RawMessage, creds trust.Credentials) (*trust.Verdict, error) {
	dec, ok := provider.DecoderFor(providerName)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", providerName)
	}
	msgs, err := dec.Decode(messages)
	if err != nil {
		return nil, err
	}
	verdict := g.classifier.Classify(ctx, conversationID, agentID, msgs, creds)
	return &verdict, nil
}

// Evaluate runs the policy decision for one call with an externally supplied
// trust state, writing a decision event. A returned error is an
// infrastructure fault (retryable); the call is not allowed in that case.
func (g *Gatekeeper) Evaluate(ctx context.Context, conversationID, agentID, toolName string, arguments json.RawMessage, contextTrusted bool) (*engine.Result, error) {
	return g.evaluate(ctx, uuid.New().String(), conversationID, agentID, toolName, arguments, contextTrusted, "evaluate")
}

func (g *Gatekeeper) evaluate(ctx context.Context, requestID, conversationID, agentID, toolName string, arguments json.RawMessage, contextTrusted bool, source string) (*engine.Result, error) {
	start := time.Now()

	input, err := engine.ParseInput(arguments)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	res, err := g.engine.Evaluate(ctx, &engine.Request{
		AgentID:        agentID,
		ToolName:       toolName,
		ToolInput:      input,
		ContextTrusted: contextTrusted,
	})
	if err != nil {
		return nil, err
	}

	g.writer.Write(&storage.DecisionEvent{
		RequestID:      requestID,
		AgentID:        agentID,
		ConversationID: conversationID,
		Timestamp:      time.Now(),
		ToolName:       toolName,
		ArgumentsJSON:  string(arguments),
		ContextTrusted: contextTrusted,
		Allowed:        res.Allowed,
		Reason:         res.Reason,
		PolicyID:       res.PolicyID,
		InternalTool:   g.engine.IsInternalTool(toolName),
		LatencyMs:      float32(time.Since(start)) / float32(time.Millisecond),
		Source:         source,
	})

	g.logger.Info("tool call evaluated",
		zap.String("request_id", requestID),
		zap.String("agent_id", agentID),
		zap.String("tool_name", toolName),
		zap.Bool("context_trusted", contextTrusted),
		zap.Bool("allowed", res.Allowed),
		zap.String("reason", res.Reason),
	)
	return res, nil
}

// Dispatch runs the full gatekeeper path: classify the conversation,
// evaluate the call under the resulting trust state, and forward to the
// executor only on allow. On block the structured rejection stands in for
// the tool result.
func (g *Gatekeeper) Dispatch(ctx context.Context, req *DispatchRequest) (*DispatchResult, error) {
	verdict, err := g.ClassifyTrust(ctx, req.ConversationID, req.AgentID, req.Provider, req.Messages, req.Credentials)
	if err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}

	// One id covers the decision event, the executor call, and the response,
	// so a dispatched call can be correlated with its audit record.
	requestID := uuid.New().String()
	res, err := g.evaluate(ctx, requestID, req.ConversationID, req.AgentID, req.ToolName,
		req.Arguments, verdict.ContextTrusted, "dispatch")
	if err != nil {
		return nil, err
	}

	out := &DispatchResult{
		RequestID:      requestID,
		Allowed:        res.Allowed,
		ContextTrusted: verdict.ContextTrusted,
	}

	if !res.Allowed {
		out.Rejection = &Rejection{ToolName: req.ToolName, Reason: res.Reason}
		return out, nil
	}

	if g.executor == nil {
		return nil, fmt.Errorf("dispatch %s: %w: no executor configured", req.ToolName, ErrExecutorFailure)
	}
	result, err := g.executor.Execute(ctx, &ToolCall{
		RequestID:      out.RequestID,
		ConversationID: req.ConversationID,
		AgentID:        req.AgentID,
		ToolName:       req.ToolName,
		Arguments:      req.Arguments,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch %s: %w: %v", req.ToolName, ErrExecutorFailure, err)
	}
	out.Result = result
	return out, nil
}
