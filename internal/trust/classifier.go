package trust

import (
	"context"

	"github.com/kingerharshit/toolgate/internal/provider"
	"go.uber.org/zap"
)

// RedactedPlaceholder replaces content the classifier could not attribute to
// a trusted source in the filtered message list.
const RedactedPlaceholder = "[content removed: unverified origin]"

// Verdict is the classifier's per-evaluation decision.
type Verdict struct {
	ContextTrusted bool
	// FilteredMessages mirrors the input history with unattributable
	// tool-result content redacted. The stored conversation is never mutated.
	FilteredMessages []provider.Message
}

// Classifier decides whether a conversation contains content that did not
// originate from the user, the system prompt, or a trusted tool. Read-only:
// its only side effect is resolver lookups (and the conversation latch).
type Classifier struct {
	resolver Resolver
	latch    *Latch
	logger   *zap.Logger
}

// NewClassifier creates a classifier using the given provenance resolver.
func NewClassifier(resolver Resolver, latch *Latch, logger *zap.Logger) *Classifier {
	return &Classifier{resolver: resolver, latch: latch, logger: logger}
}

// Classify walks the ordered message history and returns the trust verdict.
//
// The walk is exhaustive over block kinds. Tool results are attributed via
// the resolver; anything whose provenance cannot be confirmed — unknown tools,
// unknown block kinds, resolver failures — counts as untrusted. Resolver
// failures specifically fail closed rather than propagating: a classifier
// that errors out would otherwise tempt callers into defaulting to trusted.
//
// conversationID binds the verdict to the monotonic latch: a conversation
// that has ever been untrusted stays untrusted for every later call, even if
// the later history contains only trusted content.
func (c *Classifier) Classify(ctx context.Context, conversationID, agentID string, msgs []provider.Message, creds Credentials) Verdict {
	trusted := !c.latch.IsUntrusted(conversationID)

	filtered := make([]provider.Message, len(msgs))
	for i, msg := range msgs {
		out := provider.Message{Role: msg.Role, Blocks: make([]provider.Block, len(msg.Blocks))}
		copy(out.Blocks, msg.Blocks)

		for j, block := range msg.Blocks {
			ok, redact := c.classifyBlock(ctx, agentID, msg.Role, block, creds)
			if !ok {
				trusted = false
			}
			if redact {
				out.Blocks[j].Text = RedactedPlaceholder
			}
		}
		filtered[i] = out
	}

	if !trusted {
		c.latch.MarkUntrusted(conversationID)
	}
	return Verdict{ContextTrusted: trusted, FilteredMessages: filtered}
}

// classifyBlock returns whether one block is trusted and whether its content
// should be redacted in the filtered view.
func (c *Classifier) classifyBlock(ctx context.Context, agentID string, role provider.Role, block provider.Block, creds Credentials) (trusted, redact bool) {
	switch block.Kind {
	case provider.KindText:
		switch role {
		case provider.RoleSystem, provider.RoleUser, provider.RoleAssistant:
			return true, false
		}
		// Tool output, or a role this classifier does not recognize:
		// provenance that cannot be attributed is untrusted.
		return false, false

	case provider.KindToolUse, provider.KindThinking, provider.KindRedactedThinking:
		// Model-generated. The call request itself introduces no external
		// content; only its result can.
		return true, false

	case provider.KindToolResult:
		if block.ToolName == "" {
			// Result with no attributable call. Cannot confirm origin.
			return false, true
		}
		origin, err := c.resolver.Resolve(ctx, agentID, block.ToolName, creds)
		if err != nil {
			c.logger.Warn("provenance resolution failed, failing closed",
				zap.String("agent_id", agentID),
				zap.String("tool_name", block.ToolName),
				zap.Error(err),
			)
			return false, true
		}
		switch origin {
		case OriginFirstParty, OriginTrusted:
			return true, false
		case OriginUntrusted:
			return false, false
		default:
			return false, true
		}

	default:
		// Unknown block kinds are never silently skipped.
		return false, false
	}
}
