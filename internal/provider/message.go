// Package provider decodes provider-native conversation payloads into the
// single neutral {role, blocks} shape the trust classifier consumes. Adding a
// provider means adding one decoder here; the classifier never changes.
package provider

import "encoding/json"

// Role is the speaker of a message in the neutral model.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// BlockKind tags one content block. KindUnknown covers any block type the
// decoder does not recognize; the classifier treats those as untrusted
// rather than skipping them.
type BlockKind string

const (
	KindText             BlockKind = "text"
	KindToolUse          BlockKind = "tool_use"
	KindToolResult       BlockKind = "tool_result"
	KindThinking         BlockKind = "thinking"
	KindRedactedThinking BlockKind = "redacted_thinking"
	KindUnknown          BlockKind = "unknown"
)

// Block is one content block in the neutral model.
type Block struct {
	Kind BlockKind
	Text string
	// ToolName is set on tool_use blocks, and on tool_result blocks when the
	// decoder could correlate the result back to its originating call.
	ToolName   string
	ToolCallID string
}

// Message is one turn in the neutral model.
type Message struct {
	Role   Role
	Blocks []Block
}

// Decoder turns a provider-native message array into neutral messages.
type Decoder interface {
	// Provider returns the provider tag this decoder handles.
	Provider() string

	// Decode parses the raw provider payload. It must be exhaustive over the
	// provider's block kinds and map anything unrecognized to KindUnknown.
	Decode(raw json.RawMessage) ([]Message, error)
}

// DecoderFor returns the decoder registered for a provider tag.
func DecoderFor(provider string) (Decoder, bool) {
	switch provider {
	case ProviderOpenAI:
		return OpenAIDecoder{}, true
	case ProviderAnthropic:
		return AnthropicDecoder{}, true
	default:
		return nil, false
	}
}
