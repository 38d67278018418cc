package provider

import (
	"encoding/json"
	"fmt"
)

// ProviderAnthropic tags Anthropic-shaped message histories.
const ProviderAnthropic = "anthropic"

// anthropicMessage mirrors one element of an Anthropic messages array.
// Content is either a plain string or an array of typed content blocks.
type anthropicMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type anthropicBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	ID        string          `json:"id,omitempty"`          // tool_use
	Name      string          `json:"name,omitempty"`        // tool_use
	ToolUseID string          `json:"tool_use_id,omitempty"` // tool_result
	Content   json.RawMessage `json:"content,omitempty"`     // tool_result
}

// AnthropicDecoder decodes Anthropic-shaped histories. tool_result blocks
// carry only a tool_use_id; the decoder correlates them with the tool_use
// blocks earlier in the history to recover the tool name.
type AnthropicDecoder struct{}

func (AnthropicDecoder) Provider() string { return ProviderAnthropic }

func (AnthropicDecoder) Decode(raw json.RawMessage) ([]Message, error) {
	var msgs []anthropicMessage
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, fmt.Errorf("anthropic decode: %w", err)
	}

	// First pass: map tool_use id → tool name.
	useNames := make(map[string]string)
	for _, m := range msgs {
		for _, b := range decodeAnthropicBlocks(m.Content) {
			if b.Type == "tool_use" {
				useNames[b.ID] = b.Name
			}
		}
	}

	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		msg := Message{Role: mapAnthropicRole(m.Role)}

		var plain string
		if err := json.Unmarshal(m.Content, &plain); err == nil {
			msg.Blocks = append(msg.Blocks, Block{Kind: KindText, Text: plain})
			out = append(out, msg)
			continue
		}

		for _, b := range decodeAnthropicBlocks(m.Content) {
			switch b.Type {
			case "text":
				msg.Blocks = append(msg.Blocks, Block{Kind: KindText, Text: b.Text})
			case "tool_use":
				msg.Blocks = append(msg.Blocks, Block{
					Kind: KindToolUse, ToolName: b.Name, ToolCallID: b.ID,
				})
			case "tool_result":
				msg.Blocks = append(msg.Blocks, Block{
					Kind:       KindToolResult,
					Text:       flattenAnthropicResult(b.Content),
					ToolName:   useNames[b.ToolUseID],
					ToolCallID: b.ToolUseID,
				})
			case "thinking":
				msg.Blocks = append(msg.Blocks, Block{Kind: KindThinking, Text: b.Thinking})
			case "redacted_thinking":
				msg.Blocks = append(msg.Blocks, Block{Kind: KindRedactedThinking})
			default:
				msg.Blocks = append(msg.Blocks, Block{Kind: KindUnknown})
			}
		}
		out = append(out, msg)
	}
	return out, nil
}

func mapAnthropicRole(role string) Role {
	switch role {
	case "user":
		return RoleUser
	case "assistant":
		return RoleAssistant
	default:
		return Role(role)
	}
}

func decodeAnthropicBlocks(raw json.RawMessage) []anthropicBlock {
	var blocks []anthropicBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil
	}
	return blocks
}

// flattenAnthropicResult joins a tool_result's content, which is either a
// plain string or an array of text blocks.
func flattenAnthropicResult(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var text string
	for _, b := range decodeAnthropicBlocks(raw) {
		if b.Type == "text" {
			text += b.Text
		}
	}
	return text
}
