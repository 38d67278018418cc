package provider

import (
	"encoding/json"
	"fmt"
)

// ProviderOpenAI tags OpenAI-shaped chat completion histories.
const ProviderOpenAI = "openai"

// openaiMessage mirrors one element of an OpenAI chat.completions messages
// array. Content is either a plain string or an array of typed parts.
type openaiMessage struct {
	Role       string           `json:"role"`
	Name       string           `json:"name,omitempty"`
	Content    json.RawMessage  `json:"content"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openaiToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openaiContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// OpenAIDecoder decodes OpenAI-shaped histories. Tool results arrive as
// role:"tool" messages carrying only a tool_call_id; the decoder correlates
// them back to the assistant tool_calls earlier in the array so the
// classifier can resolve which tool produced the content.
type OpenAIDecoder struct{}

func (OpenAIDecoder) Provider() string { return ProviderOpenAI }

func (OpenAIDecoder) Decode(raw json.RawMessage) ([]Message, error) {
	var msgs []openaiMessage
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, fmt.Errorf("openai decode: %w", err)
	}

	// First pass: map tool_call_id → function name.
	callNames := make(map[string]string)
	for _, m := range msgs {
		for _, tc := range m.ToolCalls {
			callNames[tc.ID] = tc.Function.Name
		}
	}

	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		msg := Message{Role: mapOpenAIRole(m.Role)}

		if m.Role == "tool" || m.Role == "function" {
			// role:"function" is the legacy pre-tool_calls shape: no
			// tool_call_id, the function name rides on the message itself.
			name := callNames[m.ToolCallID]
			if name == "" {
				name = m.Name
			}
			text, unknown := flattenOpenAIContent(m.Content)
			msg.Blocks = append(msg.Blocks, Block{
				Kind:       KindToolResult,
				Text:       text,
				ToolName:   name,
				ToolCallID: m.ToolCallID,
			})
			if unknown {
				msg.Blocks = append(msg.Blocks, Block{Kind: KindUnknown})
			}
			out = append(out, msg)
			continue
		}

		text, unknown := flattenOpenAIContent(m.Content)
		if text != "" {
			msg.Blocks = append(msg.Blocks, Block{Kind: KindText, Text: text})
		}
		if unknown {
			msg.Blocks = append(msg.Blocks, Block{Kind: KindUnknown})
		}
		for _, tc := range m.ToolCalls {
			kind := KindToolUse
			if tc.Type != "function" && tc.Type != "" {
				kind = KindUnknown
			}
			msg.Blocks = append(msg.Blocks, Block{
				Kind:       kind,
				ToolName:   tc.Function.Name,
				ToolCallID: tc.ID,
			})
		}
		out = append(out, msg)
	}
	return out, nil
}

func mapOpenAIRole(role string) Role {
	switch role {
	case "system", "developer":
		return RoleSystem
	case "user":
		return RoleUser
	case "assistant":
		return RoleAssistant
	case "tool", "function":
		return RoleTool
	default:
		return Role(role)
	}
}

// flattenOpenAIContent joins string content or text parts into one string.
// unknown reports whether any part was not text (image_url, input_audio,
// future kinds), so the caller can surface it rather than drop it.
func flattenOpenAIContent(raw json.RawMessage) (text string, unknown bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, false
	}
	var parts []openaiContentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", true
	}
	for _, p := range parts {
		if p.Type == "text" {
			text += p.Text
		} else {
			unknown = true
		}
	}
	return text, unknown
}
