package provider

import (
	"encoding/json"
	"testing"
)

func TestDecoderFor(t *testing.T) {
	if _, ok := DecoderFor("openai"); !ok {
		t.Error("openai decoder should be registered")
	}
	if _, ok := DecoderFor("anthropic"); !ok {
		t.Error("anthropic decoder should be registered")
	}
	if _, ok := DecoderFor("mistral"); ok {
		t.Error("unregistered provider should not resolve")
	}
}

func TestOpenAIDecode_ToolResultCorrelation(t *testing.T) {
	raw := json.RawMessage(`[
		{"role": "system", "content": "You are helpful."},
		{"role": "user", "content": "Fetch the report."},
		{"role": "assistant", "content": null, "tool_calls": [
			{"id": "call_1", "type": "function", "function": {"name": "fetch_url", "arguments": "{\"url\":\"https://x\"}"}}
		]},
		{"role": "tool", "tool_call_id": "call_1", "content": "report body"}
	]`)

	msgs, err := OpenAIDecoder{}.Decode(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}
	if msgs[0].Role != RoleSystem || msgs[0].Blocks[0].Kind != KindText {
		t.Errorf("system message decoded wrong: %+v", msgs[0])
	}
	if msgs[2].Blocks[0].Kind != KindToolUse || msgs[2].Blocks[0].ToolName != "fetch_url" {
		t.Errorf("tool_use decoded wrong: %+v", msgs[2].Blocks[0])
	}
	result := msgs[3].Blocks[0]
	if result.Kind != KindToolResult {
		t.Fatalf("tool message should decode to tool_result, got %q", result.Kind)
	}
	if result.ToolName != "fetch_url" {
		t.Errorf("tool_result should correlate to fetch_url, got %q", result.ToolName)
	}
	if result.Text != "report body" {
		t.Errorf("tool_result text = %q", result.Text)
	}
}

func TestOpenAIDecode_ContentPartsAndUnknownCallType(t *testing.T) {
	raw := json.RawMessage(`[
		{"role": "user", "content": [{"type": "text", "text": "hello"}, {"type": "image_url", "image_url": {"url": "x"}}]},
		{"role": "assistant", "tool_calls": [{"id": "c1", "type": "custom", "function": {"name": "n"}}]}
	]`)

	msgs, err := OpenAIDecoder{}.Decode(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgs[0].Blocks[0].Text != "hello" {
		t.Errorf("parts should flatten to text, got %q", msgs[0].Blocks[0].Text)
	}
	if len(msgs[0].Blocks) != 2 || msgs[0].Blocks[1].Kind != KindUnknown {
		t.Errorf("non-text content part should surface as an unknown block, got %+v", msgs[0].Blocks)
	}
	if msgs[1].Blocks[0].Kind != KindUnknown {
		t.Errorf("unrecognized tool call type should map to unknown, got %q", msgs[1].Blocks[0].Kind)
	}
}

func TestOpenAIDecode_LegacyFunctionRole(t *testing.T) {
	// Pre-tool_calls histories carry tool output as role:"function" with the
	// function name on the message and no tool_call_id.
	raw := json.RawMessage(`[
		{"role": "user", "content": "summarize the page"},
		{"role": "function", "name": "web_fetch", "content": "page body"}
	]`)

	msgs, err := OpenAIDecoder{}.Decode(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgs[1].Role != RoleTool {
		t.Errorf("function role should map to tool, got %q", msgs[1].Role)
	}
	result := msgs[1].Blocks[0]
	if result.Kind != KindToolResult {
		t.Fatalf("function message should decode to tool_result, got %q", result.Kind)
	}
	if result.ToolName != "web_fetch" {
		t.Errorf("tool name should come from the message name field, got %q", result.ToolName)
	}
	if result.Text != "page body" {
		t.Errorf("tool_result text = %q", result.Text)
	}
}

func TestAnthropicDecode_AllBlockKinds(t *testing.T) {
	raw := json.RawMessage(`[
		{"role": "user", "content": "read the doc"},
		{"role": "assistant", "content": [
			{"type": "thinking", "thinking": "I should fetch it"},
			{"type": "redacted_thinking", "data": "opaque"},
			{"type": "text", "text": "fetching"},
			{"type": "tool_use", "id": "tu_1", "name": "fetch_url", "input": {"url": "https://x"}}
		]},
		{"role": "user", "content": [
			{"type": "tool_result", "tool_use_id": "tu_1", "content": [{"type": "text", "text": "doc body"}]}
		]}
	]`)

	msgs, err := AnthropicDecoder{}.Decode(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}

	kinds := make([]BlockKind, 0, 4)
	for _, b := range msgs[1].Blocks {
		kinds = append(kinds, b.Kind)
	}
	want := []BlockKind{KindThinking, KindRedactedThinking, KindText, KindToolUse}
	for i, k := range want {
		if kinds[i] != k {
			t.Errorf("assistant block %d = %q, want %q", i, kinds[i], k)
		}
	}

	result := msgs[2].Blocks[0]
	if result.Kind != KindToolResult || result.ToolName != "fetch_url" {
		t.Errorf("tool_result should correlate to fetch_url, got %+v", result)
	}
	if result.Text != "doc body" {
		t.Errorf("tool_result text = %q", result.Text)
	}
}

func TestAnthropicDecode_UnknownBlockKind(t *testing.T) {
	raw := json.RawMessage(`[
		{"role": "assistant", "content": [{"type": "server_tool_use", "id": "x"}]}
	]`)

	msgs, err := AnthropicDecoder{}.Decode(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgs[0].Blocks[0].Kind != KindUnknown {
		t.Errorf("unrecognized block type must map to unknown, got %q", msgs[0].Blocks[0].Kind)
	}
}

func TestDecode_MalformedPayload(t *testing.T) {
	if _, err := (OpenAIDecoder{}).Decode(json.RawMessage(`{"not": "an array"}`)); err == nil {
		t.Error("openai decoder should reject a non-array payload")
	}
	if _, err := (AnthropicDecoder{}).Decode(json.RawMessage(`"nope"`)); err == nil {
		t.Error("anthropic decoder should reject a non-array payload")
	}
}
