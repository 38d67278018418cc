package api

import (
	"bytes"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

func validateDoc(t *testing.T, sch *jsonschema.Schema, body string) error {
	t.Helper()
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("unmarshal %q: %v", body, err)
	}
	return sch.Validate(doc)
}

func TestPolicySchema_ValidSyncDocument(t *testing.T) {
	docSchema, _, err := compiledSchemas()
	if err != nil {
		t.Fatalf("compiledSchemas: %v", err)
	}
	body := `{"policies": [
		{"argument_name": "path", "operator": "endsWith", "value": ".env",
		 "action": "block_always", "reason": "secrets file"},
		{"argument_name": "url", "operator": "startsWith", "value": "https://internal.",
		 "action": "allow_when_context_is_untrusted"}
	]}`
	if err := validateDoc(t, docSchema, body); err != nil {
		t.Errorf("valid document rejected: %v", err)
	}
}

func TestPolicySchema_EmptyPolicyList(t *testing.T) {
	docSchema, _, err := compiledSchemas()
	if err != nil {
		t.Fatalf("compiledSchemas: %v", err)
	}
	if err := validateDoc(t, docSchema, `{"policies": []}`); err != nil {
		t.Errorf("empty list should be valid (clears all policies): %v", err)
	}
}

func TestPolicySchema_RejectsUnknownOperator(t *testing.T) {
	_, itemSchema, err := compiledSchemas()
	if err != nil {
		t.Fatalf("compiledSchemas: %v", err)
	}
	body := `{"argument_name": "path", "operator": "matches", "value": "x", "action": "block_always"}`
	if err := validateDoc(t, itemSchema, body); err == nil {
		t.Error("unknown operator accepted")
	}
}

func TestPolicySchema_RejectsMissingFields(t *testing.T) {
	_, itemSchema, err := compiledSchemas()
	if err != nil {
		t.Fatalf("compiledSchemas: %v", err)
	}
	body := `{"operator": "equal", "value": "x", "action": "block_always"}`
	if err := validateDoc(t, itemSchema, body); err == nil {
		t.Error("policy without argument_name accepted")
	}
}

func TestPolicySchema_RejectsExtraFields(t *testing.T) {
	_, itemSchema, err := compiledSchemas()
	if err != nil {
		t.Fatalf("compiledSchemas: %v", err)
	}
	body := `{"argument_name": "path", "operator": "equal", "value": "x",
		"action": "block_always", "priority": 5}`
	if err := validateDoc(t, itemSchema, body); err == nil {
		t.Error("unknown field accepted")
	}
}
