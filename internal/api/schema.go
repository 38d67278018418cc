package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// policySchemaJSON validates policy documents before they reach Postgres.
// Operator and action enums here mirror the CHECK constraints on the
// tool_invocation_policies table.
const policySchemaJSON = `{
	"$defs": {
		"policy": {
			"type": "object",
			"required": ["argument_name", "operator", "value", "action"],
			"properties": {
				"argument_name": {"type": "string", "minLength": 1},
				"operator": {
					"enum": ["endsWith", "startsWith", "contains", "notContains",
					         "equal", "notEqual", "regex"]
				},
				"value": {"type": "string"},
				"action": {
					"enum": ["block_always", "allow_when_context_is_untrusted"]
				},
				"reason": {"type": "string"}
			},
			"additionalProperties": false
		}
	},
	"type": "object",
	"required": ["policies"],
	"properties": {
		"policies": {
			"type": "array",
			"items": {"$ref": "#/$defs/policy"}
		}
	},
	"additionalProperties": false
}`

var (
	schemaOnce       sync.Once
	syncDocSchema    *jsonschema.Schema
	policyItemSchema *jsonschema.Schema
	schemaCompileErr error
)

func compiledSchemas() (*jsonschema.Schema, *jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(policySchemaJSON)))
		if err != nil {
			schemaCompileErr = fmt.Errorf("compile policy schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("policies.json", doc); err != nil {
			schemaCompileErr = fmt.Errorf("compile policy schema: %w", err)
			return
		}
		if syncDocSchema, err = c.Compile("policies.json"); err != nil {
			schemaCompileErr = fmt.Errorf("compile policy schema: %w", err)
			return
		}
		if policyItemSchema, err = c.Compile("policies.json#/$defs/policy"); err != nil {
			schemaCompileErr = fmt.Errorf("compile policy schema: %w", err)
		}
	})
	return syncDocSchema, policyItemSchema, schemaCompileErr
}

// readValidatedJSON reads the body once, checks it against the schema, and
// only then decodes it into the typed struct, so a malformed policy never
// reaches the store.
func readValidatedJSON(r *http.Request, schema *jsonschema.Schema, v interface{}) error {
	defer func() { _ = r.Body.Close() }()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}
