package tools

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidateParams compiles schema (a tool's own JSON Schema literal) and
// validates params against it, returning a descriptive error on the first
// violation. Tools call this before unmarshaling into their params struct
// so malformed LLM-constructed calls fail with a schema-shaped message
// instead of a raw Go unmarshal error.
func ValidateParams(schema json.RawMessage, params json.RawMessage) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("tool.schema.json", bytes.NewReader(schema)); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	compiled, err := compiler.Compile("tool.schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var decoded interface{}
	if err := json.Unmarshal(params, &decoded); err != nil {
		return fmt.Errorf("invalid JSON parameters: %w", err)
	}
	if err := compiled.Validate(decoded); err != nil {
		return fmt.Errorf("parameters do not match schema: %w", err)
	}
	return nil
}
