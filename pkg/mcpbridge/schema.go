package mcpbridge

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// compileSchemas compiles each tool's input schema so Invoke can reject
// malformed arguments before they reach the session. Tools without a
// schema, or with one that does not compile, skip validation.
func compileSchemas(tools []ToolDescriptor) map[string]*gojsonschema.Schema {
	schemas := make(map[string]*gojsonschema.Schema, len(tools))
	for _, tool := range tools {
		if len(tool.InputSchema) == 0 {
			continue
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(tool.InputSchema))
		if err != nil {
			continue
		}
		schemas[tool.Name] = schema
	}
	return schemas
}

// validateArgs checks args against a compiled schema and returns a
// single error describing every violation.
func validateArgs(schema *gojsonschema.Schema, args map[string]interface{}) error {
	if args == nil {
		args = map[string]interface{}{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("invalid arguments: %s", strings.Join(msgs, "; "))
}
