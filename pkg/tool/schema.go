package tool

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	jsvalidate "github.com/santhosh-tekuri/jsonschema/v5"
)

// GenerateSchema builds a JSON schema map from a Go struct prototype using
// its struct tags.
//
// Supported tags:
//   - json:"name" - parameter name
//   - json:",omitempty" - optional parameter
//   - jsonschema:"required" - explicitly mark as required
//   - jsonschema:"description=..." - parameter description
//   - jsonschema:"default=..." - default value
//   - jsonschema:"enum=a|b" - allowed values
//
// Example:
//
//	type Args struct {
//	    Query string `json:"query" jsonschema:"required,description=Search query"`
//	    Limit int    `json:"limit,omitempty" jsonschema:"description=Max results,default=10"`
//	}
func GenerateSchema(prototype any) (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}

	schema := reflector.Reflect(prototype)

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(data, &schemaMap); err != nil {
		return nil, err
	}

	// $schema and $id mean nothing to the LLM function-calling format.
	delete(schemaMap, "$schema")
	delete(schemaMap, "$id")

	if schemaMap["type"] == "object" {
		result := map[string]any{
			"type":       "object",
			"properties": schemaMap["properties"],
		}
		if required := schemaMap["required"]; required != nil {
			result["required"] = required
		}
		if addProps, ok := schemaMap["additionalProperties"]; ok {
			result["additionalProperties"] = addProps
		}
		return result, nil
	}

	return schemaMap, nil
}

type compiledSchema struct {
	schema *jsvalidate.Schema
}

func compileSchema(schemaMap map[string]any) (*compiledSchema, error) {
	if schemaMap == nil {
		return nil, nil
	}

	data, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, err
	}

	compiler := jsvalidate.NewCompiler()
	compiler.Draft = jsvalidate.Draft2020
	if err := compiler.AddResource("schema.json", bytes.NewReader(data)); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, err
	}

	return &compiledSchema{schema: schema}, nil
}

func (c *compiledSchema) validate(args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	// The validator wants plain JSON values; round-trip normalizes ints,
	// json.Number and friends.
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("arguments not serializable: %w", err)
	}
	var normalized any
	if err := json.Unmarshal(data, &normalized); err != nil {
		return fmt.Errorf("arguments not serializable: %w", err)
	}

	if err := c.schema.Validate(normalized); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
