package llm

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/invopop/jsonschema"
)

// Schema is a named JSON schema for strict structured output.
type Schema struct {
	Name       string
	Definition map[string]any
}

// PhaseVerdict is the classifier's structured answer.
type PhaseVerdict struct {
	Suggestion string `json:"suggestion" jsonschema:"enum=advance,enum=stay"`
}

// PhaseVerdictSchema is the structured-output format for PhaseVerdict.
var PhaseVerdictSchema = &Schema{Name: "PhaseVerdict", Definition: GenerateSchema[PhaseVerdict]()}

// GenerateSchema reflects T into a schema that satisfies OpenAI strict mode.
func GenerateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	schemaObj, err := schemaToMap(schema)
	if err != nil {
		panic(err)
	}
	ensureOpenAICompliance(schemaObj)
	return schemaObj
}

func schemaToMap(schema *jsonschema.Schema) (map[string]any, error) {
	b, err := schema.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	// Strict mode rejects the draft marker and the id the reflector adds.
	delete(m, "$schema")
	delete(m, "$id")
	return m, nil
}

// ensureOpenAICompliance closes every object and marks all its properties required.
func ensureOpenAICompliance(schema map[string]any) {
	if schemaType, ok := schema["type"].(string); ok && schemaType == "object" {
		schema["additionalProperties"] = false

		if properties, ok := schema["properties"].(map[string]any); ok {
			var required []string
			for name := range properties {
				required = append(required, name)
			}
			if len(required) > 0 {
				schema["required"] = required
			}
		}
	}

	if properties, ok := schema["properties"].(map[string]any); ok {
		for _, prop := range properties {
			if propMap, ok := prop.(map[string]any); ok {
				ensureOpenAICompliance(propMap)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		ensureOpenAICompliance(items)
	}
}

// DecodeJSON decodes model output into v. Markdown fences and text around the first
// top-level object are tolerated.
func DecodeJSON(outputText string, v any) error {
	s := strings.TrimSpace(outputText)
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(s, "```json"), "```"))
	if s == "" {
		return io.ErrUnexpectedEOF
	}

	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end <= start {
		return fmt.Errorf("no JSON object found in model output (len=%d)", len(s))
	}
	sub := s[start : end+1]
	if err := json.Unmarshal([]byte(sub), v); err != nil {
		return fmt.Errorf("failed to unmarshal extracted JSON (len=%d): %w", len(sub), err)
	}
	return nil
}
