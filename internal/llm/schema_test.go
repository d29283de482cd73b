package llm

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseVerdictSchema(t *testing.T) {
	def := PhaseVerdictSchema.Definition
	assert.Equal(t, "object", def["type"])
	assert.Equal(t, false, def["additionalProperties"])
	assert.Equal(t, []string{"suggestion"}, def["required"])
	assert.NotContains(t, def, "$schema")

	props := def["properties"].(map[string]any)
	suggestion := props["suggestion"].(map[string]any)
	assert.ElementsMatch(t, []any{"advance", "stay"}, suggestion["enum"])
}

func TestEnsureOpenAIComplianceNested(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":       "object",
					"properties": map[string]any{"a": map[string]any{"type": "string"}},
				},
			},
		},
	}
	ensureOpenAICompliance(schema)

	inner := schema["properties"].(map[string]any)["items"].(map[string]any)["items"].(map[string]any)
	assert.Equal(t, false, inner["additionalProperties"])
	assert.Equal(t, []string{"a"}, inner["required"])
}

func TestDecodeJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"suggestion":"stay"}`, "stay"},
		{"fenced", "```json\n{\"suggestion\": \"advance\"}\n```", "advance"},
		{"bare fence", "```\n{\"suggestion\": \"advance\"}\n```", "advance"},
		{"surrounded", `Sure! {"suggestion": "stay"} hope that helps`, "stay"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var v PhaseVerdict
			require.NoError(t, DecodeJSON(tc.in, &v))
			assert.Equal(t, tc.want, v.Suggestion)
		})
	}

	var v PhaseVerdict
	assert.ErrorIs(t, DecodeJSON("   ", &v), io.ErrUnexpectedEOF)
	assert.Error(t, DecodeJSON("advance", &v))
}
