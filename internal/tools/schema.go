// Package tools implements the declarative name → (schema, handler)
// registry the LLM Adapter calls into (C6 in spec.md), grounded on
// original_source/app/ai/registry.py's FINANCIAL_TOOLS map and
// original_source/app/ai/tools/schemas.py's JSON-schema-shaped parameter
// descriptions.
package tools

// ParamType mirrors the JSON Schema primitive types the original tool
// schemas use.
type ParamType string

const (
	TypeString ParamType = "string"
	TypeNumber ParamType = "number"
	TypeArray  ParamType = "array"
)

// Parameter describes one argument a tool accepts, shaped like a JSON
// Schema property so it serializes directly into whatever dialect a
// provider's function-calling API expects.
type Parameter struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Enum        []string
	Pattern     string
	Minimum     *float64
	Maximum     *float64
	Default     any
	Items       *Parameter // set when Type == TypeArray
}

// Schema is the full parameter description for one tool, consumable by
// the LLM Adapter's provider-specific translation layer.
type Schema struct {
	Name        string
	Description string
	Parameters  []Parameter
}

func floatPtr(f float64) *float64 { return &f }
