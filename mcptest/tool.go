package mcptest

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/mcp-lens/mcp-lens/mcp"
)

// NewTool builds a tool descriptor whose input schema is reflected from the
// argument type A, so test servers advertise realistic schemas without
// hand-writing JSON.
func NewTool[A any](name, description string, handler func(args A) (*mcp.CallToolResult, error)) ToolDef {
	r := &jsonschema.Reflector{
		DoNotReference: true, // inline defs
		ExpandedStruct: true, // put struct at root
	}
	// Reflect from a zero value pointer to capture struct tags consistently
	schema := r.Reflect(new(A))
	raw, err := json.Marshal(schema)
	if err != nil {
		raw = json.RawMessage(`{"type":"object"}`)
	}

	def := ToolDef{
		Tool: mcp.Tool{
			Name:        name,
			Description: description,
			InputSchema: raw,
		},
	}
	if handler != nil {
		def.Handler = func(args json.RawMessage) (*mcp.CallToolResult, error) {
			var a A
			if len(args) > 0 {
				if err := json.Unmarshal(args, &a); err != nil {
					return nil, fmt.Errorf("decode arguments: %w", err)
				}
			}
			return handler(a)
		}
	}
	return def
}

// TextResult wraps a string as a single text content block.
func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.ContentBlock{{Type: "text", Text: text}},
	}
}
