package mcptest

import (
	"encoding/json"
	"testing"

	"github.com/mcp-lens/mcp-lens/mcp"
)

func TestNewToolReflectsSchema(t *testing.T) {
	type args struct {
		Text  string `json:"text" jsonschema:"description=text to echo"`
		Count int    `json:"count,omitempty"`
	}
	def := NewTool("echo", "echoes text", func(a args) (*mcp.CallToolResult, error) {
		return TextResult(a.Text), nil
	})

	if def.Tool.Name != "echo" {
		t.Fatalf("unexpected name: %s", def.Tool.Name)
	}

	var schema struct {
		Type       string                     `json:"type"`
		Properties map[string]json.RawMessage `json:"properties"`
		Required   []string                   `json:"required"`
	}
	if err := json.Unmarshal(def.Tool.InputSchema, &schema); err != nil {
		t.Fatalf("decoding schema: %v", err)
	}
	if schema.Type != "object" {
		t.Fatalf("expected object schema, got %q", schema.Type)
	}
	if _, ok := schema.Properties["text"]; !ok {
		t.Fatalf("schema missing text property: %v", schema.Properties)
	}
	if len(schema.Required) != 1 || schema.Required[0] != "text" {
		t.Fatalf("unexpected required set: %v", schema.Required)
	}

	res, err := def.Handler(json.RawMessage(`{"text":"hello"}`))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if res.Content[0].Text != "hello" {
		t.Fatalf("unexpected result: %+v", res)
	}
}
