package mcp

import "encoding/json"

// LatestProtocolVersion is the protocol revision advertised during the
// initialize handshake.
const LatestProtocolVersion = "2025-06-18"

// ImplementationInfo describes an implementation name and version.
type ImplementationInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Title   string `json:"title,omitzero"`
}

// ClientCapabilities advertises client features. The connection runtime
// declares none; the struct exists so the capabilities object is present on
// the wire and has room to grow.
type ClientCapabilities struct {
	Roots *struct {
		ListChanged bool `json:"listChanged"`
	} `json:"roots,omitempty"`
}

// ServerCapabilities advertises server features as reported by the
// initialize result.
type ServerCapabilities struct {
	Logging *struct{} `json:"logging,omitempty"`
	Prompts *struct {
		ListChanged bool `json:"listChanged"`
	} `json:"prompts,omitempty"`
	Resources *struct {
		ListChanged bool `json:"listChanged"`
		Subscribe   bool `json:"subscribe"`
	} `json:"resources,omitempty"`
	Tools *struct {
		ListChanged bool `json:"listChanged"`
	} `json:"tools,omitempty"`
}

// Tool describes one capability exposed by a connected server. The input
// schema is transported verbatim; the runtime never interprets it.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ContentBlock is a typed content part of a tool result.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitzero"`
	// For image and audio content.
	Data     string `json:"data,omitzero"`
	MimeType string `json:"mimeType,omitzero"`
}
