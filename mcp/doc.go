// Package mcp contains the protocol data types and constants the connection
// runtime puts on the wire. It mirrors the JSON representation of the Model
// Context Protocol while keeping the surface Go-friendly (exported structs
// with json tags, string constants for method names).
//
// The package is intentionally free of transport logic: the client package
// imports these types and implements its own framing, correlation and
// lifecycle handling. Method and notification names are enumerated as Method
// constants (e.g. ToolsListMethod) so there is a single point of truth if
// the protocol evolves.
package mcp
