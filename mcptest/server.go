package mcptest

import (
	"encoding/json"
	"fmt"

	"github.com/mcp-lens/mcp-lens/internal/jsonrpc"
	"github.com/mcp-lens/mcp-lens/mcp"
)

// ToolHandler produces the result of one tools/call invocation.
type ToolHandler func(args json.RawMessage) (*mcp.CallToolResult, error)

// ToolDef pairs a tool descriptor with the handler that serves it.
type ToolDef struct {
	Tool    mcp.Tool
	Handler ToolHandler
}

// Server plays a well-behaved MCP server over a Transport: it answers the
// initialize handshake, serves tools/list from its registered tools, and
// dispatches tools/call to handlers. Tests that need misbehavior script the
// Transport directly instead.
type Server struct {
	t        *Transport
	info     mcp.ImplementationInfo
	tools    []mcp.Tool
	handlers map[string]ToolHandler
	initErr  *jsonrpc.Error
	silent   map[mcp.Method]bool
}

// ServerOption customizes a Server.
type ServerOption func(*Server)

// WithServerInfo sets the identity reported during initialize.
func WithServerInfo(name, version string) ServerOption {
	return func(s *Server) {
		s.info = mcp.ImplementationInfo{Name: name, Version: version}
	}
}

// WithTools registers the tools the server advertises and serves.
func WithTools(defs ...ToolDef) ServerOption {
	return func(s *Server) {
		for _, def := range defs {
			s.tools = append(s.tools, def.Tool)
			if def.Handler != nil {
				s.handlers[def.Tool.Name] = def.Handler
			}
		}
	}
}

// WithInitializeFailure makes the server reject initialize with an error
// response.
func WithInitializeFailure(code jsonrpc.ErrorCode, message string) ServerOption {
	return func(s *Server) {
		s.initErr = &jsonrpc.Error{Code: code, Message: message}
	}
}

// WithSilentMethod makes the server swallow requests for method without
// answering, which is how tests provoke timeouts.
func WithSilentMethod(method mcp.Method) ServerOption {
	return func(s *Server) {
		s.silent[method] = true
	}
}

// NewServer builds a server and starts serving its transport.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		t:        NewTransport(),
		info:     mcp.ImplementationInfo{Name: "mcptest", Version: "0.0.0"},
		handlers: make(map[string]ToolHandler),
		silent:   make(map[mcp.Method]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.serve()
	return s
}

// Transport exposes the underlying transport for direct scripting.
func (s *Server) Transport() *Transport { return s.t }

func (s *Server) serve() {
	for req := range s.t.requests {
		if s.silent[mcp.Method(req.Method)] {
			continue
		}
		s.handle(req)
	}
}

func (s *Server) handle(req Request) {
	switch mcp.Method(req.Method) {
	case mcp.InitializeMethod:
		if s.initErr != nil {
			s.t.RespondError(req.ID, int(s.initErr.Code), s.initErr.Message)
			return
		}
		s.t.RespondResult(req.ID, mcp.InitializeResult{
			ProtocolVersion: mcp.LatestProtocolVersion,
			Capabilities: mcp.ServerCapabilities{
				Tools: &struct {
					ListChanged bool `json:"listChanged"`
				}{},
			},
			ServerInfo: s.info,
		})
	case mcp.InitializedNotificationMethod:
		// Notification, nothing to answer.
	case mcp.ToolsListMethod:
		tools := s.tools
		if tools == nil {
			tools = []mcp.Tool{}
		}
		s.t.RespondResult(req.ID, mcp.ListToolsResult{Tools: tools})
	case mcp.ToolsCallMethod:
		s.handleCall(req)
	case mcp.PingMethod:
		s.t.RespondResult(req.ID, struct{}{})
	default:
		if req.HasID {
			s.t.RespondError(req.ID, int(jsonrpc.ErrorCodeMethodNotFound), fmt.Sprintf("method not found: %s", req.Method))
		}
	}
}

func (s *Server) handleCall(req Request) {
	var call mcp.CallToolRequest
	if err := json.Unmarshal(req.Params, &call); err != nil {
		s.t.RespondError(req.ID, int(jsonrpc.ErrorCodeInvalidParams), "malformed tools/call params")
		return
	}
	handler, ok := s.handlers[call.Name]
	if !ok {
		s.t.RespondError(req.ID, int(jsonrpc.ErrorCodeInvalidParams), fmt.Sprintf("unknown tool: %s", call.Name))
		return
	}
	res, err := handler(call.Arguments)
	if err != nil {
		s.t.RespondError(req.ID, int(jsonrpc.ErrorCodeInternalError), err.Error())
		return
	}
	s.t.RespondResult(req.ID, res)
}
