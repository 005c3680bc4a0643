// Package logctx enriches slog records with connection and RPC attributes
// carried in the context, so every log line emitted while serving a
// connection identifies which server and which request it belongs to without
// threading attributes through call sites.
package logctx

import (
	"context"
	"log/slog"
)

// Handler wraps another slog.Handler and appends context-derived groups.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if cd, ok := ctx.Value(connDataKey{}).(*ConnData); ok {
		r.AddAttrs(slog.Group("conn",
			slog.String("server", cd.Server),
			slog.String("id", cd.ConnID),
			slog.String("state", cd.State),
		))
	}

	if msg, ok := ctx.Value(rpcMsgKey{}).(*RPCMessage); ok {
		r.AddAttrs(slog.Group("rpc",
			slog.String("method", msg.Method),
			slog.String("id", msg.ID),
			slog.String("type", msg.Type),
		))
	}

	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

type connDataKey struct{}

// ConnData identifies the connection a log record was emitted for.
type ConnData struct {
	Server string
	ConnID string
	State  string
}

func WithConnData(ctx context.Context, data *ConnData) context.Context {
	return context.WithValue(ctx, connDataKey{}, data)
}

type rpcMsgKey struct{}

// RPCMessage identifies the JSON-RPC message being processed.
type RPCMessage struct {
	Method string
	ID     string
	Type   string
}

func WithRPCMessage(ctx context.Context, msg *RPCMessage) context.Context {
	return context.WithValue(ctx, rpcMsgKey{}, msg)
}
