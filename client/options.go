package client

import (
	"log/slog"
	"time"
)

// Option customizes a Client.
type Option func(*Client)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRequestTimeout bounds each correlated request.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithHandshakeTimeout bounds the initialize exchange.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.handshakeTimeout = d
		}
	}
}

// WithTransportFactory substitutes the transport constructor. Tests use this
// to speak to an in-process scripted server instead of spawning an OS
// process.
func WithTransportFactory(f func(ServerConfig, *slog.Logger) Transport) Option {
	return func(c *Client) {
		if f != nil {
			c.newTransport = f
		}
	}
}
