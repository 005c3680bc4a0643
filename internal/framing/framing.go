// Package framing turns an arbitrarily chunked byte stream into a sequence
// of complete newline-terminated JSON-RPC messages. Each connection owns its
// own reader; nothing here is safe for concurrent use and nothing here needs
// to be, because a connection's output stream is consumed by exactly one
// goroutine.
package framing

import (
	"bytes"
	"context"
	"io"
	"log/slog"

	"github.com/mcp-lens/mcp-lens/internal/jsonrpc"
)

// Splitter accumulates chunks and yields the complete lines they contain.
// Bytes after the last terminator are carried over to the next push, so a
// single logical message may arrive in any number of chunks, split anywhere,
// and still reassemble exactly.
type Splitter struct {
	carry []byte
}

// Push appends a chunk and returns the complete lines now available, without
// their terminators. The carry-over buffer holds at most one incomplete
// message fragment between calls.
func (s *Splitter) Push(chunk []byte) [][]byte {
	s.carry = append(s.carry, chunk...)

	var lines [][]byte
	for {
		idx := bytes.IndexByte(s.carry, '\n')
		if idx < 0 {
			return lines
		}
		line := s.carry[:idx]
		line = bytes.TrimSuffix(line, []byte{'\r'})
		out := make([]byte, len(line))
		copy(out, line)
		lines = append(lines, out)
		s.carry = s.carry[idx+1:]
	}
}

// Pending reports how many carried-over bytes await a terminator.
func (s *Splitter) Pending() int { return len(s.carry) }

// Reader decodes framed JSON-RPC messages from a raw stream. Lines that are
// not valid JSON or that violate the envelope shape are logged and skipped;
// a malformed line never tears down the stream.
type Reader struct {
	src   io.Reader
	split Splitter
	queue [][]byte
	buf   []byte
	log   *slog.Logger
}

// ReaderOption customizes a Reader.
type ReaderOption func(*Reader)

// WithLogger overrides the logger used for frame diagnostics.
func WithLogger(l *slog.Logger) ReaderOption {
	return func(r *Reader) {
		if l != nil {
			r.log = l
		}
	}
}

// NewReader wraps src. The reader owns no goroutines; callers drive it by
// calling Next.
func NewReader(src io.Reader, opts ...ReaderOption) *Reader {
	r := &Reader{
		src: src,
		buf: make([]byte, 4096),
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Next blocks until a structurally valid message arrives or the stream ends.
// It returns the underlying read error (typically io.EOF after the process
// exits) once no further frames can be produced.
func (r *Reader) Next(ctx context.Context) (*jsonrpc.AnyMessage, error) {
	for {
		if msg, ok := r.popQueued(ctx); ok {
			return msg, nil
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.queue = append(r.queue, r.split.Push(r.buf[:n])...)
		}
		if err != nil {
			// Drain whatever complete frames the final chunk produced
			// before reporting the stream error.
			if msg, ok := r.popQueued(ctx); ok {
				return msg, nil
			}
			return nil, err
		}
	}
}

func (r *Reader) popQueued(ctx context.Context) (*jsonrpc.AnyMessage, bool) {
	for len(r.queue) > 0 {
		line := r.queue[0]
		r.queue = r.queue[1:]
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var msg jsonrpc.AnyMessage
		if err := msg.UnmarshalJSON(line); err != nil {
			r.log.WarnContext(ctx, "discarding malformed frame", "err", err, "len", len(line))
			continue
		}
		return &msg, true
	}
	return nil, false
}
