// Package transport moves encoded messages over a reliable, ordered stream.
// Two framings are supported: WebSocket text frames and newline-delimited
// records on a raw TCP connection.
package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Cod-e-Codes/clack/shared"
	"github.com/gorilla/websocket"
)

// Conn is one peer-to-peer connection carrying whole messages.
//
// Receive returns io.EOF when the peer closed the stream at a record
// boundary, an error wrapping shared.ErrProtocol for malformed, truncated or
// oversized records, and an error wrapping shared.ErrConnection for any other
// I/O failure. Send may be called concurrently with Receive.
type Conn interface {
	Send(msg shared.Message) error
	Receive() (shared.Message, error)
	Close() error
	RemoteAddr() string
}

// Kind selects the framing used on the wire.
type Kind string

const (
	WebSocket Kind = "ws"
	TCP       Kind = "tcp"
)

// WebSocketPath is the HTTP path the server upgrades on.
const WebSocketPath = "/ws"

const (
	// DefaultMaxRecordBytes bounds a single encoded record.
	DefaultMaxRecordBytes int64 = 4 << 20

	// envelopeAllowance is the record space kept for everything but the
	// base64 file contents.
	envelopeAllowance int64 = 64 << 10

	writeWait     = 10 * time.Second
	handshakeWait = 10 * time.Second
)

// ParseKind accepts "ws"/"websocket" and "tcp", case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ws", "websocket":
		return WebSocket, nil
	case "tcp":
		return TCP, nil
	}
	return "", fmt.Errorf("%w: unknown transport %q (want ws or tcp)", shared.ErrConfiguration, s)
}

// RecordLimit returns the record size needed to carry files of up to
// maxFileBytes: base64 expansion plus room for the envelope.
func RecordLimit(maxFileBytes int64) int64 {
	limit := maxFileBytes/3*4 + envelopeAllowance
	if limit < DefaultMaxRecordBytes {
		return DefaultMaxRecordBytes
	}
	return limit
}

// MaxPayloadBytes is the inverse of RecordLimit: the largest file whose
// encoded record fits in recordLimit bytes.
func MaxPayloadBytes(recordLimit int64) int64 {
	n := (recordLimit - envelopeAllowance) / 4 * 3
	if n < 0 {
		return 0
	}
	return n
}

// Dial connects to a Clack server using the given framing.
func Dial(ctx context.Context, kind Kind, host string, port int) (Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	switch kind {
	case WebSocket:
		dialer := websocket.Dialer{HandshakeTimeout: handshakeWait}
		url := "ws://" + addr + WebSocketPath
		conn, _, err := dialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to connect to %s: %w", shared.ErrConnection, url, err)
		}
		return NewWebSocketConn(conn, DefaultMaxRecordBytes), nil
	case TCP:
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to connect to %s: %w", shared.ErrConnection, addr, err)
		}
		return NewStreamConn(conn, DefaultMaxRecordBytes), nil
	}
	return nil, fmt.Errorf("%w: unknown transport %q", shared.ErrConfiguration, kind)
}
