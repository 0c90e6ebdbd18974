package transport

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Cod-e-Codes/clack/shared"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocketConn carries one record per text frame.
type WebSocketConn struct {
	conn *websocket.Conn

	// gorilla allows one concurrent writer.
	writeMu sync.Mutex
}

// NewWebSocketConn wraps an established connection. Frames larger than
// maxRecord bytes fail the read with a protocol error.
func NewWebSocketConn(conn *websocket.Conn, maxRecord int64) *WebSocketConn {
	conn.SetReadLimit(maxRecord)
	return &WebSocketConn{conn: conn}
}

// Upgrade performs the server side of the WebSocket handshake.
func Upgrade(w http.ResponseWriter, r *http.Request, maxRecord int64) (*WebSocketConn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: websocket upgrade failed: %w", shared.ErrConnection, err)
	}
	return NewWebSocketConn(conn, maxRecord), nil
}

func (c *WebSocketConn) Send(msg shared.Message) error {
	data, err := shared.Encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: write failed: %w", shared.ErrConnection, err)
	}
	return nil
}

func (c *WebSocketConn) Receive() (shared.Message, error) {
	msgType, data, err := c.conn.ReadMessage()
	if err != nil {
		switch {
		case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
			return nil, io.EOF
		case errors.Is(err, websocket.ErrReadLimit):
			return nil, fmt.Errorf("%w: %w", shared.ErrProtocol, err)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, fmt.Errorf("%w: truncated frame: %w", shared.ErrProtocol, err)
		}
		return nil, fmt.Errorf("%w: read failed: %w", shared.ErrConnection, err)
	}
	if msgType != websocket.TextMessage {
		return nil, fmt.Errorf("%w: unexpected frame type %d", shared.ErrProtocol, msgType)
	}
	return shared.Decode(data)
}

// Close sends a close frame and closes the underlying connection.
func (c *WebSocketConn) Close() error {
	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.conn.Close()
}

func (c *WebSocketConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
