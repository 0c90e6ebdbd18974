package transport

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/Cod-e-Codes/clack/shared"
)

// StreamConn carries one record per line on a byte stream. Encoded records
// never contain a raw newline since JSON escapes it inside strings.
type StreamConn struct {
	conn      net.Conn
	r         *bufio.Reader
	maxRecord int

	writeMu sync.Mutex
}

// NewStreamConn wraps conn. Lines longer than maxRecord bytes fail the read
// with a protocol error.
func NewStreamConn(conn net.Conn, maxRecord int64) *StreamConn {
	return &StreamConn{
		conn:      conn,
		r:         bufio.NewReader(conn),
		maxRecord: int(maxRecord),
	}
}

func (c *StreamConn) Send(msg shared.Message) error {
	data, err := shared.Encode(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("%w: write failed: %w", shared.ErrConnection, err)
	}
	return nil
}

func (c *StreamConn) Receive() (shared.Message, error) {
	for {
		record, err := c.readRecord()
		if err != nil {
			return nil, err
		}
		// blank keep-alive lines
		if len(record) == 0 {
			continue
		}
		return shared.Decode(record)
	}
}

func (c *StreamConn) readRecord() ([]byte, error) {
	var record []byte
	for {
		chunk, err := c.r.ReadSlice('\n')
		if len(record)+len(chunk) > c.maxRecord+1 {
			return nil, fmt.Errorf("%w: record exceeds %d bytes", shared.ErrProtocol, c.maxRecord)
		}
		record = append(record, chunk...)

		switch {
		case err == nil:
			return bytes.TrimRight(record, "\r\n"), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if len(record) == 0 {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("%w: truncated record at end of stream", shared.ErrProtocol)
		default:
			return nil, fmt.Errorf("%w: read failed: %w", shared.ErrConnection, err)
		}
	}
}

func (c *StreamConn) Close() error {
	return c.conn.Close()
}

func (c *StreamConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
