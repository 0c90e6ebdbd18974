package transport

import (
	"errors"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/Cod-e-Codes/clack/shared"
)

func newPipe(t *testing.T, maxRecord int64) (*StreamConn, *StreamConn) {
	t.Helper()
	a, b := net.Pipe()
	ca, cb := NewStreamConn(a, maxRecord), NewStreamConn(b, maxRecord)
	t.Cleanup(func() {
		ca.Close()
		cb.Close()
	})
	return ca, cb
}

func TestStreamConn_RoundTrip(t *testing.T) {
	client, server := newPipe(t, DefaultMaxRecordBytes)

	text, _ := shared.NewTextMessage("alice", "line one\nline two")
	file, _ := shared.NewFileMessage("alice", "notes.txt", []byte("a\nb\x00c"))
	logout, _ := shared.NewLogoutMessage("alice")
	sent := []shared.Message{text, file, logout}

	errCh := make(chan error, 1)
	go func() {
		for _, m := range sent {
			if err := client.Send(m); err != nil {
				errCh <- err
				return
			}
		}
		errCh <- nil
	}()

	for i, want := range sent {
		got, err := server.Receive()
		if err != nil {
			t.Fatalf("Receive %d failed: %v", i, err)
		}
		if got.Type() != want.Type() || !got.Timestamp().Equal(want.Timestamp()) {
			t.Errorf("Message %d: expected %s, got %s", i, want, got)
		}
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	got, _ := shared.Decode(mustEncode(t, text))
	if got.(*shared.TextMessage).Text() != "line one\nline two" {
		t.Error("Expected embedded newline to survive framing")
	}
}

func TestStreamConn_CleanEOF(t *testing.T) {
	a, b := net.Pipe()
	conn := NewStreamConn(b, DefaultMaxRecordBytes)
	defer conn.Close()

	msg, _ := shared.NewHelpMessage("bob")
	data := append(mustEncode(t, msg), '\n')
	go func() {
		a.Write(data)
		a.Close()
	}()

	if _, err := conn.Receive(); err != nil {
		t.Fatalf("Expected first record, got %v", err)
	}
	if _, err := conn.Receive(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF at record boundary, got %v", err)
	}
}

func TestStreamConn_TruncatedRecord(t *testing.T) {
	a, b := net.Pipe()
	conn := NewStreamConn(b, DefaultMaxRecordBytes)
	defer conn.Close()

	msg, _ := shared.NewHelpMessage("bob")
	data := mustEncode(t, msg)
	go func() {
		a.Write(data[:len(data)/2])
		a.Close()
	}()

	if _, err := conn.Receive(); !errors.Is(err, shared.ErrProtocol) {
		t.Errorf("Expected ErrProtocol for partial record, got %v", err)
	}
}

func TestStreamConn_OversizedRecord(t *testing.T) {
	a, b := net.Pipe()
	conn := NewStreamConn(b, 64)
	defer conn.Close()
	defer a.Close()

	go a.Write([]byte(strings.Repeat("x", 10000) + "\n"))

	if _, err := conn.Receive(); !errors.Is(err, shared.ErrProtocol) {
		t.Errorf("Expected ErrProtocol for oversized record, got %v", err)
	}
}

func TestStreamConn_MalformedRecord(t *testing.T) {
	a, b := net.Pipe()
	conn := NewStreamConn(b, DefaultMaxRecordBytes)
	defer conn.Close()
	defer a.Close()

	go a.Write([]byte("\n\r\nnot json\n"))

	if _, err := conn.Receive(); !errors.Is(err, shared.ErrProtocol) {
		t.Errorf("Expected ErrProtocol, got %v", err)
	}
}

func TestStreamConn_ReceiveAfterClose(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	conn := NewStreamConn(b, DefaultMaxRecordBytes)
	conn.Close()

	_, err := conn.Receive()
	if !errors.Is(err, shared.ErrConnection) {
		t.Errorf("Expected ErrConnection after close, got %v", err)
	}
}

func mustEncode(t *testing.T, msg shared.Message) []byte {
	t.Helper()
	data, err := shared.Encode(msg)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return data
}
