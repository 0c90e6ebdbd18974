package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/Cod-e-Codes/clack/shared"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		input    string
		expected Kind
		wantErr  bool
	}{
		{"ws", WebSocket, false},
		{"WebSocket", WebSocket, false},
		{" tcp ", TCP, false},
		{"udp", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseKind(tt.input)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrConfiguration) {
					t.Errorf("Expected ErrConfiguration, got %v", err)
				}
				return
			}
			if err != nil || got != tt.expected {
				t.Errorf("Expected %q, got %q (%v)", tt.expected, got, err)
			}
		})
	}
}

func TestRecordLimit(t *testing.T) {
	if got := RecordLimit(1024); got != DefaultMaxRecordBytes {
		t.Errorf("Expected default limit for small files, got %d", got)
	}
	maxFile := int64(30 << 20)
	if got := RecordLimit(maxFile); got < maxFile*4/3 {
		t.Errorf("Limit %d cannot carry a base64 payload of %d bytes", got, maxFile)
	}
}

func TestMaxPayloadBytes(t *testing.T) {
	for _, limit := range []int64{DefaultMaxRecordBytes, RecordLimit(30 << 20)} {
		n := MaxPayloadBytes(limit)
		if n <= 0 {
			t.Fatalf("Expected a positive payload for limit %d, got %d", limit, n)
		}
		if got := RecordLimit(n); got > limit {
			t.Errorf("Payload %d needs a %d byte record, over the %d limit", n, got, limit)
		}
	}
	if got := MaxPayloadBytes(1024); got != 0 {
		t.Errorf("Expected 0 for a limit below the envelope allowance, got %d", got)
	}
}

func TestDial_TCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer ln.Close()

	received := make(chan shared.Message, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		conn := NewStreamConn(c, DefaultMaxRecordBytes)
		defer conn.Close()
		msg, err := conn.Receive()
		if err == nil {
			received <- msg
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	conn, err := Dial(context.Background(), TCP, "127.0.0.1", addr.Port)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	login, _ := shared.NewLoginMessage("dave", "evad")
	if err := conn.Send(login); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	select {
	case msg := <-received:
		if l, ok := msg.(*shared.LoginMessage); !ok || l.Password() != "evad" {
			t.Errorf("Expected login with password evad, got %s", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for record")
	}
}

func TestDial_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, kind := range []Kind{TCP, WebSocket} {
		if _, err := Dial(ctx, kind, "127.0.0.1", port); !errors.Is(err, shared.ErrConnection) {
			t.Errorf("%s: expected ErrConnection, got %v", kind, err)
		}
	}

	if _, err := Dial(ctx, "carrier-pigeon", "127.0.0.1", port); !errors.Is(err, shared.ErrConfiguration) {
		t.Errorf("Expected ErrConfiguration for unknown transport, got %v", err)
	}
}
