package client

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Cod-e-Codes/clack/cipher"
	"github.com/Cod-e-Codes/clack/client/config"
	"github.com/Cod-e-Codes/clack/server"
	"github.com/Cod-e-Codes/clack/shared"
	"github.com/Cod-e-Codes/clack/transport"
)

// scriptConsole feeds fixed input lines and records everything shown.
type scriptConsole struct {
	lines   []string
	prompts []string
	out     []string
}

func (c *scriptConsole) ReadLine(prompt string) (string, error) {
	c.prompts = append(c.prompts, prompt)
	if len(c.lines) == 0 {
		return "", io.EOF
	}
	line := c.lines[0]
	c.lines = c.lines[1:]
	return line, nil
}

func (c *scriptConsole) Println(s string) {
	c.out = append(c.out, s)
}

// expectOutput checks that want appears in out in order.
func expectOutput(t *testing.T, out, want []string) {
	t.Helper()
	i := 0
	for _, line := range out {
		if i < len(want) && line == want[i] {
			i++
		}
	}
	if i < len(want) {
		t.Errorf("Missing output %q; got:\n%s", want[i], strings.Join(out, "\n"))
	}
}

// pipeDialer connects the client to the returned peer end of a net.Pipe.
func pipeDialer() (DialFunc, *transport.StreamConn) {
	a, b := net.Pipe()
	peer := transport.NewStreamConn(b, transport.DefaultMaxRecordBytes)
	dial := func(ctx context.Context, kind transport.Kind, host string, port int) (transport.Conn, error) {
		return transport.NewStreamConn(a, transport.DefaultMaxRecordBytes), nil
	}
	return dial, peer
}

// runAgainstServer runs a client session against a real server session.
func runAgainstServer(t *testing.T, console *scriptConsole, opts server.SessionOptions) (*Session, error) {
	t.Helper()
	dial, peer := pipeDialer()

	srv := server.NewSession(peer, opts)
	serverDone := make(chan error, 1)
	go func() { serverDone <- srv.Run(context.Background()) }()

	s, err := NewSession(Options{
		Config:   config.DefaultConfig(),
		Console:  console,
		Renderer: NewRenderer("plain", "", false),
		Dial:     dial,
	})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	runErr := s.Run(context.Background())
	peer.Close()
	select {
	case <-serverDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Server session did not finish")
	}
	return s, runErr
}

func TestSession_Conversation(t *testing.T) {
	console := &scriptConsole{lines: []string{
		"alice wrong",
		"just-one-token",
		"LOGIN alice ecila",
		"OPTION name playfair",
		"OPTION key KEY",
		"OPTION enable on",
		"hello",
		"listusers",
		"logout",
	}}

	s, err := runAgainstServer(t, console, server.SessionOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	expectOutput(t, console.out, []string{
		"Attempting connection to localhost:7777",
		server.Greeting,
		"Login failed: invalid username or password. Try again.",
		"usage: <username> <password>",
		shared.LoginSuccessText,
		"CIPHER_NAME set to 'playfair'",
		"CIPHER_KEY set to 'KEY'",
		"CIPHER_ENABLE set to 'on'",
		"TEXT (decrypted): 'HELXLO'",
		"Logged-in users: alice",
		server.Goodbye,
		"Connection to localhost:7777 closed, exiting.",
	})

	if s.Phase() != PhaseClosed {
		t.Errorf("Expected CLOSED, got %s", s.Phase())
	}
	if s.Username() != "alice" {
		t.Errorf("Expected username alice, got %s", s.Username())
	}
	want := CipherState{Name: cipher.KindPlayfair, Key: "KEY", Enabled: true}
	if s.Cipher() != want {
		t.Errorf("Expected mirror %+v, got %+v", want, s.Cipher())
	}
	for _, p := range console.prompts {
		if p != "localhost:7777> " {
			t.Errorf("Unexpected prompt %q", p)
		}
	}
}

func TestSession_RejectedOptionNotMirrored(t *testing.T) {
	console := &scriptConsole{lines: []string{
		"bob bob bob",
		"bob bob",
		"OPTION name enigma",
		"OPTION colour red",
		"OPTION enable",
		"OPTION enable maybe",
		"OPTION name vigenere",
		"logout",
	}}

	s, err := runAgainstServer(t, console, server.SessionOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := s.Cipher(); got != (CipherState{Name: cipher.KindVigenere}) {
		t.Errorf("Expected only the accepted name mirrored, got %+v", got)
	}
	expectOutput(t, console.out, []string{
		shared.LoginSuccessText,
		"Unknown cipher 'enigma' (want caesar, vigenere or playfair)",
		"OPTION ENABLE needs true or false, got 'maybe'",
		"CIPHER_NAME set to 'vigenere'",
		server.Goodbye,
	})

	var usage int
	for _, line := range console.out {
		if strings.HasPrefix(line, "usage:") {
			usage++
		}
	}
	// "bob bob bob", "OPTION colour red" and "OPTION enable" never reach the
	// server.
	if usage != 3 {
		t.Errorf("Expected 3 local usage errors, got %d:\n%s", usage, strings.Join(console.out, "\n"))
	}
}

func TestSession_File(t *testing.T) {
	store, err := server.NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirStore failed: %v", err)
	}
	src := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(src, []byte("five!"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	console := &scriptConsole{lines: []string{
		"carol lorac",
		"FILE " + filepath.Join(t.TempDir(), "missing.txt"),
		"FILE " + src + " renamed.txt",
		"FILE",
	}}

	if _, err := runAgainstServer(t, console, server.SessionOptions{Store: store, MaxFileBytes: 1024}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	_, data, err := store.Get(context.Background(), "renamed.txt")
	if err != nil || string(data) != "five!" {
		t.Errorf("Expected renamed.txt staged, got %q %v", data, err)
	}

	var cannotRead, stored bool
	for _, line := range console.out {
		cannotRead = cannotRead || strings.HasPrefix(line, "cannot read ")
		stored = stored || strings.HasPrefix(line, "Stored 'renamed.txt' (5 bytes, blake2b ")
	}
	if !cannotRead {
		t.Error("Expected a local error for the missing file")
	}
	if !stored {
		t.Errorf("Expected the stored reply, got:\n%s", strings.Join(console.out, "\n"))
	}
}

func TestSession_FileOverRecordLimit(t *testing.T) {
	store, err := server.NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirStore failed: %v", err)
	}
	big := filepath.Join(t.TempDir(), "big.bin")
	if err := os.WriteFile(big, nil, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := os.Truncate(big, 5<<20); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}

	console := &scriptConsole{lines: []string{
		"frank knarf",
		"FILE " + big,
		"LISTUSERS",
		"logout",
	}}

	s, err := runAgainstServer(t, console, server.SessionOptions{Store: store, MaxFileBytes: 1 << 20})
	if err != nil {
		t.Fatalf("Expected the session to survive an oversized file, got %v", err)
	}
	expectOutput(t, console.out, []string{shared.LoginSuccessText, "Logged-in users: frank", server.Goodbye})

	var refused bool
	for _, line := range console.out {
		refused = refused || strings.HasPrefix(line, ErrFileTooLarge.Error()+": ")
	}
	if !refused {
		t.Errorf("Expected a local file too large error, got:\n%s", strings.Join(console.out, "\n"))
	}
	if _, _, err := store.Get(context.Background(), "big.bin"); !errors.Is(err, server.ErrFileNotFound) {
		t.Errorf("Expected nothing staged, got %v", err)
	}
	if s.Phase() != PhaseClosed {
		t.Errorf("Expected CLOSED, got %s", s.Phase())
	}
}

func TestSession_FileLimitOption(t *testing.T) {
	src := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(src, []byte("twelve bytes"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	s, err := NewSession(Options{Config: config.DefaultConfig(), Console: &scriptConsole{}, MaxFileBytes: 8})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	if _, err := s.fileMessage(Command{Type: shared.TypeFile, Path: src}); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("Expected ErrFileTooLarge, got %v", err)
	}
}

func TestSession_EOFLogsOut(t *testing.T) {
	console := &scriptConsole{lines: []string{"dave evad"}}

	s, err := runAgainstServer(t, console, server.SessionOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	expectOutput(t, console.out, []string{shared.LoginSuccessText, server.Goodbye})
	if s.Phase() != PhaseClosed {
		t.Errorf("Expected CLOSED, got %s", s.Phase())
	}
}

func TestSession_LogoutBeforeLogin(t *testing.T) {
	console := &scriptConsole{lines: []string{"Logout"}}

	if _, err := runAgainstServer(t, console, server.SessionOptions{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	expectOutput(t, console.out, []string{server.Greeting, server.Goodbye})
}

func TestSession_CipherErrorStaysLocal(t *testing.T) {
	console := &scriptConsole{lines: []string{
		"erin nire",
		"OPTION name vigenere",
		"OPTION key K3Y",
		"OPTION enable yes",
		"hello",
		"logout",
	}}

	s, err := runAgainstServer(t, console, server.SessionOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !s.Cipher().Enabled || s.Cipher().Key != "K3Y" {
		t.Fatalf("Expected the mirror updated, got %+v", s.Cipher())
	}

	var local bool
	for _, line := range console.out {
		if strings.HasPrefix(line, "cannot encrypt:") {
			local = true
		}
		if strings.HasPrefix(line, "TEXT") {
			t.Errorf("Text with a bad key must not be sent, got %q", line)
		}
	}
	if !local {
		t.Errorf("Expected a local encryption error, got:\n%s", strings.Join(console.out, "\n"))
	}
}

func TestSession_ServerHangsUp(t *testing.T) {
	dial, peer := pipeDialer()
	go func() {
		greeting, _ := shared.NewTextMessage("server", "hi")
		_ = peer.Send(greeting)
		peer.Close()
	}()

	console := &scriptConsole{lines: []string{"frank knarf"}}
	s, err := NewSession(Options{Config: config.DefaultConfig(), Console: console, Dial: dial})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	err = s.Run(context.Background())
	if !errors.Is(err, shared.ErrConnection) {
		t.Errorf("Expected ErrConnection, got %v", err)
	}
	if s.Phase() != PhaseClosed {
		t.Errorf("Expected CLOSED, got %s", s.Phase())
	}
}

func TestSession_UnexpectedMessageType(t *testing.T) {
	dial, peer := pipeDialer()
	serverDone := make(chan error, 1)
	go func() {
		defer peer.Close()
		help, _ := shared.NewHelpMessage("server")
		if err := peer.Send(help); err != nil {
			serverDone <- err
			return
		}
		msg, err := peer.Receive()
		if err != nil {
			serverDone <- err
			return
		}
		if msg.Type() != shared.TypeLogout {
			serverDone <- errors.New("expected LOGOUT, got " + string(msg.Type()))
			return
		}
		bye, _ := shared.NewTextMessage("server", "bye")
		serverDone <- peer.Send(bye)
	}()

	console := &scriptConsole{}
	s, err := NewSession(Options{Config: config.DefaultConfig(), Console: console, Dial: dial})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if err := <-serverDone; err != nil {
		t.Fatalf("Fake server failed: %v", err)
	}

	var unexpected bool
	for _, line := range console.out {
		if strings.HasPrefix(line, "Unexpected message type: {class=HelpMessage") {
			unexpected = true
		}
	}
	if !unexpected {
		t.Errorf("Expected an unexpected-type notice, got:\n%s", strings.Join(console.out, "\n"))
	}
	expectOutput(t, console.out, []string{"bye"})
}

func TestSession_DialFailure(t *testing.T) {
	failing := func(ctx context.Context, kind transport.Kind, host string, port int) (transport.Conn, error) {
		return nil, shared.ErrConnection
	}
	s, err := NewSession(Options{Config: config.DefaultConfig(), Console: &scriptConsole{}, Dial: failing})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	if err := s.Run(context.Background()); !errors.Is(err, shared.ErrConnection) {
		t.Errorf("Expected ErrConnection, got %v", err)
	}
	if s.Phase() != PhaseClosed {
		t.Errorf("Expected CLOSED, got %s", s.Phase())
	}
}

func TestNewSession_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Port = 0
	if _, err := NewSession(Options{Config: cfg}); !errors.Is(err, shared.ErrConfiguration) {
		t.Errorf("Expected ErrConfiguration, got %v", err)
	}
}
