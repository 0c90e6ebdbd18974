package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Cod-e-Codes/clack/cipher"
	"github.com/Cod-e-Codes/clack/shared"
	"github.com/Cod-e-Codes/clack/transport"
	"github.com/google/uuid"
)

// Fixed server replies.
const (
	Greeting = "[Server listening. 'Logout' (case insensitive) closes connection.]"
	Goodbye  = "[Closing connection, good-bye.]"

	HelpText = "Commands (case insensitive):\n" +
		"\n" +
		"    LOGIN <username> <password>    log in; the password is the username reversed\n" +
		"    HELP                           show this summary\n" +
		"    LISTUSERS                      list logged-in users\n" +
		"    OPTION KEY <key>               set the cipher key\n" +
		"    OPTION NAME <cipher>           caesar, vigenere or playfair\n" +
		"    OPTION ENABLE <true|false>     turn text encryption on or off\n" +
		"    FILE <path> [saveAs]           upload a file to the server\n" +
		"    LOGOUT                         close the connection\n" +
		"\n" +
		"Any other input is sent as text."
)

var (
	ErrNotLoggedIn          = errors.New("not logged in")
	ErrAlreadyLoggedIn      = errors.New("already logged in")
	ErrFileTooLarge         = errors.New("file too large")
	ErrInvalidOption        = errors.New("invalid option value")
	ErrCipherNotConfigured  = errors.New("cipher not configured")
	ErrStagingNotAvailable  = errors.New("file staging not available")
	errMessageAfterShutdown = errors.New("message received after session closed")
)

// Phase is the lifecycle stage of a server session.
type Phase int

const (
	PhaseAwaitingLogin Phase = iota
	PhaseActive
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingLogin:
		return "AWAITING_LOGIN"
	case PhaseActive:
		return "ACTIVE"
	case PhaseClosed:
		return "CLOSED"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Disposition tells the dispatch loop how to continue after a message.
type Disposition int

const (
	// DispositionOK: send the reply and continue.
	DispositionOK Disposition = iota
	// DispositionRecoverable: send the error reply and continue.
	DispositionRecoverable
	// DispositionFatal: tear the session down without replying.
	DispositionFatal
)

func (d Disposition) String() string {
	switch d {
	case DispositionOK:
		return "ok"
	case DispositionRecoverable:
		return "recoverable"
	case DispositionFatal:
		return "fatal"
	}
	return fmt.Sprintf("Disposition(%d)", int(d))
}

// Result is the outcome of handling one message.
type Result struct {
	Reply       shared.Message
	Disposition Disposition
	Err         error
}

// CipherConfig is the per-session cipher setting. Empty Key or Name means
// unset.
type CipherConfig struct {
	Key     string
	Name    cipher.Kind
	Enabled bool
}

func (c CipherConfig) build() (cipher.Cipher, error) {
	switch {
	case c.Name == "":
		return nil, fmt.Errorf("%w: no cipher name set (OPTION NAME <cipher>)", ErrCipherNotConfigured)
	case c.Key == "":
		return nil, fmt.Errorf("%w: no cipher key set (OPTION KEY <key>)", ErrCipherNotConfigured)
	}
	return cipher.New(c.Name, c.Key)
}

// SessionOptions holds what a session shares with the rest of the server.
type SessionOptions struct {
	ServerName   string
	Directory    *Directory
	Store        FileStore
	MaxFileBytes int64
}

// Session is one client conversation. Its state is owned by the goroutine
// running Run; only the Directory and FileStore are shared.
type Session struct {
	id     string
	conn   transport.Conn
	opts   SessionOptions
	logger *Logger

	phase      Phase
	user       string
	registered bool
	cipher     CipherConfig
}

// NewSession creates a session on conn in the AWAITING_LOGIN phase. Run
// starts it.
func NewSession(conn transport.Conn, opts SessionOptions) *Session {
	if opts.ServerName == "" {
		opts.ServerName = "server"
	}
	if opts.Directory == nil {
		opts.Directory = NewDirectory()
	}
	id := uuid.NewString()
	return &Session{
		id:     id,
		conn:   conn,
		opts:   opts,
		logger: SessionLogger.WithSession(id),
		phase:  PhaseAwaitingLogin,
	}
}

func (s *Session) ID() string           { return s.id }
func (s *Session) Phase() Phase         { return s.phase }
func (s *Session) User() string         { return s.user }
func (s *Session) Cipher() CipherConfig { return s.cipher }

// Run greets the client and serves messages until logout, peer disconnect,
// a fatal error or ctx cancellation. The connection is closed on return.
func (s *Session) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()
	defer s.close()

	s.logger.Info("Session started", map[string]interface{}{"remote": s.conn.RemoteAddr()})

	if err := s.send(s.text(Greeting)); err != nil {
		return err
	}

	for s.phase != PhaseClosed {
		msg, err := s.conn.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Info("Peer disconnected")
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("Receive failed", err)
			return err
		}
		s.logger.Debug("<= " + msg.String())

		res := s.Handle(ctx, msg)
		switch res.Disposition {
		case DispositionFatal:
			s.logger.Error("Session failed", res.Err)
			return res.Err
		case DispositionRecoverable:
			s.logger.Warn("Request rejected", map[string]interface{}{
				"type":  string(msg.Type()),
				"error": res.Err.Error(),
			})
		}

		if res.Reply != nil {
			if err := s.send(res.Reply); err != nil {
				return err
			}
		}
	}

	s.logger.Info("Session closed")
	return nil
}

func (s *Session) send(msg shared.Message) error {
	if err := s.conn.Send(msg); err != nil {
		s.logger.Error("Send failed", err)
		return err
	}
	s.logger.Debug("=> " + msg.String())
	return nil
}

func (s *Session) close() {
	if s.registered {
		s.opts.Directory.Remove(s.user)
		s.registered = false
	}
	s.phase = PhaseClosed
	s.conn.Close()
}

// Handle dispatches one message according to the current phase. It never
// touches the connection; Run sends the reply.
func (s *Session) Handle(ctx context.Context, msg shared.Message) Result {
	switch s.phase {
	case PhaseAwaitingLogin:
		return s.handleAwaitingLogin(msg)
	case PhaseActive:
		return s.handleActive(ctx, msg)
	}
	return Result{
		Disposition: DispositionFatal,
		Err:         fmt.Errorf("%w: %w: %s", shared.ErrProtocol, errMessageAfterShutdown, msg.Type()),
	}
}

func (s *Session) handleAwaitingLogin(msg shared.Message) Result {
	switch m := msg.(type) {
	case *shared.LoginMessage:
		if err := authenticate(m.Username(), m.Password()); err != nil {
			return s.recoverable("Login failed: invalid username or password. Try again.", err)
		}
		s.user = m.Username()
		s.opts.Directory.Add(s.user)
		s.registered = true
		s.phase = PhaseActive
		s.logger = s.logger.WithUser(s.user)
		s.logger.Info("User logged in")
		return s.ok(shared.LoginSuccessText)
	case *shared.LogoutMessage:
		s.phase = PhaseClosed
		return s.ok(Goodbye)
	}
	return s.recoverable("Please log in first: <username> <password>",
		fmt.Errorf("%w: %s before login", ErrNotLoggedIn, msg.Type()))
}

func (s *Session) handleActive(ctx context.Context, msg shared.Message) Result {
	switch m := msg.(type) {
	case *shared.TextMessage:
		return s.handleText(m)
	case *shared.FileMessage:
		return s.handleFile(ctx, m)
	case *shared.HelpMessage:
		return s.ok(HelpText)
	case *shared.ListUsersMessage:
		return s.ok("Logged-in users: " + strings.Join(s.opts.Directory.List(), ", "))
	case *shared.OptionMessage:
		return s.handleOption(m)
	case *shared.LoginMessage:
		return s.recoverable("Already logged in as "+s.user,
			fmt.Errorf("%w as %s", ErrAlreadyLoggedIn, s.user))
	case *shared.LogoutMessage:
		s.phase = PhaseClosed
		s.logger.Info("User logged out")
		return s.ok(Goodbye)
	}
	return Result{
		Disposition: DispositionFatal,
		Err:         fmt.Errorf("%w: unhandled message %T", shared.ErrProtocol, msg),
	}
}

func (s *Session) handleText(m *shared.TextMessage) Result {
	if !s.cipher.Enabled {
		return s.ok(fmt.Sprintf("TEXT: '%s'", m.Text()))
	}

	c, err := s.cipher.build()
	if err != nil {
		return s.recoverable("Cannot decrypt text: "+err.Error(), err)
	}
	cleartext, err := c.Decrypt(m.Text())
	if err != nil {
		return s.recoverable("Cannot decrypt text: "+err.Error(), err)
	}
	return s.ok(fmt.Sprintf("TEXT (decrypted): '%s'", cleartext))
}

func (s *Session) handleFile(ctx context.Context, m *shared.FileMessage) Result {
	if limit := s.opts.MaxFileBytes; limit > 0 && int64(m.Size()) > limit {
		return s.recoverable(
			fmt.Sprintf("File '%s' rejected: %d bytes exceeds the %d byte limit", m.FileName(), m.Size(), limit),
			fmt.Errorf("%w: %d > %d", ErrFileTooLarge, m.Size(), limit))
	}
	if s.opts.Store == nil {
		return s.recoverable(fmt.Sprintf("File '%s' rejected: staging is not available", m.FileName()),
			ErrStagingNotAvailable)
	}

	stored, err := s.opts.Store.Put(ctx, StagedFile{
		Name:      m.FileName(),
		Owner:     s.user,
		SessionID: s.id,
		Contents:  m.FileContents(),
	})
	if err != nil {
		return s.recoverable(fmt.Sprintf("Failed to store '%s'", m.FileName()), err)
	}

	s.logger.Info("File staged", map[string]interface{}{
		"file":   stored.Name,
		"size":   stored.Size,
		"digest": stored.Digest,
	})
	return s.ok(fmt.Sprintf("Stored '%s' (%d bytes, blake2b %s)", stored.Name, stored.Size, shared.ShortDigest(stored.Digest)))
}

// handleOption changes exactly the named field, or nothing if the value is
// invalid.
func (s *Session) handleOption(m *shared.OptionMessage) Result {
	value := strings.TrimSpace(m.Value())

	switch m.Option() {
	case shared.OptionCipherKey:
		if value == "" {
			return s.recoverable("OPTION KEY needs a non-empty key",
				fmt.Errorf("%w: empty cipher key", ErrInvalidOption))
		}
		s.cipher.Key = value
	case shared.OptionCipherName:
		kind, err := cipher.ParseKind(value)
		if err != nil {
			return s.recoverable(fmt.Sprintf("Unknown cipher '%s' (want caesar, vigenere or playfair)", m.Value()),
				fmt.Errorf("%w: %w", ErrInvalidOption, err))
		}
		s.cipher.Name = kind
	case shared.OptionCipherEnable:
		enabled, err := ParseBool(value)
		if err != nil {
			return s.recoverable(fmt.Sprintf("OPTION ENABLE needs true or false, got '%s'", m.Value()), err)
		}
		s.cipher.Enabled = enabled
	default:
		return s.recoverable(fmt.Sprintf("Unknown option '%s'", m.Option()),
			fmt.Errorf("%w: %w", ErrInvalidOption, shared.ErrUnknownOption))
	}

	return s.ok(shared.OptionEchoText(m.Option(), m.Value()))
}

// ParseBool accepts the spellings of shared.ParseSwitch.
func ParseBool(s string) (bool, error) {
	v, ok := shared.ParseSwitch(s)
	if !ok {
		return false, fmt.Errorf("%w: %q is not a boolean", ErrInvalidOption, s)
	}
	return v, nil
}

// authenticate applies the toy rule: the password is the username spelled
// backwards.
func authenticate(username, password string) error {
	if password != reverse(username) {
		return fmt.Errorf("%w: bad password for %q", shared.ErrAuthentication, username)
	}
	return nil
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

func (s *Session) text(body string) *shared.TextMessage {
	// ServerName is never empty, so construction cannot fail.
	msg, _ := shared.NewTextMessage(s.opts.ServerName, body)
	return msg
}

func (s *Session) ok(body string) Result {
	return Result{Reply: s.text(body), Disposition: DispositionOK}
}

func (s *Session) recoverable(body string, err error) Result {
	return Result{Reply: s.text(body), Disposition: DispositionRecoverable, Err: err}
}
