// Package client implements the line-oriented Clack client: it connects to a
// server, logs in, and translates each input line into one message.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/Cod-e-Codes/clack/cipher"
	"github.com/Cod-e-Codes/clack/client/config"
	"github.com/Cod-e-Codes/clack/shared"
	"github.com/Cod-e-Codes/clack/transport"
)

// Phase is the lifecycle stage of a client session.
type Phase int

const (
	PhaseConnecting Phase = iota
	PhaseAwaitingLogin
	PhaseActive
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "CONNECTING"
	case PhaseAwaitingLogin:
		return "AWAITING_LOGIN"
	case PhaseActive:
		return "ACTIVE"
	case PhaseClosed:
		return "CLOSED"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// DialFunc opens a connection to a server.
type DialFunc func(ctx context.Context, kind transport.Kind, host string, port int) (transport.Conn, error)

// ErrFileTooLarge reports a FILE whose record would exceed what the server
// accepts. Nothing is sent.
var ErrFileTooLarge = errors.New("file too large")

type Options struct {
	Config   config.Config
	Console  Console
	Renderer *Renderer
	// Dial defaults to transport.Dial.
	Dial DialFunc
	// MaxFileBytes caps uploads. It defaults to the largest file that fits
	// in a transport.DefaultMaxRecordBytes record.
	MaxFileBytes int64
}

// CipherState is the client's copy of the session cipher setting. It
// changes only after the server confirms an OPTION.
type CipherState struct {
	Name    cipher.Kind
	Key     string
	Enabled bool
}

// Session talks to the server in turns: the server speaks first, and every
// message sent gets exactly one reply.
type Session struct {
	cfg      config.Config
	kind     transport.Kind
	addr     string
	console  Console
	renderer *Renderer
	dial     DialFunc
	maxFile  int64

	conn       transport.Conn
	phase      Phase
	username   string
	cipher     CipherState
	pending    *shared.OptionMessage
	expectHelp bool
	loggingOut bool
}

// NewSession validates opts.Config and fills in defaults for the console,
// renderer, dialer and file size limit. It does not connect.
func NewSession(opts Options) (*Session, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	kind, err := transport.ParseKind(opts.Config.Transport)
	if err != nil {
		return nil, err
	}
	if opts.Console == nil {
		opts.Console = NewLineConsole(os.Stdin, os.Stdout)
	}
	if opts.Renderer == nil {
		opts.Renderer = NewRenderer(opts.Config.Theme, opts.Config.Username, false)
	}
	if opts.Dial == nil {
		opts.Dial = transport.Dial
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = transport.MaxPayloadBytes(transport.DefaultMaxRecordBytes)
	}

	return &Session{
		cfg:      opts.Config,
		kind:     kind,
		addr:     net.JoinHostPort(opts.Config.Host, strconv.Itoa(opts.Config.Port)),
		console:  opts.Console,
		renderer: opts.Renderer,
		dial:     opts.Dial,
		maxFile:  opts.MaxFileBytes,
		phase:    PhaseConnecting,
		username: opts.Config.Username,
	}, nil
}

func (s *Session) Phase() Phase        { return s.phase }
func (s *Session) Username() string    { return s.username }
func (s *Session) Cipher() CipherState { return s.cipher }
func (s *Session) prompt() string      { return s.addr + "> " }
func (s *Session) notice(text string)  { s.console.Println(s.renderer.Notice(text)) }

// Run connects and converses until the user logs out. End of console input
// logs out. Errors wrap shared.ErrConnection or shared.ErrProtocol.
func (s *Session) Run(ctx context.Context) error {
	s.notice("Attempting connection to " + s.addr)
	conn, err := s.dial(ctx, s.kind, s.cfg.Host, s.cfg.Port)
	if err != nil {
		s.phase = PhaseClosed
		return err
	}
	s.conn = conn
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	s.phase = PhaseAwaitingLogin
	for {
		reply, err := s.receive(ctx)
		if err != nil {
			s.phase = PhaseClosed
			return err
		}
		s.handleReply(reply)
		if s.phase == PhaseClosed {
			break
		}

		out, err := s.nextMessage()
		if err != nil {
			s.phase = PhaseClosed
			return err
		}
		if err := conn.Send(out); err != nil {
			s.phase = PhaseClosed
			return err
		}
		if out.Type() == shared.TypeLogout {
			s.loggingOut = true
		}
	}

	s.notice("Connection to " + s.addr + " closed, exiting.")
	return nil
}

func (s *Session) receive(ctx context.Context) (shared.Message, error) {
	msg, err := s.conn.Receive()
	if err == nil {
		return msg, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: server closed the connection", shared.ErrConnection)
	}
	return nil, err
}

// handleReply shows a server message and applies what it confirms: a
// successful login or an accepted OPTION.
func (s *Session) handleReply(msg shared.Message) {
	if s.loggingOut {
		if _, ok := msg.(*shared.TextMessage); ok {
			s.console.Println(s.renderer.Message(msg))
		} else {
			s.notice("UNEXPECTED RESPONSE: " + msg.String())
		}
		s.phase = PhaseClosed
		return
	}

	if s.expectHelp {
		s.console.Println(s.renderer.Help(msg))
	} else {
		s.console.Println(s.renderer.Message(msg))
	}
	s.expectHelp = false

	pending := s.pending
	s.pending = nil

	text, ok := msg.(*shared.TextMessage)
	if !ok {
		return
	}
	switch {
	case s.phase == PhaseAwaitingLogin && text.Text() == shared.LoginSuccessText:
		s.phase = PhaseActive
	case pending != nil && text.Text() == shared.OptionEchoText(pending.Option(), pending.Value()):
		s.applyOption(pending)
	}
}

// applyOption mirrors an option the server accepted, using the same
// normalisation the server applies.
func (s *Session) applyOption(m *shared.OptionMessage) {
	value := strings.TrimSpace(m.Value())
	switch m.Option() {
	case shared.OptionCipherKey:
		s.cipher.Key = value
	case shared.OptionCipherName:
		if kind, err := cipher.ParseKind(value); err == nil {
			s.cipher.Name = kind
		}
	case shared.OptionCipherEnable:
		if enabled, ok := shared.ParseSwitch(value); ok {
			s.cipher.Enabled = enabled
		}
	}
}

// nextMessage prompts until a line translates into a message. Local errors
// are shown and nothing is sent.
func (s *Session) nextMessage() (shared.Message, error) {
	for {
		line, err := s.console.ReadLine(s.prompt())
		if errors.Is(err, io.EOF) {
			s.console.Println("")
			return shared.NewLogoutMessage(s.username)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read input: %w", err)
		}

		msg, err := s.translate(line)
		if err != nil {
			s.notice(err.Error())
			continue
		}
		return msg, nil
	}
}

func (s *Session) translate(line string) (shared.Message, error) {
	if s.phase == PhaseAwaitingLogin {
		return s.translateLogin(line)
	}

	cmd, err := ParseCommand(line)
	if err != nil {
		return nil, err
	}

	switch cmd.Type {
	case shared.TypeHelp:
		s.expectHelp = true
		return shared.NewHelpMessage(s.username)
	case shared.TypeLogout:
		return shared.NewLogoutMessage(s.username)
	case shared.TypeListUsers:
		return shared.NewListUsersMessage(s.username)
	case shared.TypeOption:
		msg, err := shared.NewOptionMessage(s.username, cmd.Option, cmd.Value)
		if err != nil {
			return nil, err
		}
		s.pending = msg
		return msg, nil
	case shared.TypeFile:
		return s.fileMessage(cmd)
	}

	text, err := s.encrypt(cmd.Text)
	if err != nil {
		return nil, err
	}
	return shared.NewTextMessage(s.username, text)
}

func (s *Session) translateLogin(line string) (shared.Message, error) {
	if strings.EqualFold(strings.TrimSpace(line), "LOGOUT") {
		return shared.NewLogoutMessage(s.username)
	}
	user, password, err := ParseLogin(line)
	if err != nil {
		return nil, err
	}
	msg, err := shared.NewLoginMessage(user, password)
	if err != nil {
		return nil, err
	}
	s.username = user
	return msg, nil
}

// fileMessage reads a file for upload. Files too large for one record are
// refused here, since the server would drop the connection on them.
func (s *Session) fileMessage(cmd Command) (shared.Message, error) {
	info, err := os.Stat(cmd.Path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", cmd.Path, err)
	}
	if info.Size() > s.maxFile {
		return nil, fmt.Errorf("%w: %s is %d bytes, the limit is %d", ErrFileTooLarge, cmd.Path, info.Size(), s.maxFile)
	}
	data, err := os.ReadFile(cmd.Path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", cmd.Path, err)
	}
	if int64(len(data)) > s.maxFile {
		return nil, fmt.Errorf("%w: %s grew to %d bytes, the limit is %d", ErrFileTooLarge, cmd.Path, len(data), s.maxFile)
	}
	name := cmd.Path
	if cmd.SaveAs != "" {
		name = cmd.SaveAs
	}
	return shared.NewFileMessage(s.username, name, data)
}

// encrypt applies the mirrored cipher when it is enabled and complete. An
// incomplete setting sends the text unchanged and lets the server report it.
func (s *Session) encrypt(text string) (string, error) {
	c := s.cipher
	if !c.Enabled || c.Name == "" || c.Key == "" {
		return text, nil
	}
	ci, err := cipher.New(c.Name, c.Key)
	if err != nil {
		return "", fmt.Errorf("cannot encrypt: %w", err)
	}
	out, err := ci.Encrypt(ci.Prepare(text))
	if err != nil {
		return "", fmt.Errorf("cannot encrypt: %w", err)
	}
	return out, nil
}
