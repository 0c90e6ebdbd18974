package shared

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MessageType is the discriminator carried by every message and every encoded record.
type MessageType string

const (
	TypeText      MessageType = "TEXT"
	TypeFile      MessageType = "FILE"
	TypeLogin     MessageType = "LOGIN"
	TypeLogout    MessageType = "LOGOUT"
	TypeListUsers MessageType = "LISTUSERS"
	TypeHelp      MessageType = "HELP"
	TypeOption    MessageType = "OPTION"
)

// OptionType names the session setting an OptionMessage changes.
type OptionType string

const (
	OptionCipherKey    OptionType = "CIPHER_KEY"
	OptionCipherName   OptionType = "CIPHER_NAME"
	OptionCipherEnable OptionType = "CIPHER_ENABLE"
)

// LoginSuccessText is the reply text the server sends when a login is accepted.
// Clients compare against it to leave the login phase.
const LoginSuccessText = "Login successful"

// OptionEchoText is the reply the server sends after applying an option.
// Clients compare against it before mirroring the change locally.
func OptionEchoText(option OptionType, value string) string {
	return fmt.Sprintf("%s set to '%s'", option, value)
}

// ParseSwitch reads a CIPHER_ENABLE value: true/false, on/off, yes/no or
// 1/0 in any case. ok is false for anything else.
func ParseSwitch(s string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "on", "yes", "1":
		return true, true
	case "false", "off", "no", "0":
		return false, true
	}
	return false, false
}

var (
	ErrUnknownOption   = errors.New("unknown option")
	ErrInvalidFileName = errors.New("invalid file name")
)

// ParseOptionType maps user or wire spellings ("key", "cipher_key", "CIPHER_KEY", ...)
// onto an OptionType.
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "KEY", string(OptionCipherKey):
		return OptionCipherKey, nil
	case "NAME", string(OptionCipherName):
		return OptionCipherName, nil
	case "ENABLE", string(OptionCipherEnable):
		return OptionCipherEnable, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOption, s)
}

// Message is a closed set of variants: only the types in this file implement it.
// Dispatch with a type switch over *TextMessage, *FileMessage, *LoginMessage,
// *LogoutMessage, *ListUsersMessage, *HelpMessage and *OptionMessage.
type Message interface {
	Type() MessageType
	Timestamp() time.Time
	Username() string
	String() string

	isMessage()
}

type header struct {
	msgType   MessageType
	timestamp time.Time
	username  string
}

func newHeader(msgType MessageType, username string) (header, error) {
	if username == "" {
		return header{}, ErrEmptyUsername
	}
	return header{msgType: msgType, timestamp: now(), username: username}, nil
}

func (h header) Type() MessageType    { return h.msgType }
func (h header) Timestamp() time.Time { return h.timestamp }
func (h header) Username() string     { return h.username }
func (header) isMessage()             {}

func (h header) fields(class string) string {
	return fmt.Sprintf("class=%s|timestamp=%s|username=%s",
		class, h.timestamp.Format(time.RFC3339Nano), h.username)
}

// clock hands out timestamps that never go backwards within the process,
// even if the wall clock is stepped.
var clock struct {
	sync.Mutex
	last time.Time
}

func now() time.Time {
	clock.Lock()
	defer clock.Unlock()

	t := time.Now().UTC().Round(0)
	if t.Before(clock.last) {
		t = clock.last
	}
	clock.last = t
	return t
}

// TextMessage carries a line of chat text.
type TextMessage struct {
	header
	text string
}

// NewTextMessage creates a text message from username.
func NewTextMessage(username, text string) (*TextMessage, error) {
	h, err := newHeader(TypeText, username)
	if err != nil {
		return nil, err
	}
	return &TextMessage{header: h, text: text}, nil
}

func (m *TextMessage) Text() string { return m.text }

func (m *TextMessage) String() string {
	return "{" + m.fields("TextMessage") + "|text=" + m.text + "}"
}

// FileMessage carries a file to be staged on the server. Only the base name
// of the file is kept.
type FileMessage struct {
	header
	fileName     string
	fileContents []byte
}

// NewFileMessage creates a file upload. fileName is reduced to its base name
// and contents is copied.
func NewFileMessage(username, fileName string, contents []byte) (*FileMessage, error) {
	name, err := BaseFileName(fileName)
	if err != nil {
		return nil, err
	}
	h, err := newHeader(TypeFile, username)
	if err != nil {
		return nil, err
	}
	return &FileMessage{header: h, fileName: name, fileContents: bytes.Clone(contents)}, nil
}

func (m *FileMessage) FileName() string { return m.fileName }

// FileContents returns a copy of the payload.
func (m *FileMessage) FileContents() []byte { return bytes.Clone(m.fileContents) }

// Size returns the payload length in bytes.
func (m *FileMessage) Size() int { return len(m.fileContents) }

func (m *FileMessage) String() string {
	return fmt.Sprintf("{%s|fileName=%s|fileSize=%d}", m.fields("FileMessage"), m.fileName, len(m.fileContents))
}

// BaseFileName strips any directory part from name, accepting both slash styles,
// and rejects names that cannot identify a file.
func BaseFileName(name string) (string, error) {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	switch name {
	case "", ".", "..":
		return "", fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	}
	return name, nil
}

// LoginMessage asks the server to bind the session to Username().
type LoginMessage struct {
	header
	password string
}

// NewLoginMessage creates a login request for username.
func NewLoginMessage(username, password string) (*LoginMessage, error) {
	h, err := newHeader(TypeLogin, username)
	if err != nil {
		return nil, err
	}
	return &LoginMessage{header: h, password: password}, nil
}

func (m *LoginMessage) Password() string { return m.password }

func (m *LoginMessage) String() string {
	return "{" + m.fields("LoginMessage") + "|password=" + strings.Repeat("*", len(m.password)) + "}"
}

// LogoutMessage ends the session.
type LogoutMessage struct {
	header
}

// NewLogoutMessage creates a logout request.
func NewLogoutMessage(username string) (*LogoutMessage, error) {
	h, err := newHeader(TypeLogout, username)
	if err != nil {
		return nil, err
	}
	return &LogoutMessage{header: h}, nil
}

func (m *LogoutMessage) String() string { return "{" + m.fields("LogoutMessage") + "}" }

// ListUsersMessage asks for the logged-in users.
type ListUsersMessage struct {
	header
}

// NewListUsersMessage creates a request for the logged-in users.
func NewListUsersMessage(username string) (*ListUsersMessage, error) {
	h, err := newHeader(TypeListUsers, username)
	if err != nil {
		return nil, err
	}
	return &ListUsersMessage{header: h}, nil
}

func (m *ListUsersMessage) String() string { return "{" + m.fields("ListUsersMessage") + "}" }

// HelpMessage asks for the command summary.
type HelpMessage struct {
	header
}

// NewHelpMessage creates a request for the command summary.
func NewHelpMessage(username string) (*HelpMessage, error) {
	h, err := newHeader(TypeHelp, username)
	if err != nil {
		return nil, err
	}
	return &HelpMessage{header: h}, nil
}

func (m *HelpMessage) String() string { return "{" + m.fields("HelpMessage") + "}" }

// OptionMessage changes one cipher setting of the session.
type OptionMessage struct {
	header
	option OptionType
	value  string
}

// NewOptionMessage creates an option change. option must be one of the
// OptionCipher constants.
func NewOptionMessage(username string, option OptionType, value string) (*OptionMessage, error) {
	switch option {
	case OptionCipherKey, OptionCipherName, OptionCipherEnable:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOption, option)
	}
	h, err := newHeader(TypeOption, username)
	if err != nil {
		return nil, err
	}
	return &OptionMessage{header: h, option: option, value: value}, nil
}

func (m *OptionMessage) Option() OptionType { return m.option }
func (m *OptionMessage) Value() string      { return m.value }

func (m *OptionMessage) String() string {
	return fmt.Sprintf("{%s|option=%s|value=%s}", m.fields("OptionMessage"), m.option, m.value)
}
