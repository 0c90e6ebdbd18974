package shared

import (
	"encoding/json"
	"fmt"
	"time"
)

// envelope is the self-describing wire record. Type is the discriminator and
// Data holds the variant payload, absent for variants without one.
type envelope struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Username  string          `json:"username"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type textPayload struct {
	Text string `json:"text"`
}

type filePayload struct {
	FileName     string `json:"file_name"`
	FileContents []byte `json:"file_contents"` // base64 in JSON
}

type loginPayload struct {
	Password string `json:"password"`
}

type optionPayload struct {
	Option OptionType `json:"option"`
	Value  string     `json:"value"`
}

// Encode serializes msg into one wire record.
func Encode(msg Message) ([]byte, error) {
	var payload interface{}
	switch m := msg.(type) {
	case *TextMessage:
		payload = textPayload{Text: m.text}
	case *FileMessage:
		payload = filePayload{FileName: m.fileName, FileContents: m.fileContents}
	case *LoginMessage:
		payload = loginPayload{Password: m.password}
	case *OptionMessage:
		payload = optionPayload{Option: m.option, Value: m.value}
	case *LogoutMessage, *ListUsersMessage, *HelpMessage:
	default:
		return nil, fmt.Errorf("%w: cannot encode %T", ErrProtocol, msg)
	}

	env := envelope{
		Type:      msg.Type(),
		Timestamp: msg.Timestamp(),
		Username:  msg.Username(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to marshal %s payload: %w", ErrProtocol, env.Type, err)
		}
		env.Data = data
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal record: %w", ErrProtocol, err)
	}
	return data, nil
}

// Decode parses one wire record. Every failure, including truncated input and
// an unknown discriminator, wraps ErrProtocol.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	if env.Username == "" {
		return nil, fmt.Errorf("%w: record has no username", ErrProtocol)
	}
	if env.Timestamp.IsZero() {
		return nil, fmt.Errorf("%w: record has no timestamp", ErrProtocol)
	}

	h := header{msgType: env.Type, timestamp: env.Timestamp, username: env.Username}

	switch env.Type {
	case TypeText:
		var p textPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return &TextMessage{header: h, text: p.Text}, nil
	case TypeFile:
		var p filePayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		name, err := BaseFileName(p.FileName)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
		}
		return &FileMessage{header: h, fileName: name, fileContents: p.FileContents}, nil
	case TypeLogin:
		var p loginPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return &LoginMessage{header: h, password: p.Password}, nil
	case TypeOption:
		var p optionPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		switch p.Option {
		case OptionCipherKey, OptionCipherName, OptionCipherEnable:
		default:
			return nil, fmt.Errorf("%w: %w: %q", ErrProtocol, ErrUnknownOption, p.Option)
		}
		return &OptionMessage{header: h, option: p.Option, value: p.Value}, nil
	case TypeLogout:
		return &LogoutMessage{header: h}, nil
	case TypeListUsers:
		return &ListUsersMessage{header: h}, nil
	case TypeHelp:
		return &HelpMessage{header: h}, nil
	}
	return nil, fmt.Errorf("%w: unknown message type %q", ErrProtocol, env.Type)
}

func decodePayload(env envelope, v interface{}) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: %s record has no payload", ErrProtocol, env.Type)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: bad %s payload: %w", ErrProtocol, env.Type, err)
	}
	return nil
}
