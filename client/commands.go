package client

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Cod-e-Codes/clack/shared"
)

// ErrUsage reports input that could not be turned into a message. Nothing
// is sent; the user is prompted again.
var ErrUsage = errors.New("usage")

// Command is one parsed line of input in the ACTIVE phase.
type Command struct {
	Type shared.MessageType

	// OPTION
	Option shared.OptionType
	Value  string

	// FILE
	Path   string
	SaveAs string

	// TEXT: the raw line
	Text string
}

// ParseCommand reads the first token case-insensitively. HELP, LOGOUT,
// LISTUSERS, OPTION and FILE are commands; any other line, including an
// empty one, is text.
func ParseCommand(line string) (Command, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return Command{Type: shared.TypeText, Text: line}, nil
	}

	switch strings.ToUpper(tokens[0]) {
	case "HELP":
		return Command{Type: shared.TypeHelp}, nil
	case "LOGOUT":
		return Command{Type: shared.TypeLogout}, nil
	case "LISTUSERS":
		return Command{Type: shared.TypeListUsers}, nil
	case "OPTION":
		return parseOption(line, tokens)
	case "FILE":
		return parseFile(tokens)
	}
	return Command{Type: shared.TypeText, Text: line}, nil
}

// parseOption takes everything after the option token as the value, so keys
// may contain spaces.
func parseOption(line string, tokens []string) (Command, error) {
	if len(tokens) < 3 {
		return Command{}, fmt.Errorf("%w: OPTION <key|name|enable> <value>", ErrUsage)
	}
	option, err := shared.ParseOptionType(tokens[1])
	if err != nil {
		return Command{}, fmt.Errorf("%w: %w (want key, name or enable)", ErrUsage, err)
	}

	rest := strings.TrimSpace(line)
	for _, tok := range tokens[:2] {
		rest = strings.TrimSpace(rest[len(tok):])
	}
	return Command{Type: shared.TypeOption, Option: option, Value: rest}, nil
}

func parseFile(tokens []string) (Command, error) {
	switch len(tokens) {
	case 2:
		return Command{Type: shared.TypeFile, Path: tokens[1]}, nil
	case 3:
		return Command{Type: shared.TypeFile, Path: tokens[1], SaveAs: tokens[2]}, nil
	}
	return Command{}, fmt.Errorf("%w: FILE <path> [saveAs]", ErrUsage)
}

// ParseLogin reads "username password", optionally preceded by LOGIN.
func ParseLogin(line string) (username, password string, err error) {
	tokens := strings.Fields(line)
	if len(tokens) > 0 && strings.EqualFold(tokens[0], "LOGIN") {
		tokens = tokens[1:]
	}
	if len(tokens) != 2 {
		return "", "", fmt.Errorf("%w: <username> <password>", ErrUsage)
	}
	return tokens[0], tokens[1], nil
}
