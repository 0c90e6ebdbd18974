// Package cipher implements the classical ciphers Clack can apply to text
// payloads: Caesar (single shift), Vigenère (running key) and Playfair
// (digraph matrix).
//
// Every cipher works on normalized text. Prepare turns arbitrary input into
// that form; Decrypt(Encrypt(x)) == x holds for every x returned by Prepare.
package cipher

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Alphabet is the 26-letter alphabet all shifts are computed over.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

var (
	// ErrCipher is the class of every error this package reports.
	ErrCipher = errors.New("cipher error")

	// ErrInvalidKey is returned when a cipher cannot be built from a key.
	ErrInvalidKey = fmt.Errorf("%w: invalid key", ErrCipher)

	// ErrOutOfAlphabet is returned when a transform meets a character outside
	// the cipher's alphabet. Such characters are never passed through.
	ErrOutOfAlphabet = fmt.Errorf("%w: character not in alphabet", ErrCipher)

	// ErrUnknownKind is returned by ParseKind for unrecognised cipher names.
	ErrUnknownKind = fmt.Errorf("%w: unknown cipher", ErrCipher)
)

// Cipher is implemented by every cipher in this package.
type Cipher interface {
	Kind() Kind

	// Prepare strips non-alphabetic characters, uppercases, and applies any
	// cipher-specific preprocessing.
	Prepare(cleartext string) string

	Encrypt(prepared string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Kind names a cipher.
type Kind string

const (
	KindCaesar   Kind = "caesar"
	KindVigenere Kind = "vigenere"
	KindPlayfair Kind = "playfair"
)

// Kinds lists the supported ciphers.
var Kinds = []Kind{KindCaesar, KindVigenere, KindPlayfair}

// ParseKind accepts a cipher name or its descriptive alias, case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "caesar", "shift":
		return KindCaesar, nil
	case "vigenere", "vignere", "running-key", "runningkey":
		return KindVigenere, nil
	case "playfair", "digraph", "digraph-matrix":
		return KindPlayfair, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// New builds a cipher of the given kind. For Caesar an integer key is used as
// the shift; any other key uses the alphabet index of its first letter.
func New(kind Kind, key string) (Cipher, error) {
	switch kind {
	case KindCaesar:
		if n, err := strconv.Atoi(strings.TrimSpace(key)); err == nil {
			return NewCaesar(n), nil
		}
		return NewCaesarKeyword(key)
	case KindVigenere:
		return NewVigenere(key)
	case KindPlayfair:
		return NewPlayfair(key)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}
