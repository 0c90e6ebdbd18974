package cipher

import (
	"fmt"
	"strings"
)

// Caesar shifts every letter by the same amount.
type Caesar struct {
	key int
}

// NewCaesar creates a Caesar cipher shifting by k. Keys congruent modulo 26
// are equivalent.
func NewCaesar(k int) *Caesar {
	return &Caesar{key: mod26(k)}
}

// NewCaesarKeyword creates a Caesar cipher whose shift is the alphabet index
// of the keyword's first letter (case-insensitive).
func NewCaesarKeyword(keyword string) (*Caesar, error) {
	if keyword == "" {
		return nil, fmt.Errorf("%w: need a non-empty keyword", ErrInvalidKey)
	}
	first := []rune(strings.ToUpper(keyword))[0]
	idx := strings.IndexRune(Alphabet, first)
	if idx < 0 {
		return nil, fmt.Errorf("%w: first character %q of keyword not in alphabet", ErrInvalidKey, first)
	}
	return &Caesar{key: idx}, nil
}

func (c *Caesar) Kind() Kind { return KindCaesar }

// Key returns the shift in [0, 26).
func (c *Caesar) Key() int { return c.key }

func (c *Caesar) Prepare(cleartext string) string { return Clean(cleartext) }

func (c *Caesar) Encrypt(prepared string) (string, error) {
	return ShiftString(prepared, c.key)
}

func (c *Caesar) Decrypt(ciphertext string) (string, error) {
	return ShiftString(ciphertext, -c.key)
}
