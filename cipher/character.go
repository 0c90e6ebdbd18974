package cipher

import (
	"fmt"
	"strings"
)

// Clean uppercases s and drops every character outside Alphabet.
func Clean(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToUpper(s) {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Mod returns n modulo m in [0, m), also for negative n.
func Mod(n, m int) (int, error) {
	if m < 1 {
		return 0, fmt.Errorf("%w: modulus cannot be < 1, got %d", ErrCipher, m)
	}
	return ((n % m) + m) % m, nil
}

// mod26 is Mod over the alphabet length, which can never fail.
func mod26(n int) int {
	r, _ := Mod(n, len(Alphabet))
	return r
}

// Group splits s into space-separated chunks of n characters. The last chunk
// holds the remaining 1..n characters.
func Group(s string, n int) (string, error) {
	if n < 1 {
		return "", fmt.Errorf("%w: group size cannot be < 1, got %d", ErrCipher, n)
	}
	runes := []rune(s)
	var b strings.Builder
	for i := 0; i < len(runes); i += n {
		if i > 0 {
			b.WriteByte(' ')
		}
		end := i + n
		if end > len(runes) {
			end = len(runes)
		}
		b.WriteString(string(runes[i:end]))
	}
	return b.String(), nil
}

// Shift moves r n places along Alphabet, wrapping around in both directions.
func Shift(r rune, n int) (rune, error) {
	idx := strings.IndexRune(Alphabet, r)
	if idx < 0 {
		return 0, fmt.Errorf("%w: %q", ErrOutOfAlphabet, r)
	}
	return rune(Alphabet[mod26(idx+n)]), nil
}

// ShiftString applies Shift to every character of s.
func ShiftString(s string, n int) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		shifted, err := Shift(r, n)
		if err != nil {
			return "", err
		}
		b.WriteRune(shifted)
	}
	return b.String(), nil
}
