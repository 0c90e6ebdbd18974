package cipher

import (
	"fmt"
	"strings"
)

// Vigenere shifts the i-th letter by the alphabet index of key[i mod len(key)].
type Vigenere struct {
	shifts []int
	key    string
}

// NewVigenere creates a running-key cipher. The key must be a non-empty run of
// letters; lowercase letters are folded to uppercase.
func NewVigenere(key string) (*Vigenere, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: need a non-empty keyword", ErrInvalidKey)
	}
	upper := strings.ToUpper(key)
	shifts := make([]int, 0, len(upper))
	for _, r := range upper {
		idx := strings.IndexRune(Alphabet, r)
		if idx < 0 {
			return nil, fmt.Errorf("%w: keyword must contain only letters, found %q", ErrInvalidKey, r)
		}
		shifts = append(shifts, idx)
	}
	return &Vigenere{shifts: shifts, key: upper}, nil
}

func (v *Vigenere) Kind() Kind { return KindVigenere }

// Key returns the normalized keyword.
func (v *Vigenere) Key() string { return v.key }

func (v *Vigenere) Prepare(cleartext string) string { return Clean(cleartext) }

func (v *Vigenere) Encrypt(prepared string) (string, error) {
	return v.transform(prepared, 1)
}

func (v *Vigenere) Decrypt(ciphertext string) (string, error) {
	return v.transform(ciphertext, -1)
}

func (v *Vigenere) transform(s string, sign int) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	i := 0
	for _, r := range s {
		shifted, err := Shift(r, sign*v.shifts[i%len(v.shifts)])
		if err != nil {
			return "", err
		}
		b.WriteRune(shifted)
		i++
	}
	return b.String(), nil
}
