package cipher

import (
	"fmt"
	"strings"
)

const (
	playfairSize   = 5
	playfairFiller = 'X'
)

// Playfair transforms digraphs through a 5x5 key matrix. J is merged into I.
type Playfair struct {
	matrix [playfairSize][playfairSize]byte
	// pos maps a letter to row*5+col, or -1 for J.
	pos [26]int
}

// NewPlayfair builds the key matrix from keyword: its letters (cleaned, J
// merged into I, duplicates dropped) followed by the rest of the alphabet
// without J.
func NewPlayfair(keyword string) (*Playfair, error) {
	key := strings.ReplaceAll(Clean(keyword), "J", "I")
	if key == "" {
		return nil, fmt.Errorf("%w: keyword must contain at least one letter", ErrInvalidKey)
	}

	p := &Playfair{}
	for i := range p.pos {
		p.pos[i] = -1
	}

	n := 0
	place := func(c byte) {
		if c == 'J' || p.pos[c-'A'] >= 0 {
			return
		}
		p.matrix[n/playfairSize][n%playfairSize] = c
		p.pos[c-'A'] = n
		n++
	}
	for i := 0; i < len(key); i++ {
		place(key[i])
	}
	for i := 0; i < len(Alphabet); i++ {
		place(Alphabet[i])
	}
	return p, nil
}

func (p *Playfair) Kind() Kind { return KindPlayfair }

// Matrix returns the rows of the key matrix.
func (p *Playfair) Matrix() []string {
	rows := make([]string, playfairSize)
	for i := range p.matrix {
		rows[i] = string(p.matrix[i][:])
	}
	return rows
}

// Prepare cleans the text, merges J into I and pads it into digraphs: an X
// separates two identical letters that would share a digraph, and a trailing
// single letter gets an X.
func (p *Playfair) Prepare(cleartext string) string {
	letters := strings.ReplaceAll(Clean(cleartext), "J", "I")

	var b strings.Builder
	b.Grow(len(letters) + len(letters)/2 + 1)
	for i := 0; i < len(letters); {
		first := letters[i]
		if i+1 == len(letters) {
			b.WriteByte(first)
			b.WriteByte(playfairFiller)
			break
		}
		second := letters[i+1]
		if first == second {
			b.WriteByte(first)
			b.WriteByte(playfairFiller)
			i++
			continue
		}
		b.WriteByte(first)
		b.WriteByte(second)
		i += 2
	}
	return b.String()
}

func (p *Playfair) Encrypt(prepared string) (string, error) {
	return p.transform(prepared, 1)
}

func (p *Playfair) Decrypt(ciphertext string) (string, error) {
	return p.transform(ciphertext, -1)
}

// transform applies the row, column and rectangle rules. step is +1 to
// encrypt (right/down) and -1 to decrypt (left/up). The rectangle rule is its
// own inverse.
func (p *Playfair) transform(s string, step int) (string, error) {
	if len(s)%2 != 0 {
		return "", fmt.Errorf("%w: text length %d is not a whole number of digraphs", ErrCipher, len(s))
	}

	out := make([]byte, len(s))
	for i := 0; i < len(s); i += 2 {
		ra, ca, err := p.locate(s[i])
		if err != nil {
			return "", err
		}
		rb, cb, err := p.locate(s[i+1])
		if err != nil {
			return "", err
		}

		switch {
		case ra == rb:
			ca, cb = wrap5(ca+step), wrap5(cb+step)
		case ca == cb:
			ra, rb = wrap5(ra+step), wrap5(rb+step)
		default:
			ca, cb = cb, ca
		}
		out[i] = p.matrix[ra][ca]
		out[i+1] = p.matrix[rb][cb]
	}
	return string(out), nil
}

func (p *Playfair) locate(c byte) (row, col int, err error) {
	if c < 'A' || c > 'Z' || p.pos[c-'A'] < 0 {
		return 0, 0, fmt.Errorf("%w: %q not in key matrix", ErrOutOfAlphabet, c)
	}
	n := p.pos[c-'A']
	return n / playfairSize, n % playfairSize, nil
}

func wrap5(n int) int {
	r, _ := Mod(n, playfairSize)
	return r
}
