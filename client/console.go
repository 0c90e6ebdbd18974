package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Console is the line-oriented user interface of a client session.
type Console interface {
	// ReadLine shows prompt and returns the next input line without its line
	// ending. It returns io.EOF once input is exhausted.
	ReadLine(prompt string) (string, error)
	// Println writes one block of output followed by a newline.
	Println(s string)
}

// LineConsole reads lines from an io.Reader and writes to an io.Writer.
type LineConsole struct {
	in  *bufio.Reader
	out io.Writer
	mu  sync.Mutex
}

// NewLineConsole creates a console reading lines from in and writing to out.
func NewLineConsole(in io.Reader, out io.Writer) *LineConsole {
	return &LineConsole{in: bufio.NewReader(in), out: out}
}

func (c *LineConsole) ReadLine(prompt string) (string, error) {
	c.mu.Lock()
	fmt.Fprint(c.out, prompt)
	c.mu.Unlock()

	line, err := c.in.ReadString('\n')
	if err != nil {
		// A final line without a newline still counts.
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *LineConsole) Println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, s)
}
