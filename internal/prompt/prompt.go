// Package prompt talks to the user on the controlling terminal. Stdin and
// stdout belong to git, so prompts never use them.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Terminal reads answers from a terminal, or from any reader in tests.
type Terminal struct {
	in    *bufio.Reader
	out   io.Writer
	fd    int
	isTTY bool
	close func() error
}

// Open opens the controlling terminal.
func Open() (*Terminal, error) {
	in, out, err := openTTY()
	if err != nil {
		return nil, fmt.Errorf("open terminal: %w", err)
	}
	t := New(in, out)
	t.close = func() error {
		if out != in {
			_ = out.Close()
		}
		return in.Close()
	}
	return t, nil
}

// New returns a terminal over in and out. Echo is disabled for passphrases
// only when in is a real terminal.
func New(in io.Reader, out io.Writer) *Terminal {
	t := &Terminal{in: bufio.NewReader(in), out: out}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		t.fd = int(f.Fd())
		t.isTTY = true
	}
	return t
}

// Close releases the terminal opened by Open.
func (t *Terminal) Close() error {
	if t.close == nil {
		return nil
	}
	return t.close()
}

// Passphrase asks for a secret without echoing it.
func (t *Terminal) Passphrase(prompt string) ([]byte, error) {
	fmt.Fprint(t.out, prompt)
	if t.isTTY {
		pass, err := term.ReadPassword(t.fd)
		fmt.Fprintln(t.out)
		return pass, err
	}
	line, err := t.readLine()
	if err != nil {
		return nil, err
	}
	return []byte(line), nil
}

// Confirm shows a message and waits for Enter.
func (t *Terminal) Confirm(prompt string) error {
	fmt.Fprint(t.out, prompt)
	_, err := t.readLine()
	return err
}

func (t *Terminal) readLine() (string, error) {
	line, err := t.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Lazy opens the controlling terminal on first use, so invocations that
// never prompt work without one.
type Lazy struct {
	t *Terminal
}

func (l *Lazy) terminal() (*Terminal, error) {
	if l.t != nil {
		return l.t, nil
	}
	t, err := Open()
	if err != nil {
		return nil, err
	}
	l.t = t
	return t, nil
}

// Passphrase implements vault.Prompter.
func (l *Lazy) Passphrase(prompt string) ([]byte, error) {
	t, err := l.terminal()
	if err != nil {
		return nil, err
	}
	return t.Passphrase(prompt)
}

// Confirm implements vault.Prompter.
func (l *Lazy) Confirm(prompt string) error {
	t, err := l.terminal()
	if err != nil {
		return err
	}
	return t.Confirm(prompt)
}

// Close closes the terminal if it was opened.
func (l *Lazy) Close() error {
	if l.t == nil {
		return nil
	}
	return l.t.Close()
}
