// Package gitcred reads and writes the line oriented format git uses to talk
// to credential helpers.
package gitcred

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrMalformed is returned for a line that is not key=value.
	ErrMalformed = errors.New("gitcred: malformed line")
	// ErrInvalidValue is returned when a value cannot be encoded on one line.
	ErrInvalidValue = errors.New("gitcred: value contains newline or NUL")
	// ErrMissingURL is returned when neither url nor protocol and host are set.
	ErrMissingURL = errors.New("gitcred: protocol and host are required when url is not provided")
)

// Attribute is a key=value pair this package does not interpret. They are
// kept so a reply echoes everything git sent.
type Attribute struct {
	Key   string
	Value string
}

// Message is a credential request or reply. Empty fields are absent unless
// they were parsed that way.
type Message struct {
	Protocol string
	Host     string
	Path     string
	URL      string
	Username string
	Password string
	Extra    []Attribute

	// keys holds the keys in the order they were parsed.
	keys []string
}

var knownKeys = []string{"protocol", "host", "path", "url", "username", "password"}

// Parse reads a message up to EOF or the first blank line.
func Parse(r io.Reader) (*Message, error) {
	msg := &Message{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q", ErrMalformed, line)
		}
		msg.set(key, value)
		msg.keys = append(msg.keys, key)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read credential message: %w", err)
	}
	return msg, nil
}

func (m *Message) set(key, value string) {
	switch key {
	case "protocol":
		m.Protocol = value
	case "host":
		m.Host = value
	case "path":
		m.Path = value
	case "url":
		m.URL = value
	case "username":
		m.Username = value
	case "password":
		m.Password = value
	default:
		m.Extra = append(m.Extra, Attribute{Key: key, Value: value})
	}
}

func (m *Message) get(key string) (string, bool) {
	switch key {
	case "protocol":
		return m.Protocol, true
	case "host":
		return m.Host, true
	case "path":
		return m.Path, true
	case "url":
		return m.URL, true
	case "username":
		return m.Username, true
	case "password":
		return m.Password, true
	}
	return "", false
}

// attributes lists the message in parse order. Known fields that were not
// parsed follow in a fixed order when set, then any extras added since.
func (m *Message) attributes() []Attribute {
	out := make([]Attribute, 0, len(m.keys)+len(knownKeys))
	seen := make(map[string]bool, len(knownKeys))
	extra := 0
	for _, key := range m.keys {
		if value, ok := m.get(key); ok {
			if !seen[key] {
				out = append(out, Attribute{key, value})
				seen[key] = true
			}
			continue
		}
		if extra < len(m.Extra) {
			out = append(out, m.Extra[extra])
			extra++
		}
	}
	for _, key := range knownKeys {
		if value, _ := m.get(key); !seen[key] && value != "" {
			out = append(out, Attribute{key, value})
		}
	}
	return append(out, m.Extra[extra:]...)
}

// Encode writes the message in git's format, keeping the order of a parsed
// message.
func (m *Message) Encode(w io.Writer) error {
	var b strings.Builder
	for _, a := range m.attributes() {
		if strings.ContainsAny(a.Key, "=\n\x00") || strings.ContainsAny(a.Value, "\n\x00") {
			return fmt.Errorf("%w: %s", ErrInvalidValue, a.Key)
		}
		b.WriteString(a.Key)
		b.WriteByte('=')
		b.WriteString(a.Value)
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// ResolveURL returns url when git sent one, otherwise protocol://host/path.
func (m *Message) ResolveURL() (string, error) {
	if m.URL != "" {
		return m.URL, nil
	}
	if m.Protocol == "" || m.Host == "" {
		return "", ErrMissingURL
	}
	return m.Protocol + "://" + m.Host + "/" + m.Path, nil
}

// Redacted returns a copy safe for logging.
func (m *Message) Redacted() Message {
	c := *m
	if c.Password != "" {
		c.Password = "<redacted>"
	}
	c.Extra = append([]Attribute(nil), m.Extra...)
	c.keys = append([]string(nil), m.keys...)
	return c
}
