// Package siwe implements parsing, serialization and verification of
// Sign-In-With-Ethereum messages (EIP-4361 plaintext format).
package siwe

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedMessage is returned when a message cannot be parsed
var ErrMalformedMessage = errors.New("malformed sign-in message")

const preambleSuffix = " wants you to sign in with your Ethereum account:"

// addressPattern matches a 0x-prefixed 40-hex-digit Ethereum address,
// case-insensitively, anywhere in a line. Used as a fallback when the
// address is not where the canonical format puts it.
var addressPattern = regexp.MustCompile(`(?i)0x[0-9a-f]{40}`)

// strictAddressPattern matches a line that is exactly an address
var strictAddressPattern = regexp.MustCompile(`(?i)^0x[0-9a-f]{40}$`)

// addressScanWindow is how many leading lines the fallback scan inspects.
// Wallets have been observed to shift the address by a blank line but never
// deeper into the message.
const addressScanWindow = 5

// Message is a parsed sign-in message. Timestamp and chain-id fields keep
// their raw textual form so serialization is byte-stable; typed accessors
// parse on demand.
type Message struct {
	Domain         string
	Address        string
	Statement      string
	URI            string
	Version        string
	ChainID        string
	Nonce          string
	IssuedAt       string
	ExpirationTime string
	NotBefore      string
	RequestID      string
	Resources      []string

	// raw is the exact text this message was parsed from, if any.
	// Signatures are produced over the original bytes, so verification
	// must hash raw rather than a re-serialized form.
	raw string
}

// ParseMessage parses the line-oriented sign-in message format. It tolerates
// the address appearing on the line directly after the preamble or after one
// blank line, and falls back to scanning the first few lines for an address
// pattern before giving up.
func ParseMessage(text string) (*Message, error) {
	lines := strings.Split(text, "\n")
	if len(lines) < 4 {
		return nil, fmt.Errorf("%w: expected at least 4 lines, got %d", ErrMalformedMessage, len(lines))
	}

	msg := &Message{raw: text}

	// Preamble line carries the domain.
	first := lines[0]
	if idx := strings.Index(first, preambleSuffix); idx >= 0 {
		msg.Domain = first[:idx]
	} else {
		msg.Domain = strings.TrimSpace(first)
	}

	// Locate the address. Strict positions first, then the pattern scan.
	addrLine := -1
	switch {
	case strictAddressPattern.MatchString(strings.TrimSpace(lines[1])):
		addrLine = 1
	case len(lines) > 2 && strings.TrimSpace(lines[1]) == "" && strictAddressPattern.MatchString(strings.TrimSpace(lines[2])):
		addrLine = 2
	default:
		limit := addressScanWindow
		if limit > len(lines) {
			limit = len(lines)
		}
		for i := 0; i < limit; i++ {
			if loc := addressPattern.FindString(lines[i]); loc != "" && i > 0 {
				addrLine = i
				break
			}
		}
	}
	if addrLine == -1 {
		return nil, fmt.Errorf("%w: no signer address found", ErrMalformedMessage)
	}
	msg.Address = addressPattern.FindString(lines[addrLine])

	// Everything between the address and the first trailer field is the
	// statement block (minus surrounding blank lines).
	fieldStart := len(lines)
	for i := addrLine + 1; i < len(lines); i++ {
		if isFieldLine(lines[i]) {
			fieldStart = i
			break
		}
	}

	statement := lines[addrLine+1 : fieldStart]
	for len(statement) > 0 && strings.TrimSpace(statement[0]) == "" {
		statement = statement[1:]
	}
	for len(statement) > 0 && strings.TrimSpace(statement[len(statement)-1]) == "" {
		statement = statement[:len(statement)-1]
	}
	msg.Statement = strings.Join(statement, "\n")

	// Trailer block of "Key: value" pairs plus the resource list.
	inResources := false
	for i := fieldStart; i < len(lines); i++ {
		line := lines[i]
		if inResources {
			if rest, ok := strings.CutPrefix(line, "- "); ok {
				msg.Resources = append(msg.Resources, rest)
				continue
			}
			inResources = false
		}
		if line == "Resources:" {
			inResources = true
			continue
		}
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		switch key {
		case "URI":
			msg.URI = value
		case "Version":
			msg.Version = value
		case "Chain ID":
			msg.ChainID = value
		case "Nonce":
			msg.Nonce = value
		case "Issued At":
			msg.IssuedAt = value
		case "Expiration Time":
			msg.ExpirationTime = value
		case "Not Before":
			msg.NotBefore = value
		case "Request ID":
			msg.RequestID = value
		}
	}

	return msg, nil
}

// isFieldLine reports whether a line starts the trailer block
func isFieldLine(line string) bool {
	for _, prefix := range []string{
		"URI: ", "Version: ", "Chain ID: ", "Nonce: ", "Issued At: ",
		"Expiration Time: ", "Not Before: ", "Request ID: ",
	} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return line == "Resources:"
}

// String serializes the message into the canonical wire form. The output is
// byte-stable: any whitespace or ordering deviation breaks signature
// recovery, so every line is emitted exactly as the format prescribes.
func (m *Message) String() string {
	var b strings.Builder

	b.WriteString(m.Domain)
	b.WriteString(preambleSuffix)
	b.WriteByte('\n')
	b.WriteString(m.Address)
	b.WriteByte('\n')

	if m.Statement != "" {
		b.WriteByte('\n')
		b.WriteString(m.Statement)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	fields := []struct {
		key   string
		value string
	}{
		{"URI", m.URI},
		{"Version", m.Version},
		{"Chain ID", m.ChainID},
		{"Nonce", m.Nonce},
		{"Issued At", m.IssuedAt},
		{"Expiration Time", m.ExpirationTime},
		{"Not Before", m.NotBefore},
		{"Request ID", m.RequestID},
	}

	wrote := false
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if wrote {
			b.WriteByte('\n')
		}
		b.WriteString(f.key)
		b.WriteString(": ")
		b.WriteString(f.value)
		wrote = true
	}

	if len(m.Resources) > 0 {
		if wrote {
			b.WriteByte('\n')
		}
		b.WriteString("Resources:")
		for _, r := range m.Resources {
			b.WriteString("\n- ")
			b.WriteString(r)
		}
	}

	return b.String()
}

// Raw returns the exact text the message was parsed from, or the canonical
// serialization when the message was constructed in code.
func (m *Message) Raw() string {
	if m.raw != "" {
		return m.raw
	}
	return m.String()
}

// ChainIDInt returns the numeric chain id
func (m *Message) ChainIDInt() (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(m.ChainID))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid chain id %q", ErrMalformedMessage, m.ChainID)
	}
	return id, nil
}

// IssuedAtTime returns the parsed Issued At timestamp
func (m *Message) IssuedAtTime() (time.Time, error) {
	return parseTimestamp(m.IssuedAt)
}

// ExpirationTimeTime returns the parsed Expiration Time timestamp, or the
// zero time when the field is absent.
func (m *Message) ExpirationTimeTime() (time.Time, error) {
	if m.ExpirationTime == "" {
		return time.Time{}, nil
	}
	return parseTimestamp(m.ExpirationTime)
}

// NotBeforeTime returns the parsed Not Before timestamp, or the zero time
// when the field is absent.
func (m *Message) NotBeforeTime() (time.Time, error) {
	if m.NotBefore == "" {
		return time.Time{}, nil
	}
	return parseTimestamp(m.NotBefore)
}

func parseTimestamp(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid timestamp %q", ErrMalformedMessage, value)
}
