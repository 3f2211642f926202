package siwe

import (
	"encoding/hex"
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

const testAddress = "0x71C7656EC7ab88b098defB751B7401B5f6d8976F"

func canonicalMessage() string {
	return strings.Join([]string{
		"pagent.xyz wants you to sign in with your Ethereum account:",
		testAddress,
		"",
		"Sign in to Pagent Credits",
		"",
		"URI: https://pagent.xyz",
		"Version: 1",
		"Chain ID: 8453",
		"Nonce: mK9dPq2w",
		"Issued At: 2025-01-01T00:00:00Z",
		"Expiration Time: 2025-01-01T00:10:00Z",
	}, "\n")
}

func TestParseMessage_Canonical(t *testing.T) {
	msg, err := ParseMessage(canonicalMessage())
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}

	if msg.Domain != "pagent.xyz" {
		t.Errorf("Domain = %q, want %q", msg.Domain, "pagent.xyz")
	}
	if msg.Address != testAddress {
		t.Errorf("Address = %q, want %q", msg.Address, testAddress)
	}
	if msg.Statement != "Sign in to Pagent Credits" {
		t.Errorf("Statement = %q", msg.Statement)
	}
	if msg.URI != "https://pagent.xyz" {
		t.Errorf("URI = %q", msg.URI)
	}
	if msg.Version != "1" {
		t.Errorf("Version = %q", msg.Version)
	}
	if msg.ChainID != "8453" {
		t.Errorf("ChainID = %q", msg.ChainID)
	}
	if msg.Nonce != "mK9dPq2w" {
		t.Errorf("Nonce = %q", msg.Nonce)
	}
	if msg.IssuedAt != "2025-01-01T00:00:00Z" {
		t.Errorf("IssuedAt = %q", msg.IssuedAt)
	}
	if msg.ExpirationTime != "2025-01-01T00:10:00Z" {
		t.Errorf("ExpirationTime = %q", msg.ExpirationTime)
	}
}

// Some wallets emit a blank line between the preamble and the address. The
// parser accepts both layouts and extracts the same fields.
func TestParseMessage_AddressAfterBlankLine(t *testing.T) {
	text := strings.Join([]string{
		"pagent.xyz wants you to sign in with your Ethereum account:",
		"",
		testAddress,
		"",
		"URI: https://pagent.xyz",
		"Version: 1",
		"Chain ID: 1",
		"Nonce: abc123",
		"Issued At: 2025-01-01T00:00:00Z",
	}, "\n")

	msg, err := ParseMessage(text)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if msg.Address != testAddress {
		t.Errorf("Address = %q, want %q", msg.Address, testAddress)
	}
	if msg.Nonce != "abc123" {
		t.Errorf("Nonce = %q, want %q", msg.Nonce, "abc123")
	}
}

func TestParseMessage_AddressScanFallback(t *testing.T) {
	// Address embedded in a line with surrounding text still gets found.
	text := strings.Join([]string{
		"pagent.xyz wants you to sign in with your Ethereum account:",
		"account " + strings.ToLower(testAddress) + " (primary)",
		"",
		"URI: https://pagent.xyz",
		"Version: 1",
		"Chain ID: 1",
		"Nonce: abc123",
		"Issued At: 2025-01-01T00:00:00Z",
	}, "\n")

	msg, err := ParseMessage(text)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if !strings.EqualFold(msg.Address, testAddress) {
		t.Errorf("Address = %q, want %q (case-insensitive)", msg.Address, testAddress)
	}
}

func TestParseMessage_Resources(t *testing.T) {
	text := strings.Join([]string{
		"pagent.xyz wants you to sign in with your Ethereum account:",
		testAddress,
		"",
		"URI: https://pagent.xyz",
		"Version: 1",
		"Chain ID: 1",
		"Nonce: abc123",
		"Issued At: 2025-01-01T00:00:00Z",
		"Resources:",
		"- https://pagent.xyz/credits",
		"- https://pagent.xyz/cards",
	}, "\n")

	msg, err := ParseMessage(text)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if len(msg.Resources) != 2 {
		t.Fatalf("Resources = %v, want 2 entries", msg.Resources)
	}
	if msg.Resources[0] != "https://pagent.xyz/credits" {
		t.Errorf("Resources[0] = %q", msg.Resources[0])
	}
}

func TestParseMessage_Malformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{
			name: "too few lines",
			text: "pagent.xyz wants you to sign in with your Ethereum account:\n" + testAddress,
		},
		{
			name: "no address anywhere",
			text: strings.Join([]string{
				"pagent.xyz wants you to sign in with your Ethereum account:",
				"not an address",
				"",
				"URI: https://pagent.xyz",
				"Nonce: abc123",
			}, "\n"),
		},
		{
			name: "empty message",
			text: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMessage(tt.text); err == nil {
				t.Error("ParseMessage() expected error")
			}
		})
	}
}

func TestMessage_RoundTrip(t *testing.T) {
	text := canonicalMessage()
	msg, err := ParseMessage(text)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}

	if got := msg.String(); got != text {
		t.Errorf("String() round trip mismatch:\ngot:  %q\nwant: %q", got, text)
	}
}

func TestMessage_RoundTrip_NoStatement(t *testing.T) {
	text := strings.Join([]string{
		"pagent.xyz wants you to sign in with your Ethereum account:",
		testAddress,
		"",
		"URI: https://pagent.xyz",
		"Version: 1",
		"Chain ID: 1",
		"Nonce: abc123",
		"Issued At: 2025-01-01T00:00:00Z",
	}, "\n")

	msg, err := ParseMessage(text)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if msg.Statement != "" {
		t.Errorf("Statement = %q, want empty", msg.Statement)
	}
	if got := msg.String(); got != text {
		t.Errorf("String() round trip mismatch:\ngot:  %q\nwant: %q", got, text)
	}
}

// Property: for any message built from generated fields, serializing and
// re-parsing yields the same canonical bytes and the same field values.
func TestMessage_RoundTripProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("serialize then parse is stable", prop.ForAll(
		func(domain, statement, nonce string, addrBytes []byte, chainID uint8) bool {
			address := "0x" + hex.EncodeToString(addrBytes)
			msg := &Message{
				Domain:    domain + ".xyz",
				Address:   address,
				Statement: statement,
				URI:       "https://" + domain + ".xyz",
				Version:   "1",
				ChainID:   strconv.Itoa(int(chainID) + 1),
				Nonce:     nonce,
				IssuedAt:  "2025-01-01T00:00:00Z",
			}

			parsed, err := ParseMessage(msg.String())
			if err != nil {
				return false
			}
			return parsed.String() == msg.String() &&
				parsed.Address == address &&
				parsed.Nonce == nonce &&
				parsed.Statement == statement
		},
		gen.Identifier(),
		gen.Identifier(),
		gen.Identifier(),
		gen.SliceOfN(20, gen.UInt8()),
		gen.UInt8(),
	))

	properties.TestingRun(t)
}

func TestMessage_TypedAccessors(t *testing.T) {
	msg, err := ParseMessage(canonicalMessage())
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}

	chainID, err := msg.ChainIDInt()
	if err != nil {
		t.Fatalf("ChainIDInt() error = %v", err)
	}
	if chainID != 8453 {
		t.Errorf("ChainIDInt() = %d, want 8453", chainID)
	}

	issuedAt, err := msg.IssuedAtTime()
	if err != nil {
		t.Fatalf("IssuedAtTime() error = %v", err)
	}
	if issuedAt.IsZero() {
		t.Error("IssuedAtTime() returned zero time")
	}

	expiration, err := msg.ExpirationTimeTime()
	if err != nil {
		t.Fatalf("ExpirationTimeTime() error = %v", err)
	}
	if !expiration.After(issuedAt) {
		t.Error("expected expiration after issued-at")
	}
}
