package bounty

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// IdentitySize is the width of every party, slot, and program identity.
const IdentitySize = 32

// Identity is an opaque 32-byte key. Party identities are BIP-340 x-only
// public keys; slot handles and well-known accounts use the same width.
type Identity [IdentitySize]byte

var (
	// SystemProgramID is the allocator handle expected by CreateTask.
	SystemProgramID = wellKnown(1)
	// ClockSysvarID is the clock handle expected by time-checked operations.
	ClockSysvarID = wellKnown(2)
)

func wellKnown(b byte) Identity {
	var id Identity
	id[IdentitySize-1] = b
	return id
}

// ParseIdentity decodes a 64 character hex string.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return id, fmt.Errorf("identity %q: %w", s, err)
	}
	if len(raw) != IdentitySize {
		return id, fmt.Errorf("identity %q: expected %d bytes, got %d", s, IdentitySize, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// MustParseIdentity is ParseIdentity for constants and tests.
func MustParseIdentity(s string) Identity {
	id, err := ParseIdentity(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id Identity) String() string { return hex.EncodeToString(id[:]) }

// IsZero reports whether every byte is zero.
func (id Identity) IsZero() bool { return id == Identity{} }

// Compare orders identities bytewise.
func (id Identity) Compare(other Identity) int { return bytes.Compare(id[:], other[:]) }

// MarshalText renders the identity as hex for JSON and YAML.
func (id Identity) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText parses a hex identity.
func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// AccountMeta is one positional collaborator handle of an invocation.
type AccountMeta struct {
	Key      Identity `json:"key"`
	IsSigner bool     `json:"is_signer"`
}
