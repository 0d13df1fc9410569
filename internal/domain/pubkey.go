package domain

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// npubPrefix is the bech32 human-readable part for public keys.
const npubPrefix = "npub"

// PublicKey identifies a user on the relay network. It is stored internally as
// 32 bytes and convertible between the 64-char lowercase hex form used on the
// wire and the bech32 "npub" form used for display.
type PublicKey struct {
	raw [32]byte
}

// NewPublicKey accepts either a 64-character hex string or an npub bech32
// string and returns the validated key.
func NewPublicKey(s string) (PublicKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PublicKey{}, fmt.Errorf("%w: public key is required", ErrValidation)
	}
	if strings.HasPrefix(s, npubPrefix) {
		return publicKeyFromNpub(s)
	}
	return publicKeyFromHex(s)
}

func publicKeyFromHex(s string) (PublicKey, error) {
	if len(s) != 64 {
		return PublicKey{}, fmt.Errorf("%w: public key hex must be 64 characters, got %d", ErrValidation, len(s))
	}
	if s != strings.ToLower(s) {
		return PublicKey{}, fmt.Errorf("%w: public key hex must be lowercase", ErrValidation)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: public key is not valid hex: %v", ErrValidation, err)
	}
	var pk PublicKey
	copy(pk.raw[:], b)
	return pk, nil
}

func publicKeyFromNpub(s string) (PublicKey, error) {
	hrp, words, err := bech32.Decode(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: invalid npub encoding: %v", ErrValidation, err)
	}
	if hrp != npubPrefix {
		return PublicKey{}, fmt.Errorf("%w: expected npub prefix, got %q", ErrValidation, hrp)
	}
	b, err := bech32.ConvertBits(words, 5, 8, false)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: invalid npub payload: %v", ErrValidation, err)
	}
	if len(b) != 32 {
		return PublicKey{}, fmt.Errorf("%w: npub payload must be 32 bytes, got %d", ErrValidation, len(b))
	}
	var pk PublicKey
	copy(pk.raw[:], b)
	return pk, nil
}

// Hex returns the 64-character lowercase hex form used in wire events.
func (pk PublicKey) Hex() string {
	return hex.EncodeToString(pk.raw[:])
}

// Npub returns the bech32 display form.
func (pk PublicKey) Npub() string {
	words, err := bech32.ConvertBits(pk.raw[:], 8, 5, true)
	if err != nil {
		return ""
	}
	s, err := bech32.Encode(npubPrefix, words)
	if err != nil {
		return ""
	}
	return s
}

// IsZero reports whether the key is the zero value (no key set).
func (pk PublicKey) IsZero() bool {
	return pk.raw == [32]byte{}
}

// Equal compares two keys by value.
func (pk PublicKey) Equal(other PublicKey) bool {
	return pk.raw == other.raw
}

// String returns the hex form.
func (pk PublicKey) String() string { return pk.Hex() }

const maxDisplayNameLen = 50

// DisplayName is an optional human-readable name shown alongside a public key.
type DisplayName struct {
	value string
}

// NewDisplayName validates a display name: at most 50 characters, letters,
// digits, spaces, and ._- only. An empty string is a valid "unset" name.
func NewDisplayName(raw string) (DisplayName, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return DisplayName{}, nil
	}
	if len([]rune(name)) > maxDisplayNameLen {
		return DisplayName{}, fmt.Errorf("%w: display name exceeds %d characters", ErrValidation, maxDisplayNameLen)
	}
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '.' || r == '_' || r == '-' {
			continue
		}
		return DisplayName{}, fmt.Errorf("%w: display name contains invalid character %q", ErrValidation, r)
	}
	return DisplayName{value: name}, nil
}

// IsSet reports whether a name is present.
func (d DisplayName) IsSet() bool { return d.value != "" }

func (d DisplayName) String() string { return d.value }
