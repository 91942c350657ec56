// Package nostrkey handles secp256k1 key material in the formats used on
// the relay network: 32-byte hex strings and bech32 "npub"/"nsec" identifiers.
package nostrkey

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/bech32"
)

const (
	// PublicKeyPrefix is the human-readable part of public key identifiers.
	PublicKeyPrefix = "npub"
	// SecretKeyPrefix is the human-readable part of secret key identifiers.
	SecretKeyPrefix = "nsec"

	// KeySize is the size of raw secret keys and x-only public keys.
	KeySize = 32
)

// ErrFormat is returned for malformed identifiers, hex keys and connection URIs.
var ErrFormat = errors.New("nostrkey: malformed input")

// Encode converts a 32-byte key into a bech32 identifier with the given prefix.
func Encode(prefix string, key []byte) (string, error) {
	if len(key) != KeySize {
		return "", fmt.Errorf("%w: key is %d bytes, want %d", ErrFormat, len(key), KeySize)
	}
	groups, err := bech32.ConvertBits(key, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFormat, err)
	}
	s, err := bech32.Encode(prefix, groups)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return s, nil
}

// Decode parses a bech32 identifier and returns its prefix and 32-byte payload.
// The checksum is always verified.
func Decode(s string) (prefix string, key []byte, err error) {
	if !strings.Contains(s, "1") {
		return "", nil, fmt.Errorf("%w: missing separator", ErrFormat)
	}
	prefix, groups, err := bech32.Decode(s)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	key, err = bech32.ConvertBits(groups, 5, 8, false)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if len(key) != KeySize {
		return "", nil, fmt.Errorf("%w: payload is %d bytes, want %d", ErrFormat, len(key), KeySize)
	}
	return prefix, key, nil
}

// LooksValid is a cheap prefix and length check for UI pre-filtering.
// It does not verify the checksum; use Decode wherever the result matters.
func LooksValid(s string) bool {
	if !strings.HasPrefix(s, PublicKeyPrefix+"1") && !strings.HasPrefix(s, SecretKeyPrefix+"1") {
		return false
	}
	return len(s) >= 63 && len(s) <= 65
}

// EncodePublicKey returns the npub identifier for a hex x-only public key.
func EncodePublicKey(pubHex string) (string, error) {
	key, err := DecodeHex(pubHex)
	if err != nil {
		return "", err
	}
	return Encode(PublicKeyPrefix, key)
}

// EncodeSecretKey returns the nsec identifier for a hex secret key.
func EncodeSecretKey(secretHex string) (string, error) {
	key, err := DecodeHex(secretHex)
	if err != nil {
		return "", err
	}
	return Encode(SecretKeyPrefix, key)
}

// DecodePublicKey parses an npub identifier into a hex public key.
func DecodePublicKey(npub string) (string, error) {
	return decodeExpecting(npub, PublicKeyPrefix)
}

// DecodeSecretKey parses an nsec identifier into a hex secret key.
func DecodeSecretKey(nsec string) (string, error) {
	return decodeExpecting(nsec, SecretKeyPrefix)
}

func decodeExpecting(s, want string) (string, error) {
	prefix, key, err := Decode(s)
	if err != nil {
		return "", err
	}
	if prefix != want {
		return "", fmt.Errorf("%w: prefix %q, want %q", ErrFormat, prefix, want)
	}
	return hex.EncodeToString(key), nil
}

// DecodeHex parses a 64-character hex key. Upper-case input is accepted.
func DecodeHex(s string) ([]byte, error) {
	if len(s) != 2*KeySize {
		return nil, fmt.Errorf("%w: hex key has %d characters, want %d", ErrFormat, len(s), 2*KeySize)
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return key, nil
}

// ParseSecret accepts a secret key as 64 hex characters or as an nsec
// identifier and returns the raw 32 bytes.
func ParseSecret(s string) ([]byte, error) {
	if strings.HasPrefix(s, SecretKeyPrefix+"1") {
		h, err := DecodeSecretKey(s)
		if err != nil {
			return nil, err
		}
		return hex.DecodeString(h)
	}
	return DecodeHex(s)
}

// ParsePublic accepts a public key as 64 hex characters or as an npub
// identifier and returns the normalized lower-case hex form.
func ParsePublic(s string) (string, error) {
	if strings.HasPrefix(s, PublicKeyPrefix+"1") {
		return DecodePublicKey(s)
	}
	key, err := DecodeHex(s)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

// GenerateSecret returns a fresh random secret key.
func GenerateSecret() ([]byte, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("nostrkey: generate: %w", err)
	}
	return priv.Serialize(), nil
}

// PublicKey derives the x-only (BIP-340) public key for a secret key.
func PublicKey(secret []byte) ([]byte, error) {
	if len(secret) != KeySize {
		return nil, fmt.Errorf("%w: secret is %d bytes, want %d", ErrFormat, len(secret), KeySize)
	}
	var k btcec.ModNScalar
	if overflow := k.SetByteSlice(secret); overflow || k.IsZero() {
		return nil, fmt.Errorf("%w: secret is zero or exceeds curve order", ErrFormat)
	}
	priv := btcec.PrivKeyFromScalar(&k)
	return schnorr.SerializePubKey(priv.PubKey()), nil
}

// PublicKeyHex is PublicKey with hex output.
func PublicKeyHex(secret []byte) (string, error) {
	pub, err := PublicKey(secret)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(pub), nil
}
