package nwccrypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"

	"golang.org/x/crypto/chacha20"
)

const (
	// Version is the only blob version this package reads or writes.
	Version = 2

	// MinPlaintextSize and MaxPlaintextSize bound the plaintext in bytes.
	MinPlaintextSize = 1
	MaxPlaintextSize = 65535

	nonceSize      = 32
	macSize        = 32
	minPaddedSize  = 32
	lengthPrefix   = 2
	minPayloadSize = 1 + nonceSize + lengthPrefix + minPaddedSize + macSize
	maxPayloadSize = 1 + nonceSize + lengthPrefix + 65536 + macSize
)

var (
	// ErrEncoding is returned when a plaintext cannot be encrypted.
	ErrEncoding = errors.New("nwccrypto: cannot encode plaintext")
	// ErrDecoding is returned for blobs that are structurally invalid.
	ErrDecoding = errors.New("nwccrypto: malformed payload")
	// ErrAuthentication is returned when the MAC does not match.
	ErrAuthentication = errors.New("nwccrypto: authentication failed")
	// ErrUnsupportedVersion is returned for an unknown version byte.
	ErrUnsupportedVersion = errors.New("nwccrypto: unsupported version")
)

// Encrypt pads, encrypts and authenticates plaintext under conversationKey
// and returns the base64 blob version || nonce || ciphertext || mac.
func Encrypt(plaintext string, conversationKey []byte) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nwccrypto: nonce: %w", err)
	}
	return encrypt(plaintext, conversationKey, nonce)
}

func encrypt(plaintext string, conversationKey, nonce []byte) (string, error) {
	cipherKey, baseNonce, macKey, err := splitKey(conversationKey)
	if err != nil {
		return "", err
	}
	padded, err := pad(plaintext)
	if err != nil {
		return "", err
	}

	ciphertext, err := xorStream(cipherKey, effectiveNonce(baseNonce, nonce), padded)
	if err != nil {
		return "", err
	}
	mac := computeMAC(macKey, nonce, ciphertext)

	out := make([]byte, 0, 1+len(nonce)+len(ciphertext)+len(mac))
	out = append(out, Version)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	out = append(out, mac...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt verifies and decrypts a blob produced by Encrypt. Nothing is
// decrypted unless the MAC verifies.
func Decrypt(blob string, conversationKey []byte) (string, error) {
	cipherKey, baseNonce, macKey, err := splitKey(conversationKey)
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: base64: %v", ErrDecoding, err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: empty payload", ErrDecoding)
	}
	if raw[0] != Version {
		return "", fmt.Errorf("%w: %d", ErrUnsupportedVersion, raw[0])
	}
	if len(raw) < minPayloadSize || len(raw) > maxPayloadSize {
		return "", fmt.Errorf("%w: payload is %d bytes", ErrDecoding, len(raw))
	}

	nonce := raw[1 : 1+nonceSize]
	ciphertext := raw[1+nonceSize : len(raw)-macSize]
	mac := raw[len(raw)-macSize:]
	if err := verifyMAC(macKey, mac, nonce, ciphertext); err != nil {
		return "", err
	}

	padded, err := xorStream(cipherKey, effectiveNonce(baseNonce, nonce), ciphertext)
	if err != nil {
		return "", err
	}
	return unpad(padded)
}

// effectiveNonce XORs the first 12 bytes of the message nonce into the
// base nonce taken from the conversation key.
func effectiveNonce(baseNonce, nonce []byte) []byte {
	n := make([]byte, baseNonceSize)
	for i := range n {
		n[i] = baseNonce[i] ^ nonce[i]
	}
	return n
}

func xorStream(key, nonce, src []byte) ([]byte, error) {
	c, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		return nil, fmt.Errorf("nwccrypto: chacha20: %w", err)
	}
	dst := make([]byte, len(src))
	c.XORKeyStream(dst, src)
	return dst, nil
}

// paddedLen returns the bucketed length for an unpadded plaintext of n bytes.
func paddedLen(n int) int {
	if n <= minPaddedSize {
		return minPaddedSize
	}
	nextPower := 1 << bits.Len(uint(n-1))
	chunk := 32
	if nextPower > 256 {
		chunk = nextPower / 8
	}
	return chunk * ((n-1)/chunk + 1)
}

func pad(plaintext string) ([]byte, error) {
	n := len(plaintext)
	if n < MinPlaintextSize || n > MaxPlaintextSize {
		return nil, fmt.Errorf("%w: plaintext is %d bytes", ErrEncoding, n)
	}
	out := make([]byte, lengthPrefix+paddedLen(n))
	binary.BigEndian.PutUint16(out, uint16(n))
	copy(out[lengthPrefix:], plaintext)
	return out, nil
}

func unpad(padded []byte) (string, error) {
	if len(padded) < lengthPrefix {
		return "", fmt.Errorf("%w: padded block too short", ErrDecoding)
	}
	n := int(binary.BigEndian.Uint16(padded))
	if n < MinPlaintextSize || lengthPrefix+n > len(padded) {
		return "", fmt.Errorf("%w: embedded length %d", ErrDecoding, n)
	}
	if len(padded) != lengthPrefix+paddedLen(n) {
		return "", fmt.Errorf("%w: padding does not match length %d", ErrDecoding, n)
	}
	return string(padded[lengthPrefix : lengthPrefix+n]), nil
}
