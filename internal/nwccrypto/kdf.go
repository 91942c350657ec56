// Package nwccrypto implements the wallet-connect payload encryption:
// secp256k1 key agreement, HKDF key derivation and the versioned
// ChaCha20 + HMAC-SHA256 blob format.
package nwccrypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"golang.org/x/crypto/hkdf"
)

const (
	kdfSalt = "nip44-v2"

	// ConversationKeySize is cipher key (32) + base nonce (12) + MAC key (32).
	ConversationKeySize = 76

	cipherKeySize = 32
	baseNonceSize = 12
	macKeySize    = 32
)

// ErrInvalidKey is returned when a secret or public key is not usable on secp256k1.
var ErrInvalidKey = errors.New("nwccrypto: invalid key")

// ConversationKey derives the 76-byte key block shared by the holder of
// secret and the owner of the x-only public key pub. Both sides of a
// conversation derive the same block.
func ConversationKey(secret, pub []byte) ([]byte, error) {
	prk, err := conversationPRK(secret, pub)
	if err != nil {
		return nil, err
	}
	key := make([]byte, ConversationKeySize)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, prk, nil), key); err != nil {
		return nil, fmt.Errorf("nwccrypto: expand: %w", err)
	}
	return key, nil
}

// conversationPRK is the HKDF extract step over the ECDH x-coordinate.
func conversationPRK(secret, pub []byte) ([]byte, error) {
	shared, err := sharedX(secret, pub)
	if err != nil {
		return nil, err
	}
	return hkdf.Extract(sha256.New, shared, []byte(kdfSalt)), nil
}

// sharedX returns the x-coordinate of secret*pub.
func sharedX(secret, pub []byte) ([]byte, error) {
	if len(secret) != 32 {
		return nil, fmt.Errorf("%w: secret is %d bytes", ErrInvalidKey, len(secret))
	}
	var k btcec.ModNScalar
	if overflow := k.SetByteSlice(secret); overflow || k.IsZero() {
		return nil, fmt.Errorf("%w: secret out of range", ErrInvalidKey)
	}
	pubKey, err := schnorr.ParsePubKey(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return btcec.GenerateSharedSecret(btcec.PrivKeyFromScalar(&k), pubKey), nil
}

// splitKey returns the cipher key, base nonce and MAC key regions.
func splitKey(conversationKey []byte) (cipherKey, baseNonce, macKey []byte, err error) {
	if len(conversationKey) != ConversationKeySize {
		return nil, nil, nil, fmt.Errorf("%w: conversation key is %d bytes, want %d",
			ErrInvalidKey, len(conversationKey), ConversationKeySize)
	}
	cipherKey = conversationKey[:cipherKeySize]
	baseNonce = conversationKey[cipherKeySize : cipherKeySize+baseNonceSize]
	macKey = conversationKey[cipherKeySize+baseNonceSize:]
	return cipherKey, baseNonce, macKey, nil
}
