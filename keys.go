package nwc

import (
	"encoding/hex"

	"github.com/gwillem/nwc-go/internal/nostrkey"
)

// Identifier prefixes.
const (
	PublicKeyPrefix = nostrkey.PublicKeyPrefix
	SecretKeyPrefix = nostrkey.SecretKeyPrefix
)

// KeyPair is a secret key and its public key, both as lowercase hex.
type KeyPair struct {
	Secret string
	Public string
}

// GenerateKeyPair returns a new random key pair.
func GenerateKeyPair() (*KeyPair, error) {
	secret, err := nostrkey.GenerateSecret()
	if err != nil {
		return nil, err
	}
	pub, err := nostrkey.PublicKeyHex(secret)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Secret: hex.EncodeToString(secret), Public: pub}, nil
}

// Npub returns the public key as an npub identifier.
func (k *KeyPair) Npub() (string, error) {
	return nostrkey.EncodePublicKey(k.Public)
}

// Nsec returns the secret key as an nsec identifier.
func (k *KeyPair) Nsec() (string, error) {
	return nostrkey.EncodeSecretKey(k.Secret)
}

// KeyPairFromSecret accepts a secret key as hex or nsec and derives its
// public key.
func KeyPairFromSecret(s string) (*KeyPair, error) {
	secret, err := nostrkey.ParseSecret(s)
	if err != nil {
		return nil, err
	}
	pub, err := nostrkey.PublicKeyHex(secret)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Secret: hex.EncodeToString(secret), Public: pub}, nil
}

// EncodeIdentifier encodes a 64-character hex key with prefix ("npub" or "nsec").
func EncodeIdentifier(prefix, keyHex string) (string, error) {
	key, err := nostrkey.DecodeHex(keyHex)
	if err != nil {
		return "", err
	}
	return nostrkey.Encode(prefix, key)
}

// DecodeIdentifier decodes an npub or nsec identifier, verifying its
// checksum, and returns the prefix and hex key.
func DecodeIdentifier(id string) (prefix, keyHex string, err error) {
	prefix, key, err := nostrkey.Decode(id)
	if err != nil {
		return "", "", err
	}
	return prefix, hex.EncodeToString(key), nil
}

// LooksLikeIdentifier is a cheap shape check for npub/nsec strings. It does
// not verify the checksum; use DecodeIdentifier before trusting a key.
func LooksLikeIdentifier(s string) bool {
	return nostrkey.LooksValid(s)
}
