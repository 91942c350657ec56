package nwccrypto

import (
	"crypto/hmac"
	"crypto/sha256"
)

// computeMAC returns HMAC-SHA256(key, parts...).
func computeMAC(key []byte, parts ...[]byte) []byte {
	mac := hmac.New(sha256.New, key)
	for _, p := range parts {
		mac.Write(p)
	}
	return mac.Sum(nil)
}

// verifyMAC checks expected against HMAC-SHA256(key, parts...) in constant time.
func verifyMAC(key, expected []byte, parts ...[]byte) error {
	if !hmac.Equal(computeMAC(key, parts...), expected) {
		return ErrAuthentication
	}
	return nil
}
