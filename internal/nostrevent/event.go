// Package nostrevent builds, signs and verifies the signed message records
// carried by relays.
package nostrevent

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/gwillem/nwc-go/internal/nostrkey"
)

// Wallet-connect event kinds.
const (
	KindInfo         = 13194
	KindRequest      = 23194
	KindResponse     = 23195
	KindNotification = 23196

	// KindClientAuth answers a relay AUTH challenge.
	KindClientAuth = 22242
)

// ErrInvalidEvent is returned when an event's id or signature does not verify.
var ErrInvalidEvent = errors.New("nostrevent: invalid event")

// Tag is one tag entry, e.g. ["p", "<hex pubkey>"].
type Tag []string

// Tags is the ordered tag list of an event.
type Tags []Tag

// Value returns the second element of the first tag named name.
func (t Tags) Value(name string) string {
	for _, tag := range t {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1]
		}
	}
	return ""
}

// Event is an immutable, signed message record.
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      Tags   `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// Serialize returns the canonical form hashed into the id:
// [0, pubkey, created_at, kind, tags, content].
func (e *Event) Serialize() []byte {
	var b strings.Builder
	b.WriteString(`[0,`)
	writeString(&b, e.PubKey)
	b.WriteByte(',')
	b.WriteString(strconv.FormatInt(e.CreatedAt, 10))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(e.Kind))
	b.WriteString(`,[`)
	for i, tag := range e.Tags {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('[')
		for j, v := range tag {
			if j > 0 {
				b.WriteByte(',')
			}
			writeString(&b, v)
		}
		b.WriteByte(']')
	}
	b.WriteString(`],`)
	writeString(&b, e.Content)
	b.WriteByte(']')
	return []byte(b.String())
}

// ComputeID returns the hex SHA-256 of the canonical serialization.
func (e *Event) ComputeID() string {
	sum := sha256.Sum256(e.Serialize())
	return hex.EncodeToString(sum[:])
}

// Sign sets PubKey, ID and Sig using secret. The event must not be
// modified afterwards.
func (e *Event) Sign(secret []byte) error {
	pub, err := nostrkey.PublicKeyHex(secret)
	if err != nil {
		return fmt.Errorf("nostrevent: sign: %w", err)
	}
	if e.Tags == nil {
		e.Tags = Tags{}
	}
	e.PubKey = pub
	e.ID = e.ComputeID()

	id, _ := hex.DecodeString(e.ID)
	priv, _ := btcec.PrivKeyFromBytes(secret)
	sig, err := schnorr.Sign(priv, id)
	if err != nil {
		return fmt.Errorf("nostrevent: sign: %w", err)
	}
	e.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

// Verify checks that ID matches the content and that Sig is a valid
// signature over it by PubKey.
func (e *Event) Verify() error {
	if e.ComputeID() != e.ID {
		return fmt.Errorf("%w: id mismatch", ErrInvalidEvent)
	}
	id, err := hex.DecodeString(e.ID)
	if err != nil {
		return fmt.Errorf("%w: id: %v", ErrInvalidEvent, err)
	}
	pubBytes, err := hex.DecodeString(e.PubKey)
	if err != nil {
		return fmt.Errorf("%w: pubkey: %v", ErrInvalidEvent, err)
	}
	pub, err := schnorr.ParsePubKey(pubBytes)
	if err != nil {
		return fmt.Errorf("%w: pubkey: %v", ErrInvalidEvent, err)
	}
	sigBytes, err := hex.DecodeString(e.Sig)
	if err != nil {
		return fmt.Errorf("%w: sig: %v", ErrInvalidEvent, err)
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return fmt.Errorf("%w: sig: %v", ErrInvalidEvent, err)
	}
	if !sig.Verify(id, pub) {
		return fmt.Errorf("%w: bad signature", ErrInvalidEvent)
	}
	return nil
}

// CreatedTime returns CreatedAt as a time.Time.
func (e *Event) CreatedTime() time.Time {
	return time.Unix(e.CreatedAt, 0)
}

// writeString writes s as a JSON string with the minimal escaping used
// for event ids: only quote, backslash and control characters are escaped.
func writeString(b *strings.Builder, s string) {
	const hexDigits = "0123456789abcdef"
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if c < 0x20 {
				b.WriteString(`\u00`)
				b.WriteByte(hexDigits[c>>4])
				b.WriteByte(hexDigits[c&0xf])
				continue
			}
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
}
