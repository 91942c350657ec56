package nostrevent

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gwillem/nwc-go/internal/nostrkey"
	"github.com/gwillem/nwc-go/internal/nwccrypto"
)

// now is replaced in tests.
var now = time.Now

// RequestPayload is the plaintext of a Request event.
type RequestPayload struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

// BuildRequest encrypts {method, params} to recipient, tags it
// ["p", recipient] and signs it with secret.
func BuildRequest(method string, params any, secret []byte, recipient string) (*Event, error) {
	if params == nil {
		params = struct{}{}
	}
	payload, err := json.Marshal(RequestPayload{Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("nostrevent: marshal request: %w", err)
	}
	return BuildEncrypted(KindRequest, Tags{{"p", recipient}}, string(payload), secret, recipient)
}

// BuildEncrypted encrypts plaintext for recipient and returns a signed
// event of the given kind.
func BuildEncrypted(kind int, tags Tags, plaintext string, secret []byte, recipient string) (*Event, error) {
	recipientKey, err := nostrkey.DecodeHex(recipient)
	if err != nil {
		return nil, fmt.Errorf("nostrevent: recipient: %w", err)
	}
	key, err := nwccrypto.ConversationKey(secret, recipientKey)
	if err != nil {
		return nil, fmt.Errorf("nostrevent: conversation key: %w", err)
	}
	content, err := nwccrypto.Encrypt(plaintext, key)
	if err != nil {
		return nil, fmt.Errorf("nostrevent: encrypt: %w", err)
	}
	return Build(kind, tags, content, secret)
}

// Build returns a signed event with the given fields and the current time.
func Build(kind int, tags Tags, content string, secret []byte) (*Event, error) {
	ev := &Event{
		CreatedAt: now().Unix(),
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
	if err := ev.Sign(secret); err != nil {
		return nil, err
	}
	return ev, nil
}

// Decrypt decrypts the content of an event addressed to the holder of
// secret. The event author is the other side of the conversation.
func (e *Event) Decrypt(secret []byte) (string, error) {
	author, err := hex.DecodeString(e.PubKey)
	if err != nil {
		return "", fmt.Errorf("nostrevent: author: %w", err)
	}
	key, err := nwccrypto.ConversationKey(secret, author)
	if err != nil {
		return "", fmt.Errorf("nostrevent: conversation key: %w", err)
	}
	plaintext, err := nwccrypto.Decrypt(e.Content, key)
	if err != nil {
		return "", fmt.Errorf("nostrevent: decrypt: %w", err)
	}
	return plaintext, nil
}
