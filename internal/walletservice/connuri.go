package walletservice

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gwillem/nwc-go/internal/nostrkey"
)

// URIScheme is the scheme of wallet connection URIs.
const URIScheme = "nostr+walletconnect"

// Descriptor is the parsed form of a connection URI. All keys are lowercase hex.
type Descriptor struct {
	WalletPubKey     string
	RelayURL         string
	Secret           string
	LightningAddress string
}

// ParseConnectionURI parses
//
//	nostr+walletconnect://<wallet pubkey>?relay=<url>&secret=<client secret>[&lud16=<address>]
//
// Either every required field is present and well-formed or an error
// wrapping nostrkey.ErrFormat is returned. Keys are checked for hex shape
// only; curve validity is checked when they are first used.
func ParseConnectionURI(raw string) (*Descriptor, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("walletservice: connection uri: %w: %v", nostrkey.ErrFormat, err)
	}
	if !strings.EqualFold(u.Scheme, URIScheme) {
		return nil, fmt.Errorf("walletservice: connection uri: %w: scheme %q", nostrkey.ErrFormat, u.Scheme)
	}

	// Without "//" the key ends up in Opaque.
	pub := u.Host
	if pub == "" {
		pub = u.Opaque
	}
	if !isHexKey(pub) {
		return nil, fmt.Errorf("walletservice: connection uri: %w: wallet pubkey", nostrkey.ErrFormat)
	}

	q := u.Query()
	relay := q.Get("relay")
	if relay == "" {
		return nil, fmt.Errorf("walletservice: connection uri: %w: missing relay", nostrkey.ErrFormat)
	}
	ru, err := url.Parse(relay)
	if err != nil || (ru.Scheme != "ws" && ru.Scheme != "wss") || ru.Host == "" {
		return nil, fmt.Errorf("walletservice: connection uri: %w: relay %q", nostrkey.ErrFormat, relay)
	}
	secret := q.Get("secret")
	if !isHexKey(secret) {
		return nil, fmt.Errorf("walletservice: connection uri: %w: secret", nostrkey.ErrFormat)
	}

	return &Descriptor{
		WalletPubKey:     strings.ToLower(pub),
		RelayURL:         relay,
		Secret:           strings.ToLower(secret),
		LightningAddress: q.Get("lud16"),
	}, nil
}

// String formats d back into a connection URI.
func (d *Descriptor) String() string {
	q := url.Values{}
	q.Set("relay", d.RelayURL)
	q.Set("secret", d.Secret)
	if d.LightningAddress != "" {
		q.Set("lud16", d.LightningAddress)
	}
	return URIScheme + "://" + d.WalletPubKey + "?" + q.Encode()
}

// ClientPubKey returns the hex x-only public key of the client secret.
func (d *Descriptor) ClientPubKey() (string, error) {
	secret, err := nostrkey.DecodeHex(d.Secret)
	if err != nil {
		return "", err
	}
	return nostrkey.PublicKeyHex(secret)
}

func isHexKey(s string) bool {
	if len(s) != 2*nostrkey.KeySize {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}
