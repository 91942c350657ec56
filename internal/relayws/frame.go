package relayws

import (
	"encoding/json"
	"fmt"

	"github.com/gwillem/nwc-go/internal/nostrevent"
)

// Inbound frame labels.
const (
	FrameEvent  = "EVENT"
	FrameEOSE   = "EOSE"
	FrameOK     = "OK"
	FrameNotice = "NOTICE"
	FrameClosed = "CLOSED"
	FrameAuth   = "AUTH"
)

// Filter selects events for a subscription.
type Filter struct {
	Kinds   []int    `json:"kinds,omitempty"`
	Authors []string `json:"authors,omitempty"`
	PTags   []string `json:"#p,omitempty"`
	ETags   []string `json:"#e,omitempty"`
	Since   int64    `json:"since,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

// Frame is a parsed relay-to-client message. Which fields are set depends
// on Type:
//
//	EVENT   SubscriptionID, Event
//	EOSE    SubscriptionID
//	OK      EventID, Accepted, Message
//	NOTICE  Message
//	CLOSED  SubscriptionID, Message
//	AUTH    Challenge
type Frame struct {
	Type           string
	SubscriptionID string
	Event          *nostrevent.Event
	EventID        string
	Accepted       bool
	Message        string
	Challenge      string
}

// ParseFrame decodes one relay message. Unknown labels are returned with
// only Type set.
func ParseFrame(data []byte) (*Frame, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, fmt.Errorf("relayws: frame: %w", err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("relayws: frame: empty array")
	}
	f := &Frame{}
	if err := json.Unmarshal(parts[0], &f.Type); err != nil {
		return nil, fmt.Errorf("relayws: frame label: %w", err)
	}

	need := func(n int) error {
		if len(parts) < n {
			return fmt.Errorf("relayws: %s frame has %d elements, want %d", f.Type, len(parts), n)
		}
		return nil
	}
	str := func(i int, dst *string) error {
		if err := json.Unmarshal(parts[i], dst); err != nil {
			return fmt.Errorf("relayws: %s frame element %d: %w", f.Type, i, err)
		}
		return nil
	}

	switch f.Type {
	case FrameEvent:
		if err := need(3); err != nil {
			return nil, err
		}
		if err := str(1, &f.SubscriptionID); err != nil {
			return nil, err
		}
		f.Event = new(nostrevent.Event)
		if err := json.Unmarshal(parts[2], f.Event); err != nil {
			return nil, fmt.Errorf("relayws: EVENT payload: %w", err)
		}
	case FrameEOSE:
		if err := need(2); err != nil {
			return nil, err
		}
		if err := str(1, &f.SubscriptionID); err != nil {
			return nil, err
		}
	case FrameOK:
		if err := need(3); err != nil {
			return nil, err
		}
		if err := str(1, &f.EventID); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(parts[2], &f.Accepted); err != nil {
			return nil, fmt.Errorf("relayws: OK status: %w", err)
		}
		if len(parts) > 3 {
			if err := str(3, &f.Message); err != nil {
				return nil, err
			}
		}
	case FrameNotice:
		if err := need(2); err != nil {
			return nil, err
		}
		if err := str(1, &f.Message); err != nil {
			return nil, err
		}
	case FrameClosed:
		if err := need(2); err != nil {
			return nil, err
		}
		if err := str(1, &f.SubscriptionID); err != nil {
			return nil, err
		}
		if len(parts) > 2 {
			if err := str(2, &f.Message); err != nil {
				return nil, err
			}
		}
	case FrameAuth:
		if err := need(2); err != nil {
			return nil, err
		}
		if err := str(1, &f.Challenge); err != nil {
			return nil, err
		}
	}
	return f, nil
}
