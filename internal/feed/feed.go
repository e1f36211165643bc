// Package feed delivers row-level item mutation events to per-user
// subscribers. The primary store emits events through a NOTIFY trigger; the
// listener decodes them and the hub fans them out. Delivery is best-effort
// and carries no gap-recovery guarantee, so subscribers must resynchronize
// with a full re-fetch whenever the transport reconnects.
package feed

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"catcher/internal/item"
)

// Kind is the mutation type of a feed event.
type Kind string

const (
	KindInserted Kind = "inserted"
	KindUpdated  Kind = "updated"
	KindDeleted  Kind = "deleted"
)

// Event is one row-level mutation. Item is set for inserted/updated;
// ItemID alone is set for deleted.
type Event struct {
	Kind   Kind       `json:"kind"`
	UserID string     `json:"user_id"`
	Item   *item.Item `json:"item,omitempty"`
	ItemID uuid.UUID  `json:"item_id,omitempty"`
}

// DecodeEvent parses a NOTIFY payload produced by the items trigger.
func DecodeEvent(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("decode feed event: %w", err)
	}
	switch ev.Kind {
	case KindInserted, KindUpdated:
		if ev.Item == nil {
			return Event{}, fmt.Errorf("feed event %s missing item", ev.Kind)
		}
		ev.ItemID = ev.Item.ID
	case KindDeleted:
		if ev.ItemID == uuid.Nil {
			return Event{}, fmt.Errorf("feed event deleted missing item_id")
		}
	default:
		return Event{}, fmt.Errorf("unknown feed event kind %q", ev.Kind)
	}
	if ev.UserID == "" {
		return Event{}, fmt.Errorf("feed event missing user_id")
	}
	return ev, nil
}

// Subscriber receives events for a single user. Apply must be idempotent:
// the session's own mutations land in its cache before the feed echo arrives.
type Subscriber interface {
	Apply(Event)
	// Resync is called after a transport loss; the subscriber must re-fetch
	// its full state because events may have been missed.
	Resync()
}
