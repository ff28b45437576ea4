package wire

import (
	"encoding/json"
	"fmt"

	"github.com/gatewave/gatewave-go/pkg/barrier"
)

// Feed identifies one of the backend's realtime subscriptions.
type Feed string

const (
	// FeedDevice streams full device state snapshots.
	FeedDevice Feed = "device"

	// FeedEvents streams discrete event items.
	FeedEvents Feed = "events"
)

// Valid reports whether f names a known feed.
func (f Feed) Valid() bool {
	return f == FeedDevice || f == FeedEvents
}

// Well-known eventsFeed item identifiers. The feed carries many more; the
// client only acts on these.
const (
	// EventBarrierObstructed is emitted when movement was blocked by an
	// obstruction.
	EventBarrierObstructed = "event-error-barrier-obstructed"
)

const deviceFeedSubscription = `subscription DevicesStatesFeed($receiver: ID!) {
  devicesStatesFeed(receiverId: $receiver) {
    receiverId
    item {
      deviceId
      desired
      reported
      timestamp
      version
      connectionState { connected updatedTimestamp }
    }
  }
}`

const eventsFeedSubscription = `subscription EventsFeed($receiver: ID!) {
  eventsFeed(receiverId: $receiver) {
    receiverId
    item {
      eventId
      deviceId
      timestamp
    }
  }
}`

// SubscribeRequest builds the GraphQL subscription document for a feed.
// The receiver is the account or site identifier events are scoped to.
func SubscribeRequest(feed Feed, receiverID string) (GraphQLRequest, error) {
	var query string
	switch feed {
	case FeedDevice:
		query = deviceFeedSubscription
	case FeedEvents:
		query = eventsFeedSubscription
	default:
		return GraphQLRequest{}, fmt.Errorf("unknown feed %q", feed)
	}
	return GraphQLRequest{
		Query:     query,
		Variables: map[string]any{"receiver": receiverID},
	}, nil
}

// FeedEvent is one eventsFeed item.
type FeedEvent struct {
	EventID   string `json:"eventId"`
	DeviceID  string `json:"deviceId"`
	Timestamp string `json:"timestamp"`
}

// FeedUpdate is the decoded payload of one data frame. Exactly one of State
// and Event is set, matching which feed produced the frame.
type FeedUpdate struct {
	// State is the new snapshot, for devicesStatesFeed frames.
	State *barrier.State

	// Event is the event item, for eventsFeed frames.
	Event *FeedEvent
}

// DecodeFeedUpdate parses a data frame payload from either feed. Payloads
// carrying neither feed (or GraphQL errors) return an error.
func DecodeFeedUpdate(raw json.RawMessage) (*FeedUpdate, error) {
	var payload struct {
		Data struct {
			DevicesStatesFeed *struct {
				Item stateDocument `json:"item"`
			} `json:"devicesStatesFeed"`
			EventsFeed *struct {
				Item FeedEvent `json:"item"`
			} `json:"eventsFeed"`
		} `json:"data"`
		Errors []GraphQLError `json:"errors"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode feed payload: %w", err)
	}
	if len(payload.Errors) > 0 {
		return nil, &payload.Errors[0]
	}

	switch {
	case payload.Data.DevicesStatesFeed != nil:
		state, err := payload.Data.DevicesStatesFeed.Item.toState()
		if err != nil {
			return nil, err
		}
		return &FeedUpdate{State: &state}, nil
	case payload.Data.EventsFeed != nil:
		event := payload.Data.EventsFeed.Item
		return &FeedUpdate{Event: &event}, nil
	default:
		return nil, fmt.Errorf("feed payload carries no known feed")
	}
}
