package events

import "context"

// StreamRelay is the pub/sub channel carrying relay and escrow events.
const StreamRelay = "events:relay"

// Event types
const (
	EventActionAuthorized  = "action_authorized"
	EventBidStatusChanged  = "bid_status_changed"
	EventMilestoneReleased = "milestone_released"
	EventJobStatusChanged  = "job_status_changed"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}

// NopPublisher drops events; used when no redis is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, stream string, event Event) error { return nil }
