package event

import "context"

// Type enumerates the domain events the core emits. The values double as
// notification types, so they match what clients render.
type Type string

const (
	TypeNewTask           Type = "new_task"
	TypeNewBid            Type = "new_bid"
	TypeBidAccepted       Type = "bid_accepted"
	TypeBidRejected       Type = "bid_rejected"
	TypeNewMessage        Type = "new_message"
	TypeTaskStatusChanged Type = "task_status_changed"
	TypeTaskCompleted     Type = "task_completed"
	TypeReviewReceived    Type = "review_received"
	TypeSystem            Type = "system"
)

// Event describes something that already happened. Fields beyond Type,
// TaskID and RecipientID are filled per event kind.
type Event struct {
	Type        Type
	TaskID      string
	TaskTitle   string
	TaskStatus  string
	ActorID     string
	RecipientID string
	BidID       string
	Price       string
	MessageID   string
	PeerID      string
	Rating      int
}

// Sink consumes domain events after the originating write has committed.
// Implementations must not fail the caller: delivery problems are their own
// to log and count.
type Sink interface {
	Publish(ctx context.Context, ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev Event)

func (f SinkFunc) Publish(ctx context.Context, ev Event) { f(ctx, ev) }

// Discard drops every event. Useful in tests that only care about state.
var Discard Sink = SinkFunc(func(context.Context, Event) {})
