package realtime

import (
	"context"

	"github.com/navodchik131/luggo-sub000/pkg/luggoapi"
)

// Kind discriminates what an envelope carries.
type Kind string

const (
	KindMessage      Kind = "new_message"
	KindNotification Kind = "notification"
)

// Envelope is the unit of realtime delivery. Message envelopes are scoped
// to a task room, notification envelopes to a recipient's user channel.
type Envelope struct {
	Kind         Kind                   `json:"kind"`
	TaskID       string                 `json:"task_id,omitempty"`
	RecipientID  string                 `json:"recipient_id,omitempty"`
	Message      *luggoapi.Message      `json:"message,omitempty"`
	Notification *luggoapi.Notification `json:"notification,omitempty"`
}

// Handler consumes envelopes on the subscribing side of a bus.
type Handler func(env Envelope)

// Bus decouples publishing an envelope from delivering it to local
// connections, so several broker instances can share one event stream.
// Delivery is at-least-once; consumers dedupe by id.
type Bus interface {
	Subscribe(h Handler)
	Publish(ctx context.Context, env Envelope) error
	Start(ctx context.Context) error
	Stop() error
	Backend() string
}

// MemoryBus is the single-process bus: publish hands the envelope straight
// to the subscriber.
type MemoryBus struct {
	h Handler
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

func (b *MemoryBus) Subscribe(h Handler) { b.h = h }

func (b *MemoryBus) Publish(_ context.Context, env Envelope) error {
	if b.h != nil {
		b.h(env)
	}
	return nil
}

func (b *MemoryBus) Start(context.Context) error { return nil }
func (b *MemoryBus) Stop() error                 { return nil }
func (b *MemoryBus) Backend() string             { return "memory" }
