package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/navodchik131/luggo-sub000/internal/domain"
	"github.com/navodchik131/luggo-sub000/internal/event"
	"github.com/navodchik131/luggo-sub000/internal/state"
)

type capturePusher struct {
	pushed []state.NotificationRecord
}

func (p *capturePusher) PublishNotification(n state.NotificationRecord) {
	p.pushed = append(p.pushed, n)
}

func TestDispatcherPersistsAndPushes(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	pusher := &capturePusher{}
	d := NewDispatcher(store, pusher)

	d.Publish(ctx, event.Event{
		Type:        event.TypeNewBid,
		TaskID:      "task-1",
		TaskTitle:   "Two-bedroom move",
		ActorID:     "executor-1",
		RecipientID: "customer-1",
		Price:       "15000",
	})

	list, err := d.List(ctx, "customer-1", false, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("stored %d notifications, want 1", len(list))
	}
	n := list[0]
	if n.Type != "new_bid" {
		t.Fatalf("type = %q", n.Type)
	}
	if n.ActionURL != "/tasks/task-1" {
		t.Fatalf("action url = %q", n.ActionURL)
	}
	if n.IsRead {
		t.Fatal("new notification marked read")
	}
	if len(pusher.pushed) != 1 || pusher.pushed[0].ID != n.ID {
		t.Fatalf("pushed = %+v", pusher.pushed)
	}
}

func TestDispatcherSkipsSelfAndEmptyRecipient(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	d := NewDispatcher(store, nil)

	d.Publish(ctx, event.Event{Type: event.TypeNewTask, TaskID: "task-1", ActorID: "customer-1"})
	d.Publish(ctx, event.Event{
		Type:        event.TypeTaskStatusChanged,
		TaskID:      "task-1",
		ActorID:     "customer-1",
		RecipientID: "customer-1",
	})

	list, err := d.List(ctx, "customer-1", false, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("stored %d notifications, want 0", len(list))
	}
}

func TestDispatcherMessageActionURLTargetsSender(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	d := NewDispatcher(store, nil)

	d.Publish(ctx, event.Event{
		Type:        event.TypeNewMessage,
		TaskID:      "task-1",
		TaskTitle:   "Two-bedroom move",
		ActorID:     "executor-1",
		RecipientID: "customer-1",
		MessageID:   "msg-1",
		PeerID:      "executor-1",
	})

	list, _ := d.List(ctx, "customer-1", false, 0)
	if len(list) != 1 {
		t.Fatalf("stored %d notifications, want 1", len(list))
	}
	if got, want := list[0].ActionURL, "/messages/task/task-1/user/executor-1"; got != want {
		t.Fatalf("action url = %q, want %q", got, want)
	}
}

func TestDispatcherReadStateManagement(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	d := NewDispatcher(store, nil)

	for i := 0; i < 3; i++ {
		d.Publish(ctx, event.Event{
			Type:        event.TypeNewBid,
			TaskID:      "task-1",
			TaskTitle:   "Two-bedroom move",
			ActorID:     "executor-1",
			RecipientID: "customer-1",
			Price:       "15000",
		})
	}
	list, _ := d.List(ctx, "customer-1", true, 0)
	if len(list) != 3 {
		t.Fatalf("unread = %d, want 3", len(list))
	}

	if err := d.MarkRead(ctx, list[0].ID, "customer-1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	list, _ = d.List(ctx, "customer-1", true, 0)
	if len(list) != 2 {
		t.Fatalf("unread after mark = %d, want 2", len(list))
	}

	if err := d.MarkAllRead(ctx, "customer-1"); err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	list, _ = d.List(ctx, "customer-1", true, 0)
	if len(list) != 0 {
		t.Fatalf("unread after mark all = %d, want 0", len(list))
	}
}

func TestDispatcherForeignNotificationForbidden(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	d := NewDispatcher(store, nil)

	d.Publish(ctx, event.Event{
		Type:        event.TypeNewBid,
		TaskID:      "task-1",
		TaskTitle:   "Two-bedroom move",
		ActorID:     "executor-1",
		RecipientID: "customer-1",
	})
	list, _ := d.List(ctx, "customer-1", false, 0)
	if len(list) != 1 {
		t.Fatalf("stored %d notifications, want 1", len(list))
	}

	var forbidden *domain.ForbiddenError
	if err := d.MarkRead(ctx, list[0].ID, "executor-1"); !errors.As(err, &forbidden) {
		t.Fatalf("mark read by stranger: %v", err)
	}
	if err := d.Delete(ctx, list[0].ID, "executor-1"); !errors.As(err, &forbidden) {
		t.Fatalf("delete by stranger: %v", err)
	}

	var notFound *domain.NotFoundError
	if err := d.Delete(ctx, "missing", "customer-1"); !errors.As(err, &notFound) {
		t.Fatalf("delete missing: %v", err)
	}

	if err := d.Delete(ctx, list[0].ID, "customer-1"); err != nil {
		t.Fatalf("delete by owner: %v", err)
	}
	list, _ = d.List(ctx, "customer-1", false, 0)
	if len(list) != 0 {
		t.Fatalf("stored after delete = %d, want 0", len(list))
	}
}
