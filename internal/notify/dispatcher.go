package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/navodchik131/luggo-sub000/internal/domain"
	"github.com/navodchik131/luggo-sub000/internal/event"
	"github.com/navodchik131/luggo-sub000/internal/observability"
	"github.com/navodchik131/luggo-sub000/internal/state"
)

// Pusher delivers a stored notification to the recipient's live
// connections. Satisfied by the realtime hub.
type Pusher interface {
	PublishNotification(n state.NotificationRecord)
}

type noopPusher struct{}

func (noopPusher) PublishNotification(state.NotificationRecord) {}

// Dispatcher turns domain events into persisted notifications and pushes
// them to the recipient. It implements event.Sink; delivery failures are
// logged and counted, never returned to the event's originator.
type Dispatcher struct {
	store  state.Store
	pusher Pusher
}

func NewDispatcher(store state.Store, pusher Pusher) *Dispatcher {
	if pusher == nil {
		pusher = noopPusher{}
	}
	return &Dispatcher{store: store, pusher: pusher}
}

// Publish renders and stores a notification for the event's recipient.
// Events without a recipient, or whose recipient is the actor, produce
// nothing.
func (d *Dispatcher) Publish(ctx context.Context, ev event.Event) {
	if ev.RecipientID == "" || ev.RecipientID == ev.ActorID {
		return
	}
	title, message, actionURL, ok := render(ev)
	if !ok {
		return
	}
	n := state.NotificationRecord{
		ID:          uuid.NewString(),
		RecipientID: ev.RecipientID,
		Type:        string(ev.Type),
		Title:       title,
		Message:     message,
		ActionURL:   actionURL,
		CreatedAt:   time.Now().UTC(),
	}
	if err := d.store.CreateNotification(ctx, n); err != nil {
		log.Printf("notify: persist failed type=%s recipient=%s: %v", ev.Type, ev.RecipientID, err)
		observability.Default.IncCounter("notify_failures_total", map[string]string{"type": string(ev.Type)}, 1)
		return
	}
	observability.Default.IncCounter("notify_dispatched_total", map[string]string{"type": string(ev.Type)}, 1)
	d.pusher.PublishNotification(n)
}

func render(ev event.Event) (title, message, actionURL string, ok bool) {
	taskURL := "/tasks/" + ev.TaskID
	switch ev.Type {
	case event.TypeNewBid:
		return "New bid on your task",
			fmt.Sprintf("%q received a bid of %s", ev.TaskTitle, ev.Price),
			taskURL, true
	case event.TypeBidAccepted:
		return "Your bid was accepted",
			fmt.Sprintf("You were chosen for %q", ev.TaskTitle),
			taskURL, true
	case event.TypeBidRejected:
		return "Your bid was declined",
			fmt.Sprintf("Another executor was chosen for %q", ev.TaskTitle),
			taskURL, true
	case event.TypeNewMessage:
		return "New message",
			fmt.Sprintf("New message in %q", ev.TaskTitle),
			fmt.Sprintf("/messages/task/%s/user/%s", ev.TaskID, ev.ActorID), true
	case event.TypeTaskCompleted:
		return "Task awaits your confirmation",
			fmt.Sprintf("The executor finished %q", ev.TaskTitle),
			taskURL, true
	case event.TypeTaskStatusChanged:
		return "Task status changed",
			fmt.Sprintf("%q is now %s", ev.TaskTitle, ev.TaskStatus),
			taskURL, true
	case event.TypeReviewReceived:
		return "You received a review",
			fmt.Sprintf("Rated %d/5 for %q", ev.Rating, ev.TaskTitle),
			taskURL, true
	case event.TypeSystem:
		return "Notice", ev.TaskTitle, "", true
	default:
		return "", "", "", false
	}
}

// List returns the recipient's notifications, newest first. unreadOnly
// narrows to unread ones; a positive limit caps the result.
func (d *Dispatcher) List(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]state.NotificationRecord, error) {
	all, err := d.store.ListNotifications(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	out := make([]state.NotificationRecord, 0, len(all))
	for _, n := range all {
		if unreadOnly && n.IsRead {
			continue
		}
		out = append(out, n)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// MarkRead flips one notification to read. Only its recipient may do so.
func (d *Dispatcher) MarkRead(ctx context.Context, notificationID, userID string) error {
	n, okFound, err := d.store.GetNotification(ctx, notificationID)
	if err != nil {
		return err
	}
	if !okFound {
		return &domain.NotFoundError{Kind: "notification", ID: notificationID}
	}
	if n.RecipientID != userID {
		return &domain.ForbiddenError{Reason: "notification belongs to another user"}
	}
	return d.store.MarkNotificationRead(ctx, notificationID)
}

// MarkAllRead flips every unread notification of the user to read.
func (d *Dispatcher) MarkAllRead(ctx context.Context, userID string) error {
	return d.store.MarkAllNotificationsRead(ctx, userID)
}

// Delete removes one notification. Only its recipient may do so.
func (d *Dispatcher) Delete(ctx context.Context, notificationID, userID string) error {
	n, okFound, err := d.store.GetNotification(ctx, notificationID)
	if err != nil {
		return err
	}
	if !okFound {
		return &domain.NotFoundError{Kind: "notification", ID: notificationID}
	}
	if n.RecipientID != userID {
		return &domain.ForbiddenError{Reason: "notification belongs to another user"}
	}
	return d.store.DeleteNotification(ctx, notificationID)
}
