package messaging

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/navodchik131/luggo-sub000/internal/domain"
	"github.com/navodchik131/luggo-sub000/internal/event"
	"github.com/navodchik131/luggo-sub000/internal/observability"
	"github.com/navodchik131/luggo-sub000/internal/state"
)

const maxMessageLen = 500

// MessagePublisher receives a stored message for live task-room delivery.
// Delivery is best effort: failures are the publisher's to log, never the
// sender's.
type MessagePublisher interface {
	PublishMessage(msg state.MessageRecord)
}

type noopPublisher struct{}

func (noopPublisher) PublishMessage(state.MessageRecord) {}

// Service persists per-task conversations and tracks unread watermarks.
type Service struct {
	store state.Store
	hub   MessagePublisher
	sink  event.Sink
}

func NewService(store state.Store, hub MessagePublisher, sink event.Sink) *Service {
	if hub == nil {
		hub = noopPublisher{}
	}
	if sink == nil {
		sink = event.Discard
	}
	return &Service{store: store, hub: hub, sink: sink}
}

// Participants is the resolved pair of chat parties for a task. The
// executor side is empty until a bid is accepted.
type Participants struct {
	CustomerID string
	ExecutorID string
}

// ChatParticipants resolves who the canonical parties of a task's chat are,
// once, instead of every caller re-deriving the counterpart from role
// comparisons.
func (s *Service) ChatParticipants(ctx context.Context, taskID string) (Participants, error) {
	task, ok, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return Participants{}, err
	}
	if !ok {
		return Participants{}, &domain.NotFoundError{Kind: "task", ID: taskID}
	}
	p := Participants{CustomerID: task.OwnerID}
	if accepted, ok, err := s.store.GetAcceptedBid(ctx, taskID); err != nil {
		return Participants{}, err
	} else if ok {
		p.ExecutorID = accepted.ExecutorID
	}
	return p, nil
}

// SendMessage appends an immutable message and bumps the receiver's unread
// counter in one atomic store step, then fans the message out to the task
// room and the notification pipeline.
func (s *Service) SendMessage(ctx context.Context, taskID, senderID, receiverID, text string) (state.MessageRecord, error) {
	ctx, span := observability.StartSpan(ctx, "messaging.send_message",
		attribute.String("task.id", taskID),
	)
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return state.MessageRecord{}, &domain.ValidationError{Fields: map[string]string{"text": "must not be empty"}}
	}
	if utf8.RuneCountInString(text) > maxMessageLen {
		return state.MessageRecord{}, &domain.ValidationError{Fields: map[string]string{"text": "must be at most 500 characters"}}
	}
	if senderID == receiverID {
		return state.MessageRecord{}, &domain.ValidationError{Fields: map[string]string{"receiver_id": "cannot message yourself"}}
	}

	task, ok, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return state.MessageRecord{}, err
	}
	if !ok {
		return state.MessageRecord{}, &domain.NotFoundError{Kind: "task", ID: taskID}
	}
	for _, userID := range []string{senderID, receiverID} {
		allowed, err := s.isParty(ctx, task, userID, otherOf(userID, senderID, receiverID))
		if err != nil {
			return state.MessageRecord{}, err
		}
		if !allowed {
			return state.MessageRecord{}, &domain.ForbiddenError{Reason: "user " + userID + " is not a party to this task"}
		}
	}

	msg := state.MessageRecord{
		ID:         uuid.NewString(),
		TaskID:     taskID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return state.MessageRecord{}, err
	}

	observability.Default.IncCounter("messaging_sent_total", nil, 1)
	s.hub.PublishMessage(msg)
	s.sink.Publish(ctx, event.Event{
		Type:        event.TypeNewMessage,
		TaskID:      taskID,
		TaskTitle:   task.Title,
		ActorID:     senderID,
		RecipientID: receiverID,
		MessageID:   msg.ID,
		PeerID:      senderID,
	})
	return msg, nil
}

// ListMessages returns the conversation between userID and otherID in send
// order and, as a side effect, clears userID's unread counter for otherID
// on this task. List and reset happen as one atomic store step so a
// concurrently arriving increment is never lost.
func (s *Service) ListMessages(ctx context.Context, taskID, userID, otherID string) ([]state.MessageRecord, error) {
	ctx, span := observability.StartSpan(ctx, "messaging.list_messages",
		attribute.String("task.id", taskID),
	)
	defer span.End()

	task, ok, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &domain.NotFoundError{Kind: "task", ID: taskID}
	}
	allowed, err := s.isParty(ctx, task, userID, otherID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, &domain.ForbiddenError{Reason: "user " + userID + " is not a party to this task"}
	}
	return s.store.ListConversation(ctx, taskID, userID, otherID, true)
}

// UnreadCount is the user's global badge: unread messages summed across
// all (task, peer) pairs.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.store.TotalUnread(ctx, userID)
}

// Chat is one conversation summary for the chat list.
type Chat struct {
	TaskID      string
	TaskTitle   string
	TaskStatus  string
	PeerID      string
	LastMessage state.MessageRecord
	Unread      int
}

// ListChats returns one entry per (task, peer) pair involving the user,
// newest conversation first.
func (s *Service) ListChats(ctx context.Context, userID string) ([]Chat, error) {
	records, err := s.store.ListChats(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Chat, 0, len(records))
	for _, r := range records {
		chat := Chat{
			TaskID:      r.TaskID,
			PeerID:      r.PeerID,
			LastMessage: r.LastMessage,
			Unread:      r.Unread,
		}
		if task, ok, err := s.store.GetTask(ctx, r.TaskID); err != nil {
			return nil, err
		} else if ok {
			chat.TaskTitle = task.Title
			chat.TaskStatus = task.Status
		}
		out = append(out, chat)
	}
	return out, nil
}

// isParty reports whether userID may take part in the task's chat with
// peerID. Owner and accepted executor always may; before acceptance a
// bidder may negotiate with the owner, and anyone with prior messages on
// the pair keeps access even after their bid went stale.
func (s *Service) isParty(ctx context.Context, task state.TaskRecord, userID, peerID string) (bool, error) {
	if userID == task.OwnerID {
		return true, nil
	}
	if accepted, ok, err := s.store.GetAcceptedBid(ctx, task.ID); err != nil {
		return false, err
	} else if ok && accepted.ExecutorID == userID {
		return true, nil
	}
	if task.Status == state.TaskActive {
		if _, ok, err := s.store.GetBidByTaskExecutor(ctx, task.ID, userID); err != nil {
			return false, err
		} else if ok {
			return true, nil
		}
	}
	n, err := s.store.CountConversation(ctx, task.ID, userID, peerID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func otherOf(userID, a, b string) string {
	if userID == a {
		return b
	}
	return a
}
