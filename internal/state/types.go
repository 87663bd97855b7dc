package state

import (
	"time"

	"github.com/shopspring/decimal"
)

// Task statuses. Draft and Active accept cancellation; Completed and
// Cancelled are terminal.
const (
	TaskDraft                = "draft"
	TaskActive               = "active"
	TaskInProgress           = "in_progress"
	TaskAwaitingConfirmation = "awaiting_confirmation"
	TaskCompleted            = "completed"
	TaskCancelled            = "cancelled"
)

type TaskRecord struct {
	ID                string
	OwnerID           string
	Title             string
	Description       string
	FromAddress       string
	ToAddress         string
	Date              time.Time
	Category          string
	Status            string
	CompletionComment string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type BidRecord struct {
	ID         string
	TaskID     string
	ExecutorID string
	Price      decimal.Decimal
	Comment    string
	Accepted   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type MessageRecord struct {
	ID         string
	TaskID     string
	SenderID   string
	ReceiverID string
	Text       string
	CreatedAt  time.Time
}

type NotificationRecord struct {
	ID          string
	RecipientID string
	Type        string
	Title       string
	Message     string
	ActionURL   string
	IsRead      bool
	CreatedAt   time.Time
}

type UserRecord struct {
	ID        string
	Name      string
	Role      string
	CreatedAt time.Time
}

type ReviewRecord struct {
	ID         string
	TaskID     string
	BidID      string
	AuthorID   string
	ExecutorID string
	Rating     int
	Comment    string
	CreatedAt  time.Time
}

// ChatRecord is one (task, peer) conversation summary for a user: the last
// message exchanged and how many of the peer's messages are still unread.
type ChatRecord struct {
	TaskID      string
	PeerID      string
	LastMessage MessageRecord
	Unread      int
}

// TaskFilter narrows ListTasks. Zero values mean "no filter".
type TaskFilter struct {
	OwnerID  string
	Status   string
	Category string
	Limit    int
	Offset   int
}
