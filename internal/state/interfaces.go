package state

import (
	"context"
)

// Store is the persistence gateway for the broker core. Implementations
// must make CreateMessage (insert + unread increment) and ListConversation
// with markRead (list + counter reset) atomic; everything else is plain
// typed CRUD. Serialization of task mutations is the lifecycle engine's
// job, not the store's.
type Store interface {
	CreateTask(ctx context.Context, task TaskRecord) error
	GetTask(ctx context.Context, taskID string) (TaskRecord, bool, error)
	UpdateTask(ctx context.Context, task TaskRecord) error
	ListTasks(ctx context.Context, filter TaskFilter) ([]TaskRecord, error)

	CreateBid(ctx context.Context, bid BidRecord) error
	GetBid(ctx context.Context, bidID string) (BidRecord, bool, error)
	UpdateBid(ctx context.Context, bid BidRecord) error
	ListBidsByTask(ctx context.Context, taskID string) ([]BidRecord, error)
	GetBidByTaskExecutor(ctx context.Context, taskID, executorID string) (BidRecord, bool, error)
	GetAcceptedBid(ctx context.Context, taskID string) (BidRecord, bool, error)

	// CreateMessage appends the message and increments the receiver's
	// unread counter for (task, sender) in one atomic step.
	CreateMessage(ctx context.Context, msg MessageRecord) error
	// ListConversation returns all messages between a and b on the task in
	// send order. With markRead it also resets a's unread counter for
	// (task, b) in the same atomic step.
	ListConversation(ctx context.Context, taskID, a, b string, markRead bool) ([]MessageRecord, error)
	CountConversation(ctx context.Context, taskID, a, b string) (int, error)
	TotalUnread(ctx context.Context, userID string) (int, error)
	ListChats(ctx context.Context, userID string) ([]ChatRecord, error)

	CreateNotification(ctx context.Context, n NotificationRecord) error
	GetNotification(ctx context.Context, id string) (NotificationRecord, bool, error)
	ListNotifications(ctx context.Context, recipientID string) ([]NotificationRecord, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context, recipientID string) error
	DeleteNotification(ctx context.Context, id string) error

	UpsertUser(ctx context.Context, user UserRecord) error
	GetUser(ctx context.Context, userID string) (UserRecord, bool, error)

	CreateReview(ctx context.Context, review ReviewRecord) error
	ListReviewsByExecutor(ctx context.Context, executorID string) ([]ReviewRecord, error)
}
