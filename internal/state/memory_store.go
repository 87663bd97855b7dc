package state

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryStore struct {
	mu            sync.Mutex
	tasks         map[string]TaskRecord
	bids          map[string]BidRecord
	messages      []MessageRecord
	unread        map[string]int // taskID|userID|peerID
	notifications map[string]NotificationRecord
	users         map[string]UserRecord
	reviews       map[string]ReviewRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:         make(map[string]TaskRecord),
		bids:          make(map[string]BidRecord),
		messages:      make([]MessageRecord, 0, 128),
		unread:        make(map[string]int),
		notifications: make(map[string]NotificationRecord),
		users:         make(map[string]UserRecord),
		reviews:       make(map[string]ReviewRecord),
	}
}

func unreadKey(taskID, userID, peerID string) string {
	return taskID + "|" + userID + "|" + peerID
}

func (m *MemoryStore) CreateTask(_ context.Context, task TaskRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	m.tasks[task.ID] = task
	return nil
}

func (m *MemoryStore) GetTask(_ context.Context, taskID string) (TaskRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	return task, ok, nil
}

func (m *MemoryStore) UpdateTask(_ context.Context, task TaskRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task.UpdatedAt = time.Now().UTC()
	m.tasks[task.ID] = task
	return nil
}

func (m *MemoryStore) ListTasks(_ context.Context, filter TaskFilter) ([]TaskRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TaskRecord, 0, len(m.tasks))
	for _, t := range m.tasks {
		if filter.OwnerID != "" && t.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Category != "" && t.Category != filter.Category {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	offset := filter.Offset
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) CreateBid(_ context.Context, bid BidRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if bid.CreatedAt.IsZero() {
		bid.CreatedAt = now
	}
	bid.UpdatedAt = now
	m.bids[bid.ID] = bid
	return nil
}

func (m *MemoryStore) GetBid(_ context.Context, bidID string) (BidRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bid, ok := m.bids[bidID]
	return bid, ok, nil
}

func (m *MemoryStore) UpdateBid(_ context.Context, bid BidRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bid.UpdatedAt = time.Now().UTC()
	m.bids[bid.ID] = bid
	return nil
}

func (m *MemoryStore) ListBidsByTask(_ context.Context, taskID string) ([]BidRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]BidRecord, 0, 8)
	for _, b := range m.bids {
		if b.TaskID == taskID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) GetBidByTaskExecutor(_ context.Context, taskID, executorID string) (BidRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bids {
		if b.TaskID == taskID && b.ExecutorID == executorID {
			return b, true, nil
		}
	}
	return BidRecord{}, false, nil
}

func (m *MemoryStore) GetAcceptedBid(_ context.Context, taskID string) (BidRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bids {
		if b.TaskID == taskID && b.Accepted {
			return b, true, nil
		}
	}
	return BidRecord{}, false, nil
}

func (m *MemoryStore) CreateMessage(_ context.Context, msg MessageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	m.messages = append(m.messages, msg)
	m.unread[unreadKey(msg.TaskID, msg.ReceiverID, msg.SenderID)]++
	return nil
}

func (m *MemoryStore) ListConversation(_ context.Context, taskID, a, b string, markRead bool) ([]MessageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MessageRecord, 0, 16)
	for _, msg := range m.messages {
		if msg.TaskID != taskID {
			continue
		}
		if (msg.SenderID == a && msg.ReceiverID == b) || (msg.SenderID == b && msg.ReceiverID == a) {
			out = append(out, msg)
		}
	}
	if markRead {
		delete(m.unread, unreadKey(taskID, a, b))
	}
	return out, nil
}

func (m *MemoryStore) CountConversation(_ context.Context, taskID, a, b string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.messages {
		if msg.TaskID != taskID {
			continue
		}
		if (msg.SenderID == a && msg.ReceiverID == b) || (msg.SenderID == b && msg.ReceiverID == a) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) TotalUnread(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for key, count := range m.unread {
		parts := splitUnreadKey(key)
		if parts[1] == userID {
			total += count
		}
	}
	return total, nil
}

func (m *MemoryStore) ListChats(_ context.Context, userID string) ([]ChatRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	last := make(map[string]MessageRecord)
	for _, msg := range m.messages {
		var peer string
		switch userID {
		case msg.SenderID:
			peer = msg.ReceiverID
		case msg.ReceiverID:
			peer = msg.SenderID
		default:
			continue
		}
		last[msg.TaskID+"|"+peer] = msg
	}
	out := make([]ChatRecord, 0, len(last))
	for key, msg := range last {
		taskID := msg.TaskID
		peer := key[len(taskID)+1:]
		out = append(out, ChatRecord{
			TaskID:      taskID,
			PeerID:      peer,
			LastMessage: msg,
			Unread:      m.unread[unreadKey(taskID, userID, peer)],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessage.CreatedAt.After(out[j].LastMessage.CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) CreateNotification(_ context.Context, n NotificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	m.notifications[n.ID] = n
	return nil
}

func (m *MemoryStore) GetNotification(_ context.Context, id string) (NotificationRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	return n, ok, nil
}

func (m *MemoryStore) ListNotifications(_ context.Context, recipientID string) ([]NotificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]NotificationRecord, 0, 16)
	for _, n := range m.notifications {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) MarkNotificationRead(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return nil
	}
	n.IsRead = true
	m.notifications[id] = n
	return nil
}

func (m *MemoryStore) MarkAllNotificationsRead(_ context.Context, recipientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, n := range m.notifications {
		if n.RecipientID == recipientID && !n.IsRead {
			n.IsRead = true
			m.notifications[id] = n
		}
	}
	return nil
}

func (m *MemoryStore) DeleteNotification(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.notifications, id)
	return nil
}

func (m *MemoryStore) UpsertUser(_ context.Context, user UserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	m.users[user.ID] = user
	return nil
}

func (m *MemoryStore) GetUser(_ context.Context, userID string) (UserRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	return u, ok, nil
}

func (m *MemoryStore) CreateReview(_ context.Context, review ReviewRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}
	m.reviews[review.ID] = review
	return nil
}

func (m *MemoryStore) ListReviewsByExecutor(_ context.Context, executorID string) ([]ReviewRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ReviewRecord, 0, 8)
	for _, r := range m.reviews {
		if r.ExecutorID == executorID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func splitUnreadKey(key string) [3]string {
	var out [3]string
	idx := 0
	start := 0
	for i := 0; i < len(key) && idx < 2; i++ {
		if key[i] == '|' {
			out[idx] = key[start:i]
			idx++
			start = i + 1
		}
	}
	out[2] = key[start:]
	return out
}
