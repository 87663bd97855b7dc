package realtime

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/navodchik131/luggo-sub000/internal/observability"
	"github.com/navodchik131/luggo-sub000/internal/state"
	"github.com/navodchik131/luggo-sub000/pkg/luggoapi"
)

const defaultQueueSize = 32

// Conn is one live client connection. Events arrive on a bounded queue;
// a consumer that stops draining gets disconnected rather than stalling
// the hub.
type Conn struct {
	ID     string
	UserID string

	events  chan Envelope
	done    chan struct{}
	closeFn sync.Once
}

// Events is the outbound queue the transport drains.
func (c *Conn) Events() <-chan Envelope { return c.events }

// Done closes when the hub has dropped the connection.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) close() {
	c.closeFn.Do(func() { close(c.done) })
}

// Hub routes two kinds of push events: task-room broadcasts for chat
// messages and user-channel pushes for notifications. All membership
// state is in-memory and dies with the connection.
type Hub struct {
	bus       Bus
	queueSize int

	mu    sync.Mutex
	conns map[string]*Conn
	users map[string]map[*Conn]struct{}
	rooms map[string]map[*Conn]struct{}
}

type Options struct {
	QueueSize int
}

func NewHub(bus Bus, opts Options) *Hub {
	if bus == nil {
		bus = NewMemoryBus()
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Hub{
		bus:       bus,
		queueSize: queueSize,
		conns:     make(map[string]*Conn),
		users:     make(map[string]map[*Conn]struct{}),
		rooms:     make(map[string]map[*Conn]struct{}),
	}
}

// Start subscribes the hub to its bus. Must be called before any publish.
func (h *Hub) Start(ctx context.Context) error {
	h.bus.Subscribe(h.deliver)
	return h.bus.Start(ctx)
}

// Stop closes every live connection and the bus.
func (h *Hub) Stop() error {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[string]*Conn)
	h.users = make(map[string]map[*Conn]struct{})
	h.rooms = make(map[string]map[*Conn]struct{})
	h.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
	return h.bus.Stop()
}

// Register binds a new connection to a user identity. A user may hold any
// number of simultaneous connections.
func (h *Hub) Register(userID string) *Conn {
	conn := &Conn{
		ID:     uuid.NewString(),
		UserID: userID,
		events: make(chan Envelope, h.queueSize),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	h.conns[conn.ID] = conn
	if h.users[userID] == nil {
		h.users[userID] = make(map[*Conn]struct{})
	}
	h.users[userID][conn] = struct{}{}
	total := len(h.conns)
	h.mu.Unlock()
	observability.Default.SetGauge("realtime_connections", map[string]string{"bus_backend": h.bus.Backend()}, float64(total))
	return conn
}

// Unregister synchronously drops the connection's user binding and all of
// its room memberships.
func (h *Hub) Unregister(conn *Conn) {
	h.mu.Lock()
	h.removeLocked(conn)
	total := len(h.conns)
	h.mu.Unlock()
	conn.close()
	observability.Default.SetGauge("realtime_connections", map[string]string{"bus_backend": h.bus.Backend()}, float64(total))
}

func (h *Hub) removeLocked(conn *Conn) {
	delete(h.conns, conn.ID)
	if set, ok := h.users[conn.UserID]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(h.users, conn.UserID)
		}
	}
	for taskID, set := range h.rooms {
		delete(set, conn)
		if len(set) == 0 {
			delete(h.rooms, taskID)
		}
	}
}

// Get finds a live connection by id.
func (h *Hub) Get(connID string) (*Conn, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[connID]
	return c, ok
}

// JoinRoom adds the connection to a task room. Joining a room the
// connection is already in is a no-op.
func (h *Hub) JoinRoom(conn *Conn, taskID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, live := h.conns[conn.ID]; !live {
		return
	}
	if h.rooms[taskID] == nil {
		h.rooms[taskID] = make(map[*Conn]struct{})
	}
	h.rooms[taskID][conn] = struct{}{}
}

// LeaveRoom removes the connection from a task room. Leaving a room the
// connection never joined is a no-op.
func (h *Hub) LeaveRoom(conn *Conn, taskID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.rooms[taskID]
	if !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(h.rooms, taskID)
	}
}

// PublishMessage broadcasts a stored chat message to every connection in
// its task's room. Errors are logged and dropped; a push failure never
// fails the originating write.
func (h *Hub) PublishMessage(msg state.MessageRecord) {
	env := Envelope{
		Kind:    KindMessage,
		TaskID:  msg.TaskID,
		Message: messageWire(msg),
	}
	h.publish(env)
}

// PublishNotification pushes a persisted notification to every live
// connection of its recipient, regardless of room membership.
func (h *Hub) PublishNotification(n state.NotificationRecord) {
	env := Envelope{
		Kind:         KindNotification,
		RecipientID:  n.RecipientID,
		Notification: notificationWire(n),
	}
	h.publish(env)
}

func (h *Hub) publish(env Envelope) {
	observability.Default.IncCounter("realtime_events_published_total", map[string]string{"bus_backend": h.bus.Backend(), "kind": string(env.Kind)}, 1)
	if err := h.bus.Publish(context.Background(), env); err != nil {
		log.Printf("realtime publish failed kind=%s task=%s: %v", env.Kind, env.TaskID, err)
		observability.Default.IncCounter("realtime_publish_errors_total", map[string]string{"bus_backend": h.bus.Backend()}, 1)
	}
}

// deliver fans a bus envelope out to the matching local connections. A
// full outbound queue disconnects the consumer instead of blocking the
// hub; the client reconciles through the listing endpoints on reconnect.
func (h *Hub) deliver(env Envelope) {
	h.mu.Lock()
	var targets map[*Conn]struct{}
	switch env.Kind {
	case KindMessage:
		targets = h.rooms[env.TaskID]
	case KindNotification:
		targets = h.users[env.RecipientID]
	}
	slow := make([]*Conn, 0)
	for conn := range targets {
		select {
		case conn.events <- env:
		default:
			slow = append(slow, conn)
		}
	}
	for _, conn := range slow {
		h.removeLocked(conn)
	}
	h.mu.Unlock()
	for _, conn := range slow {
		log.Printf("realtime: disconnecting slow consumer conn=%s user=%s", conn.ID, conn.UserID)
		observability.Default.IncCounter("realtime_slow_disconnects_total", map[string]string{"bus_backend": h.bus.Backend()}, 1)
		conn.close()
	}
}

func messageWire(msg state.MessageRecord) *luggoapi.Message {
	return &luggoapi.Message{
		ID:         msg.ID,
		TaskID:     msg.TaskID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Text:       msg.Text,
		CreatedAt:  msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func notificationWire(n state.NotificationRecord) *luggoapi.Notification {
	return &luggoapi.Notification{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Type:        n.Type,
		Title:       n.Title,
		Message:     n.Message,
		ActionURL:   n.ActionURL,
		IsRead:      n.IsRead,
		CreatedAt:   n.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
