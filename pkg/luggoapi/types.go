package luggoapi

type CreateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	FromAddress string `json:"from_address"`
	ToAddress   string `json:"to_address"`
	Date        string `json:"date"`
	Category    string `json:"category,omitempty"`
}

type Task struct {
	ID                string `json:"id"`
	OwnerID           string `json:"owner_id"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	FromAddress       string `json:"from_address"`
	ToAddress         string `json:"to_address"`
	Date              string `json:"date"`
	Category          string `json:"category,omitempty"`
	Status            string `json:"status"`
	CompletionComment string `json:"completion_comment,omitempty"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

type TasksResponse struct {
	Total int    `json:"total"`
	Tasks []Task `json:"tasks"`
}

type SubmitBidRequest struct {
	Price   string `json:"price"`
	Comment string `json:"comment,omitempty"`
}

type Bid struct {
	ID         string `json:"id"`
	TaskID     string `json:"task_id"`
	ExecutorID string `json:"executor_id"`
	Price      string `json:"price"`
	Comment    string `json:"comment,omitempty"`
	Accepted   bool   `json:"accepted"`
	CreatedAt  string `json:"created_at"`
}

type BidsResponse struct {
	TaskID string `json:"task_id"`
	Bids   []Bid  `json:"bids"`
}

type CompleteTaskRequest struct {
	CompletionComment string `json:"completion_comment,omitempty"`
}

type ConfirmCompletionRequest struct {
	Confirmed bool   `json:"confirmed"`
	Rating    int    `json:"rating,omitempty"`
	Comment   string `json:"comment,omitempty"`
}

type SendMessageRequest struct {
	TaskID     string `json:"task_id"`
	ReceiverID string `json:"receiver_id"`
	Text       string `json:"text"`
}

type Message struct {
	ID         string `json:"id"`
	TaskID     string `json:"task_id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Text       string `json:"text"`
	CreatedAt  string `json:"created_at"`
}

type MessagesResponse struct {
	TaskID   string    `json:"task_id"`
	Messages []Message `json:"messages"`
}

type Chat struct {
	TaskID      string  `json:"task_id"`
	TaskTitle   string  `json:"task_title,omitempty"`
	TaskStatus  string  `json:"task_status,omitempty"`
	PeerID      string  `json:"peer_id"`
	LastMessage Message `json:"last_message"`
	Unread      int     `json:"unread"`
}

type ChatsResponse struct {
	Chats []Chat `json:"chats"`
}

type UnreadCountResponse struct {
	Unread int `json:"unread"`
}

type Notification struct {
	ID          string `json:"id"`
	RecipientID string `json:"recipient_id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Message     string `json:"message,omitempty"`
	ActionURL   string `json:"action_url,omitempty"`
	IsRead      bool   `json:"is_read"`
	CreatedAt   string `json:"created_at"`
}

type NotificationsResponse struct {
	Notifications []Notification `json:"notifications"`
}

type UpsertUserRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

type Review struct {
	ID         string `json:"id"`
	TaskID     string `json:"task_id"`
	AuthorID   string `json:"author_id"`
	ExecutorID string `json:"executor_id"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment,omitempty"`
	CreatedAt  string `json:"created_at"`
}

type ReviewsResponse struct {
	ExecutorID string   `json:"executor_id"`
	Reviews    []Review `json:"reviews"`
}

// StreamRegistered is the first event on a live stream; the connection id
// is what join/leave commands address.
type StreamRegistered struct {
	ConnectionID string `json:"connection_id"`
	UserID       string `json:"user_id"`
}

type JoinRoomRequest struct {
	TaskID string `json:"task_id"`
}

type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}
