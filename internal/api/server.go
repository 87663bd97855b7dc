package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/navodchik131/luggo-sub000/internal/domain"
	"github.com/navodchik131/luggo-sub000/internal/lifecycle"
	"github.com/navodchik131/luggo-sub000/internal/messaging"
	"github.com/navodchik131/luggo-sub000/internal/notify"
	"github.com/navodchik131/luggo-sub000/internal/observability"
	"github.com/navodchik131/luggo-sub000/internal/realtime"
	"github.com/navodchik131/luggo-sub000/internal/state"
	"github.com/navodchik131/luggo-sub000/pkg/luggoapi"
)

const dateLayout = "2006-01-02"

type Server struct {
	engine        *lifecycle.Engine
	messages      *messaging.Service
	notifications *notify.Dispatcher
	hub           *realtime.Hub
	store         state.Store
	auth          *authorizer
	limiter       *messageLimiter
}

func NewServer(engine *lifecycle.Engine, messages *messaging.Service, notifications *notify.Dispatcher, hub *realtime.Hub, store state.Store) *Server {
	return &Server{
		engine:        engine,
		messages:      messages,
		notifications: notifications,
		hub:           hub,
		store:         store,
		auth:          newAuthorizerFromEnv(),
		limiter:       newMessageLimiterFromEnv(),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/metrics", s.handleMetrics)
	mux.HandleFunc("/v1/metrics/prometheus", s.handleMetricsPrometheus)
	mux.HandleFunc("/v1/users", s.handleUsers)
	mux.HandleFunc("/v1/users/", s.handleUserSubresource)
	mux.HandleFunc("/v1/tasks", s.handleTasks)
	mux.HandleFunc("/v1/tasks/", s.handleTaskSubresource)
	mux.HandleFunc("/v1/bids/", s.handleBidSubresource)
	mux.HandleFunc("/v1/messages", s.handleMessages)
	mux.HandleFunc("/v1/messages/chats", s.handleChats)
	mux.HandleFunc("/v1/messages/unread-count", s.handleUnreadCount)
	mux.HandleFunc("/v1/messages/task/", s.handleConversation)
	mux.HandleFunc("/v1/notifications", s.handleNotifications)
	mux.HandleFunc("/v1/notifications/", s.handleNotificationSubresource)
	mux.HandleFunc("/v1/stream", s.handleStream)
	mux.HandleFunc("/v1/stream/", s.handleStreamSubresource)
	return withTracing(withLogging(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, observability.Default.Snapshot())
}

func (s *Server) handleMetricsPrometheus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(observability.Default.RenderPrometheus()))
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	p, status, msg := s.auth.authorize(r)
	if status != http.StatusOK {
		writeError(w, status, msg)
		return
	}
	var req luggoapi.UpsertUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = p.userID
	}
	if id != p.userID {
		writeError(w, http.StatusForbidden, "may only manage own profile")
		return
	}
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = "customer"
	}
	user := state.UserRecord{ID: id, Name: req.Name, Role: role, CreatedAt: time.Now().UTC()}
	if existing, ok, err := s.store.GetUser(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	} else if ok {
		user.CreatedAt = existing.CreatedAt
	}
	if err := s.store.UpsertUser(r.Context(), user); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, userWire(user))
}

func (s *Server) handleUserSubresource(w http.ResponseWriter, r *http.Request) {
	if _, status, msg := s.auth.authorize(r); status != http.StatusOK {
		writeError(w, status, msg)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		user, ok, err := s.store.GetUser(r.Context(), parts[0])
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeJSON(w, http.StatusOK, userWire(user))
	case len(parts) == 2 && parts[1] == "reviews" && r.Method == http.MethodGet:
		reviews, err := s.engine.ListReviews(r.Context(), parts[0])
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		out := make([]luggoapi.Review, 0, len(reviews))
		for _, rv := range reviews {
			out = append(out, reviewWire(rv))
		}
		writeJSON(w, http.StatusOK, luggoapi.ReviewsResponse{ExecutorID: parts[0], Reviews: out})
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	p, status, msg := s.auth.authorize(r)
	if status != http.StatusOK {
		writeError(w, status, msg)
		return
	}
	switch r.Method {
	case http.MethodPost:
		s.createTask(w, r, p)
	case http.MethodGet:
		s.listTasks(w, r, p)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request, p principal) {
	var req luggoapi.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	date, err := time.Parse(dateLayout, strings.TrimSpace(req.Date))
	if err != nil {
		s.writeDomainError(w, &domain.ValidationError{Fields: map[string]string{"date": "must be YYYY-MM-DD"}})
		return
	}
	task, err := s.engine.CreateTask(r.Context(), p.userID, lifecycle.TaskInput{
		Title:       req.Title,
		Description: req.Description,
		FromAddress: req.FromAddress,
		ToAddress:   req.ToAddress,
		Date:        date,
		Category:    req.Category,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, taskWire(task))
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request, p principal) {
	q := r.URL.Query()
	filter := state.TaskFilter{
		Status:   strings.TrimSpace(q.Get("status")),
		Category: strings.TrimSpace(q.Get("category")),
		Limit:    parseQueryInt(q.Get("limit"), 0),
		Offset:   parseQueryInt(q.Get("offset"), 0),
	}
	if q.Get("mine") == "true" {
		filter.OwnerID = p.userID
	}
	tasks, err := s.engine.ListTasks(r.Context(), filter)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]luggoapi.Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskWire(t))
	}
	writeJSON(w, http.StatusOK, luggoapi.TasksResponse{Total: len(out), Tasks: out})
}

func (s *Server) handleTaskSubresource(w http.ResponseWriter, r *http.Request) {
	p, status, msg := s.auth.authorize(r)
	if status != http.StatusOK {
		writeError(w, status, msg)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/tasks/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	taskID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		task, ok, err := s.engine.GetTask(r.Context(), taskID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeJSON(w, http.StatusOK, taskWire(task))
		return
	}

	switch parts[1] {
	case "bids":
		s.handleTaskBids(w, r, p, taskID)
	case "cancel":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		task, err := s.engine.CancelTask(r.Context(), taskID, p.userID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, taskWire(task))
	case "complete":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req luggoapi.CompleteTaskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		task, err := s.engine.MarkComplete(r.Context(), taskID, p.userID, req.CompletionComment)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, taskWire(task))
	case "confirm":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req luggoapi.ConfirmCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		var review *lifecycle.ReviewInput
		if req.Confirmed && req.Rating != 0 {
			review = &lifecycle.ReviewInput{Rating: req.Rating, Comment: req.Comment}
		}
		task, err := s.engine.ConfirmCompletion(r.Context(), taskID, p.userID, req.Confirmed, review)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, taskWire(task))
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleTaskBids(w http.ResponseWriter, r *http.Request, p principal, taskID string) {
	switch r.Method {
	case http.MethodPost:
		var req luggoapi.SubmitBidRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		price, err := decimal.NewFromString(strings.TrimSpace(req.Price))
		if err != nil {
			s.writeDomainError(w, &domain.ValidationError{Fields: map[string]string{"price": "must be a decimal number"}})
			return
		}
		bid, err := s.engine.SubmitBid(r.Context(), taskID, p.userID, price, req.Comment)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, bidWire(bid))
	case http.MethodGet:
		bids, err := s.engine.ListBids(r.Context(), taskID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		out := make([]luggoapi.Bid, 0, len(bids))
		for _, b := range bids {
			out = append(out, bidWire(b))
		}
		writeJSON(w, http.StatusOK, luggoapi.BidsResponse{TaskID: taskID, Bids: out})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleBidSubresource(w http.ResponseWriter, r *http.Request) {
	p, status, msg := s.auth.authorize(r)
	if status != http.StatusOK {
		writeError(w, status, msg)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/bids/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[1] != "accept" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	task, err := s.engine.AcceptBid(r.Context(), parts[0], p.userID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, taskWire(task))
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	p, status, msg := s.auth.authorize(r)
	if status != http.StatusOK {
		writeError(w, status, msg)
		return
	}
	if !s.limiter.allow(p.userID, time.Now().UTC()) {
		writeError(w, http.StatusTooManyRequests, "message rate limit exceeded")
		return
	}
	var req luggoapi.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	record, err := s.messages.SendMessage(r.Context(), req.TaskID, p.userID, req.ReceiverID, req.Text)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageWire(record))
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	p, status, msg := s.auth.authorize(r)
	if status != http.StatusOK {
		writeError(w, status, msg)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/messages/task/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 3 || parts[1] != "user" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	taskID, otherID := parts[0], parts[2]
	records, err := s.messages.ListMessages(r.Context(), taskID, p.userID, otherID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]luggoapi.Message, 0, len(records))
	for _, m := range records {
		out = append(out, messageWire(m))
	}
	writeJSON(w, http.StatusOK, luggoapi.MessagesResponse{TaskID: taskID, Messages: out})
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	p, status, msg := s.auth.authorize(r)
	if status != http.StatusOK {
		writeError(w, status, msg)
		return
	}
	chats, err := s.messages.ListChats(r.Context(), p.userID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]luggoapi.Chat, 0, len(chats))
	for _, c := range chats {
		out = append(out, luggoapi.Chat{
			TaskID:      c.TaskID,
			TaskTitle:   c.TaskTitle,
			TaskStatus:  c.TaskStatus,
			PeerID:      c.PeerID,
			LastMessage: messageWire(c.LastMessage),
			Unread:      c.Unread,
		})
	}
	writeJSON(w, http.StatusOK, luggoapi.ChatsResponse{Chats: out})
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	p, status, msg := s.auth.authorize(r)
	if status != http.StatusOK {
		writeError(w, status, msg)
		return
	}
	unread, err := s.messages.UnreadCount(r.Context(), p.userID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, luggoapi.UnreadCountResponse{Unread: unread})
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	p, status, msg := s.auth.authorize(r)
	if status != http.StatusOK {
		writeError(w, status, msg)
		return
	}
	q := r.URL.Query()
	unreadOnly := q.Get("unread") == "true"
	limit := parseQueryInt(q.Get("limit"), 0)
	records, err := s.notifications.List(r.Context(), p.userID, unreadOnly, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]luggoapi.Notification, 0, len(records))
	for _, n := range records {
		out = append(out, notificationWire(n))
	}
	writeJSON(w, http.StatusOK, luggoapi.NotificationsResponse{Notifications: out})
}

func (s *Server) handleNotificationSubresource(w http.ResponseWriter, r *http.Request) {
	p, status, msg := s.auth.authorize(r)
	if status != http.StatusOK {
		writeError(w, status, msg)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/notifications/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] == "read-all" && r.Method == http.MethodPost:
		if err := s.notifications.MarkAllRead(r.Context(), p.userID); err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case len(parts) == 2 && parts[1] == "read" && r.Method == http.MethodPost:
		if err := s.notifications.MarkRead(r.Context(), parts[0], p.userID); err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case len(parts) == 1 && r.Method == http.MethodDelete:
		if err := s.notifications.Delete(r.Context(), parts[0], p.userID); err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	p, status, msg := s.auth.authorize(r)
	if status != http.StatusOK {
		writeError(w, status, msg)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	conn := s.hub.Register(p.userID)
	defer s.hub.Unregister(conn)

	_ = writeSSEEvent(w, "stream.registered", luggoapi.StreamRegistered{ConnectionID: conn.ID, UserID: p.userID})
	flusher.Flush()

	keepaliveTicker := time.NewTicker(15 * time.Second)
	defer keepaliveTicker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-conn.Done():
			return
		case <-keepaliveTicker.C:
			_, _ = w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		case env := <-conn.Events():
			_ = writeSSEEvent(w, string(env.Kind), env)
			flusher.Flush()
		}
	}
}

func (s *Server) handleStreamSubresource(w http.ResponseWriter, r *http.Request) {
	p, status, msg := s.auth.authorize(r)
	if status != http.StatusOK {
		writeError(w, status, msg)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/stream/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	conn, ok := s.hub.Get(parts[0])
	if !ok {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}
	if conn.UserID != p.userID {
		writeError(w, http.StatusForbidden, "connection belongs to another user")
		return
	}
	var req luggoapi.JoinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.TaskID) == "" {
		writeError(w, http.StatusBadRequest, "task_id is required")
		return
	}
	switch parts[1] {
	case "join":
		// Room membership only gates push fan-out; reading the
		// conversation is still authorized per request.
		s.hub.JoinRoom(conn, req.TaskID)
	case "leave":
		s.hub.LeaveRoom(conn, req.TaskID)
	default:
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeDomainError maps typed domain failures onto HTTP statuses. Anything
// unrecognized is an infrastructure failure.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		writeJSON(w, http.StatusUnprocessableEntity, luggoapi.ErrorResponse{Error: validation.Error(), Fields: validation.Fields})
		return
	}
	var invalidState *domain.InvalidStateError
	if errors.As(err, &invalidState) {
		writeError(w, http.StatusConflict, invalidState.Error())
		return
	}
	var duplicate *domain.DuplicateBidError
	if errors.As(err, &duplicate) {
		writeError(w, http.StatusConflict, duplicate.Error())
		return
	}
	var selfBid *domain.SelfBidError
	if errors.As(err, &selfBid) {
		writeError(w, http.StatusConflict, selfBid.Error())
		return
	}
	var forbidden *domain.ForbiddenError
	if errors.As(err, &forbidden) {
		writeError(w, http.StatusForbidden, forbidden.Error())
		return
	}
	var notFound *domain.NotFoundError
	if errors.As(err, &notFound) {
		writeError(w, http.StatusNotFound, notFound.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func taskWire(t state.TaskRecord) luggoapi.Task {
	return luggoapi.Task{
		ID:                t.ID,
		OwnerID:           t.OwnerID,
		Title:             t.Title,
		Description:       t.Description,
		FromAddress:       t.FromAddress,
		ToAddress:         t.ToAddress,
		Date:              t.Date.UTC().Format(dateLayout),
		Category:          t.Category,
		Status:            t.Status,
		CompletionComment: t.CompletionComment,
		CreatedAt:         t.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:         t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func bidWire(b state.BidRecord) luggoapi.Bid {
	return luggoapi.Bid{
		ID:         b.ID,
		TaskID:     b.TaskID,
		ExecutorID: b.ExecutorID,
		Price:      b.Price.String(),
		Comment:    b.Comment,
		Accepted:   b.Accepted,
		CreatedAt:  b.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func messageWire(m state.MessageRecord) luggoapi.Message {
	return luggoapi.Message{
		ID:         m.ID,
		TaskID:     m.TaskID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Text:       m.Text,
		CreatedAt:  m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func notificationWire(n state.NotificationRecord) luggoapi.Notification {
	return luggoapi.Notification{
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

func userWire(u state.UserRecord) luggoapi.User {
	return luggoapi.User{
		ID:        u.ID,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func reviewWire(rv state.ReviewRecord) luggoapi.Review {
	return luggoapi.Review{
		ID:         rv.ID,
		TaskID:     rv.TaskID,
		AuthorID:   rv.AuthorID,
		ExecutorID: rv.ExecutorID,
		Rating:     rv.Rating,
		Comment:    rv.Comment,
		CreatedAt:  rv.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func writeSSEEvent(w http.ResponseWriter, event string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("event: " + event + "\n")); err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: " + string(b) + "\n\n")); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseQueryInt(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func withTracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := observability.StartSpan(r.Context(), "http.request",
			attribute.String("http.method", r.Method),
			attribute.String("http.path", r.URL.Path),
		)
		defer span.End()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		traceID := span.SpanContext().TraceID().String()
		if traceID != "" {
			sw.Header().Set("X-Trace-ID", traceID)
		}
		next.ServeHTTP(sw, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", sw.status))
	})
}
