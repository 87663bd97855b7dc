package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/navodchik131/luggo-sub000/internal/domain"
	"github.com/navodchik131/luggo-sub000/internal/lifecycle"
	"github.com/navodchik131/luggo-sub000/internal/state"
)

type fixture struct {
	store   state.Store
	engine  *lifecycle.Engine
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := state.NewMemoryStore()
	return &fixture{
		store:   store,
		engine:  lifecycle.NewEngine(store, nil),
		service: NewService(store, nil, nil),
	}
}

func (f *fixture) activeTask(t *testing.T, ownerID string) state.TaskRecord {
	t.Helper()
	task, err := f.engine.CreateTask(context.Background(), ownerID, lifecycle.TaskInput{
		Title:       "Переезд 2-комнатной квартиры",
		Description: "Перевезти мебель и коробки, есть лифт с обеих сторон.",
		FromAddress: "ул. Ленина 10",
		ToAddress:   "пр. Мира 5",
		Date:        time.Now().UTC().Add(72 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func (f *fixture) bid(t *testing.T, taskID, executorID string) state.BidRecord {
	t.Helper()
	bid, err := f.engine.SubmitBid(context.Background(), taskID, executorID, decimal.NewFromInt(15000), "")
	if err != nil {
		t.Fatalf("submit bid: %v", err)
	}
	return bid
}

func TestSendMessageTracksUnreadUntilRead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.activeTask(t, "customer-1")
	f.bid(t, task.ID, "executor-1")

	msg, err := f.service.SendMessage(ctx, task.ID, "executor-1", "customer-1", "Is the piano included?")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.ID == "" || msg.TaskID != task.ID {
		t.Fatalf("message = %+v", msg)
	}

	unread, err := f.service.UnreadCount(ctx, "customer-1")
	if err != nil {
		t.Fatalf("unread: %v", err)
	}
	if unread != 1 {
		t.Fatalf("unread = %d, want 1", unread)
	}
	// The sender's own watermark is untouched.
	if senderUnread, _ := f.service.UnreadCount(ctx, "executor-1"); senderUnread != 0 {
		t.Fatalf("sender unread = %d, want 0", senderUnread)
	}

	messages, err := f.service.ListMessages(ctx, task.ID, "customer-1", "executor-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(messages) != 1 || messages[0].Text != "Is the piano included?" {
		t.Fatalf("messages = %+v", messages)
	}
	if unread, _ = f.service.UnreadCount(ctx, "customer-1"); unread != 0 {
		t.Fatalf("unread after read = %d, want 0", unread)
	}

	// Reading again stays at zero; the counter never goes negative.
	if _, err := f.service.ListMessages(ctx, task.ID, "customer-1", "executor-1"); err != nil {
		t.Fatalf("second list: %v", err)
	}
	if unread, _ = f.service.UnreadCount(ctx, "customer-1"); unread != 0 {
		t.Fatalf("unread after second read = %d", unread)
	}
}

func TestSendMessageValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.activeTask(t, "customer-1")
	f.bid(t, task.ID, "executor-1")

	var validation *domain.ValidationError
	if _, err := f.service.SendMessage(ctx, task.ID, "executor-1", "customer-1", "   "); !errors.As(err, &validation) {
		t.Fatalf("blank text err = %v", err)
	}
	long := strings.Repeat("я", 501)
	if _, err := f.service.SendMessage(ctx, task.ID, "executor-1", "customer-1", long); !errors.As(err, &validation) {
		t.Fatalf("long text err = %v", err)
	}
	// 500 runes exactly is fine.
	if _, err := f.service.SendMessage(ctx, task.ID, "executor-1", "customer-1", strings.Repeat("я", 500)); err != nil {
		t.Fatalf("500-rune text: %v", err)
	}
	if _, err := f.service.SendMessage(ctx, task.ID, "customer-1", "customer-1", "hi"); !errors.As(err, &validation) {
		t.Fatalf("self message err = %v", err)
	}
	var notFound *domain.NotFoundError
	if _, err := f.service.SendMessage(ctx, "missing", "executor-1", "customer-1", "hi"); !errors.As(err, &notFound) {
		t.Fatalf("missing task err = %v", err)
	}
}

func TestChatAccessRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.activeTask(t, "customer-1")
	bid := f.bid(t, task.ID, "executor-1")
	f.bid(t, task.ID, "executor-2")

	// Bidders may negotiate with the owner before acceptance.
	if _, err := f.service.SendMessage(ctx, task.ID, "executor-2", "customer-1", "Can do it cheaper"); err != nil {
		t.Fatalf("bidder send: %v", err)
	}

	// A stranger with no bid and no history may not.
	var forbidden *domain.ForbiddenError
	if _, err := f.service.SendMessage(ctx, task.ID, "stranger-1", "customer-1", "hi"); !errors.As(err, &forbidden) {
		t.Fatalf("stranger send err = %v", err)
	}
	if _, err := f.service.ListMessages(ctx, task.ID, "stranger-1", "customer-1"); !errors.As(err, &forbidden) {
		t.Fatalf("stranger list err = %v", err)
	}

	if _, err := f.engine.AcceptBid(ctx, bid.ID, "customer-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// After acceptance the chosen executor still chats.
	if _, err := f.service.SendMessage(ctx, task.ID, "executor-1", "customer-1", "On my way"); err != nil {
		t.Fatalf("executor send: %v", err)
	}
	// The losing bidder's thread survives through their prior messages.
	if _, err := f.service.SendMessage(ctx, task.ID, "executor-2", "customer-1", "Understood, good luck"); err != nil {
		t.Fatalf("stale bidder send: %v", err)
	}
}

func TestListChatsSummaries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.activeTask(t, "customer-1")
	f.bid(t, task.ID, "executor-1")
	f.bid(t, task.ID, "executor-2")

	if _, err := f.service.SendMessage(ctx, task.ID, "executor-1", "customer-1", "first"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := f.service.SendMessage(ctx, task.ID, "executor-1", "customer-1", "second"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := f.service.SendMessage(ctx, task.ID, "executor-2", "customer-1", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}

	chats, err := f.service.ListChats(ctx, "customer-1")
	if err != nil {
		t.Fatalf("list chats: %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("chats = %d, want 2", len(chats))
	}
	byPeer := map[string]Chat{}
	for _, c := range chats {
		byPeer[c.PeerID] = c
	}
	first := byPeer["executor-1"]
	if first.LastMessage.Text != "second" || first.Unread != 2 {
		t.Fatalf("executor-1 chat = %+v", first)
	}
	if first.TaskTitle != task.Title {
		t.Fatalf("chat title = %q", first.TaskTitle)
	}
	if second := byPeer["executor-2"]; second.Unread != 1 {
		t.Fatalf("executor-2 chat = %+v", second)
	}

	// Each bidder sees only their own thread.
	executorChats, _ := f.service.ListChats(ctx, "executor-1")
	if len(executorChats) != 1 || executorChats[0].PeerID != "customer-1" {
		t.Fatalf("executor chats = %+v", executorChats)
	}
}

func TestChatParticipantsResolution(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.activeTask(t, "customer-1")
	bid := f.bid(t, task.ID, "executor-1")

	parties, err := f.service.ChatParticipants(ctx, task.ID)
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	if parties.CustomerID != "customer-1" || parties.ExecutorID != "" {
		t.Fatalf("pre-accept parties = %+v", parties)
	}

	if _, err := f.engine.AcceptBid(ctx, bid.ID, "customer-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	parties, err = f.service.ChatParticipants(ctx, task.ID)
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	if parties.ExecutorID != "executor-1" {
		t.Fatalf("post-accept parties = %+v", parties)
	}
}
