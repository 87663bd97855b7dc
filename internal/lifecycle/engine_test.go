package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/navodchik131/luggo-sub000/internal/domain"
	"github.com/navodchik131/luggo-sub000/internal/event"
	"github.com/navodchik131/luggo-sub000/internal/state"
)

type captureSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (c *captureSink) Publish(_ context.Context, ev event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureSink) byType(t event.Type) []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]event.Event, 0, len(c.events))
	for _, ev := range c.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func validInput() TaskInput {
	return TaskInput{
		Title:       "Переезд 2-комнатной квартиры",
		Description: "Перевезти мебель и коробки, есть лифт с обеих сторон.",
		FromAddress: "ул. Ленина 10",
		ToAddress:   "пр. Мира 5",
		Date:        time.Now().UTC().Add(72 * time.Hour),
		Category:    "apartment",
	}
}

func price(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCreateTaskBornActive(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	e := NewEngine(state.NewMemoryStore(), sink)

	task, err := e.CreateTask(ctx, "customer-1", validInput())
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Status != state.TaskActive {
		t.Fatalf("status = %q, want %q", task.Status, state.TaskActive)
	}
	if task.OwnerID != "customer-1" {
		t.Fatalf("owner = %q", task.OwnerID)
	}
	if got := sink.byType(event.TypeNewTask); len(got) != 1 || got[0].TaskID != task.ID {
		t.Fatalf("new_task events = %+v", got)
	}
}

func TestCreateTaskValidationAggregatesFields(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(state.NewMemoryStore(), nil)

	in := validInput()
	in.Title = "short"
	in.Description = "too short"
	in.FromAddress = ""
	in.Date = time.Now().UTC().Add(-48 * time.Hour)

	_, err := e.CreateTask(ctx, "customer-1", in)
	var validation *domain.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("err = %v, want validation error", err)
	}
	for _, field := range []string{"title", "description", "from_address", "date"} {
		if _, ok := validation.Fields[field]; !ok {
			t.Fatalf("missing %q in %+v", field, validation.Fields)
		}
	}
}

func TestSubmitBidRules(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	e := NewEngine(state.NewMemoryStore(), sink)
	task, _ := e.CreateTask(ctx, "customer-1", validInput())

	if _, err := e.SubmitBid(ctx, task.ID, "customer-1", price("100"), ""); err == nil {
		t.Fatal("self bid allowed")
	} else {
		var selfBid *domain.SelfBidError
		if !errors.As(err, &selfBid) {
			t.Fatalf("self bid err = %v", err)
		}
	}

	if _, err := e.SubmitBid(ctx, task.ID, "executor-1", price("0"), ""); err == nil {
		t.Fatal("zero price allowed")
	}

	bid, err := e.SubmitBid(ctx, task.ID, "executor-1", price("15000"), "Saturday works")
	if err != nil {
		t.Fatalf("submit bid: %v", err)
	}
	if bid.Accepted {
		t.Fatal("fresh bid marked accepted")
	}

	_, err = e.SubmitBid(ctx, task.ID, "executor-1", price("14000"), "")
	var duplicate *domain.DuplicateBidError
	if !errors.As(err, &duplicate) {
		t.Fatalf("duplicate err = %v", err)
	}

	if got := sink.byType(event.TypeNewBid); len(got) != 1 || got[0].RecipientID != "customer-1" {
		t.Fatalf("new_bid events = %+v", got)
	}

	if _, err := e.SubmitBid(ctx, "missing", "executor-1", price("10"), ""); err == nil {
		t.Fatal("bid on missing task allowed")
	}
}

func TestAcceptBidTransitionsAndSiblingsStayPending(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	e := NewEngine(state.NewMemoryStore(), sink)
	task, _ := e.CreateTask(ctx, "customer-1", validInput())
	first, _ := e.SubmitBid(ctx, task.ID, "executor-1", price("15000"), "")
	second, _ := e.SubmitBid(ctx, task.ID, "executor-2", price("13500"), "")

	if _, err := e.AcceptBid(ctx, first.ID, "executor-2"); err == nil {
		t.Fatal("non-owner accept allowed")
	} else {
		var forbidden *domain.ForbiddenError
		if !errors.As(err, &forbidden) {
			t.Fatalf("foreign accept err = %v", err)
		}
	}

	updated, err := e.AcceptBid(ctx, first.ID, "customer-1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if updated.Status != state.TaskInProgress {
		t.Fatalf("status = %q, want %q", updated.Status, state.TaskInProgress)
	}

	bids, _ := e.ListBids(ctx, task.ID)
	for _, b := range bids {
		switch b.ID {
		case first.ID:
			if !b.Accepted {
				t.Fatal("winning bid not marked accepted")
			}
		case second.ID:
			if b.Accepted {
				t.Fatal("sibling bid marked accepted")
			}
		}
	}

	// A second accept finds the task out of the active state.
	_, err = e.AcceptBid(ctx, second.ID, "customer-1")
	var invalidState *domain.InvalidStateError
	if !errors.As(err, &invalidState) {
		t.Fatalf("second accept err = %v", err)
	}

	if got := sink.byType(event.TypeBidAccepted); len(got) != 1 || got[0].RecipientID != "executor-1" {
		t.Fatalf("bid_accepted events = %+v", got)
	}
}

func TestConcurrentAcceptExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(state.NewMemoryStore(), nil)
	task, _ := e.CreateTask(ctx, "customer-1", validInput())

	bidIDs := make([]string, 8)
	for i := range bidIDs {
		b, err := e.SubmitBid(ctx, task.ID, "executor-"+string(rune('a'+i)), price("1000"), "")
		if err != nil {
			t.Fatalf("submit bid %d: %v", i, err)
		}
		bidIDs[i] = b.ID
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0
	for _, id := range bidIDs {
		wg.Add(1)
		go func(bidID string) {
			defer wg.Done()
			if _, err := e.AcceptBid(ctx, bidID, "customer-1"); err == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()
	if won != 1 {
		t.Fatalf("winners = %d, want 1", won)
	}

	accepted := 0
	bids, _ := e.ListBids(ctx, task.ID)
	for _, b := range bids {
		if b.Accepted {
			accepted++
		}
	}
	if accepted != 1 {
		t.Fatalf("accepted bids = %d, want 1", accepted)
	}
}

func TestCompletionHandshakeWithRework(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	e := NewEngine(state.NewMemoryStore(), sink)
	task, _ := e.CreateTask(ctx, "customer-1", validInput())
	bid, _ := e.SubmitBid(ctx, task.ID, "executor-1", price("15000"), "")
	if _, err := e.AcceptBid(ctx, bid.ID, "customer-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// Only the accepted executor may mark done.
	if _, err := e.MarkComplete(ctx, task.ID, "executor-2", ""); err == nil {
		t.Fatal("stranger completed the task")
	}

	done, err := e.MarkComplete(ctx, task.ID, "executor-1", "All boxes delivered")
	if err != nil {
		t.Fatalf("mark complete: %v", err)
	}
	if done.Status != state.TaskAwaitingConfirmation || done.CompletionComment != "All boxes delivered" {
		t.Fatalf("after complete = %+v", done)
	}

	// Only the owner confirms.
	if _, err := e.ConfirmCompletion(ctx, task.ID, "executor-1", true, nil); err == nil {
		t.Fatal("executor confirmed own work")
	}

	// The rework loop may repeat.
	for round := 0; round < 2; round++ {
		declined, err := e.ConfirmCompletion(ctx, task.ID, "customer-1", false, nil)
		if err != nil {
			t.Fatalf("decline round %d: %v", round, err)
		}
		if declined.Status != state.TaskInProgress {
			t.Fatalf("after decline = %q", declined.Status)
		}
		if _, err := e.MarkComplete(ctx, task.ID, "executor-1", ""); err != nil {
			t.Fatalf("redo round %d: %v", round, err)
		}
	}

	final, err := e.ConfirmCompletion(ctx, task.ID, "customer-1", true, &ReviewInput{Rating: 5, Comment: "Fast and careful"})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if final.Status != state.TaskCompleted {
		t.Fatalf("final = %q", final.Status)
	}

	reviews, err := e.ListReviews(ctx, "executor-1")
	if err != nil {
		t.Fatalf("list reviews: %v", err)
	}
	if len(reviews) != 1 || reviews[0].Rating != 5 || reviews[0].TaskID != task.ID {
		t.Fatalf("reviews = %+v", reviews)
	}
	if got := sink.byType(event.TypeReviewReceived); len(got) != 1 || got[0].RecipientID != "executor-1" {
		t.Fatalf("review_received events = %+v", got)
	}

	// Terminal state: no further transitions.
	if _, err := e.MarkComplete(ctx, task.ID, "executor-1", ""); err == nil {
		t.Fatal("completed task marked done again")
	}
	if _, err := e.ConfirmCompletion(ctx, task.ID, "customer-1", true, nil); err == nil {
		t.Fatal("completed task confirmed again")
	}
}

func TestConfirmRejectsOutOfRangeRating(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(state.NewMemoryStore(), nil)
	task, _ := e.CreateTask(ctx, "customer-1", validInput())
	bid, _ := e.SubmitBid(ctx, task.ID, "executor-1", price("15000"), "")
	_, _ = e.AcceptBid(ctx, bid.ID, "customer-1")
	_, _ = e.MarkComplete(ctx, task.ID, "executor-1", "")

	_, err := e.ConfirmCompletion(ctx, task.ID, "customer-1", true, &ReviewInput{Rating: 6})
	var validation *domain.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("err = %v, want validation error", err)
	}

	// The failed confirm must not have completed the task.
	current, _, _ := e.GetTask(ctx, task.ID)
	if current.Status != state.TaskAwaitingConfirmation {
		t.Fatalf("status after failed confirm = %q", current.Status)
	}
}

func TestCancelTaskFreezesActivity(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	e := NewEngine(state.NewMemoryStore(), sink)
	task, _ := e.CreateTask(ctx, "customer-1", validInput())
	bid, _ := e.SubmitBid(ctx, task.ID, "executor-1", price("15000"), "")

	if _, err := e.CancelTask(ctx, task.ID, "executor-1"); err == nil {
		t.Fatal("non-owner cancelled the task")
	}

	cancelled, err := e.CancelTask(ctx, task.ID, "customer-1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != state.TaskCancelled {
		t.Fatalf("status = %q", cancelled.Status)
	}

	// Bids are frozen, not erased.
	bids, _ := e.ListBids(ctx, task.ID)
	if len(bids) != 1 || bids[0].ID != bid.ID {
		t.Fatalf("bids after cancel = %+v", bids)
	}
	if _, err := e.SubmitBid(ctx, task.ID, "executor-2", price("10000"), ""); err == nil {
		t.Fatal("bid accepted on cancelled task")
	}
	if _, err := e.AcceptBid(ctx, bid.ID, "customer-1"); err == nil {
		t.Fatal("accept succeeded on cancelled task")
	}
	if _, err := e.CancelTask(ctx, task.ID, "customer-1"); err == nil {
		t.Fatal("double cancel succeeded")
	}

	// Every bidder hears about the cancellation.
	got := sink.byType(event.TypeTaskStatusChanged)
	found := false
	for _, ev := range got {
		if ev.RecipientID == "executor-1" && ev.TaskStatus == state.TaskCancelled {
			found = true
		}
	}
	if !found {
		t.Fatalf("bidder not notified of cancel: %+v", got)
	}
}

func TestListTasksFilters(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(state.NewMemoryStore(), nil)

	first, _ := e.CreateTask(ctx, "customer-1", validInput())
	in := validInput()
	in.Category = "office"
	_, _ = e.CreateTask(ctx, "customer-2", in)
	_, _ = e.CancelTask(ctx, first.ID, "customer-1")

	byOwner, _ := e.ListTasks(ctx, state.TaskFilter{OwnerID: "customer-1"})
	if len(byOwner) != 1 || byOwner[0].ID != first.ID {
		t.Fatalf("owner filter = %+v", byOwner)
	}
	byStatus, _ := e.ListTasks(ctx, state.TaskFilter{Status: state.TaskActive})
	if len(byStatus) != 1 || byStatus[0].Category != "office" {
		t.Fatalf("status filter = %+v", byStatus)
	}
	byCategory, _ := e.ListTasks(ctx, state.TaskFilter{Category: "office"})
	if len(byCategory) != 1 {
		t.Fatalf("category filter = %+v", byCategory)
	}
	limited, _ := e.ListTasks(ctx, state.TaskFilter{Limit: 1})
	if len(limited) != 1 {
		t.Fatalf("limit = %+v", limited)
	}
}
