package lifecycle

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/navodchik131/luggo-sub000/internal/domain"
	"github.com/navodchik131/luggo-sub000/internal/event"
	"github.com/navodchik131/luggo-sub000/internal/observability"
	"github.com/navodchik131/luggo-sub000/internal/state"
)

const (
	minTitleLen       = 10
	minDescriptionLen = 20
	maxRating         = 5
)

// Engine owns the task/bid state machine. Every mutation locks the task id
// for its full read-validate-write span, so no two transitions on the same
// task can interleave. Events are emitted only after the store write
// succeeded.
type Engine struct {
	store state.Store
	sink  event.Sink
	locks *taskLocks
}

func NewEngine(store state.Store, sink event.Sink) *Engine {
	if sink == nil {
		sink = event.Discard
	}
	return &Engine{store: store, sink: sink, locks: newTaskLocks()}
}

// TaskInput carries the customer-supplied fields of a new task.
type TaskInput struct {
	Title       string
	Description string
	FromAddress string
	ToAddress   string
	Date        time.Time
	Category    string
}

// ReviewInput is the optional review attached to a positive completion
// confirmation.
type ReviewInput struct {
	Rating  int
	Comment string
}

// CreateTask validates the input and publishes the task immediately: tasks
// are born active, draft exists only for pre-validated imports.
func (e *Engine) CreateTask(ctx context.Context, ownerID string, in TaskInput) (state.TaskRecord, error) {
	ctx, span := observability.StartSpan(ctx, "lifecycle.create_task",
		attribute.String("owner.id", ownerID),
	)
	defer span.End()

	fields := map[string]string{}
	if utf8.RuneCountInString(strings.TrimSpace(in.Title)) < minTitleLen {
		fields["title"] = "must be at least 10 characters"
	}
	if utf8.RuneCountInString(strings.TrimSpace(in.Description)) < minDescriptionLen {
		fields["description"] = "must be at least 20 characters"
	}
	if strings.TrimSpace(in.FromAddress) == "" {
		fields["from_address"] = "must not be empty"
	}
	if strings.TrimSpace(in.ToAddress) == "" {
		fields["to_address"] = "must not be empty"
	}
	if in.Date.Before(startOfToday()) {
		fields["date"] = "must not be in the past"
	}
	if len(fields) > 0 {
		return state.TaskRecord{}, &domain.ValidationError{Fields: fields}
	}

	task := state.TaskRecord{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		FromAddress: strings.TrimSpace(in.FromAddress),
		ToAddress:   strings.TrimSpace(in.ToAddress),
		Date:        in.Date.UTC(),
		Category:    strings.TrimSpace(in.Category),
		Status:      state.TaskActive,
	}
	if err := e.store.CreateTask(ctx, task); err != nil {
		return state.TaskRecord{}, err
	}
	observability.Default.IncCounter("lifecycle_transitions_total", map[string]string{"op": "create_task", "to": task.Status}, 1)
	e.sink.Publish(ctx, event.Event{
		Type:      event.TypeNewTask,
		TaskID:    task.ID,
		TaskTitle: task.Title,
		ActorID:   ownerID,
	})
	return task, nil
}

func (e *Engine) GetTask(ctx context.Context, taskID string) (state.TaskRecord, bool, error) {
	return e.store.GetTask(ctx, taskID)
}

func (e *Engine) ListTasks(ctx context.Context, filter state.TaskFilter) ([]state.TaskRecord, error) {
	return e.store.ListTasks(ctx, filter)
}

func (e *Engine) ListBids(ctx context.Context, taskID string) ([]state.BidRecord, error) {
	if _, ok, err := e.store.GetTask(ctx, taskID); err != nil {
		return nil, err
	} else if !ok {
		return nil, &domain.NotFoundError{Kind: "task", ID: taskID}
	}
	return e.store.ListBidsByTask(ctx, taskID)
}

func (e *Engine) ListReviews(ctx context.Context, executorID string) ([]state.ReviewRecord, error) {
	return e.store.ListReviewsByExecutor(ctx, executorID)
}

// SubmitBid records an executor's priced offer on an active task. One bid
// per executor per task.
func (e *Engine) SubmitBid(ctx context.Context, taskID, executorID string, price decimal.Decimal, comment string) (state.BidRecord, error) {
	ctx, span := observability.StartSpan(ctx, "lifecycle.submit_bid",
		attribute.String("task.id", taskID),
		attribute.String("executor.id", executorID),
	)
	defer span.End()

	unlock := e.locks.lock(taskID)
	defer unlock()

	task, ok, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return state.BidRecord{}, err
	}
	if !ok {
		return state.BidRecord{}, &domain.NotFoundError{Kind: "task", ID: taskID}
	}
	if task.Status != state.TaskActive {
		return state.BidRecord{}, &domain.InvalidStateError{Op: "submit_bid", Current: task.Status}
	}
	if executorID == task.OwnerID {
		return state.BidRecord{}, &domain.SelfBidError{TaskID: taskID}
	}
	if !price.IsPositive() {
		return state.BidRecord{}, &domain.ValidationError{Fields: map[string]string{"price": "must be positive"}}
	}
	if _, exists, err := e.store.GetBidByTaskExecutor(ctx, taskID, executorID); err != nil {
		return state.BidRecord{}, err
	} else if exists {
		return state.BidRecord{}, &domain.DuplicateBidError{TaskID: taskID, ExecutorID: executorID}
	}

	bid := state.BidRecord{
		ID:         uuid.NewString(),
		TaskID:     taskID,
		ExecutorID: executorID,
		Price:      price,
		Comment:    strings.TrimSpace(comment),
	}
	if err := e.store.CreateBid(ctx, bid); err != nil {
		return state.BidRecord{}, err
	}
	observability.Default.IncCounter("lifecycle_bids_total", map[string]string{"result": "created"}, 1)
	e.sink.Publish(ctx, event.Event{
		Type:        event.TypeNewBid,
		TaskID:      taskID,
		TaskTitle:   task.Title,
		ActorID:     executorID,
		RecipientID: task.OwnerID,
		BidID:       bid.ID,
		Price:       price.String(),
	})
	return bid, nil
}

// AcceptBid moves the task to in_progress and marks the bid accepted.
// Sibling bids are left untouched: they stay visible as unaccepted history
// rather than being auto-rejected.
func (e *Engine) AcceptBid(ctx context.Context, bidID, callerID string) (state.TaskRecord, error) {
	ctx, span := observability.StartSpan(ctx, "lifecycle.accept_bid",
		attribute.String("bid.id", bidID),
	)
	defer span.End()

	bid, ok, err := e.store.GetBid(ctx, bidID)
	if err != nil {
		return state.TaskRecord{}, err
	}
	if !ok {
		return state.TaskRecord{}, &domain.NotFoundError{Kind: "bid", ID: bidID}
	}

	unlock := e.locks.lock(bid.TaskID)
	defer unlock()

	// Re-read under the lock: a concurrent accept may have raced us here.
	bid, ok, err = e.store.GetBid(ctx, bidID)
	if err != nil {
		return state.TaskRecord{}, err
	}
	if !ok {
		return state.TaskRecord{}, &domain.NotFoundError{Kind: "bid", ID: bidID}
	}
	task, ok, err := e.store.GetTask(ctx, bid.TaskID)
	if err != nil {
		return state.TaskRecord{}, err
	}
	if !ok {
		return state.TaskRecord{}, &domain.NotFoundError{Kind: "task", ID: bid.TaskID}
	}
	if task.OwnerID != callerID {
		return state.TaskRecord{}, &domain.ForbiddenError{Reason: "only the task owner may accept a bid"}
	}
	if task.Status != state.TaskActive {
		return state.TaskRecord{}, &domain.InvalidStateError{Op: "accept_bid", Current: task.Status}
	}

	bid.Accepted = true
	if err := e.store.UpdateBid(ctx, bid); err != nil {
		return state.TaskRecord{}, err
	}
	task.Status = state.TaskInProgress
	if err := e.store.UpdateTask(ctx, task); err != nil {
		return state.TaskRecord{}, err
	}
	observability.Default.IncCounter("lifecycle_transitions_total", map[string]string{"op": "accept_bid", "to": task.Status}, 1)
	e.sink.Publish(ctx, event.Event{
		Type:        event.TypeBidAccepted,
		TaskID:      task.ID,
		TaskTitle:   task.Title,
		ActorID:     callerID,
		RecipientID: bid.ExecutorID,
		BidID:       bid.ID,
		Price:       bid.Price.String(),
	})
	e.publishStatusChanged(ctx, task, callerID, task.OwnerID, bid.ExecutorID)
	return task, nil
}

// MarkComplete is the executor's half of the completion handshake.
func (e *Engine) MarkComplete(ctx context.Context, taskID, executorID, comment string) (state.TaskRecord, error) {
	ctx, span := observability.StartSpan(ctx, "lifecycle.mark_complete",
		attribute.String("task.id", taskID),
	)
	defer span.End()

	unlock := e.locks.lock(taskID)
	defer unlock()

	task, ok, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return state.TaskRecord{}, err
	}
	if !ok {
		return state.TaskRecord{}, &domain.NotFoundError{Kind: "task", ID: taskID}
	}
	if task.Status != state.TaskInProgress {
		return state.TaskRecord{}, &domain.InvalidStateError{Op: "mark_complete", Current: task.Status}
	}
	accepted, ok, err := e.store.GetAcceptedBid(ctx, taskID)
	if err != nil {
		return state.TaskRecord{}, err
	}
	if !ok || accepted.ExecutorID != executorID {
		return state.TaskRecord{}, &domain.ForbiddenError{Reason: "only the accepted executor may mark the task complete"}
	}

	task.Status = state.TaskAwaitingConfirmation
	task.CompletionComment = strings.TrimSpace(comment)
	if err := e.store.UpdateTask(ctx, task); err != nil {
		return state.TaskRecord{}, err
	}
	observability.Default.IncCounter("lifecycle_transitions_total", map[string]string{"op": "mark_complete", "to": task.Status}, 1)
	e.sink.Publish(ctx, event.Event{
		Type:        event.TypeTaskCompleted,
		TaskID:      task.ID,
		TaskTitle:   task.Title,
		TaskStatus:  task.Status,
		ActorID:     executorID,
		RecipientID: task.OwnerID,
	})
	return task, nil
}

// ConfirmCompletion is the customer's half of the handshake. Declining
// returns the task to in_progress; the rework loop may repeat any number
// of times.
func (e *Engine) ConfirmCompletion(ctx context.Context, taskID, ownerID string, confirmed bool, review *ReviewInput) (state.TaskRecord, error) {
	ctx, span := observability.StartSpan(ctx, "lifecycle.confirm_completion",
		attribute.String("task.id", taskID),
		attribute.Bool("confirmed", confirmed),
	)
	defer span.End()

	unlock := e.locks.lock(taskID)
	defer unlock()

	task, ok, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return state.TaskRecord{}, err
	}
	if !ok {
		return state.TaskRecord{}, &domain.NotFoundError{Kind: "task", ID: taskID}
	}
	if task.OwnerID != ownerID {
		return state.TaskRecord{}, &domain.ForbiddenError{Reason: "only the task owner may confirm completion"}
	}
	if task.Status != state.TaskAwaitingConfirmation {
		return state.TaskRecord{}, &domain.InvalidStateError{Op: "confirm_completion", Current: task.Status}
	}
	accepted, ok, err := e.store.GetAcceptedBid(ctx, taskID)
	if err != nil {
		return state.TaskRecord{}, err
	}
	if !ok {
		return state.TaskRecord{}, &domain.NotFoundError{Kind: "accepted bid for task", ID: taskID}
	}

	if !confirmed {
		task.Status = state.TaskInProgress
		if err := e.store.UpdateTask(ctx, task); err != nil {
			return state.TaskRecord{}, err
		}
		observability.Default.IncCounter("lifecycle_transitions_total", map[string]string{"op": "confirm_completion", "to": task.Status}, 1)
		e.publishStatusChanged(ctx, task, ownerID, task.OwnerID, accepted.ExecutorID)
		return task, nil
	}

	if review != nil {
		if review.Rating < 1 || review.Rating > maxRating {
			return state.TaskRecord{}, &domain.ValidationError{Fields: map[string]string{"rating": "must be between 1 and 5"}}
		}
	}
	task.Status = state.TaskCompleted
	if err := e.store.UpdateTask(ctx, task); err != nil {
		return state.TaskRecord{}, err
	}
	if review != nil {
		rec := state.ReviewRecord{
			ID:         uuid.NewString(),
			TaskID:     task.ID,
			BidID:      accepted.ID,
			AuthorID:   ownerID,
			ExecutorID: accepted.ExecutorID,
			Rating:     review.Rating,
			Comment:    strings.TrimSpace(review.Comment),
		}
		if err := e.store.CreateReview(ctx, rec); err != nil {
			return state.TaskRecord{}, err
		}
		e.sink.Publish(ctx, event.Event{
			Type:        event.TypeReviewReceived,
			TaskID:      task.ID,
			TaskTitle:   task.Title,
			ActorID:     ownerID,
			RecipientID: accepted.ExecutorID,
			Rating:      review.Rating,
		})
	}
	observability.Default.IncCounter("lifecycle_transitions_total", map[string]string{"op": "confirm_completion", "to": task.Status}, 1)
	e.publishStatusChanged(ctx, task, ownerID, task.OwnerID, accepted.ExecutorID)
	return task, nil
}

// CancelTask soft-cancels a draft or active task. Existing bids are frozen
// in place, never deleted.
func (e *Engine) CancelTask(ctx context.Context, taskID, ownerID string) (state.TaskRecord, error) {
	ctx, span := observability.StartSpan(ctx, "lifecycle.cancel_task",
		attribute.String("task.id", taskID),
	)
	defer span.End()

	unlock := e.locks.lock(taskID)
	defer unlock()

	task, ok, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return state.TaskRecord{}, err
	}
	if !ok {
		return state.TaskRecord{}, &domain.NotFoundError{Kind: "task", ID: taskID}
	}
	if task.OwnerID != ownerID {
		return state.TaskRecord{}, &domain.ForbiddenError{Reason: "only the task owner may cancel"}
	}
	if task.Status != state.TaskDraft && task.Status != state.TaskActive {
		return state.TaskRecord{}, &domain.InvalidStateError{Op: "cancel", Current: task.Status}
	}

	task.Status = state.TaskCancelled
	if err := e.store.UpdateTask(ctx, task); err != nil {
		return state.TaskRecord{}, err
	}
	observability.Default.IncCounter("lifecycle_transitions_total", map[string]string{"op": "cancel", "to": task.Status}, 1)
	bids, err := e.store.ListBidsByTask(ctx, taskID)
	if err != nil {
		return state.TaskRecord{}, err
	}
	for _, b := range bids {
		e.sink.Publish(ctx, event.Event{
			Type:        event.TypeTaskStatusChanged,
			TaskID:      task.ID,
			TaskTitle:   task.Title,
			TaskStatus:  task.Status,
			ActorID:     ownerID,
			RecipientID: b.ExecutorID,
		})
	}
	return task, nil
}

func (e *Engine) publishStatusChanged(ctx context.Context, task state.TaskRecord, actorID string, recipients ...string) {
	seen := make(map[string]struct{}, len(recipients))
	for _, r := range recipients {
		if r == "" {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		e.sink.Publish(ctx, event.Event{
			Type:        event.TypeTaskStatusChanged,
			TaskID:      task.ID,
			TaskTitle:   task.Title,
			TaskStatus:  task.Status,
			ActorID:     actorID,
			RecipientID: r,
		})
	}
}

func startOfToday() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
