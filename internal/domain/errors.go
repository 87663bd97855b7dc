package domain

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError reports per-field input violations. Callers can correct
// the input and retry.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// InvalidStateError means the operation is not legal in the task's current
// status. The task is left untouched.
type InvalidStateError struct {
	Op      string
	Current string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s is not allowed while task is %s", e.Op, e.Current)
}

// ForbiddenError means the caller lacks the required relationship to the
// resource (not owner, not accepted executor, not recipient).
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	if e.Reason == "" {
		return "forbidden"
	}
	return "forbidden: " + e.Reason
}

// DuplicateBidError means the executor already has a bid on the task.
type DuplicateBidError struct {
	TaskID     string
	ExecutorID string
}

func (e *DuplicateBidError) Error() string {
	return fmt.Sprintf("executor %s already has a bid on task %s", e.ExecutorID, e.TaskID)
}

// SelfBidError means a customer tried to bid on their own task.
type SelfBidError struct {
	TaskID string
}

func (e *SelfBidError) Error() string {
	return fmt.Sprintf("cannot bid on own task %s", e.TaskID)
}

// NotFoundError means the referenced record does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}
