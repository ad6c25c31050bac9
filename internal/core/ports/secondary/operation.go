package secondary

import (
	"context"
	"time"

	"gitlab.com/savesync.net/internal/domain"
)

// TransitionResult is the outcome of a conditional status write
type TransitionResult int

const (
	// TransitionNotFound means the operation record does not exist
	TransitionNotFound TransitionResult = iota
	// TransitionApplied means the record was written
	TransitionApplied
	// TransitionUnchanged means the record was already at or past the requested state
	TransitionUnchanged
)

type OperationRepository interface {
	// CreateOperation writes the record, appends it to the worker inbox and indexes it
	CreateOperation(ctx context.Context, op *domain.Operation) error

	// CreateOperations is CreateOperation for a batch, all or nothing
	CreateOperations(ctx context.Context, ops []*domain.Operation) error

	// GetOperation retrieves an operation by ID, nil when absent
	GetOperation(ctx context.Context, id string) (*domain.Operation, error)

	// GetOperations loads many records; the result has no entries for missing ids
	GetOperations(ctx context.Context, ids []string) ([]*domain.Operation, error)

	InboxIDs(ctx context.Context, clientID string) ([]string, error)

	RemoveFromInbox(ctx context.Context, clientID, id string) error

	// MarkStarted moves a pending operation to in_progress
	MarkStarted(ctx context.Context, id string, now time.Time) (TransitionResult, error)

	// ApplyProgress writes progress fields, re-asserting in_progress on a pending record
	ApplyProgress(ctx context.Context, id string, update domain.ProgressUpdate, now time.Time) (TransitionResult, error)

	// Finish writes a terminal state unless the record is already terminal
	Finish(ctx context.Context, id string, outcome FinishOutcome) (TransitionResult, error)

	OperationIDsByUser(ctx context.Context, userID string) ([]string, error)

	OperationIDsByGame(ctx context.Context, gameID string) ([]string, error)

	// OperationIDsCreatedBefore lists ids created strictly before cutoff, oldest first
	OperationIDsCreatedBefore(ctx context.Context, cutoff time.Time) ([]string, error)

	// DeleteOperation removes the record and every index entry
	DeleteOperation(ctx context.Context, op *domain.Operation) error
}

// FinishOutcome carries the terminal write of an operation
type FinishOutcome struct {
	Status        domain.OperationStatus
	Result        map[string]interface{}
	Error         string
	ErrorCategory domain.ErrorCategory
	At            time.Time
}
