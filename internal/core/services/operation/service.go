package operation

import (
	"context"
	"time"

	"gitlab.com/savesync.net/internal/core/ports/primary"
	"gitlab.com/savesync.net/internal/domain"
)

// IOperationQueue creates operations, assigns them to one worker inbox and exposes their state
type IOperationQueue interface {
	// Create validates and persists a pending operation for clientID and tries to deliver it
	Create(ctx context.Context, req domain.CreateOperationRequest, clientID string) (string, error)

	// CreateBatch persists all requests atomically, then delivers them in order
	CreateBatch(ctx context.Context, reqs []domain.CreateOperationRequest, clientID string) ([]string, error)

	// ResolveWorker picks a live worker owned by userID
	ResolveWorker(ctx context.Context, userID string) (string, error)

	// PendingForWorker claims every pending operation of the worker, moving it to in_progress
	PendingForWorker(ctx context.Context, clientID string) ([]*domain.Operation, error)

	// PendingForWorkerSnapshot lists pending operations without changing them
	PendingForWorkerSnapshot(ctx context.Context, clientID string) ([]*domain.Operation, error)

	MarkInProgress(ctx context.Context, id string) error
	UpdateProgress(ctx context.Context, id string, update domain.ProgressUpdate) error

	// Complete and Fail write a terminal state; a second terminal write is a no-op
	Complete(ctx context.Context, id string, result map[string]interface{}) error
	Fail(ctx context.Context, id string, message string, category domain.ErrorCategory) error

	Get(ctx context.Context, id string) (*domain.Operation, error)
	ListByGame(ctx context.Context, gameID string) ([]*domain.Operation, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Operation, error)
	ListByWorker(ctx context.Context, clientID string) ([]*domain.Operation, error)

	// Status is the polling view; a non-nil caller must be allowed to see the owner's data
	Status(ctx context.Context, id string, caller *domain.Caller) (domain.OperationStatusView, error)

	// ListStale lists non-terminal operations idle for longer than olderThan
	ListStale(ctx context.Context, olderThan time.Duration) ([]*domain.Operation, error)

	// Purge deletes terminal operations finished more than olderThan ago
	Purge(ctx context.Context, olderThan time.Duration) (int, error)

	SetDispatcher(dispatcher primary.OperationDispatcher)
}

// WorkerDirectory is the part of the worker registry the queue relies on
type WorkerDirectory interface {
	GetWorker(ctx context.Context, clientID string) (*domain.WorkerInfo, error)
	Register(ctx context.Context, clientID string, opts domain.RegisterOptions) (*domain.WorkerInfo, error)
	WorkersForUser(ctx context.Context, userID string) ([]*domain.WorkerInfo, error)
}
