package operation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"gitlab.com/savesync.net/internal/core/ports/primary"
	"gitlab.com/savesync.net/internal/core/ports/secondary"
	"gitlab.com/savesync.net/internal/core/services/background"
	"gitlab.com/savesync.net/internal/core/services/worker"
	"gitlab.com/savesync.net/internal/domain"
	"gitlab.com/savesync.net/internal/static/errs"
)

var _ IOperationQueue = (*OperationQueue)(nil)

// OperationQueue implements the IOperationQueue interface
type OperationQueue struct {
	opRepo     secondary.OperationRepository
	workers    WorkerDirectory
	background *background.Dispatcher
	logger     primary.Logger
	now        func() time.Time

	mu         sync.RWMutex
	dispatcher primary.OperationDispatcher
}

type Option func(*OperationQueue)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(q *OperationQueue) {
		q.now = now
	}
}

// NewOperationQueue creates a new operation queue
func NewOperationQueue(
	opRepo secondary.OperationRepository,
	workers WorkerDirectory,
	bg *background.Dispatcher,
	logger primary.Logger,
	opts ...Option,
) *OperationQueue {
	q := &OperationQueue{
		opRepo:     opRepo,
		workers:    workers,
		background: bg,
		logger:     logger,
		now:        time.Now,
		// Default no-op dispatcher
		dispatcher: noopDispatcher{},
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// SetDispatcher sets the transport used for immediate delivery
func (q *OperationQueue) SetDispatcher(dispatcher primary.OperationDispatcher) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if dispatcher == nil {
		dispatcher = noopDispatcher{}
	}
	q.dispatcher = dispatcher
}

func (q *OperationQueue) currentDispatcher() primary.OperationDispatcher {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.dispatcher
}

func validateRequest(req domain.CreateOperationRequest) error {
	if !req.OperationType.Valid() {
		return fmt.Errorf("%w: unknown operation type %q", errs.ErrInvalidOperation, req.OperationType)
	}
	if req.UserID == "" {
		return fmt.Errorf("%w: user_id is required", errs.ErrInvalidOperation)
	}
	if req.OperationType.NeedsLocalPath() && req.LocalSavePath == "" {
		return fmt.Errorf("%w: local_save_path is required for %s", errs.ErrInvalidOperation, req.OperationType)
	}
	if req.OperationType.NeedsRemotePath() && req.RemotePath == "" {
		return fmt.Errorf("%w: remote_path is required for %s", errs.ErrInvalidOperation, req.OperationType)
	}
	return nil
}

// Create adds an operation to the worker's inbox
func (q *OperationQueue) Create(ctx context.Context, req domain.CreateOperationRequest, clientID string) (string, error) {
	ids, err := q.CreateBatch(ctx, []domain.CreateOperationRequest{req}, clientID)
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// CreateBatch persists every request before delivering any of them. Ids are
// returned in request order.
func (q *OperationQueue) CreateBatch(ctx context.Context, reqs []domain.CreateOperationRequest, clientID string) ([]string, error) {
	if err := worker.ValidateClientID(clientID); err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: empty batch", errs.ErrInvalidOperation)
	}
	for _, req := range reqs {
		if err := validateRequest(req); err != nil {
			return nil, err
		}
	}

	if err := q.ensureWorker(ctx, clientID); err != nil {
		return nil, err
	}

	created := q.now().UTC()
	ops := make([]*domain.Operation, len(reqs))
	ids := make([]string, len(reqs))
	for i, req := range reqs {
		op := domain.NewOperation(uuid.NewString(), req, clientID, created)
		q.logger.Info("Queueing operation",
			"operationId", op.ID,
			"type", op.Type,
			"workerId", clientID,
			"userId", op.UserID)
		ops[i] = op
		ids[i] = op.ID
	}

	if err := q.opRepo.CreateOperations(ctx, ops); err != nil {
		q.logger.Error("Failed to save operations", "workerId", clientID, "count", len(ops), "error", err)
		return nil, fmt.Errorf("failed to save operation: %w", err)
	}

	for _, op := range ops {
		q.deliver(op)
	}
	return ids, nil
}

// deliver pushes op to a live connection in the background.
// Delivery is best effort: the inbox is replayed on the next connect.
func (q *OperationQueue) deliver(op *domain.Operation) {
	dispatcher := q.currentDispatcher()
	q.background.Go("deliver_operation", func(ctx context.Context) error {
		delivered, err := dispatcher.DeliverOperation(ctx, op)
		if err != nil {
			return fmt.Errorf("failed to deliver operation %s: %w", op.ID, err)
		}
		if !delivered {
			q.logger.Debug("Worker not connected, operation stays queued", "operationId", op.ID, "workerId", op.ClientID)
		}
		return nil
	})
}

// ensureWorker registers a worker that has never been seen
func (q *OperationQueue) ensureWorker(ctx context.Context, clientID string) error {
	_, err := q.workers.GetWorker(ctx, clientID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, errs.ErrWorkerNotFound) {
		return err
	}
	q.logger.Info("Registering worker on first operation", "workerId", clientID)
	if _, err := q.workers.Register(ctx, clientID, domain.RegisterOptions{}); err != nil {
		return fmt.Errorf("failed to register worker: %w", err)
	}
	return nil
}

func (q *OperationQueue) ResolveWorker(ctx context.Context, userID string) (string, error) {
	workers, err := q.workers.WorkersForUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(workers) == 0 {
		return "", errs.ErrNoWorkerAvailable
	}
	// a worker holding a live session gets the job without waiting for a poll
	for _, w := range workers {
		if w.WSConnected {
			return w.ClientID, nil
		}
	}
	return workers[0].ClientID, nil
}

// inbox loads the worker's inbox in FIFO order, dropping orphaned and terminal entries
func (q *OperationQueue) inbox(ctx context.Context, clientID string) ([]*domain.Operation, error) {
	ids, err := q.opRepo.InboxIDs(ctx, clientID)
	if err != nil {
		return nil, err
	}
	ops, err := q.opRepo.GetOperations(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*domain.Operation, len(ops))
	for _, op := range ops {
		byID[op.ID] = op
	}

	live := make([]*domain.Operation, 0, len(ops))
	for _, id := range ids {
		op, ok := byID[id]
		if !ok || op.Status.Terminal() {
			q.pruneInbox(ctx, clientID, id)
			continue
		}
		live = append(live, op)
	}
	return live, nil
}

func (q *OperationQueue) pruneInbox(ctx context.Context, clientID, id string) {
	q.logger.Debug("Pruning inbox entry", "workerId", clientID, "operationId", id)
	if err := q.opRepo.RemoveFromInbox(ctx, clientID, id); err != nil {
		q.logger.Warn("Failed to prune inbox entry", "workerId", clientID, "operationId", id, "error", err)
	}
}

func (q *OperationQueue) PendingForWorker(ctx context.Context, clientID string) ([]*domain.Operation, error) {
	if err := worker.ValidateClientID(clientID); err != nil {
		return nil, err
	}
	ops, err := q.inbox(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending operations: %w", err)
	}

	claimed := make([]*domain.Operation, 0, len(ops))
	for _, op := range ops {
		if op.Status != domain.OperationStatusPending {
			continue
		}
		now := q.now().UTC()
		res, err := q.opRepo.MarkStarted(ctx, op.ID, now)
		if err != nil {
			return nil, fmt.Errorf("failed to claim operation: %w", err)
		}
		switch res {
		case secondary.TransitionApplied:
			op.Status = domain.OperationStatusInProgress
			op.StartedAt = &now
			claimed = append(claimed, op)
		case secondary.TransitionNotFound:
			q.pruneInbox(ctx, clientID, op.ID)
		}
	}
	return claimed, nil
}

func (q *OperationQueue) PendingForWorkerSnapshot(ctx context.Context, clientID string) ([]*domain.Operation, error) {
	if err := worker.ValidateClientID(clientID); err != nil {
		return nil, err
	}
	ops, err := q.inbox(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending operations: %w", err)
	}

	pending := make([]*domain.Operation, 0, len(ops))
	for _, op := range ops {
		if op.Status == domain.OperationStatusPending {
			pending = append(pending, op)
		}
	}
	return pending, nil
}

func (q *OperationQueue) MarkInProgress(ctx context.Context, id string) error {
	res, err := q.opRepo.MarkStarted(ctx, id, q.now().UTC())
	if err != nil {
		return err
	}
	if res == secondary.TransitionNotFound {
		q.logger.Debug("Start signal for unknown operation", "operationId", id)
	}
	return nil
}

func (q *OperationQueue) UpdateProgress(ctx context.Context, id string, update domain.ProgressUpdate) error {
	res, err := q.opRepo.ApplyProgress(ctx, id, update, q.now().UTC())
	if err != nil {
		return err
	}
	switch res {
	case secondary.TransitionNotFound:
		q.logger.Debug("Progress for unknown operation", "operationId", id)
	case secondary.TransitionUnchanged:
		q.logger.Debug("Ignoring progress for finished operation", "operationId", id)
	}
	return nil
}

func (q *OperationQueue) Complete(ctx context.Context, id string, result map[string]interface{}) error {
	return q.finish(ctx, id, secondary.FinishOutcome{
		Status: domain.OperationStatusCompleted,
		Result: result,
	})
}

func (q *OperationQueue) Fail(ctx context.Context, id string, message string, category domain.ErrorCategory) error {
	if category == "" {
		category = domain.ErrorCategoryGeneric
	}
	return q.finish(ctx, id, secondary.FinishOutcome{
		Status:        domain.OperationStatusFailed,
		Error:         message,
		ErrorCategory: category,
	})
}

func (q *OperationQueue) finish(ctx context.Context, id string, outcome secondary.FinishOutcome) error {
	op, err := q.Get(ctx, id)
	if err != nil {
		return err
	}

	outcome.At = q.now().UTC()
	res, err := q.opRepo.Finish(ctx, id, outcome)
	if err != nil {
		q.logger.Error("Failed to finish operation", "operationId", id, "status", outcome.Status, "error", err)
		return err
	}
	switch res {
	case secondary.TransitionNotFound:
		return errs.ErrOperationNotFound
	case secondary.TransitionUnchanged:
		q.logger.Info("Operation already finished", "operationId", id, "status", op.Status)
	default:
		q.logger.Info("Operation finished", "operationId", id, "status", outcome.Status)
	}

	// the terminal state is durable already; a stale inbox entry is pruned on the next read
	if err := q.opRepo.RemoveFromInbox(ctx, op.ClientID, id); err != nil {
		q.logger.Warn("Failed to remove finished operation from inbox", "operationId", id, "workerId", op.ClientID, "error", err)
	}
	return nil
}

func (q *OperationQueue) Get(ctx context.Context, id string) (*domain.Operation, error) {
	if id == "" {
		return nil, errs.ErrOperationNotFound
	}
	op, err := q.opRepo.GetOperation(ctx, id)
	if err != nil {
		q.logger.Error("Failed to get operation", "operationId", id, "error", err)
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	if op == nil {
		return nil, errs.ErrOperationNotFound
	}
	return op, nil
}

func (q *OperationQueue) loadSorted(ctx context.Context, ids []string) ([]*domain.Operation, error) {
	ops, err := q.opRepo.GetOperations(ctx, ids)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(ops, func(i, j int) bool {
		return ops[i].CreatedAt.Before(ops[j].CreatedAt)
	})
	return ops, nil
}

func (q *OperationQueue) ListByGame(ctx context.Context, gameID string) ([]*domain.Operation, error) {
	ids, err := q.opRepo.OperationIDsByGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return q.loadSorted(ctx, ids)
}

func (q *OperationQueue) ListByUser(ctx context.Context, userID string) ([]*domain.Operation, error) {
	ids, err := q.opRepo.OperationIDsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return q.loadSorted(ctx, ids)
}

func (q *OperationQueue) ListByWorker(ctx context.Context, clientID string) ([]*domain.Operation, error) {
	ids, err := q.opRepo.InboxIDs(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return q.opRepo.GetOperations(ctx, ids)
}

func (q *OperationQueue) Status(ctx context.Context, id string, caller *domain.Caller) (domain.OperationStatusView, error) {
	op, err := q.Get(ctx, id)
	if err != nil {
		return domain.OperationStatusView{}, err
	}
	if caller != nil && !caller.CanAccess(op.UserID) {
		return domain.OperationStatusView{}, errs.ErrForbidden
	}
	return op.StatusView(), nil
}

func (q *OperationQueue) ListStale(ctx context.Context, olderThan time.Duration) ([]*domain.Operation, error) {
	cutoff := q.now().Add(-olderThan)
	ids, err := q.opRepo.OperationIDsCreatedBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	ops, err := q.opRepo.GetOperations(ctx, ids)
	if err != nil {
		return nil, err
	}

	stale := make([]*domain.Operation, 0)
	for _, op := range ops {
		if op.Status.Terminal() {
			continue
		}
		lastActivity := op.CreatedAt
		if op.StartedAt != nil {
			lastActivity = *op.StartedAt
		}
		if lastActivity.Before(cutoff) {
			stale = append(stale, op)
		}
	}
	return stale, nil
}

func (q *OperationQueue) Purge(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := q.now().Add(-olderThan)
	ids, err := q.opRepo.OperationIDsCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	ops, err := q.opRepo.GetOperations(ctx, ids)
	if err != nil {
		return 0, err
	}

	found := make(map[string]bool, len(ops))
	purged := 0
	for _, op := range ops {
		found[op.ID] = true
		if !op.Status.Terminal() || op.CompletedAt == nil || !op.CompletedAt.Before(cutoff) {
			continue
		}
		if err := q.opRepo.DeleteOperation(ctx, op); err != nil {
			return purged, err
		}
		purged++
	}

	// index entries whose record is already gone
	for _, id := range ids {
		if found[id] {
			continue
		}
		if err := q.opRepo.DeleteOperation(ctx, &domain.Operation{ID: id}); err != nil {
			return purged, err
		}
	}

	q.logger.Info("Purged finished operations", "count", purged, "olderThan", olderThan.String())
	return purged, nil
}

type noopDispatcher struct{}

func (noopDispatcher) DeliverOperation(context.Context, *domain.Operation) (bool, error) {
	return false, nil
}
