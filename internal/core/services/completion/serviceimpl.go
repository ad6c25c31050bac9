package completion

import (
	"context"
	"errors"
	"time"

	"gitlab.com/savesync.net/internal/core/ports/primary"
	"gitlab.com/savesync.net/internal/core/ports/secondary"
	"gitlab.com/savesync.net/internal/core/services/operation"
	"gitlab.com/savesync.net/internal/domain"
	"gitlab.com/savesync.net/internal/static/errs"
)

var _ ICompletionCoordinator = (*CompletionCoordinator)(nil)

type CompletionCoordinator struct {
	queue   operation.IOperationQueue
	catalog secondary.CatalogPort
	logger  primary.Logger
	now     func() time.Time
}

type Option func(*CompletionCoordinator)

func WithClock(now func() time.Time) Option {
	return func(c *CompletionCoordinator) {
		c.now = now
	}
}

func NewCompletionCoordinator(queue operation.IOperationQueue, catalog secondary.CatalogPort, logger primary.Logger, opts ...Option) *CompletionCoordinator {
	c := &CompletionCoordinator{
		queue:   queue,
		catalog: catalog,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CompletionCoordinator) HandleCompletion(ctx context.Context, report domain.CompletionReport) error {
	if report.Success {
		return c.record(ctx, report.OperationID, func() error {
			return c.queue.Complete(ctx, report.OperationID, report.Result)
		})
	}

	category, message := domain.NormalizeError(report.Error)
	return c.record(ctx, report.OperationID, func() error {
		return c.queue.Fail(ctx, report.OperationID, message, category)
	})
}

func (c *CompletionCoordinator) ExpireOperation(ctx context.Context, id string) error {
	return c.record(ctx, id, func() error {
		return c.queue.Fail(ctx, id, domain.MessageFor(domain.ErrorCategoryTimeout), domain.ErrorCategoryTimeout)
	})
}

func (c *CompletionCoordinator) ExpireStale(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := c.queue.ListStale(ctx, olderThan)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, op := range stale {
		if err := c.ExpireOperation(ctx, op.ID); err != nil {
			if errors.Is(err, errs.ErrOperationNotFound) {
				continue
			}
			return expired, err
		}
		expired++
	}
	if expired > 0 {
		c.logger.Info("Expired stale operations", "count", expired, "olderThan", olderThan.String())
	}
	return expired, nil
}

// record writes the outcome, then runs bookkeeping and barrier checks whatever the write returned
func (c *CompletionCoordinator) record(ctx context.Context, id string, write func() error) error {
	op, err := c.queue.Get(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrOperationNotFound) {
			c.logger.Info("Completion for unknown operation", "operationId", id)
		}
		return err
	}

	writeErr := write()
	if writeErr != nil {
		c.logger.Error("Failed to record operation outcome", "operationId", id, "error", writeErr)
	}

	final, err := c.queue.Get(ctx, id)
	if err != nil {
		c.logger.Warn("Failed to reload operation after completion", "operationId", id, "error", err)
		final = op
	}
	if !final.Status.Terminal() {
		return writeErr
	}

	c.slotBookkeeping(ctx, final)
	c.checkGameBarrier(ctx, final)
	c.checkAccountBarrier(ctx, final)
	return writeErr
}

func (c *CompletionCoordinator) slotBookkeeping(ctx context.Context, op *domain.Operation) {
	if op.GameID == "" {
		return
	}

	switch {
	case op.Status == domain.OperationStatusCompleted && op.Type == domain.OperationTypeSave:
		if err := c.catalog.TouchSaveActivity(ctx, op.UserID, op.GameID, op.SaveFolderNumber, c.now().UTC()); err != nil {
			c.logger.Warn("Failed to record save activity", "operationId", op.ID, "gameId", op.GameID, "error", err)
		}

	case op.Status == domain.OperationStatusCompleted && op.Type == domain.OperationTypeDelete && op.SaveFolderNumber != nil:
		c.dropSlotIfUnused(ctx, op)

	case op.Status == domain.OperationStatusFailed && op.Type == domain.OperationTypeSave &&
		op.ErrorCategory == domain.ErrorCategoryNothingToSave && op.SaveFolderNumber != nil:
		c.dropSlotIfUnused(ctx, op)
	}
}

// dropSlotIfUnused removes the slot record when no other operation still works on it
func (c *CompletionCoordinator) dropSlotIfUnused(ctx context.Context, op *domain.Operation) {
	ops, err := c.queue.ListByUser(ctx, op.UserID)
	if err != nil {
		c.logger.Warn("Failed to list operations for slot cleanup", "operationId", op.ID, "error", err)
		return
	}
	for _, other := range ops {
		if other.ID != op.ID && !other.Status.Terminal() && other.SameSlot(op) {
			c.logger.Debug("Keeping save folder still in use", "operationId", op.ID, "otherOperationId", other.ID)
			return
		}
	}

	if err := c.catalog.DeleteSaveFolder(ctx, op.UserID, op.GameID, *op.SaveFolderNumber); err != nil {
		c.logger.Warn("Failed to delete save folder record", "operationId", op.ID, "gameId", op.GameID, "error", err)
		return
	}
	c.logger.Info("Removed save folder record", "userId", op.UserID, "gameId", op.GameID, "folder", *op.SaveFolderNumber)
}

func (c *CompletionCoordinator) checkGameBarrier(ctx context.Context, op *domain.Operation) {
	if op.GameID == "" || op.OperationGroup != domain.GroupDeleteGame {
		return
	}
	game, err := c.catalog.GetGame(ctx, op.GameID)
	if err != nil {
		c.logger.Warn("Failed to load game for deletion barrier", "gameId", op.GameID, "error", err)
		return
	}
	if game == nil || !game.PendingDeletion || !isGameDeletionMember(op, game) {
		return
	}

	ops, err := c.queue.ListByGame(ctx, game.ID)
	if err != nil {
		c.logger.Warn("Failed to list game deletion group", "gameId", game.ID, "error", err)
		return
	}
	siblings := siblingsOf(op, ops, func(o *domain.Operation) bool { return isGameDeletionMember(o, game) })

	decision := decideBarrier(op, siblings)
	c.logger.Info("Game deletion barrier", "gameId", game.ID, "operationId", op.ID, "members", len(siblings)+1, "decision", decision.String())

	switch decision {
	case barrierFinalize:
		if err := c.catalog.DeleteGame(ctx, game.ID); err != nil {
			c.logger.Error("Failed to finalize game deletion", "gameId", game.ID, "error", err)
		}
	case barrierRollback:
		if err := c.catalog.ClearGamePendingDeletion(ctx, game.ID); err != nil {
			c.logger.Error("Failed to roll back game deletion", "gameId", game.ID, "error", err)
		}
	}
}

func (c *CompletionCoordinator) checkAccountBarrier(ctx context.Context, op *domain.Operation) {
	if op.UserID == "" || op.OperationGroup != domain.GroupDeleteUser {
		return
	}
	account, err := c.catalog.GetAccount(ctx, op.UserID)
	if err != nil {
		c.logger.Warn("Failed to load account for deletion barrier", "userId", op.UserID, "error", err)
		return
	}
	if account == nil || !account.PendingDeletion || !isAccountDeletionMember(op, account) {
		return
	}

	ops, err := c.queue.ListByUser(ctx, account.ID)
	if err != nil {
		c.logger.Warn("Failed to list account deletion group", "userId", account.ID, "error", err)
		return
	}
	siblings := siblingsOf(op, ops, func(o *domain.Operation) bool { return isAccountDeletionMember(o, account) })

	decision := decideBarrier(op, siblings)
	c.logger.Info("Account deletion barrier", "userId", account.ID, "operationId", op.ID, "members", len(siblings)+1, "decision", decision.String())

	switch decision {
	case barrierFinalize:
		if err := c.catalog.DeleteAccount(ctx, account.ID); err != nil {
			c.logger.Error("Failed to finalize account deletion", "userId", account.ID, "error", err)
		}
	case barrierRollback:
		if err := c.catalog.ClearAccountPendingDeletion(ctx, account.ID); err != nil {
			c.logger.Error("Failed to roll back account deletion", "userId", account.ID, "error", err)
		}
	}
}
