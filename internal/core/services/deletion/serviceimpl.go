package deletion

import (
	"context"
	"fmt"
	"path"
	"time"

	"gitlab.com/savesync.net/internal/core/ports/primary"
	"gitlab.com/savesync.net/internal/core/ports/secondary"
	"gitlab.com/savesync.net/internal/core/services/operation"
	"gitlab.com/savesync.net/internal/domain"
	"gitlab.com/savesync.net/internal/static/errs"
)

var _ IDeletionPlanner = (*DeletionPlanner)(nil)

type DeletionPlanner struct {
	queue   operation.IOperationQueue
	catalog secondary.CatalogPort
	logger  primary.Logger
	now     func() time.Time
}

type Option func(*DeletionPlanner)

func WithClock(now func() time.Time) Option {
	return func(p *DeletionPlanner) {
		p.now = now
	}
}

func NewDeletionPlanner(queue operation.IOperationQueue, catalog secondary.CatalogPort, logger primary.Logger, opts ...Option) *DeletionPlanner {
	p := &DeletionPlanner{
		queue:   queue,
		catalog: catalog,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// requestTime is truncated to the catalog's timestamp precision so members compare equal or later
func (p *DeletionPlanner) requestTime() time.Time {
	return p.now().UTC().Truncate(time.Microsecond)
}

func (p *DeletionPlanner) DeleteGame(ctx context.Context, gameID string, actor domain.Caller) (*domain.DeletionPlan, error) {
	if !actor.IsAdmin {
		return nil, errs.ErrForbidden
	}
	game, err := p.catalog.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, errs.ErrGameNotFound
	}

	folders, err := p.catalog.ListSaveFoldersForGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	plan := &domain.DeletionPlan{EntityID: gameID, OperationIDs: []string{}}
	if len(folders) == 0 {
		p.logger.Info("Deleting game without saves", "gameId", gameID)
		if err := p.catalog.DeleteGame(ctx, gameID); err != nil {
			return nil, err
		}
		plan.Immediate = true
		return plan, nil
	}

	clientID, err := p.queue.ResolveWorker(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	plan.ClientID = clientID

	if err := p.catalog.MarkGamePendingDeletion(ctx, gameID, p.requestTime()); err != nil {
		return nil, err
	}

	users := distinctUsers(folders)
	reqs := make([]domain.CreateOperationRequest, 0, len(users))
	for _, userID := range users {
		reqs = append(reqs, domain.CreateOperationRequest{
			OperationType:  domain.OperationTypeDelete,
			UserID:         userID,
			GameID:         gameID,
			RemotePath:     path.Join(p.usernameOf(ctx, userID), game.FolderName),
			OperationGroup: domain.GroupDeleteGame,
		})
	}

	// no member may be delivered, and so finish, before all of them exist
	ids, err := p.queue.CreateBatch(ctx, reqs, clientID)
	if err != nil {
		p.rollbackGame(ctx, gameID)
		return nil, fmt.Errorf("failed to queue game deletion: %w", err)
	}
	plan.OperationIDs = ids

	p.logger.Info("Queued game deletion", "gameId", gameID, "workerId", clientID, "operations", len(plan.OperationIDs))
	return plan, nil
}

func (p *DeletionPlanner) rollbackGame(ctx context.Context, gameID string) {
	if err := p.catalog.ClearGamePendingDeletion(ctx, gameID); err != nil {
		p.logger.Error("Failed to clear pending game deletion", "gameId", gameID, "error", err)
	}
}

func (p *DeletionPlanner) DeleteAccount(ctx context.Context, userID string, actor domain.Caller) (*domain.DeletionPlan, error) {
	if !actor.CanAccess(userID) {
		return nil, errs.ErrForbidden
	}
	account, err := p.catalog.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, errs.ErrAccountNotFound
	}

	folders, err := p.catalog.ListSaveFoldersForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	games := make([]*domain.Game, 0)
	for _, gameID := range distinctGames(folders) {
		game, err := p.catalog.GetGame(ctx, gameID)
		if err != nil {
			return nil, err
		}
		if game != nil {
			games = append(games, game)
		}
	}

	plan := &domain.DeletionPlan{EntityID: userID, OperationIDs: []string{}}
	if len(games) == 0 {
		p.logger.Info("Deleting account without saves", "userId", userID)
		if err := p.catalog.DeleteAccount(ctx, userID); err != nil {
			return nil, err
		}
		plan.Immediate = true
		return plan, nil
	}

	clientID, err := p.queue.ResolveWorker(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	plan.ClientID = clientID

	if err := p.catalog.MarkAccountPendingDeletion(ctx, userID, p.requestTime()); err != nil {
		return nil, err
	}

	reqs := make([]domain.CreateOperationRequest, 0, len(games))
	for _, game := range games {
		reqs = append(reqs, domain.CreateOperationRequest{
			OperationType:  domain.OperationTypeDelete,
			UserID:         userID,
			GameID:         game.ID,
			RemotePath:     path.Join(account.Username, game.FolderName),
			OperationGroup: domain.GroupDeleteUser,
		})
	}

	ids, err := p.queue.CreateBatch(ctx, reqs, clientID)
	if err != nil {
		p.rollbackAccount(ctx, userID)
		return nil, fmt.Errorf("failed to queue account deletion: %w", err)
	}
	plan.OperationIDs = ids

	p.logger.Info("Queued account deletion", "userId", userID, "workerId", clientID, "operations", len(plan.OperationIDs))
	return plan, nil
}

func (p *DeletionPlanner) rollbackAccount(ctx context.Context, userID string) {
	if err := p.catalog.ClearAccountPendingDeletion(ctx, userID); err != nil {
		p.logger.Error("Failed to clear pending account deletion", "userId", userID, "error", err)
	}
}

func (p *DeletionPlanner) usernameOf(ctx context.Context, userID string) string {
	account, err := p.catalog.GetAccount(ctx, userID)
	if err != nil || account == nil || account.Username == "" {
		return userID
	}
	return account.Username
}

func distinctUsers(folders []*domain.SaveFolder) []string {
	seen := make(map[string]bool)
	users := make([]string, 0)
	for _, f := range folders {
		if !seen[f.UserID] {
			seen[f.UserID] = true
			users = append(users, f.UserID)
		}
	}
	return users
}

func distinctGames(folders []*domain.SaveFolder) []string {
	seen := make(map[string]bool)
	games := make([]string, 0)
	for _, f := range folders {
		if !seen[f.GameID] {
			seen[f.GameID] = true
			games = append(games, f.GameID)
		}
	}
	return games
}
