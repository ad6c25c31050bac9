package deletion

import (
	"context"

	"gitlab.com/savesync.net/internal/domain"
)

// IDeletionPlanner turns a catalog deletion request into storage delete operations guarded by a barrier
type IDeletionPlanner interface {
	// DeleteGame queues one directory delete per user with saves of the game. Admin only.
	DeleteGame(ctx context.Context, gameID string, actor domain.Caller) (*domain.DeletionPlan, error)

	// DeleteAccount queues one directory delete per game the user has saves for
	DeleteAccount(ctx context.Context, userID string, actor domain.Caller) (*domain.DeletionPlan, error)
}
