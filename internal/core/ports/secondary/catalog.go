package secondary

import (
	"context"
	"time"

	"gitlab.com/savesync.net/internal/domain"
)

// CatalogPort is the boundary to the relational games/accounts store owned by the CRUD layer
type CatalogPort interface {
	// GetAccount returns nil when the account does not exist
	GetAccount(ctx context.Context, userID string) (*domain.Account, error)

	// GetGame returns nil when the game does not exist
	GetGame(ctx context.Context, gameID string) (*domain.Game, error)

	ListSaveFoldersForGame(ctx context.Context, gameID string) ([]*domain.SaveFolder, error)

	ListSaveFoldersForUser(ctx context.Context, userID string) ([]*domain.SaveFolder, error)

	// TouchSaveActivity bumps the game's and, when folderNumber is set, the slot's activity marker
	TouchSaveActivity(ctx context.Context, userID, gameID string, folderNumber *int, at time.Time) error

	DeleteSaveFolder(ctx context.Context, userID, gameID string, folderNumber int) error

	MarkGamePendingDeletion(ctx context.Context, gameID string, at time.Time) error
	ClearGamePendingDeletion(ctx context.Context, gameID string) error
	// DeleteGame removes the game with its save folder records
	DeleteGame(ctx context.Context, gameID string) error

	MarkAccountPendingDeletion(ctx context.Context, userID string, at time.Time) error
	ClearAccountPendingDeletion(ctx context.Context, userID string) error
	// DeleteAccount removes the account with its save folder records
	DeleteAccount(ctx context.Context, userID string) error
}
