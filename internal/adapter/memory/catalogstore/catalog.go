// Package catalogstore is an in-process CatalogPort for local runs without Postgres.
package catalogstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"gitlab.com/savesync.net/internal/core/ports/secondary"
	"gitlab.com/savesync.net/internal/domain"
	"gitlab.com/savesync.net/internal/static/errs"
)

var _ secondary.CatalogPort = (*Catalog)(nil)

type Catalog struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
	games    map[string]domain.Game
	folders  []domain.SaveFolder
	nextID   int64
}

func New() *Catalog {
	return &Catalog{
		accounts: make(map[string]domain.Account),
		games:    make(map[string]domain.Game),
	}
}

func (c *Catalog) PutAccount(account domain.Account) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[account.ID] = account
}

func (c *Catalog) PutGame(game domain.Game) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.games[game.ID] = game
}

func (c *Catalog) PutSaveFolder(userID, gameID string, folderNumber int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	now := time.Now().UTC()
	c.folders = append(c.folders, domain.SaveFolder{
		ID:           c.nextID,
		UserID:       userID,
		GameID:       gameID,
		FolderNumber: folderNumber,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (c *Catalog) GetAccount(_ context.Context, userID string) (*domain.Account, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	account, ok := c.accounts[userID]
	if !ok {
		return nil, nil
	}
	return &account, nil
}

func (c *Catalog) GetGame(_ context.Context, gameID string) (*domain.Game, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	game, ok := c.games[gameID]
	if !ok {
		return nil, nil
	}
	return &game, nil
}

func (c *Catalog) listFolders(match func(domain.SaveFolder) bool) []*domain.SaveFolder {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*domain.SaveFolder, 0)
	for _, f := range c.folders {
		if match(f) {
			folder := f
			out = append(out, &folder)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		if out[i].GameID != out[j].GameID {
			return out[i].GameID < out[j].GameID
		}
		return out[i].FolderNumber < out[j].FolderNumber
	})
	return out
}

func (c *Catalog) ListSaveFoldersForGame(_ context.Context, gameID string) ([]*domain.SaveFolder, error) {
	return c.listFolders(func(f domain.SaveFolder) bool { return f.GameID == gameID }), nil
}

func (c *Catalog) ListSaveFoldersForUser(_ context.Context, userID string) ([]*domain.SaveFolder, error) {
	return c.listFolders(func(f domain.SaveFolder) bool { return f.UserID == userID }), nil
}

func (c *Catalog) TouchSaveActivity(_ context.Context, userID, gameID string, folderNumber *int, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if game, ok := c.games[gameID]; ok {
		game.LastActivityAt = &at
		c.games[gameID] = game
	}
	if folderNumber == nil {
		return nil
	}
	for i, f := range c.folders {
		if f.UserID == userID && f.GameID == gameID && f.FolderNumber == *folderNumber {
			c.folders[i].UpdatedAt = at
		}
	}
	return nil
}

func (c *Catalog) DeleteSaveFolder(_ context.Context, userID, gameID string, folderNumber int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeFolders(func(f domain.SaveFolder) bool {
		return f.UserID == userID && f.GameID == gameID && f.FolderNumber == folderNumber
	})
	return nil
}

func (c *Catalog) removeFolders(match func(domain.SaveFolder) bool) {
	kept := c.folders[:0]
	for _, f := range c.folders {
		if !match(f) {
			kept = append(kept, f)
		}
	}
	c.folders = kept
}

func (c *Catalog) MarkGamePendingDeletion(_ context.Context, gameID string, at time.Time) error {
	return c.updateGame(gameID, func(g *domain.Game) {
		g.PendingDeletion = true
		g.DeletionRequestedAt = &at
	})
}

func (c *Catalog) ClearGamePendingDeletion(_ context.Context, gameID string) error {
	return c.updateGame(gameID, func(g *domain.Game) {
		g.PendingDeletion = false
		g.DeletionRequestedAt = nil
	})
}

func (c *Catalog) updateGame(gameID string, fn func(g *domain.Game)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	game, ok := c.games[gameID]
	if !ok {
		return errs.ErrGameNotFound
	}
	fn(&game)
	c.games[gameID] = game
	return nil
}

func (c *Catalog) DeleteGame(_ context.Context, gameID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeFolders(func(f domain.SaveFolder) bool { return f.GameID == gameID })
	delete(c.games, gameID)
	return nil
}

func (c *Catalog) MarkAccountPendingDeletion(_ context.Context, userID string, at time.Time) error {
	return c.updateAccount(userID, func(a *domain.Account) {
		a.PendingDeletion = true
		a.DeletionRequestedAt = &at
	})
}

func (c *Catalog) ClearAccountPendingDeletion(_ context.Context, userID string) error {
	return c.updateAccount(userID, func(a *domain.Account) {
		a.PendingDeletion = false
		a.DeletionRequestedAt = nil
	})
}

func (c *Catalog) updateAccount(userID string, fn func(a *domain.Account)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	account, ok := c.accounts[userID]
	if !ok {
		return errs.ErrAccountNotFound
	}
	fn(&account)
	c.accounts[userID] = account
	return nil
}

func (c *Catalog) DeleteAccount(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeFolders(func(f domain.SaveFolder) bool { return f.UserID == userID })
	delete(c.accounts, userID)
	return nil
}
