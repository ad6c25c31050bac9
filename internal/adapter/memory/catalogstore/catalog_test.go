package catalogstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/savesync.net/internal/domain"
	"gitlab.com/savesync.net/internal/static/errs"
)

func TestCatalogDeletionFlags(t *testing.T) {
	ctx := context.Background()
	c := New()
	c.PutGame(domain.Game{ID: "g1", FolderName: "game"})
	c.PutSaveFolder("u1", "g1", 1)
	c.PutSaveFolder("u2", "g1", 1)

	at := time.Now()
	require.NoError(t, c.MarkGamePendingDeletion(ctx, "g1", at))
	game, err := c.GetGame(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, game.PendingDeletion)

	require.NoError(t, c.ClearGamePendingDeletion(ctx, "g1"))
	game, _ = c.GetGame(ctx, "g1")
	assert.False(t, game.PendingDeletion)
	assert.Nil(t, game.DeletionRequestedAt)

	assert.ErrorIs(t, c.MarkGamePendingDeletion(ctx, "nope", at), errs.ErrGameNotFound)
	assert.ErrorIs(t, c.ClearAccountPendingDeletion(ctx, "nope"), errs.ErrAccountNotFound)

	require.NoError(t, c.DeleteGame(ctx, "g1"))
	game, _ = c.GetGame(ctx, "g1")
	assert.Nil(t, game)
	folders, _ := c.ListSaveFoldersForGame(ctx, "g1")
	assert.Empty(t, folders)
}

func TestCatalogSaveFolders(t *testing.T) {
	ctx := context.Background()
	c := New()
	c.PutAccount(domain.Account{ID: "u1", Username: "alice"})
	c.PutSaveFolder("u1", "g1", 2)
	c.PutSaveFolder("u1", "g1", 1)
	c.PutSaveFolder("u1", "g2", 1)

	folders, err := c.ListSaveFoldersForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, folders, 3)
	assert.Equal(t, 1, folders[0].FolderNumber)

	require.NoError(t, c.DeleteSaveFolder(ctx, "u1", "g1", 2))
	folders, _ = c.ListSaveFoldersForGame(ctx, "g1")
	require.Len(t, folders, 1)

	require.NoError(t, c.DeleteAccount(ctx, "u1"))
	account, _ := c.GetAccount(ctx, "u1")
	assert.Nil(t, account)
	folders, _ = c.ListSaveFoldersForUser(ctx, "u1")
	assert.Empty(t, folders)
}
