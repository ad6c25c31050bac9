// Package catalogrepository reads and updates the accounts, games and save folder tables
// owned by the CRUD service.
package catalogrepository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"gitlab.com/savesync.net/internal/core/ports/primary"
	"gitlab.com/savesync.net/internal/core/ports/secondary"
	"gitlab.com/savesync.net/internal/domain"
	"gitlab.com/savesync.net/internal/static/errs"
	querybuilder "gitlab.com/savesync.net/internal/utils"
)

var _ secondary.CatalogPort = &catalogRepo{}

type catalogRepo struct {
	db     *sqlx.DB
	logger primary.Logger
	schema string
}

func New(db *sqlx.DB, logger primary.Logger, schema string) secondary.CatalogPort {
	return &catalogRepo{
		db:     db,
		logger: logger,
		schema: schema,
	}
}

func (c *catalogRepo) builder() querybuilder.QueryBuilder {
	return querybuilder.NewQueryBuilder(c.schema)
}

func rebind(query string) string {
	return sqlx.Rebind(sqlx.DOLLAR, query)
}

func (c *catalogRepo) GetAccount(ctx context.Context, userID string) (*domain.Account, error) {
	tbl := domain.GetAccountTable()
	query, args := c.builder().
		Select(tbl.ID, tbl.Username, tbl.IsAdmin, tbl.PendingDeletion, tbl.DeletionRequestedAt).
		From(tbl.TableName()).
		Where(tbl.ID+" = ?", userID).
		Build()

	var account domain.Account
	if err := c.db.GetContext(ctx, &account, rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		c.logger.Error("Failed to get account", "userID", userID, "error", err)
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

func (c *catalogRepo) GetGame(ctx context.Context, gameID string) (*domain.Game, error) {
	tbl := domain.GetGameTable()
	query, args := c.builder().
		Select(tbl.ID, tbl.Name, tbl.FolderName, tbl.PendingDeletion, tbl.DeletionRequestedAt, tbl.LastActivityAt).
		From(tbl.TableName()).
		Where(tbl.ID+" = ?", gameID).
		Build()

	var game domain.Game
	if err := c.db.GetContext(ctx, &game, rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		c.logger.Error("Failed to get game", "gameID", gameID, "error", err)
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return &game, nil
}

func (c *catalogRepo) listSaveFolders(ctx context.Context, column, value string) ([]*domain.SaveFolder, error) {
	tbl := domain.GetSaveFolderTable()
	query, args := c.builder().
		Select(tbl.ID, tbl.UserID, tbl.GameID, tbl.FolderNumber, tbl.CreatedAt, tbl.UpdatedAt).
		From(tbl.TableName()).
		Where(column+" = ?", value).
		OrderBy(tbl.UserID, true).
		OrderBy(tbl.FolderNumber, true).
		Build()

	folders := make([]*domain.SaveFolder, 0)
	if err := c.db.SelectContext(ctx, &folders, rebind(query), args...); err != nil {
		c.logger.Error("Failed to list save folders", column, value, "error", err)
		return nil, fmt.Errorf("failed to list save folders: %w", err)
	}
	return folders, nil
}

func (c *catalogRepo) ListSaveFoldersForGame(ctx context.Context, gameID string) ([]*domain.SaveFolder, error) {
	return c.listSaveFolders(ctx, domain.GetSaveFolderTable().GameID, gameID)
}

func (c *catalogRepo) ListSaveFoldersForUser(ctx context.Context, userID string) ([]*domain.SaveFolder, error) {
	return c.listSaveFolders(ctx, domain.GetSaveFolderTable().UserID, userID)
}

func (c *catalogRepo) TouchSaveActivity(ctx context.Context, userID, gameID string, folderNumber *int, at time.Time) error {
	gameTbl := domain.GetGameTable()
	folderTbl := domain.GetSaveFolderTable()

	return c.inTx(ctx, func(tx *sqlx.Tx) error {
		query, args := c.builder().
			Update(gameTbl.TableName(), querybuilder.UpdateData{gameTbl.LastActivityAt: at}).
			Where(gameTbl.ID+" = ?", gameID).
			Build()
		if _, err := tx.ExecContext(ctx, rebind(query), args...); err != nil {
			return fmt.Errorf("failed to touch game activity: %w", err)
		}

		if folderNumber == nil {
			return nil
		}
		query, args = c.builder().
			Update(folderTbl.TableName(), querybuilder.UpdateData{folderTbl.UpdatedAt: at}).
			Where(folderTbl.UserID+" = ?", userID).
			And(folderTbl.GameID+" = ?", gameID).
			And(folderTbl.FolderNumber+" = ?", *folderNumber).
			Build()
		if _, err := tx.ExecContext(ctx, rebind(query), args...); err != nil {
			return fmt.Errorf("failed to touch save folder: %w", err)
		}
		return nil
	})
}

func (c *catalogRepo) DeleteSaveFolder(ctx context.Context, userID, gameID string, folderNumber int) error {
	tbl := domain.GetSaveFolderTable()
	query, args := c.builder().
		Delete(tbl.TableName()).
		Where(tbl.UserID+" = ?", userID).
		And(tbl.GameID+" = ?", gameID).
		And(tbl.FolderNumber+" = ?", folderNumber).
		Build()

	if _, err := c.db.ExecContext(ctx, rebind(query), args...); err != nil {
		c.logger.Error("Failed to delete save folder", "userID", userID, "gameID", gameID, "folder", folderNumber, "error", err)
		return fmt.Errorf("failed to delete save folder: %w", err)
	}
	return nil
}

func (c *catalogRepo) setPendingDeletion(ctx context.Context, table, idColumn, id string, at *time.Time, notFound error) error {
	query, args := c.builder().
		Update(table, querybuilder.UpdateData{
			"pending_deletion":      at != nil,
			"deletion_requested_at": at,
		}).
		Where(idColumn+" = ?", id).
		Build()

	res, err := c.db.ExecContext(ctx, rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to update pending deletion: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound
	}
	return nil
}

func (c *catalogRepo) MarkGamePendingDeletion(ctx context.Context, gameID string, at time.Time) error {
	tbl := domain.GetGameTable()
	return c.setPendingDeletion(ctx, tbl.TableName(), tbl.ID, gameID, &at, errs.ErrGameNotFound)
}

func (c *catalogRepo) ClearGamePendingDeletion(ctx context.Context, gameID string) error {
	tbl := domain.GetGameTable()
	return c.setPendingDeletion(ctx, tbl.TableName(), tbl.ID, gameID, nil, errs.ErrGameNotFound)
}

func (c *catalogRepo) DeleteGame(ctx context.Context, gameID string) error {
	folderTbl := domain.GetSaveFolderTable()
	gameTbl := domain.GetGameTable()

	return c.inTx(ctx, func(tx *sqlx.Tx) error {
		query, args := c.builder().Delete(folderTbl.TableName()).Where(folderTbl.GameID+" = ?", gameID).Build()
		if _, err := tx.ExecContext(ctx, rebind(query), args...); err != nil {
			return fmt.Errorf("failed to delete game save folders: %w", err)
		}
		query, args = c.builder().Delete(gameTbl.TableName()).Where(gameTbl.ID+" = ?", gameID).Build()
		if _, err := tx.ExecContext(ctx, rebind(query), args...); err != nil {
			return fmt.Errorf("failed to delete game: %w", err)
		}
		return nil
	})
}

func (c *catalogRepo) MarkAccountPendingDeletion(ctx context.Context, userID string, at time.Time) error {
	tbl := domain.GetAccountTable()
	return c.setPendingDeletion(ctx, tbl.TableName(), tbl.ID, userID, &at, errs.ErrAccountNotFound)
}

func (c *catalogRepo) ClearAccountPendingDeletion(ctx context.Context, userID string) error {
	tbl := domain.GetAccountTable()
	return c.setPendingDeletion(ctx, tbl.TableName(), tbl.ID, userID, nil, errs.ErrAccountNotFound)
}

func (c *catalogRepo) DeleteAccount(ctx context.Context, userID string) error {
	folderTbl := domain.GetSaveFolderTable()
	accountTbl := domain.GetAccountTable()

	return c.inTx(ctx, func(tx *sqlx.Tx) error {
		query, args := c.builder().Delete(folderTbl.TableName()).Where(folderTbl.UserID+" = ?", userID).Build()
		if _, err := tx.ExecContext(ctx, rebind(query), args...); err != nil {
			return fmt.Errorf("failed to delete account save folders: %w", err)
		}
		query, args = c.builder().Delete(accountTbl.TableName()).Where(accountTbl.ID+" = ?", userID).Build()
		if _, err := tx.ExecContext(ctx, rebind(query), args...); err != nil {
			return fmt.Errorf("failed to delete account: %w", err)
		}
		return nil
	})
}

func (c *catalogRepo) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			c.logger.Error("Failed to roll back transaction", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
