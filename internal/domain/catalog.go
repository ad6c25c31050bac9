package domain

import "time"

// Account is the catalog view of a user account
type Account struct {
	ID                  string     `db:"id"`
	Username            string     `db:"username"`
	IsAdmin             bool       `db:"is_admin"`
	PendingDeletion     bool       `db:"pending_deletion"`
	DeletionRequestedAt *time.Time `db:"deletion_requested_at"`
}

// Game is a catalog entry whose save folders live on the storage backend
type Game struct {
	ID                  string     `db:"id"`
	Name                string     `db:"name"`
	FolderName          string     `db:"folder_name"`
	PendingDeletion     bool       `db:"pending_deletion"`
	DeletionRequestedAt *time.Time `db:"deletion_requested_at"`
	LastActivityAt      *time.Time `db:"last_activity_at"`
}

// SaveFolder is the bookkeeping record of one save slot of one user for one game
type SaveFolder struct {
	ID           int64     `db:"id"`
	UserID       string    `db:"user_id"`
	GameID       string    `db:"game_id"`
	FolderNumber int       `db:"folder_number"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

type AccountTable struct {
	ID                  string
	Username            string
	IsAdmin             string
	PendingDeletion     string
	DeletionRequestedAt string
}

func GetAccountTable() AccountTable {
	return AccountTable{
		ID:                  "id",
		Username:            "username",
		IsAdmin:             "is_admin",
		PendingDeletion:     "pending_deletion",
		DeletionRequestedAt: "deletion_requested_at",
	}
}

func (AccountTable) TableName() string {
	return "accounts"
}

type GameTable struct {
	ID                  string
	Name                string
	FolderName          string
	PendingDeletion     string
	DeletionRequestedAt string
	LastActivityAt      string
}

func GetGameTable() GameTable {
	return GameTable{
		ID:                  "id",
		Name:                "name",
		FolderName:          "folder_name",
		PendingDeletion:     "pending_deletion",
		DeletionRequestedAt: "deletion_requested_at",
		LastActivityAt:      "last_activity_at",
	}
}

func (GameTable) TableName() string {
	return "games"
}

type SaveFolderTable struct {
	ID           string
	UserID       string
	GameID       string
	FolderNumber string
	CreatedAt    string
	UpdatedAt    string
}

func GetSaveFolderTable() SaveFolderTable {
	return SaveFolderTable{
		ID:           "id",
		UserID:       "user_id",
		GameID:       "game_id",
		FolderNumber: "folder_number",
		CreatedAt:    "created_at",
		UpdatedAt:    "updated_at",
	}
}

func (SaveFolderTable) TableName() string {
	return "save_folders"
}
