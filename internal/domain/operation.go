package domain

import (
	"time"
)

// OperationType represents the kind of transfer a worker performs
type OperationType string

const (
	OperationTypeSave       OperationType = "save"
	OperationTypeLoad       OperationType = "load"
	OperationTypeDelete     OperationType = "delete"
	OperationTypeBackup     OperationType = "backup"
	OperationTypeList       OperationType = "list"
	OperationTypeOpenFolder OperationType = "open_folder"
)

func (t OperationType) Valid() bool {
	switch t {
	case OperationTypeSave, OperationTypeLoad, OperationTypeDelete,
		OperationTypeBackup, OperationTypeList, OperationTypeOpenFolder:
		return true
	}
	return false
}

// NeedsLocalPath reports whether the worker needs a path on its own machine
func (t OperationType) NeedsLocalPath() bool {
	return t != OperationTypeDelete && t != OperationTypeList
}

// NeedsRemotePath reports whether the worker touches the storage backend
func (t OperationType) NeedsRemotePath() bool {
	return t != OperationTypeOpenFolder
}

// OperationStatus represents the status of an operation
type OperationStatus string

const (
	OperationStatusPending    OperationStatus = "pending"
	OperationStatusInProgress OperationStatus = "in_progress"
	OperationStatusCompleted  OperationStatus = "completed"
	OperationStatusFailed     OperationStatus = "failed"
)

// Terminal reports whether no transition can leave the status
func (s OperationStatus) Terminal() bool {
	return s == OperationStatusCompleted || s == OperationStatusFailed
}

// Operation groups that drive deletion barriers
const (
	GroupDeleteGame         = "delete_game"
	GroupDeleteUser         = "delete_user"
	GroupDeleteAllButLatest = "delete_all_but_latest"
)

// Progress is the last progress report of an in-flight operation
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// Operation is one unit of work assigned to exactly one worker
type Operation struct {
	ID               string                 `json:"id"`
	Type             OperationType          `json:"type"`
	Status           OperationStatus        `json:"status"`
	ClientID         string                 `json:"client_id"`
	UserID           string                 `json:"user_id"`
	GameID           string                 `json:"game_id,omitempty"`
	OperationGroup   string                 `json:"operation_group,omitempty"`
	LocalSavePath    string                 `json:"local_save_path"`
	RemotePath       string                 `json:"remote_path"`
	SaveFolderNumber *int                   `json:"save_folder_number,omitempty"`
	PathIndex        *int                   `json:"path_index,omitempty"`
	Progress         Progress               `json:"progress"`
	Result           map[string]interface{} `json:"result,omitempty"`
	Error            string                 `json:"error,omitempty"`
	ErrorCategory    ErrorCategory          `json:"error_category,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	StartedAt        *time.Time             `json:"started_at,omitempty"`
	CompletedAt      *time.Time             `json:"completed_at,omitempty"`
}

// SameSlot reports whether both operations address the same save folder of the same user and game
func (o *Operation) SameSlot(other *Operation) bool {
	if o.UserID != other.UserID || o.GameID != other.GameID {
		return false
	}
	if o.SaveFolderNumber == nil || other.SaveFolderNumber == nil {
		return false
	}
	return *o.SaveFolderNumber == *other.SaveFolderNumber
}

// CreateOperationRequest is the job creation contract consumed from the CRUD layer
type CreateOperationRequest struct {
	OperationType    OperationType `json:"operation_type"`
	UserID           string        `json:"user_id"`
	GameID           string        `json:"game_id,omitempty"`
	LocalSavePath    string        `json:"local_save_path"`
	RemotePath       string        `json:"remote_path"`
	SaveFolderNumber *int          `json:"save_folder_number,omitempty"`
	PathIndex        *int          `json:"path_index,omitempty"`
	OperationGroup   string        `json:"operation_group,omitempty"`
}

// NewOperation builds a pending operation for clientID
func NewOperation(id string, req CreateOperationRequest, clientID string, now time.Time) *Operation {
	return &Operation{
		ID:               id,
		Type:             req.OperationType,
		Status:           OperationStatusPending,
		ClientID:         clientID,
		UserID:           req.UserID,
		GameID:           req.GameID,
		OperationGroup:   req.OperationGroup,
		LocalSavePath:    req.LocalSavePath,
		RemotePath:       req.RemotePath,
		SaveFolderNumber: req.SaveFolderNumber,
		PathIndex:        req.PathIndex,
		CreatedAt:        now,
	}
}

// ProgressUpdate is a partial progress write; nil fields are left untouched
type ProgressUpdate struct {
	Current *int
	Total   *int
	Message *string
}

// OperationStatusView is the status read contract exposed to polling callers
type OperationStatusView struct {
	ID       string                 `json:"id"`
	Status   OperationStatus        `json:"status"`
	Progress Progress               `json:"progress"`
	Result   map[string]interface{} `json:"result,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

func (o *Operation) StatusView() OperationStatusView {
	view := OperationStatusView{
		ID:       o.ID,
		Status:   o.Status,
		Progress: o.Progress,
	}
	switch o.Status {
	case OperationStatusCompleted:
		view.Result = o.Result
	case OperationStatusFailed:
		view.Error = o.Error
	}
	return view
}

// CompletionReport is an outcome reported by a worker
type CompletionReport struct {
	OperationID string
	Success     bool
	Result      map[string]interface{}
	Error       string
}
