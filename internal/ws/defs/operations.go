package defs

import (
	"gitlab.com/savesync.net/internal/domain"
)

// Protocol data structures
type (
	// OperationData is the job payload pushed to a worker
	OperationData struct {
		ID               string               `json:"id"`
		Type             domain.OperationType `json:"type"`
		UserID           string               `json:"user_id"`
		GameID           string               `json:"game_id,omitempty"`
		LocalSavePath    string               `json:"local_save_path"`
		RemotePath       string               `json:"remote_path"`
		SaveFolderNumber *int                 `json:"save_folder_number,omitempty"`
		PathIndex        *int                 `json:"path_index,omitempty"`
		OperationGroup   string               `json:"operation_group,omitempty"`
	}

	// OperationStartedData is sent when the worker begins executing an operation
	OperationStartedData struct {
		OperationID string `json:"operation_id"`
	}

	// ProgressData carries a partial progress update
	ProgressData struct {
		OperationID string  `json:"operation_id"`
		Current     *int    `json:"current,omitempty"`
		Total       *int    `json:"total,omitempty"`
		Message     *string `json:"message,omitempty"`
	}

	// CompleteData is the final outcome reported by the worker
	CompleteData struct {
		OperationID string                 `json:"operation_id"`
		Success     bool                   `json:"success"`
		Result      map[string]interface{} `json:"result,omitempty"`
		Error       string                 `json:"error,omitempty"`
	}

	// ErrorData is sent back when an inbound message could not be processed
	ErrorData struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
)

func NewOperationData(op *domain.Operation) OperationData {
	return OperationData{
		ID:               op.ID,
		Type:             op.Type,
		UserID:           op.UserID,
		GameID:           op.GameID,
		LocalSavePath:    op.LocalSavePath,
		RemotePath:       op.RemotePath,
		SaveFolderNumber: op.SaveFolderNumber,
		PathIndex:        op.PathIndex,
		OperationGroup:   op.OperationGroup,
	}
}

func (p ProgressData) Update() domain.ProgressUpdate {
	return domain.ProgressUpdate{Current: p.Current, Total: p.Total, Message: p.Message}
}

func (c CompleteData) Report() domain.CompletionReport {
	return domain.CompletionReport{
		OperationID: c.OperationID,
		Success:     c.Success,
		Result:      c.Result,
		Error:       c.Error,
	}
}
