package defs

import "gitlab.com/savesync.net/internal/domain"

// Protocol data structures
type (
	// WorkersUpdateData is the full live worker snapshot sent to observers
	WorkersUpdateData struct {
		Workers []domain.WorkerSummary `json:"workers"`
	}

	// WorkerStatusData tells one user whether any of their workers is reachable
	WorkerStatusData struct {
		UserID    string   `json:"user_id"`
		Connected bool     `json:"connected"`
		Workers   []string `json:"workers"`
	}
)

// Error codes
const (
	ErrCodeMalformed    = 4000
	ErrCodeInvalidData  = 4001
	ErrCodeHandlerError = 4002
)
