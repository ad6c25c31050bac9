package errs

import "errors"

// rejection
var (
	ErrMissingClientID  = errors.New("client_id is required")
	ErrInvalidClientID  = errors.New("invalid client_id")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrMissingUserID    = errors.New("user_id is required")
)

// conflict
var (
	ErrWorkerClaimConflict = errors.New("worker is claimed by another user")
)

// not found
var (
	ErrWorkerNotFound    = errors.New("worker not found")
	ErrOperationNotFound = errors.New("operation not found")
	ErrGameNotFound      = errors.New("game not found")
	ErrAccountNotFound   = errors.New("account not found")
)

// availability
var (
	ErrWorkerOffline     = errors.New("worker is offline")
	ErrNoWorkerAvailable = errors.New("no online worker available")
)
