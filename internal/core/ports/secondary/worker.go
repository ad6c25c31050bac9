package secondary

import (
	"context"
	"time"

	"gitlab.com/savesync.net/internal/domain"
)

// OwnerChange is the outcome of an ownership compare-and-set
type OwnerChange int

const (
	// OwnerChanged means the write was applied
	OwnerChanged OwnerChange = iota
	// OwnerUnchanged means the record already had the desired owner state
	OwnerUnchanged
	// OwnerConflict means another account owns the worker
	OwnerConflict
	// OwnerMissing means the worker has no record
	OwnerMissing
)

type WorkerRepository interface {
	// UpsertWorker creates the info record on first contact and stamps last_ping
	UpsertWorker(ctx context.Context, clientID string, hostname string, now time.Time) (created bool, err error)

	// GetWorker retrieves worker information by ID, nil when unknown
	GetWorker(ctx context.Context, clientID string) (*domain.WorkerInfo, error)

	// GetAllWorkers retrieves every known worker, live or not
	GetAllWorkers(ctx context.Context) ([]*domain.WorkerInfo, error)

	// SetAlive (re)arms the liveness marker for ttl
	SetAlive(ctx context.Context, clientID string, ttl time.Duration) error

	// ExpireAlive drops the liveness marker immediately
	ExpireAlive(ctx context.Context, clientID string) error

	IsAlive(ctx context.Context, clientID string) (bool, error)

	SetConnected(ctx context.Context, clientID string, connected bool) error

	// SetOwner claims the worker for userID unless another account owns it
	SetOwner(ctx context.Context, clientID, userID, username string, now time.Time) (OwnerChange, error)

	// ClearOwner releases the worker; an empty expectedUserID releases unconditionally
	ClearOwner(ctx context.Context, clientID, expectedUserID string) (OwnerChange, error)

	// WorkerIDsForUser lists the client ids indexed under userID
	WorkerIDsForUser(ctx context.Context, userID string) ([]string, error)

	RemoveUserWorker(ctx context.Context, userID, clientID string) error

	SaveToken(ctx context.Context, clientID, tokenHash string, expiresAt time.Time) error

	// GetToken returns the stored token hash, empty when none was issued
	GetToken(ctx context.Context, clientID string) (tokenHash string, expiresAt time.Time, err error)

	// ConsumeToken deletes the token only if it still equals tokenHash
	ConsumeToken(ctx context.Context, clientID, tokenHash string) (bool, error)
}
