package worker

import (
	"context"

	"gitlab.com/savesync.net/internal/core/ports/primary"
	"gitlab.com/savesync.net/internal/domain"
)

// IWorkerRegistryService tracks which workers exist, are alive and are owned by which account
type IWorkerRegistryService interface {
	// Register upserts the worker and refreshes its liveness. A supplied user claims an unowned worker.
	Register(ctx context.Context, clientID string, opts domain.RegisterOptions) (*domain.WorkerInfo, error)

	// Heartbeat refreshes liveness; ownership by a deleted account is dropped
	Heartbeat(ctx context.Context, clientID string) (*domain.WorkerInfo, error)

	// Touch refreshes liveness only
	Touch(ctx context.Context, clientID string) error

	SetConnectionStatus(ctx context.Context, clientID string, connected bool, markOfflineOnDisconnect bool) error

	// Claim gives userID exclusive ownership of a live worker
	Claim(ctx context.Context, clientID, userID, displayName string) (*domain.WorkerInfo, error)

	// Unclaim releases ownership held by userID; an empty userID releases unconditionally
	Unclaim(ctx context.Context, clientID, userID string) error

	// WorkersForUser lists live workers owned by userID, evicting owned workers found offline
	WorkersForUser(ctx context.Context, userID string) ([]*domain.WorkerInfo, error)

	// OnlineWorkersForUser is WorkersForUser without eviction
	OnlineWorkersForUser(ctx context.Context, userID string) ([]*domain.WorkerInfo, error)

	// Snapshot lists every live worker
	Snapshot(ctx context.Context) ([]*domain.WorkerInfo, error)

	GetWorker(ctx context.Context, clientID string) (*domain.WorkerInfo, error)

	IsOnline(ctx context.Context, clientID string) (bool, error)

	// IssueToken mints a single-use transport token for the worker
	IssueToken(ctx context.Context, clientID string) (*domain.WorkerTokenResponse, error)

	// ValidateToken checks and consumes a transport token
	ValidateToken(ctx context.Context, clientID, token string) error

	SetNotifier(notifier primary.PresenceNotifier)
}
