package completion

import (
	"context"
	"time"

	"gitlab.com/savesync.net/internal/domain"
)

// ICompletionCoordinator reconciles reported outcomes with stored state and runs their side effects
type ICompletionCoordinator interface {
	// HandleCompletion records a worker's outcome. An unknown operation yields errs.ErrOperationNotFound.
	HandleCompletion(ctx context.Context, report domain.CompletionReport) error

	// ExpireOperation fails an operation that never reported back
	ExpireOperation(ctx context.Context, id string) error

	// ExpireStale expires every non-terminal operation idle for longer than olderThan
	ExpireStale(ctx context.Context, olderThan time.Duration) (int, error)
}
