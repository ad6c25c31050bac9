package handlers

import (
	"context"
	"errors"

	"gitlab.com/savesync.net/internal/core/ports/primary"
	"gitlab.com/savesync.net/internal/core/services/operation"
	"gitlab.com/savesync.net/internal/static/errs"
)

// assignedTo reports whether a report about operationID from clientID should be applied.
// Unknown operations and operations assigned to another worker are logged and skipped.
func assignedTo(ctx context.Context, queue operation.IOperationQueue, logger primary.Logger, msgType, operationID, clientID string) (bool, error) {
	op, err := queue.Get(ctx, operationID)
	if errors.Is(err, errs.ErrOperationNotFound) {
		// purged or never existed
		logger.Info("Ignoring report for unknown operation", "type", msgType, "operationId", operationID, "workerId", clientID)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if op.ClientID != clientID {
		logger.Warn("Ignoring report from unassigned worker",
			"type", msgType,
			"operationId", operationID,
			"workerId", clientID,
			"assignedWorkerId", op.ClientID)
		return false, nil
	}
	return true, nil
}
