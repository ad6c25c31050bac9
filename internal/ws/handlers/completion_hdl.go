package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gitlab.com/savesync.net/internal/core/ports/primary"
	"gitlab.com/savesync.net/internal/core/services/completion"
	"gitlab.com/savesync.net/internal/core/services/operation"
	"gitlab.com/savesync.net/internal/static/errs"
	"gitlab.com/savesync.net/internal/ws/defs"
)

var _ primary.MessageHandler = (*CompletionHandler)(nil)

// ErrInvalidPayload is returned for a message whose payload does not decode
var ErrInvalidPayload = errors.New("invalid message payload")

// CompletionHandler forwards a worker's final outcome to the completion coordinator
type CompletionHandler struct {
	Queue       operation.IOperationQueue
	Coordinator completion.ICompletionCoordinator
	Logger      primary.Logger
}

func (h *CompletionHandler) HandleMessage(ctx context.Context, sender primary.MessageSender, payload json.RawMessage, clientID string) error {
	var data defs.CompleteData
	if err := json.Unmarshal(payload, &data); err != nil || data.OperationID == "" {
		h.Logger.Error("Failed to parse complete", "workerId", clientID, "error", err)
		return fmt.Errorf("%w: complete", ErrInvalidPayload)
	}

	if ok, err := assignedTo(ctx, h.Queue, h.Logger, defs.MsgComplete, data.OperationID, clientID); !ok {
		return err
	}

	err := h.Coordinator.HandleCompletion(ctx, data.Report())
	if errors.Is(err, errs.ErrOperationNotFound) {
		// purged or never existed
		h.Logger.Info("Ignoring completion for unknown operation", "operationId", data.OperationID, "workerId", clientID)
		return nil
	}
	if err != nil {
		return err
	}
	h.Logger.Info("Operation result received", "operationId", data.OperationID, "workerId", clientID, "success", data.Success)
	return nil
}
