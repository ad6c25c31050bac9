package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"gitlab.com/savesync.net/internal/core/ports/primary"
	"gitlab.com/savesync.net/internal/core/services/operation"
	"gitlab.com/savesync.net/internal/ws/defs"
)

var (
	_ primary.MessageHandler = (*OperationStartedHandler)(nil)
	_ primary.MessageHandler = (*ProgressHandler)(nil)
)

// OperationStartedHandler moves an operation to in_progress
type OperationStartedHandler struct {
	Queue  operation.IOperationQueue
	Logger primary.Logger
}

func (h *OperationStartedHandler) HandleMessage(ctx context.Context, sender primary.MessageSender, payload json.RawMessage, clientID string) error {
	var data defs.OperationStartedData
	if err := json.Unmarshal(payload, &data); err != nil || data.OperationID == "" {
		h.Logger.Error("Failed to parse operation_started", "workerId", clientID, "error", err)
		return fmt.Errorf("%w: operation_started", ErrInvalidPayload)
	}

	if ok, err := assignedTo(ctx, h.Queue, h.Logger, defs.MsgOperationStarted, data.OperationID, clientID); !ok {
		return err
	}
	if err := h.Queue.MarkInProgress(ctx, data.OperationID); err != nil {
		return err
	}
	h.Logger.Info("Operation started", "operationId", data.OperationID, "workerId", clientID)
	return nil
}

// ProgressHandler records progress of a running operation
type ProgressHandler struct {
	Queue  operation.IOperationQueue
	Logger primary.Logger
}

func (h *ProgressHandler) HandleMessage(ctx context.Context, sender primary.MessageSender, payload json.RawMessage, clientID string) error {
	var data defs.ProgressData
	if err := json.Unmarshal(payload, &data); err != nil || data.OperationID == "" {
		h.Logger.Error("Failed to parse progress", "workerId", clientID, "error", err)
		return fmt.Errorf("%w: progress", ErrInvalidPayload)
	}
	if ok, err := assignedTo(ctx, h.Queue, h.Logger, defs.MsgProgress, data.OperationID, clientID); !ok {
		return err
	}
	return h.Queue.UpdateProgress(ctx, data.OperationID, data.Update())
}
