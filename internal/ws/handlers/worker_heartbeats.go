package handlers

import (
	"context"
	"encoding/json"

	"gitlab.com/savesync.net/internal/core/ports/primary"
	"gitlab.com/savesync.net/internal/core/services/worker"
)

var _ primary.MessageHandler = (*WorkerHeartbeatHandler)(nil)

// WorkerHeartbeatHandler handles worker heartbeat messages
type WorkerHeartbeatHandler struct {
	WorkerService worker.IWorkerRegistryService
	Logger        primary.Logger
}

// HandleMessage implements the MessageHandler interface
func (h *WorkerHeartbeatHandler) HandleMessage(ctx context.Context, sender primary.MessageSender, payload json.RawMessage, clientID string) error {
	if _, err := h.WorkerService.Heartbeat(ctx, clientID); err != nil {
		h.Logger.Error("Failed to update worker heartbeat", "workerId", clientID, "error", err)
		return err
	}
	return nil
}
