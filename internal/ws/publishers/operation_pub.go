package publishers

import (
	"context"
	"fmt"

	"gitlab.com/savesync.net/internal/core/ports/primary"
	"gitlab.com/savesync.net/internal/domain"
	"gitlab.com/savesync.net/internal/ws/connectionmanager"
	"gitlab.com/savesync.net/internal/ws/defs"
)

// OperationPublisher pushes operations to the assigned worker's connections
type OperationPublisher struct {
	ConnectionMgr *connectionmanager.ConnectionManager
	Logger        primary.Logger
}

func NewOperationPublisher(connectionMgr *connectionmanager.ConnectionManager, logger primary.Logger) *OperationPublisher {
	return &OperationPublisher{
		ConnectionMgr: connectionMgr,
		Logger:        logger,
	}
}

// Publish reports whether at least one connection of the worker accepted the message
func (p *OperationPublisher) Publish(ctx context.Context, op *domain.Operation) (bool, error) {
	message, err := defs.Encode(defs.MsgOperation, op.ID, defs.NewOperationData(op))
	if err != nil {
		return false, err
	}
	sent := p.ConnectionMgr.SendToGroupWait(ctx, defs.WorkerGroup(op.ClientID), message)
	if sent == 0 {
		p.Logger.Debug("Worker has no live connection", "operationId", op.ID, "workerId", op.ClientID)
		return false, nil
	}
	p.Logger.Info("Operation sent to worker", "operationId", op.ID, "workerId", op.ClientID, "type", op.Type)
	return true, nil
}

// Replay sends operations to a single connection, in order. Each send waits
// for the write pump, so the backlog may exceed the connection's buffer.
func (p *OperationPublisher) Replay(ctx context.Context, client *connectionmanager.Client, ops []*domain.Operation) error {
	for i, op := range ops {
		if err := client.SendMessageWait(ctx, defs.MsgOperation, op.ID, defs.NewOperationData(op)); err != nil {
			return fmt.Errorf("failed to replay operation %d of %d: %w", i+1, len(ops), err)
		}
	}
	return nil
}
