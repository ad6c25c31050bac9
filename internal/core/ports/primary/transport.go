package primary

import (
	"context"
	"encoding/json"

	"gitlab.com/savesync.net/internal/domain"
)

// MessageSender pushes a typed message down one worker connection
type MessageSender interface {
	SendMessage(msgType string, correlationID string, payload interface{}) error
}

// MessageHandler handles one inbound message type of the worker channel
type MessageHandler interface {
	HandleMessage(ctx context.Context, sender MessageSender, payload json.RawMessage, clientID string) error
}

// OperationDispatcher delivers a freshly queued operation to a connected worker.
// delivered is false when the worker has no live session.
type OperationDispatcher interface {
	DeliverOperation(ctx context.Context, op *domain.Operation) (delivered bool, err error)
}

// PresenceNotifier fans out registry changes to workers and UI observers
type PresenceNotifier interface {
	NotifyClaimStatus(ctx context.Context, clientID string, status domain.ClaimStatus) error
	BroadcastWorkers(ctx context.Context) error
	BroadcastUserStatus(ctx context.Context, userID string) error
}
