package publishers

import (
	"context"
	"sync"

	"gitlab.com/savesync.net/internal/core/ports/primary"
	"gitlab.com/savesync.net/internal/core/services/worker"
	"gitlab.com/savesync.net/internal/domain"
	"gitlab.com/savesync.net/internal/ws/connectionmanager"
	"gitlab.com/savesync.net/internal/ws/defs"
)

// ClaimStatusPublisher tells a worker who owns it
type ClaimStatusPublisher struct {
	ConnectionMgr *connectionmanager.ConnectionManager
	Logger        primary.Logger
}

func (p *ClaimStatusPublisher) Publish(ctx context.Context, clientID string, status domain.ClaimStatus) error {
	message, err := defs.Encode(defs.MsgClaimStatus, "", status)
	if err != nil {
		return err
	}
	sent := p.ConnectionMgr.SendToGroupWait(ctx, defs.WorkerGroup(clientID), message)
	p.Logger.Debug("Claim status published", "workerId", clientID, "claimed", status.Claimed, "connections", sent)
	return nil
}

// WorkersPublisher fans the live worker snapshot out to every observer
type WorkersPublisher struct {
	WorkerSvc     worker.IWorkerRegistryService
	ConnectionMgr *connectionmanager.ConnectionManager
	Logger        primary.Logger
}

func (p *WorkersPublisher) Snapshot(ctx context.Context) (defs.WorkersUpdateData, error) {
	workers, err := p.WorkerSvc.Snapshot(ctx)
	if err != nil {
		return defs.WorkersUpdateData{}, err
	}
	data := defs.WorkersUpdateData{Workers: make([]domain.WorkerSummary, 0, len(workers))}
	for _, w := range workers {
		data.Workers = append(data.Workers, w.Summary())
	}
	return data, nil
}

func (p *WorkersPublisher) Publish(ctx context.Context) error {
	if p.ConnectionMgr.GroupSize(defs.ObserverWorkersGroup) == 0 {
		return nil
	}
	data, err := p.Snapshot(ctx)
	if err != nil {
		return err
	}
	message, err := defs.Encode(defs.MsgWorkersUpdate, "", data)
	if err != nil {
		return err
	}
	p.ConnectionMgr.SendToGroup(defs.ObserverWorkersGroup, message)
	return nil
}

// UserStatusPublisher tells a user's observers whether they have a reachable worker.
// Only flips are published.
type UserStatusPublisher struct {
	WorkerSvc     worker.IWorkerRegistryService
	ConnectionMgr *connectionmanager.ConnectionManager
	Logger        primary.Logger

	mu   sync.Mutex
	last map[string]bool
}

func NewUserStatusPublisher(workerSvc worker.IWorkerRegistryService, connectionMgr *connectionmanager.ConnectionManager, logger primary.Logger) *UserStatusPublisher {
	return &UserStatusPublisher{
		WorkerSvc:     workerSvc,
		ConnectionMgr: connectionMgr,
		Logger:        logger,
		last:          make(map[string]bool),
	}
}

func (p *UserStatusPublisher) Status(ctx context.Context, userID string) (defs.WorkerStatusData, error) {
	workers, err := p.WorkerSvc.OnlineWorkersForUser(ctx, userID)
	if err != nil {
		return defs.WorkerStatusData{}, err
	}
	data := defs.WorkerStatusData{UserID: userID, Workers: make([]string, 0, len(workers))}
	for _, w := range workers {
		data.Workers = append(data.Workers, w.ClientID)
	}
	data.Connected = len(data.Workers) > 0
	return data, nil
}

// Remember records what a newly subscribed observer was told
func (p *UserStatusPublisher) Remember(userID string, online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last[userID] = online
}

func (p *UserStatusPublisher) Publish(ctx context.Context, userID string) error {
	group := defs.UserStatusGroup(userID)
	if p.ConnectionMgr.GroupSize(group) == 0 {
		p.mu.Lock()
		delete(p.last, userID)
		p.mu.Unlock()
		return nil
	}

	data, err := p.Status(ctx, userID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	previous, known := p.last[userID]
	if known && previous == data.Connected {
		p.mu.Unlock()
		return nil
	}
	p.last[userID] = data.Connected
	p.mu.Unlock()

	message, err := defs.Encode(defs.MsgWorkerStatus, "", data)
	if err != nil {
		return err
	}
	p.ConnectionMgr.SendToGroup(group, message)
	p.Logger.Debug("Worker status published", "userId", userID, "connected", data.Connected)
	return nil
}
