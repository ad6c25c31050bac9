package worker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gitlab.com/savesync.net/internal/config"
	"gitlab.com/savesync.net/internal/core/ports/primary"
	"gitlab.com/savesync.net/internal/core/ports/secondary"
	"gitlab.com/savesync.net/internal/core/services/background"
	"gitlab.com/savesync.net/internal/domain"
	"gitlab.com/savesync.net/internal/static/errs"
)

var _ IWorkerRegistryService = &WorkerRegistryService{}

// WorkerRegistryService implements the IWorkerRegistryService interface
type WorkerRegistryService struct {
	workerRepo secondary.WorkerRepository
	catalog    secondary.CatalogPort
	secrets    primary.JWTService
	dispatcher *background.Dispatcher
	cfg        *config.RegistryConfig
	logger     primary.Logger
	now        func() time.Time

	mu       sync.RWMutex
	notifier primary.PresenceNotifier
}

type Option func(*WorkerRegistryService)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *WorkerRegistryService) {
		s.now = now
	}
}

// NewWorkerRegistryService creates a new worker registry service
func NewWorkerRegistryService(
	workerRepo secondary.WorkerRepository,
	catalog secondary.CatalogPort,
	secrets primary.JWTService,
	dispatcher *background.Dispatcher,
	cfg *config.RegistryConfig,
	logger primary.Logger,
	opts ...Option,
) *WorkerRegistryService {
	s := &WorkerRegistryService{
		workerRepo: workerRepo,
		catalog:    catalog,
		secrets:    secrets,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		notifier:   noopNotifier{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateClientID rejects ids that cannot be embedded in store keys
func ValidateClientID(clientID string) error {
	if clientID == "" {
		return errs.ErrMissingClientID
	}
	if strings.ContainsAny(clientID, ": \t\n") {
		return errs.ErrInvalidClientID
	}
	return nil
}

func (s *WorkerRegistryService) SetNotifier(notifier primary.PresenceNotifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if notifier == nil {
		notifier = noopNotifier{}
	}
	s.notifier = notifier
}

func (s *WorkerRegistryService) presence() primary.PresenceNotifier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notifier
}

func (s *WorkerRegistryService) Register(ctx context.Context, clientID string, opts domain.RegisterOptions) (*domain.WorkerInfo, error) {
	if err := ValidateClientID(clientID); err != nil {
		return nil, err
	}
	s.logger.Info("Registering worker", "workerId", clientID, "hostname", opts.Hostname)

	wasOnline, err := s.workerRepo.IsAlive(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to register worker: %w", err)
	}
	if _, err := s.workerRepo.UpsertWorker(ctx, clientID, opts.Hostname, s.now()); err != nil {
		return nil, fmt.Errorf("failed to register worker: %w", err)
	}
	if err := s.workerRepo.SetAlive(ctx, clientID, s.cfg.WorkerTTL); err != nil {
		return nil, fmt.Errorf("failed to register worker: %w", err)
	}

	claimed := false
	if opts.UserID != "" {
		change, err := s.workerRepo.SetOwner(ctx, clientID, opts.UserID, opts.Username, s.now())
		if err != nil {
			return nil, fmt.Errorf("failed to claim worker on registration: %w", err)
		}
		switch change {
		case secondary.OwnerChanged:
			claimed = true
		case secondary.OwnerConflict:
			// registration never re-assigns an owned worker
			s.logger.Warn("Ignoring registration owner for worker owned by another user", "workerId", clientID, "userId", opts.UserID)
		}
	}

	worker, err := s.getExisting(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if claimed {
		s.notifyClaimStatus(worker)
	}
	if claimed || !wasOnline {
		s.broadcastPresence(worker.UserID)
	}
	return worker, nil
}

func (s *WorkerRegistryService) Heartbeat(ctx context.Context, clientID string) (*domain.WorkerInfo, error) {
	if err := ValidateClientID(clientID); err != nil {
		return nil, err
	}
	s.logger.Debug("Received worker heartbeat", "workerId", clientID)

	worker, err := s.workerRepo.GetWorker(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get worker: %w", err)
	}
	if worker == nil {
		return s.Register(ctx, clientID, domain.RegisterOptions{})
	}

	if _, err := s.workerRepo.UpsertWorker(ctx, clientID, "", s.now()); err != nil {
		return nil, fmt.Errorf("failed to update worker heartbeat: %w", err)
	}
	if err := s.workerRepo.SetAlive(ctx, clientID, s.cfg.WorkerTTL); err != nil {
		return nil, fmt.Errorf("failed to update worker heartbeat: %w", err)
	}

	dropped := false
	if worker.Claimed() {
		dropped = s.dropDeletedOwner(ctx, worker)
	}

	fresh, err := s.getExisting(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if dropped {
		s.notifyClaimStatus(fresh)
		s.broadcastPresence(worker.UserID)
	} else if !worker.Online {
		s.broadcastPresence(fresh.UserID)
	}
	return fresh, nil
}

// dropDeletedOwner clears ownership held by an account that no longer exists
func (s *WorkerRegistryService) dropDeletedOwner(ctx context.Context, worker *domain.WorkerInfo) bool {
	account, err := s.catalog.GetAccount(ctx, worker.UserID)
	if err != nil {
		s.logger.Warn("Failed to check worker owner", "workerId", worker.ClientID, "userId", worker.UserID, "error", err)
		return false
	}
	if account != nil {
		return false
	}

	change, err := s.workerRepo.ClearOwner(ctx, worker.ClientID, worker.UserID)
	if err != nil {
		s.logger.Warn("Failed to clear stale worker owner", "workerId", worker.ClientID, "error", err)
		return false
	}
	if change != secondary.OwnerChanged {
		return false
	}
	s.logger.Info("Cleared worker owned by deleted account", "workerId", worker.ClientID, "userId", worker.UserID)
	return true
}

func (s *WorkerRegistryService) Touch(ctx context.Context, clientID string) error {
	if err := s.workerRepo.SetAlive(ctx, clientID, s.cfg.WorkerTTL); err != nil {
		return fmt.Errorf("failed to refresh worker liveness: %w", err)
	}
	return nil
}

func (s *WorkerRegistryService) SetConnectionStatus(ctx context.Context, clientID string, connected bool, markOfflineOnDisconnect bool) error {
	if err := s.workerRepo.SetConnected(ctx, clientID, connected); err != nil {
		return err
	}
	if !connected && markOfflineOnDisconnect {
		if err := s.workerRepo.ExpireAlive(ctx, clientID); err != nil {
			return err
		}
	}

	worker, err := s.workerRepo.GetWorker(ctx, clientID)
	if err != nil {
		return fmt.Errorf("failed to get worker: %w", err)
	}
	owner := ""
	if worker != nil {
		owner = worker.UserID
	}
	s.broadcastPresence(owner)
	return nil
}

func (s *WorkerRegistryService) Claim(ctx context.Context, clientID, userID, displayName string) (*domain.WorkerInfo, error) {
	if err := ValidateClientID(clientID); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, errs.ErrMissingUserID
	}

	worker, err := s.workerRepo.GetWorker(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get worker: %w", err)
	}
	if worker == nil {
		return nil, errs.ErrWorkerNotFound
	}
	if !worker.Online {
		return nil, errs.ErrWorkerOffline
	}

	change, err := s.workerRepo.SetOwner(ctx, clientID, userID, displayName, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to claim worker: %w", err)
	}
	switch change {
	case secondary.OwnerConflict:
		s.logger.Info("Rejected claim on worker owned by another user", "workerId", clientID, "userId", userID)
		return nil, errs.ErrWorkerClaimConflict
	case secondary.OwnerMissing:
		return nil, errs.ErrWorkerNotFound
	}

	claimed, err := s.getExisting(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if change == secondary.OwnerChanged {
		s.logger.Info("Worker claimed", "workerId", clientID, "userId", userID)
		s.notifyClaimStatus(claimed)
		s.broadcastPresence(userID)
	}
	return claimed, nil
}

func (s *WorkerRegistryService) Unclaim(ctx context.Context, clientID, userID string) error {
	if err := ValidateClientID(clientID); err != nil {
		return err
	}

	change, err := s.workerRepo.ClearOwner(ctx, clientID, userID)
	if err != nil {
		return fmt.Errorf("failed to unclaim worker: %w", err)
	}
	switch change {
	case secondary.OwnerConflict:
		return errs.ErrWorkerClaimConflict
	case secondary.OwnerChanged:
		s.logger.Info("Worker unclaimed", "workerId", clientID, "userId", userID)
		s.notifyClaimStatus(&domain.WorkerInfo{ClientID: clientID})
		s.broadcastPresence(userID)
	}
	return nil
}

// shouldEvict reports whether an owned worker has gone offline and loses its owner on read
func shouldEvict(worker *domain.WorkerInfo) bool {
	return worker.Claimed() && !worker.Online
}

func (s *WorkerRegistryService) WorkersForUser(ctx context.Context, userID string) ([]*domain.WorkerInfo, error) {
	return s.workersForUser(ctx, userID, true)
}

func (s *WorkerRegistryService) OnlineWorkersForUser(ctx context.Context, userID string) ([]*domain.WorkerInfo, error) {
	return s.workersForUser(ctx, userID, false)
}

func (s *WorkerRegistryService) workersForUser(ctx context.Context, userID string, evict bool) ([]*domain.WorkerInfo, error) {
	if userID == "" {
		return nil, errs.ErrMissingUserID
	}
	ids, err := s.workerRepo.WorkerIDsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user workers: %w", err)
	}
	sort.Strings(ids)

	workers := make([]*domain.WorkerInfo, 0, len(ids))
	evicted := false
	for _, id := range ids {
		worker, err := s.workerRepo.GetWorker(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get worker: %w", err)
		}

		if worker == nil || !worker.OwnedBy(userID) {
			if evict {
				s.dropIndexEntry(ctx, userID, id)
			}
			continue
		}
		if !worker.Online {
			if evict && shouldEvict(worker) {
				evicted = s.evict(ctx, worker) || evicted
			}
			continue
		}
		workers = append(workers, worker)
	}

	if evicted {
		s.broadcastPresence(userID)
	}
	return workers, nil
}

func (s *WorkerRegistryService) evict(ctx context.Context, worker *domain.WorkerInfo) bool {
	change, err := s.workerRepo.ClearOwner(ctx, worker.ClientID, worker.UserID)
	if err != nil {
		s.logger.Warn("Failed to evict offline worker", "workerId", worker.ClientID, "error", err)
		return false
	}
	if change != secondary.OwnerChanged {
		return false
	}
	s.logger.Info("Auto-unclaimed offline worker", "workerId", worker.ClientID, "userId", worker.UserID)
	return true
}

func (s *WorkerRegistryService) dropIndexEntry(ctx context.Context, userID, clientID string) {
	if err := s.workerRepo.RemoveUserWorker(ctx, userID, clientID); err != nil {
		s.logger.Warn("Failed to drop stale worker index entry", "workerId", clientID, "userId", userID, "error", err)
	}
}

func (s *WorkerRegistryService) Snapshot(ctx context.Context) ([]*domain.WorkerInfo, error) {
	all, err := s.workerRepo.GetAllWorkers(ctx)
	if err != nil {
		s.logger.Error("Failed to get all workers", "error", err)
		return nil, fmt.Errorf("failed to get all workers: %w", err)
	}

	live := make([]*domain.WorkerInfo, 0, len(all))
	for _, worker := range all {
		if worker.Online {
			live = append(live, worker)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].ClientID < live[j].ClientID })
	return live, nil
}

func (s *WorkerRegistryService) GetWorker(ctx context.Context, clientID string) (*domain.WorkerInfo, error) {
	if err := ValidateClientID(clientID); err != nil {
		return nil, err
	}
	worker, err := s.workerRepo.GetWorker(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get worker: %w", err)
	}
	if worker == nil {
		return nil, errs.ErrWorkerNotFound
	}
	return worker, nil
}

func (s *WorkerRegistryService) IsOnline(ctx context.Context, clientID string) (bool, error) {
	return s.workerRepo.IsAlive(ctx, clientID)
}

func (s *WorkerRegistryService) IssueToken(ctx context.Context, clientID string) (*domain.WorkerTokenResponse, error) {
	if err := ValidateClientID(clientID); err != nil {
		return nil, err
	}

	worker, err := s.workerRepo.GetWorker(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get worker: %w", err)
	}
	if worker == nil {
		if worker, err = s.Register(ctx, clientID, domain.RegisterOptions{}); err != nil {
			return nil, err
		}
	}

	token := uuid.NewString()
	hash, err := s.secrets.HashSecret(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to hash worker token: %w", err)
	}
	if err := s.workerRepo.SaveToken(ctx, clientID, hash, s.now().Add(s.cfg.TokenTTL)); err != nil {
		return nil, err
	}

	return &domain.WorkerTokenResponse{
		ClientID:   clientID,
		Token:      token,
		ExpiresIn:  int(s.cfg.TokenTTL / time.Second),
		Claimed:    worker.Claimed(),
		LinkedUser: worker.Username,
	}, nil
}

func (s *WorkerRegistryService) ValidateToken(ctx context.Context, clientID, token string) error {
	if err := ValidateClientID(clientID); err != nil {
		return err
	}
	if token == "" {
		return errs.ErrMissingToken
	}

	hash, expiresAt, err := s.workerRepo.GetToken(ctx, clientID)
	if err != nil {
		return err
	}
	if hash == "" || s.now().After(expiresAt) {
		return errs.ErrInvalidToken
	}

	ok, err := s.secrets.VerifySecret(ctx, hash, token)
	if err != nil || !ok {
		return errs.ErrInvalidToken
	}

	consumed, err := s.workerRepo.ConsumeToken(ctx, clientID, hash)
	if err != nil {
		return err
	}
	if !consumed {
		// another connection used it first
		return errs.ErrInvalidToken
	}
	return nil
}

func (s *WorkerRegistryService) getExisting(ctx context.Context, clientID string) (*domain.WorkerInfo, error) {
	worker, err := s.workerRepo.GetWorker(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get worker: %w", err)
	}
	if worker == nil {
		return nil, errs.ErrWorkerNotFound
	}
	return worker, nil
}

func (s *WorkerRegistryService) notifyClaimStatus(worker *domain.WorkerInfo) {
	notifier := s.presence()
	clientID, status := worker.ClientID, worker.ClaimStatus()
	s.dispatcher.Go("claim_status", func(ctx context.Context) error {
		return notifier.NotifyClaimStatus(ctx, clientID, status)
	})
}

// broadcastPresence refreshes every observer and, when known, the owner's status channel
func (s *WorkerRegistryService) broadcastPresence(userID string) {
	notifier := s.presence()
	s.dispatcher.Go("workers_update", func(ctx context.Context) error {
		return notifier.BroadcastWorkers(ctx)
	})
	if userID == "" {
		return
	}
	s.dispatcher.Go("worker_status", func(ctx context.Context) error {
		return notifier.BroadcastUserStatus(ctx, userID)
	})
}

type noopNotifier struct{}

func (noopNotifier) NotifyClaimStatus(context.Context, string, domain.ClaimStatus) error { return nil }
func (noopNotifier) BroadcastWorkers(context.Context) error                             { return nil }
func (noopNotifier) BroadcastUserStatus(context.Context, string) error                  { return nil }
