package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"gitlab.com/savesync.net/internal/config"
	"gitlab.com/savesync.net/internal/core/ports/primary"
	"gitlab.com/savesync.net/internal/core/services/completion"
	"gitlab.com/savesync.net/internal/core/services/operation"
	"gitlab.com/savesync.net/internal/core/services/worker"
	"gitlab.com/savesync.net/internal/domain"
	"gitlab.com/savesync.net/internal/static/errs"
	"gitlab.com/savesync.net/internal/ws/connectionmanager"
	"gitlab.com/savesync.net/internal/ws/defs"
	"gitlab.com/savesync.net/internal/ws/handlers"
	"gitlab.com/savesync.net/internal/ws/publishers"
)

var (
	_ primary.OperationDispatcher = (*Gateway)(nil)
	_ primary.PresenceNotifier    = (*Gateway)(nil)
)

const (
	handlerTimeout = 10 * time.Second
	// a replay only stalls while the worker stops reading; the write deadline closes it first
	replayTimeout = 2 * time.Minute
)

// Gateway serves the worker channel and the observer channels over websockets
type Gateway struct {
	workerService worker.IWorkerRegistryService
	queue         operation.IOperationQueue
	coordinator   completion.ICompletionCoordinator
	secrets       primary.JWTService
	cfg           *config.RegistryConfig
	logger        primary.Logger

	upgrader      websocket.Upgrader
	connectionMgr *connectionmanager.ConnectionManager
	handlers      map[string]primary.MessageHandler

	operationPub *publishers.OperationPublisher
	claimPub     *publishers.ClaimStatusPublisher
	workersPub   *publishers.WorkersPublisher
	statusPub    *publishers.UserStatusPublisher
}

// GatewayOption configures a Gateway
type GatewayOption func(*Gateway)

// WithAllowedOrigins restricts which browser origins may open a socket
func WithAllowedOrigins(origins []string) GatewayOption {
	return func(g *Gateway) {
		if len(origins) == 0 {
			return
		}
		allowed := make(map[string]bool, len(origins))
		for _, o := range origins {
			allowed[o] = true
		}
		g.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		}
	}
}

func NewGateway(
	workerService worker.IWorkerRegistryService,
	queue operation.IOperationQueue,
	coordinator completion.ICompletionCoordinator,
	secrets primary.JWTService,
	cfg *config.RegistryConfig,
	logger primary.Logger,
	options ...GatewayOption,
) *Gateway {
	connectionMgr := connectionmanager.NewConnectionManager(logger)
	g := &Gateway{
		workerService: workerService,
		queue:         queue,
		coordinator:   coordinator,
		secrets:       secrets,
		cfg:           cfg,
		logger:        logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// workers are native processes without an Origin header
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		connectionMgr: connectionMgr,
		operationPub:  publishers.NewOperationPublisher(connectionMgr, logger),
		claimPub:      &publishers.ClaimStatusPublisher{ConnectionMgr: connectionMgr, Logger: logger},
		workersPub:    &publishers.WorkersPublisher{WorkerSvc: workerService, ConnectionMgr: connectionMgr, Logger: logger},
		statusPub:     publishers.NewUserStatusPublisher(workerService, connectionMgr, logger),
	}

	for _, option := range options {
		option(g)
	}

	g.setupMessageHandlers()
	return g
}

// setupMessageHandlers registers all inbound message handlers
func (g *Gateway) setupMessageHandlers() {
	g.handlers = map[string]primary.MessageHandler{
		defs.MsgHeartbeat:        &handlers.WorkerHeartbeatHandler{WorkerService: g.workerService, Logger: g.logger},
		defs.MsgOperationStarted: &handlers.OperationStartedHandler{Queue: g.queue, Logger: g.logger},
		defs.MsgProgress:         &handlers.ProgressHandler{Queue: g.queue, Logger: g.logger},
		defs.MsgComplete:         &handlers.CompletionHandler{Queue: g.queue, Coordinator: g.coordinator, Logger: g.logger},
	}
}

// RegisterRoutes mounts the websocket endpoints
func (g *Gateway) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws/workers/{client_id}", g.ServeWorker).Methods(http.MethodGet)
	r.HandleFunc("/ws/observers/workers", g.ServeWorkersObserver).Methods(http.MethodGet)
	r.HandleFunc("/ws/observers/status", g.ServeStatusObserver).Methods(http.MethodGet)
}

// ServeWorker authenticates and runs one worker connection until it closes
func (g *Gateway) ServeWorker(w http.ResponseWriter, r *http.Request) {
	clientID := mux.Vars(r)["client_id"]
	token := r.URL.Query().Get("token")

	if err := worker.ValidateClientID(clientID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := g.workerService.ValidateToken(r.Context(), clientID, token); err != nil {
		g.logger.Warn("Rejected worker connection", "workerId", clientID, "error", err)
		status := http.StatusUnauthorized
		if !errors.Is(err, errs.ErrMissingToken) && !errors.Is(err, errs.ErrInvalidToken) {
			status = http.StatusInternalServerError
		}
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("Failed to upgrade worker connection", "workerId", clientID, "error", err)
		return
	}

	client := connectionmanager.NewClient(conn, defs.WorkerGroup(clientID), g.logger)
	g.connectionMgr.Join(client)
	go client.WritePump()
	g.logger.Info("Worker connected", "workerId", clientID, "connectionId", client.ID)

	if err := g.onWorkerConnected(clientID, client); err != nil {
		g.logger.Error("Failed to set up worker session", "workerId", clientID, "error", err)
		client.SendError(defs.ErrCodeHandlerError, "failed to set up session")
		client.Close()
	}

	client.ReadPump(func(message []byte) {
		g.handleWorkerMessage(clientID, client, message)
	})

	g.onWorkerDisconnected(clientID, client)
}

// onWorkerConnected refreshes the registry, pushes ownership and replays every pending operation
func (g *Gateway) onWorkerConnected(clientID string, client *connectionmanager.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	info, err := g.workerService.Register(ctx, clientID, domain.RegisterOptions{})
	if err != nil {
		return err
	}
	if err := g.workerService.SetConnectionStatus(ctx, clientID, true, false); err != nil {
		return err
	}
	if err := client.SendMessage(defs.MsgClaimStatus, "", info.ClaimStatus()); err != nil {
		return err
	}

	pending, err := g.queue.PendingForWorkerSnapshot(ctx, clientID)
	if err != nil {
		return err
	}

	replayCtx, cancelReplay := context.WithTimeout(context.Background(), replayTimeout)
	defer cancelReplay()
	if err := g.operationPub.Replay(replayCtx, client, pending); err != nil {
		return err
	}
	g.logger.Info("Replayed pending operations", "workerId", clientID, "count", len(pending))
	return nil
}

func (g *Gateway) onWorkerDisconnected(clientID string, client *connectionmanager.Client) {
	current := g.connectionMgr.Leave(client)
	g.logger.Info("Worker disconnected", "workerId", clientID, "connectionId", client.ID, "current", current)
	if !current {
		// a newer connection of the same worker is live
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	if err := g.workerService.SetConnectionStatus(ctx, clientID, false, g.cfg.MarkOfflineOnDisconnect); err != nil {
		g.logger.Error("Failed to mark worker disconnected", "workerId", clientID, "error", err)
	}
}

func (g *Gateway) handleWorkerMessage(clientID string, client *connectionmanager.Client, message []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := g.workerService.Touch(ctx, clientID); err != nil {
		g.logger.Warn("Failed to refresh worker liveness", "workerId", clientID, "error", err)
	}

	env, err := defs.Decode(message)
	if err != nil {
		g.logger.Warn("Malformed worker message", "workerId", clientID, "error", err)
		client.SendError(defs.ErrCodeMalformed, err.Error())
		return
	}

	handler, exists := g.handlers[env.Type]
	if !exists {
		g.logger.Warn("Unknown message type", "workerId", clientID, "type", env.Type)
		return
	}

	if err := handler.HandleMessage(ctx, client, env.Payload, clientID); err != nil {
		g.logger.Error("Error handling message", "workerId", clientID, "type", env.Type, "error", err)
		code := defs.ErrCodeHandlerError
		if errors.Is(err, handlers.ErrInvalidPayload) {
			code = defs.ErrCodeInvalidData
		}
		client.SendError(code, err.Error())
	}
}

// observerCaller authenticates an observer from the token query parameter
func (g *Gateway) observerCaller(w http.ResponseWriter, r *http.Request) (domain.Caller, bool) {
	payload, err := g.secrets.ParseAuthPayload(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return domain.Caller{}, false
	}
	return payload.Caller(), true
}

// ServeWorkersObserver streams workers_update snapshots
func (g *Gateway) ServeWorkersObserver(w http.ResponseWriter, r *http.Request) {
	caller, ok := g.observerCaller(w, r)
	if !ok {
		return
	}
	snapshot, err := g.workersPub.Snapshot(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	g.serveObserver(w, r, defs.ObserverWorkersGroup, caller, func(client *connectionmanager.Client) error {
		return client.SendMessage(defs.MsgWorkersUpdate, "", snapshot)
	})
}

// ServeStatusObserver streams worker_status flips for the caller's own workers
func (g *Gateway) ServeStatusObserver(w http.ResponseWriter, r *http.Request) {
	caller, ok := g.observerCaller(w, r)
	if !ok {
		return
	}
	status, err := g.statusPub.Status(r.Context(), caller.UserID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	g.serveObserver(w, r, defs.UserStatusGroup(caller.UserID), caller, func(client *connectionmanager.Client) error {
		g.statusPub.Remember(caller.UserID, status.Connected)
		return client.SendMessage(defs.MsgWorkerStatus, "", status)
	})
}

func (g *Gateway) serveObserver(w http.ResponseWriter, r *http.Request, group string, caller domain.Caller, greet func(*connectionmanager.Client) error) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("Failed to upgrade observer connection", "userId", caller.UserID, "error", err)
		return
	}

	client := connectionmanager.NewClient(conn, group, g.logger)
	g.connectionMgr.Join(client)
	go client.WritePump()
	g.logger.Info("Observer connected", "userId", caller.UserID, "group", group)

	if err := greet(client); err != nil {
		g.logger.Warn("Failed to greet observer", "userId", caller.UserID, "error", err)
	}

	// observers only send control frames; reading keeps pongs and closes flowing
	client.ReadPump(func([]byte) {})

	g.connectionMgr.Leave(client)
	g.logger.Info("Observer disconnected", "userId", caller.UserID, "group", group)
}

// DeliverOperation implements OperationDispatcher
func (g *Gateway) DeliverOperation(ctx context.Context, op *domain.Operation) (bool, error) {
	return g.operationPub.Publish(ctx, op)
}

// NotifyClaimStatus implements PresenceNotifier
func (g *Gateway) NotifyClaimStatus(ctx context.Context, clientID string, status domain.ClaimStatus) error {
	return g.claimPub.Publish(ctx, clientID, status)
}

func (g *Gateway) BroadcastWorkers(ctx context.Context) error {
	return g.workersPub.Publish(ctx)
}

func (g *Gateway) BroadcastUserStatus(ctx context.Context, userID string) error {
	return g.statusPub.Publish(ctx, userID)
}

// Stop closes every open connection
func (g *Gateway) Stop() {
	g.connectionMgr.CloseAll()
}
