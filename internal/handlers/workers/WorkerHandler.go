package workers

import (
	"net/http"

	"github.com/gorilla/mux"

	"gitlab.com/savesync.net/internal/core/ports/primary"
	"gitlab.com/savesync.net/internal/core/services/operation"
	"gitlab.com/savesync.net/internal/core/services/worker"
	"gitlab.com/savesync.net/internal/domain"
	"gitlab.com/savesync.net/internal/handlers"
)

type ApiHandler struct {
	WorkerService worker.IWorkerRegistryService
	Queue         operation.IOperationQueue
	Middleware    *handlers.MiddlewareProvider
	Logger        primary.Logger
}

func NewHandler(workerService worker.IWorkerRegistryService, queue operation.IOperationQueue, middleware *handlers.MiddlewareProvider, logger primary.Logger) *ApiHandler {
	return &ApiHandler{
		WorkerService: workerService,
		Queue:         queue,
		Middleware:    middleware,
		Logger:        logger,
	}
}

type RegisterRequest struct {
	ClientID string `json:"client_id"`
	Hostname string `json:"hostname"`
}

type PendingOperationsResponse struct {
	ClientID   string              `json:"client_id"`
	Operations []*domain.Operation `json:"operations"`
}

type WorkersResponse struct {
	Workers []domain.WorkerSummary `json:"workers"`
}

// Register mounts the worker endpoints. Endpoints addressed by client_id are called by the workers themselves.
func (api *ApiHandler) Register(r *mux.Router) {
	r.Handle("/api/workers/register", api.Middleware.OptionalJWT(http.HandlerFunc(api.RegisterWorker))).Methods("POST")
	r.Handle("/api/workers", api.Middleware.Protect(api.GetWorkers)).Methods("GET")
	r.Handle("/api/workers/mine", api.Middleware.Protect(api.GetMyWorkers)).Methods("GET")
	r.HandleFunc("/api/workers/{client_id}/heartbeat", api.Heartbeat).Methods("POST")
	// unauthenticated like the other worker endpoints: workers run on the trusted LAN, and the
	// token only proves the caller reached this service before opening the socket
	r.HandleFunc("/api/workers/{client_id}/token", api.IssueToken).Methods("POST")
	r.HandleFunc("/api/workers/{client_id}/operations/pending", api.PendingOperations).Methods("GET")
	r.Handle("/api/workers/{client_id}/claim", api.Middleware.Protect(api.Claim)).Methods("POST")
	r.Handle("/api/workers/{client_id}/claim", api.Middleware.Protect(api.Unclaim)).Methods("DELETE")
}

// RegisterWorker upserts a worker; a signed-in caller claims it
func (api *ApiHandler) RegisterWorker(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := handlers.DecodeJSON(r, &req); err != nil {
		handlers.ResponseError(w, err.Error(), http.StatusBadRequest)
		return
	}

	opts := domain.RegisterOptions{Hostname: req.Hostname}
	if caller, ok := handlers.CallerFromContext(r.Context()); ok {
		opts.UserID = caller.UserID
		opts.Username = caller.Username
	}

	info, err := api.WorkerService.Register(r.Context(), req.ClientID, opts)
	if err != nil {
		handlers.ResponseServiceError(w, api.Logger, err)
		return
	}
	handlers.ResponseWithJson(w, http.StatusOK, info)
}

func (api *ApiHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	info, err := api.WorkerService.Heartbeat(r.Context(), mux.Vars(r)["client_id"])
	if err != nil {
		handlers.ResponseServiceError(w, api.Logger, err)
		return
	}
	handlers.ResponseWithJson(w, http.StatusOK, info)
}

func (api *ApiHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	token, err := api.WorkerService.IssueToken(r.Context(), mux.Vars(r)["client_id"])
	if err != nil {
		handlers.ResponseServiceError(w, api.Logger, err)
		return
	}
	handlers.ResponseWithJson(w, http.StatusOK, token)
}

// PendingOperations hands every pending operation to the polling worker
func (api *ApiHandler) PendingOperations(w http.ResponseWriter, r *http.Request) {
	clientID := mux.Vars(r)["client_id"]
	ops, err := api.Queue.PendingForWorker(r.Context(), clientID)
	if err != nil {
		handlers.ResponseServiceError(w, api.Logger, err)
		return
	}
	if ops == nil {
		ops = []*domain.Operation{}
	}
	handlers.ResponseWithJson(w, http.StatusOK, PendingOperationsResponse{ClientID: clientID, Operations: ops})
}

func (api *ApiHandler) GetWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := api.WorkerService.Snapshot(r.Context())
	if err != nil {
		handlers.ResponseServiceError(w, api.Logger, err)
		return
	}
	handlers.ResponseWithJson(w, http.StatusOK, summarize(workers))
}

func (api *ApiHandler) GetMyWorkers(w http.ResponseWriter, r *http.Request) {
	caller, _ := handlers.CallerFromContext(r.Context())
	workers, err := api.WorkerService.WorkersForUser(r.Context(), caller.UserID)
	if err != nil {
		handlers.ResponseServiceError(w, api.Logger, err)
		return
	}
	handlers.ResponseWithJson(w, http.StatusOK, summarize(workers))
}

func (api *ApiHandler) Claim(w http.ResponseWriter, r *http.Request) {
	caller, _ := handlers.CallerFromContext(r.Context())
	info, err := api.WorkerService.Claim(r.Context(), mux.Vars(r)["client_id"], caller.UserID, caller.Username)
	if err != nil {
		handlers.ResponseServiceError(w, api.Logger, err)
		return
	}
	handlers.ResponseWithJson(w, http.StatusOK, info)
}

// Unclaim releases the caller's ownership. Admins may release any worker.
func (api *ApiHandler) Unclaim(w http.ResponseWriter, r *http.Request) {
	caller, _ := handlers.CallerFromContext(r.Context())
	userID := caller.UserID
	if caller.IsAdmin {
		userID = ""
	}
	if err := api.WorkerService.Unclaim(r.Context(), mux.Vars(r)["client_id"], userID); err != nil {
		handlers.ResponseServiceError(w, api.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func summarize(workers []*domain.WorkerInfo) WorkersResponse {
	resp := WorkersResponse{Workers: make([]domain.WorkerSummary, 0, len(workers))}
	for _, wk := range workers {
		resp.Workers = append(resp.Workers, wk.Summary())
	}
	return resp
}
