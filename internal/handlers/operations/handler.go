package operations

import (
	"net/http"

	"github.com/gorilla/mux"

	"gitlab.com/savesync.net/internal/core/ports/primary"
	"gitlab.com/savesync.net/internal/core/services/completion"
	"gitlab.com/savesync.net/internal/core/services/operation"
	"gitlab.com/savesync.net/internal/core/services/worker"
	"gitlab.com/savesync.net/internal/domain"
	"gitlab.com/savesync.net/internal/handlers"
	"gitlab.com/savesync.net/internal/static/errs"
)

// OperationHandler handles operation API requests
type OperationHandler struct {
	queue       operation.IOperationQueue
	coordinator completion.ICompletionCoordinator
	workers     worker.IWorkerRegistryService
	middleware  *handlers.MiddlewareProvider
	logger      primary.Logger
}

// NewOperationHandler creates a new operation handler
func NewOperationHandler(
	queue operation.IOperationQueue,
	coordinator completion.ICompletionCoordinator,
	workers worker.IWorkerRegistryService,
	middleware *handlers.MiddlewareProvider,
	logger primary.Logger,
) *OperationHandler {
	return &OperationHandler{
		queue:       queue,
		coordinator: coordinator,
		workers:     workers,
		middleware:  middleware,
		logger:      logger,
	}
}

// RegisterRoutes registers the API routes for OperationHandler.
// started, progress and complete are the polling worker's fallback for the socket messages.
func (h *OperationHandler) RegisterRoutes(router *mux.Router) {
	router.Handle("/api/operations", h.middleware.Protect(h.CreateOperation)).Methods("POST")
	router.Handle("/api/operations/{id}", h.middleware.Protect(h.GetOperation)).Methods("GET")
	router.HandleFunc("/api/operations/{id}/started", h.OperationStarted).Methods("POST")
	router.HandleFunc("/api/operations/{id}/progress", h.OperationProgress).Methods("POST")
	router.HandleFunc("/api/operations/{id}/complete", h.OperationComplete).Methods("POST")
	router.Handle("/api/games/{id}/operations", h.middleware.Protect(h.GameOperations)).Methods("GET")
	router.Handle("/api/users/{id}/operations", h.middleware.Protect(h.UserOperations)).Methods("GET")
}

// CreateOperation handles operation creation requests
func (h *OperationHandler) CreateOperation(w http.ResponseWriter, r *http.Request) {
	caller, _ := handlers.CallerFromContext(r.Context())

	var req CreateOperationRequest
	if err := handlers.DecodeJSON(r, &req); err != nil {
		h.logger.Error("Failed to decode request", "error", err)
		handlers.ResponseError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		req.UserID = caller.UserID
	}
	if !caller.CanAccess(req.UserID) {
		handlers.ResponseServiceError(w, h.logger, errs.ErrForbidden)
		return
	}

	clientID, err := h.targetWorker(r, caller, req)
	if err != nil {
		handlers.ResponseServiceError(w, h.logger, err)
		return
	}

	id, err := h.queue.Create(r.Context(), req.CreateOperationRequest, clientID)
	if err != nil {
		handlers.ResponseServiceError(w, h.logger, err)
		return
	}

	handlers.ResponseWithJson(w, http.StatusAccepted, CreateOperationResponse{OperationID: id, ClientID: clientID})
}

// targetWorker picks the explicit worker when the caller may use it, otherwise one of the user's workers
func (h *OperationHandler) targetWorker(r *http.Request, caller domain.Caller, req CreateOperationRequest) (string, error) {
	if req.ClientID == "" {
		return h.queue.ResolveWorker(r.Context(), req.UserID)
	}
	if caller.IsAdmin {
		return req.ClientID, nil
	}
	info, err := h.workers.GetWorker(r.Context(), req.ClientID)
	if err != nil {
		return "", err
	}
	if !info.OwnedBy(req.UserID) {
		return "", errs.ErrForbidden
	}
	return req.ClientID, nil
}

func (h *OperationHandler) GetOperation(w http.ResponseWriter, r *http.Request) {
	caller, _ := handlers.CallerFromContext(r.Context())
	view, err := h.queue.Status(r.Context(), mux.Vars(r)["id"], &caller)
	if err != nil {
		handlers.ResponseServiceError(w, h.logger, err)
		return
	}
	handlers.ResponseWithJson(w, http.StatusOK, view)
}

func (h *OperationHandler) OperationStarted(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.MarkInProgress(r.Context(), mux.Vars(r)["id"]); err != nil {
		handlers.ResponseServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OperationHandler) OperationProgress(w http.ResponseWriter, r *http.Request) {
	var req ProgressRequest
	if err := handlers.DecodeJSON(r, &req); err != nil {
		handlers.ResponseError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	update := domain.ProgressUpdate{Current: req.Current, Total: req.Total, Message: req.Message}
	if err := h.queue.UpdateProgress(r.Context(), mux.Vars(r)["id"], update); err != nil {
		handlers.ResponseServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OperationHandler) OperationComplete(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if err := handlers.DecodeJSON(r, &req); err != nil {
		handlers.ResponseError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	report := domain.CompletionReport{
		OperationID: mux.Vars(r)["id"],
		Success:     req.Success,
		Result:      req.Result,
		Error:       req.Error,
	}
	if err := h.coordinator.HandleCompletion(r.Context(), report); err != nil {
		handlers.ResponseServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OperationHandler) GameOperations(w http.ResponseWriter, r *http.Request) {
	caller, _ := handlers.CallerFromContext(r.Context())
	if !caller.IsAdmin {
		handlers.ResponseServiceError(w, h.logger, errs.ErrForbidden)
		return
	}
	ops, err := h.queue.ListByGame(r.Context(), mux.Vars(r)["id"])
	h.respondList(w, ops, err)
}

func (h *OperationHandler) UserOperations(w http.ResponseWriter, r *http.Request) {
	caller, _ := handlers.CallerFromContext(r.Context())
	userID := mux.Vars(r)["id"]
	if !caller.CanAccess(userID) {
		handlers.ResponseServiceError(w, h.logger, errs.ErrForbidden)
		return
	}
	ops, err := h.queue.ListByUser(r.Context(), userID)
	h.respondList(w, ops, err)
}

func (h *OperationHandler) respondList(w http.ResponseWriter, ops []*domain.Operation, err error) {
	if err != nil {
		handlers.ResponseServiceError(w, h.logger, err)
		return
	}
	if ops == nil {
		ops = []*domain.Operation{}
	}
	handlers.ResponseWithJson(w, http.StatusOK, OperationsResponse{Operations: ops})
}
