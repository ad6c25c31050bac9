package admin

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"gitlab.com/savesync.net/internal/config"
	"gitlab.com/savesync.net/internal/core/ports/primary"
	"gitlab.com/savesync.net/internal/core/services/completion"
	"gitlab.com/savesync.net/internal/core/services/deletion"
	"gitlab.com/savesync.net/internal/core/services/operation"
	"gitlab.com/savesync.net/internal/handlers"
	"gitlab.com/savesync.net/internal/static/errs"
)

type MaintenanceRequest struct {
	OlderThanSec *int `json:"older_than_sec,omitempty"`
}

type MaintenanceResponse struct {
	Affected  int `json:"affected"`
	OlderThan int `json:"older_than_sec"`
}

// Handler serves maintenance and catalog deletion endpoints
type Handler struct {
	queue       operation.IOperationQueue
	coordinator completion.ICompletionCoordinator
	planner     deletion.IDeletionPlanner
	middleware  *handlers.MiddlewareProvider
	sweep       *config.SweepConfig
	logger      primary.Logger
}

func NewHandler(
	queue operation.IOperationQueue,
	coordinator completion.ICompletionCoordinator,
	planner deletion.IDeletionPlanner,
	middleware *handlers.MiddlewareProvider,
	sweep *config.SweepConfig,
	logger primary.Logger,
) *Handler {
	return &Handler{
		queue:       queue,
		coordinator: coordinator,
		planner:     planner,
		middleware:  middleware,
		sweep:       sweep,
		logger:      logger,
	}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.Handle("/api/admin/operations/cleanup", h.middleware.Protect(h.adminOnly(h.Cleanup))).Methods("POST")
	router.Handle("/api/admin/operations/purge", h.middleware.Protect(h.adminOnly(h.Purge))).Methods("POST")
	router.Handle("/api/games/{id}", h.middleware.Protect(h.DeleteGame)).Methods("DELETE")
	router.Handle("/api/users/{id}", h.middleware.Protect(h.DeleteAccount)).Methods("DELETE")
}

func (h *Handler) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := handlers.CallerFromContext(r.Context())
		if !caller.IsAdmin {
			handlers.ResponseServiceError(w, h.logger, errs.ErrForbidden)
			return
		}
		next(w, r)
	}
}

// olderThan reads the threshold from the body, falling back to the configured one
func olderThan(r *http.Request, fallback time.Duration) (time.Duration, bool) {
	var req MaintenanceRequest
	if err := handlers.DecodeJSON(r, &req); err != nil {
		return 0, false
	}
	if req.OlderThanSec == nil {
		return fallback, true
	}
	if *req.OlderThanSec < 0 {
		return 0, false
	}
	return time.Duration(*req.OlderThanSec) * time.Second, true
}

// Cleanup fails operations that never reported back so pending deletions can resolve
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	threshold, ok := olderThan(r, h.sweep.StaleAfter)
	if !ok {
		handlers.ResponseError(w, "older_than_sec must be a non-negative integer", http.StatusBadRequest)
		return
	}
	n, err := h.coordinator.ExpireStale(r.Context(), threshold)
	if err != nil {
		handlers.ResponseServiceError(w, h.logger, err)
		return
	}
	handlers.ResponseWithJson(w, http.StatusOK, MaintenanceResponse{Affected: n, OlderThan: int(threshold / time.Second)})
}

func (h *Handler) Purge(w http.ResponseWriter, r *http.Request) {
	threshold, ok := olderThan(r, h.sweep.PurgeAfter)
	if !ok {
		handlers.ResponseError(w, "older_than_sec must be a non-negative integer", http.StatusBadRequest)
		return
	}
	n, err := h.queue.Purge(r.Context(), threshold)
	if err != nil {
		handlers.ResponseServiceError(w, h.logger, err)
		return
	}
	handlers.ResponseWithJson(w, http.StatusOK, MaintenanceResponse{Affected: n, OlderThan: int(threshold / time.Second)})
}
