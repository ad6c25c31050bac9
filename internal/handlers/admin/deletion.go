package admin

import (
	"net/http"

	"github.com/gorilla/mux"

	"gitlab.com/savesync.net/internal/domain"
	"gitlab.com/savesync.net/internal/handlers"
)

func (h *Handler) DeleteGame(w http.ResponseWriter, r *http.Request) {
	caller, _ := handlers.CallerFromContext(r.Context())
	plan, err := h.planner.DeleteGame(r.Context(), mux.Vars(r)["id"], caller)
	h.respondPlan(w, plan, err)
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	caller, _ := handlers.CallerFromContext(r.Context())
	plan, err := h.planner.DeleteAccount(r.Context(), mux.Vars(r)["id"], caller)
	h.respondPlan(w, plan, err)
}

// respondPlan answers 200 for an immediate delete and 202 while storage cleanup is queued
func (h *Handler) respondPlan(w http.ResponseWriter, plan *domain.DeletionPlan, err error) {
	if err != nil {
		handlers.ResponseServiceError(w, h.logger, err)
		return
	}
	status := http.StatusAccepted
	if plan.Immediate {
		status = http.StatusOK
	}
	handlers.ResponseWithJson(w, status, plan)
}
