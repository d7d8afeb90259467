package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hearthside/chorebank/internal/quota"
	"github.com/hearthside/chorebank/internal/reconcile"
	"github.com/hearthside/chorebank/internal/store"
)

type PenaltyHandler struct {
	members *store.FamilyMemberStore
	svc     *reconcile.Service
	logger  *slog.Logger
}

func NewPenaltyHandler(ms *store.FamilyMemberStore, svc *reconcile.Service, logger *slog.Logger) *PenaltyHandler {
	return &PenaltyHandler{members: ms, svc: svc, logger: logger}
}

type penaltyRunRequest struct {
	ActorID int64  `json:"actor_id"`
	WeekEnd string `json:"week_end"`
}

// Run executes the weekly penalty reconciliation for the week ending on
// week_end. Parent only. Re-running the same week posts nothing new.
func (h *PenaltyHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req penaltyRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if _, err := time.Parse(quota.DateLayout, req.WeekEnd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid week_end, want YYYY-MM-DD")
		return
	}

	actor, err := h.members.GetByID(req.ActorID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get actor")
		return
	}
	if actor == nil || !actor.Role.Privileged() {
		writeError(w, http.StatusForbidden, "parent role required")
		return
	}

	reports, err := h.svc.RunWeeklyPenaltyReconciliation(r.Context(), req.WeekEnd)
	if err != nil {
		h.logger.Error("penalty run", "week_end", req.WeekEnd, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to run penalty reconciliation")
		return
	}
	if reports == nil {
		reports = []reconcile.MemberPenaltyReport{}
	}
	writeJSON(w, http.StatusOK, reports)
}
