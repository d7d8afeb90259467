package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hearthside/chorebank/internal/chore"
	"github.com/hearthside/chorebank/internal/model"
	"github.com/hearthside/chorebank/internal/quota"
	"github.com/hearthside/chorebank/internal/reconcile"
	"github.com/hearthside/chorebank/internal/store"
	"github.com/hearthside/chorebank/internal/websocket"
)

type ChoreHandler struct {
	chores  *store.ChoreStore
	members *store.FamilyMemberStore
	svc     *reconcile.Service
	hub     *websocket.Hub
	logger  *slog.Logger
}

func NewChoreHandler(cs *store.ChoreStore, ms *store.FamilyMemberStore, svc *reconcile.Service, hub *websocket.Hub, logger *slog.Logger) *ChoreHandler {
	return &ChoreHandler{chores: cs, members: ms, svc: svc, hub: hub, logger: logger}
}

func (h *ChoreHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

type choreRequest struct {
	Title        string             `json:"title"`
	Description  string             `json:"description"`
	AssignedTo   *int64             `json:"assigned_to"`
	EarnValue    decimal.Decimal    `json:"earn_value"`
	PenaltyValue decimal.Decimal    `json:"penalty_value"`
	ScheduleKind model.ScheduleKind `json:"schedule_kind"`
	WeeklyTarget int                `json:"weekly_target"`
	Repeatable   bool               `json:"repeatable"`
	AutoApprove  bool               `json:"auto_approve"`
	Active       *bool              `json:"active"`
	StartsOn     *string            `json:"starts_on"`
	EndsOn       *string            `json:"ends_on"`
}

func (h *ChoreHandler) validate(req *choreRequest) string {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return "title is required"
	}
	if req.ScheduleKind == "" {
		req.ScheduleKind = model.ScheduleFixedDays
	}
	if req.ScheduleKind != model.ScheduleFixedDays && req.ScheduleKind != model.ScheduleWeeklyFrequency {
		return "schedule_kind must be fixed_days or weekly_frequency"
	}
	if req.EarnValue.IsNegative() || req.PenaltyValue.IsNegative() {
		return "earn_value and penalty_value must not be negative"
	}
	if req.ScheduleKind == model.ScheduleWeeklyFrequency && req.WeeklyTarget < 1 {
		return "weekly_target must be at least 1"
	}
	return ""
}

func (h *ChoreHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req choreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := h.validate(&req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	if req.AssignedTo != nil {
		member, err := h.members.GetByID(*req.AssignedTo)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to check member")
			return
		}
		if member == nil {
			writeError(w, http.StatusBadRequest, "assigned member not found")
			return
		}
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	def, err := h.chores.CreateDefinition(&model.ChoreDefinition{
		Title:        req.Title,
		Description:  req.Description,
		AssignedTo:   req.AssignedTo,
		EarnValue:    req.EarnValue,
		PenaltyValue: req.PenaltyValue,
		ScheduleKind: req.ScheduleKind,
		WeeklyTarget: req.WeeklyTarget,
		Repeatable:   req.Repeatable,
		AutoApprove:  req.AutoApprove,
		Active:       active,
		StartsOn:     req.StartsOn,
		EndsOn:       req.EndsOn,
	})
	if err != nil {
		h.logger.Error("create chore", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create chore")
		return
	}

	h.broadcast(websocket.NewMessage(websocket.EntityChore, websocket.ActionCreated, def.ID, nil))
	writeJSON(w, http.StatusCreated, def)
}

func (h *ChoreHandler) List(w http.ResponseWriter, r *http.Request) {
	defs, err := h.chores.ListDefinitions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list chores")
		return
	}
	if defs == nil {
		defs = []model.ChoreDefinition{}
	}
	writeJSON(w, http.StatusOK, defs)
}

func (h *ChoreHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	def, err := h.chores.GetDefinition(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get chore")
		return
	}
	if def == nil {
		writeError(w, http.StatusNotFound, "chore not found")
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (h *ChoreHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.chores.GetDefinition(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get chore")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "chore not found")
		return
	}

	var req choreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := h.validate(&req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	active := existing.Active
	if req.Active != nil {
		active = *req.Active
	}
	def, err := h.chores.UpdateDefinition(&model.ChoreDefinition{
		ID:           id,
		Title:        req.Title,
		Description:  req.Description,
		AssignedTo:   req.AssignedTo,
		EarnValue:    req.EarnValue,
		PenaltyValue: req.PenaltyValue,
		ScheduleKind: req.ScheduleKind,
		WeeklyTarget: req.WeeklyTarget,
		Repeatable:   req.Repeatable,
		AutoApprove:  req.AutoApprove,
		Active:       active,
		StartsOn:     req.StartsOn,
		EndsOn:       req.EndsOn,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update chore")
		return
	}

	h.broadcast(websocket.NewMessage(websocket.EntityChore, websocket.ActionUpdated, id, nil))
	writeJSON(w, http.StatusOK, def)
}

func (h *ChoreHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.chores.DeleteDefinition(id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete chore")
		return
	}
	h.broadcast(websocket.NewMessage(websocket.EntityChore, websocket.ActionDeleted, id, nil))
	w.WriteHeader(http.StatusNoContent)
}

type statusChangeRequest struct {
	ActorID    int64  `json:"actor_id"`
	Status     string `json:"status"`
	HelpReason string `json:"help_reason"`
	Notes      string `json:"notes"`
}

// ChangeStatus drives a chore occurrence through the status machine and the
// ledger reconciler in one shot.
func (h *ChoreHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	date := r.PathValue("date")
	if _, err := time.Parse(quota.DateLayout, date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
		return
	}

	var req statusChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	log, err := h.svc.RequestStatusChange(r.Context(), reconcile.StatusChangeRequest{
		ChoreID:    id,
		Date:       date,
		ActorID:    req.ActorID,
		Desired:    chore.Status(req.Status),
		HelpReason: req.HelpReason,
		Notes:      req.Notes,
	})
	if err != nil {
		status := errorStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("status change", "chore_id", id, "date", date, "error", err)
			writeError(w, status, "failed to change status")
			return
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, log)
}

func (h *ChoreHandler) GetLog(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	date := r.PathValue("date")

	log, err := h.chores.GetLog(id, date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get log")
		return
	}
	if log == nil {
		writeError(w, http.StatusNotFound, "no log for that chore and date")
		return
	}
	writeJSON(w, http.StatusOK, log)
}

// Progress reports the chore's weekly quota snapshot as of today or the
// as_of query parameter.
func (h *ChoreHandler) Progress(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	asOf := time.Now()
	if q := r.URL.Query().Get("as_of"); q != "" {
		asOf, err = time.Parse(quota.DateLayout, q)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid as_of, want YYYY-MM-DD")
			return
		}
	}

	progress, err := h.svc.GetWeeklyProgress(r.Context(), id, asOf)
	if err != nil {
		status := errorStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("weekly progress", "chore_id", id, "error", err)
			writeError(w, status, "failed to compute progress")
			return
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// MemberProgress reports weekly snapshots for every active weekly chore
// assigned to the member.
func (h *ChoreHandler) MemberProgress(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	member, err := h.members.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get member")
		return
	}
	if member == nil {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}

	asOf := time.Now()
	if q := r.URL.Query().Get("as_of"); q != "" {
		asOf, err = time.Parse(quota.DateLayout, q)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid as_of, want YYYY-MM-DD")
			return
		}
	}

	snapshots, err := h.svc.MemberWeeklyProgress(r.Context(), id, asOf)
	if err != nil {
		h.logger.Error("member weekly progress", "member_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute progress")
		return
	}
	if snapshots == nil {
		snapshots = []model.WeeklyProgress{}
	}
	writeJSON(w, http.StatusOK, snapshots)
}
