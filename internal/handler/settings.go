package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/hearthside/chorebank/internal/quota"
	"github.com/hearthside/chorebank/internal/store"
)

type SettingsHandler struct {
	settings *store.SettingsStore
	logger   *slog.Logger
}

func NewSettingsHandler(ss *store.SettingsStore, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{settings: ss, logger: logger}
}

func (h *SettingsHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.GetAll()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	for key, value := range req {
		if msg := validateSetting(key, value); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}
	}
	for key, value := range req {
		if err := h.settings.Set(key, value); err != nil {
			h.logger.Error("set setting", "key", key, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
	}

	settings, err := h.settings.GetAll()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func validateSetting(key, value string) string {
	switch key {
	case store.KeyWeekStartDay:
		if _, err := quota.ParseWeekStartDay(value); err != nil {
			return "week_start_day must be a weekday name"
		}
	case store.KeyWeeklyPenaltyPct:
		pct, err := decimal.NewFromString(value)
		if err != nil || pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(1)) {
			return "weekly_penalty_percent must be a decimal between 0 and 1"
		}
	}
	return ""
}
