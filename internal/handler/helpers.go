package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/hearthside/chorebank/internal/chore"
	"github.com/hearthside/chorebank/internal/reconcile"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// errorStatus maps engine errors onto HTTP statuses. Conflicts come back 409
// so clients know to refresh and retry.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, reconcile.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, chore.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, chore.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, reconcile.ErrConcurrencyConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
