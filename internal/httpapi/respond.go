package httpapi

import (
	"encoding/json"
	"net/http"

	tserrors "github.com/tenantsync/engine/internal/errors"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps a typed error kind to its documented HTTP status (§7);
// nothing below this layer writes an HTTP status.
func writeError(w http.ResponseWriter, err error) {
	te, ok := tserrors.As(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
		return
	}
	status := http.StatusInternalServerError
	switch te.Kind {
	case tserrors.KindConfig:
		status = http.StatusInternalServerError
	case tserrors.KindTransientIO:
		status = http.StatusServiceUnavailable
	case tserrors.KindSourceSchema:
		status = http.StatusUnprocessableEntity
	case tserrors.KindAuth:
		status = http.StatusUnauthorized
	case tserrors.KindRateLimit:
		status = http.StatusTooManyRequests
	case tserrors.KindNotFound:
		status = http.StatusNotFound
	case tserrors.KindConflict:
		status = http.StatusConflict
	case tserrors.KindForbidden:
		status = http.StatusForbidden
	}
	writeJSON(w, status, map[string]string{"error": te.Code, "message": te.Message})
}

func pageParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
	}
	if n <= 0 {
		return def
	}
	return n
}
