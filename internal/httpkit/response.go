// Package httpkit holds the small HTTP and PostgreSQL helpers shared by the
// status API and the ledger repository.
package httpkit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

// ErrorEnvelope is the body of every error response.
type ErrorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	} `json:"error"`
}

// WriteJSON writes body with status. Run status changes while a run is in
// flight, so responses are never cached.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func WriteErr(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	var env ErrorEnvelope
	env.Error.Code = code
	env.Error.Message = msg
	env.Error.Details = details
	WriteJSON(w, status, env)
}

// QueryInt reads query parameter key as an integer in [lo, hi]. A missing
// or blank parameter yields def; ok is false for anything unparsable or
// out of range.
func QueryInt(r *http.Request, key string, def, lo, hi int) (v int, ok bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return 0, false
	}
	return v, true
}
