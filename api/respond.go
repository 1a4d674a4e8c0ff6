package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError reports err as a 400 with an {"error": ...} body.
func WriteError(w http.ResponseWriter, err error) {
	WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
}

// DecodeJSON reads a JSON request body into a value of type T.
func DecodeJSON[T any](r *http.Request) (T, error) {
	var v T
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, MaxRequestBodySize))
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("invalid request body: %w", err)
	}
	return v, nil
}

// MaxRequestBodySize bounds every JSON request the agent accepts.
const MaxRequestBodySize = 1 << 20
