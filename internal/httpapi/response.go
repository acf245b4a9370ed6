package httpapi

import (
	"encoding/json"
	"net/http"
)

// response is the body of every /api reply. Exactly one of Data and Error is set.
type response struct {
	OK    bool      `json:"ok"`
	Data  any       `json:"data,omitempty"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

type listPage[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func newListPage[T any](items []T) listPage[T] {
	if items == nil {
		items = []T{}
	}
	return listPage[T]{Items: items, Total: len(items)}
}

func respond(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, response{OK: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, response{Error: &apiError{Status: status, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
