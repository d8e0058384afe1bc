package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"bus-tracker/internal/fleet"
)

// Response is the envelope for every JSON API reply.
type Response struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Count     *int      `json:"count,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data, Timestamp: time.Now().UTC()})
}

func writeList[T any](w http.ResponseWriter, items []T) {
	n := len(items)
	writeJSON(w, http.StatusOK, Response{Success: true, Data: items, Count: &n, Timestamp: time.Now().UTC()})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Success: false, Message: message})
}

// writeErr maps domain errors onto status codes. message, when set, replaces
// the error text for 400 and 404 replies.
func writeErr(w http.ResponseWriter, err error, message string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, fleet.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, fleet.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		log.Printf("api error: %v", err)
		writeError(w, status, "Internal server error")
		return
	}
	if message == "" {
		message = err.Error()
	}
	writeError(w, status, message)
}
