package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/AnshRaj112/rehab-backend/internal/logx"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Status  string            `json:"status"`
	Data    any               `json:"data,omitempty"`
	Message string            `json:"message,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

const (
	statusSuccess = "success"
	statusError   = "error"
)

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logx.Debugf("write response: %v", err)
	}
}

func respondData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Status: statusSuccess, Data: data})
}

func respondMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Envelope{Status: statusSuccess, Message: message})
}

func respondError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Envelope{Status: statusError, Message: message})
}

func respondFields(w http.ResponseWriter, message string, fields map[string]string) {
	writeJSON(w, http.StatusUnprocessableEntity, Envelope{Status: statusError, Message: message, Errors: fields})
}

// readJSON reads a bounded JSON body into dst.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	return json.NewDecoder(r.Body).Decode(dst)
}

// decodeJSON reads a bounded JSON body into dst and answers 422 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := readJSON(w, r, dst); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "Invalid request body")
		return false
	}
	return true
}
