package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/microfactory-run/microfactory/pkg/schema"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusForError maps a MicrofactoryError code to an HTTP status, defaulting
// to 500 for anything not explicitly mapped.
func statusForError(err error) int {
	mfErr, ok := err.(*schema.MicrofactoryError)
	if !ok {
		return http.StatusInternalServerError
	}
	switch mfErr.Code {
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeValidation, schema.ErrCodeConfig, schema.ErrCodeInvalidTransition:
		return http.StatusBadRequest
	case schema.ErrCodeConflict, schema.ErrCodeWaitStateActive:
		return http.StatusConflict
	case schema.ErrCodeAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
