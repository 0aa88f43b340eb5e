package server

import (
	"encoding/json"
	"net/http"

	"surveyboard/internal"
	"surveyboard/internal/apperr"
)

type errorBody struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	Placeholder bool   `json:"placeholder,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		internal.DefaultLogger.Warn("http: encode response: %v", err)
	}
}

// writeError maps error codes to statuses. A missing column or identifier
// is not a failure of the request: the client renders a placeholder chart.
func writeError(w http.ResponseWriter, err error) {
	code := apperr.GetCode(err)
	body := errorBody{Error: code, Message: err.Error()}

	status := http.StatusInternalServerError
	switch code {
	case apperr.CodeMissingColumn, apperr.CodeMissingIdentifier:
		status = http.StatusUnprocessableEntity
		body.Placeholder = true
	case apperr.CodeNotFound:
		status = http.StatusNotFound
	case apperr.CodeInvalidInput, apperr.CodeMappingLoad:
		status = http.StatusBadRequest
	case apperr.CodeExternalService:
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		internal.DefaultLogger.Error("http: %v", err)
	}
	writeJSON(w, status, body)
}
