package server

import (
	"encoding/json"
	"net/http"
)

// ErrorCode represents application-specific error codes.
type ErrorCode string

const (
	ErrorCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrorCodeInvalidRecords ErrorCode = "INVALID_RECORDS"
	ErrorCodeTooLarge       ErrorCode = "TOO_MANY_RECORDS"
	ErrorCodeNoModel        ErrorCode = "MODEL_UNAVAILABLE"
	ErrorCodeInternal       ErrorCode = "INTERNAL_ERROR"
)

// ErrorResponse represents the standard error response format.
type ErrorResponse struct {
	Status    string    `json:"status"`
	ErrorCode ErrorCode `json:"error_code"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message, requestID string) {
	writeJSON(w, status, ErrorResponse{
		Status:    "error",
		ErrorCode: code,
		Message:   message,
		RequestID: requestID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
