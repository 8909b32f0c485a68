package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stakemesh/platform/internal/domain"
)

// envelope is the uniform response body: isSuccess plus either data or
// an error message. Failures never carry stack traces.
type envelope struct {
	IsSuccess    bool        `json:"isSuccess"`
	Data         interface{} `json:"data,omitempty"`
	Code         string      `json:"code,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
}

// RespondJSON writes a success envelope with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{IsSuccess: true, Data: data})
}

// RespondError writes a failure envelope, detecting domain.AppError
// for status codes.
func RespondError(w http.ResponseWriter, err error) {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		RespondErrorCode(w, appErr.Status, appErr.Code, appErr.Message)
		return
	}
	RespondErrorCode(w, http.StatusInternalServerError, domain.CodeInternal, "internal server error")
}

// RespondErrorCode writes a failure envelope with an explicit status and code.
func RespondErrorCode(w http.ResponseWriter, status int, code, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{IsSuccess: false, Code: code, ErrorMessage: message})
}

// DecodeJSON reads and decodes a JSON request body into dst.
func DecodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
