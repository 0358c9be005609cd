package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"tip-settlement/internal/domain"
	"tip-settlement/internal/storage"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps a settlement or registry error to an HTTP status and code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden, domain.ErrorCode(err)
	case errors.Is(err, domain.ErrDuplicateTip), errors.Is(err, domain.ErrTipRejected):
		return http.StatusConflict, domain.ErrorCode(err)
	case errors.Is(err, domain.ErrPlatformWalletMissing), errors.Is(err, domain.ErrSplitInvariantViolation):
		return http.StatusInternalServerError, domain.ErrorCode(err)
	}

	code := domain.ErrorCode(err)
	if code == "internal" {
		return http.StatusInternalServerError, code
	}
	return http.StatusBadRequest, code
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}

func writeDomainError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeError(w, status, code, err)
}
