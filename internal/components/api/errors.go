// Package api holds the JSON plumbing shared by the HTTP handlers: the error
// envelope, request decoding and session token helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/dispoahora-go/internal/appctx"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/store"
)

// Reason codes are part of the API: clients switch on them, so existing
// values never change.
const (
	ReasonUnauthenticated    = "unauthenticated"
	ReasonSessionExpired     = "session_expired"
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonForbidden          = "forbidden"
	ReasonRateLimited        = "rate_limited"

	ReasonBadRequest   = "bad_request"
	ReasonMissingField = "missing_field"
	ReasonInvalidField = "invalid_field"
	ReasonNotFound     = "not_found"
	ReasonConflict     = "conflict"

	ReasonInternalError = "internal_error"
	ReasonUnavailable   = "unavailable"
)

// ErrorEnvelope is the body of every error response:
//
//	{"error":{"code":"Not Found","reason_code":"not_found","message":"..."}}
type ErrorEnvelope struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the HTTP status text, the reason code and a message.
// RequestID is set by WriteFailure so a 500 can be matched to its log line.
type ErrorDetail struct {
	Code       string `json:"code"`
	ReasonCode string `json:"reason_code"`
	Message    string `json:"message"`
	RequestID  string `json:"request_id,omitempty"`
}

func writeEnvelope(w http.ResponseWriter, status int, d ErrorDetail) {
	d.Code = http.StatusText(status)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorEnvelope{Error: d})
}

// WriteError writes the envelope with the given status.
func WriteError(w http.ResponseWriter, status int, reasonCode, message string) {
	writeEnvelope(w, status, ErrorDetail{ReasonCode: reasonCode, Message: message})
}

func WriteUnauthorized(w http.ResponseWriter, reasonCode, message string) {
	WriteError(w, http.StatusUnauthorized, reasonCode, message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, ReasonForbidden, message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, ReasonNotFound, message)
}

func WriteBadRequest(w http.ResponseWriter, reasonCode, message string) {
	WriteError(w, http.StatusBadRequest, reasonCode, message)
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, ReasonRateLimited, message)
}

// WriteInternalError writes a 500. message goes to the client as is, so it
// must not carry error details.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, ReasonInternalError, message)
}

// WriteFailure answers for an error returned by the store or a repository:
//
//	store.ErrNotFound            404 not_found
//	context canceled or timeout  503 unavailable
//	anything else                500 internal_error, logged with err
//
// message is what the client sees; err is only logged.
func WriteFailure(w http.ResponseWriter, r *http.Request, err error, message string) {
	reqID := middleware.GetReqID(r.Context())
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeEnvelope(w, http.StatusNotFound, ErrorDetail{ReasonCode: ReasonNotFound, Message: message, RequestID: reqID})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		appctx.GetLogger(r.Context()).Warn(message, "error", err)
		writeEnvelope(w, http.StatusServiceUnavailable, ErrorDetail{ReasonCode: ReasonUnavailable, Message: message, RequestID: reqID})
	default:
		appctx.GetLogger(r.Context()).Error(message, "error", err)
		writeEnvelope(w, http.StatusInternalServerError, ErrorDetail{ReasonCode: ReasonInternalError, Message: message, RequestID: reqID})
	}
}
