// Package respond writes the uniform JSON envelope used by every API route.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dalemusser/cohorthub/internal/app/system/apperr"
	"github.com/dalemusser/cohorthub/internal/app/system/limits"
	"go.uber.org/zap"
)

type successBody struct {
	Success    bool           `json:"success"`
	StatusCode int            `json:"statusCode"`
	Response   successPayload `json:"response"`
}

type successPayload struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type errorBody struct {
	Success    bool         `json:"success"`
	StatusCode int          `json:"statusCode"`
	Error      errorPayload `json:"error"`
}

type errorPayload struct {
	Type    apperr.Code    `json:"type"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// OK writes a success envelope.
func OK(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, successBody{
		Success:    true,
		StatusCode: status,
		Response:   successPayload{Message: message, Data: data},
	})
}

// Error writes err as a failure envelope. Server-side failures are logged
// with their cause and shown to the client without it.
func Error(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	e := apperr.From(err)
	status := e.HTTPStatus()

	if e.IsServerError() && log != nil {
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("code", string(e.Code)),
			zap.Error(err))
	}

	msg := e.Message
	if e.Code == apperr.Internal {
		msg = "internal server error"
	}

	writeJSON(w, status, errorBody{
		StatusCode: status,
		Error: errorPayload{
			Type:    e.Code,
			Message: msg,
			Details: e.Details,
		},
	})
}

// Fail is shorthand for Error(w, r, nil, apperr.New(code, message)), for
// callers that have nothing worth logging.
func Fail(w http.ResponseWriter, r *http.Request, code apperr.Code, message string) {
	Error(w, r, nil, apperr.New(code, message))
}

// Decode reads a JSON request body into dst, rejecting unknown fields.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, limits.MaxJSONBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Wrap(err, apperr.Validation, "request body is too large").
				WithDetail("limit_bytes", tooLarge.Limit)
		}
		return apperr.Wrap(err, apperr.Validation, "request body is not valid JSON for this endpoint")
	}
	return nil
}
