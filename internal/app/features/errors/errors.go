// internal/app/features/errors/errors.go
package errors

import (
	"net/http"

	"github.com/dalemusser/cohorthub/internal/app/system/apperr"
	"github.com/dalemusser/cohorthub/internal/app/system/respond"
)

// Handler answers requests no route claimed, in the API envelope.
type Handler struct{}

// NewHandler constructs an errors Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// NotFound is installed as the router's NotFound handler.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	respond.Fail(w, r, apperr.NotFound, "no route for "+r.Method+" "+r.URL.Path)
}

// MethodNotAllowed is installed as the router's MethodNotAllowed handler.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respond.Fail(w, r, apperr.BadMethod, r.Method+" is not supported on "+r.URL.Path)
}
