package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/dalemusser/cohorthub/internal/app/system/apperr"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code apperr.Code
		want int
	}{
		{apperr.DuplicateApplication, http.StatusConflict},
		{apperr.CapacityExceeded, http.StatusConflict},
		{apperr.InvalidTransition, http.StatusConflict},
		{apperr.AlreadyInGroup, http.StatusConflict},
		{apperr.NotAMember, http.StatusBadRequest},
		{apperr.GroupCreatorProtected, http.StatusForbidden},
		{apperr.WithdrawalTooEarly, http.StatusBadRequest},
		{apperr.NotFound, http.StatusNotFound},
		{apperr.InconsistentState, http.StatusInternalServerError},
		{apperr.Unauthorized, http.StatusUnauthorized},
		{apperr.RateLimited, http.StatusTooManyRequests},
		{apperr.Code("Unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			got := apperr.New(tt.code, "x").HTTPStatus()
			if got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIs_MatchesByCode(t *testing.T) {
	err := fmt.Errorf("approve: %w", apperr.New(apperr.CapacityExceeded, "group is full"))

	if !errors.Is(err, apperr.New(apperr.CapacityExceeded, "")) {
		t.Error("expected errors.Is to match on code through wrapping")
	}
	if errors.Is(err, apperr.New(apperr.InvalidTransition, "")) {
		t.Error("expected errors.Is not to match a different code")
	}
	if !apperr.HasCode(err, apperr.CapacityExceeded) {
		t.Error("expected HasCode to find the code")
	}
}

func TestFrom_UntaggedBecomesInternal(t *testing.T) {
	cause := errors.New("connection reset")
	e := apperr.From(cause)

	if e.Code != apperr.Internal {
		t.Errorf("code = %q, want Internal", e.Code)
	}
	if !errors.Is(e, cause) {
		t.Error("expected cause to be preserved")
	}
	if !e.IsServerError() {
		t.Error("expected Internal to be a server error")
	}
	if apperr.From(nil) != nil {
		t.Error("From(nil) should be nil")
	}
}

func TestWithDetail(t *testing.T) {
	e := apperr.New(apperr.WithdrawalTooEarly, "wait").WithDetail("remaining_seconds", 60)
	if e.Details["remaining_seconds"] != 60 {
		t.Errorf("details = %v", e.Details)
	}
}
