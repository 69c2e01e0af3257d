package respond_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dalemusser/cohorthub/internal/app/system/apperr"
	"github.com/dalemusser/cohorthub/internal/app/system/limits"
	"github.com/dalemusser/cohorthub/internal/app/system/respond"
	"go.uber.org/zap"
)

type envelope struct {
	Success    bool `json:"success"`
	StatusCode int  `json:"statusCode"`
	Response   struct {
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	} `json:"response"`
	Error struct {
		Type    string         `json:"type"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("body is not JSON: %v (%s)", err, rec.Body.String())
	}
	return env
}

func TestOK(t *testing.T) {
	rec := httptest.NewRecorder()
	respond.OK(rec, http.StatusCreated, "created", map[string]string{"id": "x"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	env := decode(t, rec)
	if !env.Success || env.StatusCode != 201 || env.Response.Message != "created" {
		t.Errorf("unexpected envelope: %+v", env)
	}
	if !strings.Contains(string(env.Response.Data), `"id":"x"`) {
		t.Errorf("data = %s", env.Response.Data)
	}
}

func TestError_AppError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("PATCH", "/x", nil)
	err := apperr.New(apperr.WithdrawalTooEarly, "wait 23h").WithDetail("remaining_seconds", 82800)

	respond.Error(rec, req, zap.NewNop(), err)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	env := decode(t, rec)
	if env.Success || env.Error.Type != "WithdrawalTooEarly" || env.Error.Message != "wait 23h" {
		t.Errorf("unexpected envelope: %+v", env)
	}
	if env.Error.Details["remaining_seconds"] != float64(82800) {
		t.Errorf("details = %v", env.Error.Details)
	}
}

func TestError_HidesInternalCause(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/x", nil)

	respond.Error(rec, req, zap.NewNop(), errors.New("mongo: connection refused"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Errorf("internal cause leaked: %s", rec.Body.String())
	}
}

func TestDecode_RejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest("POST", "/x", strings.NewReader(`{"pitch":"hi","bogus":1}`))
	var dst struct {
		Pitch string `json:"pitch"`
	}
	err := respond.Decode(req, &dst)
	if !apperr.HasCode(err, apperr.Validation) {
		t.Fatalf("expected Validation error, got %v", err)
	}
}

func TestDecode_RejectsOversizedBody(t *testing.T) {
	body := `{"pitch":"` + strings.Repeat("x", limits.MaxJSONBodySize) + `"}`
	req := httptest.NewRequest("POST", "/x", strings.NewReader(body))
	var dst struct {
		Pitch string `json:"pitch"`
	}
	err := respond.Decode(req, &dst)
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Code != apperr.Validation {
		t.Fatalf("expected Validation error, got %v", err)
	}
	if ae.Details["limit_bytes"] != int64(limits.MaxJSONBodySize) {
		t.Errorf("limit_bytes = %v", ae.Details["limit_bytes"])
	}
}
