package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dalemusser/cohorthub/internal/app/system/auth"
	"github.com/dalemusser/cohorthub/internal/domain/models"
)

// WithUser adds a user to the request context for testing authenticated handlers.
// This bypasses the bearer-token middleware and injects the user directly.
func WithUser(r *http.Request, user models.User) *http.Request {
	u := user
	return auth.WithTestUser(r, &u)
}

// NewRequest creates an HTTP request for testing. A non-nil body is
// encoded as JSON.
func NewRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		rdr = strings.NewReader(string(b))
	}
	req := httptest.NewRequest(method, target, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// NewAuthenticatedRequest creates an HTTP request with a user in context.
func NewAuthenticatedRequest(t *testing.T, method, target string, body any, user models.User) *http.Request {
	t.Helper()
	return WithUser(NewRequest(t, method, target, body), user)
}

// ResponseRecorder wraps httptest.ResponseRecorder with helper methods.
type ResponseRecorder struct {
	*httptest.ResponseRecorder
}

// NewRecorder creates a new ResponseRecorder.
func NewRecorder() *ResponseRecorder {
	return &ResponseRecorder{httptest.NewRecorder()}
}

// Envelope is the decoded API response shape.
type Envelope struct {
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

// AssertStatus checks the response status code.
func (r *ResponseRecorder) AssertStatus(t interface{ Errorf(string, ...any) }, expected int) {
	if r.Code != expected {
		t.Errorf("status code: got %d, want %d (body: %s)", r.Code, expected, r.Body.String())
	}
}

// AssertErrorType checks the error.type of a failure envelope.
func (r *ResponseRecorder) AssertErrorType(t *testing.T, expected string) {
	t.Helper()
	env := r.Envelope(t)
	if env.Error.Type != expected {
		t.Errorf("error type: got %q, want %q (body: %s)", env.Error.Type, expected, r.Body.String())
	}
}

// Envelope decodes the response body.
func (r *ResponseRecorder) Envelope(t *testing.T) Envelope {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(r.Body.Bytes(), &env); err != nil {
		t.Fatalf("response is not a JSON envelope: %v (%s)", err, r.Body.String())
	}
	return env
}

// DecodeData decodes response.data into dst.
func (r *ResponseRecorder) DecodeData(t *testing.T, dst any) {
	t.Helper()
	env := r.Envelope(t)
	if err := json.Unmarshal(env.Response.Data, dst); err != nil {
		t.Fatalf("decode response data: %v (%s)", err, string(env.Response.Data))
	}
}
