// ABOUTME: Tests for HTTP authentication middleware
// ABOUTME: Covers token extraction, rejection and subject propagation

package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func serveWithAuth(t *testing.T, header string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	verifier := newTestVerifier(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var subject string
	handler := RequireBearer(verifier, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = SubjectFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, subject
}

func TestRequireBearer_ValidToken(t *testing.T) {
	token, err := newTestVerifier(t).Generate("cursor", time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	rec, subject := serveWithAuth(t, "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if subject != "cursor" {
		t.Errorf("subject = %q, want %q", subject, "cursor")
	}
}

func TestRequireBearer_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		wantMsg string
	}{
		{"missing header", "", "missing authorization header"},
		{"basic auth", "Basic dXNlcjpwYXNz", "invalid authorization header format"},
		{"empty token", "Bearer ", "empty token"},
		{"bad token", "Bearer nope", "invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, subject := serveWithAuth(t, tt.header)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.wantMsg) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tt.wantMsg)
			}
			if rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
			if subject != "" {
				t.Error("handler should not have run")
			}
		})
	}
}

func TestSubjectFrom_Anonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := SubjectFrom(req.Context()); got != "" {
		t.Errorf("SubjectFrom() = %q, want empty", got)
	}
}
