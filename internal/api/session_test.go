package api

import (
	"testing"
	"time"
)

func TestParseSession(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        string
		wantAccess  string
		wantRefresh string
		wantExpiry  time.Time
		wantUserID  int64
	}{
		{
			name:        "canonical shape",
			body:        `{"access_token":"at-1","refresh_token":"rt-1","expires_at":"2026-01-02T15:04:05Z","user":{"id":7,"name":"Test","email":"t@example.com"}}`,
			wantAccess:  "at-1",
			wantRefresh: "rt-1",
			wantExpiry:  time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC),
			wantUserID:  7,
		},
		{
			name:       "legacy bare token field",
			body:       `{"token":"at-1"}`,
			wantAccess: "at-1",
		},
		{
			name:        "nested under data",
			body:        `{"data":{"access_token":"at-1","refresh_token":"rt-1"}}`,
			wantAccess:  "at-1",
			wantRefresh: "rt-1",
		},
		{
			name:       "unix seconds expiry",
			body:       `{"access_token":"at-1","expires_at":1767366245}`,
			wantAccess: "at-1",
			wantExpiry: time.Unix(1767366245, 0),
		},
		{
			name:       "unix seconds expiry as string",
			body:       `{"access_token":"at-1","expires_at":"1767366245"}`,
			wantAccess: "at-1",
			wantExpiry: time.Unix(1767366245, 0),
		},
		{
			name: "empty body shape",
			body: `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			session, err := parseSession([]byte(tt.body))
			if err != nil {
				t.Fatalf("parseSession() error = %v", err)
			}
			if session.AccessToken != tt.wantAccess {
				t.Errorf("AccessToken = %q, want %q", session.AccessToken, tt.wantAccess)
			}
			if session.RefreshToken != tt.wantRefresh {
				t.Errorf("RefreshToken = %q, want %q", session.RefreshToken, tt.wantRefresh)
			}
			if !session.ExpiresAt.Equal(tt.wantExpiry) {
				t.Errorf("ExpiresAt = %v, want %v", session.ExpiresAt, tt.wantExpiry)
			}
			if tt.wantUserID != 0 {
				if session.User == nil || session.User.ID != tt.wantUserID {
					t.Errorf("User = %+v, want id %d", session.User, tt.wantUserID)
				}
			}
		})
	}
}

func TestParseUser(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"bare", `{"id":7,"name":"Test","email":"t@example.com"}`},
		{"under user", `{"user":{"id":7,"name":"Test","email":"t@example.com"}}`},
		{"under data", `{"data":{"id":7,"name":"Test","email":"t@example.com"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			user, err := parseUser([]byte(tt.body))
			if err != nil {
				t.Fatalf("parseUser() error = %v", err)
			}
			if user.ID != 7 || user.Name != "Test" {
				t.Errorf("parseUser() = %+v", user)
			}
		})
	}
}

func TestParseError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		wantAuth    bool
	}{
		{
			name:        "message field",
			status:      401,
			body:        `{"message":"Unauthenticated."}`,
			wantMessage: "Unauthenticated.",
			wantAuth:    true,
		},
		{
			name:        "error field fallback",
			status:      400,
			body:        `{"error":"bad request"}`,
			wantMessage: "bad request",
		},
		{
			name:        "unparseable body uses status text",
			status:      503,
			body:        `<html>gateway</html>`,
			wantMessage: "Service Unavailable",
		},
		{
			name:        "forbidden is auth rejection",
			status:      403,
			body:        `{"message":"Forbidden"}`,
			wantMessage: "Forbidden",
			wantAuth:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			apiErr := parseError(tt.status, []byte(tt.body))
			if apiErr.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantMessage)
			}
			if apiErr.AuthRejected() != tt.wantAuth {
				t.Errorf("AuthRejected() = %v, want %v", apiErr.AuthRejected(), tt.wantAuth)
			}
		})
	}
}

func TestFirstFieldError_StableOrder(t *testing.T) {
	t.Parallel()

	apiErr := &Error{
		Status:  422,
		Message: "The given data was invalid.",
		Fields: map[string][]string{
			"password": {"The password field is required."},
			"email":    {"The email field is required."},
		},
	}

	if got := apiErr.FirstFieldError(); got != "The email field is required." {
		t.Errorf("FirstFieldError() = %q, want the alphabetically first field's message", got)
	}
}
