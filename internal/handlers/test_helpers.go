package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jmercer-dev/authgate/internal/auth"
	"github.com/jmercer-dev/authgate/internal/models"
	"github.com/jmercer-dev/authgate/internal/services"
	pkghttp "github.com/jmercer-dev/authgate/pkg/http"
)

// MockAuthGateway implements AuthGatewayInterface with configurable behavior
type MockAuthGateway struct {
	LoginFunc  func(ctx context.Context, username, password, ip, userAgent string) (*services.LoginResult, error)
	LogoutFunc func(ctx context.Context, token, ip, userAgent string) error
}

func (m *MockAuthGateway) Login(ctx context.Context, username, password, ip, userAgent string) (*services.LoginResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, username, password, ip, userAgent)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAuthGateway) Logout(ctx context.Context, token, ip, userAgent string) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, token, ip, userAgent)
	}
	return nil
}

// MockAccountAdmin implements AccountAdmin with configurable behavior
type MockAccountAdmin struct {
	UnlockFunc  func(ctx context.Context, userID string) (*models.Account, error)
	SuspendFunc func(ctx context.Context, userID string) (*models.Account, error)
}

func (m *MockAccountAdmin) Unlock(ctx context.Context, userID string) (*models.Account, error) {
	if m.UnlockFunc != nil {
		return m.UnlockFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountAdmin) Suspend(ctx context.Context, userID string) (*models.Account, error) {
	if m.SuspendFunc != nil {
		return m.SuspendFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

// MockSessionRevoker implements SessionRevoker with configurable behavior
type MockSessionRevoker struct {
	RevokeAllForUserFunc func(ctx context.Context, userID string) (int64, error)
}

func (m *MockSessionRevoker) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	if m.RevokeAllForUserFunc != nil {
		return m.RevokeAllForUserFunc(ctx, userID)
	}
	return 0, nil
}

// MockSuspicionReader implements SuspicionReader with fixed answers
type MockSuspicionReader struct {
	SuspiciousIPs   map[string]bool
	SuspiciousUsers map[string]bool
}

func (m *MockSuspicionReader) IsSuspiciousIP(ip string) bool {
	return m.SuspiciousIPs[ip]
}

func (m *MockSuspicionReader) IsSuspiciousUser(username string) bool {
	return m.SuspiciousUsers[username]
}

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithSessionContext adds resolved claims and a session record to the
// request context, as the auth middleware would
func WithSessionContext(req *http.Request, userID, username string) *http.Request {
	claims := &models.SessionClaims{
		UserID:   userID,
		Username: username,
	}
	session := &models.Session{
		ID:        "session-" + userID,
		UserID:    userID,
		TokenID:   "jti-" + userID,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	ctx := context.WithValue(req.Context(), auth.ClaimsContextKey, claims)
	ctx = context.WithValue(ctx, auth.SessionContextKey, session)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	t.Helper()

	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	if target != nil {
		if err := json.Unmarshal(w.Body.Bytes(), target); err != nil {
			t.Fatalf("failed to decode response body: %v", err)
		}
	}
}

// AssertErrorResponse checks status code and machine-readable error code
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	t.Helper()

	var resp pkghttp.ErrorResponse
	AssertJSONResponse(t, w, expectedStatus, &resp)
	assert.Equal(t, expectedError, resp.Error)
}
