package handlers_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jmercer-dev/authgate/internal/handlers"
	"github.com/jmercer-dev/authgate/internal/models"
	"github.com/jmercer-dev/authgate/internal/services"
	pkghttp "github.com/jmercer-dev/authgate/pkg/http"
)

func loginResult() *services.LoginResult {
	return &services.LoginResult{
		Token: "signed-token-123",
		Session: &models.Session{
			ID:        "session-1",
			UserID:    "acct-1",
			TokenID:   "jti-1",
			CreatedAt: time.Now(),
			ExpiresAt: time.Now().Add(12 * time.Hour),
		},
		Account: &models.Account{ID: "acct-1", Username: "alice"},
	}
}

func TestLogin_Success(t *testing.T) {
	gateway := &handlers.MockAuthGateway{
		LoginFunc: func(ctx context.Context, username, password, ip, userAgent string) (*services.LoginResult, error) {
			assert.Equal(t, "alice", username)
			return loginResult(), nil
		},
	}

	handler := handlers.NewAuthHandler(gateway, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Username: "alice",
		Password: "s3cret-Pass",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	var resp handlers.LoginResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "signed-token-123", resp.Token)
	assert.False(t, resp.ExpiresAt.IsZero())
}

func TestLogin_UsernameNormalized(t *testing.T) {
	var gotUsername string
	gateway := &handlers.MockAuthGateway{
		LoginFunc: func(ctx context.Context, username, password, ip, userAgent string) (*services.LoginResult, error) {
			gotUsername = username
			return loginResult(), nil
		},
	}

	handler := handlers.NewAuthHandler(gateway, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Username: "  Alice ",
		Password: "s3cret-Pass",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	assert.Equal(t, "alice", gotUsername)
}

func TestLogin_InvalidBody(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockAuthGateway{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", nil)

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestLogin_MissingPassword(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockAuthGateway{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Username: "alice",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestLogin_RateLimited_SetsRetryAfter(t *testing.T) {
	gateway := &handlers.MockAuthGateway{
		LoginFunc: func(ctx context.Context, username, password, ip, userAgent string) (*services.LoginResult, error) {
			return nil, &models.RateLimitError{
				LimitType:  models.LimitTypeAccount,
				RetryAfter: 90 * time.Second,
			}
		},
	}

	handler := handlers.NewAuthHandler(gateway, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Username: "alice",
		Password: "s3cret-Pass",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 429, "rate_limit_exceeded")
	assert.Equal(t, "90", w.Header().Get("Retry-After"))
}

func TestLogin_FailureModes_AntiEnumeration(t *testing.T) {
	// Bad password, unknown user and locked account must be outwardly
	// identical
	failureModes := []error{
		models.ErrInvalidCredentials,
		models.ErrAccountLocked,
	}

	for _, failure := range failureModes {
		t.Run(failure.Error(), func(t *testing.T) {
			gateway := &handlers.MockAuthGateway{
				LoginFunc: func(ctx context.Context, username, password, ip, userAgent string) (*services.LoginResult, error) {
					return nil, failure
				},
			}

			handler := handlers.NewAuthHandler(gateway, nil)
			req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
				Username: "alice",
				Password: "s3cret-Pass",
			})

			w := httptest.NewRecorder()
			handler.Login(w, req)

			handlers.AssertErrorResponse(t, w, 401, "unauthorized")

			var resp pkghttp.ErrorResponse
			json.Unmarshal(w.Body.Bytes(), &resp)
			assert.Equal(t, "Authentication failed", resp.Message)
		})
	}
}

func TestLogin_StoreUnavailable(t *testing.T) {
	gateway := &handlers.MockAuthGateway{
		LoginFunc: func(ctx context.Context, username, password, ip, userAgent string) (*services.LoginResult, error) {
			return nil, models.ErrStoreUnavailable
		},
	}

	handler := handlers.NewAuthHandler(gateway, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Username: "alice",
		Password: "s3cret-Pass",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 503, "unavailable")
}

func TestLogout_Success(t *testing.T) {
	var gotToken string
	gateway := &handlers.MockAuthGateway{
		LogoutFunc: func(ctx context.Context, token, ip, userAgent string) error {
			gotToken = token
			return nil
		},
	}

	handler := handlers.NewAuthHandler(gateway, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer signed-token-123")

	w := httptest.NewRecorder()
	handler.Logout(w, req)

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "signed-token-123", gotToken)
}

func TestLogout_MissingBearer(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockAuthGateway{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/logout", nil)

	w := httptest.NewRecorder()
	handler.Logout(w, req)

	handlers.AssertErrorResponse(t, w, 401, "unauthorized")
}

func TestSession_ReturnsContextSession(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockAuthGateway{}, nil)
	req := handlers.NewTestRequest(t, "GET", "/auth/session", nil)
	req = handlers.WithSessionContext(req, "acct-1", "alice")

	w := httptest.NewRecorder()
	handler.Session(w, req)

	var resp handlers.SessionResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "acct-1", resp.UserID)
	assert.Equal(t, "alice", resp.Username)
}

func TestSession_WithoutMiddlewareContext(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockAuthGateway{}, nil)
	req := handlers.NewTestRequest(t, "GET", "/auth/session", nil)

	w := httptest.NewRecorder()
	handler.Session(w, req)

	handlers.AssertErrorResponse(t, w, 401, "unauthorized")
}
