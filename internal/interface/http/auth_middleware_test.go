package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/ai-helloworld/internal/domain/auth"
	apperrors "github.com/yanqian/ai-helloworld/pkg/errors"
)

type fakeAuthService struct {
	validateFn func(ctx context.Context, token string) (auth.Claims, error)
}

func (s *fakeAuthService) Register(ctx context.Context, req auth.RegisterRequest) (auth.UserView, error) {
	return auth.UserView{}, nil
}

func (s *fakeAuthService) Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResponse, error) {
	return auth.LoginResponse{}, nil
}

func (s *fakeAuthService) ValidateToken(ctx context.Context, token string) (auth.Claims, error) {
	if s.validateFn != nil {
		return s.validateFn(ctx, token)
	}
	return auth.Claims{}, nil
}

func (s *fakeAuthService) Refresh(ctx context.Context, refreshToken string) (auth.LoginResponse, error) {
	return auth.LoginResponse{}, nil
}

func (s *fakeAuthService) Profile(ctx context.Context, userID int64) (auth.UserView, error) {
	return auth.UserView{}, nil
}

var _ auth.Service = (*fakeAuthService)(nil)

func newAuthTestRouter(svc auth.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(errorHandlingMiddleware(newTestLogger()))
	r.GET("/protected", authMiddleware(svc), func(c *gin.Context) {
		claims, _ := getClaims(c)
		c.JSON(http.StatusOK, gin.H{"user_id": claims.UserID})
	})
	return r
}

func TestAuthMiddleware_MissingHeaderReturns401(t *testing.T) {
	r := newAuthTestRouter(&fakeAuthService{})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "unauthorized")
}

func TestAuthMiddleware_MalformedHeaderReturns401(t *testing.T) {
	r := newAuthTestRouter(&fakeAuthService{})
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Basic abc123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_InvalidTokenReturns401(t *testing.T) {
	svc := &fakeAuthService{validateFn: func(ctx context.Context, token string) (auth.Claims, error) {
		return auth.Claims{}, apperrors.Wrap("invalid_token", "token expired", nil)
	}}
	r := newAuthTestRouter(svc)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_token")
}

func TestAuthMiddleware_UnexpectedValidationErrorReturns500(t *testing.T) {
	svc := &fakeAuthService{validateFn: func(ctx context.Context, token string) (auth.Claims, error) {
		return auth.Claims{}, apperrors.Wrap("db_down", "database unreachable", nil)
	}}
	r := newAuthTestRouter(svc)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "auth_failed")
}

func TestAuthMiddleware_ValidTokenSetsClaimsAndCallsNext(t *testing.T) {
	svc := &fakeAuthService{validateFn: func(ctx context.Context, token string) (auth.Claims, error) {
		require.Equal(t, "good-token", token)
		return auth.Claims{UserID: 42, Email: "user@example.com", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}}
	r := newAuthTestRouter(svc)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "42")
}
