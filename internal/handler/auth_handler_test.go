package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmxfpv/admin-api/internal/models"
	appErrors "github.com/hmxfpv/admin-api/pkg/errors"
)

type authServiceMock struct {
	loginErr error
	lastReq  models.LoginRequest
}

func (m *authServiceMock) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	m.lastReq = req
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	return &models.LoginResponse{AccessToken: "token", TokenType: "Bearer"}, nil
}

func (m *authServiceMock) CurrentUser(ctx context.Context, claims *models.JWTClaims) (*models.UserInfo, error) {
	return &models.UserInfo{ID: claims.UserID, Email: claims.Email, Role: claims.Role}, nil
}

func TestAuthHandlerLogin(t *testing.T) {
	mockSvc := &authServiceMock{}
	handler := NewAuthHandler(mockSvc)

	c, w := newWorkflowContext(http.MethodPost, "/auth/login", `{"email":"ops@hmx.example","password":"secret123"}`, nil)
	c.Request.Header.Set("User-Agent", "dashboard")
	handler.Login(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ops@hmx.example", mockSvc.lastReq.Email)
	assert.Equal(t, "dashboard", mockSvc.lastReq.UserAgent)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "token", data["access_token"])
}

func TestAuthHandlerLoginInvalidCredentials(t *testing.T) {
	handler := NewAuthHandler(&authServiceMock{loginErr: appErrors.ErrInvalidCredentials})

	c, w := newWorkflowContext(http.MethodPost, "/auth/login", `{"email":"ops@hmx.example","password":"nope"}`, nil)
	handler.Login(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandlerVerify(t *testing.T) {
	handler := NewAuthHandler(&authServiceMock{})

	c, w := newWorkflowContext(http.MethodGet, "/auth/verify", "", nil)
	handler.Verify(c)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, true, data["valid"])
	assert.Equal(t, "admin-1", data["user"].(map[string]interface{})["id"])

	c, w = newWorkflowContext(http.MethodGet, "/auth/verify", "", nil)
	c.Keys = nil
	handler.Verify(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
