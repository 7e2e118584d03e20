package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"certledger/pkg/requestcontext"
)

// MockJWTValidator is a testify mock for JWTValidator
type MockJWTValidator struct {
	mock.Mock
}

func (m *MockJWTValidator) ValidateToken(tokenString string) (*JWTClaims, error) {
	args := m.Called(tokenString)
	if claims := args.Get(0); claims != nil {
		return claims.(*JWTClaims), args.Error(1)
	}
	return nil, args.Error(1)
}

type captureHandler struct {
	called  bool
	context context.Context
}

func (h *captureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.context = r.Context()
	w.WriteHeader(http.StatusOK)
}

type AuthMiddlewareSuite struct {
	suite.Suite
	validator *MockJWTValidator
	logger    *slog.Logger
	next      *captureHandler
	recorder  *countingRecorder
}

type countingRecorder struct {
	failures map[string]int
	denied   map[string]int
}

func (c *countingRecorder) IncrementAuthFailures(reason string) { c.failures[reason]++ }
func (c *countingRecorder) IncrementAccessDenied(role string)   { c.denied[role]++ }

func (s *AuthMiddlewareSuite) SetupTest() {
	s.validator = new(MockJWTValidator)
	s.logger = slog.New(slog.DiscardHandler)
	s.next = &captureHandler{}
	s.recorder = &countingRecorder{failures: map[string]int{}, denied: map[string]int{}}
}

func (s *AuthMiddlewareSuite) TearDownTest() {
	s.validator.AssertExpectations(s.T())
}

func TestAuthMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AuthMiddlewareSuite))
}

func (s *AuthMiddlewareSuite) serve(authHeader string, roles ...string) *httptest.ResponseRecorder {
	var handler http.Handler = s.next
	if len(roles) > 0 {
		handler = RequireRole(s.logger, roles, WithFailureRecorder(s.recorder))(handler)
	}
	handler = RequireAuth(s.validator, s.logger, WithFailureRecorder(s.recorder))(handler)

	req := httptest.NewRequest(http.MethodPost, "/certificates", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func (s *AuthMiddlewareSuite) TestValidTokenSetsActor() {
	s.validator.On("ValidateToken", "good").Return(&JWTClaims{Subject: "registrar", Role: "issuer", JTI: "j1"}, nil)

	w := s.serve("Bearer good")

	s.Require().True(s.next.called)
	s.Equal(http.StatusOK, w.Code)
	actor, ok := requestcontext.ActorFrom(s.next.context)
	s.Require().True(ok)
	s.Equal("registrar", actor.Subject)
	s.Equal("issuer", actor.Role)
}

func (s *AuthMiddlewareSuite) TestMissingOrMalformedHeader() {
	for _, header := range []string{"", "Basic abc", "Bearer ", "bearer good"} {
		s.next.called = false
		w := s.serve(header)
		s.False(s.next.called, "header %q", header)
		s.Equal(http.StatusUnauthorized, w.Code)
		s.JSONEq(`{"error":"unauthorized","error_description":"Missing or invalid Authorization header"}`, w.Body.String())
	}
	s.Equal(4, s.recorder.failures["missing_token"])
}

func (s *AuthMiddlewareSuite) TestInvalidToken() {
	s.validator.On("ValidateToken", "bad").Return(nil, errors.New("token expired"))

	w := s.serve("Bearer bad")

	s.False(s.next.called)
	s.Equal(http.StatusUnauthorized, w.Code)
	s.JSONEq(`{"error":"unauthorized","error_description":"Invalid or expired token"}`, w.Body.String())
	s.Equal(1, s.recorder.failures["invalid_token"])
}

func (s *AuthMiddlewareSuite) TestTokenWithoutSubject() {
	s.validator.On("ValidateToken", "anon").Return(&JWTClaims{Role: "admin"}, nil)

	w := s.serve("Bearer anon")

	s.False(s.next.called)
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *AuthMiddlewareSuite) TestRequireRole() {
	s.validator.On("ValidateToken", "issuer-token").Return(&JWTClaims{Subject: "registrar", Role: "issuer"}, nil)
	s.validator.On("ValidateToken", "admin-token").Return(&JWTClaims{Subject: "ops", Role: "admin"}, nil)

	w := s.serve("Bearer issuer-token", "admin")
	s.False(s.next.called)
	s.Equal(http.StatusForbidden, w.Code)
	s.Equal(1, s.recorder.denied["issuer"])

	w = s.serve("Bearer admin-token", "admin")
	s.True(s.next.called)
	s.Equal(http.StatusOK, w.Code)
}

func TestRequireRoleWithoutAuth(t *testing.T) {
	next := &captureHandler{}
	handler := RequireRole(slog.New(slog.DiscardHandler), []string{"admin"})(next)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/resync", nil))

	require.False(t, next.called)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
