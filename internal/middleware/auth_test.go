package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifier struct {
	userID string
	err    error
	got    string
}

func (s *stubVerifier) VerifyToken(token string) (string, error) {
	s.got = token
	return s.userID, s.err
}

func setupRouter(verifier TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(verifier), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(UserIDKey))
	})
	return r
}

func TestAuthMiddlewareSetsUserID(t *testing.T) {
	verifier := &stubVerifier{userID: "user-1"}
	router := setupRouter(verifier)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", rec.Body.String())
	assert.Equal(t, "abc", verifier.got)
}

func TestAuthMiddlewareRejects(t *testing.T) {
	cases := []struct {
		name   string
		header string
		err    error
	}{
		{name: "missing header"},
		{name: "wrong scheme", header: "Basic abc"},
		{name: "invalid token", header: "Bearer abc", err: errors.New("bad")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := setupRouter(&stubVerifier{err: tc.err})

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}
