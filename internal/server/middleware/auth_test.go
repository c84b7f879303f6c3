package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func newRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Identity(secret))
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})
	return r
}

func get(r *gin.Engine, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdentity_ValidToken(t *testing.T) {
	token, err := GenerateJWT(secret, "user-7", time.Hour)
	require.NoError(t, err)

	w := get(newRouter(secret), "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-7", w.Body.String())
}

func TestIdentity_Anonymous(t *testing.T) {
	w := get(newRouter(secret), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestIdentity_InvalidTokens(t *testing.T) {
	expired, err := GenerateJWT(secret, "user-7", -time.Minute)
	require.NoError(t, err)
	foreign, err := GenerateJWT("other-secret", "user-7", time.Hour)
	require.NoError(t, err)

	for name, header := range map[string]string{
		"expired":   "Bearer " + expired,
		"signature": "Bearer " + foreign,
		"scheme":    "Basic abc",
		"garbage":   "Bearer not-a-jwt",
	} {
		w := get(newRouter(secret), header)
		assert.Equal(t, http.StatusUnauthorized, w.Code, name)
		assert.Contains(t, w.Body.String(), "token invalid", name)
	}
}

func TestIdentity_DisabledWithoutSecret(t *testing.T) {
	w := get(newRouter(""), "Bearer whatever")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	_, err := GenerateJWT("", "user-7", time.Hour)
	assert.Error(t, err)
}
