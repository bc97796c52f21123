package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipsync/internal/middleware"
	"clipsync/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthRouter(t *testing.T) (*gin.Engine, *service.JWTTokenService) {
	t.Helper()
	tokens, err := service.NewJWTTokenService("middleware-secret", 1)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", middleware.Auth(tokens), func(c *gin.Context) {
		userID, _ := middleware.UserID(c)
		deviceID, _ := middleware.DeviceID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "device_id": deviceID})
	})
	return r, tokens
}

func TestAuth_ValidToken(t *testing.T) {
	r, tokens := newAuthRouter(t)
	token, err := tokens.Issue("user-1", "device-1")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":"user-1","device_id":"device-1"}`, w.Body.String())
}

func TestAuth_Rejections(t *testing.T) {
	r, _ := newAuthRouter(t)

	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic abc",
		"no token":       "Bearer",
		"bad token":      "Bearer not-a-jwt",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), `"status":"FAILED"`)
			assert.Contains(t, w.Body.String(), `"kind":"UNAUTHORIZED"`)
		})
	}
}

func TestAuth_NilVerifierPanics(t *testing.T) {
	assert.Panics(t, func() { middleware.Auth(nil) })
}

func TestRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	r := gin.New()
	r.GET("/ping", middleware.RateLimit(client, "test:", 2, time.Minute), func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	do := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "203.0.113.7:4321"
		r.ServeHTTP(w, req)
		return w
	}

	first := do()
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusOK, do().Code)

	limited := do()
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Contains(t, limited.Body.String(), `"status":"FAILED"`)

	ttl := mr.TTL("test:ratelimit:203.0.113.7")
	assert.Greater(t, ttl, time.Duration(0))

	// 窗口过后计数重置
	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, do().Code)
}

func TestRateLimit_RedisDownPassesThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	r := gin.New()
	r.GET("/ping", middleware.RateLimit(client, "test:", 1, time.Minute), func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
