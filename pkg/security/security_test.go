package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(middlewares ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(middlewares...)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func request(r *gin.Engine, method, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/ping", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORS(t *testing.T) {
	r := newRouter(CORS([]string{"https://app.educube.io"}))

	w := request(r, http.MethodGet, "https://app.educube.io")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.educube.io", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, corsAllowedMethods, w.Header().Get("Access-Control-Allow-Methods"))
	assert.NotContains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
	assert.Contains(t, w.Header().Values("Vary"), "Origin")

	w = request(r, http.MethodGet, "https://evil.example")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Methods"))

	w = request(r, http.MethodOptions, "https://app.educube.io")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, corsAllowedHeaders, w.Header().Get("Access-Control-Allow-Headers"))
}

func TestSecureHeaders(t *testing.T) {
	w := request(newRouter(Secure()), http.MethodGet, "")
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"), "plain http")
}

func TestRateLimiter(t *testing.T) {
	r := newRouter(RateLimiter(2, time.Hour))

	assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "").Code)
	assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "").Code)

	w := request(r, http.MethodGet, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"code":429,"message":"too many requests"}`, w.Body.String())
}

func TestRateLimiterDisabled(t *testing.T) {
	r := newRouter(RateLimiter(0, time.Minute))
	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "").Code)
	}
}
