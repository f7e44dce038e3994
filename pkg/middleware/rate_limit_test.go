package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/contextforge/contextforge/backend/go-services/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func hit(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRateLimitMiddleware_AllowsUnderLimit(t *testing.T) {
	before := testutil.ToFloat64(metrics.RateLimitAllowed.WithLabelValues("memory"))

	r := gin.New()
	r.Use(RateLimitMiddleware(NewMemoryLimiter(10, 2)))
	r.GET("/ok", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	require.Equal(t, http.StatusOK, hit(r, "/ok").Code)
	require.Equal(t, http.StatusOK, hit(r, "/ok").Code)
	require.Equal(t, before+2, testutil.ToFloat64(metrics.RateLimitAllowed.WithLabelValues("memory")))
}

func TestRateLimitMiddleware_BlocksWhenExceeded(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitMiddleware(NewMemoryLimiter(0.5, 1)))
	r.GET("/limited", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	require.Equal(t, http.StatusOK, hit(r, "/limited").Code)
	w := hit(r, "/limited")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "1", w.Header().Get("Retry-After"))

	// a token is back after 1/rps seconds
	time.Sleep(2100 * time.Millisecond)
	require.Equal(t, http.StatusOK, hit(r, "/limited").Code)
}

func TestRateLimitMiddleware_UsesSubjectWhenPresent(t *testing.T) {
	lim := NewMemoryLimiter(0.5, 1)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(ClaimsKey, map[string]interface{}{"sub": c.Query("u")})
		c.Next()
	})
	r.Use(RateLimitMiddleware(lim))
	r.GET("/u", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	require.Equal(t, http.StatusOK, hit(r, "/u?u=alice").Code)
	require.Equal(t, http.StatusTooManyRequests, hit(r, "/u?u=alice").Code)
	// another subject from the same address has its own bucket
	require.Equal(t, http.StatusOK, hit(r, "/u?u=bob").Code)
}
