package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-bundle-host/pkg/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestGenerateAdminToken(t *testing.T) {
	a, err := GenerateAdminToken()
	require.NoError(t, err)
	b, err := GenerateAdminToken()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func adminRouter(rl *AttemptLimiter) *gin.Engine {
	router := gin.New()
	router.Use(AdminAuthMiddleware("secret", rl, zap.NewNop()))
	router.GET("/admin/modules", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return router
}

func request(router http.Handler, auth string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/modules", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	router.ServeHTTP(w, req)
	return w.Code
}

func TestAdminAuthMiddleware(t *testing.T) {
	router := adminRouter(nil)

	tests := []struct {
		name string
		auth string
		want int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic secret", http.StatusUnauthorized},
		{"no token", "Bearer ", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer secret", http.StatusOK},
		{"lowercase scheme", "bearer secret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, request(router, tt.auth))
		})
	}
}

func TestAdminAuthMiddleware_LocksOutAfterFailures(t *testing.T) {
	rl := NewAttemptLimiter(config.AttemptLimitConfig{
		Enabled:        true,
		MaxAttempts:    2,
		WindowSeconds:  60,
		LockoutSeconds: 300,
	}, zap.NewNop())
	router := adminRouter(rl)

	assert.Equal(t, http.StatusUnauthorized, request(router, "Bearer bad"))
	assert.Equal(t, http.StatusUnauthorized, request(router, "Bearer bad"))
	assert.Equal(t, http.StatusTooManyRequests, request(router, "Bearer secret"))
}

func TestAttemptLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewAttemptLimiter(config.AttemptLimitConfig{
		Enabled:        true,
		MaxAttempts:    4,
		WindowSeconds:  60,
		LockoutSeconds: 30,
	}, zap.NewNop())
	rl.now = func() time.Time { return now }

	// Burst is half the attempts.
	rl.RecordFailure("10.0.0.1")
	rl.RecordFailure("10.0.0.1")
	assert.True(t, rl.Allow("10.0.0.1"))

	rl.RecordFailure("10.0.0.1")
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))

	now = now.Add(31 * time.Second)
	assert.True(t, rl.Allow("10.0.0.1"))
}

func TestAttemptLimiter_Disabled(t *testing.T) {
	rl := NewAttemptLimiter(config.AttemptLimitConfig{Enabled: false, MaxAttempts: 1}, zap.NewNop())
	for i := 0; i < 10; i++ {
		rl.RecordFailure("10.0.0.1")
	}
	assert.True(t, rl.Allow("10.0.0.1"))
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	router := gin.New()
	router.Use(m.Handler("web"))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	m.ModulesDeployed.Set(2)

	families, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[f.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[f.GetName()] += metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				values[f.GetName()] += float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}

	assert.Equal(t, float64(3), values["bundle_host_requests_total"])
	assert.Equal(t, float64(3), values["bundle_host_request_duration_seconds"])
	assert.Equal(t, float64(0), values["bundle_host_requests_in_flight"])
	assert.Equal(t, float64(2), values["bundle_host_modules_deployed"])
}

func TestLogger(t *testing.T) {
	router := gin.New()
	router.Use(Logger(zap.NewNop()))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping?x=1", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
