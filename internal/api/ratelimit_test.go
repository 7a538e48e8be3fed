package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Vanequal/ideafeed/pkg/config"
)

func TestClientLimiters(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := newClientLimiters(2)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.2"), "buckets are per client")

	now = now.Add(31 * time.Second)
	assert.True(t, l.allow("10.0.0.1"))

	now = now.Add(limiterIdle + time.Second)
	assert.True(t, l.allow("10.0.0.3"))
	assert.Len(t, l.clients, 1, "idle clients are dropped")
}

func TestRateLimitMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		perMinute int
		want      []int
	}{
		{"disabled", 0, []int{http.StatusOK, http.StatusOK, http.StatusOK}},
		{"limited", 2, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Router{
				cfg:    &config.Config{Server: config.ServerConfig{RateLimitPerMinute: tt.perMinute}},
				logger: zap.NewNop(),
			}
			engine := gin.New()
			engine.Use(r.rateLimit())
			engine.GET("/ping", func(c *gin.Context) { sendResponse(c, "pong") })

			for i, want := range tt.want {
				rec := httptest.NewRecorder()
				engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
				require.Equal(t, want, rec.Code, "request %d", i)
				if want == http.StatusTooManyRequests {
					var env envelope
					require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
					assert.Equal(t, CodeTooManyRequests, env.Code)
				}
			}
		})
	}
}
