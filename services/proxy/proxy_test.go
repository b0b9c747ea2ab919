package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func upstream(t *testing.T, healthy *atomic.Bool, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			if healthy.Load() {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		hits.Add(1)
		w.Header().Set("X-Upstream-Path", r.URL.Path)
		w.Header().Set("X-Upstream-Query", r.URL.RawQuery)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello from upstream"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func buildRouter(t *testing.T, yamlDoc string) (*Router, *gin.Engine) {
	t.Helper()
	targets, err := ParseTargets([]byte(yamlDoc))
	require.NoError(t, err)
	r := New(Config{HealthInterval: 7 * time.Second, HealthTimeout: 200 * time.Millisecond}, targets)
	engine := gin.New()
	r.Mount(engine)
	return r, engine
}

func targetYAML(url string) string {
	return `
targets:
  - name: trivia
    prefix: /trivia
    upstream: ` + url + `
    strip_prefix: true
    rewrites:
      - match: ^/api/v1/
        replace: /api/
`
}

func TestParseTargets(t *testing.T) {
	targets, err := ParseTargets([]byte(targetYAML("http://trivia:3000/base")))
	require.NoError(t, err)
	require.Len(t, targets, 1)

	tg := targets[0]
	assert.Equal(t, "/health", tg.HealthPath)
	assert.Equal(t, "http://trivia:3000/base/health", tg.healthURL())
	assert.Equal(t, "/api/questions", tg.rewritePath("/trivia/api/v1/questions"))
	assert.Equal(t, "/", tg.rewritePath("/trivia"))
}

func TestParseTargets_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not yaml", "targets: [:"},
		{"missing name", "targets:\n  - prefix: /a\n    upstream: http://a"},
		{"root prefix", "targets:\n  - name: a\n    prefix: /\n    upstream: http://a"},
		{"bad upstream", "targets:\n  - name: a\n    prefix: /a\n    upstream: nope"},
		{"bad regexp", "targets:\n  - name: a\n    prefix: /a\n    upstream: http://a\n    rewrites:\n      - match: '('"},
		{"duplicate name", "targets:\n  - name: a\n    prefix: /a\n    upstream: http://a\n  - name: a\n    prefix: /b\n    upstream: http://b"},
		{"duplicate prefix", "targets:\n  - name: a\n    prefix: /a\n    upstream: http://a\n  - name: b\n    prefix: /a/\n    upstream: http://b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTargets([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestRoute_NeverCheckedIsUnavailable(t *testing.T) {
	var healthy atomic.Bool
	var hits atomic.Int32
	healthy.Store(true)
	srv := upstream(t, &healthy, &hits)
	_, engine := buildRouter(t, targetYAML(srv.URL))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/trivia/api/v1/questions", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "7", w.Header().Get("Retry-After"))
	assert.Zero(t, hits.Load())

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "SERVICE_UNAVAILABLE", body["code"])
	assert.Equal(t, "trivia", body["details"].(map[string]any)["service"])
}

func TestRoute_ForwardsWhenHealthy(t *testing.T) {
	var healthy atomic.Bool
	var hits atomic.Int32
	healthy.Store(true)
	srv := upstream(t, &healthy, &hits)
	r, engine := buildRouter(t, targetYAML(srv.URL))

	r.CheckAll(context.Background())
	require.True(t, r.Cache().Healthy("trivia"))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/trivia/api/v1/questions?round=2", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello from upstream", w.Body.String())
	assert.Equal(t, "/api/questions", w.Header().Get("X-Upstream-Path"))
	assert.Equal(t, "round=2", w.Header().Get("X-Upstream-Query"))
	assert.EqualValues(t, 1, hits.Load())
}

func TestRoute_FailsFastWhenUnhealthy(t *testing.T) {
	var healthy atomic.Bool
	var hits atomic.Int32
	srv := upstream(t, &healthy, &hits)
	r, engine := buildRouter(t, targetYAML(srv.URL))

	status := r.CheckHealth(context.Background(), r.targets[0])
	assert.False(t, status.Healthy)
	assert.Contains(t, status.Error, "500")

	req := httptest.NewRequest(http.MethodGet, "/trivia/play", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	w := httptest.NewRecorder()

	start := time.Now()
	engine.ServeHTTP(w, req)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "trivia is temporarily unavailable")
	assert.Zero(t, hits.Load())
}

func TestRoute_UnreachableUpstreamIsNeverDialed(t *testing.T) {
	// 203.0.113.0/24 is reserved for documentation and never answers
	r, engine := buildRouter(t, targetYAML("http://203.0.113.7:81"))
	r.Cache().MarkUnhealthy("trivia", "health check failed", time.Now())

	w := httptest.NewRecorder()
	start := time.Now()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/trivia/answer", nil))

	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
}

func TestRoute_UpstreamFailureMarksUnhealthy(t *testing.T) {
	var healthy atomic.Bool
	var hits atomic.Int32
	healthy.Store(true)
	srv := upstream(t, &healthy, &hits)
	r, engine := buildRouter(t, targetYAML(srv.URL))
	r.CheckAll(context.Background())

	srv.Close()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/trivia/play", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "UPSTREAM_ERROR", body["code"])
	assert.False(t, r.Cache().Healthy("trivia"))

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/trivia/play", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRoute_HangingUpstreamTimesOut(t *testing.T) {
	hang := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(hang.Close)
	targets, err := ParseTargets([]byte(targetYAML(hang.URL)))
	require.NoError(t, err)
	r := New(Config{HealthInterval: 7 * time.Second, HealthTimeout: 200 * time.Millisecond, UpstreamTimeout: 50 * time.Millisecond}, targets)
	engine := gin.New()
	r.Mount(engine)
	r.CheckAll(context.Background())
	require.True(t, r.Cache().Healthy("trivia"))

	w := httptest.NewRecorder()
	start := time.Now()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/trivia/play", nil))

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.False(t, r.Cache().Healthy("trivia"))
}

func TestCheckHealth_Timeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(slow.Close)
	r, _ := buildRouter(t, targetYAML(slow.URL))

	start := time.Now()
	status := r.CheckHealth(context.Background(), r.targets[0])
	assert.False(t, status.Healthy)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRun_RefreshesAndRecovers(t *testing.T) {
	var healthy atomic.Bool
	var hits atomic.Int32
	srv := upstream(t, &healthy, &hits)
	targets, err := ParseTargets([]byte(targetYAML(srv.URL)))
	require.NoError(t, err)
	r := New(Config{HealthInterval: 10 * time.Millisecond, HealthTimeout: 100 * time.Millisecond}, targets)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, ok := r.Cache().Get("trivia")
		return ok
	}, time.Second, 5*time.Millisecond)
	assert.False(t, r.Cache().Healthy("trivia"))

	healthy.Store(true)
	require.Eventually(t, func() bool { return r.Cache().Healthy("trivia") }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestHealth_ListsUncheckedTargets(t *testing.T) {
	r, _ := buildRouter(t, targetYAML("http://trivia:3000"))
	h := r.Health()
	require.Len(t, h, 1)
	assert.Equal(t, "trivia", h[0].Name)
	assert.Equal(t, "/trivia", h[0].Prefix)
	assert.False(t, h[0].Healthy)
	assert.True(t, h[0].CheckedAt.IsZero())
}
