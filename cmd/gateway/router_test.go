package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roleplay-realm-gateway/middleware/ratelimit/domain"
	"roleplay-realm-gateway/middleware/ratelimit/infra"
)

type upstreamRecorder struct {
	calls atomic.Int32
}

func (u *upstreamRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.calls.Add(1)
	if r.Method == http.MethodGet {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func testConfig() config {
	return config{
		actionActorHeader:      "X-User-Id",
		actionTrustActorHeader: true,
		retryAfter:             time.Second,
		actionPolicies:         map[string]domain.Policy{},
	}
}

func do(h http.Handler, method, path, user string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, "http://gateway"+path, strings.NewReader(`{}`))
	r.RemoteAddr = "10.0.0.1:4321"
	if user != "" {
		r.Header.Set("X-User-Id", user)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestRouter_ThrottlesPostCreationPerUser(t *testing.T) {
	up := &upstreamRecorder{}
	h := newRouter(routerDeps{cfg: testConfig(), upstream: up, windows: infra.NewMemoryWindowStore()})

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusCreated, do(h, http.MethodPost, "/api/posts", "user-1").Code)
	}

	w := do(h, http.MethodPost, "/api/posts", "user-1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "Please wait before posting again")
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, int32(5), up.calls.Load())

	// leitura não consome cota e outro usuário segue livre
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/posts", "user-1").Code)
	assert.Equal(t, http.StatusCreated, do(h, http.MethodPost, "/api/posts", "user-2").Code)
}

func TestRouter_UntrustedActorHeaderFallsBackToClientIP(t *testing.T) {
	up := &upstreamRecorder{}
	cfg := testConfig()
	cfg.actionTrustActorHeader = false
	windows := infra.NewMemoryWindowStore()
	h := newRouter(routerDeps{cfg: cfg, upstream: up, windows: windows})

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusCreated, do(h, http.MethodPost, "/api/posts", fmt.Sprintf("rotating-%d", i)).Code)
	}

	w := do(h, http.MethodPost, "/api/posts", "rotating-5")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, int32(5), up.calls.Load())
	assert.Equal(t, 1, windows.Len())
}

func TestRouter_CommentRouteUsesItsOwnWindow(t *testing.T) {
	up := &upstreamRecorder{}
	cfg := testConfig()
	cfg.actionPolicies = map[string]domain.Policy{"comment": {MaxRequests: 1}}
	h := newRouter(routerDeps{cfg: cfg, upstream: up, windows: infra.NewMemoryWindowStore()})

	assert.Equal(t, http.StatusCreated, do(h, http.MethodPost, "/api/posts/p1/comments", "user-1").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(h, http.MethodPost, "/api/posts/p2/comments", "user-1").Code)
	assert.Equal(t, http.StatusCreated, do(h, http.MethodPost, "/api/posts", "user-1").Code)
}

func TestRouter_ProfileUpdateIsThrottledOnPut(t *testing.T) {
	up := &upstreamRecorder{}
	cfg := testConfig()
	cfg.actionPolicies = map[string]domain.Policy{"profile": {MaxRequests: 1}}
	h := newRouter(routerDeps{cfg: cfg, upstream: up, windows: infra.NewMemoryWindowStore()})

	assert.Equal(t, http.StatusCreated, do(h, http.MethodPut, "/api/profile", "user-1").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(h, http.MethodPut, "/api/profile", "user-1").Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/profile", "user-1").Code)
}

func TestRouter_UnthrottledPathsGoUpstream(t *testing.T) {
	up := &upstreamRecorder{}
	h := newRouter(routerDeps{cfg: testConfig(), upstream: up, windows: infra.NewMemoryWindowStore()})

	for i := 0; i < 20; i++ {
		require.Equal(t, http.StatusCreated, do(h, http.MethodPost, "/api/posts/p1/like", "user-1").Code)
	}
	assert.Equal(t, int32(20), up.calls.Load())
}

func TestRouter_NoWindowStoreDisablesActionLimits(t *testing.T) {
	up := &upstreamRecorder{}
	h := newRouter(routerDeps{cfg: testConfig(), upstream: up})

	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusCreated, do(h, http.MethodPost, "/api/servers", "user-1").Code)
	}
}

func TestRouter_IPGuardRunsBeforeActions(t *testing.T) {
	up := &upstreamRecorder{}
	h := newRouter(routerDeps{
		cfg:      testConfig(),
		upstream: up,
		windows:  infra.NewMemoryWindowStore(),
		guard:    infra.NewTokenBucketStore(0.02, 1),
	})

	assert.Equal(t, http.StatusCreated, do(h, http.MethodPost, "/api/events", "user-1").Code)
	w := do(h, http.MethodPost, "/api/events", "user-2")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "too many requests")
	assert.Equal(t, int32(1), up.calls.Load())
}

func TestRouter_HealthRequestIDAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	prom := infra.NewPrometheusStatsStore(reg)
	up := &upstreamRecorder{}
	h := newRouter(routerDeps{
		cfg:      testConfig(),
		upstream: up,
		windows:  infra.NewMemoryWindowStore(),
		stats:    domain.MultiStats{prom},
		metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	w := do(h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	r := httptest.NewRequest(http.MethodGet, "http://gateway/healthz", nil)
	r.Header.Set(requestIDHeader, "req-123")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, "req-123", w.Header().Get(requestIDHeader))

	do(h, http.MethodPost, "/api/support/tickets", "user-1")
	w = do(h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `ratelimit_decisions_total{action="ticket",result="allowed"} 1`)
	assert.Equal(t, int32(1), up.calls.Load())
}

func TestRouter_StatsServesMemoryCounters(t *testing.T) {
	counters := infra.NewMemoryStatsStore()
	cfg := testConfig()
	cfg.actionPolicies = map[string]domain.Policy{"ticket": {MaxRequests: 1}}
	h := newRouter(routerDeps{
		cfg:      cfg,
		upstream: &upstreamRecorder{},
		windows:  infra.NewMemoryWindowStore(),
		stats:    domain.MultiStats{counters},
		counters: counters,
	})

	do(h, http.MethodPost, "/api/support/tickets", "user-1")
	do(h, http.MethodPost, "/api/support/tickets", "user-1")

	w := do(h, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var snap infra.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, infra.Counters{Allowed: 1, Denied: 1}, snap.Total)
	assert.Equal(t, infra.Counters{Allowed: 1, Denied: 1}, snap.ByAction["ticket"])
	assert.Equal(t, infra.Counters{Allowed: 1, Denied: 1}, snap.ByRoute["POST /api/support/tickets"])
	assert.Nil(t, snap.ByKey)
}

func TestRouter_CORSPreflight(t *testing.T) {
	cfg := testConfig()
	cfg.corsAllowedOrigins = []string{"https://realm.example"}
	h := newRouter(routerDeps{cfg: cfg, upstream: &upstreamRecorder{}})

	r := httptest.NewRequest(http.MethodOptions, "http://gateway/api/posts", nil)
	r.Header.Set("Origin", "https://realm.example")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, "https://realm.example", w.Header().Get("Access-Control-Allow-Origin"))
}
