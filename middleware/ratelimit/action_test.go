package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roleplay-realm-gateway/middleware/ratelimit/domain"
	"roleplay-realm-gateway/middleware/ratelimit/infra"
)

type failingWindowStore struct{}

func (failingWindowStore) Check(context.Context, domain.Key, domain.Policy) (domain.Result, error) {
	return domain.Result{}, errors.New("redis: connection refused")
}

func actionRequest(method, path, user string) *http.Request {
	r := httptest.NewRequest(method, "http://realm"+path, nil)
	r.RemoteAddr = "10.0.0.1:1234"
	if user != "" {
		r.Header.Set("X-User-Id", user)
	}
	return r
}

func countingHandler(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.WriteHeader(http.StatusCreated)
	})
}

func TestActionMiddleware_RejectsAfterPolicyWithJSON(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := infra.NewMemoryWindowStore(infra.WithClock(clock))
	post := NewCatalog(nil).MustLookup(ActionPost)

	calls := 0
	h := ActionMiddleware(ActionOptions{Store: store, Now: clock}, post)(countingHandler(&calls))

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, actionRequest(http.MethodPost, "/api/posts", "user-1"))
		require.Equal(t, http.StatusCreated, w.Code, "request %d", i+1)
	}

	now = now.Add(100 * time.Millisecond)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, actionRequest(http.MethodPost, "/api/posts", "user-1"))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, 5, calls)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Too many requests. Please wait before posting again.", body["error"])
}

func TestActionMiddleware_HeadersReportQuota(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := infra.NewMemoryWindowStore(infra.WithClock(clock))
	server := NewCatalog(nil).MustLookup(ActionServer)

	calls := 0
	h := ActionMiddleware(ActionOptions{Store: store, Now: clock, AddRateLimitHeaders: true}, server)(countingHandler(&calls))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, actionRequest(http.MethodPost, "/api/servers", "user-2"))

	assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, strconv.FormatInt(now.Add(time.Hour).Unix(), 10), w.Header().Get("X-RateLimit-Reset"))
}

func TestActionMiddleware_ActionsAndActorsAreIndependent(t *testing.T) {
	store := infra.NewMemoryWindowStore()
	cat := NewCatalog(map[string]domain.Policy{
		ActionPost:    {MaxRequests: 1},
		ActionComment: {MaxRequests: 1},
	})

	calls := 0
	next := countingHandler(&calls)
	opts := ActionOptions{Store: store, TrustActorHeader: true}
	postH := ActionMiddleware(opts, cat.MustLookup(ActionPost))(next)
	commentH := ActionMiddleware(opts, cat.MustLookup(ActionComment))(next)

	serve := func(h http.Handler, path, user string) int {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, actionRequest(http.MethodPost, path, user))
		return w.Code
	}

	assert.Equal(t, http.StatusCreated, serve(postH, "/api/posts", "user-1"))
	assert.Equal(t, http.StatusTooManyRequests, serve(postH, "/api/posts", "user-1"))
	assert.Equal(t, http.StatusCreated, serve(postH, "/api/posts", "user-2"))
	assert.Equal(t, http.StatusCreated, serve(commentH, "/api/posts/p1/comments", "user-1"))
	assert.Equal(t, 3, calls)
}

func TestActionMiddleware_IgnoresActorHeaderUnlessTrusted(t *testing.T) {
	store := infra.NewMemoryWindowStore()
	cat := NewCatalog(map[string]domain.Policy{ActionServer: {MaxRequests: 2}})

	calls := 0
	h := ActionMiddleware(ActionOptions{Store: store}, cat.MustLookup(ActionServer))(countingHandler(&calls))

	codes := make([]int, 0, 3)
	for _, user := range []string{"forged-1", "forged-2", "forged-3"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, actionRequest(http.MethodPost, "/api/servers", user))
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests}, codes)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, store.Len())
}

func TestActionMiddleware_FallsBackToClientIP(t *testing.T) {
	store := infra.NewMemoryWindowStore()
	stats := infra.NewMemoryStatsStore(infra.WithTrackKeys(true))
	ticket := NewCatalog(nil).MustLookup(ActionTicket)

	calls := 0
	h := ActionMiddleware(ActionOptions{Store: store, Stats: stats}, ticket)(countingHandler(&calls))

	h.ServeHTTP(httptest.NewRecorder(), actionRequest(http.MethodPost, "/api/support/tickets", ""))

	assert.Contains(t, stats.ByKey(), "ticket:10.0.0.1")
	assert.Equal(t, infra.Counters{Allowed: 1}, stats.ByAction()[ActionTicket])
	assert.Equal(t, infra.Counters{Allowed: 1}, stats.ByRoute()["POST /api/support/tickets"])
}

func TestActionMiddleware_FailsOpenWhenStoreErrors(t *testing.T) {
	calls := 0
	h := ActionMiddleware(ActionOptions{Store: failingWindowStore{}}, NewCatalog(nil).MustLookup(ActionEvent))(countingHandler(&calls))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, actionRequest(http.MethodPost, "/api/events", "user-1"))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, calls)
}

func TestActionMiddleware_InvalidPolicyRejectsEverything(t *testing.T) {
	store := infra.NewMemoryWindowStore()
	broken := domain.Action{Name: "broken", Policy: domain.Policy{Window: 0, MaxRequests: 0}}

	calls := 0
	h := ActionMiddleware(ActionOptions{Store: store}, broken)(countingHandler(&calls))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, actionRequest(http.MethodPost, "/x", "user-1"))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Zero(t, calls)
}

func TestRetryAfterSeconds_RoundsUp(t *testing.T) {
	assert.Equal(t, 1, retryAfterSeconds(0))
	assert.Equal(t, 1, retryAfterSeconds(200*time.Millisecond))
	assert.Equal(t, 3, retryAfterSeconds(2500*time.Millisecond))
	assert.Equal(t, 60, retryAfterSeconds(time.Minute))
}
