package ratelimit

import (
	"net/http"
	"time"

	"roleplay-realm-gateway/middleware/ratelimit/application"
	"roleplay-realm-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

// Options configura o guard por cliente (token bucket).
type Options struct {
	Store               domain.LimiterStore
	Stats               domain.StatsStore
	Logger              *zap.Logger
	KeyFn               KeyFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	RejectStatus        int
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
	Now                 func() time.Time
}

// bucketInfo é exposto pelo TokenBucketStore para os headers informativos.
type bucketInfo interface {
	RPS() float64
	Burst() int
}

type guard struct {
	svc  application.GuardService
	opts Options
}

func newGuard(opts Options) *guard {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &guard{
		svc:  application.GuardService{Store: opts.Store, RetryAfter: opts.RetryAfter},
		opts: opts,
	}
}

// Middleware é o guard de flood por cliente que roda antes das rotas de ação.
// Rejeição: RejectStatus (429) com JSON e Retry-After em segundos inteiros.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	g := newGuard(opts)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := domain.Key(g.opts.KeyFn(r))
			if g.opts.AddRateLimitHeaders {
				g.describe(w.Header(), key)
			}

			dec := g.svc.Decide(key)
			g.record(r, key, dec.Allowed)
			if !dec.Allowed {
				w.Header().Set("Retry-After", formatInt(retryAfterSeconds(dec.RetryAfter)))
				writeJSONError(w, g.opts.RejectStatus, "too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (g *guard) describe(h http.Header, key domain.Key) {
	h.Set("X-RateLimit-Key", string(key))
	if bi, ok := g.opts.Store.(bucketInfo); ok {
		h.Set("X-RateLimit-RPS", formatFloat(bi.RPS()))
		h.Set("X-RateLimit-Burst", formatInt(bi.Burst()))
	}
}

// record é best-effort: falha no backend de stats não bloqueia o request.
func (g *guard) record(r *http.Request, key domain.Key, allowed bool) {
	if g.opts.Stats == nil {
		return
	}
	err := g.opts.Stats.Record(r.Context(), domain.StatsEvent{
		Key:     key,
		Allowed: allowed,
		Method:  r.Method,
		Path:    r.URL.Path,
		At:      g.opts.Now(),
	})
	if err != nil {
		g.opts.Logger.Debug("rate limit stats record failed", zap.String("key", string(key)), zap.Error(err))
	}
}
