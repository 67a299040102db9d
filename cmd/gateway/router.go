package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"roleplay-realm-gateway/middleware/ratelimit"
	"roleplay-realm-gateway/middleware/ratelimit/domain"
	"roleplay-realm-gateway/middleware/ratelimit/infra"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

type routerDeps struct {
	cfg      config
	logger   *zap.Logger
	upstream http.Handler
	windows  domain.WindowStore
	guard    domain.LimiterStore
	pool     domain.SlotPool
	onReject func()
	stats    domain.StatsStore
	metrics  http.Handler
	// counters é o backend memory de RATE_STATS; nil desliga o /stats
	counters *infra.MemoryStatsStore
}

func newRouter(d routerDeps) http.Handler {
	if d.logger == nil {
		d.logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog(d.logger))
	r.Use(middleware.Recoverer)
	if len(d.cfg.corsAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   d.cfg.corsAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", d.cfg.actionActorHeader, requestIDHeader},
			ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", requestIDHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if d.metrics != nil {
		r.Handle("/metrics", d.metrics)
	}
	if d.counters != nil {
		r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			_ = json.NewEncoder(w).Encode(d.counters.Snapshot())
		})
	}

	r.Group(func(r chi.Router) {
		if d.guard != nil {
			r.Use(ratelimit.Middleware(ratelimit.Options{
				Store:               d.guard,
				Stats:               d.stats,
				Logger:              d.logger,
				KeyHeader:           d.cfg.rateKeyHeader,
				TrustXForwardedFor:  d.cfg.trustXFF,
				RetryAfter:          d.cfg.retryAfter,
				AddRateLimitHeaders: d.cfg.addHeaders,
			}))
		}
		if d.pool != nil {
			r.Use(ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
				Pool:           d.pool,
				AcquireTimeout: d.cfg.concurrencyTimeout,
				OnReject:       d.onReject,
			}))
		}

		if d.windows != nil {
			catalog := ratelimit.NewCatalog(d.cfg.actionPolicies)
			opts := ratelimit.ActionOptions{
				Store:               d.windows,
				Stats:               d.stats,
				Logger:              d.logger,
				ActorHeader:         d.cfg.actionActorHeader,
				TrustActorHeader:    d.cfg.actionTrustActorHeader,
				TrustXForwardedFor:  d.cfg.trustXFF,
				AddRateLimitHeaders: d.cfg.addHeaders,
			}
			for _, rt := range ratelimit.DefaultRoutes() {
				// os outros métodos do mesmo pattern seguem direto para o upstream
				r.Handle(rt.Pattern, d.upstream)
				r.With(ratelimit.ActionMiddleware(opts, catalog.MustLookup(rt.Action))).
					Method(rt.Method, rt.Pattern, d.upstream)
			}
		}

		r.Handle("/*", d.upstream)
	})

	return r
}

// requestID garante um X-Request-ID: reaproveita o do cliente ou gera um UUID.
// O mesmo valor segue para o upstream.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func accessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("request",
				zap.String("request_id", requestIDFrom(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
