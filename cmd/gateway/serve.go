package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"roleplay-realm-gateway/middleware/ratelimit/domain"
	"roleplay-realm-gateway/middleware/ratelimit/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(v)
			if err := cfg.validate(); err != nil {
				return fmt.Errorf("config error: %w", err)
			}

			logger, err := newLogger(cfg.logLevel, cfg.logFormat)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return run(ctx, cfg, logger)
		},
	}
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		return fmt.Errorf("invalid UPSTREAM_URL: %w", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("proxy error", zap.String("path", r.URL.Path), zap.Error(err))
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"bad gateway"}`))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var rdb *redis.Client
	if cfg.needsRedis() {
		rdb = redis.NewClient(&redis.Options{
			Addr:         cfg.redisAddr,
			Password:     cfg.redisPassword,
			DB:           cfg.redisDB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis ping %s: %w", cfg.redisAddr, err)
		}
	}

	var windows domain.WindowStore
	if cfg.actionEnabled {
		switch cfg.actionBackend {
		case "redis":
			windows = infra.NewRedisWindowStore(rdb, infra.WithWindowPrefix(cfg.actionRedisPrefix))
		default:
			mem := infra.NewMemoryWindowStore(infra.WithSweepThreshold(cfg.actionSweepThreshold))
			reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "ratelimit_window_keys",
				Help: "Distinct keys tracked by the in-memory fixed window store",
			}, func() float64 { return float64(mem.Len()) }))
			windows = mem
		}
	}

	stats := domain.MultiStats{infra.NewPrometheusStatsStore(reg)}
	var memStats *infra.MemoryStatsStore
	if cfg.rateStatsEnabled {
		switch cfg.rateStatsBackend {
		case "redis":
			stats = append(stats, infra.NewRedisStatsStore(
				rdb,
				infra.WithStatsPrefix(cfg.rateStatsPrefix),
				infra.WithStatsTTL(cfg.rateStatsTTL),
				infra.WithStatsBucket(cfg.rateStatsBucket),
				infra.WithStatsTrackKeys(cfg.rateStatsTrackKeys),
			))
		default:
			memStats = infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.rateStatsTrackKeys))
			stats = append(stats, memStats)
		}
	}

	var guard *infra.TokenBucketStore
	if cfg.rateEnabled {
		guard = infra.NewTokenBucketStore(cfg.rateRPS, cfg.rateBurst, infra.WithBucketLogger(logger))
		guard.StartJanitor(ctx)
	}

	var (
		pool     *infra.ChanPool
		onReject func()
	)
	if cfg.concurrencyMax > 0 {
		pool = infra.NewChanPool(cfg.concurrencyMax)
		rejected := prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_concurrency_rejected_total",
			Help: "Requests rejected because no concurrency slot was available",
		})
		reg.MustRegister(
			rejected,
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "gateway_inflight_requests",
				Help: "Requests currently holding a concurrency slot",
			}, func() float64 { return float64(pool.InUse()) }),
		)
		onReject = rejected.Inc
	}

	deps := routerDeps{
		cfg:      cfg,
		logger:   logger,
		upstream: proxy,
		windows:  windows,
		stats:    stats,
		metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		onReject: onReject,
		counters: memStats,
	}
	// interfaces nil de verdade: ponteiro nil dentro da interface quebraria os checks
	if guard != nil {
		deps.guard = guard
	}
	if pool != nil {
		deps.pool = pool
	}

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening",
		zap.String("addr", cfg.listenAddr),
		zap.String("upstream", target.String()),
	)
	logger.Info("ip guard",
		zap.Bool("enabled", cfg.rateEnabled),
		zap.Float64("rps", cfg.rateRPS),
		zap.Int("burst", cfg.rateBurst),
		zap.String("key_header", cfg.rateKeyHeader),
		zap.Bool("trust_xff", cfg.trustXFF),
	)
	logger.Info("action limits",
		zap.Bool("enabled", cfg.actionEnabled),
		zap.String("backend", cfg.actionBackend),
		zap.String("actor_header", cfg.actionActorHeader),
		zap.Bool("trust_actor_header", cfg.actionTrustActorHeader),
		zap.Int("sweep_threshold", cfg.actionSweepThreshold),
	)
	logger.Info("rate stats",
		zap.Bool("enabled", cfg.rateStatsEnabled),
		zap.String("backend", cfg.rateStatsBackend),
		zap.String("bucket", cfg.rateStatsBucket),
		zap.Duration("ttl", cfg.rateStatsTTL),
	)
	logger.Info("concurrency", zap.Int("max", cfg.concurrencyMax), zap.Duration("acquire_timeout", cfg.concurrencyTimeout))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
