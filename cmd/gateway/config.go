package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"roleplay-realm-gateway/middleware/ratelimit"
	"roleplay-realm-gateway/middleware/ratelimit/domain"
	"roleplay-realm-gateway/middleware/ratelimit/infra"

	"github.com/spf13/viper"
)

type config struct {
	listenAddr      string
	upstreamURL     string
	shutdownTimeout time.Duration

	logLevel  string
	logFormat string

	rateEnabled   bool
	rateRPS       float64
	rateBurst     int
	rateKeyHeader string
	trustXFF      bool
	retryAfter    time.Duration
	addHeaders    bool

	concurrencyMax     int
	concurrencyTimeout time.Duration

	actionEnabled     bool
	actionBackend     string
	actionActorHeader string
	// só com um proxy de auth na frente que sobrescreve o header
	actionTrustActorHeader bool
	actionSweepThreshold   int
	actionRedisPrefix      string
	actionPolicies         map[string]domain.Policy

	redisAddr     string
	redisPassword string
	redisDB       int

	rateStatsEnabled   bool
	rateStatsBackend   string
	rateStatsPrefix    string
	rateStatsTTL       time.Duration
	rateStatsBucket    string
	rateStatsTrackKeys bool

	corsAllowedOrigins []string
}

// setDefaults registra os padrões no viper. RATE_BURST fica de fora de
// propósito: o padrão depende de RATE_RPS (ver loadConfig).
func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	v.SetDefault("rate_enabled", true)
	v.SetDefault("rate_rps", 10.0)
	v.SetDefault("trust_xff", false)
	v.SetDefault("retry_after", time.Second)
	v.SetDefault("add_ratelimit_headers", false)

	v.SetDefault("concurrency_max", 100)
	v.SetDefault("concurrency_timeout", time.Duration(0))

	v.SetDefault("action_enabled", true)
	v.SetDefault("action_backend", "memory")
	v.SetDefault("action_actor_header", "X-User-Id")
	v.SetDefault("action_trust_actor_header", false)
	v.SetDefault("action_sweep_threshold", infra.DefaultSweepThreshold)
	v.SetDefault("action_redis_prefix", "ratelimit:window")

	v.SetDefault("redis_db", 0)

	v.SetDefault("rate_stats_enabled", false)
	v.SetDefault("rate_stats_backend", "memory")
	v.SetDefault("rate_stats_prefix", "ratelimit:stats")
	v.SetDefault("rate_stats_ttl", 24*time.Hour)
	v.SetDefault("rate_stats_bucket", "minute")
	v.SetDefault("rate_stats_track_keys", false)
}

// loadConfig só lê os valores; a validação fica em validate (o serve exige
// UPSTREAM_URL, o policies não).
func loadConfig(v *viper.Viper) config {
	cfg := config{
		listenAddr:      v.GetString("listen_addr"),
		upstreamURL:     strings.TrimSpace(v.GetString("upstream_url")),
		shutdownTimeout: v.GetDuration("shutdown_timeout"),

		logLevel:  v.GetString("log_level"),
		logFormat: v.GetString("log_format"),

		rateEnabled:   v.GetBool("rate_enabled"),
		rateRPS:       v.GetFloat64("rate_rps"),
		rateKeyHeader: v.GetString("rate_key_header"),
		trustXFF:      v.GetBool("trust_xff"),
		retryAfter:    v.GetDuration("retry_after"),
		addHeaders:    v.GetBool("add_ratelimit_headers"),

		concurrencyMax:     v.GetInt("concurrency_max"),
		concurrencyTimeout: v.GetDuration("concurrency_timeout"),

		actionEnabled:          v.GetBool("action_enabled"),
		actionBackend:          strings.ToLower(strings.TrimSpace(v.GetString("action_backend"))),
		actionActorHeader:      v.GetString("action_actor_header"),
		actionTrustActorHeader: v.GetBool("action_trust_actor_header"),
		actionSweepThreshold:   v.GetInt("action_sweep_threshold"),
		actionRedisPrefix:      v.GetString("action_redis_prefix"),

		redisAddr:     strings.TrimSpace(v.GetString("redis_addr")),
		redisPassword: v.GetString("redis_password"),
		redisDB:       v.GetInt("redis_db"),

		rateStatsEnabled:   v.GetBool("rate_stats_enabled"),
		rateStatsBackend:   strings.ToLower(strings.TrimSpace(v.GetString("rate_stats_backend"))),
		rateStatsPrefix:    v.GetString("rate_stats_prefix"),
		rateStatsTTL:       v.GetDuration("rate_stats_ttl"),
		rateStatsBucket:    v.GetString("rate_stats_bucket"),
		rateStatsTrackKeys: v.GetBool("rate_stats_track_keys"),

		corsAllowedOrigins: splitList(v.GetStringSlice("cors_allowed_origins")),
	}

	// O burst permite uma rajada inicial. Com RPS muito baixo (ex: 0.02) o
	// padrão 20 passaria a impressão de que o guard não funciona.
	if v.IsSet("rate_burst") {
		cfg.rateBurst = v.GetInt("rate_burst")
	} else {
		cfg.rateBurst = 20
		if cfg.rateRPS > 0 && cfg.rateRPS < 1 {
			cfg.rateBurst = 1
		}
	}

	cfg.actionPolicies = make(map[string]domain.Policy)
	names := make(map[string]struct{})
	for _, a := range ratelimit.DefaultActions() {
		names[a.Name] = struct{}{}
	}
	for name := range v.GetStringMap("actions") {
		names[strings.ToLower(name)] = struct{}{}
	}
	for name := range names {
		p := domain.Policy{
			Window:      v.GetDuration("actions." + name + ".window"),
			MaxRequests: v.GetInt("actions." + name + ".max_requests"),
		}
		if p.Window != 0 || p.MaxRequests != 0 {
			cfg.actionPolicies[name] = p
		}
	}

	return cfg
}

func (c config) validate() error {
	if c.upstreamURL == "" {
		return errors.New("UPSTREAM_URL is required")
	}
	if c.rateRPS <= 0 {
		return errors.New("RATE_RPS must be > 0")
	}
	if c.rateBurst <= 0 {
		return errors.New("RATE_BURST must be > 0")
	}
	if c.concurrencyMax < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	switch c.actionBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("ACTION_BACKEND must be memory or redis, got %q", c.actionBackend)
	}
	switch c.rateStatsBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("RATE_STATS_BACKEND must be memory or redis, got %q", c.rateStatsBackend)
	}
	if c.needsRedis() && c.redisAddr == "" {
		return errors.New("REDIS_ADDR is required when ACTION_BACKEND=redis or RATE_STATS_BACKEND=redis")
	}
	for name, p := range c.actionPolicies {
		if p.Window < 0 || p.MaxRequests < 0 {
			return fmt.Errorf("action %q: window and max_requests must be >= 0", name)
		}
	}
	return nil
}

func (c config) needsRedis() bool {
	if c.actionEnabled && c.actionBackend == "redis" {
		return true
	}
	return c.rateStatsEnabled && c.rateStatsBackend == "redis"
}

// splitList aceita tanto lista YAML quanto "a,b" vindo de env.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
