package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roleplay-realm-gateway/middleware/ratelimit"
	"roleplay-realm-gateway/middleware/ratelimit/application"
	"roleplay-realm-gateway/middleware/ratelimit/infra"

	"go.uber.org/zap"
)

func main() {
	// Exemplo: o app chama o ActionService direto nos handlers (sem proxy)
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	guard := infra.NewTokenBucketStore(5, 10, infra.WithBucketLogger(logger))
	guard.StartJanitor(ctx)

	app := newApp(application.ActionService{
		Store:  infra.NewMemoryWindowStore(),
		Logger: logger,
	}, ratelimit.NewCatalog(nil), logger)

	h := ratelimit.Middleware(ratelimit.Options{
		Store:               guard,
		Logger:              logger,
		TrustXForwardedFor:  true,
		AddRateLimitHeaders: true,
	})(app.routes())

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
