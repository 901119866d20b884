package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	config "github.com/NordCoder/Crabiner/internal/config/auth-api"
	"github.com/NordCoder/Crabiner/internal/obs"
	"go.uber.org/zap"
)

func main() {
	cfgPath := flag.String("config", "config/auth-api.yaml", "path to YAML config")
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	root, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*cfgPath, *envFile)
	if err != nil {
		log.Fatal(err)
	}

	l, err := initLogger(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()
	l.Info("starting auth-api", zap.String("backend", cfg.Auth.Backend))

	otelShutdown, err := initOTel(root, cfg)
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	db, err := initDB(root, cfg)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	if db != nil {
		defer db.Close()
	}

	rdb, err := initRedis(root, cfg)
	if err != nil {
		l.Fatal("redis connect", zap.Error(err))
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	prod := initProducer(root, cfg, l)
	if prod != nil {
		defer func() { _ = prod.Close() }()
	}

	a, err := wire(cfg, db, rdb, prod, l)
	if err != nil {
		l.Fatal("wire", zap.Error(err))
	}

	checks := map[string]obs.HealthCheck{}
	if db != nil {
		checks["postgres"] = db.Ping
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	workCtx, cancelWork := context.WithCancel(root)
	var wg sync.WaitGroup
	if a.outbox != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.outbox.Run(workCtx)
		}()
	}
	if a.sweeper != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = a.sweeper.Run(workCtx)
		}()
	}

	srv := buildHTTPServer(cfg, a, checks, l)
	errCh := make(chan error, 1)
	go func() { errCh <- serveHTTP(srv, l) }()

	select {
	case <-root.Done():
		l.Info("shutdown signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("http serve", zap.Error(err))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	_ = srv.Shutdown(shCtx)
	cancelWork()
	wg.Wait()
	l.Info("bye")
}
