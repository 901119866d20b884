package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	config "github.com/NordCoder/Crabiner/internal/config/auth-api"
	"github.com/NordCoder/Crabiner/internal/obs"
	"github.com/NordCoder/Crabiner/internal/obs/retry"
	"github.com/NordCoder/Crabiner/internal/outbox"
	"github.com/NordCoder/Crabiner/internal/repository/kafka"
	pg "github.com/NordCoder/Crabiner/internal/repository/postgres"
	"github.com/NordCoder/Crabiner/internal/services/auth-api/refresh"
	"github.com/NordCoder/Crabiner/internal/services/sweeper"

	"go.uber.org/zap"
)

func now() time.Time { return time.Now().UTC() }

// auth-relay drains the audit outbox into Kafka and sweeps stale refresh
// records, for deployments that run auth-api with kafka.embedded_relay off.
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
	if !cfg.Kafka.Enable {
		log.Fatal("auth-relay needs kafka.enable")
	}
	cfg.App.Name = "auth-relay"
	cfg.OTEL.ServiceName = "crabiner-auth-relay"

	// logger
	l, err := obs.NewLogger(cfg.AsLoggerConfig())
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()

	// otel
	otelCloser, err := obs.SetupOTel(root, cfg.AsOTELConfig())
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	// db
	db, err := pg.NewDB(root, cfg.DB)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// metrics
	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, map[string]obs.HealthCheck{"postgres": db.Ping}, l)

	// kafka
	prod := kafka.BootstrapProducer(root, cfg.Kafka.Brokers, kafka.TopicSpec{
		Name:              cfg.Kafka.Topic,
		NumPartitions:     cfg.Kafka.Partitions,
		ReplicationFactor: 1,
		MaxWait:           5 * time.Second,
	}, l)
	defer func() { _ = prod.Close() }()

	// wiring
	dispatch := outbox.MakeGlobalOutboxHandler(kafka.NewAuthEventsKafka(prod), retry.RelayPolicy(l, "auth_event"))
	outboxRepo := pg.NewOutboxRepo(db)
	relay := outbox.NewOutboxRunner(l, outboxRepo, dispatch, cfg.Outbox)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		relay.Run(root)
	}()

	if cfg.Sweeper.Enable {
		targets := []sweeper.Target{{
			Name:    "outbox",
			Sweeper: outbox.NewPurger(outboxRepo, cfg.Sweeper.OutboxRetention, now),
		}}
		if cfg.Auth.Backend == config.BackendPostgres {
			store := refresh.NewStore(pg.NewRefreshTokenRepo(db, pg.NewTransactor(db, l)), refresh.Config{
				TTL:              cfg.Auth.RefreshTTL,
				ExpiredRetention: cfg.Sweeper.ExpiredRetention,
				RevokedRetention: cfg.Sweeper.RevokedRetention,
				Now:              now,
			}, l)
			targets = append(targets, sweeper.Target{Name: "refresh_tokens", Sweeper: store})
		}
		sw := sweeper.New(l, sweeper.Config{Interval: cfg.Sweeper.Interval}, targets...)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sw.Run(root)
		}()
	}

	l.Info("auth-relay started", zap.String("topic", cfg.Kafka.Topic))
	<-root.Done()
	wg.Wait()

	// graceful metrics server shutdown
	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
