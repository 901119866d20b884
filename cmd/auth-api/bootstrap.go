package main

import (
	"context"
	"fmt"
	"time"

	config "github.com/NordCoder/Crabiner/internal/config/auth-api"
	"github.com/NordCoder/Crabiner/internal/obs"
	"github.com/NordCoder/Crabiner/internal/repository/kafka"
	pg "github.com/NordCoder/Crabiner/internal/repository/postgres"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	return obs.NewLogger(cfg.AsLoggerConfig())
}

func initOTel(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	o, err := obs.SetupOTel(ctx, cfg.AsOTELConfig())
	if err != nil {
		return nil, err
	}
	return o.Shutdown, nil
}

// initDB returns nil when no DSN is configured.
func initDB(ctx context.Context, cfg *config.Config) (*pg.DB, error) {
	if cfg.DB.DSN == "" {
		return nil, nil
	}
	return pg.NewDB(ctx, cfg.DB)
}

func initRedis(ctx context.Context, cfg *config.Config) (*goredis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func initProducer(ctx context.Context, cfg *config.Config, l *zap.Logger) *kafka.Producer {
	if !cfg.Kafka.Enable || !cfg.Kafka.EmbeddedRelay {
		return nil
	}
	return kafka.BootstrapProducer(ctx, cfg.Kafka.Brokers, kafka.TopicSpec{
		Name:              cfg.Kafka.Topic,
		NumPartitions:     cfg.Kafka.Partitions,
		ReplicationFactor: 1,
		MaxWait:           5 * time.Second,
	}, l)
}
