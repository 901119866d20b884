package main

import (
	"time"

	codec "github.com/NordCoder/Crabiner/internal/auth"
	config "github.com/NordCoder/Crabiner/internal/config/auth-api"
	domainauth "github.com/NordCoder/Crabiner/internal/domain/auth"
	"github.com/NordCoder/Crabiner/internal/domain/identity"
	"github.com/NordCoder/Crabiner/internal/obs/retry"
	"github.com/NordCoder/Crabiner/internal/outbox"
	"github.com/NordCoder/Crabiner/internal/repository/kafka"
	"github.com/NordCoder/Crabiner/internal/repository/memory"
	pg "github.com/NordCoder/Crabiner/internal/repository/postgres"
	redisrepo "github.com/NordCoder/Crabiner/internal/repository/redis"
	"github.com/NordCoder/Crabiner/internal/services/auth-api/audit"
	"github.com/NordCoder/Crabiner/internal/services/auth-api/auth"
	"github.com/NordCoder/Crabiner/internal/services/auth-api/refresh"
	"github.com/NordCoder/Crabiner/internal/services/sweeper"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type app struct {
	server  *auth.Server
	store   *refresh.Store
	outbox  *outbox.Runner
	sweeper *sweeper.Runner
}

func systemNow() time.Time { return time.Now().UTC() }

func refreshRepo(cfg *config.Config, db *pg.DB, rdb *goredis.Client, l *zap.Logger) domainauth.RefreshTokenRepo {
	switch cfg.Auth.Backend {
	case config.BackendPostgres:
		return pg.NewRefreshTokenRepo(db, pg.NewTransactor(db, l))
	case config.BackendRedis:
		return redisrepo.NewRefreshTokenRepo(rdb, redisrepo.Config{
			Prefix:           cfg.Redis.Prefix,
			ExpiredRetention: cfg.Sweeper.ExpiredRetention,
			RevokedRetention: cfg.Sweeper.RevokedRetention,
		})
	default:
		l.Warn("refresh records are kept in memory and lost on restart")
		return memory.NewRefreshTokenRepo()
	}
}

func identityRepo(cfg *config.Config, db *pg.DB) identity.Repo {
	if db != nil {
		return pg.NewIdentityRepo(db)
	}
	ids := make([]identity.Identity, 0, len(cfg.Auth.DevSubjects))
	now := systemNow()
	for _, id := range cfg.Auth.DevSubjects {
		ids = append(ids, identity.Identity{ID: id, Email: id + "@dev.local", DisplayName: id, CreatedAt: now, UpdatedAt: now})
	}
	return memory.NewIdentityRepo(ids...)
}

func wire(cfg *config.Config, db *pg.DB, rdb *goredis.Client, prod *kafka.Producer, l *zap.Logger) (*app, error) {
	c, err := codec.NewCodec(codec.Config{
		Secret:    []byte(cfg.Auth.JWTSecret),
		Issuer:    cfg.Auth.Issuer,
		Audience:  cfg.Auth.Audience,
		AccessTTL: cfg.Auth.AccessTTL,
		Now:       systemNow,
	})
	if err != nil {
		return nil, err
	}

	store := refresh.NewStore(refreshRepo(cfg, db, rdb, l), refresh.Config{
		TTL:              cfg.Auth.RefreshTTL,
		ExpiredRetention: cfg.Sweeper.ExpiredRetention,
		RevokedRetention: cfg.Sweeper.RevokedRetention,
		Now:              systemNow,
	}, l)

	auditors := audit.Multi{audit.NewLogAuditor(l)}
	out := &app{store: store}

	if cfg.Kafka.Enable && db != nil {
		auditors = append(auditors, audit.NewOutboxAuditor(pg.NewOutboxRepo(db)))
	}
	if prod != nil && db != nil {
		outboxRepo := pg.NewOutboxRepo(db)
		dispatch := outbox.MakeGlobalOutboxHandler(kafka.NewAuthEventsKafka(prod), retry.RelayPolicy(l, "auth_event"))
		out.outbox = outbox.NewOutboxRunner(l, outboxRepo, dispatch, cfg.Outbox)
	}

	uc := auth.NewUsecase(auth.Deps{
		Codec:    c,
		Store:    store,
		Identity: identityRepo(cfg, db),
		Auditor:  auditors,
		Logger:   l,
		Now:      systemNow,
	})
	out.server = auth.NewServer(uc, auth.NewGateway(uc, l), auth.Opts{
		Logger:       l,
		CookieName:   cfg.Auth.CookieName,
		CookieDomain: cfg.Auth.CookieDomain,
		CookiePath:   cfg.Auth.CookiePath,
		CookieSecure: cfg.Auth.CookieSecure,
		InternalKey:  cfg.Auth.InternalKey,
	})

	if cfg.Sweeper.Enable {
		targets := []sweeper.Target{{Name: "refresh_tokens", Sweeper: store}}
		if cfg.Kafka.Enable && db != nil {
			targets = append(targets, sweeper.Target{
				Name:    "outbox",
				Sweeper: outbox.NewPurger(pg.NewOutboxRepo(db), cfg.Sweeper.OutboxRetention, systemNow),
			})
		}
		out.sweeper = sweeper.New(l, sweeper.Config{Interval: cfg.Sweeper.Interval}, targets...)
	}
	return out, nil
}
