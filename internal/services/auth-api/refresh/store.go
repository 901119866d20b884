package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/NordCoder/Crabiner/internal/auth"
	domainauth "github.com/NordCoder/Crabiner/internal/domain/auth"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultTTL              = 30 * 24 * time.Hour
	DefaultExpiredRetention = 7 * 24 * time.Hour
	DefaultRevokedRetention = 30 * 24 * time.Hour
)

type Config struct {
	TTL              time.Duration
	ExpiredRetention time.Duration
	RevokedRetention time.Duration
	Now              func() time.Time
}

// Store owns refresh secrets: it is the only place that sees plaintext and turns it into hashes.
type Store struct {
	repo domainauth.RefreshTokenRepo
	cfg  Config
	log  *zap.Logger
}

func NewStore(repo domainauth.RefreshTokenRepo, cfg Config, log *zap.Logger) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.ExpiredRetention <= 0 {
		cfg.ExpiredRetention = DefaultExpiredRetention
	}
	if cfg.RevokedRetention <= 0 {
		cfg.RevokedRetention = DefaultRevokedRetention
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{repo: repo, cfg: cfg, log: log.With(zap.String("component", "refresh.store"))}
}

func (s *Store) TTL() time.Duration { return s.cfg.TTL }

// Rotation is the outcome of a successful Rotate.
type Rotation struct {
	Plain    string
	Current  *domainauth.RefreshToken
	Previous *domainauth.RefreshToken
}

// Rejection is returned by Rotate when the presented secret cannot be exchanged.
// Record is the stored credential if one matched the secret.
type Rejection struct {
	Err    error
	Record *domainauth.RefreshToken
}

func (r *Rejection) Error() string { return r.Err.Error() }
func (r *Rejection) Unwrap() error { return r.Err }

// ReuseDetected reports whether a secret that was already rotated away was presented again.
func (r *Rejection) ReuseDetected() bool {
	return r.Record != nil && r.Record.RevokedAt != nil && r.Record.ReplacedByID != nil
}

func (s *Store) IssueAndStore(ctx context.Context, subjectID string, cc domainauth.ClientContext) (string, *domainauth.RefreshToken, error) {
	if subjectID == "" {
		return "", nil, fmt.Errorf("issue refresh: empty subject")
	}
	plain, err := auth.GenerateSecret(auth.RefreshSecretBytes)
	if err != nil {
		return "", nil, fmt.Errorf("gen refresh: %w", err)
	}
	now := s.cfg.Now()
	rec := &domainauth.RefreshToken{
		ID:        uuid.New(),
		SubjectID: subjectID,
		TokenHash: auth.HashSecret(plain),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
		Client:    cc,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return "", nil, fmt.Errorf("save refresh: %w", err)
	}
	s.log.Debug("refresh issued", zap.String("subject", subjectID), zap.Stringer("id", rec.ID))
	return plain, rec, nil
}

// Verify returns the record for plain if it is usable. It never mutates state.
func (s *Store) Verify(ctx context.Context, plain string) (*domainauth.RefreshToken, error) {
	if plain == "" {
		return nil, domainauth.ErrRefreshNotFound
	}
	rec, err := s.repo.FindByHash(ctx, auth.HashSecret(plain))
	if err != nil {
		return nil, err
	}
	if err := rec.Check(s.cfg.Now()); err != nil {
		return rec, err
	}
	return rec, nil
}

func (s *Store) Rotate(ctx context.Context, plain string, cc domainauth.ClientContext) (*Rotation, error) {
	if plain == "" {
		return nil, &Rejection{Err: domainauth.ErrRefreshNotFound}
	}
	nextPlain, err := auth.GenerateSecret(auth.RefreshSecretBytes)
	if err != nil {
		return nil, fmt.Errorf("gen refresh: %w", err)
	}
	now := s.cfg.Now()

	prev, succ, err := s.repo.Rotate(ctx, auth.HashSecret(plain), now, func(p *domainauth.RefreshToken) *domainauth.RefreshToken {
		return &domainauth.RefreshToken{
			ID:        uuid.New(),
			SubjectID: p.SubjectID,
			TokenHash: auth.HashSecret(nextPlain),
			CreatedAt: now,
			ExpiresAt: now.Add(s.cfg.TTL),
			Client:    cc,
		}
	})
	if err != nil {
		if domainauth.IsRefreshNotUsable(err) {
			return nil, &Rejection{Err: err, Record: prev}
		}
		return nil, fmt.Errorf("rotate refresh: %w", err)
	}
	return &Rotation{Plain: nextPlain, Current: succ, Previous: prev}, nil
}

// Revoke is idempotent. It returns the revoked record, or nil when the
// secret matched nothing that was still unrevoked.
func (s *Store) Revoke(ctx context.Context, plain string) (*domainauth.RefreshToken, error) {
	if plain == "" {
		return nil, nil
	}
	rec, err := s.repo.Revoke(ctx, auth.HashSecret(plain), s.cfg.Now())
	if err != nil {
		return nil, fmt.Errorf("revoke refresh: %w", err)
	}
	return rec, nil
}

func (s *Store) RevokeAllForSubject(ctx context.Context, subjectID string) (int64, error) {
	n, err := s.repo.RevokeAllForSubject(ctx, subjectID, s.cfg.Now())
	if err != nil {
		return 0, fmt.Errorf("revoke all refresh: %w", err)
	}
	return n, nil
}

// Sweep deletes records long past expiry or revocation.
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	now := s.cfg.Now()
	n, err := s.repo.DeleteStale(ctx, now.Add(-s.cfg.ExpiredRetention), now.Add(-s.cfg.RevokedRetention))
	if err != nil {
		return 0, fmt.Errorf("sweep refresh: %w", err)
	}
	return n, nil
}
