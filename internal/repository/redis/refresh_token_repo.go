package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	domainauth "github.com/NordCoder/Crabiner/internal/domain/auth"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const DefaultPrefix = "crabiner:rt:"

type Config struct {
	Prefix           string
	ExpiredRetention time.Duration
	RevokedRetention time.Duration
}

var _ domainauth.RefreshTokenRepo = (*RefreshTokenRepo)(nil)

// RefreshTokenRepo keeps refresh records in Redis. Records are removed by key expiry
// once they fall out of the retention window, so DeleteStale has nothing to do.
type RefreshTokenRepo struct {
	rdb goredis.UniversalClient
	cfg Config
}

func NewRefreshTokenRepo(rdb goredis.UniversalClient, cfg Config) *RefreshTokenRepo {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.ExpiredRetention <= 0 {
		cfg.ExpiredRetention = 7 * 24 * time.Hour
	}
	if cfg.RevokedRetention <= 0 {
		cfg.RevokedRetention = 30 * 24 * time.Hour
	}
	return &RefreshTokenRepo{rdb: rdb, cfg: cfg}
}

func (r *RefreshTokenRepo) hashKey(h string) string { return r.cfg.Prefix + "hash:" + h }
func (r *RefreshTokenRepo) idKey(id string) string  { return r.cfg.Prefix + "id:" + id }
func (r *RefreshTokenRepo) subKey(s string) string  { return r.cfg.Prefix + "sub:" + s }

func (r *RefreshTokenRepo) expireAt(t *domainauth.RefreshToken) int64 {
	return t.ExpiresAt.Add(r.cfg.ExpiredRetention).UnixMilli()
}

func (r *RefreshTokenRepo) Create(ctx context.Context, t *domainauth.RefreshToken) error {
	id := t.ID.String()
	res, err := createScript.Run(ctx, r.rdb,
		[]string{r.hashKey(t.TokenHash), r.idKey(id), r.subKey(t.SubjectID)},
		id, t.SubjectID, t.TokenHash, t.CreatedAt.UnixMilli(), t.ExpiresAt.UnixMilli(),
		t.Client.UserAgent, t.Client.IP, t.Client.Origin, r.expireAt(t),
	).Int64()
	if err != nil {
		return fmt.Errorf("redis refresh create: %w", err)
	}
	if res == 0 {
		return domainauth.ErrDuplicateHash
	}
	return nil
}

func (r *RefreshTokenRepo) FindByHash(ctx context.Context, tokenHash string) (*domainauth.RefreshToken, error) {
	id, err := r.rdb.Get(ctx, r.hashKey(tokenHash)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, domainauth.ErrRefreshNotFound
		}
		return nil, fmt.Errorf("redis refresh lookup: %w", err)
	}
	fields, err := r.rdb.HGetAll(ctx, r.idKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis refresh load: %w", err)
	}
	if len(fields) == 0 {
		return nil, domainauth.ErrRefreshNotFound
	}
	return decode(fields)
}

func (r *RefreshTokenRepo) Rotate(ctx context.Context, tokenHash string, now time.Time, next domainauth.SuccessorFunc) (*domainauth.RefreshToken, *domainauth.RefreshToken, error) {
	prev, err := r.FindByHash(ctx, tokenHash)
	if err != nil {
		return nil, nil, err
	}
	if err := prev.Check(now); err != nil {
		return prev, nil, err
	}

	succ := next(prev)
	prevID, succID := prev.ID.String(), succ.ID.String()
	code, err := rotateScript.Run(ctx, r.rdb,
		[]string{r.hashKey(tokenHash), r.idKey(prevID), r.hashKey(succ.TokenHash), r.idKey(succID), r.subKey(prev.SubjectID)},
		prevID, now.UnixMilli(), succID, succ.SubjectID, succ.TokenHash,
		succ.CreatedAt.UnixMilli(), succ.ExpiresAt.UnixMilli(),
		succ.Client.UserAgent, succ.Client.IP, succ.Client.Origin,
		r.expireAt(succ), r.cfg.ExpiredRetention.Milliseconds(), r.cfg.RevokedRetention.Milliseconds(),
	).Int64()
	if err != nil {
		return nil, nil, fmt.Errorf("redis refresh rotate: %w", err)
	}

	switch code {
	case rotOK:
		revokedAt := time.UnixMilli(now.UnixMilli()).UTC()
		nextID := succ.ID
		prev.RevokedAt = &revokedAt
		prev.ReplacedByID = &nextID
		return prev, succ, nil
	case rotDuplicate:
		return nil, nil, domainauth.ErrDuplicateHash
	case rotNotFound:
		return nil, nil, domainauth.ErrRefreshNotFound
	}

	// Lost a race: report the record as it is now.
	cur, err := r.FindByHash(ctx, tokenHash)
	if err != nil {
		return nil, nil, err
	}
	if code == rotExpired {
		return cur, nil, domainauth.ErrRefreshExpired
	}
	return cur, nil, domainauth.ErrRefreshRevoked
}

func (r *RefreshTokenRepo) Revoke(ctx context.Context, tokenHash string, now time.Time) (*domainauth.RefreshToken, error) {
	rec, err := r.FindByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, domainauth.ErrRefreshNotFound) {
			return nil, nil
		}
		return nil, err
	}
	id := rec.ID.String()
	n, err := revokeScript.Run(ctx, r.rdb,
		[]string{r.hashKey(tokenHash), r.idKey(id)},
		id, now.UnixMilli(), r.cfg.ExpiredRetention.Milliseconds(), r.cfg.RevokedRetention.Milliseconds(),
	).Int64()
	if err != nil {
		return nil, fmt.Errorf("redis refresh revoke: %w", err)
	}
	if n != 1 {
		return nil, nil
	}
	at := now.Truncate(time.Millisecond).UTC()
	rec.RevokedAt = &at
	return rec, nil
}

func (r *RefreshTokenRepo) RevokeAllForSubject(ctx context.Context, subjectID string, now time.Time) (int64, error) {
	n, err := revokeAllScript.Run(ctx, r.rdb,
		[]string{r.subKey(subjectID)},
		r.cfg.Prefix, now.UnixMilli(), r.cfg.ExpiredRetention.Milliseconds(), r.cfg.RevokedRetention.Milliseconds(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis refresh revoke all: %w", err)
	}
	return n, nil
}

func (r *RefreshTokenRepo) DeleteStale(context.Context, time.Time, time.Time) (int64, error) {
	return 0, nil
}

func decode(f map[string]string) (*domainauth.RefreshToken, error) {
	id, err := uuid.Parse(f["id"])
	if err != nil {
		return nil, fmt.Errorf("decode refresh id: %w", err)
	}
	t := &domainauth.RefreshToken{
		ID:        id,
		SubjectID: f["sub"],
		TokenHash: f["hash"],
		Client: domainauth.ClientContext{
			UserAgent: f["ua"],
			IP:        f["ip"],
			Origin:    f["origin"],
		},
	}
	if t.CreatedAt, err = parseMillis(f["created"]); err != nil {
		return nil, err
	}
	if t.ExpiresAt, err = parseMillis(f["expires"]); err != nil {
		return nil, err
	}
	if v := f["revoked"]; v != "" {
		at, err := parseMillis(v)
		if err != nil {
			return nil, err
		}
		t.RevokedAt = &at
	}
	if v := f["replaced_by"]; v != "" {
		next, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("decode replaced_by: %w", err)
		}
		t.ReplacedByID = &next
	}
	return t, nil
}

func parseMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode timestamp %q: %w", s, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
