package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainauth "github.com/NordCoder/Crabiner/internal/domain/auth"
	"github.com/jackc/pgx/v5"
)

var _ domainauth.RefreshTokenRepo = (*RefreshTokenRepo)(nil)

type RefreshTokenRepo struct {
	db *DB
	tx Transactor
}

func NewRefreshTokenRepo(db *DB, tx Transactor) *RefreshTokenRepo {
	return &RefreshTokenRepo{db: db, tx: tx}
}

const rtColumns = `id, user_id, token_hash, created_at, expires_at, revoked_at, replaced_by_id,
       COALESCE(user_agent, ''), COALESCE(ip_address, ''), COALESCE(origin, '')`

const (
	qRTInsert = `
INSERT INTO refresh_tokens (id, user_id, token_hash, created_at, expires_at, user_agent, ip_address, origin)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''));`

	qRTByHash = `
SELECT ` + rtColumns + `
FROM refresh_tokens
WHERE token_hash = $1;`

	qRTByHashForUpdate = `
SELECT ` + rtColumns + `
FROM refresh_tokens
WHERE token_hash = $1
FOR UPDATE;`

	qRTMarkReplaced = `
UPDATE refresh_tokens
SET revoked_at = $2, replaced_by_id = $3
WHERE id = $1;`

	qRTRevoke = `
UPDATE refresh_tokens
SET revoked_at = $2
WHERE token_hash = $1 AND revoked_at IS NULL
RETURNING ` + rtColumns + `;`

	qRTRevokeAll = `
UPDATE refresh_tokens
SET revoked_at = $2
WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2;`

	qRTDeleteStale = `
DELETE FROM refresh_tokens
WHERE expires_at < $1 OR revoked_at < $2;`
)

func (r *RefreshTokenRepo) Create(ctx context.Context, t *domainauth.RefreshToken) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()
	return insertRefresh(ctx, r.db.execQueryer(ctx), t)
}

func insertRefresh(ctx context.Context, eq execQueryer, t *domainauth.RefreshToken) error {
	_, err := eq.Exec(ctx, qRTInsert,
		t.ID, t.SubjectID, t.TokenHash, t.CreatedAt, t.ExpiresAt,
		t.Client.UserAgent, t.Client.IP, t.Client.Origin,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %w", ErrConflict, domainauth.ErrDuplicateHash)
		}
		return fmt.Errorf("refresh insert: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepo) FindByHash(ctx context.Context, tokenHash string) (*domainauth.RefreshToken, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()
	return scanRefresh(r.db.execQueryer(ctx).QueryRow(ctx, qRTByHash, tokenHash))
}

func (r *RefreshTokenRepo) Rotate(ctx context.Context, tokenHash string, now time.Time, next domainauth.SuccessorFunc) (prev, succ *domainauth.RefreshToken, err error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	err = r.tx.WithTx(ctx, func(ctx context.Context) error {
		eq := r.db.execQueryer(ctx)

		p, err := scanRefresh(eq.QueryRow(ctx, qRTByHashForUpdate, tokenHash))
		if err != nil {
			return err
		}
		prev = p
		if err := p.Check(now); err != nil {
			return err
		}

		s := next(p)
		if err := insertRefresh(ctx, eq, s); err != nil {
			return err
		}
		if _, err := eq.Exec(ctx, qRTMarkReplaced, p.ID, now, s.ID); err != nil {
			return fmt.Errorf("refresh mark replaced: %w", err)
		}
		revokedAt, succID := now, s.ID
		p.RevokedAt = &revokedAt
		p.ReplacedByID = &succID
		succ = s
		return nil
	})
	if err != nil {
		if errors.Is(err, domainauth.ErrRefreshRevoked) || errors.Is(err, domainauth.ErrRefreshExpired) {
			return prev, nil, err
		}
		return nil, nil, err
	}
	return prev, succ, nil
}

func (r *RefreshTokenRepo) Revoke(ctx context.Context, tokenHash string, now time.Time) (*domainauth.RefreshToken, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rec, err := scanRefresh(r.db.execQueryer(ctx).QueryRow(ctx, qRTRevoke, tokenHash, now))
	if err != nil {
		if errors.Is(err, domainauth.ErrRefreshNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("refresh revoke: %w", err)
	}
	return rec, nil
}

func (r *RefreshTokenRepo) RevokeAllForSubject(ctx context.Context, subjectID string, now time.Time) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qRTRevokeAll, subjectID, now)
	if err != nil {
		return 0, fmt.Errorf("refresh revoke all: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *RefreshTokenRepo) DeleteStale(ctx context.Context, expiredBefore, revokedBefore time.Time) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qRTDeleteStale, expiredBefore, revokedBefore)
	if err != nil {
		return 0, fmt.Errorf("refresh delete stale: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRefresh(row pgx.Row) (*domainauth.RefreshToken, error) {
	var t domainauth.RefreshToken
	err := row.Scan(
		&t.ID, &t.SubjectID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &t.RevokedAt, &t.ReplacedByID,
		&t.Client.UserAgent, &t.Client.IP, &t.Client.Origin,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainauth.ErrRefreshNotFound
		}
		return nil, fmt.Errorf("scan refresh: %w", err)
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.ExpiresAt = t.ExpiresAt.UTC()
	return &t, nil
}
