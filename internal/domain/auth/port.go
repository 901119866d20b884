package auth

import (
	"context"
	"time"
)

// SuccessorFunc builds the record that replaces prev during rotation.
type SuccessorFunc func(prev *RefreshToken) *RefreshToken

type RefreshTokenRepo interface {
	Create(ctx context.Context, t *RefreshToken) error
	FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// Rotate atomically checks that the record with tokenHash is usable at now,
	// stores the successor built by next and marks the record revoked and replaced.
	// When the record exists but is not usable, prev is returned together with
	// ErrRefreshRevoked or ErrRefreshExpired.
	Rotate(ctx context.Context, tokenHash string, now time.Time, next SuccessorFunc) (prev, succ *RefreshToken, err error)

	// Revoke marks the record with tokenHash revoked and returns it.
	// It returns nil when no unrevoked record matched.
	Revoke(ctx context.Context, tokenHash string, now time.Time) (*RefreshToken, error)
	RevokeAllForSubject(ctx context.Context, subjectID string, now time.Time) (int64, error)
	DeleteStale(ctx context.Context, expiredBefore, revokedBefore time.Time) (int64, error)
}

type Auditor interface {
	Record(ctx context.Context, ev Event) error
}
