package memory

import (
	"context"
	"sync"
	"time"

	domainauth "github.com/NordCoder/Crabiner/internal/domain/auth"
	"github.com/google/uuid"
)

var _ domainauth.RefreshTokenRepo = (*RefreshTokenRepo)(nil)

type RefreshTokenRepo struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*domainauth.RefreshToken
	byHash map[string]uuid.UUID
}

func NewRefreshTokenRepo() *RefreshTokenRepo {
	return &RefreshTokenRepo{
		byID:   make(map[uuid.UUID]*domainauth.RefreshToken),
		byHash: make(map[string]uuid.UUID),
	}
}

func (r *RefreshTokenRepo) Create(_ context.Context, t *domainauth.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(t)
}

func (r *RefreshTokenRepo) insertLocked(t *domainauth.RefreshToken) error {
	if _, ok := r.byHash[t.TokenHash]; ok {
		return domainauth.ErrDuplicateHash
	}
	cp := clone(t)
	r.byID[cp.ID] = cp
	r.byHash[cp.TokenHash] = cp.ID
	return nil
}

func (r *RefreshTokenRepo) FindByHash(_ context.Context, tokenHash string) (*domainauth.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.lookupLocked(tokenHash)
	if !ok {
		return nil, domainauth.ErrRefreshNotFound
	}
	return clone(t), nil
}

func (r *RefreshTokenRepo) Rotate(_ context.Context, tokenHash string, now time.Time, next domainauth.SuccessorFunc) (*domainauth.RefreshToken, *domainauth.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.lookupLocked(tokenHash)
	if !ok {
		return nil, nil, domainauth.ErrRefreshNotFound
	}
	if err := prev.Check(now); err != nil {
		return clone(prev), nil, err
	}

	succ := next(clone(prev))
	if err := r.insertLocked(succ); err != nil {
		return nil, nil, err
	}
	revokedAt := now
	succID := succ.ID
	prev.RevokedAt = &revokedAt
	prev.ReplacedByID = &succID

	return clone(prev), clone(succ), nil
}

func (r *RefreshTokenRepo) Revoke(_ context.Context, tokenHash string, now time.Time) (*domainauth.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.lookupLocked(tokenHash)
	if !ok || t.RevokedAt != nil {
		return nil, nil
	}
	at := now
	t.RevokedAt = &at
	return clone(t), nil
}

func (r *RefreshTokenRepo) RevokeAllForSubject(_ context.Context, subjectID string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, t := range r.byID {
		if t.SubjectID == subjectID && t.Usable(now) {
			at := now
			t.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

func (r *RefreshTokenRepo) DeleteStale(_ context.Context, expiredBefore, revokedBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, t := range r.byID {
		if t.ExpiresAt.Before(expiredBefore) || (t.RevokedAt != nil && t.RevokedAt.Before(revokedBefore)) {
			delete(r.byID, id)
			delete(r.byHash, t.TokenHash)
			n++
		}
	}
	return n, nil
}

func (r *RefreshTokenRepo) lookupLocked(tokenHash string) (*domainauth.RefreshToken, bool) {
	id, ok := r.byHash[tokenHash]
	if !ok {
		return nil, false
	}
	t, ok := r.byID[id]
	return t, ok
}

func clone(t *domainauth.RefreshToken) *domainauth.RefreshToken {
	cp := *t
	if t.RevokedAt != nil {
		at := *t.RevokedAt
		cp.RevokedAt = &at
	}
	if t.ReplacedByID != nil {
		id := *t.ReplacedByID
		cp.ReplacedByID = &id
	}
	return &cp
}
