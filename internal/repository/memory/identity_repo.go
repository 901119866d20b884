package memory

import (
	"context"
	"sync"

	"github.com/NordCoder/Crabiner/internal/domain/identity"
)

var _ identity.Repo = (*IdentityRepo)(nil)

type IdentityRepo struct {
	mu sync.RWMutex
	m  map[string]identity.Identity
}

func NewIdentityRepo(ids ...identity.Identity) *IdentityRepo {
	r := &IdentityRepo{m: make(map[string]identity.Identity, len(ids))}
	for _, id := range ids {
		r.m[id.ID] = id
	}
	return r
}

func (r *IdentityRepo) Put(id identity.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[id.ID] = id
}

func (r *IdentityRepo) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, id)
}

func (r *IdentityRepo) GetByID(_ context.Context, id string) (*identity.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.m[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return &v, nil
}
