package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	codec "github.com/NordCoder/Crabiner/internal/auth"
	domainauth "github.com/NordCoder/Crabiner/internal/domain/auth"
	"github.com/NordCoder/Crabiner/internal/domain/identity"
	"github.com/NordCoder/Crabiner/internal/repository/memory"
	"github.com/NordCoder/Crabiner/internal/services/auth-api/refresh"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []domainauth.Event
}

func (r *recordingAuditor) Record(_ context.Context, ev domainauth.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingAuditor) kinds() []domainauth.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domainauth.EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (r *recordingAuditor) find(kind domainauth.EventKind) (domainauth.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Kind == kind {
			return ev, true
		}
	}
	return domainauth.Event{}, false
}

var errIdentityDown = errors.New("identity store unavailable")

// flakyIdentity fails the next n lookups before delegating.
type flakyIdentity struct {
	next  identity.Repo
	fails atomic.Int32
}

func (f *flakyIdentity) GetByID(ctx context.Context, id string) (*identity.Identity, error) {
	if f.fails.Add(-1) >= 0 {
		return nil, errIdentityDown
	}
	return f.next.GetByID(ctx, id)
}

type fixture struct {
	uc    *Usecase
	codec *codec.Codec
	store *refresh.Store
	ids   *memory.IdentityRepo
	flaky *flakyIdentity
	audit *recordingAuditor
	clock *clock
}

var alice = identity.Identity{ID: "u1", Email: "alice@example.com", DisplayName: "Alice", EmailVerified: true}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &clock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	c, err := codec.NewCodec(codec.Config{Secret: []byte("an-access-token-secret-of-32+bytes!"), Now: clk.Now})
	require.NoError(t, err)
	store := refresh.NewStore(memory.NewRefreshTokenRepo(), refresh.Config{Now: clk.Now}, nil)
	ids := memory.NewIdentityRepo(alice)
	flaky := &flakyIdentity{next: ids}
	audit := &recordingAuditor{}

	uc := NewUsecase(Deps{Codec: c, Store: store, Identity: flaky, Auditor: audit, Now: clk.Now})
	return &fixture{uc: uc, codec: c, store: store, ids: ids, flaky: flaky, audit: audit, clock: clk}
}
