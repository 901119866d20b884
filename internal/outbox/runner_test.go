package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/NordCoder/Crabiner/internal/domain/outbox"
	"github.com/NordCoder/Crabiner/internal/obs/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRepo struct {
	mu      sync.Mutex
	pending []outbox.Message
	done    []string
	purged  time.Time
}

func (f *fakeRepo) Enqueue(_ context.Context, key string, kind outbox.Kind, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, outbox.Message{IdempotencyKey: key, Kind: kind, Data: data})
	return nil
}

func (f *fakeRepo) PickBatch(_ context.Context, batch int, _ time.Duration) ([]outbox.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if batch > len(f.pending) {
		batch = len(f.pending)
	}
	out := f.pending[:batch]
	f.pending = f.pending[batch:]
	return out, nil
}

func (f *fakeRepo) MarkSuccess(_ context.Context, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done = append(f.done, keys...)
	return nil
}

func (f *fakeRepo) PurgeDelivered(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purged = before
	return int64(len(f.done)), nil
}

type fakePublisher struct {
	mu   sync.Mutex
	got  [][]byte
	fail bool
}

func (p *fakePublisher) PublishAuthEvent(_ context.Context, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.got = append(p.got, data)
	return nil
}

func onceOnly() retry.Policy { return retry.Policy{Attempts: 1} }

func TestRunnerTickPublishesAndMarks(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	ctx := context.Background()
	require.NoError(t, repo.Enqueue(ctx, "a", outbox.KindAuthEvent, []byte(`{"id":"a"}`)))
	require.NoError(t, repo.Enqueue(ctx, "b", outbox.KindAuthEvent, []byte(`{"id":"b"}`)))

	r := NewOutboxRunner(zap.NewNop(), repo, MakeGlobalOutboxHandler(pub, onceOnly()), RunnerConfig{BatchSize: 10})
	assert.Equal(t, 2, r.Tick(ctx))
	assert.Equal(t, []string{"a", "b"}, repo.done)
	assert.Len(t, pub.got, 2)
}

func TestRunnerTickLeavesFailedUnmarked(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{fail: true}
	ctx := context.Background()
	require.NoError(t, repo.Enqueue(ctx, "a", outbox.KindAuthEvent, []byte(`{}`)))

	r := NewOutboxRunner(zap.NewNop(), repo, MakeGlobalOutboxHandler(pub, onceOnly()), RunnerConfig{})
	assert.Equal(t, 0, r.Tick(ctx))
	assert.Empty(t, repo.done)
}

func TestRunnerUnknownKind(t *testing.T) {
	repo := &fakeRepo{}
	ctx := context.Background()
	require.NoError(t, repo.Enqueue(ctx, "x", outbox.Kind(99), nil))

	r := NewOutboxRunner(zap.NewNop(), repo, MakeGlobalOutboxHandler(&fakePublisher{}, onceOnly()), RunnerConfig{})
	assert.Equal(t, 0, r.Tick(ctx))
	assert.Empty(t, repo.done)
}

func TestRunnerRunStopsOnCancel(t *testing.T) {
	repo := &fakeRepo{}
	r := NewOutboxRunner(zap.NewNop(), repo, MakeGlobalOutboxHandler(&fakePublisher{}, onceOnly()),
		RunnerConfig{Workers: 3, WaitTime: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestPurgerUsesRetention(t *testing.T) {
	repo := &fakeRepo{done: []string{"a", "b"}}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	p := NewPurger(repo, 48*time.Hour, func() time.Time { return now })

	n, err := p.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, now.Add(-48*time.Hour), repo.purged)
}
