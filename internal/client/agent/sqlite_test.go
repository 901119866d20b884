package agent

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteSecretStore(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "agent.db")

	s, err := OpenSQLiteSecretStore(ctx, dsn)
	require.NoError(t, err)

	v, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.Save(ctx, "R1"))
	require.NoError(t, s.Save(ctx, "R2"))
	v, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "R2", v)
	require.NoError(t, s.Close())

	// survives reopen, migrations are idempotent
	s, err = OpenSQLiteSecretStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	v, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "R2", v)

	require.NoError(t, s.Clear(ctx))
	v, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestAgentWithSQLiteStore(t *testing.T) {
	ctx := context.Background()
	f, srv := newFakeAPI(t)
	s, err := OpenSQLiteSecretStore(ctx, filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Save(ctx, "R1"))

	a := New(Options{BaseURL: srv.URL, HTTPClient: srv.Client(), Secrets: s})
	ok, err := a.Bootstrap(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(1), f.refreshes.Load())

	v, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "R2", v)
}
