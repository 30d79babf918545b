package connection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"docgate/internal/apperr"
	"docgate/internal/docstore"
)

func newManager(srv *docstore.MemoryServer, timeout time.Duration) *Manager {
	return NewManager(srv, timeout, zap.NewNop())
}

func TestReleaseIsIdempotent(t *testing.T) {
	srv := docstore.NewMemoryServer()
	m := newManager(srv, time.Second)

	h, err := m.Acquire(context.Background(), "mongodb://memory")
	require.NoError(t, err)
	assert.Equal(t, 1, srv.OpenSessions())

	h.Release(context.Background())
	h.Release(context.Background())
	assert.Equal(t, 0, srv.OpenSessions())

	var absent *Handle
	assert.NotPanics(t, func() { absent.Release(context.Background()) })
}

func TestAcquireFailureIsConnectionError(t *testing.T) {
	srv := docstore.NewMemoryServer()
	srv.FailOn(docstore.OpConnect, errors.New("no reachable servers"))
	m := newManager(srv, time.Second)

	h, err := m.Acquire(context.Background(), "mongodb://memory")
	assert.Nil(t, h)
	assert.True(t, apperr.IsKind(err, apperr.KindConnection))

	called := false
	err = m.With(context.Background(), "mongodb://memory", func(context.Context, *Handle) error {
		called = true
		return nil
	})
	assert.True(t, apperr.IsKind(err, apperr.KindConnection))
	assert.False(t, called)
}

func TestWithReleasesOnEveryPath(t *testing.T) {
	srv := docstore.NewMemoryServer()
	m := newManager(srv, time.Second)
	ctx := context.Background()

	require.NoError(t, m.With(ctx, "mongodb://memory", func(ctx context.Context, h *Handle) error {
		assert.Equal(t, 1, srv.OpenSessions())
		return h.Session().CreateCollection(ctx, "shop", "orders")
	}))
	assert.Equal(t, 0, srv.OpenSessions())

	boom := errors.New("boom")
	err := m.With(ctx, "mongodb://memory", func(context.Context, *Handle) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, srv.OpenSessions())

	assert.Panics(t, func() {
		_ = m.With(ctx, "mongodb://memory", func(context.Context, *Handle) error { panic("handler bug") })
	})
	assert.Equal(t, 0, srv.OpenSessions())

	err = m.With(ctx, "mongodb://memory", func(ctx context.Context, h *Handle) error {
		h.Release(ctx)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, srv.OpenSessions(), "early release is not repeated by the scope")
}

func TestWithAppliesOperationTimeout(t *testing.T) {
	srv := docstore.NewMemoryServer()
	m := newManager(srv, 20*time.Millisecond)

	err := m.With(context.Background(), "mongodb://memory", func(ctx context.Context, h *Handle) error {
		<-ctx.Done()
		_, err := h.Session().ListDatabaseNames(ctx)
		return err
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, srv.OpenSessions())
}

func TestReleaseAfterRequestCancelled(t *testing.T) {
	srv := docstore.NewMemoryServer()
	m := newManager(srv, time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	h, err := m.Acquire(ctx, "mongodb://memory")
	require.NoError(t, err)
	cancel()
	h.Release(ctx)
	assert.Equal(t, 0, srv.OpenSessions())
}
