// Package connection scopes a store session to a single request.
package connection

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"docgate/internal/apperr"
	"docgate/internal/docstore"
	"docgate/internal/metrics"
)

const releaseTimeout = 5 * time.Second

// Manager opens one session per request. It holds no sessions itself.
type Manager struct {
	connector        docstore.Connector
	operationTimeout time.Duration
	logger           *zap.Logger
}

func NewManager(connector docstore.Connector, operationTimeout time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		connector:        connector,
		operationTimeout: operationTimeout,
		logger:           logger,
	}
}

// Handle is an acquired session. Release is idempotent and safe on a nil Handle.
type Handle struct {
	session docstore.Session
	logger  *zap.Logger
	once    sync.Once
}

func (h *Handle) Session() docstore.Session {
	return h.session
}

// Release disconnects the session the first time it is called. It uses a
// context detached from ctx's cancellation so an aborted request still closes.
func (h *Handle) Release(ctx context.Context) {
	if h == nil {
		return
	}
	h.once.Do(func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := h.session.Disconnect(rctx); err != nil {
			h.logger.Warn("store disconnect failed", zap.Error(err))
		}
		metrics.StoreSessionsOpen.Dec()
		h.logger.Debug("connection closed")
	})
}

// Acquire connects to the store at uri. Failure is a connection error and no
// handle is returned.
func (m *Manager) Acquire(ctx context.Context, uri string) (*Handle, error) {
	session, err := m.connector.Connect(ctx, uri)
	if err != nil {
		metrics.StoreConnects.WithLabelValues("error").Inc()
		m.logger.Warn("store connect failed", zap.Error(err))
		return nil, apperr.Connection(err)
	}
	metrics.StoreConnects.WithLabelValues("ok").Inc()
	metrics.StoreSessionsOpen.Inc()
	return &Handle{session: session, logger: m.logger}, nil
}

// With acquires a handle, runs fn under the operation timeout and releases the
// handle exactly once on every exit path, panics included.
func (m *Manager) With(ctx context.Context, uri string, fn func(ctx context.Context, h *Handle) error) error {
	h, err := m.Acquire(ctx, uri)
	if err != nil {
		return err
	}
	defer h.Release(ctx)

	opCtx := ctx
	if m.operationTimeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, m.operationTimeout)
		defer cancel()
	}
	return fn(opCtx, h)
}
