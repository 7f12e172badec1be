// Package loader lazily loads tool implementations: one in-flight load per
// tool id shared by every concurrent activation, successful results memoized
// for the session, failures left retryable.
package loader

import (
	"context"
	"fmt"
	"sync"

	"github.com/brightpath-assess/toolgate/internal/catalog"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Loader memoizes tool implementation loads for one session.
type Loader struct {
	catalog *catalog.Catalog
	group   singleflight.Group
	logger  *zap.Logger

	mu     sync.RWMutex
	loaded map[string]catalog.Implementation
}

// New creates a loader over the given catalog.
func New(cat *catalog.Catalog, logger *zap.Logger) *Loader {
	return &Loader{
		catalog: cat,
		logger:  logger,
		loaded:  make(map[string]catalog.Implementation),
	}
}

// Load returns the tool's implementation, invoking the descriptor's Load
// factory at most once per tool id no matter how many activations race. A
// failed load is not cached, so the next activation retries.
func (l *Loader) Load(ctx context.Context, toolID string) (catalog.Implementation, error) {
	l.mu.RLock()
	impl, ok := l.loaded[toolID]
	l.mu.RUnlock()
	if ok {
		return impl, nil
	}

	d := l.catalog.Get(toolID)
	if d == nil {
		return nil, fmt.Errorf("Load: tool %q not registered", toolID)
	}
	if d.Load == nil {
		return nil, fmt.Errorf("Load: tool %q has no implementation factory", toolID)
	}

	v, err, shared := l.group.Do(toolID, func() (any, error) {
		impl, err := d.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("Load: %w", err)
		}
		l.mu.Lock()
		l.loaded[toolID] = impl
		l.mu.Unlock()
		return impl, nil
	})
	if err != nil {
		l.logger.Warn("loader: tool implementation load failed",
			zap.String("tool_id", toolID),
			zap.Bool("shared", shared),
			zap.Error(err),
		)
		return nil, err
	}
	return v.(catalog.Implementation), nil
}

// Loaded reports whether a tool's implementation is already in memory.
func (l *Loader) Loaded(toolID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.loaded[toolID]
	return ok
}
