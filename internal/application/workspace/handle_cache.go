// Package workspace caches loaded workspace handles per project and version.
package workspace

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/jbctechsolutions/projectgate/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/projectgate/internal/domain/errors"
	"github.com/jbctechsolutions/projectgate/internal/domain/version"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/logging"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/metrics"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/tracing"
)

// DefaultMaxFixedVersions is the number of fixed versions kept per project.
const DefaultMaxFixedVersions = 5

// Eviction reasons.
const (
	ReasonLRU     = "lru"
	ReasonDispose = "dispose"
	ReasonClosed  = "closed"
)

// Options configures a HandleCache.
type Options struct {
	ProjectID        string
	MaxFixedVersions int
	Logger           *logging.Logger
	Tracer           *tracing.Tracer
	Metrics          *metrics.Metrics
	Now              func() time.Time
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Entries      int   `json:"entries"`
	FixedEntries int   `json:"fixed_entries"`
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
	Loads        int64 `json:"loads"`
	LoadErrors   int64 `json:"load_errors"`
	Evictions    int64 `json:"evictions"`
}

type entry struct {
	version    version.ID
	handle     ports.WorkspaceHandle
	lastAccess time.Time
	elem       *list.Element // position in the LRU list; nil for the current version
}

// HandleCache maps versions of one project to lazily loaded workspace
// handles.
//
// Concurrent GetOrLoad calls for the same version share a single loader
// invocation; loads for different versions run independently because the
// cache lock is never held while the loader runs. Fixed versions are bounded
// by least-recently-accessed eviction. The current version is only removed by
// Dispose, DisposeAll or Close.
type HandleCache struct {
	projectID string
	load      ports.Loader
	maxFixed  int
	logger    *logging.Logger
	tracer    *tracing.Tracer
	metrics   *metrics.Metrics
	now       func() time.Time

	mu      sync.Mutex
	entries map[version.ID]*entry
	lru     *list.List // of version.ID, front is most recent
	closed  bool

	flight singleflight.Group

	hits       atomic.Int64
	misses     atomic.Int64
	loads      atomic.Int64
	loadErrors atomic.Int64
	evictions  atomic.Int64
}

// NewHandleCache creates a cache that loads handles with load.
func NewHandleCache(load ports.Loader, opts Options) *HandleCache {
	if opts.MaxFixedVersions <= 0 {
		opts.MaxFixedVersions = DefaultMaxFixedVersions
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := logging.OrDefault(opts.Logger)
	if opts.ProjectID != "" {
		logger = logger.With("project", opts.ProjectID)
	}
	return &HandleCache{
		projectID: opts.ProjectID,
		load:      load,
		maxFixed:  opts.MaxFixedVersions,
		logger:    logger,
		tracer:    tracing.OrDefault(opts.Tracer),
		metrics:   opts.Metrics,
		now:       opts.Now,
		entries:   make(map[version.ID]*entry),
		lru:       list.New(),
	}
}

// GetOrLoad returns the cached handle for v, loading it if necessary. Callers
// arriving while a load of v is in flight wait for that load and receive the
// same handle or the same error. Failed loads are not cached.
//
// Cancelling ctx stops the wait but not the shared load, whose result is
// still cached for later callers.
func (c *HandleCache) GetOrLoad(ctx context.Context, v version.ID) (ports.WorkspaceHandle, error) {
	if h, ok, err := c.lookup(v); err != nil || ok {
		return h, err
	}
	c.misses.Add(1)
	c.metrics.CacheMiss()

	ctx, span := c.tracer.StartLoadSpan(ctx, c.projectID, v.String())
	loadCtx := context.WithoutCancel(ctx)

	ch := c.flight.DoChan(v.String(), func() (interface{}, error) {
		return c.loadAndStore(loadCtx, v)
	})

	select {
	case res := <-ch:
		span.SetShared(res.Shared)
		span.EndWithError(res.Err)
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val, nil
	case <-ctx.Done():
		span.EndWithError(ctx.Err())
		return nil, ctx.Err()
	}
}

// loadAndStore runs inside the flight for v.
func (c *HandleCache) loadAndStore(ctx context.Context, v version.ID) (ports.WorkspaceHandle, error) {
	// A previous flight may have stored v between the caller's miss and this flight.
	c.mu.Lock()
	if e, ok := c.entries[v]; ok {
		c.touchLocked(e)
		c.mu.Unlock()
		return e.handle, nil
	}
	c.mu.Unlock()

	start := c.now()
	h, err := c.load(ctx, v)
	elapsed := c.now().Sub(start)
	c.loads.Add(1)
	c.metrics.Load(elapsed, err)

	if err != nil {
		c.loadErrors.Add(1)
		gerr := domainerrors.LoadFailed(err, "load %s of project %q", v, c.projectID)
		logging.LogLoadFailed(ctx, c.logger, c.projectID, v.String(), err)
		return nil, gerr
	}
	if h == nil {
		c.loadErrors.Add(1)
		return nil, domainerrors.LoadFailed(nil, "loader returned no workspace for %s of project %q", v, c.projectID)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.release(h, v, ReasonClosed)
		return nil, domainerrors.NotAllowed("workspace cache of project %q is closed", c.projectID)
	}
	e := &entry{version: v, handle: h, lastAccess: c.now()}
	c.entries[v] = e
	var evicted []*entry
	if !v.IsCurrent() {
		e.elem = c.lru.PushFront(v)
		evicted = c.evictLocked()
	}
	c.mu.Unlock()

	logging.LogLoad(ctx, c.logger, c.projectID, v.String(), elapsed)
	for _, old := range evicted {
		tracing.AddEvent(ctx, "workspace.evicted",
			attribute.String("workspace.version", old.version.String()),
			attribute.String("workspace.evict_reason", ReasonLRU))
		c.release(old.handle, old.version, ReasonLRU)
	}
	return h, nil
}

// evictLocked drops least-recently-accessed fixed versions above capacity.
func (c *HandleCache) evictLocked() []*entry {
	var evicted []*entry
	for c.lru.Len() > c.maxFixed {
		back := c.lru.Back()
		v := c.lru.Remove(back).(version.ID)
		if e, ok := c.entries[v]; ok {
			delete(c.entries, v)
			evicted = append(evicted, e)
		}
	}
	return evicted
}

func (c *HandleCache) touchLocked(e *entry) {
	e.lastAccess = c.now()
	if e.elem != nil {
		c.lru.MoveToFront(e.elem)
	}
}

// lookup serves v from the cache and refreshes its access time.
func (c *HandleCache) lookup(v version.ID) (ports.WorkspaceHandle, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, false, domainerrors.NotAllowed("workspace cache of project %q is closed", c.projectID)
	}
	e, ok := c.entries[v]
	if !ok {
		return nil, false, nil
	}
	c.touchLocked(e)
	c.hits.Add(1)
	c.metrics.CacheHit()
	return e.handle, true, nil
}

// GetIfLoaded returns the cached handle for v without loading. A hit
// refreshes the access time of v.
func (c *HandleCache) GetIfLoaded(v version.ID) (ports.WorkspaceHandle, bool) {
	h, ok, err := c.lookup(v)
	if err != nil {
		return nil, false
	}
	return h, ok
}

// Lookup is GetIfLoaded with a NOT_FOUND error for absent versions.
func (c *HandleCache) Lookup(v version.ID) (ports.WorkspaceHandle, error) {
	h, ok := c.GetIfLoaded(v)
	if !ok {
		return nil, domainerrors.NotFound("version %s of project %q is not loaded", v, c.projectID)
	}
	return h, nil
}

// Contains reports whether v is cached. It does not affect eviction order.
func (c *HandleCache) Contains(v version.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[v]
	return ok
}

// Dispose removes v and releases its handle. Disposing an absent version is a
// no-op.
func (c *HandleCache) Dispose(v version.ID) {
	c.mu.Lock()
	e, ok := c.entries[v]
	if ok {
		c.removeLocked(e)
	}
	c.mu.Unlock()

	if ok {
		c.release(e.handle, v, ReasonDispose)
	}
}

// DisposeAll removes and releases every cached handle, including the current
// version. The cache stays usable.
func (c *HandleCache) DisposeAll() {
	for _, e := range c.drain(false) {
		c.release(e.handle, e.version, ReasonDispose)
	}
}

// Close disposes every handle and refuses further loads. Loads still in
// flight release their handle when they complete.
func (c *HandleCache) Close() {
	for _, e := range c.drain(true) {
		c.release(e.handle, e.version, ReasonClosed)
	}
}

func (c *HandleCache) drain(closing bool) []*entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if closing {
		c.closed = true
	}
	all := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		all = append(all, e)
	}
	c.entries = make(map[version.ID]*entry)
	c.lru.Init()
	return all
}

func (c *HandleCache) removeLocked(e *entry) {
	delete(c.entries, e.version)
	if e.elem != nil {
		c.lru.Remove(e.elem)
		e.elem = nil
	}
}

func (c *HandleCache) release(h ports.WorkspaceHandle, v version.ID, reason string) {
	c.evictions.Add(1)
	c.metrics.Eviction(reason)
	logging.LogEviction(c.logger, c.projectID, v.String(), reason)
	if r, ok := h.(ports.Releaser); ok {
		if err := r.Release(); err != nil {
			c.logger.Warn("failed to release workspace", "version", v.String(), "error", err)
		}
	}
}

// Versions returns the cached versions: current first (if cached), then fixed
// versions from most to least recently accessed.
func (c *HandleCache) Versions() []version.ID {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]version.ID, 0, len(c.entries))
	if _, ok := c.entries[version.Current]; ok {
		out = append(out, version.Current)
	}
	for el := c.lru.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(version.ID))
	}
	return out
}

// LastAccess returns when v was last loaded or read.
func (c *HandleCache) LastAccess(v version.ID) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[v]
	if !ok {
		return time.Time{}, false
	}
	return e.lastAccess, true
}

// Stats returns cache counters.
func (c *HandleCache) Stats() Stats {
	c.mu.Lock()
	entries, fixed := len(c.entries), c.lru.Len()
	c.mu.Unlock()

	return Stats{
		Entries:      entries,
		FixedEntries: fixed,
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Loads:        c.loads.Load(),
		LoadErrors:   c.loadErrors.Load(),
		Evictions:    c.evictions.Load(),
	}
}
