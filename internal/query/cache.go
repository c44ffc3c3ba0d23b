package query

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/example/parcel-express/internal/observability"
)

type Status int

const (
	// StatusIdle: the read is disabled or was never issued.
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Result is the view of one cached read. On StatusError, Data still holds
// the last value fetched successfully, if any.
type Result[T any] struct {
	Data      T
	Status    Status
	Err       error
	Stale     bool
	FetchedAt time.Time
}

// HasData reports whether Data holds a fetched value.
func (r Result[T]) HasData() bool { return !r.FetchedAt.IsZero() }

// As converts an untyped result.
func As[T any](r Result[any]) Result[T] {
	out := Result[T]{Status: r.Status, Err: r.Err, Stale: r.Stale, FetchedAt: r.FetchedAt}
	if v, ok := r.Data.(T); ok {
		out.Data = v
	}
	return out
}

type Fetcher func(ctx context.Context) (any, error)

type entry struct {
	value     any
	hasValue  bool
	err       error
	fetchedAt time.Time
	stale     bool
	// gen is bumped on every invalidation; a fetch that started under an
	// older generation stores its value as stale.
	gen      uint64
	inflight int
}

type watcher struct {
	id    uint64
	fetch Fetcher
}

// Cache is shared by every page of the process. Entries are only changed by
// fetches and invalidations, never by callers directly.
type Cache struct {
	StaleTime time.Duration

	mu        sync.Mutex
	entries   map[Key]*entry
	watchers  map[Key][]watcher
	nextID    uint64
	listeners []func([]Key)
	group     singleflight.Group
	now       func() time.Time
	logger    *slog.Logger
}

func NewCache(staleTime time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		StaleTime: staleTime,
		entries:   make(map[Key]*entry),
		watchers:  make(map[Key][]watcher),
		now:       time.Now,
		logger:    logger,
	}
}

// entry returns the entry for key, creating it. Caller holds c.mu.
func (c *Cache) entry(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	return e
}

// result renders e. Caller holds c.mu.
func (c *Cache) result(e *entry) Result[any] {
	r := Result[any]{Data: e.value, Err: e.err, FetchedAt: e.fetchedAt}
	switch {
	case e.err != nil:
		r.Status = StatusError
	case e.hasValue:
		r.Status = StatusSuccess
	case e.inflight > 0:
		r.Status = StatusLoading
	default:
		r.Status = StatusIdle
	}
	r.Stale = e.hasValue && (e.stale || c.now().Sub(e.fetchedAt) >= c.StaleTime)
	return r
}

// Fetch returns the cached value for key if it is fresh, otherwise calls
// fetch. Concurrent fetches of one key share a single call.
func (c *Cache) Fetch(ctx context.Context, key Key, fetch Fetcher) Result[any] {
	c.mu.Lock()
	e := c.entry(key)
	if e.hasValue && e.err == nil && !e.stale && c.now().Sub(e.fetchedAt) < c.StaleTime {
		r := c.result(e)
		c.mu.Unlock()
		observability.CacheRequestsTotal.WithLabelValues(key.Kind.String(), "hit").Inc()
		return r
	}
	c.mu.Unlock()
	return c.refetch(ctx, key, fetch)
}

func (c *Cache) refetch(ctx context.Context, key Key, fetch Fetcher) Result[any] {
	c.mu.Lock()
	e := c.entry(key)
	gen := e.gen
	e.inflight++
	c.mu.Unlock()

	// The remote call is not aborted when the requesting page goes away.
	_, err, shared := c.group.Do(fmt.Sprintf("%s#%d", key, gen), func() (any, error) {
		v, err := fetch(context.WithoutCancel(ctx))
		c.store(key, gen, v, err)
		return v, err
	})

	outcome := "miss"
	if shared {
		outcome = "shared"
	}
	observability.CacheRequestsTotal.WithLabelValues(key.Kind.String(), outcome).Inc()
	if err != nil {
		c.logger.Warn("cache_fetch_failed", "key", key.String(), "error", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e.inflight--
	return c.result(e)
}

func (c *Cache) store(key Key, gen uint64, v any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(key)
	if err != nil {
		e.err = err
		return
	}
	e.value = v
	e.hasValue = true
	e.err = nil
	e.fetchedAt = c.now()
	e.stale = e.gen != gen
}

// Peek returns the current state of key without fetching.
func (c *Cache) Peek(key Key) Result[any] {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Result[any]{Status: StatusIdle}
	}
	return c.result(e)
}

// Watch registers a mounted consumer of key: every invalidation covering key
// refetches it once. The returned func unregisters it.
func (c *Cache) Watch(key Key, fetch Fetcher) (unwatch func()) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.watchers[key] = append(c.watchers[key], watcher{id: id, fetch: fetch})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			ws := c.watchers[key]
			for i, w := range ws {
				if w.id == id {
					ws = append(ws[:i:i], ws[i+1:]...)
					break
				}
			}
			if len(ws) == 0 {
				delete(c.watchers, key)
			} else {
				c.watchers[key] = ws
			}
		})
	}
}

// Watchers returns how many consumers watch key.
func (c *Cache) Watchers(key Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.watchers[key])
}

// OnInvalidate registers fn to run after each invalidation has refetched
// its watched keys.
func (c *Cache) OnInvalidate(fn func(patterns []Key)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Invalidate marks every entry covered by patterns stale and refetches each
// watched key once before returning. It returns the cached keys it marked.
func (c *Cache) Invalidate(ctx context.Context, patterns ...Key) []Key {
	return c.invalidate(ctx, "local", patterns)
}

// ApplyRemote is Invalidate for patterns received from another instance.
func (c *Cache) ApplyRemote(ctx context.Context, patterns ...Key) []Key {
	return c.invalidate(ctx, "bus", patterns)
}

func covers(patterns []Key, key Key) bool {
	for _, p := range patterns {
		if p.Matches(key) {
			return true
		}
	}
	return false
}

func (c *Cache) invalidate(ctx context.Context, source string, patterns []Key) []Key {
	type job struct {
		key   Key
		fetch Fetcher
	}
	c.mu.Lock()
	var marked []Key
	for k, e := range c.entries {
		if covers(patterns, k) {
			e.stale = true
			e.gen++
			marked = append(marked, k)
			observability.CacheInvalidationsTotal.WithLabelValues(k.Kind.String(), source).Inc()
		}
	}
	var jobs []job
	for k, ws := range c.watchers {
		if len(ws) > 0 && covers(patterns, k) {
			jobs = append(jobs, job{key: k, fetch: ws[0].fetch})
		}
	}
	listeners := append([]func([]Key){}, c.listeners...)
	c.mu.Unlock()

	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			c.refetch(ctx, j.key, j.fetch)
		}(j)
	}
	wg.Wait()

	c.logger.Debug("cache_invalidated", "source", source, "marked", len(marked), "refetched", len(jobs))
	for _, fn := range listeners {
		fn(patterns)
	}
	return marked
}
