package cache

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"github.com/pg-sharding/shrouter/pkg/config"
	"github.com/pg-sharding/shrouter/pkg/spqrlog"
	"github.com/pg-sharding/shrouter/router/rerrors"
	"github.com/pg-sharding/shrouter/router/routectx"
	"github.com/pg-sharding/shrouter/router/rule"
	"github.com/pg-sharding/shrouter/router/statistics"
	"github.com/pg-sharding/shrouter/router/stmtctx"
)

// Compute produces a fresh route on a cache miss.
type Compute func() (*routectx.Context, error)

// Result of a cache load. Enabled and Hit are independent: a disabled
// cache never hits, and an enabled one may bypass a statement.
type Result struct {
	Enabled bool
	Hit     bool
	Context *routectx.Context
}

type entry struct {
	version uint64
	expires time.Time
	rc      *routectx.Context
}

// RouteCache is a bounded LRU of route contexts keyed by statement
// fingerprint. Entries are stamped with the snapshot version they were
// computed under and never outlive it.
type RouteCache struct {
	mu      sync.Mutex
	lru     *lru.Cache
	size    int
	version uint64

	group singleflight.Group
	now   func() time.Time
}

func NewRouteCache(size int) (*RouteCache, error) {
	if size <= 0 {
		size = config.DefaultCacheSize
	}
	l, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &RouteCache{lru: l, size: size, now: time.Now}, nil
}

func (c *RouteCache) Len() int {
	return c.lru.Len()
}

// Purge drops every entry.
func (c *RouteCache) Purge() {
	c.lru.Purge()
}

// Load returns the cached route of stmt under snap, computing it through
// compute when the statement is not cacheable or the entry is missing.
func (c *RouteCache) Load(compute Compute, stmt *stmtctx.Context, params []any, snap *rule.Snapshot) (Result, error) {
	if !snap.Cache.Enabled {
		rc, err := compute()
		return Result{Context: rc}, err
	}
	res := Result{Enabled: true}

	bypass := func(reason string) (Result, error) {
		spqrlog.Zero.Debug().Str("reason", reason).Msg("route cache bypass")
		statistics.RecordCache(statistics.CacheBypass)
		rc, err := compute()
		res.Context = rc
		return res, err
	}

	if reason := notCacheable(snap, stmt, params); reason != "" {
		return bypass(reason)
	}
	if !c.observe(snap) {
		return bypass("stale snapshot")
	}
	key, ok, err := c.fingerprint(snap, stmt, params)
	if err != nil {
		spqrlog.Zero.Warn().Err(err).Msg("route cache fault")
		return bypass("fingerprint fault")
	}
	if !ok {
		return bypass("parameter is not a comparable scalar")
	}

	if rc, ok := c.lookup(key, snap); ok {
		statistics.RecordCache(statistics.CacheHit)
		res.Hit = true
		res.Context = rc
		return res, nil
	}
	statistics.RecordCache(statistics.CacheMiss)

	v, err, shared := c.group.Do(key, func() (any, error) {
		if rc, ok := c.lookup(key, snap); ok {
			return rc, nil
		}
		rc, err := compute()
		if err != nil {
			return nil, err
		}
		c.store(key, snap, rc.Clone())
		return rc, nil
	})
	if err != nil {
		return res, err
	}
	spqrlog.Zero.Debug().
		Str("fingerprint", key).
		Bool("shared", shared).
		Msg("route cache miss")
	res.Context = v.(*routectx.Context).Clone()
	return res, nil
}

// notCacheable names why stmt bypasses the cache, or returns "".
func notCacheable(snap *rule.Snapshot, stmt *stmtctx.Context, params []any) string {
	switch {
	case !stmt.Hint.Empty():
		return "hint"
	case !stmt.IsDML() && !stmt.IsCursor():
		return "category " + stmt.Category.String()
	case len(snap.ShardingTables(stmt.TableNames())) == 0:
		return "no sharding tables"
	}
	if limit := snap.Cache.MaxParameters; limit > 0 && (len(params) > limit || stmt.ParamCount() > limit) {
		return "too many parameters"
	}
	return ""
}

// observe tracks the newest snapshot version. A newer version purges the
// cache, an older one is reported as stale.
func (c *RouteCache) observe(snap *rule.Snapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case snap.Version > c.version:
		if c.version != 0 {
			statistics.RecordCache(statistics.CachePurge)
			spqrlog.Zero.Info().
				Uint64("old-version", c.version).
				Uint64("new-version", snap.Version).
				Msg("purging route cache")
		}
		c.lru.Purge()
		if size := snap.Cache.Size; size > 0 && size != c.size {
			c.lru.Resize(size)
			c.size = size
		}
		c.version = snap.Version
		return true
	case snap.Version < c.version:
		return false
	}
	return true
}

func (c *RouteCache) fingerprint(snap *rule.Snapshot, stmt *stmtctx.Context, params []any) (key string, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: fingerprint panicked: %v", rerrors.ErrRouteCacheFault, r)
		}
	}()
	key, ok = fingerprint(snap, stmt, params)
	return key, ok, nil
}

func (c *RouteCache) lookup(key string, snap *rule.Snapshot) (*routectx.Context, bool) {
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	e, ok := v.(*entry)
	if !ok {
		spqrlog.Zero.Warn().
			Err(rerrors.ErrRouteCacheFault).
			Type("type", v).
			Msg("unexpected route cache entry")
		c.lru.Remove(key)
		return nil, false
	}
	if e.version != snap.Version || (!e.expires.IsZero() && c.now().After(e.expires)) {
		c.lru.Remove(key)
		return nil, false
	}
	return e.rc.Clone(), true
}

func (c *RouteCache) store(key string, snap *rule.Snapshot, rc *routectx.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.version != snap.Version {
		return
	}
	e := &entry{version: snap.Version, rc: rc}
	if snap.CacheTTL > 0 {
		e.expires = c.now().Add(snap.CacheTTL)
	}
	c.lru.Add(key, e)
}
