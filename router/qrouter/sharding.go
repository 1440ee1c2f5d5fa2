package qrouter

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"go.uber.org/atomic"

	"github.com/pg-sharding/shrouter/pkg/models/spqrerror"
	"github.com/pg-sharding/shrouter/pkg/spqrlog"
	"github.com/pg-sharding/shrouter/router/cache"
	"github.com/pg-sharding/shrouter/router/condition"
	"github.com/pg-sharding/shrouter/router/rerrors"
	"github.com/pg-sharding/shrouter/router/routectx"
	"github.com/pg-sharding/shrouter/router/routing"
	"github.com/pg-sharding/shrouter/router/rule"
	"github.com/pg-sharding/shrouter/router/statistics"
	"github.com/pg-sharding/shrouter/router/validator"
)

// ShardingRouter runs the sharding route pipeline over the snapshot
// published in its holder.
type ShardingRouter struct {
	holder     *rule.Holder
	cache      *cache.RouteCache
	decorators []Decorator

	// computed counts pipeline runs, cache hits excluded.
	computed    *atomic.Uint64
	initialized *atomic.Bool
}

var _ QueryRouter = &ShardingRouter{}

type Option func(*ShardingRouter)

// WithDecorators registers route decorators.
func WithDecorators(ds ...Decorator) Option {
	return func(r *ShardingRouter) {
		r.decorators = append(r.decorators, ds...)
	}
}

func WithCache(c *cache.RouteCache) Option {
	return func(r *ShardingRouter) {
		r.cache = c
	}
}

func NewShardingRouter(holder *rule.Holder, opts ...Option) (*ShardingRouter, error) {
	r := &ShardingRouter{
		holder:      holder,
		computed:    atomic.NewUint64(0),
		initialized: atomic.NewBool(false),
	}
	for _, o := range opts {
		o(r)
	}
	if r.cache == nil {
		size := 0
		if snap := holder.Load(); snap != nil {
			size = snap.Cache.Size
		}
		c, err := cache.NewRouteCache(size)
		if err != nil {
			return nil, err
		}
		r.cache = c
	}
	sortDecorators(r.decorators)
	return r, nil
}

func (r *ShardingRouter) Initialize() bool {
	return r.initialized.Swap(true)
}

func (r *ShardingRouter) Initialized() bool {
	return r.initialized.Load()
}

// Computed reports how many routes went through the full pipeline.
func (r *ShardingRouter) Computed() uint64 {
	return r.computed.Load()
}

// Decorators lists registered decorators in application order.
func (r *ShardingRouter) Decorators() []Decorator {
	return append([]Decorator(nil), r.decorators...)
}

// Route computes the route of q. The snapshot is captured once, so a
// concurrent publish never mixes two rule versions in one route.
func (r *ShardingRouter) Route(ctx context.Context, q Query, conn ConnectionContext) (*routectx.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := r.holder.Load()
	if snap == nil {
		return nil, rerrors.ErrNoSnapshot
	}

	span, _ := opentracing.StartSpanFromContext(ctx, "shrouter.route")
	defer span.Finish()
	span.SetTag("category", q.Stmt.Category.String())
	span.SetTag("snapshot.version", snap.Version)

	start := time.Now()
	res, err := r.cache.Load(func() (*routectx.Context, error) {
		return r.compute(snap, q, conn)
	}, q.Stmt, q.Params, snap)
	if err != nil {
		ext.Error.Set(span, true)
		span.SetTag("error.code", spqrerror.Code(err))
		spqrlog.Zero.Debug().Err(err).Str("sql", q.Stmt.SQL).Msg("failed to route statement")
		return nil, err
	}
	rc := res.Context
	span.SetTag("cache.hit", res.Hit)
	span.SetTag("strategy", rc.Strategy)

	if conn.DisallowCrossShard && len(rc.DataSourceNames()) > 1 {
		statistics.RecordValidationFailure("post", spqrerror.SPQR_CROSS_SHARD_QUERY)
		return nil, spqrerror.Newf(spqrerror.SPQR_CROSS_SHARD_QUERY,
			"cross shard statement is disallowed on this connection, route spans %v", rc.DataSourceNames())
	}

	for _, d := range r.decorators {
		if err := d.Decorate(snap, q, conn, rc); err != nil {
			ext.Error.Set(span, true)
			return nil, err
		}
	}

	elapsed := time.Since(start)
	statistics.RecordRoute(rc.Strategy, elapsed)
	spqrlog.RLogger.ReportRoute(rc.Strategy, q.Stmt.SQL, elapsed)
	spqrlog.Zero.Debug().
		Str("strategy", rc.Strategy).
		Strs("data-sources", rc.DataSourceNames()).
		Bool("cache-hit", res.Hit).
		Msg("routed statement")
	return rc, nil
}

func (r *ShardingRouter) compute(snap *rule.Snapshot, q Query, conn ConnectionContext) (*routectx.Context, error) {
	r.computed.Inc()
	stmt := q.Stmt
	props := snap.Props

	conds, err := condition.Extract(snap, stmt, q.Params)
	if err != nil {
		return nil, err
	}
	if err := validator.PreValidate(snap, stmt, q.Params, props); err != nil {
		statistics.RecordValidationFailure("pre", spqrerror.Code(err))
		return nil, err
	}
	if stmt.IsDML() && conds.IsMergeNeeded() {
		conds = conds.Merge()
	}

	rconn := routing.Conn{InTransaction: conn.InTransaction, UsedDataSources: conn.UsedDataSources}
	rc, err := routing.Select(snap, stmt, conds, props, rconn)
	if err != nil {
		return nil, err
	}

	// Forced writes are checked against the route the statement would
	// take on its own.
	checked := rc
	if stmt.IsWrite() && !stmt.Hint.Empty() && stmt.Hint.DataSource != "" {
		plain := *stmt
		plain.Hint = nil
		if checked, err = routing.Select(snap, &plain, conds, props, rconn); err != nil {
			return nil, err
		}
	}
	if err := validator.PostValidate(snap, stmt, stmt.Hint, q.Params, props, checked); err != nil {
		statistics.RecordValidationFailure("post", spqrerror.Code(err))
		return nil, err
	}
	return rc, nil
}
