package qrouter

import (
	"context"

	"github.com/juju/errors"
	"go.uber.org/atomic"

	"github.com/pg-sharding/shrouter/pkg/spqrlog"
	"github.com/pg-sharding/shrouter/router/rerrors"
	"github.com/pg-sharding/shrouter/router/routectx"
	"github.com/pg-sharding/shrouter/router/rule"
)

const StrategyLocal = "local"

// LocalQrouter sends every statement to the only data source.
type LocalQrouter struct {
	holder      *rule.Holder
	initialized *atomic.Bool
}

var _ QueryRouter = &LocalQrouter{}

func NewLocalQrouter(holder *rule.Holder) (*LocalQrouter, error) {
	snap := holder.Load()
	if snap == nil {
		return nil, errors.Trace(rerrors.ErrNoSnapshot)
	}
	if len(snap.DataSources) != 1 {
		err := errors.Errorf("local router supports only single data source routing, got %d", len(snap.DataSources))
		spqrlog.Zero.Error().Err(err).Msg("")
		return nil, err
	}
	return &LocalQrouter{holder: holder, initialized: atomic.NewBool(false)}, nil
}

func (l *LocalQrouter) Initialize() bool {
	return l.initialized.Swap(true)
}

func (l *LocalQrouter) Initialized() bool {
	return l.initialized.Load()
}

func (l *LocalQrouter) Route(ctx context.Context, q Query, _ ConnectionContext) (*routectx.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := l.holder.Load()
	if snap == nil {
		return nil, errors.Trace(rerrors.ErrNoSnapshot)
	}
	if len(snap.DataSources) != 1 {
		return nil, errors.Errorf("local router got a rule with %d data sources", len(snap.DataSources))
	}
	ds := snap.DataSources[0]
	rc := routectx.New(StrategyLocal)
	rc.Add(routectx.Unit{DataSource: routectx.Mapper{Logic: ds, Actual: ds}})
	spqrlog.Zero.Debug().
		Str("data-source", ds).
		Str("category", q.Stmt.Category.String()).
		Msg("routed statement locally")
	return rc, nil
}
