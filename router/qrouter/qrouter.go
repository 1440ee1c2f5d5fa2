package qrouter

import (
	"context"

	"github.com/pkg/errors"

	"github.com/pg-sharding/shrouter/router/routectx"
	"github.com/pg-sharding/shrouter/router/rule"
	"github.com/pg-sharding/shrouter/router/stmtctx"
)

type RouterMode string

const (
	LocalMode = RouterMode("LOCAL")
	ProxyMode = RouterMode("PROXY")
)

// Query is one statement execution: its routing view and bound parameters.
type Query struct {
	Stmt   *stmtctx.Context
	Params []any
}

// ConnectionContext is the client connection state routing depends on.
type ConnectionContext struct {
	InTransaction bool
	// UsedDataSources are data sources the connection already holds.
	UsedDataSources []string
	// DisallowCrossShard rejects routes spanning several data sources.
	DisallowCrossShard bool
}

type QueryRouter interface {
	Route(ctx context.Context, q Query, conn ConnectionContext) (*routectx.Context, error)

	Initialized() bool
	Initialize() bool
}

func NewQrouter(mode RouterMode, holder *rule.Holder, opts ...Option) (QueryRouter, error) {
	switch mode {
	case LocalMode:
		return NewLocalQrouter(holder)
	case ProxyMode:
		return NewShardingRouter(holder, opts...)
	default:
		return nil, errors.Errorf("unknown qrouter type: %v", mode)
	}
}

// ModeFor picks the local router for rules without sharding that name a
// single data source.
func ModeFor(snap *rule.Snapshot) RouterMode {
	if len(snap.DataSources) == 1 && len(snap.Tables) == 0 {
		return LocalMode
	}
	return ProxyMode
}
