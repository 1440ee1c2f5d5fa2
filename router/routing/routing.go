package routing

import (
	"github.com/pg-sharding/shrouter/pkg/config"
	"github.com/pg-sharding/shrouter/pkg/spqrlog"
	"github.com/pg-sharding/shrouter/router/condition"
	"github.com/pg-sharding/shrouter/router/routectx"
	"github.com/pg-sharding/shrouter/router/rule"
	"github.com/pg-sharding/shrouter/router/stmtctx"
)

const (
	StrategyHint      = "hint"
	StrategyBroadcast = "broadcast"
	StrategyIgnore    = "ignore"
	StrategyUnicast   = "unicast"
	StrategyStandard  = "standard"
	StrategyComplex   = "complex"
	StrategyFederated = "federated"
)

// Engine computes the route context of one statement.
type Engine interface {
	Name() string
	Route(snap *rule.Snapshot) (*routectx.Context, error)
}

// Conn carries the connection state that influences engine choice.
type Conn struct {
	InTransaction bool
	// UsedDataSources are preferred for unicast reads.
	UsedDataSources []string
}

// NewEngine picks the engine for stmt. The first matching branch wins.
func NewEngine(snap *rule.Snapshot, stmt *stmtctx.Context, conds *condition.Set, props config.Props, conn Conn) Engine {
	if conds == nil {
		conds = &condition.Set{}
	}
	e := selectEngine(snap, stmt, conds, props, conn)
	spqrlog.Zero.Debug().
		Str("category", stmt.Category.String()).
		Str("engine", e.Name()).
		Msg("selected route engine")
	return e
}

// Select routes stmt with the engine NewEngine picks.
func Select(snap *rule.Snapshot, stmt *stmtctx.Context, conds *condition.Set, props config.Props, conn Conn) (*routectx.Context, error) {
	return NewEngine(snap, stmt, conds, props, conn).Route(snap)
}

func selectEngine(snap *rule.Snapshot, stmt *stmtctx.Context, conds *condition.Set, props config.Props, conn Conn) Engine {
	names := stmt.TableNames()
	sharded := snap.ShardingTables(names)
	broadcast := snap.BroadcastTablesOf(names)

	if !stmt.Hint.Empty() {
		return &hintEngine{stmt: stmt, tables: sharded, broadcast: broadcast, props: props}
	}

	switch stmt.Category {
	case stmtctx.DCL:
		return &broadcastEngine{}
	case stmtctx.DDL:
		if len(sharded) > 0 || len(broadcast) > 0 {
			return &broadcastEngine{tables: sharded, broadcast: broadcast, dataNodes: true}
		}
		if len(names) == 0 {
			return &broadcastEngine{}
		}
		return &ignoreEngine{}
	case stmtctx.DAL:
		return &broadcastEngine{}
	case stmtctx.TCL:
		return &ignoreEngine{}
	}

	if len(sharded) == 0 {
		if len(broadcast) > 0 {
			if stmt.IsWrite() {
				return &broadcastEngine{broadcast: broadcast}
			}
			return &unicastEngine{tables: broadcast, conn: conn}
		}
		return &ignoreEngine{}
	}

	var e Engine
	switch {
	case len(sharded) == 1:
		e = &standardEngine{driving: sharded[0], conds: conds, broadcast: broadcast}
	case snap.IsAllBindingTables(sharded):
		e = &standardEngine{driving: drivingTable(sharded, conds), bound: sharded, conds: conds, broadcast: broadcast}
	default:
		e = &complexEngine{tables: sharded, conds: conds, broadcast: broadcast, props: props}
	}

	if needsFederation(snap, stmt, sharded) {
		return &federatedEngine{inner: e, props: props}
	}
	return e
}

// drivingTable is the first sharding table narrowed by a condition, or the
// first sharding table when none is.
func drivingTable(tables []string, conds *condition.Set) string {
	for _, t := range tables {
		if conds.Constrains(t) {
			return t
		}
	}
	return tables[0]
}

func needsFederation(snap *rule.Snapshot, stmt *stmtctx.Context, sharded []string) bool {
	if stmt.HasDistinctAggregate {
		return true
	}
	return stmt.HasSubquery && len(sharded) > 1 && !snap.IsAllBindingTables(sharded)
}
