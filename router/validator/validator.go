package validator

import (
	"golang.org/x/exp/slices"

	"github.com/pg-sharding/shrouter/pkg/config"
	"github.com/pg-sharding/shrouter/pkg/models/spqrerror"
	"github.com/pg-sharding/shrouter/router/routectx"
	"github.com/pg-sharding/shrouter/router/rule"
	"github.com/pg-sharding/shrouter/router/stmtctx"
)

// Validator checks a statement before routing and its route afterwards.
// Validators do no I/O.
type Validator interface {
	PreValidate(snap *rule.Snapshot, stmt *stmtctx.Context, params []any, props config.Props) error
	PostValidate(snap *rule.Snapshot, stmt *stmtctx.Context, hint *stmtctx.Hint, params []any, props config.Props, rc *routectx.Context) error
}

var registry = map[stmtctx.Category]Validator{
	stmtctx.Select: selectValidator{},
	stmtctx.Cursor: selectValidator{},
	stmtctx.Insert: insertValidator{},
	stmtctx.Update: updateValidator{},
	stmtctx.Delete: deleteValidator{},
	stmtctx.DDL:    ddlValidator{},
}

type nopValidator struct{}

func (nopValidator) PreValidate(*rule.Snapshot, *stmtctx.Context, []any, config.Props) error {
	return nil
}

func (nopValidator) PostValidate(*rule.Snapshot, *stmtctx.Context, *stmtctx.Hint, []any, config.Props, *routectx.Context) error {
	return nil
}

// For returns the validator registered for category c.
func For(c stmtctx.Category) Validator {
	if v, ok := registry[c]; ok {
		return v
	}
	return nopValidator{}
}

func PreValidate(snap *rule.Snapshot, stmt *stmtctx.Context, params []any, props config.Props) error {
	return For(stmt.Category).PreValidate(snap, stmt, params, props)
}

// PostValidate checks the computed route. Category specific checks run
// first, then the checks shared by every category.
func PostValidate(snap *rule.Snapshot, stmt *stmtctx.Context, hint *stmtctx.Hint, params []any, props config.Props, rc *routectx.Context) error {
	if rc == nil || rc.Ignored {
		return nil
	}
	if err := For(stmt.Category).PostValidate(snap, stmt, hint, params, props, rc); err != nil {
		return err
	}
	if stmt.IsCursor() && !props.AllowCrossShardCursor && len(rc.DataSourceNames()) > 1 {
		return crossShard("cursor spans data sources %v", rc.DataSourceNames())
	}
	if stmt.IsWrite() && !hint.Empty() && hint.DataSource != "" && !slices.Contains(rc.DataSourceNames(), hint.DataSource) {
		return crossShard("hinted data source %q does not match computed route %v", hint.DataSource, rc.DataSourceNames())
	}
	return nil
}

func unsupported(format string, a ...any) error {
	return spqrerror.Newf(spqrerror.SPQR_UNSUPPORTED_STATEMENT, format, a...)
}

func crossShard(format string, a ...any) error {
	return spqrerror.Newf(spqrerror.SPQR_CROSS_SHARD_QUERY, format, a...)
}

// checkSingleShardingGroup rejects statements over several sharding tables
// unless they all share one binding group.
func checkSingleShardingGroup(snap *rule.Snapshot, stmt *stmtctx.Context) error {
	sharded := snap.ShardingTables(stmt.TableNames())
	if len(sharded) > 1 && !snap.IsAllBindingTables(sharded) {
		return unsupported("%s over non-binding sharding tables %v", stmt.Category, sharded)
	}
	return nil
}
