package validator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pg-sharding/shrouter/pkg/config"
	"github.com/pg-sharding/shrouter/pkg/models/spqrerror"
	"github.com/pg-sharding/shrouter/router/rfqn"
	"github.com/pg-sharding/shrouter/router/routectx"
	"github.com/pg-sharding/shrouter/router/rule"
	"github.com/pg-sharding/shrouter/router/rule/ruletest"
	"github.com/pg-sharding/shrouter/router/stmtctx"
	"github.com/pg-sharding/shrouter/router/validator"
)

func snapshot(t *testing.T) *rule.Snapshot {
	t.Helper()
	_, snap, err := ruletest.Snapshot(config.DefaultProps(), config.DefaultCacheCfg())
	require.NoError(t, err)
	return snap
}

func tables(names ...string) []stmtctx.TableRef {
	out := make([]stmtctx.TableRef, 0, len(names))
	for _, n := range names {
		out = append(out, stmtctx.TableRef{Name: rfqn.RelationFQN{RelationName: n}})
	}
	return out
}

func col(name string) stmtctx.ColumnRef {
	return stmtctx.ColumnRef{Name: name}
}

func route(units ...string) *routectx.Context {
	rc := routectx.New("standard")
	for _, ds := range units {
		rc.Units = append(rc.Units, routectx.Unit{DataSource: routectx.Mapper{Logic: ds, Actual: ds}})
	}
	return rc
}

func TestPreValidate(t *testing.T) {
	snap := snapshot(t)
	props := config.DefaultProps()

	for _, tt := range []struct {
		name   string
		stmt   *stmtctx.Context
		params []any
		code   string
	}{
		{
			name: "update of sharding column",
			stmt: &stmtctx.Context{
				Category:    stmtctx.Update,
				Tables:      tables("t_kv"),
				Assignments: []stmtctx.Assignment{{Column: col("id"), Value: stmtctx.Literal{Value: 5}}},
				Where:       &stmtctx.Compare{Column: col("id"), Op: stmtctx.OpEq, Value: stmtctx.Literal{Value: 1}},
			},
			code: spqrerror.SPQR_UNSUPPORTED_STATEMENT,
		},
		{
			name: "update of sharding column to the same value",
			stmt: &stmtctx.Context{
				Category:    stmtctx.Update,
				Tables:      tables("t_kv"),
				Assignments: []stmtctx.Assignment{{Column: col("id"), Value: stmtctx.Param{Index: 0}}},
				Where: &stmtctx.And{Args: []stmtctx.Predicate{
					&stmtctx.Compare{Column: col("v"), Op: stmtctx.OpEq, Value: stmtctx.Literal{Value: "x"}},
					&stmtctx.Compare{Column: col("id"), Op: stmtctx.OpEq, Value: stmtctx.Literal{Value: 5}},
				}},
			},
			params: []any{int64(5)},
		},
		{
			name: "update of plain column",
			stmt: &stmtctx.Context{
				Category:    stmtctx.Update,
				Tables:      tables("t_kv"),
				Assignments: []stmtctx.Assignment{{Column: col("v"), Value: stmtctx.Literal{Value: "y"}}},
			},
		},
		{
			name: "delete over non-binding tables",
			stmt: &stmtctx.Context{Category: stmtctx.Delete, Tables: tables("t_order", "t_user")},
			code: spqrerror.SPQR_UNSUPPORTED_STATEMENT,
		},
		{
			name: "delete over binding tables",
			stmt: &stmtctx.Context{Category: stmtctx.Delete, Tables: tables("t_order", "t_order_item")},
		},
		{
			name: "on duplicate key update of sharding column",
			stmt: &stmtctx.Context{
				Category:          stmtctx.Insert,
				Tables:            tables("t_kv"),
				OnDuplicateUpdate: []stmtctx.Assignment{{Column: col("id"), Value: stmtctx.Literal{Value: 2}}},
			},
			code: spqrerror.SPQR_UNSUPPORTED_STATEMENT,
		},
		{
			name: "insert select across non-binding tables",
			stmt: &stmtctx.Context{Category: stmtctx.Insert, InsertSelect: true, Tables: tables("t_kv", "t_user")},
			code: spqrerror.SPQR_UNSUPPORTED_STATEMENT,
		},
		{
			name: "rename of sharding table",
			stmt: &stmtctx.Context{
				Category: stmtctx.DDL,
				Tables:   tables("t_kv"),
				DDL:      &stmtctx.DDLInfo{Kind: stmtctx.DDLRenameTable, RenameTo: "t_kv2"},
			},
			code: spqrerror.SPQR_UNSUPPORTED_STATEMENT,
		},
		{
			name: "drop of sharding table with others",
			stmt: &stmtctx.Context{
				Category: stmtctx.DDL,
				Tables:   tables("t_kv", "t_plain"),
				DDL:      &stmtctx.DDLInfo{Kind: stmtctx.DDLDropTable},
			},
			code: spqrerror.SPQR_UNSUPPORTED_STATEMENT,
		},
		{
			name: "select is always fine",
			stmt: &stmtctx.Context{Category: stmtctx.Select, Tables: tables("t_order", "t_user")},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.PreValidate(snap, tt.stmt, tt.params, props)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, spqrerror.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestPostValidate(t *testing.T) {
	snap := snapshot(t)

	for _, tt := range []struct {
		name  string
		stmt  *stmtctx.Context
		hint  *stmtctx.Hint
		props config.Props
		rc    *routectx.Context
		fail  bool
	}{
		{
			name: "insert row without sharding value on many units",
			stmt: &stmtctx.Context{
				Category:      stmtctx.Insert,
				Tables:        tables("t_kv"),
				InsertColumns: []string{"v"},
				InsertRows:    [][]stmtctx.Expr{{stmtctx.Literal{Value: "x"}}},
			},
			rc:   route("ds_0", "ds_1"),
			fail: true,
		},
		{
			name: "insert rows each pinned",
			stmt: &stmtctx.Context{
				Category:      stmtctx.Insert,
				Tables:        tables("t_kv"),
				InsertColumns: []string{"id", "v"},
				InsertRows: [][]stmtctx.Expr{
					{stmtctx.Literal{Value: 1}, stmtctx.Literal{Value: "x"}},
					{stmtctx.Literal{Value: 2}, stmtctx.Literal{Value: "y"}},
				},
			},
			rc: route("ds_0", "ds_1"),
		},
		{
			name: "insert select over two data sources",
			stmt: &stmtctx.Context{Category: stmtctx.Insert, InsertSelect: true, Tables: tables("t_kv")},
			rc:   route("ds_0", "ds_1"),
			fail: true,
		},
		{
			name: "delete with limit over two data sources",
			stmt: &stmtctx.Context{Category: stmtctx.Delete, HasLimit: true, Tables: tables("t_kv")},
			rc:   route("ds_0", "ds_1"),
			fail: true,
		},
		{
			name: "update with limit on one data source",
			stmt: &stmtctx.Context{Category: stmtctx.Update, HasLimit: true, Tables: tables("t_kv")},
			rc:   route("ds_1"),
		},
		{
			name:  "cross shard cursor",
			stmt:  &stmtctx.Context{Category: stmtctx.Cursor, Tables: tables("t_kv")},
			props: config.Props{AllowCrossShardCursor: false},
			rc:    route("ds_0", "ds_1"),
			fail:  true,
		},
		{
			name:  "cross shard cursor allowed",
			stmt:  &stmtctx.Context{Category: stmtctx.Select, Cursor: true, Tables: tables("t_kv")},
			props: config.Props{AllowCrossShardCursor: true},
			rc:    route("ds_0", "ds_1"),
		},
		{
			name: "hint mismatch on write",
			stmt: &stmtctx.Context{Category: stmtctx.Delete, Tables: tables("t_kv")},
			hint: &stmtctx.Hint{DataSource: "ds_0"},
			rc:   route("ds_1"),
			fail: true,
		},
		{
			name: "hint mismatch on read",
			stmt: &stmtctx.Context{Category: stmtctx.Select, Tables: tables("t_kv")},
			hint: &stmtctx.Hint{DataSource: "ds_0"},
			rc:   route("ds_1"),
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.PostValidate(snap, tt.stmt, tt.hint, nil, tt.props, tt.rc)
			if !tt.fail {
				assert.NoError(t, err)
				return
			}
			assert.True(t, spqrerror.HasCode(err, spqrerror.SPQR_CROSS_SHARD_QUERY), "got %v", err)
		})
	}
}

func TestIgnoredRouteIsNotChecked(t *testing.T) {
	rc := route("ds_0", "ds_1")
	rc.Ignored = true
	stmt := &stmtctx.Context{Category: stmtctx.Delete, HasLimit: true}
	assert.NoError(t, validator.PostValidate(snapshot(t), stmt, nil, nil, config.Props{}, rc))
}
