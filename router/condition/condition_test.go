package condition_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pg-sharding/shrouter/pkg/config"
	"github.com/pg-sharding/shrouter/pkg/models/spqrerror"
	"github.com/pg-sharding/shrouter/router/algorithm"
	"github.com/pg-sharding/shrouter/router/condition"
	"github.com/pg-sharding/shrouter/router/rfqn"
	"github.com/pg-sharding/shrouter/router/rule"
	"github.com/pg-sharding/shrouter/router/rule/ruletest"
	"github.com/pg-sharding/shrouter/router/stmtctx"
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

func col(q, name string) stmtctx.ColumnRef {
	return stmtctx.ColumnRef{Qualifier: q, Name: name}
}

func eq(c stmtctx.ColumnRef, e stmtctx.Expr) *stmtctx.Compare {
	return &stmtctx.Compare{Column: c, Op: stmtctx.OpEq, Value: e}
}

func lit(v any) stmtctx.Literal {
	return stmtctx.Literal{Value: v}
}

func TestExtractEqualityWithParam(t *testing.T) {
	assert := assert.New(t)

	stmt := &stmtctx.Context{
		Category: stmtctx.Select,
		Tables:   tables("t_kv"),
		Where:    eq(col("", "id"), stmtctx.Param{Index: 0}),
	}
	set, err := condition.Extract(snapshot(t), stmt, []any{7})
	require.NoError(t, err)

	require.Len(t, set.Conditions, 1)
	assert.Equal([]condition.ShardingValue{
		{Table: "t_kv", Column: "id", Op: condition.Equal, Values: []any{int64(7)}},
	}, set.Conditions[0].Values)
	assert.False(set.IsMergeNeeded())
}

func TestExtractParamErrors(t *testing.T) {
	snap := snapshot(t)
	stmt := &stmtctx.Context{
		Category: stmtctx.Select,
		Tables:   tables("t_kv"),
		Where:    eq(col("", "id"), stmtctx.Param{Index: 1}),
	}

	for _, params := range [][]any{
		{7},
		{7, nil},
		{7, struct{}{}},
	} {
		_, err := condition.Extract(snap, stmt, params)
		assert.True(t, spqrerror.HasCode(err, spqrerror.SPQR_CONDITION_RESOLUTION), "%v", params)
	}
}

type money struct {
	cents int64
}

func TestExtractIgnoresOperandsOfPlainColumns(t *testing.T) {
	snap := snapshot(t)
	stmt := &stmtctx.Context{
		Category: stmtctx.Select,
		Tables:   tables("t_kv"),
		Where: &stmtctx.And{Args: []stmtctx.Predicate{
			eq(col("", "id"), stmtctx.Param{Index: 0}),
			eq(col("", "v"), stmtctx.Param{Index: 1}),
			&stmtctx.In{Column: col("", "v"), Values: []stmtctx.Expr{stmtctx.Param{Index: 1}}},
			&stmtctx.Between{Column: col("", "v"), Low: stmtctx.Param{Index: 1}, High: stmtctx.Param{Index: 1}},
		}},
	}

	for _, params := range [][]any{
		{7, nil},
		{7, money{cents: 5}},
	} {
		set, err := condition.Extract(snap, stmt, params)
		require.NoError(t, err, "%v", params)
		require.Len(t, set.Conditions, 1)
		assert.Equal(t, []condition.ShardingValue{
			{Table: "t_kv", Column: "id", Op: condition.Equal, Values: []any{int64(7)}},
		}, set.Conditions[0].Values)
	}
}

func TestExtractOrOfContradictionsIsAlwaysFalse(t *testing.T) {
	stmt := &stmtctx.Context{
		Category: stmtctx.Delete,
		Tables:   tables("t_kv"),
		Where: &stmtctx.Or{Args: []stmtctx.Predicate{
			&stmtctx.And{Args: []stmtctx.Predicate{eq(col("", "id"), lit(1)), eq(col("", "id"), lit(2))}},
			&stmtctx.And{Args: []stmtctx.Predicate{eq(col("", "id"), lit(3)), eq(col("", "id"), lit(4))}},
		}},
	}
	set, err := condition.Extract(snapshot(t), stmt, nil)
	require.NoError(t, err)
	assert.True(t, set.AlwaysFalse)
	assert.Empty(t, set.Conditions)
}

func TestExtractContradictionIsAlwaysFalse(t *testing.T) {
	stmt := &stmtctx.Context{
		Category: stmtctx.Delete,
		Tables:   tables("t_kv"),
		Where: &stmtctx.And{Args: []stmtctx.Predicate{
			eq(col("", "id"), lit(1)),
			eq(col("", "id"), lit(2)),
		}},
	}
	set, err := condition.Extract(snapshot(t), stmt, nil)
	require.NoError(t, err)
	assert.True(t, set.AlwaysFalse)
	assert.True(t, set.IsEmpty())
}

func TestExtractOrUnionAndRangeIntersection(t *testing.T) {
	assert := assert.New(t)

	stmt := &stmtctx.Context{
		Category: stmtctx.Select,
		Tables:   tables("t_kv"),
		Where: &stmtctx.Or{Args: []stmtctx.Predicate{
			&stmtctx.In{Column: col("", "id"), Values: []stmtctx.Expr{lit(1), lit(2), lit(1)}},
			&stmtctx.And{Args: []stmtctx.Predicate{
				&stmtctx.Compare{Column: col("", "id"), Op: stmtctx.OpGe, Value: lit(10)},
				&stmtctx.Between{Column: col("", "id"), Low: lit(5), High: lit(20)},
				&stmtctx.Opaque{},
			}},
		}},
	}
	set, err := condition.Extract(snapshot(t), stmt, nil)
	require.NoError(t, err)
	require.Len(t, set.Conditions, 2)

	assert.Equal([]any{int64(1), int64(2)}, set.Conditions[0].Values[0].Values)

	r := set.Conditions[1].Values[0]
	assert.Equal(condition.Range, r.Op)
	assert.Equal(&algorithm.Range{
		Lower: &algorithm.Bound{Value: int64(10), Inclusive: true},
		Upper: &algorithm.Bound{Value: int64(20), Inclusive: true},
	}, r.Range)
}

func TestExtractOrWithUnconstrainedBranch(t *testing.T) {
	stmt := &stmtctx.Context{
		Category: stmtctx.Select,
		Tables:   tables("t_kv"),
		Where: &stmtctx.Or{Args: []stmtctx.Predicate{
			eq(col("", "id"), lit(1)),
			eq(col("", "v"), lit("x")),
		}},
	}
	set, err := condition.Extract(snapshot(t), stmt, nil)
	require.NoError(t, err)
	assert.True(t, set.IsEmpty())
	assert.False(t, set.AlwaysFalse)
}

func TestExtractBranchLimit(t *testing.T) {
	props := config.DefaultProps()
	props.MaxConditionBranches = 3
	_, snap, err := ruletest.Snapshot(props, config.DefaultCacheCfg())
	require.NoError(t, err)

	var args []stmtctx.Predicate
	for i := 0; i < 4; i++ {
		args = append(args, eq(col("", "id"), lit(i)))
	}
	set, err := condition.Extract(snap, &stmtctx.Context{
		Category: stmtctx.Select,
		Tables:   tables("t_kv"),
		Where:    &stmtctx.Or{Args: args},
	}, nil)
	require.NoError(t, err)
	assert.True(t, set.IsEmpty())
}

func TestExtractJoinPropagation(t *testing.T) {
	assert := assert.New(t)

	stmt := &stmtctx.Context{
		Category: stmtctx.Select,
		Tables: []stmtctx.TableRef{
			{Name: rfqn.RelationFQN{RelationName: "t_order"}, Alias: "o"},
			{Name: rfqn.RelationFQN{RelationName: "t_user"}, Alias: "u"},
		},
		Joins: []stmtctx.JoinCondition{{Left: col("o", "user_id"), Right: col("u", "user_id")}},
		Where: eq(col("u", "user_id"), lit(3)),
	}
	set, err := condition.Extract(snapshot(t), stmt, nil)
	require.NoError(t, err)
	require.Len(t, set.Conditions, 1)

	v, ok := set.Conditions[0].Value("t_order", "user_id")
	require.True(t, ok)
	assert.Equal([]any{int64(3)}, v.Values)
}

func TestExtractUnqualifiedColumnBindsEveryTable(t *testing.T) {
	stmt := &stmtctx.Context{
		Category: stmtctx.Select,
		Tables:   tables("t_order", "t_user", "t_config"),
		Where:    eq(col("", "user_id"), lit(4)),
	}
	set, err := condition.Extract(snapshot(t), stmt, nil)
	require.NoError(t, err)
	require.Len(t, set.Conditions, 1)
	assert.Len(t, set.Conditions[0].Values, 2)
	assert.True(t, set.Constrains("t_order"))
	assert.True(t, set.Constrains("t_user"))
}

func TestExtractNonDMLIsEmpty(t *testing.T) {
	set, err := condition.Extract(snapshot(t), &stmtctx.Context{Category: stmtctx.DDL, Tables: tables("t_kv")}, nil)
	require.NoError(t, err)
	assert.True(t, set.IsEmpty())
}

func TestInsertMerge(t *testing.T) {
	assert := assert.New(t)

	stmt := &stmtctx.Context{
		Category:      stmtctx.Insert,
		Tables:        tables("t_kv"),
		InsertColumns: []string{"id", "v"},
		InsertRows: [][]stmtctx.Expr{
			{lit(1), lit("a")},
			{stmtctx.Param{Index: 0}, lit("b")},
			{lit(1), lit("c")},
		},
	}
	set, err := condition.Extract(snapshot(t), stmt, []any{int32(1024)})
	require.NoError(t, err)
	require.Len(t, set.Conditions, 3)
	assert.True(set.IsMergeNeeded())

	merged := set.Merge()
	require.Len(t, merged.Conditions, 1)
	assert.Equal([]any{int64(1), int64(1024)}, merged.Conditions[0].Values[0].Values)
	assert.Len(set.Conditions, 3)
}

func TestInsertMergeKeepsMultiColumnRows(t *testing.T) {
	assert := assert.New(t)

	stmt := &stmtctx.Context{
		Category: stmtctx.Insert,
		Tables:   tables("t_order"),
		InsertRows: [][]stmtctx.Expr{
			{lit(1), lit(10), lit("new")},
			{lit(2), lit(11), lit("new")},
			{lit(1), lit(10), lit("old")},
			{stmtctx.Computed{}, lit(10), lit("new")},
		},
	}
	set, err := condition.Extract(snapshot(t), stmt, nil)
	require.NoError(t, err)

	merged := set.Merge()
	require.Len(t, merged.Conditions, 3)
	assert.Len(merged.Conditions[0].Values, 2)
	assert.Len(merged.Conditions[1].Values, 2)
	assert.Len(merged.Conditions[2].Values, 1)
	assert.Equal(3, merged.Conditions[2].Index)
}
