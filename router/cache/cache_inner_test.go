package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pg-sharding/shrouter/pkg/config"
	"github.com/pg-sharding/shrouter/router/rfqn"
	"github.com/pg-sharding/shrouter/router/routectx"
	"github.com/pg-sharding/shrouter/router/rule/ruletest"
	"github.com/pg-sharding/shrouter/router/stmtctx"
)

func innerStmt() *stmtctx.Context {
	return &stmtctx.Context{
		Category: stmtctx.Select,
		Tables:   []stmtctx.TableRef{{Name: rfqn.RelationFQN{RelationName: "t_kv"}}},
		Where: &stmtctx.Compare{
			Column: stmtctx.ColumnRef{Name: "id"},
			Op:     stmtctx.OpEq,
			Value:  stmtctx.Param{Index: 0},
		},
	}
}

func TestCorruptEntryIsBypassed(t *testing.T) {
	_, snap, err := ruletest.Snapshot(config.DefaultProps(), config.CacheCfg{Enabled: true, Size: 4})
	require.NoError(t, err)
	c, err := NewRouteCache(4)
	require.NoError(t, err)
	require.True(t, c.observe(snap))

	key, ok := fingerprint(snap, innerStmt(), []any{1})
	require.True(t, ok)
	c.lru.Add(key, "not an entry")

	calls := 0
	res, err := c.Load(func() (*routectx.Context, error) {
		calls++
		return routectx.New("standard"), nil
	}, innerStmt(), []any{1}, snap)
	require.NoError(t, err)
	assert.False(t, res.Hit)
	assert.Equal(t, 1, calls)

	v, ok := c.lru.Get(key)
	require.True(t, ok)
	assert.IsType(t, &entry{}, v)
}

func TestEntriesExpire(t *testing.T) {
	_, snap, err := ruletest.Snapshot(config.DefaultProps(), config.CacheCfg{Enabled: true, Size: 4, TTL: "1m"})
	require.NoError(t, err)
	require.Equal(t, time.Minute, snap.CacheTTL)

	c, err := NewRouteCache(4)
	require.NoError(t, err)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	calls := 0
	compute := func() (*routectx.Context, error) {
		calls++
		return routectx.New("standard"), nil
	}

	_, err = c.Load(compute, innerStmt(), []any{1}, snap)
	require.NoError(t, err)
	now = now.Add(30 * time.Second)
	res, err := c.Load(compute, innerStmt(), []any{1}, snap)
	require.NoError(t, err)
	assert.True(t, res.Hit)

	now = now.Add(time.Minute)
	res, err = c.Load(compute, innerStmt(), []any{1}, snap)
	require.NoError(t, err)
	assert.False(t, res.Hit)
	assert.Equal(t, 2, calls)
}

func TestFingerprintIgnoresNonShardingValues(t *testing.T) {
	_, snap, err := ruletest.Snapshot(config.DefaultProps(), config.DefaultCacheCfg())
	require.NoError(t, err)

	stmt := &stmtctx.Context{
		Category:    stmtctx.Update,
		Tables:      []stmtctx.TableRef{{Name: rfqn.RelationFQN{RelationName: "t_kv"}}},
		Assignments: []stmtctx.Assignment{{Column: stmtctx.ColumnRef{Name: "v"}, Value: stmtctx.Param{Index: 0}}},
		Where:       &stmtctx.Compare{Column: stmtctx.ColumnRef{Name: "id"}, Op: stmtctx.OpEq, Value: stmtctx.Param{Index: 1}},
	}
	a, ok := fingerprint(snap, stmt, []any{"a", 1})
	require.True(t, ok)
	b, ok := fingerprint(snap, stmt, []any{"b", 1})
	require.True(t, ok)
	c, ok := fingerprint(snap, stmt, []any{"a", 2})
	require.True(t, ok)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
