package algorithm_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pg-sharding/shrouter/pkg/config"
	"github.com/pg-sharding/shrouter/pkg/models/spqrerror"
	"github.com/pg-sharding/shrouter/router/algorithm"
)

var dataSources = []string{"ds_0", "ds_1"}
var tables = []string{"t_order_0", "t_order_1", "t_order_2", "t_order_3"}

func newAlg(t *testing.T, typ string, props map[string]any) algorithm.ShardingAlgorithm {
	t.Helper()
	alg, err := algorithm.New(&config.AlgorithmCfg{Type: typ, Props: props}, "")
	require.NoError(t, err)
	return alg
}

func TestModDoSharding(t *testing.T) {
	assert := assert.New(t)
	alg := newAlg(t, "mod", map[string]any{"sharding-count": 2})

	for _, tt := range []struct {
		value any
		exp   string
	}{
		{1, "ds_1"},
		{int64(1024), "ds_0"},
		{"7", "ds_1"},
		{-3, "ds_1"},
	} {
		got, err := alg.DoSharding(dataSources, algorithm.PreciseValue{LogicTable: "t_order", Column: "order_id", Value: tt.value})
		assert.NoError(err)
		assert.Equal(tt.exp, got, "%v", tt.value)
	}

	_, err := alg.DoSharding(dataSources, algorithm.PreciseValue{Value: "abc"})
	assert.True(spqrerror.HasCode(err, spqrerror.SPQR_ALGORITHM_ERROR))

	_, err = newAlg(t, "mod", map[string]any{"sharding-count": 3}).
		DoSharding(dataSources, algorithm.PreciseValue{Value: 2})
	assert.True(spqrerror.HasCode(err, spqrerror.SPQR_NO_DATASOURCE))
}

func TestModDoRangeSharding(t *testing.T) {
	assert := assert.New(t)
	alg := newAlg(t, "mod", map[string]any{"sharding-count": 4})

	got, err := alg.DoRangeSharding(tables, algorithm.RangeValue{Range: algorithm.Range{
		Lower: &algorithm.Bound{Value: 5, Inclusive: true},
		Upper: &algorithm.Bound{Value: 7, Inclusive: false},
	}})
	assert.NoError(err)
	assert.Equal([]string{"t_order_1", "t_order_2"}, got)

	got, err = alg.DoRangeSharding(tables, algorithm.RangeValue{Range: algorithm.Range{
		Lower: &algorithm.Bound{Value: 0, Inclusive: true},
	}})
	assert.NoError(err)
	assert.Equal(tables, got)

	got, err = alg.DoRangeSharding(tables, algorithm.RangeValue{Range: algorithm.Range{
		Lower: &algorithm.Bound{Value: 5, Inclusive: false},
		Upper: &algorithm.Bound{Value: 5, Inclusive: true},
	}})
	assert.NoError(err)
	assert.Empty(got)
}

func TestModExtremeValues(t *testing.T) {
	assert := assert.New(t)

	got, err := newAlg(t, "mod", map[string]any{"sharding-count": 3}).
		DoSharding(tables, algorithm.PreciseValue{Value: int64(math.MinInt64)})
	assert.NoError(err)
	assert.Equal("t_order_2", got)

	got, err = newAlg(t, "mod", map[string]any{"sharding-count": 4}).
		DoSharding(tables, algorithm.PreciseValue{Value: int64(math.MaxInt64)})
	assert.NoError(err)
	assert.Equal("t_order_3", got)
}

func TestModDoRangeShardingWideRanges(t *testing.T) {
	alg := newAlg(t, "mod", map[string]any{"sharding-count": 2})
	done := make(chan struct{})

	go func() {
		defer close(done)
		for _, r := range []algorithm.Range{
			{
				Lower: &algorithm.Bound{Value: int64(0), Inclusive: true},
				Upper: &algorithm.Bound{Value: int64(math.MaxInt64), Inclusive: true},
			},
			{
				Lower: &algorithm.Bound{Value: int64(math.MinInt64), Inclusive: true},
				Upper: &algorithm.Bound{Value: int64(math.MaxInt64), Inclusive: true},
			},
		} {
			got, err := alg.DoRangeSharding(dataSources, algorithm.RangeValue{Range: r})
			assert.NoError(t, err)
			assert.Equal(t, dataSources, got)
		}
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("range sharding over a wide range did not return")
	}
}

func TestModDoRangeShardingBounds(t *testing.T) {
	assert := assert.New(t)
	alg := newAlg(t, "mod", map[string]any{"sharding-count": 4})

	got, err := alg.DoRangeSharding(tables, algorithm.RangeValue{Range: algorithm.Range{
		Lower: &algorithm.Bound{Value: int64(math.MaxInt64 - 1), Inclusive: true},
		Upper: &algorithm.Bound{Value: int64(math.MaxInt64), Inclusive: true},
	}})
	assert.NoError(err)
	assert.Equal([]string{"t_order_2", "t_order_3"}, got)

	got, err = alg.DoRangeSharding(tables, algorithm.RangeValue{Range: algorithm.Range{
		Lower: &algorithm.Bound{Value: int64(math.MaxInt64), Inclusive: false},
		Upper: &algorithm.Bound{Value: int64(math.MaxInt64), Inclusive: true},
	}})
	assert.NoError(err)
	assert.Empty(got)

	got, err = alg.DoRangeSharding(tables, algorithm.RangeValue{Range: algorithm.Range{
		Lower: &algorithm.Bound{Value: int64(math.MinInt64), Inclusive: true},
		Upper: &algorithm.Bound{Value: int64(math.MinInt64), Inclusive: false},
	}})
	assert.NoError(err)
	assert.Empty(got)
}

func TestHashModIsDeterministic(t *testing.T) {
	assert := assert.New(t)
	alg := newAlg(t, "hash_mod", map[string]any{"sharding-count": 4, "hash-function": "city"})

	a, err := alg.DoSharding(tables, algorithm.PreciseValue{Value: 42})
	assert.NoError(err)
	b, err := alg.DoSharding(tables, algorithm.PreciseValue{Value: int64(42)})
	assert.NoError(err)
	assert.Equal(a, b)
	assert.Contains(tables, a)

	s, err := alg.DoSharding(tables, algorithm.PreciseValue{Value: "user-42"})
	assert.NoError(err)
	assert.Contains(tables, s)
}

func TestJump(t *testing.T) {
	assert := assert.New(t)
	alg := newAlg(t, "jump", map[string]any{"sharding-count": 4})

	seen := map[string]struct{}{}
	for i := 0; i < 256; i++ {
		got, err := alg.DoSharding(tables, algorithm.PreciseValue{Value: i})
		assert.NoError(err)
		again, _ := alg.DoSharding(tables, algorithm.PreciseValue{Value: i})
		assert.Equal(got, again)
		seen[got] = struct{}{}
	}
	assert.Len(seen, 4)

	got, err := alg.DoSharding(tables, algorithm.PreciseValue{Value: "key"})
	assert.NoError(err)
	assert.Contains(tables, got)
}

func TestInline(t *testing.T) {
	assert := assert.New(t)

	alg := newAlg(t, "inline", map[string]any{"algorithm-expression": "mod(order_id, 4)"})
	got, err := alg.DoSharding(tables, algorithm.PreciseValue{Column: "order_id", Value: 6})
	assert.NoError(err)
	assert.Equal("t_order_2", got)

	alg = newAlg(t, "inline", map[string]any{"algorithm-expression": "'ds_' + parse(user_id % 2)"})
	got, err = alg.DoSharding(dataSources, algorithm.PreciseValue{Column: "user_id", Value: 3})
	assert.NoError(err)
	assert.Equal("ds_1", got)

	_, err = alg.DoRangeSharding(tables, algorithm.RangeValue{Column: "order_id"})
	assert.True(spqrerror.HasCode(err, spqrerror.SPQR_ALGORITHM_ERROR))

	alg = newAlg(t, "inline", map[string]any{"algorithm-expression": "mod(order_id, 4)", "allow-range-query": true})
	got2, err := alg.DoRangeSharding(tables, algorithm.RangeValue{Column: "order_id"})
	assert.NoError(err)
	assert.Equal(tables, got2)
}

func TestBoundaryRange(t *testing.T) {
	assert := assert.New(t)
	alg := newAlg(t, "range", map[string]any{"sharding-ranges": "100,200,300"})

	for _, tt := range []struct {
		value int
		exp   string
	}{
		{-5, "t_order_0"},
		{100, "t_order_1"},
		{299, "t_order_2"},
		{1000, "t_order_3"},
	} {
		got, err := alg.DoSharding(tables, algorithm.PreciseValue{Value: tt.value})
		assert.NoError(err)
		assert.Equal(tt.exp, got)
	}

	got, err := alg.DoRangeSharding(tables, algorithm.RangeValue{Range: algorithm.Range{
		Lower: &algorithm.Bound{Value: 150, Inclusive: true},
		Upper: &algorithm.Bound{Value: 200, Inclusive: false},
	}})
	assert.NoError(err)
	assert.Equal([]string{"t_order_1"}, got)

	got, err = alg.DoRangeSharding(tables, algorithm.RangeValue{Range: algorithm.Range{
		Lower: &algorithm.Bound{Value: 250, Inclusive: true},
	}})
	assert.NoError(err)
	assert.Equal([]string{"t_order_2", "t_order_3"}, got)
}

func TestNewErrors(t *testing.T) {
	for _, cfg := range []*config.AlgorithmCfg{
		nil,
		{Type: "nope"},
		{Type: "mod"},
		{Type: "mod", Props: map[string]any{"sharding-count": 0}},
		{Type: "hash_mod", Props: map[string]any{"sharding-count": 2, "hash-function": "sha"}},
		{Type: "inline", Props: map[string]any{"algorithm-expression": "(("}},
		{Type: "range", Props: map[string]any{"sharding-ranges": "10,5"}},
	} {
		_, err := algorithm.New(cfg, "")
		assert.True(t, spqrerror.HasCode(err, spqrerror.SPQR_ALGORITHM_ERROR), "%+v", cfg)
	}
}

func TestCompareValues(t *testing.T) {
	assert.Equal(t, -1, algorithm.CompareValues(2, int64(10)))
	assert.Equal(t, 0, algorithm.CompareValues("7", 7))
	assert.Equal(t, 1, algorithm.CompareValues("b", "a"))
}
