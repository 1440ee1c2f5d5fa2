package algorithm

import (
	"math"

	"github.com/pg-sharding/shrouter/pkg/models/spqrerror"
)

// Mod routes integer keys to the target with suffix key % sharding-count.
type Mod struct {
	count int64
}

func NewMod(props map[string]any, _ string) (ShardingAlgorithm, error) {
	count, err := propInt(props, "sharding-count")
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, spqrerror.Newf(spqrerror.SPQR_ALGORITHM_ERROR, "sharding-count must be positive, got %d", count)
	}
	return &Mod{count: count}, nil
}

func (m *Mod) Type() string {
	return "mod"
}

func (m *Mod) DoSharding(available []string, v PreciseValue) (string, error) {
	n, err := toInt64(v.Value)
	if err != nil {
		return "", spqrerror.Newf(spqrerror.SPQR_ALGORITHM_ERROR, "mod on %s.%s: %s", v.LogicTable, v.Column, err)
	}
	return targetBySuffix(available, m.suffix(n))
}

func (m *Mod) suffix(n int64) uint64 {
	return magnitude(n) % uint64(m.count)
}

// DoRangeSharding enumerates short closed integer ranges and returns every
// target otherwise.
func (m *Mod) DoRangeSharding(available []string, v RangeValue) ([]string, error) {
	r := v.Range
	if r.Lower == nil || r.Upper == nil {
		return available, nil
	}
	lo, lerr := toInt64(r.Lower.Value)
	hi, herr := toInt64(r.Upper.Value)
	if lerr != nil || herr != nil {
		return available, nil
	}
	if !r.Lower.Inclusive {
		if lo == math.MaxInt64 {
			return nil, nil
		}
		lo++
	}
	if !r.Upper.Inclusive {
		if hi == math.MinInt64 {
			return nil, nil
		}
		hi--
	}
	if hi < lo {
		return nil, nil
	}
	// hi >= lo, so the unsigned difference is the exact distance.
	span := uint64(hi) - uint64(lo)
	if span >= uint64(m.count)-1 {
		return available, nil
	}

	seen := map[string]struct{}{}
	var out []string
	for i := uint64(0); i <= span; i++ {
		t, err := targetBySuffix(available, m.suffix(lo+int64(i)))
		if err != nil {
			return nil, err
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}
