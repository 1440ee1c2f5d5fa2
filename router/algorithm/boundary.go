package algorithm

import (
	"math"
	"strings"

	"github.com/pg-sharding/shrouter/pkg/models/spqrerror"
)

// BoundaryRange splits the key space at sorted boundaries. With boundaries
// b0 < b1 < ... partition 0 is (-inf, b0), partition i is [b(i-1), b(i)) and
// the last partition is [bn, +inf).
type BoundaryRange struct {
	boundaries []int64
}

func NewBoundaryRange(props map[string]any, _ string) (ShardingAlgorithm, error) {
	raw, ok := propString(props, "sharding-ranges")
	if !ok {
		return nil, spqrerror.New(spqrerror.SPQR_ALGORITHM_ERROR, "property \"sharding-ranges\" is required")
	}
	var bounds []int64
	for _, p := range strings.Split(raw, ",") {
		n, err := toInt64(p)
		if err != nil {
			return nil, spqrerror.Newf(spqrerror.SPQR_ALGORITHM_ERROR, "sharding-ranges %q: %s", raw, err)
		}
		if len(bounds) > 0 && n <= bounds[len(bounds)-1] {
			return nil, spqrerror.Newf(spqrerror.SPQR_ALGORITHM_ERROR, "sharding-ranges must be strictly increasing: %q", raw)
		}
		bounds = append(bounds, n)
	}
	return &BoundaryRange{boundaries: bounds}, nil
}

func (b *BoundaryRange) Type() string {
	return "range"
}

func (b *BoundaryRange) partition(n int64) int64 {
	idx := int64(0)
	for _, bound := range b.boundaries {
		if n < bound {
			break
		}
		idx++
	}
	return idx
}

func (b *BoundaryRange) DoSharding(available []string, v PreciseValue) (string, error) {
	n, err := toInt64(v.Value)
	if err != nil {
		return "", spqrerror.Newf(spqrerror.SPQR_ALGORITHM_ERROR, "range on %s.%s: %s", v.LogicTable, v.Column, err)
	}
	return targetBySuffix(available, uint64(b.partition(n)))
}

func (b *BoundaryRange) DoRangeSharding(available []string, v RangeValue) ([]string, error) {
	first := int64(0)
	last := int64(len(b.boundaries))

	if r := v.Range.Lower; r != nil {
		n, err := toInt64(r.Value)
		if err != nil {
			return nil, spqrerror.Newf(spqrerror.SPQR_ALGORITHM_ERROR, "range on %s.%s: %s", v.LogicTable, v.Column, err)
		}
		if !r.Inclusive {
			if n == math.MaxInt64 {
				return nil, nil
			}
			n++
		}
		first = b.partition(n)
	}
	if r := v.Range.Upper; r != nil {
		n, err := toInt64(r.Value)
		if err != nil {
			return nil, spqrerror.Newf(spqrerror.SPQR_ALGORITHM_ERROR, "range on %s.%s: %s", v.LogicTable, v.Column, err)
		}
		if !r.Inclusive {
			if n == math.MinInt64 {
				return nil, nil
			}
			n--
		}
		last = b.partition(n)
	}

	var out []string
	for idx := first; idx <= last; idx++ {
		t, err := targetBySuffix(available, uint64(idx))
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}
