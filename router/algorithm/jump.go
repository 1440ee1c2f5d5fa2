package algorithm

import (
	jump "github.com/lithammer/go-jump-consistent-hash"

	"github.com/pg-sharding/shrouter/pkg/models/spqrerror"
)

// Jump is consistent hashing over sharding-count buckets.
type Jump struct {
	buckets int32
}

func NewJump(props map[string]any, _ string) (ShardingAlgorithm, error) {
	count, err := propInt(props, "sharding-count")
	if err != nil {
		return nil, err
	}
	if count <= 0 || count > 1<<31-1 {
		return nil, spqrerror.Newf(spqrerror.SPQR_ALGORITHM_ERROR, "sharding-count out of range: %d", count)
	}
	return &Jump{buckets: int32(count)}, nil
}

func (j *Jump) Type() string {
	return "jump"
}

func (j *Jump) DoSharding(available []string, v PreciseValue) (string, error) {
	var idx int32
	switch val := v.Value.(type) {
	case string:
		idx = jump.HashString(val, j.buckets, jump.CRC64)
	case []byte:
		idx = jump.HashString(string(val), j.buckets, jump.CRC64)
	default:
		n, err := toInt64(val)
		if err != nil {
			return "", spqrerror.Newf(spqrerror.SPQR_ALGORITHM_ERROR, "jump on %s.%s: %s", v.LogicTable, v.Column, err)
		}
		idx = jump.Hash(uint64(n), j.buckets)
	}
	return targetBySuffix(available, uint64(idx))
}

func (j *Jump) DoRangeSharding(available []string, _ RangeValue) ([]string, error) {
	return available, nil
}
