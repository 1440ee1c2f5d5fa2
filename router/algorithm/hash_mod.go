package algorithm

import (
	"github.com/pg-sharding/shrouter/pkg/models/hashfunction"
	"github.com/pg-sharding/shrouter/pkg/models/spqrerror"
)

// HashMod hashes the key with a configured hash function before taking mod.
type HashMod struct {
	count      int64
	hf         hashfunction.HashFunctionType
	columnType string
}

func NewHashMod(props map[string]any, columnType string) (ShardingAlgorithm, error) {
	count, err := propInt(props, "sharding-count")
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, spqrerror.Newf(spqrerror.SPQR_ALGORITHM_ERROR, "sharding-count must be positive, got %d", count)
	}
	name, ok := propString(props, "hash-function")
	if !ok {
		name = "murmur"
	}
	hf, err := hashfunction.HashFunctionByName(name)
	if err != nil {
		return nil, spqrerror.New(spqrerror.SPQR_ALGORITHM_ERROR, err.Error())
	}
	return &HashMod{count: count, hf: hf, columnType: columnType}, nil
}

func (h *HashMod) Type() string {
	return "hash_mod"
}

func (h *HashMod) DoSharding(available []string, v PreciseValue) (string, error) {
	k, err := hashfunction.HashUint64(v.Value, h.columnType, h.hf)
	if err != nil {
		return "", spqrerror.Newf(spqrerror.SPQR_ALGORITHM_ERROR, "hash_mod on %s.%s: %s", v.LogicTable, v.Column, err)
	}
	return targetBySuffix(available, k%uint64(h.count))
}

func (h *HashMod) DoRangeSharding(available []string, _ RangeValue) ([]string, error) {
	return available, nil
}
