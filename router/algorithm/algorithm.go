package algorithm

import (
	"strings"
	"sync"

	"github.com/pg-sharding/shrouter/pkg/config"
	"github.com/pg-sharding/shrouter/pkg/models/spqrerror"
)

//go:generate mockgen -source=algorithm.go -destination=../mock/algorithm/mock_algorithm.go -package=mock

// Bound is one end of a range. Value nil means unbounded.
type Bound struct {
	Value     any
	Inclusive bool
}

type Range struct {
	Lower *Bound
	Upper *Bound
}

type PreciseValue struct {
	LogicTable string
	Column     string
	Value      any
}

type RangeValue struct {
	LogicTable string
	Column     string
	Range      Range
}

// ShardingAlgorithm maps sharding values to a subset of the available
// targets. Targets are data source names or actual table names depending on
// where the algorithm is attached.
type ShardingAlgorithm interface {
	Type() string
	DoSharding(available []string, v PreciseValue) (string, error)
	DoRangeSharding(available []string, v RangeValue) ([]string, error)
}

type Factory func(props map[string]any, columnType string) (ShardingAlgorithm, error)

var (
	mu       sync.RWMutex
	registry = map[string]Factory{
		"mod":      NewMod,
		"hash_mod": NewHashMod,
		"inline":   NewInline,
		"jump":     NewJump,
		"range":    NewBoundaryRange,
	}
)

// Register adds a custom algorithm type.
func Register(typ string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(typ)] = f
}

func New(cfg *config.AlgorithmCfg, columnType string) (ShardingAlgorithm, error) {
	if cfg == nil {
		return nil, spqrerror.New(spqrerror.SPQR_ALGORITHM_ERROR, "algorithm is not configured")
	}
	mu.RLock()
	f, ok := registry[strings.ToLower(cfg.Type)]
	mu.RUnlock()
	if !ok {
		return nil, spqrerror.Newf(spqrerror.SPQR_ALGORITHM_ERROR, "unknown sharding algorithm type %q", cfg.Type)
	}
	return f(cfg.Props, columnType)
}
