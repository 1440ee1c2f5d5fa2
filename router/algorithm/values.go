package algorithm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pg-sharding/shrouter/pkg/models/spqrerror"
)

func propString(props map[string]any, key string) (string, bool) {
	v, ok := props[key]
	if !ok || v == nil {
		return "", false
	}
	return fmt.Sprintf("%v", v), true
}

func propInt(props map[string]any, key string) (int64, error) {
	v, ok := props[key]
	if !ok {
		return 0, spqrerror.Newf(spqrerror.SPQR_ALGORITHM_ERROR, "property %q is required", key)
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, spqrerror.Newf(spqrerror.SPQR_ALGORITHM_ERROR, "property %q: %s", key, err)
	}
	return n, nil
}

func propBool(props map[string]any, key string) bool {
	switch v := props[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int64(n), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	}
	return 0, fmt.Errorf("unsupported value type %T", v)
}

// CompareValues orders integers numerically and everything else as text.
func CompareValues(a, b any) int {
	ai, aerr := toInt64(a)
	bi, berr := toInt64(b)
	if aerr == nil && berr == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func numericSuffix(name string) (uint64, bool) {
	i := len(name)
	for i > 0 && name[i-1] >= '0' && name[i-1] <= '9' {
		i--
	}
	if i == len(name) {
		return 0, false
	}
	n, err := strconv.ParseUint(name[i:], 10, 64)
	return n, err == nil
}

// targetBySuffix picks the available target whose numeric suffix equals idx.
func targetBySuffix(available []string, idx uint64) (string, error) {
	for _, t := range available {
		if n, ok := numericSuffix(t); ok && n == idx {
			return t, nil
		}
	}
	return "", spqrerror.Newf(spqrerror.SPQR_NO_DATASOURCE, "no target with suffix %d among %v", idx, available)
}

// magnitude is |n|, exact for math.MinInt64.
func magnitude(n int64) uint64 {
	if n < 0 {
		return uint64(-(n + 1)) + 1
	}
	return uint64(n)
}
