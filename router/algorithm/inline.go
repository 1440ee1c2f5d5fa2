package algorithm

import (
	"fmt"
	"strings"

	"github.com/Knetic/govaluate"

	"github.com/pg-sharding/shrouter/pkg/models/spqrerror"
)

var inlineFunctions = map[string]govaluate.ExpressionFunction{
	"parse": func(args ...any) (any, error) {
		s := ""
		for _, arg := range args {
			s += fmt.Sprintf("%v", arg)
		}
		return s, nil
	},
	"hashcode": func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("hashcode expects 1 argument, got %d", len(args))
		}
		return float64(hashcode(fmt.Sprintf("%v", args[0]))), nil
	},
	"mod": func(args ...any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("mod expects 2 arguments, got %d", len(args))
		}
		a, err := toInt64(args[0])
		if err != nil {
			return nil, err
		}
		b, err := toInt64(args[1])
		if err != nil {
			return nil, err
		}
		if b == 0 {
			return nil, fmt.Errorf("mod by zero")
		}
		return float64(magnitude(a % b)), nil
	},
}

func hashcode(s string) int32 {
	var hash int32
	for _, c := range s {
		hash = c + ((hash << 5) - hash)
	}
	return hash
}

// Inline evaluates algorithm-expression with the sharding column bound as a
// variable. A numeric result selects a target by suffix, a text result names
// the target or its suffix.
type Inline struct {
	expr       *govaluate.EvaluableExpression
	allowRange bool
}

func NewInline(props map[string]any, _ string) (ShardingAlgorithm, error) {
	src, ok := propString(props, "algorithm-expression")
	if !ok || strings.TrimSpace(src) == "" {
		return nil, spqrerror.New(spqrerror.SPQR_ALGORITHM_ERROR, "property \"algorithm-expression\" is required")
	}
	expr, err := govaluate.NewEvaluableExpressionWithFunctions(src, inlineFunctions)
	if err != nil {
		return nil, spqrerror.Newf(spqrerror.SPQR_ALGORITHM_ERROR, "algorithm-expression %q: %s", src, err)
	}
	return &Inline{
		expr:       expr,
		allowRange: propBool(props, "allow-range-query"),
	}, nil
}

func (i *Inline) Type() string {
	return "inline"
}

func (i *Inline) DoSharding(available []string, v PreciseValue) (string, error) {
	val := v.Value
	if n, err := toInt64(val); err == nil {
		if _, isText := val.(string); !isText {
			val = float64(n)
		}
	}
	res, err := i.expr.Evaluate(map[string]any{v.Column: val})
	if err != nil {
		return "", spqrerror.Newf(spqrerror.SPQR_ALGORITHM_ERROR, "inline on %s.%s: %s", v.LogicTable, v.Column, err)
	}

	switch r := res.(type) {
	case float64:
		return targetBySuffix(available, magnitude(int64(r)))
	case string:
		for _, t := range available {
			if t == r {
				return t, nil
			}
		}
		for _, t := range available {
			if strings.HasSuffix(t, r) {
				return t, nil
			}
		}
		return "", spqrerror.Newf(spqrerror.SPQR_NO_DATASOURCE, "inline result %q matches none of %v", r, available)
	default:
		return "", spqrerror.Newf(spqrerror.SPQR_ALGORITHM_ERROR, "inline result has unsupported type %T", res)
	}
}

func (i *Inline) DoRangeSharding(available []string, v RangeValue) ([]string, error) {
	if !i.allowRange {
		return nil, spqrerror.Newf(spqrerror.SPQR_ALGORITHM_ERROR,
			"range condition on %s.%s needs allow-range-query for inline sharding", v.LogicTable, v.Column)
	}
	return available, nil
}
