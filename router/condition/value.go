package condition

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pg-sharding/shrouter/pkg/models/spqrerror"
	"github.com/pg-sharding/shrouter/router/algorithm"
	"github.com/pg-sharding/shrouter/router/stmtctx"
)

type Operator int

const (
	Equal = Operator(iota)
	Range
)

// ShardingValue constrains one sharding column of one logic table. Equal
// with several values means IN.
type ShardingValue struct {
	Table  string
	Column string
	Op     Operator
	Values []any
	Range  *algorithm.Range
}

func (v *ShardingValue) key() string {
	return v.Table + "." + v.Column
}

func (v *ShardingValue) String() string {
	if v.Op == Range {
		lo, hi := "-inf", "+inf"
		if v.Range.Lower != nil {
			lo = fmt.Sprintf("%v", v.Range.Lower.Value)
		}
		if v.Range.Upper != nil {
			hi = fmt.Sprintf("%v", v.Range.Upper.Value)
		}
		return fmt.Sprintf("%s in [%s, %s]", v.key(), lo, hi)
	}
	return fmt.Sprintf("%s = %v", v.key(), v.Values)
}

// ShardingCondition is a conjunction of sharding values. Index is the row
// number for INSERT values or the disjunct number otherwise.
type ShardingCondition struct {
	Index  int
	Values []ShardingValue
}

// Value returns the constraint on table.column, if any.
func (c *ShardingCondition) Value(table, column string) (*ShardingValue, bool) {
	for i := range c.Values {
		if c.Values[i].Table == table && c.Values[i].Column == column {
			return &c.Values[i], true
		}
	}
	return nil, false
}

// HasTable reports whether any value constrains table.
func (c *ShardingCondition) HasTable(table string) bool {
	for i := range c.Values {
		if c.Values[i].Table == table {
			return true
		}
	}
	return false
}

// NormalizeParam converts a driver value into a comparable scalar. Unsupported
// types report false.
func NormalizeParam(v any) (any, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return normalizeUnsigned(uint64(n)), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return normalizeUnsigned(n), true
	case float32:
		return normalizeFloat(float64(n)), true
	case float64:
		return normalizeFloat(n), true
	case string:
		return n, true
	case []byte:
		return string(n), true
	case bool:
		return n, true
	case uuid.UUID:
		return n.String(), true
	case time.Time:
		return n.UTC().Format(time.RFC3339Nano), true
	}
	return nil, false
}

func normalizeUnsigned(n uint64) any {
	if n <= math.MaxInt64 {
		return int64(n)
	}
	return n
}

func normalizeFloat(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}

// Resolve evaluates an operand against bound parameters. ok is false for
// operands unknown before execution.
func Resolve(e stmtctx.Expr, params []any) (v any, ok bool, err error) {
	switch x := e.(type) {
	case stmtctx.Literal:
		n, supported := NormalizeParam(x.Value)
		if !supported {
			return nil, false, spqrerror.Newf(spqrerror.SPQR_CONDITION_RESOLUTION, "unsupported literal type %T", x.Value)
		}
		return n, true, nil
	case stmtctx.Param:
		if x.Index < 0 || x.Index >= len(params) {
			return nil, false, spqrerror.Newf(spqrerror.SPQR_CONDITION_RESOLUTION,
				"parameter %s is out of range, %d parameters bound", x, len(params))
		}
		raw := params[x.Index]
		if raw == nil {
			return nil, false, spqrerror.Newf(spqrerror.SPQR_CONDITION_RESOLUTION, "parameter %s is null", x)
		}
		n, supported := NormalizeParam(raw)
		if !supported {
			return nil, false, spqrerror.Newf(spqrerror.SPQR_CONDITION_RESOLUTION,
				"parameter %s has unsupported type %T", x, raw)
		}
		return n, true, nil
	}
	return nil, false, nil
}

func valueKey(v any) string {
	return fmt.Sprintf("%T:%v", v, v)
}

// dedupValues keeps first occurrences in order.
func dedupValues(vals []any) []any {
	seen := make(map[string]struct{}, len(vals))
	out := make([]any, 0, len(vals))
	for _, v := range vals {
		k := valueKey(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

func sortedValueKeys(vals []any) string {
	keys := make([]string, 0, len(vals))
	for _, v := range vals {
		keys = append(keys, valueKey(v))
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

func inRange(v any, r *algorithm.Range) bool {
	if r.Lower != nil {
		c := algorithm.CompareValues(v, r.Lower.Value)
		if c < 0 || (c == 0 && !r.Lower.Inclusive) {
			return false
		}
	}
	if r.Upper != nil {
		c := algorithm.CompareValues(v, r.Upper.Value)
		if c > 0 || (c == 0 && !r.Upper.Inclusive) {
			return false
		}
	}
	return true
}

func tighterLower(a, b *algorithm.Bound) *algorithm.Bound {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	c := algorithm.CompareValues(a.Value, b.Value)
	switch {
	case c > 0:
		return a
	case c < 0:
		return b
	}
	return &algorithm.Bound{Value: a.Value, Inclusive: a.Inclusive && b.Inclusive}
}

func tighterUpper(a, b *algorithm.Bound) *algorithm.Bound {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	c := algorithm.CompareValues(a.Value, b.Value)
	switch {
	case c < 0:
		return a
	case c > 0:
		return b
	}
	return &algorithm.Bound{Value: a.Value, Inclusive: a.Inclusive && b.Inclusive}
}

func emptyRange(r *algorithm.Range) bool {
	if r.Lower == nil || r.Upper == nil {
		return false
	}
	c := algorithm.CompareValues(r.Lower.Value, r.Upper.Value)
	return c > 0 || (c == 0 && !(r.Lower.Inclusive && r.Upper.Inclusive))
}

// intersect combines two constraints on the same column. ok is false when
// no value satisfies both.
func intersect(a, b ShardingValue) (ShardingValue, bool) {
	switch {
	case a.Op == Equal && b.Op == Equal:
		inB := make(map[string]struct{}, len(b.Values))
		for _, v := range b.Values {
			inB[valueKey(v)] = struct{}{}
		}
		var vals []any
		for _, v := range a.Values {
			if _, ok := inB[valueKey(v)]; ok {
				vals = append(vals, v)
			}
		}
		if len(vals) == 0 {
			return ShardingValue{}, false
		}
		a.Values = vals
		return a, true
	case a.Op == Equal && b.Op == Range:
		var vals []any
		for _, v := range a.Values {
			if inRange(v, b.Range) {
				vals = append(vals, v)
			}
		}
		if len(vals) == 0 {
			return ShardingValue{}, false
		}
		a.Values = vals
		return a, true
	case a.Op == Range && b.Op == Equal:
		return intersect(b, a)
	default:
		r := &algorithm.Range{
			Lower: tighterLower(a.Range.Lower, b.Range.Lower),
			Upper: tighterUpper(a.Range.Upper, b.Range.Upper),
		}
		if emptyRange(r) {
			return ShardingValue{}, false
		}
		a.Range = r
		return a, true
	}
}
