package condition

import (
	"sort"
	"strings"
)

// Set is a disjunction of sharding conditions. A set without conditions
// leaves every table unconstrained unless AlwaysFalse is set, in which case
// nothing can match.
type Set struct {
	Conditions  []*ShardingCondition
	AlwaysFalse bool

	insertValues bool
}

func (s *Set) IsEmpty() bool {
	return len(s.Conditions) == 0
}

// IsMergeNeeded is true exactly for multi-row INSERT ... VALUES.
func (s *Set) IsMergeNeeded() bool {
	return s.insertValues && len(s.Conditions) > 1
}

// Merge returns a set with the same shard union and fewer conditions. Rows
// constraining a single column collapse into one IN condition. Other rows
// collapse only when identical.
func (s *Set) Merge() *Set {
	type group struct {
		first *ShardingCondition
		vals  []any
	}

	out := &Set{AlwaysFalse: s.AlwaysFalse, insertValues: s.insertValues}
	singles := map[string]*group{}
	var singleOrder []string
	seenRows := map[string]struct{}{}

	for _, c := range s.Conditions {
		if len(c.Values) == 1 && c.Values[0].Op == Equal {
			k := c.Values[0].key()
			g, ok := singles[k]
			if !ok {
				g = &group{first: c}
				singles[k] = g
				singleOrder = append(singleOrder, k)
			}
			g.vals = append(g.vals, c.Values[0].Values...)
			continue
		}
		sig := rowSignature(c)
		if _, ok := seenRows[sig]; ok {
			continue
		}
		seenRows[sig] = struct{}{}
		out.Conditions = append(out.Conditions, c)
	}

	for _, k := range singleOrder {
		g := singles[k]
		v := g.first.Values[0]
		v.Values = dedupValues(g.vals)
		out.Conditions = append(out.Conditions, &ShardingCondition{
			Index:  g.first.Index,
			Values: []ShardingValue{v},
		})
	}

	sort.SliceStable(out.Conditions, func(i, j int) bool {
		return out.Conditions[i].Index < out.Conditions[j].Index
	})
	return out
}

func rowSignature(c *ShardingCondition) string {
	parts := make([]string, 0, len(c.Values))
	for i := range c.Values {
		v := &c.Values[i]
		if v.Op == Range {
			parts = append(parts, v.String())
			continue
		}
		parts = append(parts, v.key()+"="+sortedValueKeys(v.Values))
	}
	sort.Strings(parts)
	return strings.Join(parts, "&")
}

// TableConditions lists, for each condition, the constraints touching table.
// A nil entry means that disjunct leaves table unconstrained.
func (s *Set) TableConditions(table string) [][]ShardingValue {
	out := make([][]ShardingValue, 0, len(s.Conditions))
	for _, c := range s.Conditions {
		var vals []ShardingValue
		for _, v := range c.Values {
			if v.Table == table {
				vals = append(vals, v)
			}
		}
		out = append(out, vals)
	}
	return out
}

// Constrains reports whether some condition narrows table.
func (s *Set) Constrains(table string) bool {
	for _, c := range s.Conditions {
		if c.HasTable(table) {
			return true
		}
	}
	return false
}
