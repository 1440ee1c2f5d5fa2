package routing

import (
	"github.com/pg-sharding/shrouter/pkg/models/spqrerror"
	"github.com/pg-sharding/shrouter/router/algorithm"
	"github.com/pg-sharding/shrouter/router/condition"
	"github.com/pg-sharding/shrouter/router/routectx"
	"github.com/pg-sharding/shrouter/router/rule"
)

// routeTable resolves the data nodes of one sharding table. Nodes come back
// in declaration order.
func routeTable(tr *rule.TableRule, conds *condition.Set) ([]rule.DataNode, error) {
	if conds.AlwaysFalse && conds.IsEmpty() {
		return nil, nil
	}
	entries := conds.TableConditions(tr.LogicTable)
	if len(entries) == 0 {
		return tr.DataNodes, nil
	}

	hit := make(map[rule.DataNode]struct{}, len(tr.DataNodes))
	for _, vals := range entries {
		nodes, err := routeCondition(tr, vals)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			hit[n] = struct{}{}
		}
		if len(hit) == len(tr.DataNodes) {
			break
		}
	}

	out := make([]rule.DataNode, 0, len(hit))
	for _, n := range tr.DataNodes {
		if _, ok := hit[n]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func findValue(vals []condition.ShardingValue, s *rule.Strategy) *condition.ShardingValue {
	if s == nil {
		return nil
	}
	for i := range vals {
		if vals[i].Column == s.Column {
			return &vals[i]
		}
	}
	return nil
}

func routeCondition(tr *rule.TableRule, vals []condition.ShardingValue) ([]rule.DataNode, error) {
	dbVal := findValue(vals, tr.DatabaseStrategy)
	tblVal := findValue(vals, tr.TableStrategy)

	// A column shared by both strategies must be routed value by value,
	// otherwise IN (1, 2) would pair the data source of 1 with the table of 2.
	if dbVal != nil && dbVal == tblVal && dbVal.Op == condition.Equal && len(dbVal.Values) > 1 {
		var out []rule.DataNode
		for _, v := range dbVal.Values {
			one := *dbVal
			one.Values = []any{v}
			nodes, err := routePair(tr, &one, &one)
			if err != nil {
				return nil, err
			}
			out = append(out, nodes...)
		}
		return out, nil
	}
	return routePair(tr, dbVal, tblVal)
}

func routePair(tr *rule.TableRule, dbVal, tblVal *condition.ShardingValue) ([]rule.DataNode, error) {
	dss, err := targets(tr.LogicTable, tr.DatabaseStrategy, tr.DataSourceNames(), dbVal)
	if err != nil {
		return nil, err
	}
	var out []rule.DataNode
	for _, ds := range dss {
		tables, err := targets(tr.LogicTable, tr.TableStrategy, tr.ActualTables(ds), tblVal)
		if err != nil {
			return nil, err
		}
		for _, t := range tables {
			out = append(out, rule.DataNode{DataSource: ds, Table: t})
		}
	}
	return out, nil
}

// targets narrows available by one strategy. A missing strategy or value
// keeps every target.
func targets(logic string, s *rule.Strategy, available []string, v *condition.ShardingValue) ([]string, error) {
	if s == nil || v == nil || len(available) == 0 {
		return available, nil
	}
	var picked []string
	switch v.Op {
	case condition.Equal:
		for _, val := range v.Values {
			t, err := s.Algorithm.DoSharding(available, algorithm.PreciseValue{
				LogicTable: logic,
				Column:     v.Column,
				Value:      val,
			})
			if err != nil {
				return nil, err
			}
			picked = append(picked, t)
		}
	case condition.Range:
		ts, err := s.Algorithm.DoRangeSharding(available, algorithm.RangeValue{
			LogicTable: logic,
			Column:     v.Column,
			Range:      *v.Range,
		})
		if err != nil {
			return nil, err
		}
		picked = ts
	}

	allowed := make(map[string]struct{}, len(available))
	for _, a := range available {
		allowed[a] = struct{}{}
	}
	seen := make(map[string]struct{}, len(picked))
	out := make([]string, 0, len(picked))
	for _, t := range picked {
		if _, ok := allowed[t]; !ok {
			return nil, spqrerror.Newf(spqrerror.SPQR_NO_DATASOURCE,
				"algorithm %s returned %q for %s.%s, expected one of %v", s.Algorithm.Type(), t, logic, v.Column, available)
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

// boundMappers maps the driving node onto every table of its binding group.
func boundMappers(snap *rule.Snapshot, driving string, node rule.DataNode, bound []string) ([]routectx.Mapper, error) {
	out := []routectx.Mapper{{Logic: driving, Actual: node.Table}}
	for _, b := range bound {
		if b == driving {
			continue
		}
		actual, err := snap.BindingActualTable(node.DataSource, driving, node.Table, b)
		if err != nil {
			return nil, err
		}
		out = append(out, routectx.Mapper{Logic: b, Actual: actual})
	}
	return out, nil
}

func broadcastMappers(tables []string) []routectx.Mapper {
	out := make([]routectx.Mapper, 0, len(tables))
	for _, t := range tables {
		out = append(out, routectx.Mapper{Logic: t, Actual: t})
	}
	return out
}

func dsMapper(ds string) routectx.Mapper {
	return routectx.Mapper{Logic: ds, Actual: ds}
}
