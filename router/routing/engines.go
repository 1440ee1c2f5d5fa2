package routing

import (
	"golang.org/x/exp/slices"

	"github.com/pg-sharding/shrouter/pkg/config"
	"github.com/pg-sharding/shrouter/pkg/models/spqrerror"
	"github.com/pg-sharding/shrouter/router/condition"
	"github.com/pg-sharding/shrouter/router/routectx"
	"github.com/pg-sharding/shrouter/router/rule"
	"github.com/pg-sharding/shrouter/router/stmtctx"
)

type ignoreEngine struct{}

func (*ignoreEngine) Name() string { return StrategyIgnore }

func (*ignoreEngine) Route(snap *rule.Snapshot) (*routectx.Context, error) {
	rc := routectx.New(StrategyIgnore)
	rc.Ignored = true
	rc.DefaultDataSource = snap.DefaultDataSource
	return rc, nil
}

// broadcastEngine sends a statement to every data source. With dataNodes
// set, sharding tables expand to every actual data node instead.
type broadcastEngine struct {
	tables    []string
	broadcast []string
	dataNodes bool
}

func (*broadcastEngine) Name() string { return StrategyBroadcast }

func (e *broadcastEngine) Route(snap *rule.Snapshot) (*routectx.Context, error) {
	rc := routectx.New(StrategyBroadcast)
	rc.Broadcast = true
	if e.dataNodes {
		for _, n := range snap.AllDataNodes(e.tables) {
			logic := ""
			for _, t := range e.tables {
				if tr, ok := snap.TableRule(t); ok && tr.HasDataNode(n.DataSource, n.Table) {
					logic = t
					break
				}
			}
			rc.Add(routectx.Unit{
				DataSource: dsMapper(n.DataSource),
				Tables:     []routectx.Mapper{{Logic: logic, Actual: n.Table}},
			})
		}
		if len(e.broadcast) == 0 {
			return rc.Normalize(), nil
		}
	}
	for _, ds := range snap.DataSources {
		rc.Add(routectx.Unit{DataSource: dsMapper(ds), Tables: broadcastMappers(e.broadcast)})
	}
	return rc.Normalize(), nil
}

// unicastEngine reads broadcast tables from one data source.
type unicastEngine struct {
	tables []string
	conn   Conn
}

func (*unicastEngine) Name() string { return StrategyUnicast }

func (e *unicastEngine) Route(snap *rule.Snapshot) (*routectx.Context, error) {
	if len(snap.DataSources) == 0 {
		return nil, spqrerror.New(spqrerror.SPQR_NO_DATASOURCE, "no data sources configured")
	}
	ds := snap.DataSources[0]
	for _, used := range e.conn.UsedDataSources {
		if slices.Contains(snap.DataSources, used) {
			ds = used
			break
		}
	}
	rc := routectx.New(StrategyUnicast)
	rc.Add(routectx.Unit{DataSource: dsMapper(ds), Tables: broadcastMappers(e.tables)})
	return rc, nil
}

// standardEngine routes one sharding table, or a binding group driven by
// one of its tables.
type standardEngine struct {
	driving   string
	bound     []string
	broadcast []string
	conds     *condition.Set
}

func (*standardEngine) Name() string { return StrategyStandard }

func (e *standardEngine) Route(snap *rule.Snapshot) (*routectx.Context, error) {
	tr, ok := snap.TableRule(e.driving)
	if !ok {
		return nil, spqrerror.Newf(spqrerror.SPQR_NO_DATASOURCE, "table %q is not sharded", e.driving)
	}
	nodes, err := routeTable(tr, e.conds)
	if err != nil {
		return nil, err
	}
	rc := routectx.New(StrategyStandard)
	extra := broadcastMappers(e.broadcast)
	for _, n := range nodes {
		mappers, err := boundMappers(snap, e.driving, n, e.bound)
		if err != nil {
			return nil, err
		}
		rc.Add(routectx.Unit{
			DataSource: dsMapper(n.DataSource),
			Tables:     append(mappers, extra...),
		})
	}
	return rc.Normalize(), nil
}

// hintEngine follows a forced data source or forced sharding values.
type hintEngine struct {
	stmt      *stmtctx.Context
	tables    []string
	broadcast []string
	props     config.Props
}

func (*hintEngine) Name() string { return StrategyHint }

func (e *hintEngine) Route(snap *rule.Snapshot) (*routectx.Context, error) {
	hint := e.stmt.Hint
	rc := routectx.New(StrategyHint)
	extra := broadcastMappers(e.broadcast)

	if len(e.tables) == 0 {
		dss := snap.DataSources
		if hint.DataSource != "" {
			if !slices.Contains(snap.DataSources, hint.DataSource) {
				return nil, spqrerror.Newf(spqrerror.SPQR_NO_DATASOURCE, "hinted data source %q is not configured", hint.DataSource)
			}
			dss = []string{hint.DataSource}
		}
		for _, ds := range dss {
			rc.Add(routectx.Unit{DataSource: dsMapper(ds), Tables: extra})
		}
		return rc.Normalize(), nil
	}

	driving := e.tables[0]
	tr, _ := snap.TableRule(driving)

	var dss []string
	switch {
	case hint.DataSource != "":
		if !slices.Contains(snap.DataSources, hint.DataSource) {
			return nil, spqrerror.Newf(spqrerror.SPQR_NO_DATASOURCE, "hinted data source %q is not configured", hint.DataSource)
		}
		dss = []string{hint.DataSource}
	default:
		v, err := hintValue(tr.DatabaseStrategy, driving, hint.DatabaseValues)
		if err != nil {
			return nil, err
		}
		if dss, err = targets(driving, tr.DatabaseStrategy, tr.DataSourceNames(), v); err != nil {
			return nil, err
		}
	}

	tv, err := hintValue(tr.TableStrategy, driving, hint.TableValues)
	if err != nil {
		return nil, err
	}
	var bound, others []string
	for _, t := range e.tables[1:] {
		if snap.IsAllBindingTables([]string{driving, t}) {
			bound = append(bound, t)
			continue
		}
		others = append(others, t)
	}

	for _, ds := range dss {
		actuals, err := targets(driving, tr.TableStrategy, tr.ActualTables(ds), tv)
		if err != nil {
			return nil, err
		}
		if len(actuals) == 0 {
			rc.Add(routectx.Unit{DataSource: dsMapper(ds), Tables: extra})
			continue
		}
		var alternatives [][]routectx.Mapper
		for _, a := range actuals {
			mappers, err := boundMappers(snap, driving, rule.DataNode{DataSource: ds, Table: a}, bound)
			if err != nil {
				return nil, err
			}
			alternatives = append(alternatives, mappers)
		}
		lists := [][][]routectx.Mapper{alternatives}
		for _, o := range others {
			otr, _ := snap.TableRule(o)
			var alts [][]routectx.Mapper
			for _, a := range otr.ActualTables(ds) {
				alts = append(alts, []routectx.Mapper{{Logic: o, Actual: a}})
			}
			if len(alts) > 0 {
				lists = append(lists, alts)
			}
		}
		units, err := product(ds, lists, extra, e.props.MaxCartesianProduct)
		if err != nil {
			return nil, err
		}
		for _, u := range units {
			rc.Add(u)
		}
	}
	return rc.Normalize(), nil
}

// hintValue turns forced values into an equality on the strategy column.
func hintValue(s *rule.Strategy, table string, vals []any) (*condition.ShardingValue, error) {
	if s == nil || len(vals) == 0 {
		return nil, nil
	}
	v := &condition.ShardingValue{Table: table, Column: s.Column, Op: condition.Equal}
	for _, raw := range vals {
		n, ok := condition.NormalizeParam(raw)
		if !ok {
			return nil, spqrerror.Newf(spqrerror.SPQR_CONDITION_RESOLUTION, "unsupported hint value type %T", raw)
		}
		v.Values = append(v.Values, n)
	}
	return v, nil
}

