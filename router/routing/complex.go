package routing

import (
	"golang.org/x/exp/slices"

	"github.com/pg-sharding/shrouter/pkg/config"
	"github.com/pg-sharding/shrouter/pkg/models/spqrerror"
	"github.com/pg-sharding/shrouter/pkg/spqrlog"
	"github.com/pg-sharding/shrouter/router/condition"
	"github.com/pg-sharding/shrouter/router/routectx"
	"github.com/pg-sharding/shrouter/router/rule"
)

// tableRoute holds, per data source, the mapper sets one table group can
// take there.
type tableRoute struct {
	dataSources []string
	byDS        map[string][][]routectx.Mapper
}

// complexEngine joins sharding tables that do not share a binding group.
type complexEngine struct {
	tables    []string
	broadcast []string
	conds     *condition.Set
	props     config.Props
}

func (*complexEngine) Name() string { return StrategyComplex }

func (e *complexEngine) Route(snap *rule.Snapshot) (*routectx.Context, error) {
	routes, err := e.routeGroups(snap)
	if err != nil {
		return nil, err
	}
	extra := broadcastMappers(e.broadcast)
	rc := routectx.New(StrategyComplex)

	for _, r := range routes {
		if len(r.dataSources) == 0 {
			return rc, nil
		}
	}

	common := routes[0].dataSources
	sameSets := true
	for _, r := range routes[1:] {
		next := intersect(common, r.dataSources)
		if len(next) != len(common) || len(next) != len(r.dataSources) {
			sameSets = false
		}
		common = next
	}

	if len(common) == 0 || (!sameSets && e.props.AllowCrossDataSourceJoin) {
		spqrlog.Zero.Debug().
			Strs("tables", e.tables).
			Bool("cross-data-source-join", e.props.AllowCrossDataSourceJoin).
			Msg("join needs tables from different data sources")
		return federate(routes, extra, e.props)
	}

	total := 0
	for _, ds := range common {
		lists := make([][][]routectx.Mapper, 0, len(routes))
		for _, r := range routes {
			lists = append(lists, r.byDS[ds])
		}
		units, err := product(ds, lists, extra, e.props.MaxCartesianProduct)
		if err != nil {
			return nil, err
		}
		total += len(units)
		if e.props.MaxCartesianProduct > 0 && total > e.props.MaxCartesianProduct {
			return nil, spqrerror.Newf(spqrerror.SPQR_ROUTE_COMPLEXITY,
				"join of %v needs more than %d units", e.tables, e.props.MaxCartesianProduct)
		}
		for _, u := range units {
			rc.Add(u)
		}
	}
	return rc.Normalize(), nil
}

// routeGroups routes each binding group once, through its driving table.
func (e *complexEngine) routeGroups(snap *rule.Snapshot) ([]tableRoute, error) {
	var groups [][]string
	groupOf := map[int]int{}
	for _, t := range e.tables {
		if g, ok := snap.BindingGroup(t); ok {
			if idx, seen := groupOf[g]; seen {
				groups[idx] = append(groups[idx], t)
				continue
			}
			groupOf[g] = len(groups)
		}
		groups = append(groups, []string{t})
	}

	routes := make([]tableRoute, 0, len(groups))
	for _, g := range groups {
		driving := drivingTable(g, e.conds)
		tr, _ := snap.TableRule(driving)
		nodes, err := routeTable(tr, e.conds)
		if err != nil {
			return nil, err
		}
		r := tableRoute{byDS: map[string][][]routectx.Mapper{}}
		for _, n := range nodes {
			mappers, err := boundMappers(snap, driving, n, g)
			if err != nil {
				return nil, err
			}
			if _, ok := r.byDS[n.DataSource]; !ok {
				r.dataSources = append(r.dataSources, n.DataSource)
			}
			r.byDS[n.DataSource] = append(r.byDS[n.DataSource], mappers)
		}
		routes = append(routes, r)
	}
	return routes, nil
}

// product is the cartesian product of mapper sets on one data source.
// A positive limit caps the number of units.
func product(ds string, lists [][][]routectx.Mapper, extra []routectx.Mapper, limit int) ([]routectx.Unit, error) {
	size := 1
	for _, l := range lists {
		size *= len(l)
		if limit > 0 && size > limit {
			return nil, spqrerror.Newf(spqrerror.SPQR_ROUTE_COMPLEXITY,
				"cartesian product on %s exceeds %d units", ds, limit)
		}
	}

	combos := [][]routectx.Mapper{nil}
	for _, l := range lists {
		next := make([][]routectx.Mapper, 0, len(combos)*len(l))
		for _, c := range combos {
			for _, m := range l {
				joined := make([]routectx.Mapper, 0, len(c)+len(m))
				joined = append(joined, c...)
				joined = append(joined, m...)
				next = append(next, joined)
			}
		}
		combos = next
	}

	units := make([]routectx.Unit, 0, len(combos))
	for _, c := range combos {
		units = append(units, routectx.Unit{
			DataSource: dsMapper(ds),
			Tables:     append(c, extra...),
		})
	}
	return units, nil
}

// federate unions per-table routes into a context for a federation layer.
func federate(routes []tableRoute, extra []routectx.Mapper, props config.Props) (*routectx.Context, error) {
	if !props.FederationEnabled {
		return nil, spqrerror.New(spqrerror.SPQR_FEDERATION_REQUIRED,
			"join spans different data sources and federation is disabled")
	}
	rc := routectx.New(StrategyFederated)
	rc.Federated = true
	for _, r := range routes {
		for _, ds := range r.dataSources {
			for _, m := range r.byDS[ds] {
				rc.Add(routectx.Unit{
					DataSource: dsMapper(ds),
					Tables:     append(append([]routectx.Mapper(nil), m...), extra...),
				})
			}
		}
	}
	return rc.Normalize(), nil
}

func intersect(a, b []string) []string {
	var out []string
	for _, x := range a {
		if slices.Contains(b, x) {
			out = append(out, x)
		}
	}
	return out
}

// federatedEngine reroutes shapes a single data source cannot answer once
// they span several data sources.
type federatedEngine struct {
	inner Engine
	props config.Props
}

func (*federatedEngine) Name() string { return StrategyFederated }

func (e *federatedEngine) Route(snap *rule.Snapshot) (*routectx.Context, error) {
	rc, err := e.inner.Route(snap)
	if err != nil {
		return nil, err
	}
	if rc.Federated || len(rc.DataSourceNames()) <= 1 {
		return rc, nil
	}
	if !e.props.FederationEnabled {
		return nil, spqrerror.Newf(spqrerror.SPQR_FEDERATION_REQUIRED,
			"statement needs federation across data sources %v", rc.DataSourceNames())
	}
	rc.Federated = true
	rc.Strategy = StrategyFederated
	return rc, nil
}
