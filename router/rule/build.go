package rule

import (
	"strings"

	"github.com/pg-sharding/shrouter/pkg/config"
	"github.com/pg-sharding/shrouter/pkg/models/spqrerror"
	"github.com/pg-sharding/shrouter/router/algorithm"
)

func configErr(format string, a ...any) error {
	return spqrerror.Newf(spqrerror.SPQR_CONFIG_ERROR, format, a...)
}

// Build validates cfg and turns it into an unpublished snapshot.
func Build(cfg *config.ShardingRuleCfg, props config.Props, cache config.CacheCfg) (*Snapshot, error) {
	if cfg == nil {
		return nil, configErr("sharding rule is empty")
	}
	if len(cfg.DataSources) == 0 {
		return nil, configErr("at least one data source is required")
	}

	dsSet := map[string]struct{}{}
	for _, ds := range cfg.DataSources {
		if _, ok := dsSet[ds]; ok {
			return nil, configErr("duplicate data source %q", ds)
		}
		dsSet[ds] = struct{}{}
	}

	ttl, err := cache.TTLDuration()
	if err != nil {
		return nil, configErr("%s", err)
	}

	snap := &Snapshot{
		DataSources:       append([]string(nil), cfg.DataSources...),
		DefaultDataSource: cfg.DefaultDataSource,
		Tables:            map[string]*TableRule{},
		Props:             props.WithDefaults(),
		Cache:             cache.WithDefaults(),
		CacheTTL:          ttl,
		bindingIndex:      map[string]int{},
		broadcast:         map[string]struct{}{},
	}
	if snap.DefaultDataSource == "" {
		snap.DefaultDataSource = cfg.DataSources[0]
	}
	if _, ok := dsSet[snap.DefaultDataSource]; !ok {
		return nil, configErr("default data source %q is not declared", snap.DefaultDataSource)
	}

	for _, tcfg := range cfg.Tables {
		tr, err := buildTable(cfg, tcfg, dsSet)
		if err != nil {
			return nil, err
		}
		if _, ok := snap.Tables[tr.LogicTable]; ok {
			return nil, configErr("duplicate table rule %q", tr.LogicTable)
		}
		snap.Tables[tr.LogicTable] = tr
	}

	for _, b := range cfg.BroadcastTables {
		name := strings.ToLower(b)
		if _, ok := snap.Tables[name]; ok {
			return nil, configErr("table %q cannot be both sharded and broadcast", name)
		}
		if _, ok := snap.broadcast[name]; ok {
			continue
		}
		snap.broadcast[name] = struct{}{}
		snap.BroadcastTables = append(snap.BroadcastTables, name)
	}

	for gi, group := range cfg.BindingGroups {
		var names []string
		for _, t := range group {
			name := strings.ToLower(t)
			if _, ok := snap.Tables[name]; !ok {
				return nil, configErr("binding table %q has no table rule", name)
			}
			if _, ok := snap.bindingIndex[name]; ok {
				return nil, configErr("table %q is in more than one binding group", name)
			}
			snap.bindingIndex[name] = gi
			names = append(names, name)
		}
		if err := checkBindingGroup(snap, names); err != nil {
			return nil, err
		}
		snap.BindingGroups = append(snap.BindingGroups, names)
	}

	return snap, nil
}

func buildTable(cfg *config.ShardingRuleCfg, tcfg *config.TableRuleCfg, dsSet map[string]struct{}) (*TableRule, error) {
	if tcfg == nil || tcfg.Name == "" {
		return nil, configErr("table rule without name")
	}
	logic := strings.ToLower(tcfg.Name)

	var exprs []string
	if tcfg.ActualDataNodes == "" {
		for _, ds := range cfg.DataSources {
			exprs = append(exprs, ds+"."+logic)
		}
	} else {
		var err error
		exprs, err = config.ExpandNodes(tcfg.ActualDataNodes)
		if err != nil {
			return nil, configErr("table %q: %s", logic, err)
		}
	}

	seen := map[string]struct{}{}
	nodes := make([]DataNode, 0, len(exprs))
	for _, e := range exprs {
		ds, table, ok := strings.Cut(e, ".")
		if !ok || ds == "" || table == "" {
			return nil, configErr("table %q: malformed data node %q", logic, e)
		}
		if _, ok := dsSet[ds]; !ok {
			return nil, configErr("table %q: data node %q refers to unknown data source", logic, e)
		}
		if _, ok := seen[e]; ok {
			return nil, configErr("table %q: duplicate data node %q", logic, e)
		}
		seen[e] = struct{}{}
		nodes = append(nodes, DataNode{DataSource: ds, Table: table})
	}
	if len(nodes) == 0 {
		return nil, configErr("table %q has no data nodes", logic)
	}

	dbs, err := buildStrategy(cfg, logic, tcfg.DatabaseStrategy)
	if err != nil {
		return nil, err
	}
	tbs, err := buildStrategy(cfg, logic, tcfg.TableStrategy)
	if err != nil {
		return nil, err
	}

	columns := make([]string, 0, len(tcfg.Columns))
	for _, c := range tcfg.Columns {
		columns = append(columns, strings.ToLower(c))
	}
	return newTableRule(logic, nodes, columns, dbs, tbs), nil
}

func buildStrategy(cfg *config.ShardingRuleCfg, logic string, scfg *config.StrategyCfg) (*Strategy, error) {
	if scfg == nil {
		return nil, nil
	}
	if scfg.Column == "" {
		return nil, configErr("table %q: strategy without sharding column", logic)
	}
	acfg, ok := cfg.Algorithms[scfg.Algorithm]
	if !ok {
		return nil, configErr("table %q: unknown algorithm %q", logic, scfg.Algorithm)
	}
	alg, err := algorithm.New(acfg, scfg.ColumnType)
	if err != nil {
		return nil, err
	}
	return &Strategy{
		Column:     strings.ToLower(scfg.Column),
		ColumnType: scfg.ColumnType,
		Algorithm:  alg,
	}, nil
}

// checkBindingGroup requires bound tables to share data sources and the
// number of actual tables per data source.
func checkBindingGroup(snap *Snapshot, names []string) error {
	if len(names) < 2 {
		return nil
	}
	first := snap.Tables[names[0]]
	for _, n := range names[1:] {
		tr := snap.Tables[n]
		if len(tr.DataSourceNames()) != len(first.DataSourceNames()) {
			return configErr("binding tables %q and %q have different data sources", first.LogicTable, n)
		}
		for _, ds := range first.DataSourceNames() {
			if len(tr.ActualTables(ds)) != len(first.ActualTables(ds)) {
				return configErr("binding tables %q and %q differ on data source %q", first.LogicTable, n, ds)
			}
		}
	}
	return nil
}
