// Package ruletest holds sharding rule fixtures shared by router tests.
package ruletest

import (
	"github.com/pg-sharding/shrouter/pkg/config"
	"github.com/pg-sharding/shrouter/router/rule"
)

// OrderRuleCfg describes two data sources with:
//
//	t_order, t_order_item  ds_${0..1}.<name>_${0..1}, db by user_id % 2, table by order_id % 2, bound
//	t_user                 ds_${0..1}.t_user, db by user_id % 2
//	t_kv                   ds_${0..1}.t_kv, db by id % 2
//	t_config               broadcast
func OrderRuleCfg() *config.ShardingRuleCfg {
	mod2 := func(col string) *config.StrategyCfg {
		return &config.StrategyCfg{Column: col, Algorithm: "mod2"}
	}
	return &config.ShardingRuleCfg{
		DataSources:       []string{"ds_0", "ds_1"},
		DefaultDataSource: "ds_0",
		Algorithms: map[string]*config.AlgorithmCfg{
			"mod2": {Type: "mod", Props: map[string]any{"sharding-count": 2}},
		},
		Tables: []*config.TableRuleCfg{
			{
				Name:             "t_order",
				ActualDataNodes:  "ds_${0..1}.t_order_${0..1}",
				Columns:          []string{"order_id", "user_id", "status"},
				DatabaseStrategy: mod2("user_id"),
				TableStrategy:    mod2("order_id"),
			},
			{
				Name:             "t_order_item",
				ActualDataNodes:  "ds_${0..1}.t_order_item_${0..1}",
				Columns:          []string{"item_id", "order_id", "user_id"},
				DatabaseStrategy: mod2("user_id"),
				TableStrategy:    mod2("order_id"),
			},
			{
				Name:             "t_user",
				ActualDataNodes:  "ds_${0..1}.t_user",
				Columns:          []string{"user_id", "name"},
				DatabaseStrategy: mod2("user_id"),
			},
			{
				Name:             "t_kv",
				ActualDataNodes:  "ds_${0..1}.t_kv",
				Columns:          []string{"id", "v"},
				DatabaseStrategy: mod2("id"),
			},
		},
		BindingGroups:   [][]string{{"t_order", "t_order_item"}},
		BroadcastTables: []string{"t_config"},
	}
}

// Snapshot publishes OrderRuleCfg into a fresh holder.
func Snapshot(props config.Props, cache config.CacheCfg) (*rule.Holder, *rule.Snapshot, error) {
	snap, err := rule.Build(OrderRuleCfg(), props, cache)
	if err != nil {
		return nil, nil, err
	}
	h := rule.NewHolder()
	return h, h.Publish(snap), nil
}
