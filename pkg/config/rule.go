package config

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type AlgorithmCfg struct {
	Type  string         `json:"type" toml:"type" yaml:"type"`
	Props map[string]any `json:"props" toml:"props" yaml:"props"`
}

type StrategyCfg struct {
	Column     string `json:"column" toml:"column" yaml:"column"`
	Algorithm  string `json:"algorithm" toml:"algorithm" yaml:"algorithm"`
	ColumnType string `json:"column_type" toml:"column_type" yaml:"column_type"`
}

type TableRuleCfg struct {
	Name string `json:"name" toml:"name" yaml:"name"`
	// ActualDataNodes is an inline expression like ds_${0..1}.t_order_${0..3}.
	ActualDataNodes string `json:"actual_data_nodes" toml:"actual_data_nodes" yaml:"actual_data_nodes"`
	// Columns is the declared column order used for INSERT without a column list.
	Columns []string `json:"columns" toml:"columns" yaml:"columns"`

	DatabaseStrategy *StrategyCfg `json:"database_strategy" toml:"database_strategy" yaml:"database_strategy"`
	TableStrategy    *StrategyCfg `json:"table_strategy" toml:"table_strategy" yaml:"table_strategy"`
}

type ShardingRuleCfg struct {
	DataSources       []string                 `json:"data_sources" toml:"data_sources" yaml:"data_sources"`
	DefaultDataSource string                   `json:"default_data_source" toml:"default_data_source" yaml:"default_data_source"`
	Tables            []*TableRuleCfg          `json:"tables" toml:"tables" yaml:"tables"`
	BindingGroups     [][]string               `json:"binding_groups" toml:"binding_groups" yaml:"binding_groups"`
	BroadcastTables   []string                 `json:"broadcast_tables" toml:"broadcast_tables" yaml:"broadcast_tables"`
	Algorithms        map[string]*AlgorithmCfg `json:"algorithms" toml:"algorithms" yaml:"algorithms"`

	// Props and Cache override the router defaults when present.
	Props *Props    `json:"props" toml:"props" yaml:"props"`
	Cache *CacheCfg `json:"cache" toml:"cache" yaml:"cache"`
}

// Effective merges rule level overrides over router defaults.
func (r *ShardingRuleCfg) Effective(defaults *RouterCfg) (Props, CacheCfg) {
	props := defaults.Props
	cache := defaults.Cache
	if r.Props != nil {
		props = *r.Props
	}
	if r.Cache != nil {
		cache = *r.Cache
	}
	return props.WithDefaults(), cache.WithDefaults()
}

func LoadShardingRuleCfg(path string) (*ShardingRuleCfg, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func(file *os.File) {
		_ = file.Close()
	}(file)

	var cfg ShardingRuleCfg
	if err := initConfig(file, &cfg); err != nil {
		return nil, errors.Wrapf(err, "decode sharding rule %s", path)
	}
	return &cfg, nil
}

// ParseShardingRuleCfg decodes a rule document held outside the filesystem.
// format is one of toml, yaml or json.
func ParseShardingRuleCfg(data []byte, format string) (*ShardingRuleCfg, error) {
	var cfg ShardingRuleCfg
	var err error
	switch strings.ToLower(format) {
	case "toml":
		_, err = toml.NewDecoder(bytes.NewReader(data)).Decode(&cfg)
	case "", "yaml", "yml":
		err = yaml.Unmarshal(data, &cfg)
	case "json":
		err = json.Unmarshal(data, &cfg)
	default:
		return nil, errors.Errorf("unknown sharding rule format %q", format)
	}
	if err != nil {
		return nil, errors.Wrap(err, "decode sharding rule")
	}
	return &cfg, nil
}
