package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultMaxCartesianProduct  = 1024
	DefaultMaxConditionBranches = 64
	DefaultCacheSize            = 1024
	DefaultCacheMaxParameters   = 64
)

// Props are the routing properties consulted by validators and strategies.
type Props struct {
	AllowCrossDataSourceJoin bool `json:"allow_cross_data_source_join" toml:"allow_cross_data_source_join" yaml:"allow_cross_data_source_join"`
	AllowCrossShardCursor    bool `json:"allow_cross_shard_cursor" toml:"allow_cross_shard_cursor" yaml:"allow_cross_shard_cursor"`
	FederationEnabled        bool `json:"federation_enabled" toml:"federation_enabled" yaml:"federation_enabled"`
	MaxCartesianProduct      int  `json:"max_cartesian_product" toml:"max_cartesian_product" yaml:"max_cartesian_product"`
	MaxConditionBranches     int  `json:"max_condition_branches" toml:"max_condition_branches" yaml:"max_condition_branches"`
}

type CacheCfg struct {
	Enabled       bool   `json:"enabled" toml:"enabled" yaml:"enabled"`
	Size          int    `json:"size" toml:"size" yaml:"size"`
	TTL           string `json:"ttl" toml:"ttl" yaml:"ttl"`
	MaxParameters int    `json:"max_parameters" toml:"max_parameters" yaml:"max_parameters"`
}

type EtcdCfg struct {
	Endpoints   []string `json:"endpoints" toml:"endpoints" yaml:"endpoints"`
	Key         string   `json:"key" toml:"key" yaml:"key"`
	Format      string   `json:"format" toml:"format" yaml:"format"`
	DialTimeout string   `json:"dial_timeout" toml:"dial_timeout" yaml:"dial_timeout"`
}

type RouterCfg struct {
	LogLevel            string `json:"log_level" toml:"log_level" yaml:"log_level"`
	PrettyLogging       bool   `json:"pretty_logging" toml:"pretty_logging" yaml:"pretty_logging"`
	LogMinDurationRoute string `json:"log_min_duration_route" toml:"log_min_duration_route" yaml:"log_min_duration_route"`
	RuleFile            string `json:"rule_file" toml:"rule_file" yaml:"rule_file"`

	Props Props    `json:"props" toml:"props" yaml:"props"`
	Cache CacheCfg `json:"cache" toml:"cache" yaml:"cache"`
	Etcd  EtcdCfg  `json:"etcd" toml:"etcd" yaml:"etcd"`
}

var cfgRouter = RouterCfg{
	LogLevel: "info",
	Props:    DefaultProps(),
	Cache:    DefaultCacheCfg(),
}

func DefaultProps() Props {
	return Props{
		MaxCartesianProduct:  DefaultMaxCartesianProduct,
		MaxConditionBranches: DefaultMaxConditionBranches,
	}
}

func DefaultCacheCfg() CacheCfg {
	return CacheCfg{
		Size:          DefaultCacheSize,
		MaxParameters: DefaultCacheMaxParameters,
	}
}

// WithDefaults fills zero limits.
func (p Props) WithDefaults() Props {
	if p.MaxCartesianProduct <= 0 {
		p.MaxCartesianProduct = DefaultMaxCartesianProduct
	}
	if p.MaxConditionBranches <= 0 {
		p.MaxConditionBranches = DefaultMaxConditionBranches
	}
	return p
}

func (c CacheCfg) WithDefaults() CacheCfg {
	if c.Size <= 0 {
		c.Size = DefaultCacheSize
	}
	if c.MaxParameters <= 0 {
		c.MaxParameters = DefaultCacheMaxParameters
	}
	return c
}

// TTLDuration returns zero when entries never expire.
func (c CacheCfg) TTLDuration() (time.Duration, error) {
	if c.TTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.TTL)
	if err != nil {
		return 0, errors.Wrapf(err, "cache ttl %q", c.TTL)
	}
	return d, nil
}

// LoadRouterCfg loads the router configuration file and returns its JSON dump.
func LoadRouterCfg(cfgPath string) (string, error) {
	var rcfg RouterCfg
	file, err := os.Open(cfgPath)
	if err != nil {
		return "", err
	}
	defer func(file *os.File) {
		_ = file.Close()
	}(file)

	if err := initConfig(file, &rcfg); err != nil {
		return "", errors.Wrapf(err, "decode %s", cfgPath)
	}
	rcfg.Props = rcfg.Props.WithDefaults()
	rcfg.Cache = rcfg.Cache.WithDefaults()
	if rcfg.LogLevel == "" {
		rcfg.LogLevel = "info"
	}
	if _, err := rcfg.Cache.TTLDuration(); err != nil {
		return "", err
	}
	if rcfg.LogMinDurationRoute != "" {
		if _, err := time.ParseDuration(rcfg.LogMinDurationRoute); err != nil {
			return "", errors.Wrapf(err, "log_min_duration_route %q", rcfg.LogMinDurationRoute)
		}
	}

	configBytes, err := json.MarshalIndent(rcfg, "", "  ")
	if err != nil {
		return "", err
	}

	cfgRouter = rcfg
	return string(configBytes), nil
}

func RouterConfig() *RouterCfg {
	return &cfgRouter
}
