package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pg-sharding/shrouter/pkg/config"
)

func writeTempConfig(t *testing.T, name string, contents string) string {
	t.Helper()

	dir := t.TempDir()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(contents), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return p
}

const ruleYAML = `
data_sources: [ds_0, ds_1]
default_data_source: ds_0
broadcast_tables: [t_config]
binding_groups:
  - [t_order, t_order_item]
algorithms:
  ds_mod:
    type: mod
    props:
      sharding-count: 2
tables:
  - name: t_order
    actual_data_nodes: ds_${0..1}.t_order
    columns: [order_id, user_id]
    database_strategy:
      column: order_id
      algorithm: ds_mod
cache:
  enabled: true
  size: 16
`

const ruleTOML = `
data_sources = ["ds_0", "ds_1"]
default_data_source = "ds_0"

[algorithms.ds_mod]
type = "mod"
[algorithms.ds_mod.props]
sharding-count = 2

[[tables]]
name = "t_order"
actual_data_nodes = "ds_${0..1}.t_order"
[tables.database_strategy]
column = "order_id"
algorithm = "ds_mod"
`

func TestLoadShardingRuleCfgYAML(t *testing.T) {
	assert := assert.New(t)

	cfg, err := config.LoadShardingRuleCfg(writeTempConfig(t, "rules.yaml", ruleYAML))
	require.NoError(t, err)

	assert.Equal([]string{"ds_0", "ds_1"}, cfg.DataSources)
	assert.Equal([][]string{{"t_order", "t_order_item"}}, cfg.BindingGroups)
	require.Len(t, cfg.Tables, 1)
	assert.Equal("order_id", cfg.Tables[0].DatabaseStrategy.Column)
	assert.Nil(cfg.Tables[0].TableStrategy)
	assert.Equal("mod", cfg.Algorithms["ds_mod"].Type)
	assert.EqualValues(2, cfg.Algorithms["ds_mod"].Props["sharding-count"])

	props, cache := cfg.Effective(&config.RouterCfg{Props: config.DefaultProps()})
	assert.True(cache.Enabled)
	assert.Equal(16, cache.Size)
	assert.Equal(config.DefaultCacheMaxParameters, cache.MaxParameters)
	assert.Equal(config.DefaultMaxCartesianProduct, props.MaxCartesianProduct)
}

func TestLoadShardingRuleCfgTOML(t *testing.T) {
	assert := assert.New(t)

	cfg, err := config.LoadShardingRuleCfg(writeTempConfig(t, "rules.toml", ruleTOML))
	require.NoError(t, err)

	assert.Equal("ds_0", cfg.DefaultDataSource)
	require.Len(t, cfg.Tables, 1)
	assert.Equal("ds_${0..1}.t_order", cfg.Tables[0].ActualDataNodes)
	assert.EqualValues(2, cfg.Algorithms["ds_mod"].Props["sharding-count"])
}

func TestLoadShardingRuleCfgUnknownSuffix(t *testing.T) {
	_, err := config.LoadShardingRuleCfg(writeTempConfig(t, "rules.ini", ruleYAML))
	assert.Error(t, err)
}

func TestParseShardingRuleCfg(t *testing.T) {
	cfg, err := config.ParseShardingRuleCfg([]byte(`{"data_sources": ["a"], "default_data_source": "a"}`), "json")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, cfg.DataSources)

	_, err = config.ParseShardingRuleCfg([]byte(`x`), "xml")
	assert.Error(t, err)
}

func TestLoadRouterCfg(t *testing.T) {
	assert := assert.New(t)

	path := writeTempConfig(t, "router.yaml", `
log_level: debug
rule_file: /etc/shrouter/rules.yaml
log_min_duration_route: 5ms
props:
  federation_enabled: true
cache:
  enabled: true
  ttl: 30s
`)

	_, err := config.LoadRouterCfg(path)
	require.NoError(t, err)

	rcfg := config.RouterConfig()
	assert.Equal("debug", rcfg.LogLevel)
	assert.True(rcfg.Props.FederationEnabled)
	assert.Equal(config.DefaultMaxConditionBranches, rcfg.Props.MaxConditionBranches)
	assert.Equal(config.DefaultCacheSize, rcfg.Cache.Size)

	ttl, err := rcfg.Cache.TTLDuration()
	assert.NoError(err)
	assert.Equal("30s", ttl.String())
}

func TestLoadRouterCfgBadTTL(t *testing.T) {
	path := writeTempConfig(t, "router.json", `{"cache": {"ttl": "soon"}}`)

	_, err := config.LoadRouterCfg(path)
	assert.Error(t, err)
}
