package rulesource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pg-sharding/shrouter/pkg/config"
	"github.com/pg-sharding/shrouter/router/rule"
	"github.com/pg-sharding/shrouter/router/statistics"
)

const kvRule = `
data_sources: [ds_0, ds_1]
algorithms:
  mod2:
    type: mod
    props:
      sharding-count: 2
tables:
  - name: t_kv
    actual_data_nodes: ds_${0..1}.t_kv
    columns: [id, v]
    database_strategy:
      column: id
      algorithm: mod2
broadcast_tables: [t_config]
cache:
  enabled: true
  size: 32
`

func writeRule(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	assert := assert.New(t)

	snap, err := LoadFile(writeRule(t, "rules.yaml", kvRule))
	require.NoError(t, err)

	assert.Equal([]string{"ds_0", "ds_1"}, snap.DataSources)
	assert.True(snap.IsShardingTable("t_kv"))
	assert.True(snap.IsBroadcastTable("t_config"))
	assert.True(snap.Cache.Enabled)
	assert.Equal(32, snap.Cache.Size)
	assert.Equal(config.DefaultMaxCartesianProduct, snap.Props.MaxCartesianProduct)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadFile(writeRule(t, "rules.ini", kvRule))
	assert.Error(t, err)

	_, err = LoadFile(writeRule(t, "rules.yaml", "data_sources: []\n"))
	assert.Error(t, err)
}

func TestPublishFile(t *testing.T) {
	holder := rule.NewHolder()
	path := writeRule(t, "rules.yaml", kvRule)

	first, err := PublishFile(holder, path)
	require.NoError(t, err)
	second, err := PublishFile(holder, path)
	require.NoError(t, err)

	assert.Equal(t, first.Version+1, second.Version)
	assert.Same(t, second, holder.Load())
	assert.Equal(t, float64(second.Version), testutil.ToFloat64(statistics.SnapshotVersion()))
}

func TestEtcdWatcherApply(t *testing.T) {
	assert := assert.New(t)

	holder := rule.NewHolder()
	w := newEtcdWatcher(nil, "/shrouter/rules", "yaml", holder)

	snap, err := w.apply([]byte(kvRule))
	require.NoError(t, err)
	assert.Equal(uint64(1), snap.Version)

	/* a broken document leaves the published snapshot in place */
	_, err = w.apply([]byte("tables: [[["))
	assert.Error(err)
	_, err = w.apply([]byte("data_sources: [ds_0]\ndefault_data_source: ds_9\n"))
	assert.Error(err)
	assert.Equal(uint64(1), holder.Load().Version)

	w.format = "json"
	snap, err = w.apply([]byte(`{"data_sources": ["ds_0"]}`))
	require.NoError(t, err)
	assert.Equal(uint64(2), snap.Version)
	assert.Empty(snap.Tables)
}

func TestNewEtcdWatcherConfig(t *testing.T) {
	holder := rule.NewHolder()

	_, err := NewEtcdWatcher(config.EtcdCfg{Key: "/rules"}, holder)
	assert.Error(t, err)

	_, err = NewEtcdWatcher(config.EtcdCfg{Endpoints: []string{"localhost:2379"}}, holder)
	assert.Error(t, err)

	_, err = NewEtcdWatcher(config.EtcdCfg{
		Endpoints:   []string{"localhost:2379"},
		Key:         "/rules",
		DialTimeout: "soon",
	}, holder)
	assert.Error(t, err)
}
