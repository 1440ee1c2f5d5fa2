// Package rulesource loads sharding rules and publishes them as snapshots.
package rulesource

import (
	"github.com/pkg/errors"

	"github.com/pg-sharding/shrouter/pkg/config"
	"github.com/pg-sharding/shrouter/pkg/spqrlog"
	"github.com/pg-sharding/shrouter/router/rule"
	"github.com/pg-sharding/shrouter/router/statistics"
)

// LoadFile builds a snapshot from a rule file. The decoder is picked by the
// file suffix. Props and cache settings absent from the file come from the
// router configuration.
func LoadFile(path string) (*rule.Snapshot, error) {
	cfg, err := config.LoadShardingRuleCfg(path)
	if err != nil {
		return nil, err
	}
	snap, err := build(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "sharding rule %s", path)
	}
	return snap, nil
}

// PublishFile loads path and makes it the current snapshot of holder.
func PublishFile(holder *rule.Holder, path string) (*rule.Snapshot, error) {
	snap, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	published := publish(holder, snap)
	spqrlog.Zero.Info().
		Str("path", path).
		Uint64("version", published.Version).
		Msg("loaded sharding rule file")
	return published, nil
}

func build(cfg *config.ShardingRuleCfg) (*rule.Snapshot, error) {
	props, cache := cfg.Effective(config.RouterConfig())
	return rule.Build(cfg, props, cache)
}

func publish(holder *rule.Holder, snap *rule.Snapshot) *rule.Snapshot {
	published := holder.Publish(snap)
	statistics.RecordSnapshotVersion(published.Version)
	return published
}
