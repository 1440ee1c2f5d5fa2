package rulesource

import (
	"context"
	"time"

	"github.com/pkg/errors"
	retry "github.com/sethvargo/go-retry"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/pg-sharding/shrouter/pkg/config"
	"github.com/pg-sharding/shrouter/pkg/spqrlog"
	"github.com/pg-sharding/shrouter/router/rule"
)

const (
	defaultDialTimeout = 5 * time.Second

	watchBackoff    = 500 * time.Millisecond
	watchBackoffCap = 10 * time.Second
)

// EtcdWatcher keeps a holder in sync with a rule document stored under one
// etcd key. A document that fails to build is logged and skipped, the
// previous snapshot stays current.
type EtcdWatcher struct {
	cli    *clientv3.Client
	key    string
	format string
	holder *rule.Holder
}

func NewEtcdWatcher(cfg config.EtcdCfg, holder *rule.Holder) (*EtcdWatcher, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("etcd rule source needs at least one endpoint")
	}
	if cfg.Key == "" {
		return nil, errors.New("etcd rule source needs a key")
	}
	timeout := defaultDialTimeout
	if cfg.DialTimeout != "" {
		d, err := time.ParseDuration(cfg.DialTimeout)
		if err != nil {
			return nil, errors.Wrapf(err, "etcd dial timeout %q", cfg.DialTimeout)
		}
		timeout = d
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: timeout,
		DialOptions: []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		},
	})
	if err != nil {
		return nil, err
	}

	spqrlog.Zero.Debug().
		Strs("endpoints", cfg.Endpoints).
		Str("key", cfg.Key).
		Msg("etcd rule source: connected")
	return newEtcdWatcher(cli, cfg.Key, cfg.Format, holder), nil
}

func newEtcdWatcher(cli *clientv3.Client, key, format string, holder *rule.Holder) *EtcdWatcher {
	return &EtcdWatcher{cli: cli, key: key, format: format, holder: holder}
}

func (w *EtcdWatcher) Close() error {
	return w.cli.Close()
}

// Run loads the current document and follows its changes until ctx is
// done. Lost connections and compacted watches are retried with a capped
// Fibonacci backoff.
func (w *EtcdWatcher) Run(ctx context.Context) error {
	backoff := retry.WithCappedDuration(watchBackoffCap, retry.NewFibonacci(watchBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		rev, err := w.load(ctx)
		if err != nil {
			spqrlog.Zero.Warn().Err(err).Str("key", w.key).Msg("etcd rule source: load failed")
			return retry.RetryableError(err)
		}
		if err := w.watch(ctx, rev+1); err != nil {
			spqrlog.Zero.Warn().Err(err).Str("key", w.key).Msg("etcd rule source: watch interrupted")
			return retry.RetryableError(err)
		}
		return nil
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// load publishes the stored document, if any, and returns the revision to
// watch from.
func (w *EtcdWatcher) load(ctx context.Context) (int64, error) {
	resp, err := w.cli.Get(ctx, w.key)
	if err != nil {
		return 0, err
	}
	if len(resp.Kvs) == 0 {
		spqrlog.Zero.Info().Str("key", w.key).Msg("etcd rule source: key is empty, waiting for a document")
	} else if _, err := w.apply(resp.Kvs[0].Value); err != nil {
		spqrlog.Zero.Error().Err(err).Str("key", w.key).Msg("etcd rule source: skipping invalid document")
	}
	return resp.Header.Revision, nil
}

func (w *EtcdWatcher) watch(ctx context.Context, rev int64) error {
	wch := w.cli.Watch(clientv3.WithRequireLeader(ctx), w.key, clientv3.WithRev(rev))
	for resp := range wch {
		if err := resp.Err(); err != nil {
			return err
		}
		for _, ev := range resp.Events {
			switch ev.Type {
			case mvccpb.PUT:
				if _, err := w.apply(ev.Kv.Value); err != nil {
					spqrlog.Zero.Error().Err(err).
						Int64("revision", ev.Kv.ModRevision).
						Msg("etcd rule source: skipping invalid document")
				}
			case mvccpb.DELETE:
				spqrlog.Zero.Warn().Str("key", w.key).Msg("etcd rule source: key deleted, keeping current snapshot")
			}
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return errors.New("etcd watch channel closed")
}

// apply decodes data, builds a snapshot and publishes it.
func (w *EtcdWatcher) apply(data []byte) (*rule.Snapshot, error) {
	cfg, err := config.ParseShardingRuleCfg(data, w.format)
	if err != nil {
		return nil, err
	}
	snap, err := build(cfg)
	if err != nil {
		return nil, err
	}
	return publish(w.holder, snap), nil
}
