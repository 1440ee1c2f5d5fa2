package qrouter

import (
	"sort"

	"github.com/pg-sharding/shrouter/router/routectx"
	"github.com/pg-sharding/shrouter/router/rule"
)

// Decorator post-processes computed routes. Decorators run in ascending
// Order, ties broken by Name.
type Decorator interface {
	Order() int
	Name() string
	Decorate(snap *rule.Snapshot, q Query, conn ConnectionContext, rc *routectx.Context) error
}

func sortDecorators(ds []Decorator) {
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].Order() != ds[j].Order() {
			return ds[i].Order() < ds[j].Order()
		}
		return ds[i].Name() < ds[j].Name()
	})
}

const (
	TargetSessionAttrsKey = "target_session_attrs"

	TargetSessionAttrsRW = "read-write"
	TargetSessionAttrsRO = "read-only"
)

// ReadWriteSplit marks reads outside transactions as servable by replicas.
type ReadWriteSplit struct{}

var _ Decorator = ReadWriteSplit{}

func (ReadWriteSplit) Order() int { return 10 }

func (ReadWriteSplit) Name() string { return "rwsplit" }

func (ReadWriteSplit) Decorate(_ *rule.Snapshot, q Query, conn ConnectionContext, rc *routectx.Context) error {
	if rc.Ignored {
		return nil
	}
	if q.Stmt.IsRead() && !conn.InTransaction {
		rc.Annotate(TargetSessionAttrsKey, TargetSessionAttrsRO)
		return nil
	}
	rc.Annotate(TargetSessionAttrsKey, TargetSessionAttrsRW)
	return nil
}
