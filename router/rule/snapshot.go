package rule

import (
	"strings"
	"time"

	"github.com/pg-sharding/shrouter/pkg/config"
	"github.com/pg-sharding/shrouter/pkg/models/spqrerror"
)

// Snapshot is an immutable view of the sharding rule. Version is assigned
// by Holder.Publish.
type Snapshot struct {
	Version uint64

	DataSources       []string
	DefaultDataSource string
	Tables            map[string]*TableRule
	BindingGroups     [][]string
	BroadcastTables   []string

	Props    config.Props
	Cache    config.CacheCfg
	CacheTTL time.Duration

	bindingIndex map[string]int
	broadcast    map[string]struct{}
}

func (s *Snapshot) TableRule(logic string) (*TableRule, bool) {
	tr, ok := s.Tables[strings.ToLower(logic)]
	return tr, ok
}

func (s *Snapshot) IsShardingTable(logic string) bool {
	_, ok := s.TableRule(logic)
	return ok
}

func (s *Snapshot) IsBroadcastTable(logic string) bool {
	_, ok := s.broadcast[strings.ToLower(logic)]
	return ok
}

// ShardingTables filters names down to sharding tables, keeping order.
func (s *Snapshot) ShardingTables(names []string) []string {
	var out []string
	for _, n := range names {
		if s.IsShardingTable(n) {
			out = append(out, n)
		}
	}
	return out
}

func (s *Snapshot) BroadcastTablesOf(names []string) []string {
	var out []string
	for _, n := range names {
		if s.IsBroadcastTable(n) {
			out = append(out, n)
		}
	}
	return out
}

// BindingGroup returns the index of the binding group containing logic.
func (s *Snapshot) BindingGroup(logic string) (int, bool) {
	idx, ok := s.bindingIndex[strings.ToLower(logic)]
	return idx, ok
}

// IsAllBindingTables is true when every name belongs to one binding group.
func (s *Snapshot) IsAllBindingTables(names []string) bool {
	if len(names) == 0 {
		return false
	}
	first, ok := s.BindingGroup(names[0])
	if !ok {
		return false
	}
	for _, n := range names[1:] {
		if g, ok := s.BindingGroup(n); !ok || g != first {
			return false
		}
	}
	return true
}

// BindingActualTable maps an actual table of the driving table onto the
// bound table that shares its position on the same data source.
func (s *Snapshot) BindingActualTable(ds, driving, drivingActual, bound string) (string, error) {
	dr, ok := s.TableRule(driving)
	if !ok {
		return "", spqrerror.Newf(spqrerror.SPQR_NO_DATASOURCE, "table %q is not sharded", driving)
	}
	br, ok := s.TableRule(bound)
	if !ok {
		return "", spqrerror.Newf(spqrerror.SPQR_NO_DATASOURCE, "table %q is not sharded", bound)
	}
	idx := dr.ActualTableIndex(ds, drivingActual)
	tables := br.ActualTables(ds)
	if idx < 0 || idx >= len(tables) {
		return "", spqrerror.Newf(spqrerror.SPQR_NO_DATASOURCE,
			"cannot bind %s.%s to %s on %s", ds, drivingActual, bound, ds)
	}
	return tables[idx], nil
}

// TablesWithShardingColumn returns which of names shard by col.
func (s *Snapshot) TablesWithShardingColumn(col string, names []string) []string {
	var out []string
	for _, n := range names {
		if tr, ok := s.TableRule(n); ok && tr.IsShardingColumn(col) {
			out = append(out, n)
		}
	}
	return out
}

// AllDataNodes lists every actual data node of the sharding tables among names.
func (s *Snapshot) AllDataNodes(names []string) []DataNode {
	var out []DataNode
	for _, n := range names {
		if tr, ok := s.TableRule(n); ok {
			out = append(out, tr.DataNodes...)
		}
	}
	return out
}
