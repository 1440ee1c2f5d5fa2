package rule

import (
	"github.com/pg-sharding/shrouter/router/algorithm"
)

type DataNode struct {
	DataSource string
	Table      string
}

func (n DataNode) String() string {
	return n.DataSource + "." + n.Table
}

// Strategy binds one sharding column to an algorithm.
type Strategy struct {
	Column     string
	ColumnType string
	Algorithm  algorithm.ShardingAlgorithm
}

type TableRule struct {
	LogicTable string
	DataNodes  []DataNode
	// Columns is the declared column order for INSERT without a column list.
	Columns []string

	DatabaseStrategy *Strategy
	TableStrategy    *Strategy

	dataSources []string
	tablesByDS  map[string][]string
	tableIndex  map[string]int
}

func newTableRule(logic string, nodes []DataNode, columns []string, db, tbl *Strategy) *TableRule {
	tr := &TableRule{
		LogicTable:       logic,
		DataNodes:        nodes,
		Columns:          columns,
		DatabaseStrategy: db,
		TableStrategy:    tbl,
		tablesByDS:       map[string][]string{},
		tableIndex:       map[string]int{},
	}
	for _, n := range nodes {
		if _, ok := tr.tablesByDS[n.DataSource]; !ok {
			tr.dataSources = append(tr.dataSources, n.DataSource)
		}
		tr.tableIndex[n.String()] = len(tr.tablesByDS[n.DataSource])
		tr.tablesByDS[n.DataSource] = append(tr.tablesByDS[n.DataSource], n.Table)
	}
	return tr
}

// DataSourceNames lists data sources hosting the table in node order.
func (tr *TableRule) DataSourceNames() []string {
	return tr.dataSources
}

// ActualTables lists the actual tables on one data source.
func (tr *TableRule) ActualTables(ds string) []string {
	return tr.tablesByDS[ds]
}

func (tr *TableRule) HasDataNode(ds, table string) bool {
	_, ok := tr.tableIndex[ds+"."+table]
	return ok
}

// ActualTableIndex is the position of table among the tables on ds, or -1.
func (tr *TableRule) ActualTableIndex(ds, table string) int {
	if idx, ok := tr.tableIndex[ds+"."+table]; ok {
		return idx
	}
	return -1
}

func (tr *TableRule) ShardingColumns() []string {
	var out []string
	if tr.DatabaseStrategy != nil {
		out = append(out, tr.DatabaseStrategy.Column)
	}
	if tr.TableStrategy != nil && (tr.DatabaseStrategy == nil || tr.TableStrategy.Column != tr.DatabaseStrategy.Column) {
		out = append(out, tr.TableStrategy.Column)
	}
	return out
}

func (tr *TableRule) IsShardingColumn(col string) bool {
	for _, c := range tr.ShardingColumns() {
		if c == col {
			return true
		}
	}
	return false
}

// ColumnType reports the declared type of a sharding column.
func (tr *TableRule) ColumnType(col string) string {
	if tr.DatabaseStrategy != nil && tr.DatabaseStrategy.Column == col {
		return tr.DatabaseStrategy.ColumnType
	}
	if tr.TableStrategy != nil && tr.TableStrategy.Column == col {
		return tr.TableStrategy.ColumnType
	}
	return ""
}
