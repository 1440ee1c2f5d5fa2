package validator

import (
	"golang.org/x/exp/slices"

	"github.com/pg-sharding/shrouter/pkg/config"
	"github.com/pg-sharding/shrouter/router/algorithm"
	"github.com/pg-sharding/shrouter/router/condition"
	"github.com/pg-sharding/shrouter/router/routectx"
	"github.com/pg-sharding/shrouter/router/rule"
	"github.com/pg-sharding/shrouter/router/stmtctx"
)

type selectValidator struct {
	nopValidator
}

type insertValidator struct{}

func (insertValidator) PreValidate(snap *rule.Snapshot, stmt *stmtctx.Context, _ []any, _ config.Props) error {
	if len(stmt.Tables) == 0 {
		return nil
	}
	target := stmt.Tables[0].LogicName()
	if tr, ok := snap.TableRule(target); ok {
		for _, a := range stmt.OnDuplicateUpdate {
			if tr.IsShardingColumn(a.Column.Name) {
				return unsupported("ON DUPLICATE KEY UPDATE of sharding column %s.%s", target, a.Column.Name)
			}
		}
	}
	if stmt.InsertSelect {
		return checkSingleShardingGroup(snap, stmt)
	}
	return nil
}

func (insertValidator) PostValidate(snap *rule.Snapshot, stmt *stmtctx.Context, _ *stmtctx.Hint, _ []any, _ config.Props, rc *routectx.Context) error {
	if stmt.InsertSelect {
		if len(rc.DataSourceNames()) > 1 {
			return crossShard("INSERT ... SELECT spans data sources %v", rc.DataSourceNames())
		}
		return nil
	}
	if len(rc.Units) <= 1 || len(stmt.Tables) == 0 {
		return nil
	}
	tr, ok := snap.TableRule(stmt.Tables[0].LogicName())
	if !ok {
		return nil
	}
	for i, row := range stmt.InsertRows {
		if rowFansOut(tr, insertColumns(stmt, tr), row) {
			return crossShard("row %d of INSERT into %s would be written to %d units", i, tr.LogicTable, len(rc.Units))
		}
	}
	return nil
}

func insertColumns(stmt *stmtctx.Context, tr *rule.TableRule) []string {
	if len(stmt.InsertColumns) > 0 {
		return stmt.InsertColumns
	}
	return tr.Columns
}

// rowFansOut reports whether a row cannot be pinned to a single data node.
func rowFansOut(tr *rule.TableRule, cols []string, row []stmtctx.Expr) bool {
	known := func(col string) bool {
		for i, c := range cols {
			if c == col && i < len(row) {
				_, computed := row[i].(stmtctx.Computed)
				return !computed
			}
		}
		return false
	}
	if tr.DatabaseStrategy == nil {
		if len(tr.DataSourceNames()) > 1 {
			return true
		}
	} else if !known(tr.DatabaseStrategy.Column) {
		return true
	}
	if tr.TableStrategy == nil {
		for _, ds := range tr.DataSourceNames() {
			if len(tr.ActualTables(ds)) > 1 {
				return true
			}
		}
		return false
	}
	return !known(tr.TableStrategy.Column)
}

type updateValidator struct{}

func (updateValidator) PreValidate(snap *rule.Snapshot, stmt *stmtctx.Context, params []any, _ config.Props) error {
	if err := checkSingleShardingGroup(snap, stmt); err != nil {
		return err
	}
	for _, a := range stmt.Assignments {
		for _, table := range stmt.ResolveQualifier(a.Column.Qualifier) {
			tr, ok := snap.TableRule(table)
			if !ok || !tr.IsShardingColumn(a.Column.Name) {
				continue
			}
			same, err := sameAsWhereEquality(stmt, table, a, params)
			if err != nil {
				return err
			}
			if !same {
				return unsupported("UPDATE of sharding column %s.%s", table, a.Column.Name)
			}
		}
	}
	return nil
}

// sameAsWhereEquality is true when the WHERE clause pins the assigned column
// to the assigned value with a top level equality.
func sameAsWhereEquality(stmt *stmtctx.Context, table string, a stmtctx.Assignment, params []any) (bool, error) {
	assigned, ok, err := condition.Resolve(a.Value, params)
	if err != nil || !ok {
		return false, err
	}
	var preds []stmtctx.Predicate
	switch w := stmt.Where.(type) {
	case *stmtctx.And:
		preds = w.Args
	case nil:
	default:
		preds = []stmtctx.Predicate{w}
	}
	for _, p := range preds {
		cmp, isCmp := p.(*stmtctx.Compare)
		if !isCmp || cmp.Op != stmtctx.OpEq || cmp.Column.Name != a.Column.Name {
			continue
		}
		if !slices.Contains(stmt.ResolveQualifier(cmp.Column.Qualifier), table) {
			continue
		}
		v, ok, err := condition.Resolve(cmp.Value, params)
		if err != nil {
			return false, err
		}
		if ok && algorithm.CompareValues(v, assigned) == 0 {
			return true, nil
		}
	}
	return false, nil
}

func (updateValidator) PostValidate(_ *rule.Snapshot, stmt *stmtctx.Context, _ *stmtctx.Hint, _ []any, _ config.Props, rc *routectx.Context) error {
	return checkLimit(stmt, rc)
}

type deleteValidator struct{}

func (deleteValidator) PreValidate(snap *rule.Snapshot, stmt *stmtctx.Context, _ []any, _ config.Props) error {
	return checkSingleShardingGroup(snap, stmt)
}

func (deleteValidator) PostValidate(_ *rule.Snapshot, stmt *stmtctx.Context, _ *stmtctx.Hint, _ []any, _ config.Props, rc *routectx.Context) error {
	return checkLimit(stmt, rc)
}

func checkLimit(stmt *stmtctx.Context, rc *routectx.Context) error {
	if stmt.HasLimit && len(rc.DataSourceNames()) > 1 {
		return crossShard("%s with LIMIT spans data sources %v", stmt.Category, rc.DataSourceNames())
	}
	return nil
}
