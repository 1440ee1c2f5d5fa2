package cache

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/pg-sharding/shrouter/router/condition"
	"github.com/pg-sharding/shrouter/router/rule"
	"github.com/pg-sharding/shrouter/router/stmtctx"
)

type fingerprinter struct {
	d    *xxhash.Digest
	snap *rule.Snapshot
	stmt *stmtctx.Context

	// sharding holds indexes of parameters that feed sharding conditions.
	sharding map[int]struct{}
}

// fingerprint hashes the snapshot version, the statement shape, the values
// of sharding parameters and the kinds of all other parameters. ok is false
// when a sharding parameter is not a comparable scalar.
func fingerprint(snap *rule.Snapshot, stmt *stmtctx.Context, params []any) (string, bool) {
	f := &fingerprinter{
		d:        xxhash.New(),
		snap:     snap,
		stmt:     stmt,
		sharding: map[int]struct{}{},
	}
	f.collectShardingParams()

	f.write("v", strconv.FormatUint(snap.Version, 10))
	f.write("sql", stmt.SQL)
	f.writeStmt()

	for i, p := range params {
		if _, ok := f.sharding[i]; !ok {
			f.write("k", fmt.Sprintf("%T", p))
			continue
		}
		if p == nil {
			return "", false
		}
		n, ok := condition.NormalizeParam(p)
		if !ok {
			return "", false
		}
		f.write("p", fmt.Sprintf("%T:%v", n, n))
	}
	return strconv.FormatUint(f.d.Sum64(), 16), true
}

func (f *fingerprinter) write(tag, s string) {
	_, _ = f.d.WriteString(tag)
	_, _ = f.d.WriteString(strconv.Itoa(len(s)))
	_, _ = f.d.WriteString(":")
	_, _ = f.d.WriteString(s)
}

func (f *fingerprinter) isShardingColumn(name string) bool {
	return len(f.snap.TablesWithShardingColumn(name, f.stmt.TableNames())) > 0
}

func (f *fingerprinter) markParam(e stmtctx.Expr) {
	if p, ok := e.(stmtctx.Param); ok {
		f.sharding[p.Index] = struct{}{}
	}
}

func (f *fingerprinter) collectShardingParams() {
	var walk func(p stmtctx.Predicate)
	walk = func(p stmtctx.Predicate) {
		switch q := p.(type) {
		case *stmtctx.And:
			for _, a := range q.Args {
				walk(a)
			}
		case *stmtctx.Or:
			for _, a := range q.Args {
				walk(a)
			}
		case *stmtctx.Compare:
			if f.isShardingColumn(q.Column.Name) {
				f.markParam(q.Value)
			}
		case *stmtctx.In:
			if f.isShardingColumn(q.Column.Name) {
				for _, v := range q.Values {
					f.markParam(v)
				}
			}
		case *stmtctx.Between:
			if f.isShardingColumn(q.Column.Name) {
				f.markParam(q.Low)
				f.markParam(q.High)
			}
		}
	}
	walk(f.stmt.Where)

	cols := f.stmt.InsertColumns
	if len(cols) == 0 && len(f.stmt.Tables) > 0 {
		if tr, ok := f.snap.TableRule(f.stmt.Tables[0].LogicName()); ok {
			cols = tr.Columns
		}
	}
	for _, row := range f.stmt.InsertRows {
		for i, e := range row {
			if i < len(cols) && f.isShardingColumn(cols[i]) {
				f.markParam(e)
			}
		}
	}
	for _, a := range f.stmt.Assignments {
		if f.isShardingColumn(a.Column.Name) {
			f.markParam(a.Value)
		}
	}
	for _, a := range f.stmt.OnDuplicateUpdate {
		if f.isShardingColumn(a.Column.Name) {
			f.markParam(a.Value)
		}
	}
}

func (f *fingerprinter) writeStmt() {
	s := f.stmt
	f.write("c", s.Category.String())
	for _, t := range s.Tables {
		f.write("t", t.Name.Key())
		f.write("a", t.Alias)
	}
	f.writePredicate(s.Where)
	for _, j := range s.Joins {
		f.write("j", j.Left.String()+"="+j.Right.String())
	}
	for _, c := range s.InsertColumns {
		f.write("ic", c)
	}
	for _, row := range s.InsertRows {
		f.write("row", strconv.Itoa(len(row)))
		for _, e := range row {
			f.writeExpr(e)
		}
	}
	for _, a := range s.Assignments {
		f.write("set", a.Column.String())
		f.writeExpr(a.Value)
	}
	for _, a := range s.OnDuplicateUpdate {
		f.write("dup", a.Column.String())
		f.writeExpr(a.Value)
	}
	if s.DDL != nil {
		f.write("ddl", strconv.Itoa(int(s.DDL.Kind))+s.DDL.RenameTo)
	}
	f.write("flags", fmt.Sprintf("%t%t%t%t%t%t",
		s.InsertSelect, s.HasAggregate, s.HasDistinctAggregate, s.HasSubquery, s.HasLimit, s.Cursor))
}

func (f *fingerprinter) writeExpr(e stmtctx.Expr) {
	switch x := e.(type) {
	case stmtctx.Literal:
		f.write("l", fmt.Sprintf("%T:%v", x.Value, x.Value))
	case stmtctx.Param:
		f.write("$", strconv.Itoa(x.Index))
	default:
		f.write("?", "")
	}
}

func (f *fingerprinter) writePredicate(p stmtctx.Predicate) {
	switch q := p.(type) {
	case nil:
		f.write("nil", "")
	case *stmtctx.And:
		f.write("and", strconv.Itoa(len(q.Args)))
		for _, a := range q.Args {
			f.writePredicate(a)
		}
	case *stmtctx.Or:
		f.write("or", strconv.Itoa(len(q.Args)))
		for _, a := range q.Args {
			f.writePredicate(a)
		}
	case *stmtctx.Compare:
		f.write("cmp", q.Column.String()+q.Op.String())
		f.writeExpr(q.Value)
	case *stmtctx.In:
		f.write("in", q.Column.String()+strconv.Itoa(len(q.Values)))
		for _, v := range q.Values {
			f.writeExpr(v)
		}
	case *stmtctx.Between:
		f.write("between", q.Column.String())
		f.writeExpr(q.Low)
		f.writeExpr(q.High)
	case *stmtctx.ColumnEquality:
		f.write("ceq", q.Left.String()+"="+q.Right.String())
	default:
		f.write("opaque", "")
	}
}
