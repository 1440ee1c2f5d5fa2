package condition

import (
	"sort"

	"github.com/pg-sharding/shrouter/pkg/spqrlog"
	"github.com/pg-sharding/shrouter/router/algorithm"
	"github.com/pg-sharding/shrouter/router/rule"
	"github.com/pg-sharding/shrouter/router/stmtctx"
)

// conj maps table.column to its constraint inside one disjunct.
type conj map[string]ShardingValue

// dnf is a disjunction of conjunctions. nil is false, a single empty conj
// is true.
type dnf []conj

var dnfTrue = dnf{conj{}}

type edge struct {
	left, right stmtctx.ColumnRef
}

type extractor struct {
	snap   *rule.Snapshot
	stmt   *stmtctx.Context
	params []any
	tables []string
	limit  int
	edges  []edge
}

// Extract builds the condition set of a DML or cursor statement. Other
// statements yield an empty set.
func Extract(snap *rule.Snapshot, stmt *stmtctx.Context, params []any) (*Set, error) {
	if !stmt.IsDML() && !stmt.IsCursor() {
		return &Set{}, nil
	}
	ex := &extractor{
		snap:   snap,
		stmt:   stmt,
		params: params,
		tables: snap.ShardingTables(stmt.TableNames()),
		limit:  snap.Props.MaxConditionBranches,
	}
	if len(ex.tables) == 0 {
		return &Set{}, nil
	}

	if stmt.Category == stmtctx.Insert && !stmt.InsertSelect {
		return ex.extractInsert()
	}

	for _, j := range stmt.Joins {
		ex.edges = append(ex.edges, edge{left: j.Left, right: j.Right})
	}
	ex.collectEdges(stmt.Where)

	d, err := ex.toDNF(stmt.Where)
	if err != nil {
		return nil, err
	}
	if len(d) == 0 {
		spqrlog.Zero.Debug().Msg("where clause is unsatisfiable")
		return &Set{AlwaysFalse: true}, nil
	}

	set := &Set{}
	for i, c := range d {
		ex.propagate(c)
		if len(c) == 0 {
			/* one unconstrained disjunct makes the whole set unconstrained */
			return &Set{}, nil
		}
		set.Conditions = append(set.Conditions, &ShardingCondition{Index: i, Values: c.values()})
	}
	return set, nil
}

func (c conj) values() []ShardingValue {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]ShardingValue, 0, len(keys))
	for _, k := range keys {
		out = append(out, c[k])
	}
	return out
}

func (ex *extractor) extractInsert() (*Set, error) {
	target := ex.stmt.Tables[0].LogicName()
	tr, ok := ex.snap.TableRule(target)
	if !ok {
		return &Set{}, nil
	}
	columns := ex.stmt.InsertColumns
	if len(columns) == 0 {
		columns = tr.Columns
	}
	pos := map[string]int{}
	for i, c := range columns {
		pos[c] = i
	}

	set := &Set{insertValues: true}
	for ri, row := range ex.stmt.InsertRows {
		cond := &ShardingCondition{Index: ri}
		for _, col := range tr.ShardingColumns() {
			i, ok := pos[col]
			if !ok || i >= len(row) {
				continue
			}
			v, known, err := Resolve(row[i], ex.params)
			if err != nil {
				return nil, err
			}
			if !known {
				continue
			}
			cond.Values = append(cond.Values, ShardingValue{Table: target, Column: col, Op: Equal, Values: []any{v}})
		}
		set.Conditions = append(set.Conditions, cond)
	}
	return set, nil
}

// collectEdges gathers column equalities reachable through AND only.
func (ex *extractor) collectEdges(p stmtctx.Predicate) {
	switch q := p.(type) {
	case *stmtctx.And:
		for _, a := range q.Args {
			ex.collectEdges(a)
		}
	case *stmtctx.ColumnEquality:
		ex.edges = append(ex.edges, edge{left: q.Left, right: q.Right})
	}
}

// bind resolves a column reference to sharding tables using that column.
func (ex *extractor) bind(col stmtctx.ColumnRef) []string {
	candidates := ex.stmt.ResolveQualifier(col.Qualifier)
	if candidates == nil && len(ex.tables) == 1 {
		candidates = ex.tables
	}
	return ex.snap.TablesWithShardingColumn(col.Name, candidates)
}

// isSharding reports whether col binds to at least one sharding table.
// Operands of other columns are never resolved.
func (ex *extractor) isSharding(col stmtctx.ColumnRef) bool {
	return len(ex.bind(col)) > 0
}

func (ex *extractor) atom(col stmtctx.ColumnRef, v ShardingValue) dnf {
	tables := ex.bind(col)
	if len(tables) == 0 {
		return dnfTrue
	}
	c := conj{}
	for _, t := range tables {
		sv := v
		sv.Table = t
		sv.Column = col.Name
		c[sv.key()] = sv
	}
	return dnf{c}
}

func (ex *extractor) toDNF(p stmtctx.Predicate) (dnf, error) {
	switch q := p.(type) {
	case nil:
		return dnfTrue, nil
	case *stmtctx.And:
		acc := dnfTrue
		for _, a := range q.Args {
			d, err := ex.toDNF(a)
			if err != nil {
				return nil, err
			}
			acc = ex.and(acc, d)
			if acc == nil {
				return nil, nil
			}
		}
		return acc, nil
	case *stmtctx.Or:
		var acc dnf
		for _, a := range q.Args {
			d, err := ex.toDNF(a)
			if err != nil {
				return nil, err
			}
			acc = ex.or(acc, d)
		}
		return acc, nil
	case *stmtctx.Compare:
		if !ex.isSharding(q.Column) {
			return dnfTrue, nil
		}
		v, known, err := Resolve(q.Value, ex.params)
		if err != nil || !known {
			return dnfTrue, err
		}
		switch q.Op {
		case stmtctx.OpEq:
			return ex.atom(q.Column, ShardingValue{Op: Equal, Values: []any{v}}), nil
		case stmtctx.OpLt:
			return ex.atom(q.Column, ShardingValue{Op: Range, Range: &algorithm.Range{Upper: &algorithm.Bound{Value: v}}}), nil
		case stmtctx.OpLe:
			return ex.atom(q.Column, ShardingValue{Op: Range, Range: &algorithm.Range{Upper: &algorithm.Bound{Value: v, Inclusive: true}}}), nil
		case stmtctx.OpGt:
			return ex.atom(q.Column, ShardingValue{Op: Range, Range: &algorithm.Range{Lower: &algorithm.Bound{Value: v}}}), nil
		case stmtctx.OpGe:
			return ex.atom(q.Column, ShardingValue{Op: Range, Range: &algorithm.Range{Lower: &algorithm.Bound{Value: v, Inclusive: true}}}), nil
		}
		return dnfTrue, nil
	case *stmtctx.In:
		if !ex.isSharding(q.Column) {
			return dnfTrue, nil
		}
		vals := make([]any, 0, len(q.Values))
		for _, e := range q.Values {
			v, known, err := Resolve(e, ex.params)
			if err != nil {
				return nil, err
			}
			if !known {
				return dnfTrue, nil
			}
			vals = append(vals, v)
		}
		if len(vals) == 0 {
			return nil, nil
		}
		return ex.atom(q.Column, ShardingValue{Op: Equal, Values: dedupValues(vals)}), nil
	case *stmtctx.Between:
		if !ex.isSharding(q.Column) {
			return dnfTrue, nil
		}
		lo, lknown, err := Resolve(q.Low, ex.params)
		if err != nil {
			return nil, err
		}
		hi, hknown, err := Resolve(q.High, ex.params)
		if err != nil {
			return nil, err
		}
		r := &algorithm.Range{}
		if lknown {
			r.Lower = &algorithm.Bound{Value: lo, Inclusive: true}
		}
		if hknown {
			r.Upper = &algorithm.Bound{Value: hi, Inclusive: true}
		}
		if r.Lower == nil && r.Upper == nil {
			return dnfTrue, nil
		}
		if emptyRange(r) {
			return nil, nil
		}
		return ex.atom(q.Column, ShardingValue{Op: Range, Range: r}), nil
	default:
		return dnfTrue, nil
	}
}

func (d dnf) isTrue() bool {
	for _, c := range d {
		if len(c) == 0 {
			return true
		}
	}
	return false
}

func (ex *extractor) or(a, b dnf) dnf {
	if a.isTrue() || b.isTrue() {
		return dnfTrue
	}
	out := append(append(dnf{}, a...), b...)
	if len(out) == 0 {
		return nil
	}
	if ex.limit > 0 && len(out) > ex.limit {
		spqrlog.Zero.Debug().Int("branches", len(out)).Msg("too many condition branches, routing unconstrained")
		return dnfTrue
	}
	return out
}

func (ex *extractor) and(a, b dnf) dnf {
	if a == nil || b == nil {
		return nil
	}
	var out dnf
	for _, ca := range a {
		for _, cb := range b {
			if m, ok := mergeConj(ca, cb); ok {
				out = append(out, m)
			}
		}
	}
	if ex.limit > 0 && len(out) > ex.limit {
		spqrlog.Zero.Debug().Int("branches", len(out)).Msg("too many condition branches, routing unconstrained")
		return dnfTrue
	}
	return out
}

func mergeConj(a, b conj) (conj, bool) {
	out := make(conj, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		if prev, ok := out[k]; ok {
			m, ok := intersect(prev, v)
			if !ok {
				return nil, false
			}
			out[k] = m
			continue
		}
		out[k] = v
	}
	return out, true
}

// propagate copies equality values across join edges until nothing changes.
func (ex *extractor) propagate(c conj) {
	if len(ex.edges) == 0 || len(c) == 0 {
		return
	}
	for changed := true; changed; {
		changed = false
		for _, e := range ex.edges {
			lt := ex.bind(e.left)
			rt := ex.bind(e.right)
			if len(lt) != 1 || len(rt) != 1 {
				continue
			}
			lk := lt[0] + "." + e.left.Name
			rk := rt[0] + "." + e.right.Name
			lv, lok := c[lk]
			rv, rok := c[rk]
			switch {
			case lok && !rok && lv.Op == Equal:
				lv.Table, lv.Column = rt[0], e.right.Name
				c[rk] = lv
				changed = true
			case rok && !lok && rv.Op == Equal:
				rv.Table, rv.Column = lt[0], e.left.Name
				c[lk] = rv
				changed = true
			}
		}
	}
}
