package binder

import (
	"strings"

	"github.com/pg-sharding/lyx/lyx"

	"github.com/pg-sharding/shrouter/pkg/spqrlog"
	"github.com/pg-sharding/shrouter/router/rerrors"
	"github.com/pg-sharding/shrouter/router/rfqn"
	"github.com/pg-sharding/shrouter/router/routehint"
	"github.com/pg-sharding/shrouter/router/stmtctx"
)

var aggregateFuncs = map[string]struct{}{
	"count": {},
	"sum":   {},
	"avg":   {},
	"min":   {},
	"max":   {},
}

type Option func(*binder)

// WithSQL records the statement text. Route hints in its comments apply
// unless WithHint is given.
func WithSQL(sql string) Option {
	return func(b *binder) {
		b.stmt.SQL = sql
	}
}

// WithAliases supplies alias to relation mappings, e.g. {"o": "t_order"}.
func WithAliases(aliases map[string]string) Option {
	return func(b *binder) {
		for k, v := range aliases {
			b.aliases[strings.ToLower(v)] = k
		}
	}
}

// WithAssignments supplies the SET targets of an UPDATE. The parse tree does
// not keep them.
func WithAssignments(a ...stmtctx.Assignment) Option {
	return func(b *binder) {
		b.stmt.Assignments = append(b.stmt.Assignments, a...)
	}
}

func WithHint(h *stmtctx.Hint) Option {
	return func(b *binder) {
		b.stmt.Hint = h
	}
}

type binder struct {
	stmt    *stmtctx.Context
	aliases map[string]string
	seen    map[string]struct{}
}

// Bind converts a parsed statement into its routing view.
func Bind(node lyx.Node, opts ...Option) (*stmtctx.Context, error) {
	b := &binder{
		stmt:    &stmtctx.Context{},
		aliases: map[string]string{},
		seen:    map[string]struct{}{},
	}
	for _, o := range opts {
		o(b)
	}
	if b.stmt.Hint == nil && b.stmt.SQL != "" {
		h, err := routehint.FromSQL(b.stmt.SQL)
		if err != nil {
			return nil, err
		}
		b.stmt.Hint = h
	}

	if err := b.bindStmt(node); err != nil {
		return nil, err
	}

	spqrlog.Zero.Debug().
		Str("category", b.stmt.Category.String()).
		Strs("tables", b.stmt.TableNames()).
		Msg("bound statement")
	return b.stmt, nil
}

func (b *binder) bindStmt(node lyx.Node) error {
	switch q := node.(type) {
	case *lyx.Select:
		b.stmt.Category = stmtctx.Select
		b.stmt.Where = b.bindSelect(q)
	case *lyx.Insert:
		b.stmt.Category = stmtctx.Insert
		rv, ok := q.TableRef.(*lyx.RangeVar)
		if !ok {
			return rerrors.ErrComplexQuery
		}
		b.addRangeVar(rv)
		b.bindWith(q.WithClause)
		b.stmt.InsertColumns = append(b.stmt.InsertColumns, q.Columns...)
		switch sub := q.SubSelect.(type) {
		case *lyx.ValueClause:
			for _, row := range sub.Values {
				exprs := make([]stmtctx.Expr, 0, len(row))
				for _, v := range row {
					exprs = append(exprs, bindExpr(v))
				}
				b.stmt.InsertRows = append(b.stmt.InsertRows, exprs)
			}
		case *lyx.Select:
			b.stmt.InsertSelect = true
			b.stmt.Where = b.bindSelect(sub)
		case nil:
		default:
			return rerrors.ErrComplexQuery
		}
	case *lyx.Update:
		b.stmt.Category = stmtctx.Update
		rv, ok := q.TableRef.(*lyx.RangeVar)
		if !ok {
			return rerrors.ErrComplexQuery
		}
		b.addRangeVar(rv)
		b.bindWith(q.WithClause)
		b.stmt.Where = b.bindWhere(q.Where)
	case *lyx.Delete:
		b.stmt.Category = stmtctx.Delete
		rv, ok := q.TableRef.(*lyx.RangeVar)
		if !ok {
			return rerrors.ErrComplexQuery
		}
		b.addRangeVar(rv)
		b.bindWith(q.WithClause)
		b.stmt.Where = b.bindWhere(q.Where)
	case *lyx.CreateTable:
		b.stmt.Category = stmtctx.DDL
		b.stmt.DDL = &stmtctx.DDLInfo{Kind: stmtctx.DDLCreateTable}
		if rv, ok := q.TableRv.(*lyx.RangeVar); ok {
			b.addRangeVar(rv)
		}
	case *lyx.Index:
		b.stmt.Category = stmtctx.DDL
		b.stmt.DDL = &stmtctx.DDLInfo{Kind: stmtctx.DDLCreateIndex}
	case *lyx.Alter:
		b.stmt.Category = stmtctx.DDL
		b.stmt.DDL = &stmtctx.DDLInfo{Kind: stmtctx.DDLAlterTable}
	case *lyx.Drop:
		b.stmt.Category = stmtctx.DDL
		b.stmt.DDL = &stmtctx.DDLInfo{Kind: stmtctx.DDLDropTable}
	case *lyx.Truncate:
		b.stmt.Category = stmtctx.DDL
		b.stmt.DDL = &stmtctx.DDLInfo{Kind: stmtctx.DDLTruncate}
	case *lyx.CreateSchema, *lyx.CreateDatabase:
		b.stmt.Category = stmtctx.DDL
		b.stmt.DDL = &stmtctx.DDLInfo{Kind: stmtctx.DDLOther}
	case *lyx.CreateRole:
		b.stmt.Category = stmtctx.DCL
	case *lyx.VariableSetStmt, *lyx.VariableShowStmt:
		b.stmt.Category = stmtctx.DAL
	case *lyx.Vacuum, *lyx.Analyze, *lyx.Cluster:
		b.stmt.Category = stmtctx.DAL
	case *lyx.Copy:
		return rerrors.ErrCopyNotRoutable
	default:
		spqrlog.Zero.Debug().Type("node-type", node).Msg("statement is not routable")
		return rerrors.ErrComplexQuery
	}
	return nil
}

func (b *binder) addRangeVar(rv *lyx.RangeVar) {
	name := rfqn.RelationFQNFromRangeRangeVar(rv)
	key := name.Key()
	if _, ok := b.seen[key]; ok {
		return
	}
	b.seen[key] = struct{}{}
	alias := rv.Alias
	if alias == "" {
		alias = b.aliases[name.Relation()]
	}
	b.stmt.Tables = append(b.stmt.Tables, stmtctx.TableRef{
		Name:  name,
		Alias: alias,
	})
}

func (b *binder) bindWith(ctes []*lyx.CommonTableExpr) {
	for _, cte := range ctes {
		b.stmt.HasSubquery = true
		b.bindSubquery(cte.SubQuery)
	}
}

// bindSubquery collects tables of a nested query. Its predicates do not
// constrain the outer route.
func (b *binder) bindSubquery(node lyx.Node) {
	switch q := node.(type) {
	case *lyx.Select:
		if q == nil {
			return
		}
		b.stmt.HasSubquery = true
		_ = b.bindSelect(q)
	}
}

func (b *binder) bindSelect(q *lyx.Select) stmtctx.Predicate {
	b.bindWith(q.WithClause)
	for _, f := range q.FromClause {
		b.bindFrom(f)
	}
	for _, t := range q.TargetList {
		b.bindTarget(t)
	}
	if q.LArg != nil || q.RArg != nil {
		b.stmt.HasSubquery = true
		b.bindSubquery(q.LArg)
		b.bindSubquery(q.RArg)
	}
	return b.bindWhere(q.Where)
}

func (b *binder) bindTarget(t lyx.Node) {
	if rt, ok := t.(*lyx.ResTarget); ok {
		t = rt.Value
	}
	switch e := t.(type) {
	case *lyx.FuncApplication:
		if _, ok := aggregateFuncs[strings.ToLower(e.Name)]; ok {
			b.stmt.HasAggregate = true
		}
		for _, arg := range e.Args {
			if s, ok := arg.(*lyx.Select); ok {
				b.bindSubquery(s)
			}
		}
	case *lyx.Select:
		b.bindSubquery(e)
	}
}

func (b *binder) bindFrom(node lyx.FromClauseNode) {
	switch q := node.(type) {
	case *lyx.RangeVar:
		b.addRangeVar(q)
	case *lyx.JoinExpr:
		b.bindFrom(q.Larg)
		b.bindFrom(q.Rarg)
	case *lyx.SubSelect:
		b.bindSubquery(q.Arg)
	default:
		spqrlog.Zero.Debug().Type("node-type", node).Msg("skipping from clause node")
	}
}

func (b *binder) bindWhere(expr lyx.Node) stmtctx.Predicate {
	switch q := expr.(type) {
	case nil, *lyx.AExprEmpty:
		return nil
	case *lyx.AExprOp:
		switch strings.ToLower(q.Op) {
		case "and":
			return &stmtctx.And{Args: []stmtctx.Predicate{b.bindWhere(q.Left), b.bindWhere(q.Right)}}
		case "or":
			return &stmtctx.Or{Args: []stmtctx.Predicate{b.bindWhere(q.Left), b.bindWhere(q.Right)}}
		}
		return b.bindComparison(q)
	case *lyx.AExprIn:
		if s, ok := q.SubLink.(*lyx.Select); ok {
			b.bindSubquery(s)
		}
		return &stmtctx.Opaque{}
	case *lyx.Select:
		b.bindSubquery(q)
		return &stmtctx.Opaque{}
	default:
		return &stmtctx.Opaque{}
	}
}

func (b *binder) bindComparison(q *lyx.AExprOp) stmtctx.Predicate {
	op, ok := stmtctx.CmpOpByName(q.Op)
	if !ok {
		return &stmtctx.Opaque{}
	}

	lcol, lok := q.Left.(*lyx.ColumnRef)
	rcol, rok := q.Right.(*lyx.ColumnRef)
	switch {
	case lok && rok:
		if op != stmtctx.OpEq {
			return &stmtctx.Opaque{}
		}
		return &stmtctx.ColumnEquality{Left: bindColumn(lcol), Right: bindColumn(rcol)}
	case lok:
		if s, ok := q.Right.(*lyx.Select); ok {
			b.bindSubquery(s)
			return &stmtctx.Opaque{}
		}
		return &stmtctx.Compare{Column: bindColumn(lcol), Op: op, Value: bindExpr(q.Right)}
	case rok:
		if s, ok := q.Left.(*lyx.Select); ok {
			b.bindSubquery(s)
			return &stmtctx.Opaque{}
		}
		return &stmtctx.Compare{Column: bindColumn(rcol), Op: op.Flip(), Value: bindExpr(q.Left)}
	}
	return &stmtctx.Opaque{}
}

func bindColumn(c *lyx.ColumnRef) stmtctx.ColumnRef {
	return stmtctx.ColumnRef{
		Qualifier: c.TableAlias,
		Name:      strings.ToLower(c.ColName),
	}
}

func bindExpr(n lyx.Node) stmtctx.Expr {
	switch v := n.(type) {
	case *lyx.ParamRef:
		return stmtctx.Param{Index: v.Number - 1}
	case *lyx.AExprIConst:
		return stmtctx.Literal{Value: int64(v.Value)}
	case *lyx.AExprSConst:
		return stmtctx.Literal{Value: v.Value}
	default:
		return stmtctx.Computed{}
	}
}
