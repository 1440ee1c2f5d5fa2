package stmtctx

import (
	"strings"

	"github.com/pg-sharding/shrouter/router/rfqn"
)

type TableRef struct {
	Name  rfqn.RelationFQN
	Alias string
}

// LogicName is the case-folded relation name rules are keyed by.
func (t TableRef) LogicName() string {
	return t.Name.Relation()
}

type JoinCondition struct {
	Left  ColumnRef
	Right ColumnRef
}

type Assignment struct {
	Column ColumnRef
	Value  Expr
}

type DDLKind int

const (
	DDLCreateTable = DDLKind(iota)
	DDLDropTable
	DDLAlterTable
	DDLRenameTable
	DDLTruncate
	DDLCreateIndex
	DDLOther
)

type DDLInfo struct {
	Kind DDLKind
	// RenameTo is the new name for DDLRenameTable.
	RenameTo string
}

// Hint forces routing regardless of predicates.
type Hint struct {
	DataSource     string
	DatabaseValues []any
	TableValues    []any
}

func (h *Hint) Empty() bool {
	return h == nil || (h.DataSource == "" && len(h.DatabaseValues) == 0 && len(h.TableValues) == 0)
}

// Context is the routing view of one parsed statement. It is not modified
// once routing begins.
type Context struct {
	Category Category
	SQL      string

	Tables []TableRef
	Where  Predicate
	Joins  []JoinCondition

	InsertColumns     []string
	InsertRows        [][]Expr
	InsertSelect      bool
	OnDuplicateUpdate []Assignment

	Assignments []Assignment

	DDL *DDLInfo

	HasAggregate         bool
	HasDistinctAggregate bool
	HasSubquery          bool
	HasLimit             bool
	Cursor               bool

	Hint *Hint
}

func (c *Context) IsDML() bool {
	switch c.Category {
	case Select, Insert, Update, Delete:
		return true
	}
	return false
}

func (c *Context) IsCursor() bool {
	return c.Category == Cursor || c.Cursor
}

func (c *Context) IsWrite() bool {
	switch c.Category {
	case Insert, Update, Delete:
		return true
	}
	return false
}

// IsRead covers SELECT and cursor declarations.
func (c *Context) IsRead() bool {
	return c.Category == Select || c.Category == Cursor
}

// TableNames returns distinct logic names in order of first reference.
func (c *Context) TableNames() []string {
	seen := make(map[string]struct{}, len(c.Tables))
	out := make([]string, 0, len(c.Tables))
	for _, t := range c.Tables {
		n := t.LogicName()
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// ResolveQualifier maps an alias or table name to logic table names.
// An empty qualifier yields every referenced table.
func (c *Context) ResolveQualifier(q string) []string {
	if q == "" {
		return c.TableNames()
	}
	lq := strings.ToLower(q)
	for _, t := range c.Tables {
		if t.Alias != "" && strings.ToLower(t.Alias) == lq {
			return []string{t.LogicName()}
		}
	}
	for _, t := range c.Tables {
		if t.LogicName() == lq || t.Name.Key() == lq {
			return []string{t.LogicName()}
		}
	}
	return nil
}

// ParamCount is one past the highest parameter index the statement uses.
func (c *Context) ParamCount() int {
	n := 0
	WalkExprs(c, func(e Expr) {
		if p, ok := e.(Param); ok && p.Index+1 > n {
			n = p.Index + 1
		}
	})
	return n
}

// WalkExprs visits every scalar operand of the statement in a fixed order.
func WalkExprs(c *Context, fn func(Expr)) {
	var walk func(p Predicate)
	walk = func(p Predicate) {
		switch q := p.(type) {
		case *And:
			for _, a := range q.Args {
				walk(a)
			}
		case *Or:
			for _, a := range q.Args {
				walk(a)
			}
		case *Compare:
			fn(q.Value)
		case *In:
			for _, v := range q.Values {
				fn(v)
			}
		case *Between:
			fn(q.Low)
			fn(q.High)
		}
	}
	walk(c.Where)
	for _, row := range c.InsertRows {
		for _, e := range row {
			fn(e)
		}
	}
	for _, a := range c.Assignments {
		fn(a.Value)
	}
	for _, a := range c.OnDuplicateUpdate {
		fn(a.Value)
	}
}
