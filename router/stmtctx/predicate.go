package stmtctx

// Predicate is a node of the WHERE tree.
type Predicate interface {
	iPredicate()
}

type And struct {
	Args []Predicate
}

type Or struct {
	Args []Predicate
}

type Compare struct {
	Column ColumnRef
	Op     CmpOp
	Value  Expr
}

type In struct {
	Column ColumnRef
	Values []Expr
}

type Between struct {
	Column ColumnRef
	Low    Expr
	High   Expr
}

// ColumnEquality is `a.x = b.y` inside WHERE.
type ColumnEquality struct {
	Left  ColumnRef
	Right ColumnRef
}

// Opaque stands for a predicate that cannot narrow the route.
type Opaque struct{}

func (*And) iPredicate()            {}
func (*Or) iPredicate()             {}
func (*Compare) iPredicate()        {}
func (*In) iPredicate()             {}
func (*Between) iPredicate()        {}
func (*ColumnEquality) iPredicate() {}
func (*Opaque) iPredicate()         {}
