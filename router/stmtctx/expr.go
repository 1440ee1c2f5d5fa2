package stmtctx

import "fmt"

// Expr is a scalar operand of a predicate, VALUES row or assignment.
type Expr interface {
	iExpr()
	String() string
}

type Literal struct {
	Value any
}

// Param references a bound parameter. Index is 0-based.
type Param struct {
	Index int
}

// Computed is any expression whose value is unknown before execution.
type Computed struct{}

func (Literal) iExpr()  {}
func (Param) iExpr()    {}
func (Computed) iExpr() {}

func (l Literal) String() string {
	return fmt.Sprintf("%v", l.Value)
}

func (p Param) String() string {
	return fmt.Sprintf("$%d", p.Index+1)
}

func (Computed) String() string {
	return "?"
}

type ColumnRef struct {
	// Qualifier is a table name or alias, empty when unqualified.
	Qualifier string
	Name      string
}

func (c ColumnRef) String() string {
	if c.Qualifier == "" {
		return c.Name
	}
	return c.Qualifier + "." + c.Name
}

type CmpOp int

const (
	OpEq = CmpOp(iota)
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

var cmpOpNames = map[CmpOp]string{
	OpEq: "=",
	OpNe: "<>",
	OpLt: "<",
	OpLe: "<=",
	OpGt: ">",
	OpGe: ">=",
}

func (o CmpOp) String() string {
	return cmpOpNames[o]
}

// CmpOpByName maps a SQL operator to CmpOp.
func CmpOpByName(op string) (CmpOp, bool) {
	switch op {
	case "=":
		return OpEq, true
	case "<>", "!=":
		return OpNe, true
	case "<":
		return OpLt, true
	case "<=":
		return OpLe, true
	case ">":
		return OpGt, true
	case ">=":
		return OpGe, true
	}
	return 0, false
}

// Flip mirrors the operator for `value op column` forms.
func (o CmpOp) Flip() CmpOp {
	switch o {
	case OpLt:
		return OpGt
	case OpLe:
		return OpGe
	case OpGt:
		return OpLt
	case OpGe:
		return OpLe
	}
	return o
}
