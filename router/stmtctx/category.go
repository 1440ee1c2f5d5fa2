package stmtctx

type Category int

const (
	Select = Category(iota)
	Insert
	Update
	Delete
	DDL
	DCL
	TCL
	DAL
	Cursor
)

var categoryNames = map[Category]string{
	Select: "select",
	Insert: "insert",
	Update: "update",
	Delete: "delete",
	DDL:    "ddl",
	DCL:    "dcl",
	TCL:    "tcl",
	DAL:    "dal",
	Cursor: "cursor",
}

func (c Category) String() string {
	if n, ok := categoryNames[c]; ok {
		return n
	}
	return "unknown"
}

// Categories lists every statement category in declaration order.
func Categories() []Category {
	return []Category{Select, Insert, Update, Delete, DDL, DCL, TCL, DAL, Cursor}
}
