package stmtctx_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pg-sharding/shrouter/router/rfqn"
	"github.com/pg-sharding/shrouter/router/stmtctx"
)

func TestResolveQualifier(t *testing.T) {
	assert := assert.New(t)

	stmt := &stmtctx.Context{
		Category: stmtctx.Select,
		Tables: []stmtctx.TableRef{
			{Name: rfqn.RelationFQN{RelationName: "T_Order"}, Alias: "o"},
			{Name: rfqn.RelationFQN{RelationName: "t_order_item", SchemaName: "s"}},
			{Name: rfqn.RelationFQN{RelationName: "t_order"}},
		},
	}

	assert.Equal([]string{"t_order", "t_order_item"}, stmt.TableNames())
	assert.Equal([]string{"t_order"}, stmt.ResolveQualifier("O"))
	assert.Equal([]string{"t_order_item"}, stmt.ResolveQualifier("s.t_order_item"))
	assert.Equal([]string{"t_order", "t_order_item"}, stmt.ResolveQualifier(""))
	assert.Nil(stmt.ResolveQualifier("missing"))
}

func TestParamCount(t *testing.T) {
	stmt := &stmtctx.Context{
		Category: stmtctx.Update,
		Where: &stmtctx.And{Args: []stmtctx.Predicate{
			&stmtctx.Compare{Column: stmtctx.ColumnRef{Name: "id"}, Op: stmtctx.OpEq, Value: stmtctx.Param{Index: 2}},
			&stmtctx.In{Column: stmtctx.ColumnRef{Name: "k"}, Values: []stmtctx.Expr{stmtctx.Literal{Value: 1}, stmtctx.Param{Index: 0}}},
		}},
		Assignments: []stmtctx.Assignment{
			{Column: stmtctx.ColumnRef{Name: "v"}, Value: stmtctx.Param{Index: 4}},
		},
	}

	assert.Equal(t, 5, stmt.ParamCount())
	assert.True(t, stmt.IsWrite())
	assert.True(t, stmt.IsDML())
	assert.False(t, stmt.IsCursor())
}

func TestCategoryAndOps(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("cursor", stmtctx.Cursor.String())
	assert.Len(stmtctx.Categories(), 9)

	op, ok := stmtctx.CmpOpByName("<=")
	assert.True(ok)
	assert.Equal(stmtctx.OpGe, op.Flip())
	_, ok = stmtctx.CmpOpByName("~~")
	assert.False(ok)

	assert.True((*stmtctx.Hint)(nil).Empty())
	assert.False((&stmtctx.Hint{DataSource: "ds_0"}).Empty())
}
