package routectx_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pg-sharding/shrouter/router/routectx"
)

func unit(ds string, tables ...string) routectx.Unit {
	u := routectx.Unit{DataSource: routectx.Mapper{Logic: ds, Actual: ds}}
	for i := 0; i+1 < len(tables); i += 2 {
		u.Tables = append(u.Tables, routectx.Mapper{Logic: tables[i], Actual: tables[i+1]})
	}
	return u
}

func TestNormalizeDeduplicatesAndSorts(t *testing.T) {
	assert := assert.New(t)

	rc := routectx.New("standard")
	rc.Units = []routectx.Unit{
		unit("ds_1", "t_order", "t_order_1"),
		unit("ds_0", "t_user", "t_user", "t_order", "t_order_0"),
		unit("ds_1", "t_order", "t_order_1"),
		unit("ds_0", "t_order", "t_order_0", "t_user", "t_user"),
	}
	rc.Normalize()

	assert.Len(rc.Units, 2)
	assert.Equal("ds_0", rc.Units[0].DataSource.Actual)
	assert.Equal([]string{"ds_0", "ds_1"}, rc.DataSourceNames())
	assert.Equal([]string{"t_order_0", "t_order_1"}, rc.ActualTables("t_order"))
	assert.False(rc.IsSingleDataSource())
	assert.Equal("standard[ds_0:t_order_0,t_user ds_1:t_order_1]", rc.String())
}

func TestAddSkipsDuplicates(t *testing.T) {
	rc := routectx.New("broadcast")
	rc.Add(unit("ds_0"))
	rc.Add(unit("ds_0"))
	rc.Add(unit("ds_1"))
	assert.Len(t, rc.Units, 2)
}

func TestEqualAndClone(t *testing.T) {
	assert := assert.New(t)

	a := routectx.New("standard")
	a.Units = []routectx.Unit{unit("ds_0", "t", "t_0"), unit("ds_1", "t", "t_1")}
	b := routectx.New("standard")
	b.Units = []routectx.Unit{unit("ds_1", "t", "t_1"), unit("ds_0", "t", "t_0")}
	assert.True(a.Equal(b))

	c := a.Clone()
	c.Annotate("target_session_attrs", "read-only")
	c.Units[0].Tables[0].Actual = "t_9"
	assert.Equal("t_0", a.Units[0].Tables[0].Actual)
	assert.Nil(a.Annotations)
	assert.False(a.Equal(c))

	b.Federated = true
	assert.False(a.Equal(b))
	assert.True((*routectx.Context)(nil).Equal(nil))
}
