package catalog

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/imoocdb/imoocdb/server/common"
)

func TestTableFormString(t *testing.T) {
	f := TableForm{TableName: "t1", Columns: []string{"id", "name"}, Types: []string{"int", "text"}}
	require.Equal(t, "CREATE TABLE t1 (id int, name text);", f.String())
	require.Equal(t, 1, f.ColumnIndex("name"))
	require.Equal(t, -1, f.ColumnIndex("missing"))
}

func TestIndexFormString(t *testing.T) {
	f := IndexForm{IndexName: "idx", TableName: "t1", Columns: []string{"id"}}
	require.Equal(t, "CREATE INDEX idx ON t1 (id);", f.String())
}

func TestCatalogPersistsTablesAndIndexesAcrossOpen(t *testing.T) {
	fs := afero.NewMemMapFs()

	c, err := Open(fs, "catalog")
	require.NoError(t, err)
	require.NoError(t, c.Tables.Insert(TableForm{TableName: "t1", Columns: []string{"id"}, Types: []string{"int"}}))
	require.NoError(t, c.Indexes.Insert(IndexForm{IndexName: "idx", TableName: "t1", Columns: []string{"id"}}))

	reopened, err := Open(fs, "catalog")
	require.NoError(t, err)
	form, ok := reopened.TableByName("t1")
	require.True(t, ok)
	require.Equal(t, []string{"id"}, form.Columns)

	idxForm, ok := reopened.IndexByName("idx")
	require.True(t, ok)
	require.Equal(t, "t1", idxForm.TableName)
	require.Len(t, reopened.IndexesOnTable("t1"), 1)
}

func TestCatalogDropTableRemovesItsIndexes(t *testing.T) {
	fs := afero.NewMemMapFs()
	c, err := Open(fs, "catalog")
	require.NoError(t, err)
	require.NoError(t, c.Tables.Insert(TableForm{TableName: "t1", Columns: []string{"id"}, Types: []string{"int"}}))
	require.NoError(t, c.Indexes.Insert(IndexForm{IndexName: "idx", TableName: "t1", Columns: []string{"id"}}))

	require.NoError(t, c.DropTable("t1"))
	_, ok := c.TableByName("t1")
	require.False(t, ok)
	require.Empty(t, c.IndexesOnTable("t1"))
}

func TestBuiltinAggregatesRegistered(t *testing.T) {
	c := NewFunctionCatalog()
	registerBuiltins(c)

	values := []common.Value{common.Int(1), common.Int(2), common.Int(3)}

	sum, err := c.Lookup("sum")
	require.NoError(t, err)
	result, err := sum.Callback(values)
	require.NoError(t, err)
	require.EqualValues(t, 6, result.Int)

	avg, err := c.Lookup("avg")
	require.NoError(t, err)
	result, err = avg.Callback(values)
	require.NoError(t, err)
	require.EqualValues(t, 2, result.Int)

	count, err := c.Lookup("count")
	require.NoError(t, err)
	result, err = count.Callback(values)
	require.NoError(t, err)
	require.EqualValues(t, 3, result.Int)

	max, err := c.Lookup("max")
	require.NoError(t, err)
	result, err = max.Callback(values)
	require.NoError(t, err)
	require.EqualValues(t, 3, result.Int)

	min, err := c.Lookup("min")
	require.NoError(t, err)
	result, err = min.Callback(values)
	require.NoError(t, err)
	require.EqualValues(t, 1, result.Int)

	_, err = c.Lookup("nope")
	require.Error(t, err)
}
