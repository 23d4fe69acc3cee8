package bptree

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imoocdb/imoocdb/server/common"
)

func key(i int64) common.Row   { return common.Row{common.Int(i)} }
func val(i int64) common.Row   { return common.Row{common.Int(i)} }
func rows(vs ...int64) []common.Row {
	out := make([]common.Row, len(vs))
	for i, v := range vs {
		out[i] = val(v)
	}
	return out
}

func TestBPlusTreeBasics(t *testing.T) {
	tree := New()
	for i := int64(0); i < 100; i++ {
		require.NoError(t, tree.Insert(key(i), val(i)))
	}
	for i := int64(0); i < 100; i++ {
		found, err := tree.Find(key(i))
		require.NoError(t, err)
		assert.Equal(t, []common.Row{val(i)}, found)
	}

	require.NoError(t, tree.Insert(key(1), val(100)))
	require.NoError(t, tree.Insert(key(2), val(200)))

	found, err := tree.Find(key(1))
	require.NoError(t, err)
	assert.Equal(t, rows(1, 100), found)

	found, err = tree.Find(key(2))
	require.NoError(t, err)
	assert.Equal(t, rows(2, 200), found)

	rangeResult, err := tree.FindRange(key(0), key(3))
	require.NoError(t, err)
	assert.Equal(t, rows(0, 1, 100, 2, 200), rangeResult)

	all, err := tree.FindRange(nil, nil)
	require.NoError(t, err)
	assert.Len(t, all, 102)

	require.NoError(t, tree.Delete(key(1)))
	found, err = tree.Find(key(1))
	require.NoError(t, err)
	assert.Empty(t, found)

	require.NoError(t, tree.Delete(key(3)))
	found, err = tree.Find(key(3))
	require.NoError(t, err)
	assert.Empty(t, found)

	for i := int64(0); i < 100; i++ {
		require.NoError(t, tree.Insert(key(3), val(i)))
	}
	found, err = tree.Find(key(3))
	require.NoError(t, err)
	assert.Len(t, found, 100)
}

func TestBPlusTreeCompositeKeyWithNull(t *testing.T) {
	t1 := common.Row{common.Null(), common.Int(1), common.Int(2)}
	t2 := common.Row{common.Int(1), common.Int(1), common.Int(2)}
	t3 := common.Row{common.Int(2), common.Int(1), common.Int(2)}
	t4 := common.Row{common.Int(2), common.Int(0), common.Int(2)}

	c, err := compareRows(t1, t2)
	require.NoError(t, err)
	assert.Less(t, c, 0) // NULL sorts before any concrete value

	c, err = compareRows(t2, t3)
	require.NoError(t, err)
	assert.Less(t, c, 0)

	c, err = compareRows(t3, t4)
	require.NoError(t, err)
	assert.Greater(t, c, 0)

	tree := New()
	require.NoError(t, tree.Insert(t1, common.Row{common.Int(0), common.Int(1)}))
	require.NoError(t, tree.Insert(t2, common.Row{common.Int(0), common.Int(2)}))
	require.NoError(t, tree.Insert(t3, common.Row{common.Int(0), common.Int(3)}))
	require.NoError(t, tree.Insert(t4, common.Row{common.Int(0), common.Int(4)}))

	out, err := tree.FindRange(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []common.Row{
		{common.Int(0), common.Int(1)},
		{common.Int(0), common.Int(2)},
		{common.Int(0), common.Int(4)},
		{common.Int(0), common.Int(3)},
	}, out)
}

func TestBPlusTreeSerializeRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	tree := New()
	require.NoError(t, tree.Insert(common.Row{common.Null(), common.Int(1)}, common.Row{common.Int(0), common.Int(1)}))
	require.NoError(t, tree.Insert(common.Row{common.Int(2), common.Int(1)}, common.Row{common.Int(2), common.Int(1)}))
	require.NoError(t, tree.Insert(common.Row{common.Null(), common.Int(1)}, common.Row{common.Int(0), common.Int(2)}))

	before, err := tree.FindRange(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []common.Row{
		{common.Int(0), common.Int(1)},
		{common.Int(0), common.Int(2)},
		{common.Int(2), common.Int(1)},
	}, before)

	require.NoError(t, tree.Serialize(fs, "test.idx"))

	tree2, err := Deserialize(fs, "test.idx")
	require.NoError(t, err)
	after, err := tree2.FindRange(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
