package tuple

import (
	"github.com/imoocdb/imoocdb/server/common"
	"github.com/imoocdb/imoocdb/server/storage/bptree"
)

// Index is one B+Tree index over a table (spec.md §4.3, "Index"). KeyColumns
// picks, by position, the columns of a table row that make up the index
// key. A covered index stores the key itself as the B+Tree value, so a
// lookup never has to chase back to the table; a regular index stores the
// row's Location instead.
type Index struct {
	Name       string
	Table      string
	KeyColumns []int
	Covered    bool
	Tree       *bptree.Tree
}

// NewIndex builds an empty index over table, keyed by keyColumns.
func NewIndex(name, table string, keyColumns []int, covered bool) *Index {
	return &Index{Name: name, Table: table, KeyColumns: keyColumns, Covered: covered, Tree: bptree.New()}
}

// KeyOf projects row down to this index's key columns.
func (idx *Index) KeyOf(row common.Row) common.Row {
	key := make(common.Row, len(idx.KeyColumns))
	for i, col := range idx.KeyColumns {
		key[i] = row[col]
	}
	return key
}

// valueFor is the B+Tree value this index stores for row living at loc --
// the key itself if covered, the location otherwise.
func (idx *Index) valueFor(row common.Row, loc common.Location) common.Row {
	if idx.Covered {
		return idx.KeyOf(row)
	}
	return loc.Row()
}
