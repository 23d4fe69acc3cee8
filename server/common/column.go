package common

import "fmt"

// TableColumn identifies one column of one table, the unit operators use to
// label the positions of the rows flowing through them (grounded on
// original_source's `TableColumn` in imoocdb/common/fabric.py).
type TableColumn struct {
	Table  string
	Column string
}

func (c TableColumn) String() string { return fmt.Sprintf("%s.%s", c.Table, c.Column) }

// FunctionColumn names a function applied to an argument column, e.g. the
// target of `count(t1.id)` in a HashAgg's output.
type FunctionColumn struct {
	Function string
	Arg      TableColumn
}

func (c FunctionColumn) String() string { return fmt.Sprintf("%s(%s)", c.Function, c.Arg) }
