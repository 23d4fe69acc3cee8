package catalog

import (
	"fmt"
	"strings"
)

// TableForm is one table's catalog entry: its name and its columns' names
// and SQL type names, grounded on original_source's CatalogTableForm.
type TableForm struct {
	TableName string   `codec:"table_name"`
	Columns   []string `codec:"columns"`
	Types     []string `codec:"types"`
}

// String renders the table's schema as the CREATE TABLE statement that
// would produce it, for SHOW TABLES.
func (f TableForm) String() string {
	fields := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		fields[i] = fmt.Sprintf("%s %s", c, f.Types[i])
	}
	return fmt.Sprintf("CREATE TABLE %s (%s);", f.TableName, strings.Join(fields, ", "))
}

// ColumnIndex returns the position of name among f.Columns, or -1.
func (f TableForm) ColumnIndex(name string) int {
	for i, c := range f.Columns {
		if c == name {
			return i
		}
	}
	return -1
}
