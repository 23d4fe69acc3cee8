package catalog

import (
	"fmt"
	"strings"
)

// IndexForm is one index's catalog entry, grounded on original_source's
// CatalogIndexForm. Covered marks a covering index whose B+Tree value is
// the key itself rather than the row's Location.
type IndexForm struct {
	IndexName string   `codec:"index_name"`
	TableName string   `codec:"table_name"`
	Columns   []string `codec:"columns"`
	Covered   bool     `codec:"covered"`
}

// String renders the index as the CREATE INDEX statement that would
// produce it, for SHOW INDEXES.
func (f IndexForm) String() string {
	return fmt.Sprintf("CREATE INDEX %s ON %s (%s);", f.IndexName, f.TableName, strings.Join(f.Columns, ", "))
}
