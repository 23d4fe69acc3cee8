package catalog

import "github.com/spf13/afero"

// Catalog is the engine's full metadata registry: what tables, indexes and
// functions exist, grounded on original_source's catalog/entry.py module-
// level catalog_table/catalog_index/catalog_function singletons, turned
// into an explicit struct a *engine.Database owns instead (DESIGN NOTES
// §9 -- no process-wide singletons).
type Catalog struct {
	Tables    *Basic[TableForm]
	Indexes   *Basic[IndexForm]
	Functions *FunctionCatalog
}

// Open loads persisted table/index metadata from dir and registers the
// built-in aggregate functions, matching entry.py's init_catalog.
func Open(fs afero.Fs, dir string) (*Catalog, error) {
	c := &Catalog{
		Tables:    NewBasic[TableForm](fs, dir, "table_information"),
		Indexes:   NewBasic[IndexForm](fs, dir, "index_information"),
		Functions: NewFunctionCatalog(),
	}
	if err := c.Tables.Load(); err != nil {
		return nil, err
	}
	if err := c.Indexes.Load(); err != nil {
		return nil, err
	}
	registerBuiltins(c.Functions)
	return c, nil
}

// TableByName returns the named table's form, or ok=false.
func (c *Catalog) TableByName(name string) (TableForm, bool) {
	rows := c.Tables.Select(func(f TableForm) bool { return f.TableName == name })
	if len(rows) == 0 {
		return TableForm{}, false
	}
	return rows[0], true
}

// IndexByName returns the named index's form, or ok=false.
func (c *Catalog) IndexByName(name string) (IndexForm, bool) {
	rows := c.Indexes.Select(func(f IndexForm) bool { return f.IndexName == name })
	if len(rows) == 0 {
		return IndexForm{}, false
	}
	return rows[0], true
}

// IndexesOnTable returns every index registered against tableName.
func (c *Catalog) IndexesOnTable(tableName string) []IndexForm {
	return c.Indexes.Select(func(f IndexForm) bool { return f.TableName == tableName })
}

// DropTable removes tableName's entry and every index registered on it.
func (c *Catalog) DropTable(tableName string) error {
	if err := c.Indexes.Delete(func(f IndexForm) bool { return f.TableName == tableName }); err != nil {
		return err
	}
	return c.Tables.Delete(func(f TableForm) bool { return f.TableName == tableName })
}

// DropIndex removes indexName's entry.
func (c *Catalog) DropIndex(indexName string) error {
	return c.Indexes.Delete(func(f IndexForm) bool { return f.IndexName == indexName })
}
