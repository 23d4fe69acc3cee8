// Package engine owns the live handles a running instance executes physical
// plans against: the catalog, open table/index files, the lock manager and
// the redo/undo log managers, grounded on original_source's catalog/entry.py
// and access/engine.py module-level singletons, collapsed here into one
// struct a server process constructs once and threads through explicitly
// (DESIGN.md: no process-wide singletons).
package engine

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/imoocdb/imoocdb/server/catalog"
	"github.com/imoocdb/imoocdb/server/conf"
	"github.com/imoocdb/imoocdb/server/engine/operator"
	"github.com/imoocdb/imoocdb/server/storage/lock"
	"github.com/imoocdb/imoocdb/server/storage/tuple"
	"github.com/imoocdb/imoocdb/server/storage/txn"
)

// Database bundles everything a physical plan needs to run: catalog,
// table/index handles, locking and the transaction manager. It implements
// tuple.TableLookup/tuple.IndexLookup (for the Applier that replays redo/undo
// records) and operator.TableCreator/operator.IndexRegistrar (for
// PhysicalDDL), so one value satisfies every role operator.Env and
// txn.Manager need.
type Database struct {
	fs  afero.Fs
	cfg *conf.Cfg

	mu      sync.RWMutex
	tables  map[string]*tuple.Table
	indexes map[string]*tuple.Index

	Catalog *catalog.Catalog
	Locks   *lock.Manager
	Redo    *txn.RedoLogManager
	Undo    *txn.UndoLogManager
	Txn     *txn.Manager
}

// Open opens (creating if absent) the on-disk directory layout named by
// cfg.WorkingDirectory inside fs: catalog metadata, the redo log and the
// undo log directory. It then runs crash recovery (spec.md §4.7: redo
// committed transactions forward, undo the ones left in flight) before
// rebuilding every catalog-registered index by rescanning its table, since a
// B+Tree lives only in memory (spec.md §4.3).
func Open(fs afero.Fs, cfg *conf.Cfg) (*Database, error) {
	dir := cfg.WorkingDirectory
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating working directory %s: %w", dir, err)
	}

	cat, err := catalog.Open(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	redo, err := txn.NewRedoLogManager(fs, filepath.Join(dir, "redo.log"))
	if err != nil {
		return nil, fmt.Errorf("opening redo log: %w", err)
	}
	undo, err := txn.NewUndoLogManager(fs, filepath.Join(dir, "undo"))
	if err != nil {
		return nil, fmt.Errorf("opening undo log: %w", err)
	}

	db := &Database{
		fs:      fs,
		cfg:     cfg,
		tables:  make(map[string]*tuple.Table),
		indexes: make(map[string]*tuple.Index),
		Catalog: cat,
		Locks:   lock.New(),
		Redo:    redo,
		Undo:    undo,
	}

	applier := &tuple.Applier{Tables: db, Indexes: db}
	db.Txn = txn.NewManager(redo, undo, applier, applier, nil)

	for _, form := range cat.Tables.Select(func(catalog.TableForm) bool { return true }) {
		if _, err := db.openTableFile(form.TableName); err != nil {
			return nil, fmt.Errorf("reopening table %s: %w", form.TableName, err)
		}
	}
	if err := db.Txn.Recovery(); err != nil {
		return nil, fmt.Errorf("recovering from redo/undo logs: %w", err)
	}
	if err := db.rebuildIndexes(); err != nil {
		return nil, err
	}
	return db, nil
}

// rebuildIndexes reconstructs every catalog-registered index's B+Tree by
// rescanning its table, since index.go's Index carries no on-disk form of
// its own.
func (db *Database) rebuildIndexes() error {
	for _, form := range db.Catalog.Indexes.Select(func(catalog.IndexForm) bool { return true }) {
		tableForm, ok := db.Catalog.TableByName(form.TableName)
		if !ok {
			return fmt.Errorf("index %s references unknown table %s", form.IndexName, form.TableName)
		}
		keyColumnIDs := make([]int, len(form.Columns))
		for i, col := range form.Columns {
			id := tableForm.ColumnIndex(col)
			if id < 0 {
				return fmt.Errorf("index %s: column %s not found on table %s", form.IndexName, col, form.TableName)
			}
			keyColumnIDs[i] = id
		}
		table, err := db.Table(form.TableName)
		if err != nil {
			return err
		}
		idx, err := tuple.IndexTupleCreate(table, form.IndexName, form.TableName, keyColumnIDs, form.Covered)
		if err != nil {
			return fmt.Errorf("rebuilding index %s: %w", form.IndexName, err)
		}
		db.RegisterIndex(form.IndexName, idx)
	}
	return nil
}

// Table implements tuple.TableLookup.
func (db *Database) Table(name string) (*tuple.Table, error) {
	db.mu.RLock()
	t, ok := db.tables[name]
	db.mu.RUnlock()
	if ok {
		return t, nil
	}
	return nil, fmt.Errorf("table %s is not open", name)
}

// Index implements tuple.IndexLookup.
func (db *Database) Index(name string) (*tuple.Index, error) {
	db.mu.RLock()
	idx, ok := db.indexes[name]
	db.mu.RUnlock()
	if ok {
		return idx, nil
	}
	return nil, fmt.Errorf("index %s is not registered", name)
}

// CreateTable implements operator.TableCreator: it opens name's table file,
// creating it if this is the first time, and tracks it for later lookups.
func (db *Database) CreateTable(name string) (*tuple.Table, error) {
	return db.openTableFile(name)
}

func (db *Database) openTableFile(name string) (*tuple.Table, error) {
	path := filepath.Join(db.cfg.WorkingDirectory, name+".tbl")
	t, err := tuple.OpenTable(db.fs, path, db.cfg.PageSize, db.cfg.LRUCapacity)
	if err != nil {
		return nil, err
	}
	db.mu.Lock()
	db.tables[name] = t
	db.mu.Unlock()
	return t, nil
}

// RegisterIndex implements operator.IndexRegistrar.
func (db *Database) RegisterIndex(name string, idx *tuple.Index) {
	db.mu.Lock()
	db.indexes[name] = idx
	db.mu.Unlock()
}

// Config returns the configuration Open was called with, for callers (the
// wire protocol's cleartext password check, the CLI's listen address) that
// need a knob this struct doesn't expose its own accessor for.
func (db *Database) Config() *conf.Cfg { return db.cfg }

// Env builds the operator.Env this database's live handles back.
func (db *Database) Env() *operator.Env {
	return &operator.Env{
		Catalog: db.Catalog,
		Tables:  db,
		Indexes: db,
		Locks:   db.Locks,
		Redo:    db.Redo,
		Undo:    db.Undo,
	}
}
