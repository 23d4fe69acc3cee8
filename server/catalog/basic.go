// Package catalog is the engine's metadata registry: which tables, indexes
// and functions exist and what they look like, grounded on
// _examples/original_source/DB/imoocdb/imoocdb/catalog/*.py. Table and index
// metadata is durable (dumped to a msgpack file on every change, loaded once
// at startup); function metadata holds Go closures and is rebuilt in memory
// every start instead, same as the teacher's CatalogFunction overriding
// dump/load to no-ops because a Python callback can't be pickled either.
package catalog

import (
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/hashicorp/go-msgpack/v2/codec"
	"github.com/imoocdb/imoocdb/server/dberrors"
)

// Basic is a small file-backed registry of rows of one catalog kind --
// table metadata, index metadata -- matching the teacher's CatalogBasic
// insert/delete/select/dump/load shape.
type Basic[T any] struct {
	mu   sync.Mutex
	fs   afero.Fs
	dir  string
	name string
	rows []T
}

// NewBasic builds a registry backed by dir/name.
func NewBasic[T any](fs afero.Fs, dir, name string) *Basic[T] {
	return &Basic[T]{fs: fs, dir: dir, name: name}
}

func (b *Basic[T]) path() string { return filepath.Join(b.dir, b.name) }

// Insert appends row and persists the registry.
func (b *Basic[T]) Insert(row T) error {
	b.mu.Lock()
	b.rows = append(b.rows, row)
	b.mu.Unlock()
	return b.Dump()
}

// Delete removes every row match reports true for, then persists.
func (b *Basic[T]) Delete(match func(T) bool) error {
	b.mu.Lock()
	kept := b.rows[:0:0]
	for _, r := range b.rows {
		if !match(r) {
			kept = append(kept, r)
		}
	}
	b.rows = kept
	b.mu.Unlock()
	return b.Dump()
}

// Select returns every row match reports true for.
func (b *Basic[T]) Select(match func(T) bool) []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []T
	for _, r := range b.rows {
		if match(r) {
			out = append(out, r)
		}
	}
	return out
}

// All returns every row currently registered.
func (b *Basic[T]) All() []T {
	return b.Select(func(T) bool { return true })
}

// Dump persists every row to the registry's file, fsyncing so the write
// survives a crash -- the teacher does this on every insert/delete rather
// than batching, and this keeps the same guarantee.
func (b *Basic[T]) Dump() error {
	if err := b.fs.MkdirAll(b.dir, 0o755); err != nil {
		return dberrors.Rollbackf("creating catalog directory %s: %v", b.dir, err)
	}
	f, err := b.fs.Create(b.path())
	if err != nil {
		return dberrors.Rollbackf("creating catalog file %s: %v", b.path(), err)
	}
	defer f.Close()

	b.mu.Lock()
	rows := append([]T{}, b.rows...)
	b.mu.Unlock()

	enc := codec.NewEncoder(f, &codec.MsgpackHandle{})
	if err := enc.Encode(rows); err != nil {
		return dberrors.Rollbackf("writing catalog file %s: %v", b.path(), err)
	}
	if syncer, ok := f.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			return dberrors.Rollbackf("syncing catalog file %s: %v", b.path(), err)
		}
	}
	return nil
}

// Load replaces the in-memory rows with whatever is on disk, if anything.
func (b *Basic[T]) Load() error {
	exists, err := afero.Exists(b.fs, b.path())
	if err != nil {
		return dberrors.Rollbackf("checking catalog file %s: %v", b.path(), err)
	}
	if !exists {
		return nil
	}

	f, err := b.fs.Open(b.path())
	if err != nil {
		return dberrors.Rollbackf("opening catalog file %s: %v", b.path(), err)
	}
	defer f.Close()

	var rows []T
	dec := codec.NewDecoder(f, &codec.MsgpackHandle{})
	if err := dec.Decode(&rows); err != nil {
		return dberrors.Rollbackf("decoding catalog file %s: %v", b.path(), err)
	}

	b.mu.Lock()
	b.rows = rows
	b.mu.Unlock()
	return nil
}
