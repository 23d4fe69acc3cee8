// Package bptree implements the engine's on-disk B+Tree index: composite
// keys with NULL components sorting as -infinity, a duplicate-key multiset
// (repeated inserts of the same key keep every value, in insertion order),
// half-open range scans and whole-file serialization. Grounded on spec.md
// §4.2 and _examples/original_source/tests/test_bplustree.py; built
// hand-rolled rather than on github.com/google/btree because that package
// has no notion of a duplicate-preserving multiset or of serializing itself
// to a single file (see DESIGN.md).
package bptree

import (
	"github.com/spf13/afero"

	"github.com/hashicorp/go-msgpack/v2/codec"
	"github.com/imoocdb/imoocdb/server/common"
	"github.com/imoocdb/imoocdb/server/dberrors"
)

// DefaultOrder bounds the number of entries a leaf holds, and the number of
// children an internal node holds, before it splits. Kept small so that the
// 100-insert scenarios in tests actually exercise splitting.
const DefaultOrder = 4

type node struct {
	leaf     bool
	keys     []common.Row // leaf: one per entry; internal: len(children)-1 separators
	values   []common.Row // leaf only, parallel to keys
	children []*node      // internal only
	next     *node        // leaf linked list, for range scans across split leaves
}

// Tree is an in-memory B+Tree; Serialize/Deserialize persist it as a flat,
// ordered list of entries rather than its physical node structure, which is
// enough to satisfy the persistence invariant (find_range output survives a
// round trip) without pinning the on-disk format to a particular fanout.
type Tree struct {
	root  *node
	order int
}

// New builds an empty tree with the default fanout.
func New() *Tree { return NewWithOrder(DefaultOrder) }

func NewWithOrder(order int) *Tree {
	return &Tree{order: order, root: &node{leaf: true}}
}

func compareRows(a, b common.Row) (int, error) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		c, err := a[i].Compare(b[i])
		if err != nil {
			return 0, dberrors.BPlusTreeError("comparing composite key component %d: %v", i, err)
		}
		if c != 0 {
			return c, nil
		}
	}
	switch {
	case len(a) < len(b):
		return -1, nil
	case len(a) > len(b):
		return 1, nil
	default:
		return 0, nil
	}
}

// upperBound returns the first index i such that keys[i] > key, or len(keys)
// if no such index exists. Used both for stable-order leaf insertion and for
// internal-node descent.
func upperBound(keys []common.Row, key common.Row) (int, error) {
	for i, k := range keys {
		c, err := compareRows(k, key)
		if err != nil {
			return 0, err
		}
		if c > 0 {
			return i, nil
		}
	}
	return len(keys), nil
}

func insertRowAt(s []common.Row, i int, v common.Row) []common.Row {
	s = append(s, common.Row{})
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func insertNodeAt(s []*node, i int, v *node) []*node {
	s = append(s, nil)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

// Insert adds (key, value); duplicate keys are preserved rather than
// overwritten.
func (t *Tree) Insert(key, value common.Row) error {
	promoted, right, err := t.insert(t.root, key, value)
	if err != nil {
		return err
	}
	if right != nil {
		t.root = &node{
			leaf:     false,
			keys:     []common.Row{promoted},
			children: []*node{t.root, right},
		}
	}
	return nil
}

func (t *Tree) insert(n *node, key, value common.Row) (common.Row, *node, error) {
	if n.leaf {
		pos, err := upperBound(n.keys, key)
		if err != nil {
			return nil, nil, err
		}
		n.keys = insertRowAt(n.keys, pos, key)
		n.values = insertRowAt(n.values, pos, value)
		if len(n.keys) <= t.order {
			return nil, nil, nil
		}
		mid := len(n.keys) / 2
		right := &node{
			leaf:   true,
			keys:   append([]common.Row{}, n.keys[mid:]...),
			values: append([]common.Row{}, n.values[mid:]...),
			next:   n.next,
		}
		n.keys = n.keys[:mid]
		n.values = n.values[:mid]
		n.next = right
		return right.keys[0], right, nil
	}

	idx, err := upperBound(n.keys, key)
	if err != nil {
		return nil, nil, err
	}
	promoted, right, err := t.insert(n.children[idx], key, value)
	if err != nil {
		return nil, nil, err
	}
	if right == nil {
		return nil, nil, nil
	}

	n.keys = insertRowAt(n.keys, idx, promoted)
	n.children = insertNodeAt(n.children, idx+1, right)
	if len(n.children) <= t.order {
		return nil, nil, nil
	}

	mid := len(n.keys) / 2
	sep := n.keys[mid]
	rightNode := &node{
		leaf:     false,
		keys:     append([]common.Row{}, n.keys[mid+1:]...),
		children: append([]*node{}, n.children[mid+1:]...),
	}
	n.keys = n.keys[:mid]
	n.children = n.children[:mid+1]
	return sep, rightNode, nil
}

func (t *Tree) descendToLeaf(key common.Row) (*node, error) {
	n := t.root
	for !n.leaf {
		idx, err := upperBound(n.keys, key)
		if err != nil {
			return nil, err
		}
		// A run of keys equal to key can begin left of a separator equal to
		// key, so step back past such separators (upperBound compared them).
		for idx > 0 {
			if c, _ := compareRows(n.keys[idx-1], key); c < 0 {
				break
			}
			idx--
		}
		n = n.children[idx]
	}
	// A leaf whose keys all sort below key leaves any match to the next leaf.
	if n.next != nil && len(n.keys) > 0 {
		if c, _ := compareRows(n.keys[len(n.keys)-1], key); c < 0 {
			n = n.next
		}
	}
	return n, nil
}

func (t *Tree) leftmostLeaf() *node {
	n := t.root
	for !n.leaf {
		n = n.children[0]
	}
	return n
}

// Find returns every value inserted under key, in insertion order. A key
// with enough duplicate inserts to overflow one leaf spans several leaves;
// Find walks the leaf chain until the run of matching keys ends.
func (t *Tree) Find(key common.Row) ([]common.Row, error) {
	leaf, err := t.descendToLeaf(key)
	if err != nil {
		return nil, err
	}
	var out []common.Row
	for leaf != nil {
		lastMatched := false
		for i, k := range leaf.keys {
			c, err := compareRows(k, key)
			if err != nil {
				return nil, err
			}
			if c == 0 {
				out = append(out, leaf.values[i])
				lastMatched = true
			} else if c > 0 {
				return out, nil
			}
		}
		if !lastMatched {
			break
		}
		leaf = leaf.next
	}
	return out, nil
}

// FindRange returns values in key order (insertion order among equal keys)
// over the half-open interval [start, end). A nil start means -infinity; a
// nil end means +infinity.
func (t *Tree) FindRange(start, end common.Row) ([]common.Row, error) {
	var leaf *node
	var err error
	if start == nil {
		leaf = t.leftmostLeaf()
	} else {
		leaf, err = t.descendToLeaf(start)
		if err != nil {
			return nil, err
		}
	}

	var out []common.Row
	for leaf != nil {
		for i, k := range leaf.keys {
			if start != nil {
				c, err := compareRows(k, start)
				if err != nil {
					return nil, err
				}
				if c < 0 {
					continue
				}
			}
			if end != nil {
				c, err := compareRows(k, end)
				if err != nil {
					return nil, err
				}
				if c >= 0 {
					return out, nil
				}
			}
			out = append(out, leaf.values[i])
		}
		leaf = leaf.next
	}
	return out, nil
}

// Delete removes every entry for key. Underflowing leaves are left in place
// rather than merged or redistributed -- the tree remains searchable and
// ordered, which is all spec.md §4.2 requires.
func (t *Tree) Delete(key common.Row) error {
	leaf, err := t.descendToLeaf(key)
	if err != nil {
		return err
	}
	for leaf != nil {
		keepKeys := leaf.keys[:0:0]
		keepValues := leaf.values[:0:0]
		lastMatched := false
		stop := false
		for i, k := range leaf.keys {
			c, cmpErr := compareRows(k, key)
			if cmpErr != nil {
				return cmpErr
			}
			switch {
			case c == 0:
				lastMatched = true
			case c > 0:
				stop = true
				keepKeys = append(keepKeys, k)
				keepValues = append(keepValues, leaf.values[i])
			default:
				keepKeys = append(keepKeys, k)
				keepValues = append(keepValues, leaf.values[i])
			}
		}
		leaf.keys = keepKeys
		leaf.values = keepValues
		if stop || !lastMatched {
			break
		}
		leaf = leaf.next
	}
	return nil
}

// DeleteValue removes exactly one entry matching both key and value --
// unlike Delete, which removes every entry for key. Index maintenance uses
// this to retract a single row's index entry without disturbing other rows
// that share the same key.
func (t *Tree) DeleteValue(key, value common.Row) error {
	leaf, err := t.descendToLeaf(key)
	if err != nil {
		return err
	}
	for leaf != nil {
		removed := false
		lastMatched := false
		stop := false
		keepKeys := leaf.keys[:0:0]
		keepValues := leaf.values[:0:0]
		for i, k := range leaf.keys {
			c, cmpErr := compareRows(k, key)
			if cmpErr != nil {
				return cmpErr
			}
			switch {
			case c == 0:
				lastMatched = true
				if !removed && leaf.values[i].Equal(value) {
					removed = true
					continue
				}
			case c > 0:
				stop = true
			}
			keepKeys = append(keepKeys, k)
			keepValues = append(keepValues, leaf.values[i])
		}
		leaf.keys = keepKeys
		leaf.values = keepValues
		if removed || stop || !lastMatched {
			break
		}
		leaf = leaf.next
	}
	return nil
}

type entryDTO struct {
	Key   common.Row `codec:"key"`
	Value common.Row `codec:"value"`
}

// Serialize writes every entry in key order to a single file; Deserialize
// rebuilds an equivalent tree by re-inserting them in that same order, which
// is enough to satisfy the "find_range output survives a round trip"
// invariant without pinning the on-disk format to one physical node layout.
func (t *Tree) Serialize(fs afero.Fs, path string) error {
	entries, err := t.FindRangeEntries()
	if err != nil {
		return err
	}
	f, err := fs.Create(path)
	if err != nil {
		return dberrors.BPlusTreeError("creating index file %s: %v", path, err)
	}
	defer f.Close()

	enc := codec.NewEncoder(f, &codec.MsgpackHandle{})
	if err := enc.Encode(entries); err != nil {
		return dberrors.BPlusTreeError("encoding index file %s: %v", path, err)
	}
	return nil
}

// Deserialize loads a tree previously written by Serialize.
func Deserialize(fs afero.Fs, path string) (*Tree, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, dberrors.BPlusTreeError("opening index file %s: %v", path, err)
	}
	defer f.Close()

	var entries []entryDTO
	dec := codec.NewDecoder(f, &codec.MsgpackHandle{})
	if err := dec.Decode(&entries); err != nil {
		return nil, dberrors.BPlusTreeError("decoding index file %s: %v", path, err)
	}

	t := New()
	for _, e := range entries {
		if err := t.Insert(e.Key, e.Value); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// FindRangeEntries is FindRange(nil, nil) but paired with the key each value
// was inserted under, for serialization and for callers (covered index
// scans) that need the key back rather than just the value.
func (t *Tree) FindRangeEntries() ([]entryDTO, error) {
	leaf := t.leftmostLeaf()
	var out []entryDTO
	for leaf != nil {
		for i, k := range leaf.keys {
			out = append(out, entryDTO{Key: k, Value: leaf.values[i]})
		}
		leaf = leaf.next
	}
	return out, nil
}
