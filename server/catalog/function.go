package catalog

import (
	"sync"

	"github.com/imoocdb/imoocdb/server/common"
	"github.com/imoocdb/imoocdb/server/dberrors"
)

// AggFunc reduces a group's collected column values to one result, the Go
// equivalent of the teacher's registered Python `callback`.
type AggFunc func([]common.Value) (common.Value, error)

// FunctionForm is one registered function's catalog entry.
type FunctionForm struct {
	FunctionName string
	ArgNum       int // -1 means variadic, matching the teacher's built-ins
	Callback     AggFunc
	IsAgg        bool
}

// FunctionCatalog holds registered functions in memory only. Unlike
// TableForm/IndexForm, a FunctionForm carries a Go closure that can't be
// msgpack-encoded, so -- exactly like the teacher's CatalogFunction, whose
// dump/load are both no-ops -- this registry is rebuilt fresh on every
// start rather than persisted.
type FunctionCatalog struct {
	mu   sync.Mutex
	rows map[string]FunctionForm
}

// NewFunctionCatalog builds an empty registry.
func NewFunctionCatalog() *FunctionCatalog {
	return &FunctionCatalog{rows: make(map[string]FunctionForm)}
}

// Insert registers f, replacing any prior function of the same name.
func (c *FunctionCatalog) Insert(f FunctionForm) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[f.FunctionName] = f
}

// Lookup resolves name to its registered form.
func (c *FunctionCatalog) Lookup(name string) (FunctionForm, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.rows[name]
	if !ok {
		return FunctionForm{}, dberrors.ExecutorCheckError("unknown function %q", name)
	}
	return f, nil
}

// registerBuiltins mirrors catalog/entry.py's init_catalog: count, sum, max,
// min and avg registered once at startup.
func registerBuiltins(c *FunctionCatalog) {
	c.Insert(FunctionForm{FunctionName: "count", ArgNum: -1, IsAgg: true, Callback: countAgg})
	c.Insert(FunctionForm{FunctionName: "sum", ArgNum: -1, IsAgg: true, Callback: sumAgg})
	c.Insert(FunctionForm{FunctionName: "max", ArgNum: -1, IsAgg: true, Callback: maxAgg})
	c.Insert(FunctionForm{FunctionName: "min", ArgNum: -1, IsAgg: true, Callback: minAgg})
	c.Insert(FunctionForm{FunctionName: "avg", ArgNum: -1, IsAgg: true, Callback: avgAgg})
}

func countAgg(values []common.Value) (common.Value, error) {
	return common.Int(int64(len(values))), nil
}

func sumAgg(values []common.Value) (common.Value, error) {
	var total int64
	for _, v := range values {
		if v.Kind != common.KindInt {
			return common.Value{}, dberrors.ExecutorCheckError("sum over non-integer value %v", v)
		}
		total += v.Int
	}
	return common.Int(total), nil
}

func avgAgg(values []common.Value) (common.Value, error) {
	if len(values) == 0 {
		return common.Value{}, dberrors.ExecutorCheckError("avg over empty group")
	}
	total, err := sumAgg(values)
	if err != nil {
		return common.Value{}, err
	}
	return common.Int(total.Int / int64(len(values))), nil
}

func maxAgg(values []common.Value) (common.Value, error) {
	if len(values) == 0 {
		return common.Value{}, dberrors.ExecutorCheckError("max over empty group")
	}
	best := values[0]
	for _, v := range values[1:] {
		if v.Less(best) {
			continue
		}
		best = v
	}
	return best, nil
}

func minAgg(values []common.Value) (common.Value, error) {
	if len(values) == 0 {
		return common.Value{}, dberrors.ExecutorCheckError("min over empty group")
	}
	best := values[0]
	for _, v := range values[1:] {
		if v.Less(best) {
			best = v
		}
	}
	return best, nil
}
