package memory

import (
	"sync"
	"sync/atomic"

	"github.com/ansilo-run/ansilo/internal/types"
)

// table is one entity's rows, plus the column order they're stored in.
type table struct {
	columns []string
	rows    [][]types.DataValue
}

func cloneTables(m map[string]*table) map[string]*table {
	out := make(map[string]*table, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Dataset is the mutable state a memory data source holds: a set of
// tables behind an atomically-swapped snapshot, the same copy-on-write
// idiom the catalog and (in the teacher) the tenant routing table use.
// Readers never take a lock; writers clone the snapshot, mutate the
// clone, and swap it in.
type Dataset struct {
	snap atomic.Value // map[string]*table
	mu   sync.Mutex   // serialises Seed and autocommit writers
}

func NewDataset() *Dataset {
	d := &Dataset{}
	d.snap.Store(map[string]*table{})
	return d
}

// Snapshot returns the dataset's current committed view.
func (d *Dataset) Snapshot() map[string]*table {
	return d.snap.Load().(map[string]*table)
}

// Apply atomically replaces the committed view. Used both for
// autocommit writes and for TransactionManager.Commit.
func (d *Dataset) Apply(next map[string]*table) {
	d.snap.Store(next)
}

// Seed preloads or replaces an entity's rows outside of any query path;
// the package's tests use it to set up their data.
func (d *Dataset) Seed(entityID string, columns []string, rows [][]types.DataValue) {
	d.mu.Lock()
	defer d.mu.Unlock()
	next := cloneTables(d.Snapshot())
	cp := make([][]types.DataValue, len(rows))
	copy(cp, rows)
	next[entityID] = &table{columns: columns, rows: cp}
	d.Apply(next)
}

// autocommit applies a pure transform of the committed view under the
// write lock and stores the result, returning whatever the transform
// returned alongside it.
func (d *Dataset) autocommit(f func(map[string]*table) (map[string]*table, int)) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	next, n := f(d.Snapshot())
	d.Apply(next)
	return n
}

func insertRows(tables map[string]*table, entityID string, columns []string, newRows [][]types.DataValue) map[string]*table {
	next := cloneTables(tables)
	t, ok := next[entityID]
	if !ok {
		t = &table{columns: columns}
	}
	merged := make([][]types.DataValue, 0, len(t.rows)+len(newRows))
	merged = append(merged, t.rows...)
	merged = append(merged, newRows...)
	next[entityID] = &table{columns: t.columns, rows: merged}
	return next
}

func deleteRows(tables map[string]*table, entityID string, keep func([]types.DataValue) bool) (map[string]*table, int) {
	t, ok := tables[entityID]
	if !ok {
		return tables, 0
	}
	kept := make([][]types.DataValue, 0, len(t.rows))
	removed := 0
	for _, r := range t.rows {
		if keep(r) {
			kept = append(kept, r)
		} else {
			removed++
		}
	}
	next := cloneTables(tables)
	next[entityID] = &table{columns: t.columns, rows: kept}
	return next, removed
}

func updateRows(tables map[string]*table, entityID string, match func([]types.DataValue) bool, apply func([]types.DataValue) []types.DataValue) (map[string]*table, int) {
	t, ok := tables[entityID]
	if !ok {
		return tables, 0
	}
	out := make([][]types.DataValue, len(t.rows))
	updated := 0
	for i, r := range t.rows {
		if match(r) {
			out[i] = apply(r)
			updated++
		} else {
			out[i] = r
		}
	}
	next := cloneTables(tables)
	next[entityID] = &table{columns: t.columns, rows: out}
	return next, updated
}
