// Package memory implements the "internal" connector type: an
// in-process, shared-mutable dataset with no external backend at all.
// It exists to give the negotiator and FDW Bridge something real to
// run against in tests, and grounds its copy-on-write storage on the
// same atomic snapshot-swap idiom the teacher uses for its tenant
// routing table (internal/router's routerSnapshot) — generalised here
// from a routing table to an arbitrary set of entity tables.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ansilo-run/ansilo/internal/auth"
	"github.com/ansilo-run/ansilo/internal/catalog"
	"github.com/ansilo-run/ansilo/internal/connector"
)

// Connector is the "internal" connector.Connector: one Dataset per data
// source id, created lazily on first Pool() call and kept for the
// Connector's lifetime.
type Connector struct {
	mu       sync.Mutex
	datasets map[string]*Dataset
}

func NewConnector() *Connector {
	return &Connector{datasets: map[string]*Dataset{}}
}

// Factory adapts NewConnector to connector.Factory for registry wiring.
func Factory() connector.Connector { return NewConnector() }

func (c *Connector) Pool(ctx context.Context, ds catalog.DataSource) (connector.Pool, error) {
	return &Pool{dataset: c.Dataset(ds.ID)}, nil
}

// Dataset returns (creating if necessary) the dataset backing a data
// source id. Exported so callers such as tests can seed rows before
// any query runs.
func (c *Connector) Dataset(dataSourceID string) *Dataset {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.datasets[dataSourceID]
	if !ok {
		d = NewDataset()
		c.datasets[dataSourceID] = d
	}
	return d
}

// Pool is a no-op pool: memory connections carry no real resource, so
// Acquire never blocks and Close never fails.
type Pool struct {
	dataset *Dataset
}

func (p *Pool) Acquire(ctx context.Context, a *auth.Context) (connector.Connection, error) {
	return &Connection{dataset: p.dataset}, nil
}

func (p *Pool) Close() error { return nil }

// Connection is a single logical session against a Dataset. Outside a
// transaction, every mutation autocommits straight to the dataset;
// inside one, mutations accumulate in a private working copy that only
// becomes visible to other connections on Commit.
type Connection struct {
	dataset *Dataset
	tx      *txState
}

func (c *Connection) Prepare(ctx context.Context, q connector.BackendQuery) (connector.QueryHandle, error) {
	cq, ok := q.(*compiledQuery)
	if !ok {
		return nil, fmt.Errorf("memory: foreign BackendQuery type %T", q)
	}
	return newHandle(c, cq), nil
}

func (c *Connection) TransactionManager() (connector.TransactionManager, bool) {
	return &txManager{conn: c}, true
}

func (c *Connection) Close() error { return nil }

// view returns the table set this connection's reads should see: its
// own uncommitted writes if a transaction is active, otherwise the
// dataset's last committed snapshot.
func (c *Connection) view() map[string]*table {
	if c.tx != nil && c.tx.active {
		return c.tx.staged
	}
	return c.dataset.Snapshot()
}

// mutate applies f to this connection's current view. In a transaction
// the result replaces the staged working copy only; outside one it
// commits straight to the dataset under the dataset's write lock.
func (c *Connection) mutate(f func(map[string]*table) (map[string]*table, int)) int {
	if c.tx != nil && c.tx.active {
		next, n := f(c.tx.staged)
		c.tx.staged = next
		return n
	}
	return c.dataset.autocommit(f)
}

// txState holds one transaction's working copy: a snapshot taken at
// Begin, mutated in place by subsequent queries, applied atomically to
// the dataset on Commit or discarded on Rollback.
type txState struct {
	active bool
	staged map[string]*table
}

type txManager struct {
	conn *Connection
}

func (m *txManager) InTransaction() bool {
	return m.conn.tx != nil && m.conn.tx.active
}

func (m *txManager) Begin(ctx context.Context) error {
	if m.InTransaction() {
		return fmt.Errorf("memory: already in a transaction")
	}
	m.conn.tx = &txState{active: true, staged: cloneTables(m.conn.dataset.Snapshot())}
	return nil
}

func (m *txManager) Commit(ctx context.Context) error {
	if !m.InTransaction() {
		return fmt.Errorf("memory: not in a transaction")
	}
	m.conn.dataset.Apply(m.conn.tx.staged)
	m.conn.tx = nil
	return nil
}

func (m *txManager) Rollback(ctx context.Context) error {
	if !m.InTransaction() {
		return fmt.Errorf("memory: not in a transaction")
	}
	m.conn.tx = nil
	return nil
}
