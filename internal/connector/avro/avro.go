// Package avro implements the "file.avro" connector type: a read-only
// backend over Avro Object Container Files on local disk, grounded on
// original_source/ansilo-connectors/file-avro (the file-based connector
// family there shares a FileConnection/FileQueryHandle skeleton across
// avro/parquet/csv; this package reimplements just the avro leaf in
// idiomatic Go using linkedin/goavro, the ecosystem's OCF reader/writer,
// since nothing in the retrieval pack's Go repos touches Avro).
package avro

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ansilo-run/ansilo/internal/auth"
	"github.com/ansilo-run/ansilo/internal/catalog"
	"github.com/ansilo-run/ansilo/internal/connector"
)

// Connector is the "file.avro" connector.Connector: one Pool per data
// source, rooted at the data source's configured "dir" option.
type Connector struct{}

func NewConnector() *Connector { return &Connector{} }

// Factory adapts NewConnector to connector.Factory for registry wiring.
func Factory() connector.Connector { return NewConnector() }

func (c *Connector) Pool(ctx context.Context, ds catalog.DataSource) (connector.Pool, error) {
	dir := ds.Options["dir"]
	if dir == "" {
		dir = "."
	}
	return &Pool{dir: dir}, nil
}

// Pool holds no real resource — every Acquire opens files on demand —
// but exists to satisfy connector.Pool and to carry the root directory.
type Pool struct {
	dir string
}

func (p *Pool) Acquire(ctx context.Context, a *auth.Context) (connector.Connection, error) {
	return &Connection{dir: p.dir}, nil
}

func (p *Pool) Close() error { return nil }

// Connection resolves an entity id to a file path under dir. Entity ids
// are relative paths (e.g. "example.avro"), exactly what Discover
// returns them as.
type Connection struct {
	dir string
}

func (c *Connection) path(entityID string) string {
	return filepath.Join(c.dir, entityID)
}

func (c *Connection) Prepare(ctx context.Context, q connector.BackendQuery) (connector.QueryHandle, error) {
	cq, ok := q.(*compiledQuery)
	if !ok {
		return nil, fmt.Errorf("avro: foreign BackendQuery type %T", q)
	}
	return newHandle(c, cq), nil
}

// TransactionManager: avro files are read-only, so there's nothing to
// transact — the same "no transaction manager" shape the original
// file connector family uses (TTransactionManager = ()).
func (c *Connection) TransactionManager() (connector.TransactionManager, bool) {
	return nil, false
}

func (c *Connection) Close() error { return nil }
