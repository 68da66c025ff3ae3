// Package node wires the catalog, connector registry and per-data-source
// connection pools into the shapes internal/health and internal/fdwbridge
// depend on, the way the teacher's internal/router bound tenant configs
// to live pool.Manager instances. It owns no network surface of its own.
package node

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ansilo-run/ansilo/internal/ansierr"
	"github.com/ansilo-run/ansilo/internal/auth"
	"github.com/ansilo-run/ansilo/internal/catalog"
	"github.com/ansilo-run/ansilo/internal/connector"
)

// Credentials is the JSON shape fdwbridge.AuthDataSourceRequest.Credentials
// decodes to: a plain username/password pair for passthrough auth, or a
// service-user flag that bypasses passthrough entirely (spec.md §4.G).
type Credentials struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	ServiceUser bool   `json:"service_user"`
}

// Capabilities bundles the stateless QueryCompiler/QueryPlanner a
// connector type exposes alongside its Factory — registered once per
// connector type at boot, unlike Pool which is instantiated per data
// source.
type Capabilities struct {
	Compiler connector.QueryCompiler
	Planner  connector.QueryPlanner
}

// Node resolves data sources to live pools and capabilities, and
// implements health.Pools, fdwbridge.Authenticator and fdwbridge.Compiler
// against a single shared connector.Registry + catalog.Catalog.
type Node struct {
	catalog      *catalog.Catalog
	registry     *connector.Registry
	capabilities map[string]Capabilities

	mu    sync.Mutex
	pools map[string]connector.Pool
}

func New(cat *catalog.Catalog, registry *connector.Registry, capabilities map[string]Capabilities) *Node {
	return &Node{
		catalog:      cat,
		registry:     registry,
		capabilities: capabilities,
		pools:        make(map[string]connector.Pool),
	}
}

// Pool resolves (and lazily caches) the connector.Pool bound to a data
// source id, satisfying health.Pools.
func (n *Node) Pool(dataSourceID string) (connector.Pool, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if p, ok := n.pools[dataSourceID]; ok {
		return p, true
	}
	ds, err := n.catalog.DataSource(dataSourceID)
	if err != nil {
		return nil, false
	}
	conn, err := n.registry.Resolve(ds.Type)
	if err != nil {
		return nil, false
	}
	pool, err := conn.Pool(context.Background(), ds)
	if err != nil {
		return nil, false
	}
	n.pools[dataSourceID] = pool
	return pool, true
}

// Authenticate resolves a bridge client's AuthDataSource request: looks
// up the data source, decodes passthrough credentials, and builds the
// auth.Context the pool's Acquire will thread through to the backend.
func (n *Node) Authenticate(ctx context.Context, dataSourceID string, credentials []byte) (catalog.DataSource, connector.Pool, *auth.Context, error) {
	ds, err := n.catalog.DataSource(dataSourceID)
	if err != nil {
		return catalog.DataSource{}, nil, nil, ansierr.Wrap(ansierr.KindAuthRejected, err, "unknown data source %q", dataSourceID)
	}

	pool, ok := n.Pool(dataSourceID)
	if !ok {
		return catalog.DataSource{}, nil, nil, ansierr.New(ansierr.KindAuthRejected, "no pool available for data source %q", dataSourceID)
	}

	var creds Credentials
	if len(credentials) > 0 {
		if err := json.Unmarshal(credentials, &creds); err != nil {
			return catalog.DataSource{}, nil, nil, ansierr.Wrap(ansierr.KindProtocolViolation, err, "decoding credentials")
		}
	}

	authCtx := &auth.Context{
		Username:    creds.Username,
		ServiceUser: creds.ServiceUser,
	}
	if !creds.ServiceUser {
		authCtx.Claims = auth.PasswordClaims{Password: creds.Password}
	}

	return ds, pool, authCtx, nil
}

// CompilerFor, PlannerFor and EntitiesFor satisfy fdwbridge.Compiler.
func (n *Node) CompilerFor(ds catalog.DataSource) (connector.QueryCompiler, error) {
	cap, ok := n.capabilities[ds.Type]
	if !ok || cap.Compiler == nil {
		return nil, ansierr.New(ansierr.KindUnsupported, "connector type %q has no query compiler", ds.Type)
	}
	return cap.Compiler, nil
}

func (n *Node) PlannerFor(ds catalog.DataSource) (connector.QueryPlanner, error) {
	cap, ok := n.capabilities[ds.Type]
	if !ok || cap.Planner == nil {
		return nil, ansierr.New(ansierr.KindUnsupported, "connector type %q has no query planner", ds.Type)
	}
	return cap.Planner, nil
}

func (n *Node) EntitiesFor(ds catalog.DataSource) map[string]catalog.Entity {
	out := make(map[string]catalog.Entity)
	for id, e := range n.catalog.Entities() {
		if e.Source.DataSourceID == ds.ID {
			out[id] = e
		}
	}
	return out
}
