// Package catalog holds Ansilo's immutable-after-boot configuration:
// entities (remote tables/collections) and data sources (connector
// instances). Entity configuration is created at config-load time,
// immutable for the lifetime of a node, destroyed at shutdown
// (spec.md glossary, §5 shared-resource policy). Reads are lock-free;
// reloads clone-and-swap — the same design the teacher uses for its
// tenant routing table.
package catalog

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ansilo-run/ansilo/internal/ansierr"
	"github.com/ansilo-run/ansilo/internal/types"
)

// Attribute is one column of an Entity.
type Attribute struct {
	Name        string
	Type        types.DataType
	Nullable    bool
	PrimaryKey  bool
	Description string
}

// Source points an Entity at the data source that backs it, plus
// source-specific options (a bag of strings, as config YAML naturally
// decodes to).
type Source struct {
	DataSourceID string
	Options      map[string]string
}

// Constraint names an entity-level constraint (e.g. a unique key) that
// a connector may use for pushdown eligibility decisions. Kept as a
// loosely-typed bag rather than a closed enum since constraint
// vocabularies vary per backend.
type Constraint struct {
	Kind    string
	Columns []string
}

// Entity is a remote table/collection definition.
type Entity struct {
	ID          string
	Name        string
	Description string
	Tags        []string
	Attributes  []Attribute
	Constraints []Constraint
	Source      Source
}

func (e Entity) Attribute(name string) (Attribute, bool) {
	for _, a := range e.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// DataSource identifies a connector instance: its id, connector type
// (e.g. "jdbc.mysql", "native.postgres", "file.avro", "peer",
// "internal"), and connector-specific connection options.
type DataSource struct {
	ID      string
	Type    string
	Options map[string]string
}

// DiscoverOptions narrows entity discovery for a connector's
// EntitySearcher. An empty RemoteSchema means "all" (spec.md §6).
type DiscoverOptions struct {
	RemoteSchema string
	Other        map[string]string
}

// snapshot is an immutable point-in-time view of the catalog, swapped
// atomically on reload the same way router.routerSnapshot is.
type snapshot struct {
	entities    map[string]Entity
	dataSources map[string]DataSource
}

// Catalog resolves entity and data-source ids. Reads are lock-free via
// atomic.Value; mutations (boot-time load, config hot-reload) serialise
// on a write mutex and swap in a new snapshot.
type Catalog struct {
	snap atomic.Value // holds *snapshot
	wmu  sync.Mutex
}

func New() *Catalog {
	c := &Catalog{}
	c.snap.Store(&snapshot{entities: map[string]Entity{}, dataSources: map[string]DataSource{}})
	return c
}

func (c *Catalog) load() *snapshot {
	return c.snap.Load().(*snapshot)
}

// Entity looks up an entity by id. Lock-free.
func (c *Catalog) Entity(id string) (Entity, error) {
	e, ok := c.load().entities[id]
	if !ok {
		return Entity{}, ansierr.New(ansierr.KindInternal, "unknown entity: %q", id)
	}
	return e, nil
}

// DataSource looks up a data source by id. Lock-free.
func (c *Catalog) DataSource(id string) (DataSource, error) {
	ds, ok := c.load().dataSources[id]
	if !ok {
		return DataSource{}, ansierr.New(ansierr.KindInternal, "unknown data source: %q", id)
	}
	return ds, nil
}

// Entities returns every entity currently in the catalog.
func (c *Catalog) Entities() map[string]Entity {
	snap := c.load()
	out := make(map[string]Entity, len(snap.entities))
	for k, v := range snap.entities {
		out[k] = v
	}
	return out
}

// DataSources returns every data source currently in the catalog.
func (c *Catalog) DataSources() map[string]DataSource {
	snap := c.load()
	out := make(map[string]DataSource, len(snap.dataSources))
	for k, v := range snap.dataSources {
		out[k] = v
	}
	return out
}

// Load replaces the entire catalog (boot or hot-reload). Every entity id
// is checked with ValidateEntityID before the swap, whatever its
// connector: an id beginning with "." or containing "/" is rejected
// (invariant 6).
func (c *Catalog) Load(dataSources []DataSource, entities []Entity) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	next := &snapshot{
		entities:    make(map[string]Entity, len(entities)),
		dataSources: make(map[string]DataSource, len(dataSources)),
	}
	for _, ds := range dataSources {
		next.dataSources[ds.ID] = ds
	}
	for _, e := range entities {
		if err := ValidateEntityID(e.ID); err != nil {
			return err
		}
		if _, ok := next.dataSources[e.Source.DataSourceID]; !ok {
			return ansierr.New(ansierr.KindConfigInvalid,
				"entity %q references unknown data source %q", e.ID, e.Source.DataSourceID)
		}
		next.entities[e.ID] = e
	}

	c.snap.Store(next)
	return nil
}

// ValidateEntityID enforces invariant 6: an entity id beginning with
// "." or containing "/" is rejected, since filesystem-backed validators
// (file.avro) would otherwise interpret it as a path escape.
func ValidateEntityID(id string) error {
	if id == "" {
		return ansierr.New(ansierr.KindConfigInvalid, "entity id must not be empty")
	}
	if strings.HasPrefix(id, ".") {
		return ansierr.New(ansierr.KindConfigInvalid, "entity id %q must not begin with '.'", id)
	}
	if strings.Contains(id, "/") {
		return ansierr.New(ansierr.KindConfigInvalid, "entity id %q must not contain '/'", id)
	}
	return nil
}

func (ds DataSource) String() string {
	return fmt.Sprintf("%s(%s)", ds.ID, ds.Type)
}
