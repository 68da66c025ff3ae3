package memory

import (
	"context"

	"github.com/ansilo-run/ansilo/internal/catalog"
	"github.com/ansilo-run/ansilo/internal/connector"
)

// Searcher is this connector's EntitySearcher. An in-memory dataset has
// no external schema to introspect — entities are always declared
// explicitly in config — so Discover always returns an empty set rather
// than inventing one from whatever happens to be seeded.
type Searcher struct{}

func (Searcher) Discover(ctx context.Context, conn connector.Connection, ds catalog.DataSource, opts catalog.DiscoverOptions) ([]catalog.Entity, error) {
	return nil, nil
}

// Validator is this connector's EntityValidator. Any attribute set is
// valid against an in-memory table; there's no remote schema it could
// conflict with.
type Validator struct{}

func (Validator) Validate(ctx context.Context, conn connector.Connection, entity catalog.Entity, ds catalog.DataSource) error {
	return nil
}
