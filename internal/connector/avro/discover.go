package avro

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/linkedin/goavro/v2"

	"github.com/ansilo-run/ansilo/internal/catalog"
	"github.com/ansilo-run/ansilo/internal/connector"
)

// Searcher is this connector's EntitySearcher: it walks the data
// source's root directory for *.avro files, opening each one just far
// enough to read its embedded schema. opts.RemoteSchema, when set,
// narrows the walk to that subdirectory. A field whose Avro type has no
// mapping is not dropped: it makes Discover return an error for the
// whole walk.
type Searcher struct{}

func (Searcher) Discover(ctx context.Context, conn connector.Connection, ds catalog.DataSource, opts catalog.DiscoverOptions) ([]catalog.Entity, error) {
	c, ok := conn.(*Connection)
	if !ok {
		return nil, fmt.Errorf("avro: Discover called with a foreign connection type %T", conn)
	}

	root := c.dir
	if opts.RemoteSchema != "" {
		root = filepath.Join(root, opts.RemoteSchema)
	}

	var entities []catalog.Entity
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".avro") {
			return nil
		}
		rel, err := filepath.Rel(c.dir, path)
		if err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		reader, err := goavro.NewOCFReader(f)
		if err != nil {
			return fmt.Errorf("avro: reading %s: %w", rel, err)
		}
		attrs, err := attributesFromSchema(reader.Codec().Schema())
		if err != nil {
			return fmt.Errorf("avro: %s: %w", rel, err)
		}

		entities = append(entities, catalog.Entity{
			ID:         rel,
			Name:       rel,
			Attributes: attrs,
			Source:     catalog.Source{DataSourceID: ds.ID},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entities, nil
}
