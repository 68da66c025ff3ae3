package avro

import (
	"context"
	"fmt"
	"os"

	"github.com/ansilo-run/ansilo/internal/catalog"
	"github.com/ansilo-run/ansilo/internal/connector"
)

// Validator rejects entity ids that catalog.ValidateEntityID refuses (a
// leading "." or a "/", which would resolve outside the data source's
// root) and entities whose backing file doesn't exist under that root.
type Validator struct{}

func (Validator) Validate(ctx context.Context, conn connector.Connection, entity catalog.Entity, ds catalog.DataSource) error {
	c, ok := conn.(*Connection)
	if !ok {
		return fmt.Errorf("avro: Validate called with a foreign connection type %T", conn)
	}
	if err := catalog.ValidateEntityID(entity.ID); err != nil {
		return err
	}
	if _, err := os.Stat(c.path(entity.ID)); err != nil {
		return fmt.Errorf("avro: entity %q: %w", entity.ID, err)
	}
	return nil
}
