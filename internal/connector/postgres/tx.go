package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgproto3"
)

// txManager drives real Postgres transactions over the simple query
// protocol, the way the teacher's pool health check ran bare "SELECT 1"
// probes — BEGIN/COMMIT/ROLLBACK need no parameters or row results.
type txManager struct {
	conn *Connection
}

func (t *txManager) InTransaction() bool { return t.conn.inTransaction }

func (t *txManager) Begin(ctx context.Context) error {
	if t.conn.inTransaction {
		return fmt.Errorf("postgres: already in a transaction")
	}
	if err := runSimple(t.conn.fe, "BEGIN"); err != nil {
		return err
	}
	t.conn.inTransaction = true
	return nil
}

func (t *txManager) Commit(ctx context.Context) error {
	if !t.conn.inTransaction {
		return fmt.Errorf("postgres: no transaction to commit")
	}
	if err := runSimple(t.conn.fe, "COMMIT"); err != nil {
		return err
	}
	t.conn.inTransaction = false
	return nil
}

func (t *txManager) Rollback(ctx context.Context) error {
	if !t.conn.inTransaction {
		return fmt.Errorf("postgres: no transaction to roll back")
	}
	if err := runSimple(t.conn.fe, "ROLLBACK"); err != nil {
		return err
	}
	t.conn.inTransaction = false
	return nil
}

func runSimple(fe *pgproto3.Frontend, sql string) error {
	fe.Send(&pgproto3.Query{String: sql})
	if err := fe.Flush(); err != nil {
		return fmt.Errorf("postgres: sending %q: %w", sql, err)
	}
	for {
		msg, err := fe.Receive()
		if err != nil {
			return err
		}
		switch m := msg.(type) {
		case *pgproto3.ErrorResponse:
			drainToReady(fe)
			return fmt.Errorf("postgres: %s: %s", sql, m.Message)
		case *pgproto3.ReadyForQuery:
			return nil
		}
	}
}
