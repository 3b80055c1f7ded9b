// Package repository holds the MySQL data access layer and the in-memory
// store.  Repositories speak in model types; sql.ErrNoRows and lock
// conflicts are translated to the reservation package's sentinels here so
// the coordinator never sees driver errors it has to interpret.
package repository

import (
    "context"
    "database/sql"
    "errors"
    "strings"

    "github.com/iliyamo/cinema-seat-coordinator/internal/reservation"
)

// queryer is satisfied by both *sql.DB and *sql.Tx so read helpers can
// run with or without a transaction.
type queryer interface {
    QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
    QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// notFound maps sql.ErrNoRows to reservation.ErrNotFound.
func notFound(err error) error {
    if errors.Is(err, sql.ErrNoRows) {
        return reservation.ErrNotFound
    }
    return err
}

// inClause returns "?,?,?" for n placeholders together with ids as args.
func inClause(ids []uint64) (string, []any) {
    args := make([]any, len(ids))
    for i, id := range ids {
        args[i] = id
    }
    return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}
