// Package warehouse declares the star schema the loader maintains and the storage
// contract every backend implements.
//
// Rows returned by a Tx are normalized with Table.Normalize. Every write goes
// through a Tx obtained from Store.Begin; nothing is visible to other readers
// before Commit.
package warehouse

import (
	"context"
	"time"
)

type Store interface {
	Begin(ctx context.Context) (Tx, error)
	EnsureTables(ctx context.Context, tables []*Table) error
	Close() error
}

type Tx interface {
	// LockKey serializes writers touching the same natural key until the
	// transaction ends.
	LockKey(ctx context.Context, t *Table, naturalKey string) error

	// CurrentVersion returns nil when the natural key has never been loaded.
	CurrentVersion(ctx context.Context, t *Table, naturalKey string) (*Version, error)
	// VersionAt returns the version whose validity interval contains at, or nil.
	VersionAt(ctx context.Context, t *Table, naturalKey string, at time.Time) (*Version, error)
	// CloseVersion ends the current version identified by surrogateKey and
	// returns the number of rows it changed.
	CloseVersion(ctx context.Context, t *Table, surrogateKey string, at time.Time) (int64, error)
	InsertVersion(ctx context.Context, t *Table, v *Version) error

	// ReplaceRows swaps the table contents for rows and returns how many stored
	// natural keys are not part of rows anymore.
	ReplaceRows(ctx context.Context, t *Table, rows []Row) (int64, error)
	// MergeRows overwrites rows by natural key.
	MergeRows(ctx context.Context, t *Table, rows []Row) error
	// LookupKey resolves a Type-1 natural key to its surrogate key.
	LookupKey(ctx context.Context, t *Table, naturalKey any) (string, bool, error)

	// FindRow returns the fact row with the given grain, or nil.
	FindRow(ctx context.Context, t *Table, grain Row) (Row, error)
	// UpsertRow inserts the fact row or replaces the one with the same grain.
	UpsertRow(ctx context.Context, t *Table, row Row) error

	Commit(ctx context.Context) error
	// Rollback after Commit is a no-op.
	Rollback(ctx context.Context) error
}
