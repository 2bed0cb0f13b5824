package sqldb

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v4"
)

// databaseLocks maps database paths to a single-writer semaphore, so every
// Store opened on the same file shares one writer.
var databaseLocks = xsync.NewMap[string, chan struct{}]()

// LockDatabase blocks until the writer lock of path is free or ctx is done. The
// returned function releases the lock and is safe to call more than once.
func LockDatabase(ctx context.Context, path string) (func(), error) {
	sem, _ := databaseLocks.LoadOrStore(path, make(chan struct{}, 1))

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "failed to acquire the writer lock on %s", path)
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-sem })
	}, nil
}
