package load

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrAmbiguousBatch         = errors.New("ambiguous batch")
	ErrOutOfOrderBatch        = errors.New("batch is not newer than the current version")
	ErrConcurrentModification = errors.New("current version was modified concurrently")
	ErrInvalidBatch           = errors.New("invalid batch")
)

// AmbiguousBatchError reports a key that appears more than once in a batch with
// different values.
type AmbiguousBatchError struct {
	Table   string
	Key     string
	Columns []string
}

func (e *AmbiguousBatchError) Error() string {
	return fmt.Sprintf("%s: %s has conflicting rows for key '%s' (differs in %s)",
		ErrAmbiguousBatch, e.Table, e.Key, strings.Join(e.Columns, ", "))
}

func (e *AmbiguousBatchError) Is(target error) bool {
	return target == ErrAmbiguousBatch
}
