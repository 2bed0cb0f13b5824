// Package memory is an in-process warehouse backend. A transaction works on a
// private copy of the committed state which replaces it on Commit, so readers
// never see partial loads. One transaction is open at a time.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/bruin-data/staywarehouse/pkg/warehouse"
	"github.com/pkg/errors"
)

var ErrTxDone = errors.New("transaction has already been committed or rolled back")

type tables map[string][]warehouse.Row

func (s tables) clone() tables {
	out := make(tables, len(s))
	for name, rows := range s {
		copied := make([]warehouse.Row, len(rows))
		for i, r := range rows {
			copied[i] = r.Clone()
		}
		out[name] = copied
	}
	return out
}

type Store struct {
	writer chan struct{}

	mu    sync.RWMutex
	state tables
}

func NewStore() *Store {
	return &Store{
		writer: make(chan struct{}, 1),
		state:  tables{},
	}
}

func (s *Store) EnsureTables(_ context.Context, ts []*warehouse.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range ts {
		if _, ok := s.state[t.Name]; !ok {
			s.state[t.Name] = nil
		}
	}
	return nil
}

// Begin waits until no other transaction is open or ctx is done.
func (s *Store) Begin(ctx context.Context) (warehouse.Tx, error) {
	select {
	case s.writer <- struct{}{}:
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "failed to acquire the writer lock")
	}

	s.mu.RLock()
	state := s.state.clone()
	s.mu.RUnlock()

	return &Tx{store: s, state: state}, nil
}

func (s *Store) Close() error {
	return nil
}

// Rows returns a copy of the committed rows of a table in insertion order.
func (s *Store) Rows(table string) []warehouse.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.state[table]
	out := make([]warehouse.Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}

func (s *Store) commit(state tables) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Store) release() {
	<-s.writer
}

type Tx struct {
	store *Store
	state tables
	done  bool
}

func (tx *Tx) check(ctx context.Context) error {
	if tx.done {
		return ErrTxDone
	}
	return ctx.Err()
}

func (tx *Tx) LockKey(ctx context.Context, _ *warehouse.Table, _ string) error {
	return tx.check(ctx)
}

func (tx *Tx) CurrentVersion(ctx context.Context, t *warehouse.Table, naturalKey string) (*warehouse.Version, error) {
	if err := tx.check(ctx); err != nil {
		return nil, err
	}

	var current *warehouse.Version
	for _, row := range tx.state[t.Name] {
		if row[t.NaturalKey] != naturalKey || row[warehouse.ColumnIsCurrent] != true {
			continue
		}
		if current != nil {
			return nil, errors.Errorf("%s has more than one current version for '%s'", t.Name, naturalKey)
		}
		v, err := warehouse.VersionFromRow(t, row)
		if err != nil {
			return nil, err
		}
		current = v
	}
	return current, nil
}

func (tx *Tx) VersionAt(ctx context.Context, t *warehouse.Table, naturalKey string, at time.Time) (*warehouse.Version, error) {
	if err := tx.check(ctx); err != nil {
		return nil, err
	}

	var found *warehouse.Version
	for _, row := range tx.state[t.Name] {
		if row[t.NaturalKey] != naturalKey {
			continue
		}
		v, err := warehouse.VersionFromRow(t, row)
		if err != nil {
			return nil, err
		}
		if v.Contains(at) && (found == nil || v.EffectiveFrom.After(found.EffectiveFrom)) {
			found = v
		}
	}
	return found, nil
}

func (tx *Tx) CloseVersion(ctx context.Context, t *warehouse.Table, surrogateKey string, at time.Time) (int64, error) {
	if err := tx.check(ctx); err != nil {
		return 0, err
	}

	var closed int64
	for _, row := range tx.state[t.Name] {
		if row[t.SurrogateKey] != surrogateKey || row[warehouse.ColumnIsCurrent] != true {
			continue
		}
		row[warehouse.ColumnEffectiveTo] = warehouse.Timestamp(at)
		row[warehouse.ColumnIsCurrent] = false
		closed++
	}
	return closed, nil
}

func (tx *Tx) InsertVersion(ctx context.Context, t *warehouse.Table, v *warehouse.Version) error {
	if err := tx.check(ctx); err != nil {
		return err
	}

	row, err := t.Normalize(v.Row(t))
	if err != nil {
		return err
	}

	for _, existing := range tx.state[t.Name] {
		if existing[t.NaturalKey] != v.NaturalKey {
			continue
		}
		if warehouse.ValuesEqual(existing[warehouse.ColumnEffectiveFrom], row[warehouse.ColumnEffectiveFrom]) {
			return errors.Errorf("duplicate key in %s: (%s, %s) already exists", t.Name, v.NaturalKey, v.EffectiveFrom.Format(time.RFC3339Nano))
		}
		if v.IsCurrent && existing[warehouse.ColumnIsCurrent] == true {
			return errors.Errorf("duplicate key in %s: '%s' already has a current version", t.Name, v.NaturalKey)
		}
	}

	tx.state[t.Name] = append(tx.state[t.Name], row)
	return nil
}

func (tx *Tx) normalizeUnique(t *warehouse.Table, rows []warehouse.Row) ([]warehouse.Row, error) {
	out := make([]warehouse.Row, 0, len(rows))
	seen := make(map[any]struct{}, len(rows))
	for _, r := range rows {
		row, err := t.Normalize(r)
		if err != nil {
			return nil, err
		}
		nk := row[t.NaturalKey]
		if _, ok := seen[nk]; ok {
			return nil, errors.Errorf("duplicate key in %s: '%v'", t.Name, nk)
		}
		seen[nk] = struct{}{}
		out = append(out, row)
	}
	return out, nil
}

func (tx *Tx) ReplaceRows(ctx context.Context, t *warehouse.Table, rows []warehouse.Row) (int64, error) {
	if err := tx.check(ctx); err != nil {
		return 0, err
	}

	normalized, err := tx.normalizeUnique(t, rows)
	if err != nil {
		return 0, err
	}

	incoming := make(map[any]struct{}, len(normalized))
	for _, r := range normalized {
		incoming[r[t.NaturalKey]] = struct{}{}
	}

	var removed int64
	for _, existing := range tx.state[t.Name] {
		if _, ok := incoming[existing[t.NaturalKey]]; !ok {
			removed++
		}
	}

	tx.state[t.Name] = normalized
	return removed, nil
}

func (tx *Tx) MergeRows(ctx context.Context, t *warehouse.Table, rows []warehouse.Row) error {
	if err := tx.check(ctx); err != nil {
		return err
	}

	normalized, err := tx.normalizeUnique(t, rows)
	if err != nil {
		return err
	}

	index := make(map[any]int, len(tx.state[t.Name]))
	for i, existing := range tx.state[t.Name] {
		index[existing[t.NaturalKey]] = i
	}
	for _, row := range normalized {
		if i, ok := index[row[t.NaturalKey]]; ok {
			tx.state[t.Name][i] = row
			continue
		}
		tx.state[t.Name] = append(tx.state[t.Name], row)
	}
	return nil
}

func (tx *Tx) LookupKey(ctx context.Context, t *warehouse.Table, naturalKey any) (string, bool, error) {
	if err := tx.check(ctx); err != nil {
		return "", false, err
	}

	for _, row := range tx.state[t.Name] {
		if !warehouse.ValuesEqual(row[t.NaturalKey], naturalKey) {
			continue
		}
		sk, ok := row[t.SurrogateKey].(string)
		return sk, ok, nil
	}
	return "", false, nil
}

func (tx *Tx) indexOf(t *warehouse.Table, grain warehouse.Row) int {
	for i, row := range tx.state[t.Name] {
		if len(warehouse.ChangedColumns(row, grain, t.Grain)) == 0 {
			return i
		}
	}
	return -1
}

func (tx *Tx) FindRow(ctx context.Context, t *warehouse.Table, grain warehouse.Row) (warehouse.Row, error) {
	if err := tx.check(ctx); err != nil {
		return nil, err
	}

	if i := tx.indexOf(t, grain); i >= 0 {
		return tx.state[t.Name][i].Clone(), nil
	}
	return nil, nil
}

func (tx *Tx) UpsertRow(ctx context.Context, t *warehouse.Table, row warehouse.Row) error {
	if err := tx.check(ctx); err != nil {
		return err
	}

	normalized, err := t.Normalize(row)
	if err != nil {
		return err
	}
	if i := tx.indexOf(t, normalized); i >= 0 {
		tx.state[t.Name][i] = normalized
		return nil
	}
	tx.state[t.Name] = append(tx.state[t.Name], normalized)
	return nil
}

// Commit publishes the transaction state. A cancelled context rolls back instead.
func (tx *Tx) Commit(ctx context.Context) error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	defer tx.store.release()

	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "transaction rolled back")
	}
	tx.store.commit(tx.state)
	return nil
}

func (tx *Tx) Rollback(_ context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.store.release()
	return nil
}
