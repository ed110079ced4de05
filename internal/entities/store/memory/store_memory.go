// Package memory is the in-process Model backend used by tests and by the
// "memory" storage mode. It favours clarity over performance.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cardkeep/internal/entities/filter"
	"cardkeep/internal/entities/store"
	"cardkeep/pkg/platform/sentinel"
)

// InMemory is a single table with an auto-incrementing numeric id.
type InMemory struct {
	mu     sync.RWMutex
	rows   map[int64]store.Row
	nextID int64

	clock         func() time.Time
	createdColumn string
	updatedColumn string
}

// Option configures an InMemory table.
type Option func(*InMemory)

// WithClock sets the clock used for timestamp columns.
func WithClock(clock func() time.Time) Option {
	return func(s *InMemory) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithTimestampColumns names the columns filled on create and update, the way
// column defaults do in the SQL schema. Empty names are skipped.
func WithTimestampColumns(created, updated string) Option {
	return func(s *InMemory) {
		s.createdColumn = created
		s.updatedColumn = updated
	}
}

// NewInMemory constructs an empty table.
func NewInMemory(opts ...Option) *InMemory {
	s := &InMemory{
		rows:  make(map[int64]store.Row),
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemory) FindMany(_ context.Context, q store.Query) ([]store.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.rows))
	for rowID := range s.rows {
		ids = append(ids, rowID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]store.Row, 0, len(ids))
	for _, rowID := range ids {
		row := s.rows[rowID]
		if q.Where.Matches(row) {
			out = append(out, row.Clone())
		}
	}

	if q.Order != nil {
		sortRows(out, *q.Order)
	}
	if q.Limit != nil && *q.Limit >= 0 && *q.Limit < len(out) {
		out = out[:*q.Limit]
	}
	return out, nil
}

func (s *InMemory) FindUnique(_ context.Context, id int64) (store.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return row.Clone(), nil
}

func (s *InMemory) Create(_ context.Context, data store.Row) (store.Row, error) {
	if _, ok := data["id"]; ok {
		return nil, fmt.Errorf("create: id is assigned by the store: %w", sentinel.ErrInvalidColumn)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	row := data.Clone()
	row["id"] = s.nextID
	now := s.clock()
	if s.createdColumn != "" && row[s.createdColumn] == nil {
		row[s.createdColumn] = now
	}
	if s.updatedColumn != "" && row[s.updatedColumn] == nil {
		row[s.updatedColumn] = now
	}
	s.rows[s.nextID] = row
	return row.Clone(), nil
}

func (s *InMemory) Update(_ context.Context, id int64, data store.Row) (store.Row, error) {
	if _, ok := data["id"]; ok {
		return nil, fmt.Errorf("update: id is immutable: %w", sentinel.ErrInvalidColumn)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	updated := row.Clone()
	for k, v := range data {
		updated[k] = v
	}
	if s.updatedColumn != "" {
		if _, explicit := data[s.updatedColumn]; !explicit {
			updated[s.updatedColumn] = s.clock()
		}
	}
	s.rows[id] = updated
	return updated.Clone(), nil
}

func (s *InMemory) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

// sortRows orders rows like PostgreSQL does: NULLs last ascending, first
// descending. Values that cannot be compared keep their relative order.
func sortRows(rows []store.Row, order filter.Order) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i][order.Field], rows[j][order.Field]
		if a == nil || b == nil {
			if a == nil && b == nil {
				return false
			}
			// nil sorts as the largest value.
			return (b == nil) != order.Descending
		}
		cmp, ok := filter.Compare(a, b)
		if !ok {
			return false
		}
		if order.Descending {
			return cmp > 0
		}
		return cmp < 0
	})
}
