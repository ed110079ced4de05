// Package store defines the storage contract every entity backend satisfies.
// Rows are loosely typed column maps; shaping into caller-facing form happens
// in the entities service, not here.
package store

import (
	"context"

	"cardkeep/internal/entities/filter"
)

// Row is one stored record keyed by column name.
type Row map[string]any

// Clone returns a shallow copy so callers can reshape rows without mutating
// what a backend handed out.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ID returns the numeric primary key of the row, if present.
func (r Row) ID() (int64, bool) {
	switch v := r["id"].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// Query carries the read parameters for FindMany.
type Query struct {
	Where filter.Predicate
	Order *filter.Order
	Limit *int
}

// Model is the per-entity storage handle.
//
// Backends return sentinel.ErrNotFound from FindUnique, Update and Delete when
// no row has the given id, sentinel.ErrInvalidColumn when a payload names an
// unknown column, and wrap every other failure.
type Model interface {
	FindMany(ctx context.Context, q Query) ([]Row, error)
	FindUnique(ctx context.Context, id int64) (Row, error)
	Create(ctx context.Context, data Row) (Row, error)
	Update(ctx context.Context, id int64, data Row) (Row, error)
	Delete(ctx context.Context, id int64) error
}
