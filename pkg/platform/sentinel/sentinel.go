package sentinel

import "errors"

// Storage facts. Model backends return these (optionally wrapped) and the
// dispatcher translates them into domain errors:
//   - ErrNotFound: no row with the requested id
//   - ErrConflict: a unique constraint rejected the write
//   - ErrInvalidColumn: the payload named a column the table does not have,
//     or gave a column a value it rejects (NULL for a required column)
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrInvalidColumn = errors.New("invalid column")
	ErrUnavailable   = errors.New("unavailable")
)
