package entities

import (
	"errors"
	"fmt"

	dErrors "cardkeep/pkg/domain-errors"
	"cardkeep/pkg/platform/sentinel"
)

var (
	// ErrUnknownEntity is returned before any storage call when the request
	// names an entity outside the registry.
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrOperationFailed wraps every storage failure. The cause is kept for
	// diagnostics.
	ErrOperationFailed = errors.New("entity operation failed")
)

func unknownEntity(name string) error {
	return dErrors.Wrap(ErrUnknownEntity, dErrors.CodeNotFound, fmt.Sprintf("Unknown entity %s", name))
}

// operationFailed translates a storage error. Missing rows, rejected columns
// and unique violations keep a specific code; everything else is internal.
func operationFailed(op string, kind Kind, id *int64, err error) error {
	wrapped := fmt.Errorf("%w: %s %s: %w", ErrOperationFailed, op, kind, err)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		msg := fmt.Sprintf("%s not found", kind)
		if id != nil {
			msg = fmt.Sprintf("%s %d not found", kind, *id)
		}
		return dErrors.Wrap(wrapped, dErrors.CodeNotFound, msg)
	case errors.Is(err, sentinel.ErrInvalidColumn):
		return dErrors.Wrap(wrapped, dErrors.CodeValidation, fmt.Sprintf("invalid %s payload", kind))
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(wrapped, dErrors.CodeConflict, fmt.Sprintf("%s already exists", kind))
	default:
		return dErrors.Wrap(wrapped, dErrors.CodeInternal, fmt.Sprintf("%s failed", op))
	}
}
