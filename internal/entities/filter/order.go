package filter

import "strings"

// Order is a single-column ordering instruction.
type Order struct {
	Field      string
	Descending bool
}

// ParseSort reads a sort key of the form "field" or "-field".
// An empty key yields nil: no ordering is promised.
func ParseSort(sortBy string) *Order {
	sortBy = strings.TrimSpace(sortBy)
	if sortBy == "" {
		return nil
	}
	if field, ok := strings.CutPrefix(sortBy, "-"); ok {
		if field == "" {
			return nil
		}
		return &Order{Field: field, Descending: true}
	}
	return &Order{Field: sortBy}
}
