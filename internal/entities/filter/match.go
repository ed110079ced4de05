package filter

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"
)

// Matches evaluates the predicate against a row held in memory. SQL backends
// compile the predicate instead; this evaluator mirrors their semantics:
// comparisons against NULL never match.
func (p Predicate) Matches(row map[string]any) bool {
	for field, cond := range p {
		if !cond.Matches(row[field]) {
			return false
		}
	}
	return true
}

// Matches evaluates a single condition against a field value.
func (c Condition) Matches(v any) bool {
	switch c.Op {
	case OpIsNull:
		return v == nil
	case OpNotNull:
		return v != nil
	case OpEquals:
		return Equal(v, c.Value)
	case OpIn:
		if v == nil {
			return false
		}
		for _, candidate := range c.Values {
			if Equal(v, candidate) {
				return true
			}
		}
		return false
	case OpNot:
		if v == nil {
			return false
		}
		if c.Value == nil {
			return true
		}
		return !Equal(v, c.Value)
	case OpGt, OpGte, OpLt, OpLte:
		cmp, ok := Compare(v, c.Value)
		if !ok {
			return false
		}
		switch c.Op {
		case OpGt:
			return cmp > 0
		case OpGte:
			return cmp >= 0
		case OpLt:
			return cmp < 0
		default:
			return cmp <= 0
		}
	default:
		return false
	}
}

// Equal compares two loosely typed values the way the SQL backend would:
// numbers by value, timestamps against ISO-8601 text, everything else verbatim.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if cmp, ok := Compare(a, b); ok {
		return cmp == 0
	}
	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ab == bb
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders two values of compatible kinds. ok is false when the kinds
// cannot be ordered against each other.
func Compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return compareOrdered(af, bf), true
		}
		return 0, false
	}
	if at, ok := toTime(a); ok {
		if bt, ok := toTime(b); ok {
			return at.Compare(bt), true
		}
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.Compare(as, bs), true
		}
	}
	return 0, false
}

func compareOrdered(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// timeLayouts are the textual forms accepted wherever a timestamp is compared
// or parsed from a payload.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime reads an ISO-8601 timestamp or calendar date.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		return ParseTime(t)
	default:
		return time.Time{}, false
	}
}
