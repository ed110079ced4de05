// Package filter translates the operator DSL accepted by the entity filter
// route into storage predicates.
//
// A filter expression maps field names to either a literal (equality) or an
// operator object using one of $in, $ne, $gt, $gte, $lt, $lte, $exists.
// Translation is total: any input map produces a predicate with the same key
// set and never fails.
package filter

import "reflect"

// Operator names a storage comparison.
type Operator string

const (
	OpEquals  Operator = "equals"
	OpIn      Operator = "in"
	OpNot     Operator = "not"
	OpGt      Operator = "gt"
	OpGte     Operator = "gte"
	OpLt      Operator = "lt"
	OpLte     Operator = "lte"
	OpIsNull  Operator = "is_null"
	OpNotNull Operator = "not_null"
)

// Condition is the storage predicate for one field.
type Condition struct {
	Op Operator
	// Value is the comparison operand for every operator except OpIn,
	// OpIsNull and OpNotNull.
	Value any
	// Values is the membership list for OpIn. An empty list matches nothing.
	Values []any
}

// Predicate is a conjunction of per-field conditions.
type Predicate map[string]Condition

// DSL operator keys, checked in this order. An object carrying several keys
// is translated by the first one present.
const (
	keyIn     = "$in"
	keyExists = "$exists"
	keyNe     = "$ne"
	keyGt     = "$gt"
	keyGte    = "$gte"
	keyLt     = "$lt"
	keyLte    = "$lte"
)

var comparisons = []struct {
	key string
	op  Operator
}{
	{keyNe, OpNot},
	{keyGt, OpGt},
	{keyGte, OpGte},
	{keyLt, OpLt},
	{keyLte, OpLte},
}

// Translate converts a filter expression into a storage predicate.
func Translate(where map[string]any) Predicate {
	out := make(Predicate, len(where))
	for field, value := range where {
		out[field] = translateValue(value)
	}
	return out
}

func translateValue(value any) Condition {
	obj, ok := value.(map[string]any)
	if !ok || obj == nil {
		return Condition{Op: OpEquals, Value: value}
	}

	if raw, ok := obj[keyIn]; ok {
		// Fail closed: a non-sequence operand matches nothing.
		values, _ := asSlice(raw)
		return Condition{Op: OpIn, Values: values}
	}
	if raw, ok := obj[keyExists]; ok {
		if b, isBool := raw.(bool); isBool && !b {
			return Condition{Op: OpIsNull}
		}
		return Condition{Op: OpNotNull}
	}
	for _, c := range comparisons {
		if operand, ok := obj[c.key]; ok {
			return Condition{Op: c.op, Value: operand}
		}
	}

	// Unrecognised operator objects are kept as opaque equality operands.
	return Condition{Op: OpEquals, Value: value}
}

func asSlice(raw any) ([]any, bool) {
	if values, ok := raw.([]any); ok {
		return values, true
	}
	rv := reflect.ValueOf(raw)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return []any{}, false
	}
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		// []byte is a scalar blob, not a list of values.
		return []any{}, false
	}
	values := make([]any, rv.Len())
	for i := range values {
		values[i] = rv.Index(i).Interface()
	}
	return values, true
}

// IsOpaque reports whether an equality operand is a structured value that
// storage backends can only compare verbatim.
func (c Condition) IsOpaque() bool {
	if c.Op != OpEquals || c.Value == nil {
		return false
	}
	switch reflect.ValueOf(c.Value).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return true
	default:
		return false
	}
}
