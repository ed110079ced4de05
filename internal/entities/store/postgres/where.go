package postgres

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/lib/pq"

	"cardkeep/internal/entities/filter"
)

// compileWhere renders a predicate as a SQL boolean expression with
// positional placeholders starting at $1. Fields are emitted in sorted order
// so the same predicate always yields the same statement.
func compileWhere(pred filter.Predicate) (string, []any, error) {
	if len(pred) == 0 {
		return "", nil, nil
	}
	fields := make([]string, 0, len(pred))
	for field := range pred {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var (
		clauses = make([]string, 0, len(fields))
		args    []any
	)
	bind := func(v any) (string, error) {
		encoded, err := encodeValue(v)
		if err != nil {
			return "", err
		}
		args = append(args, encoded)
		return fmt.Sprintf("$%d", len(args)), nil
	}

	for _, field := range fields {
		cond := pred[field]
		col := pq.QuoteIdentifier(field)
		clause, err := compileCondition(col, cond, bind)
		if err != nil {
			return "", nil, fmt.Errorf("field %s: %w", field, err)
		}
		clauses = append(clauses, clause)
	}
	return strings.Join(clauses, " AND "), args, nil
}

func compileCondition(col string, cond filter.Condition, bind func(any) (string, error)) (string, error) {
	switch cond.Op {
	case filter.OpIsNull:
		return col + " IS NULL", nil
	case filter.OpNotNull:
		return col + " IS NOT NULL", nil
	case filter.OpEquals:
		if cond.Value == nil {
			return col + " IS NULL", nil
		}
		ph, err := bind(cond.Value)
		if err != nil {
			return "", err
		}
		if cond.IsOpaque() {
			return fmt.Sprintf("CAST(%s AS TEXT) = %s", col, ph), nil
		}
		return fmt.Sprintf("%s = %s", col, ph), nil
	case filter.OpIn:
		if len(cond.Values) == 0 {
			return "FALSE", nil
		}
		phs := make([]string, 0, len(cond.Values))
		for _, v := range cond.Values {
			ph, err := bind(v)
			if err != nil {
				return "", err
			}
			phs = append(phs, ph)
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(phs, ", ")), nil
	case filter.OpNot:
		if cond.Value == nil {
			return col + " IS NOT NULL", nil
		}
		ph, err := bind(cond.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s <> %s", col, ph), nil
	case filter.OpGt, filter.OpGte, filter.OpLt, filter.OpLte:
		if cond.Value == nil {
			return "FALSE", nil
		}
		ph, err := bind(cond.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", col, sqlOperators[cond.Op], ph), nil
	default:
		return "", fmt.Errorf("unsupported operator %q", cond.Op)
	}
}

var sqlOperators = map[filter.Operator]string{
	filter.OpGt:  ">",
	filter.OpGte: ">=",
	filter.OpLt:  "<",
	filter.OpLte: "<=",
}

// encodeValue converts structured values into JSON text so they can be bound
// to JSONB columns; scalars pass through to the driver.
func encodeValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		if b, ok := v.([]byte); ok {
			return b, nil
		}
		if _, ok := v.(interface{ MarshalText() ([]byte, error) }); ok {
			return v, nil
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode structured value: %w", err)
		}
		return string(encoded), nil
	default:
		return v, nil
	}
}
