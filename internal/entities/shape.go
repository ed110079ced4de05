package entities

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"cardkeep/internal/entities/filter"
	"cardkeep/internal/entities/store"
	dErrors "cardkeep/pkg/domain-errors"
	platformstrings "cardkeep/pkg/platform/strings"
)

// ISOLayout is the timestamp format used in every response.
const ISOLayout = "2006-01-02T15:04:05.000Z"

var (
	cardMoneyFields = []string{"balance"}
	cardDateFields  = []string{"expiry_date", "purchase_date"}
	userHidden      = []string{"password", "password_reset_token"}
)

const (
	groupMembersField = "members"
	userEmailField    = "email"
	sharedWithField   = "shared_with"
)

// shapeInput converts a caller payload into storage form. Only keys present
// in the payload are touched, which gives update its partial semantics.
func shapeInput(kind Kind, payload map[string]any) (store.Row, error) {
	row := make(store.Row, len(payload))
	for k, v := range payload {
		if k == "id" {
			continue
		}
		row[k] = v
	}

	switch {
	case kind.IsCard():
		for _, f := range cardMoneyFields {
			v, ok := row[f]
			if !ok || v == nil {
				continue
			}
			minor, err := ScaleMoney(v)
			if err != nil {
				return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s must be a number", f))
			}
			row[f] = minor
		}
		// shared_with is a required list; an explicit null means nobody.
		if v, ok := row[sharedWithField]; ok && v == nil && kind == KindSharedCard {
			row[sharedWithField] = []any{}
		}
		for _, f := range cardDateFields {
			v, ok := row[f]
			if !ok {
				continue
			}
			parsed, err := ParseDate(v)
			if err != nil {
				return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s must be an ISO-8601 date", f))
			}
			row[f] = parsed
		}
	case kind == KindGroup:
		if v, ok := row[groupMembersField]; ok {
			encoded, err := EncodeMembers(v)
			if err != nil {
				return nil, dErrors.New(dErrors.CodeValidation, "members must be a list")
			}
			row[groupMembersField] = encoded
		}
	case kind == KindUser:
		if email, ok := row[userEmailField].(string); ok {
			row[userEmailField] = platformstrings.NormalizeEmail(email)
		}
	}
	return row, nil
}

// shapeOutput converts a stored row into its response form. The input row is
// not modified.
func shapeOutput(kind Kind, stored store.Row) store.Row {
	row := stored.Clone()
	switch {
	case kind.IsCard():
		for _, f := range cardMoneyFields {
			if v, ok := row[f]; ok {
				row[f] = ExpandMoney(v)
			}
		}
		for _, f := range cardDateFields {
			if v, ok := row[f]; ok {
				row[f] = FormatDate(v)
			}
		}
	case kind == KindGroup:
		row[groupMembersField] = DecodeMembers(row[groupMembersField])
	case kind == KindUser:
		for _, f := range userHidden {
			delete(row, f)
		}
	}
	return row
}

// maxMinorUnits bounds stored amounts to the integers a float64 holds
// exactly, so ExpandMoney gives back what was sent.
const maxMinorUnits = 1 << 53

// ScaleMoney converts a major-unit amount into integer minor units. NaN,
// infinities and amounts beyond maxMinorUnits are rejected.
func ScaleMoney(v any) (int64, error) {
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number: %v", f)
	}
	minor := math.Round(f * 100)
	if math.Abs(minor) > maxMinorUnits {
		return 0, fmt.Errorf("amount out of range: %v", f)
	}
	return int64(minor), nil
}

// ExpandMoney converts stored minor units back into major units. Values that
// are not numeric are returned unchanged.
func ExpandMoney(v any) any {
	if v == nil {
		return nil
	}
	f, err := toFloat(v)
	if err != nil {
		return v
	}
	return f / 100
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

// ParseDate turns textual dates into timestamps. Nil and empty text clear the
// column.
func ParseDate(v any) (any, error) {
	switch d := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return d, nil
	case string:
		if strings.TrimSpace(d) == "" {
			return nil, nil
		}
		t, ok := filter.ParseTime(strings.TrimSpace(d))
		if !ok {
			return nil, fmt.Errorf("unparseable date %q", d)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported date value %T", v)
	}
}

// FormatDate renders timestamps as ISO-8601 UTC text.
func FormatDate(v any) any {
	switch d := v.(type) {
	case time.Time:
		return d.UTC().Format(ISOLayout)
	case string:
		if t, ok := filter.ParseTime(d); ok {
			return t.UTC().Format(ISOLayout)
		}
		return d
	default:
		return v
	}
}

// EncodeMembers serializes a member list into its stored text form. Text is
// stored as given.
func EncodeMembers(v any) (any, error) {
	switch m := v.(type) {
	case nil:
		return nil, nil
	case string:
		return m, nil
	case []any, []string:
		b, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return nil, fmt.Errorf("unsupported members value %T", v)
	}
}

// DecodeMembers parses stored member text. Anything that is not a JSON list
// becomes an empty list.
func DecodeMembers(v any) []any {
	var raw []byte
	switch m := v.(type) {
	case []any:
		return m
	case string:
		raw = []byte(m)
	case []byte:
		raw = m
	default:
		return []any{}
	}
	var out []any
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return []any{}
	}
	return out
}
