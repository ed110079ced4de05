package activity

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"cardkeep/internal/entities/filter"
)

type fieldKind int

const (
	textField fieldKind = iota
	moneyField
	dateField
)

// snapshotField maps a comparable label onto the row column it is read from.
type snapshotField struct {
	label   string
	column  string
	display string
	kind    fieldKind
}

// snapshotFields is the comparable field list. Edit diffs follow this order.
var snapshotFields = []snapshotField{
	{label: "name", column: "card_name", display: "Name"},
	{label: "type", column: "card_type", display: "Type"},
	{label: "balance", column: "balance", display: "Balance", kind: moneyField},
	{label: "expiry_date", column: "expiry_date", display: "Expiry date", kind: dateField},
	{label: "purchase_date", column: "purchase_date", display: "Purchase date", kind: dateField},
	{label: "card_number", column: "card_number", display: "Card number"},
	{label: "cvv", column: "cvv", display: "CVV"},
	{label: "activation_code", column: "activation_code", display: "Activation code"},
	{label: "url", column: "online_page_url", display: "URL"},
	{label: "notes", column: "notes", display: "Notes"},
	{label: "color", column: "card_color", display: "Color"},
	{label: "vendor", column: "vendor", display: "Vendor"},
	{label: "image_url", column: "image_url", display: "Image URL"},
}

// Snapshot is the flat comparable view of a card, keyed by label. Balances
// are in major units.
type Snapshot map[string]any

// SnapshotOf reads a card row. The column name wins; the label is accepted
// as a fallback for callers that already send snapshot-shaped data.
func SnapshotOf(row map[string]any) Snapshot {
	if row == nil {
		return nil
	}
	s := make(Snapshot, len(snapshotFields))
	for _, f := range snapshotFields {
		v, ok := row[f.column]
		if !ok {
			v = row[f.label]
		}
		s[f.label] = v
	}
	return s
}

// empty is the sentinel every absence-equivalent value normalizes to.
const empty = ""

// normalize renders a value for comparison. nil, missing and "" are all
// empty; numbers and dates compare by value rather than by representation.
func normalize(kind fieldKind, v any) string {
	switch val := v.(type) {
	case nil:
		return empty
	case string:
		if val == "" {
			return empty
		}
		switch kind {
		case dateField:
			if t, ok := filter.ParseTime(val); ok {
				return t.UTC().Format(time.RFC3339Nano)
			}
		case moneyField:
			if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
				return formatNumber(f)
			}
		}
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case float64:
		return formatNumber(val)
	case float32:
		return formatNumber(float64(val))
	case int:
		return formatNumber(float64(val))
	case int64:
		return formatNumber(float64(val))
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return formatNumber(f)
		}
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// displayValue renders a value inside a change description.
func displayValue(kind fieldKind, v any) string {
	n := normalize(kind, v)
	if kind == moneyField {
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return strconv.FormatFloat(f, 'f', 2, 64)
		}
	}
	if kind == dateField {
		if t, err := time.Parse(time.RFC3339Nano, n); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return n
}

// amountOf reads a major-unit amount, rounded to the cent.
func amountOf(v any) (float64, bool) {
	f, err := strconv.ParseFloat(normalize(moneyField, v), 64)
	if err != nil {
		return 0, false
	}
	return math.Round(f*100) / 100, true
}
