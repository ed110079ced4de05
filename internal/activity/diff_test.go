package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func coffeeCard() map[string]any {
	return map[string]any{
		"id":              int64(7),
		"card_name":       "Coffee",
		"card_type":       "Cafe",
		"balance":         20.0,
		"expiry_date":     "2026-03-01T00:00:00.000Z",
		"purchase_date":   nil,
		"card_number":     "4000",
		"notes":           "",
		"online_page_url": "https://example.test/coffee",
		"vendor":          "Bean Co",
	}
}

func withFields(base map[string]any, kv ...any) map[string]any {
	out := make(map[string]any, len(base))
	for k, v := range base {
		out[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i].(string)] = kv[i+1]
	}
	return out
}

func TestChangesAreNullSafe(t *testing.T) {
	before := coffeeCard()

	t.Run("empty string to null is not a change", func(t *testing.T) {
		after := withFields(before, "notes", nil)
		assert.Empty(t, Changes(SnapshotOf(before), SnapshotOf(after)))
	})

	t.Run("null to empty string is not a change", func(t *testing.T) {
		after := withFields(before, "purchase_date", "")
		assert.Empty(t, Changes(SnapshotOf(before), SnapshotOf(after)))
	})

	t.Run("absent column equals null", func(t *testing.T) {
		after := withFields(before)
		delete(after, "notes")
		assert.Empty(t, Changes(SnapshotOf(before), SnapshotOf(after)))
	})

	t.Run("A to B produces exactly one change", func(t *testing.T) {
		b := withFields(before, "card_color", "A")
		a := withFields(before, "card_color", "B")
		changes := Changes(SnapshotOf(b), SnapshotOf(a))
		require.Len(t, changes, 1)
		assert.Equal(t, "color", changes[0].Field)
		assert.Equal(t, "A", changes[0].Before)
		assert.Equal(t, "B", changes[0].After)
		assert.Equal(t, "Color changed from A to B", changes[0].Description)
	})
}

func TestChangesFollowFieldOrder(t *testing.T) {
	before := coffeeCard()
	after := withFields(before,
		"notes", "gift from Ana",
		"card_name", "Coffee Beans",
		"balance", 12.5,
	)

	changes := Changes(SnapshotOf(before), SnapshotOf(after))
	require.Len(t, changes, 3)
	assert.Equal(t, []string{"name", "balance", "notes"},
		[]string{changes[0].Field, changes[1].Field, changes[2].Field})
	assert.Equal(t, "Balance changed from 20.00 to 12.50", changes[1].Description)
	assert.Equal(t, "Notes set to gift from Ana", changes[2].Description)
	assert.Nil(t, changes[2].Before)
}

func TestChangesCompareValuesNotRepresentations(t *testing.T) {
	before := coffeeCard()
	after := withFields(before,
		"balance", int64(20),
		"expiry_date", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	)
	assert.Empty(t, Changes(SnapshotOf(before), SnapshotOf(after)))

	dateOnly := withFields(before, "expiry_date", "2026-03-01")
	assert.Empty(t, Changes(SnapshotOf(before), SnapshotOf(dateOnly)))
}

func TestClearedFieldDescription(t *testing.T) {
	before := coffeeCard()
	after := withFields(before, "online_page_url", nil)

	changes := Changes(SnapshotOf(before), SnapshotOf(after))
	require.Len(t, changes, 1)
	assert.Equal(t, "url", changes[0].Field)
	assert.Equal(t, "URL cleared", changes[0].Description)
	assert.Nil(t, changes[0].After)
}

func TestDiffByAction(t *testing.T) {
	card := coffeeCard()

	t.Run("created summarises the new card", func(t *testing.T) {
		d, err := Diff(ActionCreated, nil, card, nil)
		require.NoError(t, err)
		assert.Equal(t, CreatedDetails{Name: "Coffee", Type: "Cafe", Balance: 20.0, Vendor: "Bean Co"}, d)
		assert.Equal(t, ActionCreated, d.Action())
	})

	t.Run("identical edit yields an empty change list", func(t *testing.T) {
		d, err := Diff(ActionEdit, card, withFields(card), nil)
		require.NoError(t, err)
		edit, ok := d.(EditDetails)
		require.True(t, ok)
		assert.NotNil(t, edit.Changes)
		assert.Empty(t, edit.Changes)
	})

	t.Run("edit without before has no details", func(t *testing.T) {
		d, err := Diff(ActionEdit, nil, card, nil)
		require.NoError(t, err)
		assert.Nil(t, d)
	})

	t.Run("payment reports the amount spent", func(t *testing.T) {
		d, err := Diff(ActionPayment, card, withFields(card, "balance", 12.35), nil)
		require.NoError(t, err)
		assert.Equal(t, PaymentDetails{Amount: 7.65, PreviousBalance: 20.0, NewBalance: 12.35}, d)
	})

	t.Run("share lists recipients", func(t *testing.T) {
		d, err := Diff(ActionShare, nil, withFields(card, "group_name", "Family"), []string{"b@x.io"})
		require.NoError(t, err)
		assert.Equal(t, ShareDetails{SharedWith: []string{"b@x.io"}, GroupName: "Family"}, d)
	})

	t.Run("archive keeps reason and balance", func(t *testing.T) {
		d, err := Diff(ActionArchive, nil, withFields(card, "archive_reason", "used up"), nil)
		require.NoError(t, err)
		assert.Equal(t, ArchiveDetails{Reason: "used up", Balance: 20.0}, d)
	})

	t.Run("restore", func(t *testing.T) {
		d, err := Diff(ActionRestore, nil, card, nil)
		require.NoError(t, err)
		assert.Equal(t, RestoreDetails{Name: "Coffee", Balance: 20.0}, d)
	})

	t.Run("make personal remembers previous members", func(t *testing.T) {
		before := withFields(card, "shared_with", []any{"b@x.io", "c@x.io"})
		d, err := Diff(ActionMakePersonal, before, card, nil)
		require.NoError(t, err)
		assert.Equal(t, MakePersonalDetails{Name: "Coffee", PreviousSharedWith: []string{"b@x.io", "c@x.io"}}, d)
	})

	t.Run("unknown action", func(t *testing.T) {
		_, err := Diff(Action("transfer"), nil, card, nil)
		require.Error(t, err)
	})
}

func TestParseAction(t *testing.T) {
	a, ok := ParseAction("make_personal")
	assert.True(t, ok)
	assert.Equal(t, ActionMakePersonal, a)

	_, ok = ParseAction("deleted")
	assert.False(t, ok)
}
