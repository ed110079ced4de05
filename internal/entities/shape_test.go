package entities

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardkeep/internal/entities/store"
	dErrors "cardkeep/pkg/domain-errors"
)

func TestMoneyRoundTrip(t *testing.T) {
	for _, v := range []float64{0, 0.01, 0.1, 19.99, 20, 123.45, 1000000.07} {
		minor, err := ScaleMoney(v)
		require.NoError(t, err)
		assert.InDelta(t, v, ExpandMoney(minor), 1e-9, "value %v", v)
	}

	t.Run("half cents round", func(t *testing.T) {
		minor, err := ScaleMoney(10.005)
		require.NoError(t, err)
		assert.Contains(t, []int64{1000, 1001}, minor)
		minor, err = ScaleMoney("2.499")
		require.NoError(t, err)
		assert.Equal(t, int64(250), minor)
	})

	t.Run("accepted inputs", func(t *testing.T) {
		for _, v := range []any{20, int64(20), float32(20), "20", json.Number("20")} {
			minor, err := ScaleMoney(v)
			require.NoError(t, err)
			assert.Equal(t, int64(2000), minor, "%T", v)
		}
		_, err := ScaleMoney(true)
		assert.Error(t, err)
	})

	t.Run("non finite and oversized amounts are rejected", func(t *testing.T) {
		for _, v := range []any{"NaN", "Inf", "-Infinity", 1e300, "1e300", -1e17, json.Number("1e300")} {
			_, err := ScaleMoney(v)
			assert.Error(t, err, "value %v", v)
		}
		minor, err := ScaleMoney(int64(10_000_000_000_000))
		require.NoError(t, err)
		assert.Equal(t, int64(1_000_000_000_000_000), minor)
	})

	assert.Nil(t, ExpandMoney(nil))
	assert.Equal(t, "n/a", ExpandMoney("n/a"))
}

func TestDates(t *testing.T) {
	parsed, err := ParseDate("2027-03-01T10:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2027, 3, 1, 10, 30, 0, 0, time.UTC), parsed)

	for _, empty := range []any{nil, "", "  "} {
		v, err := ParseDate(empty)
		require.NoError(t, err)
		assert.Nil(t, v)
	}

	_, err = ParseDate("next tuesday")
	assert.Error(t, err)

	local := time.Date(2027, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "2027-03-01T11:00:00.000Z", FormatDate(local))
	assert.Nil(t, FormatDate(nil))
}

func TestMembers(t *testing.T) {
	encoded, err := EncodeMembers([]string{"a@x.io"})
	require.NoError(t, err)
	assert.Equal(t, `["a@x.io"]`, encoded)

	assert.Equal(t, []any{"a@x.io"}, DecodeMembers(`["a@x.io"]`))
	assert.Equal(t, []any{}, DecodeMembers(nil))
	assert.Equal(t, []any{}, DecodeMembers("not json"))
	assert.Equal(t, []any{}, DecodeMembers("null"))

	_, err = EncodeMembers(42)
	assert.Error(t, err)
}

func TestShapeInput(t *testing.T) {
	t.Run("only present fields are shaped", func(t *testing.T) {
		row, err := shapeInput(KindGiftCard, map[string]any{"notes": "x"})
		require.NoError(t, err)
		assert.Equal(t, store.Row{"notes": "x"}, row)
	})

	t.Run("null balance passes through", func(t *testing.T) {
		row, err := shapeInput(KindGiftCard, map[string]any{"balance": nil})
		require.NoError(t, err)
		assert.Contains(t, row, "balance")
		assert.Nil(t, row["balance"])
	})

	t.Run("bad date is a validation error", func(t *testing.T) {
		_, err := shapeInput(KindSharedCard, map[string]any{"purchase_date": 17})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("unusable balance is a validation error", func(t *testing.T) {
		for _, v := range []any{"NaN", "Inf", "-Infinity", 1e300, "1e300"} {
			row, err := shapeInput(KindGiftCard, map[string]any{"balance": v})
			require.Error(t, err, "value %v", v)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "value %v", v)
			assert.Nil(t, row)
		}
	})

	t.Run("non card kinds keep money as sent", func(t *testing.T) {
		row, err := shapeInput(KindTransaction, map[string]any{"amount": 12.5})
		require.NoError(t, err)
		assert.Equal(t, 12.5, row["amount"])
	})

	t.Run("null shared_with becomes an empty list", func(t *testing.T) {
		row, err := shapeInput(KindSharedCard, map[string]any{"shared_with": nil})
		require.NoError(t, err)
		assert.Equal(t, []any{}, row["shared_with"])

		row, err = shapeInput(KindGiftCard, map[string]any{"shared_with": nil})
		require.NoError(t, err)
		assert.Nil(t, row["shared_with"], "gift cards have no such column to protect")
	})

	t.Run("user email is normalized", func(t *testing.T) {
		row, err := shapeInput(KindUser, map[string]any{"email": " Olive@X.io", "name": "Olive"})
		require.NoError(t, err)
		assert.Equal(t, "olive@x.io", row["email"])
	})

	t.Run("id is dropped", func(t *testing.T) {
		row, err := shapeInput(KindNotification, map[string]any{"id": 3, "message": "m"})
		require.NoError(t, err)
		assert.NotContains(t, row, "id")
	})
}

func TestShapeOutputDoesNotMutate(t *testing.T) {
	stored := store.Row{"id": int64(1), "balance": int64(2000)}
	out := shapeOutput(KindGiftCard, stored)
	assert.Equal(t, 20.0, out["balance"])
	assert.Equal(t, int64(2000), stored["balance"])
}
