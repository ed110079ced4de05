package activity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardkeep/internal/entities/store/memory"
)

func TestModelStoreAppend(t *testing.T) {
	table := memory.NewInMemory()
	st := NewModelStore(table)
	ts := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	rec, err := st.Append(context.Background(), Record{
		CardID:      5,
		CardType:    CardTypeGiftCard,
		Action:      ActionEdit,
		UserEmail:   "a@x.io",
		UserName:    "Ana",
		PerformedBy: "a@x.io",
		Details:     EditDetails{Changes: []Change{}},
		CardData:    map[string]any{"card_name": "Coffee"},
		Timestamp:   ts,
	})
	require.NoError(t, err)
	require.NotZero(t, rec.ID)

	row, err := table.FindUnique(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), row["card_id"])
	assert.Equal(t, "gift_card", row["card_type_field"])
	assert.Equal(t, "edit", row["action"])
	assert.Equal(t, map[string]any{"changes": []any{}}, row["details"])
	assert.Nil(t, row["before_data"])
	assert.Equal(t, ts, row["timestamp"])
}

func TestModelStoreAppendWithoutDetails(t *testing.T) {
	table := memory.NewInMemory()
	rec, err := NewModelStore(table).Append(context.Background(), Record{
		CardID:    5,
		Action:    ActionEdit,
		UserEmail: "a@x.io",
	})
	require.NoError(t, err)

	row, err := table.FindUnique(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Nil(t, row["details"])
}
