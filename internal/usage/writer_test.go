package usage

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_PersistsAllRecordsOnClose(t *testing.T) {
	store := NewMemoryStore()
	w := NewWriter(store, 16, zerolog.Nop())

	for i := 0; i < 50; i++ {
		w.Record(&Record{RequestID: "req", TenantID: "t1", Outcome: OutcomeSuccess})
	}
	w.Close()

	assert.Len(t, store.All(), 50)
}

func TestWriter_CloseIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	w := NewWriter(store, 4, zerolog.Nop())

	w.Record(&Record{RequestID: "req", TenantID: "t1", Outcome: OutcomeError})
	w.Close()
	w.Close()

	records := store.All()
	require.Len(t, records, 1)
	assert.Equal(t, OutcomeError, records[0].Outcome)
	assert.NotEmpty(t, records[0].ID)
	assert.False(t, records[0].CreatedAt.IsZero())
}
