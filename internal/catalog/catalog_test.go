package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryStatus(t *testing.T) {
	tests := []struct {
		name     string
		qty, min int
		want     StockStatus
	}{
		{"empty", 0, 10, StockOut},
		{"half of minimum", 5, 10, StockCritical},
		{"below half", 3, 10, StockCritical},
		{"at minimum", 10, 10, StockLow},
		{"above minimum", 11, 10, StockNormal},
		{"no minimum set", 1, 0, StockNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Entry{Quantity: tt.qty, MinQuantity: tt.min}
			assert.Equal(t, tt.want, e.Status())
		})
	}
}

func TestSnapshotLookups(t *testing.T) {
	three := 3
	s := Snapshot{
		{ID: "m1", Name: "Ibuprofen", Quantity: 5},
		{ID: "m2", Name: "Lisinopril", Quantity: 0, ClassIndex: &three},
	}

	require.NotNil(t, s.ByID("m2"))
	assert.Equal(t, "Lisinopril", s.ByID("m2").Name)
	assert.Nil(t, s.ByID("missing"))

	require.NotNil(t, s.ByClassIndex(3))
	assert.Equal(t, "m2", s.ByClassIndex(3).ID)
	assert.Nil(t, s.ByClassIndex(7))

	inStock := s.InStock()
	require.Len(t, inStock, 1)
	assert.Equal(t, "m1", inStock[0].ID)
}

func TestHasVisualDescriptors(t *testing.T) {
	assert.False(t, Entry{}.HasVisualDescriptors())
	assert.True(t, Entry{Shape: ShapeRound}.HasVisualDescriptors())
	assert.True(t, Entry{Color: "WHITE"}.HasVisualDescriptors())
}
