package recognize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medcab/internal/catalog"
	"medcab/pkg/colorutil"
)

func TestShapeFromMetrics(t *testing.T) {
	tests := []struct {
		name        string
		vertices    int
		circularity float64
		want        catalog.Shape
	}{
		{"circular few vertices", 5, 0.85, catalog.ShapeRound},
		{"circular square approx still round", 4, 0.9, catalog.ShapeRound},
		{"four vertices low circularity", 4, 0.5, catalog.ShapeSquare},
		{"six vertices", 6, 0.5, catalog.ShapeOval},
		{"seven vertices", 7, 0.6, catalog.ShapeOval},
		{"many vertices", 10, 0.4, catalog.ShapeCapsule},
		{"elongated triangle-ish", 3, 0.3, catalog.ShapeCapsule},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShapeFromMetrics(tt.vertices, tt.circularity))
		})
	}
}

func snapshotForFeatureMatch() catalog.Snapshot {
	return catalog.Snapshot{
		{ID: "1", Name: "Aspirin", Quantity: 10, Shape: catalog.ShapeRound, Color: colorutil.White},
		{ID: "2", Name: "Amoxicillin", Quantity: 10, Shape: catalog.ShapeCapsule, Color: colorutil.Pink},
		{ID: "3", Name: "Loratadine", Quantity: 10, Shape: catalog.ShapeRound, Color: colorutil.Blue},
		{ID: "4", Name: "Depleted", Quantity: 0, Shape: catalog.ShapeRound, Color: colorutil.White},
		{ID: "5", Name: "NoDescriptors", Quantity: 10},
	}
}

func TestMatchByFeatures_ShapeAndColorBeatsShapeOnly(t *testing.T) {
	f := &PillFeatures{Shape: catalog.ShapeRound, Color: colorutil.White}

	matches := MatchByFeatures(f, snapshotForFeatureMatch())

	require.Len(t, matches, 2)
	assert.Equal(t, "Aspirin", matches[0].Entry.Name)
	assert.Equal(t, 80.0, matches[0].Confidence)
	assert.Equal(t, "Loratadine", matches[1].Entry.Name)
	assert.Equal(t, 40.0, matches[1].Confidence)
}

func TestMatchByFeatures_SingleDescriptorStillAboveFloor(t *testing.T) {
	f := &PillFeatures{Shape: catalog.ShapeCapsule, Color: colorutil.Green}

	matches := MatchByFeatures(f, snapshotForFeatureMatch())

	require.Len(t, matches, 1)
	assert.Equal(t, "Amoxicillin", matches[0].Entry.Name)
	assert.Equal(t, 40.0, matches[0].Confidence)
}

func TestMatchByFeatures_NoDescriptorOverlapYieldsNothing(t *testing.T) {
	f := &PillFeatures{Shape: catalog.ShapeSquare, Color: colorutil.Black}

	assert.Empty(t, MatchByFeatures(f, snapshotForFeatureMatch()))
}

func TestMatchByFeatures_OutOfStockEntriesExcluded(t *testing.T) {
	f := &PillFeatures{Shape: catalog.ShapeRound, Color: colorutil.White}

	for _, m := range MatchByFeatures(f, snapshotForFeatureMatch()) {
		assert.NotEqual(t, "Depleted", m.Entry.Name)
	}
}

func TestMatchByFeatures_CapsAtFiveCandidates(t *testing.T) {
	var snap catalog.Snapshot
	for i := 0; i < 8; i++ {
		snap = append(snap, catalog.Entry{
			ID: string(rune('a' + i)), Name: "Med", Quantity: 1,
			Shape: catalog.ShapeOval, Color: colorutil.Yellow,
		})
	}
	f := &PillFeatures{Shape: catalog.ShapeOval, Color: colorutil.Yellow}

	assert.Len(t, MatchByFeatures(f, snap), 5)
}

func TestMatchByFeatures_NilFeatures(t *testing.T) {
	assert.Nil(t, MatchByFeatures(nil, snapshotForFeatureMatch()))
}
