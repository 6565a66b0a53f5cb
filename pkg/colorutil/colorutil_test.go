package colorutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameRGB(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b float64
		want    Name
	}{
		{"bright white", 240, 240, 240, White},
		{"near black", 20, 20, 20, Black},
		{"red coating", 210, 40, 40, Red},
		{"green gel", 60, 200, 60, Green},
		{"blue gel", 40, 60, 220, Blue},
		{"yellow tablet", 230, 220, 50, Yellow},
		{"orange tablet", 230, 140, 50, Orange},
		{"pink coating", 220, 80, 190, Pink},
		{"brown caplet", 140, 90, 40, Brown},
		{"muddy gray", 120, 120, 120, Multi},
		// Outside every range rule; classified by hue alone.
		{"muted pink coating", 170, 60, 140, Pink},
		{"olive green", 120, 170, 80, Green},
		{"washed-out lavender", 150, 140, 160, Multi},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NameRGB(tt.r, tt.g, tt.b))
		})
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("WHITE"))
	assert.True(t, Valid("MULTI-COLOR"))
	assert.False(t, Valid("white"))
	assert.False(t, Valid("MAUVE"))
}

func TestRGBToHSV(t *testing.T) {
	// Pure red: H 0, full saturation and value.
	h, s, v := RGBToHSV(255, 0, 0)
	assert.InDelta(t, 0, h, 0.01)
	assert.InDelta(t, 255, s, 0.01)
	assert.InDelta(t, 255, v, 0.01)

	// Pure green sits at 120 degrees, 60 in half-range.
	h, _, _ = RGBToHSV(0, 255, 0)
	assert.InDelta(t, 60, h, 0.01)

	// Gray has no saturation.
	_, s, v = RGBToHSV(128, 128, 128)
	assert.InDelta(t, 0, s, 0.01)
	assert.InDelta(t, 128, v, 0.5)
}
