// Package colorutil provides shared color utilities for pill appearance matching.
package colorutil

import (
	"math"
)

// Name is a coarse human-readable pill color.
type Name string

// Named colors used by the catalog and the feature matcher. The set mirrors
// the colors pharmacists actually record for solid oral doses.
const (
	White  Name = "WHITE"
	Black  Name = "BLACK"
	Red    Name = "RED"
	Green  Name = "GREEN"
	Blue   Name = "BLUE"
	Yellow Name = "YELLOW"
	Orange Name = "ORANGE"
	Pink   Name = "PINK"
	Brown  Name = "BROWN"
	Multi  Name = "MULTI-COLOR"
)

// AllNames lists every recognized color name.
var AllNames = []Name{White, Red, Blue, Green, Yellow, Orange, Pink, Brown, Black, Multi}

// Valid reports whether s is a recognized color name.
func Valid(s string) bool {
	for _, n := range AllNames {
		if string(n) == s {
			return true
		}
	}
	return false
}

// NameRGB maps an RGB triple (0-255) to the nearest named pill color using
// fixed range rules. Triples outside every rule fall back to a hue lookup;
// washed-out or dark colors with no clear hue are reported as multi-color
// rather than guessed.
func NameRGB(r, g, b float64) Name {
	switch {
	case r > 200 && g > 200 && b > 200:
		return White
	case r < 50 && g < 50 && b < 50:
		return Black
	case r > 180 && g < 100 && b < 100:
		return Red
	case r < 100 && g > 180 && b < 100:
		return Green
	case r < 100 && g < 100 && b > 180:
		return Blue
	case r > 180 && g > 180 && b < 100:
		return Yellow
	case r > 180 && g > 100 && b < 100:
		return Orange
	case r > 150 && g < 100 && b > 150:
		return Pink
	case r > 120 && g > 60 && b < 60:
		return Brown
	default:
		return nameHue(RGBToHSV(r, g, b))
	}
}

// nameHue classifies by hue alone. Coated pills photographed under cabinet
// lighting often miss the RGB range rules while still having an obvious hue.
func nameHue(h, s, v float64) Name {
	if s < 80 || v < 80 {
		return Multi
	}
	switch {
	case h < 10 || h >= 165:
		return Red
	case h < 23:
		return Orange
	case h < 38:
		return Yellow
	case h < 85:
		return Green
	case h < 130:
		return Blue
	default:
		return Pink
	}
}

// RGBToHSV converts RGB (0-255) to HSV (OpenCV convention: H 0-180, S 0-255, V 0-255).
func RGBToHSV(r, g, b float64) (h, s, v float64) {
	r /= 255.0
	g /= 255.0
	b /= 255.0

	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	diff := maxC - minC

	v = maxC * 255.0 // V in 0-255

	if maxC == 0 {
		s = 0
	} else {
		s = (diff / maxC) * 255.0 // S in 0-255
	}

	if diff == 0 {
		h = 0
	} else if maxC == r {
		h = 60 * math.Mod((g-b)/diff, 6)
	} else if maxC == g {
		h = 60 * ((b-r)/diff + 2)
	} else {
		h = 60 * ((r-g)/diff + 4)
	}

	if h < 0 {
		h += 360
	}

	h = h / 2 // Convert to OpenCV's 0-180 range

	return h, s, v
}
