// Package geometry provides basic geometric types shared by the detectors.
package geometry

import (
	"image"
	"math"
)

// Point2D represents a 2D point with floating-point coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance to another point.
func (p Point2D) Distance(other Point2D) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// RectInt represents a rectangle with integer pixel coordinates.
type RectInt struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FromImageRect converts a standard library rectangle.
func FromImageRect(r image.Rectangle) RectInt {
	return RectInt{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// ToImageRect converts to a standard library rectangle.
func (r RectInt) ToImageRect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Area returns the rectangle area in pixels.
func (r RectInt) Area() int {
	return r.Width * r.Height
}

// Center returns the center point of the rectangle.
func (r RectInt) Center() Point2D {
	return Point2D{X: float64(r.X) + float64(r.Width)/2, Y: float64(r.Y) + float64(r.Height)/2}
}

// ClampTo clips the rectangle to an image of the given dimensions.
// The result may have zero width or height if the rectangle lies
// entirely outside the image.
func (r RectInt) ClampTo(width, height int) RectInt {
	x := max(0, r.X)
	y := max(0, r.Y)
	w := min(r.X+r.Width, width) - x
	h := min(r.Y+r.Height, height) - y
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return RectInt{X: x, Y: y, Width: w, Height: h}
}

// Expand grows the rectangle by margin pixels on every side.
func (r RectInt) Expand(margin int) RectInt {
	return RectInt{
		X:      r.X - margin,
		Y:      r.Y - margin,
		Width:  r.Width + 2*margin,
		Height: r.Height + 2*margin,
	}
}
