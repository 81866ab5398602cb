// Package geometry provides the small geometric types shared by the imaging
// and projection code.
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

// Centroid returns the mean of the points. The zero point is returned for an
// empty slice.
func Centroid(points []Point2D) Point2D {
	if len(points) == 0 {
		return Point2D{}
	}
	var c Point2D
	for _, p := range points {
		c.X += p.X
		c.Y += p.Y
	}
	n := float64(len(points))
	return Point2D{X: c.X / n, Y: c.Y / n}
}

// Ellipse is a rotated ellipse. Width and Height are full axis lengths and
// Angle is in degrees.
type Ellipse struct {
	Center Point2D
	Width  float64
	Height float64
	Angle  float64
}

// Region is an axis-aligned region of interest found in a mask.
type Region struct {
	Rect    image.Rectangle
	Surface float64 // pixel area of the underlying contour
}

// Width returns the region width in pixels.
func (r Region) Width() int { return r.Rect.Dx() }

// Height returns the region height in pixels.
func (r Region) Height() int { return r.Rect.Dy() }

// Length returns the longer side of the region.
func (r Region) Length() int {
	return max(r.Rect.Dx(), r.Rect.Dy())
}

// Scale returns the region with its rectangle scaled by factor around the
// origin.
func (r Region) Scale(factor float64) Region {
	if factor == 1 || factor <= 0 {
		return r
	}
	return Region{
		Rect: image.Rect(
			int(math.Round(float64(r.Rect.Min.X)*factor)),
			int(math.Round(float64(r.Rect.Min.Y)*factor)),
			int(math.Round(float64(r.Rect.Max.X)*factor)),
			int(math.Round(float64(r.Rect.Max.Y)*factor)),
		),
		Surface: r.Surface * factor * factor,
	}
}
