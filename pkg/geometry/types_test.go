package geometry

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCentroid(t *testing.T) {
	assert.Equal(t, Point2D{}, Centroid(nil))
	assert.Equal(t, Point2D{X: 2, Y: 3}, Centroid([]Point2D{{X: 1, Y: 2}, {X: 3, Y: 4}}))
}

func TestDistance(t *testing.T) {
	assert.InDelta(t, 5.0, Point2D{}.Distance(Point2D{X: 3, Y: 4}), 1e-12)
}

func TestRegion(t *testing.T) {
	r := Region{Rect: image.Rect(10, 20, 40, 30), Surface: 250}

	assert.Equal(t, 30, r.Width())
	assert.Equal(t, 10, r.Height())
	assert.Equal(t, 30, r.Length())

	scaled := r.Scale(2)
	assert.Equal(t, image.Rect(20, 40, 80, 60), scaled.Rect)
	assert.InDelta(t, 1000.0, scaled.Surface, 1e-9)
	assert.Equal(t, r, r.Scale(0))
}
