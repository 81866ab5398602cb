// Package colorutil provides the color helpers used to tag batches and plots.
package colorutil

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"image/color"
	"math"
)

// DefaultElementColor is assigned to every element before batches are colored.
const DefaultElementColor = "#000000"

// Palette hands out display colors for batches.
type Palette interface {
	// DistinctColors returns n visually distinct colors as "#rrggbb".
	DistinctColors(n int) []string
}

// HuePalette spreads colors evenly around the HSV hue circle.
type HuePalette struct {
	Saturation float64 // 0-1
	Value      float64 // 0-1
}

// DefaultPalette returns the palette used when none is configured.
func DefaultPalette() HuePalette {
	return HuePalette{Saturation: 0.85, Value: 0.9}
}

// DistinctColors implements Palette.
func (p HuePalette) DistinctColors(n int) []string {
	if n <= 0 {
		return nil
	}
	colors := make([]string, n)
	for i := 0; i < n; i++ {
		h := 360 * float64(i) / float64(n)
		colors[i] = Hex(HSVToRGB(h, p.Saturation, p.Value))
	}
	return colors
}

// HSVToRGB converts hue (degrees), saturation and value (0-1) to RGB.
func HSVToRGB(h, s, v float64) color.RGBA {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	return color.RGBA{
		R: uint8(math.Round((r + m) * 255)),
		G: uint8(math.Round((g + m) * 255)),
		B: uint8(math.Round((b + m) * 255)),
		A: 255,
	}
}

// Hex formats an RGBA color as "#rrggbb".
func Hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// HashColor derives a stable "#rrggbb" color from key: the first six hex
// digits of its MD5 sum.
func HashColor(key string) string {
	sum := md5.Sum([]byte(key))
	return "#" + hex.EncodeToString(sum[:])[:6]
}
