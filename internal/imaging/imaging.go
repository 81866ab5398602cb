// Package imaging is the image collaborator: loading, saving and the
// per-image transforms applied by the processing dispatcher.
package imaging

import (
	"fmt"
	"image"
	"sort"
	"strconv"
	"strings"

	"labset/pkg/geometry"
)

// Image is a loaded raster image. Transforms modify the image in place unless
// they return new images.
type Image interface {
	Width() int
	Height() int
	Channels() int

	Resize(size string) error
	Crop(r image.Rectangle) error
	SplitRGB() ([]Image, error)
	SplitHSB() ([]Image, error)
	Grey() error
	Contrast() error
	Texture() error
	Edge() error
	// ToRGB expands a single-channel image to three channels.
	ToRGB() error
	// Histogram returns 256 bins per channel, channels concatenated.
	Histogram() []float64

	// CreateMask returns a binary mask separating objects from background.
	CreateMask(opts MaskOptions) (Image, error)
	// Regions returns the regions of interest of a binary mask.
	Regions(opts RegionOptions) ([]geometry.Region, error)
	// Split extracts one sub-image per region.
	Split(regions []geometry.Region) ([]Image, error)
	PaintMask(mask Image) (Image, error)
	PaintRegions(regions []geometry.Region) (Image, error)

	Save(path string) error
	// SaveTransparentPNG saves the image with mask as alpha channel.
	SaveTransparentPNG(path string, mask Image) error
	Close() error
}

// Loader opens images from disk.
type Loader interface {
	Load(path string) (Image, error)
}

// MaskOptions configures CreateMask.
type MaskOptions struct {
	// ImageFilter selects the channel thresholded: red, green, blue, hue,
	// saturation, brightness, grey, edge or texture. Empty means red.
	ImageFilter string
	// DarkBackground, when set, says whether objects lie on a dark
	// background. Unset means a light background.
	DarkBackground *bool
	// MaskColor ("#rrggbb") selects pixels close to a color instead of
	// thresholding a channel.
	MaskColor string
	// Method is the threshold method: otsu (default), triangle or mean.
	Method string
}

// RegionOptions filters and orders the regions found in a mask. Zero values
// disable a bound.
type RegionOptions struct {
	Scale      float64
	SortBy     string // surface (default), width, height, length, x, y
	MinWidth   int
	MaxWidth   int
	MinHeight  int
	MaxHeight  int
	MinLength  int
	MaxLength  int
	MinSurface float64
	MaxSurface float64
}

// FilterRegions applies the bounds of opts, scales and sorts the regions.
// Sorting is descending except for x and y, which sort left-to-right and
// top-to-bottom.
func FilterRegions(regions []geometry.Region, opts RegionOptions) []geometry.Region {
	out := make([]geometry.Region, 0, len(regions))
	for _, r := range regions {
		if opts.Scale > 0 {
			r = r.Scale(opts.Scale)
		}
		if !within(float64(r.Width()), float64(opts.MinWidth), float64(opts.MaxWidth)) ||
			!within(float64(r.Height()), float64(opts.MinHeight), float64(opts.MaxHeight)) ||
			!within(float64(r.Length()), float64(opts.MinLength), float64(opts.MaxLength)) ||
			!within(r.Surface, opts.MinSurface, opts.MaxSurface) {
			continue
		}
		out = append(out, r)
	}

	var less func(a, b geometry.Region) bool
	switch opts.SortBy {
	case "width":
		less = func(a, b geometry.Region) bool { return a.Width() > b.Width() }
	case "height":
		less = func(a, b geometry.Region) bool { return a.Height() > b.Height() }
	case "length":
		less = func(a, b geometry.Region) bool { return a.Length() > b.Length() }
	case "x":
		less = func(a, b geometry.Region) bool { return a.Rect.Min.X < b.Rect.Min.X }
	case "y":
		less = func(a, b geometry.Region) bool { return a.Rect.Min.Y < b.Rect.Min.Y }
	default:
		less = func(a, b geometry.Region) bool { return a.Surface > b.Surface }
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func within(v, lo, hi float64) bool {
	if lo > 0 && v < lo {
		return false
	}
	if hi > 0 && v > hi {
		return false
	}
	return true
}

// ParseSize resolves a resize specification against the current size.
// Accepted forms: "50%", "640x480", "640x" and "x480" (the missing side keeps
// the aspect ratio).
func ParseSize(spec string, width, height int) (image.Point, error) {
	spec = strings.TrimSpace(strings.ToLower(spec))
	if spec == "" {
		return image.Point{}, fmt.Errorf("empty size")
	}
	if width <= 0 || height <= 0 {
		return image.Point{}, fmt.Errorf("cannot resize an empty image")
	}

	if pct, ok := strings.CutSuffix(spec, "%"); ok {
		p, err := strconv.ParseFloat(pct, 64)
		if err != nil || p <= 0 {
			return image.Point{}, fmt.Errorf("invalid percentage %q", spec)
		}
		return image.Pt(roundPositive(float64(width)*p/100), roundPositive(float64(height)*p/100)), nil
	}

	ws, hs, ok := strings.Cut(spec, "x")
	if !ok {
		return image.Point{}, fmt.Errorf("invalid size %q: expected WIDTHxHEIGHT or N%%", spec)
	}
	w, errW := parseSide(ws)
	h, errH := parseSide(hs)
	if errW != nil || errH != nil || (w == 0 && h == 0) {
		return image.Point{}, fmt.Errorf("invalid size %q", spec)
	}
	switch {
	case w == 0:
		w = roundPositive(float64(width) * float64(h) / float64(height))
	case h == 0:
		h = roundPositive(float64(height) * float64(w) / float64(width))
	}
	return image.Pt(w, h), nil
}

func parseSide(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid side %q", s)
	}
	return v, nil
}

func roundPositive(v float64) int {
	n := int(v + 0.5)
	if n < 1 {
		return 1
	}
	return n
}

// ClampRect intersects the crop request with the image bounds. Width and
// height larger than what remains are shrunk.
func ClampRect(x, y, w, h, width, height int) image.Rectangle {
	return image.Rect(x, y, x+w, y+h).Intersect(image.Rect(0, 0, width, height))
}

// ParseHexColor parses "#rrggbb".
func ParseHexColor(s string) (r, g, b uint8, err error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return 0, 0, 0, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid color %q", s)
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), nil
}
