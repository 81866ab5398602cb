package process

import (
	"encoding/json"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labset/internal/dataset"
	"labset/internal/imaging"
	"labset/pkg/geometry"
)

// fakeLoader hands out fakeImages and records what was done to them.
type fakeLoader struct {
	ops     []string
	regions int
	failOn  string
	open    int
}

func (l *fakeLoader) Load(path string) (imaging.Image, error) {
	if l.failOn != "" && strings.Contains(path, l.failOn) {
		return nil, errors.New("corrupt image")
	}
	return l.image(3), nil
}

func (l *fakeLoader) image(channels int) *fakeImage {
	l.open++
	return &fakeImage{l: l, w: 100, h: 80, channels: channels}
}

type fakeImage struct {
	l        *fakeLoader
	w, h     int
	channels int
}

func (f *fakeImage) op(name string) error {
	f.l.ops = append(f.l.ops, name)
	return nil
}

func (f *fakeImage) Width() int    { return f.w }
func (f *fakeImage) Height() int   { return f.h }
func (f *fakeImage) Channels() int { return f.channels }

func (f *fakeImage) Resize(size string) error {
	sz, err := imaging.ParseSize(size, f.w, f.h)
	if err != nil {
		return err
	}
	f.w, f.h = sz.X, sz.Y
	return f.op("resize " + size)
}

func (f *fakeImage) Crop(r image.Rectangle) error {
	r = r.Intersect(image.Rect(0, 0, f.w, f.h))
	f.w, f.h = r.Dx(), r.Dy()
	return f.op("crop")
}

func (f *fakeImage) split(name string) ([]imaging.Image, error) {
	f.op(name)
	return []imaging.Image{f.l.image(1), f.l.image(1), f.l.image(1)}, nil
}

func (f *fakeImage) SplitRGB() ([]imaging.Image, error) { return f.split("rgb") }
func (f *fakeImage) SplitHSB() ([]imaging.Image, error) { return f.split("hsb") }
func (f *fakeImage) Grey() error                        { f.channels = 1; return f.op("grey") }
func (f *fakeImage) Contrast() error                    { return f.op("contrast") }
func (f *fakeImage) Texture() error                     { return f.op("texture") }
func (f *fakeImage) Edge() error                        { return f.op("edge") }
func (f *fakeImage) ToRGB() error                       { f.channels = 3; return f.op("rgb") }
func (f *fakeImage) Histogram() []float64               { return []float64{float64(f.w), float64(f.h)} }

func (f *fakeImage) CreateMask(opts imaging.MaskOptions) (imaging.Image, error) {
	f.op("mask " + opts.ImageFilter)
	return f.l.image(1), nil
}

func (f *fakeImage) Regions(opts imaging.RegionOptions) ([]geometry.Region, error) {
	regions := make([]geometry.Region, f.l.regions)
	for k := range regions {
		regions[k] = geometry.Region{Rect: image.Rect(k*10, 0, k*10+5, 5), Surface: 25}
	}
	return regions, nil
}

func (f *fakeImage) Split(regions []geometry.Region) ([]imaging.Image, error) {
	out := make([]imaging.Image, len(regions))
	for k, r := range regions {
		img := f.l.image(f.channels)
		img.w, img.h = r.Width(), r.Height()
		out[k] = img
	}
	return out, nil
}

func (f *fakeImage) PaintMask(mask imaging.Image) (imaging.Image, error) {
	return f.l.image(3), nil
}

func (f *fakeImage) PaintRegions(regions []geometry.Region) (imaging.Image, error) {
	return f.l.image(3), nil
}

func (f *fakeImage) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("png"), 0644)
}

func (f *fakeImage) SaveTransparentPNG(path string, mask imaging.Image) error {
	f.op("transparent")
	return f.Save(path)
}

func (f *fakeImage) Close() error {
	f.l.open--
	return nil
}

func imageCollection(t *testing.T) (string, *dataset.Collection) {
	root := t.TempDir()
	writeFiles(t, root, "original", "A_1.jpg", "A_2.jpg", "B_1.jpg")
	return root, load(t, root, "original", nil)
}

func TestImageResize(t *testing.T) {
	root, c := imageCollection(t)
	loader := &fakeLoader{}
	p := NewImageProcessor(c, loader)

	require.NoError(t, p.Resize("original", "small", "50%", Options{}))
	assert.Equal(t, []string{"A_1.png", "A_2.png", "B_1.png"}, listDir(t, filepath.Join(root, "small")))
	a := c.Data[0].Artifact("small")
	require.NotNil(t, a)
	assert.Equal(t, filepath.Join(root, "small", "A_1.png"), a.Filename)
	assert.Equal(t, "png", a.ViewFile.Type)
	assert.Equal(t, a.Filename, a.ViewFile.Value)
	assert.Equal(t, []float64{50, 40}, a.Histogram)
	assert.Zero(t, loader.open)

	require.NoError(t, p.Filter("small", "g", FilterGrey, Options{}))
	assert.NotNil(t, c.Data[2].Artifact("small_g"))
	assert.Equal(t, []string{"original", "small", "small_g"}, c.Versions())

	err := p.Resize("original", "x", "big", Options{})
	assert.ErrorIs(t, err, dataset.ErrValidation)
}

func TestImageCrop(t *testing.T) {
	_, c := imageCollection(t)
	p := NewImageProcessor(c, &fakeLoader{})

	require.NoError(t, p.Crop("original", "corner", CropOptions{X: 90, Y: 70, Width: 50, Height: 50}, Options{}))
	assert.Equal(t, []float64{10, 10}, c.Data[0].Artifact("corner").Histogram)

	require.NoError(t, p.Crop("original", "dot", CropOptions{}, Options{}))
	assert.Equal(t, []float64{1, 1}, c.Data[0].Artifact("dot").Histogram)

	err := p.Crop("original", "neg", CropOptions{X: -1}, Options{})
	assert.ErrorIs(t, err, dataset.ErrValidation)
}

func TestImageFilterChannels(t *testing.T) {
	root, c := imageCollection(t)
	loader := &fakeLoader{}
	p := NewImageProcessor(c, loader)

	require.NoError(t, p.Filter("original", "f", "RGB", Options{}))
	for _, suffix := range []string{"Red", "Green", "Blue"} {
		assert.Len(t, listDir(t, filepath.Join(root, "f"+suffix)), 3, suffix)
		a := c.Data[1].Artifact("f" + suffix)
		require.NotNil(t, a, suffix)
		assert.Equal(t, filepath.Join(root, "f"+suffix, "A_2.png"), a.Filename)
	}
	assert.Nil(t, c.Data[0].Artifact("f"))
	assert.Zero(t, loader.open)

	// one existing channel directory blocks the whole operation
	writeFiles(t, root, "hSaturation", "old.png")
	err := p.Filter("original", "h", FilterHSB, Options{})
	require.ErrorIs(t, err, dataset.ErrValidation)
	assert.Contains(t, err.Error(), "hSaturation")
	_, statErr := os.Stat(filepath.Join(root, "hHue"))
	assert.True(t, os.IsNotExist(statErr))

	require.NoError(t, p.Filter("original", "h", FilterHSB, Options{Overwrite: true}))
	assert.Equal(t, []string{"A_1.png", "A_2.png", "B_1.png"}, listDir(t, filepath.Join(root, "hSaturation")))

	err = p.Filter("original", "b", "blur", Options{})
	assert.ErrorIs(t, err, dataset.ErrValidation)
}

func TestImageHistogram(t *testing.T) {
	root, c := imageCollection(t)
	p := NewImageProcessor(c, &fakeLoader{})

	require.NoError(t, p.Histogram("original", "hist", Options{}))
	a := c.Data[0].Artifact("hist")
	require.NotNil(t, a)
	assert.Equal(t, filepath.Join(root, "hist", "A_1.array"), a.Filename)
	assert.Equal(t, []float64{100, 80}, a.Histogram)
	assert.Equal(t, dataset.TypeArray, c.DataType("hist"))

	raw, err := os.ReadFile(a.Filename)
	require.NoError(t, err)
	var saved []float64
	require.NoError(t, json.Unmarshal(raw, &saved))
	assert.Equal(t, a.Histogram, saved)
}

func TestImageSplit(t *testing.T) {
	root, c := imageCollection(t)
	loader := &fakeLoader{regions: 2}
	p := NewImageProcessor(c, loader)

	require.NoError(t, p.Split("original", "part", "none", SplitOptions{SplitIndex: 1, Transparent: true}))
	a := c.Data[0].Artifact("part")
	require.NotNil(t, a)
	assert.Equal(t, filepath.Join(root, "part", "A_1.png"), a.Filename)
	assert.Nil(t, a.Histogram)
	assert.Contains(t, loader.ops, "mask red")
	assert.Contains(t, loader.ops, "transparent")
	assert.Zero(t, loader.open)

	err := p.Split("original", "part2", "hue", SplitOptions{SplitIndex: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "region 2 requested, 2 found")
	// the failing element got nothing, the directory was prepared
	assert.Nil(t, c.Data[0].Artifact("part2"))
	assert.Contains(t, c.Versions(), "part2")

	for _, opts := range []SplitOptions{
		{Method: "magic"},
		{Regions: imaging.RegionOptions{SortBy: "colour"}},
		{SplitIndex: -1},
		{MaskColor: "red"},
	} {
		err := p.Split("original", "bad", "red", opts)
		assert.ErrorIs(t, err, dataset.ErrValidation, "%+v", opts)
	}
	err = p.Split("original", "bad", "purple", SplitOptions{})
	assert.ErrorIs(t, err, dataset.ErrValidation)
}

func TestImageSplitTest(t *testing.T) {
	root, c := imageCollection(t)
	loader := &fakeLoader{regions: 3}
	p := NewImageProcessor(c, loader)

	previews, err := p.SplitTest("original", "green", SplitOptions{})
	require.NoError(t, err)
	require.Len(t, previews, 3)

	first := previews[0]
	assert.Equal(t, "A_1.jpg", first.Name)
	assert.Equal(t, filepath.Join(root, "_split", "A_1.jpg", "paintedMask.png"), first.PaintedMask.Value)
	assert.Equal(t, filepath.Join(root, "_split", "A_1.jpg", "paintedRois.png"), first.PaintedRois.Value)
	require.Len(t, first.Images, 3)
	assert.Equal(t, "Split #2", first.Images[2].Label)
	assert.Equal(t, []string{"0.png", "1.png", "2.png"}, listDir(t, filepath.Join(root, "_split", "A_1.jpg", "split")))

	assert.Equal(t, []string{"original"}, c.Versions())
	assert.Zero(t, loader.open)
}

func TestImageMidLoopFailure(t *testing.T) {
	_, c := imageCollection(t)
	p := NewImageProcessor(c, &fakeLoader{failOn: "A_2"})

	err := p.Filter("original", "c", FilterContrast, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt image")
	assert.NotNil(t, c.Data[0].Artifact("c"))
	assert.Nil(t, c.Data[1].Artifact("c"))
	assert.Nil(t, c.Data[2].Artifact("c"))
}
