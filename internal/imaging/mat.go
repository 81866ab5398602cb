package imaging

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"gocv.io/x/gocv"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"labset/pkg/geometry"
)

// GoCV loads images into OpenCV matrices.
type GoCV struct{}

// Load reads path with OpenCV, falling back to the Go decoders for formats
// OpenCV cannot read (GIF in particular).
func (GoCV) Load(path string) (Image, error) {
	m := gocv.IMRead(path, gocv.IMReadColor)
	if !m.Empty() {
		return &Mat{m: m}, nil
	}
	m.Close()

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return &Mat{m: imageToMat(img)}, nil
}

// Mat is an Image backed by a BGR (or single channel) gocv.Mat.
type Mat struct {
	m gocv.Mat
}

// NewMat wraps m. The returned image owns it.
func NewMat(m gocv.Mat) *Mat { return &Mat{m: m} }

// imageToMat converts a Go image to a BGR Mat, filling horizontal stripes
// in parallel.
func imageToMat(img image.Image) gocv.Mat {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)

	numWorkers := runtime.NumCPU()
	rowsPerWorker := (height + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		startY := w * rowsPerWorker
		endY := min(startY+rowsPerWorker, height)
		if startY >= height {
			break
		}

		wg.Add(1)
		go func(yStart, yEnd int) {
			defer wg.Done()
			for y := yStart; y < yEnd; y++ {
				for x := 0; x < width; x++ {
					r, g, b, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
					mat.SetUCharAt(y, x*3+0, uint8(b>>8))
					mat.SetUCharAt(y, x*3+1, uint8(g>>8))
					mat.SetUCharAt(y, x*3+2, uint8(r>>8))
				}
			}
		}(startY, endY)
	}
	wg.Wait()

	return mat
}

func (i *Mat) Width() int    { return i.m.Cols() }
func (i *Mat) Height() int   { return i.m.Rows() }
func (i *Mat) Channels() int { return i.m.Channels() }

// replace swaps the underlying matrix, releasing the old one.
func (i *Mat) replace(m gocv.Mat) {
	i.m.Close()
	i.m = m
}

func (i *Mat) Resize(size string) error {
	sz, err := ParseSize(size, i.Width(), i.Height())
	if err != nil {
		return err
	}
	dst := gocv.NewMat()
	gocv.Resize(i.m, &dst, sz, 0, 0, gocv.InterpolationArea)
	i.replace(dst)
	return nil
}

func (i *Mat) Crop(r image.Rectangle) error {
	r = r.Intersect(image.Rect(0, 0, i.Width(), i.Height()))
	if r.Empty() {
		return fmt.Errorf("crop %v is outside the image", r)
	}
	region := i.m.Region(r)
	defer region.Close()
	i.replace(region.Clone())
	return nil
}

// bgr returns a three channel copy of the image.
func (i *Mat) bgr() gocv.Mat {
	dst := gocv.NewMat()
	if i.m.Channels() == 1 {
		gocv.CvtColor(i.m, &dst, gocv.ColorGrayToBGR)
	} else {
		i.m.CopyTo(&dst)
	}
	return dst
}

func wrapAll(mats []gocv.Mat) []Image {
	out := make([]Image, len(mats))
	for k, m := range mats {
		out[k] = &Mat{m: m}
	}
	return out
}

// SplitRGB returns the red, green and blue channels in that order.
func (i *Mat) SplitRGB() ([]Image, error) {
	src := i.bgr()
	defer src.Close()
	ch := gocv.Split(src)
	if len(ch) != 3 {
		for _, c := range ch {
			c.Close()
		}
		return nil, fmt.Errorf("expected 3 channels, got %d", len(ch))
	}
	return wrapAll([]gocv.Mat{ch[2], ch[1], ch[0]}), nil
}

// SplitHSB returns the hue, saturation and brightness channels.
func (i *Mat) SplitHSB() ([]Image, error) {
	src := i.bgr()
	defer src.Close()
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(src, &hsv, gocv.ColorBGRToHSV)
	ch := gocv.Split(hsv)
	if len(ch) != 3 {
		for _, c := range ch {
			c.Close()
		}
		return nil, fmt.Errorf("expected 3 channels, got %d", len(ch))
	}
	return wrapAll(ch), nil
}

func (i *Mat) grey() gocv.Mat {
	dst := gocv.NewMat()
	if i.m.Channels() == 1 {
		i.m.CopyTo(&dst)
	} else {
		gocv.CvtColor(i.m, &dst, gocv.ColorBGRToGray)
	}
	return dst
}

func (i *Mat) Grey() error {
	i.replace(i.grey())
	return nil
}

// Contrast equalizes the luma histogram.
func (i *Mat) Contrast() error {
	if i.m.Channels() == 1 {
		dst := gocv.NewMat()
		gocv.EqualizeHist(i.m, &dst)
		i.replace(dst)
		return nil
	}

	ycc := gocv.NewMat()
	defer ycc.Close()
	gocv.CvtColor(i.m, &ycc, gocv.ColorBGRToYCrCb)
	ch := gocv.Split(ycc)
	defer func() {
		for _, c := range ch {
			c.Close()
		}
	}()
	eq := gocv.NewMat()
	gocv.EqualizeHist(ch[0], &eq)
	ch[0].Close()
	ch[0] = eq

	merged := gocv.NewMat()
	defer merged.Close()
	gocv.Merge(ch, &merged)
	dst := gocv.NewMat()
	gocv.CvtColor(merged, &dst, gocv.ColorYCrCbToBGR)
	i.replace(dst)
	return nil
}

// Texture keeps the absolute Laplacian of the grey image.
func (i *Mat) Texture() error {
	grey := i.grey()
	defer grey.Close()
	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(grey, &lap, gocv.MatTypeCV16S, 3, 1, 0, gocv.BorderDefault)
	dst := gocv.NewMat()
	gocv.ConvertScaleAbs(lap, &dst, 1, 0)
	i.replace(dst)
	return nil
}

func (i *Mat) Edge() error {
	grey := i.grey()
	defer grey.Close()
	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(grey, &blurred, image.Pt(5, 5), 0, 0, gocv.BorderDefault)
	edges := gocv.NewMat()
	gocv.Canny(blurred, &edges, 50, 150)
	i.replace(edges)
	return nil
}

func (i *Mat) ToRGB() error {
	if i.m.Channels() != 1 {
		return nil
	}
	i.replace(i.bgr())
	return nil
}

func (i *Mat) Histogram() []float64 {
	channels := gocv.Split(i.m)
	defer func() {
		for _, c := range channels {
			c.Close()
		}
	}()
	// report red first for colour images
	if len(channels) == 3 {
		channels[0], channels[2] = channels[2], channels[0]
	}

	out := make([]float64, 0, 256*len(channels))
	mask := gocv.NewMat()
	defer mask.Close()
	for _, c := range channels {
		hist := gocv.NewMat()
		gocv.CalcHist([]gocv.Mat{c}, []int{0}, mask, &hist, []int{256}, []float64{0, 256}, false)
		for bin := 0; bin < 256; bin++ {
			out = append(out, float64(hist.GetFloatAt(bin, 0)))
		}
		hist.Close()
	}
	return out
}

// channel extracts the single channel named by filter.
func (i *Mat) channel(filter string) (gocv.Mat, error) {
	pick := func(imgs []Image, err error, k int) (gocv.Mat, error) {
		if err != nil {
			return gocv.Mat{}, err
		}
		for j, img := range imgs {
			if j != k {
				img.Close()
			}
		}
		return imgs[k].(*Mat).m, nil
	}

	switch filter {
	case "", "red":
		imgs, err := i.SplitRGB()
		return pick(imgs, err, 0)
	case "green":
		imgs, err := i.SplitRGB()
		return pick(imgs, err, 1)
	case "blue":
		imgs, err := i.SplitRGB()
		return pick(imgs, err, 2)
	case "hue":
		imgs, err := i.SplitHSB()
		return pick(imgs, err, 0)
	case "saturation":
		imgs, err := i.SplitHSB()
		return pick(imgs, err, 1)
	case "brightness":
		imgs, err := i.SplitHSB()
		return pick(imgs, err, 2)
	case "grey":
		return i.grey(), nil
	case "edge", "texture":
		tmp := &Mat{m: i.grey()}
		var err error
		if filter == "edge" {
			err = tmp.Edge()
		} else {
			err = tmp.Texture()
		}
		return tmp.m, err
	default:
		return gocv.Mat{}, fmt.Errorf("unknown image filter %q", filter)
	}
}

func (i *Mat) CreateMask(opts MaskOptions) (Image, error) {
	if opts.MaskColor != "" {
		r, g, b, err := ParseHexColor(opts.MaskColor)
		if err != nil {
			return nil, err
		}
		const tolerance = 40
		lo := func(v uint8) float64 { return max(float64(v)-tolerance, 0) }
		hi := func(v uint8) float64 { return min(float64(v)+tolerance, 255) }
		src := i.bgr()
		defer src.Close()
		mask := gocv.NewMat()
		gocv.InRangeWithScalar(src,
			gocv.NewScalar(lo(b), lo(g), lo(r), 0),
			gocv.NewScalar(hi(b), hi(g), hi(r), 0),
			&mask)
		return &Mat{m: mask}, nil
	}

	ch, err := i.channel(opts.ImageFilter)
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	binary := gocv.ThresholdBinaryInv
	if opts.DarkBackground != nil && *opts.DarkBackground {
		binary = gocv.ThresholdBinary
	}

	mask := gocv.NewMat()
	switch opts.Method {
	case "", "otsu":
		gocv.Threshold(ch, &mask, 0, 255, binary|gocv.ThresholdOtsu)
	case "triangle":
		gocv.Threshold(ch, &mask, 0, 255, binary|gocv.ThresholdTriangle)
	case "mean":
		gocv.Threshold(ch, &mask, float32(ch.Mean().Val1), 255, binary)
	default:
		mask.Close()
		return nil, fmt.Errorf("unknown threshold method %q", opts.Method)
	}
	return &Mat{m: mask}, nil
}

func (i *Mat) Regions(opts RegionOptions) ([]geometry.Region, error) {
	if i.m.Channels() != 1 {
		return nil, fmt.Errorf("regions need a binary mask, got %d channels", i.m.Channels())
	}
	contours := gocv.FindContours(i.m, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	regions := make([]geometry.Region, 0, contours.Size())
	for k := 0; k < contours.Size(); k++ {
		contour := contours.At(k)
		regions = append(regions, geometry.Region{
			Rect:    gocv.BoundingRect(contour),
			Surface: gocv.ContourArea(contour),
		})
	}
	return FilterRegions(regions, opts), nil
}

func (i *Mat) Split(regions []geometry.Region) ([]Image, error) {
	bounds := image.Rect(0, 0, i.Width(), i.Height())
	out := make([]Image, 0, len(regions))
	for _, r := range regions {
		rect := r.Rect.Intersect(bounds)
		if rect.Empty() {
			continue
		}
		region := i.m.Region(rect)
		out = append(out, &Mat{m: region.Clone()})
		region.Close()
	}
	return out, nil
}

var overlayColor = color.RGBA{R: 255, G: 0, B: 0, A: 255}

func (i *Mat) PaintMask(mask Image) (Image, error) {
	mm, ok := mask.(*Mat)
	if !ok {
		return nil, fmt.Errorf("mask must be a *Mat, got %T", mask)
	}
	base := i.bgr()
	defer base.Close()

	painted := gocv.NewMat()
	base.CopyTo(&painted)
	fill := gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(overlayColor.B), float64(overlayColor.G), float64(overlayColor.R), 0),
		base.Rows(), base.Cols(), gocv.MatTypeCV8UC3)
	defer fill.Close()
	fill.CopyToWithMask(&painted, mm.m)

	dst := gocv.NewMat()
	gocv.AddWeighted(base, 0.5, painted, 0.5, 0, &dst)
	painted.Close()
	return &Mat{m: dst}, nil
}

func (i *Mat) PaintRegions(regions []geometry.Region) (Image, error) {
	dst := i.bgr()
	for _, r := range regions {
		gocv.Rectangle(&dst, r.Rect, overlayColor, 2)
	}
	return &Mat{m: dst}, nil
}

func (i *Mat) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if !gocv.IMWrite(path, i.m) {
		return fmt.Errorf("failed to write image %s", path)
	}
	return nil
}

func (i *Mat) SaveTransparentPNG(path string, mask Image) error {
	mm, ok := mask.(*Mat)
	if !ok {
		return fmt.Errorf("mask must be a *Mat, got %T", mask)
	}
	if mm.Width() != i.Width() || mm.Height() != i.Height() || mm.Channels() != 1 {
		return fmt.Errorf("mask does not match image %dx%d", i.Width(), i.Height())
	}

	base := i.bgr()
	defer base.Close()
	ch := gocv.Split(base)
	defer func() {
		for _, c := range ch {
			c.Close()
		}
	}()

	bgra := gocv.NewMat()
	defer bgra.Close()
	gocv.Merge(append(ch, mm.m), &bgra)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if !gocv.IMWrite(path, bgra) {
		return fmt.Errorf("failed to write image %s", path)
	}
	return nil
}

func (i *Mat) Close() error {
	return i.m.Close()
}
