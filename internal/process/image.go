package process

import (
	"fmt"
	"image"
	"path/filepath"
	"strconv"

	"labset/internal/dataset"
	"labset/internal/imaging"
	"labset/pkg/typedref"
)

// ImageFilter is a whole-image filter.
type ImageFilter string

const (
	FilterRGB      ImageFilter = "rgb"
	FilterHSB      ImageFilter = "hsb"
	FilterGrey     ImageFilter = "grey"
	FilterContrast ImageFilter = "contrast"
	FilterTexture  ImageFilter = "texture"
	FilterEdge     ImageFilter = "edge"
)

// ParseImageFilter parses a filter name case-insensitively.
func ParseImageFilter(s string) (ImageFilter, error) {
	switch f := ImageFilter(normalizeName(s)); f {
	case FilterRGB, FilterHSB, FilterGrey, FilterContrast, FilterTexture, FilterEdge:
		return f, nil
	case "gray":
		return FilterGrey, nil
	}
	return "", dataset.Validationf("the requested image filter %q does not exist", s)
}

// channelSuffixes returns the per-channel target suffixes of f, or nil.
func (f ImageFilter) channelSuffixes() []string {
	switch f {
	case FilterRGB:
		return []string{"Red", "Green", "Blue"}
	case FilterHSB:
		return []string{"Hue", "Saturation", "Brightness"}
	}
	return nil
}

// Options are shared by every operation.
type Options struct {
	// Overwrite replaces an existing destination directory.
	Overwrite bool
}

// CropOptions is the crop rectangle. A zero Width or Height means 1; values
// larger than what remains of the image are shrunk.
type CropOptions struct {
	X, Y          int
	Width, Height int
}

// DefaultCropOptions returns the crop applied when none is given.
func DefaultCropOptions() CropOptions {
	return CropOptions{Width: 1, Height: 1}
}

// SplitOptions configures Split and SplitTest.
type SplitOptions struct {
	Options

	DarkBackground *bool
	MaskColor      string
	Method         string
	Regions        imaging.RegionOptions

	// SplitIndex selects which region is kept.
	SplitIndex int
	// Transparent saves the region as a PNG whose alpha is the region mask.
	Transparent bool
}

var (
	maskFilters = map[string]bool{
		"red": true, "green": true, "blue": true,
		"hue": true, "saturation": true, "brightness": true,
		"grey": true, "edge": true, "texture": true,
	}
	thresholdMethods = map[string]bool{"": true, "otsu": true, "triangle": true, "mean": true}
	regionSorts      = map[string]bool{"": true, "surface": true, "width": true, "height": true, "length": true, "x": true, "y": true}
)

// maskOptions validates the split request and builds the mask options.
// "none" keeps the default channel.
func (o SplitOptions) maskOptions(imageFilter string) (imaging.MaskOptions, error) {
	filter := normalizeName(imageFilter)
	switch {
	case filter == "none" || filter == "":
		filter = "red"
	case filter == "gray":
		filter = "grey"
	case !maskFilters[filter]:
		return imaging.MaskOptions{}, dataset.Validationf("unknown mask image filter %q", imageFilter)
	}
	if !thresholdMethods[o.Method] {
		return imaging.MaskOptions{}, dataset.Validationf("unknown threshold method %q", o.Method)
	}
	if !regionSorts[o.Regions.SortBy] {
		return imaging.MaskOptions{}, dataset.Validationf("unknown region sort %q", o.Regions.SortBy)
	}
	if o.SplitIndex < 0 {
		return imaging.MaskOptions{}, dataset.Validationf("split index must not be negative, got %d", o.SplitIndex)
	}
	if o.MaskColor != "" {
		if _, _, _, err := imaging.ParseHexColor(o.MaskColor); err != nil {
			return imaging.MaskOptions{}, dataset.Validationf("%v", err)
		}
	}
	return imaging.MaskOptions{
		ImageFilter:    filter,
		DarkBackground: o.DarkBackground,
		MaskColor:      o.MaskColor,
		Method:         o.Method,
	}, nil
}

// ImageProcessor runs the image operations of the dispatcher.
type ImageProcessor struct {
	c      *dataset.Collection
	images imaging.Loader
}

// NewImageProcessor returns a processor over c. A nil loader uses OpenCV.
func NewImageProcessor(c *dataset.Collection, images imaging.Loader) *ImageProcessor {
	if images == nil {
		images = imaging.GoCV{}
	}
	return &ImageProcessor{c: c, images: images}
}

// run loads every source image, hands it to fn and closes it.
func (p *ImageProcessor) run(pl *plan, fn func(e *dataset.Element, src string, img imaging.Image) error) error {
	if err := pl.prepare(); err != nil {
		return err
	}
	return pl.each(func(e *dataset.Element, src string) error {
		img, err := p.images.Load(src)
		if err != nil {
			return fmt.Errorf("loading %s: %w", src, err)
		}
		defer img.Close()
		return fn(e, src, img)
	})
}

// save writes img as PNG under target k and records it with its histogram.
func (p *ImageProcessor) save(pl *plan, k int, e *dataset.Element, src string, img imaging.Image) error {
	path := pl.path(k, src, ".png")
	if err := img.Save(path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	pl.record(e, k, path, img.Histogram())
	return nil
}

// Resize scales every image of version. size is "WxH", "W", "xH" or "N%".
func (p *ImageProcessor) Resize(version, destination, size string, opts Options) error {
	if err := validate(p.c, version, destination, dataset.TypeImage); err != nil {
		return err
	}
	if _, err := imaging.ParseSize(size, 100, 100); err != nil {
		return dataset.Validationf("%v", err)
	}
	pl, err := newPlan(p.c, version, destination, opts.Overwrite)
	if err != nil {
		return err
	}

	p.c.Log().Info("resizing images", "version", version, "size", size)
	return p.run(pl, func(e *dataset.Element, src string, img imaging.Image) error {
		if err := img.Resize(size); err != nil {
			return fmt.Errorf("resizing %s: %w", src, err)
		}
		return p.save(pl, 0, e, src, img)
	})
}

// Crop cuts the same rectangle out of every image of version.
func (p *ImageProcessor) Crop(version, destination string, crop CropOptions, opts Options) error {
	if err := validate(p.c, version, destination, dataset.TypeImage); err != nil {
		return err
	}
	if crop.Width == 0 {
		crop.Width = 1
	}
	if crop.Height == 0 {
		crop.Height = 1
	}
	if crop.X < 0 || crop.Y < 0 || crop.Width < 0 || crop.Height < 0 {
		return dataset.Validationf("invalid crop rectangle %+v", crop)
	}
	pl, err := newPlan(p.c, version, destination, opts.Overwrite)
	if err != nil {
		return err
	}

	p.c.Log().Info("cropping images", "version", version)
	return p.run(pl, func(e *dataset.Element, src string, img imaging.Image) error {
		r := image.Rect(crop.X, crop.Y, crop.X+crop.Width, crop.Y+crop.Height)
		if err := img.Crop(r); err != nil {
			return fmt.Errorf("cropping %s: %w", src, err)
		}
		return p.save(pl, 0, e, src, img)
	})
}

// Filter applies filter to every image of version. RGB and HSB write one
// version per channel, suffixed with the channel name.
func (p *ImageProcessor) Filter(version, destination string, filter ImageFilter, opts Options) error {
	if err := validate(p.c, version, destination, dataset.TypeImage); err != nil {
		return err
	}
	filter, err := ParseImageFilter(string(filter))
	if err != nil {
		return err
	}
	pl, err := newPlan(p.c, version, destination, opts.Overwrite, filter.channelSuffixes()...)
	if err != nil {
		return err
	}

	p.c.Log().Info("filtering images", "version", version, "filter", filter)
	return p.run(pl, func(e *dataset.Element, src string, img imaging.Image) error {
		var channels []imaging.Image
		var err error
		switch filter {
		case FilterRGB:
			channels, err = img.SplitRGB()
		case FilterHSB:
			channels, err = img.SplitHSB()
		case FilterGrey:
			err = img.Grey()
		case FilterContrast:
			err = img.Contrast()
		case FilterTexture:
			err = img.Texture()
		case FilterEdge:
			err = img.Edge()
		}
		if err != nil {
			return fmt.Errorf("filtering %s: %w", src, err)
		}

		if channels == nil {
			return p.save(pl, 0, e, src, img)
		}
		defer closeAll(channels)
		for k, ch := range channels {
			if err := p.save(pl, k, e, src, ch); err != nil {
				return err
			}
		}
		return nil
	})
}

// Histogram saves the histogram of every image of version as an .array
// file and records it on the element.
func (p *ImageProcessor) Histogram(version, destination string, opts Options) error {
	if err := validate(p.c, version, destination, dataset.TypeImage); err != nil {
		return err
	}
	pl, err := newPlan(p.c, version, destination, opts.Overwrite)
	if err != nil {
		return err
	}

	p.c.Log().Info("computing histograms", "version", version)
	fs := p.c.Env().FS
	return p.run(pl, func(e *dataset.Element, src string, img imaging.Image) error {
		histogram := img.Histogram()
		path := pl.path(0, src, ".array")
		if err := fs.SaveJSON(path, histogram); err != nil {
			return fmt.Errorf("saving %s: %w", path, err)
		}
		pl.record(e, 0, path, histogram)
		return nil
	})
}

// Split keeps one region of interest of every image of version. The regions
// come from a mask built on imageFilter.
func (p *ImageProcessor) Split(version, destination, imageFilter string, opts SplitOptions) error {
	if err := validate(p.c, version, destination, dataset.TypeImage); err != nil {
		return err
	}
	maskOpts, err := opts.maskOptions(imageFilter)
	if err != nil {
		return err
	}
	pl, err := newPlan(p.c, version, destination, opts.Overwrite)
	if err != nil {
		return err
	}

	p.c.Log().Info("splitting images", "version", version, "filter", maskOpts.ImageFilter)
	return p.run(pl, func(e *dataset.Element, src string, img imaging.Image) error {
		if img.Channels() == 1 {
			if err := img.ToRGB(); err != nil {
				return err
			}
		}
		split, masks, err := splitImage(img, maskOpts, opts.Regions)
		if err != nil {
			return fmt.Errorf("splitting %s: %w", src, err)
		}
		defer closeAll(split)
		defer closeAll(masks)

		if opts.SplitIndex >= len(split) {
			return fmt.Errorf("splitting %s: region %d requested, %d found", src, opts.SplitIndex, len(split))
		}
		path := pl.path(0, src, ".png")
		if opts.Transparent {
			err = split[opts.SplitIndex].SaveTransparentPNG(path, masks[opts.SplitIndex])
		} else {
			err = split[opts.SplitIndex].Save(path)
		}
		if err != nil {
			return fmt.Errorf("saving %s: %w", path, err)
		}
		pl.record(e, 0, path, nil)
		return nil
	})
}

// splitImage masks img and cuts both the image and the mask along the
// regions found.
func splitImage(img imaging.Image, maskOpts imaging.MaskOptions, regionOpts imaging.RegionOptions) (split, masks []imaging.Image, err error) {
	mask, err := img.CreateMask(maskOpts)
	if err != nil {
		return nil, nil, err
	}
	defer mask.Close()

	regions, err := mask.Regions(regionOpts)
	if err != nil {
		return nil, nil, err
	}
	if split, err = img.Split(regions); err != nil {
		return nil, nil, err
	}
	if masks, err = mask.Split(regions); err != nil {
		closeAll(split)
		return nil, nil, err
	}
	return split, masks, nil
}

// SplitPreview is what SplitTest produced for one image.
type SplitPreview struct {
	Name        string         `json:"name"`
	Image       typedref.Ref   `json:"image"`
	PaintedMask typedref.Ref   `json:"paintedMask"`
	PaintedRois typedref.Ref   `json:"paintedRois"`
	Images      []LabeledImage `json:"images"`
}

// LabeledImage is one split region of a preview.
type LabeledImage struct {
	Label string       `json:"label"`
	Value typedref.Ref `json:"value"`
}

// SplitTest runs the split of every image of version into
// <source>/_split/<image>/ without touching the collection, so split options
// can be tuned before calling Split.
func (p *ImageProcessor) SplitTest(version, imageFilter string, opts SplitOptions) ([]SplitPreview, error) {
	if !p.c.HasVersion(version) {
		return nil, dataset.Validationf("the version %q is not loaded or does not exist", version)
	}
	if got := p.c.DataType(version); got != dataset.TypeImage {
		return nil, dataset.Validationf("this operation can only be used on image data, version %q holds %s", version, got)
	}
	maskOpts, err := opts.maskOptions(imageFilter)
	if err != nil {
		return nil, err
	}

	refs := p.c.Env().Refs
	previews := make([]SplitPreview, 0, len(p.c.Data))
	for _, e := range p.c.Data {
		a := e.Artifact(version)
		if a == nil {
			return previews, dataset.Validationf("element %s has no version %q", e.ID, version)
		}
		preview, err := p.splitPreview(a.Filename, maskOpts, opts, refs)
		if err != nil {
			return previews, err
		}
		previews = append(previews, preview)
	}
	return previews, nil
}

func (p *ImageProcessor) splitPreview(src string, maskOpts imaging.MaskOptions, opts SplitOptions, refs typedref.Resolver) (SplitPreview, error) {
	name := filepath.Base(src)
	dir := filepath.Join(p.c.Source, "_split", name)
	preview := SplitPreview{Name: name, Image: refs.Resolve(src)}

	img, err := p.images.Load(src)
	if err != nil {
		return preview, fmt.Errorf("loading %s: %w", src, err)
	}
	defer img.Close()

	mask, err := img.CreateMask(maskOpts)
	if err != nil {
		return preview, fmt.Errorf("masking %s: %w", src, err)
	}
	defer mask.Close()
	regions, err := mask.Regions(opts.Regions)
	if err != nil {
		return preview, fmt.Errorf("finding regions of %s: %w", src, err)
	}

	painted, err := img.PaintMask(mask)
	if err != nil {
		return preview, err
	}
	path := filepath.Join(dir, "paintedMask.png")
	err = painted.Save(path)
	painted.Close()
	if err != nil {
		return preview, err
	}
	preview.PaintedMask = refs.Resolve(path)

	painted, err = img.PaintRegions(regions)
	if err != nil {
		return preview, err
	}
	path = filepath.Join(dir, "paintedRois.png")
	err = painted.Save(path)
	painted.Close()
	if err != nil {
		return preview, err
	}
	preview.PaintedRois = refs.Resolve(path)

	split, err := img.Split(regions)
	if err != nil {
		return preview, err
	}
	defer closeAll(split)
	masks, err := mask.Split(regions)
	if err != nil {
		return preview, err
	}
	defer closeAll(masks)

	preview.Images = make([]LabeledImage, 0, len(split))
	for k, s := range split {
		path := filepath.Join(dir, "split", strconv.Itoa(k)+".png")
		if opts.Transparent {
			err = s.SaveTransparentPNG(path, masks[k])
		} else {
			err = s.Save(path)
		}
		if err != nil {
			return preview, err
		}
		preview.Images = append(preview.Images, LabeledImage{
			Label: "Split #" + strconv.Itoa(k),
			Value: refs.Resolve(path),
		})
	}
	return preview, nil
}

func closeAll(images []imaging.Image) {
	for _, img := range images {
		img.Close()
	}
}
