package pca

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"labset/internal/dataset"
	"labset/pkg/colorutil"
	"labset/pkg/geometry"
	"labset/pkg/typedref"
)

// scoreScale stretches scores onto the viewer's 0..100 canvas and
// ellipseOffset moves batch centres onto it.
const (
	scoreScale    = 10
	ellipseOffset = 50
)

// Point is one element in the scatter plot.
type Point struct {
	X          float64       `json:"x"`
	Y          float64       `json:"y"`
	Color      string        `json:"c"`
	Opacity    float64       `json:"o"`
	Highlight  []string      `json:"_highlight"`
	Width      float64       `json:"w"`
	Height     float64       `json:"h"`
	Angle      float64       `json:"a"`
	Label      string        `json:"l"`
	LabelColor string        `json:"lc"`
	Shape      string        `json:"n"`
	JCAMP      *typedref.Ref `json:"jcamp,omitempty"`
}

// BatchEllipse summarises the spread of one batch.
type BatchEllipse struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Color      string  `json:"c"`
	Opacity    float64 `json:"o"`
	Highlight  string  `json:"_highlight"`
	Width      float64 `json:"w"`
	Height     float64 `json:"h"`
	Angle      float64 `json:"a"`
	Label      string  `json:"l"`
	LabelColor string  `json:"lc"`
	Shape      string  `json:"n"`
}

// Series is one layer of the scatter plot.
type Series struct {
	Label    string `json:"label"`
	Category string `json:"category"`
	Data     any    `json:"data"`
}

// Axis describes a scatter axis.
type Axis struct {
	Label    string   `json:"label"`
	MinValue *float64 `json:"minValue,omitempty"`
	MaxValue *float64 `json:"maxValue,omitempty"`
}

// Scatter is the loading-plot payload.
type Scatter struct {
	Series []Series `json:"series"`
	XAxis  Axis     `json:"xAxis"`
	YAxis  Axis     `json:"yAxis"`
	Title  string   `json:"title"`
	MinX   float64  `json:"minX"`
	MaxX   float64  `json:"maxX"`
	MinY   float64  `json:"minY"`
	MaxY   float64  `json:"maxY"`
}

// Typed wraps a payload with its viewer type.
type Typed struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// Plot is everything Export publishes.
type Plot struct {
	Points   []Point
	Ellipses []BatchEllipse
	Scatter  Scatter
}

// Export names of the published artifacts.
const (
	SpectraName    = "spectra"
	ComponentsName = "components"
	ScatterName    = "scatter"
)

// BuildPlot runs a two-component PCA of version and lays out one point per
// element and one ellipse per batch. An unbatched collection gets points only.
func BuildPlot(c *dataset.Collection, version string, opts Options) (*Plot, error) {
	if opts.NPC == 0 {
		opts.NPC = 2
	}
	if opts.NPC < 2 {
		return nil, dataset.Validationf("the PCA plot needs at least 2 components, got %d", opts.NPC)
	}
	res, err := Run(c, version, opts)
	if err != nil {
		return nil, err
	}

	index := make(map[*dataset.Element]int, c.Len())
	points := make([]Point, c.Len())
	for i, e := range c.Data {
		index[e] = i
		p := Point{
			X:          res.Scores[i][0] * scoreScale,
			Y:          res.Scores[i][1] * scoreScale,
			Color:      e.Color,
			Opacity:    1,
			Highlight:  []string{e.BatchID},
			Width:      0.2,
			Height:     0.2,
			Label:      e.ID,
			LabelColor: e.Color,
			Shape:      "none",
		}
		if a := e.Artifact(version); a != nil {
			ref := a.ViewFile
			p.JCAMP = &ref
		}
		points[i] = p
	}

	ellipses := make([]BatchEllipse, 0, len(c.Batches))
	for _, b := range c.Batches {
		xy := make([]geometry.Point2D, len(b.Elements))
		for k, e := range b.Elements {
			xy[k] = geometry.Point2D{X: points[index[e]].X, Y: points[index[e]].Y}
		}
		el, err := Spread(xy)
		if err != nil {
			return nil, fmt.Errorf("batch %q: %w", b.ID, err)
		}
		color := colorutil.HashColor(b.ID)
		ellipses = append(ellipses, BatchEllipse{
			X:          el.Center.X + ellipseOffset,
			Y:          el.Center.Y + ellipseOffset,
			Color:      color,
			Opacity:    0.2,
			Highlight:  b.ID,
			Width:      el.Width,
			Height:     el.Height,
			Angle:      el.Angle,
			Label:      b.ID,
			LabelColor: color,
			Shape:      "none",
		})
	}

	zero, one := 0.0, 1.0
	return &Plot{
		Points:   points,
		Ellipses: ellipses,
		Scatter: Scatter{
			Series: []Series{
				{Label: "PCA of " + version, Category: "Spectra", Data: points},
				{Label: "Batches", Category: "Components", Data: ellipses},
			},
			XAxis: Axis{Label: "PC1", MinValue: &zero, MaxValue: &one},
			YAxis: Axis{Label: "PC2"},
			Title: "PCA of " + version,
			MinX:  0,
			MaxX:  100,
			MinY:  0,
			MaxY:  100,
		},
	}, nil
}

// Export builds the plot of version and publishes the points, the batch
// ellipses and the scatter payload to sink.
func Export(c *dataset.Collection, version string, opts Options, sink dataset.Exporter) (*Plot, error) {
	plot, err := BuildPlot(c, version, opts)
	if err != nil {
		return nil, err
	}
	if err := sink.Export(SpectraName, plot.Points); err != nil {
		return nil, err
	}
	if err := sink.Export(ComponentsName, plot.Ellipses); err != nil {
		return nil, err
	}
	if err := sink.Export(ScatterName, Typed{Type: "loading", Value: plot.Scatter}); err != nil {
		return nil, err
	}
	c.Log().Info("pca plot exported", "version", version, "points", len(plot.Points), "batches", len(plot.Ellipses))
	return plot, nil
}

// Spread fits an ellipse to a cloud of points from the eigen-decomposition
// of its covariance: axes are twice the square roots of the eigenvalues,
// largest first, and the angle (degrees) follows the first eigenvector. A
// single point gives a zero-size ellipse.
func Spread(xy []geometry.Point2D) (geometry.Ellipse, error) {
	if len(xy) == 0 {
		return geometry.Ellipse{}, fmt.Errorf("no points")
	}
	el := geometry.Ellipse{Center: geometry.Centroid(xy)}
	if len(xy) < 2 {
		return el, nil
	}

	data := mat.NewDense(len(xy), 2, nil)
	for i, p := range xy {
		data.Set(i, 0, p.X)
		data.Set(i, 1, p.Y)
	}
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, data, nil)

	var es mat.EigenSym
	if ok := es.Factorize(&cov, true); !ok {
		return el, fmt.Errorf("eigen decomposition failed")
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	order := []int{0, 1}
	sort.Slice(order, func(a, b int) bool { return vals[order[a]] > vals[order[b]] })
	v := mat.NewDense(2, 2, nil)
	for k, col := range order {
		v.Set(0, k, vecs.At(0, col))
		v.Set(1, k, vecs.At(1, col))
	}

	el.Width = 2 * math.Sqrt(math.Max(vals[order[0]], 0))
	el.Height = 2 * math.Sqrt(math.Max(vals[order[1]], 0))
	if v.At(0, 0) != 0 {
		el.Angle = math.Atan(v.At(0, 1)/v.At(0, 0)) * 180 / math.Pi
	} else {
		el.Angle = 90
	}
	el.Angle *= -mat.Det(v)
	return el, nil
}
