// Package cluster runs hierarchical clustering over a collection and wraps
// the dendrogram for the viewer.
package cluster

import (
	"gonum.org/v1/gonum/mat"

	"labset/internal/dataset"
	"labset/internal/similarity"
	"labset/pkg/typedref"
)

// Label is the leaf payload: the element plus sizing hints for the viewer.
type Label struct {
	Element   int              `json:"element"`
	Label     string           `json:"label"`
	Data      *dataset.Element `json:"data"`
	Image     *typedref.Ref    `json:"image"`
	Height    int              `json:"$height"`
	Width     int              `json:"$width"`
	Dim       int              `json:"$dim"`
	Color     string           `json:"$color"`
	LabelSize string           `json:"$label-size"`
}

// Tree is the exported clustering result.
type Tree struct {
	Type  string `json:"type"`
	Value *Node  `json:"value"`
}

// Options configures Run.
type Options struct {
	// SimilarityMatrix is used verbatim when set; the comparator is then
	// ignored.
	SimilarityMatrix mat.Symmetric
	// Image names a version whose view file is attached to each leaf.
	Image      string
	Linkage    Linkage
	Similarity similarity.Options
}

// Labels builds one label per element.
func Labels(c *dataset.Collection, image string) []*Label {
	labels := make([]*Label, c.Len())
	for i, e := range c.Data {
		l := &Label{
			Element:   i,
			Label:     e.ID,
			Data:      e,
			Height:    10,
			Width:     10,
			Dim:       20,
			Color:     e.Color,
			LabelSize: "20px",
		}
		if a := e.Artifact(image); image != "" && a != nil {
			ref := a.ViewFile
			l.Image = &ref
		}
		labels[i] = l
	}
	return labels
}

// Run clusters the elements of version, comparing them with cmp unless a
// precomputed matrix is given.
func Run(c *dataset.Collection, version string, cmp similarity.Comparator, opts Options) (*Tree, error) {
	log := c.Log()
	log.Info("starting clustering", "version", version)

	linkage, err := ParseLinkage(string(opts.Linkage))
	if err != nil {
		return nil, dataset.Validationf("%v", err)
	}
	if opts.Image != "" && !c.HasVersion(opts.Image) {
		return nil, dataset.Validationf("the image version %q is not loaded or does not exist", opts.Image)
	}

	sim := opts.SimilarityMatrix
	if sim == nil {
		if r, ok := cmp.(similarity.Registered); ok && similarity.IsSimilarity(r.Name) {
			return nil, dataset.Validationf("comparator %q measures similarity, clustering needs a distance", r.Name)
		}
		log.Info("creating similarity matrix")
		m, err := similarity.Matrix(c, version, cmp, opts.Similarity)
		if err != nil {
			return nil, err
		}
		sim = m
	}
	if sim.SymmetricDim() != c.Len() {
		return nil, dataset.Validationf("similarity matrix has %d rows for %d elements", sim.SymmetricDim(), c.Len())
	}

	log.Info("creating labels for dendrogram")
	labels := Labels(c, opts.Image)

	log.Info("creating dendrogram", "linkage", linkage)
	root, err := Agglomerate(sim, labels, linkage)
	if err != nil {
		return nil, dataset.Validationf("%v", err)
	}
	log.Info("end of clustering")
	return &Tree{Type: "tree", Value: root}, nil
}
