package cluster

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Linkage decides the distance between two merged clusters.
type Linkage string

const (
	Single   Linkage = "single"
	Complete Linkage = "complete"
	Average  Linkage = "average"
)

// ParseLinkage accepts an empty string as Average.
func ParseLinkage(s string) (Linkage, error) {
	switch l := Linkage(s); l {
	case "":
		return Average, nil
	case Single, Complete, Average:
		return l, nil
	}
	return "", fmt.Errorf("unknown linkage %q", s)
}

// Node is a dendrogram node. Leaves carry Data; inner nodes carry the
// distance at which their children merged.
type Node struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Height   float64 `json:"height"`
	Size     int     `json:"size"`
	Data     *Label  `json:"data,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

// Agglomerate builds the dendrogram of dist, read as a distance matrix, with
// one leaf per label. At each step the two closest clusters merge; ties go to
// the lowest indices.
func Agglomerate(dist mat.Symmetric, labels []*Label, linkage Linkage) (*Node, error) {
	n := dist.SymmetricDim()
	if n != len(labels) {
		return nil, fmt.Errorf("%d labels for a %dx%d matrix", len(labels), n, n)
	}
	if n == 0 {
		return nil, fmt.Errorf("cannot cluster an empty matrix")
	}

	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			d.Set(i, j, dist.At(i, j))
		}
	}

	clusters := make([]*Node, n)
	for i, l := range labels {
		clusters[i] = &Node{ID: fmt.Sprintf("leaf-%d", i), Name: l.Label, Size: 1, Data: l}
	}
	active := make([]bool, n)
	for i := range active {
		active[i] = true
	}

	for step := 0; step < n-1; step++ {
		a, b := -1, -1
		best := math.Inf(1)
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if active[j] && d.At(i, j) < best {
					a, b, best = i, j, d.At(i, j)
				}
			}
		}
		if a < 0 {
			return nil, fmt.Errorf("matrix contains no finite distance to merge")
		}

		na, nb := float64(clusters[a].Size), float64(clusters[b].Size)
		for k := 0; k < n; k++ {
			if !active[k] || k == a || k == b {
				continue
			}
			da, db := d.At(a, k), d.At(b, k)
			var v float64
			switch linkage {
			case Single:
				v = math.Min(da, db)
			case Complete:
				v = math.Max(da, db)
			default:
				v = (na*da + nb*db) / (na + nb)
			}
			d.Set(a, k, v)
			d.Set(k, a, v)
		}

		clusters[a] = &Node{
			ID:       fmt.Sprintf("node-%d", step),
			Height:   best,
			Size:     clusters[a].Size + clusters[b].Size,
			Children: []*Node{clusters[a], clusters[b]},
		}
		active[b] = false
		clusters[b] = nil
	}

	for i, ok := range active {
		if ok {
			return clusters[i], nil
		}
	}
	return nil, fmt.Errorf("no cluster left")
}

// Leaves returns the labels of the tree, left to right.
func (n *Node) Leaves() []*Label {
	if n == nil {
		return nil
	}
	if len(n.Children) == 0 {
		return []*Label{n.Data}
	}
	var out []*Label
	for _, c := range n.Children {
		out = append(out, c.Leaves()...)
	}
	return out
}
