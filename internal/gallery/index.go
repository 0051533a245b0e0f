package gallery

import (
	"errors"
	"fmt"
	"math"

	"github.com/coder/hnsw"
)

// HNSW parameters for the per-snapshot index.
const (
	hnswMaxNeighbors = 16
	hnswEfSearch     = 64
)

// ErrEmptyGallery is returned by Nearest when there is nothing to search.
var ErrEmptyGallery = errors.New("gallery is empty")

// Neighbor is one approximate nearest identity.
type Neighbor struct {
	Name       string  `json:"name"`
	RollNo     string  `json:"roll_no,omitempty"`
	Similarity float64 `json:"similarity"`
}

// Index is an HNSW graph over the baselines of one gallery snapshot, keyed by
// identity name. It is used for diagnostics; attendance decisions use exact matching.
type Index struct {
	graph *hnsw.Graph[string]
}

// NewIndex builds an index over the gallery baselines.
func NewIndex(g *Gallery) (*Index, error) {
	if g.Len() == 0 {
		return nil, ErrEmptyGallery
	}

	graph := hnsw.NewGraph[string]()
	graph.M = hnswMaxNeighbors
	graph.Ml = 1.0 / float64(hnswMaxNeighbors)
	graph.EfSearch = hnswEfSearch
	graph.Distance = hnsw.CosineDistance

	for _, name := range g.Names() {
		graph.Add(hnsw.MakeNode(name, g.baselines[name]))
	}

	return &Index{graph: graph}, nil
}

// Search returns up to k identities nearest to the query, most similar first.
func (idx *Index) Search(query []float32, k int) []Neighbor {
	nodes := idx.graph.Search(query, k)
	out := make([]Neighbor, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, Neighbor{
			Name:       n.Key,
			Similarity: 1 - float64(hnsw.CosineDistance(query, n.Value)),
		})
	}
	return out
}

// Nearest returns up to k identities nearest to the probe using the snapshot's
// HNSW index, which is built on first use.
func (g *Gallery) Nearest(probe []float32, k int) ([]Neighbor, error) {
	if g.Len() == 0 {
		return nil, ErrEmptyGallery
	}
	if len(probe) != g.dim {
		return nil, fmt.Errorf("probe has %d dimensions, gallery has %d", len(probe), g.dim)
	}
	if k <= 0 {
		k = 1
	}

	g.indexOnce.Do(func() {
		g.index, g.indexErr = NewIndex(g)
	})
	if g.indexErr != nil {
		return nil, g.indexErr
	}

	neighbors := g.index.Search(probe, k)
	for i := range neighbors {
		if id, ok := g.identities[neighbors[i].Name]; ok {
			neighbors[i].RollNo = id.RollNo
		}
		if math.IsNaN(neighbors[i].Similarity) {
			neighbors[i].Similarity = 0
		}
	}
	return neighbors, nil
}
