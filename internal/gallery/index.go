package gallery

import (
	"math/rand"
	"sort"

	"github.com/coder/hnsw"
)

const (
	// shortlistCutoff is the gallery size above which the matcher stops
	// scanning exhaustively and asks the index for candidates first.
	shortlistCutoff = 256
	// shortlistK is how many nearest samples the index returns; their
	// identities are then rescored exactly by the matcher.
	shortlistK = 64

	indexMaxNeighbors = 16

	// indexSeed fixes the graph's level generator so the same gallery
	// always yields the same layer structure and shortlist.
	indexSeed = 1
)

// Index is an in-memory HNSW graph over all gallery samples, rebuilt on
// every load and write. It only ever narrows the candidate set; final
// scoring and tie-breaking stay exact in the matcher.
type Index struct {
	graph      *hnsw.Graph[int64]
	idIdentity map[int64]string
}

// buildIndex constructs the graph from the identity map. Returns nil for
// an empty gallery.
func buildIndex(identities map[string][]FaceSample) *Index {
	total := 0
	for _, samples := range identities {
		total += len(samples)
	}
	if total == 0 {
		return nil
	}

	g := hnsw.NewGraph[int64]()
	g.M = indexMaxNeighbors
	g.Ml = 1.0 / float64(indexMaxNeighbors)
	g.Distance = hnsw.CosineDistance
	g.Rng = rand.New(rand.NewSource(indexSeed))

	ix := &Index{
		graph:      g,
		idIdentity: make(map[int64]string, total),
	}

	// Deterministic insertion order keeps graph construction stable
	// across rebuilds.
	keys := make([]string, 0, len(identities))
	for k := range identities {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var id int64
	for _, identity := range keys {
		for _, sample := range identities[identity] {
			if len(sample.Vector) == 0 {
				continue
			}
			g.Add(hnsw.MakeNode(id, sample.Vector))
			ix.idIdentity[id] = identity
			id++
		}
	}
	return ix
}

// Candidates returns the distinct identities of the k nearest samples,
// sorted for deterministic downstream iteration.
func (ix *Index) Candidates(probe []float32, k int) []string {
	if ix == nil || ix.graph == nil {
		return nil
	}

	neighbors := ix.graph.Search(probe, k)
	seen := make(map[string]bool, len(neighbors))
	for _, n := range neighbors {
		seen[ix.idIdentity[n.Key]] = true
	}

	out := make([]string, 0, len(seen))
	for identity := range seen {
		out = append(out, identity)
	}
	sort.Strings(out)
	return out
}
