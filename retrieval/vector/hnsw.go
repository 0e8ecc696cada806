// Package vector implements the HNSW approximate nearest-neighbor index of
// spec §4.I: insert/search/get over fixed-dimension float32 vectors, with a
// vectors-only persistence format that rebuilds the graph on load.
package vector

import (
	"container/heap"
	"math"
	"math/rand"
	"sync"

	"github.com/agentmesh/substrate/errs"
)

// Config parameterizes an Index: embedding width, distance metric, and the
// two HNSW construction knobs.
type Config struct {
	Dim            int
	Metric         Metric
	M              int // bi-directional links per node per layer (default 16)
	EfConstruction int // dynamic candidate list size at insert time (default 200)
}

type node struct {
	id        string
	vector    []float32
	level     int
	neighbors [][]string // neighbors[layer] = neighbor ids at that layer
}

// Index is a thread-safe multi-layer HNSW graph over fixed-dimension
// vectors.
type Index struct {
	cfg Config
	mL  float64

	mu       sync.RWMutex
	nodes    map[string]*node
	entry    string
	topLevel int
	rng      *rand.Rand
}

// Match is one search result: an id paired with its distance to the query,
// ascending (closer first) across every metric.
type Match struct {
	ID       string
	Distance float32
}

// New constructs an empty Index. M and EfConstruction default to 16/200 when
// left at zero, matching the teacher's documented defaults.
func New(cfg Config) (*Index, error) {
	if !ValidDimension(cfg.Dim) {
		return nil, errs.New(errs.Validation, "retrieval.vector", "dimension must be one of 384/768/1536/3072")
	}
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = 200
	}
	return &Index{
		cfg:      cfg,
		mL:       1 / math.Log(float64(cfg.M)),
		nodes:    make(map[string]*node),
		topLevel: -1,
		rng:      rand.New(rand.NewSource(1)),
	}, nil
}

func (idx *Index) randomLevel() int {
	level := int(math.Floor(-math.Log(idx.rng.Float64()) * idx.mL))
	if level > 32 {
		level = 32
	}
	return level
}

// Insert adds id -> vector to the index, erroring if vector's length does
// not match the configured dimension. Re-inserting an existing id replaces
// its vector and relinks it from scratch.
func (idx *Index) Insert(id string, v []float32) error {
	if len(v) != idx.cfg.Dim {
		return errs.New(errs.Validation, "retrieval.vector", "vector dimension mismatch")
	}
	vec := make([]float32, len(v))
	copy(vec, v)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	level := idx.randomLevel()
	n := &node{id: id, vector: vec, level: level, neighbors: make([][]string, level+1)}
	for l := range n.neighbors {
		n.neighbors[l] = nil
	}
	idx.nodes[id] = n

	if idx.entry == "" {
		idx.entry = id
		idx.topLevel = level
		return nil
	}

	entry := idx.entry
	for l := idx.topLevel; l > level; l-- {
		entry = idx.greedyClosest(entry, vec, l)
	}

	maxLevel := level
	if idx.topLevel < maxLevel {
		maxLevel = idx.topLevel
	}
	for l := maxLevel; l >= 0; l-- {
		candidates := idx.searchLayer(vec, entry, idx.cfg.EfConstruction, l)
		m := idx.cfg.M
		if l == 0 {
			m *= 2
		}
		selected := closestN(candidates, m)
		for _, c := range selected {
			idx.link(n.id, c.ID, l)
			idx.link(c.ID, n.id, l)
			idx.pruneNeighbors(c.ID, l, m)
		}
		if len(selected) > 0 {
			entry = selected[0].ID
		}
	}

	if level > idx.topLevel {
		idx.topLevel = level
		idx.entry = id
	}
	return nil
}

func (idx *Index) link(from, to string, layer int) {
	n := idx.nodes[from]
	if layer >= len(n.neighbors) {
		return
	}
	for _, existing := range n.neighbors[layer] {
		if existing == to {
			return
		}
	}
	n.neighbors[layer] = append(n.neighbors[layer], to)
}

func (idx *Index) pruneNeighbors(id string, layer, maxM int) {
	n := idx.nodes[id]
	if layer >= len(n.neighbors) || len(n.neighbors[layer]) <= maxM {
		return
	}
	scored := make([]Match, 0, len(n.neighbors[layer]))
	for _, nb := range n.neighbors[layer] {
		scored = append(scored, Match{ID: nb, Distance: idx.cfg.Metric.distance(n.vector, idx.nodes[nb].vector)})
	}
	kept := closestN(scored, maxM)
	ids := make([]string, len(kept))
	for i, k := range kept {
		ids[i] = k.ID
	}
	n.neighbors[layer] = ids
}

// greedyClosest walks from entry toward the single closest neighbor at
// layer, repeating until no neighbor improves on the current best.
func (idx *Index) greedyClosest(entry string, query []float32, layer int) string {
	best := entry
	bestDist := idx.cfg.Metric.distance(query, idx.nodes[entry].vector)
	for {
		improved := false
		n := idx.nodes[best]
		if layer < len(n.neighbors) {
			for _, nb := range n.neighbors[layer] {
				d := idx.cfg.Metric.distance(query, idx.nodes[nb].vector)
				if d < bestDist {
					bestDist = d
					best = nb
					improved = true
				}
			}
		}
		if !improved {
			return best
		}
	}
}

// searchLayer runs a bounded beam search from entry at layer, returning up
// to ef candidates sorted by ascending distance.
func (idx *Index) searchLayer(query []float32, entry string, ef int, layer int) []Match {
	visited := map[string]bool{entry: true}
	entryDist := idx.cfg.Metric.distance(query, idx.nodes[entry].vector)

	candidates := &minHeap{{entry, entryDist}}
	heap.Init(candidates)
	results := &maxHeap{{entry, entryDist}}
	heap.Init(results)

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(Match)
		worst := (*results)[0]
		if c.Distance > worst.Distance && results.Len() >= ef {
			break
		}
		n := idx.nodes[c.ID]
		if layer >= len(n.neighbors) {
			continue
		}
		for _, nb := range n.neighbors[layer] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			d := idx.cfg.Metric.distance(query, idx.nodes[nb].vector)
			if results.Len() < ef || d < (*results)[0].Distance {
				heap.Push(candidates, Match{nb, d})
				heap.Push(results, Match{nb, d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]Match, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(Match)
	}
	return out
}

func closestN(matches []Match, n int) []Match {
	sorted := make([]Match, len(matches))
	copy(sorted, matches)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Distance < sorted[j-1].Distance; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// Search returns the k nearest ids to query, ascending by distance. efSearch
// bounds the layer-0 beam width; efSearch < k is widened to k.
func (idx *Index) Search(query []float32, k, efSearch int) ([]Match, error) {
	if len(query) != idx.cfg.Dim {
		return nil, errs.New(errs.Validation, "retrieval.vector", "query dimension mismatch")
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.entry == "" {
		return nil, nil
	}
	if efSearch < k {
		efSearch = k
	}

	entry := idx.entry
	for l := idx.topLevel; l > 0; l-- {
		entry = idx.greedyClosest(entry, query, l)
	}
	candidates := idx.searchLayer(query, entry, efSearch, 0)
	return closestN(candidates, k), nil
}

// Get returns the stored vector for id.
func (idx *Index) Get(id string) ([]float32, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n, ok := idx.nodes[id]
	if !ok {
		return nil, false
	}
	out := make([]float32, len(n.vector))
	copy(out, n.vector)
	return out, true
}

// minHeap orders Matches ascending by distance (closest first).
type minHeap []Match

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].Distance < h[j].Distance }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)         { *h = append(*h, x.(Match)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// maxHeap orders Matches descending by distance (worst/farthest at the
// root), so popping the root evicts the least useful candidate.
type maxHeap []Match

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].Distance > h[j].Distance }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x any)         { *h = append(*h, x.(Match)) }
func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
