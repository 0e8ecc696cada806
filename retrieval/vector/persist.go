package vector

// Snapshot is the persisted form of an Index per spec §4.I: the HNSW graph
// itself is never serialized, only the raw vectors and the parameters
// needed to rebuild it.
type Snapshot struct {
	Dim            int
	Metric         Metric
	M              int
	EfConstruction int
	Vectors        map[string][]float32
}

// ToSnapshot captures the index's vectors and construction parameters.
func (idx *Index) ToSnapshot() Snapshot {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	vectors := make(map[string][]float32, len(idx.nodes))
	for id, n := range idx.nodes {
		v := make([]float32, len(n.vector))
		copy(v, n.vector)
		vectors[id] = v
	}
	return Snapshot{Dim: idx.cfg.Dim, Metric: idx.cfg.Metric, M: idx.cfg.M, EfConstruction: idx.cfg.EfConstruction, Vectors: vectors}
}

// FromSnapshot rebuilds a fresh Index by reinserting every vector in
// deterministic id order, since hnsw_rs-style libraries (and this one) do
// not serialize the graph itself.
func FromSnapshot(snap Snapshot) (*Index, error) {
	idx, err := New(Config{Dim: snap.Dim, Metric: snap.Metric, M: snap.M, EfConstruction: snap.EfConstruction})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(snap.Vectors))
	for id := range snap.Vectors {
		ids = append(ids, id)
	}
	sortStrings(ids)
	for _, id := range ids {
		if err := idx.Insert(id, snap.Vectors[id]); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
