package clusters

// NoCluster is used wherever a cluster index is absent. For example, the new
// start of a chain that was removed entirely.
const NoCluster int64 = -1

// Header is the link metadata of a cluster. It is the part of a cluster that
// chain traversal needs, and the only part a StreamStore caches.
type Header struct {
	Traits Traits
	// Prev is the index of the previous cluster in the chain, or the chain's
	// terminal value if Traits has TraitStart
	Prev int64
	// Next is the index of the next cluster in the chain, or the chain's
	// terminal value if Traits has TraitEnd
	Next int64
}

// Cluster is a single fixed size storage unit. len(Data) is always the
// ClusterSize of the map it was read from.
type Cluster struct {
	Header
	Data []byte
}

// IsStart returns true if the cluster is the first cluster in its chain
func (h Header) IsStart() bool { return h.Traits.Has(TraitStart) }

// IsEnd returns true if the cluster is the last cluster in its chain
func (h Header) IsEnd() bool { return h.Traits.Has(TraitEnd) }

// Clone returns a copy of the cluster which does not share its payload
func (c Cluster) Clone() Cluster {
	data := make([]byte, len(c.Data))
	copy(data, c.Data)
	return Cluster{Header: c.Header, Data: data}
}
