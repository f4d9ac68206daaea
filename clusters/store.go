package clusters

// Store is the storage backend of a ClusterMap. It provides the primitive
// record operations, the chain algorithms live in ClusterMap.
//
// Implementations may assume that indices have been range checked by the
// ClusterMap, but must still fail with ErrIndexOutOfRange rather than corrupt
// storage if they are not.
type Store interface {
	ClusterSize() int
	Count() int64

	ReadCluster(i int64) (Cluster, error)
	ReadHeader(i int64) (Header, error)
	// ReadData reads len(p) bytes of the payload of cluster i starting at offset
	ReadData(i int64, offset int, p []byte) error

	WriteCluster(i int64, c Cluster) error
	WriteTraits(i int64, traits Traits) error
	WritePrev(i int64, prev int64) error
	WriteNext(i int64, next int64) error
	// WriteData writes p into the payload of cluster i starting at offset
	WriteData(i int64, offset int, p []byte) error

	// AppendClusters adds clusters at the tip, the first is given index Count()
	AppendClusters(clusters ...Cluster) error
	// RemoveEndClusters truncates the quantity highest indexed clusters
	RemoveEndClusters(quantity int64) error
	Clear() error
}

func checkIndex(i, count int64) error {
	if i < 0 || i >= count {
		return ErrIndexOutOfRange
	}
	return nil
}

func checkDataRange(clusterSize int, offset int, n int) error {
	if offset < 0 || offset+n > clusterSize {
		return ErrDataRange
	}
	return nil
}
