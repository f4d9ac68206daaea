package clusters

// MemoryStore keeps clusters in a plain slice
type MemoryStore struct {
	clusterSize int
	clusters    []Cluster
}

func NewMemoryStore(clusterSize int) (*MemoryStore, error) {
	if clusterSize <= 0 {
		return nil, ErrBadClusterSize
	}
	return &MemoryStore{clusterSize: clusterSize}, nil
}

func (s *MemoryStore) ClusterSize() int { return s.clusterSize }
func (s *MemoryStore) Count() int64     { return int64(len(s.clusters)) }

func (s *MemoryStore) ReadCluster(i int64) (Cluster, error) {
	if err := checkIndex(i, s.Count()); err != nil {
		return Cluster{}, err
	}
	return s.clusters[i].Clone(), nil
}

func (s *MemoryStore) ReadHeader(i int64) (Header, error) {
	if err := checkIndex(i, s.Count()); err != nil {
		return Header{}, err
	}
	return s.clusters[i].Header, nil
}

func (s *MemoryStore) ReadData(i int64, offset int, p []byte) error {
	if err := checkIndex(i, s.Count()); err != nil {
		return err
	}
	if err := checkDataRange(s.clusterSize, offset, len(p)); err != nil {
		return err
	}
	copy(p, s.clusters[i].Data[offset:])
	return nil
}

func (s *MemoryStore) WriteCluster(i int64, c Cluster) error {
	if err := checkIndex(i, s.Count()); err != nil {
		return err
	}
	if len(c.Data) != s.clusterSize {
		return ErrDataLengthInvalid
	}
	s.clusters[i].Header = c.Header
	copy(s.clusters[i].Data, c.Data)
	return nil
}

func (s *MemoryStore) WriteTraits(i int64, traits Traits) error {
	if err := checkIndex(i, s.Count()); err != nil {
		return err
	}
	if !traits.Valid() {
		return ErrInvalidTraits
	}
	s.clusters[i].Traits = traits
	return nil
}

func (s *MemoryStore) WritePrev(i int64, prev int64) error {
	if err := checkIndex(i, s.Count()); err != nil {
		return err
	}
	s.clusters[i].Prev = prev
	return nil
}

func (s *MemoryStore) WriteNext(i int64, next int64) error {
	if err := checkIndex(i, s.Count()); err != nil {
		return err
	}
	s.clusters[i].Next = next
	return nil
}

func (s *MemoryStore) WriteData(i int64, offset int, p []byte) error {
	if err := checkIndex(i, s.Count()); err != nil {
		return err
	}
	if err := checkDataRange(s.clusterSize, offset, len(p)); err != nil {
		return err
	}
	copy(s.clusters[i].Data[offset:], p)
	return nil
}

func (s *MemoryStore) AppendClusters(clusters ...Cluster) error {
	for _, c := range clusters {
		if len(c.Data) != s.clusterSize {
			return ErrDataLengthInvalid
		}
	}
	for _, c := range clusters {
		s.clusters = append(s.clusters, c.Clone())
	}
	return nil
}

func (s *MemoryStore) RemoveEndClusters(quantity int64) error {
	if quantity < 0 || quantity > s.Count() {
		return ErrIndexOutOfRange
	}
	n := s.Count() - quantity
	// release the payloads of the truncated clusters
	clear(s.clusters[n:])
	s.clusters = s.clusters[:n]
	return nil
}

func (s *MemoryStore) Clear() error {
	s.clusters = nil
	return nil
}
