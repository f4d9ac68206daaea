// Package leafindex keeps a Merkle leaf hash for every cluster record of a
// clusters.ClusterMap. The leaves follow the map's change sets, so after any
// mutation only the added, modified and moved clusters are touched.
//
// The leaves, in cluster index order, are accumulated into a Merkle Mountain
// Range on demand to produce a single root committing to the whole map.
package leafindex

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/datatrails/go-datatrails-merklelog/mmr"
	"github.com/forestrie/go-clustermap/clusters"
)

var (
	// ErrRebuildRequired is returned once the index has missed a change it can
	// not recover from incrementally. Only Rebuild clears it.
	ErrRebuildRequired   = errors.New("leaf index is stale and must be rebuilt")
	ErrLeafCountMismatch = errors.New("leaf count does not match the cluster count")
)

type Options struct {
	Log logger.Logger
}

type Option func(*Options)

func WithLogger(log logger.Logger) Option {
	return func(o *Options) {
		o.Log = log
	}
}

// Index holds sha256(record) for every cluster of m, in index order
type Index struct {
	m      *clusters.ClusterMap
	log    logger.Logger
	leaves [][]byte
	stale  bool
}

func New(m *clusters.ClusterMap, opts ...Option) *Index {
	options := Options{}
	for _, o := range opts {
		o(&options)
	}
	return &Index{m: m, log: options.Log}
}

// Attach subscribes the index to its map. A change set which can not be
// applied leaves the index stale, see Stale.
func (x *Index) Attach() {
	x.m.Subscribe(func(cs *clusters.ChangeSet) {
		if err := x.Apply(cs); err != nil && x.log != nil {
			x.log.Infof("leaf index: %v", err)
		}
	})
}

// Stale is true if the index missed a change and needs a Rebuild
func (x *Index) Stale() bool { return x.stale }

func (x *Index) Len() int { return len(x.leaves) }

// Leaf returns the leaf hash of cluster i
func (x *Index) Leaf(i int64) ([]byte, error) {
	if x.stale {
		return nil, ErrRebuildRequired
	}
	if i < 0 || i >= int64(len(x.leaves)) {
		return nil, fmt.Errorf("%w: leaf %d", clusters.ErrIndexOutOfRange, i)
	}
	return x.leaves[i], nil
}

// LeafHash returns the leaf hash for a cluster
func LeafHash(c clusters.Cluster, clusterSize int) ([]byte, error) {
	b, err := clusters.EncodeRecord(c, clusterSize)
	if err != nil {
		return nil, err
	}
	h := sha256.Sum256(b)
	return h[:], nil
}

func (x *Index) hashCluster(i int64) ([]byte, error) {
	c, err := x.m.Cluster(i)
	if err != nil {
		return nil, err
	}
	return LeafHash(c, x.m.ClusterSize())
}

// Apply updates the leaves for a single change set. The map must be in the
// state immediately following the change.
func (x *Index) Apply(cs *clusters.ChangeSet) error {
	if x.stale {
		return ErrRebuildRequired
	}
	if cs.Cleared {
		x.leaves = x.leaves[:0]
		return nil
	}
	if !cs.TracksClusters() {
		x.stale = true
		return ErrRebuildRequired
	}

	moves := cs.MovedClusters()
	moving := make([][]byte, len(moves))
	for j, mv := range moves {
		if mv.From >= int64(len(x.leaves)) {
			x.stale = true
			return fmt.Errorf("%w: move from %d", ErrRebuildRequired, mv.From)
		}
		moving[j] = x.leaves[mv.From]
	}

	n := int64(len(x.leaves)) + cs.ClusterCountDelta
	if n != x.m.ClusterCount() {
		x.stale = true
		return fmt.Errorf("%w: %d leaves, %d clusters", ErrLeafCountMismatch, n, x.m.ClusterCount())
	}
	if n <= int64(len(x.leaves)) {
		x.leaves = x.leaves[:n]
	} else {
		x.leaves = append(x.leaves, make([][]byte, n-int64(len(x.leaves)))...)
	}
	for j, mv := range moves {
		x.leaves[mv.To] = moving[j]
	}

	for _, set := range [][]int64{cs.AddedClusters(), cs.ModifiedClusters()} {
		for _, i := range set {
			leaf, err := x.hashCluster(i)
			if err != nil {
				x.stale = true
				return err
			}
			x.leaves[i] = leaf
		}
	}
	return nil
}

// Rebuild rehashes every cluster of the map
func (x *Index) Rebuild() error {
	n := x.m.ClusterCount()
	leaves := make([][]byte, n)
	for i := int64(0); i < n; i++ {
		leaf, err := x.hashCluster(i)
		if err != nil {
			return err
		}
		leaves[i] = leaf
	}
	x.leaves = leaves
	x.stale = false
	if x.log != nil {
		x.log.Infof("leaf index rebuilt: %d leaves", n)
	}
	return nil
}

// nodeStore is an in memory mmr node store
type nodeStore struct {
	nodes [][]byte
}

func (s *nodeStore) Get(i uint64) ([]byte, error) {
	if i >= uint64(len(s.nodes)) {
		return nil, fmt.Errorf("%w: mmr node %d", clusters.ErrIndexOutOfRange, i)
	}
	return s.nodes[i], nil
}

func (s *nodeStore) Append(value []byte) (uint64, error) {
	s.nodes = append(s.nodes, value)
	return uint64(len(s.nodes)), nil
}

// Root accumulates the leaves into an MMR and returns the bagged root of its
// peaks. The root of an empty map is nil.
func (x *Index) Root() ([]byte, error) {
	if x.stale {
		return nil, ErrRebuildRequired
	}
	if len(x.leaves) == 0 {
		return nil, nil
	}
	store := &nodeStore{}
	hasher := sha256.New()
	var size uint64
	var err error
	for _, leaf := range x.leaves {
		if size, err = mmr.AddHashedLeaf(store, hasher, leaf); err != nil {
			return nil, err
		}
	}
	return mmr.GetRoot(size, store, hasher)
}
