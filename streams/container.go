package streams

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-clustermap/clusters"
	"github.com/forestrie/go-clustermap/keyindex"
	"github.com/forestrie/go-clustermap/leafindex"
)

// MetaStreamID is the stream holding the descriptor table
const MetaStreamID int64 = 0

// Descriptor describes a stream. Start and End are NoCluster for an empty
// stream.
type Descriptor struct {
	ID    int64
	Size  int64
	Start int64
	End   int64
}

// Container manages the streams stored in a single cluster map. It is not safe
// for concurrent use.
type Container struct {
	m      *clusters.ClusterMap
	log    logger.Logger
	keys   *keyindex.Index
	leaves *leafindex.Index
	sizes  map[int64]int64
	nextID int64

	// cursors are only valid until the next change to the map's structure
	cursors map[int64]cursor
}

func newContainer(m *clusters.ClusterMap, options Options) *Container {
	c := &Container{
		m:       m,
		log:     options.Log,
		keys:    keyindex.New(),
		sizes:   map[int64]int64{MetaStreamID: 0},
		nextID:  MetaStreamID + 1,
		cursors: map[int64]cursor{},
	}
	c.keys.Attach(m)
	if options.LeafIndex {
		c.leaves = leafindex.New(m, leafindex.WithLogger(options.Log))
		c.leaves.Attach()
	}
	return c
}

// NewContainer creates an empty container over m, which must have no clusters
func NewContainer(m *clusters.ClusterMap, opts ...Option) (*Container, error) {
	if m.RequiresLoad() || m.ClusterCount() != 0 {
		return nil, fmt.Errorf("%w: a new container requires an empty map", ErrDescriptorMismatch)
	}
	return newContainer(m, newOptions(opts)), nil
}

// LoadContainer attaches to the streams already stored in m. metaSize is the
// size of the metadata stream as recorded by the last Flush.
func LoadContainer(m *clusters.ClusterMap, metaSize int64, opts ...Option) (*Container, error) {
	options := newOptions(opts)
	if err := m.Load(); err != nil {
		return nil, err
	}
	chains, err := m.Verify()
	if err != nil {
		return nil, err
	}
	c := newContainer(m, options)
	c.keys.Load(chains)
	c.sizes[MetaStreamID] = metaSize
	if err := c.checkChainLength(MetaStreamID, metaSize, chains); err != nil {
		return nil, err
	}

	if metaSize > 0 {
		b := make([]byte, metaSize)
		if _, err := c.readAt(MetaStreamID, b, 0); err != nil {
			return nil, err
		}
		t, err := decodeTable(b)
		if err != nil {
			return nil, err
		}
		if t.Version != tableVersion {
			return nil, fmt.Errorf("%w: table version %d", ErrUnsupportedVersion, t.Version)
		}
		c.nextID = t.NextID
		for _, e := range t.Streams {
			if e.ID == MetaStreamID || e.ID >= t.NextID || e.Size < 0 {
				return nil, fmt.Errorf("%w: stream %d", ErrDescriptorMismatch, e.ID)
			}
			c.sizes[e.ID] = e.Size
		}
	}
	// every chain must belong to a stream
	for _, ch := range chains {
		size, ok := c.sizes[ch.Terminal]
		if !ok {
			return nil, fmt.Errorf("%w: chain %d has no stream", ErrDescriptorMismatch, ch.Terminal)
		}
		if ch.Terminal != MetaStreamID {
			if err := c.checkChainLength(ch.Terminal, size, chains); err != nil {
				return nil, err
			}
		}
	}
	for id, size := range c.sizes {
		if _, ok := c.keys.Lookup(id); !ok && size > 0 {
			return nil, fmt.Errorf("%w: stream %d has no chain", ErrDescriptorMismatch, id)
		}
	}
	if c.leaves != nil {
		if err := c.leaves.Rebuild(); err != nil {
			return nil, err
		}
	}
	if c.log != nil {
		c.log.Infof("loaded container: %d streams, %d clusters", len(c.sizes)-1, m.ClusterCount())
	}
	return c, nil
}

func (c *Container) checkChainLength(id int64, size int64, chains []clusters.ChainInfo) error {
	want := c.m.CalculateClusterChainLength(size)
	var got int64
	for _, ch := range chains {
		if ch.Terminal == id {
			got = ch.Length
			break
		}
	}
	if got != want {
		return fmt.Errorf(
			"%w: stream %d of %d bytes needs %d clusters, found %d", ErrDescriptorMismatch, id, size, want, got)
	}
	return nil
}

func (c *Container) Map() *clusters.ClusterMap { return c.m }

// track applies a change set which the subscribed indices did not see
func (c *Container) track(cs *clusters.ChangeSet) {
	if !c.m.EventsSuppressed() {
		return
	}
	c.keys.Apply(cs)
	if c.leaves != nil {
		// an untracked change set always leaves the leaf index stale, Root
		// rebuilds it
		_ = c.leaves.Apply(cs)
	}
}

// Create allocates a new, empty, stream
func (c *Container) Create() (*Stream, error) {
	id := c.nextID
	c.nextID++
	c.sizes[id] = 0
	if c.log != nil {
		c.log.Debugf("Create: stream %d", id)
	}
	return &Stream{c: c, id: id}, nil
}

// Open returns a new handle, positioned at the start, on an existing stream
func (c *Container) Open(id int64) (*Stream, error) {
	if id == MetaStreamID {
		return nil, ErrReservedStream
	}
	if _, ok := c.sizes[id]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrStreamNotFound, id)
	}
	return &Stream{c: c, id: id}, nil
}

// Delete removes a stream and releases its clusters
func (c *Container) Delete(id int64) error {
	if id == MetaStreamID {
		return ErrReservedStream
	}
	if _, ok := c.sizes[id]; !ok {
		return fmt.Errorf("%w: %d", ErrStreamNotFound, id)
	}
	if err := c.resize(id, 0); err != nil {
		return err
	}
	delete(c.sizes, id)
	if c.log != nil {
		c.log.Debugf("Delete: stream %d", id)
	}
	return nil
}

// IDs returns the ids of the user streams in ascending order
func (c *Container) IDs() []int64 {
	ids := slices.Sorted(maps.Keys(c.sizes))
	return slices.DeleteFunc(ids, func(id int64) bool { return id == MetaStreamID })
}

func (c *Container) Descriptor(id int64) (Descriptor, bool) {
	size, ok := c.sizes[id]
	if !ok {
		return Descriptor{}, false
	}
	d := Descriptor{ID: id, Size: size, Start: clusters.NoCluster, End: clusters.NoCluster}
	if e, ok := c.keys.Lookup(id); ok {
		d.Start = e.Start
		d.End = e.End
	}
	return d, true
}

func (c *Container) size(id int64) (int64, error) {
	size, ok := c.sizes[id]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrStreamNotFound, id)
	}
	return size, nil
}

// Root returns the Merkle root over every cluster record of the container.
// The container must have been created WithLeafIndex.
func (c *Container) Root() ([]byte, error) {
	if c.leaves == nil {
		return nil, fmt.Errorf("%w: leaf index not enabled", leafindex.ErrRebuildRequired)
	}
	if c.leaves.Stale() {
		if err := c.leaves.Rebuild(); err != nil {
			return nil, err
		}
	}
	return c.leaves.Root()
}

// Flush writes the descriptor table to the metadata stream and returns the
// metadata stream's descriptor.
func (c *Container) Flush() (Descriptor, error) {
	t := table{Version: tableVersion, NextID: c.nextID}
	for _, id := range c.IDs() {
		t.Streams = append(t.Streams, tableEntry{ID: id, Size: c.sizes[id]})
	}
	b, err := encodeTable(t)
	if err != nil {
		return Descriptor{}, err
	}
	if err := c.resize(MetaStreamID, int64(len(b))); err != nil {
		return Descriptor{}, err
	}
	if _, err := c.writeAt(MetaStreamID, b, 0); err != nil {
		return Descriptor{}, err
	}
	d, _ := c.Descriptor(MetaStreamID)
	if c.log != nil {
		c.log.Infof("flushed %d stream descriptors, %d bytes", len(t.Streams), len(b))
	}
	return d, nil
}

// resize grows or shrinks the chain of stream id to fit size bytes. Bytes
// past size in the last cluster are zeroed, so growth never exposes stale
// content.
func (c *Container) resize(id int64, size int64) error {
	old, err := c.size(id)
	if err != nil {
		return err
	}
	if size < 0 {
		return ErrNegativeOffset
	}
	if size == old {
		return nil
	}
	have := c.m.CalculateClusterChainLength(old)
	need := c.m.CalculateClusterChainLength(size)
	if need != have {
		clear(c.cursors)
	}

	switch {
	case have == 0 && need > 0:
		_, _, cs, err := c.m.NewClusterChain(need, id)
		if err != nil {
			return err
		}
		c.track(cs)
	case need > have:
		e, _ := c.keys.Lookup(id)
		_, cs, err := c.m.AppendClustersToEnd(e.End, need-have)
		if err != nil {
			return err
		}
		c.track(cs)
	case need < have:
		e, _ := c.keys.Lookup(id)
		_, cs, err := c.m.RemoveBackwards(e.End, have-need)
		if err != nil {
			return err
		}
		c.track(cs)
	}

	clusterSize := int64(c.m.ClusterSize())
	if size < old && size%clusterSize != 0 {
		e, _ := c.keys.Lookup(id)
		within := int(size % clusterSize)
		if err := c.m.WriteData(e.End, within, c.m.ZeroClusterBytes()[within:]); err != nil {
			return err
		}
	}
	c.sizes[id] = size
	return nil
}

// cursor remembers the cluster at a position of a stream's chain
type cursor struct {
	pos     int64
	cluster int64
}

// clusterRun returns the indices of n consecutive clusters of the chain of
// stream id, beginning with the cluster at position first. The walk starts
// from whichever of the chain start, the chain end or the stream's last cursor
// is closest to first.
func (c *Container) clusterRun(id int64, first int64, n int64) ([]int64, error) {
	e, ok := c.keys.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d has no clusters", ErrStreamNotFound, id)
	}
	length := c.m.CalculateClusterChainLength(c.sizes[id])
	if first < 0 || first+n > length {
		return nil, fmt.Errorf("%w: stream %d is shorter than its size", ErrDescriptorMismatch, id)
	}

	at := cursor{pos: 0, cluster: e.Start}
	if length-1-first < first {
		at = cursor{pos: length - 1, cluster: e.End}
	}
	if last, ok := c.cursors[id]; ok && absDiff(last.pos, first) < absDiff(at.pos, first) {
		at = last
	}

	step := func(forward bool) error {
		h, err := c.m.Header(at.cluster)
		if err != nil {
			return err
		}
		if forward {
			if h.Traits.Has(clusters.TraitEnd) {
				return fmt.Errorf("%w: stream %d is shorter than its size", ErrDescriptorMismatch, id)
			}
			at = cursor{pos: at.pos + 1, cluster: h.Next}
			return nil
		}
		if h.Traits.Has(clusters.TraitStart) {
			return fmt.Errorf("%w: stream %d is shorter than its size", ErrDescriptorMismatch, id)
		}
		at = cursor{pos: at.pos - 1, cluster: h.Prev}
		return nil
	}
	for at.pos != first {
		if err := step(at.pos < first); err != nil {
			return nil, err
		}
	}
	indices := make([]int64, 0, n)
	for {
		indices = append(indices, at.cluster)
		if int64(len(indices)) == n {
			break
		}
		if err := step(true); err != nil {
			return nil, err
		}
	}
	c.cursors[id] = at
	return indices, nil
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}

// transfer copies between p and the stream bytes [off, off+len(p)), which
// must be within the stream
func (c *Container) transfer(id int64, p []byte, off int64, write bool) error {
	if len(p) == 0 {
		return nil
	}
	clusterSize := int64(c.m.ClusterSize())
	first := off / clusterSize
	last := (off + int64(len(p)) - 1) / clusterSize
	indices, err := c.clusterRun(id, first, last-first+1)
	if err != nil {
		return err
	}
	within := int(off % clusterSize)
	done := 0
	for _, i := range indices {
		n := min(len(p)-done, int(clusterSize)-within)
		if write {
			err = c.m.WriteData(i, within, p[done:done+n])
		} else {
			err = c.m.ReadData(i, within, p[done:done+n])
		}
		if err != nil {
			return err
		}
		done += n
		within = 0
	}
	return nil
}

func (c *Container) readAt(id int64, p []byte, off int64) (int, error) {
	size, err := c.size(id)
	if err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, ErrNegativeOffset
	}
	if off >= size {
		return 0, io.EOF
	}
	n := int(min(int64(len(p)), size-off))
	if err := c.transfer(id, p[:n], off, false); err != nil {
		return 0, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (c *Container) writeAt(id int64, p []byte, off int64) (int, error) {
	size, err := c.size(id)
	if err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, ErrNegativeOffset
	}
	if len(p) == 0 {
		return 0, nil
	}
	if end := off + int64(len(p)); end > size {
		if err := c.resize(id, end); err != nil {
			return 0, err
		}
	}
	if err := c.transfer(id, p, off, true); err != nil {
		return 0, err
	}
	return len(p), nil
}
