package clusters

import (
	"fmt"
	"math"

	"github.com/datatrails/go-datatrails-common/logger"
)

// Unbounded may be passed as the quantity to RemoveNextClusters to remove
// everything up to and including the end of the chain.
const Unbounded int64 = math.MaxInt64

// ChangeListener is called synchronously, once per mutating call, after the
// mutation has completed.
type ChangeListener func(cs *ChangeSet)

type loader interface {
	RequiresLoad() bool
	Load() error
}

// ClusterMap implements the chain algorithms over the record primitives of a
// Store.
type ClusterMap struct {
	store          Store
	log            logger.Logger
	suppressEvents bool
	listeners      []ChangeListener
	zeroCluster    []byte
}

func NewClusterMap(store Store, opts ...Option) *ClusterMap {
	options := Options{}
	for _, o := range opts {
		o(&options)
	}
	return &ClusterMap{
		store:          store,
		log:            options.Log,
		suppressEvents: options.SuppressEvents,
		zeroCluster:    make([]byte, store.ClusterSize()),
	}
}

// NewMemoryClusterMap creates a map backed by a MemoryStore
func NewMemoryClusterMap(clusterSize int, opts ...Option) (*ClusterMap, error) {
	store, err := NewMemoryStore(clusterSize)
	if err != nil {
		return nil, err
	}
	return NewClusterMap(store, opts...), nil
}

func (m *ClusterMap) Store() Store       { return m.store }
func (m *ClusterMap) ClusterSize() int   { return m.store.ClusterSize() }
func (m *ClusterMap) ClusterCount() int64 { return m.store.Count() }

// ZeroClusterBytes returns a ClusterSize length, zero filled, buffer. It is
// shared, callers must not modify it.
func (m *ClusterMap) ZeroClusterBytes() []byte { return m.zeroCluster }

// Subscribe registers a listener for the change sets of subsequent calls
func (m *ClusterMap) Subscribe(l ChangeListener) {
	m.listeners = append(m.listeners, l)
}

// SetSuppressEvents turns change tracking off (or back on). While suppressed,
// listeners are not called and change sets carry only the terminal start and
// end maps. Dependent structures must be rebuilt after a suppressed batch.
func (m *ClusterMap) SetSuppressEvents(suppress bool) {
	m.suppressEvents = suppress
}

func (m *ClusterMap) EventsSuppressed() bool { return m.suppressEvents }

// RequiresLoad returns true if the store is attached to existing records which
// have not been loaded yet
func (m *ClusterMap) RequiresLoad() bool {
	if l, ok := m.store.(loader); ok {
		return l.RequiresLoad()
	}
	return false
}

func (m *ClusterMap) Load() error {
	if l, ok := m.store.(loader); ok {
		return l.Load()
	}
	return nil
}

func (m *ClusterMap) checkLoaded() error {
	if m.RequiresLoad() {
		return ErrRequiresLoad
	}
	return nil
}

func (m *ClusterMap) checkIndex(i int64) error {
	if err := checkIndex(i, m.store.Count()); err != nil {
		return fmt.Errorf("%w: %d not in [0, %d)", err, i, m.store.Count())
	}
	return nil
}

// Cluster returns a copy of the cluster at index i
func (m *ClusterMap) Cluster(i int64) (Cluster, error) {
	if err := m.checkLoaded(); err != nil {
		return Cluster{}, err
	}
	if err := m.checkIndex(i); err != nil {
		return Cluster{}, err
	}
	return m.store.ReadCluster(i)
}

// Header returns the traits and links of the cluster at index i
func (m *ClusterMap) Header(i int64) (Header, error) {
	if err := m.checkLoaded(); err != nil {
		return Header{}, err
	}
	if err := m.checkIndex(i); err != nil {
		return Header{}, err
	}
	return m.store.ReadHeader(i)
}

func (m *ClusterMap) ReadData(i int64, offset int, p []byte) error {
	if err := m.checkLoaded(); err != nil {
		return err
	}
	if err := m.checkIndex(i); err != nil {
		return err
	}
	return m.store.ReadData(i, offset, p)
}

// WriteData writes p into the payload of cluster i. The published change set
// reports i as modified.
func (m *ClusterMap) WriteData(i int64, offset int, p []byte) error {
	if err := m.checkLoaded(); err != nil {
		return err
	}
	if err := m.checkIndex(i); err != nil {
		return err
	}
	if err := checkDataRange(m.ClusterSize(), offset, len(p)); err != nil {
		return err
	}
	if err := m.store.WriteData(i, offset, p); err != nil {
		return err
	}
	cs := m.newChangeSet()
	cs.InformModifiedCluster(i)
	m.publish(cs)
	return nil
}

// CalculateClusterChainLength returns the number of clusters needed to hold
// byteLength bytes
func (m *ClusterMap) CalculateClusterChainLength(byteLength int64) int64 {
	if byteLength <= 0 {
		return 0
	}
	size := int64(m.ClusterSize())
	return (byteLength + size - 1) / size
}

func (m *ClusterMap) newChangeSet() *ChangeSet {
	return newChangeSet(!m.suppressEvents)
}

func (m *ClusterMap) publish(cs *ChangeSet) {
	if m.suppressEvents {
		return
	}
	for _, l := range m.listeners {
		l(cs)
	}
}

func (m *ClusterMap) debugf(format string, args ...any) {
	if m.log == nil {
		return
	}
	m.log.Debugf(format, args...)
}

func (m *ClusterMap) checkQuantity(quantity int64) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	return nil
}

func (m *ClusterMap) checkGrowth(quantity int64) error {
	if err := m.checkQuantity(quantity); err != nil {
		return err
	}
	if quantity > math.MaxInt64-m.store.Count() {
		return fmt.Errorf("%w: %d clusters would overflow the map", ErrInvalidQuantity, quantity)
	}
	return nil
}

// NewClusterChain allocates a new chain of quantity clusters at the tip of the
// map. The chain's start Prev and end Next are set to terminal.
func (m *ClusterMap) NewClusterChain(quantity int64, terminal int64) (int64, int64, *ChangeSet, error) {
	if err := m.checkLoaded(); err != nil {
		return NoCluster, NoCluster, nil, err
	}
	if err := m.checkGrowth(quantity); err != nil {
		return NoCluster, NoCluster, nil, err
	}

	cs := m.newChangeSet()
	start := m.store.Count()
	first := Cluster{
		Header: Header{Traits: TraitStart | TraitEnd, Prev: terminal, Next: terminal},
		Data:   m.zeroCluster,
	}
	if err := m.store.AppendClusters(first); err != nil {
		return NoCluster, NoCluster, nil, err
	}
	cs.InformAddedCluster(start)
	cs.ClusterCountDelta++

	end := start
	if quantity > 1 {
		var err error
		end, err = m.appendClustersToEnd(cs, start, first.Header, quantity-1)
		if err != nil {
			return NoCluster, NoCluster, nil, err
		}
	}
	cs.InformChainNewStart(terminal, start)
	cs.InformChainNewEnd(terminal, end)
	cs.ChainNewStart = start
	cs.ChainNewEnd = end

	m.debugf("NewClusterChain: terminal=%d, start=%d, end=%d, n=%d", terminal, start, end, quantity)
	m.publish(cs)
	return start, end, cs, nil
}

// AppendClustersToEnd grows the chain ending at fromEnd by quantity new
// clusters, allocated contiguously at the tip of the map. Returns the new end.
func (m *ClusterMap) AppendClustersToEnd(fromEnd int64, quantity int64) (int64, *ChangeSet, error) {
	if err := m.checkLoaded(); err != nil {
		return NoCluster, nil, err
	}
	if err := m.checkGrowth(quantity); err != nil {
		return NoCluster, nil, err
	}
	if err := m.checkIndex(fromEnd); err != nil {
		return NoCluster, nil, err
	}
	h, err := m.store.ReadHeader(fromEnd)
	if err != nil {
		return NoCluster, nil, err
	}
	if !h.IsEnd() {
		return NoCluster, nil, fmt.Errorf("%w: cluster %d has traits %s", ErrNotChainEnd, fromEnd, h.Traits)
	}

	cs := m.newChangeSet()
	newEnd, err := m.appendClustersToEnd(cs, fromEnd, h, quantity)
	if err != nil {
		return NoCluster, nil, err
	}
	cs.ChainOriginalEnd = fromEnd
	cs.ChainNewEnd = newEnd

	m.debugf("AppendClustersToEnd: terminal=%d, from=%d, end=%d, n=%d", h.Next, fromEnd, newEnd, quantity)
	m.publish(cs)
	return newEnd, cs, nil
}

// appendClustersToEnd assumes fromEnd has been checked and that h is its
// current header
func (m *ClusterMap) appendClustersToEnd(cs *ChangeSet, fromEnd int64, h Header, quantity int64) (int64, error) {
	terminal := h.Next
	first := m.store.Count()

	clusters := make([]Cluster, quantity)
	prev := fromEnd
	for j := range clusters {
		i := first + int64(j)
		clusters[j] = Cluster{Header: Header{Prev: prev, Next: i + 1}, Data: m.zeroCluster}
		prev = i
	}
	last := &clusters[quantity-1]
	last.Traits = TraitEnd
	last.Next = terminal

	// The new clusters are written first, so that a failed append does not
	// leave fromEnd referring to clusters which do not exist.
	if err := m.store.AppendClusters(clusters...); err != nil {
		return NoCluster, err
	}
	if err := m.store.WriteTraits(fromEnd, h.Traits&^TraitEnd); err != nil {
		return NoCluster, err
	}
	if err := m.store.WriteNext(fromEnd, first); err != nil {
		return NoCluster, err
	}

	cs.InformModifiedCluster(fromEnd)
	if cs.TracksClusters() {
		for i := first; i < first+quantity; i++ {
			cs.InformAddedCluster(i)
		}
	}
	cs.ClusterCountDelta += quantity

	newEnd := first + quantity - 1
	cs.InformChainNewEnd(terminal, newEnd)
	return newEnd, nil
}

// RemoveNextClusters removes quantity clusters starting at from and walking
// forward. Removal stops early at the end of the chain. Pass Unbounded to
// remove everything from from to the end of the chain.
func (m *ClusterMap) RemoveNextClusters(from int64, quantity int64) (int64, *ChangeSet, error) {
	if err := m.checkLoaded(); err != nil {
		return 0, nil, err
	}
	if err := m.checkQuantity(quantity); err != nil {
		return 0, nil, err
	}
	if err := m.checkIndex(from); err != nil {
		return 0, nil, err
	}

	count := m.store.Count()
	last := from
	n := int64(1)
	h, err := m.store.ReadHeader(from)
	if err != nil {
		return 0, nil, err
	}
	for n < quantity && !h.IsEnd() {
		next := h.Next
		if checkIndex(next, count) != nil || n >= count {
			return 0, nil, fmt.Errorf("%w: cluster %d links forward to %d", ErrChainCorrupt, last, next)
		}
		if h, err = m.store.ReadHeader(next); err != nil {
			return 0, nil, err
		}
		if h.IsStart() || h.Prev != last {
			return 0, nil, fmt.Errorf("%w: cluster %d does not link back to %d", ErrChainCorrupt, next, last)
		}
		last = next
		n++
	}
	return m.RemoveBackwards(last, n)
}

// removal is the plan for a RemoveBackwards call. All indices are in the
// coordinates of the map before the call.
type removal struct {
	clusters     []int64
	set          map[int64]struct{}
	fromHeader   Header
	fromWasEnd   bool
	reachedStart bool
	start        int64 // valid if reachedStart
	terminal     int64 // valid if reachedStart or fromWasEnd
	predecessor  int64 // valid if !reachedStart
	predHeader   Header
	successor    int64 // valid if !fromWasEnd
	succHeader   Header
}

// planRemoval walks backward from from, reading only, and checks the chain is
// consistent over the affected range.
func (m *ClusterMap) planRemoval(from int64, quantity int64) (*removal, error) {
	count := m.store.Count()
	var err error

	r := &removal{set: map[int64]struct{}{}, predecessor: NoCluster, successor: NoCluster}
	if r.fromHeader, err = m.store.ReadHeader(from); err != nil {
		return nil, err
	}
	r.fromWasEnd = r.fromHeader.IsEnd()

	if !r.fromWasEnd {
		r.successor = r.fromHeader.Next
		if checkIndex(r.successor, count) != nil {
			return nil, fmt.Errorf("%w: cluster %d links forward to %d", ErrChainCorrupt, from, r.successor)
		}
		if r.succHeader, err = m.store.ReadHeader(r.successor); err != nil {
			return nil, err
		}
		if r.succHeader.IsStart() || r.succHeader.Prev != from {
			return nil, fmt.Errorf("%w: cluster %d does not link back to %d", ErrChainCorrupt, r.successor, from)
		}
	}

	cur, h := from, r.fromHeader
	for {
		if _, seen := r.set[cur]; seen {
			return nil, fmt.Errorf("%w: cycle at cluster %d", ErrChainCorrupt, cur)
		}
		r.set[cur] = struct{}{}
		r.clusters = append(r.clusters, cur)

		if h.IsStart() {
			r.reachedStart = true
			r.start = cur
			r.terminal = h.Prev
			break
		}
		prev := h.Prev
		if checkIndex(prev, count) != nil {
			return nil, fmt.Errorf("%w: cluster %d links back to %d", ErrChainCorrupt, cur, prev)
		}
		ph, err := m.store.ReadHeader(prev)
		if err != nil {
			return nil, err
		}
		if ph.IsEnd() || ph.Next != cur {
			return nil, fmt.Errorf("%w: cluster %d does not link forward to %d", ErrChainCorrupt, prev, cur)
		}
		if int64(len(r.clusters)) == quantity {
			r.predecessor = prev
			r.predHeader = ph
			break
		}
		cur, h = prev, ph
	}

	if r.fromWasEnd {
		if r.reachedStart && r.terminal != r.fromHeader.Next {
			return nil, fmt.Errorf(
				"%w: chain start terminal %d does not match end terminal %d",
				ErrChainCorrupt, r.terminal, r.fromHeader.Next)
		}
		r.terminal = r.fromHeader.Next
	}
	return r, nil
}

// RemoveBackwards removes up to quantity clusters ending at from, walking
// backward via Prev. Removal never passes the start of the chain, if the start
// is reached first fewer clusters are removed. Returns the number removed.
//
// The map is kept dense by migrating the clusters at the tip of the map into
// the vacated slots, see the package documentation.
func (m *ClusterMap) RemoveBackwards(from int64, quantity int64) (int64, *ChangeSet, error) {
	if err := m.checkLoaded(); err != nil {
		return 0, nil, err
	}
	if err := m.checkQuantity(quantity); err != nil {
		return 0, nil, err
	}
	if err := m.checkIndex(from); err != nil {
		return 0, nil, err
	}
	r, err := m.planRemoval(from, quantity)
	if err != nil {
		return 0, nil, err
	}

	cs := m.newChangeSet()
	newStart, newEnd := NoCluster, NoCluster

	// Detach the removed range first. After this no surviving cluster refers
	// to a cluster being removed, so migration only has to fix up survivors.
	switch {
	case r.reachedStart && r.fromWasEnd:
		// the entire chain
		cs.InformChainNewStart(r.terminal, NoCluster)
		cs.InformChainNewEnd(r.terminal, NoCluster)
		cs.ChainOriginalStart = r.start
		cs.ChainOriginalEnd = from

	case r.reachedStart:
		// from the middle to the beginning
		if err := m.store.WriteTraits(r.successor, r.succHeader.Traits|TraitStart); err != nil {
			return 0, nil, err
		}
		if err := m.store.WritePrev(r.successor, r.terminal); err != nil {
			return 0, nil, err
		}
		cs.InformModifiedCluster(r.successor)
		cs.ChainOriginalStart = r.start
		newStart = r.successor

	case r.fromWasEnd:
		// from the end to the middle
		if err := m.store.WriteTraits(r.predecessor, r.predHeader.Traits|TraitEnd); err != nil {
			return 0, nil, err
		}
		if err := m.store.WriteNext(r.predecessor, r.terminal); err != nil {
			return 0, nil, err
		}
		cs.InformModifiedCluster(r.predecessor)
		cs.ChainOriginalEnd = from
		newEnd = r.predecessor

	default:
		// strictly in the middle
		if err := m.store.WriteNext(r.predecessor, r.successor); err != nil {
			return 0, nil, err
		}
		if err := m.store.WritePrev(r.successor, r.predecessor); err != nil {
			return 0, nil, err
		}
		cs.InformModifiedCluster(r.predecessor)
		cs.InformModifiedCluster(r.successor)
	}

	count := m.store.Count()
	removed := int64(len(r.clusters))
	newCount := count - removed

	// Slots below newCount which are being vacated, filled in the order the
	// walk visited them.
	holes := make([]int64, 0, len(r.clusters))
	for _, i := range r.clusters {
		if i < newCount {
			holes = append(holes, i)
		}
	}
	next := 0
	for tip := count - 1; tip >= newCount; tip-- {
		if _, removing := r.set[tip]; !removing {
			to := holes[next]
			next++
			if err := m.migrateTipClusterTo(cs, tip, to); err != nil {
				return 0, nil, err
			}
			if tip == newStart {
				newStart = to
			}
			if tip == newEnd {
				newEnd = to
			}
		}
		cs.InformRemovedCluster(tip)
	}
	if err := m.store.RemoveEndClusters(removed); err != nil {
		return 0, nil, err
	}
	cs.ClusterCountDelta = -removed

	if r.reachedStart && !r.fromWasEnd {
		cs.InformChainNewStart(r.terminal, newStart)
		cs.ChainNewStart = newStart
	}
	if r.fromWasEnd && !r.reachedStart {
		cs.InformChainNewEnd(r.terminal, newEnd)
		cs.ChainNewEnd = newEnd
	}

	m.debugf("RemoveBackwards: from=%d, n=%d, removed=%d, start=%v, end=%v, count=%d",
		from, quantity, removed, r.reachedStart, r.fromWasEnd, newCount)
	m.publish(cs)
	return removed, cs, nil
}

// migrateTipClusterTo copies the cluster at tip into the slot to and re-points
// its neighbours. If the cluster is the start (or end) of its chain it has no
// neighbour on that side, instead the chain's owner is informed of the new
// position through the change set.
func (m *ClusterMap) migrateTipClusterTo(cs *ChangeSet, tip int64, to int64) error {
	c, err := m.store.ReadCluster(tip)
	if err != nil {
		return err
	}
	if c.IsStart() {
		cs.InformChainNewStart(c.Prev, to)
	} else {
		if err := m.store.WriteNext(c.Prev, to); err != nil {
			return err
		}
		cs.InformModifiedCluster(c.Prev)
	}
	if c.IsEnd() {
		cs.InformChainNewEnd(c.Next, to)
	} else {
		if err := m.store.WritePrev(c.Next, to); err != nil {
			return err
		}
		cs.InformModifiedCluster(c.Next)
	}
	if err := m.store.WriteCluster(to, c); err != nil {
		return err
	}
	cs.InformMovedCluster(tip, to)
	return nil
}

// Clear removes every cluster
func (m *ClusterMap) Clear() (*ChangeSet, error) {
	count := m.store.Count()
	if err := m.store.Clear(); err != nil {
		return nil, err
	}
	cs := m.newChangeSet()
	cs.Cleared = true
	cs.ClusterCountDelta = -count
	m.debugf("Clear: removed=%d", count)
	m.publish(cs)
	return cs, nil
}
