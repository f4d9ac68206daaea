package clusters

import (
	"maps"
	"slices"
)

// Move records the relocation of a cluster from one index to another
type Move struct {
	From int64
	To   int64
}

// ChangeSet describes the structural effect of a single mutating call on a
// ClusterMap. It is created at the start of the call, populated as the call
// proceeds, handed to the map's listeners once the call completes and then
// discarded.
//
// Indices in the added, modified and the destinations of the moved sets are in
// the coordinates of the map *after* the call. Indices in the removed set and
// the sources of the moved set are in the coordinates of the map *before* the
// call.
//
// The Chain* fields describe the chain targeted by the call. NoCluster is used
// when the call neither observed nor changed the corresponding boundary.
type ChangeSet struct {
	ClusterCountDelta int64
	// Cleared is set when the whole map was emptied. The per cluster sets are
	// not populated in that case.
	Cleared bool

	ChainOriginalStart int64
	ChainOriginalEnd   int64
	ChainNewStart      int64
	ChainNewEnd        int64

	// The terminal maps are maintained even when cluster tracking is off, an
	// owner of chains can not stay consistent without them.
	newStarts map[int64]int64
	newEnds   map[int64]int64

	trackClusters bool
	added         map[int64]struct{}
	removed       map[int64]struct{}
	modified      map[int64]struct{}
	moved         map[int64]int64
	movedTo       map[int64]int64
}

// NewChangeSet creates a change set which tracks the per cluster sets
func NewChangeSet() *ChangeSet {
	return newChangeSet(true)
}

func newChangeSet(trackClusters bool) *ChangeSet {
	cs := &ChangeSet{
		ChainOriginalStart: NoCluster,
		ChainOriginalEnd:   NoCluster,
		ChainNewStart:      NoCluster,
		ChainNewEnd:        NoCluster,
		newStarts:          map[int64]int64{},
		newEnds:            map[int64]int64{},
		trackClusters:      trackClusters,
	}
	if trackClusters {
		cs.added = map[int64]struct{}{}
		cs.removed = map[int64]struct{}{}
		cs.modified = map[int64]struct{}{}
		cs.moved = map[int64]int64{}
		cs.movedTo = map[int64]int64{}
	}
	return cs
}

// TracksClusters returns false if the change set was produced while events
// were suppressed. Only the terminal maps and the summary fields are
// meaningful in that case.
func (cs *ChangeSet) TracksClusters() bool {
	return cs.trackClusters
}

func (cs *ChangeSet) InformAddedCluster(i int64) {
	if !cs.trackClusters {
		return
	}
	cs.added[i] = struct{}{}
}

func (cs *ChangeSet) InformRemovedCluster(i int64) {
	if !cs.trackClusters {
		return
	}
	delete(cs.modified, i)
	if _, ok := cs.added[i]; ok {
		delete(cs.added, i)
		return
	}
	cs.removed[i] = struct{}{}
}

// InformModifiedCluster records an in place change to the cluster currently at
// index i. Clusters added by the same call are not reported as modified.
func (cs *ChangeSet) InformModifiedCluster(i int64) {
	if !cs.trackClusters {
		return
	}
	if _, ok := cs.added[i]; ok {
		return
	}
	cs.modified[i] = struct{}{}
}

// InformMovedCluster records that the content at index from now lives at index
// to. The moved map is kept injective:
//
//   - if an earlier move x -> from exists it becomes x -> to, chained moves
//     collapse to their final destination.
//   - if an earlier move y -> to exists, y is marked removed, a destination can
//     only be arrived at once.
func (cs *ChangeSet) InformMovedCluster(from, to int64) {
	if !cs.trackClusters || from == to {
		return
	}

	if y, ok := cs.movedTo[to]; ok {
		delete(cs.moved, y)
		delete(cs.movedTo, to)
		cs.removed[y] = struct{}{}
	}

	_, fromModified := cs.modified[from]
	delete(cs.modified, from)
	delete(cs.modified, to)
	if fromModified {
		cs.modified[to] = struct{}{}
	}

	// content added by this call is not a relocation of prior content
	if _, ok := cs.added[from]; ok {
		delete(cs.added, from)
		cs.added[to] = struct{}{}
		return
	}

	src := from
	if x, ok := cs.movedTo[from]; ok {
		delete(cs.movedTo, from)
		src = x
	}
	if src == to {
		// moved back to where it started
		delete(cs.moved, src)
		delete(cs.removed, src)
		return
	}
	cs.moved[src] = to
	cs.movedTo[to] = src
}

// InformChainNewStart records the final start cluster of the chain identified
// by terminal. NoCluster records that the chain no longer exists.
func (cs *ChangeSet) InformChainNewStart(terminal int64, i int64) {
	cs.newStarts[terminal] = i
}

// InformChainNewEnd records the final end cluster of the chain identified by
// terminal. NoCluster records that the chain no longer exists.
func (cs *ChangeSet) InformChainNewEnd(terminal int64, i int64) {
	cs.newEnds[terminal] = i
}

// AddedChain is true if the call created the targeted chain
func (cs *ChangeSet) AddedChain() bool {
	return cs.ChainOriginalStart == NoCluster && cs.ChainNewStart != NoCluster
}

// RemovedChain is true if the call removed the targeted chain entirely
func (cs *ChangeSet) RemovedChain() bool {
	return cs.ChainOriginalStart != NoCluster && cs.ChainNewStart == NoCluster
}

// IncreasedChainSize is true if the targeted chain gained clusters. Growth
// always moves the end of the chain.
func (cs *ChangeSet) IncreasedChainSize() bool {
	return cs.ClusterCountDelta > 0 && cs.ChainOriginalEnd != cs.ChainNewEnd
}

// DecreasedChainSize is true if the targeted chain lost clusters but still
// exists. Removal from the middle of a chain leaves both its boundaries alone,
// so only the count delta is conclusive.
func (cs *ChangeSet) DecreasedChainSize() bool {
	return cs.ClusterCountDelta < 0 && !cs.Cleared && !cs.RemovedChain()
}

func (cs *ChangeSet) AddedClusters() []int64    { return sortedKeys(cs.added) }
func (cs *ChangeSet) RemovedClusters() []int64  { return sortedKeys(cs.removed) }
func (cs *ChangeSet) ModifiedClusters() []int64 { return sortedKeys(cs.modified) }

// MovedClusters returns the relocations ordered by their source index
func (cs *ChangeSet) MovedClusters() []Move {
	moves := make([]Move, 0, len(cs.moved))
	for _, from := range sortedKeys(cs.moved) {
		moves = append(moves, Move{From: from, To: cs.moved[from]})
	}
	return moves
}

// MovedTo returns the new index of the content previously at from
func (cs *ChangeSet) MovedTo(from int64) (int64, bool) {
	to, ok := cs.moved[from]
	return to, ok
}

// TerminalNewStarts returns a copy of the terminal -> new start map
func (cs *ChangeSet) TerminalNewStarts() map[int64]int64 { return maps.Clone(cs.newStarts) }

// TerminalNewEnds returns a copy of the terminal -> new end map
func (cs *ChangeSet) TerminalNewEnds() map[int64]int64 { return maps.Clone(cs.newEnds) }

func (cs *ChangeSet) NewStartFor(terminal int64) (int64, bool) {
	i, ok := cs.newStarts[terminal]
	return i, ok
}

func (cs *ChangeSet) NewEndFor(terminal int64) (int64, bool) {
	i, ok := cs.newEnds[terminal]
	return i, ok
}

// Terminals returns, in ascending order, every terminal whose chain had its
// start or end changed
func (cs *ChangeSet) Terminals() []int64 {
	set := make(map[int64]struct{}, len(cs.newStarts)+len(cs.newEnds))
	for t := range cs.newStarts {
		set[t] = struct{}{}
	}
	for t := range cs.newEnds {
		set[t] = struct{}{}
	}
	return sortedKeys(set)
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
