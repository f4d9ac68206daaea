// Package keyindex maintains the terminal -> (start, end) lookup table for the
// chains of a clusters.ClusterMap, driven by the map's change sets.
package keyindex

import (
	"maps"
	"slices"

	"github.com/forestrie/go-clustermap/clusters"
)

// Entry locates a chain
type Entry struct {
	Start int64
	End   int64
}

// Index maps the terminal value of each chain to its current start and end
// clusters. It is not safe for concurrent use.
type Index struct {
	entries map[int64]Entry
}

func New() *Index {
	return &Index{entries: map[int64]Entry{}}
}

// Attach subscribes the index to m. Mutations made while m has events
// suppressed are not delivered, call Rebuild or Apply the returned change sets
// afterwards.
func (x *Index) Attach(m *clusters.ClusterMap) {
	m.Subscribe(x.Apply)
}

// Apply brings the index up to date with a single change set
func (x *Index) Apply(cs *clusters.ChangeSet) {
	if cs.Cleared {
		clear(x.entries)
		return
	}
	for terminal, start := range cs.TerminalNewStarts() {
		e, ok := x.entries[terminal]
		if !ok {
			e.End = clusters.NoCluster
		}
		e.Start = start
		x.entries[terminal] = e
	}
	for terminal, end := range cs.TerminalNewEnds() {
		e, ok := x.entries[terminal]
		if !ok {
			e.Start = clusters.NoCluster
		}
		e.End = end
		x.entries[terminal] = e
	}
	for _, terminal := range cs.Terminals() {
		if e := x.entries[terminal]; e.Start == clusters.NoCluster && e.End == clusters.NoCluster {
			delete(x.entries, terminal)
		}
	}
}

// Rebuild discards the index content and rescans every chain of m
func (x *Index) Rebuild(m *clusters.ClusterMap) error {
	chains, err := m.Verify()
	if err != nil {
		return err
	}
	x.Load(chains)
	return nil
}

// Load replaces the index content with the chains reported by
// clusters.ClusterMap.Verify
func (x *Index) Load(chains []clusters.ChainInfo) {
	clear(x.entries)
	for _, c := range chains {
		x.entries[c.Terminal] = Entry{Start: c.Start, End: c.End}
	}
}

func (x *Index) Lookup(terminal int64) (Entry, bool) {
	e, ok := x.entries[terminal]
	return e, ok
}

func (x *Index) Len() int { return len(x.entries) }

// Terminals returns the indexed terminal values in ascending order
func (x *Index) Terminals() []int64 {
	return slices.Sorted(maps.Keys(x.entries))
}

// Equal is true if both indices hold exactly the same entries
func (x *Index) Equal(other *Index) bool {
	return maps.Equal(x.entries, other.entries)
}
