package clusters

import (
	"fmt"
)

// WalkChain calls fn for every cluster of the chain beginning at start, in
// order, until fn returns false or the end of the chain is reached.
func (m *ClusterMap) WalkChain(start int64, fn func(i int64, h Header) bool) error {
	if err := m.checkLoaded(); err != nil {
		return err
	}
	if err := m.checkIndex(start); err != nil {
		return err
	}
	count := m.store.Count()
	h, err := m.store.ReadHeader(start)
	if err != nil {
		return err
	}
	if !h.IsStart() {
		return fmt.Errorf("%w: cluster %d is not the start of a chain", ErrChainCorrupt, start)
	}
	i := start
	for n := int64(1); ; n++ {
		if !fn(i, h) || h.IsEnd() {
			return nil
		}
		if n >= count {
			return fmt.Errorf("%w: chain from %d does not end", ErrChainCorrupt, start)
		}
		next := h.Next
		if checkIndex(next, count) != nil {
			return fmt.Errorf("%w: cluster %d links forward to %d", ErrChainCorrupt, i, next)
		}
		if h, err = m.store.ReadHeader(next); err != nil {
			return err
		}
		if h.IsStart() || h.Prev != i {
			return fmt.Errorf("%w: cluster %d does not link back to %d", ErrChainCorrupt, next, i)
		}
		i = next
	}
}

// ChainInfo summarises a chain found by Verify
type ChainInfo struct {
	Terminal int64
	Start    int64
	End      int64
	Length   int64
}

// Verify scans the whole map and checks that every cluster belongs to exactly
// one well formed chain: start and end carry the same terminal, interior links
// agree in both directions and nothing refers past ClusterCount. The chains are
// returned ordered by their start index.
func (m *ClusterMap) Verify() ([]ChainInfo, error) {
	if err := m.checkLoaded(); err != nil {
		return nil, err
	}
	count := m.store.Count()
	visited := make([]bool, count)
	var chains []ChainInfo

	for i := int64(0); i < count; i++ {
		h, err := m.store.ReadHeader(i)
		if err != nil {
			return nil, err
		}
		if !h.IsStart() {
			continue
		}
		info := ChainInfo{Terminal: h.Prev, Start: i, End: NoCluster}
		var endHeader Header
		err = m.WalkChain(i, func(j int64, hj Header) bool {
			if visited[j] {
				return false
			}
			visited[j] = true
			info.Length++
			info.End = j
			endHeader = hj
			return true
		})
		if err != nil {
			return nil, err
		}
		if !endHeader.IsEnd() {
			return nil, fmt.Errorf("%w: chain from %d shares cluster after %d", ErrChainCorrupt, i, info.End)
		}
		if endHeader.Next != info.Terminal {
			return nil, fmt.Errorf(
				"%w: chain from %d has start terminal %d and end terminal %d",
				ErrChainCorrupt, i, info.Terminal, endHeader.Next)
		}
		chains = append(chains, info)
	}
	for i, seen := range visited {
		if !seen {
			return nil, fmt.Errorf("%w: cluster %d is not reachable from any chain start", ErrChainCorrupt, i)
		}
	}
	return chains, nil
}
