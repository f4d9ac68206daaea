package clusters

import (
	"slices"
	"strings"
	"testing"

	"github.com/forestrie/go-clustermap/clustertesting"
	"github.com/stretchr/testify/require"
)

type mapFactory struct {
	name string
	new  func(t *testing.T, tc *clustertesting.TestContext, clusterSize int) *ClusterMap
}

func newStreamMap(t *testing.T, tc *clustertesting.TestContext, clusterSize int, cache bool) *ClusterMap {
	f := tc.CreateFile(strings.ReplaceAll(t.Name(), "/", "_") + ".clusters")
	store, err := NewStreamStore(f, 0, clusterSize, WithHeaderCache(cache), WithStoreLogger(tc.Log))
	require.NoError(t, err)
	return NewClusterMap(store, WithLogger(tc.Log))
}

func mapFactories() []mapFactory {
	return []mapFactory{
		{"memory", func(t *testing.T, tc *clustertesting.TestContext, clusterSize int) *ClusterMap {
			m, err := NewMemoryClusterMap(clusterSize, WithLogger(tc.Log))
			require.NoError(t, err)
			return m
		}},
		{"stream", func(t *testing.T, tc *clustertesting.TestContext, clusterSize int) *ClusterMap {
			return newStreamMap(t, tc, clusterSize, false)
		}},
		{"stream-cached", func(t *testing.T, tc *clustertesting.TestContext, clusterSize int) *ClusterMap {
			return newStreamMap(t, tc, clusterSize, true)
		}},
	}
}

// harness drives a ClusterMap and an independent model of the chain contents
// keyed by terminal. The start and end of every chain are maintained only from
// the change sets, as a chain owner would.
type harness struct {
	t            *testing.T
	tc           *clustertesting.TestContext
	m            *ClusterMap
	model        map[int64][][]byte
	starts       map[int64]int64
	ends         map[int64]int64
	nextTerminal int64
}

func newHarness(t *testing.T, tc *clustertesting.TestContext, m *ClusterMap) *harness {
	return &harness{
		t:            t,
		tc:           tc,
		m:            m,
		model:        map[int64][][]byte{},
		starts:       map[int64]int64{},
		ends:         map[int64]int64{},
		nextTerminal: 1000,
	}
}

func (h *harness) apply(cs *ChangeSet) {
	for terminal, i := range cs.TerminalNewStarts() {
		if i == NoCluster {
			delete(h.starts, terminal)
			continue
		}
		h.starts[terminal] = i
	}
	for terminal, i := range cs.TerminalNewEnds() {
		if i == NoCluster {
			delete(h.ends, terminal)
			continue
		}
		h.ends[terminal] = i
	}
}

func (h *harness) chainIndices(start int64) []int64 {
	var indices []int64
	err := h.m.WalkChain(start, func(i int64, _ Header) bool {
		indices = append(indices, i)
		return true
	})
	require.NoError(h.t, err)
	return indices
}

func (h *harness) chainData(start int64) [][]byte {
	var data [][]byte
	for _, i := range h.chainIndices(start) {
		b := make([]byte, h.m.ClusterSize())
		require.NoError(h.t, h.m.ReadData(i, 0, b))
		data = append(data, b)
	}
	return data
}

// newChain creates a chain of n clusters filled with random payloads
func (h *harness) newChain(n int64) int64 {
	terminal := h.nextTerminal
	h.nextTerminal++
	start, end, cs, err := h.m.NewClusterChain(n, terminal)
	require.NoError(h.t, err)
	h.apply(cs)
	require.Equal(h.t, start, h.starts[terminal])
	require.Equal(h.t, end, h.ends[terminal])

	var payloads [][]byte
	for _, i := range h.chainIndices(start) {
		p := h.tc.RandomBytes(h.m.ClusterSize())
		require.NoError(h.t, h.m.WriteData(i, 0, p))
		payloads = append(payloads, p)
	}
	h.model[terminal] = payloads
	return terminal
}

func (h *harness) clusterAt(terminal int64, pos int) int64 {
	indices := h.chainIndices(h.starts[terminal])
	require.Less(h.t, pos, len(indices))
	return indices[pos]
}

func (h *harness) append(terminal int64, k int64) {
	newEnd, cs, err := h.m.AppendClustersToEnd(h.ends[terminal], k)
	require.NoError(h.t, err)
	h.apply(cs)
	require.Equal(h.t, newEnd, h.ends[terminal])
	for j := int64(0); j < k; j++ {
		h.model[terminal] = append(h.model[terminal], make([]byte, h.m.ClusterSize()))
	}
}

func (h *harness) checkMoves(cs *ChangeSet) {
	if !cs.TracksClusters() {
		return
	}
	seen := map[int64]int64{}
	for _, mv := range cs.MovedClusters() {
		require.Less(h.t, mv.To, h.m.ClusterCount(), "move destination past the tip")
		prior, dup := seen[mv.To]
		require.False(h.t, dup, "moves %d and %d share destination %d", prior, mv.From, mv.To)
		seen[mv.To] = mv.From
	}
}

func (h *harness) removeBackwards(terminal int64, pos int, q int64) {
	from := h.clusterAt(terminal, pos)
	countBefore := h.m.ClusterCount()
	removed, cs, err := h.m.RemoveBackwards(from, q)
	require.NoError(h.t, err)
	h.apply(cs)

	want := min(q, int64(pos+1))
	require.Equal(h.t, want, removed)
	require.Equal(h.t, countBefore-removed, h.m.ClusterCount())
	require.Equal(h.t, -removed, cs.ClusterCountDelta)
	h.checkMoves(cs)

	payloads := h.model[terminal]
	kept := append(append([][]byte{}, payloads[:int64(pos+1)-removed]...), payloads[pos+1:]...)
	if len(kept) == 0 {
		require.True(h.t, cs.RemovedChain())
		delete(h.model, terminal)
		return
	}
	require.False(h.t, cs.RemovedChain())
	require.True(h.t, cs.DecreasedChainSize())
	h.model[terminal] = kept
}

func (h *harness) removeNext(terminal int64, pos int, q int64) {
	from := h.clusterAt(terminal, pos)
	removed, cs, err := h.m.RemoveNextClusters(from, q)
	require.NoError(h.t, err)
	h.apply(cs)
	h.checkMoves(cs)

	payloads := h.model[terminal]
	want := min(q, int64(len(payloads)-pos))
	require.Equal(h.t, want, removed)
	kept := append(append([][]byte{}, payloads[:pos]...), payloads[int64(pos)+removed:]...)
	if len(kept) == 0 {
		delete(h.model, terminal)
		return
	}
	h.model[terminal] = kept
}

// check verifies the map and compares every chain with the model
func (h *harness) check() {
	chains, err := h.m.Verify()
	require.NoError(h.t, err)
	require.Len(h.t, chains, len(h.model))
	require.Len(h.t, h.starts, len(h.model))
	require.Len(h.t, h.ends, len(h.model))
	var total int64
	for _, c := range chains {
		require.Equal(h.t, h.starts[c.Terminal], c.Start, "start of %d", c.Terminal)
		require.Equal(h.t, h.ends[c.Terminal], c.End, "end of %d", c.Terminal)
		require.Equal(h.t, h.model[c.Terminal], h.chainData(c.Start), "content of %d", c.Terminal)
		total += c.Length
	}
	require.Equal(h.t, h.m.ClusterCount(), total)
}

func (h *harness) terminals() []int64 {
	terminals := make([]int64, 0, len(h.model))
	for t := range h.model {
		terminals = append(terminals, t)
	}
	slices.Sort(terminals)
	return terminals
}

// randomOp applies one randomly chosen operation
func (h *harness) randomOp() {
	rng := h.tc.Rand
	terminals := h.terminals()
	if len(terminals) == 0 || rng.Intn(5) == 0 {
		h.newChain(int64(1 + rng.Intn(6)))
		return
	}
	terminal := terminals[rng.Intn(len(terminals))]
	length := len(h.model[terminal])
	switch rng.Intn(3) {
	case 0:
		h.append(terminal, int64(1+rng.Intn(4)))
	case 1:
		h.removeBackwards(terminal, rng.Intn(length), int64(1+rng.Intn(length+1)))
	case 2:
		q := int64(1 + rng.Intn(length+1))
		if rng.Intn(4) == 0 {
			q = Unbounded
		}
		h.removeNext(terminal, rng.Intn(length), q)
	}
}
