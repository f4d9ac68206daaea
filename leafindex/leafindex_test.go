package leafindex

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/forestrie/go-clustermap/clusters"
	"github.com/forestrie/go-clustermap/clustertesting"
	"github.com/forestrie/go-clustermap/keyindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStreamMap(t *testing.T, tc *clustertesting.TestContext, clusterSize int) *clusters.ClusterMap {
	f := tc.CreateFile("leaves.clusters")
	store, err := clusters.NewStreamStore(f, 0, clusterSize, clusters.WithHeaderCache(true))
	require.NoError(t, err)
	return clusters.NewClusterMap(store, clusters.WithLogger(tc.Log))
}

// randomOp applies a random chain operation, or a random payload write, to m
func randomOp(t *testing.T, tc *clustertesting.TestContext, m *clusters.ClusterMap, keys *keyindex.Index, next *int64) {
	rng := tc.Rand
	terminals := keys.Terminals()
	if len(terminals) == 0 || rng.Intn(5) == 0 {
		*next++
		_, _, _, err := m.NewClusterChain(int64(1+rng.Intn(5)), *next)
		require.NoError(t, err)
		return
	}
	e, _ := keys.Lookup(terminals[rng.Intn(len(terminals))])
	var err error
	switch rng.Intn(4) {
	case 0:
		_, _, err = m.AppendClustersToEnd(e.End, int64(1+rng.Intn(3)))
	case 1:
		_, _, err = m.RemoveBackwards(e.End, int64(1+rng.Intn(3)))
	case 2:
		_, _, err = m.RemoveNextClusters(e.Start, int64(1+rng.Intn(3)))
	default:
		i := int64(rng.Intn(int(m.ClusterCount())))
		err = m.WriteData(i, 0, tc.RandomBytes(m.ClusterSize()))
	}
	require.NoError(t, err)
}

func TestIndex_incrementalMatchesRebuild(t *testing.T) {
	tc := clustertesting.NewTestContext(t, clustertesting.TestConfig{Seed: 2024})
	m := newStreamMap(t, &tc, 6)

	keys := keyindex.New()
	keys.Attach(m)
	leaves := New(m, WithLogger(tc.Log))
	leaves.Attach()

	var next int64
	for i := 0; i < 300; i++ {
		randomOp(t, &tc, m, keys, &next)
		require.False(t, leaves.Stale())
		require.Equal(t, int(m.ClusterCount()), leaves.Len())

		if i%10 != 0 {
			continue
		}
		rebuilt := New(m)
		require.NoError(t, rebuilt.Rebuild())
		require.Equal(t, rebuilt.leaves, leaves.leaves, "op %d", i)

		want, err := rebuilt.Root()
		require.NoError(t, err)
		got, err := leaves.Root()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestIndex_suppressedEventsRequireRebuild(t *testing.T) {
	m, err := clusters.NewMemoryClusterMap(4)
	require.NoError(t, err)
	leaves := New(m)
	leaves.Attach()

	_, _, _, err = m.NewClusterChain(3, 1)
	require.NoError(t, err)

	m.SetSuppressEvents(true)
	_, _, cs, err := m.NewClusterChain(2, 2)
	require.NoError(t, err)
	m.SetSuppressEvents(false)

	// the listener was not called, applying the untracked change set by hand
	// can not bring the leaves up to date
	assert.ErrorIs(t, leaves.Apply(cs), ErrRebuildRequired)
	assert.True(t, leaves.Stale())
	_, err = leaves.Root()
	assert.ErrorIs(t, err, ErrRebuildRequired)

	require.NoError(t, leaves.Rebuild())
	assert.False(t, leaves.Stale())
	assert.Equal(t, 5, leaves.Len())
	_, err = leaves.Leaf(4)
	require.NoError(t, err)
	_, err = leaves.Leaf(5)
	assert.ErrorIs(t, err, clusters.ErrIndexOutOfRange)
}

func TestIndex_root(t *testing.T) {
	m, err := clusters.NewMemoryClusterMap(4)
	require.NoError(t, err)
	leaves := New(m)
	leaves.Attach()

	root, err := leaves.Root()
	require.NoError(t, err)
	assert.Nil(t, root)

	_, _, _, err = m.NewClusterChain(1, 9)
	require.NoError(t, err)
	l0, err := leaves.Leaf(0)
	require.NoError(t, err)
	root, err = leaves.Root()
	require.NoError(t, err)
	assert.Equal(t, l0, root, "a single leaf is its own root")

	_, _, err = m.AppendClustersToEnd(0, 1)
	require.NoError(t, err)
	l0, err = leaves.Leaf(0)
	require.NoError(t, err)
	l1, err := leaves.Leaf(1)
	require.NoError(t, err)

	// interior nodes commit to their one based position
	h := sha256.New()
	var pos [8]byte
	binary.BigEndian.PutUint64(pos[:], 3)
	h.Write(pos[:])
	h.Write(l0)
	h.Write(l1)
	root, err = leaves.Root()
	require.NoError(t, err)
	assert.Equal(t, h.Sum(nil), root)

	_, err = m.Clear()
	require.NoError(t, err)
	assert.Equal(t, 0, leaves.Len())
}

func TestLeafHash(t *testing.T) {
	c := clusters.Cluster{
		Header: clusters.Header{Traits: clusters.TraitStart | clusters.TraitEnd, Prev: 3, Next: 3},
		Data:   []byte("abcd"),
	}
	b, err := clusters.EncodeRecord(c, 4)
	require.NoError(t, err)
	want := sha256.Sum256(b)
	got, err := LeafHash(c, 4)
	require.NoError(t, err)
	assert.Equal(t, want[:], got)

	_, err = LeafHash(c, 5)
	assert.ErrorIs(t, err, clusters.ErrDataLengthInvalid)
}
