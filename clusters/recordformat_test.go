package clusters

import (
	"testing"

	"github.com/forestrie/go-clustermap/clustertesting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/golden"
)

func TestRecordLayout(t *testing.T) {
	assert.Equal(t, 17, RecordHeaderSize)
	assert.Equal(t, int64(17+32), RecordSize(32))
	assert.Equal(t, int64(3*(17+32)), RecordOffset(32, 3))
}

func TestEncodeDecodeRecord(t *testing.T) {
	c := Cluster{
		Header: Header{Traits: TraitStart, Prev: -5, Next: 1 << 40},
		Data:   []byte{1, 2, 3, 4},
	}
	b, err := EncodeRecord(c, 4)
	require.NoError(t, err)
	require.Len(t, b, 21)
	assert.Equal(t, byte(TraitStart), b[0])
	assert.Equal(t, []byte{0xfb, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, b[RecordPrevFirstByte:RecordPrevEnd])
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 1, 0, 0}, b[RecordNextFirstByte:RecordNextEnd])

	var got Cluster
	require.NoError(t, DecodeRecord(&got, b, 4))
	assert.Equal(t, c, got)

	_, err = EncodeRecord(c, 5)
	assert.ErrorIs(t, err, ErrDataLengthInvalid)
	assert.ErrorIs(t, DecodeRecord(&got, b[:20], 4), ErrBadRecordSize)
	assert.Equal(t, "too few bytes to represent a cluster record", ErrBadRecordSize.Error())
	b[0] = 0x80
	assert.ErrorIs(t, DecodeRecord(&got, b, 4), ErrInvalidTraits)
}

// TestStreamRecordsGolden pins the on stream layout of a two cluster chain
// with terminal 7 and "ab" written to the start of its first payload.
func TestStreamRecordsGolden(t *testing.T) {
	for _, cache := range []bool{false, true} {
		tc := clustertesting.NewTestContext(t, clustertesting.TestConfig{})
		f := tc.CreateFile("golden.clusters")
		store, err := NewStreamStore(f, 0, 4, WithHeaderCache(cache))
		require.NoError(t, err)
		m := NewClusterMap(store)

		_, _, _, err = m.NewClusterChain(2, 7)
		require.NoError(t, err)
		require.NoError(t, m.WriteData(0, 0, []byte("ab")))

		golden.AssertBytes(t, tc.ReadFile("golden.clusters"), "twoclusterchain.golden")
	}
}
