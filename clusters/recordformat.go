package clusters

import (
	"encoding/binary"
)

// Every cluster is persisted as a fixed width record. Records are packed with
// no padding, so the offset of cluster i is simply i * RecordSize(clusterSize).
//
// .         | traits | prev            | next            | data             |
// .         | 0      | 1             8 | 9            16 | 17 ..            |
// bytes     | 1      |     8 (LE, i64) |     8 (LE, i64) | ClusterSize      |
const (
	RecordTraitsFirstByte = 0
	RecordTraitsSize      = 1
	RecordTraitsEnd       = RecordTraitsFirstByte + RecordTraitsSize
	RecordPrevFirstByte   = RecordTraitsEnd
	RecordPrevSize        = 8 // 64 bits
	RecordPrevEnd         = RecordPrevFirstByte + RecordPrevSize
	RecordNextFirstByte   = RecordPrevEnd
	RecordNextSize        = 8 // 64 bits
	RecordNextEnd         = RecordNextFirstByte + RecordNextSize
	RecordDataFirstByte   = RecordNextEnd

	RecordHeaderSize = RecordDataFirstByte
)

// RecordSize returns the number of bytes occupied by one cluster record
func RecordSize(clusterSize int) int64 {
	return int64(RecordHeaderSize + clusterSize)
}

// RecordOffset returns the offset, relative to the start of the record area,
// of the record for cluster index i
func RecordOffset(clusterSize int, i int64) int64 {
	return i * RecordSize(clusterSize)
}

// EncodeHeader writes the header fields into the first RecordHeaderSize bytes
// of b. No range checks are performed, a short b will panic.
func EncodeHeader(b []byte, h Header) {
	b[RecordTraitsFirstByte] = byte(h.Traits)
	binary.LittleEndian.PutUint64(b[RecordPrevFirstByte:RecordPrevEnd], uint64(h.Prev))
	binary.LittleEndian.PutUint64(b[RecordNextFirstByte:RecordNextEnd], uint64(h.Next))
}

func DecodeHeader(h *Header, b []byte) error {
	if len(b) < RecordHeaderSize {
		return ErrBadRecordSize
	}
	traits := Traits(b[RecordTraitsFirstByte])
	if !traits.Valid() {
		return ErrInvalidTraits
	}
	h.Traits = traits
	h.Prev = int64(binary.LittleEndian.Uint64(b[RecordPrevFirstByte:RecordPrevEnd]))
	h.Next = int64(binary.LittleEndian.Uint64(b[RecordNextFirstByte:RecordNextEnd]))
	return nil
}

// EncodeRecord returns the complete record for c
func EncodeRecord(c Cluster, clusterSize int) ([]byte, error) {
	if len(c.Data) != clusterSize {
		return nil, ErrDataLengthInvalid
	}
	b := make([]byte, RecordSize(clusterSize))
	EncodeHeader(b, c.Header)
	copy(b[RecordDataFirstByte:], c.Data)
	return b, nil
}

// DecodeRecord decodes a complete record. The returned cluster's Data does not
// alias b.
func DecodeRecord(c *Cluster, b []byte, clusterSize int) error {
	if int64(len(b)) < RecordSize(clusterSize) {
		return ErrBadRecordSize
	}
	if err := DecodeHeader(&c.Header, b); err != nil {
		return err
	}
	c.Data = make([]byte, clusterSize)
	copy(c.Data, b[RecordDataFirstByte:RecordDataFirstByte+clusterSize])
	return nil
}
