package clusters

import (
	"fmt"
	"io"

	"github.com/datatrails/go-datatrails-common/logger"
)

// Stream is the backing medium of a StreamStore. *os.File and afero.File both
// satisfy it.
type Stream interface {
	io.ReadWriteSeeker
	Truncate(size int64) error
}

// StreamStore persists cluster records on a Stream, starting at a fixed
// offset. Bytes before the offset belong to the caller.
//
// When the header cache is enabled, the (traits, prev, next) of clusters
// read or written are kept in memory. Chain walks are dominated by header reads
// so this saves most of the stream I/O of a removal. The resulting stream
// content is identical with or without the cache.
type StreamStore struct {
	stream       Stream
	offset       int64
	clusterSize  int
	recordSize   int64
	count        int64
	requiresLoad bool
	cache        *headerCache
	log          logger.Logger
	hdr          [RecordHeaderSize]byte
}

// NewStreamStore attaches a store to stream at offset. If the stream already
// holds data past offset, the store requires Load before it can be used.
func NewStreamStore(stream Stream, offset int64, clusterSize int, opts ...StoreOption) (*StreamStore, error) {
	if clusterSize <= 0 {
		return nil, ErrBadClusterSize
	}
	if offset < 0 {
		return nil, ErrBadStreamOffset
	}
	options := StoreOptions{}
	for _, o := range opts {
		o(&options)
	}
	s := &StreamStore{
		stream:      stream,
		offset:      offset,
		clusterSize: clusterSize,
		recordSize:  RecordSize(clusterSize),
		log:         options.Log,
	}
	if options.HeaderCache {
		s.cache = newHeaderCache()
	}
	length, err := stream.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	s.requiresLoad = length > offset
	return s, nil
}

// RequiresLoad returns true until Load has attached the store to the records
// already present on the stream.
func (s *StreamStore) RequiresLoad() bool { return s.requiresLoad }

// Load derives the cluster count from the stream length.
func (s *StreamStore) Load() error {
	if !s.requiresLoad {
		return nil
	}
	length, err := s.stream.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	n := length - s.offset
	if n < 0 {
		n = 0
	}
	if n%s.recordSize != 0 {
		return fmt.Errorf(
			"%w: %d bytes after offset %d, record size %d", ErrStreamLengthMisaligned, n, s.offset, s.recordSize)
	}
	s.count = n / s.recordSize
	s.requiresLoad = false
	if s.cache != nil {
		s.cache.reset()
	}
	if s.log != nil {
		s.log.Infof("loaded %d clusters of size %d from offset %d", s.count, s.clusterSize, s.offset)
	}
	return nil
}

// CacheStats returns the header cache counters. The zero value is returned if
// the cache is disabled.
func (s *StreamStore) CacheStats() CacheStats {
	if s.cache == nil {
		return CacheStats{}
	}
	return s.cache.stats()
}

func (s *StreamStore) CacheEnabled() bool { return s.cache != nil }

func (s *StreamStore) ClusterSize() int { return s.clusterSize }
func (s *StreamStore) Count() int64     { return s.count }

func (s *StreamStore) recordOffset(i int64) int64 {
	return s.offset + i*s.recordSize
}

func (s *StreamStore) readAt(p []byte, off int64) error {
	if _, err := s.stream.Seek(off, io.SeekStart); err != nil {
		return err
	}
	_, err := io.ReadFull(s.stream, p)
	return err
}

func (s *StreamStore) writeAt(p []byte, off int64) error {
	if _, err := s.stream.Seek(off, io.SeekStart); err != nil {
		return err
	}
	n, err := s.stream.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return io.ErrShortWrite
	}
	return nil
}

func (s *StreamStore) check(i int64) error {
	if s.requiresLoad {
		return ErrRequiresLoad
	}
	return checkIndex(i, s.count)
}

func (s *StreamStore) ReadCluster(i int64) (Cluster, error) {
	if err := s.check(i); err != nil {
		return Cluster{}, err
	}
	b := make([]byte, s.recordSize)
	if err := s.readAt(b, s.recordOffset(i)); err != nil {
		return Cluster{}, err
	}
	var c Cluster
	if err := DecodeRecord(&c, b, s.clusterSize); err != nil {
		return Cluster{}, err
	}
	if s.cache != nil {
		s.cache.put(i, c.Header)
	}
	return c, nil
}

func (s *StreamStore) ReadHeader(i int64) (Header, error) {
	if err := s.check(i); err != nil {
		return Header{}, err
	}
	if s.cache != nil {
		if h, ok := s.cache.get(i); ok {
			return h, nil
		}
	}
	if err := s.readAt(s.hdr[:], s.recordOffset(i)); err != nil {
		return Header{}, err
	}
	var h Header
	if err := DecodeHeader(&h, s.hdr[:]); err != nil {
		return Header{}, err
	}
	if s.cache != nil {
		s.cache.put(i, h)
	}
	return h, nil
}

func (s *StreamStore) ReadData(i int64, offset int, p []byte) error {
	if err := s.check(i); err != nil {
		return err
	}
	if err := checkDataRange(s.clusterSize, offset, len(p)); err != nil {
		return err
	}
	return s.readAt(p, s.recordOffset(i)+RecordDataFirstByte+int64(offset))
}

func (s *StreamStore) WriteCluster(i int64, c Cluster) error {
	if err := s.check(i); err != nil {
		return err
	}
	b, err := EncodeRecord(c, s.clusterSize)
	if err != nil {
		return err
	}
	if err := s.writeAt(b, s.recordOffset(i)); err != nil {
		s.evict(i)
		return err
	}
	if s.cache != nil {
		s.cache.put(i, c.Header)
	}
	return nil
}

func (s *StreamStore) WriteTraits(i int64, traits Traits) error {
	if err := s.check(i); err != nil {
		return err
	}
	if !traits.Valid() {
		return ErrInvalidTraits
	}
	if err := s.writeAt([]byte{byte(traits)}, s.recordOffset(i)+RecordTraitsFirstByte); err != nil {
		s.evict(i)
		return err
	}
	if s.cache != nil {
		s.cache.refresh(i, func(h *Header) { h.Traits = traits })
	}
	return nil
}

func (s *StreamStore) WritePrev(i int64, prev int64) error {
	if err := s.check(i); err != nil {
		return err
	}
	var h Header
	h.Prev = prev
	EncodeHeader(s.hdr[:], h)
	if err := s.writeAt(s.hdr[RecordPrevFirstByte:RecordPrevEnd], s.recordOffset(i)+RecordPrevFirstByte); err != nil {
		s.evict(i)
		return err
	}
	if s.cache != nil {
		s.cache.refresh(i, func(h *Header) { h.Prev = prev })
	}
	return nil
}

func (s *StreamStore) WriteNext(i int64, next int64) error {
	if err := s.check(i); err != nil {
		return err
	}
	var h Header
	h.Next = next
	EncodeHeader(s.hdr[:], h)
	if err := s.writeAt(s.hdr[RecordNextFirstByte:RecordNextEnd], s.recordOffset(i)+RecordNextFirstByte); err != nil {
		s.evict(i)
		return err
	}
	if s.cache != nil {
		s.cache.refresh(i, func(h *Header) { h.Next = next })
	}
	return nil
}

func (s *StreamStore) WriteData(i int64, offset int, p []byte) error {
	if err := s.check(i); err != nil {
		return err
	}
	if err := checkDataRange(s.clusterSize, offset, len(p)); err != nil {
		return err
	}
	return s.writeAt(p, s.recordOffset(i)+RecordDataFirstByte+int64(offset))
}

func (s *StreamStore) AppendClusters(clusters ...Cluster) error {
	if s.requiresLoad {
		return ErrRequiresLoad
	}
	if len(clusters) == 0 {
		return nil
	}
	b := make([]byte, int64(len(clusters))*s.recordSize)
	for j, c := range clusters {
		if len(c.Data) != s.clusterSize {
			return ErrDataLengthInvalid
		}
		rec := b[int64(j)*s.recordSize : int64(j+1)*s.recordSize]
		EncodeHeader(rec, c.Header)
		copy(rec[RecordDataFirstByte:], c.Data)
	}
	if err := s.writeAt(b, s.recordOffset(s.count)); err != nil {
		return err
	}
	for j, c := range clusters {
		if s.cache != nil {
			s.cache.put(s.count+int64(j), c.Header)
		}
	}
	s.count += int64(len(clusters))
	return nil
}

func (s *StreamStore) RemoveEndClusters(quantity int64) error {
	if s.requiresLoad {
		return ErrRequiresLoad
	}
	if quantity < 0 || quantity > s.count {
		return ErrIndexOutOfRange
	}
	n := s.count - quantity
	if s.cache != nil {
		s.cache.evictRange(n, s.count)
	}
	if err := s.stream.Truncate(s.recordOffset(n)); err != nil {
		return err
	}
	s.count = n
	return nil
}

func (s *StreamStore) Clear() error {
	if s.cache != nil {
		s.cache.reset()
	}
	if err := s.stream.Truncate(s.offset); err != nil {
		return err
	}
	s.count = 0
	s.requiresLoad = false
	return nil
}

func (s *StreamStore) evict(i int64) {
	if s.cache != nil {
		s.cache.evict(i)
	}
}
