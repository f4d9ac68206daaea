package streams

import (
	"fmt"
	"io"
)

// Stream is a handle on one stream of a Container. Each handle has its own
// position. A handle becomes unusable once its stream is deleted.
type Stream struct {
	c   *Container
	id  int64
	pos int64
}

var (
	_ io.ReadWriteSeeker = (*Stream)(nil)
	_ io.ReaderAt        = (*Stream)(nil)
	_ io.WriterAt        = (*Stream)(nil)
)

func (s *Stream) ID() int64 { return s.id }

// Size returns the current length of the stream in bytes, or -1 if the stream
// has been deleted
func (s *Stream) Size() int64 {
	size, err := s.c.size(s.id)
	if err != nil {
		return -1
	}
	return size
}

func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.c.readAt(s.id, p, s.pos)
	s.pos += int64(n)
	return n, err
}

func (s *Stream) ReadAt(p []byte, off int64) (int, error) {
	return s.c.readAt(s.id, p, off)
}

// Write writes p at the current position, growing the stream as needed
func (s *Stream) Write(p []byte) (int, error) {
	n, err := s.c.writeAt(s.id, p, s.pos)
	s.pos += int64(n)
	return n, err
}

// WriteAt writes p at off. Writing past the end grows the stream, any gap is
// zero filled.
func (s *Stream) WriteAt(p []byte, off int64) (int, error) {
	return s.c.writeAt(s.id, p, off)
}

// Seek sets the position for the next Read or Write. Seeking past the end is
// permitted, the stream only grows when written.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	size, err := s.c.size(s.id)
	if err != nil {
		return 0, err
	}
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = s.pos + offset
	case io.SeekEnd:
		pos = size + offset
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidWhence, whence)
	}
	if pos < 0 {
		return 0, ErrNegativeOffset
	}
	s.pos = pos
	return pos, nil
}

// Truncate changes the size of the stream. The position is not changed.
func (s *Stream) Truncate(size int64) error {
	return s.c.resize(s.id, size)
}

// Descriptor returns the current descriptor of the stream
func (s *Stream) Descriptor() (Descriptor, error) {
	d, ok := s.c.Descriptor(s.id)
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %d", ErrStreamNotFound, s.id)
	}
	return d, nil
}
