package streams

import "errors"

var (
	ErrStreamNotFound     = errors.New("stream not found")
	ErrReservedStream     = errors.New("the stream id is reserved")
	ErrNegativeOffset     = errors.New("negative stream offset")
	ErrInvalidWhence      = errors.New("invalid seek whence")
	ErrBadMagic           = errors.New("container header magic is not recognised")
	ErrUnsupportedVersion = errors.New("container header version is not supported")
	ErrHeaderTruncated    = errors.New("container header is truncated")
	ErrDescriptorMismatch = errors.New("descriptor table does not agree with the cluster chains")
)
