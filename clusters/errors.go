package clusters

import "errors"

var (
	ErrIndexOutOfRange   = errors.New("cluster index out of range")
	ErrInvalidQuantity   = errors.New("cluster quantity must be positive")
	ErrNotChainEnd       = errors.New("the cluster is not the end of its chain")
	ErrChainCorrupt      = errors.New("the cluster chain is inconsistent")
	ErrInvalidTraits     = errors.New("the cluster traits are not valid")
	ErrBadClusterSize    = errors.New("cluster size must be positive")
	ErrDataLengthInvalid = errors.New("the cluster data length does not match the cluster size")
	ErrDataRange         = errors.New("the data range exceeds the cluster payload")
	ErrBadRecordSize     = errors.New("too few bytes to represent a cluster record")
)

var (
	ErrRequiresLoad           = errors.New("the stream store must be loaded before use")
	ErrStreamLengthMisaligned = errors.New("the stream length is not a whole number of cluster records")
	ErrBadStreamOffset        = errors.New("the stream offset must not be negative")
)
