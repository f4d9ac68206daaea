package clusters

import (
	"github.com/datatrails/go-datatrails-common/logger"
)

// Options configures a ClusterMap
type Options struct {
	Log            logger.Logger
	SuppressEvents bool
}

type Option func(*Options)

// WithLogger sets the logger used to report structural mutations at debug level
func WithLogger(log logger.Logger) Option {
	return func(o *Options) {
		o.Log = log
	}
}

// WithEventsSuppressed creates the map with change tracking suppressed, as is
// appropriate for a bulk load. See ClusterMap.SetSuppressEvents
func WithEventsSuppressed() Option {
	return func(o *Options) {
		o.SuppressEvents = true
	}
}

// StoreOptions configures a StreamStore
type StoreOptions struct {
	Log logger.Logger
	// HeaderCache enables caching of cluster headers. Payloads are never cached
	HeaderCache bool
}

type StoreOption func(*StoreOptions)

func WithHeaderCache(enabled bool) StoreOption {
	return func(o *StoreOptions) {
		o.HeaderCache = enabled
	}
}

func WithStoreLogger(log logger.Logger) StoreOption {
	return func(o *StoreOptions) {
		o.Log = log
	}
}
