package streams

import (
	"github.com/datatrails/go-datatrails-common/logger"
)

type Options struct {
	Log logger.Logger
	// HeaderCache enables the cluster header cache of file containers
	HeaderCache bool
	// LeafIndex maintains a Merkle leaf per cluster, see Container.Root
	LeafIndex bool
}

type Option func(*Options)

func WithLogger(log logger.Logger) Option {
	return func(o *Options) {
		o.Log = log
	}
}

func WithHeaderCache() Option {
	return func(o *Options) {
		o.HeaderCache = true
	}
}

func WithLeafIndex() Option {
	return func(o *Options) {
		o.LeafIndex = true
	}
}

func newOptions(opts []Option) Options {
	options := Options{}
	for _, o := range opts {
		o(&options)
	}
	return options
}
