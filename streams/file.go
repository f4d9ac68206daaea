package streams

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/forestrie/go-clustermap/clusters"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

const (
	HeaderMagicFirstByte   = 0
	HeaderMagicSize        = 4
	HeaderMagicEnd         = HeaderMagicFirstByte + HeaderMagicSize
	HeaderVersionFirstByte = HeaderMagicEnd
	HeaderVersionSize      = 2 // 16 bits
	HeaderVersionEnd       = HeaderVersionFirstByte + HeaderVersionSize
	// gap 6 - 7
	HeaderClusterSizeFirstByte = 8
	HeaderClusterSizeSize      = 4 // 32 bits
	HeaderClusterSizeEnd       = HeaderClusterSizeFirstByte + HeaderClusterSizeSize
	// gap 12 - 15
	HeaderContainerIDFirstByte = 16
	HeaderContainerIDSize      = 16
	HeaderContainerIDEnd       = HeaderContainerIDFirstByte + HeaderContainerIDSize
	HeaderMetaSizeFirstByte    = HeaderContainerIDEnd
	HeaderMetaSizeSize         = 8
	HeaderMetaSizeEnd          = HeaderMetaSizeFirstByte + HeaderMetaSizeSize
	HeaderMetaStartFirstByte   = HeaderMetaSizeEnd
	HeaderMetaStartSize        = 8
	HeaderMetaStartEnd         = HeaderMetaStartFirstByte + HeaderMetaStartSize
	HeaderMetaEndFirstByte     = HeaderMetaStartEnd
	HeaderMetaEndSize          = 8
	HeaderMetaEndEnd           = HeaderMetaEndFirstByte + HeaderMetaEndSize
	// gap 56 - 63

	HeaderSize = 64

	HeaderMagic          = "CLMP"
	HeaderCurrentVersion = uint16(0)
)

// FileHeader is the fixed header at the start of a container file
type FileHeader struct {
	Version     uint16
	ClusterSize uint32
	ContainerID uuid.UUID
	Meta        Descriptor
}

func (h FileHeader) Encode() []byte {
	b := make([]byte, HeaderSize)
	copy(b[HeaderMagicFirstByte:HeaderMagicEnd], HeaderMagic)
	binary.BigEndian.PutUint16(b[HeaderVersionFirstByte:HeaderVersionEnd], h.Version)
	binary.BigEndian.PutUint32(b[HeaderClusterSizeFirstByte:HeaderClusterSizeEnd], h.ClusterSize)
	copy(b[HeaderContainerIDFirstByte:HeaderContainerIDEnd], h.ContainerID[:])
	binary.BigEndian.PutUint64(b[HeaderMetaSizeFirstByte:HeaderMetaSizeEnd], uint64(h.Meta.Size))
	binary.BigEndian.PutUint64(b[HeaderMetaStartFirstByte:HeaderMetaStartEnd], uint64(h.Meta.Start))
	binary.BigEndian.PutUint64(b[HeaderMetaEndFirstByte:HeaderMetaEndEnd], uint64(h.Meta.End))
	return b
}

func DecodeFileHeader(h *FileHeader, b []byte) error {
	if len(b) < HeaderSize {
		return ErrHeaderTruncated
	}
	if string(b[HeaderMagicFirstByte:HeaderMagicEnd]) != HeaderMagic {
		return ErrBadMagic
	}
	h.Version = binary.BigEndian.Uint16(b[HeaderVersionFirstByte:HeaderVersionEnd])
	if h.Version != HeaderCurrentVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	h.ClusterSize = binary.BigEndian.Uint32(b[HeaderClusterSizeFirstByte:HeaderClusterSizeEnd])
	copy(h.ContainerID[:], b[HeaderContainerIDFirstByte:HeaderContainerIDEnd])
	h.Meta = Descriptor{
		ID:    MetaStreamID,
		Size:  int64(binary.BigEndian.Uint64(b[HeaderMetaSizeFirstByte:HeaderMetaSizeEnd])),
		Start: int64(binary.BigEndian.Uint64(b[HeaderMetaStartFirstByte:HeaderMetaStartEnd])),
		End:   int64(binary.BigEndian.Uint64(b[HeaderMetaEndFirstByte:HeaderMetaEndEnd])),
	}
	return nil
}

// File is a Container persisted in a single file
type File struct {
	*Container
	f      afero.File
	header FileHeader
}

func storeOptions(options Options) []clusters.StoreOption {
	return []clusters.StoreOption{
		clusters.WithHeaderCache(options.HeaderCache),
		clusters.WithStoreLogger(options.Log),
	}
}

// CreateFile creates a new, empty, container file at path. It is an error if
// path exists.
func CreateFile(fs afero.Fs, path string, clusterSize int, opts ...Option) (*File, error) {
	options := newOptions(opts)
	if clusterSize <= 0 || int64(clusterSize) > int64(^uint32(0)) {
		return nil, clusters.ErrBadClusterSize
	}
	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	cf := &File{
		f: f,
		header: FileHeader{
			Version:     HeaderCurrentVersion,
			ClusterSize: uint32(clusterSize),
			ContainerID: uuid.New(),
			Meta:        Descriptor{ID: MetaStreamID, Start: clusters.NoCluster, End: clusters.NoCluster},
		},
	}
	if _, err := f.WriteAt(cf.header.Encode(), 0); err != nil {
		return nil, errors.Join(err, f.Close())
	}
	store, err := clusters.NewStreamStore(f, HeaderSize, clusterSize, storeOptions(options)...)
	if err != nil {
		return nil, errors.Join(err, f.Close())
	}
	m := clusters.NewClusterMap(store, clusters.WithLogger(options.Log))
	if cf.Container, err = NewContainer(m, opts...); err != nil {
		return nil, errors.Join(err, f.Close())
	}
	if options.Log != nil {
		options.Log.Infof("created container %s at %s, cluster size %d", cf.header.ContainerID, path, clusterSize)
	}
	return cf, nil
}

// OpenFile opens an existing container file
func OpenFile(fs afero.Fs, path string, opts ...Option) (*File, error) {
	options := newOptions(opts)
	f, err := fs.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	cf, err := openFile(f, options, opts)
	if err != nil {
		return nil, errors.Join(err, f.Close())
	}
	if options.Log != nil {
		options.Log.Infof("opened container %s at %s", cf.header.ContainerID, path)
	}
	return cf, nil
}

func openFile(f afero.File, options Options, opts []Option) (*File, error) {
	b := make([]byte, HeaderSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, 0, HeaderSize), b); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrHeaderTruncated
		}
		return nil, err
	}
	cf := &File{f: f}
	if err := DecodeFileHeader(&cf.header, b); err != nil {
		return nil, err
	}
	store, err := clusters.NewStreamStore(f, HeaderSize, int(cf.header.ClusterSize), storeOptions(options)...)
	if err != nil {
		return nil, err
	}
	m := clusters.NewClusterMap(store, clusters.WithLogger(options.Log))
	if cf.Container, err = LoadContainer(m, cf.header.Meta.Size, opts...); err != nil {
		return nil, err
	}
	if d, _ := cf.Descriptor(MetaStreamID); d != cf.header.Meta {
		return nil, fmt.Errorf("%w: metadata stream at %d-%d, header records %d-%d",
			ErrDescriptorMismatch, d.Start, d.End, cf.header.Meta.Start, cf.header.Meta.End)
	}
	return cf, nil
}

func (cf *File) ContainerID() uuid.UUID { return cf.header.ContainerID }

func (cf *File) Header() FileHeader { return cf.header }

// Flush writes the descriptor table and then the file header
func (cf *File) Flush() error {
	meta, err := cf.Container.Flush()
	if err != nil {
		return err
	}
	cf.header.Meta = meta
	if _, err := cf.f.WriteAt(cf.header.Encode(), 0); err != nil {
		return err
	}
	return cf.f.Sync()
}

// Close flushes and closes the file
func (cf *File) Close() error {
	return errors.Join(cf.Flush(), cf.f.Close())
}
