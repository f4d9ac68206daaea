package streams

import (
	"github.com/fxamacker/cbor/v2"
)

// tableEntry is the persisted form of a descriptor. Chain locations are not
// persisted, they are recovered by scanning the chains when a container is
// loaded.
type tableEntry struct {
	ID   int64 `cbor:"1,keyasint"`
	Size int64 `cbor:"2,keyasint"`
}

type table struct {
	Version uint16       `cbor:"1,keyasint"`
	NextID  int64        `cbor:"2,keyasint"`
	Streams []tableEntry `cbor:"3,keyasint"`
}

const tableVersion = uint16(0)

var (
	tableEncMode cbor.EncMode
	tableDecMode cbor.DecMode
)

func init() {
	var err error

	// Core deterministic encoding, the same table always produces the same
	// bytes and so the same cluster leaves.
	tableEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("streams: CBOR encoder initialization failed: " + err.Error())
	}
	tableDecMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("streams: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodeTable(t table) ([]byte, error) {
	return tableEncMode.Marshal(t)
}

func decodeTable(b []byte) (table, error) {
	var t table
	if err := tableDecMode.Unmarshal(b, &t); err != nil {
		return table{}, err
	}
	return t, nil
}
