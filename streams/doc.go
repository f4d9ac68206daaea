/*
Package streams layers named, variable length byte streams over a
clusters.ClusterMap.

Every stream owns at most one chain, and the chain's terminal value is the
stream ID. An empty stream owns no clusters. The location of each chain is
tracked by a keyindex.Index kept current from the map's change sets, so the
descriptor table only needs to record each stream's ID and byte size.

The descriptor table is itself stored, CBOR encoded, in the reserved stream
MetaStreamID. A file container adds a fixed 64 byte header in front of the
cluster records, recording the cluster size, the container identity and the
location of the metadata stream.

	| magic | version | res | cluster size | res | container uuid | meta size | meta start | meta end | res |
	| 0   3 | 4     5 | 6 7 | 8         11 |12 15| 16          31 | 32     39 | 40      47 | 48    55 |56 63|

All multi byte header fields are big endian. The cluster records begin at
offset HeaderSize.
*/
package streams
