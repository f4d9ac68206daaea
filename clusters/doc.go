/*
Package clusters multiplexes many independent, variable length, byte chains onto
a single growable backing medium.

The medium is divided into fixed size clusters. Each cluster carries a small
header (traits, prev, next) followed by ClusterSize bytes of payload. Clusters
are linked into chains. The first cluster of a chain carries TraitStart and its
Prev field does not reference a cluster, it holds the chain's terminal value.
Symmetrically the last cluster carries TraitEnd and its Next field holds the
same terminal value. The terminal value is an opaque key belonging to the owner
of the chain (typically a stream id) and is never interpreted here.

# Density

The cluster collection is always dense: the valid indices are exactly
[0, ClusterCount). This lets the collection be stored as a flat array of fixed
width records, where the byte offset of any cluster is a simple product.

Removing a cluster from the middle of the array would leave a hole, and shifting
everything above it down would be O(n). Instead removal uses tip substitution:

	before:  0 1 2 3 4 5 6 7      remove 2 and 4 (chain x)
	         a b X c X d e f
	after:   0 1 2 3 4 5
	         a b f c e d          f (was 7) moved to 2, e (was 6) moved to 4

The clusters occupying the highest indices (the tip) are migrated into the freed
slots, whatever chain they belong to, and the array is truncated. The neighbours
of a migrated cluster are re-pointed at its new index. When a migrated cluster is
the start or end of its chain, the owner of that chain is told the new position
keyed by the chain's terminal value.

# Change sets

Every mutating call produces a ChangeSet describing the structural effect: the
net count delta, the added, removed and modified indices, an injective map of
old to new index for migrated clusters, and the new start or end of every chain
whose boundary moved. Dependent structures (lookup tables, merkle leaf caches)
apply the change set rather than rescanning the whole map.

A ClusterMap is not safe for concurrent use.
*/
package clusters
