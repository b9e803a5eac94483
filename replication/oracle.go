// Package replication exposes the token-to-replica mapping the repair
// core consumes but never computes itself. Token arithmetic and live
// replica lookup are owned elsewhere (see spec §1 Non-goals); this
// package only defines the contract and a deterministic fingerprint
// of whatever mapping a concrete oracle returns.
package replication

import (
	"encoding/binary"
	"hash/fnv"
	"sort"

	"github.com/coredb/repaird/token"
)

// Oracle is read-only to the scheduler and may be recomputed on
// demand; callers must not assume two calls return the same value,
// only that a change in the returned data always changes the hash.
type Oracle interface {
	// LocalRanges returns the token ranges this host replicates for
	// the given table.
	LocalRanges(table token.TableReference) ([]token.TokenRange, error)

	// ReplicasOf returns the replica set owning the given range for
	// the given table.
	ReplicasOf(table token.TableReference, r token.TokenRange) ([]token.NodeId, error)

	// TokenMapHash fingerprints the full token->replicas mapping for
	// the table. It changes if and only if the mapping changes in a
	// way that affects correctness (ring membership, ownership).
	TokenMapHash(table token.TableReference) (int64, error)

	// TableExists reports whether the keyspace/table is present in
	// the live schema, used by scheduleJob's validation step.
	TableExists(keyspace, table string) (bool, error)

	// VnodeStates returns the current VnodeState for every range this
	// host replicates for the table, used to build reporting views.
	VnodeStates(table token.TableReference) ([]token.VnodeState, error)
}

// HashMapping computes the deterministic fingerprint used by
// TokenMapHash implementations: an FNV-1a hash over the sorted
// (range, sorted replica ids) pairs, so insertion order never affects
// the result and any membership/ownership change flips it.
func HashMapping(ranges map[token.TokenRange][]token.NodeId) int64 {
	type entry struct {
		r        token.TokenRange
		replicas []string
	}
	entries := make([]entry, 0, len(ranges))
	for r, replicas := range ranges {
		ids := make([]string, len(replicas))
		for i, n := range replicas {
			ids[i] = n.String()
		}
		sort.Strings(ids)
		entries = append(entries, entry{r: r, replicas: ids})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].r.Start != entries[j].r.Start {
			return entries[i].r.Start < entries[j].r.Start
		}
		return entries[i].r.End < entries[j].r.End
	})

	h := fnv.New64a()
	var buf [8]byte
	for _, e := range entries {
		binary.LittleEndian.PutUint64(buf[:], uint64(e.r.Start))
		_, _ = h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(e.r.End))
		_, _ = h.Write(buf[:])
		for _, id := range e.replicas {
			_, _ = h.Write([]byte(id))
		}
	}
	return int64(h.Sum64())
}
