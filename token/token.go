// Package token defines the identifiers and value types the repair
// core operates over: tables, token ranges, nodes, and the per-range
// replication state used to build repair jobs.
package token

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// TableReference identifies a replicated table. Equality is by Id,
// not by name, since a table can be dropped and recreated with the
// same keyspace/name but a different id.
type TableReference struct {
	Keyspace string
	Table    string
	Id       uuid.UUID
}

func (t TableReference) Equal(o TableReference) bool {
	return t.Id == o.Id
}

func (t TableReference) String() string {
	return fmt.Sprintf("%s.%s", t.Keyspace, t.Table)
}

// NodeId is the opaque, stable identity of a database node.
type NodeId uuid.UUID

func NewNodeId() NodeId {
	return NodeId(uuid.New())
}

func (n NodeId) String() string {
	return uuid.UUID(n).String()
}

// MarshalJSON renders a NodeId the way the REST layer's JSON contract
// expects: a plain UUID string, not the underlying [16]byte array.
func (n NodeId) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.String())
}

func (n *NodeId) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	*n = NodeId(id)
	return nil
}

// JobId is chosen by the daemon that creates a repair job.
type JobId uuid.UUID

func NewJobId() JobId {
	return JobId(uuid.New())
}

func (j JobId) String() string {
	return uuid.UUID(j).String()
}

// MarshalJSON renders a JobId as a plain UUID string, matching §6's
// reporting-view JSON shape.
func (j JobId) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.String())
}

func (j *JobId) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	*j = JobId(id)
	return nil
}

// TokenRange is a half-open interval (Start, End] on the signed
// 64-bit partition ring. A range may wrap (End < Start).
type TokenRange struct {
	Start int64
	End   int64
}

// Equal compares ranges by their exact endpoints, per spec: two
// ranges are equal iff start and end match exactly.
func (r TokenRange) Equal(o TokenRange) bool {
	return r.Start == o.Start && r.End == o.End
}

func (r TokenRange) String() string {
	return fmt.Sprintf("(%d,%d]", r.Start, r.End)
}

// RangeSet is an unordered set of TokenRange, keyed by value so
// membership and set-difference are cheap and exact.
type RangeSet map[TokenRange]struct{}

func NewRangeSet(ranges ...TokenRange) RangeSet {
	s := make(RangeSet, len(ranges))
	for _, r := range ranges {
		s[r] = struct{}{}
	}
	return s
}

func (s RangeSet) Contains(r TokenRange) bool {
	_, ok := s[r]
	return ok
}

func (s RangeSet) Add(r TokenRange) {
	s[r] = struct{}{}
}

func (s RangeSet) Len() int {
	return len(s)
}

// Clone returns an independent copy, so callers can hand out a
// RangeSet without the recipient being able to mutate the original.
func (s RangeSet) Clone() RangeSet {
	clone := make(RangeSet, len(s))
	for r := range s {
		clone[r] = struct{}{}
	}
	return clone
}

// Subtract returns the ranges in s that are not in o.
func (s RangeSet) Subtract(o RangeSet) RangeSet {
	diff := make(RangeSet)
	for r := range s {
		if !o.Contains(r) {
			diff[r] = struct{}{}
		}
	}
	return diff
}

// IsSubsetOf reports whether every range in s is also in o, the
// invariant required of OngoingJob.repairedRanges <= allRanges.
func (s RangeSet) IsSubsetOf(o RangeSet) bool {
	for r := range s {
		if !o.Contains(r) {
			return false
		}
	}
	return true
}

// Slice returns the ranges in an arbitrary but stable-for-this-call
// order; callers that need determinism should sort the result.
func (s RangeSet) Slice() []TokenRange {
	out := make([]TokenRange, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	return out
}

// VnodeState describes one range's current replication and repair
// status, as produced by the replication oracle.
type VnodeState struct {
	Range            TokenRange
	Replicas         []NodeId
	LastRepairedAtMs int64
}

// Repaired is derived: a vnode counts as repaired once its last
// repair happened after the given threshold (e.g. gc_grace_seconds
// ago), not stored directly.
func (v VnodeState) Repaired(thresholdMs int64) bool {
	return v.LastRepairedAtMs > thresholdMs
}
