// Package view builds the read-only reporting snapshots spec §4.6
// describes: pure functions over a job's durable state plus the
// oracle's current replica map. Nothing in this package holds a
// reference back into mutable state; every value returned is a copy.
package view

import (
	"github.com/coredb/repaird/job"
	"github.com/coredb/repaird/replication"
	"github.com/coredb/repaird/store"
	"github.com/coredb/repaird/token"
)

// VirtualNode is one token range's reporting facet, matching the
// `virtualNodes[]` shape of spec §6's JSON contract.
type VirtualNode struct {
	StartToken         int64          `json:"startToken"`
	EndToken           int64          `json:"endToken"`
	Replicas           []token.NodeId `json:"replicas"`
	LastRepairedAtInMs int64          `json:"lastRepairedAtInMs"`
	Repaired           bool           `json:"repaired"`
}

// Job is the JobView spec §6 names: `{ id, hostId, keyspace, table,
// status, completedRatio, startTimeMs, completedTimeMs?, virtualNodes }`,
// plus an isClusterWide flag.
type Job struct {
	Id              token.JobId   `json:"id"`
	HostId          token.NodeId  `json:"hostId"`
	Keyspace        string        `json:"keyspace"`
	Table           string        `json:"table"`
	Status          store.Status  `json:"status"`
	CompletedRatio  float64       `json:"completedRatio"`
	StartTimeMs     int64         `json:"startTimeMs"`
	CompletedTimeMs int64         `json:"completedTimeMs,omitempty"`
	IsClusterWide   bool          `json:"isClusterWide"`
	VirtualNodes    []VirtualNode `json:"virtualNodes"`
}

// completedRatio is |repairedRanges| / |allRanges|; spec §4.6 pins
// this at exactly 1.0 once a job finishes.
func completedRatio(all, repaired token.RangeSet) float64 {
	if all.Len() == 0 {
		return 1.0
	}
	return float64(repaired.Len()) / float64(all.Len())
}

// virtualNodes expands a job's full range set into one entry per
// range, annotated with the oracle's current replica assignment and
// whether that range has been repaired by this job. It falls back to
// a per-range ReplicasOf lookup for any range the oracle's vnode
// snapshot does not cover (e.g. a range this host no longer owns).
func virtualNodes(table token.TableReference, all, repaired token.RangeSet, oracle replication.Oracle) []VirtualNode {
	states := make(map[token.TokenRange]token.VnodeState)
	if snapshot, err := oracle.VnodeStates(table); err == nil {
		for _, s := range snapshot {
			states[s.Range] = s
		}
	}

	ranges := all.Slice()
	out := make([]VirtualNode, 0, len(ranges))
	for _, r := range ranges {
		vn := VirtualNode{StartToken: r.Start, EndToken: r.End, Repaired: repaired.Contains(r)}
		if s, ok := states[r]; ok {
			vn.Replicas = s.Replicas
			vn.LastRepairedAtInMs = s.LastRepairedAtMs
		} else if replicas, err := oracle.ReplicasOf(table, r); err == nil {
			vn.Replicas = replicas
		}
		out = append(out, vn)
	}
	return out
}

// FromOngoing builds a Job view from a live in-memory job.
func FromOngoing(j *job.OngoingJob, oracle replication.Oracle) Job {
	table := j.Table()
	all := j.AllRanges()
	repaired := j.RepairedRanges()

	return Job{
		Id:              j.JobId(),
		HostId:          j.HostId(),
		Keyspace:        table.Keyspace,
		Table:           table.Table,
		Status:          j.Status(),
		CompletedRatio:  completedRatio(all, repaired),
		StartTimeMs:     j.StartTimeMs(),
		CompletedTimeMs: j.CompletedTimeMs(),
		IsClusterWide:   j.IsClusterWide(),
		VirtualNodes:    virtualNodes(table, all, repaired, oracle),
	}
}

// FromRecord builds a Job view directly from a durable row, for the
// getAllRepairJobs/getAllClusterWideRepairJobs read paths spec §4.5
// says must not go through the in-memory map.
func FromRecord(r *store.Record, oracle replication.Oracle) Job {
	return Job{
		Id:              r.JobId,
		HostId:          r.HostId,
		Keyspace:        r.Table.Keyspace,
		Table:           r.Table.Table,
		Status:          r.Status,
		CompletedRatio:  completedRatio(r.AllRanges, r.RepairedRanges),
		StartTimeMs:     r.StartTimeMs,
		CompletedTimeMs: r.CompletedTimeMs,
		IsClusterWide:   r.IsClusterWide,
		VirtualNodes:    virtualNodes(r.Table, r.AllRanges, r.RepairedRanges, oracle),
	}
}
