// Package store defines the persistent on-demand status store
// contract of spec §4.2. The store is the single source of truth for
// cross-daemon coordination; it must linearize per-row updates and
// must not leak its backing schema to the rest of the core.
package store

import (
	"time"

	"github.com/coredb/repaird/replication"
	"github.com/coredb/repaird/token"
)

// Status is the terminal-or-not state of an OngoingJob row, per §3.
type Status string

const (
	Started  Status = "started"
	Finished Status = "finished"
	Failed   Status = "failed"
)

// Record is the durable row for one on-demand job. It mirrors §3's
// OngoingJob attributes; the in-memory state machine in package job
// keeps its own copy of these fields and is rebuilt from a Record by
// job.Rehydrate.
type Record struct {
	JobId           token.JobId
	HostId          token.NodeId
	Table           token.TableReference
	TokenMapHash    int64
	AllRanges       token.RangeSet
	RepairedRanges  token.RangeSet
	Status          Status
	StartTimeMs     int64
	CompletedTimeMs int64
	IsClusterWide   bool

	// Stale is set by getOngoingJobs when the oracle's current hash
	// no longer matches TokenMapHash; the caller must fail() the job
	// and must not dispatch further range tasks.
	Stale bool
}

// Store is the contract of spec §4.2. Implementations must make
// finishRange durable before the caller is allowed to treat a range
// as done (§5: "a crash after lock release but before finishRange
// commits leaves the range pending").
type Store interface {
	// GetHostId returns this daemon's stable node identity.
	GetHostId() token.NodeId

	// AddNewJob atomically inserts a row in state Started with an
	// empty RepairedRanges. It fails if (hostId, jobId) already
	// exists.
	AddNewJob(jobId token.JobId, table token.TableReference, tokenMapHash int64, ranges token.RangeSet, isClusterWide bool) error

	// FinishRange atomically adds one range to RepairedRanges. It is
	// idempotent: calling it twice with the same range is a no-op the
	// second time.
	FinishRange(jobId token.JobId, r token.TokenRange) error

	// Finish sets Status = Finished and CompletedTimeMs = now. Only
	// legal if RepairedRanges == AllRanges; implementations should
	// reject otherwise rather than silently accepting a short job.
	Finish(jobId token.JobId) error

	// Fail sets Status = Failed and CompletedTimeMs = now. Legal from
	// any non-terminal state.
	Fail(jobId token.JobId) error

	// GetOngoingJobs returns jobs owned by this host with
	// Status == Started. A job whose TokenMapHash no longer matches
	// oracle's current hash is returned with Stale = true; the caller
	// must fail it and not dispatch further tasks.
	GetOngoingJobs(oracle replication.Oracle) ([]*Record, error)

	// GetAllJobs returns every job owned by this host, regardless of
	// status, for local reporting.
	GetAllJobs(oracle replication.Oracle) ([]*Record, error)

	// GetAllClusterWideJobs returns every job across all hosts with
	// IsClusterWide == true, for cluster-wide reporting.
	GetAllClusterWideJobs() ([]*Record, error)
}

// Clock lets tests control "now" (a simple field swapped out in
// tests), rather than binding every store implementation to
// time.Now directly.
type Clock func() time.Time

func defaultClock() time.Time { return time.Now() }
