// Package job holds the two units spec §4.3/§4.4 name: OngoingJob,
// the in-memory mirror of one durable job record, and
// OnDemandRepairJob, the schedulable wrapper that drives that record's
// ranges to completion.
package job

import (
	"fmt"
	"sync"
	"time"

	logging "github.com/op/go-logging"

	"github.com/coredb/repaird/replication"
	"github.com/coredb/repaird/repairerr"
	"github.com/coredb/repaird/store"
	"github.com/coredb/repaird/token"
)

var logger *logging.Logger

func init() {
	logger = logging.MustGetLogger("job")
}

// OngoingJob is the in-memory state machine of spec §4.3: started ->
// finished or started -> failed, no other transitions. Every mutating
// method durably persists through store before updating the mirror,
// so a crash between the two never leaves the store and memory
// disagreeing in memory's favor.
type OngoingJob struct {
	mu sync.RWMutex

	jobId          token.JobId
	hostId         token.NodeId
	table          token.TableReference
	tokenMapHash   int64
	allRanges      token.RangeSet
	repairedRanges token.RangeSet
	status         store.Status
	startTimeMs     int64
	completedTimeMs int64
	isClusterWide  bool

	backing store.Store
}

// New creates a brand-new OngoingJob (not yet persisted). Callers
// persist it via Persist before handing it to the schedule manager.
// startTimeMs is supplied by the caller rather than read from a clock
// here; completedTimeMs, by contrast, is set from time.Now by Finish
// and Fail.
func New(jobId token.JobId, hostId token.NodeId, table token.TableReference, tokenMapHash int64, allRanges token.RangeSet, startTimeMs int64, backing store.Store) *OngoingJob {
	return &OngoingJob{
		jobId:          jobId,
		hostId:         hostId,
		table:          table,
		tokenMapHash:   tokenMapHash,
		allRanges:      allRanges.Clone(),
		repairedRanges: token.NewRangeSet(),
		status:         store.Started,
		startTimeMs:    startTimeMs,
		backing:        backing,
	}
}

// StartClusterWideJob marks this job cluster-wide before it is
// persisted. Calling it after Persist has no effect on the store; per
// spec §4.3, it "is called before persistence".
func (j *OngoingJob) StartClusterWideJob() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.isClusterWide = true
}

// Persist writes the initial row. It must be called exactly once,
// before the job is registered with the schedule manager.
func (j *OngoingJob) Persist() error {
	j.mu.RLock()
	ranges := j.allRanges.Clone()
	isClusterWide := j.isClusterWide
	j.mu.RUnlock()

	return j.backing.AddNewJob(j.jobId, j.table, j.tokenMapHash, ranges, isClusterWide)
}

// Rehydrate reconstructs an in-memory OngoingJob from a durable
// Record, as the scheduler's periodic sweep does when it adopts a
// peer-persisted row. Already-completed ranges are carried over
// verbatim so they are never re-attempted (spec §4.3 "Rehydration").
func Rehydrate(r *store.Record, backing store.Store) *OngoingJob {
	return &OngoingJob{
		jobId:           r.JobId,
		hostId:          r.HostId,
		table:           r.Table,
		tokenMapHash:    r.TokenMapHash,
		allRanges:       r.AllRanges.Clone(),
		repairedRanges:  r.RepairedRanges.Clone(),
		status:          r.Status,
		startTimeMs:     r.StartTimeMs,
		completedTimeMs: r.CompletedTimeMs,
		isClusterWide:   r.IsClusterWide,
		backing:         backing,
	}
}

func (j *OngoingJob) JobId() token.JobId              { return j.jobId }
func (j *OngoingJob) HostId() token.NodeId            { return j.hostId }
func (j *OngoingJob) Table() token.TableReference     { return j.table }
func (j *OngoingJob) TokenMapHash() int64             { return j.tokenMapHash }

func (j *OngoingJob) IsClusterWide() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.isClusterWide
}

func (j *OngoingJob) Status() store.Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

func (j *OngoingJob) CompletedTimeMs() int64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.completedTimeMs
}

func (j *OngoingJob) StartTimeMs() int64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.startTimeMs
}

// AllRanges returns a defensive copy of the range set fixed at job
// creation.
func (j *OngoingJob) AllRanges() token.RangeSet {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.allRanges.Clone()
}

// RepairedRanges returns a defensive copy of the ranges completed so
// far.
func (j *OngoingJob) RepairedRanges() token.RangeSet {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.repairedRanges.Clone()
}

// RemainingRanges is allRanges \ repairedRanges, per spec §4.3.
func (j *OngoingJob) RemainingRanges() token.RangeSet {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.allRanges.Subtract(j.repairedRanges)
}

func (j *OngoingJob) isTerminal() bool {
	return j.status == store.Finished || j.status == store.Failed
}

// IsTerminal reports whether this job has reached finished or failed.
func (j *OngoingJob) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.isTerminal()
}

// MarkRangeFinished persists the range completion and then updates
// the in-memory mirror. It is idempotent: marking an
// already-completed range again is a no-op that still durably
// round-trips (store.FinishRange is itself idempotent), satisfying
// spec §8.4.
//
// Once the job is terminal, repairedRanges is frozen (spec §3): the
// mutation is refused rather than silently ignored, since reaching
// this path on a terminal job would indicate a scheduling bug upstream
// (the job should already have been descheduled).
func (j *OngoingJob) MarkRangeFinished(r token.TokenRange) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.isTerminal() {
		return repairerr.NewFatal("job %s: markRangeFinished called after terminal status %s", j.jobId, j.status)
	}
	if !j.allRanges.Contains(r) {
		return fmt.Errorf("job %s: range %s is not part of this job", j.jobId, r)
	}

	if err := j.backing.FinishRange(j.jobId, r); err != nil {
		return repairerr.NewStoreTransient(err)
	}
	j.repairedRanges.Add(r)
	return nil
}

// Finish transitions started -> finished. It requires
// remainingRanges to be empty, per spec §4.3.
func (j *OngoingJob) Finish() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.isTerminal() {
		return nil
	}
	if !j.allRanges.IsSubsetOf(j.repairedRanges) {
		return repairerr.NewFatal("job %s: finish called with ranges still remaining", j.jobId)
	}

	if err := j.backing.Finish(j.jobId); err != nil {
		return repairerr.NewStoreConflict(j.jobId.String())
	}
	j.status = store.Finished
	j.completedTimeMs = time.Now().UnixMilli()
	return nil
}

// Fail transitions any non-terminal status to failed.
func (j *OngoingJob) Fail() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.isTerminal() {
		return nil
	}

	if err := j.backing.Fail(j.jobId); err != nil {
		return repairerr.NewStoreConflict(j.jobId.String())
	}
	j.status = store.Failed
	j.completedTimeMs = time.Now().UnixMilli()
	return nil
}

// HasLostOwnership reports whether the oracle's current token-map
// hash for this job's table no longer matches the hash recorded at
// job creation, per spec §4.3.
func (j *OngoingJob) HasLostOwnership(oracle replication.Oracle) (bool, error) {
	j.mu.RLock()
	table := j.table
	hash := j.tokenMapHash
	j.mu.RUnlock()

	current, err := oracle.TokenMapHash(table)
	if err != nil {
		return false, err
	}
	return current != hash, nil
}
