package job

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/coredb/repaird/history"
	"github.com/coredb/repaird/lock"
	"github.com/coredb/repaird/metrics"
	"github.com/coredb/repaird/repairaction"
	"github.com/coredb/repaird/repairerr"
	"github.com/coredb/repaird/replication"
	"github.com/coredb/repaird/token"
)

// OnFinished is the scheduler's hook, called exactly once when a job
// reaches a terminal state. The scheduler's hook removes the job from
// its in-memory map; the schedule manager drops the job on its own
// once RunNext reports done.
type OnFinished func(jobId token.JobId)

// contentionBackoff is how long the schedule manager waits before
// re-driving a job that made no progress on its last step (every
// range either locked elsewhere or not yet pending). Per spec §4.4
// step 2 and §7, lock contention causes the task to be "deferred and
// retried later", not spun on immediately.
const contentionBackoff = 500 * time.Millisecond

// OnDemandRepairJob is the schedulable wrapper spec §4.4 describes: it
// expands an OngoingJob's remaining ranges into per-range tasks and
// drives them one at a time through lock acquisition, execution, and
// completion recording.
type OnDemandRepairJob struct {
	mu sync.Mutex

	ongoing    *OngoingJob
	oracle     replication.Oracle
	locks      lock.Factory
	lockType   lock.Type
	datacenter string // used only when lockType == lock.Datacenter
	action      repairaction.Action
	config      repairaction.Configuration
	historySink history.Sink
	sink        metrics.Sink
	onFinished  OnFinished

	// order is the deterministic (sorted by start, then end) sequence
	// ranges are attempted in. allRanges is an unordered set, so this
	// sort, not insertion order, is what fixes the order and keeps it
	// independent of map iteration order.
	order []token.TokenRange
	// heldLocks tracks outstanding locks this job currently holds, so a
	// failed action or a deschedule can still release them.
	heldLocks map[token.TokenRange]lock.Lock

	// nextEligible is when the schedule manager may call RunNext
	// again. The zero value means immediately. Only a no-progress step
	// (nothing pending yet, or the next range's lock is contended)
	// pushes this into the future; a step that actually runs a range
	// resets it to now.
	nextEligible time.Time
}

// NewOnDemandRepairJob builds a schedulable job around a freshly
// created OngoingJob.
func NewOnDemandRepairJob(
	ongoing *OngoingJob,
	oracle replication.Oracle,
	locks lock.Factory,
	lockType lock.Type,
	datacenter string,
	action repairaction.Action,
	config repairaction.Configuration,
	historySink history.Sink,
	sink metrics.Sink,
	onFinished OnFinished,
) *OnDemandRepairJob {
	all := ongoing.AllRanges().Slice()
	sort.Slice(all, func(i, j int) bool {
		if all[i].Start != all[j].Start {
			return all[i].Start < all[j].Start
		}
		return all[i].End < all[j].End
	})

	return &OnDemandRepairJob{
		ongoing:     ongoing,
		oracle:      oracle,
		locks:       locks,
		lockType:    lockType,
		datacenter:  datacenter,
		action:      action,
		config:      config,
		historySink: historySink,
		sink:        sink,
		onFinished:  onFinished,
		order:       all,
		heldLocks:   make(map[token.TokenRange]lock.Lock),
	}
}

func (j *OnDemandRepairJob) JobId() token.JobId { return j.ongoing.JobId() }

// NextEligible reports when the schedule manager should next call
// RunNext for this job. The schedule manager honors this instead of
// re-dispatching as fast as the pool's semaphore allows.
func (j *OnDemandRepairJob) NextEligible() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextEligible
}

// Ongoing exposes the wrapped in-memory job for view building. The
// scheduler reads it under its own snapshot-then-release discipline;
// OngoingJob's own getters are already safe for concurrent access.
func (j *OnDemandRepairJob) Ongoing() *OngoingJob { return j.ongoing }

// nextPending returns the first range, in deterministic order, that
// is neither completed nor currently locked by this job.
func (j *OnDemandRepairJob) nextPending() (token.TokenRange, bool) {
	repaired := j.ongoing.RepairedRanges()
	for _, r := range j.order {
		if repaired.Contains(r) {
			continue
		}
		if _, held := j.heldLocks[r]; held {
			continue
		}
		return r, true
	}
	return token.TokenRange{}, false
}

// RunNext drives exactly one step of this job: either it finds the
// job already finished, discovers ownership loss and fails it, runs
// one range to completion/contention/failure, or reports it has no
// more work for now. It returns done=true once the job has reached a
// terminal state and the caller (the schedule manager) must stop
// calling RunNext for this job.
func (j *OnDemandRepairJob) RunNext() (done bool, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.ongoing.IsTerminal() {
		return true, nil
	}

	lost, err := j.ongoing.HasLostOwnership(j.oracle)
	if err != nil {
		return false, err
	}
	if lost {
		logger.Warningf("job %s: lost ownership of %s, failing", j.JobId(), j.ongoing.Table())
		if ferr := j.ongoing.Fail(); ferr != nil {
			return false, ferr
		}
		j.releaseAllLocks()
		j.sink.JobFinished(j.ongoing.Table(), string(j.ongoing.Status()))
		j.onFinished(j.JobId())
		return true, repairerr.NewTopologyChanged(j.ongoing.Table().String())
	}

	r, ok := j.nextPending()
	if !ok {
		// every range is either completed or already locked by us;
		// if nothing remains at all, finish.
		if j.ongoing.RemainingRanges().Len() == 0 {
			if ferr := j.ongoing.Finish(); ferr != nil {
				return false, ferr
			}
			j.sink.JobFinished(j.ongoing.Table(), string(j.ongoing.Status()))
			j.onFinished(j.JobId())
			return true, nil
		}
		j.nextEligible = time.Now().Add(contentionBackoff)
		return false, nil
	}

	lockName, err := j.lockNameFor(r)
	if err != nil {
		return false, err
	}

	held, acquired, err := j.locks.Acquire(lockName)
	if err != nil {
		return false, err
	}
	if !acquired {
		j.sink.LockContended(j.ongoing.Table())
		j.nextEligible = time.Now().Add(contentionBackoff)
		return false, nil
	}
	j.heldLocks[r] = held
	j.nextEligible = time.Now()

	startedAtMs := time.Now().UnixMilli()
	outcome, runErr := j.action.Run(j.ongoing.Table(), r, j.config)
	endedAtMs := time.Now().UnixMilli()
	j.sink.RangeOutcome(j.ongoing.Table(), outcomeLabel(outcome), time.Duration(endedAtMs-startedAtMs)*time.Millisecond)
	if histErr := j.historySink.Record(history.Entry{
		JobId:       j.JobId(),
		Table:       j.ongoing.Table(),
		Range:       r,
		Outcome:     outcomeLabel(outcome),
		StartedAtMs: startedAtMs,
		EndedAtMs:   endedAtMs,
	}); histErr != nil {
		logger.Warningf("job %s: recording history for %s: %v", j.JobId(), r, histErr)
	}

	var stepErr error
	switch outcome {
	case repairaction.Success, repairaction.NoOp:
		if markErr := j.ongoing.MarkRangeFinished(r); markErr != nil {
			j.releaseLock(r)
			return false, markErr
		}
		j.releaseLock(r)
	case repairaction.Failure:
		logger.Warningf("job %s: repair of %s failed: %v", j.JobId(), r, runErr)
		j.releaseLock(r)
		// The range stays pending and is retried on a later step; this
		// never fails the job on its own (spec §7), so the typed error
		// travels back alongside done=false purely for observability.
		cause := runErr
		if cause == nil {
			cause = fmt.Errorf("range %s reported failure with no error detail", r)
		}
		stepErr = repairerr.NewRepairFailed(cause)
	}

	if j.ongoing.RemainingRanges().Len() == 0 {
		if ferr := j.ongoing.Finish(); ferr != nil {
			return false, ferr
		}
		j.sink.JobFinished(j.ongoing.Table(), string(j.ongoing.Status()))
		j.onFinished(j.JobId())
		return true, nil
	}
	return false, stepErr
}

func (j *OnDemandRepairJob) lockNameFor(r token.TokenRange) (string, error) {
	dc := j.datacenter
	return j.lockType.Name(j.ongoing.Table(), r, dc)
}

func (j *OnDemandRepairJob) releaseLock(r token.TokenRange) {
	if l, ok := j.heldLocks[r]; ok {
		if err := l.Release(); err != nil {
			logger.Warningf("job %s: releasing lock for %s: %v", j.JobId(), r, err)
		}
		delete(j.heldLocks, r)
	}
}

// releaseAllLocks is used on the ownership-loss failure path, where
// the job stops entirely and any held locks must not leak.
func (j *OnDemandRepairJob) releaseAllLocks() {
	for r := range j.heldLocks {
		j.releaseLock(r)
	}
}

func outcomeLabel(o repairaction.Outcome) string {
	switch o {
	case repairaction.Success:
		return "success"
	case repairaction.NoOp:
		return "noop"
	default:
		return "failure"
	}
}
