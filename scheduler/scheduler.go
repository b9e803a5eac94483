// Package scheduler implements the on-demand scheduler facade spec
// §4.5 describes: the single entry point that turns a table reference
// into a running repair job, tracks jobs this daemon owns in memory,
// and periodically adopts jobs a peer daemon persisted but nobody is
// yet driving.
package scheduler

import (
	"sync"
	"time"

	logging "github.com/op/go-logging"

	"github.com/coredb/repaird/config"
	"github.com/coredb/repaird/job"
	"github.com/coredb/repaird/repairerr"
	"github.com/coredb/repaird/replication"
	"github.com/coredb/repaird/store"
	"github.com/coredb/repaird/token"
	"github.com/coredb/repaird/view"
)

var logger *logging.Logger

func init() {
	logger = logging.MustGetLogger("scheduler")
}

// Scheduler is the on-demand scheduler facade. The zero value is not
// usable; build one with New.
type Scheduler struct {
	cfg config.Config

	// mu protects jobs jointly with the schedule manager registration,
	// per spec §5: "one coarse-grained mutex protecting (a) the
	// in-memory map and (b) the paired registration with the schedule
	// manager."
	mu   sync.Mutex
	jobs map[token.JobId]*job.OnDemandRepairJob

	stopSweep chan struct{}
	sweepDone chan struct{}
}

// New validates cfg and starts the periodic sweep goroutine.
func New(cfg config.Config) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()

	s := &Scheduler{
		cfg:       cfg,
		jobs:      make(map[token.JobId]*job.OnDemandRepairJob),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	go s.sweepLoop()
	return s, nil
}

// ScheduleJob validates the table exists, persists a new local job,
// registers it, and returns its freshly created view.
func (s *Scheduler) ScheduleJob(table token.TableReference) (view.Job, error) {
	return s.scheduleJob(table, false)
}

// ScheduleClusterWideJob is ScheduleJob with IsClusterWide set before
// persistence.
func (s *Scheduler) ScheduleClusterWideJob(table token.TableReference) (view.Job, error) {
	return s.scheduleJob(table, true)
}

func (s *Scheduler) scheduleJob(table token.TableReference, clusterWide bool) (view.Job, error) {
	exists, err := s.cfg.Oracle.TableExists(table.Keyspace, table.Table)
	if err != nil {
		return view.Job{}, err
	}
	if !exists {
		return view.Job{}, repairerr.NewInputInvalid("%s/%s does not exist", table.Keyspace, table.Table)
	}

	ranges, err := s.cfg.Oracle.LocalRanges(table)
	if err != nil {
		return view.Job{}, err
	}
	if len(ranges) == 0 {
		return view.Job{}, repairerr.NewInputInvalid("%s/%s has no local ranges to repair", table.Keyspace, table.Table)
	}
	rangeSet := token.NewRangeSet(ranges...)

	tokenMapHash, err := s.cfg.Oracle.TokenMapHash(table)
	if err != nil {
		return view.Job{}, err
	}

	jobId := token.NewJobId()
	ongoing := job.New(jobId, s.cfg.Store.GetHostId(), table, tokenMapHash, rangeSet, time.Now().UnixMilli(), s.cfg.Store)
	if clusterWide {
		ongoing.StartClusterWideJob()
	}
	if err := ongoing.Persist(); err != nil {
		return view.Job{}, repairerr.NewStoreTransient(err)
	}

	odj := job.NewOnDemandRepairJob(ongoing, s.cfg.Oracle, s.cfg.Locks, s.cfg.LockType, s.cfg.Datacenter,
		s.cfg.RepairAction, s.cfg.RepairConfig, s.cfg.History, s.cfg.Metrics, s.onFinished)

	s.mu.Lock()
	s.jobs[jobId] = odj
	s.cfg.Manager.Schedule(odj)
	s.mu.Unlock()

	s.cfg.Metrics.JobScheduled(table, clusterWide)
	return view.FromOngoing(ongoing, s.cfg.Oracle), nil
}

// onFinished is package job's hook, called once a job reaches a
// terminal state; it removes the job from the in-memory map. The
// schedule manager deregisters itself independently once RunNext
// returns done, so this never calls back into Manager.
func (s *Scheduler) onFinished(jobId token.JobId) {
	s.mu.Lock()
	delete(s.jobs, jobId)
	s.mu.Unlock()
}

// GetActiveRepairJobs snapshots the in-memory jobs this daemon owns.
func (s *Scheduler) GetActiveRepairJobs() []view.Job {
	s.mu.Lock()
	snapshot := make([]*job.OnDemandRepairJob, 0, len(s.jobs))
	for _, odj := range s.jobs {
		snapshot = append(snapshot, odj)
	}
	s.mu.Unlock()

	out := make([]view.Job, 0, len(snapshot))
	for _, odj := range snapshot {
		out = append(out, view.FromOngoing(odj.Ongoing(), s.cfg.Oracle))
	}
	return out
}

// GetAllRepairJobs reads every job this host owns directly from the
// store, bypassing the scheduler mutex entirely (spec §5).
func (s *Scheduler) GetAllRepairJobs() ([]view.Job, error) {
	records, err := s.cfg.Store.GetAllJobs(s.cfg.Oracle)
	if err != nil {
		return nil, err
	}
	return viewsFromRecords(records, s.cfg.Oracle), nil
}

// GetAllClusterWideRepairJobs reads every cluster-wide job across all
// hosts directly from the store.
func (s *Scheduler) GetAllClusterWideRepairJobs() ([]view.Job, error) {
	records, err := s.cfg.Store.GetAllClusterWideJobs()
	if err != nil {
		return nil, err
	}
	return viewsFromRecords(records, s.cfg.Oracle), nil
}

func viewsFromRecords(records []*store.Record, oracle replication.Oracle) []view.Job {
	out := make([]view.Job, 0, len(records))
	for _, r := range records {
		out = append(out, view.FromRecord(r, oracle))
	}
	return out
}

// Close deschedules every in-memory job, clears the map, and stops the
// periodic sweep. It does not interrupt in-flight repair actions.
func (s *Scheduler) Close() {
	close(s.stopSweep)
	<-s.sweepDone

	s.mu.Lock()
	for jobId := range s.jobs {
		s.cfg.Manager.Deschedule(jobId)
	}
	s.jobs = make(map[token.JobId]*job.OnDemandRepairJob)
	s.mu.Unlock()

	s.cfg.Manager.Close()
}

func (s *Scheduler) sweepLoop() {
	defer close(s.sweepDone)

	ticker := time.NewTicker(time.Duration(s.cfg.SweepIntervalSecs) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopSweep:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep adopts jobs the store knows about but this process hasn't
// registered yet, fails stale-hash jobs, and tolerates per-tick
// failures by logging and retrying next tick (spec §4.5).
func (s *Scheduler) sweep() {
	records, err := s.cfg.Store.GetOngoingJobs(s.cfg.Oracle)
	if err != nil {
		logger.Warningf("sweep: could not load ongoing jobs: %v", err)
		return
	}

	adopted := 0
	for _, r := range records {
		if r.Stale {
			if err := s.failStale(r); err != nil {
				logger.Warningf("sweep: failing stale job %s: %v", r.JobId, err)
			}
			continue
		}

		s.mu.Lock()
		_, present := s.jobs[r.JobId]
		s.mu.Unlock()
		if present {
			continue
		}

		ongoing := job.Rehydrate(r, s.cfg.Store)
		odj := job.NewOnDemandRepairJob(ongoing, s.cfg.Oracle, s.cfg.Locks, s.cfg.LockType, s.cfg.Datacenter,
			s.cfg.RepairAction, s.cfg.RepairConfig, s.cfg.History, s.cfg.Metrics, s.onFinished)

		s.mu.Lock()
		if _, present := s.jobs[r.JobId]; !present {
			s.jobs[r.JobId] = odj
			s.cfg.Manager.Schedule(odj)
			adopted++
		}
		s.mu.Unlock()
	}

	s.cfg.Metrics.SweepTick(adopted)
}

func (s *Scheduler) failStale(r *store.Record) error {
	ongoing := job.Rehydrate(r, s.cfg.Store)
	return ongoing.Fail()
}
