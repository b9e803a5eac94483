// Package manager is the bounded worker pool spec §4.5/§5 calls "the
// schedule manager": a fixed number of concurrent workers drive
// registered jobs to completion, one range task at a time per job, so
// that dispatching a job never blocks the caller on pool capacity.
package manager

import (
	"context"
	"sync"
	"time"

	logging "github.com/op/go-logging"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/coredb/repaird/token"
)

var logger *logging.Logger

func init() {
	logger = logging.MustGetLogger("manager")
}

// Schedulable is the minimal shape a schedule manager drives: one
// step at a time, until done. package job's OnDemandRepairJob
// satisfies this without either package importing the other.
type Schedulable interface {
	JobId() token.JobId
	RunNext() (done bool, err error)

	// NextEligible reports when this job may be driven again. A step
	// that made no progress (e.g. lock contention) pushes this into
	// the future so the pool defers rather than re-dispatching at max
	// rate; a step that made progress reports now.
	NextEligible() time.Time
}

// Manager accepts jobs and runs them to completion on a bounded pool.
// Scheduling a job that is already registered is a no-op.
type Manager interface {
	Schedule(j Schedulable)
	Deschedule(jobId token.JobId)
	Close()
}

// Pool is a semaphore-bounded Manager: Schedule starts one goroutine
// per job at once, and that goroutine reserves one unit of capacity
// for each RunNext step and releases it as soon as the step returns,
// so the capacity bounds how many steps run concurrently.
type Pool struct {
	sem *semaphore.Weighted
	g   errgroup.Group

	mu     sync.Mutex
	cancel map[token.JobId]context.CancelFunc
	closed bool
}

// NewPool builds a pool with the given worker capacity.
func NewPool(capacity int) *Pool {
	return &Pool{
		sem:    semaphore.NewWeighted(int64(capacity)),
		cancel: make(map[token.JobId]context.CancelFunc),
	}
}

func (p *Pool) Schedule(j Schedulable) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if _, exists := p.cancel[j.JobId()]; exists {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel[j.JobId()] = cancel
	p.mu.Unlock()

	p.g.Go(func() error {
		p.run(ctx, j)
		return nil
	})
}

func (p *Pool) run(ctx context.Context, j Schedulable) {
	defer p.deregister(j.JobId())

	for {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return
		}
		done, err := j.RunNext()
		p.sem.Release(1)

		if err != nil {
			logger.Warningf("job %s: worker step failed: %v", j.JobId(), err)
		}
		if done {
			return
		}

		// A no-progress step (contention, nothing pending yet) pushes
		// NextEligible into the future; wait it out before dispatching
		// this job again instead of spinning on the semaphore.
		if wait := time.Until(j.NextEligible()); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			continue
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (p *Pool) Deschedule(jobId token.JobId) {
	p.mu.Lock()
	cancel, ok := p.cancel[jobId]
	p.mu.Unlock()
	if ok {
		cancel()
	}
}

func (p *Pool) deregister(jobId token.JobId) {
	p.mu.Lock()
	delete(p.cancel, jobId)
	p.mu.Unlock()
}

// Close cancels every running job's context and waits for its worker
// goroutine to exit. In-flight repair actions are not interrupted
// (spec §5: "does not interrupt in-flight repair actions"); they run
// to their own completion, and once the in-flight RunNext returns the
// worker loop observes ctx.Done and stops looping.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	for _, cancel := range p.cancel {
		cancel()
	}
	p.mu.Unlock()

	_ = p.g.Wait()
}
