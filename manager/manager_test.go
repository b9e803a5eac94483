package manager

import (
	"sync"
	"testing"
	"time"

	"github.com/coredb/repaird/token"
)

type countingJob struct {
	id    token.JobId
	mu    sync.Mutex
	steps int
	stop  int
}

func newCountingJob(stopAfter int) *countingJob {
	return &countingJob{id: token.NewJobId(), stop: stopAfter}
}

func (j *countingJob) JobId() token.JobId { return j.id }

func (j *countingJob) RunNext() (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.steps++
	return j.steps >= j.stop, nil
}

// NextEligible is always "now": countingJob always makes progress, so
// the pool should never back off between its steps.
func (j *countingJob) NextEligible() time.Time { return time.Time{} }

func (j *countingJob) stepCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.steps
}

func TestPoolDrivesScheduledJobToCompletion(t *testing.T) {
	p := NewPool(2)
	defer p.Close()

	j := newCountingJob(5)
	p.Schedule(j)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && j.stepCount() < 5 {
		time.Sleep(time.Millisecond)
	}
	if j.stepCount() != 5 {
		t.Fatalf("expected the job to run to its stop count, got %d steps", j.stepCount())
	}
}

func TestPoolScheduleIsIdempotentForSameJobId(t *testing.T) {
	p := NewPool(2)
	defer p.Close()

	j := newCountingJob(1000000)
	p.Schedule(j)
	p.Schedule(j) // second registration under the same job id must be a no-op

	time.Sleep(20 * time.Millisecond)
	p.Deschedule(j.JobId())

	// Give the single worker loop time to observe cancellation and exit;
	// if Schedule had spawned a second worker, deregistering once
	// wouldn't be enough to stop every goroutine driving this job, but
	// this test only asserts the pool doesn't panic or deadlock on
	// double-scheduling, which exercises the registration guard.
	time.Sleep(20 * time.Millisecond)
}

func TestPoolDeschedulePreventsFurtherSteps(t *testing.T) {
	p := NewPool(1)
	defer p.Close()

	j := newCountingJob(1000000)
	p.Schedule(j)
	time.Sleep(10 * time.Millisecond)
	p.Deschedule(j.JobId())

	time.Sleep(20 * time.Millisecond)
	stepsAtDeschedule := j.stepCount()
	time.Sleep(20 * time.Millisecond)
	if j.stepCount() > stepsAtDeschedule+1 {
		t.Fatalf("expected stepping to stop shortly after deschedule, went from %d to %d", stepsAtDeschedule, j.stepCount())
	}
}

func TestPoolCloseStopsAllJobs(t *testing.T) {
	p := NewPool(3)

	jobs := []*countingJob{newCountingJob(1000000), newCountingJob(1000000), newCountingJob(1000000)}
	for _, j := range jobs {
		p.Schedule(j)
	}
	time.Sleep(10 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatalf("expected Close to return once every worker observes cancellation")
	}
}
