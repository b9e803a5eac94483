// Package metrics defines the typed hooks the repair core calls
// instead of emitting metrics directly (spec §1: "Metrics emission
// ... the core calls typed hooks"). Emission and JMX proxy plumbing
// stay out of this module; this package only defines the interface
// and one concrete statsd-backed implementation.
package metrics

import (
	"time"

	"github.com/cactus/go-statsd-client/statsd"

	"github.com/coredb/repaird/token"
)

// Sink receives point-in-time notifications from the scheduler and
// job pipeline. Implementations must not block the caller for long;
// the scheduler and job treat these as fire-and-forget.
type Sink interface {
	// JobScheduled fires once a job's store row has been persisted
	// and it has been handed to the schedule manager.
	JobScheduled(table token.TableReference, clusterWide bool)

	// RangeOutcome fires after each range task completes, whatever
	// the outcome (success, no-op, failure).
	RangeOutcome(table token.TableReference, outcome string, d time.Duration)

	// LockContended fires whenever a task defers because its range
	// lock was already held.
	LockContended(table token.TableReference)

	// SweepTick fires once per periodic sweep with the number of
	// persisted jobs it newly adopted.
	SweepTick(adopted int)

	// JobFinished fires when a job reaches a terminal state.
	JobFinished(table token.TableReference, status string)
}

// NopSink discards everything; the default for callers (and tests)
// that don't want metrics wiring.
type NopSink struct{}

func (NopSink) JobScheduled(token.TableReference, bool)                 {}
func (NopSink) RangeOutcome(token.TableReference, string, time.Duration) {}
func (NopSink) LockContended(token.TableReference)                      {}
func (NopSink) SweepTick(int)                                           {}
func (NopSink) JobFinished(token.TableReference, string)                {}

// StatsdSink reports through a statsd client.
type StatsdSink struct {
	client statsd.Statter
	prefix string
}

func NewStatsdSink(client statsd.Statter, prefix string) *StatsdSink {
	return &StatsdSink{client: client, prefix: prefix}
}

func (s *StatsdSink) stat(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "." + name
}

func (s *StatsdSink) JobScheduled(table token.TableReference, clusterWide bool) {
	name := "job_scheduled.local"
	if clusterWide {
		name = "job_scheduled.cluster_wide"
	}
	_ = s.client.Inc(s.stat(name), 1, 1.0)
}

func (s *StatsdSink) RangeOutcome(table token.TableReference, outcome string, d time.Duration) {
	_ = s.client.Inc(s.stat("range_outcome."+outcome), 1, 1.0)
	_ = s.client.TimingDuration(s.stat("range_duration"), d, 1.0)
}

func (s *StatsdSink) LockContended(table token.TableReference) {
	_ = s.client.Inc(s.stat("lock_contended"), 1, 1.0)
}

func (s *StatsdSink) SweepTick(adopted int) {
	_ = s.client.Gauge(s.stat("sweep_adopted"), int64(adopted), 1.0)
}

func (s *StatsdSink) JobFinished(table token.TableReference, status string) {
	_ = s.client.Inc(s.stat("job_finished."+status), 1, 1.0)
}
