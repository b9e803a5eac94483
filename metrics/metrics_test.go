package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/coredb/repaird/token"
)

// fakeStatter is a hand-rolled statsd.Statter double: counters and
// timers recorded in plain maps, no mocking framework.
type fakeStatter struct {
	mu       sync.Mutex
	counters map[string]int64
	timings  map[string]time.Duration
	gauges   map[string]int64
}

func newFakeStatter() *fakeStatter {
	return &fakeStatter{
		counters: make(map[string]int64),
		timings:  make(map[string]time.Duration),
		gauges:   make(map[string]int64),
	}
}

func (s *fakeStatter) Inc(stat string, value int64, rate float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[stat] += value
	return nil
}

func (s *fakeStatter) Dec(stat string, value int64, rate float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[stat] -= value
	return nil
}

func (s *fakeStatter) Gauge(stat string, value int64, rate float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gauges[stat] = value
	return nil
}

func (s *fakeStatter) GaugeDelta(stat string, value int64, rate float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gauges[stat] += value
	return nil
}

func (s *fakeStatter) Timing(stat string, delta int64, rate float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timings[stat] = time.Duration(delta) * time.Millisecond
	return nil
}

func (s *fakeStatter) TimingDuration(stat string, delta time.Duration, rate float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timings[stat] = delta
	return nil
}

func (s *fakeStatter) Set(stat string, value string, rate float32) error { return nil }
func (s *fakeStatter) SetInt(stat string, value int64, rate float32) error {
	return nil
}
func (s *fakeStatter) Raw(stat string, value string, rate float32) error { return nil }
func (s *fakeStatter) SetPrefix(prefix string)                          {}
func (s *fakeStatter) Close() error                                     { return nil }

func (s *fakeStatter) count(stat string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[stat]
}

func TestStatsdSinkJobScheduledDistinguishesClusterWide(t *testing.T) {
	stats := newFakeStatter()
	sink := NewStatsdSink(stats, "repaird")
	table := token.TableReference{Keyspace: "ks", Table: "t"}

	sink.JobScheduled(table, false)
	sink.JobScheduled(table, true)

	if stats.count("repaird.job_scheduled.local") != 1 {
		t.Fatalf("expected one local job_scheduled increment")
	}
	if stats.count("repaird.job_scheduled.cluster_wide") != 1 {
		t.Fatalf("expected one cluster-wide job_scheduled increment")
	}
}

func TestStatsdSinkRangeOutcomeRecordsDuration(t *testing.T) {
	stats := newFakeStatter()
	sink := NewStatsdSink(stats, "")
	table := token.TableReference{Keyspace: "ks", Table: "t"}

	sink.RangeOutcome(table, "success", 5*time.Millisecond)

	if stats.count("range_outcome.success") != 1 {
		t.Fatalf("expected one range_outcome.success increment")
	}
	if stats.timings["range_duration"] != 5*time.Millisecond {
		t.Fatalf("expected the reported duration to be recorded, got %v", stats.timings["range_duration"])
	}
}

func TestStatsdSinkPrefixIsOptional(t *testing.T) {
	stats := newFakeStatter()
	sink := NewStatsdSink(stats, "")
	table := token.TableReference{Keyspace: "ks", Table: "t"}

	sink.LockContended(table)
	if stats.count("lock_contended") != 1 {
		t.Fatalf("expected an un-prefixed stat name when prefix is empty")
	}
}

func TestNopSinkNeverPanics(t *testing.T) {
	var sink Sink = NopSink{}
	table := token.TableReference{Keyspace: "ks", Table: "t"}

	sink.JobScheduled(table, false)
	sink.RangeOutcome(table, "success", time.Second)
	sink.LockContended(table)
	sink.SweepTick(3)
	sink.JobFinished(table, "finished")
}
