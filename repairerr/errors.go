// Package repairerr defines the error kinds of spec §7 as small,
// typed errors rather than opaque strings, so callers can tell a
// user-facing failure from one that's already been absorbed.
package repairerr

import "fmt"

// InputInvalid is returned when the caller names a table that does
// not exist in the live schema, or one with no local ranges to
// repair.
type InputInvalid struct {
	Reason string
}

func (e *InputInvalid) Error() string { return e.Reason }

func NewInputInvalid(format string, args ...interface{}) *InputInvalid {
	return &InputInvalid{Reason: fmt.Sprintf(format, args...)}
}

// StoreTransient marks a database I/O failure. During a range status
// update it is logged by the schedule manager and the range is tried
// again on a later step; scheduleJob returns it to its caller when the
// new job's row cannot be written.
type StoreTransient struct {
	Cause error
}

func (e *StoreTransient) Error() string { return "store transient failure: " + e.Cause.Error() }
func (e *StoreTransient) Unwrap() error { return e.Cause }

func NewStoreTransient(cause error) *StoreTransient {
	return &StoreTransient{Cause: cause}
}

// StoreConflict marks a failed status transition in the store, such as
// a lost compare-and-set race. It is returned to the caller of
// Finish/Fail and the in-memory job keeps its previous status; nothing
// in this module reloads the row afterwards.
type StoreConflict struct {
	JobId string
}

func (e *StoreConflict) Error() string {
	return fmt.Sprintf("store conflict: job %s lost a concurrent status transition", e.JobId)
}

func NewStoreConflict(jobId string) *StoreConflict {
	return &StoreConflict{JobId: jobId}
}

// LockContended is an expected condition: a distributed lock for a
// range is already held elsewhere. It is never an error in the
// ordinary sense; the task that observes it simply defers.
type LockContended struct {
	LockName string
}

func (e *LockContended) Error() string {
	return fmt.Sprintf("lock contended: %s", e.LockName)
}

func NewLockContended(lockName string) *LockContended {
	return &LockContended{LockName: lockName}
}

// RepairFailed marks that the local repair action itself returned
// failure for one range. The range stays pending; this never causes
// a job-level failure on its own.
type RepairFailed struct {
	Cause error
}

func (e *RepairFailed) Error() string { return "repair failed: " + e.Cause.Error() }
func (e *RepairFailed) Unwrap() error { return e.Cause }

func NewRepairFailed(cause error) *RepairFailed {
	return &RepairFailed{Cause: cause}
}

// TopologyChanged marks that the oracle's current token-map hash no
// longer matches the job's hash at creation. The job must transition
// to failed without executing further range tasks.
type TopologyChanged struct {
	Table string
}

func (e *TopologyChanged) Error() string {
	return fmt.Sprintf("topology changed for table %s since job was created", e.Table)
}

func NewTopologyChanged(table string) *TopologyChanged {
	return &TopologyChanged{Table: table}
}

// Fatal marks an invariant violation in a job's state machine: package
// job returns it when a range is marked finished after the job is
// terminal, or when Finish is called with ranges still remaining.
// Nothing in this module aborts the process on it; the schedule
// manager logs it like any other step error and keeps running.
type Fatal struct {
	Reason string
}

func (e *Fatal) Error() string { return "fatal: " + e.Reason }

func NewFatal(format string, args ...interface{}) *Fatal {
	return &Fatal{Reason: fmt.Sprintf(format, args...)}
}
