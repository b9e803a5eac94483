// Package repairaction defines the boundary between the scheduler
// core and the local database node: the thing that actually performs
// a repair over one token range. Driving the wire protocol and
// talking to JMX are out of scope (spec §1); this package only
// defines the contract an on-demand job calls into.
package repairaction

import (
	"time"

	"github.com/coredb/repaird/token"
)

// ParallelismDegree controls how many replicas participate
// concurrently in a single range repair.
type ParallelismDegree string

const (
	Sequential ParallelismDegree = "sequential"
	Parallel   ParallelismDegree = "parallel"
	DatacenterAware ParallelismDegree = "datacenter_aware"
)

// Validation selects how replicas are compared before streaming
// differences.
type Validation string

const (
	ValidationFull        Validation = "full"
	ValidationNone        Validation = "none"
)

// RepairType distinguishes the incremental vs. full repair the local
// node is asked to run.
type RepairType string

const (
	Incremental RepairType = "incremental"
	Full        RepairType = "full"
)

// Priority is forwarded to the local node's job scheduler so
// on-demand repairs can be prioritized against the sibling time-driven
// scheduler's work (that scheduler itself is out of scope, per spec
// §1).
type Priority int

// Configuration is the RepairConfiguration spec §4.4/§4.5 names:
// the parallelism, validation, repair type and priority an
// OnDemandRepairJob uses for every task it runs.
type Configuration struct {
	Parallelism ParallelismDegree
	Validation  Validation
	RepairType  RepairType
	Priority    Priority
	Timeout     time.Duration
}

// DefaultConfiguration mirrors the conservative defaults a fresh
// daemon would ship with: sequential, fully validated, incremental
// repair at normal priority.
func DefaultConfiguration() Configuration {
	return Configuration{
		Parallelism: Sequential,
		Validation:  ValidationFull,
		RepairType:  Incremental,
		Priority:    0,
		Timeout:     time.Hour,
	}
}

// Outcome is what a single range repair reports back.
type Outcome int

const (
	Success Outcome = iota
	NoOp
	Failure
)

// Action invokes a repair on the local node for one range. It is the
// only collaborator that actually talks to the database's repair
// machinery; this module only calls it.
type Action interface {
	Run(table token.TableReference, r token.TokenRange, cfg Configuration) (Outcome, error)
}
