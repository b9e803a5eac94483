// Package config is the explicit construction-time configuration spec
// §9's design notes call for in place of a builder: every collaborator
// the scheduler needs is a required field, validated once at
// construction, so a misconfigured scheduler fails fast instead of
// panicking deep inside a sweep.
package config

import (
	"fmt"

	"github.com/coredb/repaird/history"
	"github.com/coredb/repaird/jmx"
	"github.com/coredb/repaird/lock"
	"github.com/coredb/repaird/manager"
	"github.com/coredb/repaird/metrics"
	"github.com/coredb/repaird/repairaction"
	"github.com/coredb/repaird/replication"
	"github.com/coredb/repaird/store"
)

// Config bundles every collaborator spec §4.5 says the scheduler
// binds to at construction: a jmx proxy factory, metrics sink,
// schedule manager, replication oracle, lock-type policy, repair
// configuration, repair-history sink, and on-demand status store. The
// periodic sweep interval is also explicit here rather than hardcoded;
// WithDefaults sets it to 10 seconds when it is left unset.
type Config struct {
	JmxProxies        jmx.ProxyFactory
	Metrics           metrics.Sink
	Manager           manager.Manager
	Oracle            replication.Oracle
	LockType          lock.Type
	Locks             lock.Factory
	Datacenter        string
	RepairConfig      repairaction.Configuration
	RepairAction      repairaction.Action
	History           history.Sink
	Store             store.Store
	SweepIntervalSecs int
}

// Validate enforces that every required collaborator is present. It
// is called once, at construction, never on the hot path.
func (c Config) Validate() error {
	switch {
	case c.Manager == nil:
		return fmt.Errorf("config: schedule manager is required")
	case c.Oracle == nil:
		return fmt.Errorf("config: replication oracle is required")
	case c.Locks == nil:
		return fmt.Errorf("config: lock factory is required")
	case c.LockType == "":
		return fmt.Errorf("config: lock type is required")
	case c.LockType == lock.Datacenter && c.Datacenter == "":
		return fmt.Errorf("config: datacenter id is required under the datacenter lock policy")
	case c.RepairAction == nil:
		return fmt.Errorf("config: repair action is required")
	case c.Store == nil:
		return fmt.Errorf("config: on-demand status store is required")
	}
	return nil
}

// WithDefaults returns a copy of c with optional fields filled in.
// Required fields are left untouched; call Validate first to catch
// their absence.
func (c Config) WithDefaults() Config {
	if c.Metrics == nil {
		c.Metrics = metrics.NopSink{}
	}
	if c.History == nil {
		c.History = history.NopSink{}
	}
	if c.SweepIntervalSecs <= 0 {
		c.SweepIntervalSecs = 10
	}
	if c.RepairConfig == (repairaction.Configuration{}) {
		c.RepairConfig = repairaction.DefaultConfiguration()
	}
	return c
}
