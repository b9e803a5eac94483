package config

import (
	"testing"

	"github.com/coredb/repaird/lock"
	"github.com/coredb/repaird/manager"
	"github.com/coredb/repaird/repairaction"
	"github.com/coredb/repaird/replication"
	"github.com/coredb/repaird/store"
	"github.com/coredb/repaird/token"
)

func validConfig() Config {
	return Config{
		Manager:      manager.NewPool(1),
		Oracle:       replication.NewStaticOracle(),
		Locks:        lock.NewMemoryFactory(),
		LockType:     lock.Vnode,
		RepairAction: repairaction.NewFakeAction(),
		Store:        store.NewMemoryStore(token.NewNodeId()),
	}
}

func TestValidateRejectsMissingRequiredFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c Config) Config
	}{
		{"manager", func(c Config) Config { c.Manager = nil; return c }},
		{"oracle", func(c Config) Config { c.Oracle = nil; return c }},
		{"locks", func(c Config) Config { c.Locks = nil; return c }},
		{"lock type", func(c Config) Config { c.LockType = ""; return c }},
		{"repair action", func(c Config) Config { c.RepairAction = nil; return c }},
		{"store", func(c Config) Config { c.Store = nil; return c }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := tc.mutate(validConfig())
			if err := c.Validate(); err == nil {
				t.Fatalf("expected validation to fail with %s missing", tc.name)
			}
		})
	}
}

func TestValidateRequiresDatacenterOnlyUnderDatacenterLockType(t *testing.T) {
	c := validConfig()
	c.LockType = lock.Datacenter
	c.Datacenter = ""
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation to fail without a datacenter id under the datacenter lock policy")
	}

	c.Datacenter = "dc1"
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error once datacenter is set: %v", err)
	}
}

func TestValidateAcceptsAFullyPopulatedConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWithDefaultsFillsOptionalFields(t *testing.T) {
	c := validConfig().WithDefaults()

	if c.Metrics == nil {
		t.Fatalf("expected a default metrics sink")
	}
	if c.History == nil {
		t.Fatalf("expected a default history sink")
	}
	if c.SweepIntervalSecs != 10 {
		t.Fatalf("expected the default sweep interval to be 10 seconds, got %d", c.SweepIntervalSecs)
	}
	if c.RepairConfig != repairaction.DefaultConfiguration() {
		t.Fatalf("expected the default repair configuration to be filled in")
	}
}

func TestWithDefaultsLeavesExplicitValuesAlone(t *testing.T) {
	c := validConfig()
	c.SweepIntervalSecs = 30
	custom := repairaction.Configuration{Parallelism: repairaction.Parallel}
	c.RepairConfig = custom

	c = c.WithDefaults()
	if c.SweepIntervalSecs != 30 {
		t.Fatalf("expected an explicit sweep interval to survive defaulting")
	}
	if c.RepairConfig != custom {
		t.Fatalf("expected an explicit repair configuration to survive defaulting")
	}
}
