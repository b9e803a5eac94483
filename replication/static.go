package replication

import (
	"fmt"
	"sync"

	"github.com/coredb/repaird/token"
)

// StaticOracle is a fixed, test-only Oracle: a fully-specified
// token->replica map the test installs up front, plus per-table
// schema existence. Tests mutate it between sweeps to simulate
// topology changes (S4) or restarts (S3) without a real cluster.
type StaticOracle struct {
	mu       sync.RWMutex
	schemas  map[string]map[string]bool // keyspace -> table -> exists
	ranges   map[token.TableReference]map[token.TokenRange][]token.NodeId
	vnodes   map[token.TableReference][]token.VnodeState
}

func NewStaticOracle() *StaticOracle {
	return &StaticOracle{
		schemas: make(map[string]map[string]bool),
		ranges:  make(map[token.TableReference]map[token.TokenRange][]token.NodeId),
		vnodes:  make(map[token.TableReference][]token.VnodeState),
	}
}

// SetTable registers that keyspace.table exists with the given
// range->replica mapping, and (re)computes vnode states for reporting.
func (o *StaticOracle) SetTable(table token.TableReference, ranges map[token.TokenRange][]token.NodeId) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.schemas[table.Keyspace] == nil {
		o.schemas[table.Keyspace] = make(map[string]bool)
	}
	o.schemas[table.Keyspace][table.Table] = true
	o.ranges[table] = ranges

	states := make([]token.VnodeState, 0, len(ranges))
	for r, replicas := range ranges {
		states = append(states, token.VnodeState{Range: r, Replicas: replicas})
	}
	o.vnodes[table] = states
}

func (o *StaticOracle) LocalRanges(table token.TableReference) ([]token.TokenRange, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	mapping, ok := o.ranges[table]
	if !ok {
		return nil, fmt.Errorf("replication: unknown table %s", table)
	}
	ranges := make([]token.TokenRange, 0, len(mapping))
	for r := range mapping {
		ranges = append(ranges, r)
	}
	return ranges, nil
}

func (o *StaticOracle) ReplicasOf(table token.TableReference, r token.TokenRange) ([]token.NodeId, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	mapping, ok := o.ranges[table]
	if !ok {
		return nil, fmt.Errorf("replication: unknown table %s", table)
	}
	return mapping[r], nil
}

func (o *StaticOracle) TokenMapHash(table token.TableReference) (int64, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	mapping, ok := o.ranges[table]
	if !ok {
		return 0, fmt.Errorf("replication: unknown table %s", table)
	}
	return HashMapping(mapping), nil
}

func (o *StaticOracle) TableExists(keyspace, table string) (bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	tables, ok := o.schemas[keyspace]
	if !ok {
		return false, nil
	}
	return tables[table], nil
}

func (o *StaticOracle) VnodeStates(table token.TableReference) ([]token.VnodeState, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]token.VnodeState(nil), o.vnodes[table]...), nil
}
