// Package lock defines the distributed lock factory spec §4.4/§6
// names but does not specify: a cluster-scoped mutual exclusion
// primitive keyed by a logical resource name, backed by the database
// itself.
package lock

import (
	"fmt"

	"github.com/coredb/repaird/token"
)

// Type selects how lock names are derived from a (keyspace, table,
// range) tuple, per spec §6.
type Type string

const (
	// Vnode takes one lock per range: at most one repair runs
	// anywhere in the cluster for a given (table, range) at a time.
	Vnode Type = "vnode"

	// Datacenter takes one lock per (datacenter, table): coarser,
	// serializing all ranges owned by a DC for a table.
	Datacenter Type = "datacenter"
)

// Name derives the lock identifier for a range repair under the
// given policy. dc is ignored under Vnode and required under
// Datacenter.
func (t Type) Name(table token.TableReference, r token.TokenRange, dc string) (string, error) {
	switch t {
	case Vnode:
		return fmt.Sprintf("%s/%s/%d/%d", table.Keyspace, table.Table, r.Start, r.End), nil
	case Datacenter:
		if dc == "" {
			return "", fmt.Errorf("lock: datacenter policy requires a non-empty datacenter id")
		}
		return fmt.Sprintf("%s/%s/%s", table.Keyspace, table.Table, dc), nil
	default:
		return "", fmt.Errorf("lock: unknown lock type %q", t)
	}
}

// Lock is a held distributed lock. Release is idempotent: calling it
// twice, or after the lease already expired, is not an error.
type Lock interface {
	Release() error
}

// Factory acquires locks keyed by a logical resource name. Acquire
// must not block waiting for contention to clear: if the resource is
// already locked it returns (nil, false, nil) so the caller can defer
// and retry later, per spec §7 (LockContended is expected, not an
// error).
type Factory interface {
	Acquire(name string) (l Lock, acquired bool, err error)
}
