package lock

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
	logging "github.com/op/go-logging"
)

var logger *logging.Logger

func init() {
	logger = logging.MustGetLogger("lock")
}

// CassandraLockFactory acquires locks via a lightweight transaction
// against a dedicated locks table, the same CAS discipline the status
// store uses (spec §4.2: "the underlying database supports
// compare-and-set / lightweight transactions on a primary-key row").
//
// CREATE TABLE locks (
//     name        text PRIMARY KEY,
//     lease_owner uuid,
//     expires_at  timestamp
// );
type CassandraLockFactory struct {
	session *gocql.Session
	owner   gocql.UUID
	lease   time.Duration
}

func NewCassandraLockFactory(session *gocql.Session, owner gocql.UUID, lease time.Duration) *CassandraLockFactory {
	return &CassandraLockFactory{session: session, owner: owner, lease: lease}
}

func (f *CassandraLockFactory) Acquire(name string) (Lock, bool, error) {
	expiresAt := time.Now().Add(f.lease)

	applied, err := f.tryInsert(name, expiresAt)
	if err != nil {
		return nil, false, err
	}
	if applied {
		return &cassandraLock{factory: f, name: name}, true, nil
	}

	// Someone holds it. If their lease has expired, steal it with a
	// second CAS keyed on the stale expiry; otherwise it's genuinely
	// contended.
	stolen, err := f.tryReclaimExpired(name, expiresAt)
	if err != nil {
		return nil, false, err
	}
	if stolen {
		return &cassandraLock{factory: f, name: name}, true, nil
	}
	return nil, false, nil
}

func (f *CassandraLockFactory) tryInsert(name string, expiresAt time.Time) (bool, error) {
	applied, err := f.session.Query(
		`INSERT INTO locks (name, lease_owner, expires_at) VALUES (?, ?, ?) IF NOT EXISTS`,
		name, f.owner, expiresAt,
	).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return false, fmt.Errorf("lock: acquire %s: %w", name, err)
	}
	return applied, nil
}

func (f *CassandraLockFactory) tryReclaimExpired(name string, expiresAt time.Time) (bool, error) {
	var current map[string]interface{} = map[string]interface{}{}
	applied, err := f.session.Query(
		`UPDATE locks SET lease_owner = ?, expires_at = ? WHERE name = ? IF expires_at < ?`,
		f.owner, expiresAt, name, time.Now(),
	).MapScanCAS(current)
	if err != nil {
		return false, fmt.Errorf("lock: reclaim %s: %w", name, err)
	}
	return applied, nil
}

func (f *CassandraLockFactory) release(name string) error {
	applied := false
	err := f.session.Query(
		`DELETE FROM locks WHERE name = ? IF lease_owner = ?`,
		name, f.owner,
	).ScanCAS(&applied)
	if err != nil {
		return fmt.Errorf("lock: release %s: %w", name, err)
	}
	if !applied {
		logger.Debugf("lock %s already released or reclaimed by another owner", name)
	}
	return nil
}

type cassandraLock struct {
	factory *CassandraLockFactory
	name    string
}

func (l *cassandraLock) Release() error {
	return l.factory.release(l.name)
}
