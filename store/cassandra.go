package store

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	logging "github.com/op/go-logging"

	"github.com/coredb/repaird/replication"
	"github.com/coredb/repaird/token"
)

var logger *logging.Logger

func init() {
	logger = logging.MustGetLogger("store")
}

// rangeTuple is the CQL-side shape of a token.TokenRange, matching
// the `frozen<tuple<bigint,bigint>>` column type in SPEC_FULL's
// schema.
type rangeTuple struct {
	Start int64
	End   int64
}

// CassandraStore persists on-demand job rows in a single table keyed
// by (host_id, job_id), per spec §6. All cross-row coordination goes
// through this store; nothing above this package ever sees CQL.
type CassandraStore struct {
	session *gocql.Session
	hostId  token.NodeId
	now     Clock
	ttl     time.Duration
}

// NewCassandraStore wires a store against an already-connected
// session. ttl should match the table's TTL (SPEC_FULL: ~30 days) so
// writes agree with the schema's own expiry.
func NewCassandraStore(session *gocql.Session, hostId token.NodeId, ttl time.Duration) *CassandraStore {
	return &CassandraStore{session: session, hostId: hostId, now: defaultClock, ttl: ttl}
}

func (s *CassandraStore) GetHostId() token.NodeId {
	return s.hostId
}

func (s *CassandraStore) AddNewJob(jobId token.JobId, table token.TableReference, tokenMapHash int64, ranges token.RangeSet, isClusterWide bool) error {
	allRanges := toTuples(ranges)

	applied, err := s.session.Query(
		`INSERT INTO on_demand_repair_status
			(host_id, job_id, keyspace_name, table_name, table_id, token_map_hash,
			 all_ranges, repaired_ranges, status, start_time, is_cluster_wide)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 IF NOT EXISTS USING TTL ?`,
		gocql.UUID(s.hostId), gocql.UUID(jobId), table.Keyspace, table.Table, gocql.UUID(table.Id),
		tokenMapHash, allRanges, []rangeTuple{}, string(Started), s.now().UnixMilli(), isClusterWide, int(s.ttl.Seconds()),
	).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("store: add job %s: %w", jobId, err)
	}
	if !applied {
		return fmt.Errorf("store: job (%s, %s) already exists", s.hostId, jobId)
	}
	return nil
}

func (s *CassandraStore) FinishRange(jobId token.JobId, r token.TokenRange) error {
	// Cassandra set-add is naturally idempotent: adding the same
	// element twice leaves the set unchanged, satisfying spec §8.4
	// without any read-before-write.
	err := s.session.Query(
		`UPDATE on_demand_repair_status SET repaired_ranges = repaired_ranges + ?
		 WHERE host_id = ? AND job_id = ?`,
		[]rangeTuple{{Start: r.Start, End: r.End}}, gocql.UUID(s.hostId), gocql.UUID(jobId),
	).Exec()
	if err != nil {
		return fmt.Errorf("store: finish range %s for job %s: %w", r, jobId, err)
	}
	return nil
}

func (s *CassandraStore) Finish(jobId token.JobId) error {
	row, err := s.getRow(jobId)
	if err != nil {
		return err
	}
	if !row.AllRanges.IsSubsetOf(row.RepairedRanges) {
		return fmt.Errorf("store: job %s cannot finish, ranges remain", jobId)
	}
	return s.transitionStatus(jobId, Finished)
}

func (s *CassandraStore) Fail(jobId token.JobId) error {
	return s.transitionStatus(jobId, Failed)
}

// transitionStatus applies the CAS-guarded terminal transition. A
// lost CAS (someone else already transitioned this row) surfaces to
// the caller as an error; package job reports it as the StoreConflict
// kind from repairerr. The row is not reloaded.
func (s *CassandraStore) transitionStatus(jobId token.JobId, status Status) error {
	applied, err := s.session.Query(
		`UPDATE on_demand_repair_status SET status = ?, completed_time = ?
		 WHERE host_id = ? AND job_id = ? IF status = ?`,
		string(status), s.now(), gocql.UUID(s.hostId), gocql.UUID(jobId), string(Started),
	).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("store: transition job %s to %s: %w", jobId, status, err)
	}
	if !applied {
		return fmt.Errorf("store: job %s was not in status %s", jobId, Started)
	}
	return nil
}

func (s *CassandraStore) GetOngoingJobs(oracle replication.Oracle) ([]*Record, error) {
	iter := s.session.Query(
		`SELECT job_id, keyspace_name, table_name, table_id, token_map_hash,
		        all_ranges, repaired_ranges, status, start_time, completed_time, is_cluster_wide
		 FROM on_demand_repair_status WHERE host_id = ? AND status = ? ALLOW FILTERING`,
		gocql.UUID(s.hostId), string(Started),
	).Iter()

	rows, err := scanAll(iter, s.hostId)
	if err != nil {
		return nil, err
	}

	out := make([]*Record, 0, len(rows))
	for _, row := range rows {
		hash, err := oracle.TokenMapHash(row.Table)
		if err != nil {
			logger.Warningf("store: could not hash token map for %s: %v", row.Table, err)
			return nil, err
		}
		row.Stale = hash != row.TokenMapHash
		out = append(out, row)
	}
	return out, nil
}

func (s *CassandraStore) GetAllJobs(oracle replication.Oracle) ([]*Record, error) {
	iter := s.session.Query(
		`SELECT job_id, keyspace_name, table_name, table_id, token_map_hash,
		        all_ranges, repaired_ranges, status, start_time, completed_time, is_cluster_wide
		 FROM on_demand_repair_status WHERE host_id = ? ALLOW FILTERING`,
		gocql.UUID(s.hostId),
	).Iter()
	return scanAll(iter, s.hostId)
}

func (s *CassandraStore) GetAllClusterWideJobs() ([]*Record, error) {
	iter := s.session.Query(
		`SELECT job_id, host_id, keyspace_name, table_name, table_id, token_map_hash,
		        all_ranges, repaired_ranges, status, start_time, completed_time, is_cluster_wide
		 FROM on_demand_repair_status WHERE is_cluster_wide = true ALLOW FILTERING`,
	).Iter()
	return scanAllAnyHost(iter)
}

func (s *CassandraStore) getRow(jobId token.JobId) (*Record, error) {
	var (
		tableId                        gocql.UUID
		keyspace, tableName, statusRaw string
		tokenMapHash, startTime, completedTime int64
		allRanges, repairedRanges      []rangeTuple
		isClusterWide                  bool
	)
	err := s.session.Query(
		`SELECT keyspace_name, table_name, table_id, token_map_hash,
		        all_ranges, repaired_ranges, status, start_time, completed_time, is_cluster_wide
		 FROM on_demand_repair_status WHERE host_id = ? AND job_id = ?`,
		gocql.UUID(s.hostId), gocql.UUID(jobId),
	).Scan(&keyspace, &tableName, &tableId, &tokenMapHash, &allRanges, &repairedRanges, &statusRaw, &startTime, &completedTime, &isClusterWide)
	if err != nil {
		return nil, fmt.Errorf("store: get job %s: %w", jobId, err)
	}
	return &Record{
		JobId:           jobId,
		HostId:          s.hostId,
		Table:           token.TableReference{Keyspace: keyspace, Table: tableName, Id: toUUID(tableId)},
		TokenMapHash:    tokenMapHash,
		AllRanges:       fromTuples(allRanges),
		RepairedRanges:  fromTuples(repairedRanges),
		Status:          Status(statusRaw),
		StartTimeMs:     startTime,
		CompletedTimeMs: completedTime,
		IsClusterWide:   isClusterWide,
	}, nil
}

func scanAll(iter *gocql.Iter, hostId token.NodeId) ([]*Record, error) {
	out := make([]*Record, 0)
	var (
		jobId                          gocql.UUID
		tableId                        gocql.UUID
		keyspace, tableName, statusRaw string
		tokenMapHash, startTime, completedTime int64
		allRanges, repairedRanges      []rangeTuple
		isClusterWide                  bool
	)
	for iter.Scan(&jobId, &keyspace, &tableName, &tableId, &tokenMapHash,
		&allRanges, &repairedRanges, &statusRaw, &startTime, &completedTime, &isClusterWide) {
		out = append(out, &Record{
			JobId:           token.JobId(jobId),
			HostId:          hostId,
			Table:           token.TableReference{Keyspace: keyspace, Table: tableName, Id: toUUID(tableId)},
			TokenMapHash:    tokenMapHash,
			AllRanges:       fromTuples(allRanges),
			RepairedRanges:  fromTuples(repairedRanges),
			Status:          Status(statusRaw),
			StartTimeMs:     startTime,
			CompletedTimeMs: completedTime,
			IsClusterWide:   isClusterWide,
		})
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("store: scan rows: %w", err)
	}
	return out, nil
}

func scanAllAnyHost(iter *gocql.Iter) ([]*Record, error) {
	out := make([]*Record, 0)
	var (
		jobId, hostId                  gocql.UUID
		tableId                        gocql.UUID
		keyspace, tableName, statusRaw string
		tokenMapHash, startTime, completedTime int64
		allRanges, repairedRanges      []rangeTuple
		isClusterWide                  bool
	)
	for iter.Scan(&jobId, &hostId, &keyspace, &tableName, &tableId, &tokenMapHash,
		&allRanges, &repairedRanges, &statusRaw, &startTime, &completedTime, &isClusterWide) {
		out = append(out, &Record{
			JobId:           token.JobId(jobId),
			HostId:          token.NodeId(hostId),
			Table:           token.TableReference{Keyspace: keyspace, Table: tableName, Id: toUUID(tableId)},
			TokenMapHash:    tokenMapHash,
			AllRanges:       fromTuples(allRanges),
			RepairedRanges:  fromTuples(repairedRanges),
			Status:          Status(statusRaw),
			StartTimeMs:     startTime,
			CompletedTimeMs: completedTime,
			IsClusterWide:   isClusterWide,
		})
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("store: scan rows: %w", err)
	}
	return out, nil
}

func toTuples(ranges token.RangeSet) []rangeTuple {
	out := make([]rangeTuple, 0, ranges.Len())
	for _, r := range ranges.Slice() {
		out = append(out, rangeTuple{Start: r.Start, End: r.End})
	}
	return out
}

func fromTuples(tuples []rangeTuple) token.RangeSet {
	set := token.NewRangeSet()
	for _, t := range tuples {
		set.Add(token.TokenRange{Start: t.Start, End: t.End})
	}
	return set
}

func toUUID(id gocql.UUID) uuid.UUID {
	var u uuid.UUID
	copy(u[:], id[:])
	return u
}
