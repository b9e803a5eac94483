package store

import (
	"fmt"
	"sync"

	"github.com/coredb/repaird/replication"
	"github.com/coredb/repaird/token"
)

// MemoryStore is an in-process Store, the same "mutex-guarded map" the
// teacher's store.redis backing implementation uses (singleValue/
// sync.RWMutex) rather than a real network round trip. Production
// deployments use CassandraStore; MemoryStore exists for the
// scheduler's unit tests and for simulating restarts in isolation.
type MemoryStore struct {
	mu     sync.RWMutex
	hostId token.NodeId
	rows   map[token.JobId]*Record
	now    Clock
}

func NewMemoryStore(hostId token.NodeId) *MemoryStore {
	return &MemoryStore{
		hostId: hostId,
		rows:   make(map[token.JobId]*Record),
		now:    defaultClock,
	}
}

// SetClock overrides "now" for deterministic tests.
func (s *MemoryStore) SetClock(c Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = c
}

func (s *MemoryStore) GetHostId() token.NodeId {
	return s.hostId
}

func (s *MemoryStore) AddNewJob(jobId token.JobId, table token.TableReference, tokenMapHash int64, ranges token.RangeSet, isClusterWide bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rows[jobId]; exists {
		return fmt.Errorf("store: job %s already exists for host %s", jobId, s.hostId)
	}

	s.rows[jobId] = &Record{
		JobId:          jobId,
		HostId:         s.hostId,
		Table:          table,
		TokenMapHash:   tokenMapHash,
		AllRanges:      ranges.Clone(),
		RepairedRanges: token.NewRangeSet(),
		Status:         Started,
		StartTimeMs:    s.now().UnixMilli(),
		IsClusterWide:  isClusterWide,
	}
	return nil
}

func (s *MemoryStore) FinishRange(jobId token.JobId, r token.TokenRange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[jobId]
	if !ok {
		return fmt.Errorf("store: unknown job %s", jobId)
	}
	row.RepairedRanges.Add(r)
	return nil
}

func (s *MemoryStore) Finish(jobId token.JobId) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[jobId]
	if !ok {
		return fmt.Errorf("store: unknown job %s", jobId)
	}
	if !row.AllRanges.IsSubsetOf(row.RepairedRanges) || !row.RepairedRanges.IsSubsetOf(row.AllRanges) {
		return fmt.Errorf("store: job %s cannot finish with remaining ranges", jobId)
	}
	row.Status = Finished
	row.CompletedTimeMs = s.now().UnixMilli()
	return nil
}

func (s *MemoryStore) Fail(jobId token.JobId) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[jobId]
	if !ok {
		return fmt.Errorf("store: unknown job %s", jobId)
	}
	if row.Status == Finished || row.Status == Failed {
		return nil
	}
	row.Status = Failed
	row.CompletedTimeMs = s.now().UnixMilli()
	return nil
}

func (s *MemoryStore) GetOngoingJobs(oracle replication.Oracle) ([]*Record, error) {
	s.mu.RLock()
	snapshot := make([]*Record, 0)
	for _, row := range s.rows {
		if row.HostId != s.hostId || row.Status != Started {
			continue
		}
		snapshot = append(snapshot, row)
	}
	s.mu.RUnlock()

	out := make([]*Record, 0, len(snapshot))
	for _, row := range snapshot {
		hash, err := oracle.TokenMapHash(row.Table)
		if err != nil {
			return nil, err
		}
		clone := cloneRecord(row)
		clone.Stale = hash != row.TokenMapHash
		out = append(out, clone)
	}
	return out, nil
}

func (s *MemoryStore) GetAllJobs(oracle replication.Oracle) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Record, 0)
	for _, row := range s.rows {
		if row.HostId != s.hostId {
			continue
		}
		out = append(out, cloneRecord(row))
	}
	return out, nil
}

func (s *MemoryStore) GetAllClusterWideJobs() ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Record, 0)
	for _, row := range s.rows {
		if row.IsClusterWide {
			out = append(out, cloneRecord(row))
		}
	}
	return out, nil
}

func cloneRecord(r *Record) *Record {
	clone := *r
	clone.AllRanges = r.AllRanges.Clone()
	clone.RepairedRanges = r.RepairedRanges.Clone()
	return &clone
}
