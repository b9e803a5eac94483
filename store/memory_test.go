package store

import (
	"testing"

	"github.com/coredb/repaird/replication"
	"github.com/coredb/repaird/token"
)

func newTestTable() token.TableReference {
	return token.TableReference{Keyspace: "ks", Table: "t", Id: uuidFromSeed(7)}
}

func uuidFromSeed(b byte) (u [16]byte) {
	u[0] = b
	return u
}

func TestMemoryStoreAddNewJobRejectsDuplicate(t *testing.T) {
	s := NewMemoryStore(token.NewNodeId())
	table := newTestTable()
	jobId := token.NewJobId()
	ranges := token.NewRangeSet(token.TokenRange{Start: 0, End: 10})

	if err := s.AddNewJob(jobId, table, 1, ranges, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AddNewJob(jobId, table, 1, ranges, false); err == nil {
		t.Fatalf("expected an error inserting a duplicate job id")
	}
}

func TestMemoryStoreFinishRequiresAllRangesRepaired(t *testing.T) {
	s := NewMemoryStore(token.NewNodeId())
	table := newTestTable()
	jobId := token.NewJobId()
	r1 := token.TokenRange{Start: 0, End: 10}
	r2 := token.TokenRange{Start: 10, End: 20}
	ranges := token.NewRangeSet(r1, r2)

	if err := s.AddNewJob(jobId, table, 1, ranges, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Finish(jobId); err == nil {
		t.Fatalf("expected finish to fail while ranges remain")
	}

	if err := s.FinishRange(jobId, r1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Finish(jobId); err == nil {
		t.Fatalf("expected finish to still fail with one range remaining")
	}

	if err := s.FinishRange(jobId, r2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Finish(jobId); err != nil {
		t.Fatalf("expected finish to succeed once all ranges are repaired: %v", err)
	}
}

func TestMemoryStoreFinishRangeIsIdempotent(t *testing.T) {
	s := NewMemoryStore(token.NewNodeId())
	table := newTestTable()
	jobId := token.NewJobId()
	r1 := token.TokenRange{Start: 0, End: 10}
	ranges := token.NewRangeSet(r1)

	if err := s.AddNewJob(jobId, table, 1, ranges, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.FinishRange(jobId, r1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.FinishRange(jobId, r1); err != nil {
		t.Fatalf("expected repeated finishRange to be a no-op, got error: %v", err)
	}

	rows, err := s.GetAllJobs(staticOracleFor(table, ranges))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].RepairedRanges.Len() != 1 {
		t.Fatalf("expected exactly one repaired range after duplicate finishRange calls")
	}
}

func TestMemoryStoreGetOngoingJobsMarksStaleOnHashChange(t *testing.T) {
	s := NewMemoryStore(token.NewNodeId())
	table := newTestTable()
	jobId := token.NewJobId()
	ranges := token.NewRangeSet(token.TokenRange{Start: 0, End: 10})

	if err := s.AddNewJob(jobId, table, 1, ranges, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	oracle := replication.NewStaticOracle()
	oracle.SetTable(table, map[token.TokenRange][]token.NodeId{
		{Start: 0, End: 10}: {token.NewNodeId()},
	})

	rows, err := s.GetOngoingJobs(oracle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || !rows[0].Stale {
		t.Fatalf("expected the row to be marked stale since its hash of 1 never matches the oracle's real hash")
	}
}

func staticOracleFor(table token.TableReference, ranges token.RangeSet) *replication.StaticOracle {
	oracle := replication.NewStaticOracle()
	mapping := make(map[token.TokenRange][]token.NodeId)
	for _, r := range ranges.Slice() {
		mapping[r] = []token.NodeId{token.NewNodeId()}
	}
	oracle.SetTable(table, mapping)
	return oracle
}
