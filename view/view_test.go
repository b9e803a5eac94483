package view

import (
	"encoding/json"
	"testing"

	"github.com/coredb/repaird/job"
	"github.com/coredb/repaird/replication"
	"github.com/coredb/repaird/store"
	"github.com/coredb/repaird/token"
)

func TestFromOngoingComputesCompletedRatio(t *testing.T) {
	backing := store.NewMemoryStore(token.NewNodeId())
	table := token.TableReference{Keyspace: "ks", Table: "t"}
	r1 := token.TokenRange{Start: 0, End: 10}
	r2 := token.TokenRange{Start: 10, End: 20}

	oracle := replication.NewStaticOracle()
	oracle.SetTable(table, map[token.TokenRange][]token.NodeId{
		r1: {token.NewNodeId()},
		r2: {token.NewNodeId()},
	})
	hash, _ := oracle.TokenMapHash(table)

	j := job.New(token.NewJobId(), backing.GetHostId(), table, hash, token.NewRangeSet(r1, r2), 42, backing)
	if err := j.Persist(); err != nil {
		t.Fatalf("persist: %v", err)
	}

	v := FromOngoing(j, oracle)
	if v.CompletedRatio != 0 {
		t.Fatalf("expected ratio 0 before any range is repaired, got %f", v.CompletedRatio)
	}
	if v.StartTimeMs != 42 {
		t.Fatalf("expected start time to be carried through, got %d", v.StartTimeMs)
	}
	if len(v.VirtualNodes) != 2 {
		t.Fatalf("expected 2 virtual nodes, got %d", len(v.VirtualNodes))
	}

	if err := j.MarkRangeFinished(r1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v = FromOngoing(j, oracle)
	if v.CompletedRatio != 0.5 {
		t.Fatalf("expected ratio 0.5 with one of two ranges repaired, got %f", v.CompletedRatio)
	}

	for _, vn := range v.VirtualNodes {
		if vn.StartToken == r1.Start && vn.EndToken == r1.End && !vn.Repaired {
			t.Fatalf("expected r1's virtual node to be marked repaired")
		}
	}
}

func TestFromRecordMatchesFromOngoingAtCompletion(t *testing.T) {
	backing := store.NewMemoryStore(token.NewNodeId())
	table := token.TableReference{Keyspace: "ks", Table: "t"}
	r1 := token.TokenRange{Start: 0, End: 10}

	oracle := replication.NewStaticOracle()
	oracle.SetTable(table, map[token.TokenRange][]token.NodeId{r1: {token.NewNodeId()}})
	hash, _ := oracle.TokenMapHash(table)

	j := job.New(token.NewJobId(), backing.GetHostId(), table, hash, token.NewRangeSet(r1), 0, backing)
	if err := j.Persist(); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if err := j.MarkRangeFinished(r1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := j.Finish(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records, err := backing.GetAllJobs(oracle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly one record")
	}

	fromRecord := FromRecord(records[0], oracle)
	if fromRecord.CompletedRatio != 1.0 {
		t.Fatalf("expected ratio 1.0 for a finished job, got %f", fromRecord.CompletedRatio)
	}
	if fromRecord.Status != store.Finished {
		t.Fatalf("expected status finished, got %s", fromRecord.Status)
	}
}

func TestJobMarshalsToTheDocumentedJSONShape(t *testing.T) {
	v := Job{
		Id:             token.NewJobId(),
		HostId:         token.NewNodeId(),
		Keyspace:       "ks",
		Table:          "t",
		Status:         store.Started,
		CompletedRatio: 0.5,
		StartTimeMs:    42,
		VirtualNodes: []VirtualNode{
			{StartToken: 0, EndToken: 10, Replicas: []token.NodeId{token.NewNodeId()}, Repaired: true},
		},
	}

	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, key := range []string{"id", "hostId", "keyspace", "table", "status", "completedRatio", "startTimeMs", "isClusterWide", "virtualNodes"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("expected JSON key %q, got %v", key, decoded)
		}
	}
	if _, ok := decoded["id"].(string); !ok {
		t.Fatalf("expected id to render as a UUID string, got %T %v", decoded["id"], decoded["id"])
	}
	if decoded["id"] != v.Id.String() {
		t.Fatalf("expected id to round-trip through String(), got %v", decoded["id"])
	}
	if _, ok := decoded["completedTimeMs"]; ok {
		t.Fatalf("expected completedTimeMs to be omitted when zero, got %v", decoded)
	}

	vns, ok := decoded["virtualNodes"].([]interface{})
	if !ok || len(vns) != 1 {
		t.Fatalf("expected one virtualNodes entry, got %v", decoded["virtualNodes"])
	}
	vn := vns[0].(map[string]interface{})
	for _, key := range []string{"startToken", "endToken", "replicas", "lastRepairedAtInMs", "repaired"} {
		if _, ok := vn[key]; !ok {
			t.Fatalf("expected virtualNode JSON key %q, got %v", key, vn)
		}
	}
}
