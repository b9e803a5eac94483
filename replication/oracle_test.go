package replication

import (
	"testing"

	"github.com/coredb/repaird/token"
)

func TestHashMappingIsOrderIndependent(t *testing.T) {
	n1, n2 := token.NewNodeId(), token.NewNodeId()
	r1 := token.TokenRange{Start: 0, End: 10}
	r2 := token.TokenRange{Start: 10, End: 20}

	a := map[token.TokenRange][]token.NodeId{
		r1: {n1, n2},
		r2: {n2, n1},
	}
	b := map[token.TokenRange][]token.NodeId{
		r2: {n1, n2},
		r1: {n2, n1},
	}

	if HashMapping(a) != HashMapping(b) {
		t.Fatalf("hash must not depend on map iteration or replica list order")
	}
}

func TestHashMappingChangesWithMembership(t *testing.T) {
	n1, n2, n3 := token.NewNodeId(), token.NewNodeId(), token.NewNodeId()
	r1 := token.TokenRange{Start: 0, End: 10}

	before := map[token.TokenRange][]token.NodeId{r1: {n1, n2}}
	after := map[token.TokenRange][]token.NodeId{r1: {n1, n3}}

	if HashMapping(before) == HashMapping(after) {
		t.Fatalf("hash must change when replica membership changes")
	}
}

func TestStaticOracleRoundTrip(t *testing.T) {
	o := NewStaticOracle()
	table := token.TableReference{Keyspace: "ks", Table: "t"}
	n1 := token.NewNodeId()
	ranges := map[token.TokenRange][]token.NodeId{
		{Start: 0, End: 10}: {n1},
	}
	o.SetTable(table, ranges)

	exists, err := o.TableExists("ks", "t")
	if err != nil || !exists {
		t.Fatalf("expected table to exist, got exists=%v err=%v", exists, err)
	}

	missing, err := o.TableExists("ks", "missing")
	if err != nil || missing {
		t.Fatalf("expected unknown table to not exist")
	}

	hash1, err := o.TokenMapHash(table)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	o.SetTable(table, map[token.TokenRange][]token.NodeId{
		{Start: 0, End: 10}: {token.NewNodeId()},
	})
	hash2, err := o.TokenMapHash(table)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash1 == hash2 {
		t.Fatalf("expected hash to change after replacing the replica set")
	}
}
