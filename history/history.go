// Package history defines the repair-history sink spec §4.5 binds at
// construction: a durable audit trail of completed range repairs,
// distinct from the on-demand status store (which exists for live
// coordination, not long-term history) and from metrics (which is
// aggregate, not per-range).
package history

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/coredb/repaird/token"
)

// Entry is one completed-or-failed range repair, as recorded for
// audit purposes.
type Entry struct {
	JobId       token.JobId
	Table       token.TableReference
	Range       token.TokenRange
	Outcome     string
	StartedAtMs int64
	EndedAtMs   int64
}

// Sink records completed range repairs. Implementations must not
// block the caller for long enough to matter to job throughput;
// writes are best-effort from the scheduler's point of view.
type Sink interface {
	Record(e Entry) error
}

// NopSink discards every entry.
type NopSink struct{}

func (NopSink) Record(Entry) error { return nil }

// CassandraSink appends one row per entry to a dedicated history
// table, separate from the live coordination schema.
type CassandraSink struct {
	session *gocql.Session
	ttl     time.Duration
}

func NewCassandraSink(session *gocql.Session, ttl time.Duration) *CassandraSink {
	return &CassandraSink{session: session, ttl: ttl}
}

func (s *CassandraSink) Record(e Entry) error {
	err := s.session.Query(
		`INSERT INTO repair_history
			(job_id, keyspace_name, table_name, range_start, range_end, outcome, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?) USING TTL ?`,
		gocql.UUID(e.JobId), e.Table.Keyspace, e.Table.Table, e.Range.Start, e.Range.End,
		e.Outcome, e.StartedAtMs, e.EndedAtMs, int(s.ttl.Seconds()),
	).Exec()
	if err != nil {
		return fmt.Errorf("history: record %s/%s: %w", e.JobId, e.Range, err)
	}
	return nil
}
