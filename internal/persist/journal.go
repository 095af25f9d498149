package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunRecord is one journaled script run. Tracked values are not stored.
type RunRecord struct {
	RunID     uuid.UUID     `json:"id"`
	Dialect   string        `json:"dialect"`
	Source    string        `json:"source"`
	Accepted  bool          `json:"accepted"`
	Reason    string        `json:"reason,omitempty"`
	Output    string        `json:"output"`
	Failed    bool          `json:"failed"`
	SessionID uint64        `json:"session_id,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

type JournalRepo struct {
	db *DB
}

func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

// WriteRuns writes a batch of run records in a single transaction.
func (r *JournalRepo) WriteRuns(ctx context.Context, runs []RunRecord) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, run := range runs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO script_runs (run_id, dialect, source, accepted, reason, output, failed, session_id, started_at, duration_us)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (run_id) DO NOTHING`,
			run.RunID.String(), run.Dialect, run.Source, run.Accepted, run.Reason,
			run.Output, run.Failed, int64(run.SessionID), run.StartedAt, run.Duration.Microseconds(),
		); err != nil {
			return fmt.Errorf("journal insert: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// RecentRuns returns up to limit runs, newest first.
func (r *JournalRepo) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT run_id::text, dialect, source, accepted, reason, output, failed, session_id, started_at, duration_us
		 FROM script_runs ORDER BY started_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			run    RunRecord
			id     string
			sessID int64
			durUS  int64
		)
		if err := rows.Scan(&id, &run.Dialect, &run.Source, &run.Accepted, &run.Reason,
			&run.Output, &run.Failed, &sessID, &run.StartedAt, &durUS); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		if run.RunID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("journal run id: %w", err)
		}
		run.SessionID = uint64(sessID)
		run.Duration = time.Duration(durUS) * time.Microsecond
		out = append(out, run)
	}
	return out, rows.Err()
}
