// package history persists a record of past sync runs so match-rate drift
// and source provenance stay inspectable after the terminal output is gone.
package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dsoriano/cratesync/internal/shared"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_runs (
	id TEXT PRIMARY KEY,
	started_at TIMESTAMP NOT NULL,
	source_type TEXT NOT NULL,
	source_path TEXT NOT NULL,
	playlists INTEGER NOT NULL,
	matched INTEGER NOT NULL,
	unmatched INTEGER NOT NULL,
	cache_hits INTEGER NOT NULL,
	api_lookups INTEGER NOT NULL,
	dry_run INTEGER NOT NULL,
	threshold INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sync_runs_started_at ON sync_runs(started_at);
`

// Run is one recorded sync run.
type Run struct {
	ID         string
	StartedAt  time.Time
	SourceType string
	SourcePath string
	Playlists  int
	Matched    int
	Unmatched  int
	CacheHits  int
	APILookups int
	DryRun     bool
	Threshold  int
}

// MatchRate reports the run's overall match percentage.
func (r *Run) MatchRate() float64 {
	total := r.Matched + r.Unmatched
	if total == 0 {
		return 0
	}
	return float64(r.Matched) / float64(total) * 100
}

// Repository stores sync runs in SQLite.
type Repository struct {
	db *sql.DB
}

// Open opens (creating if needed) the run history database at path.
func Open(path string) (*Repository, error) {
	db, err := shared.NewDatabase(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// Record inserts a run, generating an id and timestamp when absent.
func (r *Repository) Record(run *Run) error {
	if run.ID == "" {
		run.ID = shared.GenerateID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	query := `
		INSERT INTO sync_runs (
			id, started_at, source_type, source_path, playlists,
			matched, unmatched, cache_hits, api_lookups, dry_run, threshold
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query,
		run.ID,
		run.StartedAt,
		run.SourceType,
		run.SourcePath,
		run.Playlists,
		run.Matched,
		run.Unmatched,
		run.CacheHits,
		run.APILookups,
		run.DryRun,
		run.Threshold,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (r *Repository) Recent(limit int) ([]Run, error) {
	query := `
		SELECT
			id, started_at, source_type, source_path, playlists,
			matched, unmatched, cache_hits, api_lookups, dry_run, threshold
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT ?
	`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		err := rows.Scan(
			&run.ID,
			&run.StartedAt,
			&run.SourceType,
			&run.SourcePath,
			&run.Playlists,
			&run.Matched,
			&run.Unmatched,
			&run.CacheHits,
			&run.APILookups,
			&run.DryRun,
			&run.Threshold,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sync runs: %w", err)
	}
	return runs, nil
}
