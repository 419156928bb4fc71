// Package stats manages the processing-run ledger: every generation opens a
// ProcessingRun row, and on completion or failure writes its counts back. It
// also serves the admin dashboard's latest-run quadrants and historical
// daily rollups.
package stats

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Pharaoh-Labs/teamarr/internal/domain"
)

// Ledger records processing runs against Postgres via database/sql + lib/pq.
type Ledger struct {
	db *sql.DB
}

// New wraps an open *sql.DB. Callers own the connection's lifecycle.
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// StartRun opens a new ProcessingRun row with status=running and advances
// the persisted generation counter in the same transaction, so the run and
// the generation it's stamped with are committed atomically and two
// simultaneous calls can never be handed the same generation.
func (l *Ledger) StartRun(ctx context.Context, runType, groupID string) (string, int64, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, fmt.Errorf("stats: begin start run: %w", err)
	}
	defer tx.Rollback()

	var generation int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO settings (key, value) VALUES ('next_generation', '1')
		ON CONFLICT (key) DO UPDATE SET value = (settings.value::bigint + 1)::text
		RETURNING value::bigint`).Scan(&generation)
	if err != nil {
		return "", 0, fmt.Errorf("stats: advance generation: %w", err)
	}

	id := fmt.Sprintf("%s-%s", runType, uuid.New().String())
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO processing_runs (id, run_type, group_id, status, generation, started_at)
		VALUES ($1, $2, $3, $4, $5, now())`,
		id, runType, groupID, domain.RunRunning, generation); err != nil {
		return "", 0, fmt.Errorf("stats: start run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", 0, fmt.Errorf("stats: commit start run: %w", err)
	}
	return id, generation, nil
}

// CompleteRun writes final counts and marks the run successful.
func (l *Ledger) CompleteRun(ctx context.Context, runID string, run domain.ProcessingRun) error {
	_, err := l.db.ExecContext(ctx, `
		UPDATE processing_runs SET
			status = $2, finished_at = now(),
			streams_fetched = $3, streams_matched = $4, streams_unmatched = $5, streams_cached = $6,
			programmes_total = $7, programmes_events = $8, programmes_pregame = $9,
			programmes_postgame = $10, programmes_idle = $11,
			teams_processed = $12, groups_processed = $13
		WHERE id = $1`,
		runID, domain.RunSuccess,
		run.StreamsFetched, run.StreamsMatched, run.StreamsUnmatched, run.StreamsCached,
		run.ProgrammesTotal, run.ProgrammesEvents, run.ProgrammesPregame,
		run.ProgrammesPostgame, run.ProgrammesIdle,
		run.TeamsProcessed, run.GroupsProcessed,
	)
	if err != nil {
		return fmt.Errorf("stats: complete run %s: %w", runID, err)
	}
	return nil
}

// FailRun marks the run failed with an error summary.
func (l *Ledger) FailRun(ctx context.Context, runID string, cause error) error {
	_, err := l.db.ExecContext(ctx, `
		UPDATE processing_runs SET status = $2, finished_at = now(), error_summary = $3
		WHERE id = $1`,
		runID, domain.RunFailed, cause.Error())
	if err != nil {
		return fmt.Errorf("stats: fail run %s: %w", runID, err)
	}
	return nil
}

// RecordMatchedStream appends a per-run matched-stream row used by the
// admin surface's match-result drill-down.
func (l *Ledger) RecordMatchedStream(ctx context.Context, m domain.MatchedStream) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO matched_streams (run_id, group_id, stream_id, stream_name, event_id, league, included, reason, score)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		m.RunID, m.GroupID, m.StreamID, m.StreamName, m.EventID, m.League, m.Included, m.Reason, m.Score)
	if err != nil {
		return fmt.Errorf("stats: record matched stream: %w", err)
	}
	return nil
}

// RecordFailedMatch appends a per-run unmatched-stream row.
func (l *Ledger) RecordFailedMatch(ctx context.Context, f domain.FailedMatch) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO failed_matches (run_id, group_id, stream_id, stream_name, reason)
		VALUES ($1,$2,$3,$4,$5)`,
		f.RunID, f.GroupID, f.StreamID, f.StreamName, f.Reason)
	if err != nil {
		return fmt.Errorf("stats: record failed match: %w", err)
	}
	return nil
}

// GetRun loads a single run by id.
func (l *Ledger) GetRun(ctx context.Context, runID string) (*domain.ProcessingRun, error) {
	var r domain.ProcessingRun
	err := l.db.QueryRowContext(ctx, `
		SELECT id, run_type, group_id, status, started_at, finished_at,
		       streams_fetched, streams_matched, streams_unmatched, streams_cached,
		       programmes_total, programmes_events, programmes_pregame, programmes_postgame, programmes_idle,
		       teams_processed, groups_processed, error_summary, generation
		FROM processing_runs WHERE id = $1`, runID).Scan(
		&r.ID, &r.RunType, &r.GroupID, &r.Status, &r.StartedAt, &r.FinishedAt,
		&r.StreamsFetched, &r.StreamsMatched, &r.StreamsUnmatched, &r.StreamsCached,
		&r.ProgrammesTotal, &r.ProgrammesEvents, &r.ProgrammesPregame, &r.ProgrammesPostgame, &r.ProgrammesIdle,
		&r.TeamsProcessed, &r.GroupsProcessed, &r.ErrorSummary, &r.Generation,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stats: get run %s: %w", runID, err)
	}
	return &r, nil
}

// ListRuns returns the most recent runs, newest first, bounded by limit.
func (l *Ledger) ListRuns(ctx context.Context, limit int) ([]domain.ProcessingRun, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, run_type, group_id, status, started_at, finished_at,
		       streams_fetched, streams_matched, streams_unmatched, streams_cached,
		       programmes_total, programmes_events, programmes_pregame, programmes_postgame, programmes_idle,
		       teams_processed, groups_processed, error_summary, generation
		FROM processing_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("stats: list runs: %w", err)
	}
	defer rows.Close()

	var out []domain.ProcessingRun
	for rows.Next() {
		var r domain.ProcessingRun
		if err := rows.Scan(
			&r.ID, &r.RunType, &r.GroupID, &r.Status, &r.StartedAt, &r.FinishedAt,
			&r.StreamsFetched, &r.StreamsMatched, &r.StreamsUnmatched, &r.StreamsCached,
			&r.ProgrammesTotal, &r.ProgrammesEvents, &r.ProgrammesPregame, &r.ProgrammesPostgame, &r.ProgrammesIdle,
			&r.TeamsProcessed, &r.GroupsProcessed, &r.ErrorSummary, &r.Generation,
		); err != nil {
			return nil, fmt.Errorf("stats: scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

// DashboardQuadrant is one of the four latest-run summaries the admin
// dashboard shows: Teams, Event Groups, EPG, Channels.
type DashboardQuadrant struct {
	RunType    string     `json:"run_type"`
	LastRunAt  *time.Time `json:"last_run_at"`
	LastStatus string     `json:"last_status"`
	Processed  int        `json:"processed"`
	Matched    int        `json:"matched"`
	Unmatched  int        `json:"unmatched"`
}

// Dashboard returns the latest run per run_type.
func (l *Ledger) Dashboard(ctx context.Context) ([]DashboardQuadrant, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT DISTINCT ON (run_type) run_type, started_at, status,
		       teams_processed + groups_processed, streams_matched, streams_unmatched
		FROM processing_runs
		ORDER BY run_type, started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("stats: dashboard: %w", err)
	}
	defer rows.Close()

	var out []DashboardQuadrant
	for rows.Next() {
		var q DashboardQuadrant
		var startedAt time.Time
		if err := rows.Scan(&q.RunType, &startedAt, &q.LastStatus, &q.Processed, &q.Matched, &q.Unmatched); err != nil {
			return nil, fmt.Errorf("stats: scan dashboard row: %w", err)
		}
		q.LastRunAt = &startedAt
		out = append(out, q)
	}
	return out, nil
}

// DailyRollup is one day's aggregate counts across every run.
type DailyRollup struct {
	Day       string `json:"day"`
	Runs      int    `json:"runs"`
	Matched   int    `json:"matched"`
	Unmatched int    `json:"unmatched"`
	Failed    int    `json:"failed"`
}

// History returns daily rollups for the last `days` days.
func (l *Ledger) History(ctx context.Context, days int) ([]DailyRollup, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT to_char(started_at, 'YYYY-MM-DD') AS day,
		       COUNT(*),
		       COALESCE(SUM(streams_matched), 0),
		       COALESCE(SUM(streams_unmatched), 0),
		       COUNT(*) FILTER (WHERE status = 'failed')
		FROM processing_runs
		WHERE started_at >= now() - ($1 || ' days')::interval
		GROUP BY day
		ORDER BY day DESC`, days)
	if err != nil {
		return nil, fmt.Errorf("stats: history: %w", err)
	}
	defer rows.Close()

	var out []DailyRollup
	for rows.Next() {
		var d DailyRollup
		if err := rows.Scan(&d.Day, &d.Runs, &d.Matched, &d.Unmatched, &d.Failed); err != nil {
			return nil, fmt.Errorf("stats: scan rollup: %w", err)
		}
		out = append(out, d)
	}
	return out, nil
}
