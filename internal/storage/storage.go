// Package storage is the Postgres-backed persistence layer for team
// configs, event groups, managed channels, and the processing-run ledger.
// Migrations are embedded, idempotent, and guarded by a migrations catalog
// table rather than a plain "re-run every .sql file and ignore
// already-exists errors" pattern, since a partially-applied migration would
// otherwise silently skip statements after the first failure.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/Pharaoh-Labs/teamarr/internal/domain"
)

// ErrChannelNumberConflict is returned by CreateManagedChannel when another
// concurrent allocation has already taken ch.ChannelNumber for the group.
// NextChannelNumber's scan and the insert here are two separate statements
// (a host API call happens in between, so they can't share one
// transaction), so the unique index idx_managed_channels_group_number is
// the actual source of truth; this error lets the caller retry with a
// freshly allocated number instead of failing the stream outright.
var ErrChannelNumberConflict = errors.New("storage: channel number already taken")

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store wraps a *sql.DB with typed accessors for every domain entity.
type Store struct {
	db *sql.DB
}

// Open connects to postgresURL, applies pending migrations, and returns a
// ready Store.
func Open(ctx context.Context, postgresURL string) (*Store, error) {
	db, err := sql.Open("postgres", postgresURL)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	if err := moveAsideLegacySchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applyMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying connection for components (matchcache) that
// operate directly on *sql.DB.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// applyMigrations runs every embedded migration exactly once, tracked in a
// schema_migrations catalog table — each file runs inside its own
// transaction, and a file already recorded as applied is skipped entirely
// rather than re-executed and relying on "already exists" errors.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("storage: create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("storage: read migrations: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var applied bool
		err := db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, name).Scan(&applied)
		if err != nil {
			return fmt.Errorf("storage: check migration %s: %w", name, err)
		}
		if applied {
			continue
		}

		content, err := migrationFiles.ReadFile(path.Join("migrations", name))
		if err != nil {
			return fmt.Errorf("storage: read migration %s: %w", name, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("storage: begin migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("storage: apply migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version) VALUES ($1)`, name); err != nil {
			tx.Rollback()
			return fmt.Errorf("storage: record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("storage: commit migration %s: %w", name, err)
		}
		log.Printf("[storage] applied migration %s", name)
	}
	return nil
}

// moveAsideLegacySchema detects the v1 Teamarr schema (identified by its
// "games" table, which the current schema never creates) and renames it
// out of the way so the new schema can be created cleanly without manual
// intervention.
func moveAsideLegacySchema(ctx context.Context, db *sql.DB) error {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = 'games'
		)`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("storage: detect legacy schema: %w", err)
	}
	if !exists {
		return nil
	}

	suffix := time.Now().UTC().Format("20060102150405")
	legacyTables := []string{"games", "streams", "channels", "matches"}
	for _, t := range legacyTables {
		var present bool
		if err := db.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)`, t).Scan(&present); err != nil {
			return fmt.Errorf("storage: check legacy table %s: %w", t, err)
		}
		if !present {
			continue
		}
		newName := fmt.Sprintf("legacy_%s_%s", t, suffix)
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %q RENAME TO %q`, t, newName)); err != nil {
			return fmt.Errorf("storage: move aside legacy table %s: %w", t, err)
		}
		log.Printf("[storage] moved aside legacy table %s -> %s", t, newName)
	}
	return nil
}

// --- templates --------------------------------------------------------------

// GetTemplate loads a template by id.
func (s *Store) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	var t domain.Template
	var descJSON, pregameJSON, postgameJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, title_pattern, subtitle_pattern, channel_name_pattern,
		       description_options, no_game_title, no_game_description,
		       pregame_periods, postgame_periods, idle_title, idle_description,
		       pregame_minutes, default_duration_hrs
		FROM templates WHERE id = $1`, id).Scan(
		&t.ID, &t.Name, &t.TitlePattern, &t.SubtitlePattern, &t.ChannelNamePattern,
		&descJSON, &t.NoGameTitle, &t.NoGameDescription,
		&pregameJSON, &postgameJSON, &t.IdleTitle, &t.IdleDescription,
		&t.PregameMinutes, &t.DefaultDurationHrs,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get template %s: %w", id, err)
	}
	if err := json.Unmarshal(descJSON, &t.DescriptionOptions); err != nil {
		return nil, fmt.Errorf("storage: decode description options: %w", err)
	}
	if err := json.Unmarshal(pregameJSON, &t.PregamePeriods); err != nil {
		return nil, fmt.Errorf("storage: decode pregame periods: %w", err)
	}
	if err := json.Unmarshal(postgameJSON, &t.PostgamePeriods); err != nil {
		return nil, fmt.Errorf("storage: decode postgame periods: %w", err)
	}
	return &t, nil
}

// --- team configs -------------------------------------------------------------

// ListTeamConfigs returns every configured team channel.
func (s *Store) ListTeamConfigs(ctx context.Context) ([]domain.TeamConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, provider_team_id, league, channel_id, COALESCE(template_id, ''), days_ahead, timezone
		FROM team_configs`)
	if err != nil {
		return nil, fmt.Errorf("storage: list team configs: %w", err)
	}
	defer rows.Close()

	var out []domain.TeamConfig
	for rows.Next() {
		var c domain.TeamConfig
		if err := rows.Scan(&c.ID, &c.ProviderTeamID, &c.League, &c.ChannelID, &c.TemplateID, &c.DaysAhead, &c.Timezone); err != nil {
			return nil, fmt.Errorf("storage: scan team config: %w", err)
		}
		out = append(out, c)
	}
	return out, nil
}

// --- event epg groups ---------------------------------------------------------

// ListEventEPGGroups returns every configured event group.
func (s *Store) ListEventEPGGroups(ctx context.Context) ([]domain.EventEPGGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, leagues, exception_keywords, include_leagues,
		       refresh_interval_seconds, channel_start, create_timing, delete_timing,
		       COALESCE(template_id, ''), timezone, epg_source_id
		FROM event_epg_groups`)
	if err != nil {
		return nil, fmt.Errorf("storage: list event groups: %w", err)
	}
	defer rows.Close()

	var out []domain.EventEPGGroup
	for rows.Next() {
		var g domain.EventEPGGroup
		var leaguesJSON, exceptionJSON, includeJSON []byte
		var refreshSeconds int
		if err := rows.Scan(&g.ID, &g.Name, &leaguesJSON, &exceptionJSON, &includeJSON,
			&refreshSeconds, &g.ChannelStart, &g.CreateTiming, &g.DeleteTiming,
			&g.TemplateID, &g.Timezone, &g.EPGSourceID); err != nil {
			return nil, fmt.Errorf("storage: scan event group: %w", err)
		}
		g.RefreshInterval = time.Duration(refreshSeconds) * time.Second
		if err := json.Unmarshal(leaguesJSON, &g.Leagues); err != nil {
			return nil, fmt.Errorf("storage: decode leagues: %w", err)
		}
		if err := json.Unmarshal(exceptionJSON, &g.ExceptionKeywords); err != nil {
			return nil, fmt.Errorf("storage: decode exception keywords: %w", err)
		}
		if err := json.Unmarshal(includeJSON, &g.IncludeLeagues); err != nil {
			return nil, fmt.Errorf("storage: decode include leagues: %w", err)
		}
		out = append(out, g)
	}
	return out, nil
}

// --- managed channels (implements lifecycle.ChannelStore) --------------------

// GetManagedChannelByEvent returns the channel already created for an
// event in a group, if any.
func (s *Store) GetManagedChannelByEvent(ctx context.Context, eventID, groupID string) (*domain.ManagedChannel, error) {
	ch, err := s.scanManagedChannel(s.db.QueryRowContext(ctx, `
		SELECT id, group_id, host_channel_id, host_stream_id, channel_number, event_id,
		       league, home_team, away_team, event_date, channel_name,
		       scheduled_delete_at, created_at, deleted_at
		FROM managed_channels
		WHERE event_id = $1 AND group_id = $2 AND deleted_at IS NULL`, eventID, groupID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ch, err
}

// NextChannelNumber allocates the lowest unused channel number for a group,
// starting at channel_start and reusing numbers freed by deleted channels
// rather than only ever growing from the current maximum. The scan runs
// under a transaction that locks the group's settings row, so two
// concurrent calls for the same group don't read the same gap; the caller
// still has to treat ErrChannelNumberConflict from CreateManagedChannel as
// the final word, since the actual insert happens later, after the host
// API creates the channel.
func (s *Store) NextChannelNumber(ctx context.Context, groupID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage: begin next channel number for group %s: %w", groupID, err)
	}
	defer tx.Rollback()

	var channelStart sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT channel_start FROM event_epg_groups WHERE id = $1 FOR UPDATE`, groupID).Scan(&channelStart); err != nil {
		return 0, fmt.Errorf("storage: load channel_start for group %s: %w", groupID, err)
	}
	if !channelStart.Valid {
		return 0, fmt.Errorf("storage: group %s has no channel_start configured", groupID)
	}

	var free sql.NullInt64
	if err := tx.QueryRowContext(ctx, `
		WITH bounds AS (
			SELECT $1::int AS lo, COALESCE(MAX(channel_number), $1::int - 1) + 1 AS hi
			FROM managed_channels WHERE group_id = $2 AND deleted_at IS NULL
		)
		SELECT MIN(n) FROM bounds, generate_series(bounds.lo, bounds.hi) AS n
		WHERE NOT EXISTS (
			SELECT 1 FROM managed_channels
			WHERE group_id = $2 AND channel_number = n AND deleted_at IS NULL
		)`, channelStart.Int64, groupID).Scan(&free); err != nil {
		return 0, fmt.Errorf("storage: scan free channel number for group %s: %w", groupID, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage: commit next channel number for group %s: %w", groupID, err)
	}
	if !free.Valid {
		return int(channelStart.Int64), nil
	}
	return int(free.Int64), nil
}

// CreateManagedChannel persists a newly created channel record. If another
// concurrent allocation already took ch.ChannelNumber for this group, it
// returns ErrChannelNumberConflict instead of a generic error.
func (s *Store) CreateManagedChannel(ctx context.Context, ch domain.ManagedChannel) error {
	if ch.ID == "" {
		ch.ID = fmt.Sprintf("%s:%s", ch.GroupID, ch.EventID)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO managed_channels
			(id, group_id, host_channel_id, host_stream_id, channel_number, event_id,
			 league, home_team, away_team, event_date, channel_name, scheduled_delete_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		ch.ID, ch.GroupID, ch.HostChannelID, ch.HostStreamID, ch.ChannelNumber, ch.EventID,
		ch.League, ch.HomeTeam, ch.AwayTeam, ch.EventDate, ch.ChannelName, ch.ScheduledDeleteAt, ch.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == "idx_managed_channels_group_number" {
			return ErrChannelNumberConflict
		}
		return fmt.Errorf("storage: create managed channel: %w", err)
	}
	return nil
}

// ManagedChannelsForGroup returns every non-deleted channel in a group.
func (s *Store) ManagedChannelsForGroup(ctx context.Context, groupID string) ([]domain.ManagedChannel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, host_channel_id, host_stream_id, channel_number, event_id,
		       league, home_team, away_team, event_date, channel_name,
		       scheduled_delete_at, created_at, deleted_at
		FROM managed_channels
		WHERE group_id = $1 AND deleted_at IS NULL`, groupID)
	if err != nil {
		return nil, fmt.Errorf("storage: list managed channels for group %s: %w", groupID, err)
	}
	defer rows.Close()

	var out []domain.ManagedChannel
	for rows.Next() {
		ch, err := s.scanManagedChannelRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ch)
	}
	return out, nil
}

// MarkManagedChannelDeleted soft-deletes a managed channel.
func (s *Store) MarkManagedChannelDeleted(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE managed_channels SET deleted_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: mark channel %s deleted: %w", id, err)
	}
	return nil
}

// ChannelsPendingDeletion returns channels whose scheduled_delete_at has
// passed asOf.
func (s *Store) ChannelsPendingDeletion(ctx context.Context, asOf time.Time) ([]domain.ManagedChannel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, host_channel_id, host_stream_id, channel_number, event_id,
		       league, home_team, away_team, event_date, channel_name,
		       scheduled_delete_at, created_at, deleted_at
		FROM managed_channels
		WHERE deleted_at IS NULL AND scheduled_delete_at IS NOT NULL AND scheduled_delete_at <= $1`, asOf)
	if err != nil {
		return nil, fmt.Errorf("storage: list pending deletions: %w", err)
	}
	defer rows.Close()

	var out []domain.ManagedChannel
	for rows.Next() {
		ch, err := s.scanManagedChannelRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ch)
	}
	return out, nil
}

func (s *Store) scanManagedChannel(row *sql.Row) (*domain.ManagedChannel, error) {
	var ch domain.ManagedChannel
	err := row.Scan(&ch.ID, &ch.GroupID, &ch.HostChannelID, &ch.HostStreamID, &ch.ChannelNumber, &ch.EventID,
		&ch.League, &ch.HomeTeam, &ch.AwayTeam, &ch.EventDate, &ch.ChannelName,
		&ch.ScheduledDeleteAt, &ch.CreatedAt, &ch.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (s *Store) scanManagedChannelRows(rows *sql.Rows) (*domain.ManagedChannel, error) {
	var ch domain.ManagedChannel
	err := rows.Scan(&ch.ID, &ch.GroupID, &ch.HostChannelID, &ch.HostStreamID, &ch.ChannelNumber, &ch.EventID,
		&ch.League, &ch.HomeTeam, &ch.AwayTeam, &ch.EventDate, &ch.ChannelName,
		&ch.ScheduledDeleteAt, &ch.CreatedAt, &ch.DeletedAt)
	if err != nil {
		return nil, fmt.Errorf("storage: scan managed channel: %w", err)
	}
	return &ch, nil
}
