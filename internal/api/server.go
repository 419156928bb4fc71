// Package api is the admin HTTP surface: generation triggers, published
// XMLTV reads, stats/dashboard queries, and the legacy-migration
// status/archive endpoints.
package api

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Pharaoh-Labs/teamarr/internal/domain"
	"github.com/Pharaoh-Labs/teamarr/internal/matcher"
	"github.com/Pharaoh-Labs/teamarr/internal/metrics"
	"github.com/Pharaoh-Labs/teamarr/internal/stats"
	"github.com/Pharaoh-Labs/teamarr/internal/xmltv"
)

// Generator is the subset of generation behavior the HTTP surface
// triggers; the concrete implementation wires together the provider
// adapters, matcher, template engine, and EPG generators.
type Generator interface {
	GenerateTeamEPG(ctx context.Context, teamIDs []string, daysAhead int) (xmltv.Document, error)
	GenerateEventEPG(ctx context.Context, leagues []string, targetDate time.Time, channelPrefix string, pregameMinutes int, durationHours float64) (xmltv.Document, error)
	MatchEvent(ctx context.Context, league string, targetDate time.Time, team1ID, team2ID, team1Name, team2Name string) (*matcher.StreamMatchResult, error)
}

// Migrator is the subset of legacy-schema migration behavior the HTTP
// surface exposes.
type Migrator interface {
	Status(ctx context.Context) (MigrationStatus, error)
	Archive(ctx context.Context) error
	BackupPath(ctx context.Context) (string, error)
}

// MigrationStatus reports whether a legacy V1 schema was detected and
// whether it has since been archived.
type MigrationStatus struct {
	LegacyDetected bool   `json:"legacy_detected"`
	Archived       bool   `json:"archived"`
	ArchivedTables []string `json:"archived_tables,omitempty"`
}

// Server holds all shared dependencies for the admin HTTP surface.
type Server struct {
	gen      Generator
	ledger   *stats.Ledger
	migrator Migrator
}

// NewServer builds a Server. migrator may be nil if legacy migration
// endpoints are not wired (no legacy schema detected at startup).
func NewServer(gen Generator, ledger *stats.Ledger, migrator Migrator) *Server {
	return &Server{gen: gen, ledger: ledger, migrator: migrator}
}

// Routes returns the chi router with every admin route registered.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/epg/generate", s.handleTeamEPGGenerate)
		r.Get("/epg/xmltv", s.handleTeamEPGXMLTV)
		r.Post("/epg/events/generate", s.handleEventEPGGenerate)
		r.Get("/epg/events/xmltv", s.handleEventEPGXMLTV)
		r.Post("/epg/events/match", s.handleEventMatch)

		r.Get("/stats", s.handleStatsSummary)
		r.Get("/stats/dashboard", s.handleStatsDashboard)
		r.Get("/stats/history", s.handleStatsHistory)
		r.Get("/stats/runs", s.handleStatsRuns)
		r.Get("/stats/runs/{id}", s.handleStatsRun)

		r.Get("/migration/status", s.handleMigrationStatus)
		r.Post("/migration/archive", s.handleMigrationArchive)
		r.Get("/migration/download-backup", s.handleMigrationDownloadBackup)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": code, "message": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "teamarr",
	})
}

// writeXMLTV serves doc as an XMLTV document, gzip-encoded when the
// client's Accept-Encoding allows it.
func writeXMLTV(w http.ResponseWriter, r *http.Request, doc xmltv.Document) {
	var wr http.ResponseWriter = w
	if strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		defer gz.Close()
		wr = &gzipResponseWriter{ResponseWriter: w, gz: gz}
	}
	wr.Header().Set("Content-Type", "application/xml; charset=utf-8")
	if err := xmltv.Encode(wr, doc); err != nil {
		writeError(w, http.StatusInternalServerError, "encode_error", "Failed to encode XMLTV")
	}
}

type gzipResponseWriter struct {
	http.ResponseWriter
	gz *gzip.Writer
}

func (g *gzipResponseWriter) Write(b []byte) (int, error) {
	return g.gz.Write(b)
}

// parseTargetDate parses a YYYY-MM-DD query param, defaulting to today in
// UTC when absent.
func parseTargetDate(raw string) (time.Time, error) {
	if raw == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse("2006-01-02", raw)
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// --- EPG generation / reads ----------------------------------------------------

type teamEPGRequest struct {
	TeamIDs   []string `json:"team_ids,omitempty"`
	DaysAhead int      `json:"days_ahead"`
}

func (s *Server) handleTeamEPGGenerate(w http.ResponseWriter, r *http.Request) {
	var req teamEPGRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.DaysAhead <= 0 {
		req.DaysAhead = 7
	}
	doc, err := s.gen.GenerateTeamEPG(r.Context(), req.TeamIDs, req.DaysAhead)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generate_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"channels": len(doc.Channels),
		"programmes": len(doc.Programmes),
	})
}

func (s *Server) handleTeamEPGXMLTV(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	daysAhead := 7
	if d := q.Get("days_ahead"); d != "" {
		if v, err := strconv.Atoi(d); err == nil && v > 0 {
			daysAhead = v
		}
	}
	doc, err := s.gen.GenerateTeamEPG(r.Context(), splitCSV(q.Get("team_ids")), daysAhead)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generate_failed", err.Error())
		return
	}
	writeXMLTV(w, r, doc)
}

type eventEPGRequest struct {
	Leagues        []string `json:"leagues"`
	TargetDate     string   `json:"target_date,omitempty"`
	ChannelPrefix  string   `json:"channel_prefix"`
	PregameMinutes int      `json:"pregame_minutes"`
	DurationHours  float64  `json:"duration_hours"`
}

func (s *Server) handleEventEPGGenerate(w http.ResponseWriter, r *http.Request) {
	var req eventEPGRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	targetDate, err := parseTargetDate(req.TargetDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "target_date must be YYYY-MM-DD")
		return
	}
	if req.PregameMinutes <= 0 {
		req.PregameMinutes = 30
	}
	if req.DurationHours <= 0 {
		req.DurationHours = 3
	}
	doc, err := s.gen.GenerateEventEPG(r.Context(), req.Leagues, targetDate, req.ChannelPrefix, req.PregameMinutes, req.DurationHours)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generate_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"channels":   len(doc.Channels),
		"programmes": len(doc.Programmes),
	})
}

func (s *Server) handleEventEPGXMLTV(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	targetDate, err := parseTargetDate(q.Get("target_date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "target_date must be YYYY-MM-DD")
		return
	}
	pregameMinutes := 30
	if p := q.Get("pregame_minutes"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			pregameMinutes = v
		}
	}
	durationHours := 3.0
	if d := q.Get("duration_hours"); d != "" {
		if v, err := strconv.ParseFloat(d, 64); err == nil && v > 0 {
			durationHours = v
		}
	}
	doc, err := s.gen.GenerateEventEPG(r.Context(), splitCSV(q.Get("leagues")), targetDate,
		q.Get("channel_prefix"), pregameMinutes, durationHours)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generate_failed", err.Error())
		return
	}
	writeXMLTV(w, r, doc)
}

type matchRequest struct {
	League     string `json:"league"`
	TargetDate string `json:"target_date,omitempty"`
	Team1ID    string `json:"team1_id,omitempty"`
	Team2ID    string `json:"team2_id,omitempty"`
	Team1Name  string `json:"team1_name,omitempty"`
	Team2Name  string `json:"team2_name,omitempty"`
}

func (s *Server) handleEventMatch(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "could not decode request body")
		return
	}
	if req.League == "" {
		writeError(w, http.StatusBadRequest, "missing_param", "league is required")
		return
	}
	targetDate, err := parseTargetDate(req.TargetDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "target_date must be YYYY-MM-DD")
		return
	}
	result, err := s.gen.MatchEvent(r.Context(), req.League, targetDate, req.Team1ID, req.Team2ID, req.Team1Name, req.Team2Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "match_failed", err.Error())
		return
	}
	if result == nil {
		writeError(w, http.StatusNotFound, "not_found", "no matching event found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- stats ----------------------------------------------------------------

func (s *Server) handleStatsSummary(w http.ResponseWriter, r *http.Request) {
	runs, err := s.ledger.ListRuns(r.Context(), 1)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "Failed to load stats summary")
		return
	}
	if len(runs) == 0 {
		writeJSON(w, http.StatusOK, map[string]interface{}{"latest_run": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"latest_run": runs[0]})
}

func (s *Server) handleStatsDashboard(w http.ResponseWriter, r *http.Request) {
	quadrants, err := s.ledger.Dashboard(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "Failed to load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"quadrants": quadrants})
}

func (s *Server) handleStatsHistory(w http.ResponseWriter, r *http.Request) {
	days := 30
	if d := r.URL.Query().Get("days"); d != "" {
		if v, err := strconv.Atoi(d); err == nil && v > 0 && v <= 365 {
			days = v
		}
	}
	history, err := s.ledger.History(r.Context(), days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "Failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"days": history})
}

func (s *Server) handleStatsRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}
	runs, err := s.ledger.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "Failed to list runs")
		return
	}

	runType := r.URL.Query().Get("run_type")
	groupID := r.URL.Query().Get("group_id")
	status := r.URL.Query().Get("status")
	filtered := make([]domain.ProcessingRun, 0, len(runs))
	for _, run := range runs {
		if runType != "" && run.RunType != runType {
			continue
		}
		if groupID != "" && run.GroupID != groupID {
			continue
		}
		if status != "" && string(run.Status) != status {
			continue
		}
		filtered = append(filtered, run)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": filtered})
}

func (s *Server) handleStatsRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.ledger.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "Failed to load run")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "not_found", "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// --- legacy migration -------------------------------------------------------

func (s *Server) handleMigrationStatus(w http.ResponseWriter, r *http.Request) {
	if s.migrator == nil {
		writeJSON(w, http.StatusOK, MigrationStatus{})
		return
	}
	status, err := s.migrator.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "status_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleMigrationArchive(w http.ResponseWriter, r *http.Request) {
	if s.migrator == nil {
		writeError(w, http.StatusNotFound, "not_found", "no legacy schema to archive")
		return
	}
	if err := s.migrator.Archive(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "archive_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "archived"})
}

func (s *Server) handleMigrationDownloadBackup(w http.ResponseWriter, r *http.Request) {
	if s.migrator == nil {
		writeError(w, http.StatusNotFound, "not_found", "no backup available")
		return
	}
	path, err := s.migrator.BackupPath(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "backup_failed", err.Error())
		return
	}
	http.ServeFile(w, r, path)
}
