package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Pharaoh-Labs/teamarr/internal/matcher"
	"github.com/Pharaoh-Labs/teamarr/internal/xmltv"
)

type fakeGenerator struct {
	teamDoc  xmltv.Document
	eventDoc xmltv.Document
	match    *matcher.StreamMatchResult
	err      error
}

func (f *fakeGenerator) GenerateTeamEPG(ctx context.Context, teamIDs []string, daysAhead int) (xmltv.Document, error) {
	return f.teamDoc, f.err
}

func (f *fakeGenerator) GenerateEventEPG(ctx context.Context, leagues []string, targetDate time.Time, channelPrefix string, pregameMinutes int, durationHours float64) (xmltv.Document, error) {
	return f.eventDoc, f.err
}

func (f *fakeGenerator) MatchEvent(ctx context.Context, league string, targetDate time.Time, team1ID, team2ID, team1Name, team2Name string) (*matcher.StreamMatchResult, error) {
	return f.match, f.err
}

func TestHandleHealth_ReturnsOK(t *testing.T) {
	s := NewServer(&fakeGenerator{}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestHandleTeamEPGXMLTV_ReturnsXML(t *testing.T) {
	gen := &fakeGenerator{teamDoc: xmltv.Document{
		GeneratorName: "Teamarr",
		Channels:      []xmltv.Channel{{ID: "ch1", DisplayName: "Lakers"}},
	}}
	s := NewServer(gen, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/epg/xmltv?team_ids=lakers&days_ahead=5", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Lakers") {
		t.Fatalf("expected XML to contain channel name, got %s", rec.Body.String())
	}
}

func TestHandleEventMatch_NotFoundWhenNoMatch(t *testing.T) {
	s := NewServer(&fakeGenerator{match: nil}, nil, nil)
	body := strings.NewReader(`{"league":"nba","team1_name":"Lakers","team2_name":"Celtics"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/epg/events/match", body)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleEventMatch_MissingLeagueIsBadRequest(t *testing.T) {
	s := NewServer(&fakeGenerator{}, nil, nil)
	body := strings.NewReader(`{"team1_name":"Lakers"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/epg/events/match", body)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleMigrationStatus_EmptyWhenNoMigrator(t *testing.T) {
	s := NewServer(&fakeGenerator{}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/migration/status", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status MigrationStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.LegacyDetected {
		t.Fatalf("expected no legacy schema detected, got %+v", status)
	}
}
