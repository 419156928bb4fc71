package matcher

import (
	"context"
	"testing"
	"time"

	"github.com/Pharaoh-Labs/teamarr/internal/domain"
)

func manUnited() domain.Team {
	return domain.Team{ID: "manu", Name: "Manchester United", ShortName: "Man United", Abbreviation: "MUN", Location: "Manchester", League: "epl"}
}

func chelsea() domain.Team {
	return domain.Team{ID: "che", Name: "Chelsea", ShortName: "Chelsea", Abbreviation: "CHE", Location: "London", League: "epl"}
}

func TestResolve_MatchesOnBothHomeAndAway(t *testing.T) {
	ev := domain.Event{ID: "evt-1", Name: "Manchester United vs Chelsea", Home: manUnited(), Away: chelsea(), StartTime: time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)}
	patterns := []EventPatterns{BuildEventPatterns(ev, "epl")}

	ep, ok := Resolve(patterns, "manchester united vs chelsea")
	if !ok {
		t.Fatal("expected a match")
	}
	if ep.Event.ID != "evt-1" {
		t.Fatalf("matched wrong event: %+v", ep.Event)
	}
}

func TestResolve_TieBrokenByEarliestStart(t *testing.T) {
	early := domain.Event{ID: "early", Name: "Manchester United vs Chelsea", Home: manUnited(), Away: chelsea(), StartTime: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	late := domain.Event{ID: "late", Name: "Manchester United vs Chelsea", Home: manUnited(), Away: chelsea(), StartTime: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)}
	patterns := []EventPatterns{BuildEventPatterns(late, "epl"), BuildEventPatterns(early, "epl")}

	ep, ok := Resolve(patterns, "manchester united vs chelsea")
	if !ok {
		t.Fatal("expected a match")
	}
	if ep.Event.ID != "early" {
		t.Fatalf("expected the earlier-starting event to win a tie, got %s", ep.Event.ID)
	}
}

func TestResolve_FallsBackToEventNamePattern(t *testing.T) {
	ev := domain.Event{ID: "evt-1", Name: "All-Star Weekend", ShortName: "ASW", Home: domain.Team{Name: "Team A"}, Away: domain.Team{Name: "Team B"}, StartTime: time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)}
	patterns := []EventPatterns{BuildEventPatterns(ev, "nba")}

	ep, ok := Resolve(patterns, "all star weekend")
	if !ok {
		t.Fatal("expected event-name fallback match")
	}
	if ep.Event.ID != "evt-1" {
		t.Fatalf("matched wrong event: %+v", ep.Event)
	}
}

func TestResolve_NoMatch(t *testing.T) {
	ev := domain.Event{ID: "evt-1", Name: "Manchester United vs Chelsea", Home: manUnited(), Away: chelsea(), StartTime: time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)}
	patterns := []EventPatterns{BuildEventPatterns(ev, "epl")}

	if _, ok := Resolve(patterns, "warriors vs suns"); ok {
		t.Fatal("expected no match")
	}
}

type fakeSource struct {
	events map[string][]domain.Event
}

func (f *fakeSource) GetEvents(ctx context.Context, league string, targetDate time.Time) ([]domain.Event, error) {
	return f.events[league], nil
}

func TestMultiLeagueMatcher_NicknameExpansionEndToEnd(t *testing.T) {
	ev := domain.Event{ID: "evt-1", Name: "Manchester United vs Chelsea", Home: manUnited(), Away: chelsea(), StartTime: time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)}
	source := &fakeSource{events: map[string][]domain.Event{"epl": {ev}}}
	single := NewSingleLeagueMatcher(source)
	m := NewMultiLeagueMatcher(single, []string{"epl"}, nil, nil)

	batch, err := m.MatchAll(context.Background(), []domain.Stream{{ID: "s1", Name: "Man U vs Chelsea"}}, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("MatchAll: %v", err)
	}
	if batch.MatchedCount() != 1 {
		t.Fatalf("expected 1 match, got %d (%+v)", batch.MatchedCount(), batch.Results)
	}
	if batch.Results[0].Event == nil || batch.Results[0].Event.ID != "evt-1" {
		t.Fatalf("unexpected match: %+v", batch.Results[0])
	}
}

func TestMultiLeagueMatcher_ExceptionKeywordExcludesBeforeMatching(t *testing.T) {
	ev := domain.Event{ID: "evt-1", Name: "Manchester United vs Chelsea", Home: manUnited(), Away: chelsea(), StartTime: time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)}
	source := &fakeSource{events: map[string][]domain.Event{"epl": {ev}}}
	single := NewSingleLeagueMatcher(source)
	m := NewMultiLeagueMatcher(single, []string{"epl"}, nil, []string{"replay"})

	batch, err := m.MatchAll(context.Background(), []domain.Stream{{ID: "s1", Name: "Man U vs Chelsea (REPLAY)"}}, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("MatchAll: %v", err)
	}
	if batch.MatchedCount() != 0 {
		t.Fatalf("expected exception keyword to short-circuit matching, got %d matches", batch.MatchedCount())
	}
	if !batch.Results[0].IsException() {
		t.Fatal("expected result to be flagged as an exception")
	}
}

func TestMultiLeagueMatcher_LeagueNotInWhitelistIsExcludedNotUnmatched(t *testing.T) {
	ev := domain.Event{ID: "evt-1", Name: "Manchester United vs Chelsea", Home: manUnited(), Away: chelsea(), StartTime: time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)}
	source := &fakeSource{events: map[string][]domain.Event{"epl": {ev}}}
	single := NewSingleLeagueMatcher(source)
	m := NewMultiLeagueMatcher(single, []string{"epl"}, []string{"nba"}, nil)

	batch, err := m.MatchAll(context.Background(), []domain.Stream{{ID: "s1", Name: "Manchester United vs Chelsea"}}, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("MatchAll: %v", err)
	}
	r := batch.Results[0]
	if !r.Matched || r.Included {
		t.Fatalf("expected matched-but-excluded, got matched=%v included=%v", r.Matched, r.Included)
	}
	if batch.ExcludedCount() != 1 || batch.IncludedCount() != 0 {
		t.Fatalf("excluded=%d included=%d", batch.ExcludedCount(), batch.IncludedCount())
	}
}

func TestBatchMatchResult_MatchRateExcludesExceptions(t *testing.T) {
	b := BatchMatchResult{Results: []StreamMatchResult{
		{Matched: true},
		{Matched: false},
		{ExceptionKeyword: "replay"},
	}}
	if got := b.MatchRate(); got != 0.5 {
		t.Fatalf("MatchRate = %v, want 0.5", got)
	}
}
