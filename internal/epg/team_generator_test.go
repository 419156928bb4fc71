package epg

import (
	"context"
	"testing"
	"time"

	"github.com/Pharaoh-Labs/teamarr/internal/domain"
)

type fakeSchedule struct {
	events []domain.Event
}

func (f fakeSchedule) GetTeamSchedule(ctx context.Context, teamID, league string, daysAhead int) ([]domain.Event, error) {
	return f.events, nil
}

func TestTeamGenerator_ContiguousNonOverlapping(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	events := []domain.Event{
		{
			ID:        "e1",
			Home:      domain.Team{ID: "t1", Name: "Home"},
			Away:      domain.Team{ID: "t2", Name: "Away"},
			StartTime: now.Add(36 * time.Hour),
			League:    "NBA",
		},
		{
			ID:        "e2",
			Home:      domain.Team{ID: "t1", Name: "Home"},
			Away:      domain.Team{ID: "t3", Name: "Away2"},
			StartTime: now.Add(96 * time.Hour),
			League:    "NBA",
		},
	}
	gen := NewTeamGenerator(fakeSchedule{events: events})
	tmpl := domain.Template{
		TitlePattern:       "{team_name} vs {opponent_name}",
		PregameMinutes:     30,
		DefaultDurationHrs: 3,
		NoGameTitle:        "No Game Today",
		IdleTitle:          "Idle",
	}
	cfg := domain.TeamConfig{ProviderTeamID: "t1", League: "NBA", ChannelID: "chan1", DaysAhead: 7}

	progs, err := gen.Generate(context.Background(), cfg, tmpl, now)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(progs) == 0 {
		t.Fatal("expected programmes")
	}
	for i := 1; i < len(progs); i++ {
		if !progs[i-1].Stop.Equal(progs[i].Start) {
			t.Fatalf("gap/overlap between programme %d (%v-%v) and %d (%v-%v)",
				i-1, progs[i-1].Start, progs[i-1].Stop, i, progs[i].Start, progs[i].Stop)
		}
	}
	if !progs[0].Start.Equal(now) {
		t.Fatalf("expected first programme to start at window start, got %v", progs[0].Start)
	}
}

func TestTeamGenerator_ThreadsNextAndLastGameIntoTemplate(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	events := []domain.Event{
		{ID: "e1", Home: domain.Team{ID: "t1", Name: "Home"}, Away: domain.Team{ID: "t2", Name: "Hawks"}, StartTime: now.Add(12 * time.Hour), League: "NBA"},
		{ID: "e2", Home: domain.Team{ID: "t1", Name: "Home"}, Away: domain.Team{ID: "t3", Name: "Bulls"}, StartTime: now.Add(48 * time.Hour), League: "NBA"},
		{ID: "e3", Home: domain.Team{ID: "t1", Name: "Home"}, Away: domain.Team{ID: "t4", Name: "Magic"}, StartTime: now.Add(84 * time.Hour), League: "NBA"},
	}
	gen := NewTeamGenerator(fakeSchedule{events: events})
	tmpl := domain.Template{
		TitlePattern:       "vs {opponent_name} (next: {opponent_name.next}, last: {opponent_name.last})",
		PregameMinutes:     30,
		DefaultDurationHrs: 3,
		NoGameTitle:        "No Game Today",
		IdleTitle:          "Idle",
	}
	cfg := domain.TeamConfig{ProviderTeamID: "t1", League: "NBA", ChannelID: "chan1", DaysAhead: 7}

	progs, err := gen.Generate(context.Background(), cfg, tmpl, now)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	var gameTitles []string
	for _, p := range progs {
		if p.Title != tmpl.NoGameTitle && p.Title != tmpl.IdleTitle {
			gameTitles = append(gameTitles, p.Title)
		}
	}
	if len(gameTitles) != 3 {
		t.Fatalf("expected 3 game programmes, got %+v", gameTitles)
	}
	if gameTitles[0] != "vs Hawks (next: Bulls, last: )" {
		t.Fatalf("first game title: %q", gameTitles[0])
	}
	if gameTitles[1] != "vs Bulls (next: Magic, last: Hawks)" {
		t.Fatalf("middle game title: %q", gameTitles[1])
	}
	if gameTitles[2] != "vs Magic (next: , last: Bulls)" {
		t.Fatalf("last game title: %q", gameTitles[2])
	}
}

func TestTeamGenerator_NoGamesProducesSingleNoGameBlock(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	gen := NewTeamGenerator(fakeSchedule{})
	tmpl := domain.Template{NoGameTitle: "No Game", IdleTitle: "Idle"}
	cfg := domain.TeamConfig{ProviderTeamID: "t1", DaysAhead: 3}

	progs, err := gen.Generate(context.Background(), cfg, tmpl, now)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(progs) != 1 {
		t.Fatalf("expected 1 filler programme, got %d", len(progs))
	}
	if progs[0].Title != "No Game" {
		t.Fatalf("expected no_game title, got %q", progs[0].Title)
	}
}
