package template

import (
	"testing"
	"time"

	"github.com/Pharaoh-Labs/teamarr/internal/domain"
)

func sampleEvent() domain.Event {
	return domain.Event{
		ID:        "evt1",
		Name:      "Lakers at Celtics",
		StartTime: time.Date(2026, 3, 5, 19, 30, 0, 0, time.UTC),
		Home:      domain.Team{ID: "bos", Name: "Celtics", Abbreviation: "BOS", Record: "40-20"},
		Away:      domain.Team{ID: "lal", Name: "Lakers", Abbreviation: "LAL", Record: "35-25"},
		HomeScore: &domain.Score{Value: 110, Streak: "W3"},
		AwayScore: &domain.Score{Value: 102, Streak: "L1"},
		Status:    domain.EventStatus{State: domain.StateFinal},
		Venue:     domain.Venue{Name: "TD Garden", City: "Boston"},
		League:    "NBA",
		Odds:      domain.Odds{HasOdds: true, Spread: "-4.5", MoneylineHome: "-180", MoneylineAway: "+150"},
	}
}

func TestRender_BaseContextSubstitution(t *testing.T) {
	ctx := NewContext(sampleEvent(), "bos", nil, nil)
	got := ctx.Render("{team_name} vs {opponent_name} ({team_record})")
	want := "Celtics vs Lakers (40-20)"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRender_MissingNextContextRendersEmpty(t *testing.T) {
	ctx := NewContext(sampleEvent(), "bos", nil, nil)
	got := ctx.Render("Next up: {team_name.next}")
	if got != "Next up: " {
		t.Fatalf("got %q", got)
	}
}

func TestRender_MissingVariableRendersEmpty(t *testing.T) {
	ctx := NewContext(sampleEvent(), "bos", nil, nil)
	got := ctx.Render("Value: {does_not_exist}")
	if got != "Value: " {
		t.Fatalf("got %q", got)
	}
}

func TestRender_NextContextPopulated(t *testing.T) {
	next := sampleEvent()
	next.Home.Record = "41-20"
	ctx := NewContext(sampleEvent(), "bos", &next, nil)
	got := ctx.Render("{team_record.next}")
	if got != "41-20" {
		t.Fatalf("got %q, want 41-20", got)
	}
}

func TestBuildVars_IsHomeAndResultText(t *testing.T) {
	v := BuildVars(sampleEvent(), "bos")
	if v["is_home"] != "true" {
		t.Fatalf("expected is_home=true, got %q", v["is_home"])
	}
	if v["result_text"] != "W 110-102" {
		t.Fatalf("got result_text=%q", v["result_text"])
	}
}

func TestBuildVars_AwayPerspective(t *testing.T) {
	v := BuildVars(sampleEvent(), "lal")
	if v["is_home"] != "false" {
		t.Fatalf("expected is_home=false")
	}
	if v["result_text"] != "L 102-110" {
		t.Fatalf("got result_text=%q", v["result_text"])
	}
}

func TestResolveDescription_ConditionalWinsOverFallback(t *testing.T) {
	opts := []domain.DescriptionOption{
		{Priority: 100, Body: "generic recap"},
		{Priority: 10, Condition: "streak_count>=3", Body: "win streak recap"},
	}
	v := BuildVars(sampleEvent(), "bos")
	got := ResolveDescription(opts, v)
	if got != "win streak recap" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveDescription_FallbackWhenNoConditionMatches(t *testing.T) {
	opts := []domain.DescriptionOption{
		{Priority: 100, Body: "first fallback"},
		{Priority: 10, Condition: "is_playoff", Body: "playoff recap"},
		{Priority: 100, Body: "last fallback wins"},
	}
	v := BuildVars(sampleEvent(), "bos")
	got := ResolveDescription(opts, v)
	if got != "last fallback wins" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveDescription_AscendingPriorityOrder(t *testing.T) {
	opts := []domain.DescriptionOption{
		{Priority: 20, Condition: "is_final", Body: "later but still matches"},
		{Priority: 5, Condition: "is_live", Body: "earlier, does not match"},
	}
	v := BuildVars(sampleEvent(), "bos")
	got := ResolveDescription(opts, v)
	if got != "later but still matches" {
		t.Fatalf("got %q", got)
	}
}
