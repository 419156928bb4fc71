package normalize

import "testing"

func TestNormalize_Idempotent(t *testing.T) {
	cases := []string{
		"US: ESPN Sports HD - Man U vs Chelsea 8:00pm",
		"Köln vs Bayern München (DE)",
		"Liverpool vs Manchester United (Spanish)",
		"  extra   whitespace  ",
		"",
	}
	for _, s := range cases {
		once := Normalize(s)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: once=%q twice=%q", s, once, twice)
		}
	}
}

func TestNormalize_CityTeamVariants(t *testing.T) {
	got := Normalize("Man U vs Chelsea")
	if got != "manchester united vs chelsea" {
		t.Errorf("got %q", got)
	}
}

func TestNormalize_RegionalSpelling(t *testing.T) {
	got := Normalize("Köln vs Bayern München")
	if got != "cologne vs bayern munich" {
		t.Errorf("got %q", got)
	}
}

func TestNormalize_ParentheticalStripped(t *testing.T) {
	got := Normalize("Liverpool vs Manchester United (Spanish)")
	if got != "liverpool vs manchester united" {
		t.Errorf("got %q", got)
	}
}

func TestNormalize_StateCodeKept(t *testing.T) {
	got := Normalize("Rangers vs Knicks (NY)")
	if got != "rangers vs knicks (ny)" {
		t.Errorf("got %q", got)
	}
}

func TestSplitMatchup_FirstSeparatorWins(t *testing.T) {
	away, home, ok := SplitMatchup("chelsea vs. manchester united vs arsenal")
	if !ok {
		t.Fatal("expected a split")
	}
	if away != "chelsea" {
		t.Errorf("away = %q, want chelsea", away)
	}
	if home != "manchester united vs arsenal" {
		t.Errorf("home = %q", home)
	}
}

func TestSplitMatchup_NoSeparator(t *testing.T) {
	_, _, ok := SplitMatchup("espn sports hd")
	if ok {
		t.Error("expected no split")
	}
}

func TestMatchesAny_NicknameExpansionScoresHigh(t *testing.T) {
	stream := Normalize("Man U vs Chelsea")
	patterns := []string{Normalize("Manchester United")}
	m, ok := MatchesAny(patterns, stream, 50)
	if !ok {
		t.Fatal("expected a match")
	}
	if m.Score < 50 {
		t.Errorf("score too low: %v", m.Score)
	}
}

func TestMatchesAny_BelowThreshold(t *testing.T) {
	_, ok := MatchesAny([]string{"arsenal"}, "completely different text entirely", 75)
	if ok {
		t.Error("expected no match above threshold")
	}
}
