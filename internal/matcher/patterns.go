// Package matcher implements the single-league and multi-league
// stream-to-event matchers: EventPatterns, StreamMatchResult,
// BatchMatchResult, and MultiLeagueMatcher. Leagues are iterated in
// configured order, first league with a matching event wins, rather than a
// single flattened, league-agnostic pattern list (see DESIGN.md).
package matcher

import (
	"github.com/Pharaoh-Labs/teamarr/internal/domain"
	"github.com/Pharaoh-Labs/teamarr/internal/normalize"
)

// EventPatterns holds the precomputed search patterns for one event.
type EventPatterns struct {
	Event         domain.Event
	League        string
	HomePatterns  []string
	AwayPatterns  []string
	EventPatterns []string
}

// BuildEventPatterns precomputes home/away/event patterns for an event:
// home and away are each the set {full name, short name, abbreviation,
// location-only} of that team, and the event patterns are the event's name
// and short name, all after normalization and deduplication.
func BuildEventPatterns(event domain.Event, league string) EventPatterns {
	return EventPatterns{
		Event:         event,
		League:        league,
		HomePatterns:  teamPatterns(event.Home),
		AwayPatterns:  teamPatterns(event.Away),
		EventPatterns: uniquePatterns([]string{event.Name, event.ShortName}),
	}
}

func teamPatterns(t domain.Team) []string {
	candidates := []string{t.Name, t.ShortName, t.Abbreviation, t.Location}
	return uniquePatterns(candidates)
}

// uniquePatterns normalizes and dedupes candidate pattern strings, dropping
// empty and single-character entries.
func uniquePatterns(values []string) []string {
	seen := make(map[string]bool, len(values))
	var result []string
	for _, v := range values {
		if v == "" {
			continue
		}
		n := normalize.Normalize(v)
		if len(n) < 2 || seen[n] {
			continue
		}
		seen[n] = true
		result = append(result, n)
	}
	return result
}

// matchesAny wraps normalize.MatchesAny with the default threshold.
func matchesAny(patterns []string, haystack string) (normalize.Match, bool) {
	return normalize.MatchesAny(patterns, haystack, normalize.DefaultThreshold)
}
