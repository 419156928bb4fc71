// single.go — single-league matcher.
package matcher

import (
	"context"
	"time"

	"github.com/Pharaoh-Labs/teamarr/internal/domain"
	"github.com/Pharaoh-Labs/teamarr/internal/sportsdata"
)

// EventSource fetches events for a league/date; satisfied by *sportsdata.Service.
type EventSource interface {
	GetEvents(ctx context.Context, league string, targetDate time.Time) ([]domain.Event, error)
}

var _ EventSource = (*sportsdata.Service)(nil)

// SingleLeagueMatcher resolves a stream against one league's events for a date.
type SingleLeagueMatcher struct {
	source EventSource
}

// NewSingleLeagueMatcher builds a matcher over an EventSource.
func NewSingleLeagueMatcher(source EventSource) *SingleLeagueMatcher {
	return &SingleLeagueMatcher{source: source}
}

// BuildPatterns fetches league's events for targetDate and precomputes
// EventPatterns for each.
func (m *SingleLeagueMatcher) BuildPatterns(ctx context.Context, league string, targetDate time.Time) ([]EventPatterns, error) {
	events, err := m.source.GetEvents(ctx, league, targetDate)
	if err != nil {
		return nil, err
	}
	patterns := make([]EventPatterns, 0, len(events))
	for _, ev := range events {
		patterns = append(patterns, BuildEventPatterns(ev, league))
	}
	return patterns, nil
}

// Resolve finds the event in patterns that best matches streamNormalized,
// which must already have passed through normalize.Normalize (the same
// pipeline BuildEventPatterns runs its patterns through).
// First pass: an event whose home AND away patterns both fuzzy-match wins,
// scored by combined home+away score, ties broken by earliest start time.
// Second pass (fallback): event-name fuzzy match.
func Resolve(patterns []EventPatterns, streamNormalized string) (EventPatterns, bool) {
	var best EventPatterns
	bestScore := -1.0
	found := false

	for _, ep := range patterns {
		homeMatch, homeOK := matchesAny(ep.HomePatterns, streamNormalized)
		awayMatch, awayOK := matchesAny(ep.AwayPatterns, streamNormalized)
		if !homeOK || !awayOK {
			continue
		}
		combined := homeMatch.Score + awayMatch.Score
		if !found || combined > bestScore ||
			(combined == bestScore && ep.Event.StartTime.Before(best.Event.StartTime)) {
			best = ep
			bestScore = combined
			found = true
		}
	}
	if found {
		return best, true
	}

	// Second pass: event-name fuzzy match.
	for _, ep := range patterns {
		if _, ok := matchesAny(ep.EventPatterns, streamNormalized); ok {
			return ep, true
		}
	}
	return EventPatterns{}, false
}
