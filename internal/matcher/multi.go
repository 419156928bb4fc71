// multi.go — multi-league matcher. Wraps the single-league matcher across a
// configured ordered list of leagues, applying exception keyword exclusion
// and a whitelist gate, and aggregating batch statistics.
package matcher

import (
	"context"
	"strings"
	"time"

	"github.com/Pharaoh-Labs/teamarr/internal/domain"
	"github.com/Pharaoh-Labs/teamarr/internal/normalize"
)

// StreamMatchResult is the per-stream outcome of a multi-league match.
type StreamMatchResult struct {
	StreamName       string
	StreamID         string
	Matched          bool
	Event            *domain.Event
	League           string
	Included         bool
	ExclusionReason  string
	ExceptionKeyword string
}

// IsException reports whether this stream was excluded by an exception keyword.
func (r StreamMatchResult) IsException() bool { return r.ExceptionKeyword != "" }

// BatchMatchResult aggregates a full batch of stream matches.
type BatchMatchResult struct {
	Results         []StreamMatchResult
	TargetDate      time.Time
	LeaguesSearched []string
	IncludeLeagues  []string
	EventsFound     int
}

func (b BatchMatchResult) Total() int { return len(b.Results) }

func (b BatchMatchResult) MatchedCount() int {
	n := 0
	for _, r := range b.Results {
		if r.Matched {
			n++
		}
	}
	return n
}

func (b BatchMatchResult) IncludedCount() int {
	n := 0
	for _, r := range b.Results {
		if r.Included {
			n++
		}
	}
	return n
}

func (b BatchMatchResult) ExcludedCount() int {
	n := 0
	for _, r := range b.Results {
		if r.Matched && !r.Included {
			n++
		}
	}
	return n
}

func (b BatchMatchResult) UnmatchedCount() int {
	n := 0
	for _, r := range b.Results {
		if !r.Matched && !r.IsException() {
			n++
		}
	}
	return n
}

func (b BatchMatchResult) ExceptionCount() int {
	n := 0
	for _, r := range b.Results {
		if r.IsException() {
			n++
		}
	}
	return n
}

// MatchRate excludes exceptions from its denominator.
func (b BatchMatchResult) MatchRate() float64 {
	nonException := b.Total() - b.ExceptionCount()
	if nonException == 0 {
		return 0
	}
	return float64(b.MatchedCount()) / float64(nonException)
}

// MultiLeagueMatcher wraps SingleLeagueMatcher across an ordered league list.
type MultiLeagueMatcher struct {
	single            *SingleLeagueMatcher
	searchLeagues     []string
	includeLeagues    map[string]bool // nil means "all leagues allowed"
	exceptionKeywords []string

	// per-run pattern cache, keyed by league, in searchLeagues order
	leaguePatterns []EventPatterns
}

// NewMultiLeagueMatcher builds a matcher over an ordered league list. An
// empty includeLeagues means every searched league is whitelisted.
func NewMultiLeagueMatcher(single *SingleLeagueMatcher, searchLeagues, includeLeagues, exceptionKeywords []string) *MultiLeagueMatcher {
	var include map[string]bool
	if len(includeLeagues) > 0 {
		include = make(map[string]bool, len(includeLeagues))
		for _, l := range includeLeagues {
			include[l] = true
		}
	}
	lowerKeywords := make([]string, len(exceptionKeywords))
	for i, kw := range exceptionKeywords {
		lowerKeywords[i] = strings.ToLower(kw)
	}
	return &MultiLeagueMatcher{
		single:            single,
		searchLeagues:     searchLeagues,
		includeLeagues:    include,
		exceptionKeywords: lowerKeywords,
	}
}

// MatchAll matches every stream name against events from the configured
// leagues on targetDate.
func (m *MultiLeagueMatcher) MatchAll(ctx context.Context, streams []domain.Stream, targetDate time.Time) (BatchMatchResult, error) {
	if err := m.buildLeaguePatterns(ctx, targetDate); err != nil {
		return BatchMatchResult{}, err
	}

	results := make([]StreamMatchResult, 0, len(streams))
	for _, s := range streams {
		results = append(results, m.matchStream(s))
	}

	includeList := m.searchLeagues
	if m.includeLeagues != nil {
		includeList = make([]string, 0, len(m.includeLeagues))
		for l := range m.includeLeagues {
			includeList = append(includeList, l)
		}
	}

	return BatchMatchResult{
		Results:         results,
		TargetDate:      targetDate,
		LeaguesSearched: m.searchLeagues,
		IncludeLeagues:  includeList,
		EventsFound:     len(m.leaguePatterns),
	}, nil
}

// buildLeaguePatterns fetches and precomputes patterns for every configured
// league, preserving configured order so the per-league groupings survive
// for findMatchingEvent's ordered scan, rather than a single flattened list.
func (m *MultiLeagueMatcher) buildLeaguePatterns(ctx context.Context, targetDate time.Time) error {
	m.leaguePatterns = nil
	for _, league := range m.searchLeagues {
		patterns, err := m.single.BuildPatterns(ctx, league, targetDate)
		if err != nil {
			continue // degrade to no events for this league rather than failing the batch
		}
		m.leaguePatterns = append(m.leaguePatterns, patterns...)
	}
	return nil
}

func (m *MultiLeagueMatcher) matchStream(s domain.Stream) StreamMatchResult {
	streamLower := strings.ToLower(s.Name)

	for _, kw := range m.exceptionKeywords {
		if strings.Contains(streamLower, kw) {
			return StreamMatchResult{
				StreamName:       s.Name,
				StreamID:         s.ID,
				Matched:          false,
				ExceptionKeyword: kw,
				ExclusionReason:  "exception",
			}
		}
	}

	// the haystack goes through the same normalization pipeline as the
	// patterns it's compared against, so dictionary-folded nicknames
	// (e.g. "Man U" -> "manchester united") actually line up
	streamNormalized := normalize.Normalize(s.Name)
	ep, found := m.findMatchingEvent(streamNormalized)
	if !found {
		return StreamMatchResult{
			StreamName:      s.Name,
			StreamID:        s.ID,
			Matched:         false,
			ExclusionReason: "unmatched",
		}
	}

	included := m.isLeagueIncluded(ep.League)
	reason := ""
	if !included {
		reason = "league_not_in_whitelist"
	}

	event := ep.Event
	return StreamMatchResult{
		StreamName:      s.Name,
		StreamID:        s.ID,
		Matched:         true,
		Event:           &event,
		League:          ep.League,
		Included:        included,
		ExclusionReason: reason,
	}
}

// findMatchingEvent iterates leagues in configured order; the first league
// with a matching event wins. Within a league ties are resolved the same
// way the single-league matcher resolves them. streamNormalized must have
// already passed through normalize.Normalize.
func (m *MultiLeagueMatcher) findMatchingEvent(streamNormalized string) (EventPatterns, bool) {
	for _, league := range m.searchLeagues {
		var perLeague []EventPatterns
		for _, ep := range m.leaguePatterns {
			if ep.League == league {
				perLeague = append(perLeague, ep)
			}
		}
		if len(perLeague) == 0 {
			continue
		}
		if ep, ok := Resolve(perLeague, streamNormalized); ok {
			return ep, true
		}
	}
	return EventPatterns{}, false
}

func (m *MultiLeagueMatcher) isLeagueIncluded(league string) bool {
	if m.includeLeagues == nil {
		return true
	}
	return m.includeLeagues[league]
}
