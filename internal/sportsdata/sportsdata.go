// Package sportsdata routes league lookups across an ordered list of
// providers, first-hit-wins. No caching at this layer — caches live in
// internal/matchcache and in the on-disk XMLTV artefacts.
package sportsdata

import (
	"context"
	"time"

	"github.com/Pharaoh-Labs/teamarr/internal/domain"
	"github.com/Pharaoh-Labs/teamarr/internal/providers"
)

// Service routes queries to the first provider that supports the league and
// returns the first non-empty result, falling through to the next provider
// on an empty result.
type Service struct {
	providers []providers.Provider
}

// New builds a Service over an ordered provider list.
func New(ordered ...providers.Provider) *Service {
	return &Service{providers: ordered}
}

// AddProvider appends a provider to the end of the routing order.
func (s *Service) AddProvider(p providers.Provider) {
	s.providers = append(s.providers, p)
}

func (s *Service) forLeague(league string) []providers.Provider {
	var matched []providers.Provider
	for _, p := range s.providers {
		if p.SupportsLeague(league) {
			matched = append(matched, p)
		}
	}
	return matched
}

// GetEvents returns the first non-empty scoreboard result for league/date.
func (s *Service) GetEvents(ctx context.Context, league string, targetDate time.Time) ([]domain.Event, error) {
	for _, p := range s.forLeague(league) {
		events, err := p.GetEvents(ctx, league, targetDate)
		if err != nil {
			continue
		}
		if len(events) > 0 {
			return events, nil
		}
	}
	return nil, nil
}

// GetTeamSchedule returns the first non-empty schedule result.
func (s *Service) GetTeamSchedule(ctx context.Context, teamID, league string, daysAhead int) ([]domain.Event, error) {
	for _, p := range s.forLeague(league) {
		events, err := p.GetTeamSchedule(ctx, teamID, league, daysAhead)
		if err != nil {
			continue
		}
		if len(events) > 0 {
			return events, nil
		}
	}
	return nil, nil
}

// GetTeam returns the first non-nil team result.
func (s *Service) GetTeam(ctx context.Context, teamID, league string) (*domain.Team, error) {
	for _, p := range s.forLeague(league) {
		team, err := p.GetTeam(ctx, teamID, league)
		if err != nil {
			continue
		}
		if team != nil {
			return team, nil
		}
	}
	return nil, nil
}

// GetEvent returns the first non-nil single-event result.
func (s *Service) GetEvent(ctx context.Context, eventID, league string) (*domain.Event, error) {
	for _, p := range s.forLeague(league) {
		event, err := p.GetEvent(ctx, eventID, league)
		if err != nil {
			continue
		}
		if event != nil {
			return event, nil
		}
	}
	return nil, nil
}
