// Package providers implements the provider-abstracted fetch-and-normalize
// layer. Providers are values implementing the Provider capability
// interface, registered in an ordered list.
package providers

import (
	"context"
	"time"

	"github.com/Pharaoh-Labs/teamarr/internal/domain"
)

// Provider is the small capability set a sports data source must implement
// to be registered with the sports data service.
type Provider interface {
	Name() string
	SupportsLeague(league string) bool
	GetEvents(ctx context.Context, league string, targetDate time.Time) ([]domain.Event, error)
	GetTeamSchedule(ctx context.Context, teamID, league string, daysAhead int) ([]domain.Event, error)
	GetTeam(ctx context.Context, teamID, league string) (*domain.Team, error)
	GetEvent(ctx context.Context, eventID, league string) (*domain.Event, error)
}
