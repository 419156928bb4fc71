// Package epg builds XMLTV programme schedules for team and event-group
// channels and consolidates per-group fragments into the published EPG
// file.
package epg

import (
	"context"
	"fmt"
	"time"

	"github.com/Pharaoh-Labs/teamarr/internal/domain"
	"github.com/Pharaoh-Labs/teamarr/internal/template"
)

// ScheduleSource fetches a team's upcoming schedule; satisfied by
// *sportsdata.Service.
type ScheduleSource interface {
	GetTeamSchedule(ctx context.Context, teamID, league string, daysAhead int) ([]domain.Event, error)
}

// TeamGenerator builds a contiguous, non-overlapping programme schedule for
// a single team channel.
type TeamGenerator struct {
	source ScheduleSource
}

// NewTeamGenerator builds a generator over a schedule source.
func NewTeamGenerator(source ScheduleSource) *TeamGenerator {
	return &TeamGenerator{source: source}
}

// Generate produces the full programme list for cfg's channel, covering
// from now through cfg.DaysAhead days out. Games are rendered from tmpl;
// gaps around and between games are filled with pregame/postgame/idle/
// no_game blocks so the channel never has an empty slot.
func (g *TeamGenerator) Generate(ctx context.Context, cfg domain.TeamConfig, tmpl domain.Template, now time.Time) ([]domain.Programme, error) {
	events, err := g.source.GetTeamSchedule(ctx, cfg.ProviderTeamID, cfg.League, cfg.DaysAhead)
	if err != nil {
		return nil, fmt.Errorf("epg: fetch team schedule: %w", err)
	}
	sortEventsByStart(events)

	windowEnd := now.AddDate(0, 0, cfg.DaysAhead)
	pregameDur := time.Duration(tmpl.PregameMinutes) * time.Minute
	gameDur := time.Duration(tmpl.DefaultDurationHrs * float64(time.Hour))

	var out []domain.Programme
	cursor := now

	for i, ev := range events {
		if ev.StartTime.After(windowEnd) {
			break
		}
		blockStart := ev.StartTime.Add(-pregameDur)
		blockStop := ev.StartTime.Add(gameDur)
		if blockStart.Before(cursor) {
			blockStart = cursor
		}
		if !blockStart.Before(blockStop) {
			continue // degenerate window, skip rather than emit zero/negative-length programme
		}

		// Fill the gap leading up to this game with pregame periods,
		// nearest-to-furthest as configured, then idle for anything left.
		filled, newCursor := fillPeriods(cursor, blockStart, ev.StartTime, tmpl.PregamePeriods, false, cfg.ChannelID)
		out = append(out, filled...)
		cursor = newCursor
		if cursor.Before(blockStart) {
			out = append(out, idleBlock(cfg.ChannelID, tmpl, cursor, blockStart))
			cursor = blockStart
		}

		var nextEvent, lastEvent *domain.Event
		if i+1 < len(events) {
			nextEvent = &events[i+1]
		}
		if i > 0 {
			lastEvent = &events[i-1]
		}
		ctx := template.NewContext(ev, teamIDFromConfig(cfg, ev), nextEvent, lastEvent)
		out = append(out, domain.Programme{
			ChannelID:   cfg.ChannelID,
			Title:       ctx.Render(tmpl.TitlePattern),
			Start:       blockStart,
			Stop:        blockStop,
			Description: template.ResolveDescription(tmpl.DescriptionOptions, ctx.Base),
			Category:    "Sports",
		})
		cursor = blockStop

		postGapEnd := windowEnd
		if i+1 < len(events) {
			postGapEnd = events[i+1].StartTime
		}
		postFilled, afterPost := fillPeriods(cursor, postGapEnd, blockStop, tmpl.PostgamePeriods, true, cfg.ChannelID)
		out = append(out, postFilled...)
		cursor = afterPost
	}

	if cursor.Before(windowEnd) {
		out = append(out, idleBlock(cfg.ChannelID, tmpl, cursor, windowEnd))
	}

	return out, nil
}

// fillPeriods emits tmpl's filler periods (pregame or postgame) that fall
// within [cursor, end), anchored on anchor, in configured order. isPostgame
// controls whether period offsets are measured after (true) or before
// (false) the anchor. Returns the emitted programmes and the new cursor.
func fillPeriods(cursor, end, anchor time.Time, periods []domain.FillerPeriod, isPostgame bool, channelID string) ([]domain.Programme, time.Time) {
	var out []domain.Programme
	for _, p := range periods {
		var periodStart, periodStop time.Time
		if isPostgame {
			periodStart = anchor.Add(time.Duration(p.EndHoursBefore * float64(time.Hour)))
			periodStop = anchor.Add(time.Duration(p.StartHoursBefore * float64(time.Hour)))
		} else {
			periodStart = anchor.Add(-time.Duration(p.StartHoursBefore * float64(time.Hour)))
			periodStop = anchor.Add(-time.Duration(p.EndHoursBefore * float64(time.Hour)))
		}
		if periodStart.Before(cursor) {
			periodStart = cursor
		}
		if periodStop.After(end) {
			periodStop = end
		}
		if !periodStart.Before(periodStop) {
			continue
		}
		out = append(out, domain.Programme{
			ChannelID:   channelID,
			Title:       p.Title,
			Description: p.Description,
			Start:       periodStart,
			Stop:        periodStop,
			Category:    "Sports",
		})
		cursor = periodStop
	}
	return out, cursor
}

// idleBlock fills [start, stop) with a single no_game block when the span
// is 20 hours or longer, otherwise a generic idle block — both
// drawn from the template.
func idleBlock(channelID string, tmpl domain.Template, start, stop time.Time) domain.Programme {
	if stop.Sub(start) >= 20*time.Hour {
		return domain.Programme{
			ChannelID:   channelID,
			Title:       tmpl.NoGameTitle,
			Description: tmpl.NoGameDescription,
			Start:       start,
			Stop:        stop,
			Category:    "Sports",
		}
	}
	return domain.Programme{
		ChannelID:   channelID,
		Title:       tmpl.IdleTitle,
		Description: tmpl.IdleDescription,
		Start:       start,
		Stop:        stop,
		Category:    "Sports",
	}
}

func teamIDFromConfig(cfg domain.TeamConfig, ev domain.Event) string {
	if ev.Home.ID == cfg.ProviderTeamID {
		return ev.Home.ID
	}
	return ev.Away.ID
}

// sortEventsByStart sorts by StartTime ascending. Event counts per team are
// small, so a simple insertion sort is plenty (see internal/providers/espn.go's
// sortEventsByStart for the same pattern).
func sortEventsByStart(events []domain.Event) {
	for i := 1; i < len(events); i++ {
		for j := i; j > 0 && events[j].StartTime.Before(events[j-1].StartTime); j-- {
			events[j], events[j-1] = events[j-1], events[j]
		}
	}
}
