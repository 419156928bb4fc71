package epg

import (
	"time"

	"github.com/Pharaoh-Labs/teamarr/internal/domain"
	"github.com/Pharaoh-Labs/teamarr/internal/matcher"
	"github.com/Pharaoh-Labs/teamarr/internal/template"
)

// EventGenerator builds one programme per matched-and-included stream in an
// event group, using each managed channel's assigned host channel ID.
type EventGenerator struct{}

// NewEventGenerator builds an event-group programme generator.
func NewEventGenerator() *EventGenerator { return &EventGenerator{} }

type channelProgramme struct {
	channelID string
	event     domain.Event
	teamID    string
	start     time.Time
	stop      time.Time
}

// Generate renders one programme per matched result in batch whose League
// is included, using channelFor to resolve the owning ManagedChannel's host
// channel ID. Results without a resolvable channel are skipped. Multiple
// events mapped to the same channel are ordered by start time; an event
// that hasn't finished by the next one's start cedes — the earlier
// finisher's programme is truncated to the next one's start. Title
// templates are rendered against that same per-channel ordering, so
// ".next"/".last" variables resolve to the channel's actual neighboring
// event rather than always being empty.
func (g *EventGenerator) Generate(batch matcher.BatchMatchResult, tmpl domain.Template, pregameMinutes int, durationHrs float64, channelFor func(matcher.StreamMatchResult) (string, bool)) []domain.Programme {
	var entries []channelProgramme
	pregameDur := time.Duration(pregameMinutes) * time.Minute
	gameDur := time.Duration(durationHrs * float64(time.Hour))

	for _, r := range batch.Results {
		if !r.Matched || !r.Included || r.Event == nil {
			continue
		}
		channelID, ok := channelFor(r)
		if !ok {
			continue
		}
		ev := *r.Event
		entries = append(entries, channelProgramme{
			channelID: channelID,
			event:     ev,
			teamID:    ev.Home.ID,
			start:     ev.StartTime.Add(-pregameDur),
			stop:      ev.StartTime.Add(gameDur),
		})
	}

	sortByStart(entries)

	byChannel := make(map[string][]channelProgramme)
	for _, e := range entries {
		byChannel[e.channelID] = append(byChannel[e.channelID], e)
	}

	var out []domain.Programme
	for _, progs := range byChannel {
		for i := range progs {
			var nextEvent, lastEvent *domain.Event
			if i+1 < len(progs) {
				nextEvent = &progs[i+1].event
			}
			if i > 0 {
				lastEvent = &progs[i-1].event
			}
			ctx := template.NewContext(progs[i].event, progs[i].teamID, nextEvent, lastEvent)

			stop := progs[i].stop
			if i+1 < len(progs) && stop.After(progs[i+1].start) {
				stop = progs[i+1].start
			}
			out = append(out, domain.Programme{
				ChannelID:   progs[i].channelID,
				Title:       ctx.Render(tmpl.TitlePattern),
				Description: template.ResolveDescription(tmpl.DescriptionOptions, ctx.Base),
				Start:       progs[i].start,
				Stop:        stop,
				Category:    "Sports",
			})
		}
	}
	return out
}

func sortByStart(entries []channelProgramme) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].start.Before(entries[j-1].start); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}
