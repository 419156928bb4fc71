// Package lifecycle manages the create/delete lifecycle of host channels
// created for matched event-group streams: timing-policy functions plus a
// manager that coordinates the host API, the managed-channel store, and
// matched-stream results.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Pharaoh-Labs/teamarr/internal/domain"
	"github.com/Pharaoh-Labs/teamarr/internal/hostapi"
	"github.com/Pharaoh-Labs/teamarr/internal/matcher"
	"github.com/Pharaoh-Labs/teamarr/internal/storage"
)

// maxChannelNumberRetries bounds how many allocate-and-create attempts
// (the first try included) ProcessMatchedStreams makes for a single stream
// on channel number conflicts before giving up on it.
const maxChannelNumberRetries = 3

// ShouldCreateChannel reports whether a channel for event should exist yet,
// given the group's create-timing policy and timezone. Timing is evaluated
// on local calendar dates, not elapsed duration, so "day_before" always
// means "the calendar day before the event's local date".
func ShouldCreateChannel(event domain.Event, createTiming string, loc *time.Location, now time.Time) (bool, string) {
	eventLocal := event.StartTime.In(loc)
	eventDate := dateOnly(eventLocal)
	today := dateOnly(now.In(loc))

	var threshold time.Time
	switch createTiming {
	case "day_before":
		threshold = eventDate.AddDate(0, 0, -1)
	case "2_days_before":
		threshold = eventDate.AddDate(0, 0, -2)
	case "week_before":
		threshold = eventDate.AddDate(0, 0, -7)
	default: // "day_of" and unknown values default to day_of
		threshold = eventDate
	}

	if !today.Before(threshold) {
		return true, fmt.Sprintf("event on %s, threshold %s, today %s",
			eventDate.Format("2006-01-02"), threshold.Format("2006-01-02"), today.Format("2006-01-02"))
	}
	daysUntil := int(threshold.Sub(today).Hours() / 24)
	return false, fmt.Sprintf("too early - %d day(s) until creation threshold", daysUntil)
}

// CalculateDeleteTime returns when a channel should be deleted, or the zero
// time (with ok=false) for "manual"/"stream_removed", which are handled by
// explicit cleanup passes rather than a scheduled timestamp.
func CalculateDeleteTime(event domain.Event, deleteTiming string, loc *time.Location) (time.Time, bool) {
	switch deleteTiming {
	case "manual", "stream_removed":
		return time.Time{}, false
	}

	eventLocal := event.StartTime.In(loc)
	eventDate := dateOnly(eventLocal)

	var deleteDate time.Time
	switch deleteTiming {
	case "end_of_day":
		deleteDate = eventDate.AddDate(0, 0, 1)
	case "end_of_next_day":
		deleteDate = eventDate.AddDate(0, 0, 2)
	default:
		return time.Time{}, false
	}
	return deleteDate, true
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// GenerateChannelName renders the group's channel-name template if present,
// else falls back to "{away} @ {home}".
func GenerateChannelName(event domain.Event, render func(pattern string) string, namePattern string) string {
	if namePattern != "" && render != nil {
		return render(namePattern)
	}
	home := event.Home.ShortName
	if home == "" {
		home = event.Home.Name
	}
	away := event.Away.ShortName
	if away == "" {
		away = event.Away.Name
	}
	return fmt.Sprintf("%s @ %s", away, home)
}

// ChannelStore is the persistence boundary the manager needs; implemented
// by internal/storage.
type ChannelStore interface {
	GetManagedChannelByEvent(ctx context.Context, eventID, groupID string) (*domain.ManagedChannel, error)
	NextChannelNumber(ctx context.Context, groupID string) (int, error)
	CreateManagedChannel(ctx context.Context, ch domain.ManagedChannel) error
	ManagedChannelsForGroup(ctx context.Context, groupID string) ([]domain.ManagedChannel, error)
	MarkManagedChannelDeleted(ctx context.Context, id string) error
	ChannelsPendingDeletion(ctx context.Context, asOf time.Time) ([]domain.ManagedChannel, error)
}

// ProcessResult summarizes one process_matched_streams pass.
type ProcessResult struct {
	Created  []domain.ManagedChannel
	Skipped  []SkippedStream
	Errors   []FailedStream
	Existing []domain.ManagedChannel
}

// SkippedStream is a stream whose channel creation was deferred or declined.
type SkippedStream struct {
	StreamName string
	Reason     string
}

// FailedStream is a stream whose channel creation failed outright.
type FailedStream struct {
	StreamName string
	Error      string
}

// Manager coordinates the host API and the managed-channel store to create
// and tear down channels for event-group streams.
type Manager struct {
	host  *hostapi.Client
	store ChannelStore
}

// NewManager builds a lifecycle Manager.
func NewManager(host *hostapi.Client, store ChannelStore) *Manager {
	return &Manager{host: host, store: store}
}

// ProcessMatchedStreams creates channels for newly matched streams in
// group, skipping streams whose channel already exists or whose creation
// timing hasn't arrived yet.
func (m *Manager) ProcessMatchedStreams(ctx context.Context, results []matcher.StreamMatchResult, group domain.EventEPGGroup, render func(string) string, loc *time.Location, now time.Time) ProcessResult {
	out := ProcessResult{}

	if group.ChannelStart == nil {
		log.Printf("[lifecycle] group %s has no channel_start configured — skipping channel creation", group.ID)
		for _, r := range results {
			out.Skipped = append(out.Skipped, SkippedStream{StreamName: r.StreamName, Reason: "no channel_start configured for group"})
		}
		return out
	}

	createTiming := group.CreateTiming
	if createTiming == "" {
		createTiming = "day_of"
	}
	deleteTiming := group.DeleteTiming
	if deleteTiming == "" {
		deleteTiming = "stream_removed"
	}

	for _, r := range results {
		if !r.Matched || !r.Included || r.Event == nil {
			continue
		}
		event := *r.Event

		existing, err := m.store.GetManagedChannelByEvent(ctx, event.ID, group.ID)
		if err != nil {
			out.Errors = append(out.Errors, FailedStream{StreamName: r.StreamName, Error: err.Error()})
			continue
		}
		if existing != nil {
			out.Existing = append(out.Existing, *existing)
			continue
		}

		shouldCreate, reason := ShouldCreateChannel(event, createTiming, loc, now)
		if !shouldCreate {
			out.Skipped = append(out.Skipped, SkippedStream{StreamName: r.StreamName, Reason: reason})
			continue
		}

		channelName := GenerateChannelName(event, render, group.TemplateID)
		deleteAt, hasDeleteAt := CalculateDeleteTime(event, deleteTiming, loc)

		managed, err := m.createChannelWithRetry(ctx, group, event, r, channelName, now, hasDeleteAt, deleteAt)
		if err != nil {
			out.Errors = append(out.Errors, FailedStream{StreamName: r.StreamName, Error: err.Error()})
			continue
		}

		out.Created = append(out.Created, *managed)
		log.Printf("[lifecycle] created channel %d %q for stream %q", managed.ChannelNumber, channelName, r.StreamName)
	}

	return out
}

// createChannelWithRetry allocates a channel number, creates the channel on
// the host, and tracks it in the store. The number allocation and the
// tracking insert can't share a single transaction — the host API call for
// the channel sits between them — so a concurrent allocation can still win
// the race; CreateManagedChannel reports that as ErrChannelNumberConflict
// and this loop rolls back the host channel it just created and retries
// with a freshly allocated number, for at most maxChannelNumberRetries
// attempts in total.
func (m *Manager) createChannelWithRetry(ctx context.Context, group domain.EventEPGGroup, event domain.Event, r matcher.StreamMatchResult, channelName string, now time.Time, hasDeleteAt bool, deleteAt time.Time) (*domain.ManagedChannel, error) {
	var lastErr error
	for attempt := 0; attempt < maxChannelNumberRetries; attempt++ {
		channelNumber, err := m.store.NextChannelNumber(ctx, group.ID)
		if err != nil {
			return nil, fmt.Errorf("allocate channel number: %w", err)
		}

		hostChannel, err := m.host.CreateChannel(ctx, channelName, channelNumber, r.StreamID)
		if err != nil {
			return nil, err
		}

		if group.EPGSourceID != "" {
			if err := m.host.SetChannelEPG(ctx, hostChannel.ID, group.EPGSourceID); err != nil {
				log.Printf("[lifecycle] set epg for channel %s failed: %v", hostChannel.ID, err)
			}
		}

		managed := domain.ManagedChannel{
			GroupID:       group.ID,
			HostChannelID: hostChannel.ID,
			HostStreamID:  r.StreamID,
			ChannelNumber: channelNumber,
			EventID:       event.ID,
			League:        event.League,
			HomeTeam:      event.Home.Name,
			AwayTeam:      event.Away.Name,
			EventDate:     event.StartTime.Format("2006-01-02"),
			ChannelName:   channelName,
			CreatedAt:     now,
		}
		if hasDeleteAt {
			managed.ScheduledDeleteAt = &deleteAt
		}

		err = m.store.CreateManagedChannel(ctx, managed)
		if err == nil {
			return &managed, nil
		}

		log.Printf("[lifecycle] tracking channel %s failed, rolling back host create: %v", hostChannel.ID, err)
		if delErr := m.host.DeleteChannel(ctx, hostChannel.ID); delErr != nil {
			log.Printf("[lifecycle] rollback delete for channel %s also failed: %v", hostChannel.ID, delErr)
		}

		if !errors.Is(err, storage.ErrChannelNumberConflict) {
			return nil, fmt.Errorf("track channel: %w", err)
		}
		lastErr = err
		log.Printf("[lifecycle] channel number %d for group %s taken by a concurrent allocation, retrying (attempt %d/%d)", channelNumber, group.ID, attempt+1, maxChannelNumberRetries)
	}
	return nil, fmt.Errorf("track channel: %w (exhausted %d attempts)", lastErr, maxChannelNumberRetries)
}

// CleanupDeletedStreams deletes channels whose backing stream is gone,
// but only for groups whose delete_timing is "stream_removed".
func (m *Manager) CleanupDeletedStreams(ctx context.Context, group domain.EventEPGGroup, currentStreamIDs []string) ([]domain.ManagedChannel, []FailedStream) {
	if group.DeleteTiming != "" && group.DeleteTiming != "stream_removed" {
		return nil, nil
	}

	current := make(map[string]bool, len(currentStreamIDs))
	for _, id := range currentStreamIDs {
		current[id] = true
	}

	channels, err := m.store.ManagedChannelsForGroup(ctx, group.ID)
	if err != nil {
		return nil, []FailedStream{{Error: err.Error()}}
	}

	var deleted []domain.ManagedChannel
	var errs []FailedStream
	for _, ch := range channels {
		if current[ch.HostStreamID] {
			continue
		}
		if err := m.host.DeleteChannel(ctx, ch.HostChannelID); err != nil {
			errs = append(errs, FailedStream{StreamName: ch.ChannelName, Error: err.Error()})
			continue
		}
		if err := m.store.MarkManagedChannelDeleted(ctx, ch.ID); err != nil {
			errs = append(errs, FailedStream{StreamName: ch.ChannelName, Error: err.Error()})
			continue
		}
		deleted = append(deleted, ch)
		log.Printf("[lifecycle] deleted channel %d %q — stream removed", ch.ChannelNumber, ch.ChannelName)
	}
	return deleted, errs
}

// ProcessScheduledDeletions deletes every channel whose scheduled delete
// time has passed. Meant to run on each scheduler tick.
func (m *Manager) ProcessScheduledDeletions(ctx context.Context, now time.Time) ([]domain.ManagedChannel, []FailedStream) {
	pending, err := m.store.ChannelsPendingDeletion(ctx, now)
	if err != nil {
		return nil, []FailedStream{{Error: err.Error()}}
	}

	var deleted []domain.ManagedChannel
	var errs []FailedStream
	for _, ch := range pending {
		if err := m.host.DeleteChannel(ctx, ch.HostChannelID); err != nil {
			errs = append(errs, FailedStream{StreamName: ch.ChannelName, Error: err.Error()})
			continue
		}
		if err := m.store.MarkManagedChannelDeleted(ctx, ch.ID); err != nil {
			errs = append(errs, FailedStream{StreamName: ch.ChannelName, Error: err.Error()})
			continue
		}
		deleted = append(deleted, ch)
		log.Printf("[lifecycle] deleted channel %d %q — scheduled deletion", ch.ChannelNumber, ch.ChannelName)
	}
	return deleted, errs
}
