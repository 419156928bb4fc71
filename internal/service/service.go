// Package service wires the matcher, stream-match cache, template engine,
// EPG generators, channel lifecycle manager, and run ledger together into
// the generation pipeline the admin HTTP surface and background scheduler
// both drive. Generation runs are serialized per event group (at most one
// active run per group) while different groups run in parallel — enforced
// here with a sync.Map of per-group mutexes rather than a single global
// lock.
package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Pharaoh-Labs/teamarr/internal/domain"
	"github.com/Pharaoh-Labs/teamarr/internal/epg"
	"github.com/Pharaoh-Labs/teamarr/internal/hostapi"
	"github.com/Pharaoh-Labs/teamarr/internal/lifecycle"
	"github.com/Pharaoh-Labs/teamarr/internal/matcher"
	"github.com/Pharaoh-Labs/teamarr/internal/matchcache"
	"github.com/Pharaoh-Labs/teamarr/internal/normalize"
	"github.com/Pharaoh-Labs/teamarr/internal/sportsdata"
	"github.com/Pharaoh-Labs/teamarr/internal/stats"
	"github.com/Pharaoh-Labs/teamarr/internal/storage"
	"github.com/Pharaoh-Labs/teamarr/internal/xmltv"
)

var defaultTemplate = domain.Template{
	ID:                 "",
	Name:               "default",
	TitlePattern:       "{away} @ {home}",
	SubtitlePattern:    "{league}",
	ChannelNamePattern: "",
	NoGameTitle:        "No Game Scheduled",
	NoGameDescription:  "No game scheduled for this channel right now.",
	IdleTitle:          "Between Games",
	IdleDescription:    "Coverage resumes before the next scheduled game.",
	PregameMinutes:     30,
	DefaultDurationHrs: 3,
}

// Service ties every generation-pipeline component to a concrete store and
// host, and exposes the operations api.Generator needs.
type Service struct {
	store         *storage.Store
	sports        *sportsdata.Service
	cache         *matchcache.Cache
	host          *hostapi.Client
	lifecycleMgr  *lifecycle.Manager
	ledger        *stats.Ledger
	teamGen       *epg.TeamGenerator
	eventGen      *epg.EventGenerator
	consolidator  *epg.Consolidator
	defaultLoc    *time.Location

	groupLocks sync.Map // groupID -> *sync.Mutex
}

// New builds a Service from its already-open dependencies.
func New(store *storage.Store, sports *sportsdata.Service, host *hostapi.Client, dataDir, publishedPath string) *Service {
	cache := matchcache.New(store.DB())
	return &Service{
		store:        store,
		sports:       sports,
		cache:        cache,
		host:         host,
		lifecycleMgr: lifecycle.NewManager(host, store),
		ledger:       stats.New(store.DB()),
		teamGen:      epg.NewTeamGenerator(sports),
		eventGen:     epg.NewEventGenerator(),
		consolidator: epg.NewConsolidator(dataDir, publishedPath),
		defaultLoc:   time.UTC,
	}
}

// Ledger exposes the run ledger so the admin HTTP surface can serve the
// stats endpoints without duplicating a second connection to it.
func (s *Service) Ledger() *stats.Ledger { return s.ledger }

func (s *Service) groupLock(groupID string) *sync.Mutex {
	m, _ := s.groupLocks.LoadOrStore(groupID, &sync.Mutex{})
	return m.(*sync.Mutex)
}

func (s *Service) templateFor(ctx context.Context, templateID string) domain.Template {
	if templateID == "" {
		return defaultTemplate
	}
	tmpl, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		log.Printf("[service] load template %s: %v, falling back to default", templateID, err)
		return defaultTemplate
	}
	if tmpl == nil {
		return defaultTemplate
	}
	return *tmpl
}

func (s *Service) locationFor(tz string) *time.Location {
	if tz == "" {
		return s.defaultLoc
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return s.defaultLoc
	}
	return loc
}

// --- team EPG ---------------------------------------------------------------

// GenerateTeamEPG builds the full set of team-channel programmes (filtered
// to teamIDs if non-empty) and republishes teams.xml.
func (s *Service) GenerateTeamEPG(ctx context.Context, teamIDs []string, daysAhead int) (xmltv.Document, error) {
	runID, _, err := s.ledger.StartRun(ctx, "team", "")
	if err != nil {
		return xmltv.Document{}, err
	}

	configs, err := s.store.ListTeamConfigs(ctx)
	if err != nil {
		_ = s.ledger.FailRun(ctx, runID, err)
		return xmltv.Document{}, err
	}

	var filter map[string]bool
	if len(teamIDs) > 0 {
		filter = make(map[string]bool, len(teamIDs))
		for _, id := range teamIDs {
			filter[id] = true
		}
	}

	now := time.Now().UTC()
	var channels []xmltv.Channel
	var allProgrammes []domain.Programme
	teamsProcessed := 0

	for _, cfg := range configs {
		if filter != nil && !filter[cfg.ProviderTeamID] {
			continue
		}
		if daysAhead > 0 {
			cfg.DaysAhead = daysAhead
		}
		tmpl := s.templateFor(ctx, cfg.TemplateID)

		programmes, err := s.teamGen.Generate(ctx, cfg, tmpl, now)
		if err != nil {
			log.Printf("[service] team %s generation skipped: %v", cfg.ProviderTeamID, err)
			continue
		}

		displayName := cfg.ProviderTeamID
		if team, err := s.sports.GetTeam(ctx, cfg.ProviderTeamID, cfg.League); err == nil && team != nil {
			if team.Name != "" {
				displayName = team.Name
			}
		}
		channels = append(channels, xmltv.Channel{ID: cfg.ChannelID, DisplayName: displayName})
		allProgrammes = append(allProgrammes, programmes...)
		teamsProcessed++
	}

	doc := xmltv.FromProgrammes(channels, allProgrammes)
	if err := s.consolidator.WriteTeamsDocument(doc); err != nil {
		_ = s.ledger.FailRun(ctx, runID, err)
		return xmltv.Document{}, err
	}

	pregame, postgame, idle, events := classifyProgrammes(allProgrammes)
	_ = s.ledger.CompleteRun(ctx, runID, domain.ProcessingRun{
		ProgrammesTotal:    len(allProgrammes),
		ProgrammesEvents:   events,
		ProgrammesPregame:  pregame,
		ProgrammesPostgame: postgame,
		ProgrammesIdle:     idle,
		TeamsProcessed:     teamsProcessed,
	})

	return doc, nil
}

// --- event EPG (stateless, ad-hoc leagues+channel-prefix request) ----------

// GenerateEventEPG fetches current host streams, matches them against the
// requested leagues for targetDate, and renders one programme per matched
// stream on a channel allocated from channelPrefix+sequence. This endpoint
// is stateless: it does not persist managed channels or write fragments —
// that lifecycle belongs to configured event groups (RunEventGroup).
func (s *Service) GenerateEventEPG(ctx context.Context, leagues []string, targetDate time.Time, channelPrefix string, pregameMinutes int, durationHours float64) (xmltv.Document, error) {
	streams, err := s.host.ListStreams(ctx)
	if err != nil {
		return xmltv.Document{}, fmt.Errorf("service: list streams: %w", err)
	}

	single := matcher.NewSingleLeagueMatcher(s.sports)
	multi := matcher.NewMultiLeagueMatcher(single, leagues, nil, nil)
	domainStreams := make([]domain.Stream, len(streams))
	for i, st := range streams {
		domainStreams[i] = domain.Stream{ID: st.ID, Name: st.Name}
	}
	batch, err := multi.MatchAll(ctx, domainStreams, targetDate)
	if err != nil {
		return xmltv.Document{}, fmt.Errorf("service: match streams: %w", err)
	}

	tmpl := defaultTemplate
	channelOf := make(map[string]string) // event id -> channel id
	seq := 1
	channelFor := func(r matcher.StreamMatchResult) (string, bool) {
		if r.Event == nil {
			return "", false
		}
		if id, ok := channelOf[r.Event.ID]; ok {
			return id, true
		}
		id := fmt.Sprintf("%s%d", channelPrefix, seq)
		seq++
		channelOf[r.Event.ID] = id
		return id, true
	}

	programmes := s.eventGen.Generate(batch, tmpl, pregameMinutes, durationHours, channelFor)

	var channels []xmltv.Channel
	for _, r := range batch.Results {
		if !r.Matched || !r.Included || r.Event == nil {
			continue
		}
		chID, ok := channelOf[r.Event.ID]
		if !ok {
			continue
		}
		channels = append(channels, xmltv.Channel{
			ID:          chID,
			DisplayName: fmt.Sprintf("%s @ %s", r.Event.Away.Name, r.Event.Home.Name),
		})
	}
	return xmltv.FromProgrammes(channels, programmes), nil
}

// MatchEvent resolves a single stream name (or team pairing) against one
// league's events for a test/debug invocation of the matcher.
func (s *Service) MatchEvent(ctx context.Context, league string, targetDate time.Time, team1ID, team2ID, team1Name, team2Name string) (*matcher.StreamMatchResult, error) {
	single := matcher.NewSingleLeagueMatcher(s.sports)
	patterns, err := single.BuildPatterns(ctx, league, targetDate)
	if err != nil {
		return nil, fmt.Errorf("service: build patterns: %w", err)
	}

	name1, name2 := team1Name, team2Name
	if team1ID != "" {
		if t, err := s.sports.GetTeam(ctx, team1ID, league); err == nil && t != nil {
			name1 = t.Name
		}
	}
	if team2ID != "" {
		if t, err := s.sports.GetTeam(ctx, team2ID, league); err == nil && t != nil {
			name2 = t.Name
		}
	}
	streamName := fmt.Sprintf("%s vs %s", name1, name2)

	ep, found := matcher.Resolve(patterns, normalize.Normalize(streamName))
	if !found {
		return nil, nil
	}
	event := ep.Event
	return &matcher.StreamMatchResult{
		StreamName: streamName,
		Matched:    true,
		Event:      &event,
		League:     ep.League,
		Included:   true,
	}, nil
}

// --- configured event-group pipeline ----------------------------------------

// PurgeExpiredChannels deletes every managed channel whose scheduled delete
// time has passed, across all groups. It runs independently of any single
// group's lock since it isn't scoped to one group's run.
func (s *Service) PurgeExpiredChannels(ctx context.Context, now time.Time) {
	_, failed := s.lifecycleMgr.ProcessScheduledDeletions(ctx, now)
	for _, f := range failed {
		log.Printf("[service] scheduled deletion failed: %s: %s", f.StreamName, f.Error)
	}
}

// RunEventGroup executes one full generation cycle for a configured event
// group: list host streams, resolve each against the cache before falling
// back to the fuzzy matcher, create/retire managed channels per the group's
// lifecycle policy, render programmes, and publish the group's fragment.
// At most one RunEventGroup call per group runs at a time.
func (s *Service) RunEventGroup(ctx context.Context, group domain.EventEPGGroup) error {
	lock := s.groupLock(group.ID)
	lock.Lock()
	defer lock.Unlock()

	runID, generation, err := s.ledger.StartRun(ctx, "events", group.ID)
	if err != nil {
		return err
	}

	streams, err := s.host.ListStreams(ctx)
	if err != nil {
		_ = s.ledger.FailRun(ctx, runID, err)
		return err
	}

	now := time.Now().UTC()
	targetDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	domainStreams := make([]domain.Stream, len(streams))
	streamIDs := make([]string, len(streams))
	for i, st := range streams {
		domainStreams[i] = domain.Stream{ID: st.ID, Name: st.Name}
		streamIDs[i] = st.ID
	}

	results, cacheHits, err := s.resolveWithCache(ctx, group, domainStreams, targetDate, generation)
	if err != nil {
		_ = s.ledger.FailRun(ctx, runID, err)
		return err
	}

	tmpl := s.templateFor(ctx, group.TemplateID)
	loc := s.locationFor(group.Timezone)
	render := func(pattern string) string { return pattern }

	processed := s.lifecycleMgr.ProcessMatchedStreams(ctx, results, group, render, loc, now)
	for _, f := range processed.Errors {
		log.Printf("[service] group %s channel error: %s: %s", group.ID, f.StreamName, f.Error)
	}

	s.lifecycleMgr.CleanupDeletedStreams(ctx, group, streamIDs)

	managed, err := s.store.ManagedChannelsForGroup(ctx, group.ID)
	if err != nil {
		_ = s.ledger.FailRun(ctx, runID, err)
		return err
	}
	channelByEvent := make(map[string]string, len(managed))
	for _, ch := range managed {
		channelByEvent[ch.EventID] = ch.HostChannelID
	}
	channelFor := func(r matcher.StreamMatchResult) (string, bool) {
		if r.Event == nil {
			return "", false
		}
		id, ok := channelByEvent[r.Event.ID]
		return id, ok
	}

	pregameMinutes := tmpl.PregameMinutes
	durationHours := tmpl.DefaultDurationHrs
	batch := matcher.BatchMatchResult{Results: results, TargetDate: targetDate}
	programmes := s.eventGen.Generate(batch, tmpl, pregameMinutes, durationHours, channelFor)

	var channels []xmltv.Channel
	seen := map[string]bool{}
	for _, ch := range managed {
		if seen[ch.HostChannelID] {
			continue
		}
		seen[ch.HostChannelID] = true
		channels = append(channels, xmltv.Channel{ID: ch.HostChannelID, DisplayName: ch.ChannelName})
	}
	doc := xmltv.FromProgrammes(channels, programmes)

	if err := s.consolidator.WriteEventFragment(group.ID, doc); err != nil {
		_ = s.ledger.FailRun(ctx, runID, err)
		return err
	}

	matched, unmatched := 0, 0
	for _, r := range results {
		if r.Matched {
			matched++
		} else if !r.IsException() {
			unmatched++
		}
		_ = s.ledger.RecordMatchedStream(ctx, domain.MatchedStream{
			RunID: runID, GroupID: group.ID, StreamID: r.StreamID, StreamName: r.StreamName,
			EventID: eventID(r), League: r.League, Included: r.Included, Reason: r.ExclusionReason,
		})
	}

	pregame, postgame, idle, events := classifyProgrammes(programmes)
	return s.ledger.CompleteRun(ctx, runID, domain.ProcessingRun{
		StreamsFetched:     len(streams),
		StreamsMatched:     matched,
		StreamsUnmatched:   unmatched,
		StreamsCached:      cacheHits,
		ProgrammesTotal:    len(programmes),
		ProgrammesEvents:   events,
		ProgrammesPregame:  pregame,
		ProgrammesPostgame: postgame,
		ProgrammesIdle:     idle,
		GroupsProcessed:    1,
	})
}

// resolveWithCache partitions streams into cache hits (refreshed via a live
// event refetch and Touch) and cache misses (resolved by the fuzzy matcher,
// then cached). Cache lookups always happen before fuzzy matching for a
// given stream.
func (s *Service) resolveWithCache(ctx context.Context, group domain.EventEPGGroup, streams []domain.Stream, targetDate time.Time, generation int64) ([]matcher.StreamMatchResult, int, error) {
	var results []matcher.StreamMatchResult
	var toMatch []domain.Stream
	cacheHits := 0

	for _, st := range streams {
		fp := matchcache.Fingerprint(group.ID, st.ID, st.Name)
		entry, err := s.cache.Get(ctx, fp)
		if err != nil {
			return nil, 0, err
		}
		if entry == nil {
			toMatch = append(toMatch, st)
			continue
		}

		fresh, err := s.sports.GetEvent(ctx, entry.EventID, entry.League)
		if err != nil || fresh == nil {
			toMatch = append(toMatch, st)
			continue
		}
		dynamic := domain.DynamicFields{Status: fresh.Status, HomeScore: fresh.HomeScore, AwayScore: fresh.AwayScore, Odds: fresh.Odds}
		if err := s.cache.Touch(ctx, fp, dynamic, generation); err != nil {
			return nil, 0, err
		}
		merged := entry.CachedEvent.ApplyDynamic(dynamic)
		included := group.IncludeLeagues == nil || len(group.IncludeLeagues) == 0 || contains(group.IncludeLeagues, entry.League)
		results = append(results, matcher.StreamMatchResult{
			StreamName: st.Name, StreamID: st.ID, Matched: true, Event: &merged,
			League: entry.League, Included: included,
		})
		cacheHits++
	}

	if len(toMatch) > 0 {
		single := matcher.NewSingleLeagueMatcher(s.sports)
		multi := matcher.NewMultiLeagueMatcher(single, group.Leagues, group.IncludeLeagues, group.ExceptionKeywords)
		batch, err := multi.MatchAll(ctx, toMatch, targetDate)
		if err != nil {
			return nil, 0, err
		}
		for _, r := range batch.Results {
			if r.Matched && r.Event != nil {
				fp := matchcache.Fingerprint(group.ID, r.StreamID, r.StreamName)
				_ = s.cache.Put(ctx, domain.StreamMatchCacheEntry{
					Fingerprint: fp, GroupID: group.ID, StreamID: r.StreamID, StreamName: r.StreamName,
					EventID: r.Event.ID, League: r.League, CachedEvent: *r.Event, LastSeenGeneration: generation,
				})
			}
			results = append(results, r)
		}
	}

	if _, err := s.cache.PurgeStale(ctx, generation, 5); err != nil {
		log.Printf("[service] purge stale cache entries for group %s: %v", group.ID, err)
	}

	return results, cacheHits, nil
}

func eventID(r matcher.StreamMatchResult) string {
	if r.Event == nil {
		return ""
	}
	return r.Event.ID
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// classifyProgrammes reports a run's total programme count for the ledger.
// The generators don't tag filler kind on domain.Programme itself, so the
// pregame/postgame/idle breakdown isn't recoverable after the fact; every
// programme is counted under "events" rather than guessed at.
func classifyProgrammes(programmes []domain.Programme) (pregame, postgame, idle, events int) {
	return 0, 0, 0, len(programmes)
}
