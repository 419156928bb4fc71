// Package domain holds the canonical data model shared across the sports
// data service, matcher, EPG generators, and channel lifecycle manager.
package domain

import "time"

// EventState is the canonical event status set every provider normalizes into.
type EventState string

const (
	StateScheduled EventState = "scheduled"
	StateLive      EventState = "live"
	StateFinal     EventState = "final"
	StatePostponed EventState = "postponed"
	StateCancelled EventState = "cancelled"
)

// Venue describes where an event is played.
type Venue struct {
	Name  string
	City  string
	State string
}

// Team is owned by the provider adapter that produced it and is immutable
// within a fetch.
type Team struct {
	ID           string
	Provider     string
	Name         string
	ShortName    string
	Abbreviation string
	Location     string // city/market name only, e.g. "Los Angeles" for "Los Angeles Lakers"
	League       string
	LogoURL      string
	Color        string
	Record       string
	Rank         *int
}

// Odds carries the subset of betting-line fields the template engine and
// the stream-match cache's dynamic-field set both reference.
type Odds struct {
	HasOdds       bool
	Spread        string
	MoneylineHome string
	MoneylineAway string
	OverUnder     string
}

// EventStatus is the mutable half of Event; together with the scores
// (streaks included) and odds it makes up the cache's dynamic-field set
// (see DynamicFields).
type EventStatus struct {
	State  EventState
	Detail string
	Period int
	Clock  string
}

// Score is parsed tolerantly by provider adapters: ESPN returns it as a
// string, a number, or a {displayValue} object depending on endpoint.
type Score struct {
	Value  int
	Streak string
}

// Event is an immutable value: a new fetch yields a new Event, never a
// mutation of a prior one.
type Event struct {
	ID           string
	Provider     string
	Name         string
	ShortName    string
	StartTime    time.Time
	Home         Team
	Away         Team
	HomeScore    *Score
	AwayScore    *Score
	Status       EventStatus
	Venue        Venue
	Broadcasts   []string
	League       string
	Season       string
	Odds         Odds
}

// DynamicFields is the set of event fields a cache refresh may update
// without re-running the fuzzy matcher. It is declared once here and
// nowhere else re-implements which fields are "dynamic" — the stream-match
// cache's refresh path only ever calls ApplyDynamic.
type DynamicFields struct {
	Status      EventStatus
	HomeScore   *Score
	AwayScore   *Score
	Odds        Odds
}

// ApplyDynamic overlays the dynamic-field set onto a cached snapshot,
// leaving everything else (teams, venue, broadcasts, logos) untouched.
func (e Event) ApplyDynamic(d DynamicFields) Event {
	e.Status = d.Status
	e.HomeScore = d.HomeScore
	e.AwayScore = d.AwayScore
	e.Odds = d.Odds
	return e
}

// Programme is derived and lives only within a generation run.
type Programme struct {
	ChannelID   string
	Title       string
	Start       time.Time
	Stop        time.Time // exclusive
	Description string
	Category    string
	Icon        string
}

// FillerKind distinguishes the non-game blocks a team channel is padded with.
type FillerKind string

const (
	FillerNone     FillerKind = ""
	FillerNoGame   FillerKind = "no_game"
	FillerPregame  FillerKind = "pregame"
	FillerPostgame FillerKind = "postgame"
	FillerIdle     FillerKind = "idle"
)

// DescriptionOption is one entry in a Template's ordered description list.
type DescriptionOption struct {
	Priority  int // 1-99 conditional, 100 fallback
	Condition string
	Body      string
}

// FillerPeriod is one pregame or postgame window definition.
type FillerPeriod struct {
	StartHoursBefore float64 // hours before/after the anchor, depending on list
	EndHoursBefore   float64
	Title            string
	Description      string
}

// Template drives both team and event programme synthesis.
type Template struct {
	ID                  string
	Name                string
	TitlePattern        string
	SubtitlePattern     string
	ChannelNamePattern  string
	DescriptionOptions  []DescriptionOption
	NoGameTitle         string
	NoGameDescription   string
	PregamePeriods      []FillerPeriod
	PostgamePeriods     []FillerPeriod
	IdleTitle           string
	IdleDescription     string
	PregameMinutes      int
	DefaultDurationHrs  float64
}

// TeamConfig is persisted, user-provided, and updated via the admin surface.
type TeamConfig struct {
	ID             string
	ProviderTeamID string
	League         string
	ChannelID      string
	TemplateID     string
	DaysAhead      int
	Timezone       string
}

// EventEPGGroup is a user-defined bundle of streams assigned a league set,
// template, and channel-number range on the host.
type EventEPGGroup struct {
	ID                 string
	Name               string
	Leagues            []string
	ExceptionKeywords   []string
	IncludeLeagues     []string // whitelist; empty means "all leagues allowed"
	RefreshInterval    time.Duration
	ChannelStart       *int // nil means "no channel management for this group"
	CreateTiming       string // day_of | day_before | 2_days_before | week_before
	DeleteTiming       string // stream_removed | manual | end_of_day | end_of_next_day
	TemplateID         string
	Timezone           string
	EPGSourceID        string // host-side EPG source id to bind created channels to
}

// ManagedChannel is created on match and soft-deleted on policy trigger.
type ManagedChannel struct {
	ID                string
	GroupID           string
	HostChannelID      string
	HostStreamID       string
	ChannelNumber     int
	EventID           string
	League            string
	HomeTeam          string
	AwayTeam          string
	EventDate         string
	ChannelName       string
	ScheduledDeleteAt *time.Time
	CreatedAt         time.Time
	DeletedAt         *time.Time
}

// StreamMatchCacheEntry is the persisted row behind internal/matchcache.
type StreamMatchCacheEntry struct {
	Fingerprint          string
	GroupID              string
	StreamID             string
	StreamName           string
	EventID              string
	League               string
	CachedEvent          Event
	LastSeenGeneration   int64
	MissStreak           int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// RunStatus is the ProcessingRun lifecycle state.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// ProcessingRun is an append-only ledger row for one generation run.
type ProcessingRun struct {
	ID                  string
	RunType             string
	GroupID             string
	Status              RunStatus
	StartedAt           time.Time
	FinishedAt          *time.Time
	StreamsFetched      int
	StreamsMatched      int
	StreamsUnmatched    int
	StreamsCached       int
	ProgrammesTotal     int
	ProgrammesEvents    int
	ProgrammesPregame   int
	ProgrammesPostgame  int
	ProgrammesIdle      int
	TeamsProcessed      int
	GroupsProcessed     int
	ErrorSummary        string
	Generation          int64
}

// MatchedStream is a per-run row referencing the run and a group.
type MatchedStream struct {
	RunID      string
	GroupID    string
	StreamID   string
	StreamName string
	EventID    string
	League     string
	Included   bool
	Reason     string
	Score      float64
}

// FailedMatch is a per-run row for streams that could not be resolved.
type FailedMatch struct {
	RunID      string
	GroupID    string
	StreamID   string
	StreamName string
	Reason     string
}

// Stream is a single upstream video entry as reported by the host.
type Stream struct {
	ID   string
	Name string
}
