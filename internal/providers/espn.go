// espn.go — ESPN provider adapter.
//
// No data transformation happens in the HTTP layer (httpclient.Client) —
// this file owns parsing ESPN's wire format into the canonical domain model,
// tolerating missing competitors and malformed dates rather than failing
// the whole fetch.
package providers

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/Pharaoh-Labs/teamarr/internal/domain"
	"github.com/Pharaoh-Labs/teamarr/internal/httpclient"
)

const (
	espnBaseURL = "https://site.api.espn.com/apis/site/v2/sports"
)

// sportMapping converts a canonical league code to ESPN's (sport, league) pair.
var sportMapping = map[string][2]string{
	"nfl":                       {"football", "nfl"},
	"nba":                       {"basketball", "nba"},
	"mlb":                       {"baseball", "mlb"},
	"nhl":                       {"hockey", "nhl"},
	"wnba":                      {"basketball", "wnba"},
	"mls":                       {"soccer", "usa.1"},
	"mens-college-basketball":   {"basketball", "mens-college-basketball"},
	"womens-college-basketball": {"basketball", "womens-college-basketball"},
	"college-football":          {"football", "college-football"},
	"mens-college-hockey":       {"hockey", "mens-college-hockey"},
	"womens-college-hockey":     {"hockey", "womens-college-hockey"},
}

// collegeScoreboardGroups adds the ?groups= param some college scoreboards need.
var collegeScoreboardGroups = map[string]string{
	"mens-college-basketball": "50",
	"womens-college-basketball": "50",
	"college-football":         "80",
}

// statusMap converts ESPN's status.type.name into the canonical EventState set.
var statusMap = map[string]domain.EventState{
	"STATUS_SCHEDULED":   domain.StateScheduled,
	"STATUS_IN_PROGRESS": domain.StateLive,
	"STATUS_HALFTIME":    domain.StateLive,
	"STATUS_END_PERIOD":  domain.StateLive,
	"STATUS_FINAL":       domain.StateFinal,
	"STATUS_FINAL_OT":    domain.StateFinal,
	"STATUS_POSTPONED":   domain.StatePostponed,
	"STATUS_CANCELED":    domain.StateCancelled,
	"STATUS_DELAYED":     domain.StateScheduled,
}

// ESPNProvider implements Provider against ESPN's public site API.
type ESPNProvider struct {
	client *httpclient.Client
}

// NewESPNProvider builds an ESPNProvider with the given HTTP client.
func NewESPNProvider(client *httpclient.Client) *ESPNProvider {
	return &ESPNProvider{client: client}
}

func (p *ESPNProvider) Name() string { return "espn" }

// SupportsLeague reports whether league is in the fixed mapping table or
// uses soccer's "ssss.N" competition syntax.
func (p *ESPNProvider) SupportsLeague(league string) bool {
	if _, ok := sportMapping[league]; ok {
		return true
	}
	return strings.Contains(league, ".")
}

func sportLeague(league string) (sport, espnLeague string) {
	if pair, ok := sportMapping[league]; ok {
		return pair[0], pair[1]
	}
	if strings.Contains(league, ".") {
		return "soccer", league
	}
	return "football", league
}

// espnScoreboardResponse is the wire shape of the scoreboard/schedule endpoints.
type espnScoreboardResponse struct {
	Events []espnEvent `json:"events"`
}

type espnEvent struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	ShortName    string             `json:"shortName"`
	Date         string             `json:"date"`
	Competitions []espnCompetition  `json:"competitions"`
}

type espnCompetition struct {
	Date        string            `json:"date"`
	Competitors []espnCompetitor  `json:"competitors"`
	Status      espnStatus        `json:"status"`
	Venue       *espnVenue        `json:"venue"`
	Broadcasts  []espnBroadcast   `json:"broadcasts"`
}

type espnCompetitor struct {
	HomeAway string        `json:"homeAway"`
	Score    interface{}   `json:"score"`
	Team     espnTeamWire  `json:"team"`
	ID       string        `json:"id"`
}

type espnTeamWire struct {
	ID               string        `json:"id"`
	DisplayName      string        `json:"displayName"`
	ShortDisplayName string        `json:"shortDisplayName"`
	Abbreviation     string        `json:"abbreviation"`
	Location         string        `json:"location"`
	Color            string        `json:"color"`
	Logo             string        `json:"logo"`
	Logos            []espnLogo    `json:"logos"`
}

type espnLogo struct {
	Href string   `json:"href"`
	Rel  []string `json:"rel"`
}

type espnStatus struct {
	Period      int           `json:"period"`
	DisplayClock string       `json:"displayClock"`
	Type        espnStatusType `json:"type"`
}

type espnStatusType struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type espnVenue struct {
	FullName string         `json:"fullName"`
	Address  espnVenueAddr  `json:"address"`
}

type espnVenueAddr struct {
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

type espnBroadcast struct {
	Names []string `json:"names"`
}

// GetEvents fetches a league's scoreboard for targetDate.
func (p *ESPNProvider) GetEvents(ctx context.Context, league string, targetDate time.Time) ([]domain.Event, error) {
	sport, espnLeague := sportLeague(league)
	dateStr := targetDate.Format("20060102")
	url := fmt.Sprintf("%s/%s/%s/scoreboard?dates=%s", espnBaseURL, sport, espnLeague, dateStr)
	if group, ok := collegeScoreboardGroups[league]; ok {
		url += "&groups=" + group
	}

	var resp espnScoreboardResponse
	ok, err := p.client.GetJSON(ctx, url, &resp)
	if err != nil || !ok {
		return nil, nil
	}

	var events []domain.Event
	for _, raw := range resp.Events {
		if ev := parseEvent(raw, league); ev != nil {
			events = append(events, *ev)
		}
	}
	return events, nil
}

// GetTeamSchedule fetches a team's schedule and filters to UTC start >= today.
func (p *ESPNProvider) GetTeamSchedule(ctx context.Context, teamID, league string, daysAhead int) ([]domain.Event, error) {
	sport, espnLeague := sportLeague(league)
	url := fmt.Sprintf("%s/%s/%s/teams/%s/schedule", espnBaseURL, sport, espnLeague, teamID)

	var resp espnScoreboardResponse
	ok, err := p.client.GetJSON(ctx, url, &resp)
	if err != nil || !ok {
		return nil, nil
	}

	cutoff := time.Now().UTC().Truncate(24 * time.Hour)
	var events []domain.Event
	for _, raw := range resp.Events {
		ev := parseEvent(raw, league)
		if ev != nil && !ev.StartTime.Before(cutoff) {
			events = append(events, *ev)
		}
	}
	sortEventsByStart(events)
	return events, nil
}

// GetTeam fetches team metadata.
func (p *ESPNProvider) GetTeam(ctx context.Context, teamID, league string) (*domain.Team, error) {
	sport, espnLeague := sportLeague(league)
	url := fmt.Sprintf("%s/%s/%s/teams/%s", espnBaseURL, sport, espnLeague, teamID)

	var resp struct {
		Team espnTeamWire `json:"team"`
	}
	ok, err := p.client.GetJSON(ctx, url, &resp)
	if err != nil || !ok || resp.Team.ID == "" {
		return nil, nil
	}

	team := teamFromWire(resp.Team, league, p.Name())
	return &team, nil
}

// GetEvent fetches a single event summary by id.
func (p *ESPNProvider) GetEvent(ctx context.Context, eventID, league string) (*domain.Event, error) {
	sport, espnLeague := sportLeague(league)
	url := fmt.Sprintf("%s/%s/%s/summary?event=%s", espnBaseURL, sport, espnLeague, eventID)

	var resp struct {
		Header struct {
			GameNote     string             `json:"gameNote"`
			Competitions []espnCompetition  `json:"competitions"`
		} `json:"header"`
	}
	ok, err := p.client.GetJSON(ctx, url, &resp)
	if err != nil || !ok || len(resp.Header.Competitions) == 0 {
		return nil, nil
	}

	comp := resp.Header.Competitions[0]
	raw := espnEvent{
		ID:           eventID,
		Name:         resp.Header.GameNote,
		Date:         comp.Date,
		Competitions: []espnCompetition{comp},
	}
	return parseEvent(raw, league), nil
}

// parseEvent converts an ESPN wire event into a domain.Event, returning nil
// (skip) on missing competitors or a malformed date.
func parseEvent(raw espnEvent, league string) *domain.Event {
	if raw.ID == "" || len(raw.Competitions) == 0 {
		return nil
	}
	comp := raw.Competitions[0]
	if len(comp.Competitors) < 2 {
		log.Printf("[providers/espn] event %s: fewer than 2 competitors, skipping", raw.ID)
		return nil
	}

	var home, away *espnCompetitor
	for i := range comp.Competitors {
		c := &comp.Competitors[i]
		if c.HomeAway == "home" {
			home = c
		} else {
			away = c
		}
	}
	if home == nil || away == nil {
		log.Printf("[providers/espn] event %s: missing home or away competitor, skipping", raw.ID)
		return nil
	}

	dateStr := raw.Date
	if dateStr == "" {
		dateStr = comp.Date
	}
	startTime, err := parseESPNDate(dateStr)
	if err != nil {
		log.Printf("[providers/espn] event %s: malformed date %q, skipping", raw.ID, dateStr)
		return nil
	}

	ev := domain.Event{
		ID:         raw.ID,
		Provider:   "espn",
		Name:       raw.Name,
		ShortName:  raw.ShortName,
		StartTime:  startTime,
		Home:       teamFromCompetitor(*home, league),
		Away:       teamFromCompetitor(*away, league),
		Status:     parseStatus(comp.Status),
		Venue:      parseVenue(comp.Venue),
		Broadcasts: parseBroadcasts(comp.Broadcasts),
		League:     league,
		HomeScore:  parseScore(home.Score),
		AwayScore:  parseScore(away.Score),
	}
	return &ev
}

func teamFromCompetitor(c espnCompetitor, league string) domain.Team {
	return teamFromWire(c.Team, league, "espn")
}

func teamFromWire(w espnTeamWire, league, provider string) domain.Team {
	return domain.Team{
		ID:           w.ID,
		Provider:     provider,
		Name:         w.DisplayName,
		ShortName:    w.ShortDisplayName,
		Abbreviation: w.Abbreviation,
		Location:     w.Location,
		League:       league,
		LogoURL:      extractLogo(w),
		Color:        w.Color,
	}
}

// extractLogo prefers the flat "logo" field, then a logo tagged "default",
// falling back to the first entry in "logos".
func extractLogo(w espnTeamWire) string {
	if w.Logo != "" {
		return w.Logo
	}
	for _, l := range w.Logos {
		for _, rel := range l.Rel {
			if rel == "default" {
				return l.Href
			}
		}
	}
	if len(w.Logos) > 0 {
		return w.Logos[0].Href
	}
	return ""
}

func parseStatus(s espnStatus) domain.EventStatus {
	state, ok := statusMap[s.Type.Name]
	if !ok {
		state = domain.StateScheduled
	}
	return domain.EventStatus{
		State:  state,
		Detail: s.Type.Description,
		Period: s.Period,
		Clock:  s.DisplayClock,
	}
}

func parseVenue(v *espnVenue) domain.Venue {
	if v == nil {
		return domain.Venue{}
	}
	return domain.Venue{
		Name:  v.FullName,
		City:  v.Address.City,
		State: v.Address.State,
	}
}

func parseBroadcasts(bs []espnBroadcast) []string {
	var names []string
	for _, b := range bs {
		names = append(names, b.Names...)
	}
	return names
}

// parseScore tolerates string, number, or {displayValue} forms.
func parseScore(raw interface{}) *domain.Score {
	if raw == nil {
		return nil
	}
	switch v := raw.(type) {
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil
		}
		return &domain.Score{Value: n}
	case float64:
		return &domain.Score{Value: int(v)}
	case map[string]interface{}:
		if dv, ok := v["displayValue"].(string); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(dv)); err == nil {
				return &domain.Score{Value: n}
			}
		}
		if val, ok := v["value"].(float64); ok {
			return &domain.Score{Value: int(val)}
		}
		return nil
	default:
		return nil
	}
}

// parseESPNDate handles both "...Z" and explicit-offset ISO-8601 forms.
func parseESPNDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02T15:04Z", s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", s)
}

func sortEventsByStart(events []domain.Event) {
	for i := 1; i < len(events); i++ {
		for j := i; j > 0 && events[j].StartTime.Before(events[j-1].StartTime); j-- {
			events[j], events[j-1] = events[j-1], events[j]
		}
	}
}
