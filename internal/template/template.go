// Package template renders titles, subtitles, and descriptions for EPG
// programmes from a flat variable dictionary. Variables are drawn from
// three contexts — the current game, the next scheduled game (".next"
// suffix) and the most recently completed game (".last" suffix) — and
// substituted into `{name}` references. A missing context or variable
// renders empty; the engine never errors on a malformed reference.
package template

import (
	"strconv"
	"strings"

	"github.com/Pharaoh-Labs/teamarr/internal/domain"
)

// Vars is the flat variable dictionary a Context builds and Render consumes.
type Vars map[string]string

// Context holds the base ("current"), ".next", and ".last" variable sets.
// Each is built by the same variable-builder function run against a
// different domain.Event, so the three sets use the same variable names;
// rank and score variables are present only when that event carries them.
type Context struct {
	Base Vars
	Next Vars
	Last Vars
}

// NewContext builds a full rendering context from a team's perspective.
// next/last may be nil when no such game exists; their absence is what
// produces empty-string substitutions for `.next`/`.last` variables.
func NewContext(current domain.Event, teamID string, next, last *domain.Event) Context {
	ctx := Context{Base: BuildVars(current, teamID)}
	if next != nil {
		ctx.Next = BuildVars(*next, teamID)
	}
	if last != nil {
		ctx.Last = BuildVars(*last, teamID)
	}
	return ctx
}

// Render substitutes every `{name}` reference in pattern. "name" may carry
// a ".next" or ".last" suffix to pull from the corresponding context;
// otherwise it is looked up in Base. Unknown names or nil contexts render
// as the empty string.
func (c Context) Render(pattern string) string {
	var b strings.Builder
	i := 0
	for i < len(pattern) {
		open := strings.IndexByte(pattern[i:], '{')
		if open == -1 {
			b.WriteString(pattern[i:])
			break
		}
		b.WriteString(pattern[i : i+open])
		start := i + open
		close := strings.IndexByte(pattern[start:], '}')
		if close == -1 {
			b.WriteString(pattern[start:])
			break
		}
		name := pattern[start+1 : start+close]
		b.WriteString(c.lookup(name))
		i = start + close + 1
	}
	return b.String()
}

func (c Context) lookup(name string) string {
	switch {
	case strings.HasSuffix(name, ".next"):
		return lookupVars(c.Next, strings.TrimSuffix(name, ".next"))
	case strings.HasSuffix(name, ".last"):
		return lookupVars(c.Last, strings.TrimSuffix(name, ".last"))
	default:
		return lookupVars(c.Base, name)
	}
}

func lookupVars(v Vars, key string) string {
	if v == nil {
		return ""
	}
	return v[key]
}

// BuildVars derives the base variable set for one event, from teamID's
// point of view (determines is_home/opponent/etc).
func BuildVars(e domain.Event, teamID string) Vars {
	v := make(Vars, 32)

	self, opp := e.Home, e.Away
	selfScore, oppScore := e.HomeScore, e.AwayScore
	isHome := true
	if e.Away.ID == teamID {
		self, opp = e.Away, e.Home
		selfScore, oppScore = e.AwayScore, e.HomeScore
		isHome = false
	}

	v["team_name"] = self.Name
	v["team_abbreviation"] = self.Abbreviation
	v["team_record"] = self.Record
	v["opponent_name"] = opp.Name
	v["opponent_abbreviation"] = opp.Abbreviation
	v["opponent_record"] = opp.Record
	v["league"] = e.League
	v["venue_name"] = e.Venue.Name
	v["venue_city"] = e.Venue.City
	v["broadcasts"] = strings.Join(e.Broadcasts, ", ")
	v["date"] = e.StartTime.Format("Monday, January 2")
	v["day_of_week"] = e.StartTime.Format("Monday")
	v["start_time"] = e.StartTime.Format("3:04 PM")

	v["is_home"] = boolVar(isHome)
	v["has_odds"] = boolVar(e.Odds.HasOdds)
	v["is_final"] = boolVar(e.Status.State == domain.StateFinal)
	v["is_live"] = boolVar(e.Status.State == domain.StateLive)
	v["is_playoff"] = boolVar(strings.Contains(strings.ToLower(e.Season), "playoff"))

	if self.Rank != nil {
		v["team_rank"] = strconv.Itoa(*self.Rank)
	}
	if opp.Rank != nil {
		v["opponent_rank"] = strconv.Itoa(*opp.Rank)
	}

	if selfScore != nil {
		v["team_score"] = strconv.Itoa(selfScore.Value)
		v["streak"] = selfScore.Streak
		v["streak_count"] = streakCount(selfScore.Streak)
	}
	if oppScore != nil {
		v["opponent_score"] = strconv.Itoa(oppScore.Value)
	}

	v["final_score"] = finalScore(selfScore, oppScore)
	v["result_text"] = resultText(e.Status.State, selfScore, oppScore)

	v["odds_spread"] = e.Odds.Spread
	v["odds_moneyline"] = moneyline(isHome, e.Odds)
	v["odds_over_under"] = e.Odds.OverUnder

	return v
}

func boolVar(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// streakCount extracts the leading digits of a streak string like "W3" or
// "L5" so conditions such as "streak_count>=3" can compare numerically.
func streakCount(streak string) string {
	digits := strings.TrimLeft(streak, "WLwl")
	if digits == "" {
		return "0"
	}
	return digits
}

func finalScore(self, opp *domain.Score) string {
	if self == nil || opp == nil {
		return ""
	}
	return strconv.Itoa(self.Value) + "-" + strconv.Itoa(opp.Value)
}

func resultText(state domain.EventState, self, opp *domain.Score) string {
	if state != domain.StateFinal || self == nil || opp == nil {
		return ""
	}
	if self.Value > opp.Value {
		return "W " + finalScore(self, opp)
	}
	if self.Value < opp.Value {
		return "L " + finalScore(self, opp)
	}
	return "T " + finalScore(self, opp)
}

func moneyline(isHome bool, o domain.Odds) string {
	if isHome {
		return o.MoneylineHome
	}
	return o.MoneylineAway
}

// ResolveDescription picks the first description option whose condition
// evaluates true, scanning in ascending priority order. Priority-100
// entries are unconditional fallbacks; the last fallback encountered wins
// if no conditional option matches.
func ResolveDescription(opts []domain.DescriptionOption, v Vars) string {
	sorted := make([]domain.DescriptionOption, len(opts))
	copy(sorted, opts)
	sortByPriority(sorted)

	fallback := ""
	for _, opt := range sorted {
		if opt.Priority >= 100 {
			fallback = opt.Body
			continue
		}
		if evalCondition(opt.Condition, v) {
			return opt.Body
		}
	}
	return fallback
}

func sortByPriority(opts []domain.DescriptionOption) {
	for i := 1; i < len(opts); i++ {
		for j := i; j > 0 && opts[j].Priority < opts[j-1].Priority; j-- {
			opts[j], opts[j-1] = opts[j-1], opts[j]
		}
	}
}

// evalCondition evaluates a simple predicate: a bare variable name (truthy
// if "true"), or "name<op>value" with op in {">=","<=","==","!=",">","<"}.
// Unknown or malformed conditions evaluate false.
func evalCondition(cond string, v Vars) bool {
	cond = strings.TrimSpace(cond)
	if cond == "" {
		return false
	}
	for _, op := range []string{">=", "<=", "==", "!=", ">", "<"} {
		if idx := strings.Index(cond, op); idx > 0 {
			name := strings.TrimSpace(cond[:idx])
			want := strings.TrimSpace(cond[idx+len(op):])
			return compareVar(v[name], want, op)
		}
	}
	return v[cond] == "true"
}

func compareVar(have, want, op string) bool {
	haveN, err1 := strconv.Atoi(have)
	wantN, err2 := strconv.Atoi(want)
	if err1 != nil || err2 != nil {
		return compareString(have, want, op)
	}
	switch op {
	case ">=":
		return haveN >= wantN
	case "<=":
		return haveN <= wantN
	case "==":
		return haveN == wantN
	case "!=":
		return haveN != wantN
	case ">":
		return haveN > wantN
	case "<":
		return haveN < wantN
	}
	return false
}

func compareString(have, want, op string) bool {
	switch op {
	case "==":
		return have == want
	case "!=":
		return have != want
	default:
		return false
	}
}
