// fuzzy.go — ratio / token-set ratio / partial ratio scorers, combined into
// a single weighted score. The Jaro-Winkler primitive is the textbook
// algorithm, hand-rolled rather than pulled in from a third-party
// dependency (see DESIGN.md).
package normalize

import (
	"math"
	"sort"
	"strings"
)

// Score weights for combining the three scorers.
const (
	weightRatio     = 0.35
	weightTokenSet  = 0.45
	weightPartial   = 0.20

	// DefaultThreshold is the minimum combined score matches_any requires.
	DefaultThreshold = 75.0
)

// Algorithm names a which of the three scorers produced the best match.
type Algorithm string

const (
	AlgoRatio    Algorithm = "ratio"
	AlgoTokenSet Algorithm = "token_set_ratio"
	AlgoPartial  Algorithm = "partial_ratio"
)

// Match is the result of scoring one pattern against a haystack.
type Match struct {
	Pattern   string
	Score     float64
	Algorithm Algorithm
}

// Score returns the weighted combination of ratio, token-set ratio, and
// partial ratio between a and b, in the range 0-100.
func Score(a, b string) (combined float64, best Algorithm) {
	r := jaroWinkler(a, b) * 100
	ts := tokenSetRatio(a, b)
	pr := partialRatio(a, b)

	combined = r*weightRatio + ts*weightTokenSet + pr*weightPartial

	best = AlgoRatio
	bestVal := r
	if ts > bestVal {
		best = AlgoTokenSet
		bestVal = ts
	}
	if pr > bestVal {
		best = AlgoPartial
	}
	return combined, best
}

// MatchesAny scores haystack against every pattern and returns the best
// match at or above threshold. ok is false if nothing clears the bar.
func MatchesAny(patterns []string, haystack string, threshold float64) (m Match, ok bool) {
	var best Match
	found := false
	for _, p := range patterns {
		score, algo := Score(p, haystack)
		if !found || score > best.Score {
			best = Match{Pattern: p, Score: score, Algorithm: algo}
			found = true
		}
	}
	if found && best.Score >= threshold {
		return best, true
	}
	return Match{}, false
}

// tokenSetRatio is order-independent word-overlap similarity: it splits both
// strings into token sets, and compares the sorted-intersection-padded
// strings with jaroWinkler. This dominates the weighted score because
// stream names frequently transpose "away vs home" relative to the
// canonical event name.
func tokenSetRatio(a, b string) float64 {
	ta := tokenize(a)
	tb := tokenize(b)

	inter := intersect(ta, tb)
	sortJoin := func(toks []string) string { return strings.Join(toks, " ") }

	interStr := sortJoin(inter)
	sortedA := sortJoin(ta)
	sortedB := sortJoin(tb)

	s1 := jaroWinkler(interStr, sortedA) * 100
	s2 := jaroWinkler(interStr, sortedB) * 100
	s3 := jaroWinkler(sortedA, sortedB) * 100

	return math.Max(s1, math.Max(s2, s3))
}

// partialRatio finds the best-aligned substring match: the shorter string is
// slid across the longer one and scored at each offset, returning the max.
func partialRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		return 0
	}
	if len(long) <= len(short) {
		return jaroWinkler(short, long) * 100
	}

	best := 0.0
	for i := 0; i+len(short) <= len(long); i++ {
		window := long[i : i+len(short)]
		score := jaroWinkler(short, window) * 100
		if score > best {
			best = score
		}
	}
	return best
}

func tokenize(s string) []string {
	fields := strings.Fields(s)
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

func intersect(a, b []string) []string {
	bSet := make(map[string]bool, len(b))
	for _, t := range b {
		bSet[t] = true
	}
	var out []string
	for _, t := range a {
		if bSet[t] {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// jaroWinkler returns Jaro-Winkler similarity in the range 0.0-1.0: the Jaro
// score boosted for strings sharing a common prefix, up to 4 characters.
func jaroWinkler(a, b string) float64 {
	jaro := jaroSimilarity(a, b)
	const prefixScale = 0.1
	return jaro + float64(commonPrefixLen(a, b, 4))*prefixScale*(1-jaro)
}

func commonPrefixLen(a, b string, limit int) int {
	n := limit
	if len(a) < n {
		n = len(a)
	}
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// jaroSimilarity returns the Jaro similarity between two strings (0.0-1.0):
// characters within a sliding window of each other count as matches, and
// matches that appear out of relative order count as transpositions.
func jaroSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	window := matchWindow(len(a), len(b))
	aMatched, bMatched, matchCount := findMatches(a, b, window)
	if matchCount == 0 {
		return 0.0
	}

	transpositions := countTranspositions(a, b, aMatched, bMatched)

	m := float64(matchCount)
	return (m/float64(len(a)) + m/float64(len(b)) + (m-float64(transpositions))/m) / 3.0
}

// matchWindow is how far apart two characters may be and still count as a
// Jaro match, per the standard definition: half the longer string's length,
// minus one.
func matchWindow(lenA, lenB int) int {
	longer := lenA
	if lenB > longer {
		longer = lenB
	}
	w := longer/2 - 1
	if w < 0 {
		return 0
	}
	return w
}

// findMatches flags, for each string, which byte positions matched a byte
// in the other string within window of its own index.
func findMatches(a, b string, window int) (aMatched, bMatched []bool, count int) {
	aMatched = make([]bool, len(a))
	bMatched = make([]bool, len(b))

	for i := range a {
		lo := i - window
		if lo < 0 {
			lo = 0
		}
		hi := i + window + 1
		if hi > len(b) {
			hi = len(b)
		}
		for j := lo; j < hi; j++ {
			if bMatched[j] || a[i] != b[j] {
				continue
			}
			aMatched[i] = true
			bMatched[j] = true
			count++
			break
		}
	}
	return aMatched, bMatched, count
}

// countTranspositions walks the matched bytes of both strings in order and
// counts positions where they disagree, halved per the Jaro definition
// (each transposed pair is counted from both sides of the walk).
func countTranspositions(a, b string, aMatched, bMatched []bool) int {
	transpositions := 0
	j := 0
	for i := range a {
		if !aMatched[i] {
			continue
		}
		for !bMatched[j] {
			j++
		}
		if a[i] != b[j] {
			transpositions++
		}
		j++
	}
	return transpositions / 2
}
