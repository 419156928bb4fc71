// Package normalize implements the text normalization pipeline shared by
// stream names and generated patterns, plus the fuzzy scorer built on top
// of it. The mojibake table and city/team variant dictionary are fixed
// here directly, since no upstream reference defines them canonically.
package normalize

import (
	"regexp"
	"sort"
	"strings"
)

// mojibakeTable repairs common UTF-8-as-Latin-1 mis-decodings.
var mojibakeTable = []struct{ from, to string }{
	{"Ã©", "é"},
	{"Ã¼", "ü"},
	{"Ã¶", "ö"},
	{"â€™", "'"},
	{"â€\"", "-"},
	{"Â", ""},
}

// cityTeamVariants folds nicknames, regional spellings, and abbreviations.
// Checked longest-key-first so multi-word keys take precedence.
var cityTeamVariants = map[string]string{
	"manchester united": "manchester united",
	"man utd":           "manchester united",
	"man u":             "manchester united",
	"man city":          "manchester city",
	"manchester city":   "manchester city",
	"köln":              "cologne",
	"münchen":           "munich",
	"bayern münchen":    "bayern munich",
	"utd":               "united",
	"st.":               "saint",
	"st ":               "saint ",
}

var sortedVariantKeys = func() []string {
	keys := make([]string, 0, len(cityTeamVariants))
	for k := range cityTeamVariants {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	return keys
}()

var (
	providerPrefixRe   = regexp.MustCompile(`(?i)^(US|UK|USA|CA)\s*[:\-|]\s*`)
	clock24Re          = regexp.MustCompile(`\b([01]?\d|2[0-3]):[0-5]\d\b`)
	clock12Re          = regexp.MustCompile(`(?i)\b(1[0-2]|0?[1-9]):[0-5]\d\s?(am|pm)\b`)
	rankingRe          = regexp.MustCompile(`#\d+`)
	dateNumericRe      = regexp.MustCompile(`\b\d{1,2}[/\-]\d{1,2}([/\-]\d{2,4})?\b`)
	dateAbbrevMonthRe  = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)\.?\s*\d{1,2}(st|nd|rd|th)?\b`)
	channelNumTokenRe  = regexp.MustCompile(`\bch\.?\s*\d+\b`)
	trailingAtBarSufRe = regexp.MustCompile(`[@|].*$`)
	parentheticalRe    = regexp.MustCompile(`\(([^)]*)\)`)
	usStateRe          = regexp.MustCompile(`^[A-Z]{2}$`)
	separatorPunctRe   = regexp.MustCompile(`[._\-]+`)
	whitespaceRe       = regexp.MustCompile(`\s+`)
	timeMaskToken       = "\x00TIME\x00"
)

// Normalize applies a fixed 12-step pipeline. It is idempotent:
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	// 1. mojibake repair
	for _, m := range mojibakeTable {
		s = strings.ReplaceAll(s, m.from, m.to)
	}

	// 2. strip provider/language prefixes
	s = providerPrefixRe.ReplaceAllString(s, "")

	// 3. mask clock times so colon/slash handling below can't mis-split on them
	var masked []string
	s = clock12Re.ReplaceAllStringFunc(s, func(m string) string {
		masked = append(masked, m)
		return timeMaskToken
	})
	s = clock24Re.ReplaceAllStringFunc(s, func(m string) string {
		masked = append(masked, m)
		return timeMaskToken
	})

	// 4. cut metadata prefix at first unmasked colon
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[idx+1:]
	}

	// remove masked time tokens now, before lowercasing changes their case
	for range masked {
		s = strings.Replace(s, timeMaskToken, "", 1)
	}

	// 5. lowercase
	s = strings.ToLower(s)

	// 6. strip dates
	s = dateNumericRe.ReplaceAllString(s, "")
	s = dateAbbrevMonthRe.ReplaceAllString(s, "")

	// 7. strip explicit rankings #N
	s = rankingRe.ReplaceAllString(s, "")

	// 8. strip channel-number tokens and trailing time/date suffixes after @/|
	s = channelNumTokenRe.ReplaceAllString(s, "")
	s = trailingAtBarSufRe.ReplaceAllString(s, "")

	// 9. remove parentheticals unless two-letter US-state code
	s = parentheticalRe.ReplaceAllStringFunc(s, func(m string) string {
		inner := strings.ToUpper(strings.Trim(m, "()"))
		if usStateRe.MatchString(inner) {
			return m
		}
		return ""
	})

	// 10. replace fixed separator punctuation with spaces
	s = separatorPunctRe.ReplaceAllString(s, " ")

	// 11. longest-first dictionary of city/team variants
	for _, key := range sortedVariantKeys {
		s = strings.ReplaceAll(s, key, cityTeamVariants[key])
	}

	// 12. collapse whitespace
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// matchupSeparators is the ordered separator list; the first occurring
// separator wins.
var matchupSeparators = []string{" vs. ", " vs ", " at ", " @ ", " v. ", " v ", " x "}

// SplitMatchup splits a normalized stream name into (away, home) on the
// first occurring separator. ok is false when no separator is present.
func SplitMatchup(normalized string) (away, home string, ok bool) {
	bestIdx := -1
	var bestSep string
	for _, sep := range matchupSeparators {
		if idx := strings.Index(normalized, sep); idx >= 0 {
			if bestIdx == -1 || idx < bestIdx {
				bestIdx = idx
				bestSep = sep
			}
		}
	}
	if bestIdx == -1 {
		return "", "", false
	}
	away = strings.TrimSpace(normalized[:bestIdx])
	home = strings.TrimSpace(normalized[bestIdx+len(bestSep):])
	return away, home, true
}
