package releasecache

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/ohathar/sportarr/internal/release"
)

var separatorPattern = regexp.MustCompile(`[.\s_\-:]+`)

// Normalize lowercases, strips diacritics and collapses separators so titles
// from different indexers compare equal.
func Normalize(s string) string {
	s = stripDiacritics(strings.ToLower(s))
	s = separatorPattern.ReplaceAllString(s, " ")
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func stripDiacritics(s string) string {
	decomposed := norm.NFD.String(s)
	out := make([]rune, 0, len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// leagueAliases expands a league token into the forms scene groups use.
var leagueAliases = map[string][]string{
	"formula 1": {"formula1", "f1", "formula 1"},
	"formula1":  {"formula1", "f1"},
	"f1":        {"formula1", "f1"},
	"ufc":       {"ufc"},
	"nfl":       {"nfl"},
	"nba":       {"nba"},
	"nhl":       {"nhl"},
	"mlb":       {"mlb"},
	"motogp":    {"motogp", "moto gp"},
	"premier league": {"epl", "premier league"},
}

// locationAliases maps city tokens to their scene shorthands.
var locationAliases = map[string][]string{
	"new york":    {"ny"},
	"los angeles": {"la"},
	"las vegas":   {"vegas"},
	"san francisco": {"sf"},
}

// ExpandSearchTerms computes the expected search-term bag for an event: team
// names and their words, league normalizations, the year and location
// aliases. The same expansion feeds cache queries and external searches.
func ExpandSearchTerms(e release.Event) []string {
	seen := make(map[string]bool)
	var terms []string
	add := func(t string) {
		t = Normalize(t)
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		terms = append(terms, t)
	}

	add(e.Title)
	for _, w := range strings.Fields(Normalize(e.Title)) {
		if len(w) > 2 {
			add(w)
		}
	}

	for _, team := range []string{e.HomeTeam, e.AwayTeam} {
		if team == "" {
			continue
		}
		add(team)
		for _, w := range strings.Fields(Normalize(team)) {
			if len(w) > 3 {
				add(w)
			}
		}
		for location, aliases := range locationAliases {
			if strings.Contains(Normalize(team), location) {
				for _, a := range aliases {
					add(a)
				}
			}
		}
	}

	if e.League != "" {
		add(e.League)
		if aliases, ok := leagueAliases[Normalize(e.League)]; ok {
			for _, a := range aliases {
				add(a)
			}
		}
	}

	if !e.Date.IsZero() {
		add(strconv.Itoa(e.Date.Year()))
	}

	return terms
}

// TermBag encodes search terms for the denormalized column; one term per
// line keeps exact-term containment checks cheap.
func TermBag(terms []string) string {
	return strings.Join(terms, "\n")
}

// SplitTermBag decodes the stored bag.
func SplitTermBag(bag string) []string {
	if bag == "" {
		return nil
	}
	return strings.Split(bag, "\n")
}
