package search

import (
	"fmt"
	"strings"

	"github.com/ohathar/sportarr/internal/release"
	"github.com/ohathar/sportarr/internal/releasecache"
)

// BuildQueries composes the candidate indexer queries for an event, most
// specific first. The first query carries the external search budget; the
// rest exist for manual and sweep paths.
func BuildQueries(e release.Event) []string {
	seen := make(map[string]bool)
	var queries []string
	add := func(q string) {
		q = strings.Join(strings.Fields(q), " ")
		if q == "" {
			return
		}
		key := strings.ToLower(q)
		if seen[key] {
			return
		}
		seen[key] = true
		queries = append(queries, q)
	}

	add(e.Title)

	if !e.Date.IsZero() {
		add(fmt.Sprintf("%s %d", e.Title, e.Date.Year()))
	}

	if e.HomeTeam != "" && e.AwayTeam != "" {
		add(fmt.Sprintf("%s vs %s", shortTeam(e.HomeTeam), shortTeam(e.AwayTeam)))
		if e.League != "" {
			add(fmt.Sprintf("%s %s vs %s", e.League, shortTeam(e.HomeTeam), shortTeam(e.AwayTeam)))
		}
	}

	if e.League != "" && !strings.EqualFold(e.League, e.Title) {
		add(fmt.Sprintf("%s %s", e.League, e.Title))
	}

	// League alias expansions reuse the cache's normalization tables so the
	// external queries agree with cache-side matching.
	for _, term := range releasecache.ExpandSearchTerms(e) {
		if strings.Contains(term, " ") && len(term) > len(e.Title) {
			add(term)
		}
	}

	return queries
}

// shortTeam reduces a team name to its scene shorthand: the final word when
// the name is multi-word ("Boston Celtics" -> "Celtics").
func shortTeam(team string) string {
	words := strings.Fields(team)
	if len(words) <= 1 {
		return team
	}
	last := words[len(words)-1]
	if len(last) > 3 {
		return last
	}
	return team
}
