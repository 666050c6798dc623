package dvr

import (
	"strings"
	"time"

	"github.com/ohathar/sportarr/internal/database/store"
)

// epgMatchThreshold is the minimum score for an event↔program match.
const epgMatchThreshold = 50

// maxStartDelta is the precondition window around the event start.
const maxStartDelta = time.Hour

// ProgramMatch pairs an event with its matched EPG program.
type ProgramMatch struct {
	Event   *store.Event
	Program *store.EpgProgram
	Score   int
}

// MatchPrograms scores every event against the candidate programs and
// returns the accepted matches. A program matches at most one event: once
// matched it leaves the candidate pool before the next event is scored.
func MatchPrograms(events []*store.Event, programs []*store.EpgProgram) []ProgramMatch {
	var matches []ProgramMatch
	taken := make(map[int64]bool)

	for _, event := range events {
		if event.EventDate == nil {
			continue
		}

		var best *store.EpgProgram
		bestScore := 0
		for _, program := range programs {
			if taken[program.ID] {
				continue
			}
			score := scoreProgram(event, program)
			if score >= epgMatchThreshold && score > bestScore {
				best = program
				bestScore = score
			}
		}

		if best != nil {
			taken[best.ID] = true
			matches = append(matches, ProgramMatch{Event: event, Program: best, Score: bestScore})
		}
	}

	return matches
}

// scoreProgram applies the EPG matching schedule. Zero means rejected.
func scoreProgram(event *store.Event, program *store.EpgProgram) int {
	delta := program.StartTime.Sub(*event.EventDate)
	if delta < 0 {
		delta = -delta
	}
	if delta > maxStartDelta {
		return 0
	}

	text := strings.ToLower(program.Title + " " + program.Description + " " + program.Category)
	sport := sportForLeague(event.League)
	if sport == nil {
		sport = sportByName(event.Sport)
	}

	// Cross-sport guard: a program talking about a conflicting sport is out,
	// whatever else it says.
	if conflictsWith(text, sport) {
		return 0
	}

	score := 0

	if event.HomeTeam != "" || event.AwayTeam != "" {
		matched := 0
		for _, team := range []string{event.HomeTeam, event.AwayTeam} {
			if team == "" {
				continue
			}
			if teamInText(text, team) {
				matched++
				score += 30
			}
		}
		if matched == 0 {
			// A team-sport program naming neither team is not this event.
			return 0
		}
		if matched == 2 {
			score += 40
		}
	} else if !titleOverlaps(text, event.Title) {
		return 0
	} else {
		score += 30
	}

	if textMentionsSport(text, sport) {
		score += 20
	}

	switch {
	case delta <= 5*time.Minute:
		score += 30
	case delta <= 15*time.Minute:
		score += 20
	case delta <= 30*time.Minute:
		score += 10
	}

	if program.IsSports {
		score += 10
	}

	return score
}

// teamInText checks the full team name or its final word.
func teamInText(text, team string) bool {
	team = strings.ToLower(team)
	if strings.Contains(text, team) {
		return true
	}
	words := strings.Fields(team)
	last := words[len(words)-1]
	return len(last) > 3 && strings.Contains(text, last)
}

// titleOverlaps requires at least half of the event title's significant
// words in the program text.
func titleOverlaps(text, title string) bool {
	words := strings.Fields(strings.ToLower(title))
	significant := 0
	hits := 0
	for _, w := range words {
		if len(w) < 3 {
			continue
		}
		significant++
		if strings.Contains(text, w) {
			hits++
		}
	}
	if significant == 0 {
		return false
	}
	return hits*2 >= significant
}
