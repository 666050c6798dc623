// Package release decides whether a candidate release belongs to a monitored
// event, producing a confidence score with hard-rejection signals.
package release

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Event is the view of a monitored event the matcher needs.
type Event struct {
	ID       int64
	Title    string
	Sport    string
	League   string
	HomeTeam string
	AwayTeam string
	Date     time.Time
}

// Candidate is the view of a release the matcher needs.
type Candidate struct {
	GUID           string
	Title          string
	PublishDate    time.Time
	Seeders        int
	TransportScore int
}

// Validation is the outcome of matching one release against one event.
type Validation struct {
	Confidence int
	IsMatch    bool
	HardReject bool
	Reasons    []string
	Rejections []string
}

// matchThreshold is the minimum confidence for a positive match.
const matchThreshold = 50

var (
	eventNumberPattern = regexp.MustCompile(`(?i)\b(?:ufc|bellator|pfl|boxing)[.\s_-]*(\d{1,4})\b`)
	separatorPattern   = regexp.MustCompile(`[.\s_-]+`)
	nonWordPattern     = regexp.MustCompile(`[^a-z0-9 ]+`)
)

// knownParts lists "early prelims" before "prelims" so the longer part wins.
var knownParts = []string{
	"early prelims",
	"prelims",
	"main card",
	"main event",
	"qualifying",
	"sprint",
	"race",
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "live": true, "ppv": true,
	"vs": true, "at": true, "of": true, "in": true, "on": true,
}

// Validate scores a release against an event. It begins at a neutral 50 and
// applies a fixed schedule of adjustments; the result is deterministic and
// independent of any other release.
func Validate(c Candidate, e Event, requestedPart string) Validation {
	v := Validation{Confidence: matchThreshold}
	title := normalize(c.Title)

	scoreEventNumber(&v, title, e)
	scoreTeams(&v, title, e)
	scoreDate(&v, c.Title, e)
	scoreLeague(&v, title, e)
	scorePart(&v, title, requestedPart)
	scoreWordOverlap(&v, title, e)

	if v.Confidence > 100 {
		v.Confidence = 100
	}
	if v.Confidence < 0 {
		v.Confidence = 0
	}
	// A hard reject forces the confidence down so raw scores never suggest a
	// viable candidate.
	if v.HardReject {
		v.Confidence = 0
	}
	v.IsMatch = v.Confidence >= matchThreshold && !v.HardReject
	return v
}

func scoreEventNumber(v *Validation, releaseTitle string, e Event) {
	eventNum := extractEventNumber(normalize(e.Title))
	releaseNum := extractEventNumber(releaseTitle)

	switch {
	case eventNum == 0 && releaseNum == 0:
		return
	case eventNum != 0 && releaseNum == eventNum:
		v.Confidence += 40
		v.Reasons = append(v.Reasons, fmt.Sprintf("event number %d matches", eventNum))
	case eventNum != 0 && releaseNum == 0:
		// No number in the release; neither bonus nor penalty.
	case eventNum != 0 && releaseNum != eventNum:
		v.Confidence -= 50
		v.Rejections = append(v.Rejections, fmt.Sprintf("event number mismatch: release has %d, event is %d", releaseNum, eventNum))
		// A different number in the title positively identifies a different
		// event; that is fatal regardless of other signals.
		v.Confidence -= 80
		v.HardReject = true
		v.Rejections = append(v.Rejections, "conflicting event number")
	}
}

func extractEventNumber(title string) int {
	m := eventNumberPattern.FindStringSubmatch(title)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func scoreTeams(v *Validation, title string, e Event) {
	if e.HomeTeam == "" || e.AwayTeam == "" {
		return
	}

	home := containsTeam(title, e.HomeTeam)
	away := containsTeam(title, e.AwayTeam)
	switch {
	case home && away:
		v.Confidence += 35
		v.Reasons = append(v.Reasons, "both team names present")
	case home || away:
		v.Confidence += 15
		v.Reasons = append(v.Reasons, "one team name present")
	default:
		v.Confidence -= 20
		v.Rejections = append(v.Rejections, "no team name present")
	}
}

// containsTeam checks for the full team name or its final word (the common
// scene shorthand: "Celtics" for "Boston Celtics").
func containsTeam(title, team string) bool {
	team = normalize(team)
	if team == "" {
		return false
	}
	if strings.Contains(title, team) {
		return true
	}
	words := strings.Fields(team)
	last := words[len(words)-1]
	return len(last) > 3 && containsWord(title, last)
}

func containsWord(title, word string) bool {
	for _, w := range strings.Fields(title) {
		if w == word {
			return true
		}
	}
	return false
}

func scoreDate(v *Validation, releaseTitle string, e Event) {
	releaseDate, ok := dateFromTitle(releaseTitle)
	if !ok || e.Date.IsZero() {
		return
	}

	days := math.Abs(releaseDate.Sub(e.Date).Hours() / 24)
	switch {
	case days <= 1:
		v.Confidence += 25
		v.Reasons = append(v.Reasons, "release date within 1 day of event")
	case days <= 3:
		v.Confidence += 15
		v.Reasons = append(v.Reasons, "release date within 3 days of event")
	case days <= 7:
		v.Confidence += 5
		v.Reasons = append(v.Reasons, "release date within 7 days of event")
	case days > 30:
		v.Confidence -= 30
		v.Rejections = append(v.Rejections, "release date more than 30 days from event")
	}
}

var titleDatePattern = regexp.MustCompile(`\b(19\d{2}|20\d{2})[.\s_-](\d{1,2})[.\s_-](\d{1,2})\b`)

func dateFromTitle(title string) (time.Time, bool) {
	m := titleDatePattern.FindStringSubmatch(title)
	if m == nil {
		return time.Time{}, false
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

func scoreLeague(v *Validation, title string, e Event) {
	league := normalize(e.League)
	if league == "" {
		return
	}
	if containsWord(title, league) || strings.Contains(title, league) {
		v.Confidence += 15
		v.Reasons = append(v.Reasons, "league token matches")
	}
}

func scorePart(v *Validation, title, requestedPart string) {
	if requestedPart == "" {
		return
	}

	detected := DetectPart(title)
	want := normalize(requestedPart)
	switch {
	case detected == want:
		v.Confidence += 20
		v.Reasons = append(v.Reasons, "requested part matches")
	case detected == "":
		v.HardReject = true
		v.Rejections = append(v.Rejections, fmt.Sprintf("part %q requested but release has no part token", requestedPart))
	default:
		v.HardReject = true
		v.Rejections = append(v.Rejections, fmt.Sprintf("wrong part: release is %q, wanted %q", detected, requestedPart))
	}
}

// DetectPart returns the normalized part name found in a title, or "".
func DetectPart(title string) string {
	title = normalize(title)
	for _, part := range knownParts {
		if strings.Contains(title, part) {
			return part
		}
	}
	return ""
}

func scoreWordOverlap(v *Validation, title string, e Event) {
	eventWords := significantWords(normalize(e.Title))
	releaseWords := significantWords(title)
	if len(eventWords) == 0 || len(releaseWords) == 0 {
		return
	}

	intersection := 0
	union := make(map[string]bool, len(eventWords)+len(releaseWords))
	for w := range eventWords {
		union[w] = true
	}
	for w := range releaseWords {
		if eventWords[w] {
			intersection++
		}
		union[w] = true
	}

	bonus := int(math.Round(20 * float64(intersection) / float64(len(union))))
	if bonus > 0 {
		v.Confidence += bonus
		v.Reasons = append(v.Reasons, fmt.Sprintf("word overlap bonus +%d", bonus))
	}
}

func significantWords(s string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		if len(w) < 2 || stopwords[w] {
			continue
		}
		words[w] = true
	}
	return words
}

func normalize(s string) string {
	s = strings.ToLower(s)
	s = separatorPattern.ReplaceAllString(s, " ")
	s = nonWordPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Scored pairs a candidate with its validation for sorting.
type Scored struct {
	Candidate  Candidate
	Validation Validation
}

// FilterMatches validates every candidate and returns the matches ordered by
// confidence, ties broken by the transport-side score (seeders, quality,
// recency). Validation of one release never depends on another.
func FilterMatches(candidates []Candidate, e Event, requestedPart string) []Scored {
	matches := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		val := Validate(c, e, requestedPart)
		if val.IsMatch {
			matches = append(matches, Scored{Candidate: c, Validation: val})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Validation.Confidence != matches[j].Validation.Confidence {
			return matches[i].Validation.Confidence > matches[j].Validation.Confidence
		}
		return matches[i].Candidate.TransportScore > matches[j].Candidate.TransportScore
	})

	return matches
}
