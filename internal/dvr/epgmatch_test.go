package dvr

import (
	"testing"
	"time"

	"github.com/ohathar/sportarr/internal/database/store"
)

func eventAt(id int64, title, sport, league, home, away string, at time.Time) *store.Event {
	return &store.Event{
		ID: id, Title: title, Sport: sport, League: league,
		HomeTeam: home, AwayTeam: away, EventDate: &at,
	}
}

func TestMatchPrograms_CrossSportGuard(t *testing.T) {
	at := time.Date(2024, 4, 1, 19, 30, 0, 0, time.UTC)
	event := eventAt(1, "Boston Celtics vs Los Angeles Lakers", "basketball", "NBA",
		"Boston Celtics", "Los Angeles Lakers", at)

	// Same channel, two minutes later, but it is hockey: the guard discards
	// it regardless of time proximity.
	hockey := &store.EpgProgram{
		ID: 1, ChannelTvgID: "espn", Title: "NHL Hockey Night",
		IsSports: true,
		StartTime: at.Add(2 * time.Minute), EndTime: at.Add(3 * time.Hour),
	}

	matches := MatchPrograms([]*store.Event{event}, []*store.EpgProgram{hockey})
	if len(matches) != 0 {
		t.Fatalf("cross-sport program must be rejected, got %d matches", len(matches))
	}
}

func TestMatchPrograms_TeamAndTimeScoring(t *testing.T) {
	at := time.Date(2024, 4, 1, 19, 30, 0, 0, time.UTC)
	event := eventAt(1, "Boston Celtics vs Los Angeles Lakers", "basketball", "NBA",
		"Boston Celtics", "Los Angeles Lakers", at)

	program := &store.EpgProgram{
		ID: 1, ChannelTvgID: "espn",
		Title:       "NBA Basketball: Celtics at Lakers",
		Description: "Live coverage from Los Angeles",
		IsSports:    true,
		StartTime:   at.Add(2 * time.Minute), EndTime: at.Add(3 * time.Hour),
	}

	matches := MatchPrograms([]*store.Event{event}, []*store.EpgProgram{program})
	if len(matches) != 1 {
		t.Fatalf("expected a match, got %d", len(matches))
	}
	// Both teams (+30+30+40), sport keywords (+20), <=5m (+30), sports flag
	// (+10) comfortably clears the threshold.
	if matches[0].Score < 100 {
		t.Errorf("score = %d, want a strong match", matches[0].Score)
	}
}

func TestMatchPrograms_TimePrecondition(t *testing.T) {
	at := time.Date(2024, 4, 1, 19, 30, 0, 0, time.UTC)
	event := eventAt(1, "Boston Celtics vs Los Angeles Lakers", "basketball", "NBA",
		"Boston Celtics", "Los Angeles Lakers", at)

	farAway := &store.EpgProgram{
		ID: 1, ChannelTvgID: "espn",
		Title:     "NBA Basketball: Celtics at Lakers",
		IsSports:  true,
		StartTime: at.Add(3 * time.Hour), EndTime: at.Add(6 * time.Hour),
	}

	matches := MatchPrograms([]*store.Event{event}, []*store.EpgProgram{farAway})
	if len(matches) != 0 {
		t.Errorf("program more than 1h from the event start must not match")
	}
}

func TestMatchPrograms_NoTeamMatchEliminates(t *testing.T) {
	at := time.Date(2024, 4, 1, 19, 30, 0, 0, time.UTC)
	event := eventAt(1, "Boston Celtics vs Los Angeles Lakers", "basketball", "NBA",
		"Boston Celtics", "Los Angeles Lakers", at)

	wrongTeams := &store.EpgProgram{
		ID: 1, ChannelTvgID: "espn",
		Title:     "NBA Basketball: Bulls at Knicks",
		IsSports:  true,
		StartTime: at.Add(2 * time.Minute), EndTime: at.Add(3 * time.Hour),
	}

	matches := MatchPrograms([]*store.Event{event}, []*store.EpgProgram{wrongTeams})
	if len(matches) != 0 {
		t.Errorf("a program naming neither team must be eliminated")
	}
}

func TestMatchPrograms_ProgramConsumedOnce(t *testing.T) {
	at := time.Date(2024, 4, 1, 19, 30, 0, 0, time.UTC)
	eventA := eventAt(1, "Boston Celtics vs Los Angeles Lakers", "basketball", "NBA",
		"Boston Celtics", "Los Angeles Lakers", at)
	eventB := eventAt(2, "Boston Celtics vs Los Angeles Lakers", "basketball", "NBA",
		"Boston Celtics", "Los Angeles Lakers", at.Add(10*time.Minute))

	program := &store.EpgProgram{
		ID: 1, ChannelTvgID: "espn",
		Title:     "NBA Basketball: Celtics at Lakers",
		IsSports:  true,
		StartTime: at, EndTime: at.Add(3 * time.Hour),
	}

	matches := MatchPrograms([]*store.Event{eventA, eventB}, []*store.EpgProgram{program})
	if len(matches) != 1 {
		t.Fatalf("one program may match at most one event, got %d matches", len(matches))
	}
	if matches[0].Event.ID != eventA.ID {
		t.Errorf("first event should consume the program")
	}
}

func TestBuildSyntheticTitle_Shape(t *testing.T) {
	// The full parse round-trip is covered in the parser package.
	title := BuildSyntheticTitle("UFC 299 Main Card", 2024, nil)
	if title != "UFC 299 Main Card.2024.HDTV-DVR" {
		t.Errorf("nil probe title = %q", title)
	}
}
