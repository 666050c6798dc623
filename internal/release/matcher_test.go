package release

import (
	"testing"
	"time"
)

func ufc299() Event {
	return Event{
		ID:     1,
		Title:  "UFC 299",
		Sport:  "mma",
		League: "UFC",
		Date:   time.Date(2024, 3, 9, 22, 0, 0, 0, time.UTC),
	}
}

func celticsLakers() Event {
	return Event{
		ID:       2,
		Title:    "Boston Celtics vs Los Angeles Lakers",
		Sport:    "basketball",
		League:   "NBA",
		HomeTeam: "Boston Celtics",
		AwayTeam: "Los Angeles Lakers",
		Date:     time.Date(2024, 4, 1, 19, 30, 0, 0, time.UTC),
	}
}

func TestValidate_EventNumberMatch(t *testing.T) {
	v := Validate(Candidate{Title: "UFC.299.Main.Card.1080p.WEB-DL.H264-GRP"}, ufc299(), "Main Card")
	if !v.IsMatch {
		t.Fatalf("expected match, got %+v", v)
	}
	if v.Confidence < 90 {
		t.Errorf("confidence = %d, want >= 90", v.Confidence)
	}
}

func TestValidate_WrongEventNumberHardRejects(t *testing.T) {
	v := Validate(Candidate{Title: "UFC.298.Main.Card.1080p"}, ufc299(), "")
	if !v.HardReject {
		t.Error("conflicting event number must hard-reject")
	}
	if v.IsMatch {
		t.Error("hard-rejected release must not match")
	}
	if v.Confidence != 0 {
		t.Errorf("confidence = %d, want 0 (forced low on hard reject)", v.Confidence)
	}
}

func TestValidate_PartRequiredButMissing(t *testing.T) {
	v := Validate(Candidate{Title: "UFC.299.1080p.WEB-DL"}, ufc299(), "Prelims")
	if !v.HardReject {
		t.Error("missing part token with a requested part must hard-reject")
	}
	if v.Confidence != 0 {
		t.Errorf("confidence = %d, want 0 despite the matching event number", v.Confidence)
	}
}

func TestValidate_WrongPartHardRejects(t *testing.T) {
	v := Validate(Candidate{Title: "UFC.299.Early.Prelims.1080p.WEB-DL"}, ufc299(), "Main Card")
	if !v.HardReject {
		t.Error("wrong part must hard-reject")
	}
}

func TestValidate_EarlyPrelimsNotMistakenForPrelims(t *testing.T) {
	v := Validate(Candidate{Title: "UFC.299.Early.Prelims.1080p.WEB-DL"}, ufc299(), "Early Prelims")
	if v.HardReject {
		t.Errorf("early prelims release should satisfy an early prelims request: %+v", v)
	}
	if !v.IsMatch {
		t.Errorf("expected match, got %+v", v)
	}
}

func TestValidate_TeamNames(t *testing.T) {
	e := celticsLakers()

	both := Validate(Candidate{Title: "NBA.Celtics.vs.Lakers.1080p.HDTV"}, e, "")
	one := Validate(Candidate{Title: "NBA.Celtics.Game.1080p.HDTV"}, e, "")
	neither := Validate(Candidate{Title: "NBA.Bulls.vs.Knicks.1080p.HDTV"}, e, "")

	if !both.IsMatch {
		t.Errorf("both teams present should match: %+v", both)
	}
	if both.Confidence <= one.Confidence {
		t.Errorf("both-team confidence %d should exceed one-team %d", both.Confidence, one.Confidence)
	}
	if one.Confidence <= neither.Confidence {
		t.Errorf("one-team confidence %d should exceed no-team %d", one.Confidence, neither.Confidence)
	}
	if neither.IsMatch {
		t.Errorf("wrong-team release should not match: %+v", neither)
	}
}

func TestValidate_DateProximity(t *testing.T) {
	e := ufc299()

	near := Validate(Candidate{Title: "UFC.299.2024.03.09.1080p.HDTV"}, e, "")
	far := Validate(Candidate{Title: "UFC.299.2024.06.20.1080p.HDTV"}, e, "")

	if near.Confidence <= far.Confidence {
		t.Errorf("same-day release %d should outrank a 3-months-off release %d", near.Confidence, far.Confidence)
	}
}

func TestValidate_Deterministic(t *testing.T) {
	c := Candidate{Title: "UFC.299.Main.Card.1080p.WEB-DL.H264-GRP"}
	e := ufc299()

	first := Validate(c, e, "Main Card")
	for i := 0; i < 5; i++ {
		again := Validate(c, e, "Main Card")
		if again.Confidence != first.Confidence || again.IsMatch != first.IsMatch {
			t.Fatalf("validation is not deterministic: %+v vs %+v", first, again)
		}
	}
}

func TestFilterMatches_OrderingAndTieBreak(t *testing.T) {
	e := ufc299()
	candidates := []Candidate{
		{GUID: "g2", Title: "UFC.298.Main.Card.1080p", Seeders: 500, TransportScore: 500},
		{GUID: "g1", Title: "UFC.299.Main.Card.1080p.WEB-DL.H264-GRP", Seeders: 50, TransportScore: 120},
		{GUID: "g3", Title: "UFC.299.Main.Card.720p.HDTV.x264-GRP", Seeders: 10, TransportScore: 40},
	}

	matches := FilterMatches(candidates, e, "Main Card")
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches (g2 hard-rejected), got %d", len(matches))
	}
	if matches[0].Candidate.GUID != "g1" {
		t.Errorf("g1 should win the tie on transport score, got %s", matches[0].Candidate.GUID)
	}
}

func TestDetectPart(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"UFC.299.Early.Prelims.1080p", "early prelims"},
		{"UFC.299.Prelims.1080p", "prelims"},
		{"UFC.299.Main.Card.1080p", "main card"},
		{"F1.2024.Monaco.Qualifying.1080p", "qualifying"},
		{"UFC.299.1080p", ""},
	}
	for _, tt := range tests {
		if got := DetectPart(tt.title); got != tt.want {
			t.Errorf("DetectPart(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}
