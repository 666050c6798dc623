package parser

import "testing"

func TestParseTitle_Resolution(t *testing.T) {
	tests := []struct {
		title string
		want  int
	}{
		{"UFC.299.Main.Card.1080p.WEB-DL.H264-GRP", 1080},
		{"NFL.2023.Week.15.Chiefs.vs.Patriots.720p.HDTV.x264", 720},
		{"Formula1.2024.Round.05.Race.2160p.F1TV.WEB-DL", 2160},
		{"MotoGP.2024.Qatar.4K.HDTV", 2160},
		{"NHL.Bruins.at.Rangers.FullHD.HDTV", 1080},
		{"NBA.Celtics.vs.Lakers.1920x1080.HDTV", 1080},
		{"Boxing.Fury.vs.Usyk.576p.SDTV", 576},
		{"UFC.Fight.Night.240", 0},
	}

	for _, tt := range tests {
		got := ParseTitle(tt.title)
		if got.Quality.Resolution != tt.want {
			t.Errorf("ParseTitle(%q).Quality.Resolution = %d, want %d", tt.title, got.Quality.Resolution, tt.want)
		}
	}
}

func TestParseTitle_SourceLastMatchWins(t *testing.T) {
	// Scene sports titles often lead with the originating platform and end
	// with the actual format.
	got := ParseTitle("F1.2024.Round.10.WEB.Feed.1080p.HDTV.x264-GRP")
	if got.Quality.Source != SourceHDTV {
		t.Errorf("expected last source token HDTV to win, got %q", got.Quality.Source)
	}

	got = ParseTitle("UFC.299.HDTV.Rip.1080p.WEB-DL.H264-GRP")
	if got.Quality.Source != SourceWEBDL {
		t.Errorf("expected WEB-DL to win as last token, got %q", got.Quality.Source)
	}
}

func TestParseTitle_RemuxUpgradesBluray(t *testing.T) {
	got := ParseTitle("UFC.300.2024.1080p.BluRay.Remux.AVC-GRP")
	if got.Quality.Source != SourceBlurayRaw {
		t.Errorf("expected BluRay+Remux => BlurayRaw, got %q", got.Quality.Source)
	}
	if !got.Quality.IsRemux {
		t.Error("expected IsRemux to be set")
	}
}

func TestParseTitle_SourceFallbacks(t *testing.T) {
	if got := ParseTitle("NFL.Week.4.Bills.vs.Dolphins.720p"); got.Quality.Source != SourceHDTV {
		t.Errorf("resolution-only title should imply HDTV, got %q", got.Quality.Source)
	}
	if got := ParseTitle("nhl.capture.ts"); got.Quality.Source != SourceRawHD {
		t.Errorf(".ts extension should imply RawHD, got %q", got.Quality.Source)
	}
	if got := ParseTitle("old.race.avi"); got.Quality.Source != SourceSDTV {
		t.Errorf(".avi extension should imply SDTV, got %q", got.Quality.Source)
	}
}

func TestParseTitle_Revision(t *testing.T) {
	tests := []struct {
		title       string
		wantVersion int
		wantReal    bool
	}{
		{"UFC.299.1080p.HDTV.x264-GRP", 1, false},
		{"UFC.299.PROPER.1080p.HDTV.x264-GRP", 2, false},
		{"UFC.299.REPACK.1080p.HDTV.x264-GRP", 2, false},
		{"UFC.299.v3.1080p.HDTV.x264-GRP", 3, false},
		{"UFC.299.REAL.PROPER.1080p.HDTV-GRP", 2, true},
		// REAL is case-sensitive by scene convention.
		{"UFC.299.real.madrid.1080p.HDTV-GRP", 1, false},
	}

	for _, tt := range tests {
		got := ParseTitle(tt.title)
		if got.Revision.Version != tt.wantVersion {
			t.Errorf("ParseTitle(%q).Revision.Version = %d, want %d", tt.title, got.Revision.Version, tt.wantVersion)
		}
		if got.Revision.IsReal != tt.wantReal {
			t.Errorf("ParseTitle(%q).Revision.IsReal = %v, want %v", tt.title, got.Revision.IsReal, tt.wantReal)
		}
	}
}

func TestParseTitle_SportPrefixAndPack(t *testing.T) {
	got := ParseTitle("NFL.2023.Week.15.All.Games.720p.HDTV")
	if got.SportPrefix != "NFL" {
		t.Errorf("SportPrefix = %q, want NFL", got.SportPrefix)
	}
	if !got.IsPack {
		t.Error("Week N with no vs/@ token should parse as a pack")
	}

	got = ParseTitle("NFL.2023.Week.15.Chiefs.vs.Patriots.720p.HDTV")
	if got.IsPack {
		t.Error("Week N with a vs token is a single event, not a pack")
	}

	got = ParseTitle("Formula.1.2024.Round.05.Miami.Race.1080p.F1TV")
	if got.SportPrefix != "FORMULA1" {
		t.Errorf("SportPrefix = %q, want FORMULA1", got.SportPrefix)
	}
	if got.Round != 5 {
		t.Errorf("Round = %d, want 5", got.Round)
	}
	if !got.IsPack {
		t.Error("Round N with no vs token should parse as a pack")
	}

	got = ParseTitle("NHL.Bruins.at.Rangers.720p.HDTV")
	if got.SportPrefix != "NHL" {
		t.Errorf("SportPrefix = %q, want NHL", got.SportPrefix)
	}
}

func TestParseTitle_Date(t *testing.T) {
	got := ParseTitle("UFC.299.2024.03.09.PPV.1080p.WEB-DL-GRP")
	if got.Year != 2024 || got.Month != 3 || got.Day != 9 {
		t.Errorf("date = %d-%d-%d, want 2024-3-9", got.Year, got.Month, got.Day)
	}

	got = ParseTitle("NASCAR.Cup.Series.2024.Daytona.500.720p.HDTV")
	if got.Year != 2024 {
		t.Errorf("Year = %d, want 2024", got.Year)
	}
	if got.Month != 0 || got.Day != 0 {
		t.Errorf("month/day should be unset, got %d/%d", got.Month, got.Day)
	}
}

func TestParseTitle_ReleaseGroupAndLanguage(t *testing.T) {
	got := ParseTitle("UFC.299.German.1080p.HDTV.x264-SPORTGRP")
	if got.ReleaseGroup != "SPORTGRP" {
		t.Errorf("ReleaseGroup = %q, want SPORTGRP", got.ReleaseGroup)
	}
	if got.Language != "German" {
		t.Errorf("Language = %q, want German", got.Language)
	}

	// Codec tokens must not be mistaken for a group.
	got = ParseTitle("UFC.299.1080p.HDTV-x264")
	if got.ReleaseGroup != "" {
		t.Errorf("ReleaseGroup = %q, want empty", got.ReleaseGroup)
	}
}

func TestParseTitle_NeverPanicsOnGarbage(t *testing.T) {
	for _, title := range []string{"", "   ", "----", "vs", "@.@.@", "x264"} {
		got := ParseTitle(title)
		if got == nil {
			t.Fatalf("ParseTitle(%q) returned nil", title)
		}
	}
}

func TestQualityLabel(t *testing.T) {
	tests := []struct {
		q    Quality
		want string
	}{
		{Quality{Resolution: 1080, Source: SourceHDTV}, "HDTV-1080p"},
		{Quality{Resolution: 720, Source: SourceWEBDL}, "WEBDL-720p"},
		{Quality{Resolution: 1080, Source: SourceBlurayRaw}, "Bluray-1080p Remux"},
		{Quality{Resolution: 0, Source: SourceHDTV}, "HDTV"},
		{Quality{}, "Unknown"},
	}

	for _, tt := range tests {
		if got := QualityLabel(tt.q); got != tt.want {
			t.Errorf("QualityLabel(%+v) = %q, want %q", tt.q, got, tt.want)
		}
	}
}

func TestParseTitle_SyntheticDVRRoundTrip(t *testing.T) {
	// The DVR import path builds titles of this exact shape; the parser must
	// round-trip the fields the scorer reads.
	got := ParseTitle("UFC 299 Main Card.2024.1080p.HDTV.x264.AAC.2.0-DVR")
	if got.Quality.Resolution != 1080 {
		t.Errorf("Resolution = %d, want 1080", got.Quality.Resolution)
	}
	if got.Quality.Source != SourceHDTV {
		t.Errorf("Source = %q, want HDTV", got.Quality.Source)
	}
	if got.Quality.Codec != "x264" {
		t.Errorf("Codec = %q, want x264", got.Quality.Codec)
	}
	if got.ReleaseGroup != "DVR" {
		t.Errorf("ReleaseGroup = %q, want DVR", got.ReleaseGroup)
	}
	if got.Year != 2024 {
		t.Errorf("Year = %d, want 2024", got.Year)
	}
}
