package quality

import (
	"testing"

	"github.com/ohathar/sportarr/internal/parser"
)

func parseFor(title string) *parser.ParsedTitle {
	return parser.ParseTitle(title)
}

func testProfile() *Profile {
	return &Profile{
		ID:     1,
		Name:   "HD Sports",
		Cutoff: "WEBDL-1080p",
		Items: []ProfileItem{
			{Name: "HDTV-720p", Allowed: true},
			{Name: "WEB 720p", Qualities: []string{"WEBDL-720p", "WEBRip-720p"}, Allowed: true},
			{Name: "HDTV-1080p", Allowed: true},
			{Name: "WEB 1080p", Qualities: []string{"WEBDL-1080p", "WEBRip-1080p"}, Allowed: true},
			{Name: "Bluray-1080p", Allowed: false},
		},
		FormatItems: []FormatItem{
			{FormatID: 1, Name: "x265", Score: 50, Allowed: true},
			{FormatID: 2, Name: "LQ Group", Score: -100, Allowed: true},
		},
	}
}

func TestQualityScore_PositionOrdering(t *testing.T) {
	p := testProfile()

	hdtv720 := QualityScore("HDTV-720p", p)
	webdl720 := QualityScore("WEBDL-720p", p)
	hdtv1080 := QualityScore("HDTV-1080p", p)
	webdl1080 := QualityScore("WEBDL-1080p", p)

	if !(hdtv720 < webdl720 && webdl720 < hdtv1080 && hdtv1080 < webdl1080) {
		t.Errorf("profile position should dominate: %d %d %d %d", hdtv720, webdl720, hdtv1080, webdl1080)
	}
}

func TestQualityScore_WebGroupMatchesBothWebSources(t *testing.T) {
	p := testProfile()

	if QualityScore("WEBRip-1080p", p) != QualityScore("WEBDL-1080p", p) {
		t.Error("WEB group should score WEB-DL and WEBRip at the same resolution equally")
	}
}

func TestQualityScore_CaseAndSeparatorInsensitive(t *testing.T) {
	p := testProfile()

	if QualityScore("hdtv 1080p", p) != QualityScore("HDTV-1080p", p) {
		t.Error("matching should collapse dashes and spaces and ignore case")
	}
}

func TestQualityScore_UnmatchedAndDisallowed(t *testing.T) {
	p := testProfile()

	if got := QualityScore("SDTV", p); got != 0 {
		t.Errorf("unmatched label should score 0, got %d", got)
	}
	if got := QualityScore("Bluray-1080p", p); got != 0 {
		t.Errorf("disallowed item should score 0, got %d", got)
	}
}

func TestQualityScore_NilProfileFallback(t *testing.T) {
	tests := []struct {
		label string
		want  int
	}{
		{"HDTV-2160p", 400},
		{"WEBDL-1080p", 300},
		{"HDTV-720p", 200},
		{"SDTV", 100},
		{"garbage", 50},
	}
	for _, tt := range tests {
		if got := QualityScore(tt.label, nil); got != tt.want {
			t.Errorf("QualityScore(%q, nil) = %d, want %d", tt.label, got, tt.want)
		}
	}
}

func TestProfile_CutoffAndUpgrade(t *testing.T) {
	p := testProfile()

	if p.MeetsCutoff("HDTV-720p") {
		t.Error("HDTV-720p is below the WEBDL-1080p cutoff")
	}
	if !p.MeetsCutoff("WEBDL-1080p") {
		t.Error("the cutoff quality itself meets the cutoff")
	}
	if !p.IsUpgrade("HDTV-720p", "HDTV-1080p") {
		t.Error("HDTV-1080p upgrades HDTV-720p")
	}
	if p.IsUpgrade("WEBDL-1080p", "HDTV-1080p") {
		t.Error("HDTV-1080p does not upgrade WEBDL-1080p")
	}
	if p.IsUpgrade("HDTV-720p", "Bluray-1080p") {
		t.Error("a disallowed quality is never an upgrade")
	}
	if !p.IsUpgrade("", "HDTV-720p") {
		t.Error("unknown current quality is always upgradable")
	}
}

func TestCustomFormat_RequiredAndOptional(t *testing.T) {
	cf := &CustomFormat{
		ID:   1,
		Name: "HQ WEB",
		Specifications: []Specification{
			{Kind: SpecReleaseTitle, Pattern: `web-?dl`, Required: true},
			{Kind: SpecReleaseTitle, Pattern: `h\.?264`},
			{Kind: SpecReleaseTitle, Pattern: `x265`},
		},
	}

	if !cf.Matches(FormatInput{Title: "UFC.299.1080p.WEB-DL.H264-GRP"}) {
		t.Error("required matched and one optional matched: format should match")
	}
	if cf.Matches(FormatInput{Title: "UFC.299.1080p.HDTV.H264-GRP"}) {
		t.Error("required spec failed: format must not match")
	}
	if cf.Matches(FormatInput{Title: "UFC.299.1080p.WEB-DL.AV1-GRP"}) {
		t.Error("no optional spec matched: format must not match")
	}
}

func TestCustomFormat_Negate(t *testing.T) {
	cf := &CustomFormat{
		ID:   2,
		Name: "Not German",
		Specifications: []Specification{
			{Kind: SpecLanguage, Pattern: "German", Negate: true, Required: true},
			{Kind: SpecReleaseTitle, Pattern: `1080p`},
		},
	}

	in := func(title string) FormatInput {
		return FormatInput{Title: title, Parsed: parseFor(title)}
	}

	if !cf.Matches(in("UFC.299.1080p.WEB-DL-GRP")) {
		t.Error("non-German release should match")
	}
	if cf.Matches(in("UFC.299.German.1080p.WEB-DL-GRP")) {
		t.Error("German release must be excluded by the negated spec")
	}
}

func TestCustomFormat_SizeSpec(t *testing.T) {
	const gb = int64(1024 * 1024 * 1024)
	cf := &CustomFormat{
		ID:   3,
		Name: "Reasonable size",
		Specifications: []Specification{
			{Kind: SpecSize, MinSizeGB: 1, MaxSizeGB: 20, Required: true},
		},
	}

	if !cf.Matches(FormatInput{Title: "x", SizeBytes: 5 * gb}) {
		t.Error("5GB should match the 1-20GB window")
	}
	if cf.Matches(FormatInput{Title: "x", SizeBytes: 40 * gb}) {
		t.Error("40GB exceeds the window")
	}
	if cf.Matches(FormatInput{Title: "x", SizeBytes: 0}) {
		t.Error("unknown size must not match a size spec")
	}
}

func TestScoreRelease_TotalIsSum(t *testing.T) {
	p := testProfile()
	formats := []*CustomFormat{
		{ID: 1, Name: "x265", Specifications: []Specification{
			{Kind: SpecReleaseTitle, Pattern: `x265|hevc`, Required: true},
		}},
		{ID: 2, Name: "LQ Group", Specifications: []Specification{
			{Kind: SpecReleaseTitle, Pattern: `-BADGRP$`, Required: true},
		}},
	}

	got := ScoreRelease("UFC.299.1080p.WEB-DL.x265-GRP", 0, p, formats)
	if got.QualityScore != QualityScore("WEBDL-1080p", p) {
		t.Errorf("quality score = %d, want %d", got.QualityScore, QualityScore("WEBDL-1080p", p))
	}
	if got.CustomFormatScore != 50 {
		t.Errorf("custom format score = %d, want 50", got.CustomFormatScore)
	}
	if got.Total != got.QualityScore+got.CustomFormatScore {
		t.Errorf("total %d is not the sum of %d and %d", got.Total, got.QualityScore, got.CustomFormatScore)
	}

	penalized := ScoreRelease("UFC.299.1080p.WEB-DL.x265-BADGRP", 0, p, formats)
	if penalized.CustomFormatScore != -50 {
		t.Errorf("expected -100 penalty plus +50 bonus, got %d", penalized.CustomFormatScore)
	}
}

func TestParseProfile_LazyJSONDecode(t *testing.T) {
	itemsJSON := `[{"name":"HDTV-1080p","allowed":true},{"name":"WEB 1080p","qualities":["WEBDL-1080p","WEBRip-1080p"],"allowed":true}]`
	formatsJSON := `[{"formatId":7,"score":25,"allowed":true}]`

	p, err := ParseProfile(3, "From JSON", "WEB 1080p", itemsJSON, formatsJSON, 0)
	if err != nil {
		t.Fatalf("ParseProfile: %v", err)
	}
	if len(p.Items) != 2 || len(p.FormatItems) != 1 {
		t.Fatalf("decoded %d items / %d format items", len(p.Items), len(p.FormatItems))
	}
	if !p.IsAllowed("WEBRip-1080p") {
		t.Error("group member WEBRip-1080p should be allowed")
	}
	if p.FormatScoreFor(7) != 25 {
		t.Errorf("FormatScoreFor(7) = %d, want 25", p.FormatScoreFor(7))
	}
}
