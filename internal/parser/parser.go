// Package parser extracts structured metadata from scene-style release titles.
package parser

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Source identifies where a release was captured from.
const (
	SourceSDTV      = "SDTV"
	SourceDVD       = "DVD"
	SourceHDTV      = "HDTV"
	SourceRawHD     = "RawHD"
	SourceWEBDL     = "WEB-DL"
	SourceWEBRip    = "WEBRip"
	SourceBluray    = "Bluray"
	SourceBlurayRaw = "BlurayRaw"
)

// Quality is the video quality portion of a parsed title.
type Quality struct {
	Resolution int    `json:"resolution"` // 0 when unknown
	Source     string `json:"source"`
	Codec      string `json:"codec,omitempty"`
	IsRemux    bool   `json:"isRemux"`
}

// Revision tracks PROPER/REPACK/REAL versioning of a release.
type Revision struct {
	Version  int  `json:"version"`
	IsRepack bool `json:"isRepack"`
	IsReal   bool `json:"isReal"`
}

// ParsedTitle is the structured form of a release title.
// Unparseable fields are left at their zero value; parsing never fails.
type ParsedTitle struct {
	Title        string   `json:"title"`
	Quality      Quality  `json:"quality"`
	Revision     Revision `json:"revision"`
	ReleaseGroup string   `json:"releaseGroup,omitempty"`
	Language     string   `json:"language,omitempty"`
	Edition      string   `json:"edition,omitempty"`
	Year         int      `json:"year,omitempty"`
	Month        int      `json:"month,omitempty"`
	Day          int      `json:"day,omitempty"`
	Round        int      `json:"round,omitempty"`
	SportPrefix  string   `json:"sportPrefix,omitempty"`
	IsPack       bool     `json:"isPack"`
}

var (
	resolutionPattern = regexp.MustCompile(`(?i)\b(360|480|540|576|720|1080|2160)[pi]\b`)
	dimensionPattern  = regexp.MustCompile(`(?i)\b(\d{3,4})x(\d{3,4})\b`)

	resolutionAliases = map[string]int{
		"4k":     2160,
		"uhd":    2160,
		"fullhd": 1080,
	}
	aliasPattern = regexp.MustCompile(`(?i)\b(4k|uhd|fullhd)\b`)

	// Single union so the last source token in the title wins. Scene sports
	// titles often lead with the originating platform and end with the format.
	sourcePattern = regexp.MustCompile(`(?i)\b(blu-?ray|bdrip|brrip|web-?dl|webdl|webrip|web|hdtv|pdtv|sdtv|dsr|dvdrip|dvd)\b`)
	remuxPattern  = regexp.MustCompile(`(?i)\bremux\b`)

	codecPatterns = []struct {
		name    string
		pattern *regexp.Regexp
	}{
		{"x265", regexp.MustCompile(`(?i)\b(x265|h\.?265|hevc)\b`)},
		{"x264", regexp.MustCompile(`(?i)\b(x264|h\.?264|avc)\b`)},
		{"AV1", regexp.MustCompile(`(?i)\bav1\b`)},
		{"VP9", regexp.MustCompile(`(?i)\bvp9\b`)},
		{"XviD", regexp.MustCompile(`(?i)\bxvid\b`)},
		{"MPEG2", regexp.MustCompile(`(?i)\bmpeg-?2\b`)},
	}

	properPattern  = regexp.MustCompile(`(?i)(^|[.\s_-])proper([.\s_-]|$)`)
	repackPattern  = regexp.MustCompile(`(?i)(^|[.\s_-])repack([.\s_-]|$)`)
	realPattern    = regexp.MustCompile(`(^|[.\s_-])REAL([.\s_-]|$)`) // case-sensitive by scene convention
	versionPattern = regexp.MustCompile(`(?i)(^|[.\s_-])v(\d)([.\s_-]|$)`)

	releaseGroupPattern = regexp.MustCompile(`-([A-Za-z0-9]+)(?:\.[a-z0-9]{2,4})?$`)

	datePattern = regexp.MustCompile(`\b(19\d{2}|20\d{2})[.\s_-](\d{1,2})[.\s_-](\d{1,2})\b`)
	yearPattern = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)

	roundPattern  = regexp.MustCompile(`(?i)\b(?:round|week)[.\s_-]?(\d{1,2})\b`)
	versusPattern = regexp.MustCompile(`(?i)(\bvs\.?\b|@|[.\s_-]v[.\s_-])`)

	languagePatterns = []struct {
		name    string
		pattern *regexp.Regexp
	}{
		{"German", regexp.MustCompile(`(?i)(^|[.\s_-])(german|deutsch)([.\s_-]|$)`)},
		{"French", regexp.MustCompile(`(?i)(^|[.\s_-])(french|vostfr)([.\s_-]|$)`)},
		{"Spanish", regexp.MustCompile(`(?i)(^|[.\s_-])(spanish|castellano)([.\s_-]|$)`)},
		{"Italian", regexp.MustCompile(`(?i)(^|[.\s_-])(italian|ita)([.\s_-]|$)`)},
		{"Portuguese", regexp.MustCompile(`(?i)(^|[.\s_-])(portuguese|pt-br)([.\s_-]|$)`)},
		{"Russian", regexp.MustCompile(`(?i)(^|[.\s_-])(russian|rus)([.\s_-]|$)`)},
		{"Japanese", regexp.MustCompile(`(?i)(^|[.\s_-])(japanese|jpn)([.\s_-]|$)`)},
	}

	editionPatterns = []struct {
		name    string
		pattern *regexp.Regexp
	}{
		{"Extended", regexp.MustCompile(`(?i)(^|[.\s_-])extended([.\s_-]|$)`)},
		{"Uncut", regexp.MustCompile(`(?i)(^|[.\s_-])uncut([.\s_-]|$)`)},
		{"International", regexp.MustCompile(`(?i)(^|[.\s_-])international([.\s_-]|$)`)},
	}

	cleanupPattern = regexp.MustCompile(`[.\s_-]+`)

	releaseGroupFalsePositives = map[string]bool{
		"x264": true, "x265": true, "hevc": true, "avc": true,
		"h264": true, "h265": true, "xvid": true, "av1": true,
		"mkv": true, "mp4": true, "avi": true, "ts": true,
	}
)

// sportPrefixes maps title tokens to canonical sport prefixes. Tokens are
// matched case-insensitively on word boundaries; longer tokens first so
// FORMULA1 wins over F1 inside the same title.
var sportPrefixes = []struct {
	token  string
	prefix string
}{
	{"FORMULA1", "FORMULA1"},
	{"FORMULA 1", "FORMULA1"},
	{"F1", "FORMULA1"},
	{"MOTOGP", "MOTOGP"},
	{"NASCAR", "NASCAR"},
	{"INDYCAR", "INDYCAR"},
	{"UFC", "UFC"},
	{"BELLATOR", "BELLATOR"},
	{"PFL", "PFL"},
	{"BOXING", "BOXING"},
	{"WWE", "WWE"},
	{"AEW", "AEW"},
	{"NFL", "NFL"},
	{"NBA", "NBA"},
	{"NHL", "NHL"},
	{"MLB", "MLB"},
	{"MLS", "MLS"},
	{"EPL", "EPL"},
	{"NCAA", "NCAA"},
}

var sportPrefixPatterns = buildSportPrefixPatterns()

func buildSportPrefixPatterns() []struct {
	pattern *regexp.Regexp
	prefix  string
} {
	out := make([]struct {
		pattern *regexp.Regexp
		prefix  string
	}, 0, len(sportPrefixes))
	for _, sp := range sportPrefixes {
		token := strings.ReplaceAll(regexp.QuoteMeta(sp.token), ` `, `[.\s_-]`)
		out = append(out, struct {
			pattern *regexp.Regexp
			prefix  string
		}{regexp.MustCompile(`(?i)(^|[.\s_-])` + token + `([.\s_-]|$)`), sp.prefix})
	}
	return out
}

// ParseTitle parses a release title into its structured form. It is a pure
// function and never fails; fields it cannot determine stay unset.
func ParseTitle(title string) *ParsedTitle {
	parsed := &ParsedTitle{}
	if strings.TrimSpace(title) == "" {
		return parsed
	}

	parsed.Title = cleanTitle(titleBeforeMetadata(title))
	parsed.Quality = parseQuality(title)
	parsed.Revision = parseRevision(title)
	parsed.ReleaseGroup = parseReleaseGroup(title)
	parsed.Language = parseLanguage(title)
	parsed.Edition = parseEdition(title)
	parseDate(title, parsed)
	parseRound(title, parsed)
	parseSportPrefix(title, parsed)
	parsed.IsPack = parsed.Round > 0 && !versusPattern.MatchString(title)

	return parsed
}

// parseQuality resolves resolution, source, codec and remux status.
func parseQuality(title string) Quality {
	q := Quality{}

	if m := resolutionPattern.FindStringSubmatch(title); m != nil {
		q.Resolution, _ = strconv.Atoi(m[1])
	} else if m := aliasPattern.FindStringSubmatch(title); m != nil {
		q.Resolution = resolutionAliases[strings.ToLower(m[1])]
	} else if m := dimensionPattern.FindStringSubmatch(title); m != nil {
		q.Resolution = resolutionFromDimensions(m[1], m[2])
	}

	// Last source token wins.
	if matches := sourcePattern.FindAllStringSubmatch(title, -1); len(matches) > 0 {
		q.Source = canonicalSource(matches[len(matches)-1][1])
	}

	if remuxPattern.MatchString(title) {
		q.IsRemux = true
		if q.Source == SourceBluray || q.Source == "" {
			q.Source = SourceBlurayRaw
		}
	}

	// Sports default: a bare resolution means an HDTV capture.
	if q.Source == "" && q.Resolution > 0 {
		q.Source = SourceHDTV
	}
	if q.Source == "" {
		switch strings.ToLower(filepath.Ext(title)) {
		case ".ts":
			q.Source = SourceRawHD
		case ".avi", ".wmv":
			q.Source = SourceSDTV
		}
	}

	for _, c := range codecPatterns {
		if c.pattern.MatchString(title) {
			q.Codec = c.name
			break
		}
	}

	return q
}

func canonicalSource(token string) string {
	switch strings.ToLower(strings.ReplaceAll(token, "-", "")) {
	case "bluray", "bdrip", "brrip":
		return SourceBluray
	case "webdl", "web":
		return SourceWEBDL
	case "webrip":
		return SourceWEBRip
	case "hdtv":
		return SourceHDTV
	case "pdtv", "sdtv", "dsr":
		return SourceSDTV
	case "dvdrip", "dvd":
		return SourceDVD
	default:
		return ""
	}
}

func resolutionFromDimensions(w, h string) int {
	height, _ := strconv.Atoi(h)
	switch {
	case height >= 2000:
		return 2160
	case height >= 1000:
		return 1080
	case height >= 700:
		return 720
	case height >= 570:
		return 576
	case height >= 530:
		return 540
	case height >= 470:
		return 480
	case height >= 350:
		return 360
	default:
		width, _ := strconv.Atoi(w)
		if width >= 1900 {
			return 1080
		}
		return 0
	}
}

func parseRevision(title string) Revision {
	rev := Revision{Version: 1}

	if m := versionPattern.FindStringSubmatch(title); m != nil {
		if v, err := strconv.Atoi(m[2]); err == nil && v > 1 {
			rev.Version = v
		}
	}
	if properPattern.MatchString(title) && rev.Version < 2 {
		rev.Version = 2
	}
	if repackPattern.MatchString(title) {
		rev.IsRepack = true
		if rev.Version < 2 {
			rev.Version = 2
		}
	}
	if realPattern.MatchString(title) {
		rev.IsReal = true
	}

	return rev
}

func parseReleaseGroup(title string) string {
	m := releaseGroupPattern.FindStringSubmatch(title)
	if m == nil {
		return ""
	}
	if releaseGroupFalsePositives[strings.ToLower(m[1])] {
		return ""
	}
	return m[1]
}

func parseLanguage(title string) string {
	for _, l := range languagePatterns {
		if l.pattern.MatchString(title) {
			return l.name
		}
	}
	return ""
}

func parseEdition(title string) string {
	for _, e := range editionPatterns {
		if e.pattern.MatchString(title) {
			return e.name
		}
	}
	return ""
}

func parseDate(title string, parsed *ParsedTitle) {
	if m := datePattern.FindStringSubmatch(title); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if month >= 1 && month <= 12 && day >= 1 && day <= 31 {
			parsed.Year = year
			parsed.Month = month
			parsed.Day = day
			return
		}
	}
	if m := yearPattern.FindStringSubmatch(title); m != nil {
		parsed.Year, _ = strconv.Atoi(m[1])
	}
}

func parseRound(title string, parsed *ParsedTitle) {
	if m := roundPattern.FindStringSubmatch(title); m != nil {
		parsed.Round, _ = strconv.Atoi(m[1])
	}
}

func parseSportPrefix(title string, parsed *ParsedTitle) {
	for _, sp := range sportPrefixPatterns {
		if sp.pattern.MatchString(title) {
			parsed.SportPrefix = sp.prefix
			return
		}
	}
}

// titleBeforeMetadata trims the title at the first metadata token so the
// cleaned event portion survives on its own.
var metadataBoundary = regexp.MustCompile(`(?i)[.\s_-](360p|480p|540p|576p|720p|1080p|2160p|4k|uhd|fullhd|blu-?ray|web-?dl|webrip|\bweb\b|hdtv|sdtv|pdtv|dvdrip|remux|x26[45]|h\.?26[45]|hevc|proper|repack)`)

func titleBeforeMetadata(title string) string {
	loc := metadataBoundary.FindStringIndex(title)
	if loc == nil {
		return strings.TrimSuffix(title, filepath.Ext(title))
	}
	return title[:loc[0]]
}

func cleanTitle(title string) string {
	return strings.TrimSpace(cleanupPattern.ReplaceAllString(title, " "))
}

// QualityLabel renders a parsed quality as its canonical profile label,
// e.g. "HDTV-1080p", "WEBDL-720p" or "Bluray-1080p Remux".
func QualityLabel(q Quality) string {
	source := q.Source
	if source == "" {
		source = "Unknown"
	}
	label := source
	switch source {
	case SourceWEBDL:
		label = "WEBDL"
	case SourceBlurayRaw:
		label = SourceBluray
	}
	if q.Resolution > 0 {
		label += "-" + strconv.Itoa(q.Resolution) + "p"
	}
	if q.IsRemux || q.Source == SourceBlurayRaw {
		label += " Remux"
	}
	return label
}
