package quality

import (
	"github.com/ohathar/sportarr/internal/parser"
)

// positionWeight spaces profile positions far enough apart that resolution
// bonuses never reorder adjacent items.
const positionWeight = 100

// ScoreBreakdown explains how a release total was computed.
type ScoreBreakdown struct {
	QualityLabel      string `json:"qualityLabel"`
	QualityScore      int    `json:"qualityScore"`
	CustomFormatScore int    `json:"customFormatScore"`
	Total             int    `json:"total"`
}

// QualityScore scores a quality label against a profile. Position in the
// profile dominates; a resolution bonus separates qualities sharing a
// position. Labels the profile does not allow score zero; a nil profile
// falls back to resolution-only scoring.
func QualityScore(label string, profile *Profile) int {
	def, known := DefinitionByName(label)

	if profile == nil {
		if known {
			return FallbackScore(def.Resolution)
		}
		return FallbackScore(0)
	}

	pos := profile.FindItem(label)
	if pos < 0 {
		return 0
	}

	resolution := 0
	if known {
		resolution = def.Resolution
	}
	return (pos+1)*positionWeight + resolutionBonus(resolution)
}

// FormatScore evaluates every custom format against the release and sums the
// profile scores of the matching ones. Formats absent from the profile
// contribute nothing.
func FormatScore(in FormatInput, formats []*CustomFormat, profile *Profile) int {
	if profile == nil || len(formats) == 0 {
		return 0
	}

	total := 0
	for _, cf := range formats {
		if cf.Matches(in) {
			total += profile.FormatScoreFor(cf.ID)
		}
	}
	return total
}

// ScoreRelease computes the composite quality + custom-format score for a
// release title. DVR captures are scored through this same path using their
// synthetic titles, which keeps both acquisition sources comparable.
func ScoreRelease(title string, sizeBytes int64, profile *Profile, formats []*CustomFormat) ScoreBreakdown {
	parsed := parser.ParseTitle(title)
	label := parser.QualityLabel(parsed.Quality)

	qs := QualityScore(label, profile)
	cfs := FormatScore(FormatInput{Title: title, Parsed: parsed, SizeBytes: sizeBytes}, formats, profile)

	return ScoreBreakdown{
		QualityLabel:      label,
		QualityScore:      qs,
		CustomFormatScore: cfs,
		Total:             qs + cfs,
	}
}
