package quality

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ohathar/sportarr/internal/parser"
)

// SpecKind is the closed set of custom-format specification implementations.
type SpecKind string

const (
	SpecReleaseTitle SpecKind = "releaseTitle"
	SpecSize         SpecKind = "size"
	SpecResolution   SpecKind = "resolution"
	SpecSource       SpecKind = "source"
	SpecLanguage     SpecKind = "language"
)

// Specification is one condition inside a custom format. Pattern carries the
// regex for releaseTitle specs and the expected value for the axis kinds;
// MinSizeGB/MaxSizeGB apply to size specs only.
type Specification struct {
	Kind      SpecKind `json:"kind"`
	Name      string   `json:"name,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	Negate    bool     `json:"negate"`
	Required  bool     `json:"required"`
	MinSizeGB float64  `json:"minSizeGB,omitempty"`
	MaxSizeGB float64  `json:"maxSizeGB,omitempty"`
}

// CustomFormat is a named bundle of specifications.
type CustomFormat struct {
	ID             int             `json:"id"`
	Name           string          `json:"name"`
	Specifications []Specification `json:"specifications"`
}

// ParseCustomFormat decodes the specifications JSON column of a
// custom_formats row.
func ParseCustomFormat(id int64, name, specsJSON string) (*CustomFormat, error) {
	cf := &CustomFormat{ID: int(id), Name: name}
	if specsJSON != "" {
		if err := json.Unmarshal([]byte(specsJSON), &cf.Specifications); err != nil {
			return nil, fmt.Errorf("failed to decode custom format %q: %w", name, err)
		}
	}
	return cf, nil
}

// FormatInput carries everything a specification can be evaluated against.
type FormatInput struct {
	Title     string
	Parsed    *parser.ParsedTitle
	SizeBytes int64
}

// Matches reports whether the format matches the input: every required
// specification must match (negation honored), and at least one non-required
// specification must also match unless none exist.
func (cf *CustomFormat) Matches(in FormatInput) bool {
	if len(cf.Specifications) == 0 {
		return false
	}

	optionalCount := 0
	optionalMatched := false

	for _, spec := range cf.Specifications {
		matched := spec.matches(in)
		if spec.Required {
			if !matched {
				return false
			}
			continue
		}
		optionalCount++
		if matched {
			optionalMatched = true
		}
	}

	if optionalCount == 0 {
		return true
	}
	return optionalMatched
}

func (s *Specification) matches(in FormatInput) bool {
	return s.primitiveMatch(in) != s.Negate
}

func (s *Specification) primitiveMatch(in FormatInput) bool {
	switch s.Kind {
	case SpecReleaseTitle:
		re, err := regexp.Compile("(?i)" + s.Pattern)
		if err != nil {
			return false
		}
		return re.MatchString(in.Title)
	case SpecSize:
		const gb = 1024 * 1024 * 1024
		size := float64(in.SizeBytes) / gb
		if in.SizeBytes <= 0 {
			return false
		}
		if s.MinSizeGB > 0 && size < s.MinSizeGB {
			return false
		}
		if s.MaxSizeGB > 0 && size > s.MaxSizeGB {
			return false
		}
		return true
	case SpecResolution:
		if in.Parsed == nil {
			return false
		}
		return s.Pattern == fmt.Sprintf("%dp", in.Parsed.Quality.Resolution)
	case SpecSource:
		if in.Parsed == nil {
			return false
		}
		return strings.EqualFold(s.Pattern, in.Parsed.Quality.Source)
	case SpecLanguage:
		if in.Parsed == nil {
			return false
		}
		return strings.EqualFold(s.Pattern, in.Parsed.Language)
	default:
		return false
	}
}
