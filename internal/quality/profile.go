package quality

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ProfileItem is one allowed entry in a quality profile: either a single
// quality or a named group collapsing several qualities.
type ProfileItem struct {
	Name      string   `json:"name"`
	Qualities []string `json:"qualities,omitempty"` // group members; empty for a single quality
	Allowed   bool     `json:"allowed"`
}

// FormatItem associates a custom format with its score inside a profile.
type FormatItem struct {
	FormatID int    `json:"formatId"`
	Name     string `json:"name,omitempty"`
	Score    int    `json:"score"`
	Allowed  bool   `json:"allowed"`
}

// Profile is an ordered list of allowed quality items plus custom-format
// scoring. Items are ordered worst to best; Cutoff names the quality above
// which upgrades are no longer sought.
type Profile struct {
	ID             int64        `json:"id"`
	Name           string       `json:"name"`
	Items          []ProfileItem `json:"items"`
	Cutoff         string       `json:"cutoff"`
	FormatItems    []FormatItem `json:"formatItems,omitempty"`
	MinFormatScore int          `json:"minFormatScore"`
}

// ParseProfile decodes the JSON columns of a quality_profiles row. The store
// keeps items and format items as JSON blobs; they are deserialized here,
// lazily, on first use by the scorer.
func ParseProfile(id int64, name, cutoff string, itemsJSON, formatItemsJSON string, minFormatScore int) (*Profile, error) {
	p := &Profile{ID: id, Name: name, Cutoff: cutoff, MinFormatScore: minFormatScore}

	if itemsJSON != "" {
		if err := json.Unmarshal([]byte(itemsJSON), &p.Items); err != nil {
			return nil, fmt.Errorf("failed to decode profile items: %w", err)
		}
	}
	if formatItemsJSON != "" {
		if err := json.Unmarshal([]byte(formatItemsJSON), &p.FormatItems); err != nil {
			return nil, fmt.Errorf("failed to decode profile format items: %w", err)
		}
	}

	return p, nil
}

// itemMatches reports whether a quality label belongs to a profile item.
// Names compare case-insensitively with separators collapsed; a WEB group
// matches both WEB-DL and WEBRip at the same resolution.
func itemMatches(item ProfileItem, label string) bool {
	key := normalizeName(label)
	if normalizeName(item.Name) == key {
		return true
	}
	for _, q := range item.Qualities {
		if normalizeName(q) == key {
			return true
		}
	}
	// WEB group convenience: "WEB 1080p" covers WEBDL-1080p and WEBRip-1080p.
	itemKey := normalizeName(item.Name)
	if strings.HasPrefix(itemKey, "web") && !strings.HasPrefix(itemKey, "webdl") && !strings.HasPrefix(itemKey, "webrip") {
		suffix := strings.TrimPrefix(itemKey, "web")
		if key == "webdl"+suffix || key == "webrip"+suffix {
			return true
		}
	}
	return false
}

// FindItem returns the position of the first allowed item matching the label,
// or -1 when the label is not allowed by the profile.
func (p *Profile) FindItem(label string) int {
	for i, item := range p.Items {
		if !item.Allowed {
			continue
		}
		if itemMatches(item, label) {
			return i
		}
	}
	return -1
}

// IsAllowed reports whether a quality label is acceptable under the profile.
func (p *Profile) IsAllowed(label string) bool {
	return p.FindItem(label) >= 0
}

// MeetsCutoff reports whether a quality label is at or above the profile
// cutoff, meaning no further upgrades are sought.
func (p *Profile) MeetsCutoff(label string) bool {
	pos := p.FindItem(label)
	if pos < 0 {
		return false
	}
	cutoffPos := p.FindItem(p.Cutoff)
	if cutoffPos < 0 {
		// Misconfigured cutoff: treat every allowed quality as final rather
		// than searching forever.
		return true
	}
	return pos >= cutoffPos
}

// IsUpgrade reports whether candidate improves on current under the profile
// ordering. An unknown current quality is always upgradable; an unknown
// candidate never is.
func (p *Profile) IsUpgrade(current, candidate string) bool {
	candidatePos := p.FindItem(candidate)
	if candidatePos < 0 {
		return false
	}
	currentPos := p.FindItem(current)
	if currentPos < 0 {
		return true
	}
	return candidatePos > currentPos
}

// FormatScoreFor returns the profile score assigned to a custom format id.
// Formats absent from the profile score zero.
func (p *Profile) FormatScoreFor(formatID int) int {
	for _, fi := range p.FormatItems {
		if fi.FormatID == formatID && fi.Allowed {
			return fi.Score
		}
	}
	return 0
}
