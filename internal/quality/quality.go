// Package quality implements quality profiles, custom formats and the
// release scoring used to rank candidate releases and DVR captures.
package quality

import (
	"strings"
)

// Definition is one canonical quality known to the system.
type Definition struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Source     string `json:"source"`
	Resolution int    `json:"resolution"`
}

// Definitions lists every canonical quality, ordered worst to best. Sports
// acquisition is broadcast-centric, so the HDTV ladder sits alongside the
// web and disc ladders at each resolution.
var Definitions = []Definition{
	{ID: 1, Name: "SDTV", Source: "SDTV", Resolution: 480},
	{ID: 2, Name: "DVD", Source: "DVD", Resolution: 480},
	{ID: 3, Name: "WEBDL-480p", Source: "WEB-DL", Resolution: 480},
	{ID: 4, Name: "HDTV-720p", Source: "HDTV", Resolution: 720},
	{ID: 5, Name: "WEBDL-720p", Source: "WEB-DL", Resolution: 720},
	{ID: 6, Name: "WEBRip-720p", Source: "WEBRip", Resolution: 720},
	{ID: 7, Name: "Bluray-720p", Source: "Bluray", Resolution: 720},
	{ID: 8, Name: "HDTV-1080p", Source: "HDTV", Resolution: 1080},
	{ID: 9, Name: "WEBDL-1080p", Source: "WEB-DL", Resolution: 1080},
	{ID: 10, Name: "WEBRip-1080p", Source: "WEBRip", Resolution: 1080},
	{ID: 11, Name: "Bluray-1080p", Source: "Bluray", Resolution: 1080},
	{ID: 12, Name: "RawHD", Source: "RawHD", Resolution: 1080},
	{ID: 13, Name: "HDTV-2160p", Source: "HDTV", Resolution: 2160},
	{ID: 14, Name: "WEBDL-2160p", Source: "WEB-DL", Resolution: 2160},
	{ID: 15, Name: "WEBRip-2160p", Source: "WEBRip", Resolution: 2160},
	{ID: 16, Name: "Bluray-2160p", Source: "Bluray", Resolution: 2160},
	{ID: 17, Name: "Bluray-1080p Remux", Source: "BlurayRaw", Resolution: 1080},
	{ID: 18, Name: "Bluray-2160p Remux", Source: "BlurayRaw", Resolution: 2160},
}

// DefinitionByName resolves a quality label, case-insensitively and ignoring
// dash/space differences.
func DefinitionByName(name string) (Definition, bool) {
	key := normalizeName(name)
	for _, d := range Definitions {
		if normalizeName(d.Name) == key {
			return d, true
		}
	}
	return Definition{}, false
}

// normalizeName collapses separators so "WEB-DL 1080p", "WEBDL-1080p" and
// "webdl1080p" compare equal.
func normalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", "")
	name = strings.ReplaceAll(name, " ", "")
	return name
}

// FallbackScore is the profile-less score used when an event has no quality
// profile assigned: resolution is the only signal.
func FallbackScore(resolution int) int {
	switch {
	case resolution >= 2160:
		return 400
	case resolution >= 1080:
		return 300
	case resolution >= 720:
		return 200
	case resolution > 0:
		return 100
	default:
		return 50
	}
}

// resolutionBonus differentiates qualities inside one profile position.
func resolutionBonus(resolution int) int {
	switch {
	case resolution >= 2160:
		return 40
	case resolution >= 1080:
		return 30
	case resolution >= 720:
		return 20
	case resolution > 0:
		return 10
	default:
		return 0
	}
}
