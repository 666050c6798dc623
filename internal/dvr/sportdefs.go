package dvr

import (
	_ "embed"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed sports.yaml
var sportsYAML []byte

// sportDefinition describes one sport's league keywords for EPG matching.
type sportDefinition struct {
	Name      string   `yaml:"name"`
	Leagues   []string `yaml:"leagues"`
	Keywords  []string `yaml:"keywords"`
	Conflicts []string `yaml:"conflicts"`
}

type sportsFile struct {
	Sports []sportDefinition `yaml:"sports"`
}

var sportDefs = loadSportDefs()

func loadSportDefs() []sportDefinition {
	var file sportsFile
	if err := yaml.Unmarshal(sportsYAML, &file); err != nil {
		// The definition file is embedded and validated by tests; an
		// undecodable file would be a build defect.
		panic("dvr: invalid embedded sports.yaml: " + err.Error())
	}
	return file.Sports
}

// sportForLeague resolves a league token to its sport definition.
func sportForLeague(league string) *sportDefinition {
	needle := strings.ToLower(strings.TrimSpace(league))
	if needle == "" {
		return nil
	}
	for i := range sportDefs {
		for _, l := range sportDefs[i].Leagues {
			if strings.EqualFold(l, needle) {
				return &sportDefs[i]
			}
		}
	}
	return nil
}

// sportByName resolves a sport definition by its canonical name.
func sportByName(name string) *sportDefinition {
	for i := range sportDefs {
		if strings.EqualFold(sportDefs[i].Name, name) {
			return &sportDefs[i]
		}
	}
	return nil
}

// textMentionsSport reports whether any of the sport's keywords appear in the
// program text.
func textMentionsSport(text string, def *sportDefinition) bool {
	if def == nil {
		return false
	}
	for _, kw := range def.Keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// conflictsWith implements the symmetric cross-sport guard: a program whose
// text mentions a conflicting sport's keywords is discarded for this event
// regardless of other signals.
func conflictsWith(text string, def *sportDefinition) bool {
	if def == nil {
		return false
	}
	for _, conflictName := range def.Conflicts {
		conflict := sportByName(conflictName)
		if conflict == nil {
			continue
		}
		if textMentionsSport(text, conflict) {
			return true
		}
	}
	return false
}
