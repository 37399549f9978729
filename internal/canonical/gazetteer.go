package canonical

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed communes.yaml
var defaultCommunesYAML []byte

// Gazetteer maps street-name keywords to their commune. Lookups are
// case-insensitive substring matches on word boundaries, in table order.
type Gazetteer struct {
	hints []hint
}

type hint struct {
	pattern *regexp.Regexp
	commune string
}

type gazetteerFile struct {
	Hints []struct {
		Street  string `yaml:"street"`
		Commune string `yaml:"commune"`
	} `yaml:"hints"`
}

var (
	defaultGazetteer *Gazetteer
	defaultGazOnce   sync.Once
)

// DefaultGazetteer returns the built-in Santiago street table.
func DefaultGazetteer() *Gazetteer {
	defaultGazOnce.Do(func() {
		g, err := parseGazetteer(defaultCommunesYAML)
		if err != nil {
			// The embedded table is validated by tests; a parse failure
			// here is a build defect.
			panic(fmt.Sprintf("embedded commune table invalid: %v", err))
		}
		defaultGazetteer = g
	})
	return defaultGazetteer
}

// LoadGazetteer reads a commune hint table from a YAML file. An empty path
// falls back to the embedded default.
func LoadGazetteer(path string) (*Gazetteer, error) {
	if path == "" {
		return DefaultGazetteer(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read commune table %s: %w", path, err)
	}
	g, err := parseGazetteer(data)
	if err != nil {
		return nil, fmt.Errorf("parse commune table %s: %w", path, err)
	}
	return g, nil
}

func parseGazetteer(data []byte) (*Gazetteer, error) {
	var f gazetteerFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if len(f.Hints) == 0 {
		return nil, fmt.Errorf("no hints defined")
	}
	g := &Gazetteer{hints: make([]hint, 0, len(f.Hints))}
	for _, h := range f.Hints {
		street := strings.TrimSpace(h.Street)
		if street == "" || h.Commune == "" {
			return nil, fmt.Errorf("hint with empty street or commune")
		}
		// Collapse spaces in multi-word street names into \s+ so
		// "gran  avenida" in a transcript still matches. Word boundaries
		// are spelled out with letter classes because \b is ASCII-only
		// and would miss names like "ñuble".
		quoted := regexp.QuoteMeta(street)
		quoted = strings.ReplaceAll(quoted, " ", `\s+`)
		re, err := regexp.Compile(`(?i)(?:^|[^\pL\pN])` + quoted + `(?:[^\pL\pN]|$)`)
		if err != nil {
			return nil, fmt.Errorf("hint %q: %w", street, err)
		}
		g.hints = append(g.hints, hint{pattern: re, commune: h.Commune})
	}
	return g, nil
}

// Lookup returns the commune for the first hint matching the street text.
func (g *Gazetteer) Lookup(street string) (string, bool) {
	for _, h := range g.hints {
		if h.pattern.MatchString(street) {
			return h.commune, true
		}
	}
	return "", false
}
