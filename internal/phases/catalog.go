package phases

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed phases.yaml
var defaultCatalogYAML []byte

// PresetOverride is an explicit min/max pair for one turn preset.
// A missing bound falls back to 0 (min) or DefaultTurnCap (max).
type PresetOverride struct {
	Min *int `yaml:"min"`
	Max *int `yaml:"max"`
}

// Definition describes one phase: what the coach aims for and how long it may take.
type Definition struct {
	Goal        string                    `yaml:"goal"`
	DepthCue    string                    `yaml:"depth_cue"`
	TurnTarget  int                       `yaml:"turn_target"`
	TurnPresets map[string]PresetOverride `yaml:"turn_presets"`
	Body        string                    `yaml:"body"`
}

type catalogFile struct {
	Phases map[string]Definition `yaml:"phases"`
}

// Catalog is the read-only set of phase definitions.
type Catalog struct {
	definitions map[Phase]Definition
}

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
)

// DefaultCatalog returns the catalog compiled into the binary.
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		catalog, err := ParseCatalog(defaultCatalogYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded phase catalog is invalid: %v", err))
		}
		defaultCatalog = catalog
	})
	return defaultCatalog
}

// ParseCatalog decodes a YAML phase catalog. Every entry must name a known phase.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse phase catalog: %w", err)
	}
	if len(file.Phases) == 0 {
		return nil, fmt.Errorf("phase catalog has no phases")
	}

	catalog := &Catalog{definitions: make(map[Phase]Definition, len(file.Phases))}
	for name, def := range file.Phases {
		phase := Phase(name)
		if !Known(phase) || phase.IsTerminal() {
			return nil, fmt.Errorf("phase catalog: unknown phase %q", name)
		}
		if def.TurnTarget <= 0 {
			def.TurnTarget = DefaultTurnCap
		}
		def.Goal = strings.TrimSpace(def.Goal)
		def.DepthCue = strings.TrimSpace(def.DepthCue)
		def.Body = strings.TrimSpace(def.Body)
		catalog.definitions[phase] = def
	}
	return catalog, nil
}

// Has reports whether the catalog carries an explicit definition for p.
func (c *Catalog) Has(p Phase) bool {
	_, ok := c.definitions[p]
	return ok
}

// Definition returns the definition for p. Unknown phases get a generic definition
// with a turn target of DefaultTurnCap.
func (c *Catalog) Definition(p Phase) Definition {
	if p == "" {
		p = First()
	}
	if def, ok := c.definitions[p]; ok {
		return def
	}
	return Definition{
		Goal:       fmt.Sprintf("Guide the student through the %s phase until its learning objectives are clearly met.", p),
		DepthCue:   "Ask a clarifying question when the answer is vague or incomplete before moving on.",
		TurnTarget: DefaultTurnCap,
		Body: fmt.Sprintf("Current focus: %s\n"+
			"- Keep your prompts aligned with this phase of the Gibbs reflection cycle.\n"+
			"- Keep the turn short (2-4 sentences) and move the student forward with one clear question.",
			strings.ToUpper(string(p))),
	}
}
