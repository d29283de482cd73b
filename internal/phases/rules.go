package phases

import "strings"

// TurnPreset selects how long each phase may run.
type TurnPreset string

const (
	PresetShort    TurnPreset = "short"
	PresetStandard TurnPreset = "standard"
	PresetLong     TurnPreset = "long"

	DefaultPreset = PresetStandard
)

// Presets lists every accepted preset.
var Presets = []TurnPreset{PresetShort, PresetStandard, PresetLong}

// DefaultTurnCap is the turn target assumed when a phase does not define one.
const DefaultTurnCap = 4

// NormalizePreset maps any input to a valid preset: trimmed, lower-cased and
// defaulted to standard when empty or unrecognised.
func NormalizePreset(value string) TurnPreset {
	candidate := TurnPreset(strings.ToLower(strings.TrimSpace(value)))
	for _, preset := range Presets {
		if candidate == preset {
			return preset
		}
	}
	return DefaultPreset
}

// Rule bounds the number of turns spent in one phase.
type Rule struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// DefaultRule is returned for any phase or preset the table does not know.
var DefaultRule = Rule{Min: 0, Max: DefaultTurnCap}

func (r Rule) clamp() Rule {
	return Rule{Min: max(0, r.Min), Max: max(1, r.Max)}
}

// RuleTable is the (phase, preset) -> rule mapping. It is immutable after construction.
type RuleTable struct {
	rules map[Phase]map[TurnPreset]Rule
}

// NewRuleTable derives the rules for every catalog phase. Explicit preset overrides
// replace the derived set for that phase.
func NewRuleTable(catalog *Catalog) *RuleTable {
	table := &RuleTable{rules: make(map[Phase]map[TurnPreset]Rule)}
	for _, phase := range Sequence {
		if phase.IsTerminal() || !catalog.Has(phase) {
			continue
		}
		def := catalog.Definition(phase)
		if len(def.TurnPresets) > 0 {
			table.rules[phase] = overrideRules(def.TurnPresets)
			continue
		}
		table.rules[phase] = deriveRules(def.TurnTarget)
	}
	return table
}

// deriveRules computes the three presets from a phase's turn target t:
// short {0, max(1, t-1)}, standard {1 if t >= 3 else 0, t}, long {max(1, t), t+2}.
func deriveRules(target int) map[TurnPreset]Rule {
	standardMin := 0
	if target >= 3 {
		standardMin = 1
	}
	return map[TurnPreset]Rule{
		PresetShort:    Rule{Min: 0, Max: max(1, target-1)}.clamp(),
		PresetStandard: Rule{Min: standardMin, Max: target}.clamp(),
		PresetLong:     Rule{Min: max(1, target), Max: target + 2}.clamp(),
	}
}

func overrideRules(overrides map[string]PresetOverride) map[TurnPreset]Rule {
	rules := make(map[TurnPreset]Rule, len(overrides))
	for name, override := range overrides {
		rule := DefaultRule
		if override.Min != nil {
			rule.Min = *override.Min
		}
		if override.Max != nil {
			rule.Max = *override.Max
		}
		rules[TurnPreset(strings.ToLower(strings.TrimSpace(name)))] = rule.clamp()
	}
	return rules
}

// Lookup returns the rule for (phase, preset). Unknown pairs get DefaultRule.
func (t *RuleTable) Lookup(phase Phase, preset TurnPreset) Rule {
	if phase == "" {
		phase = First()
	}
	byPreset, ok := t.rules[phase]
	if !ok {
		return DefaultRule
	}
	rule, ok := byPreset[preset]
	if !ok {
		return DefaultRule
	}
	return rule
}
