package phases

import "strings"

// Suggestion is the classifier's verdict on the student's latest answer.
type Suggestion string

const (
	SuggestAdvance Suggestion = "advance"
	SuggestStay    Suggestion = "stay"
	SuggestNone    Suggestion = "none"
)

// ParseSuggestion accepts advance/stay/none in any case. Anything else is none.
func ParseSuggestion(value string) Suggestion {
	switch s := Suggestion(strings.ToLower(strings.TrimSpace(value))); s {
	case SuggestAdvance, SuggestStay, SuggestNone:
		return s
	}
	return SuggestNone
}

// Reason names the rule that produced a Decision.
type Reason string

const (
	ReasonFloor      Reason = "floor"
	ReasonCeiling    Reason = "ceiling"
	ReasonClassifier Reason = "classifier"
	ReasonStay       Reason = "stay"
	ReasonTerminal   Reason = "terminal"
)

// Decision is the outcome of one turn for the phase machine.
type Decision struct {
	From   Phase
	To     Phase
	Reason Reason
}

// Advanced reports whether the conversation moved to another phase.
func (d Decision) Advanced() bool {
	return d.From != d.To
}

// Decide applies the turn rule to one turn. turns is the number of turns spent in
// current including this one. The checks run in order:
//
//  1. below rule.Min: stay, whatever the classifier said
//  2. at or above rule.Max: forced move to the successor
//  3. classifier said advance: move to suggestedNext when set, else the successor
//  4. otherwise stay
//
// Done never moves.
func Decide(current Phase, suggestion Suggestion, suggestedNext Phase, turns int, rule Rule) Decision {
	if current == "" {
		current = First()
	}
	decision := Decision{From: current, To: current}
	if current.IsTerminal() {
		decision.Reason = ReasonTerminal
		return decision
	}

	rule = rule.clamp()
	switch {
	case turns < rule.Min:
		decision.Reason = ReasonFloor
	case turns >= rule.Max:
		decision.To = Successor(current)
		decision.Reason = ReasonCeiling
	case suggestion == SuggestAdvance:
		decision.To = suggestedNext
		if decision.To == "" {
			decision.To = Successor(current)
		}
		decision.Reason = ReasonClassifier
	default:
		decision.Reason = ReasonStay
	}
	return decision
}

// Counters tracks turns spent in each phase plus the counter for the active phase.
type Counters struct {
	PerPhase map[Phase]int
	Current  int
}

// NextTurn returns the turn number this turn will have in phase p, without
// recording it.
func (c *Counters) NextTurn(p Phase) int {
	return c.PerPhase[p] + 1
}

// Record books one turn in decision.From and settles Current: zero when the phase
// changed, the new per-phase total otherwise. It returns the new per-phase total.
func (c *Counters) Record(decision Decision) int {
	if c.PerPhase == nil {
		c.PerPhase = make(map[Phase]int)
	}
	total := c.PerPhase[decision.From] + 1
	c.PerPhase[decision.From] = total
	if decision.Advanced() {
		c.Current = 0
	} else {
		c.Current = total
	}
	return total
}
