// Package phases holds the Gibbs reflection cycle: the phase catalog, the per-preset
// turn rules derived from it and the state machine that decides when a conversation
// moves from one phase to the next.
package phases

import "strings"

// Phase is one stage of the Gibbs reflection cycle, or the terminal Done sentinel.
type Phase string

const (
	Description Phase = "Description"
	Feelings    Phase = "Feelings"
	Evaluation  Phase = "Evaluation"
	Analysis    Phase = "Analysis"
	Conclusion  Phase = "Conclusion"
	ActionPlan  Phase = "Action Plan"
	Done        Phase = "done"
)

// Sequence is the fixed stage order. Done is always last.
var Sequence = []Phase{Description, Feelings, Evaluation, Analysis, Conclusion, ActionPlan, Done}

// TotalStages is the number of real phases, excluding Done.
const TotalStages = 6

// First returns the phase every new conversation starts in.
func First() Phase {
	return Sequence[0]
}

// Index returns the zero-based position of p in Sequence, or -1 if p is unknown.
func Index(p Phase) int {
	for i, candidate := range Sequence {
		if candidate == p {
			return i
		}
	}
	return -1
}

// Known reports whether p is one of the Sequence entries.
func Known(p Phase) bool {
	return Index(p) >= 0
}

// IsTerminal reports whether p is the Done sentinel.
func (p Phase) IsTerminal() bool {
	return p == Done
}

func (p Phase) String() string {
	return string(p)
}

// Successor returns the structural next phase. The empty stage resolves to the first
// phase, Done has no successor and unknown labels are returned unchanged.
func Successor(p Phase) Phase {
	if p == "" {
		return First()
	}
	idx := Index(p)
	if idx < 0 {
		return p
	}
	if idx >= len(Sequence)-1 {
		return Done
	}
	return Sequence[idx+1]
}

// Resolve maps a stored stage label to the phase the conversation is in.
// An empty label means the conversation has not started yet.
func Resolve(stage string) Phase {
	stage = strings.TrimSpace(stage)
	if stage == "" {
		return First()
	}
	return Phase(stage)
}

// Snapshot is the position of a conversation in the cycle as reported to clients.
type Snapshot struct {
	CurrentStage string `json:"currentStage"`
	CurrentIndex int    `json:"currentIndex"`
	TotalStages  int    `json:"totalStages"`
	IsFinished   bool   `json:"isFinished"`
}

// SnapshotOf builds the client-facing snapshot for a stored stage label.
func SnapshotOf(stage string) Snapshot {
	phase := Resolve(stage)
	snap := Snapshot{
		CurrentStage: string(phase),
		CurrentIndex: 1,
		TotalStages:  TotalStages,
	}
	if phase.IsTerminal() {
		snap.CurrentIndex = TotalStages
		snap.IsFinished = true
		return snap
	}
	if idx := Index(phase); idx >= 0 {
		snap.CurrentIndex = min(idx+1, TotalStages)
	}
	return snap
}
