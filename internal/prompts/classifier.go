package prompts

import (
	"fmt"
	"strings"

	"voxareflect/internal/models"
	"voxareflect/internal/phases"
)

// ClassifierContext is the input of the advance/stay classification.
type ClassifierContext struct {
	Phase        phases.Phase
	Definition   phases.Definition
	Rule         phases.Rule
	TurnsElapsed int
	Message      string
	History      []models.Message
}

// ClassifierHistory returns the messages exchanged in the current phase: the last
// 2*turnsElapsed messages, bounded by the history length.
func ClassifierHistory(history []models.Message, turnsElapsed int) []models.Message {
	if turnsElapsed <= 0 {
		return nil
	}
	count := min(len(history), turnsElapsed*2)
	return history[len(history)-count:]
}

// ClassifierInstructions asks the classifier for {"suggestion": "advance"|"stay"}.
func ClassifierInstructions(c ClassifierContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are judging whether a student can move on from the '%s' phase of a Gibbs reflection.\n\n", c.Phase)
	fmt.Fprintf(&b, "**Phase goal:** %s\n", c.Definition.Goal)
	fmt.Fprintf(&b, "**Depth cue:** %s\n", c.Definition.DepthCue)
	fmt.Fprintf(&b, "**Suggested maximum turns for this phase:** %d\n", c.Rule.Max)
	if c.Rule.Min > 0 {
		fmt.Fprintf(&b, "**Minimum turns before an advance is considered:** %d\n", c.Rule.Min)
	}
	fmt.Fprintf(&b, "**Turns used so far:** %d\n\n", c.TurnsElapsed)
	fmt.Fprintf(&b, "**Student's response:** %s\n", c.Message)

	if transcript := Transcript(ClassifierHistory(c.History, c.TurnsElapsed)); transcript != "" {
		span := "last turn in current phase"
		if c.TurnsElapsed != 1 {
			span = fmt.Sprintf("last %d turns in current phase", c.TurnsElapsed)
		}
		fmt.Fprintf(&b, "\nRecent conversation history (%s):\n%s\n", span, transcript)
	}

	b.WriteString("\nJudge how deep and complete the student's response is.\n" +
		"Use the turn guidance to keep the reflection moving: if the essentials are covered and the suggested maximum is reached, lean towards \"advance\". " +
		"Choose \"stay\" only when key elements are still missing, even if that exceeds the target.\n" +
		"Output ONLY a JSON object:\n" +
		`{"suggestion": "advance"} if the criteria are clearly met` + "\n" +
		`{"suggestion": "stay"} if the response does not meet the criteria` + "\n")
	return b.String()
}
