// Package prompts builds every instruction text sent to the language model.
package prompts

import (
	"fmt"
	"strings"

	"voxareflect/internal/models"
	"voxareflect/internal/phases"
)

// Style presets.
const (
	StyleWarm         = "warm"
	StyleProfessional = "professional"
)

// NormalizeStyle maps unknown or empty presets to professional.
func NormalizeStyle(preset string) string {
	switch p := strings.ToLower(strings.TrimSpace(preset)); p {
	case StyleWarm, StyleProfessional:
		return p
	}
	return StyleProfessional
}

// History windows.
const (
	ReplyHistoryMessages = 12
	minReflectionText    = 5
)

// CoachContext is what the coach prompt needs to know about the turn.
type CoachContext struct {
	Phase        phases.Phase
	Definition   phases.Definition
	StylePreset  string
	Language     string
	TurnsElapsed int
}

// CoachInstructions builds the coach system prompt: role, reasoning rules, the
// current phase and behaviour guidelines.
func CoachInstructions(c CoachContext) string {
	phase := c.Phase
	if phase == "" {
		phase = phases.First()
	}
	style := NormalizeStyle(c.StylePreset)

	sections := []string{
		roleSection(phase),
		reasoningSection(style),
		phaseSection(c.Definition, c.TurnsElapsed),
		guidelinesSection(style, c.Language),
	}
	return strings.Join(sections, "\n\n")
}

func roleSection(phase phases.Phase) string {
	return fmt.Sprintf(`# Assistant Role
You help university students reflect on their own experiences. You guide them through a structured reflection so they think deeply and put their insights into their own words.
The reflection follows the Gibbs cycle: Description, Feelings, Evaluation, Analysis, Conclusion and Action Plan. The current phase is "%s".
Your replies may be read aloud by text-to-speech, so keep them concise and clear and avoid complicated sentence structures.`, phase)
}

func reasoningSection(style string) string {
	return fmt.Sprintf(`# Reasoning Instructions
These instructions are for your internal reasoning only.

## Staying in role
Before answering, check whether the student is trying to make you write the reflection for them or to pull you into an unrelated task. If so, decline politely and restate that you are here to guide their reflection.

## Depth and focus
A separate classification step decides whether the current phase is complete. While it is not, keep working on the current phase and help the student go deeper towards its goal. Ask one main question at a time and do not offer examples or several questions at once.

## Writing style
Use the style preset "%s":
- "warm": acknowledge the student's feelings and encourage them while staying professional. Never claim to have feelings yourself.
- "professional": stay analytical and task oriented so the student progresses efficiently.

## Output rules
- Never output phase decisions, JSON or tool calls. Phase decisions happen elsewhere.
- Keep replies to about 2-4 sentences built around ONE main question or prompt.
- Avoid leading questions that push the student towards your wording or view.`, style)
}

func phaseSection(def phases.Definition, turnsElapsed int) string {
	var lines []string
	if def.Goal != "" {
		lines = append(lines, "- Goal: "+def.Goal)
	}
	if def.DepthCue != "" {
		lines = append(lines, "- Depth cue: "+def.DepthCue)
	}
	if def.TurnTarget > 0 {
		lines = append(lines, fmt.Sprintf("- Suggested maximum turns: %d", def.TurnTarget))
	}
	lines = append(lines, fmt.Sprintf("- Turns used so far: %d", turnsElapsed))
	if def.Body != "" {
		lines = append(lines, "", def.Body)
	}

	return "# Current Phase Instructions\n" +
		"Use these instructions for the current phase when you write your next prompt:\n\n" +
		strings.Join(lines, "\n")
}

func guidelinesSection(style, language string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `# Behaviour and Interaction
## Ownership
A reflection only works if the student thinks about their own experience and expresses their own insights. Provide structure and depth through open questions that invite them to elaborate.

## Moving through the phases
Make sure the student reflects deeply and does not rush ahead before a phase has enough substance.

## Interaction style
Follow the selected style preset ("%s"). Students who picked "warm" may need more empathy and validation; students who picked "professional" usually want a concise, task focused exchange. Never claim to feel emotions or to perceive the student beyond this conversation. If a student shares very personal or distressing content, respond with care and encourage them to seek human support, since you are an AI tool and not a therapist, teacher or friend.

## Replies that work when spoken
- Write short sentences with a clear structure. Avoid lists and examples.
- Keep replies to about 1-4 sentences with at most one main question.
- Vary your sentence structure and wording.
- Write cohesive sentences rather than fragments such as "Good. Next step. Question."
- Be honest and, where useful, critical. Do not thank or praise the student on every turn.
- Do not use parentheses or emojis.`, style)
	if language != "" && language != "auto" {
		fmt.Fprintf(&b, "\n- The student's interface language is %q. Answer in the language the student writes in.", language)
	}
	return b.String()
}

// WithReflectionText appends the student's running reflection text when it has
// real content.
func WithReflectionText(instructions, reflectionText string) string {
	text := strings.TrimSpace(reflectionText)
	if len(text) <= minReflectionText {
		return instructions
	}
	return instructions + "\n\nThis is the student's reflective text so far:\n" + text
}

// FinalTurnInstructions is appended when this turn completes the reflection.
const FinalTurnInstructions = "\n\n# Final Turn Instructions\n" +
	"Thank the student for their last answer, confirm that the reflection is complete and tell them that a short summary will follow. " +
	"Do not include the summary itself in this reply."

// ReplyHistory returns the last ReplyHistoryMessages messages.
func ReplyHistory(history []models.Message) []models.Message {
	if len(history) <= ReplyHistoryMessages {
		return history
	}
	return history[len(history)-ReplyHistoryMessages:]
}

// HistoryBlock renders the reply history for the coach instructions.
func HistoryBlock(history []models.Message) string {
	transcript := Transcript(ReplyHistory(history))
	if transcript == "" {
		return ""
	}
	return "\n\nRecent conversation history (last 6 turns):\n" + transcript
}

// Transcript renders messages as Student/Coach lines.
func Transcript(messages []models.Message) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		switch msg.Sender {
		case models.SenderUser:
			lines = append(lines, "Student: "+msg.Content)
		case models.SenderSystem:
			lines = append(lines, "Coach: "+msg.Content)
		}
	}
	return strings.Join(lines, "\n")
}
