package models

import (
	"time"

	"voxareflect/internal/phases"
)

// Message senders.
const (
	SenderUser   = "user"
	SenderSystem = "system"
)

// DefaultStudyGroup is stored when the client does not name a study group.
const DefaultStudyGroup = "NA"

// Message is one entry of a conversation transcript.
type Message struct {
	Sender  string   `bson:"sender" json:"sender"` // "user" or "system"
	Content string   `bson:"content" json:"content"`
	Buttons []string `bson:"buttons" json:"buttons"`
	Video   string   `bson:"video" json:"video"`
	Time    float64  `bson:"time" json:"time"` // unix seconds
}

// NewMessage builds a message stamped with now.
func NewMessage(sender, content string, buttons []string, now time.Time) Message {
	if buttons == nil {
		buttons = []string{}
	}
	return Message{
		Sender:  sender,
		Content: content,
		Buttons: buttons,
		Time:    UnixSeconds(now),
	}
}

// Conversation is one reflection session owned by a user.
type Conversation struct {
	ID                int                  `bson:"id" json:"id"`
	Title             string               `bson:"title" json:"title"`
	StudyGroup        string               `bson:"studyGroup" json:"studyGroup"`
	Time              float64              `bson:"time" json:"time"`
	Text              string               `bson:"text" json:"text"`
	Stage             string               `bson:"stage" json:"stage"`
	TurnPreset        string               `bson:"turnPreset" json:"turnPreset"`
	PhaseTurns        map[phases.Phase]int `bson:"phaseTurns" json:"phaseTurns"`
	CurrentPhaseTurns int                  `bson:"currentPhaseTurns" json:"currentPhaseTurns"`
	Messages          []Message            `bson:"messages" json:"messages"`
	Summary           *string              `bson:"summary,omitempty" json:"summary,omitempty"`
}

// NewConversation starts a conversation in the first phase with zeroed counters.
func NewConversation(id int, language, studyGroup string, preset phases.TurnPreset, now time.Time) *Conversation {
	if studyGroup == "" {
		studyGroup = DefaultStudyGroup
	}
	return &Conversation{
		ID:         id,
		Title:      DefaultTitle(language),
		StudyGroup: studyGroup,
		Time:       UnixSeconds(now),
		Stage:      string(phases.First()),
		TurnPreset: string(preset),
		PhaseTurns: map[phases.Phase]int{},
		Messages:   []Message{},
	}
}

// DefaultTitle is the placeholder title until one is generated.
func DefaultTitle(language string) string {
	if language == "de" {
		return "Laufende Reflexion"
	}
	return "Ongoing Reflection"
}

// CurrentPhase returns the phase the conversation is currently in.
func (c *Conversation) CurrentPhase() phases.Phase {
	return phases.Resolve(c.Stage)
}

// Preset returns the stored turn preset, normalised.
func (c *Conversation) Preset() phases.TurnPreset {
	return phases.NormalizePreset(c.TurnPreset)
}

// Counters exposes the turn counters to the phase machine.
func (c *Conversation) Counters() phases.Counters {
	return phases.Counters{PerPhase: c.PhaseTurns, Current: c.CurrentPhaseTurns}
}

// ApplyDecision books the turn and moves the conversation to decision.To.
func (c *Conversation) ApplyDecision(decision phases.Decision) {
	counters := c.Counters()
	counters.Record(decision)
	c.PhaseTurns = counters.PerPhase
	c.CurrentPhaseTurns = counters.Current
	c.Stage = string(decision.To)
}

// HistoryChars is the total length of every message body.
func (c *Conversation) HistoryChars() int {
	total := 0
	for _, msg := range c.Messages {
		total += len(msg.Content)
	}
	return total
}

// ConversationView is a conversation as listed to clients, with a fresh phase snapshot.
type ConversationView struct {
	Conversation
	Phase phases.Snapshot `json:"phase"`
}

// View returns the listing form of c with the turn preset defaulted.
func (c *Conversation) View() ConversationView {
	view := ConversationView{Conversation: *c, Phase: phases.SnapshotOf(c.Stage)}
	if view.TurnPreset == "" {
		view.TurnPreset = string(phases.DefaultPreset)
	}
	return view
}

// UserDocument is everything stored for one username. Version increases by one on
// every successful save and guards against lost updates.
type UserDocument struct {
	Username      string          `bson:"username" json:"username"`
	Conversations []*Conversation `bson:"conversations" json:"conversations"`
	Version       int64           `bson:"version" json:"version"`
	UpdatedAt     time.Time       `bson:"updatedAt" json:"updatedAt"`
}

// Find returns the conversation with id, or nil.
func (d *UserDocument) Find(id int) *Conversation {
	for _, conv := range d.Conversations {
		if conv.ID == id {
			return conv
		}
	}
	return nil
}

// NextConversationID is the id a new conversation gets: the current list length.
func (d *UserDocument) NextConversationID() int {
	return len(d.Conversations)
}

// UnixSeconds converts t to fractional unix seconds, the stored time format.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
