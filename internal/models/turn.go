package models

import (
	"encoding/json"
	"strings"

	"voxareflect/internal/phases"
)

// NewConversationID asks the orchestrator to start a new conversation.
const NewConversationID = -1

// TurnRequest is the payload of one chat turn, typed or transcribed.
type TurnRequest struct {
	Username        string         `json:"username"`
	NewMessage      string         `json:"newMessage"`
	CurrentText     string         `json:"currentText"`
	ConversationID  json.Number    `json:"conversationID"`
	Language        string         `json:"language"`
	StudyGroup      string         `json:"studyGroup"`
	StylePreset     string         `json:"stylePreset"`
	TTSVoice        string         `json:"ttsVoice"`
	VoicePreference string         `json:"voicePreference"`
	TurnPreset      string         `json:"turnPreset"`
	TimingMetadata  map[string]any `json:"timingMetadata,omitempty"`
}

// ConversationIDOrNew returns the requested conversation id, or NewConversationID
// when it is missing or not an integer.
func (r *TurnRequest) ConversationIDOrNew() int {
	if r.ConversationID == "" {
		return NewConversationID
	}
	id, err := r.ConversationID.Int64()
	if err != nil {
		return NewConversationID
	}
	return int(id)
}

// RequestedVoice prefers ttsVoice and falls back to voicePreference.
func (r *TurnRequest) RequestedVoice() string {
	if v := strings.TrimSpace(r.TTSVoice); v != "" {
		return v
	}
	return strings.TrimSpace(r.VoicePreference)
}

// Timings returns the numeric entries of TimingMetadata in seconds.
func (r *TurnRequest) Timings() map[string]float64 {
	timings := make(map[string]float64, len(r.TimingMetadata))
	for key, value := range r.TimingMetadata {
		switch v := value.(type) {
		case float64:
			timings[key] = v
		case int:
			timings[key] = float64(v)
		case json.Number:
			if f, err := v.Float64(); err == nil {
				timings[key] = f
			}
		}
	}
	return timings
}

// TTSInfo describes the speech attached to a reply.
type TTSInfo struct {
	Enabled       bool     `json:"enabled"`
	Mode          string   `json:"mode"`
	StylePreset   string   `json:"stylePreset"`
	Voice         string   `json:"voice"`
	AllowedVoices []string `json:"allowedVoices"`
	AudioURL      string   `json:"audioUrl,omitempty"`
}

// PhaseMeta explains the phase decision taken on a turn.
type PhaseMeta struct {
	Suggestion          string      `json:"suggestion"`
	CalculatedNextPhase *string     `json:"calculatedNextPhase"`
	TurnPreset          string      `json:"turnPreset"`
	TurnRules           phases.Rule `json:"turnRules"`
	TransitionReason    string      `json:"transitionReason,omitempty"`
}

// TurnResult is the chat-turn envelope. Every field is present on success and failure.
type TurnResult struct {
	Success           bool            `json:"success"`
	Result            string          `json:"result"`
	AssistantText     string          `json:"assistantText"`
	TTSEligible       bool            `json:"ttsEligible"`
	TTS               TTSInfo         `json:"tts"`
	Buttons           []string        `json:"buttons"`
	Video             string          `json:"video"`
	Title             string          `json:"title"`
	Time              float64         `json:"time"`
	Text              string          `json:"text"`
	Stage             string          `json:"stage"`
	ID                int             `json:"id"`
	TurnPreset        string          `json:"turnPreset"`
	Phase             phases.Snapshot `json:"phase"`
	PhaseMeta         PhaseMeta       `json:"phaseMeta"`
	ReflectionSummary *string         `json:"reflectionSummary"`
	SummaryMessage    *string         `json:"summaryMessage"`

	// Set on results produced by a voice job.
	UserMessage string `json:"userMessage,omitempty"`
	Transcript  string `json:"transcript,omitempty"`
}
