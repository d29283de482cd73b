package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"voxareflect/internal/audio"
	"voxareflect/internal/health"
	"voxareflect/internal/models"
)

// AudioURLPrefix is the path clients fetch cached replies from.
const AudioURLPrefix = "/tts/audio/"

// SpeechService synthesises replies and parks the audio in the TTS cache.
type SpeechService struct {
	synth   audio.Synthesizer
	styles  *audio.StyleResolver
	cache   *TTSCache
	mode    string
	metrics *Metrics
	health  *health.Tracker
}

// NewSpeechService creates a speech service. mode is the configured TTS mode as
// reported to clients.
func NewSpeechService(synth audio.Synthesizer, styles *audio.StyleResolver, cache *TTSCache, mode string, metrics *Metrics) *SpeechService {
	return &SpeechService{synth: synth, styles: styles, cache: cache, mode: mode, metrics: metrics}
}

// WithHealth reports synthesis outcomes to tracker and skips synthesis while the
// provider is in cooldown.
func (s *SpeechService) WithHealth(tracker *health.Tracker) *SpeechService {
	s.health = tracker
	tracker.Register(health.CapabilitySpeech, s.mode, 1)
	return s
}

// Info describes the style a reply would be spoken in, without audio.
func (s *SpeechService) Info(stylePreset, requestedVoice string) models.TTSInfo {
	style := s.styles.Resolve(stylePreset, requestedVoice)
	return models.TTSInfo{
		Enabled:       false,
		Mode:          s.mode,
		StylePreset:   style.Preset,
		Voice:         style.Voice,
		AllowedVoices: s.styles.AllowedVoices(),
	}
}

// Speak synthesises reply. Any failure yields info without audio.
func (s *SpeechService) Speak(ctx context.Context, reply, stylePreset, requestedVoice string) models.TTSInfo {
	info := s.Info(stylePreset, requestedVoice)
	if strings.TrimSpace(reply) == "" {
		return info
	}

	if s.health != nil && !s.health.Available(health.CapabilitySpeech, s.mode) {
		s.metrics.RecordTTS("cooldown")
		return info
	}

	speech, err := s.synth.Synthesize(ctx, audio.SpeechRequest{
		Text:  reply,
		Style: s.styles.Resolve(stylePreset, requestedVoice),
	})
	switch {
	case errors.Is(err, audio.ErrSynthesisDisabled):
		s.metrics.RecordTTS("disabled")
		return info
	case err != nil:
		log.Printf("⚠️  [TTS] Synthesis failed: %v", err)
		s.metrics.RecordTTS("failed")
		if s.health != nil {
			s.health.MarkFailure(health.CapabilitySpeech, s.mode, err.Error(), audio.StatusCode(err))
		}
		return info
	}
	if s.health != nil {
		s.health.MarkHealthy(health.CapabilitySpeech, s.mode)
	}

	id := s.cache.Store(speech.Audio, speech.ContentType)
	s.metrics.RecordTTS("ok")
	info.Enabled = true
	info.AudioURL = AudioURLPrefix + id
	return info
}

// Audio returns cached audio by id.
func (s *SpeechService) Audio(id string) (*CachedAudio, error) {
	return s.cache.Fetch(id)
}

// TTSClientConfig is the client-facing TTS configuration.
type TTSClientConfig struct {
	AllowedVoices []string `json:"allowedVoices"`
	DefaultVoice  string   `json:"defaultVoice"`
	Mode          string   `json:"mode"`
}

// ClientConfig returns the voices and mode clients may pick from.
func (s *SpeechService) ClientConfig() TTSClientConfig {
	return TTSClientConfig{
		AllowedVoices: s.styles.AllowedVoices(),
		DefaultVoice:  s.styles.DefaultVoice(),
		Mode:          s.mode,
	}
}
