package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"voxareflect/internal/config"
	"voxareflect/internal/llm"
)

// ErrSynthesisDisabled is returned when no TTS backend is configured.
var ErrSynthesisDisabled = errors.New("speech synthesis is disabled")

// Style presets.
const (
	StyleWarm         = "warm"
	StyleProfessional = "professional"
)

// Style is a resolved delivery style.
type Style struct {
	Preset      string
	Instruction string
	Voice       string
}

// StyleResolver maps style presets and requested voices to a Style.
type StyleResolver struct {
	instructions  map[string]string
	defaultVoice  string
	allowedVoices []string
}

// NewStyleResolver creates a resolver from TTS configuration.
func NewStyleResolver(cfg config.TTSConfig) *StyleResolver {
	defaultVoice := cfg.DefaultVoice
	if defaultVoice == "" {
		defaultVoice = "alloy"
	}
	return &StyleResolver{
		instructions: map[string]string{
			StyleWarm:         cfg.WarmInstruction,
			StyleProfessional: cfg.ProfessionalInstruction,
		},
		defaultVoice:  defaultVoice,
		allowedVoices: cfg.AllowedVoices,
	}
}

// Resolve picks the preset (unknown => professional) and the voice. A requested voice
// is honoured only when it is in the allowed list.
func (r *StyleResolver) Resolve(preset, requestedVoice string) Style {
	key := strings.ToLower(strings.TrimSpace(preset))
	if _, ok := r.instructions[key]; !ok {
		key = StyleProfessional
	}

	voice := r.defaultVoice
	requested := strings.TrimSpace(requestedVoice)
	if requested != "" && (len(r.allowedVoices) == 0 || slices.Contains(r.allowedVoices, requested)) {
		voice = requested
	}
	return Style{Preset: key, Instruction: r.instructions[key], Voice: voice}
}

// AllowedVoices returns the allowed voices, default first.
func (r *StyleResolver) AllowedVoices() []string {
	return slices.Clone(r.allowedVoices)
}

// DefaultVoice returns the configured default voice.
func (r *StyleResolver) DefaultVoice() string {
	return r.defaultVoice
}

// SpeechRequest is the text and style to synthesise.
type SpeechRequest struct {
	Text  string
	Style Style
}

// Speech is synthesised audio.
type Speech struct {
	Audio       []byte
	ContentType string
}

// Synthesizer turns coach replies into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SpeechRequest) (*Speech, error)
	Mode() string
}

// NewSynthesizer selects the backend for the configured mode. Mode none, or http mode
// without an endpoint, yields a disabled synthesizer.
func NewSynthesizer(cfg config.TTSConfig, speaker Speaker) Synthesizer {
	switch cfg.Mode {
	case config.TTSModeOpenAI:
		if speaker != nil {
			return &OpenAISynthesizer{speaker: speaker, model: cfg.OpenAIModel}
		}
	case config.TTSModeHTTP:
		if cfg.Endpoint != "" {
			return NewHTTPSynthesizer(cfg)
		}
	}
	return disabledSynthesizer{}
}

type disabledSynthesizer struct{}

func (disabledSynthesizer) Synthesize(context.Context, SpeechRequest) (*Speech, error) {
	return nil, ErrSynthesisDisabled
}

func (disabledSynthesizer) Mode() string { return config.TTSModeNone }

// Speaker is the OpenAI speech call.
type Speaker interface {
	Speak(ctx context.Context, req llm.SpeechRequest) ([]byte, string, error)
}

// OpenAISynthesizer synthesises through the OpenAI speech API.
type OpenAISynthesizer struct {
	speaker Speaker
	model   string
}

func (s *OpenAISynthesizer) Mode() string { return config.TTSModeOpenAI }

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, req SpeechRequest) (*Speech, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrSynthesisDisabled
	}
	audio, contentType, err := s.speaker.Speak(ctx, llm.SpeechRequest{
		Model:        s.model,
		Voice:        req.Style.Voice,
		Input:        req.Text,
		Instructions: req.Style.Instruction,
	})
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("speech API returned no audio")
	}
	return &Speech{Audio: audio, ContentType: contentType}, nil
}

// HTTPSynthesizer posts a JSON payload to a configured TTS endpoint.
type HTTPSynthesizer struct {
	httpClient *http.Client
	endpoint   string
	model      string
	format     string
	headers    map[string]string
}

// NewHTTPSynthesizer creates an http-mode synthesizer.
func NewHTTPSynthesizer(cfg config.TTSConfig) *HTTPSynthesizer {
	return &HTTPSynthesizer{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		endpoint:   cfg.Endpoint,
		model:      cfg.OpenAIModel,
		format:     cfg.Format,
		headers:    cfg.Headers,
	}
}

func (s *HTTPSynthesizer) Mode() string { return config.TTSModeHTTP }

func (s *HTTPSynthesizer) Synthesize(ctx context.Context, req SpeechRequest) (*Speech, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrSynthesisDisabled
	}

	payload := map[string]string{
		"model":  s.model,
		"voice":  req.Style.Voice,
		"input":  req.Text,
		"format": s.format,
		"style":  req.Style.Instruction,
	}
	for key, value := range payload {
		if value == "" {
			delete(payload, key)
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range s.headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("TTS request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &apiError{provider: "TTS endpoint", statusCode: resp.StatusCode}
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read TTS audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("TTS endpoint returned no audio")
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = s.format
	}
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return &Speech{Audio: audio, ContentType: contentType}, nil
}
