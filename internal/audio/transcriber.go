package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voxareflect/internal/health"
)

// ErrEmptyTranscript is returned when Whisper returns no text.
var ErrEmptyTranscript = errors.New("transcript is empty")

// UploadFilePrefix names temp files holding uploaded audio awaiting transcription.
const UploadFilePrefix = "voxareflect-upload-"

const (
	GroqTranscriptionURL   = "https://api.groq.com/openai/v1/audio/transcriptions"
	OpenAITranscriptionURL = "https://api.openai.com/v1/audio/transcriptions"
)

// WhisperEndpoint is one Whisper-compatible transcription API.
type WhisperEndpoint struct {
	Name   string
	URL    string
	Model  string
	APIKey string
}

// GroqEndpoint returns Groq's Whisper endpoint (whisper-large-v3).
func GroqEndpoint(apiKey string) WhisperEndpoint {
	return WhisperEndpoint{Name: "Groq", URL: GroqTranscriptionURL, Model: "whisper-large-v3", APIKey: apiKey}
}

// OpenAIEndpoint returns OpenAI's Whisper endpoint (whisper-1).
func OpenAIEndpoint(apiKey string) WhisperEndpoint {
	return WhisperEndpoint{Name: "OpenAI", URL: OpenAITranscriptionURL, Model: "whisper-1", APIKey: apiKey}
}

// TranscribeRequest contains parameters for audio transcription
type TranscribeRequest struct {
	AudioPath string
	Language  string // Optional language hint (e.g. "en", "de")
}

// Transcription is the result of a Whisper call.
type Transcription struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Provider string  `json:"provider,omitempty"`
}

// Transcriber turns recorded audio into text using Whisper.
// Endpoints are tried in order; the first success wins.
type Transcriber struct {
	httpClient *http.Client
	endpoints  []WhisperEndpoint
	health     *health.Tracker
}

// NewTranscriber creates a transcriber. Groq (cheaper) is tried before OpenAI when a
// Groq key is configured.
func NewTranscriber(groqAPIKey, openAIAPIKey string) *Transcriber {
	var endpoints []WhisperEndpoint
	if groqAPIKey != "" {
		endpoints = append(endpoints, GroqEndpoint(groqAPIKey))
	}
	if openAIAPIKey != "" {
		endpoints = append(endpoints, OpenAIEndpoint(openAIAPIKey))
	}
	return NewTranscriberWithEndpoints(endpoints...)
}

// NewTranscriberWithEndpoints creates a transcriber over explicit endpoints.
func NewTranscriberWithEndpoints(endpoints ...WhisperEndpoint) *Transcriber {
	return &Transcriber{
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // Whisper can take a while for long audio
		},
		endpoints: endpoints,
	}
}

// WithHealth makes the transcriber report call outcomes to tracker and try
// providers in cooldown only after the available ones.
func (t *Transcriber) WithHealth(tracker *health.Tracker) *Transcriber {
	t.health = tracker
	for i, endpoint := range t.endpoints {
		tracker.Register(health.CapabilityTranscription, endpoint.Name, len(t.endpoints)-i)
	}
	return t
}

// apiError is a non-2xx response from an upstream audio API.
type apiError struct {
	provider   string
	statusCode int
	message    string
}

func (e *apiError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("%s API error: %s", e.provider, e.message)
	}
	return fmt.Sprintf("%s API error: status %d", e.provider, e.statusCode)
}

// StatusCode returns the HTTP status of an upstream API error, or 0.
func StatusCode(err error) int {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.statusCode
	}
	return 0
}

// ordered returns the endpoints to try: available ones in configured order, then
// the rest as a last resort.
func (t *Transcriber) ordered() []WhisperEndpoint {
	if t.health == nil {
		return t.endpoints
	}
	ordered := make([]WhisperEndpoint, 0, len(t.endpoints))
	var deferred []WhisperEndpoint
	for _, endpoint := range t.endpoints {
		if t.health.Available(health.CapabilityTranscription, endpoint.Name) {
			ordered = append(ordered, endpoint)
		} else {
			deferred = append(deferred, endpoint)
		}
	}
	return append(ordered, deferred...)
}

// Transcribe transcribes the audio file at req.AudioPath.
func (t *Transcriber) Transcribe(ctx context.Context, req TranscribeRequest) (*Transcription, error) {
	if len(t.endpoints) == 0 {
		return nil, fmt.Errorf("no transcription provider configured")
	}
	log.Printf("🎵 [AUDIO] Transcribing audio: %s", req.AudioPath)

	endpoints := t.ordered()
	var lastErr error
	for i, endpoint := range endpoints {
		resp, err := t.transcribeWith(ctx, req, endpoint)
		t.record(endpoint, err)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, ErrEmptyTranscript) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		if i < len(endpoints)-1 {
			log.Printf("⚠️  [AUDIO] %s transcription failed, trying %s: %v", endpoint.Name, endpoints[i+1].Name, err)
		}
	}
	return nil, lastErr
}

// record reports an outcome to the health tracker. Local file errors and empty
// transcripts say nothing about the provider.
func (t *Transcriber) record(endpoint WhisperEndpoint, err error) {
	if t.health == nil {
		return
	}
	var apiErr *apiError
	switch {
	case err == nil || errors.Is(err, ErrEmptyTranscript):
		t.health.MarkHealthy(health.CapabilityTranscription, endpoint.Name)
	case errors.As(err, &apiErr):
		t.health.MarkFailure(health.CapabilityTranscription, endpoint.Name, apiErr.Error(), apiErr.statusCode)
	case errors.Is(err, os.ErrNotExist) || errors.Is(err, context.Canceled):
	default:
		t.health.MarkFailure(health.CapabilityTranscription, endpoint.Name, err.Error(), 0)
	}
}

func (t *Transcriber) transcribeWith(ctx context.Context, req TranscribeRequest, endpoint WhisperEndpoint) (*Transcription, error) {
	audioFile, err := os.Open(req.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer audioFile.Close()

	fileInfo, err := audioFile.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat audio file: %w", err)
	}

	log.Printf("🔄 [AUDIO] Sending audio to %s Whisper API (%d bytes, model: %s)", endpoint.Name, fileInfo.Size(), endpoint.Model)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(req.AudioPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, audioFile); err != nil {
		return nil, fmt.Errorf("failed to copy audio data: %w", err)
	}

	fields := map[string]string{
		"model":           endpoint.Model,
		"response_format": "verbose_json",
	}
	if req.Language != "" {
		fields["language"] = req.Language
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("failed to write %s field: %w", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+endpoint.APIKey)

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("❌ [AUDIO] %s Whisper API error: %d - %s", endpoint.Name, resp.StatusCode, string(respBody))

		var errorResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		apiErr := &apiError{provider: endpoint.Name + " Whisper", statusCode: resp.StatusCode}
		if err := json.Unmarshal(respBody, &errorResp); err == nil {
			apiErr.message = errorResp.Error.Message
		}
		return nil, apiErr
	}

	var apiResp Transcription
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	apiResp.Text = strings.TrimSpace(apiResp.Text)
	apiResp.Provider = endpoint.Name
	if apiResp.Text == "" {
		return nil, ErrEmptyTranscript
	}

	log.Printf("✅ [AUDIO] %s transcription successful (%d chars, %.1fs duration)", endpoint.Name, len(apiResp.Text), apiResp.Duration)
	return &apiResp, nil
}

// GetSupportedFormats returns the list of supported audio formats
func GetSupportedFormats() []string {
	return []string{
		"mp3", "mp4", "mpeg", "mpga", "m4a", "wav", "webm", "ogg", "flac",
	}
}

// IsSupportedFormat checks if a MIME type is supported for transcription.
// Codec parameters ("audio/webm;codecs=opus") are ignored.
func IsSupportedFormat(mimeType string) bool {
	base, _, _ := strings.Cut(strings.ToLower(mimeType), ";")
	switch strings.TrimSpace(base) {
	case "audio/mpeg", "audio/mp3", "audio/mp4", "audio/x-m4a",
		"audio/wav", "audio/x-wav", "audio/wave",
		"audio/webm", "audio/ogg", "audio/flac":
		return true
	}
	return false
}
