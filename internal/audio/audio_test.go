package audio

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxareflect/internal/config"
	"voxareflect/internal/health"
	"voxareflect/internal/llm"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.webm")
	require.NoError(t, os.WriteFile(path, []byte("fake-audio"), 0o600))
	return path
}

func TestSupportedFormats(t *testing.T) {
	for _, mimeType := range []string{"audio/mpeg", "audio/wav", "audio/webm", "audio/webm;codecs=opus", "AUDIO/OGG"} {
		assert.True(t, IsSupportedFormat(mimeType), mimeType)
	}
	for _, mimeType := range []string{"video/mp4", "image/jpeg", "text/plain", "audio/midi"} {
		assert.False(t, IsSupportedFormat(mimeType), mimeType)
	}
	assert.Contains(t, GetSupportedFormats(), "webm")
}

func TestTranscribeSendsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer groq-key", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-large-v3", r.FormValue("model"))
		assert.Equal(t, "de", r.FormValue("language"))
		assert.Equal(t, "verbose_json", r.FormValue("response_format"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "clip.webm", header.Filename)
		assert.Equal(t, "fake-audio", string(data))

		_ = json.NewEncoder(w).Encode(map[string]any{"text": "  Ich war nervös. ", "language": "german", "duration": 2.5})
	}))
	defer srv.Close()

	groq := GroqEndpoint("groq-key")
	groq.URL = srv.URL
	tr := NewTranscriberWithEndpoints(groq)

	out, err := tr.Transcribe(context.Background(), TranscribeRequest{AudioPath: writeAudio(t), Language: "de"})
	require.NoError(t, err)
	assert.Equal(t, "Ich war nervös.", out.Text)
	assert.Equal(t, "Groq", out.Provider)
	assert.Equal(t, 2.5, out.Duration)
}

func TestTranscribeFallsBackToOpenAI(t *testing.T) {
	var groqCalls atomic.Int32
	groqSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		groqCalls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"message":"overloaded"}}`)
	}))
	defer groqSrv.Close()
	openaiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		_, _ = io.WriteString(w, `{"text":"hello"}`)
	}))
	defer openaiSrv.Close()

	groq, openai := GroqEndpoint("g"), OpenAIEndpoint("o")
	groq.URL, openai.URL = groqSrv.URL, openaiSrv.URL

	out, err := NewTranscriberWithEndpoints(groq, openai).Transcribe(context.Background(), TranscribeRequest{AudioPath: writeAudio(t)})
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Text)
	assert.Equal(t, "OpenAI", out.Provider)
	assert.Equal(t, int32(1), groqCalls.Load())
}

func TestTranscribeSkipsProviderInCooldown(t *testing.T) {
	var groqCalls, openaiCalls atomic.Int32
	groqSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		groqCalls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"Rate limit reached: audio seconds per hour"}}`)
	}))
	defer groqSrv.Close()
	openaiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		openaiCalls.Add(1)
		_, _ = io.WriteString(w, `{"text":"hello"}`)
	}))
	defer openaiSrv.Close()

	groq, openai := GroqEndpoint("g"), OpenAIEndpoint("o")
	groq.URL, openai.URL = groqSrv.URL, openaiSrv.URL
	tracker := health.NewTracker(3, time.Minute)
	tr := NewTranscriberWithEndpoints(groq, openai).WithHealth(tracker)

	for i := 0; i < 3; i++ {
		out, err := tr.Transcribe(context.Background(), TranscribeRequest{AudioPath: writeAudio(t)})
		require.NoError(t, err)
		assert.Equal(t, "OpenAI", out.Provider)
	}
	assert.Equal(t, int32(1), groqCalls.Load())
	assert.Equal(t, int32(3), openaiCalls.Load())

	snapshot := tracker.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, "Groq", snapshot[0].Name)
	assert.Equal(t, health.StatusCooldown, snapshot[0].Status)
	assert.Contains(t, snapshot[0].LastError, "audio seconds per hour")
	assert.Equal(t, health.StatusHealthy, snapshot[1].Status)
}

func TestTranscribeErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"text":"   "}`)
	}))
	defer srv.Close()
	ep := OpenAIEndpoint("k")
	ep.URL = srv.URL

	_, err := NewTranscriberWithEndpoints(ep).Transcribe(context.Background(), TranscribeRequest{AudioPath: writeAudio(t)})
	assert.ErrorIs(t, err, ErrEmptyTranscript)

	_, err = NewTranscriber("", "").Transcribe(context.Background(), TranscribeRequest{AudioPath: writeAudio(t)})
	assert.Error(t, err)

	_, err = NewTranscriberWithEndpoints(ep).Transcribe(context.Background(), TranscribeRequest{AudioPath: "/does/not/exist.webm"})
	assert.Error(t, err)
}

func ttsConfig() config.TTSConfig {
	return config.TTSConfig{
		Mode:                    config.TTSModeHTTP,
		Format:                  "audio/mpeg",
		Timeout:                 5 * time.Second,
		OpenAIModel:             "gpt-4o-mini-tts",
		DefaultVoice:            "alloy",
		AllowedVoices:           []string{"alloy", "verse", "lumen"},
		WarmInstruction:         "warm",
		ProfessionalInstruction: "calm",
	}
}

func TestStyleResolver(t *testing.T) {
	r := NewStyleResolver(ttsConfig())

	style := r.Resolve(" WARM ", "verse")
	assert.Equal(t, Style{Preset: StyleWarm, Instruction: "warm", Voice: "verse"}, style)

	style = r.Resolve("theatrical", "shimmer")
	assert.Equal(t, StyleProfessional, style.Preset)
	assert.Equal(t, "calm", style.Instruction)
	assert.Equal(t, "alloy", style.Voice)

	assert.Equal(t, "alloy", r.DefaultVoice())
	assert.Equal(t, []string{"alloy", "verse", "lumen"}, r.AllowedVoices())
}

func TestHTTPSynthesizer(t *testing.T) {
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tts", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.Header().Set("Content-Type", "audio/ogg")
		_, _ = w.Write([]byte("OggS"))
	}))
	defer srv.Close()

	cfg := ttsConfig()
	cfg.Endpoint = srv.URL
	cfg.Headers = map[string]string{"Authorization": "Bearer tts"}
	synth := NewSynthesizer(cfg, nil)
	require.Equal(t, config.TTSModeHTTP, synth.Mode())

	speech, err := synth.Synthesize(context.Background(), SpeechRequest{
		Text:  "What happened?",
		Style: Style{Preset: StyleWarm, Voice: "verse"},
	})
	require.NoError(t, err)
	assert.Equal(t, "audio/ogg", speech.ContentType)
	assert.Equal(t, []byte("OggS"), speech.Audio)

	assert.Equal(t, "verse", payload["voice"])
	assert.Equal(t, "What happened?", payload["input"])
	assert.Equal(t, "audio/mpeg", payload["format"])
	assert.NotContains(t, payload, "style")
}

func TestHTTPSynthesizerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := ttsConfig()
	cfg.Endpoint = srv.URL
	_, err := NewSynthesizer(cfg, nil).Synthesize(context.Background(), SpeechRequest{Text: "hi"})
	assert.Error(t, err)
}

type fakeSpeaker struct {
	got llm.SpeechRequest
	err error
}

func (f *fakeSpeaker) Speak(_ context.Context, req llm.SpeechRequest) ([]byte, string, error) {
	f.got = req
	if f.err != nil {
		return nil, "", f.err
	}
	return []byte("mp3"), "audio/mpeg", nil
}

func TestOpenAISynthesizer(t *testing.T) {
	cfg := ttsConfig()
	cfg.Mode = config.TTSModeOpenAI
	speaker := &fakeSpeaker{}
	synth := NewSynthesizer(cfg, speaker)
	require.Equal(t, config.TTSModeOpenAI, synth.Mode())

	speech, err := synth.Synthesize(context.Background(), SpeechRequest{
		Text:  "Tell me more.",
		Style: Style{Instruction: "calm", Voice: "lumen"},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3"), speech.Audio)
	assert.Equal(t, "gpt-4o-mini-tts", speaker.got.Model)
	assert.Equal(t, "lumen", speaker.got.Voice)
	assert.Equal(t, "calm", speaker.got.Instructions)

	speaker.err = errors.New("quota")
	_, err = synth.Synthesize(context.Background(), SpeechRequest{Text: "x"})
	assert.Error(t, err)
}

func TestDisabledSynthesizer(t *testing.T) {
	cfg := ttsConfig()
	cfg.Mode = config.TTSModeNone
	synth := NewSynthesizer(cfg, &fakeSpeaker{})
	assert.Equal(t, config.TTSModeNone, synth.Mode())
	_, err := synth.Synthesize(context.Background(), SpeechRequest{Text: "x"})
	assert.ErrorIs(t, err, ErrSynthesisDisabled)

	cfg.Mode = config.TTSModeHTTP
	cfg.Endpoint = ""
	assert.Equal(t, config.TTSModeNone, NewSynthesizer(cfg, nil).Mode())
}
