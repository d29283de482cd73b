package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxareflect/internal/audio"
	"voxareflect/internal/config"
	"voxareflect/internal/health"
)

type countingSynth struct {
	calls atomic.Int32
	err   error
}

func (s *countingSynth) Synthesize(context.Context, audio.SpeechRequest) (*audio.Speech, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &audio.Speech{Audio: []byte("mp3"), ContentType: "audio/mpeg"}, nil
}

func (*countingSynth) Mode() string { return config.TTSModeOpenAI }

func TestSpeakCachesAudio(t *testing.T) {
	cache := NewTTSCache(time.Minute)
	speech := NewSpeechService(&countingSynth{}, audio.NewStyleResolver(testTTSConfig()), cache, config.TTSModeOpenAI, nil)

	info := speech.Speak(context.Background(), "How did that feel?", "warm", "verse")
	require.True(t, info.Enabled)
	assert.Equal(t, "verse", info.Voice)
	assert.Equal(t, "warm", info.StylePreset)
	require.Contains(t, info.AudioURL, AudioURLPrefix)

	cached, err := speech.Audio(info.AudioURL[len(AudioURLPrefix):])
	require.NoError(t, err)
	assert.Equal(t, "audio/mpeg", cached.ContentType)
}

func TestSpeakEmptyReplySkipsSynthesis(t *testing.T) {
	synth := &countingSynth{}
	speech := NewSpeechService(synth, audio.NewStyleResolver(testTTSConfig()), NewTTSCache(time.Minute), config.TTSModeOpenAI, nil)

	info := speech.Speak(context.Background(), "   ", "unknown", "nobody")
	assert.False(t, info.Enabled)
	assert.Equal(t, "professional", info.StylePreset)
	assert.Equal(t, "alloy", info.Voice)
	assert.Zero(t, synth.calls.Load())
}

func TestSpeakSkipsUnhealthyProvider(t *testing.T) {
	synth := &countingSynth{err: errors.New("connection refused")}
	tracker := health.NewTracker(1, time.Hour)
	speech := NewSpeechService(synth, audio.NewStyleResolver(testTTSConfig()), NewTTSCache(time.Minute), config.TTSModeOpenAI, nil).
		WithHealth(tracker)

	for i := 0; i < 3; i++ {
		info := speech.Speak(context.Background(), "What happened next?", "warm", "")
		assert.False(t, info.Enabled)
		assert.Empty(t, info.AudioURL)
	}
	assert.Equal(t, int32(1), synth.calls.Load())

	snapshot := tracker.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, health.CapabilitySpeech, snapshot[0].Capability)
	assert.Equal(t, config.TTSModeOpenAI, snapshot[0].Name)
	assert.Equal(t, health.StatusUnhealthy, snapshot[0].Status)
	assert.Equal(t, "connection refused", snapshot[0].LastError)
}

func TestSpeakMarksProviderHealthy(t *testing.T) {
	tracker := health.NewTracker(0, 0)
	speech := NewSpeechService(&countingSynth{}, audio.NewStyleResolver(testTTSConfig()), NewTTSCache(time.Minute), config.TTSModeOpenAI, nil).
		WithHealth(tracker)

	info := speech.Speak(context.Background(), "Tell me more.", "professional", "")
	assert.True(t, info.Enabled)
	assert.Equal(t, health.StatusHealthy, tracker.Snapshot()[0].Status)
}
