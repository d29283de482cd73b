package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxareflect/internal/audio"
	"voxareflect/internal/models"
)

type fakeTranscriber struct {
	text string
	err  error
	gate chan struct{}
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, req audio.TranscribeRequest) (*audio.Transcription, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &audio.Transcription{Text: f.text, Language: req.Language, Provider: "fake"}, nil
}

type recordingTurns struct {
	mu       sync.Mutex
	requests []models.TurnRequest
	result   models.TurnResult
}

func (r *recordingTurns) ProcessTurn(_ context.Context, req *models.TurnRequest) *models.TurnResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, *req)
	result := r.result
	return &result
}

func tempAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.webm")
	require.NoError(t, os.WriteFile(path, []byte("webm"), 0o600))
	return path
}

func waitForStatus(t *testing.T, jobs *VoiceJobStore, id string, status models.VoiceJobStatus) *models.VoiceJob {
	t.Helper()
	var job *models.VoiceJob
	require.Eventually(t, func() bool {
		current, err := jobs.Get(id)
		if err != nil {
			return false
		}
		job = current
		return current.Status == status
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestVoiceWorkerCompletesJob(t *testing.T) {
	jobs := NewVoiceJobStore(time.Hour)
	turns := &recordingTurns{result: models.TurnResult{Success: true, Result: "How did that feel?"}}
	pool := NewVoiceWorkerPool(jobs, &fakeTranscriber{text: "I gave a talk"}, turns, 2, nil)

	path := tempAudio(t)
	id, err := pool.Submit(context.Background(), path, models.TurnRequest{
		Username:       "alice",
		Language:       "en",
		TimingMetadata: map[string]any{"upload": 0.2},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job := waitForStatus(t, jobs, id, models.VoiceJobCompleted)
	require.NotNil(t, job.Result)
	assert.Equal(t, "I gave a talk", job.Result.UserMessage)
	assert.Equal(t, "I gave a talk", job.Result.Transcript)
	assert.Equal(t, "How did that feel?", job.Result.Result)

	require.NoError(t, pool.Shutdown(context.Background()))
	require.Len(t, turns.requests, 1)
	req := turns.requests[0]
	assert.Equal(t, "I gave a talk", req.NewMessage)
	assert.Equal(t, 0.2, req.TimingMetadata["upload"])
	assert.Contains(t, req.TimingMetadata, "transcription")

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "temp audio is removed")
}

func TestVoiceWorkerCompletesFailedTurn(t *testing.T) {
	jobs := NewVoiceJobStore(time.Hour)
	turns := &recordingTurns{result: models.TurnResult{Success: false}}
	pool := NewVoiceWorkerPool(jobs, &fakeTranscriber{text: "hello"}, turns, 1, nil)

	id, err := pool.Submit(context.Background(), tempAudio(t), models.TurnRequest{Username: "alice"})
	require.NoError(t, err)

	job := waitForStatus(t, jobs, id, models.VoiceJobCompleted)
	assert.False(t, job.Result.Success)
	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestVoiceWorkerTranscriptionFailure(t *testing.T) {
	jobs := NewVoiceJobStore(time.Hour)
	turns := &recordingTurns{}
	pool := NewVoiceWorkerPool(jobs, &fakeTranscriber{err: errors.New("whisper unavailable")}, turns, 1, nil)

	path := tempAudio(t)
	id, err := pool.Submit(context.Background(), path, models.TurnRequest{Username: "alice"})
	require.NoError(t, err)

	job := waitForStatus(t, jobs, id, models.VoiceJobFailed)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "whisper unavailable")
	assert.Nil(t, job.Result)

	require.NoError(t, pool.Shutdown(context.Background()))
	assert.Empty(t, turns.requests)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestVoiceWorkerOutlivesRequestContext(t *testing.T) {
	jobs := NewVoiceJobStore(time.Hour)
	gate := make(chan struct{})
	pool := NewVoiceWorkerPool(jobs, &fakeTranscriber{text: "later", gate: gate}, &recordingTurns{result: models.TurnResult{Success: true}}, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	id, err := pool.Submit(ctx, tempAudio(t), models.TurnRequest{Username: "alice"})
	require.NoError(t, err)
	cancel()

	waitForStatus(t, jobs, id, models.VoiceJobRunning)
	close(gate)
	waitForStatus(t, jobs, id, models.VoiceJobCompleted)
	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestVoiceWorkerRejectsAfterShutdown(t *testing.T) {
	jobs := NewVoiceJobStore(time.Hour)
	pool := NewVoiceWorkerPool(jobs, &fakeTranscriber{text: "x"}, &recordingTurns{}, 1, nil)
	require.NoError(t, pool.Shutdown(context.Background()))

	path := tempAudio(t)
	_, err := pool.Submit(context.Background(), path, models.TurnRequest{})
	assert.ErrorIs(t, err, ErrPoolClosed)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
	assert.Equal(t, 0, jobs.Len())
}

func TestVoiceWorkerShutdownTimesOut(t *testing.T) {
	jobs := NewVoiceJobStore(time.Hour)
	gate := make(chan struct{})
	defer close(gate)
	pool := NewVoiceWorkerPool(jobs, &fakeTranscriber{text: "x", gate: gate}, &recordingTurns{}, 1, nil)

	id, err := pool.Submit(context.Background(), tempAudio(t), models.TurnRequest{})
	require.NoError(t, err)
	waitForStatus(t, jobs, id, models.VoiceJobRunning)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Shutdown(ctx), context.DeadlineExceeded)
}
