package services

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"voxareflect/internal/audio"
	"voxareflect/internal/models"
)

// ErrPoolClosed is returned by Submit after Shutdown.
var ErrPoolClosed = errors.New("voice worker pool is shut down")

// Transcriber turns an audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, req audio.TranscribeRequest) (*audio.Transcription, error)
}

// TurnProcessor runs one chat turn.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, req *models.TurnRequest) *models.TurnResult
}

// VoiceWorkerPool runs voice turns in the background with bounded concurrency.
// Jobs outlive the upload request; their state is polled from the job store.
type VoiceWorkerPool struct {
	jobs        *VoiceJobStore
	transcriber Transcriber
	turns       TurnProcessor
	sem         *semaphore.Weighted
	logger      *logrus.Logger
	metrics     *Metrics

	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewVoiceWorkerPool creates a pool running at most workers jobs at once.
func NewVoiceWorkerPool(jobs *VoiceJobStore, transcriber Transcriber, turns TurnProcessor, workers int, metrics *Metrics) *VoiceWorkerPool {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	ctx, cancel := context.WithCancel(context.Background())
	return &VoiceWorkerPool{
		jobs:        jobs,
		transcriber: transcriber,
		turns:       turns,
		sem:         semaphore.NewWeighted(int64(max(1, workers))),
		logger:      logger,
		metrics:     metrics,
		baseCtx:     ctx,
		cancel:      cancel,
	}
}

// Submit creates a job for the uploaded audio at audioPath and queues it. The pool
// owns audioPath from here on and removes it when the job ends. req carries the turn
// metadata; its NewMessage is replaced by the transcript.
func (p *VoiceWorkerPool) Submit(ctx context.Context, audioPath string, req models.TurnRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = os.Remove(audioPath)
		return "", ErrPoolClosed
	}

	jobID := p.jobs.Create()
	p.jobs.Update(jobID, StatusUpdate(models.VoiceJobQueued))
	p.logger.WithFields(logrus.Fields{
		"job_id": jobID,
		"status": models.VoiceJobQueued,
	}).Info("Voice job queued")

	// Detached from the upload request: the job keeps running after the response.
	jobCtx := context.WithoutCancel(ctx)
	p.wg.Add(1)
	go p.run(jobCtx, jobID, audioPath, req)
	return jobID, nil
}

func (p *VoiceWorkerPool) run(ctx context.Context, jobID, audioPath string, req models.TurnRequest) {
	defer p.wg.Done()
	defer func() {
		if err := os.Remove(audioPath); err != nil && !os.IsNotExist(err) {
			p.logger.WithField("job_id", jobID).WithError(err).Warn("Failed to remove temp audio")
		}
	}()

	if err := p.sem.Acquire(p.baseCtx, 1); err != nil {
		p.fail(jobID, err, 0)
		return
	}
	defer p.sem.Release(1)

	start := time.Now()
	p.jobs.Update(jobID, StatusUpdate(models.VoiceJobRunning))

	transcriptionStart := time.Now()
	transcription, err := p.transcriber.Transcribe(ctx, audio.TranscribeRequest{
		AudioPath: audioPath,
		Language:  req.Language,
	})
	if err != nil {
		p.fail(jobID, err, time.Since(start))
		return
	}
	transcriptionSeconds := time.Since(transcriptionStart).Seconds()

	req.NewMessage = transcription.Text
	timings := make(map[string]any, len(req.TimingMetadata)+1)
	for key, value := range req.TimingMetadata {
		timings[key] = value
	}
	timings["transcription"] = transcriptionSeconds
	req.TimingMetadata = timings

	result := p.turns.ProcessTurn(ctx, &req)
	result.UserMessage = transcription.Text
	result.Transcript = transcription.Text
	p.jobs.Update(jobID, CompletedUpdate(result))
	p.metrics.RecordVoiceJob(string(models.VoiceJobCompleted))

	p.logger.WithFields(logrus.Fields{
		"job_id":      jobID,
		"status":      models.VoiceJobCompleted,
		"turn_ok":     result.Success,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Voice job completed")
}

func (p *VoiceWorkerPool) fail(jobID string, err error, elapsed time.Duration) {
	p.jobs.Update(jobID, FailedUpdate(err.Error()))
	p.metrics.RecordVoiceJob(string(models.VoiceJobFailed))
	p.logger.WithFields(logrus.Fields{
		"job_id":      jobID,
		"status":      models.VoiceJobFailed,
		"duration_ms": elapsed.Milliseconds(),
	}).WithError(err).Error("Voice job failed")
}

// Shutdown stops accepting jobs and waits for running ones until ctx is done.
// Jobs still waiting for a worker slot fail when ctx expires.
func (p *VoiceWorkerPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}
