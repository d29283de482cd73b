package services

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"voxareflect/internal/models"
)

// ErrJobNotFound is returned for unknown or expired job ids.
var ErrJobNotFound = errors.New("job not found")

// JobUpdate is a partial update of a voice job. Nil fields are left unchanged.
type JobUpdate struct {
	Status *models.VoiceJobStatus
	Result *models.TurnResult
	Error  *string
}

// StatusUpdate sets only the status.
func StatusUpdate(status models.VoiceJobStatus) JobUpdate {
	return JobUpdate{Status: &status}
}

// CompletedUpdate marks a job completed with its result.
func CompletedUpdate(result *models.TurnResult) JobUpdate {
	status := models.VoiceJobCompleted
	return JobUpdate{Status: &status, Result: result}
}

// FailedUpdate marks a job failed with its error message.
func FailedUpdate(message string) JobUpdate {
	status := models.VoiceJobFailed
	return JobUpdate{Status: &status, Error: &message}
}

// VoiceJobStore holds voice jobs for a TTL counted from creation. Jobs past the TTL
// are unreachable even when they completed successfully.
type VoiceJobStore struct {
	mu    sync.Mutex
	cache *cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewVoiceJobStore creates a job store with the given TTL.
func NewVoiceJobStore(ttl time.Duration) *VoiceJobStore {
	return &VoiceJobStore{
		cache: cache.New(ttl, 0),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Create evicts expired jobs and inserts a new pending job.
func (s *VoiceJobStore) Create() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()
	now := s.now()
	id := uuid.New().String()
	s.cache.Set(id, &models.VoiceJob{
		ID:        id,
		Status:    models.VoiceJobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, s.ttl)
	return id
}

// Update merges u into the job. A missing job is recreated with a fresh timestamp.
// A status that would move the job backward is ignored.
func (s *VoiceJobStore) Update(id string, u JobUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	job := &models.VoiceJob{ID: id, Status: models.VoiceJobPending, CreatedAt: now}
	if value, found := s.cache.Get(id); found {
		existing := *value.(*models.VoiceJob)
		job = &existing
	} else {
		log.Printf("⚠️  [VOICE-JOB] Update for unknown job %s, recreating", id)
	}

	// A finished job is final: neither its status nor its result or error change.
	if job.Status.IsTerminal() {
		log.Printf("⚠️  [VOICE-JOB] Ignoring update for finished job %s (%s)", id, job.Status)
		return
	}

	if u.Status != nil {
		if u.Status.Rank() < job.Status.Rank() {
			log.Printf("⚠️  [VOICE-JOB] Ignoring status %s for job %s (currently %s)", *u.Status, id, job.Status)
		} else {
			job.Status = *u.Status
		}
	}
	if u.Result != nil {
		job.Result = u.Result
	}
	if u.Error != nil {
		job.Error = u.Error
	}
	job.UpdatedAt = now

	remaining := s.ttl - now.Sub(job.CreatedAt)
	if remaining <= 0 {
		s.cache.Delete(id)
		return
	}
	s.cache.Set(id, job, remaining)
}

// Get evicts expired jobs and returns a snapshot of the job.
func (s *VoiceJobStore) Get(id string) (*models.VoiceJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()
	value, found := s.cache.Get(id)
	if !found {
		return nil, ErrJobNotFound
	}
	snapshot := *value.(*models.VoiceJob)
	return &snapshot, nil
}

// DeleteExpired evicts expired jobs and returns how many were removed.
func (s *VoiceJobStore) DeleteExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked()
}

// Len returns the number of stored jobs, expired or not.
func (s *VoiceJobStore) Len() int {
	return s.cache.ItemCount()
}

// TTL returns the job time-to-live.
func (s *VoiceJobStore) TTL() time.Duration {
	return s.ttl
}

func (s *VoiceJobStore) sweepLocked() int {
	now := s.now()
	removed := 0
	for id, item := range s.cache.Items() {
		job, ok := item.Object.(*models.VoiceJob)
		if !ok || now.Sub(job.CreatedAt) > s.ttl {
			s.cache.Delete(id)
			removed++
		}
	}
	return removed
}
