package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"voxareflect/internal/health"
	"voxareflect/internal/services"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	storeBackend string
	jobs         *services.VoiceJobStore
	audio        *services.TTSCache
	providers    *health.Tracker
}

// NewHealthHandler creates a new health handler. providers may be nil.
func NewHealthHandler(storeBackend string, jobs *services.VoiceJobStore, audio *services.TTSCache, providers *health.Tracker) *HealthHandler {
	return &HealthHandler{storeBackend: storeBackend, jobs: jobs, audio: audio, providers: providers}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	providers := []health.ProviderHealth{}
	if h.providers != nil {
		providers = h.providers.Snapshot()
	}
	return c.JSON(fiber.Map{
		"status":          "healthy",
		"store":           h.storeBackend,
		"voice_jobs":      h.jobs.Len(),
		"tts_cache_items": h.audio.Len(),
		"providers":       providers,
		"timestamp":       time.Now().Format(time.RFC3339),
	})
}
