package health

import "time"

// Capability identifies which upstream interaction a health entry covers
type Capability string

const (
	CapabilityTranscription Capability = "transcription"
	CapabilitySpeech        Capability = "speech"
)

// Status represents the health state of an upstream provider
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusCooldown  Status = "cooldown"
	StatusUnknown   Status = "unknown"
)

// ProviderHealth tracks one provider for one capability
type ProviderHealth struct {
	Name          string     `json:"name"`
	Capability    Capability `json:"capability"`
	Status        Status     `json:"status"`
	LastChecked   time.Time  `json:"lastChecked"`
	LastSuccessAt time.Time  `json:"lastSuccessAt"`
	FailureCount  int        `json:"failureCount"`
	LastError     string     `json:"lastError,omitempty"`
	CooldownUntil time.Time  `json:"cooldownUntil"`
	Priority      int        `json:"priority"` // higher is preferred
}
