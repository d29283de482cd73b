package health

import (
	"log"
	"sort"
	"sync"
	"time"
)

const (
	defaultFailureThreshold = 3
	defaultRetryAfter       = 5 * time.Minute
)

// Tracker records passive health of upstream providers from the outcome of real
// calls. Quota errors put a provider in cooldown; repeated other failures mark it
// unhealthy until retryAfter has passed.
type Tracker struct {
	mu               sync.RWMutex
	entries          map[string]*ProviderHealth // key: "capability:name"
	failureThreshold int
	retryAfter       time.Duration
	now              func() time.Time
}

// NewTracker creates a tracker. Non-positive arguments select the defaults.
func NewTracker(failureThreshold int, retryAfter time.Duration) *Tracker {
	if failureThreshold <= 0 {
		failureThreshold = defaultFailureThreshold
	}
	if retryAfter <= 0 {
		retryAfter = defaultRetryAfter
	}
	return &Tracker{
		entries:          make(map[string]*ProviderHealth),
		failureThreshold: failureThreshold,
		retryAfter:       retryAfter,
		now:              time.Now,
	}
}

func entryKey(capability Capability, name string) string {
	return string(capability) + ":" + name
}

// Register adds a provider. Registering twice keeps the existing entry.
func (t *Tracker) Register(capability Capability, name string, priority int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := entryKey(capability, name)
	if _, exists := t.entries[key]; exists {
		return
	}
	t.entries[key] = &ProviderHealth{
		Name:       name,
		Capability: capability,
		Status:     StatusUnknown,
		Priority:   priority,
	}
	log.Printf("[HEALTH] Registered %s provider %s priority=%d", capability, name, priority)
}

// Available reports whether a provider should be called. Unknown providers are
// assumed available.
func (t *Tracker) Available(capability Capability, name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	h, exists := t.entries[entryKey(capability, name)]
	if !exists {
		return true
	}
	return t.availableLocked(h)
}

func (t *Tracker) availableLocked(h *ProviderHealth) bool {
	switch h.Status {
	case StatusCooldown:
		return !t.now().Before(h.CooldownUntil)
	case StatusUnhealthy:
		return !t.now().Before(h.LastChecked.Add(t.retryAfter))
	}
	return true
}

// MarkHealthy records a successful call
func (t *Tracker) MarkHealthy(capability Capability, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, exists := t.entries[entryKey(capability, name)]
	if !exists {
		return
	}
	recovered := h.Status == StatusUnhealthy || h.Status == StatusCooldown
	now := t.now()
	h.Status = StatusHealthy
	h.FailureCount = 0
	h.LastError = ""
	h.LastSuccessAt = now
	h.LastChecked = now
	h.CooldownUntil = time.Time{}

	if recovered {
		log.Printf("[HEALTH] %s provider %s recovered", capability, name)
	}
}

// MarkFailure records a failed call. statusCode is 0 when no HTTP response arrived.
func (t *Tracker) MarkFailure(capability Capability, name string, errMsg string, statusCode int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, exists := t.entries[entryKey(capability, name)]
	if !exists {
		return
	}
	now := t.now()
	h.FailureCount++
	h.LastError = truncate(errMsg, 300)
	h.LastChecked = now

	if IsQuotaError(statusCode, errMsg) {
		h.Status = StatusCooldown
		h.CooldownUntil = now.Add(CooldownFor(statusCode, errMsg))
		log.Printf("[HEALTH] %s provider %s in COOLDOWN until %s: %s",
			capability, name, h.CooldownUntil.Format(time.RFC3339), truncate(errMsg, 100))
		return
	}
	if h.FailureCount >= t.failureThreshold {
		h.Status = StatusUnhealthy
		log.Printf("[HEALTH] %s provider %s marked UNHEALTHY after %d failures: %s",
			capability, name, h.FailureCount, truncate(errMsg, 200))
		return
	}
	log.Printf("[HEALTH] %s provider %s failure %d/%d: %s",
		capability, name, h.FailureCount, t.failureThreshold, truncate(errMsg, 200))
}

// Snapshot returns every entry, ordered by capability then name.
func (t *Tracker) Snapshot() []ProviderHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]ProviderHealth, 0, len(t.entries))
	for _, h := range t.entries {
		entry := *h
		if entry.Status == StatusCooldown && t.availableLocked(h) {
			entry.Status = StatusUnknown
		}
		result = append(result, entry)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Capability != result[j].Capability {
			return result[i].Capability < result[j].Capability
		}
		return result[i].Name < result[j].Name
	})
	return result
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
