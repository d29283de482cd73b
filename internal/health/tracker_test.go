package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker(clock *fakeClock) *Tracker {
	tracker := NewTracker(2, time.Minute)
	tracker.now = clock.now
	return tracker
}

func TestCooldownFor(t *testing.T) {
	assert.Equal(t, 24*time.Hour, CooldownFor(429, "You exceeded your current quota, insufficient_quota"))
	assert.Equal(t, 6*time.Hour, CooldownFor(429, "Rate limit reached: requests per day"))
	assert.Equal(t, 30*time.Minute, CooldownFor(429, "audio seconds per hour exceeded"))
	assert.Equal(t, 2*time.Minute, CooldownFor(429, "slow down"))
	assert.True(t, IsQuotaError(429, ""))
	assert.True(t, IsQuotaError(400, "rate limit exceeded"))
	assert.False(t, IsQuotaError(503, "overloaded"))
}

func TestUnknownProviderIsAvailable(t *testing.T) {
	tracker := NewTracker(0, 0)
	assert.True(t, tracker.Available(CapabilityTranscription, "Groq"))

	// Outcomes for unregistered providers are ignored.
	tracker.MarkFailure(CapabilityTranscription, "Groq", "boom", 429)
	assert.True(t, tracker.Available(CapabilityTranscription, "Groq"))
	assert.Empty(t, tracker.Snapshot())
}

func TestQuotaErrorStartsCooldown(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tracker := newTestTracker(clock)
	tracker.Register(CapabilityTranscription, "Groq", 2)

	tracker.MarkFailure(CapabilityTranscription, "Groq", "rate limit", 429)
	assert.False(t, tracker.Available(CapabilityTranscription, "Groq"))

	snapshot := tracker.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, StatusCooldown, snapshot[0].Status)
	assert.Equal(t, clock.t.Add(2*time.Minute), snapshot[0].CooldownUntil)

	clock.advance(2 * time.Minute)
	assert.True(t, tracker.Available(CapabilityTranscription, "Groq"))
	assert.Equal(t, StatusUnknown, tracker.Snapshot()[0].Status)
}

func TestRepeatedFailuresMarkUnhealthy(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tracker := newTestTracker(clock)
	tracker.Register(CapabilityTranscription, "OpenAI", 1)

	tracker.MarkFailure(CapabilityTranscription, "OpenAI", "connection reset", 0)
	assert.True(t, tracker.Available(CapabilityTranscription, "OpenAI"))

	tracker.MarkFailure(CapabilityTranscription, "OpenAI", "connection reset", 0)
	assert.False(t, tracker.Available(CapabilityTranscription, "OpenAI"))
	assert.Equal(t, StatusUnhealthy, tracker.Snapshot()[0].Status)
	assert.Equal(t, 2, tracker.Snapshot()[0].FailureCount)

	clock.advance(time.Minute)
	assert.True(t, tracker.Available(CapabilityTranscription, "OpenAI"))

	tracker.MarkHealthy(CapabilityTranscription, "OpenAI")
	h := tracker.Snapshot()[0]
	assert.Equal(t, StatusHealthy, h.Status)
	assert.Zero(t, h.FailureCount)
	assert.Empty(t, h.LastError)
	assert.Equal(t, clock.t, h.LastSuccessAt)
}

func TestCapabilitiesAreTrackedSeparately(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tracker := newTestTracker(clock)
	tracker.Register(CapabilityTranscription, "OpenAI", 1)
	tracker.Register(CapabilitySpeech, "OpenAI", 1)

	tracker.MarkFailure(CapabilityTranscription, "OpenAI", "insufficient_quota", 429)
	assert.False(t, tracker.Available(CapabilityTranscription, "OpenAI"))
	assert.True(t, tracker.Available(CapabilitySpeech, "OpenAI"))

	snapshot := tracker.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, CapabilitySpeech, snapshot[0].Capability)
	assert.Equal(t, CapabilityTranscription, snapshot[1].Capability)
	assert.Equal(t, clock.t.Add(24*time.Hour), snapshot[1].CooldownUntil)
}

func TestLastErrorIsTruncated(t *testing.T) {
	tracker := NewTracker(5, time.Minute)
	tracker.Register(CapabilitySpeech, "HTTP", 1)

	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	tracker.MarkFailure(CapabilitySpeech, "HTTP", string(long), 500)
	assert.Len(t, tracker.Snapshot()[0].LastError, 303)
}
