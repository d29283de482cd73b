package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"voxareflect/internal/phases"
)

// Metrics holds the custom Prometheus metrics of the reflection coach.
// A nil *Metrics records nothing.
type Metrics struct {
	// Turn metrics
	Turns       *prometheus.CounterVec
	TurnLatency prometheus.Histogram

	// Phase machine metrics
	PhaseTransitions      *prometheus.CounterVec
	ClassifierSuggestions *prometheus.CounterVec

	// Pipeline metrics
	PipelineFallbacks prometheus.Counter
	Summaries         *prometheus.CounterVec

	// Voice and TTS metrics
	VoiceJobs  *prometheus.CounterVec
	TTSResults *prometheus.CounterVec
}

// NewMetrics registers the metrics with reg. Cache sizes are exported as gauge funcs
// when the caches are given.
func NewMetrics(reg prometheus.Registerer, audioCache *TTSCache, jobs *VoiceJobStore) *Metrics {
	factory := promauto.With(reg)

	metrics := &Metrics{
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxareflect_turns_total",
			Help: "Total number of chat turns by outcome",
		}, []string{"outcome"}), // outcome: "success" or "failure"

		// Turn latency histogram
		TurnLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxareflect_turn_duration_seconds",
			Help:    "Chat turn latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120}, // classifier + reply + summary can take a while
		}),

		PhaseTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxareflect_phase_decisions_total",
			Help: "Phase decisions by origin phase, resulting phase and reason",
		}, []string{"from", "to", "reason"}),

		ClassifierSuggestions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxareflect_classifier_suggestions_total",
			Help: "Classifier suggestions by value",
		}, []string{"suggestion"}),

		PipelineFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxareflect_pipeline_fallbacks_total",
			Help: "Turns answered by the legacy chat completion fallback",
		}),

		Summaries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxareflect_summaries_total",
			Help: "Reflection summaries by result",
		}, []string{"result"}),

		VoiceJobs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxareflect_voice_jobs_total",
			Help: "Voice jobs by terminal status",
		}, []string{"status"}),

		TTSResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxareflect_tts_results_total",
			Help: "Speech synthesis attempts by result",
		}, []string{"result"}),
	}

	if audioCache != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "voxareflect_tts_cache_entries",
			Help: "Audio clips currently held in the TTS cache",
		}, func() float64 { return float64(audioCache.Len()) })
	}
	if jobs != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "voxareflect_voice_job_entries",
			Help: "Voice jobs currently held in the job store",
		}, func() float64 { return float64(jobs.Len()) })
	}

	return metrics
}

// RecordTurn records a finished turn.
func (m *Metrics) RecordTurn(success bool, seconds float64) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.Turns.WithLabelValues(outcome).Inc()
	m.TurnLatency.Observe(seconds)
}

// RecordDecision records a phase decision.
func (m *Metrics) RecordDecision(d phases.Decision) {
	if m == nil {
		return
	}
	m.PhaseTransitions.WithLabelValues(string(d.From), string(d.To), string(d.Reason)).Inc()
}

// RecordSuggestion records a classifier suggestion.
func (m *Metrics) RecordSuggestion(s phases.Suggestion) {
	if m == nil {
		return
	}
	m.ClassifierSuggestions.WithLabelValues(string(s)).Inc()
}

// RecordFallback records a legacy fallback reply.
func (m *Metrics) RecordFallback() {
	if m == nil {
		return
	}
	m.PipelineFallbacks.Inc()
}

// RecordSummary records a summary stage result.
func (m *Metrics) RecordSummary(status StageStatus) {
	if m == nil {
		return
	}
	m.Summaries.WithLabelValues(string(status)).Inc()
}

// RecordVoiceJob records a voice job reaching a terminal status.
func (m *Metrics) RecordVoiceJob(status string) {
	if m == nil {
		return
	}
	m.VoiceJobs.WithLabelValues(status).Inc()
}

// RecordTTS records a synthesis attempt.
func (m *Metrics) RecordTTS(result string) {
	if m == nil {
		return
	}
	m.TTSResults.WithLabelValues(result).Inc()
}
