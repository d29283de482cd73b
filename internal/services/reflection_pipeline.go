package services

import (
	"context"
	"log"
	"log/slog"
	"strings"
	"time"

	"voxareflect/internal/llm"
	"voxareflect/internal/logging"
	"voxareflect/internal/models"
	"voxareflect/internal/phases"
	"voxareflect/internal/prompts"
)

// LanguageModel is the model backend used by the coach.
type LanguageModel interface {
	Instruct(ctx context.Context, req llm.InstructRequest) (string, error)
	Chat(ctx context.Context, model string, messages []llm.ChatMessage) (string, error)
}

// StageStatus tags the result of one pipeline stage.
type StageStatus string

const (
	StageOK       StageStatus = "ok"
	StageDegraded StageStatus = "degraded"
	StageSkipped  StageStatus = "skipped"
	StageFailed   StageStatus = "failed"
)

// Pipeline stages.
const (
	StageClassify  = "classify"
	StageGenerate  = "generate"
	StageLegacy    = "legacy"
	StageSummarize = "summarize"
)

// StageResult is what one stage reports back.
type StageResult struct {
	Stage    string
	Status   StageStatus
	Duration time.Duration
	Err      error
}

// TurnInput is everything the pipeline needs to know about a turn. History is the
// conversation before this turn.
type TurnInput struct {
	Phase          phases.Phase
	Rule           phases.Rule
	PhaseTurns     int // turns already spent in Phase
	DecisionTurns  int // turn number of this turn within Phase
	Message        string
	ReflectionText string
	History        []models.Message
	StylePreset    string
	Language       string
	HasSummary     bool
	Logger         *slog.Logger
}

// TurnOutput is the pipeline's answer for one turn.
type TurnOutput struct {
	Suggestion    phases.Suggestion
	SuggestedNext phases.Phase
	Decision      phases.Decision
	Reply         string
	Summary       *string
	Stages        []StageResult
}

// Timings returns stage durations in seconds under the names used in the turn log.
func (o *TurnOutput) Timings() map[string]float64 {
	timings := map[string]float64{}
	for _, stage := range o.Stages {
		if stage.Status == StageSkipped {
			continue
		}
		switch stage.Stage {
		case StageClassify:
			timings["classification"] = stage.Duration.Seconds()
		case StageGenerate, StageLegacy:
			timings["response_generation"] += stage.Duration.Seconds()
		case StageSummarize:
			timings["summary"] = stage.Duration.Seconds()
		}
	}
	return timings
}

// Stage returns the result of the named stage.
func (o *TurnOutput) Stage(name string) (StageResult, bool) {
	for _, stage := range o.Stages {
		if stage.Stage == name {
			return stage, true
		}
	}
	return StageResult{}, false
}

// ReflectionPipeline runs classify, generate (with legacy fallback) and summarize.
type ReflectionPipeline struct {
	model           LanguageModel
	coachModel      string
	classifierModel string
	catalog         *phases.Catalog
	metrics         *Metrics
}

// NewReflectionPipeline creates a pipeline.
func NewReflectionPipeline(model LanguageModel, coachModel, classifierModel string, catalog *phases.Catalog, metrics *Metrics) *ReflectionPipeline {
	if classifierModel == "" {
		classifierModel = coachModel
	}
	return &ReflectionPipeline{
		model:           model,
		coachModel:      coachModel,
		classifierModel: classifierModel,
		catalog:         catalog,
		metrics:         metrics,
	}
}

// Run processes one turn. It never fails: upstream problems degrade the stages.
func (p *ReflectionPipeline) Run(ctx context.Context, in TurnInput) *TurnOutput {
	logger := in.Logger
	if logger == nil {
		logger = slog.Default()
	}
	phase := in.Phase
	if phase == "" {
		phase = phases.First()
	}
	out := &TurnOutput{}

	suggestion, classify := p.classify(ctx, in, phase, logging.WithStage(logger, string(StageClassify)))
	out.Stages = append(out.Stages, classify)
	out.Suggestion = suggestion
	p.metrics.RecordSuggestion(suggestion)
	if suggestion == phases.SuggestAdvance {
		out.SuggestedNext = phases.Successor(phase)
	}
	out.Decision = phases.Decide(phase, suggestion, out.SuggestedNext, in.DecisionTurns, in.Rule)

	reply, generate := p.generate(ctx, in, out.Decision.To)
	out.Stages = append(out.Stages, generate)
	if generate.Status == StageFailed {
		logging.WithStage(logger, string(StageGenerate)).Warn("reply generation failed, using legacy chat", "error", generate.Err)
		log.Printf("⚠️  [PIPELINE] Reply generation failed, falling back to legacy chat: %v", generate.Err)
		p.metrics.RecordFallback()

		var legacy StageResult
		reply, legacy = p.legacy(ctx, in, phase)
		out.Stages = append(out.Stages, legacy)

		// No transition on a fallback turn beyond what the turn rule forces.
		out.Suggestion = phases.SuggestNone
		out.SuggestedNext = ""
		out.Decision = phases.Decide(phase, phases.SuggestNone, "", in.DecisionTurns, in.Rule)
		out.Reply = reply
		out.Stages = append(out.Stages, StageResult{Stage: StageSummarize, Status: StageSkipped})
		return out
	}
	out.Reply = reply

	summary, summarize := p.summarize(ctx, in, out.Decision, reply)
	out.Stages = append(out.Stages, summarize)
	if summarize.Status != StageSkipped {
		p.metrics.RecordSummary(summarize.Status)
	}
	if summarize.Status == StageFailed {
		logging.WithStage(logger, string(StageSummarize)).Warn("summary failed", "error", summarize.Err)
	}
	out.Summary = summary
	return out
}

func (p *ReflectionPipeline) classify(ctx context.Context, in TurnInput, phase phases.Phase, logger *slog.Logger) (phases.Suggestion, StageResult) {
	result := StageResult{Stage: StageClassify}
	if phase.IsTerminal() || in.PhaseTurns < in.Rule.Min {
		result.Status = StageSkipped
		return phases.SuggestStay, result
	}

	start := time.Now()
	instructions := prompts.ClassifierInstructions(prompts.ClassifierContext{
		Phase:        phase,
		Definition:   p.catalog.Definition(phase),
		Rule:         in.Rule,
		TurnsElapsed: in.PhaseTurns,
		Message:      in.Message,
		History:      in.History,
	})
	output, err := p.model.Instruct(ctx, llm.InstructRequest{
		Model:        p.classifierModel,
		Instructions: instructions,
		Input:        in.Message,
		Effort:       llm.EffortLow,
		Schema:       llm.PhaseVerdictSchema,
	})
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StageDegraded
		result.Err = err
		logger.Warn("classifier call failed", "error", err)
		return phases.SuggestNone, result
	}

	var verdict llm.PhaseVerdict
	if err := llm.DecodeJSON(output, &verdict); err != nil {
		result.Status = StageDegraded
		result.Err = err
		logger.Warn("malformed classifier output", "output", output, "error", err)
		return phases.SuggestNone, result
	}
	suggestion := phases.ParseSuggestion(verdict.Suggestion)
	result.Status = StageOK
	if suggestion == phases.SuggestNone {
		result.Status = StageDegraded
		logger.Warn("unexpected classifier suggestion", "suggestion", verdict.Suggestion)
	}
	return suggestion, result
}

// coachInstructions is the coach prompt for phase with the reflection text attached.
func (p *ReflectionPipeline) coachInstructions(in TurnInput, phase phases.Phase) string {
	turns := in.PhaseTurns
	if phase != in.Phase {
		turns = 0
	}
	instructions := prompts.CoachInstructions(prompts.CoachContext{
		Phase:        phase,
		Definition:   p.catalog.Definition(phase),
		StylePreset:  in.StylePreset,
		Language:     in.Language,
		TurnsElapsed: turns,
	})
	return prompts.WithReflectionText(instructions, in.ReflectionText)
}

func (p *ReflectionPipeline) generate(ctx context.Context, in TurnInput, resolved phases.Phase) (string, StageResult) {
	result := StageResult{Stage: StageGenerate}
	instructions := p.coachInstructions(in, resolved) + prompts.HistoryBlock(in.History)
	if resolved.IsTerminal() {
		instructions += prompts.FinalTurnInstructions
	}

	start := time.Now()
	reply, err := p.model.Instruct(ctx, llm.InstructRequest{
		Model:        p.coachModel,
		Instructions: instructions,
		Input:        in.Message,
		Effort:       llm.EffortLow,
	})
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StageFailed
		result.Err = err
		return "", result
	}
	result.Status = StageOK
	return strings.TrimSpace(reply), result
}

// legacy answers with a single chat completion over the pre-turn prompt.
func (p *ReflectionPipeline) legacy(ctx context.Context, in TurnInput, phase phases.Phase) (string, StageResult) {
	result := StageResult{Stage: StageLegacy}
	messages := []llm.ChatMessage{{Role: llm.RoleSystem, Content: p.coachInstructions(in, phase)}}
	for _, msg := range prompts.ReplyHistory(in.History) {
		role := llm.RoleAssistant
		if msg.Sender == models.SenderUser {
			role = llm.RoleUser
		}
		messages = append(messages, llm.ChatMessage{Role: role, Content: msg.Content})
	}
	messages = append(messages, llm.ChatMessage{Role: llm.RoleUser, Content: in.Message})

	start := time.Now()
	reply, err := p.model.Chat(ctx, p.coachModel, messages)
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StageFailed
		result.Err = err
		log.Printf("❌ [PIPELINE] Legacy chat failed, replying empty: %v", err)
		return "", result
	}
	result.Status = StageDegraded
	return strings.TrimSpace(reply), result
}

// summarize runs when the turn ends in done and there is something to summarise.
// A stored summary is not regenerated on later turns.
func (p *ReflectionPipeline) summarize(ctx context.Context, in TurnInput, decision phases.Decision, reply string) (*string, StageResult) {
	result := StageResult{Stage: StageSummarize}
	if !decision.To.IsTerminal() || (in.HasSummary && !decision.Advanced()) {
		result.Status = StageSkipped
		return nil, result
	}
	if strings.TrimSpace(in.ReflectionText) == "" && historyChars(in.History) == 0 {
		result.Status = StageSkipped
		return nil, result
	}

	start := time.Now()
	summary, err := p.model.Instruct(ctx, llm.InstructRequest{
		Model:        p.coachModel,
		Instructions: prompts.SummaryInstructions,
		Input:        prompts.SummaryInput(in.History, in.Message, reply, in.ReflectionText),
		Effort:       llm.EffortMedium,
	})
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StageFailed
		result.Err = err
		return nil, result
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		result.Status = StageDegraded
		return nil, result
	}
	result.Status = StageOK
	return &summary, result
}

func historyChars(history []models.Message) int {
	total := 0
	for _, msg := range history {
		total += len(msg.Content)
	}
	return total
}
