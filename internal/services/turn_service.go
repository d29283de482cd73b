package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"voxareflect/internal/llm"
	"voxareflect/internal/logging"
	"voxareflect/internal/models"
	"voxareflect/internal/phases"
	"voxareflect/internal/prompts"
	"voxareflect/internal/store"
)

// TurnService runs chat turns and the conversation housekeeping around them.
// Every read-modify-write of a user document holds the user's lock.
type TurnService struct {
	store       store.ConversationStore
	locker      store.UserLocker
	pipeline    *ReflectionPipeline
	rules       *phases.RuleTable
	speech      *SpeechService
	model       LanguageModel
	llmModel    string
	metrics     *Metrics
	turnTimeout time.Duration
	now         func() time.Time
}

// DefaultTurnTimeout bounds the model work of one turn when the config leaves it unset.
const DefaultTurnTimeout = 3 * time.Minute

// TurnServiceConfig wires a TurnService.
type TurnServiceConfig struct {
	Store    store.ConversationStore
	Locker   store.UserLocker
	Pipeline *ReflectionPipeline
	Rules    *phases.RuleTable
	Speech   *SpeechService
	Model    LanguageModel
	LLMModel string
	Metrics  *Metrics
	// TurnTimeout bounds the model calls of one operation. The user lock is held
	// for at most this long plus the store round trips.
	TurnTimeout time.Duration
}

// NewTurnService creates a turn service.
func NewTurnService(cfg TurnServiceConfig) *TurnService {
	return &TurnService{
		store:    cfg.Store,
		locker:   cfg.Locker,
		pipeline: cfg.Pipeline,
		rules:    cfg.Rules,
		speech:   cfg.Speech,
		model:    cfg.Model,
		llmModel: cfg.LLMModel,
		metrics:  cfg.Metrics,
		now:      time.Now,

		turnTimeout: cmp.Or(cfg.TurnTimeout, DefaultTurnTimeout),
	}
}

// bounded derives the context model calls run under. Persistence keeps the caller's
// context so a timed-out turn is still saved.
func (s *TurnService) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.turnTimeout)
}

// mutate runs fn on the user's document under the user lock and saves it when fn
// succeeds. Nothing is written when fn or the save fails.
func (s *TurnService) mutate(ctx context.Context, username string, fn func(doc *models.UserDocument) error) error {
	unlock, err := s.locker.Lock(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to lock user %s: %w", username, err)
	}
	defer unlock()

	doc, err := s.store.Load(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to load conversations: %w", err)
	}
	if err := fn(doc); err != nil {
		return err
	}
	if err := s.store.Save(ctx, doc); err != nil {
		return fmt.Errorf("failed to save conversations: %w", err)
	}
	return nil
}

// appliedTurn is what a persisted turn hands to the envelope.
type appliedTurn struct {
	conv   models.Conversation
	rule   phases.Rule
	output *TurnOutput
	reply  string
}

// ProcessTurn runs one chat turn. It always returns a complete envelope; Success is
// false only when the conversation could not be loaded or saved.
func (s *TurnService) ProcessTurn(ctx context.Context, req *models.TurnRequest) *models.TurnResult {
	start := s.now()
	conversationID := req.ConversationIDOrNew()
	logger := logging.WithTurn(req.Username, conversationID)

	preset := phases.DefaultPreset
	hasOverride := strings.TrimSpace(req.TurnPreset) != ""
	if hasOverride {
		preset = phases.NormalizePreset(req.TurnPreset)
	}

	var applied appliedTurn
	err := s.mutate(ctx, req.Username, func(doc *models.UserDocument) error {
		var conv *models.Conversation
		if conversationID != models.NewConversationID {
			conv = doc.Find(conversationID)
		}
		isNew := conv == nil
		if isNew {
			conv = models.NewConversation(doc.NextConversationID(), req.Language, req.StudyGroup, preset, start)
		} else if !hasOverride {
			preset = conv.Preset()
		}

		phase := conv.CurrentPhase()
		rule := s.rules.Lookup(phase, preset)
		counters := conv.Counters()

		modelCtx, cancel := s.bounded(ctx)
		defer cancel()
		output := s.pipeline.Run(modelCtx, TurnInput{
			Phase:          phase,
			Rule:           rule,
			PhaseTurns:     conv.CurrentPhaseTurns,
			DecisionTurns:  counters.NextTurn(phase),
			Message:        req.NewMessage,
			ReflectionText: req.CurrentText,
			History:        conv.Messages,
			StylePreset:    req.StylePreset,
			Language:       req.Language,
			HasSummary:     conv.Summary != nil,
			Logger:         logger,
		})

		reply := output.Reply
		if req.NewMessage == prompts.StarterMessage(req.Language) {
			reply = prompts.StarterReplyPrefix(req.Language) + reply
		}

		conv.TurnPreset = string(preset)
		if len(strings.TrimSpace(req.CurrentText)) > 1 {
			conv.Text = req.CurrentText
		}
		conv.Messages = append(conv.Messages,
			models.NewMessage(models.SenderUser, req.NewMessage, nil, start),
			models.NewMessage(models.SenderSystem, reply, nil, start),
		)
		if output.Summary != nil {
			conv.Summary = output.Summary
			conv.Messages = append(conv.Messages, models.NewMessage(models.SenderSystem, *output.Summary, nil, start))
			log.Printf("📝 [TURN] Stored reflection summary (%d chars)", len(*output.Summary))
		}
		conv.ApplyDecision(output.Decision)
		if isNew {
			doc.Conversations = append(doc.Conversations, conv)
		}

		applied = appliedTurn{conv: *conv, rule: rule, output: output, reply: reply}
		return nil
	})
	if err != nil {
		logger.Error("chat turn failed", "error", err)
		log.Printf("❌ [TURN] Chat turn for %s failed: %v", req.Username, err)
		s.metrics.RecordTurn(false, s.now().Sub(start).Seconds())
		return s.failureResult(req, preset, start)
	}

	decision := applied.output.Decision
	s.metrics.RecordDecision(decision)
	log.Printf("🔀 [TURN] Stage update: %s -> %s (suggestion: %s, reason: %s)",
		decision.From, decision.To, applied.output.Suggestion, decision.Reason)

	ttsStart := s.now()
	ttsCtx, cancel := s.bounded(ctx)
	defer cancel()
	tts := s.speech.Speak(ttsCtx, applied.reply, req.StylePreset, req.RequestedVoice())
	timings := req.Timings()
	for key, value := range applied.output.Timings() {
		timings[key] = value
	}
	timings["tts"] = s.now().Sub(ttsStart).Seconds()
	logTimings(timings)

	conv := applied.conv
	result := &models.TurnResult{
		Success:       true,
		Result:        applied.reply,
		AssistantText: applied.reply,
		TTSEligible:   strings.TrimSpace(applied.reply) != "",
		TTS:           tts,
		Buttons:       []string{},
		Video:         "",
		Title:         conv.Title,
		Time:          models.UnixSeconds(start),
		Text:          conv.Text,
		Stage:         conv.Stage,
		ID:            conv.ID,
		TurnPreset:    string(preset),
		Phase:         phases.SnapshotOf(conv.Stage),
		PhaseMeta: models.PhaseMeta{
			Suggestion:          string(applied.output.Suggestion),
			CalculatedNextPhase: calculatedNextPhase(applied.output),
			TurnPreset:          string(preset),
			TurnRules:           applied.rule,
			TransitionReason:    string(decision.Reason),
		},
		ReflectionSummary: conv.Summary,
		SummaryMessage:    applied.output.Summary,
	}
	s.metrics.RecordTurn(true, s.now().Sub(start).Seconds())
	return result
}

// calculatedNextPhase is the successor suggested by the classifier, or the phase
// the turn started in when it did not suggest advancing.
func calculatedNextPhase(output *TurnOutput) *string {
	next := string(output.Decision.From)
	if output.SuggestedNext != "" {
		next = string(output.SuggestedNext)
	}
	return &next
}

func (s *TurnService) failureResult(req *models.TurnRequest, preset phases.TurnPreset, now time.Time) *models.TurnResult {
	return &models.TurnResult{
		Success:    false,
		TTS:        s.speech.Info(req.StylePreset, req.RequestedVoice()),
		Buttons:    []string{},
		Time:       models.UnixSeconds(now),
		TurnPreset: string(preset),
		Phase:      phases.SnapshotOf(""),
		PhaseMeta: models.PhaseMeta{
			Suggestion: string(phases.SuggestNone),
			TurnPreset: string(preset),
			TurnRules:  s.rules.Lookup(phases.First(), preset),
		},
	}
}

var timingLabels = []struct{ key, label string }{
	{"transcription", "Whisper"},
	{"classification", "Classifier"},
	{"response_generation", "Response"},
	{"tts", "TTS"},
}

func logTimings(timings map[string]float64) {
	var parts []string
	for _, t := range timingLabels {
		if value, ok := timings[t.key]; ok {
			parts = append(parts, fmt.Sprintf("%s: %.3fs", t.label, value))
		}
	}
	if len(parts) == 0 {
		log.Printf("⏱️  [TURN] Timing summary => no timing data collected")
		return
	}
	log.Printf("⏱️  [TURN] Timing summary => %s", strings.Join(parts, " | "))
}

// ListConversations returns every conversation of username with a fresh phase snapshot.
func (s *TurnService) ListConversations(ctx context.Context, username string) ([]models.ConversationView, error) {
	doc, err := s.store.Load(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}
	views := make([]models.ConversationView, 0, len(doc.Conversations))
	for _, conv := range doc.Conversations {
		views = append(views, conv.View())
	}
	return views, nil
}

// AppendExchange appends a user/system message pair without calling the model.
func (s *TurnService) AppendExchange(ctx context.Context, username string, id int, userMessage, systemMessage string, buttons []string) (*models.Conversation, error) {
	var updated models.Conversation
	err := s.mutate(ctx, username, func(doc *models.UserDocument) error {
		conv := doc.Find(id)
		if conv == nil {
			return store.ErrConversationNotFound
		}
		now := s.now()
		conv.Messages = append(conv.Messages,
			models.NewMessage(models.SenderUser, userMessage, nil, now),
			models.NewMessage(models.SenderSystem, systemMessage, buttons, now),
		)
		updated = *conv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// UpdateTurnPreset stores the normalised preset on a conversation and returns it.
func (s *TurnService) UpdateTurnPreset(ctx context.Context, username string, id int, preset string) (phases.TurnPreset, error) {
	normalized := phases.NormalizePreset(preset)
	err := s.mutate(ctx, username, func(doc *models.UserDocument) error {
		conv := doc.Find(id)
		if conv == nil {
			return store.ErrConversationNotFound
		}
		conv.TurnPreset = string(normalized)
		return nil
	})
	return normalized, err
}

// CreateTitle asks the model for a short title for text and stores it.
func (s *TurnService) CreateTitle(ctx context.Context, username string, id int, text, language string) (string, error) {
	var title string
	err := s.mutate(ctx, username, func(doc *models.UserDocument) error {
		conv := doc.Find(id)
		if conv == nil {
			return store.ErrConversationNotFound
		}
		modelCtx, cancel := s.bounded(ctx)
		defer cancel()
		answer, err := s.ask(modelCtx, prompts.TitlePrompt(text, language))
		if err != nil {
			return fmt.Errorf("failed to generate title: %w", err)
		}
		title = strings.Trim(strings.TrimSpace(answer), `"'`)
		conv.Title = title
		return nil
	})
	if err != nil {
		return "", err
	}
	return title, nil
}

// Feedback is the result of DetermineFeedback.
type Feedback struct {
	Text     string
	NewStage phases.Phase
}

// DetermineFeedback walks the stages from currentStage and asks whether text covers
// each one. The first missing stage yields its guiding question. When every stage is
// covered the result is done with free-form feedback.
func (s *TurnService) DetermineFeedback(ctx context.Context, text, language, currentStage string) (*Feedback, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	start := max(0, phases.Index(phases.Phase(currentStage)))
	start = min(start, phases.TotalStages)

	for _, stage := range phases.Sequence[start:phases.TotalStages] {
		answer, err := s.ask(ctx, prompts.StagePresencePrompt(text, stage))
		if err != nil {
			return nil, fmt.Errorf("failed to check stage %s: %w", stage, err)
		}
		if !prompts.AnswerIsYes(answer) {
			return &Feedback{Text: prompts.GuidingQuestion(stage, language), NewStage: stage}, nil
		}
	}

	feedback, err := s.ask(ctx, prompts.FinalFeedbackPrompt(text, language))
	if err != nil {
		return nil, fmt.Errorf("failed to generate feedback: %w", err)
	}
	return &Feedback{Text: strings.TrimSpace(feedback), NewStage: phases.Done}, nil
}

func (s *TurnService) ask(ctx context.Context, prompt string) (string, error) {
	return s.model.Chat(ctx, s.llmModel, []llm.ChatMessage{{Role: llm.RoleUser, Content: prompt}})
}

// IsNotFound reports whether err means the conversation does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrConversationNotFound)
}
