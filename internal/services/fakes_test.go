package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"voxareflect/internal/audio"
	"voxareflect/internal/config"
	"voxareflect/internal/llm"
	"voxareflect/internal/models"
	"voxareflect/internal/phases"
	"voxareflect/internal/prompts"
	"voxareflect/internal/store"
)

// fakeModel answers classifier, coach, summary and chat calls from canned values.
type fakeModel struct {
	mu sync.Mutex

	verdict    string // raw classifier output
	verdictErr error
	reply      string
	replyErr   error
	summary    string
	summaryErr error
	chatReply  string
	chatErr    error
	chatFunc   func(prompt string) (string, error)

	classifierCalls int
	replyCalls      int
	summaryCalls    int
	chatCalls       int
	lastReply       llm.InstructRequest
	lastChat        []llm.ChatMessage
}

func (f *fakeModel) Instruct(_ context.Context, req llm.InstructRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case req.Schema != nil:
		f.classifierCalls++
		return f.verdict, f.verdictErr
	case req.Instructions == prompts.SummaryInstructions:
		f.summaryCalls++
		return f.summary, f.summaryErr
	default:
		f.replyCalls++
		f.lastReply = req
		return f.reply, f.replyErr
	}
}

func (f *fakeModel) Chat(_ context.Context, _ string, messages []llm.ChatMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatCalls++
	f.lastChat = messages
	if f.chatFunc != nil {
		return f.chatFunc(messages[len(messages)-1].Content)
	}
	return f.chatReply, f.chatErr
}

// failingStore fails every save.
type failingStore struct {
	*store.MemoryStore
}

func (failingStore) Save(context.Context, *models.UserDocument) error {
	return errors.New("disk full")
}

type fakeSynth struct {
	err error
}

func (f fakeSynth) Synthesize(context.Context, audio.SpeechRequest) (*audio.Speech, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &audio.Speech{Audio: []byte("mp3"), ContentType: "audio/mpeg"}, nil
}

func (fakeSynth) Mode() string { return config.TTSModeOpenAI }

func testTTSConfig() config.TTSConfig {
	return config.TTSConfig{
		Mode:                    config.TTSModeOpenAI,
		DefaultVoice:            "alloy",
		AllowedVoices:           []string{"alloy", "verse"},
		WarmInstruction:         "warm",
		ProfessionalInstruction: "calm",
	}
}

type fixture struct {
	model   *fakeModel
	store   store.ConversationStore
	cache   *TTSCache
	speech  *SpeechService
	service *TurnService
}

func newFixture(model *fakeModel, st store.ConversationStore, synth audio.Synthesizer) *fixture {
	if st == nil {
		st = store.NewMemoryStore()
	}
	if synth == nil {
		synth = fakeSynth{}
	}
	catalog := phases.DefaultCatalog()
	cache := NewTTSCache(5 * time.Minute)
	speech := NewSpeechService(synth, audio.NewStyleResolver(testTTSConfig()), cache, config.TTSModeOpenAI, nil)
	service := NewTurnService(TurnServiceConfig{
		Store:    st,
		Locker:   store.NewLocalLocker(),
		Pipeline: NewReflectionPipeline(model, "coach-model", "", catalog, nil),
		Rules:    phases.NewRuleTable(catalog),
		Speech:   speech,
		Model:    model,
		LLMModel: "coach-model",
	})
	return &fixture{model: model, store: st, cache: cache, speech: speech, service: service}
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
