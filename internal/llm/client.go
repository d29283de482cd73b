// Package llm is the OpenAI-backed language model used by the reflection coach.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"golang.org/x/time/rate"
)

// Effort is the reasoning effort requested from the model.
type Effort string

const (
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Config configures the client.
type Config struct {
	APIKey            string
	BaseURL           string
	RequestsPerSecond float64
	MaxRetries        int
	// RequestTimeout bounds each HTTP attempt. Zero selects DefaultRequestTimeout.
	RequestTimeout time.Duration
}

// DefaultRequestTimeout bounds one upstream call when Config leaves it unset.
const DefaultRequestTimeout = 60 * time.Second

// InstructRequest is one Responses API call: instructions plus a single input.
type InstructRequest struct {
	Model        string
	Instructions string
	Input        string
	Effort       Effort
	// Schema, when set, asks for strict structured output.
	Schema *Schema
}

// ChatMessage is one message of a Chat Completions call.
type ChatMessage struct {
	Role    string
	Content string
}

// SpeechRequest is one text-to-speech call.
type SpeechRequest struct {
	Model        string
	Voice        string
	Input        string
	Instructions string
}

// Client calls the OpenAI API with throttling and retries.
type Client struct {
	client  openai.Client
	limiter *rate.Limiter
	retry   retryPolicy
}

// NewClient creates a client.
func NewClient(cfg Config) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	// Retries are handled by withRetry.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(timeout),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := max(1, int(cfg.RequestsPerSecond))

	log.Printf("✅ [LLM] OpenAI client ready (rps=%.1f, retries=%d, timeout=%s)", cfg.RequestsPerSecond, cfg.MaxRetries, timeout)

	return &Client{
		client:  openai.NewClient(opts...),
		limiter: rate.NewLimiter(limit, burst),
		retry:   interactiveRetryPolicy(cfg.MaxRetries),
	}
}

// Instruct runs a Responses API call and returns the output text.
func (c *Client) Instruct(ctx context.Context, req InstructRequest) (string, error) {
	params := responses.ResponseNewParams{
		Model:        req.Model,
		Instructions: openai.String(req.Instructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: openai.String(req.Input),
		},
		Temperature: openai.Float(1.0),
	}
	if req.Effort != "" {
		params.Reasoning = shared.ReasoningParam{Effort: shared.ReasoningEffort(req.Effort)}
	}
	if req.Schema != nil {
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:   req.Schema.Name,
					Schema: req.Schema.Definition,
					Strict: openai.Bool(true),
					Type:   "json_schema",
				},
			},
		}
	}

	resp, err := withRetry(ctx, c, func() (*responses.Response, error) {
		return c.client.Responses.New(ctx, params)
	})
	if err != nil {
		return "", fmt.Errorf("responses call failed: %w", err)
	}
	return resp.OutputText(), nil
}

// Chat runs a Chat Completions call. System messages are sent with the developer role.
func (c *Client) Chat(ctx context.Context, model string, messages []ChatMessage) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       model,
		Messages:    make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
		Temperature: openai.Float(1.0),
	}
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			params.Messages = append(params.Messages, openai.DeveloperMessage(msg.Content))
		case RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(msg.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(msg.Content))
		}
	}

	resp, err := withRetry(ctx, c, func() (*openai.ChatCompletion, error) {
		return c.client.Chat.Completions.New(ctx, params)
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Ask sends a single user prompt through Chat Completions.
func (c *Client) Ask(ctx context.Context, model, prompt string) (string, error) {
	return c.Chat(ctx, model, []ChatMessage{{Role: RoleUser, Content: prompt}})
}

// Speak synthesises speech and returns the audio bytes and their content type.
func (c *Client) Speak(ctx context.Context, req SpeechRequest) ([]byte, string, error) {
	params := openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(req.Model),
		Voice:          openai.AudioSpeechNewParamsVoice(req.Voice),
		Input:          req.Input,
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	}
	if strings.TrimSpace(req.Instructions) != "" {
		params.Instructions = openai.String(req.Instructions)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}
	resp, err := c.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, "", fmt.Errorf("speech call failed: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read speech audio: %w", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return audio, contentType, nil
}
