package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"
)

// Client is the model access used by the conversation steps.
type Client interface {
	// Chat asks for a JSON answer matching req.Schema and decodes it into result.
	Chat(ctx context.Context, req Request, result any) (*Response, error)
	// Complete returns free text.
	Complete(ctx context.Context, req Request) (string, error)
	Model() string
}

// Message is one prior turn passed along with the prompts.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

type Request struct {
	SystemPrompt string
	UserPrompt   string
	History      []Message
	SchemaName   string
	Schema       any
	MaxTokens    int
	Temperature  *float64 // nil = model default, explicit 0 = deterministic
}

type Response struct {
	PromptTokens     int
	CompletionTokens int
}

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

type client struct {
	openai openai.Client
	model  string
}

func New(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm.New: API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &client{
		openai: openai.NewClient(opts...),
		model:  model,
	}, nil
}

func (c *client) Chat(ctx context.Context, req Request, result any) (*Response, error) {
	params := c.params(req, 1000)
	params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
			JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:        req.SchemaName,
				Description: openai.String("Structured response schema"),
				Schema:      req.Schema,
				Strict:      openai.Bool(true),
			},
		},
	}

	content, resp, err := c.complete(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("llm.Chat %s: %w", req.SchemaName, err)
	}

	if err := DecodeJSON(req.SchemaName, content, result); err != nil {
		return resp, err
	}

	return resp, nil
}

func (c *client) Complete(ctx context.Context, req Request) (string, error) {
	content, _, err := c.complete(ctx, c.params(req, 500))
	if err != nil {
		return "", fmt.Errorf("llm.Complete: %w", err)
	}
	return content, nil
}

func (c *client) Model() string {
	return c.model
}

func (c *client) params(req Request, defaultMaxTokens int) openai.ChatCompletionNewParams {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.History {
		if m.Role == "assistant" {
			messages = append(messages, openai.AssistantMessage(m.Content))
		} else {
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	if req.UserPrompt != "" {
		messages = append(messages, openai.UserMessage(req.UserPrompt))
	}

	params := openai.ChatCompletionNewParams{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: openai.Int(int64(maxTokens)),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	return params
}

func (c *client) complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, *Response, error) {
	start := time.Now()
	resp, err := c.openai.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", nil, fmt.Errorf("openai chat: %w", err)
	}

	log.Debug().
		Str("model", c.model).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Int64("prompt_tokens", resp.Usage.PromptTokens).
		Int64("completion_tokens", resp.Usage.CompletionTokens).
		Msg("llm chat completed")

	if len(resp.Choices) == 0 {
		return "", nil, errors.New("no choices in response")
	}

	return resp.Choices[0].Message.Content, &Response{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

func GenerateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

func Temp(t float64) *float64 {
	return &t
}

// IsRetryable reports whether err is worth another attempt: rate limits,
// server errors and network failures are; cancellation and 4xx are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var formatErr *FormatError
	if errors.As(err, &formatErr) {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			log.Warn().Int("status_code", apiErr.StatusCode).Msg("llm rate limited, will retry")
			return true
		case apiErr.StatusCode >= 500:
			log.Warn().Int("status_code", apiErr.StatusCode).Msg("llm server error, will retry")
			return true
		default:
			log.Error().Int("status_code", apiErr.StatusCode).Str("error_type", apiErr.Type).Str("error_code", apiErr.Code).Msg("llm client error, not retryable")
			return false
		}
	}

	// Network errors (no API response) are generally retryable.
	log.Warn().Err(err).Msg("llm network error, will retry")
	return true
}
