package oracle

import (
	"context"
	"errors"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/gaurav-prasanna/newsletterpipe/core"
)

// OpenAI generates text with the chat completions API.
type OpenAI struct {
	Model  string
	client openai.Client
}

// OpenAIConfig configures NewOpenAI.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// NewOpenAI creates a chat completions oracle. SDK-level retries are
// disabled; the orchestrator decides when to retry.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key missing; set oracle.api_key or oracle.api_key_env")
	}
	if cfg.Model == "" {
		return nil, errors.New("oracle model is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &OpenAI{Model: cfg.Model, client: openai.NewClient(opts...)}, nil
}

// Generate sends the prompt as a system and a user message.
func (o *OpenAI) Generate(ctx context.Context, prompt core.Prompt) (string, error) {
	msgs := []openai.ChatCompletionMessageParamUnion{}
	if prompt.System != "" {
		msgs = append(msgs, openai.SystemMessage(prompt.System))
	}
	msgs = append(msgs, openai.UserMessage(prompt.User))

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.Model),
		Messages: msgs,
	})
	if err != nil {
		return "", Classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", Classify(errors.New("openai: empty choices"))
	}
	return resp.Choices[0].Message.Content, nil
}
