package generation

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider generates text with an OpenAI compatible chat completions API,
// ex., AI Pipe
type OpenAIProvider struct {
	client openai.Client
	model  string
	apiKey string
}

// NewOpenAIProvider creates an OpenAIProvider. Retries are left to the Generator.
func NewOpenAIProvider(apiKey, baseURL, model string, timeout time.Duration) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if len(baseURL) > 0 {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}

	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  model,
		apiKey: apiKey,
	}
}

// Name implements Provider
func (p *OpenAIProvider) Name() string {
	return "aipipe"
}

// Configured implements Provider
func (p *OpenAIProvider) Configured() bool {
	return len(p.apiKey) > 0
}

// Complete implements Provider
func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	res, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion request failed: %w", err)
	}

	if len(res.Choices) == 0 || len(res.Choices[0].Message.Content) == 0 {
		return "", errEmptyCompletion
	}

	return res.Choices[0].Message.Content, nil
}
