package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// hfMaxNewTokens bounds the length of generated documents
const hfMaxNewTokens = 2048

// HuggingFaceProvider generates text with the Hugging Face inference API
type HuggingFaceProvider struct {
	client *resty.Client
	model  string
	apiKey string
}

// hfRequest is the inference API text generation request body
type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

// hfParameters are text generation parameters
type hfParameters struct {
	MaxNewTokens   int  `json:"max_new_tokens"`
	ReturnFullText bool `json:"return_full_text"`
}

// hfGeneration is one item of the inference API response
type hfGeneration struct {
	GeneratedText string `json:"generated_text"`
}

// NewHuggingFaceProvider creates a HuggingFaceProvider
func NewHuggingFaceProvider(apiKey, baseURL, model string, timeout time.Duration) *HuggingFaceProvider {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}

	return &HuggingFaceProvider{
		client: client,
		model:  model,
		apiKey: apiKey,
	}
}

// Name implements Provider
func (p *HuggingFaceProvider) Name() string {
	return "huggingface"
}

// Configured implements Provider
func (p *HuggingFaceProvider) Configured() bool {
	return len(p.apiKey) > 0
}

// Complete implements Provider
func (p *HuggingFaceProvider) Complete(ctx context.Context, prompt string) (string, error) {
	generations := []hfGeneration{}

	res, err := p.client.R().
		SetContext(ctx).
		SetBody(hfRequest{
			Inputs: fmt.Sprintf("%s\n\n%s", SystemPrompt, prompt),
			Parameters: hfParameters{
				MaxNewTokens:   hfMaxNewTokens,
				ReturnFullText: false,
			},
		}).
		SetResult(&generations).
		Post("/models/" + p.model)
	if err != nil {
		return "", fmt.Errorf("inference request failed: %w", err)
	}

	if !res.IsSuccess() {
		return "", StatusError{
			Provider: p.Name(),
			Code:     res.StatusCode(),
			Body:     res.String(),
		}
	}

	if len(generations) == 0 || len(strings.TrimSpace(generations[0].GeneratedText)) == 0 {
		return "", errEmptyCompletion
	}

	return generations[0].GeneratedText, nil
}
