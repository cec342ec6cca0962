package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/appforge/app-builder-api/retry"

	"github.com/Noah-Huppert/golog"
)

// ErrNoProviderConfigured is returned when no generation provider has credentials
var ErrNoProviderConfigured = errors.New("no generation provider configured")

// SystemPrompt instructs providers which support one to answer with a bare HTML document
const SystemPrompt = "You are an expert front-end developer. Respond with one complete, " +
	"self-contained HTML document which implements the requested application. " +
	"Inline all CSS and JavaScript. Do not explain the code and do not wrap it in " +
	"Markdown."

// Provider is a text generation backend
type Provider interface {
	// Name identifies the provider in logs and errors
	Name() string

	// Configured indicates the provider has the credentials it needs
	Configured() bool

	// Complete returns the provider's answer to prompt
	Complete(ctx context.Context, prompt string) (string, error)
}

// ProviderFailure is the final error of one provider
type ProviderFailure struct {
	// Provider name
	Provider string

	// Err is the error the provider's last attempt returned
	Err error
}

// GenerationError indicates every configured provider failed
type GenerationError struct {
	// Failures holds the final error of each provider which was tried, in the
	// order they were tried
	Failures []ProviderFailure
}

// Error implements error
func (e GenerationError) Error() string {
	parts := []string{}
	for _, failure := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %s", failure.Provider, failure.Err.Error()))
	}

	return fmt.Sprintf("generation failed: %s", strings.Join(parts, ", "))
}

// Generator produces HTML from a prompt. The Primary provider is tried first, the
// Fallback only if Primary is not configured or exhausts its retries.
type Generator struct {
	// Primary provider, can be nil
	Primary Provider

	// Fallback provider, can be nil
	Fallback Provider

	// Retry is applied to each provider separately
	Retry retry.Policy

	// Logger logs information
	Logger golog.Logger
}

// Configured indicates at least one provider can be used
func (g Generator) Configured() bool {
	for _, provider := range g.providers() {
		if provider.Configured() {
			return true
		}
	}

	return false
}

// providers returns the non-nil providers in the order they are tried
func (g Generator) providers() []Provider {
	providers := []Provider{}
	for _, provider := range []Provider{g.Primary, g.Fallback} {
		if provider != nil {
			providers = append(providers, provider)
		}
	}

	return providers
}

// Generate returns a provider's raw output for prompt. Output is not normalized.
func (g Generator) Generate(ctx context.Context, prompt string) (string, error) {
	if !g.Configured() {
		return "", ErrNoProviderConfigured
	}

	genErr := GenerationError{}

	for _, provider := range g.providers() {
		if !provider.Configured() {
			g.Logger.Debugf("skipping unconfigured %s provider", provider.Name())
			continue
		}

		policy := g.Retry.WithRetryable(isTransient).WithOnRetry(
			func(err error, wait time.Duration) {
				g.Logger.Warnf("%s provider failed, retrying in %s: %s",
					provider.Name(), wait, err.Error())
			})

		output, err := retry.DoValue(ctx, policy, func() (string, error) {
			return provider.Complete(ctx, prompt)
		})
		if err == nil {
			g.Logger.Infof("generated %d characters with %s provider", len(output),
				provider.Name())
			return output, nil
		}

		g.Logger.Errorf("%s provider failed: %s", provider.Name(), err.Error())
		genErr.Failures = append(genErr.Failures, ProviderFailure{
			Provider: provider.Name(),
			Err:      err,
		})
	}

	return "", genErr
}
