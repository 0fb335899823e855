// Package llm turns natural-language test descriptions into candidate plans
// using a language model.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Supported providers.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Sampling settings sent with every generation.
const (
	Temperature       = 0.1
	TopP              = 0.9
	RepetitionPenalty = 1.1
)

// StopWords end generation early on runs of blank lines or a markdown fence.
var StopWords = []string{"\n\n\n", "```"}

var ErrTruncated = errors.New("llm: truncated output")

// Generator produces the raw JSON of a candidate plan. The result is not
// validated.
type Generator interface {
	Generate(ctx context.Context, nlText string) (json.RawMessage, error)
}

// Config selects and tunes the model.
type Config struct {
	Provider   string
	BaseURL    string
	Model      string
	APIKey     string
	NumPredict int
	NumCtx     int
}

// ModelGenerator generates plans with a langchaingo model.
type ModelGenerator struct {
	model      llms.Model
	numPredict int
}

// NewModelGenerator wraps an already constructed model.
func NewModelGenerator(model llms.Model, numPredict int) *ModelGenerator {
	return &ModelGenerator{model: model, numPredict: numPredict}
}

// New builds a generator for the configured provider.
func New(cfg Config) (*ModelGenerator, error) {
	var (
		model llms.Model
		err   error
	)
	switch cfg.Provider {
	case "", ProviderOllama:
		opts := []ollama.Option{
			ollama.WithModel(cfg.Model),
			ollama.WithFormat("json"),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		if cfg.NumCtx > 0 {
			opts = append(opts, ollama.WithRunnerNumCtx(cfg.NumCtx))
		}
		model, err = ollama.New(opts...)
	case ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
			openai.WithResponseFormat(openai.ResponseFormatJSON),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s model: %w", cfg.Provider, err)
	}
	return NewModelGenerator(model, cfg.NumPredict), nil
}

// Generate prompts the model and extracts the JSON object from its answer.
// Output cut off by the token limit is rejected with ErrTruncated.
func (g *ModelGenerator) Generate(ctx context.Context, nlText string) (json.RawMessage, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, Prompt(nlText)),
	}
	opts := []llms.CallOption{
		llms.WithTemperature(Temperature),
		llms.WithTopP(TopP),
		llms.WithRepetitionPenalty(RepetitionPenalty),
		llms.WithStopWords(StopWords),
	}
	if g.numPredict > 0 {
		opts = append(opts, llms.WithMaxTokens(g.numPredict))
	}

	resp, err := g.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("llm: empty response")
	}
	choice := resp.Choices[0]
	if strings.EqualFold(choice.StopReason, "length") {
		return nil, fmt.Errorf("%w (increase num_predict): partial %q", ErrTruncated, truncate(choice.Content, 200))
	}
	return ExtractJSON(choice.Content)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
