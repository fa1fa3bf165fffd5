package intent

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/govbridge/govchat/internal/models"
	"github.com/govbridge/govchat/internal/prompts"
)

// LLMClassifier implements Classifier on top of a langchaingo model.
type LLMClassifier struct {
	model   llms.Model
	timeout time.Duration
}

// NewOpenAIClassifier builds a classifier backed by the OpenAI chat API.
func NewOpenAIClassifier(apiKey, model string, timeout time.Duration) (*LLMClassifier, error) {
	llm, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}
	return &LLMClassifier{model: llm, timeout: timeout}, nil
}

// NewLLMClassifier wraps an existing langchaingo model (used in tests).
func NewLLMClassifier(model llms.Model, timeout time.Duration) *LLMClassifier {
	return &LLMClassifier{model: model, timeout: timeout}
}

func (c *LLMClassifier) Classify(ctx context.Context, text string, language models.Language) (*models.Intent, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := prompts.BuildClassifyPrompt(text, language, Schema)

	content, err := llms.GenerateFromSinglePrompt(callCtx, c.model, prompt,
		llms.WithTemperature(0.1), // low temperature for consistent extraction
		llms.WithMaxTokens(500),
	)
	if err != nil {
		return nil, fmt.Errorf("classifier call failed: %w", err)
	}

	parsed, err := prompts.ParseClassifierResponse(content)
	if err != nil {
		log.Printf("Failed to parse classifier response: %v", err)
		return nil, fmt.Errorf("failed to understand classifier response: %w", err)
	}

	normalizeMissing(parsed)
	return parsed, nil
}

// normalizeMissing reconciles the model's missing_fields claim with the
// schema: every required field without an extracted value is missing,
// whatever the model said.
func normalizeMissing(intent *models.Intent) {
	required := Schema[intent.Service]
	missing := make([]string, 0, len(required))
	for _, field := range required {
		if intent.Entities[field] == "" {
			missing = append(missing, field)
		}
	}
	intent.MissingFields = missing
}
