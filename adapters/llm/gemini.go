package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/wayfarerhq/wayfarer/server/domain/repositories"
)

const (
	defaultModel           = "gemini-2.0-flash"
	defaultTemperature     = 0.7
	defaultTopP            = 0.95
	defaultMaxOutputTokens = 1024
	defaultTimeoutSeconds  = 45
)

// systemPrompt frames the assistant as the itinerary concierge.
const systemPrompt = "You are Wayfarer's travel concierge. Help travelers plan itineraries: " +
	"destinations, budgets, day plans, local tips. Keep answers short and practical. " +
	"Use plain text; line breaks are the only formatting the widget renders."

// GeminiConfig configures the Gemini reply generator.
// Required fields:
// - APIKey: Google AI API key
// Optional fields fall back to package defaults.
type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	TopP            float32
	MaxOutputTokens int
	TimeoutSeconds  int
}

// ValidateGeminiConfig validates the GeminiConfig.
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("Google AI API key is required")
	}

	if config.Temperature != 0 && (config.Temperature < 0 || config.Temperature > 1) {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", config.Temperature)
	}

	if config.TopP != 0 && (config.TopP < 0 || config.TopP > 1) {
		return fmt.Errorf("topP must be between 0 and 1, got %f", config.TopP)
	}

	if config.MaxOutputTokens < 0 {
		return fmt.Errorf("maxOutputTokens must be positive, got %d", config.MaxOutputTokens)
	}

	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}

	return nil
}

// GeminiGenerator implements repositories.ReplyGenerator using Google's
// Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	logger *zap.Logger
	config GeminiConfig
}

var _ repositories.ReplyGenerator = (*GeminiGenerator)(nil)

// NewGeminiGenerator creates a new Gemini reply generator.
func NewGeminiGenerator(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiGenerator, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	applyDefaults(&config)

	return &GeminiGenerator{
		client: client,
		logger: logger,
		config: config,
	}, nil
}

func applyDefaults(config *GeminiConfig) {
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.Temperature == 0 {
		config.Temperature = defaultTemperature
	}
	if config.TopP == 0 {
		config.TopP = defaultTopP
	}
	if config.MaxOutputTokens == 0 {
		config.MaxOutputTokens = defaultMaxOutputTokens
	}
	if config.TimeoutSeconds == 0 {
		config.TimeoutSeconds = defaultTimeoutSeconds
	}
}

// GenerateReply sends the history window plus the live prompt. Every
// provider failure collapses to repositories.ErrGeneration; the session
// layer never sees provider-specific error shapes.
func (g *GeminiGenerator) GenerateReply(ctx context.Context, history []repositories.ReplyMessage, prompt string) (string, error) {
	contents := buildContents(history, prompt)

	generateConfig := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.config.Temperature),
		TopP:            genai.Ptr(g.config.TopP),
		MaxOutputTokens: int32(g.config.MaxOutputTokens),
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(g.config.TimeoutSeconds)*time.Second)
	defer cancel()

	response, err := g.client.Models.GenerateContent(ctx, g.config.Model, contents, generateConfig)
	if err != nil {
		g.logger.Error("Gemini generate content failed", zap.Error(err))
		return "", repositories.ErrGeneration
	}

	text := extractText(response)
	if text == "" {
		g.logger.Warn("Gemini returned no text")
		return "", repositories.ErrGeneration
	}

	return text, nil
}

// buildContents assembles system prompt, prior context, and the live prompt
// in the order the model expects.
func buildContents(history []repositories.ReplyMessage, prompt string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+2)
	contents = append(contents, genai.NewContentFromText(systemPrompt, genai.RoleUser))

	for _, message := range history {
		var role genai.Role = genai.RoleUser
		if message.Role == repositories.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(message.Text, role))
	}

	contents = append(contents, genai.NewContentFromText(prompt, genai.RoleUser))
	return contents
}

func extractText(response *genai.GenerateContentResponse) string {
	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return ""
	}

	var builder strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		builder.WriteString(part.Text)
	}
	return strings.TrimSpace(builder.String())
}
