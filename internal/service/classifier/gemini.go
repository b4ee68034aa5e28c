package classifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"MarketPulse/internal/domain/models"
	smetrics "MarketPulse/internal/service/metrics"
	"MarketPulse/pkg/logger"

	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

// TextGenerator produces a completion for a system and user prompt.
type TextGenerator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// GeminiOption configures the Gemini classifier.
type GeminiOption func(*Gemini)

func WithModel(model string) GeminiOption {
	return func(g *Gemini) { g.model = model }
}

func WithTimeout(d time.Duration) GeminiOption {
	return func(g *Gemini) { g.timeout = d }
}

func WithMaxTokens(n int) GeminiOption {
	return func(g *Gemini) { g.maxTokens = n }
}

// WithGenerator replaces the genai backend.
func WithGenerator(gen TextGenerator) GeminiOption {
	return func(g *Gemini) { g.gen = gen }
}

// Gemini classifies surprises with Google Gemini.
type Gemini struct {
	gen       TextGenerator
	model     string
	timeout   time.Duration
	maxTokens int
	log       *logger.Logger
	now       func() time.Time
}

// NewGemini creates the classifier. The genai client is only built when no
// generator was injected.
func NewGemini(ctx context.Context, apiKey string, log *logger.Logger, opts ...GeminiOption) (*Gemini, error) {
	g := &Gemini{
		model:     DefaultModel,
		timeout:   25 * time.Second,
		maxTokens: 1024,
		log:       log.Component("classifier.gemini"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.gen == nil {
		if apiKey == "" {
			return nil, fmt.Errorf("gemini: api key is required")
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		g.gen = &genaiGenerator{client: client, model: g.model, maxTokens: int32(g.maxTokens)}
	}
	return g, nil
}

func (g *Gemini) Name() string {
	return "gemini"
}

func (g *Gemini) Classify(ctx context.Context, item models.NewsItem) (models.SurpriseAnalysis, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	text, err := g.gen.Generate(ctx, systemPrompt, BuildPrompt(item))
	smetrics.ClassifierLatency.WithLabelValues(g.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		return models.SurpriseAnalysis{}, classifyErr(ctx, g.Name(), g.timeout, err)
	}

	analysis, err := ParseVerdict(text)
	if err != nil {
		g.log.Warn("malformed model answer", logger.Error(err), logger.Int("length", len(text)))
		smetrics.ClassifierErrors.WithLabelValues(g.Name()).Inc()
		return models.SurpriseAnalysis{}, models.NewSourceError(models.KindAIServiceError, g.Name(), "malformed AI response", err)
	}
	analysis.AnalyzedAt = g.now().UTC()
	return analysis, nil
}

type genaiGenerator struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

func (g *genaiGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	temperature := float32(0.2)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		ResponseMIMEType:  "application/json",
		MaxOutputTokens:   g.maxTokens,
		Temperature:       &temperature,
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	return extractText(result)
}

func extractText(result *genai.GenerateContentResponse) (string, error) {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content generated")
	}

	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
