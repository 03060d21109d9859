package reasoning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/dvloznov/just-save/internal/domain"
	"github.com/dvloznov/just-save/internal/logger"
	"github.com/dvloznov/just-save/internal/metrics"
)

// DefaultGeminiModel is the Gemini model used when none is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

const providerGemini = "gemini"

// GeminiConfig configures the Gemini backend.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// generator is the slice of the genai client the reasoner needs.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiReasoner calls Gemini through the genai SDK.
type GeminiReasoner struct {
	models  generator
	model   string
	metrics metrics.Collector
}

// NewGeminiReasoner creates a Gemini-backed reasoner. A missing API key is a
// configuration error reported here, never on first use.
func NewGeminiReasoner(ctx context.Context, cfg GeminiConfig, m metrics.Collector) (*GeminiReasoner, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("NewGeminiReasoner: GEMINI_API_KEY: %w", domain.ErrNotConfigured)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiReasoner: create genai client: %w", err)
	}

	return newGeminiReasoner(client.Models, cfg.Model, m), nil
}

func newGeminiReasoner(models generator, model string, m metrics.Collector) *GeminiReasoner {
	if model == "" {
		model = DefaultGeminiModel
	}
	if m == nil {
		m = metrics.NoOpCollector{}
	}
	return &GeminiReasoner{models: models, model: model, metrics: m}
}

// Complete sends the prompt as a single user turn and returns the response text.
func (g *GeminiReasoner) Complete(ctx context.Context, req Request) (text string, err error) {
	start := time.Now()
	defer func() { observe(g.metrics, providerGemini, req, start, err) }()

	log := logger.FromContext(ctx)

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: req.Prompt}},
		},
	}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.Budget),
		Temperature:     genai.Ptr[float32](0),
	})
	if err != nil {
		err = mapError(ctx, "GeminiReasoner.Complete", err)
		log.Warn().Err(err).Object("request", req).Str("model", g.model).Msg("reasoning call failed")
		return "", err
	}

	if resp != nil {
		text = resp.Text()
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("GeminiReasoner.Complete: empty response from model: %w", domain.ErrReasoningUnavailable)
	}

	log.Debug().
		Object("request", req).
		Str("model", g.model).
		Dur("elapsed", time.Since(start)).
		Int("response_len", len(text)).
		Msg("reasoning call completed")

	return text, nil
}
