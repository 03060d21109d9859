package reasoning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Role1776/gigago"

	"github.com/dvloznov/just-save/internal/domain"
	"github.com/dvloznov/just-save/internal/logger"
	"github.com/dvloznov/just-save/internal/metrics"
)

const (
	// DefaultGigaChatModel is the GigaChat model used when none is configured.
	DefaultGigaChatModel = "GigaChat"
	// DefaultGigaChatScope is the personal API scope.
	DefaultGigaChatScope = "GIGACHAT_API_PERS"

	providerGigaChat = "gigachat"
)

const gigaChatInstruction = "You are a precise financial data assistant. " +
	"When asked for JSON, reply with JSON only, without Markdown or commentary."

// GigaChatConfig configures the GigaChat backend.
type GigaChatConfig struct {
	APIKey             string
	Scope              string
	Model              string
	InsecureSkipVerify bool
}

var errNoChoices = errors.New("no choices in response")

// generateFunc sends one user message and returns the first choice's content.
type generateFunc func(ctx context.Context, prompt string) (string, error)

// GigaChatReasoner calls Sber GigaChat through gigago.
// gigago has no per-request output limit, so Request.Budget is advisory here.
type GigaChatReasoner struct {
	generate generateFunc
	name     string
	metrics  metrics.Collector
}

// NewGigaChatReasoner creates a GigaChat-backed reasoner. A missing API key is
// reported as ErrNotConfigured.
func NewGigaChatReasoner(ctx context.Context, cfg GigaChatConfig, m metrics.Collector) (*GigaChatReasoner, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("NewGigaChatReasoner: GIGACHAT_API_KEY: %w", domain.ErrNotConfigured)
	}

	scope := cfg.Scope
	if scope == "" {
		scope = DefaultGigaChatScope
	}
	opts := []gigago.Option{
		gigago.WithCustomScope(scope),
	}
	if cfg.InsecureSkipVerify {
		opts = append(opts, gigago.WithCustomInsecureSkipVerify(true))
		log := logger.FromContext(ctx)
		log.Warn().Msg("GigaChat TLS certificate verification is disabled")
	}

	client, err := gigago.NewClient(ctx, cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewGigaChatReasoner: create gigachat client: %w", err)
	}

	name := cfg.Model
	if name == "" {
		name = DefaultGigaChatModel
	}
	model := client.GenerativeModel(name)
	model.SystemInstruction = gigaChatInstruction
	model.Temperature = 0

	generate := func(ctx context.Context, prompt string) (string, error) {
		messages := []gigago.Message{
			{Role: gigago.RoleUser, Content: prompt},
		}
		resp, err := model.Generate(ctx, messages)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", errNoChoices
		}
		return resp.Choices[0].Message.Content, nil
	}

	return newGigaChatReasoner(generate, name, m), nil
}

func newGigaChatReasoner(generate generateFunc, name string, m metrics.Collector) *GigaChatReasoner {
	if m == nil {
		m = metrics.NoOpCollector{}
	}
	return &GigaChatReasoner{generate: generate, name: name, metrics: m}
}

// Complete sends the prompt as a single user message.
func (g *GigaChatReasoner) Complete(ctx context.Context, req Request) (text string, err error) {
	start := time.Now()
	defer func() { observe(g.metrics, providerGigaChat, req, start, err) }()

	log := logger.FromContext(ctx)

	text, err = g.generate(ctx, req.Prompt)
	if err != nil {
		err = mapError(ctx, "GigaChatReasoner.Complete", err)
		log.Warn().Err(err).Object("request", req).Str("model", g.name).Msg("reasoning call failed")
		return "", err
	}

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("GigaChatReasoner.Complete: empty response from model: %w", domain.ErrReasoningUnavailable)
	}

	log.Debug().
		Object("request", req).
		Str("model", g.name).
		Dur("elapsed", time.Since(start)).
		Int("response_len", len(text)).
		Msg("reasoning call completed")

	return text, nil
}
