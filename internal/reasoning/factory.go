package reasoning

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/just-save/internal/domain"
	"github.com/dvloznov/just-save/internal/metrics"
)

// Supported providers.
const (
	ProviderGemini   = "gemini"
	ProviderGigaChat = "gigachat"
)

// Config selects and configures the reasoning backend.
type Config struct {
	Provider string
	Gemini   GeminiConfig
	GigaChat GigaChatConfig
	Breaker  BreakerConfig
}

// New builds the configured backend wrapped in a circuit breaker.
// Credentials are checked here so a misconfigured process fails at startup.
func New(ctx context.Context, cfg Config, m metrics.Collector, log zerolog.Logger) (*Breaker, error) {
	var (
		backend Reasoner
		err     error
	)

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderGemini:
		backend, err = NewGeminiReasoner(ctx, cfg.Gemini, m)
	case ProviderGigaChat:
		backend, err = NewGigaChatReasoner(ctx, cfg.GigaChat, m)
	default:
		return nil, fmt.Errorf("reasoning.New: unknown provider %q: %w", cfg.Provider, domain.ErrNotConfigured)
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("provider", cfg.Provider).
		Uint32("breaker_max_failures", cfg.Breaker.MaxFailures).
		Dur("breaker_cooldown", cfg.Breaker.Cooldown).
		Msg("reasoning engine configured")

	return NewBreaker(backend, cfg.Breaker, m, log), nil
}
