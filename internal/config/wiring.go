package config

import (
	"github.com/dvloznov/just-save/internal/pipeline"
	"github.com/dvloznov/just-save/internal/reasoning"
)

// Engine returns the reasoning backend configuration.
func (c *Config) Engine() reasoning.Config {
	r := c.Reasoning
	return reasoning.Config{
		Provider: r.Provider,
		Gemini: reasoning.GeminiConfig{
			APIKey: r.GeminiAPIKey,
			Model:  r.GeminiModel,
		},
		GigaChat: reasoning.GigaChatConfig{
			APIKey:             r.GigaChatAPIKey,
			Scope:              r.GigaChatScope,
			Model:              r.GigaChatModel,
			InsecureSkipVerify: r.GigaChatInsecureSkipVerify,
		},
		Breaker: reasoning.BreakerConfig{
			Name:        "reasoning",
			MaxFailures: r.BreakerMaxFailures,
			Cooldown:    r.BreakerCooldown,
		},
	}
}

// Limits returns the pipeline size ceilings.
func (c *Config) Limits() pipeline.Limits {
	return pipeline.Limits{
		MaxCSVBytes:   c.Pipeline.MaxCSVBytes,
		MaxPDFBytes:   c.Pipeline.MaxPDFBytes,
		MaxTextLength: c.Pipeline.MaxTextLength,
	}
}

// UsesReasoningExtractor reports whether extraction needs the reasoning engine.
func (c *Config) UsesReasoningExtractor() bool {
	return c.Pipeline.Extractor != pipeline.ExtractorHeuristic
}
