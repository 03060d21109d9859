// Package config reads settings from the environment, optionally seeded from
// .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Reasoning ReasoningConfig
	Pipeline  PipelineConfig
	Jobs      JobsConfig
	RunLog    RunLogConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	APIKey       string // empty disables authentication
	CORSOrigin   string
}

type LogConfig struct {
	Level  string
	Format string // console or json
}

type ReasoningConfig struct {
	Provider string // gemini or gigachat

	GeminiAPIKey string
	GeminiModel  string

	GigaChatAPIKey             string
	GigaChatScope              string
	GigaChatModel              string
	GigaChatInsecureSkipVerify bool

	Timeout            time.Duration
	BreakerMaxFailures uint32
	BreakerCooldown    time.Duration
}

type PipelineConfig struct {
	Extractor     string // reasoning or heuristic
	MaxCSVBytes   int64
	MaxPDFBytes   int64
	MaxTextLength int
}

type JobsConfig struct {
	Workers       int
	Buffer        int
	TTL           time.Duration
	ConsumeOnRead bool
}

type RunLogConfig struct {
	Project string // empty disables BigQuery run telemetry
	Dataset string
}

// envFiles are tried in order; later files do not override earlier ones or
// variables already set in the environment.
var envFiles = []string{".env.local", ".env"}

// Load reads .env files if present, then the environment.
func Load() (*Config, error) {
	for _, f := range envFiles {
		// Missing files are fine: plain environment variables are the norm in containers.
		_ = godotenv.Load(f)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	p := &parser{}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  p.duration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: p.duration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			APIKey:       getEnv("API_KEY", ""),
			CORSOrigin:   getEnv("CORS_ORIGIN", "*"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Reasoning: ReasoningConfig{
			Provider:                   strings.ToLower(getEnv("REASONING_PROVIDER", "gemini")),
			GeminiAPIKey:               getEnv("GEMINI_API_KEY", getEnv("GOOGLE_API_KEY", "")),
			GeminiModel:                getEnv("GEMINI_MODEL", ""),
			GigaChatAPIKey:             getEnv("GIGACHAT_API_KEY", ""),
			GigaChatScope:              getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
			GigaChatModel:              getEnv("GIGACHAT_MODEL", ""),
			GigaChatInsecureSkipVerify: p.boolean("GIGACHAT_INSECURE_SKIP_VERIFY", false),
			Timeout:                    p.duration("REASONING_TIMEOUT", 90*time.Second),
			BreakerMaxFailures:         uint32(p.integer("BREAKER_MAX_FAILURES", 5)),
			BreakerCooldown:            p.duration("BREAKER_COOLDOWN", 30*time.Second),
		},
		Pipeline: PipelineConfig{
			Extractor:     strings.ToLower(getEnv("EXTRACTOR", "reasoning")),
			MaxCSVBytes:   int64(p.integer("MAX_CSV_BYTES", 5*1024*1024)),
			MaxPDFBytes:   int64(p.integer("MAX_PDF_BYTES", 10*1024*1024)),
			MaxTextLength: p.integer("MAX_TEXT_LENGTH", 100000),
		},
		Jobs: JobsConfig{
			Workers:       p.integer("JOB_WORKERS", 2),
			Buffer:        p.integer("JOB_BUFFER", 100),
			TTL:           p.duration("JOB_TTL", 48*time.Hour),
			ConsumeOnRead: p.boolean("JOB_CONSUME_ON_READ", false),
		},
		RunLog: RunLogConfig{
			Project: getEnv("RUNLOG_PROJECT", ""),
			Dataset: getEnv("RUNLOG_DATASET", "just_save"),
		},
	}

	if p.err != nil {
		return nil, fmt.Errorf("config.FromEnv: %w", p.err)
	}
	if cfg.Reasoning.BreakerMaxFailures > 1000 {
		return nil, fmt.Errorf("config.FromEnv: BREAKER_MAX_FAILURES must be at most 1000")
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parser keeps the first conversion error so FromEnv can report it once.
type parser struct {
	err error
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s=%q: %v", key, value, err)
	}
}

func (p *parser) integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err == nil && n < 0 {
		err = fmt.Errorf("must not be negative")
	}
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) boolean(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}

// duration accepts Go durations ("90s", "2m") or a bare number of seconds.
func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}
