package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY" required:"true"`
	ChatModel    string `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`

	// Shared secret owner tokens are signed with.
	OwnerTokenSecret string `envconfig:"OWNER_TOKEN_SECRET" required:"true"`

	// Optional second-pass relevance scoring service. Empty disables reranking.
	RerankURL     string        `envconfig:"RERANK_URL"`
	RerankTimeout time.Duration `envconfig:"RERANK_TIMEOUT" default:"2s"`

	EmbedTimeout time.Duration `envconfig:"EMBED_TIMEOUT" default:"5s"`

	CacheTTL           time.Duration `envconfig:"CACHE_TTL" default:"24h"`
	CacheSweepInterval time.Duration `envconfig:"CACHE_SWEEP_INTERVAL" default:"10m"`

	SemanticWeight float32 `envconfig:"SEMANTIC_WEIGHT" default:"0.7"`
	KeywordWeight  float32 `envconfig:"KEYWORD_WEIGHT" default:"0.3"`

	// Document uploads live in S3-compatible storage; all three must be set.
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"shopmind-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("SHOPMIND", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasRerank() bool {
	return c.RerankURL != ""
}
