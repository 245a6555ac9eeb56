package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("fails without database url", func(t *testing.T) {
		t.Setenv("SHOPMIND_DATABASE_URL", "")
		t.Setenv("SHOPMIND_OPENAI_API_KEY", "sk-test")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("loads defaults", func(t *testing.T) {
		t.Setenv("SHOPMIND_DATABASE_URL", "postgres://localhost/shopmind")
		t.Setenv("SHOPMIND_OPENAI_API_KEY", "sk-test")
		t.Setenv("SHOPMIND_OWNER_TOKEN_SECRET", "secret")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, "gpt-4o-mini", cfg.ChatModel)
		assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
		assert.Equal(t, float32(0.7), cfg.SemanticWeight)
		assert.Equal(t, float32(0.3), cfg.KeywordWeight)
		assert.False(t, cfg.HasRerank())
		assert.False(t, cfg.HasS3())
	})

	t.Run("rerank enabled when url set", func(t *testing.T) {
		t.Setenv("SHOPMIND_DATABASE_URL", "postgres://localhost/shopmind")
		t.Setenv("SHOPMIND_OPENAI_API_KEY", "sk-test")
		t.Setenv("SHOPMIND_OWNER_TOKEN_SECRET", "secret")
		t.Setenv("SHOPMIND_RERANK_URL", "http://rerank:9000/score")

		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.HasRerank())
	})
}
