package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown storage type", func(c *Config) { c.Storage.Type = "dynamo" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Type = "postgres"; c.Storage.PostgresDSN = "" }},
		{"similarity threshold above 1", func(c *Config) { c.Analysis.ReplacementSimilarityMax = 1.5 }},
		{"negative replacement window", func(c *Config) { c.Analysis.ReplacementWindow = -1 }},
		{"fix boost below 1", func(c *Config) { c.Analysis.FixMessageBoost = 0.5 }},
		{"bad overlap convention", func(c *Config) { c.Analysis.OverlapConvention = "dice" }},
		{"weights not summing to 1", func(c *Config) { c.Analysis.StructuralWeight = 0.9 }},
		{"zero pipeline workers", func(c *Config) { c.Pipeline.Workers = 0 }},
		{"zero embedding dimension", func(c *Config) { c.Embedding.Dimension = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_testtoken")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/codeprov")
	t.Setenv("GITHUB_WEBHOOK_SECRET", "hush")

	cfg := Default()
	applyEnvOverrides(cfg)

	assert.Equal(t, "ghp_testtoken", cfg.Hosting.Token)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.Equal(t, "postgres", cfg.Storage.Type)
	assert.Equal(t, "postgres://localhost/codeprov", cfg.Storage.PostgresDSN)
	assert.Equal(t, "hush", cfg.Hosting.WebhookSecret)
}
