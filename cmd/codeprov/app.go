package main

import (
	"fmt"
	"strings"

	"github.com/codeprov/codeprov-go/internal/embed"
	"github.com/codeprov/codeprov-go/internal/extract"
	"github.com/codeprov/codeprov-go/internal/git"
	"github.com/codeprov/codeprov-go/internal/hosting"
	"github.com/codeprov/codeprov-go/internal/ingest"
	"github.com/codeprov/codeprov-go/internal/storage"
)

// openStore picks the storage backend from configuration.
func openStore() (storage.Store, error) {
	switch cfg.Storage.Type {
	case "postgres":
		return storage.NewPostgresStore(cfg.Storage.PostgresDSN, logger)
	case "sqlite":
		return storage.NewSQLiteStore(cfg.Storage.LocalPath, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}
}

func buildExtractor() extract.Extractor {
	if cfg.Parsing.Mode == "remote" && cfg.Parsing.URL != "" {
		return extract.NewRemoteExtractor(cfg.Parsing.URL, cfg.Parsing.Timeout)
	}
	return extract.NewTreeSitterExtractor()
}

// buildEmbedder returns the OpenAI embedder when a key is configured, and
// the deterministic local embedder otherwise so offline analysis still
// produces stable vectors.
func buildEmbedder() (embed.Embedder, error) {
	if cfg.Embedding.APIKey == "" {
		logger.Warn("No embedding API key configured, using deterministic local embedder")
		return &embed.StaticEmbedder{Dim: cfg.Embedding.Dimension}, nil
	}
	return embed.NewOpenAIEmbedder(cfg.Embedding)
}

func buildOrchestrator(store storage.Store) (*ingest.Orchestrator, hosting.Platform, error) {
	embedder, err := buildEmbedder()
	if err != nil {
		return nil, nil, err
	}
	platform := hosting.NewGitHubPlatform(cfg.Hosting.Token)
	return ingest.NewOrchestrator(store, git.NewCommandReader(cfg.Pipeline.DataDir), buildExtractor(), embedder, platform, cfg), platform, nil
}

// splitRepoArg parses an "owner/name" argument.
func splitRepoArg(arg string) (owner, name string, err error) {
	parts := strings.SplitN(arg, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("expected owner/name, got %q", arg)
	}
	return parts[0], parts[1], nil
}
