package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeprov/codeprov-go/internal/ingest"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <owner/repo>",
	Short: "Run the full analysis pipeline for a repository",
	Long: `Clone the repository, walk its complete commit history across all
branches, extract and embed every function revision, and compute semantic
ownership for every file.

An interrupted analysis restarts from the beginning on the next invocation;
extraction and embedding are idempotent, so already processed revisions are
recognized and not re-embedded during the replay.

Examples:
  codeprov analyze torvalds/linux
  codeprov analyze myorg/backend --verbose`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	owner, name, err := splitRepoArg(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	orchestrator, _, err := buildOrchestrator(store)
	if err != nil {
		return err
	}

	fmt.Printf("🔍 Analyzing %s/%s\n", owner, name)
	started := time.Now()
	if err := orchestrator.AnalyzeRepository(ctx, owner, name); err != nil {
		if err == ingest.ErrRunInProgress {
			return fmt.Errorf("an analysis run is already in progress for %s/%s", owner, name)
		}
		return err
	}
	fmt.Printf("✅ Analysis completed in %s\n", time.Since(started).Round(time.Second))
	return nil
}
