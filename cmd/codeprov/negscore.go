package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codeprov/codeprov-go/internal/negscore"
)

var negscoreCmd = &cobra.Command{
	Use:   "negscore <owner/repo>",
	Short: "Recompute and show contributor negative scores",
	Long: `Scan the repository's function revision history for semantic
replacements (someone else rewriting a contributor's code shortly after
it landed) and show the accumulated negative score per contributor.

The recompute is idempotent: running it twice yields identical scores.`,
	Args: cobra.ExactArgs(1),
	RunE: runNegscore,
}

func runNegscore(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	if _, _, err := splitRepoArg(args[0]); err != nil {
		return err
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	repo, err := store.GetRepositoryByFullName(ctx, args[0])
	if err != nil {
		return fmt.Errorf("repository %s is not analyzed yet (run 'codeprov analyze')", args[0])
	}

	detector := negscore.NewDetector(store, cfg.Analysis)
	if err := detector.CalculateForRepository(ctx, repo.ID); err != nil {
		return err
	}

	scores, err := store.ListNegativeScores(ctx, repo.ID)
	if err != nil {
		return err
	}

	fmt.Printf("⚠️  Negative scores for %s\n", args[0])
	fmt.Printf("%s\n", strings.Repeat("═", 60))
	if len(scores) == 0 {
		fmt.Println("No replacement events detected.")
		return nil
	}
	for _, s := range scores {
		fmt.Printf("  %-40s %8.3f  (%d events)\n", s.AuthorEmail, s.Score, s.EventCount)
	}
	return nil
}
