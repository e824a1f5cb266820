package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codeprov/codeprov-go/internal/risk"
	"github.com/codeprov/codeprov-go/internal/storage"
)

var riskCmd = &cobra.Command{
	Use:   "risk <owner/repo> <file>...",
	Short: "Score a set of changed files against open pull requests",
	Long: `Compute the structural and semantic risk of a hypothetical change set
against every open pull request of an analyzed repository.

Examples:
  codeprov risk myorg/backend src/auth.py src/session.py`,
	Args: cobra.MinimumNArgs(2),
	RunE: runRisk,
}

var conflictsCmd = &cobra.Command{
	Use:   "conflicts <owner/repo>",
	Short: "Detect potential conflicts between open pull requests",
	Args:  cobra.ExactArgs(1),
	RunE:  runConflicts,
}

var similarCmd = &cobra.Command{
	Use:   "similar <owner/repo> <file>",
	Short: "Find files semantically closest to a given file",
	Args:  cobra.ExactArgs(2),
	RunE:  runSimilar,
}

func riskEngine(ctx context.Context, repoArg string) (*risk.Engine, string, storage.Store, error) {
	_, _, err := splitRepoArg(repoArg)
	if err != nil {
		return nil, "", nil, err
	}
	store, err := openStore()
	if err != nil {
		return nil, "", nil, err
	}
	repo, err := store.GetRepositoryByFullName(ctx, repoArg)
	if err != nil {
		store.Close()
		return nil, "", nil, fmt.Errorf("repository %s is not analyzed yet (run 'codeprov analyze')", repoArg)
	}
	return risk.NewEngine(store, cfg.Analysis), repo.ID, store, nil
}

func runRisk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	engine, repoID, store, err := riskEngine(ctx, args[0])
	if err != nil {
		return err
	}
	defer store.Close()

	assessment, err := engine.CalculateRisk(ctx, repoID, args[1:], nil)
	if err != nil {
		return err
	}

	fmt.Printf("🔍 Risk for %s\n", args[0])
	fmt.Printf("%s\n", strings.Repeat("═", 60))
	if len(assessment.Risks) == 0 {
		fmt.Println("No open pull requests.")
		return nil
	}
	for _, r := range assessment.Risks {
		fmt.Printf("\nPR #%d %q by %s\n", r.PRNumber, r.Title, r.Author)
		fmt.Printf("  combined: %.3f  structural: %.3f  semantic: %.3f\n", r.Combined, r.Structural, r.Semantic)
		if len(r.OverlapFiles) > 0 {
			fmt.Printf("  overlap: %s\n", strings.Join(r.OverlapFiles, ", "))
		}
	}
	if len(assessment.Impacted) > 0 {
		fmt.Printf("\nImpacted via imports: %s\n", strings.Join(assessment.Impacted, ", "))
	}
	return nil
}

func runSimilar(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	engine, repoID, store, err := riskEngine(ctx, args[0])
	if err != nil {
		return err
	}
	defer store.Close()

	matches, err := engine.SimilarFiles(ctx, repoID, args[1], 10)
	if err != nil {
		return err
	}

	fmt.Printf("🧭 Files similar to %s\n", args[1])
	fmt.Printf("%s\n", strings.Repeat("═", 60))
	if len(matches) == 0 {
		fmt.Println("No other embedded files to compare against.")
		return nil
	}
	for _, m := range matches {
		fmt.Printf("  %.3f  %s\n", m.Similarity, m.Path)
	}
	return nil
}

func runConflicts(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	engine, repoID, store, err := riskEngine(ctx, args[0])
	if err != nil {
		return err
	}
	defer store.Close()

	conflicts, err := engine.DetectPRConflicts(ctx, repoID)
	if err != nil {
		return err
	}

	fmt.Printf("🔀 PR conflicts for %s\n", args[0])
	fmt.Printf("%s\n", strings.Repeat("═", 60))
	if len(conflicts) == 0 {
		fmt.Println("No potential conflicts between open pull requests.")
		return nil
	}
	for _, c := range conflicts {
		fmt.Printf("\nPR #%d ↔ PR #%d\n", c.PRNumberA, c.PRNumberB)
		fmt.Printf("  combined: %.3f  structural: %.3f  semantic: %.3f\n", c.Combined, c.Structural, c.Semantic)
		fmt.Printf("  overlap: %s\n", strings.Join(c.OverlapFiles, ", "))
	}
	return nil
}
