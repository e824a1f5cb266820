package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [owner/repo]",
	Short: "Show analysis status for tracked repositories",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Printf("🔍 CodeProv Status\n")
	fmt.Printf("%s\n", strings.Repeat("═", 60))
	fmt.Printf("\n📋 Configuration:\n")
	fmt.Printf("  Storage: %s\n", cfg.Storage.Type)
	fmt.Printf("  Parsing: %s\n", cfg.Parsing.Mode)
	fmt.Printf("  Embedding model: %s (%d dims)\n", cfg.Embedding.Model, cfg.Embedding.Dimension)

	if len(args) == 1 {
		repo, err := store.GetRepositoryByFullName(ctx, args[0])
		if err != nil {
			return fmt.Errorf("repository %s is not tracked", args[0])
		}
		fmt.Printf("\n📦 %s\n", repo.FullName)
		fmt.Printf("  Status: %s\n", repo.Status)
		if repo.StatusReason != "" {
			fmt.Printf("  Reason: %s\n", repo.StatusReason)
		}
		if repo.LastAnalyzedCommit != "" {
			fmt.Printf("  Last analyzed commit: %s\n", shortSHA(repo.LastAnalyzedCommit))
			fmt.Printf("  Last refreshed: %s\n", repo.LastRefreshedAt.Format("2006-01-02 15:04:05"))
		}
		branches, err := store.ListBranches(ctx, repo.ID)
		if err != nil {
			return err
		}
		if len(branches) > 0 {
			fmt.Printf("  Branches (%d):\n", len(branches))
			for _, b := range branches {
				marker := " "
				if b.IsDefault {
					marker = "*"
				}
				fmt.Printf("   %s %-30s %s\n", marker, b.Name, shortSHA(b.HeadSHA))
			}
		}
		contributors, err := store.ListContributors(ctx, repo.ID)
		if err != nil {
			return err
		}
		if len(contributors) > 0 {
			fmt.Printf("  Contributors (%d):\n", len(contributors))
			for _, c := range contributors {
				fmt.Printf("    %-30s %4d commits  %s to %s\n",
					fmt.Sprintf("%s <%s>", c.Name, c.Email), c.TotalCommits,
					c.FirstCommit.Format("2006-01-02"), c.LastCommit.Format("2006-01-02"))
			}
		}
		return nil
	}

	repos, err := store.ListRepositories(ctx, "")
	if err != nil {
		return err
	}
	fmt.Printf("\n📦 Repositories (%d):\n", len(repos))
	for _, repo := range repos {
		fmt.Printf("  %-40s %s\n", repo.FullName, repo.Status)
	}
	return nil
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
