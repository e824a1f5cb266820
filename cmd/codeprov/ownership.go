package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var ownershipCmd = &cobra.Command{
	Use:   "ownership <owner/repo> <file>",
	Short: "Show semantic ownership weights for a file",
	Args:  cobra.ExactArgs(2),
	RunE:  runOwnership,
}

func runOwnership(cmd *cobra.Command, args []string) error {
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

	weights, err := store.GetFileOwnership(ctx, repo.ID, args[1])
	if err != nil {
		return err
	}

	fmt.Printf("👥 Ownership of %s in %s\n", args[1], args[0])
	fmt.Printf("%s\n", strings.Repeat("═", 60))
	if len(weights) == 0 {
		fmt.Println("No ownership data; file may not be a tracked source file.")
		return nil
	}
	for _, w := range weights {
		bar := strings.Repeat("█", int(w.Weight*30))
		fmt.Printf("  %-40s %6.1f%% %s\n", w.AuthorEmail, w.Weight*100, bar)
	}
	return nil
}
