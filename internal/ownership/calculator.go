// Package ownership computes per-file semantic ownership weights from the
// embedding history of a file's function units.
package ownership

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/codeprov/codeprov-go/internal/embed"
	"github.com/codeprov/codeprov-go/internal/models"
	"github.com/codeprov/codeprov-go/internal/storage"
)

// Calculator derives ownership weights and persists them.
type Calculator struct {
	store  storage.Store
	logger *slog.Logger
}

func NewCalculator(store storage.Store) *Calculator {
	return &Calculator{
		store:  store,
		logger: slog.Default().With("component", "ownership"),
	}
}

// revision is one embedded snapshot of a function unit.
type revision struct {
	commitSHA string
	author    string
	timestamp time.Time
	vector    []float32
}

// CalculateForFile recomputes ownership weights for one file and replaces
// the stored rows. Weighting: the first revision of a unit credits its
// creator with 1.0; each later revision credits the revising author with
// (1 - cosine(prev, cur)), so rewrites earn more ownership than cosmetic
// edits. Weights are normalized across authors to sum to 1.
func (c *Calculator) CalculateForFile(ctx context.Context, repoID, path string) error {
	changes, err := c.store.ListFileChanges(ctx, repoID, path)
	if err != nil {
		return fmt.Errorf("list file changes: %w", err)
	}
	if len(changes) == 0 {
		return nil
	}

	embeddings, err := c.store.ListEmbeddings(ctx, repoID, path)
	if err != nil {
		return fmt.Errorf("list embeddings: %w", err)
	}

	weights := c.weightsFromEmbeddings(changes, embeddings)
	if len(weights) == 0 {
		// No embedded units yet. Fall back to counting commits so the
		// file still carries ownership data.
		weights = weightsByCommitCount(changes)
	}

	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		return nil
	}

	rows := make([]models.FileOwnership, 0, len(weights))
	for author, w := range weights {
		rows = append(rows, models.FileOwnership{
			RepoID:      repoID,
			FilePath:    path,
			AuthorEmail: author,
			Weight:      w / total,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Weight != rows[j].Weight {
			return rows[i].Weight > rows[j].Weight
		}
		return rows[i].AuthorEmail < rows[j].AuthorEmail
	})

	if err := c.store.ReplaceFileOwnership(ctx, repoID, path, rows); err != nil {
		return fmt.Errorf("replace ownership: %w", err)
	}
	c.logger.Debug("updated file ownership", "repo_id", repoID, "path", path, "authors", len(rows))
	return nil
}

// CalculateForRepository recomputes ownership for every known file.
func (c *Calculator) CalculateForRepository(ctx context.Context, repoID string) error {
	files, err := c.store.ListFiles(ctx, repoID)
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.CalculateForFile(ctx, repoID, f.Path); err != nil {
			return fmt.Errorf("ownership for %s: %w", f.Path, err)
		}
	}
	return nil
}

func (c *Calculator) weightsFromEmbeddings(changes []models.FileChange, embeddings []models.CodeEmbedding) map[string]float64 {
	if len(embeddings) == 0 {
		return nil
	}

	// Commit order and authorship come from the change history.
	order := make(map[string]int, len(changes))
	author := make(map[string]string, len(changes))
	when := make(map[string]time.Time, len(changes))
	for i, ch := range changes {
		order[ch.CommitSHA] = i
		author[ch.CommitSHA] = ch.AuthorEmail
		when[ch.CommitSHA] = ch.Timestamp
	}

	byUnit := make(map[string][]revision)
	for _, e := range embeddings {
		a, ok := author[e.CommitSHA]
		if !ok {
			// Embedding from a commit outside this file's recorded
			// history; skip rather than misattribute.
			continue
		}
		byUnit[e.UnitName] = append(byUnit[e.UnitName], revision{
			commitSHA: e.CommitSHA,
			author:    a,
			timestamp: when[e.CommitSHA],
			vector:    e.Vector,
		})
	}

	weights := make(map[string]float64)
	for _, revs := range byUnit {
		sort.Slice(revs, func(i, j int) bool {
			return order[revs[i].commitSHA] < order[revs[j].commitSHA]
		})
		for i, rev := range revs {
			if i == 0 {
				weights[rev.author] += 1.0
				continue
			}
			delta := 1.0 - embed.Cosine(revs[i-1].vector, rev.vector)
			if delta < 0 {
				delta = 0
			}
			weights[rev.author] += delta
		}
	}
	if len(weights) == 0 {
		return nil
	}
	return weights
}

func weightsByCommitCount(changes []models.FileChange) map[string]float64 {
	weights := make(map[string]float64, len(changes))
	for _, ch := range changes {
		weights[ch.AuthorEmail]++
	}
	return weights
}
