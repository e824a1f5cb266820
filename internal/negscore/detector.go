// Package negscore detects semantic code replacement: one contributor's
// function being rewritten by somebody else shortly after it landed. The
// accumulated weight of such events is a contributor's negative score.
package negscore

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"time"

	"github.com/codeprov/codeprov-go/internal/config"
	"github.com/codeprov/codeprov-go/internal/embed"
	"github.com/codeprov/codeprov-go/internal/models"
	"github.com/codeprov/codeprov-go/internal/storage"
)

var fixVocabulary = regexp.MustCompile(`(?i)\b(fix(e[sd])?|bug|broken|hotfix|regression|revert)\b`)

// Detector finds replacement events and recomputes contributor scores.
type Detector struct {
	store  storage.Store
	cfg    config.AnalysisConfig
	logger *slog.Logger
}

func NewDetector(store storage.Store, cfg config.AnalysisConfig) *Detector {
	return &Detector{
		store:  store,
		cfg:    cfg,
		logger: slog.Default().With("component", "negscore"),
	}
}

// CalculateForRepository runs a full recompute: scan every file's unit
// revision history for replacement events, persist the new ones (saves
// are idempotent by natural key), then rebuild all scores from the
// complete event set. Running it twice changes nothing.
func (d *Detector) CalculateForRepository(ctx context.Context, repoID string) error {
	files, err := d.store.ListFiles(ctx, repoID)
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.detectForFile(ctx, repoID, f.Path); err != nil {
			return fmt.Errorf("detect events in %s: %w", f.Path, err)
		}
	}

	events, err := d.store.ListReplacementEvents(ctx, repoID)
	if err != nil {
		return fmt.Errorf("list replacement events: %w", err)
	}
	scores := scoreEvents(repoID, events, d.cfg.FixMessageBoost)
	if err := d.store.ReplaceNegativeScores(ctx, repoID, scores); err != nil {
		return fmt.Errorf("replace negative scores: %w", err)
	}
	d.logger.Info("recomputed negative scores",
		"repo_id", repoID, "events", len(events), "contributors", len(scores))
	return nil
}

type unitRevision struct {
	commitSHA string
	author    string
	timestamp time.Time
	vector    []float32
}

func (d *Detector) detectForFile(ctx context.Context, repoID, path string) error {
	changes, err := d.store.ListFileChanges(ctx, repoID, path)
	if err != nil {
		return fmt.Errorf("list file changes: %w", err)
	}
	if len(changes) < 2 {
		return nil
	}
	embeddings, err := d.store.ListEmbeddings(ctx, repoID, path)
	if err != nil {
		return fmt.Errorf("list embeddings: %w", err)
	}

	order := make(map[string]int, len(changes))
	author := make(map[string]string, len(changes))
	when := make(map[string]time.Time, len(changes))
	for i, ch := range changes {
		order[ch.CommitSHA] = i
		author[ch.CommitSHA] = ch.AuthorEmail
		when[ch.CommitSHA] = ch.Timestamp
	}

	byUnit := make(map[string][]unitRevision)
	for _, e := range embeddings {
		a, ok := author[e.CommitSHA]
		if !ok {
			continue
		}
		byUnit[e.UnitName] = append(byUnit[e.UnitName], unitRevision{
			commitSHA: e.CommitSHA,
			author:    a,
			timestamp: when[e.CommitSHA],
			vector:    e.Vector,
		})
	}

	for unit, revs := range byUnit {
		sort.Slice(revs, func(i, j int) bool {
			return order[revs[i].commitSHA] < order[revs[j].commitSHA]
		})
		for i := 1; i < len(revs); i++ {
			prev, cur := revs[i-1], revs[i]
			if prev.author == cur.author {
				continue
			}
			delta := cur.timestamp.Sub(prev.timestamp)
			if delta < 0 || delta > d.cfg.ReplacementWindow {
				continue
			}
			sim := embed.Cosine(prev.vector, cur.vector)
			if sim >= d.cfg.ReplacementSimilarityMax {
				continue
			}

			fix := false
			if c, err := d.store.GetCommit(ctx, repoID, cur.commitSHA); err == nil {
				fix = fixVocabulary.MatchString(c.Message)
			}
			event := &models.CodeReplacementEvent{
				RepoID:          repoID,
				FilePath:        path,
				UnitName:        unit,
				OriginalAuthor:  prev.author,
				ReplacingAuthor: cur.author,
				OriginalCommit:  prev.commitSHA,
				ReplacingCommit: cur.commitSHA,
				TimeDelta:       delta,
				Similarity:      sim,
				FixSignal:       fix,
			}
			if err := d.store.SaveReplacementEvent(ctx, event); err != nil {
				return fmt.Errorf("save replacement event: %w", err)
			}
		}
	}
	return nil
}

// scoreEvents folds replacement events into per-contributor scores. The
// penalized party is the original author whose code was replaced.
func scoreEvents(repoID string, events []models.CodeReplacementEvent, fixBoost float64) []models.ContributorNegativeScore {
	totals := make(map[string]float64)
	counts := make(map[string]int)
	for _, e := range events {
		weight := 1.0 - e.Similarity
		if e.FixSignal {
			weight *= fixBoost
		}
		totals[e.OriginalAuthor] += weight
		counts[e.OriginalAuthor]++
	}

	scores := make([]models.ContributorNegativeScore, 0, len(totals))
	for author, total := range totals {
		scores = append(scores, models.ContributorNegativeScore{
			RepoID:      repoID,
			AuthorEmail: author,
			Score:       total,
			EventCount:  counts[author],
		})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].AuthorEmail < scores[j].AuthorEmail
	})
	return scores
}
