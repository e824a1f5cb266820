// Package risk scores how strongly a push or pull request collides with
// the other open pull requests of a repository, structurally (shared
// files) and semantically (embedding similarity of the shared files).
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/samber/lo"

	"github.com/codeprov/codeprov-go/internal/config"
	"github.com/codeprov/codeprov-go/internal/deps"
	"github.com/codeprov/codeprov-go/internal/embed"
	"github.com/codeprov/codeprov-go/internal/storage"
)

// PRRisk is the score of one open pull request against a set of changes.
type PRRisk struct {
	PRNumber     int      `json:"pr_number"`
	Title        string   `json:"title"`
	Author       string   `json:"author"`
	Structural   float64  `json:"structural"`
	Semantic     float64  `json:"semantic"`
	Combined     float64  `json:"combined"`
	OverlapFiles []string `json:"overlap_files"`
}

// Assessment is the full result for a push.
type Assessment struct {
	RepoID       string   `json:"repo_id"`
	ChangedFiles []string `json:"changed_files"`
	Risks        []PRRisk `json:"risks"`
	// Impacted lists files that transitively import the changed files.
	Impacted []string `json:"impacted"`
}

// Conflict is a scored pair of open pull requests touching related code.
type Conflict struct {
	PRNumberA    int      `json:"pr_number_a"`
	PRNumberB    int      `json:"pr_number_b"`
	Structural   float64  `json:"structural"`
	Semantic     float64  `json:"semantic"`
	Combined     float64  `json:"combined"`
	OverlapFiles []string `json:"overlap_files"`
}

// Engine computes risk scores from stored state.
type Engine struct {
	store  storage.Store
	cfg    config.AnalysisConfig
	logger *slog.Logger
}

func NewEngine(store storage.Store, cfg config.AnalysisConfig) *Engine {
	return &Engine{
		store:  store,
		cfg:    cfg,
		logger: slog.Default().With("component", "risk"),
	}
}

// CalculateRisk scores changedFiles against every open pull request.
// newVectors carries file-level vectors for the changed files at the new
// revision; files without a vector fall back to the latest stored one.
// Results are ranked by combined score descending, ties broken by PR
// number ascending.
func (e *Engine) CalculateRisk(ctx context.Context, repoID string, changedFiles []string, newVectors map[string][]float32) (*Assessment, error) {
	prs, err := e.store.ListOpenPullRequests(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("list open pull requests: %w", err)
	}

	stored, err := e.fileVectors(ctx, repoID)
	if err != nil {
		return nil, err
	}
	changedVectors := make(map[string][]float32, len(changedFiles))
	for _, f := range changedFiles {
		if v, ok := newVectors[f]; ok {
			changedVectors[f] = v
		} else if v, ok := stored[f]; ok {
			changedVectors[f] = v
		}
	}

	risks := make([]PRRisk, 0, len(prs))
	for _, pr := range prs {
		structural, semantic, overlap := e.score(changedFiles, pr.Files, changedVectors, stored)
		risks = append(risks, PRRisk{
			PRNumber:     pr.Number,
			Title:        pr.Title,
			Author:       pr.Author,
			Structural:   structural,
			Semantic:     semantic,
			Combined:     e.combine(structural, semantic),
			OverlapFiles: overlap,
		})
	}
	sort.Slice(risks, func(i, j int) bool {
		if risks[i].Combined != risks[j].Combined {
			return risks[i].Combined > risks[j].Combined
		}
		return risks[i].PRNumber < risks[j].PRNumber
	})

	impacted, err := e.impacted(ctx, repoID, changedFiles)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("calculated push risk",
		"repo_id", repoID, "changed_files", len(changedFiles), "open_prs", len(prs))
	return &Assessment{
		RepoID:       repoID,
		ChangedFiles: changedFiles,
		Risks:        risks,
		Impacted:     impacted,
	}, nil
}

// DetectPRConflicts scores every pair of open pull requests and returns
// the pairs with a non-zero combined score, ranked descending.
func (e *Engine) DetectPRConflicts(ctx context.Context, repoID string) ([]Conflict, error) {
	prs, err := e.store.ListOpenPullRequests(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("list open pull requests: %w", err)
	}
	stored, err := e.fileVectors(ctx, repoID)
	if err != nil {
		return nil, err
	}

	var conflicts []Conflict
	for i := 0; i < len(prs); i++ {
		for j := i + 1; j < len(prs); j++ {
			structural, semantic, overlap := e.score(prs[i].Files, prs[j].Files, stored, stored)
			combined := e.combine(structural, semantic)
			if combined == 0 {
				continue
			}
			a, b := prs[i].Number, prs[j].Number
			if a > b {
				a, b = b, a
			}
			conflicts = append(conflicts, Conflict{
				PRNumberA:    a,
				PRNumberB:    b,
				Structural:   structural,
				Semantic:     semantic,
				Combined:     combined,
				OverlapFiles: overlap,
			})
		}
	}
	sort.Slice(conflicts, func(i, j int) bool {
		if conflicts[i].Combined != conflicts[j].Combined {
			return conflicts[i].Combined > conflicts[j].Combined
		}
		if conflicts[i].PRNumberA != conflicts[j].PRNumberA {
			return conflicts[i].PRNumberA < conflicts[j].PRNumberA
		}
		return conflicts[i].PRNumberB < conflicts[j].PRNumberB
	})
	return conflicts, nil
}

// SimilarFiles returns up to limit files whose latest file-level vector is
// nearest to the given file's, most similar first.
func (e *Engine) SimilarFiles(ctx context.Context, repoID, path string, limit int) ([]storage.SimilarFile, error) {
	stored, err := e.fileVectors(ctx, repoID)
	if err != nil {
		return nil, err
	}
	vector, ok := stored[path]
	if !ok {
		return nil, fmt.Errorf("no embeddings recorded for %s", path)
	}
	return e.store.FindSimilarFiles(ctx, vector, repoID, path, limit)
}

// score computes structural and semantic overlap of changed against other.
// changedVectors and otherVectors map file paths to file-level vectors.
func (e *Engine) score(changed, other []string, changedVectors, otherVectors map[string][]float32) (structural, semantic float64, overlap []string) {
	overlap = lo.Intersect(changed, other)
	sort.Strings(overlap)
	if len(changed) == 0 || len(overlap) == 0 {
		return 0, 0, overlap
	}

	switch e.cfg.OverlapConvention {
	case "jaccard":
		union := lo.Union(changed, other)
		structural = float64(len(overlap)) / float64(len(union))
	default:
		structural = float64(len(overlap)) / float64(len(changed))
	}

	var sum float64
	var n int
	for _, f := range overlap {
		a, okA := changedVectors[f]
		b, okB := otherVectors[f]
		if !okA || !okB {
			continue
		}
		sum += embed.Cosine(a, b)
		n++
	}
	if n > 0 {
		semantic = sum / float64(n)
	}
	return structural, semantic, overlap
}

func (e *Engine) combine(structural, semantic float64) float64 {
	return e.cfg.StructuralWeight*structural + e.cfg.SemanticWeight*semantic
}

// fileVectors returns the latest file-level vector for every embedded file,
// averaging the unit vectors at each file's most recent embedded commit.
func (e *Engine) fileVectors(ctx context.Context, repoID string) (map[string][]float32, error) {
	embeddings, err := e.store.ListEmbeddings(ctx, repoID, "")
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	if len(embeddings) == 0 {
		return map[string][]float32{}, nil
	}

	// Pick the latest commit per file by commit timestamp.
	latest := make(map[string]struct {
		sha  string
		when int64
	})
	commitTime := make(map[string]int64)
	for _, emb := range embeddings {
		ts, ok := commitTime[emb.CommitSHA]
		if !ok {
			c, err := e.store.GetCommit(ctx, repoID, emb.CommitSHA)
			if err != nil {
				continue
			}
			ts = c.Timestamp.UnixNano()
			commitTime[emb.CommitSHA] = ts
		}
		cur, seen := latest[emb.FilePath]
		if !seen || ts > cur.when {
			latest[emb.FilePath] = struct {
				sha  string
				when int64
			}{emb.CommitSHA, ts}
		}
	}

	grouped := make(map[string][][]float32)
	for _, emb := range embeddings {
		if latest[emb.FilePath].sha == emb.CommitSHA {
			grouped[emb.FilePath] = append(grouped[emb.FilePath], emb.Vector)
		}
	}
	vectors := make(map[string][]float32, len(grouped))
	for path, vecs := range grouped {
		vectors[path] = embed.Mean(vecs)
	}
	return vectors, nil
}

func (e *Engine) impacted(ctx context.Context, repoID string, changedFiles []string) ([]string, error) {
	edges, err := e.store.ListDependencies(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}
	if len(edges) == 0 {
		return nil, nil
	}
	return deps.NewGraph(edges).Impacted(changedFiles, 0), nil
}
