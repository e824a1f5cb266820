package risk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeprov/codeprov-go/internal/config"
	"github.com/codeprov/codeprov-go/internal/models"
	"github.com/codeprov/codeprov-go/internal/storage"
)

func analysisDefaults() config.AnalysisConfig {
	return config.Default().Analysis
}

func seedPR(t *testing.T, s storage.Store, number int, files []string) {
	t.Helper()
	require.NoError(t, s.UpsertPullRequest(context.Background(), &models.PullRequest{
		RepoID: "r1", Number: number, Title: "change", State: models.PRStateOpen,
		Author: "bob", Files: files,
	}))
}

func seedFileVector(t *testing.T, s storage.Store, sha, path string, vector []float32) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.SaveCommit(ctx, &models.Commit{
		SHA: sha, RepoID: "r1", Author: "alice", AuthorEmail: "alice@example.com",
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}, []string{"main"}))
	require.NoError(t, s.SaveEmbedding(ctx, &models.CodeEmbedding{
		ID: sha + "-" + path, RepoID: "r1", FilePath: path, CommitSHA: sha,
		UnitName: "foo", Vector: vector,
	}))
}

func TestCalculateRiskStructuralOverlap(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	seedPR(t, s, 7, []string{"b.py", "c.py"})

	engine := NewEngine(s, analysisDefaults())
	assessment, err := engine.CalculateRisk(ctx, "r1", []string{"a.py", "b.py"}, nil)
	require.NoError(t, err)
	require.Len(t, assessment.Risks, 1)

	r := assessment.Risks[0]
	assert.Equal(t, 7, r.PRNumber)
	// One shared file out of two changed files.
	assert.InDelta(t, 0.5, r.Structural, 1e-9)
	assert.Equal(t, []string{"b.py"}, r.OverlapFiles)
	// No embeddings anywhere: semantic contributes nothing.
	assert.InDelta(t, 0.0, r.Semantic, 1e-9)
	assert.InDelta(t, 0.4*0.5, r.Combined, 1e-9)
}

func TestCalculateRiskZeroOverlapIsZero(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	seedPR(t, s, 3, []string{"x.py", "y.py"})

	engine := NewEngine(s, analysisDefaults())
	assessment, err := engine.CalculateRisk(ctx, "r1", []string{"a.py", "b.py"}, nil)
	require.NoError(t, err)
	require.Len(t, assessment.Risks, 1)

	r := assessment.Risks[0]
	assert.Zero(t, r.Structural)
	assert.Zero(t, r.Semantic)
	assert.Zero(t, r.Combined)
	assert.Empty(t, r.OverlapFiles)
}

func TestCalculateRiskSemanticFromVectors(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	seedPR(t, s, 7, []string{"b.py", "c.py"})
	seedFileVector(t, s, "c1", "b.py", []float32{1, 0})

	engine := NewEngine(s, analysisDefaults())
	assessment, err := engine.CalculateRisk(ctx, "r1", []string{"a.py", "b.py"},
		map[string][]float32{"b.py": {1, 0}})
	require.NoError(t, err)
	require.Len(t, assessment.Risks, 1)

	r := assessment.Risks[0]
	assert.InDelta(t, 0.5, r.Structural, 1e-9)
	assert.InDelta(t, 1.0, r.Semantic, 1e-6)
	assert.InDelta(t, 0.4*0.5+0.6*1.0, r.Combined, 1e-6)
}

func TestCalculateRiskRankingAndTiebreak(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	seedPR(t, s, 9, []string{"a.py"})
	seedPR(t, s, 2, []string{"a.py"})
	seedPR(t, s, 5, []string{"a.py", "b.py", "zz.py", "ww.py"})

	engine := NewEngine(s, analysisDefaults())
	assessment, err := engine.CalculateRisk(ctx, "r1", []string{"a.py", "b.py"}, nil)
	require.NoError(t, err)
	require.Len(t, assessment.Risks, 3)

	// PR 5 overlaps both changed files (structural 1.0); PRs 2 and 9 tie
	// at 0.5 and rank by number.
	assert.Equal(t, 5, assessment.Risks[0].PRNumber)
	assert.Equal(t, 2, assessment.Risks[1].PRNumber)
	assert.Equal(t, 9, assessment.Risks[2].PRNumber)
}

func TestCalculateRiskJaccardConvention(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	seedPR(t, s, 7, []string{"b.py", "c.py"})

	cfg := analysisDefaults()
	cfg.OverlapConvention = "jaccard"
	engine := NewEngine(s, cfg)
	assessment, err := engine.CalculateRisk(ctx, "r1", []string{"a.py", "b.py"}, nil)
	require.NoError(t, err)

	// Intersection {b.py}, union {a.py, b.py, c.py}.
	assert.InDelta(t, 1.0/3.0, assessment.Risks[0].Structural, 1e-9)
}

func TestDetectPRConflicts(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	seedPR(t, s, 1, []string{"a.py", "b.py"})
	seedPR(t, s, 2, []string{"b.py", "c.py"})
	seedPR(t, s, 3, []string{"z.py"})

	engine := NewEngine(s, analysisDefaults())
	conflicts, err := engine.DetectPRConflicts(ctx, "r1")
	require.NoError(t, err)

	// Only the 1-2 pair shares a file; disjoint pairs are dropped.
	require.Len(t, conflicts, 1)
	assert.Equal(t, 1, conflicts[0].PRNumberA)
	assert.Equal(t, 2, conflicts[0].PRNumberB)
	assert.Equal(t, []string{"b.py"}, conflicts[0].OverlapFiles)
	assert.Greater(t, conflicts[0].Combined, 0.0)
}

func TestImpactedViaDependencies(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	require.NoError(t, s.ReplaceDependencies(ctx, "r1", "api.py", []string{"core.py"}))
	require.NoError(t, s.ReplaceDependencies(ctx, "r1", "cli.py", []string{"api.py"}))

	engine := NewEngine(s, analysisDefaults())
	assessment, err := engine.CalculateRisk(ctx, "r1", []string{"core.py"}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"api.py", "cli.py"}, assessment.Impacted)
}

func TestSimilarFilesRanked(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	seedFileVector(t, s, "c1", "auth.py", []float32{1, 0})
	seedFileVector(t, s, "c1", "login.py", []float32{1, 0.1})
	seedFileVector(t, s, "c1", "billing.py", []float32{0, 1})

	engine := NewEngine(s, analysisDefaults())
	matches, err := engine.SimilarFiles(ctx, "r1", "auth.py", 10)
	require.NoError(t, err)

	require.Len(t, matches, 2)
	assert.Equal(t, "login.py", matches[0].Path)
	assert.Equal(t, "billing.py", matches[1].Path)
	assert.Greater(t, matches[0].Similarity, matches[1].Similarity)

	_, err = engine.SimilarFiles(ctx, "r1", "missing.py", 10)
	assert.Error(t, err)
}
