package ownership

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeprov/codeprov-go/internal/models"
	"github.com/codeprov/codeprov-go/internal/storage"
)

// vecWithCosine returns a unit vector whose cosine similarity to [1,0] is c.
func vecWithCosine(c float64) []float32 {
	return []float32{float32(c), float32(math.Sqrt(1 - c*c))}
}

func seedRevision(t *testing.T, s storage.Store, sha, author string, ts time.Time, vector []float32) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.SaveFileChange(ctx, &models.FileChange{
		RepoID: "r1", CommitSHA: sha, FilePath: "a.py",
		Author: author, AuthorEmail: author, Timestamp: ts,
	}))
	require.NoError(t, s.SaveEmbedding(ctx, &models.CodeEmbedding{
		ID: sha + "-foo", RepoID: "r1", FilePath: "a.py", CommitSHA: sha,
		UnitName: "foo", Vector: vector,
	}))
}

func TestOwnershipSumsToOne(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	seedRevision(t, s, "c1", "alice@example.com", base, []float32{1, 0})
	seedRevision(t, s, "c2", "bob@example.com", base.Add(time.Hour), vecWithCosine(0.2))
	seedRevision(t, s, "c3", "carol@example.com", base.Add(2*time.Hour), vecWithCosine(0.9))

	calc := NewCalculator(s)
	require.NoError(t, calc.CalculateForFile(ctx, "r1", "a.py"))

	weights, err := s.GetFileOwnership(ctx, "r1", "a.py")
	require.NoError(t, err)
	require.Len(t, weights, 3)

	sum := 0.0
	for _, w := range weights {
		sum += w.Weight
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestOwnershipRewardsRewrites(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// Alice creates the unit; Bob rewrites it almost completely
	// (cosine 0.2 -> delta 0.8). Raw weights: alice 1.0, bob 0.8.
	seedRevision(t, s, "c1", "alice@example.com", base, []float32{1, 0})
	seedRevision(t, s, "c2", "bob@example.com", base.Add(time.Hour), vecWithCosine(0.2))

	calc := NewCalculator(s)
	require.NoError(t, calc.CalculateForFile(ctx, "r1", "a.py"))

	weights, err := s.GetFileOwnership(ctx, "r1", "a.py")
	require.NoError(t, err)
	require.Len(t, weights, 2)

	byAuthor := map[string]float64{}
	for _, w := range weights {
		byAuthor[w.AuthorEmail] = w.Weight
	}
	assert.InDelta(t, 1.0/1.8, byAuthor["alice@example.com"], 1e-6)
	assert.InDelta(t, 0.8/1.8, byAuthor["bob@example.com"], 1e-6)
}

func TestOwnershipCosmeticEditEarnsNothing(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// Bob's revision is semantically identical to Alice's original.
	seedRevision(t, s, "c1", "alice@example.com", base, []float32{1, 0})
	seedRevision(t, s, "c2", "bob@example.com", base.Add(time.Hour), []float32{1, 0})

	calc := NewCalculator(s)
	require.NoError(t, calc.CalculateForFile(ctx, "r1", "a.py"))

	weights, err := s.GetFileOwnership(ctx, "r1", "a.py")
	require.NoError(t, err)

	byAuthor := map[string]float64{}
	for _, w := range weights {
		byAuthor[w.AuthorEmail] = w.Weight
	}
	assert.InDelta(t, 1.0, byAuthor["alice@example.com"], 1e-9)
	assert.InDelta(t, 0.0, byAuthor["bob@example.com"], 1e-9)
}

func TestOwnershipFallsBackToCommitCounts(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// Changes exist but no embeddings (e.g. extraction failed everywhere).
	for i, author := range []string{"alice@example.com", "alice@example.com", "bob@example.com", "dave@example.com"} {
		require.NoError(t, s.SaveFileChange(ctx, &models.FileChange{
			RepoID: "r1", CommitSHA: string(rune('a' + i)), FilePath: "a.py",
			AuthorEmail: author, Timestamp: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	calc := NewCalculator(s)
	require.NoError(t, calc.CalculateForFile(ctx, "r1", "a.py"))

	weights, err := s.GetFileOwnership(ctx, "r1", "a.py")
	require.NoError(t, err)
	require.Len(t, weights, 3)

	byAuthor := map[string]float64{}
	for _, w := range weights {
		byAuthor[w.AuthorEmail] = w.Weight
	}
	assert.InDelta(t, 0.5, byAuthor["alice@example.com"], 1e-9)
	assert.InDelta(t, 0.25, byAuthor["bob@example.com"], 1e-9)
}

func TestOwnershipRecomputeIdempotent(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	seedRevision(t, s, "c1", "alice@example.com", base, []float32{1, 0})
	seedRevision(t, s, "c2", "bob@example.com", base.Add(time.Hour), vecWithCosine(0.5))

	calc := NewCalculator(s)
	require.NoError(t, calc.CalculateForFile(ctx, "r1", "a.py"))
	first, err := s.GetFileOwnership(ctx, "r1", "a.py")
	require.NoError(t, err)

	require.NoError(t, calc.CalculateForFile(ctx, "r1", "a.py"))
	second, err := s.GetFileOwnership(ctx, "r1", "a.py")
	require.NoError(t, err)

	assert.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].AuthorEmail, second[i].AuthorEmail)
		assert.InDelta(t, first[i].Weight, second[i].Weight, 1e-12)
	}
}
