package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeprov/codeprov-go/internal/models"
)

func seedRepo(t *testing.T, s Store, id string) *models.Repository {
	t.Helper()
	repo := &models.Repository{
		ID:       id,
		Owner:    "acme",
		Name:     "api",
		FullName: "acme/api",
		Status:   models.RepoStatusPending,
	}
	require.NoError(t, s.SaveRepository(context.Background(), repo))
	return repo
}

func TestUpdateRepositoryStatusCAS(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedRepo(t, s, "r1")

	require.NoError(t, s.UpdateRepositoryStatus(ctx, "r1", models.RepoStatusPending, models.RepoStatusCloning, ""))

	// Second run tries to start from pending but the row moved on.
	err := s.UpdateRepositoryStatus(ctx, "r1", models.RepoStatusPending, models.RepoStatusCloning, "")
	assert.ErrorIs(t, err, ErrConflict)

	// Illegal transitions are rejected even with a matching from status.
	err = s.UpdateRepositoryStatus(ctx, "r1", models.RepoStatusCloning, models.RepoStatusCompleted, "")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestResetInterruptedRepositories(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedRepo(t, s, "r1")
	require.NoError(t, s.UpdateRepositoryStatus(ctx, "r1", models.RepoStatusPending, models.RepoStatusCloning, ""))

	reset, err := s.ResetInterruptedRepositories(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reset)

	repo, err := s.GetRepository(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.RepoStatusPending, repo.Status)
}

func TestSaveFileChangeIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	change := &models.FileChange{
		RepoID: "r1", CommitSHA: "abc", FilePath: "a.py",
		AuthorEmail: "alice@example.com", Additions: 3, Timestamp: time.Now(),
	}
	require.NoError(t, s.SaveFileChange(ctx, change))
	require.NoError(t, s.SaveFileChange(ctx, change))

	changes, err := s.ListFileChanges(ctx, "r1", "a.py")
	require.NoError(t, err)
	assert.Len(t, changes, 1)
}

func TestSaveEmbeddingIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	emb := &models.CodeEmbedding{
		ID: "e1", RepoID: "r1", FilePath: "a.py", CommitSHA: "abc",
		UnitName: "foo", Vector: []float32{1, 0},
	}
	require.NoError(t, s.SaveEmbedding(ctx, emb))
	dup := *emb
	dup.ID = "e2"
	require.NoError(t, s.SaveEmbedding(ctx, &dup))

	embs, err := s.ListEmbeddings(ctx, "r1", "a.py")
	require.NoError(t, err)
	assert.Len(t, embs, 1)

	has, err := s.HasEmbedding(ctx, "r1", "abc", "a.py", "foo")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestConcurrentClaimNoDoubleDequeue(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	const items = 20
	for i := 0; i < items; i++ {
		_, err := s.EnqueueWebhook(ctx, []byte("payload"))
		require.NoError(t, err)
	}

	var mu sync.Mutex
	claimed := make(map[int64]int)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, err := s.ClaimNextPendingWebhook(ctx)
				if errors.Is(err, ErrNotFound) {
					return
				}
				require.NoError(t, err)
				mu.Lock()
				claimed[item.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, items)
	for id, count := range claimed {
		assert.Equal(t, 1, count, "item %d claimed %d times", id, count)
	}
}

func TestWebhookRetryBookkeeping(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id, err := s.EnqueueWebhook(ctx, []byte("p"))
	require.NoError(t, err)

	const maxRetries = 3
	for attempt := 1; attempt <= maxRetries; attempt++ {
		item, err := s.ClaimNextPendingWebhook(ctx)
		require.NoError(t, err)
		require.Equal(t, id, item.ID)
		require.NoError(t, s.MarkWebhookFailed(ctx, id, "boom", maxRetries))
	}

	// Budget exhausted: nothing left to claim.
	_, err = s.ClaimNextPendingWebhook(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkWebhookFailedRequiresProcessing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id, err := s.EnqueueWebhook(ctx, []byte("p"))
	require.NoError(t, err)

	// Not claimed yet: a failure mark is an illegal transition.
	assert.ErrorIs(t, s.MarkWebhookFailed(ctx, id, "boom", 1), ErrConflict)

	// Terminal failure, then a replayed mark: the item must stay failed
	// instead of sneaking back to pending.
	_, err = s.ClaimNextPendingWebhook(ctx)
	require.NoError(t, err)
	require.NoError(t, s.MarkWebhookFailed(ctx, id, "boom", 1))
	assert.ErrorIs(t, s.MarkWebhookFailed(ctx, id, "boom again", 1), ErrConflict)

	_, err = s.ClaimNextPendingWebhook(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkWebhookDoneRequiresProcessing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id, err := s.EnqueueWebhook(ctx, []byte("p"))
	require.NoError(t, err)

	// Not claimed yet: done is an illegal transition.
	assert.Error(t, s.MarkWebhookDone(ctx, id))

	_, err = s.ClaimNextPendingWebhook(ctx)
	require.NoError(t, err)
	assert.NoError(t, s.MarkWebhookDone(ctx, id))
}

func TestReplaceFileOwnership(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first := []models.FileOwnership{
		{RepoID: "r1", FilePath: "a.py", AuthorEmail: "alice@example.com", Weight: 1},
	}
	require.NoError(t, s.ReplaceFileOwnership(ctx, "r1", "a.py", first))

	second := []models.FileOwnership{
		{RepoID: "r1", FilePath: "a.py", AuthorEmail: "alice@example.com", Weight: 0.6},
		{RepoID: "r1", FilePath: "a.py", AuthorEmail: "bob@example.com", Weight: 0.4},
	}
	require.NoError(t, s.ReplaceFileOwnership(ctx, "r1", "a.py", second))

	got, err := s.GetFileOwnership(ctx, "r1", "a.py")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSaveReplacementEventIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	event := &models.CodeReplacementEvent{
		RepoID: "r1", FilePath: "a.py", UnitName: "foo",
		OriginalAuthor: "alice@example.com", ReplacingAuthor: "bob@example.com",
		OriginalCommit: "c1", ReplacingCommit: "c2",
		Similarity: 0.2, TimeDelta: 2 * time.Hour,
	}
	require.NoError(t, s.SaveReplacementEvent(ctx, event))
	require.NoError(t, s.SaveReplacementEvent(ctx, event))

	events, err := s.ListReplacementEvents(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestListContributors(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	commits := []*models.Commit{
		{SHA: "c1", RepoID: "r1", Author: "Alice", AuthorEmail: "alice@example.com", Timestamp: base},
		{SHA: "c2", RepoID: "r1", Author: "Bob", AuthorEmail: "bob@example.com", Timestamp: base.Add(time.Hour)},
		{SHA: "c3", RepoID: "r1", Author: "A. Liddell", AuthorEmail: "alice@example.com", Timestamp: base.Add(2 * time.Hour)},
	}
	for _, c := range commits {
		require.NoError(t, s.SaveCommit(ctx, c, []string{"main"}))
	}

	got, err := s.ListContributors(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Busiest author first, and the newest commit decides the display name.
	assert.Equal(t, "alice@example.com", got[0].Email)
	assert.Equal(t, "A. Liddell", got[0].Name)
	assert.Equal(t, 2, got[0].TotalCommits)
	assert.Equal(t, base, got[0].FirstCommit)
	assert.Equal(t, base.Add(2*time.Hour), got[0].LastCommit)

	assert.Equal(t, "bob@example.com", got[1].Email)
	assert.Equal(t, 1, got[1].TotalCommits)
}
