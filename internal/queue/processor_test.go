package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeprov/codeprov-go/internal/config"
	"github.com/codeprov/codeprov-go/internal/embed"
	"github.com/codeprov/codeprov-go/internal/extract"
	"github.com/codeprov/codeprov-go/internal/git"
	"github.com/codeprov/codeprov-go/internal/hosting"
	"github.com/codeprov/codeprov-go/internal/ingest"
	"github.com/codeprov/codeprov-go/internal/models"
	"github.com/codeprov/codeprov-go/internal/storage"
)

// emptyReader satisfies git.Reader for deliveries that never reach the
// filesystem.
type emptyReader struct{}

func (emptyReader) CloneOrFetch(context.Context, string, string) (string, error) {
	return "/tmp/none.git", nil
}
func (emptyReader) Branches(context.Context, string) ([]git.BranchRef, error) {
	return []git.BranchRef{{Name: "main"}}, nil
}
func (emptyReader) DefaultBranch(context.Context, string) (string, error) { return "main", nil }
func (emptyReader) Commits(context.Context, string, string) ([]git.Commit, error) {
	return nil, nil
}
func (emptyReader) CommitsSince(context.Context, string, string, string) ([]git.Commit, error) {
	return nil, nil
}
func (emptyReader) FileAt(context.Context, string, string, string) (string, error) {
	return "", nil
}

func testProcessor(store storage.Store) (*Processor, *hosting.FakePlatform) {
	cfg := config.Default()
	platform := hosting.NewFakePlatform()
	orchestrator := ingest.NewOrchestrator(store, emptyReader{}, extract.NewTreeSitterExtractor(),
		&embed.StaticEmbedder{Dim: 16}, platform, cfg)
	qcfg := cfg.Queue
	qcfg.PollInterval = 10 * time.Millisecond
	return NewProcessor(store, orchestrator, platform, qcfg), platform
}

func claimedItem(t *testing.T, s storage.Store, p *Processor, payload string) int64 {
	t.Helper()
	id, err := p.Enqueue(context.Background(), []byte(payload))
	require.NoError(t, err)
	item, err := s.ClaimNextPendingWebhook(context.Background())
	require.NoError(t, err)
	require.Equal(t, id, item.ID)
	return id
}

func TestProcessMalformedPayloadFailsTerminally(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	p, _ := testProcessor(s)

	id := claimedItem(t, s, p, "this is not json")
	p.process(ctx, id, []byte("this is not json"), time.Now())

	// Terminal: never offered for claim again.
	_, err := s.ClaimNextPendingWebhook(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProcessUnknownRepositoryFailsTerminally(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	p, _ := testProcessor(s)

	payload := `{"ref":"refs/heads/main","after":"abc","repository":{"full_name":"ghost/repo"},"commits":[]}`
	id := claimedItem(t, s, p, payload)
	p.process(ctx, id, []byte(payload), time.Now())

	_, err := s.ClaimNextPendingWebhook(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProcessKnownRepositorySucceeds(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	p, platform := testProcessor(s)

	require.NoError(t, s.SaveRepository(ctx, &models.Repository{
		ID: "r1", Owner: "acme", Name: "api", FullName: "acme/api",
		DefaultBranch: "main", Status: models.RepoStatusCompleted,
		LastAnalyzedCommit: "abc",
	}))

	payload := `{"ref":"refs/heads/main","after":"def","repository":{"full_name":"acme/api"},"commits":[]}`
	id := claimedItem(t, s, p, payload)
	p.process(ctx, id, []byte(payload), time.Now())

	repo, err := s.GetRepository(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "def", repo.LastAnalyzedCommit)
	assert.Equal(t, []hosting.CommitStatus{hosting.StatusSuccess}, platform.Statuses["acme/api@def"])

	_, err = s.ClaimNextPendingWebhook(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunDrainsQueueAndStopsOnCancel(t *testing.T) {
	s := storage.NewMemoryStore()
	p, _ := testProcessor(s)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := p.Enqueue(ctx, []byte("not json, will fail terminally"))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	// The malformed item must reach a terminal state.
	require.Eventually(t, func() bool {
		_, err := s.ClaimNextPendingWebhook(context.Background())
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancel")
	}
}
