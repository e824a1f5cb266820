package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/codeprov/codeprov-go/internal/embed"
	"github.com/codeprov/codeprov-go/internal/models"
)

// MemoryStore is a fully in-process Store. It backs tests and offline runs;
// its claim/transition semantics are the reference behavior the SQL stores
// must match.
type MemoryStore struct {
	mu sync.Mutex

	repos       map[string]*models.Repository
	branches    map[string][]models.Branch                   // repoID
	commits     map[string]map[string]*models.Commit         // repoID -> sha
	commitRefs  map[string]map[string][]string               // repoID -> sha -> branches
	changes     map[string][]models.FileChange               // repoID
	files       map[string]map[string]models.RepositoryFile  // repoID -> path
	embeddings  map[string][]models.CodeEmbedding            // repoID
	deps        map[string]map[string][]string               // repoID -> fromPath -> toPaths
	ownership   map[string]map[string][]models.FileOwnership // repoID -> path
	prs         map[string]map[int]*models.PullRequest       // repoID -> number
	events      map[string][]models.CodeReplacementEvent     // repoID
	scores      map[string][]models.ContributorNegativeScore // repoID
	queue       []*models.WebhookQueueItem
	nextQueueID int64
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		repos:       make(map[string]*models.Repository),
		branches:    make(map[string][]models.Branch),
		commits:     make(map[string]map[string]*models.Commit),
		commitRefs:  make(map[string]map[string][]string),
		changes:     make(map[string][]models.FileChange),
		files:       make(map[string]map[string]models.RepositoryFile),
		embeddings:  make(map[string][]models.CodeEmbedding),
		deps:        make(map[string]map[string][]string),
		ownership:   make(map[string]map[string][]models.FileOwnership),
		prs:         make(map[string]map[int]*models.PullRequest),
		events:      make(map[string][]models.CodeReplacementEvent),
		scores:      make(map[string][]models.ContributorNegativeScore),
		nextQueueID: 1,
	}
}

func (s *MemoryStore) SaveRepository(_ context.Context, repo *models.Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *repo
	cp.UpdatedAt = time.Now()
	s.repos[repo.ID] = &cp
	return nil
}

func (s *MemoryStore) GetRepository(_ context.Context, repoID string) (*models.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	repo, ok := s.repos[repoID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *repo
	return &cp, nil
}

func (s *MemoryStore) GetRepositoryByFullName(_ context.Context, fullName string) (*models.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, repo := range s.repos {
		if strings.EqualFold(repo.FullName, fullName) {
			cp := *repo
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListRepositories(_ context.Context, status models.RepoStatus) ([]models.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Repository
	for _, repo := range s.repos {
		if status == "" || repo.Status == status {
			out = append(out, *repo)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (s *MemoryStore) UpdateRepositoryStatus(_ context.Context, repoID string, from, to models.RepoStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	repo, ok := s.repos[repoID]
	if !ok {
		return ErrNotFound
	}
	if repo.Status != from || !from.CanTransition(to) {
		return ErrConflict
	}
	repo.Status = to
	repo.StatusReason = reason
	repo.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SetLastAnalyzedCommit(_ context.Context, repoID, sha string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	repo, ok := s.repos[repoID]
	if !ok {
		return ErrNotFound
	}
	repo.LastAnalyzedCommit = sha
	repo.LastRefreshedAt = time.Now()
	return nil
}

func (s *MemoryStore) ResetInterruptedRepositories(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reset := 0
	for _, repo := range s.repos {
		if !repo.Status.Terminal() {
			repo.Status = models.RepoStatusPending
			repo.StatusReason = "interrupted run reset on startup"
			reset++
		}
	}
	return reset, nil
}

func (s *MemoryStore) SaveBranches(_ context.Context, repoID string, branches []models.Branch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]models.Branch, len(branches))
	copy(cp, branches)
	s.branches[repoID] = cp
	return nil
}

func (s *MemoryStore) ListBranches(_ context.Context, repoID string) ([]models.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Branch, len(s.branches[repoID]))
	copy(out, s.branches[repoID])
	return out, nil
}

func (s *MemoryStore) SaveCommit(_ context.Context, commit *models.Commit, branches []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commits[commit.RepoID] == nil {
		s.commits[commit.RepoID] = make(map[string]*models.Commit)
		s.commitRefs[commit.RepoID] = make(map[string][]string)
	}
	if _, exists := s.commits[commit.RepoID][commit.SHA]; !exists {
		cp := *commit
		s.commits[commit.RepoID][commit.SHA] = &cp
	}
	// Merge branch links: a commit may be reachable from several branches
	existing := s.commitRefs[commit.RepoID][commit.SHA]
	for _, b := range branches {
		found := false
		for _, e := range existing {
			if e == b {
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, b)
		}
	}
	s.commitRefs[commit.RepoID][commit.SHA] = existing
	return nil
}

func (s *MemoryStore) GetCommit(_ context.Context, repoID, sha string) (*models.Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	commit, ok := s.commits[repoID][sha]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *commit
	return &cp, nil
}

func (s *MemoryStore) ListContributors(_ context.Context, repoID string) ([]models.Contributor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byEmail := make(map[string]*models.Contributor)
	for _, c := range s.commits[repoID] {
		cur, ok := byEmail[c.AuthorEmail]
		if !ok {
			byEmail[c.AuthorEmail] = &models.Contributor{
				Email:        c.AuthorEmail,
				Name:         c.Author,
				FirstCommit:  c.Timestamp,
				LastCommit:   c.Timestamp,
				TotalCommits: 1,
			}
			continue
		}
		cur.TotalCommits++
		if c.Timestamp.Before(cur.FirstCommit) {
			cur.FirstCommit = c.Timestamp
		}
		if c.Timestamp.After(cur.LastCommit) {
			// The newest commit decides the display name.
			cur.LastCommit = c.Timestamp
			cur.Name = c.Author
		}
	}
	out := make([]models.Contributor, 0, len(byEmail))
	for _, c := range byEmail {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalCommits != out[j].TotalCommits {
			return out[i].TotalCommits > out[j].TotalCommits
		}
		return out[i].Email < out[j].Email
	})
	return out, nil
}

func (s *MemoryStore) HasFileChange(_ context.Context, repoID, sha, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.changes[repoID] {
		if c.CommitSHA == sha && c.FilePath == path {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) SaveFileChange(_ context.Context, change *models.FileChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.changes[change.RepoID] {
		if c.CommitSHA == change.CommitSHA && c.FilePath == change.FilePath {
			return nil // idempotent replay
		}
	}
	s.changes[change.RepoID] = append(s.changes[change.RepoID], *change)
	return nil
}

func (s *MemoryStore) ListFileChanges(_ context.Context, repoID, path string) ([]models.FileChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.FileChange
	for _, c := range s.changes[repoID] {
		if path == "" || c.FilePath == path {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].CommitSHA < out[j].CommitSHA
	})
	return out, nil
}

func (s *MemoryStore) UpsertFile(_ context.Context, file *models.RepositoryFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.files[file.RepoID] == nil {
		s.files[file.RepoID] = make(map[string]models.RepositoryFile)
	}
	s.files[file.RepoID][file.Path] = *file
	return nil
}

func (s *MemoryStore) ListFiles(_ context.Context, repoID string) ([]models.RepositoryFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RepositoryFile, 0, len(s.files[repoID]))
	for _, f := range s.files[repoID] {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *MemoryStore) SaveEmbedding(_ context.Context, emb *models.CodeEmbedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.embeddings[emb.RepoID] {
		if e.CommitSHA == emb.CommitSHA && e.FilePath == emb.FilePath && e.UnitName == emb.UnitName {
			return nil
		}
	}
	cp := *emb
	cp.Vector = append([]float32(nil), emb.Vector...)
	s.embeddings[emb.RepoID] = append(s.embeddings[emb.RepoID], cp)
	return nil
}

func (s *MemoryStore) HasEmbedding(_ context.Context, repoID, sha, path, unit string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.embeddings[repoID] {
		if e.CommitSHA == sha && e.FilePath == path && e.UnitName == unit {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) ListEmbeddings(_ context.Context, repoID, path string) ([]models.CodeEmbedding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CodeEmbedding
	for _, e := range s.embeddings[repoID] {
		if path == "" || e.FilePath == path {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) FindSimilarFiles(_ context.Context, vector []float32, repoID, excludePath string, limit int) ([]SimilarFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return rankSimilar(s.latestFileVectorsLocked(repoID), vector, excludePath, limit), nil
}

// latestFileVectorsLocked collapses each file's newest revision into a mean
// unit vector. Caller holds the lock.
func (s *MemoryStore) latestFileVectorsLocked(repoID string) map[string][]float32 {
	commitTime := func(sha string) time.Time {
		if c, ok := s.commits[repoID][sha]; ok {
			return c.Timestamp
		}
		return time.Time{}
	}

	latestSHA := make(map[string]string)
	for _, e := range s.embeddings[repoID] {
		cur, ok := latestSHA[e.FilePath]
		if !ok || commitTime(e.CommitSHA).After(commitTime(cur)) {
			latestSHA[e.FilePath] = e.CommitSHA
		}
	}

	vectors := make(map[string][][]float32)
	for _, e := range s.embeddings[repoID] {
		if latestSHA[e.FilePath] == e.CommitSHA {
			vectors[e.FilePath] = append(vectors[e.FilePath], e.Vector)
		}
	}

	out := make(map[string][]float32, len(vectors))
	for path, vecs := range vectors {
		out[path] = embed.Mean(vecs)
	}
	return out
}

func (s *MemoryStore) ReplaceDependencies(_ context.Context, repoID, fromPath string, toPaths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deps[repoID] == nil {
		s.deps[repoID] = make(map[string][]string)
	}
	s.deps[repoID][fromPath] = append([]string(nil), toPaths...)
	return nil
}

func (s *MemoryStore) ListDependencies(_ context.Context, repoID string) ([]models.Dependency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Dependency
	for from, tos := range s.deps[repoID] {
		for _, to := range tos {
			out = append(out, models.Dependency{RepoID: repoID, FromPath: from, ToPath: to})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FromPath != out[j].FromPath {
			return out[i].FromPath < out[j].FromPath
		}
		return out[i].ToPath < out[j].ToPath
	})
	return out, nil
}

func (s *MemoryStore) ReplaceFileOwnership(_ context.Context, repoID, path string, weights []models.FileOwnership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownership[repoID] == nil {
		s.ownership[repoID] = make(map[string][]models.FileOwnership)
	}
	cp := make([]models.FileOwnership, len(weights))
	copy(cp, weights)
	s.ownership[repoID][path] = cp
	return nil
}

func (s *MemoryStore) GetFileOwnership(_ context.Context, repoID, path string) ([]models.FileOwnership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.FileOwnership, len(s.ownership[repoID][path]))
	copy(out, s.ownership[repoID][path])
	return out, nil
}

func (s *MemoryStore) UpsertPullRequest(_ context.Context, pr *models.PullRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prs[pr.RepoID] == nil {
		s.prs[pr.RepoID] = make(map[int]*models.PullRequest)
	}
	cp := *pr
	cp.Files = append([]string(nil), pr.Files...)
	s.prs[pr.RepoID][pr.Number] = &cp
	return nil
}

func (s *MemoryStore) ListOpenPullRequests(_ context.Context, repoID string) ([]models.PullRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PullRequest
	for _, pr := range s.prs[repoID] {
		if pr.State == models.PRStateOpen {
			cp := *pr
			cp.Files = append([]string(nil), pr.Files...)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *MemoryStore) SaveReplacementEvent(_ context.Context, event *models.CodeReplacementEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events[event.RepoID] {
		if e.FilePath == event.FilePath && e.UnitName == event.UnitName &&
			e.OriginalCommit == event.OriginalCommit && e.ReplacingCommit == event.ReplacingCommit {
			return nil
		}
	}
	s.events[event.RepoID] = append(s.events[event.RepoID], *event)
	return nil
}

func (s *MemoryStore) ListReplacementEvents(_ context.Context, repoID string) ([]models.CodeReplacementEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CodeReplacementEvent, len(s.events[repoID]))
	copy(out, s.events[repoID])
	return out, nil
}

func (s *MemoryStore) ReplaceNegativeScores(_ context.Context, repoID string, scores []models.ContributorNegativeScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]models.ContributorNegativeScore, len(scores))
	copy(cp, scores)
	s.scores[repoID] = cp
	return nil
}

func (s *MemoryStore) ListNegativeScores(_ context.Context, repoID string) ([]models.ContributorNegativeScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ContributorNegativeScore, len(s.scores[repoID]))
	copy(out, s.scores[repoID])
	sort.Slice(out, func(i, j int) bool { return out[i].AuthorEmail < out[j].AuthorEmail })
	return out, nil
}

func (s *MemoryStore) EnqueueWebhook(_ context.Context, payload []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := &models.WebhookQueueItem{
		ID:        s.nextQueueID,
		Payload:   append([]byte(nil), payload...),
		Status:    models.QueueStatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	s.nextQueueID++
	s.queue = append(s.queue, item)
	return item.ID, nil
}

func (s *MemoryStore) ClaimNextPendingWebhook(_ context.Context) (*models.WebhookQueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.queue {
		if item.Status == models.QueueStatusPending {
			item.Status = models.QueueStatusProcessing
			item.UpdatedAt = time.Now()
			cp := *item
			cp.Payload = append([]byte(nil), item.Payload...)
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) MarkWebhookDone(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.queue {
		if item.ID == id {
			if !item.Status.CanTransition(models.QueueStatusDone) {
				return ErrConflict
			}
			item.Status = models.QueueStatusDone
			item.UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) MarkWebhookFailed(_ context.Context, id int64, reason string, maxRetries int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.queue {
		if item.ID == id {
			target := models.QueueStatusPending
			if item.RetryCount+1 >= maxRetries {
				target = models.QueueStatusFailed
			}
			// A failure mark only applies to a claimed item; a replay
			// against a terminally failed one must not requeue it.
			if item.Status != models.QueueStatusProcessing || !item.Status.CanTransition(target) {
				return ErrConflict
			}
			item.RetryCount++
			item.LastError = reason
			item.Status = target
			item.UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) Close() error {
	return nil
}
