// Package ingest drives the full analysis pipeline for a repository:
// clone, history walk, function extraction, embedding, and ownership
// recompute, with status persisted at every phase boundary.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/codeprov/codeprov-go/internal/config"
	"github.com/codeprov/codeprov-go/internal/deps"
	"github.com/codeprov/codeprov-go/internal/embed"
	"github.com/codeprov/codeprov-go/internal/extract"
	"github.com/codeprov/codeprov-go/internal/git"
	"github.com/codeprov/codeprov-go/internal/hosting"
	"github.com/codeprov/codeprov-go/internal/metrics"
	"github.com/codeprov/codeprov-go/internal/models"
	"github.com/codeprov/codeprov-go/internal/ownership"
	"github.com/codeprov/codeprov-go/internal/storage"
)

// ErrRunInProgress is returned when AnalyzeRepository is asked to start
// while another run holds the repository's status.
var ErrRunInProgress = errors.New("analysis already in progress for repository")

// Orchestrator owns the end-to-end pipeline.
type Orchestrator struct {
	store     storage.Store
	reader    git.Reader
	extractor extract.Extractor
	embedder  embed.Embedder
	platform  hosting.Platform
	owners    *ownership.Calculator
	cfg       *config.Config
	logger    *slog.Logger
}

func NewOrchestrator(store storage.Store, reader git.Reader, extractor extract.Extractor, embedder embed.Embedder, platform hosting.Platform, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		store:     store,
		reader:    reader,
		extractor: extractor,
		embedder:  embedder,
		platform:  platform,
		owners:    ownership.NewCalculator(store),
		cfg:       cfg,
		logger:    slog.Default().With("component", "ingest"),
	}
}

// AnalyzeRepository runs the full pipeline for owner/name. The repository
// row is created if missing. Exactly one run can hold a repository at a
// time: the pending -> cloning transition is a compare-and-swap in the
// store, and a second caller gets ErrRunInProgress.
func (o *Orchestrator) AnalyzeRepository(ctx context.Context, owner, name string) (err error) {
	started := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		metrics.AnalysisRuns.WithLabelValues(outcome).Inc()
		metrics.AnalysisDuration.Observe(time.Since(started).Seconds())
	}()

	repo, err := o.ensureRepository(ctx, owner, name)
	if err != nil {
		return err
	}
	log := o.logger.With("repo", repo.FullName, "repo_id", repo.ID)

	if err := o.transition(ctx, repo.ID, repo.Status, models.RepoStatusCloning, ""); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return ErrRunInProgress
		}
		return err
	}
	// Any error past this point parks the repository in failed with the
	// cause recorded, so the row never sticks in a transient state.
	defer func() {
		if err != nil {
			o.fail(repo.ID, err)
		}
	}()

	log.Info("cloning repository", "url", repo.CloneURL)
	clonePath, err := o.reader.CloneOrFetch(ctx, repo.CloneURL, repo.ID)
	if err != nil {
		return fmt.Errorf("clone %s: %w", repo.FullName, err)
	}
	repo.ClonePath = clonePath

	defaultBranch, err := o.reader.DefaultBranch(ctx, clonePath)
	if err != nil {
		return err
	}
	repo.DefaultBranch = defaultBranch
	if err := o.store.SaveRepository(ctx, repo); err != nil {
		return err
	}

	if err := o.transition(ctx, repo.ID, models.RepoStatusCloning, models.RepoStatusWalking, ""); err != nil {
		return err
	}
	changedFiles, headSHA, err := o.walkHistory(ctx, repo)
	if err != nil {
		return err
	}

	if err := o.transition(ctx, repo.ID, models.RepoStatusWalking, models.RepoStatusExtracting, ""); err != nil {
		return err
	}
	if err := o.transition(ctx, repo.ID, models.RepoStatusExtracting, models.RepoStatusEmbedding, ""); err != nil {
		return err
	}
	if err := o.extractAndEmbed(ctx, repo, changedFiles); err != nil {
		return err
	}

	if err := o.transition(ctx, repo.ID, models.RepoStatusEmbedding, models.RepoStatusComputingOwnership, ""); err != nil {
		return err
	}
	if err := o.owners.CalculateForRepository(ctx, repo.ID); err != nil {
		return err
	}

	if err := o.syncPullRequests(ctx, repo); err != nil {
		// Risk queries degrade to an empty PR set; the analysis itself
		// is still complete.
		log.Warn("pull request sync failed", "error", err)
	}

	if err := o.registerWebhook(ctx, repo); err != nil {
		// Webhook registration failing should not fail an otherwise
		// complete analysis; incremental updates just won't arrive.
		log.Warn("webhook registration failed", "error", err)
	}

	if headSHA != "" {
		if err := o.store.SetLastAnalyzedCommit(ctx, repo.ID, headSHA); err != nil {
			return err
		}
	}
	if err := o.transition(ctx, repo.ID, models.RepoStatusComputingOwnership, models.RepoStatusCompleted, ""); err != nil {
		return err
	}
	log.Info("analysis completed", "duration", time.Since(started), "files", len(changedFiles))
	return nil
}

// ProcessIncrementalUpdate re-runs the pipeline scoped to the files of a
// single push. Safe to replay: persistence is idempotent by natural key.
// The repository status is claimed for the duration of the run through the
// same compare-and-swap as a full run, so concurrent incremental updates
// and full analyses exclude each other.
func (o *Orchestrator) ProcessIncrementalUpdate(ctx context.Context, repoID, headSHA string, changedFiles []string) (err error) {
	repo, err := o.store.GetRepository(ctx, repoID)
	if err != nil {
		return err
	}
	if err := o.transition(ctx, repo.ID, repo.Status, models.RepoStatusUpdating, ""); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return ErrRunInProgress
		}
		return err
	}
	defer func() {
		if err != nil {
			o.fail(repo.ID, err)
		}
	}()
	log := o.logger.With("repo", repo.FullName, "head", headSHA)
	log.Info("processing incremental update", "changed_files", len(changedFiles))

	clonePath, err := o.reader.CloneOrFetch(ctx, repo.CloneURL, repo.ID)
	if err != nil {
		return fmt.Errorf("refresh clone: %w", err)
	}
	repo.ClonePath = clonePath

	branch := repo.DefaultBranch
	commits, err := o.reader.CommitsSince(ctx, clonePath, branch, repo.LastAnalyzedCommit)
	if err != nil {
		// The last analyzed commit can vanish on force-push; fall back
		// to the full branch history, idempotent writes absorb the replay.
		commits, err = o.reader.Commits(ctx, clonePath, branch)
		if err != nil {
			return err
		}
	}

	scope := make(map[string]struct{}, len(changedFiles))
	for _, f := range changedFiles {
		scope[f] = struct{}{}
	}

	touched, err := o.persistCommits(ctx, repo, branch, commits, scope)
	if err != nil {
		return err
	}
	if err := o.extractAndEmbed(ctx, repo, touched); err != nil {
		return err
	}
	for path := range touched {
		if err := o.owners.CalculateForFile(ctx, repo.ID, path); err != nil {
			return err
		}
	}
	if err := o.syncPullRequests(ctx, repo); err != nil {
		log.Warn("pull request sync failed", "error", err)
	}
	if headSHA != "" {
		if err := o.store.SetLastAnalyzedCommit(ctx, repo.ID, headSHA); err != nil {
			return err
		}
	}
	if err := o.transition(ctx, repo.ID, models.RepoStatusUpdating, models.RepoStatusCompleted, ""); err != nil {
		return err
	}
	log.Info("incremental update done", "touched_files", len(touched))
	return nil
}

func (o *Orchestrator) ensureRepository(ctx context.Context, owner, name string) (*models.Repository, error) {
	fullName := owner + "/" + name
	repo, err := o.store.GetRepositoryByFullName(ctx, fullName)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	info, err := o.platform.FetchRepository(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("fetch repository metadata: %w", err)
	}
	repo = &models.Repository{
		ID:            uuid.NewString(),
		Owner:         info.Owner,
		Name:          info.Name,
		FullName:      info.FullName,
		CloneURL:      info.CloneURL,
		DefaultBranch: info.DefaultBranch,
		Status:        models.RepoStatusPending,
		CreatedAt:     time.Now(),
	}
	if err := o.store.SaveRepository(ctx, repo); err != nil {
		return nil, err
	}
	return repo, nil
}

func (o *Orchestrator) transition(ctx context.Context, repoID string, from, to models.RepoStatus, reason string) error {
	return o.store.UpdateRepositoryStatus(ctx, repoID, from, to, reason)
}

// fail parks the repository in failed regardless of which phase it was in.
// Uses a fresh context so cancellation of the run still records the cause.
func (o *Orchestrator) fail(repoID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	repo, err := o.store.GetRepository(ctx, repoID)
	if err != nil {
		o.logger.Error("cannot load repository to record failure", "repo_id", repoID, "error", err)
		return
	}
	if repo.Status.Terminal() {
		return
	}
	if err := o.store.UpdateRepositoryStatus(ctx, repoID, repo.Status, models.RepoStatusFailed, cause.Error()); err != nil {
		o.logger.Error("cannot record failure status", "repo_id", repoID, "error", err)
	}
}

// walkHistory persists all branches, commits, and file changes, returning
// the set of source files touched anywhere in history plus the default
// branch head.
func (o *Orchestrator) walkHistory(ctx context.Context, repo *models.Repository) (map[string]struct{}, string, error) {
	refs, err := o.reader.Branches(ctx, repo.ClonePath)
	if err != nil {
		return nil, "", err
	}
	branches := make([]models.Branch, len(refs))
	var headSHA string
	for i, ref := range refs {
		branches[i] = models.Branch{
			RepoID:    repo.ID,
			Name:      ref.Name,
			HeadSHA:   ref.HeadSHA,
			IsDefault: ref.Name == repo.DefaultBranch,
		}
		if ref.Name == repo.DefaultBranch {
			headSHA = ref.HeadSHA
		}
	}
	if err := o.store.SaveBranches(ctx, repo.ID, branches); err != nil {
		return nil, "", err
	}

	touched := make(map[string]struct{})
	for _, ref := range refs {
		commits, err := o.reader.Commits(ctx, repo.ClonePath, ref.Name)
		if err != nil {
			return nil, "", fmt.Errorf("walk branch %s: %w", ref.Name, err)
		}
		files, err := o.persistCommits(ctx, repo, ref.Name, commits, nil)
		if err != nil {
			return nil, "", err
		}
		for f := range files {
			touched[f] = struct{}{}
		}
	}
	return touched, headSHA, nil
}

// persistCommits writes commits and their file changes. When scope is
// non-nil only files inside it are recorded. Returns the touched source
// files.
func (o *Orchestrator) persistCommits(ctx context.Context, repo *models.Repository, branch string, commits []git.Commit, scope map[string]struct{}) (map[string]struct{}, error) {
	touched := make(map[string]struct{})
	for _, c := range commits {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := o.store.SaveCommit(ctx, &models.Commit{
			SHA:         c.SHA,
			RepoID:      repo.ID,
			Author:      c.Author,
			AuthorEmail: c.AuthorEmail,
			Message:     c.Message,
			Timestamp:   c.Timestamp,
		}, []string{branch}); err != nil {
			return nil, fmt.Errorf("save commit %s: %w", c.SHA, err)
		}
		metrics.CommitsProcessed.Inc()

		for _, fs := range c.Files {
			if !git.IsSourceFile(fs.Path) {
				continue
			}
			if scope != nil {
				if _, ok := scope[fs.Path]; !ok {
					continue
				}
			}
			exists, err := o.store.HasFileChange(ctx, repo.ID, c.SHA, fs.Path)
			if err != nil {
				return nil, err
			}
			if !exists {
				if err := o.store.SaveFileChange(ctx, &models.FileChange{
					RepoID:      repo.ID,
					CommitSHA:   c.SHA,
					FilePath:    fs.Path,
					Author:      c.Author,
					AuthorEmail: c.AuthorEmail,
					Additions:   fs.Additions,
					Deletions:   fs.Deletions,
					Timestamp:   c.Timestamp,
				}); err != nil {
					return nil, fmt.Errorf("save file change: %w", err)
				}
			}
			if err := o.store.UpsertFile(ctx, &models.RepositoryFile{
				RepoID:   repo.ID,
				Path:     fs.Path,
				Language: git.DetectLanguage(fs.Path),
			}); err != nil {
				return nil, err
			}
			touched[fs.Path] = struct{}{}
		}
	}
	return touched, nil
}

// extractAndEmbed parses and embeds every revision of the given files,
// bounded by the configured worker count. Per-unit failures retry with
// exponential backoff and are skipped (and counted) on exhaustion; only
// infrastructure errors abort the run.
func (o *Orchestrator) extractAndEmbed(ctx context.Context, repo *models.Repository, files map[string]struct{}) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Pipeline.Workers)

	for path := range files {
		path := path
		g.Go(func() error {
			return o.processFileHistory(gctx, repo, path)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return o.rebuildDependencies(ctx, repo)
}

func (o *Orchestrator) processFileHistory(ctx context.Context, repo *models.Repository, path string) error {
	language := git.DetectLanguage(path)
	if language == "" {
		return nil
	}
	changes, err := o.store.ListFileChanges(ctx, repo.ID, path)
	if err != nil {
		return err
	}

	for _, ch := range changes {
		if err := ctx.Err(); err != nil {
			return err
		}
		content, err := o.reader.FileAt(ctx, repo.ClonePath, ch.CommitSHA, path)
		if err != nil {
			// Deleted in this commit, or path renamed away. Nothing to
			// parse at this revision.
			continue
		}
		result, err := o.parseWithRetry(ctx, content, language)
		if err != nil {
			o.logger.Warn("extraction skipped after retries",
				"repo_id", repo.ID, "path", path, "commit", ch.CommitSHA, "error", err)
			metrics.UnitsSkipped.WithLabelValues("extract").Inc()
			continue
		}

		for _, fn := range result.Functions {
			done, err := o.store.HasEmbedding(ctx, repo.ID, ch.CommitSHA, path, fn.Name)
			if err != nil {
				return err
			}
			if done {
				continue
			}
			vector, err := o.embedWithRetry(ctx, fn.Code)
			if err != nil {
				o.logger.Warn("embedding skipped after retries",
					"repo_id", repo.ID, "path", path, "unit", fn.Name, "error", err)
				metrics.UnitsSkipped.WithLabelValues("embed").Inc()
				continue
			}
			if err := o.store.SaveEmbedding(ctx, &models.CodeEmbedding{
				ID:        uuid.NewString(),
				RepoID:    repo.ID,
				FilePath:  path,
				CommitSHA: ch.CommitSHA,
				UnitName:  fn.Name,
				StartLine: fn.StartLine,
				EndLine:   fn.EndLine,
				Vector:    vector,
			}); err != nil {
				return fmt.Errorf("save embedding: %w", err)
			}
			metrics.UnitsEmbedded.Inc()
		}
	}
	return nil
}

func (o *Orchestrator) retryPolicy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.cfg.Pipeline.RetryBaseDelay
	policy := backoff.WithMaxRetries(b, uint64(o.cfg.Pipeline.MaxRetries))
	return backoff.WithContext(policy, ctx)
}

func (o *Orchestrator) parseWithRetry(ctx context.Context, code, language string) (*extract.Result, error) {
	var result *extract.Result
	err := backoff.Retry(func() error {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.Pipeline.CallTimeout)
		defer cancel()
		var err error
		result, err = o.extractor.Parse(callCtx, code, language)
		return err
	}, o.retryPolicy(ctx))
	return result, err
}

func (o *Orchestrator) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := backoff.Retry(func() error {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.Pipeline.CallTimeout)
		defer cancel()
		var err error
		vector, err = o.embedder.Embed(callCtx, text)
		return err
	}, o.retryPolicy(ctx))
	return vector, err
}

// rebuildDependencies re-derives the import graph from each file's latest
// revision.
func (o *Orchestrator) rebuildDependencies(ctx context.Context, repo *models.Repository) error {
	known, err := o.store.ListFiles(ctx, repo.ID)
	if err != nil {
		return err
	}
	paths := make([]string, len(known))
	for i, f := range known {
		paths[i] = f.Path
	}
	resolver := deps.NewResolver(paths)

	for _, f := range known {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.Language == "" {
			continue
		}
		changes, err := o.store.ListFileChanges(ctx, repo.ID, f.Path)
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			continue
		}
		latest := changes[len(changes)-1]
		content, err := o.reader.FileAt(ctx, repo.ClonePath, latest.CommitSHA, f.Path)
		if err != nil {
			continue
		}
		result, err := o.extractor.Parse(ctx, content, f.Language)
		if err != nil {
			continue
		}

		var targets []string
		for _, imp := range result.Imports {
			if resolved := resolver.Resolve(f.Path, imp, f.Language); resolved != "" {
				targets = append(targets, resolved)
			}
		}
		if err := o.store.ReplaceDependencies(ctx, repo.ID, f.Path, targets); err != nil {
			return err
		}
	}
	return nil
}

// syncPullRequests refreshes the stored snapshot of open pull requests
// that risk queries run against.
func (o *Orchestrator) syncPullRequests(ctx context.Context, repo *models.Repository) error {
	prs, err := o.platform.ListOpenPullRequests(ctx, repo.Owner, repo.Name)
	if err != nil {
		return err
	}
	for i := range prs {
		prs[i].RepoID = repo.ID
		if err := o.store.UpsertPullRequest(ctx, &prs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) registerWebhook(ctx context.Context, repo *models.Repository) error {
	if o.cfg.Hosting.WebhookURL == "" {
		return nil
	}
	return o.platform.RegisterWebhook(ctx, repo.Owner, repo.Name, o.cfg.Hosting.WebhookURL, "")
}
