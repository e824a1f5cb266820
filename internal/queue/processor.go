// Package queue drains the durable webhook queue: claim, parse, run the
// incremental pipeline, mark done or requeue for retry.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/codeprov/codeprov-go/internal/config"
	"github.com/codeprov/codeprov-go/internal/hosting"
	"github.com/codeprov/codeprov-go/internal/ingest"
	"github.com/codeprov/codeprov-go/internal/metrics"
	"github.com/codeprov/codeprov-go/internal/storage"
)

// Processor runs a pool of workers against the webhook queue.
type Processor struct {
	store        storage.Store
	orchestrator *ingest.Orchestrator
	platform     hosting.Platform
	cfg          config.QueueConfig
	logger       *slog.Logger
}

// NewProcessor builds a Processor. platform may be nil, in which case
// no commit statuses are reported back to the hosting platform.
func NewProcessor(store storage.Store, orchestrator *ingest.Orchestrator, platform hosting.Platform, cfg config.QueueConfig) *Processor {
	return &Processor{
		store:        store,
		orchestrator: orchestrator,
		platform:     platform,
		cfg:          cfg,
		logger:       slog.Default().With("component", "queue"),
	}
}

// Enqueue accepts a raw webhook payload into the durable queue. The
// payload is validated no further here: acceptance must be cheap so the
// webhook endpoint can respond before the sender times out.
func (p *Processor) Enqueue(ctx context.Context, payload []byte) (int64, error) {
	id, err := p.store.EnqueueWebhook(ctx, payload)
	if err != nil {
		return 0, fmt.Errorf("enqueue webhook: %w", err)
	}
	metrics.WebhooksEnqueued.Inc()
	p.logger.Debug("webhook enqueued", "id", id, "bytes", len(payload))
	return id, nil
}

// Run starts the worker pool and blocks until ctx is canceled. Workers
// drain the queue, then poll with a jittered interval. In-flight items
// finish before Run returns.
func (p *Processor) Run(ctx context.Context) {
	p.logger.Info("queue workers starting", "workers", p.cfg.Workers, "poll_interval", p.cfg.PollInterval)
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			p.workerLoop(ctx, worker)
		}(i)
	}
	wg.Wait()
	p.logger.Info("queue workers stopped")
}

func (p *Processor) workerLoop(ctx context.Context, worker int) {
	for {
		item, err := p.store.ClaimNextPendingWebhook(ctx)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			// Queue is empty; back off before polling again. Jitter keeps
			// workers from stampeding the store in lockstep.
			select {
			case <-ctx.Done():
				return
			case <-time.After(jitter(p.cfg.PollInterval)):
			}
			continue
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("claim failed", "worker", worker, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(jitter(p.cfg.PollInterval)):
			}
			continue
		}

		p.process(ctx, item.ID, item.Payload, item.CreatedAt)
		if ctx.Err() != nil {
			return
		}
	}
}

// process runs a claimed item to a terminal mark. The item is already
// ours; any failure is recorded as a retry or terminal failure rather
// than returned.
func (p *Processor) process(ctx context.Context, id int64, payload []byte, enqueuedAt time.Time) {
	log := p.logger.With("item", id)

	event, err := hosting.ParsePushPayload(payload)
	if err != nil {
		// A malformed payload never parses better on retry.
		log.Warn("discarding malformed webhook payload", "error", err)
		p.markFailed(ctx, id, err, true)
		return
	}
	repo, err := p.store.GetRepositoryByFullName(ctx, event.RepoFullName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Warn("webhook for unknown repository", "repo", event.RepoFullName)
			p.markFailed(ctx, id, err, true)
			return
		}
		p.markFailed(ctx, id, err, false)
		return
	}

	if err := p.orchestrator.ProcessIncrementalUpdate(ctx, repo.ID, event.HeadSHA, event.ChangedFiles); err != nil {
		log.Warn("incremental update failed", "repo", event.RepoFullName, "error", err)
		p.reportStatus(ctx, repo.Owner, repo.Name, event.HeadSHA, hosting.StatusError, "analysis failed")
		p.markFailed(ctx, id, err, false)
		return
	}
	p.reportStatus(ctx, repo.Owner, repo.Name, event.HeadSHA, hosting.StatusSuccess, "analysis up to date")

	markCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.store.MarkWebhookDone(markCtx, id); err != nil {
		log.Error("cannot mark webhook done", "error", err)
		return
	}
	metrics.WebhooksProcessed.WithLabelValues("done").Inc()
	metrics.QueueLatency.Observe(time.Since(enqueuedAt).Seconds())
	log.Info("webhook processed", "repo", event.RepoFullName, "head", event.HeadSHA)
}

// markFailed records a failure. Terminal failures exhaust the retry
// budget immediately; otherwise the item goes back to pending until
// retry_count hits the bound.
func (p *Processor) markFailed(_ context.Context, id int64, cause error, terminal bool) {
	maxRetries := p.cfg.MaxRetries
	if terminal {
		maxRetries = 0
	}
	// Outcome marks use a background context so they still land when the
	// run context was canceled mid-item.
	markCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.store.MarkWebhookFailed(markCtx, id, cause.Error(), maxRetries); err != nil {
		p.logger.Error("cannot mark webhook failed", "item", id, "error", err)
		return
	}
	metrics.WebhooksProcessed.WithLabelValues("failed").Inc()
}

// reportStatus posts an analysis outcome back to the hosting platform.
// Best effort: a status that does not land never affects the queue item.
func (p *Processor) reportStatus(ctx context.Context, owner, name, sha string, status hosting.CommitStatus, description string) {
	if p.platform == nil || sha == "" {
		return
	}
	if err := p.platform.PostCommitStatus(ctx, owner, name, sha, status, description); err != nil {
		p.logger.Warn("cannot post commit status", "repo", owner+"/"+name, "sha", sha, "error", err)
	}
}

// jitter spreads d by up to +-25%.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	spread := int64(d) / 2
	return d - time.Duration(spread/2) + time.Duration(rand.Int63n(spread+1))
}
