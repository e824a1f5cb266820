package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/codeprov/codeprov-go/internal/models"
	"github.com/codeprov/codeprov-go/internal/negscore"
	"github.com/codeprov/codeprov-go/internal/queue"
	"github.com/codeprov/codeprov-go/internal/storage"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the webhook intake server and queue workers",
	Long: `Start the long-running worker process: an HTTP endpoint that accepts
push webhooks into the durable queue, a pool of workers that drain the
queue through incremental analysis, and a scheduled negative-score
recompute across all completed repositories.

The webhook endpoint listens on queue.listen_addr (default :8472) and
also serves /metrics and /healthz.`,
	RunE: runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	// Repositories stranded mid-pipeline by a previous crash restart from
	// scratch; idempotent persistence makes the rerun cheap.
	if reset, err := store.ResetInterruptedRepositories(ctx); err != nil {
		return err
	} else if reset > 0 {
		logger.WithField("count", reset).Info("Reset interrupted repositories to pending")
	}

	orchestrator, platform, err := buildOrchestrator(store)
	if err != nil {
		return err
	}
	processor := queue.NewProcessor(store, orchestrator, platform, cfg.Queue)
	server := queue.NewServer(cfg.Queue.ListenAddr, processor, cfg.Hosting.WebhookSecret)

	var scheduler *cron.Cron
	if cfg.Queue.RecomputeSchedule != "" {
		scheduler = cron.New()
		detector := negscore.NewDetector(store, cfg.Analysis)
		_, err := scheduler.AddFunc(cfg.Queue.RecomputeSchedule, func() {
			recomputeAll(ctx, store, detector)
		})
		if err != nil {
			return err
		}
		scheduler.Start()
		logger.WithField("schedule", cfg.Queue.RecomputeSchedule).Info("Scheduled negative score recompute")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	go processor.Run(ctx)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logger.Info("Shutting down")
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// recomputeAll runs the negative score detector over every repository that
// has completed at least one analysis.
func recomputeAll(ctx context.Context, store storage.Store, detector *negscore.Detector) {
	repos, err := store.ListRepositories(ctx, models.RepoStatusCompleted)
	if err != nil {
		logger.WithError(err).Error("Cannot list repositories for recompute")
		return
	}
	for _, repo := range repos {
		if err := detector.CalculateForRepository(ctx, repo.ID); err != nil {
			logger.WithError(err).WithField("repo", repo.FullName).Error("Negative score recompute failed")
		}
	}
}
