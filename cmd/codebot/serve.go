package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajibigad/codebot/internal/agent"
	"github.com/ajibigad/codebot/internal/classify"
	"github.com/ajibigad/codebot/internal/config"
	"github.com/ajibigad/codebot/internal/hosting"
	"github.com/ajibigad/codebot/internal/ledger"
	"github.com/ajibigad/codebot/internal/maintenance"
	"github.com/ajibigad/codebot/internal/orchestrator"
	"github.com/ajibigad/codebot/internal/poller"
	"github.com/ajibigad/codebot/internal/review"
	"github.com/ajibigad/codebot/internal/scheduler"
	"github.com/ajibigad/codebot/internal/server"
	"github.com/ajibigad/codebot/internal/taskstore"
	"github.com/ajibigad/codebot/internal/webhook"
	"github.com/ajibigad/codebot/internal/workspace"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the codebot server",
	Long:  `Starts the HTTP API, the task workers, and the review comment processor.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file (optional; env vars override)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log.Println("Starting codebot...")

	runner := agent.NewCLIRunner(cfg.AgentBin, cfg.AgentTimeout)
	if err := runner.Installed(); err != nil {
		return err
	}

	workspaces, err := workspace.NewManager(cfg.WorkspaceDir)
	if err != nil {
		return err
	}

	hist, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return err
	}

	host := hosting.NewGitHub(cmd.Context(), cfg.GitHubToken)

	// Task pipeline
	store := taskstore.New()
	orch := orchestrator.New(workspaces, runner, host)
	sched := scheduler.New(store, orch, cfg.Workers, cfg.TaskQueueSize)
	sched.SetArchiver(hist)
	sched.Start()

	// Review pipeline
	reviewQueue := review.NewQueue(cfg.ReviewQueueSize)
	classifier := classify.NewAgentClassifier(runner)
	processor := review.NewProcessor(reviewQueue, host, workspaces, runner, classifier, cfg.SignatureMarker)
	processor.SetRecorder(hist)
	processor.Start()

	ingress := webhook.New(cfg.WebhookSecret, cfg.BotLogin, cfg.SignatureMarker, reviewQueue)

	// Polling intake for deployments webhooks cannot reach.
	var commentPoller *poller.Poller
	if cfg.PollInterval > 0 {
		commentPoller, err = poller.New(store, host, reviewQueue, cfg.BotLogin, cfg.SignatureMarker, cfg.PollInterval)
		if err != nil {
			return err
		}
		commentPoller.Start()
	}

	// Retention sweep
	sweeper, err := maintenance.NewSweeper(store, hist, cfg.TaskRetention, cfg.SweepInterval)
	if err != nil {
		return err
	}
	sweeper.Start()

	srv := server.New(cfg, store, sched, ingress, reviewQueue)

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		err := srv.Start()
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-serverErr:
		if err != nil {
			log.Printf("Server error: %v", err)
		}
	}

	// Stop intake first, then drain the workers.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Println("Shutting down HTTP server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if commentPoller != nil {
		commentPoller.Stop()
	}
	sweeper.Stop()
	sched.Stop()
	processor.Stop()

	log.Println("Closing ledger...")
	if err := hist.Close(); err != nil {
		log.Printf("Ledger close error: %v", err)
	}

	log.Println("Shutdown complete")
	return nil
}
