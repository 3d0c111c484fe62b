package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start background workers that keep challenge and token tables small.`,
}

var cleanupWorkerCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Purge expired OTPs, 2FA sessions and blacklisted tokens",
	Long:  `Periodically delete expired one-time codes, abandoned two-factor sessions and blacklist entries whose tokens can no longer be used.`,
	Run: func(cmd *cobra.Command, args []string) {
		startCleanupWorker()
	},
}

var (
	cleanupInterval time.Duration
	cleanupOnce     bool
)

type cleanupTask struct {
	name string
	run  func(ctx context.Context) (int64, error)
}

func startCleanupWorker() {
	deps, err := initializeDependencies(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	otps := newOTPService(deps)
	twoFactors := newTwoFactorService(deps)

	tasks := []cleanupTask{
		{name: "otps", run: otps.CleanupExpired},
		{name: "two_factor_sessions", run: twoFactors.CleanupExpiredSessions},
		{name: "blacklisted_tokens", run: func(ctx context.Context) (int64, error) {
			return deps.Blacklist.Purge(ctx, time.Now())
		}},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runCleanup(ctx, deps.Logger, tasks)
	if cleanupOnce {
		return
	}

	deps.Logger.Info("cleanup worker is running. Press Ctrl+C to stop.", "interval", cleanupInterval)
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			deps.Logger.Info("cleanup worker shutdown complete")
			return
		case <-ticker.C:
			runCleanup(ctx, deps.Logger, tasks)
		}
	}
}

func runCleanup(ctx context.Context, logger *slog.Logger, tasks []cleanupTask) {
	for _, task := range tasks {
		if ctx.Err() != nil {
			return
		}
		removed, err := task.run(ctx)
		if err != nil {
			logger.Error("cleanup failed", "task", task.name, "error", err)
			continue
		}
		logger.Info("cleanup finished", "task", task.name, "removed", removed)
	}
}

func init() {
	cleanupWorkerCmd.Flags().DurationVar(&cleanupInterval, "interval", 15*time.Minute, "time between cleanup runs")
	cleanupWorkerCmd.Flags().BoolVar(&cleanupOnce, "once", false, "run a single pass and exit")

	workerCmd.AddCommand(cleanupWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
