// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bizmint-cli/internal/browser"
	"github.com/xkilldash9x/bizmint-cli/internal/config"
	"github.com/xkilldash9x/bizmint-cli/internal/mailbox"
	"github.com/xkilldash9x/bizmint-cli/internal/network"
	"github.com/xkilldash9x/bizmint-cli/internal/observability"
	"github.com/xkilldash9x/bizmint-cli/internal/orchestrator"
	"github.com/xkilldash9x/bizmint-cli/internal/signup"
	"github.com/xkilldash9x/bizmint-cli/internal/store"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs a batch of signup attempts and persists the harvested credentials",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			domain, _ := cmd.Flags().GetString("domain")

			var cfg config.Config
			if err := viper.Unmarshal(&cfg); err != nil {
				return fmt.Errorf("failed to unmarshal config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return runBatch(cmd.Context(), &cfg, count, domain)
		},
	}

	runCmd.Flags().Int("count", 1, "number of accounts to create in this batch")
	runCmd.Flags().String("domain", "", "preferred mailbox domain for the admin allocation path")
	runCmd.Flags().Bool("headless", true, "run the browser headless")
	return runCmd
}

func runBatch(ctx context.Context, cfg *config.Config, count int, domain string) error {
	logger := observability.GetLogger()

	httpCfg := network.NewDefaultClientConfig()
	httpCfg.IgnoreTLSErrors = cfg.Mail.AllowSelfSigned
	if cfg.Mail.RequestTimeout > 0 {
		httpCfg.RequestTimeout = cfg.Mail.RequestTimeout
	}
	httpCfg.Logger = logger

	mail := mailbox.NewClient(cfg.Mail, network.NewClient(httpCfg), logger)
	pool := mailbox.NewPool()
	accounts := store.NewAccounts(cfg.Store.Path, logger)

	factory := func(ctx context.Context) (browser.Page, func(), error) {
		session, err := browser.NewSession(ctx, cfg.Browser, logger)
		if err != nil {
			return nil, nil, err
		}
		return session, session.Close, nil
	}

	flow := signup.New(cfg, mail, pool, factory, logger)
	orch := orchestrator.New(flow, accounts, cfg.Signup.AttemptTimeout, logger)

	task, err := orch.Start(ctx, count, domain)
	if err != nil {
		return err
	}
	logger.Info("Batch started",
		zap.String("task_id", task.ID),
		zap.Int("count", count))

	task = awaitTask(ctx, orch, task.ID, logger)

	logger.Info("Batch complete",
		zap.String("task_id", task.ID),
		zap.String("status", string(task.Status)),
		zap.Int("succeeded", task.SuccessCount),
		zap.Int("failed", task.FailCount))

	if task.Status != orchestrator.StatusSuccess {
		return fmt.Errorf("batch %s finished with status %s", task.ID, task.Status)
	}
	return nil
}

// awaitTask polls the task until it reaches a terminal status, logging
// progress as attempts complete.
func awaitTask(ctx context.Context, orch *orchestrator.Orchestrator, taskID string, logger *zap.Logger) orchestrator.Task {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	lastCompleted := 0
	for {
		task, ok := orch.GetTask(taskID)
		if !ok {
			return orchestrator.Task{ID: taskID, Status: orchestrator.StatusFailed}
		}
		if task.CompletedCount > lastCompleted {
			lastCompleted = task.CompletedCount
			logger.Info("Batch progress",
				zap.Int("completed", task.CompletedCount),
				zap.Int("requested", task.RequestedCount),
				zap.Int("succeeded", task.SuccessCount))
		}
		if task.Status == orchestrator.StatusSuccess || task.Status == orchestrator.StatusFailed {
			return task
		}

		select {
		case <-ctx.Done():
			// The orchestrator observes the same context and will finalize
			// the task as cancelled; keep polling at a gentle rate.
			time.Sleep(100 * time.Millisecond)
		case <-ticker.C:
		}
	}
}
