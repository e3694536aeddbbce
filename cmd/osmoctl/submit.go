// Copyright 2025 James Ross
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/osmo-project/control-plane/internal/broker"
	"github.com/osmo-project/control-plane/internal/config"
	"github.com/osmo-project/control-plane/internal/job"
	"github.com/osmo-project/control-plane/internal/redisclient"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a workflow spec to the FRONTEND queue",
	Long: `Enqueue a SubmitWorkflow job for a workflow spec file.

Examples:
  osmoctl submit -f workflow.json --pool default --backend cluster-a`,
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringP("file", "f", "", "Workflow spec file (required)")
	submitCmd.Flags().String("pool", "default", "Target pool")
	submitCmd.Flags().String("backend", "", "Target backend")
	submitCmd.Flags().String("priority", string(job.PriorityNormal), "Priority: LOW|NORMAL|HIGH")
	submitCmd.Flags().String("user", os.Getenv("USER"), "Submitting user")
	submitCmd.Flags().Duration("queue-timeout", 24*time.Hour, "Queue timeout")
	submitCmd.Flags().Duration("exec-timeout", 24*time.Hour, "Execution timeout")
	_ = submitCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	pool, _ := cmd.Flags().GetString("pool")
	backend, _ := cmd.Flags().GetString("backend")
	priority, _ := cmd.Flags().GetString("priority")
	user, _ := cmd.Flags().GetString("user")
	queueTimeout, _ := cmd.Flags().GetDuration("queue-timeout")
	execTimeout, _ := cmd.Flags().GetDuration("exec-timeout")

	spec, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read spec file: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if rdbAddr != "" {
		cfg.Broker.Redis.Addr = rdbAddr
	}

	workflowID := uuid.NewString()
	payload := job.SubmitWorkflowPayload{
		WorkflowID:   workflowID,
		WorkflowUUID: uuid.NewString(),
		Spec:         spec,
		User:         user,
		Pool:         pool,
		Backend:      backend,
		Priority:     job.Priority(priority),
		QueueTimeout: queueTimeout,
		ExecTimeout:  execTimeout,
	}
	j, err := job.New(job.SuperFrontend, job.TypeSubmitWorkflow, job.JobIDSubmitWorkflow(workflowID), "", payload)
	if err != nil {
		return fmt.Errorf("build job: %w", err)
	}

	if err := enqueueFrontend(cmd.Context(), cfg, j); err != nil {
		return err
	}
	fmt.Println(workflowID)
	return nil
}

func enqueueFrontend(ctx context.Context, cfg *config.Config, j job.Job) error {
	rdb := redisclient.New(cfg.Broker.Redis)
	defer rdb.Close()
	raw, err := j.Marshal()
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := rdb.LPush(ctx, broker.FrontendQueueKey, raw).Err(); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}
