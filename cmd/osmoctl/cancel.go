// Copyright 2025 James Ross
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/osmo-project/control-plane/internal/config"
	"github.com/osmo-project/control-plane/internal/job"
	"github.com/osmo-project/control-plane/internal/statemachine"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <workflow-id>",
	Short: "Cancel a running or queued workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

func init() {
	cancelCmd.Flags().String("user", "", "User requesting the cancellation")
	cancelCmd.Flags().Bool("force", false, "Cancel already-finished groups too")

	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	workflowID := args[0]
	user, _ := cmd.Flags().GetString("user")
	force, _ := cmd.Flags().GetBool("force")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if rdbAddr != "" {
		cfg.Broker.Redis.Addr = rdbAddr
	}

	payload := job.CancelWorkflowPayload{
		WorkflowID:     workflowID,
		User:           user,
		WorkflowStatus: string(statemachine.WFFailedCanceled),
		TaskStatus:     string(statemachine.FailedCanceled),
		Force:          force,
	}
	j, err := job.New(job.SuperFrontend, job.TypeCancelWorkflow, job.JobIDCancelWorkflow(workflowID), "", payload)
	if err != nil {
		return fmt.Errorf("build job: %w", err)
	}

	if err := enqueueFrontend(cmd.Context(), cfg, j); err != nil {
		return err
	}
	fmt.Printf("cancel requested for %s\n", workflowID)
	return nil
}
