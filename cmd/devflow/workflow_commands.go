package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"devflow/internal/state"
)

func newWorkflowCommand(ctx *commandContext) *cobra.Command {
	workflowCmd := &cobra.Command{
		Use:   "workflow",
		Short: "Track the multi-step workflow stored in the state file",
	}

	workflowCmd.AddCommand(newWorkflowShowCommand(ctx))
	workflowCmd.AddCommand(newWorkflowStartCommand(ctx))
	workflowCmd.AddCommand(newWorkflowStepCommand(ctx))
	workflowCmd.AddCommand(newWorkflowFinishCommand(ctx))
	workflowCmd.AddCommand(newWorkflowClearCommand(ctx))
	return workflowCmd
}

func newWorkflowShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current workflow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			wf, ok, err := store.Workflow(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				if !ok {
					return writeJSON(cmd, nil)
				}
				return writeJSON(cmd, wf)
			}
			out := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintln(out, "No active workflow")
				return nil
			}
			printWorkflow(out, wf, shouldColorize(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newWorkflowStartCommand(ctx *commandContext) *cobra.Command {
	var step string
	cmd := &cobra.Command{
		Use:   "start <name>",
		Short: "Start a workflow, replacing any existing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			wf := state.Workflow{Name: args[0], Status: state.WorkflowActive, Step: step}
			if err := store.SetWorkflow(cmd.Context(), wf); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Started workflow %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&step, "step", "", "Initial step")
	return cmd
}

func newWorkflowStepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "step <step>",
		Short: "Record the current step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			wf, err := store.AdvanceWorkflow(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("advance workflow: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Workflow %s at step %s\n", wf.Name, wf.Step)
			return nil
		},
	}
}

func newWorkflowFinishCommand(ctx *commandContext) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "finish",
		Short: "Mark the workflow finished",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch status {
			case state.WorkflowCompleted, state.WorkflowFailed:
			default:
				return fmt.Errorf("--status must be %q or %q", state.WorkflowCompleted, state.WorkflowFailed)
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			wf, err := store.FinishWorkflow(cmd.Context(), status)
			if err != nil {
				return fmt.Errorf("finish workflow: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Workflow %s %s\n", wf.Name, wf.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", state.WorkflowCompleted, "Terminal status (completed or failed)")
	return cmd
}

func newWorkflowClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the workflow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			return store.ClearWorkflow(cmd.Context())
		},
	}
}

func printWorkflow(out io.Writer, wf state.Workflow, colorize bool) {
	for _, line := range renderSectionHeader("Workflow "+wf.Name, colorize) {
		fmt.Fprintln(out, line)
	}
	kind := statusInfo
	switch wf.Status {
	case state.WorkflowCompleted:
		kind = statusOK
	case state.WorkflowFailed:
		kind = statusError
	}
	fmt.Fprintln(out, renderStatusLine("Status", kind, wf.Status, colorize))
	if wf.Step != "" {
		fmt.Fprintln(out, renderField("Step", wf.Step))
	}
	if !wf.UpdatedAt.IsZero() {
		fmt.Fprintln(out, renderField("Updated", wf.UpdatedAt.Local().Format(time.DateTime)))
	}
	if len(wf.Context) > 0 {
		keys := make([]string, 0, len(wf.Context))
		for key := range wf.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintln(out, renderField(key, state.FormatValue(wf.Context[key])))
		}
	}
}
