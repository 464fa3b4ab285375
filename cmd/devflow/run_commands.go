package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"devflow/internal/operations"
	"devflow/internal/tasks"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var async bool
	cmd := &cobra.Command{
		Use:   "run <operation>",
		Short: "Run a registered operation",
		Long: "Run a registered operation in the foreground, or with --async as a\n" +
			"background task. Operations read their inputs from the state file.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, ctx, args[0], async)
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "Run in the background and print the task id")
	return cmd
}

func newOpsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ops",
		Short: "List registered operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := ctx.registry(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defs := reg.Definitions()
			rows := make([][]string, 0, len(defs))
			for _, def := range defs {
				rows = append(rows, []string{def.Name, def.Display, def.Module})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]column{left("Operation"), left("Display"), left("Module")}, rows))
			return nil
		},
	}
}

// newOperationCommands returns the per-service shortcuts for `run`.
func newOperationCommands(ctx *commandContext) []*cobra.Command {
	appInsights := &cobra.Command{Use: "appinsights", Short: "Application Insights operations"}
	appInsights.AddCommand(newOperationShortcut(ctx, "query", "Run azure.query against azure.environment", operations.AppInsightsQuery))

	pipeline := &cobra.Command{Use: "pipeline", Short: "Azure DevOps pipeline operations"}
	pipeline.AddCommand(newOperationShortcut(ctx, "poll", "Wait for azure.pipeline_run_id to finish", operations.PipelinePoll))

	pr := &cobra.Command{Use: "pr", Short: "GitHub pull request operations"}
	pr.AddCommand(newOperationShortcut(ctx, "view", "Fetch pull_request_id into github.pull_request", operations.PullRequestView))

	return []*cobra.Command{appInsights, pipeline, pr}
}

func newOperationShortcut(ctx *commandContext, use, short, operation string) *cobra.Command {
	var async bool
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, ctx, operation, async)
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "Run in the background and print the task id")
	return cmd
}

func runOperation(cmd *cobra.Command, ctx *commandContext, name string, async bool) error {
	out := cmd.OutOrStdout()
	reg, err := ctx.registry(out)
	if err != nil {
		return err
	}
	if !async {
		def, err := reg.Resolve(name)
		if err != nil {
			return err
		}
		return def.Run(cmd.Context())
	}

	launcher, err := ctx.launcher(reg)
	if err != nil {
		return err
	}
	rec, err := launcher.Launch(cmd.Context(), name, "")
	if err != nil {
		return err
	}
	printLaunched(cmd, rec)
	return nil
}

func printLaunched(cmd *cobra.Command, rec tasks.Record) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Started %s in the background\n", rec.Command)
	fmt.Fprintln(out, renderField("Task", rec.TaskID))
	fmt.Fprintln(out, renderField("PID", formatPID(rec.PID)))
	fmt.Fprintln(out, renderField("Log", rec.LogFile))
	fmt.Fprintf(out, "Check progress with: devflow task status %s\n", rec.TaskID)
}
