package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"devflow/internal/tasks"
)

// exitWaitTimeout is returned by `task wait` when the task is still running.
const exitWaitTimeout = 124

func newTaskCommand(ctx *commandContext) *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect background tasks",
	}

	taskCmd.AddCommand(newTaskStatusCommand(ctx))
	taskCmd.AddCommand(newTaskWaitCommand(ctx))
	taskCmd.AddCommand(newTaskLogCommand(ctx))
	taskCmd.AddCommand(newTaskListCommand(ctx))
	taskCmd.AddCommand(newTaskCleanCommand(ctx))
	taskCmd.AddCommand(newTaskExecCommand(ctx))
	return taskCmd
}

func newTaskStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Show a task's status",
		Long:  "Show a task's status. An id with no task record prints \"unknown\" and exits 0.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, err := ctx.tracker()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			rec, err := tracker.Record(cmd.Context(), args[0])
			if errors.Is(err, tasks.ErrTaskNotFound) {
				if asJSON {
					return writeJSON(cmd, tasks.Record{TaskID: args[0], Status: tasks.StatusUnknown})
				}
				fmt.Fprintln(out, tasks.StatusUnknown)
				return nil
			}
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, rec)
			}
			printTaskRecord(out, rec, ctx.now(), shouldColorize(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newTaskWaitCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "wait <id>",
		Short: "Wait for a task to finish",
		Long: "Wait for a task to finish and print its final status. Exits 0 when the task\n" +
			"completed, 1 when it failed and 124 when it is still running after --timeout.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("timeout") {
				timeout = cfg.WaitTimeout()
			}
			tracker, err := ctx.tracker()
			if err != nil {
				return err
			}
			status, err := tracker.Wait(cmd.Context(), args[0], timeout)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), status)
			switch status {
			case tasks.StatusCompleted:
				return nil
			case tasks.StatusFailed:
				return &exitCodeError{code: 1}
			default:
				return &exitCodeError{code: exitWaitTimeout}
			}
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Maximum time to wait (0 checks once; default from tasks.wait_timeout_seconds)")
	return cmd
}

func newTaskLogCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	cmd := &cobra.Command{
		Use:   "log <id>",
		Short: "Print a task's output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			tracker, err := ctx.tracker()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if follow {
				return tracker.FollowLog(cmd.Context(), args[0], out)
			}
			if !cmd.Flags().Changed("lines") {
				lines = cfg.Tasks.TailLines
			}
			logLines, err := tracker.TailLog(args[0], lines)
			if err != nil {
				return err
			}
			for _, line := range logLines {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 0, "Number of lines to show (default from tasks.tail_lines)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream the log until the task finishes")
	return cmd
}

func newTaskListCommand(ctx *commandContext) *cobra.Command {
	var all bool
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List running tasks (or all tasks with --all)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, err := ctx.tracker()
			if err != nil {
				return err
			}
			var records []tasks.Record
			if all {
				records, err = tracker.List(cmd.Context())
			} else {
				records, err = tracker.ListIncomplete(cmd.Context())
			}
			if err != nil {
				return err
			}
			if asJSON {
				if records == nil {
					records = []tasks.Record{}
				}
				return writeJSON(cmd, records)
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				if all {
					fmt.Fprintln(out, "No tasks")
				} else {
					fmt.Fprintln(out, "No running tasks")
				}
				return nil
			}
			now := ctx.now()
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{
					rec.TaskID,
					rec.Operation,
					string(rec.Status),
					formatPID(rec.PID),
					rec.StartTime.Local().Format(time.DateTime),
					formatDuration(rec.Duration(now)),
				})
			}
			columns := []column{left("ID"), left("Operation"), left("Status"), right("PID"), left("Started"), right("Duration")}
			fmt.Fprintln(out, renderTable(columns, rows))
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include finished tasks")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newTaskCleanCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove records and logs of finished tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan < 0 {
				return fmt.Errorf("--older-than must not be negative")
			}
			tracker, err := ctx.tracker()
			if err != nil {
				return err
			}
			removed, err := tracker.Clean(cmd.Context(), tasks.CleanOptions{OlderThan: olderThan})
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d finished task(s)\n", len(removed))
			return err
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Only remove tasks that finished at least this long ago")
	return cmd
}

// newTaskExecCommand is the child side of a background launch.
func newTaskExecCommand(ctx *commandContext) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:         "exec --id <id> <operation>",
		Short:       "Run an operation as a recorded background task",
		Hidden:      true,
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{taskExec: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(id) == "" {
				id = os.Getenv(tasks.EnvTaskID)
			}
			if strings.TrimSpace(id) == "" {
				return fmt.Errorf("task exec: --id is required")
			}
			ctx.taskLogging = true
			out := cmd.OutOrStdout()
			reg, err := ctx.registry(out)
			if err != nil {
				return err
			}
			launcher, err := ctx.launcher(reg)
			if err != nil {
				return err
			}
			if code := launcher.Execute(cmd.Context(), id, args[0], out); code != tasks.ExitOK {
				return &exitCodeError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Task id assigned by the launcher")
	return cmd
}

func printTaskRecord(out io.Writer, rec tasks.Record, now time.Time, colorize bool) {
	for _, line := range renderSectionHeader("Task "+rec.TaskID, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Status", taskStatusKind(rec.Status), string(rec.Status), colorize))
	fmt.Fprintln(out, renderField("Command", rec.Command))
	fmt.Fprintln(out, renderField("Operation", rec.Operation))
	fmt.Fprintln(out, renderField("PID", formatPID(rec.PID)))
	fmt.Fprintln(out, renderField("Started", rec.StartTime.Local().Format(time.DateTime)))
	fmt.Fprintln(out, renderField("Duration", formatDuration(rec.Duration(now))))
	if rec.ExitCode != nil {
		fmt.Fprintln(out, renderField("Exit code", strconv.Itoa(*rec.ExitCode)))
	}
	if rec.Error != "" {
		fmt.Fprintln(out, renderField("Error", rec.Error))
	}
	fmt.Fprintln(out, renderField("Log", rec.LogFile))
}

func formatPID(pid int) string {
	if pid <= 0 {
		return "-"
	}
	return strconv.Itoa(pid)
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}
