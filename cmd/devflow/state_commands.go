package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"devflow/internal/state"
)

func newStateCommand(ctx *commandContext) *cobra.Command {
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Read and write the shared state file",
	}

	stateCmd.AddCommand(newStateGetCommand(ctx))
	stateCmd.AddCommand(newStateSetCommand(ctx))
	stateCmd.AddCommand(newStateUnsetCommand(ctx))
	stateCmd.AddCommand(newStateClearCommand(ctx))
	stateCmd.AddCommand(newStateShowCommand(ctx))
	return stateCmd
}

func newStateGetCommand(ctx *commandContext) *cobra.Command {
	var required bool
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print the value stored under key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			value, ok, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				if required {
					return &state.MissingKeyError{Key: args[0]}
				}
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), state.FormatValue(value))
			return nil
		},
	}
	cmd.Flags().BoolVar(&required, "required", false, "Fail when the key is not set")
	return cmd
}

func newStateSetCommand(ctx *commandContext) *cobra.Command {
	var asString bool
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a value (JSON values are stored as JSON)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			var value any = args[1]
			if !asString {
				value = state.ParseValue(args[1])
			}
			return store.Set(cmd.Context(), args[0], value)
		},
	}
	cmd.Flags().BoolVar(&asString, "string", false, "Store the value verbatim as a string")
	return cmd
}

func newStateUnsetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			return store.Delete(cmd.Context(), args[0])
		},
	}
}

func newStateClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			if err := store.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "State cleared")
			return nil
		},
	}
}

func newStateShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print every key and value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			doc, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, doc)
			}
			out := cmd.OutOrStdout()
			if len(doc) == 0 {
				fmt.Fprintf(out, "State file %s is empty\n", store.Path())
				return nil
			}
			keys := state.SortedKeys(doc)
			rows := make([][]string, 0, len(keys))
			for _, key := range keys {
				rows = append(rows, []string{key, state.FormatValue(doc[key])})
			}
			fmt.Fprintln(out, renderTable([]column{left("Key"), left("Value")}, rows))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
